package domain

// Duration unit labels accepted for TLIPHS values.
const (
	UnitDays   = "Day(s)"
	UnitWeeks  = "Week(s)"
	UnitMonths = "Month(s)"
	UnitYears  = "Year(s)"
)

// yearsPerUnit maps a duration unit label to its years-per-unit multiplier.
var yearsPerUnit = map[string]float64{
	UnitDays:   1 / 365.25,
	UnitWeeks:  1 / 52.1429,
	UnitMonths: 1 / 12.0,
	UnitYears:  1.0,
}

// Units returns the supported unit labels, shortest to longest.
func Units() []string {
	return []string{UnitDays, UnitWeeks, UnitMonths, UnitYears}
}

// KnownUnit reports whether unit has an entry in the conversion table.
func KnownUnit(unit string) bool {
	_, ok := yearsPerUnit[unit]
	return ok
}

// YearsPerUnit returns the multiplier for unit. Unknown units are treated as
// years and return 1.0.
func YearsPerUnit(unit string) float64 {
	if m, ok := yearsPerUnit[unit]; ok {
		return m
	}
	return 1.0
}

// ConvertToYears converts a duration expressed in unit to years.
func ConvertToYears(value float64, unit string) float64 {
	return value * YearsPerUnit(unit)
}
