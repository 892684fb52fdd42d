package domain

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testRegion = "Avalon"
	testDate   = "2025-01-15"
)

func baseInputs(domains ...DomainInput) RecordInputs {
	return RecordInputs{MeanAge: 40, Population: 1000, LifeExpectancy: 80, Domains: domains}
}

func TestCalculate(t *testing.T) {
	rec, warnings, err := Calculate(baseInputs(
		DomainInput{Name: "A", TLIPHS: 100, Unit: UnitYears},
		DomainInput{Name: "B", TLIPHS: 200, Unit: UnitYears},
	))
	require.NoError(t, err)
	assert.Empty(t, warnings)

	assert.Equal(t, []string{"A", "B"}, rec.DomainNames())
	assert.InDelta(t, 0.25, rec.DSAV()["A"], 1e-12)
	assert.InDelta(t, 0.5, rec.DSAV()["B"], 1e-12)
	assert.InDelta(t, 0.375, rec.NLHI, 1e-12)
	assert.Equal(t, 80.0, rec.AvgLifeExpectancy)
}

func TestCalculate_Validation(t *testing.T) {
	named := []DomainInput{{Name: "A", TLIPHS: 1, Unit: UnitYears}}

	tests := []struct {
		name  string
		in    RecordInputs
		field string
	}{
		{"zero mean age", RecordInputs{MeanAge: 0, Population: 1, LifeExpectancy: 1, Domains: named}, "mean_age"},
		{"negative population", RecordInputs{MeanAge: 1, Population: -5, LifeExpectancy: 1, Domains: named}, "population"},
		{"zero life expectancy", RecordInputs{MeanAge: 1, Population: 1, LifeExpectancy: 0, Domains: named}, "life_expectancy"},
		{"no domains", baseInputs(), "domains"},
		{"blank domain names", baseInputs(DomainInput{Name: "  "}, DomainInput{Name: ""}), "domains"},
		{"infinite tliphs", baseInputs(DomainInput{Name: "A", TLIPHS: math.Inf(1), Unit: UnitYears}), "domains"},
		{"nan mortality", baseInputs(DomainInput{Name: "A", TLIPHS: 1, Unit: UnitYears, Mortality: math.NaN()}), "domains"},
		{"overflowing scores", baseInputs(DomainInput{Name: "A", TLIPHS: 1e308, Unit: UnitYears, Mortality: 1e308}), "domains"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Calculate(tt.in)
			require.Error(t, err)

			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
			assert.True(t, IsValidation(err))
		})
	}
}

func TestCalculate_NoDomainsWrapsSentinel(t *testing.T) {
	_, _, err := Calculate(baseInputs())
	assert.True(t, errors.Is(err, ErrNoDomains))
}

func TestCalculate_SkipsBlankNamesAndTrims(t *testing.T) {
	rec, _, err := Calculate(baseInputs(
		DomainInput{Name: "   ", TLIPHS: 999, Unit: UnitYears},
		DomainInput{Name: "  Mental Health ", TLIPHS: 100, Unit: UnitYears},
	))
	require.NoError(t, err)
	assert.Equal(t, []string{"Mental Health"}, rec.DomainNames())
	assert.InDelta(t, 0.25, rec.NLHI, 1e-12)
}

func TestCalculate_DuplicateNamesLastWriteWins(t *testing.T) {
	rec, _, err := Calculate(baseInputs(
		DomainInput{Name: "A", TLIPHS: 400, Unit: UnitYears},
		DomainInput{Name: "B", TLIPHS: 200, Unit: UnitYears},
		DomainInput{Name: "A", TLIPHS: 100, Unit: UnitYears},
	))
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B"}, rec.DomainNames())
	a, ok := rec.Domain("A")
	require.True(t, ok)
	assert.Equal(t, 100.0, a.TLIPHS)
	assert.InDelta(t, 0.375, rec.NLHI, 1e-12)
}

func TestCalculate_LifeExpectancyWarning(t *testing.T) {
	in := baseInputs(DomainInput{Name: "A", TLIPHS: 1, Unit: UnitYears, Mortality: 3})
	in.LifeExpectancy = 35

	rec, warnings, err := Calculate(in)
	require.NoError(t, err)
	assert.Len(t, warnings, 1)
	assert.Less(t, rec.Domains[0].DSTLYA, 0.0)
}

func TestRegionStore_Upsert(t *testing.T) {
	s := NewRegionStore()

	rec, _, err := s.Upsert(testRegion, testDate, baseInputs(DomainInput{Name: "A", TLIPHS: 100, Unit: UnitYears}))
	require.NoError(t, err)
	assert.InDelta(t, 0.25, rec.NLHI, 1e-12)

	assert.True(t, s.HasRegion(testRegion))
	stored, ok := s.Record(testRegion, testDate)
	require.True(t, ok)
	assert.Equal(t, rec, stored)
	assert.Equal(t, 1, s.RecordCount())
}

func TestRegionStore_UpsertValidationLeavesStoreUnchanged(t *testing.T) {
	s := NewRegionStore()

	_, _, err := s.Upsert(testRegion, testDate, baseInputs())
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.False(t, s.HasRegion(testRegion))
	assert.Empty(t, s.Regions())

	_, _, err = s.Upsert(testRegion, testDate, baseInputs(DomainInput{Name: " "}))
	require.Error(t, err)
	assert.Equal(t, 0, s.RecordCount())
}

func TestRegionStore_UpsertRejectsBadRegionAndDate(t *testing.T) {
	s := NewRegionStore()
	in := baseInputs(DomainInput{Name: "A", TLIPHS: 1, Unit: UnitYears})

	_, _, err := s.Upsert("  ", testDate, in)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "region", ve.Field)

	for _, date := range []string{"", "15/01/2025", "2025-13-01", "2025-1-5"} {
		_, _, err = s.Upsert(testRegion, date, in)
		require.ErrorIs(t, err, ErrInvalidDate, date)
	}
	assert.Empty(t, s.Regions())
}

func TestRegionStore_UpsertReplacesWholesale(t *testing.T) {
	s := NewRegionStore()

	_, _, err := s.Upsert(testRegion, testDate, baseInputs(
		DomainInput{Name: "Respiratory", TLIPHS: 10, Unit: UnitYears},
		DomainInput{Name: "Cardio", TLIPHS: 20, Unit: UnitYears},
	))
	require.NoError(t, err)

	second, _, err := s.Upsert(testRegion, testDate, baseInputs(
		DomainInput{Name: "Mental Health", TLIPHS: 30, Unit: UnitYears},
	))
	require.NoError(t, err)

	stored, ok := s.Record(testRegion, testDate)
	require.True(t, ok)
	assert.Equal(t, second, stored)
	assert.Equal(t, []string{"Mental Health"}, stored.DomainNames())

	raw, err := stored.MarshalJSON()
	require.NoError(t, err)
	dsav := ExtractDSAVMap(raw)
	assert.Len(t, dsav, 1)
	assert.Contains(t, dsav, "Mental Health")
	assert.NotContains(t, dsav, "Respiratory")
	assert.NotContains(t, dsav, "Cardio")
}

func TestRegionStore_RegisterRegion(t *testing.T) {
	s := NewRegionStore()

	name, created, err := s.RegisterRegion("  Labrador ")
	require.NoError(t, err)
	assert.Equal(t, "Labrador", name)
	assert.True(t, created)

	_, created, err = s.RegisterRegion("Labrador")
	require.NoError(t, err)
	assert.False(t, created)

	_, _, err = s.RegisterRegion("   ")
	assert.True(t, IsValidation(err))

	assert.True(t, s.HasRegion("Labrador"))
	assert.Empty(t, s.RegionDates("Labrador"))
	assert.NotNil(t, s.Records("Labrador"))
	assert.Nil(t, s.Records("Nowhere"))
}

func TestRegionStore_RegionDatesSorted(t *testing.T) {
	s := NewRegionStore()
	in := baseInputs(DomainInput{Name: "A", TLIPHS: 1, Unit: UnitYears})
	for _, d := range []string{"2025-03-01", "2024-12-31", "2025-01-15"} {
		_, _, err := s.Upsert(testRegion, d, in)
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"2024-12-31", "2025-01-15", "2025-03-01"}, s.RegionDates(testRegion))
	assert.Empty(t, s.RegionDates("Nowhere"))
}

func TestRegionStore_DeleteRegion(t *testing.T) {
	s := NewRegionStore()
	_, _, err := s.Upsert(testRegion, testDate, baseInputs(DomainInput{Name: "A", TLIPHS: 1, Unit: UnitYears}))
	require.NoError(t, err)

	assert.True(t, s.DeleteRegion(testRegion))
	assert.False(t, s.HasRegion(testRegion))
	_, ok := s.Record(testRegion, testDate)
	assert.False(t, ok)

	assert.False(t, s.DeleteRegion(testRegion), "second delete is a no-op")
}

func TestRegionStore_Remove(t *testing.T) {
	s := NewRegionStore()
	_, _, err := s.Upsert(testRegion, testDate, baseInputs(DomainInput{Name: "A", TLIPHS: 1, Unit: UnitYears}))
	require.NoError(t, err)

	assert.True(t, s.Remove(testRegion, testDate))
	assert.False(t, s.Remove(testRegion, testDate))
	assert.True(t, s.HasRegion(testRegion))
}

func TestRegionStore_ReturnedRecordsAreCopies(t *testing.T) {
	s := NewRegionStore()
	rec, _, err := s.Upsert(testRegion, testDate, baseInputs(DomainInput{Name: "A", TLIPHS: 1, Unit: UnitYears}))
	require.NoError(t, err)

	rec.Domains[0].DSAV = 999
	snap := s.Snapshot()
	snap[testRegion][testDate].Domains[0].Name = "mutated"

	stored, _ := s.Record(testRegion, testDate)
	assert.Equal(t, "A", stored.Domains[0].Name)
	assert.NotEqual(t, 999.0, stored.Domains[0].DSAV)
}
