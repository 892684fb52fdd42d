package domain

import (
	"fmt"
	"math"
)

// verifyTolerance is the relative tolerance used when comparing stored and
// recomputed values.
const verifyTolerance = 1e-9

// VerifyRecord recomputes every derived value of rec from its stored inputs
// and describes each mismatch. An empty result means the record is
// internally consistent.
func VerifyRecord(rec RegionRecord) []string {
	var problems []string
	if len(rec.Domains) == 0 {
		problems = append(problems, "record has no domains")
	}

	dsav := make([]float64, 0, len(rec.Domains))
	for _, d := range rec.Domains {
		years := ConvertToYears(d.TLIPHS, d.TLIPHSUnit)
		if !closeEnough(d.TLIPHSYears, years) {
			problems = append(problems, fmt.Sprintf("domain %q: TLIPHS_years %g, want %g", d.Name, d.TLIPHSYears, years))
		}
		dstlya := ComputeDSTLYA(d.TLIPHS, d.TLIPHSUnit, d.Mortality, rec.AvgLifeExpectancy, rec.MeanAge)
		if !closeEnough(d.DSTLYA, dstlya) {
			problems = append(problems, fmt.Sprintf("domain %q: DSTLYA %g, want %g", d.Name, d.DSTLYA, dstlya))
		}
		want := ComputeDSAV(dstlya, rec.MeanAge, rec.Population)
		if !closeEnough(d.DSAV, want) {
			problems = append(problems, fmt.Sprintf("domain %q: DSAV %g, want %g", d.Name, d.DSAV, want))
		}
		dsav = append(dsav, d.DSAV)
	}

	if nlhi := ComputeNLHI(dsav); !closeEnough(rec.NLHI, nlhi) {
		problems = append(problems, fmt.Sprintf("NLHI %g, want %g", rec.NLHI, nlhi))
	}
	return problems
}

func closeEnough(got, want float64) bool {
	diff := math.Abs(got - want)
	if diff <= verifyTolerance {
		return true
	}
	return diff <= verifyTolerance*math.Max(math.Abs(got), math.Abs(want))
}
