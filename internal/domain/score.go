package domain

import "math"

// ComputeDSTLYA returns the domain-specific time lost and years adjusted:
// the TLIPHS duration in years plus the mortality term scaled by the gap
// between life expectancy and mean age. Negative results are valid.
func ComputeDSTLYA(tliphs float64, unit string, mortality, lifeExpectancy, meanAge float64) float64 {
	return ConvertToYears(tliphs, unit) + mortality*(lifeExpectancy-meanAge)
}

// ComputeDSAV normalizes a DSTLYA value to a percentage of mean age times
// population. A zero denominator yields exactly 0.
func ComputeDSAV(dstlya, meanAge, population float64) float64 {
	denom := meanAge * population
	if denom == 0 {
		return 0.0
	}
	return dstlya * 100.0 / denom
}

// ComputeNLHI returns the arithmetic mean of the DSAV values, or exactly 0
// for an empty slice.
func ComputeNLHI(dsav []float64) float64 {
	if len(dsav) == 0 {
		return 0.0
	}
	return compensatedSum(dsav) / float64(len(dsav))
}

// compensatedSum adds values with Neumaier compensation so the result does
// not drift with summation order.
func compensatedSum(values []float64) float64 {
	var sum, c float64
	for _, v := range values {
		t := sum + v
		if math.Abs(sum) >= math.Abs(v) {
			c += (sum - t) + v
		} else {
			c += (v - t) + sum
		}
		sum = t
	}
	// Once the running sum overflows or meets an infinity the correction
	// term is Inf-Inf; the plain IEEE sum is the answer.
	if math.IsInf(sum, 0) || math.IsNaN(sum) {
		return sum
	}
	return sum + c
}

// ScoreDomain computes the full result for one domain input.
func ScoreDomain(in DomainInput, lifeExpectancy, meanAge, population float64) DomainResult {
	dstlya := ComputeDSTLYA(in.TLIPHS, in.Unit, in.Mortality, lifeExpectancy, meanAge)
	return DomainResult{
		Name:        in.Name,
		TLIPHS:      in.TLIPHS,
		TLIPHSUnit:  in.Unit,
		Mortality:   in.Mortality,
		TLIPHSYears: ConvertToYears(in.TLIPHS, in.Unit),
		DSTLYA:      dstlya,
		DSAV:        ComputeDSAV(dstlya, meanAge, population),
	}
}
