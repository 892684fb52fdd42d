// Package domain computes the Newfoundland and Labrador Health Index (NLHI)
// for regions over time.
//
// # Inputs
//
// A calculation for one region on one date takes three demographic scalars
// (mean age, population, average life expectancy) and one or more burden
// domains. Each domain carries:
//
//	TLIPHS     raw duration of time lost, entered in a unit from [Units]
//	Mortality  mortality count attributed to the domain
//
// # Formulas
//
//	TLIPHS_years = TLIPHS × years-per-unit            (unknown unit → 1.0)
//	DSTLYA       = TLIPHS_years + Mortality × (LE − MeanAge)
//	DSAV         = DSTLYA × 100 / (MeanAge × Population)   (0 when the denominator is 0)
//	NLHI         = mean(DSAV) over the record's domains    (0 for no values)
//
// DSTLYA is not floored: when life expectancy is at or below the mean age the
// mortality term is zero or negative and the result propagates as-is. Nothing
// is rounded here; rounding belongs to presentation.
//
// # Stored shape
//
// Records are persisted as JSON objects keyed region → date (yyyy-MM-dd) →
// record with the fields MeanAge, Population, AvgLifeExpectancy, domains,
// DSAV and NLHI. Older files use NLCHI in place of NLHI and may omit the
// top-level DSAV mapping. [DecodeRecord] normalizes both shapes into a
// [RegionRecord] and never fails; misshapen fields read as zero.
//
// Domain order is significant for presentation: within a record it follows
// document (insertion) order, and across dates [BuildSeries] orders domains
// by first appearance in ascending date order.
package domain
