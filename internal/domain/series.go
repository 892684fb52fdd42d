package domain

import (
	"encoding/json"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Series is a region's records laid out for charting: NLHI per date and a
// dense date × domain matrix of DSAV values.
type Series struct {
	Region  string      `json:"region,omitempty"`
	Dates   []string    `json:"dates"`
	NLHI    []float64   `json:"nlhi"`
	Domains []string    `json:"domains"`
	DSAV    [][]float64 `json:"dsav"`
}

// Empty reports whether the series has no dates.
func (s Series) Empty() bool { return len(s.Dates) == 0 }

// Clone returns a deep copy of s that shares no slices with it.
func (s Series) Clone() Series {
	out := Series{
		Region:  s.Region,
		Dates:   slices.Clone(s.Dates),
		NLHI:    slices.Clone(s.NLHI),
		Domains: slices.Clone(s.Domains),
		DSAV:    slices.Clone(s.DSAV),
	}
	for i, row := range out.DSAV {
		out.DSAV[i] = slices.Clone(row)
	}
	return out
}

// namedValue is one entry of an ordered name → number mapping.
type namedValue struct {
	name  string
	value float64
}

// ExtractNLHI returns the record's NLHI, falling back to the legacy NLCHI
// key, else 0.
func ExtractNLHI(raw []byte) float64 {
	rec := gjson.ParseBytes(raw)
	if !rec.IsObject() {
		return 0.0
	}
	if v := rec.Get("NLHI"); v.Exists() {
		return floatOrZero(v)
	}
	if v := rec.Get("NLCHI"); v.Exists() {
		return floatOrZero(v)
	}
	return 0.0
}

// ExtractDSAVMap returns the record's per-domain DSAV values. The top-level
// DSAV mapping wins when it is an object; otherwise values are read from
// domains[*].DSAV. Anything else yields an empty map.
func ExtractDSAVMap(raw []byte) map[string]float64 {
	entries := extractDSAV(gjson.ParseBytes(raw))
	out := make(map[string]float64, len(entries))
	for _, e := range entries {
		out[e.name] = e.value
	}
	return out
}

func extractDSAV(rec gjson.Result) []namedValue {
	if !rec.IsObject() {
		return nil
	}
	if dsav := rec.Get("DSAV"); dsav.IsObject() {
		return orderedEntries(dsav, func(v gjson.Result) float64 { return floatOrZero(v) })
	}
	if domains := rec.Get("domains"); domains.IsObject() {
		return orderedEntries(domains, func(v gjson.Result) float64 { return floatOrZero(v.Get("DSAV")) })
	}
	return nil
}

// orderedEntries walks an object in document order. A repeated key keeps its
// first position and its last value, like a decoded JSON object would.
func orderedEntries(obj gjson.Result, value func(gjson.Result) float64) []namedValue {
	var out []namedValue
	seen := make(map[string]int)
	obj.ForEach(func(key, v gjson.Result) bool {
		name := key.String()
		if i, ok := seen[name]; ok {
			out[i].value = value(v)
			return true
		}
		seen[name] = len(out)
		out = append(out, namedValue{name: name, value: value(v)})
		return true
	})
	return out
}

// DecodeRecord normalizes a stored record of either shape into a
// RegionRecord. It never fails: missing or misshapen fields read as zero and
// unparsable input yields an empty record.
//
// The DSAV values and domain order follow ExtractDSAVMap; detail fields are
// merged from the domains mapping by name. Detail entries the DSAV mapping
// does not name are kept after the mapped ones with their own DSAV, so a
// decode and re-encode loses nothing. NLHI follows ExtractNLHI and is not
// recomputed.
func DecodeRecord(raw []byte) RegionRecord {
	rec := gjson.ParseBytes(raw)
	if !rec.IsObject() {
		return RegionRecord{}
	}

	details := rec.Get("domains")
	entries := extractDSAV(rec)
	seen := make(map[string]bool, len(entries))
	domains := make([]DomainResult, 0, len(entries))
	for _, e := range entries {
		d := decodeDomain(details.Get(gjson.Escape(e.name)))
		d.Name = e.name
		d.DSAV = e.value
		domains = append(domains, d)
		seen[e.name] = true
	}
	if details.IsObject() {
		for _, e := range orderedEntries(details, func(v gjson.Result) float64 { return floatOrZero(v.Get("DSAV")) }) {
			if seen[e.name] {
				continue
			}
			d := decodeDomain(details.Get(gjson.Escape(e.name)))
			d.Name = e.name
			d.DSAV = e.value
			domains = append(domains, d)
		}
	}

	return RegionRecord{
		MeanAge:           floatOrZero(rec.Get("MeanAge")),
		Population:        floatOrZero(rec.Get("Population")),
		AvgLifeExpectancy: floatOrZero(rec.Get("AvgLifeExpectancy")),
		Domains:           domains,
		NLHI:              ExtractNLHI(raw),
	}
}

func decodeDomain(v gjson.Result) DomainResult {
	if !v.IsObject() {
		return DomainResult{}
	}
	return DomainResult{
		TLIPHS:      floatOrZero(v.Get("TLIPHS")),
		TLIPHSUnit:  v.Get("TLIPHS_unit").String(),
		Mortality:   floatOrZero(v.Get("Mortality")),
		TLIPHSYears: floatOrZero(v.Get("TLIPHS_years")),
		DSTLYA:      floatOrZero(v.Get("DSTLYA")),
	}
}

// floatOrZero reads a JSON number or a numeric string, returning 0 for
// anything else.
func floatOrZero(v gjson.Result) float64 {
	switch v.Type {
	case gjson.Number:
		return v.Num
	case gjson.String:
		return parseFloatOrZero(v.Str)
	default:
		return 0
	}
}

// parseFloatOrZero parses a string as float64, returning 0 on failure.
func parseFloatOrZero(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

// BuildSeries lays out a region's records by ascending date. Domains are
// ordered by first appearance across dates; a domain missing on a date reads
// 0 in the matrix.
func BuildSeries(records map[string]RegionRecord) Series {
	dates := make([]string, 0, len(records))
	for date := range records {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	s := Series{
		Dates:   dates,
		NLHI:    make([]float64, len(dates)),
		Domains: []string{},
		DSAV:    make([][]float64, len(dates)),
	}

	column := make(map[string]int)
	for i, date := range dates {
		rec := records[date]
		s.NLHI[i] = rec.NLHI
		for _, d := range rec.Domains {
			if _, ok := column[d.Name]; !ok {
				column[d.Name] = len(s.Domains)
				s.Domains = append(s.Domains, d.Name)
			}
		}
	}

	for i, date := range dates {
		row := make([]float64, len(s.Domains))
		for _, d := range records[date].Domains {
			row[column[d.Name]] = d.DSAV
		}
		s.DSAV[i] = row
	}
	return s
}

// BuildSeriesRaw decodes stored records of either shape and lays them out
// with BuildSeries.
func BuildSeriesRaw(records map[string]json.RawMessage) Series {
	decoded := make(map[string]RegionRecord, len(records))
	for date, raw := range records {
		decoded[date] = DecodeRecord(raw)
	}
	return BuildSeries(decoded)
}
