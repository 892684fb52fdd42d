package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// DomainInput is one burden domain as entered for a calculation.
type DomainInput struct {
	Name      string  `json:"name" yaml:"name"`
	TLIPHS    float64 `json:"tliphs" yaml:"tliphs"`
	Unit      string  `json:"unit" yaml:"unit"`
	Mortality float64 `json:"mortality" yaml:"mortality"`
}

// DomainResult holds the inputs and computed scores for one domain. Name is
// carried as the key of the stored domains mapping, not inside the value.
type DomainResult struct {
	Name        string  `json:"-"`
	TLIPHS      float64 `json:"TLIPHS"`
	TLIPHSUnit  string  `json:"TLIPHS_unit"`
	Mortality   float64 `json:"Mortality"`
	TLIPHSYears float64 `json:"TLIPHS_years"`
	DSTLYA      float64 `json:"DSTLYA"`
	DSAV        float64 `json:"DSAV"`
}

// RecordInputs are the values required to compute a RegionRecord.
type RecordInputs struct {
	MeanAge        float64
	Population     float64
	LifeExpectancy float64
	Domains        []DomainInput
}

// RegionRecord is the computed result for one region on one date. Domains
// keep insertion order.
type RegionRecord struct {
	MeanAge           float64
	Population        float64
	AvgLifeExpectancy float64
	Domains           []DomainResult
	NLHI              float64
}

// DSAV returns the per-domain DSAV values keyed by domain name.
func (r RegionRecord) DSAV() map[string]float64 {
	out := make(map[string]float64, len(r.Domains))
	for _, d := range r.Domains {
		out[d.Name] = d.DSAV
	}
	return out
}

// DomainNames returns the record's domain names in order.
func (r RegionRecord) DomainNames() []string {
	names := make([]string, len(r.Domains))
	for i, d := range r.Domains {
		names[i] = d.Name
	}
	return names
}

// Domain looks up a domain result by name.
func (r RegionRecord) Domain(name string) (DomainResult, bool) {
	for _, d := range r.Domains {
		if d.Name == name {
			return d, true
		}
	}
	return DomainResult{}, false
}

func (r RegionRecord) clone() RegionRecord {
	r.Domains = append([]DomainResult(nil), r.Domains...)
	return r
}

// Calculate validates inputs and computes a RegionRecord. Domain inputs with
// a blank name are skipped; duplicate names keep the position of their first
// occurrence and the values of their last. Warnings are non-blocking notes
// for the caller to surface.
func Calculate(in RecordInputs) (RegionRecord, []string, error) {
	if err := validateInputs(in); err != nil {
		return RegionRecord{}, nil, err
	}

	var warnings []string
	if in.LifeExpectancy <= in.MeanAge {
		warnings = append(warnings,
			"average life expectancy is less than or equal to mean age; the mortality term is zero or negative")
	}

	index := make(map[string]int, len(in.Domains))
	domains := make([]DomainResult, 0, len(in.Domains))
	for _, d := range in.Domains {
		d.Name = strings.TrimSpace(d.Name)
		if d.Name == "" {
			continue
		}
		res := ScoreDomain(d, in.LifeExpectancy, in.MeanAge, in.Population)
		if i, ok := index[d.Name]; ok {
			domains[i] = res
			continue
		}
		index[d.Name] = len(domains)
		domains = append(domains, res)
	}

	dsav := make([]float64, len(domains))
	for i, d := range domains {
		dsav[i] = d.DSAV
	}

	rec := RegionRecord{
		MeanAge:           in.MeanAge,
		Population:        in.Population,
		AvgLifeExpectancy: in.LifeExpectancy,
		Domains:           domains,
		NLHI:              ComputeNLHI(dsav),
	}
	if err := checkDerived(rec); err != nil {
		return RegionRecord{}, nil, err
	}
	return rec, warnings, nil
}

func validateInputs(in RecordInputs) error {
	if !positiveReal(in.MeanAge) {
		return invalid("mean_age", "must be a positive number")
	}
	if !positiveReal(in.Population) {
		return invalid("population", "must be a positive number")
	}
	if !positiveReal(in.LifeExpectancy) {
		return invalid("life_expectancy", "must be a positive number")
	}
	named := false
	for _, d := range in.Domains {
		name := strings.TrimSpace(d.Name)
		if name == "" {
			continue
		}
		named = true
		if !finite(d.TLIPHS) {
			return invalid("domains", fmt.Sprintf("domain %q: tliphs must be a finite number", name))
		}
		if !finite(d.Mortality) {
			return invalid("domains", fmt.Sprintf("domain %q: mortality must be a finite number", name))
		}
	}
	if !named {
		return &ValidationError{Field: "domains", Reason: ErrNoDomains.Error(), Err: ErrNoDomains}
	}
	return nil
}

// checkDerived rejects records whose scores overflowed; they cannot be stored.
func checkDerived(rec RegionRecord) error {
	for _, d := range rec.Domains {
		if !finite(d.TLIPHSYears) || !finite(d.DSTLYA) || !finite(d.DSAV) {
			return invalid("domains", fmt.Sprintf("domain %q: derived values are out of range", d.Name))
		}
	}
	if !finite(rec.NLHI) {
		return invalid("domains", "NLHI is out of range")
	}
	return nil
}

func positiveReal(v float64) bool {
	return v > 0 && !math.IsInf(v, 1)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// MarshalJSON writes the stored record shape. Domains and the denormalized
// DSAV mapping are emitted in domain order.
func (r RegionRecord) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if err := writeField(&buf, "MeanAge", r.MeanAge, false); err != nil {
		return nil, err
	}
	if err := writeField(&buf, "Population", r.Population, true); err != nil {
		return nil, err
	}
	if err := writeField(&buf, "AvgLifeExpectancy", r.AvgLifeExpectancy, true); err != nil {
		return nil, err
	}

	buf.WriteString(`,"domains":{`)
	for i, d := range r.Domains {
		if err := writeField(&buf, d.Name, d, i > 0); err != nil {
			return nil, err
		}
	}
	buf.WriteString(`},"DSAV":{`)
	for i, d := range r.Domains {
		if err := writeField(&buf, d.Name, d.DSAV, i > 0); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')

	if err := writeField(&buf, "NLHI", r.NLHI, true); err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeField(buf *bytes.Buffer, key string, value any, comma bool) error {
	k, err := json.Marshal(key)
	if err != nil {
		return err
	}
	v, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if comma {
		buf.WriteByte(',')
	}
	buf.Write(k)
	buf.WriteByte(':')
	buf.Write(v)
	return nil
}

// errInvalidRecordJSON is returned by UnmarshalJSON for syntactically broken input.
var errInvalidRecordJSON = errors.New("invalid record json")

// UnmarshalJSON accepts either stored shape. Syntax errors are reported;
// everything else is normalized by DecodeRecord.
func (r *RegionRecord) UnmarshalJSON(data []byte) error {
	if !json.Valid(data) {
		return errInvalidRecordJSON
	}
	*r = DecodeRecord(data)
	return nil
}
