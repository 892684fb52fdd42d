package domain

import (
	"sort"
	"strings"
	"time"
)

// DateLayout is the record date format. Lexicographic order of formatted
// dates equals chronological order.
const DateLayout = "2006-01-02"

// RegionStore maps region → date → RegionRecord. It is not safe for
// concurrent use; callers that share a store serialize access.
type RegionStore struct {
	regions map[string]map[string]RegionRecord
}

// NewRegionStore returns an empty store.
func NewRegionStore() *RegionStore {
	return &RegionStore{regions: make(map[string]map[string]RegionRecord)}
}

// RegisterRegion adds a region with no records. The name is trimmed; created
// is false when the region already existed.
func (s *RegionStore) RegisterRegion(name string) (region string, created bool, err error) {
	region = strings.TrimSpace(name)
	if region == "" {
		return "", false, invalid("region", "name is required")
	}
	if _, ok := s.regions[region]; ok {
		return region, false, nil
	}
	s.regions[region] = make(map[string]RegionRecord)
	return region, true, nil
}

// HasRegion reports whether region exists, with or without records.
func (s *RegionStore) HasRegion(region string) bool {
	_, ok := s.regions[region]
	return ok
}

// Regions returns all region names in sorted order.
func (s *RegionStore) Regions() []string {
	names := make([]string, 0, len(s.regions))
	for name := range s.regions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Upsert computes a record from inputs and stores it for (region, date),
// replacing any prior record wholesale and creating the region if absent.
// Nothing is written when validation fails.
func (s *RegionStore) Upsert(region, date string, in RecordInputs) (RegionRecord, []string, error) {
	region = strings.TrimSpace(region)
	if region == "" {
		return RegionRecord{}, nil, invalid("region", "name is required")
	}
	if err := ValidateDate(date); err != nil {
		return RegionRecord{}, nil, err
	}
	rec, warnings, err := Calculate(in)
	if err != nil {
		return RegionRecord{}, nil, err
	}
	s.Put(region, date, rec)
	return rec.clone(), warnings, nil
}

// Put stores an already-computed record. Loaders use it to restore
// persisted state.
func (s *RegionStore) Put(region, date string, rec RegionRecord) {
	dates, ok := s.regions[region]
	if !ok {
		dates = make(map[string]RegionRecord)
		s.regions[region] = dates
	}
	dates[date] = rec.clone()
}

// Record returns the record stored for (region, date).
func (s *RegionStore) Record(region, date string) (RegionRecord, bool) {
	rec, ok := s.regions[region][date]
	if !ok {
		return RegionRecord{}, false
	}
	return rec.clone(), true
}

// Remove deletes a single record, returning whether it existed. The region
// itself is kept.
func (s *RegionStore) Remove(region, date string) bool {
	dates, ok := s.regions[region]
	if !ok {
		return false
	}
	if _, ok := dates[date]; !ok {
		return false
	}
	delete(dates, date)
	return true
}

// Records returns a copy of a region's date → record mapping. It is nil
// when the region does not exist.
func (s *RegionStore) Records(region string) map[string]RegionRecord {
	dates, ok := s.regions[region]
	if !ok {
		return nil
	}
	out := make(map[string]RegionRecord, len(dates))
	for date, rec := range dates {
		out[date] = rec.clone()
	}
	return out
}

// RegionDates returns the region's record dates in ascending order.
func (s *RegionStore) RegionDates(region string) []string {
	dates := make([]string, 0, len(s.regions[region]))
	for date := range s.regions[region] {
		dates = append(dates, date)
	}
	sort.Strings(dates)
	return dates
}

// DeleteRegion removes a region and all its records. It is idempotent and
// reports whether the region existed.
func (s *RegionStore) DeleteRegion(region string) bool {
	if _, ok := s.regions[region]; !ok {
		return false
	}
	delete(s.regions, region)
	return true
}

// RecordCount returns the number of records across all regions.
func (s *RegionStore) RecordCount() int {
	n := 0
	for _, dates := range s.regions {
		n += len(dates)
	}
	return n
}

// Snapshot returns a deep copy of the whole store keyed region → date.
func (s *RegionStore) Snapshot() map[string]map[string]RegionRecord {
	out := make(map[string]map[string]RegionRecord, len(s.regions))
	for region := range s.regions {
		out[region] = s.Records(region)
	}
	return out
}

// ValidateDate checks that date is a calendar date formatted yyyy-MM-dd.
func ValidateDate(date string) error {
	if _, err := time.Parse(DateLayout, date); err != nil {
		return &ValidationError{Field: "date", Reason: ErrInvalidDate.Error(), Err: ErrInvalidDate}
	}
	return nil
}
