package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Record event types published to the sink topic.
const (
	EventRecordUpserted = "record.upserted"
	EventRegionDeleted  = "region.deleted"
)

// Submission is one calculation request for a region on a date. It is the
// shared input shape for the CLI, the HTTP API, submission files and the
// intake topic. An empty Date means today.
type Submission struct {
	Region         string        `json:"region" yaml:"region"`
	Date           string        `json:"date,omitempty" yaml:"date,omitempty"`
	MeanAge        float64       `json:"mean_age" yaml:"mean_age"`
	Population     float64       `json:"population" yaml:"population"`
	LifeExpectancy float64       `json:"life_expectancy" yaml:"life_expectancy"`
	Domains        []DomainInput `json:"domains" yaml:"domains"`
}

// Inputs returns the calculation inputs carried by the submission.
func (s Submission) Inputs() RecordInputs {
	return RecordInputs{
		MeanAge:        s.MeanAge,
		Population:     s.Population,
		LifeExpectancy: s.LifeExpectancy,
		Domains:        s.Domains,
	}
}

// Normalize trims the region and fills a missing date with today.
func (s Submission) Normalize() Submission {
	s.Region = strings.TrimSpace(s.Region)
	s.Date = strings.TrimSpace(s.Date)
	if s.Date == "" {
		s.Date = Today()
	}
	return s
}

// RawEvent represents an unprocessed message carrying a JSON submission.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// ParseSubmission deserializes a RawEvent's value into a Submission.
func ParseSubmission(raw RawEvent) (Submission, error) {
	var sub Submission
	if err := json.Unmarshal(raw.Value, &sub); err != nil {
		return Submission{}, fmt.Errorf("parse submission: %w", err)
	}
	return sub.Normalize(), nil
}

// RecordEvent announces a change to the region store.
type RecordEvent struct {
	ID           string        `json:"id"`
	Type         string        `json:"type"`
	Region       string        `json:"region"`
	Date         string        `json:"date,omitempty"`
	Record       *RegionRecord `json:"record,omitempty"`
	Warnings     []string      `json:"warnings,omitempty"`
	CalculatedAt time.Time     `json:"calculated_at"`
}

// NewUpsertEvent describes a stored record.
func NewUpsertEvent(region, date string, rec RegionRecord, warnings []string) RecordEvent {
	rec = rec.clone()
	return RecordEvent{
		ID:           uuid.NewString(),
		Type:         EventRecordUpserted,
		Region:       region,
		Date:         date,
		Record:       &rec,
		Warnings:     warnings,
		CalculatedAt: clock.Now().UTC(),
	}
}

// NewDeleteEvent describes a removed region.
func NewDeleteEvent(region string) RecordEvent {
	return RecordEvent{
		ID:           uuid.NewString(),
		Type:         EventRegionDeleted,
		Region:       region,
		CalculatedAt: clock.Now().UTC(),
	}
}

// Key returns the partitioning key for the event: all events of a region
// land on one partition so consumers see them in order.
func (e RecordEvent) Key() []byte {
	return []byte(e.Region)
}
