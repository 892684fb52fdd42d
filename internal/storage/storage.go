// Package storage defines how the region store is persisted. Backends load
// the whole store once at startup and are told about each change after it
// has been applied in memory.
package storage

import (
	"context"

	"github.com/couchcryptid/nlhi-service/internal/domain"
)

// ChangeKind identifies what a Change touched.
type ChangeKind int

const (
	// ChangeRegion registers a region without records.
	ChangeRegion ChangeKind = iota + 1
	// ChangeRecord stores the record for Region/Date.
	ChangeRecord
	// ChangeDeleteRegion removes Region and all its records.
	ChangeDeleteRegion
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeRegion:
		return "region"
	case ChangeRecord:
		return "record"
	case ChangeDeleteRegion:
		return "delete_region"
	default:
		return "unknown"
	}
}

// Change describes one mutation already applied to the in-memory store.
type Change struct {
	Kind   ChangeKind
	Region string
	Date   string
}

// Repository loads and persists a RegionStore.
type Repository interface {
	Load(ctx context.Context) (*domain.RegionStore, error)
	// Save persists change. store reflects the state after the change.
	Save(ctx context.Context, store *domain.RegionStore, change Change) error
}
