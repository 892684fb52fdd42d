// Package engine serves the region store to the API, CLI and intake
// pipeline. It serializes access to the store, persists every change,
// publishes record events and caches built series.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/nlhi-service/internal/domain"
	"github.com/couchcryptid/nlhi-service/internal/observability"
	"github.com/couchcryptid/nlhi-service/internal/storage"
)

// Publisher announces store changes to downstream consumers.
type Publisher interface {
	LoadBatch(ctx context.Context, events []domain.RecordEvent) error
}

// Result is the outcome of a stored calculation.
type Result struct {
	Region   string              `json:"region"`
	Date     string              `json:"date"`
	Record   domain.RegionRecord `json:"record"`
	Warnings []string            `json:"warnings,omitempty"`
}

// Event returns the record event describing r.
func (r Result) Event() domain.RecordEvent {
	return domain.NewUpsertEvent(r.Region, r.Date, r.Record, r.Warnings)
}

// Engine owns the in-memory region store.
type Engine struct {
	repo      storage.Repository
	publisher Publisher
	logger    *slog.Logger
	metrics   *observability.Metrics
	cache     *seriesCache

	mu     sync.Mutex
	store  *domain.RegionStore
	loaded atomic.Bool
}

// New creates an Engine. publisher may be nil to disable record events.
func New(repo storage.Repository, publisher Publisher, logger *slog.Logger, metrics *observability.Metrics, cacheSize int) *Engine {
	return &Engine{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		metrics:   metrics,
		cache:     newSeriesCache(cacheSize),
		store:     domain.NewRegionStore(),
	}
}

// Open loads persisted state. The engine reports ready once it succeeds.
func (e *Engine) Open(ctx context.Context) error {
	store, err := e.repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("load store: %w", err)
	}

	e.mu.Lock()
	e.store = store
	e.updateGauges()
	e.mu.Unlock()

	e.loaded.Store(true)
	e.logger.Info("store loaded", "regions", len(store.Regions()), "records", store.RecordCount())
	return nil
}

// CheckReadiness returns nil once the store has been loaded.
func (e *Engine) CheckReadiness(_ context.Context) error {
	if !e.loaded.Load() {
		return errors.New("store has not been loaded yet")
	}
	return nil
}

// Apply validates and stores a submission without publishing an event. A
// validation failure leaves the store untouched; a persistence failure
// restores the previous record.
func (e *Engine) Apply(ctx context.Context, sub domain.Submission) (Result, error) {
	start := time.Now()
	sub = sub.Normalize()

	e.mu.Lock()
	defer e.mu.Unlock()

	prev, hadPrev := e.store.Record(sub.Region, sub.Date)
	hadRegion := e.store.HasRegion(sub.Region)

	rec, warnings, err := e.store.Upsert(sub.Region, sub.Date, sub.Inputs())
	if err != nil {
		e.observeValidation(err, sub)
		return Result{}, err
	}

	change := storage.Change{Kind: storage.ChangeRecord, Region: sub.Region, Date: sub.Date}
	if err := e.repo.Save(ctx, e.store, change); err != nil {
		switch {
		case hadPrev:
			e.store.Put(sub.Region, sub.Date, prev)
		case hadRegion:
			e.store.Remove(sub.Region, sub.Date)
		default:
			e.store.DeleteRegion(sub.Region)
		}
		e.metrics.PersistErrors.Inc()
		return Result{}, fmt.Errorf("persist record: %w", err)
	}

	e.cache.invalidate(sub.Region)
	e.updateGauges()
	e.metrics.Calculations.Inc()
	e.metrics.CalculationDuration.Observe(time.Since(start).Seconds())

	for _, w := range warnings {
		e.logger.Warn("calculation note", "region", sub.Region, "date", sub.Date, "note", w)
	}
	e.logger.Info("record stored", "region", sub.Region, "date", sub.Date,
		"domains", len(rec.Domains), "nlhi", rec.NLHI)

	return Result{Region: sub.Region, Date: sub.Date, Record: rec, Warnings: warnings}, nil
}

// Submit applies a submission and publishes its record event.
func (e *Engine) Submit(ctx context.Context, sub domain.Submission) (Result, error) {
	res, err := e.Apply(ctx, sub)
	if err != nil {
		return Result{}, err
	}
	e.publish(ctx, res.Event())
	return res, nil
}

func (e *Engine) observeValidation(err error, sub domain.Submission) {
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		return
	}
	e.metrics.ValidationFailures.WithLabelValues(ve.Field).Inc()
	e.logger.Warn("submission rejected", "region", sub.Region, "date", sub.Date, "error", err)
}

// RegisterRegion adds a region with no records. created is false when it
// already existed.
func (e *Engine) RegisterRegion(ctx context.Context, name string) (string, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	region, created, err := e.store.RegisterRegion(name)
	if err != nil || !created {
		return region, created, err
	}
	if err := e.repo.Save(ctx, e.store, storage.Change{Kind: storage.ChangeRegion, Region: region}); err != nil {
		e.store.DeleteRegion(region)
		e.metrics.PersistErrors.Inc()
		return "", false, fmt.Errorf("persist region: %w", err)
	}
	e.updateGauges()
	e.logger.Info("region registered", "region", region)
	return region, true, nil
}

// DeleteRegion removes a region and all its records. It returns
// domain.ErrRegionNotFound when the region does not exist.
func (e *Engine) DeleteRegion(ctx context.Context, name string) error {
	region := strings.TrimSpace(name)

	e.mu.Lock()
	if !e.store.HasRegion(region) {
		e.mu.Unlock()
		return fmt.Errorf("delete %q: %w", region, domain.ErrRegionNotFound)
	}
	records := e.store.Records(region)
	e.store.DeleteRegion(region)

	if err := e.repo.Save(ctx, e.store, storage.Change{Kind: storage.ChangeDeleteRegion, Region: region}); err != nil {
		_, _, _ = e.store.RegisterRegion(region)
		for date, rec := range records {
			e.store.Put(region, date, rec)
		}
		e.mu.Unlock()
		e.metrics.PersistErrors.Inc()
		return fmt.Errorf("persist region deletion: %w", err)
	}
	e.cache.invalidate(region)
	e.updateGauges()
	e.mu.Unlock()

	e.logger.Info("region deleted", "region", region, "records", len(records))
	e.publish(ctx, domain.NewDeleteEvent(region))
	return nil
}

// Regions returns all region names, sorted.
func (e *Engine) Regions() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Regions()
}

// Dates returns a region's record dates in ascending order.
func (e *Engine) Dates(region string) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.store.HasRegion(region) {
		return nil, fmt.Errorf("dates for %q: %w", region, domain.ErrRegionNotFound)
	}
	return e.store.RegionDates(region), nil
}

// Record returns the record stored for (region, date).
func (e *Engine) Record(region, date string) (domain.RegionRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.store.HasRegion(region) {
		return domain.RegionRecord{}, fmt.Errorf("record for %q: %w", region, domain.ErrRegionNotFound)
	}
	rec, ok := e.store.Record(region, date)
	if !ok {
		return domain.RegionRecord{}, fmt.Errorf("record %s/%s: %w", region, date, domain.ErrRecordNotFound)
	}
	return rec, nil
}

// Series returns the region's NLHI time series and DSAV matrix.
func (e *Engine) Series(region string) (domain.Series, error) {
	if s, ok := e.cache.get(region); ok {
		e.metrics.SeriesCache.WithLabelValues("hit").Inc()
		return s, nil
	}
	e.metrics.SeriesCache.WithLabelValues("miss").Inc()

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.store.HasRegion(region) {
		return domain.Series{}, fmt.Errorf("series for %q: %w", region, domain.ErrRegionNotFound)
	}
	s := domain.BuildSeries(e.store.Records(region))
	s.Region = region
	e.cache.put(region, s)
	return s, nil
}

// Dashboard returns a series for every region that has at least one record
// with at least one domain, in region order.
func (e *Engine) Dashboard() []domain.Series {
	var out []domain.Series
	for _, region := range e.Regions() {
		s, err := e.Series(region)
		if err != nil || s.Empty() || len(s.Domains) == 0 {
			continue
		}
		out = append(out, s)
	}
	return out
}

// publish sends events best-effort: failures are logged and counted but do
// not undo the stored change.
func (e *Engine) publish(ctx context.Context, events ...domain.RecordEvent) {
	if e.publisher == nil || len(events) == 0 {
		return
	}
	if err := e.publisher.LoadBatch(ctx, events); err != nil {
		e.metrics.PublishErrors.Inc()
		e.logger.Error("publish record events failed", "error", err, "events", len(events))
		return
	}
	e.metrics.EventsPublished.Add(float64(len(events)))
}

// updateGauges must be called with mu held.
func (e *Engine) updateGauges() {
	e.metrics.RecordsStored.Set(float64(e.store.RecordCount()))
	e.metrics.RegionsRegistered.Set(float64(len(e.store.Regions())))
}
