package pipeline

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/nlhi-service/internal/domain"
	"github.com/couchcryptid/nlhi-service/internal/engine"
)

// Applier stores a submission and returns the calculated result.
type Applier interface {
	Apply(ctx context.Context, sub domain.Submission) (engine.Result, error)
}

// SubmissionTransformer implements Transformer by parsing each raw message
// as a Submission and storing it through an Applier.
type SubmissionTransformer struct {
	applier Applier
	logger  *slog.Logger
}

// NewTransformer creates a SubmissionTransformer.
func NewTransformer(applier Applier, logger *slog.Logger) *SubmissionTransformer {
	return &SubmissionTransformer{
		applier: applier,
		logger:  logger,
	}
}

func (t *SubmissionTransformer) Transform(ctx context.Context, raw domain.RawEvent) (domain.RecordEvent, error) {
	sub, err := domain.ParseSubmission(raw)
	if err != nil {
		return domain.RecordEvent{}, err
	}

	res, err := t.applier.Apply(ctx, sub)
	if err != nil {
		return domain.RecordEvent{}, err
	}
	return res.Event(), nil
}

// NopLoader discards record events. It backs imports that run without a
// sink topic.
type NopLoader struct{}

func (NopLoader) LoadBatch(context.Context, []domain.RecordEvent) error { return nil }
