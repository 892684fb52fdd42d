// Package service wires configuration, storage, the engine and the adapters
// into the running NLHI service.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"golang.org/x/sync/errgroup"

	httpadapter "github.com/couchcryptid/nlhi-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/nlhi-service/internal/adapter/kafka"
	"github.com/couchcryptid/nlhi-service/internal/config"
	"github.com/couchcryptid/nlhi-service/internal/engine"
	"github.com/couchcryptid/nlhi-service/internal/observability"
	"github.com/couchcryptid/nlhi-service/internal/pipeline"
	"github.com/couchcryptid/nlhi-service/internal/storage"
	"github.com/couchcryptid/nlhi-service/internal/storage/jsonfile"
	"github.com/couchcryptid/nlhi-service/internal/storage/sqlite"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// OpenRepository returns the configured store backend. The closer releases
// backend resources and is safe to call once.
func OpenRepository(cfg *config.Config, logger *slog.Logger) (storage.Repository, io.Closer, error) {
	switch cfg.StoreBackend {
	case config.BackendSQLite:
		s, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, s, nil
	default:
		return jsonfile.New(cfg.DataFile, cfg.LegacyDataFile, cfg.RegionsFile, logger), nopCloser{}, nil
	}
}

// Run starts the HTTP API and, when enabled, the Kafka intake pipeline. It
// blocks until ctx is cancelled and then shuts everything down within
// cfg.ShutdownTimeout.
func Run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	metrics := observability.NewMetrics()

	repo, closer, err := OpenRepository(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closer.Close(); err != nil {
			logger.Error("store close error", "error", err)
		}
	}()

	var writer *kafkaadapter.Writer
	var publisher engine.Publisher
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger)
		publisher = writer
		logger.Info("kafka intake enabled", "brokers", cfg.KafkaBrokers,
			"source_topic", cfg.KafkaSourceTopic, "sink_topic", cfg.KafkaSinkTopic)
	} else {
		logger.Info("kafka intake disabled")
	}

	eng := engine.New(repo, publisher, logger, metrics, cfg.SeriesCacheSize)
	if err := eng.Open(ctx); err != nil {
		return err
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, eng, eng, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	var reader *kafkaadapter.Reader
	if cfg.KafkaEnabled {
		reader = kafkaadapter.NewReader(cfg, logger)
		p := pipeline.New(reader, pipeline.NewTransformer(eng, logger), writer, logger, metrics, cfg.BatchSize)
		g.Go(func() error {
			return p.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
		return nil
	})

	err = g.Wait()

	if reader != nil {
		if cerr := reader.Close(); cerr != nil {
			logger.Error("kafka reader close error", "error", cerr)
		}
	}
	if writer != nil {
		if cerr := writer.Close(); cerr != nil {
			logger.Error("kafka writer close error", "error", cerr)
		}
	}

	logger.Info("shutdown complete")
	return err
}
