package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Store backends.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// maxBatchSize bounds BATCH_SIZE.
const maxBatchSize = 1000

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string        `env:"HTTP_ADDR" envDefault:":8080"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"LOG_FORMAT" envDefault:"json"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// Persistence.
	StoreBackend   string `env:"STORE_BACKEND" envDefault:"json"`
	DataFile       string `env:"DATA_FILE" envDefault:"nlhi_data.json"`
	LegacyDataFile string `env:"LEGACY_DATA_FILE" envDefault:"nlchi_data.json"`
	RegionsFile    string `env:"REGIONS_FILE" envDefault:"regions.json"`
	SQLitePath     string `env:"SQLITE_PATH" envDefault:"nlhi.db"`

	SeriesCacheSize int `env:"SERIES_CACHE_SIZE" envDefault:"64"`

	// Kafka intake and record events.
	KafkaEnabled     bool     `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaBrokers     []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	KafkaSourceTopic string   `env:"KAFKA_SOURCE_TOPIC" envDefault:"nlhi-submissions"`
	KafkaSinkTopic   string   `env:"KAFKA_SINK_TOPIC" envDefault:"nlhi-records"`
	KafkaGroupID     string   `env:"KAFKA_GROUP_ID" envDefault:"nlhi-service"`

	BatchSize          int           `env:"BATCH_SIZE" envDefault:"50"`
	BatchFlushInterval time.Duration `env:"BATCH_FLUSH_INTERVAL" envDefault:"500ms"`
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.KafkaBrokers = cleanBrokers(cfg.KafkaBrokers)
	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.ShutdownTimeout <= 0 {
		return errors.New("SHUTDOWN_TIMEOUT must be positive")
	}
	switch c.StoreBackend {
	case BackendJSON:
		if c.DataFile == "" {
			return errors.New("DATA_FILE is required for the json backend")
		}
	case BackendSQLite:
		if c.SQLitePath == "" {
			return errors.New("SQLITE_PATH is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be %q or %q", BackendJSON, BackendSQLite)
	}
	if c.SeriesCacheSize <= 0 {
		return errors.New("SERIES_CACHE_SIZE must be positive")
	}
	if c.BatchSize < 1 || c.BatchSize > maxBatchSize {
		return fmt.Errorf("BATCH_SIZE must be between 1 and %d", maxBatchSize)
	}
	if c.BatchFlushInterval <= 0 {
		return errors.New("BATCH_FLUSH_INTERVAL must be positive")
	}
	if !c.KafkaEnabled {
		return nil
	}
	if len(c.KafkaBrokers) == 0 {
		return errors.New("KAFKA_BROKERS is required")
	}
	if c.KafkaSourceTopic == "" {
		return errors.New("KAFKA_SOURCE_TOPIC is required")
	}
	if c.KafkaSinkTopic == "" {
		return errors.New("KAFKA_SINK_TOPIC is required")
	}
	return nil
}

func cleanBrokers(brokers []string) []string {
	out := brokers[:0]
	for _, b := range brokers {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
