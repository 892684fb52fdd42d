package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const defaultBroker = "localhost:9092"

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, BackendJSON, cfg.StoreBackend)
	assert.Equal(t, "nlhi_data.json", cfg.DataFile)
	assert.Equal(t, "nlchi_data.json", cfg.LegacyDataFile)
	assert.Equal(t, "regions.json", cfg.RegionsFile)
	assert.Equal(t, "nlhi.db", cfg.SQLitePath)
	assert.Equal(t, 64, cfg.SeriesCacheSize)
	assert.False(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{defaultBroker}, cfg.KafkaBrokers)
	assert.Equal(t, "nlhi-submissions", cfg.KafkaSourceTopic)
	assert.Equal(t, "nlhi-records", cfg.KafkaSinkTopic)
	assert.Equal(t, "nlhi-service", cfg.KafkaGroupID)
	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, 500*time.Millisecond, cfg.BatchFlushInterval)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("STORE_BACKEND", "SQLite")
	t.Setenv("SQLITE_PATH", "/var/lib/nlhi/nlhi.db")
	t.Setenv("SERIES_CACHE_SIZE", "8")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "broker1:9092, broker2:9092,")
	t.Setenv("KAFKA_SOURCE_TOPIC", "custom-source")
	t.Setenv("KAFKA_SINK_TOPIC", "custom-sink")
	t.Setenv("KAFKA_GROUP_ID", "custom-group")
	t.Setenv("BATCH_SIZE", "100")
	t.Setenv("BATCH_FLUSH_INTERVAL", "1s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, BackendSQLite, cfg.StoreBackend)
	assert.Equal(t, "/var/lib/nlhi/nlhi.db", cfg.SQLitePath)
	assert.Equal(t, 8, cfg.SeriesCacheSize)
	assert.True(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "custom-source", cfg.KafkaSourceTopic)
	assert.Equal(t, "custom-sink", cfg.KafkaSinkTopic)
	assert.Equal(t, "custom-group", cfg.KafkaGroupID)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, time.Second, cfg.BatchFlushInterval)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		mention string
	}{
		{"unparsable shutdown timeout", map[string]string{"SHUTDOWN_TIMEOUT": "not-a-duration"}, ""},
		{"negative shutdown timeout", map[string]string{"SHUTDOWN_TIMEOUT": "-1s"}, "SHUTDOWN_TIMEOUT"},
		{"unknown backend", map[string]string{"STORE_BACKEND": "postgres"}, "STORE_BACKEND"},
		{"zero cache size", map[string]string{"SERIES_CACHE_SIZE": "0"}, "SERIES_CACHE_SIZE"},
		{"zero batch size", map[string]string{"BATCH_SIZE": "0"}, "BATCH_SIZE"},
		{"batch size too large", map[string]string{"BATCH_SIZE": "9999"}, "BATCH_SIZE"},
		{"bad flush interval", map[string]string{"BATCH_FLUSH_INTERVAL": "soon"}, ""},
		{"negative flush interval", map[string]string{"BATCH_FLUSH_INTERVAL": "-5ms"}, "BATCH_FLUSH_INTERVAL"},
		{"kafka without brokers", map[string]string{"KAFKA_ENABLED": "true", "KAFKA_BROKERS": " , "}, "KAFKA_BROKERS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			if tt.mention != "" {
				assert.Contains(t, err.Error(), tt.mention)
			}
		})
	}
}

func TestLoad_KafkaSettingsIgnoredWhenDisabled(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", " , ")
	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.KafkaEnabled)
}
