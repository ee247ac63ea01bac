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

	assert.Equal(t, "sqlite", cfg.StoreDriver)
	assert.Equal(t, "hamcontestlog.db", cfg.StoreDSN)
	assert.Equal(t, "cty.plist", cfg.CTYPath)
	assert.Equal(t, "https://www.country-files.com/cty/cty.plist", cfg.CTYURL)
	assert.Equal(t, 10000, cfg.CTYCacheSize)
	assert.Equal(t, "https://data.reversebeacon.net/rbn_history", cfg.RBNBaseURL)
	assert.Empty(t, cfg.ContestsFile)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 4, cfg.FetchConcurrency)
	assert.Equal(t, 3, cfg.FetchRetries)
	assert.Equal(t, time.Second, cfg.FetchBackoff)
	assert.False(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{defaultBroker}, cfg.KafkaBrokers)
	assert.Equal(t, "contest-contacts", cfg.KafkaContactsTopic)
	assert.Equal(t, "rbn-spots", cfg.KafkaSpotsTopic)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 2, cfg.ScheduleHour)
	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, 500*time.Millisecond, cfg.BatchFlushInterval)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("STORE_DSN", "postgres://ham@localhost/contests")
	t.Setenv("CTY_PATH", "/var/lib/ham/cty.plist")
	t.Setenv("CTY_CACHE_SIZE", "500")
	t.Setenv("CONTESTS_FILE", "contests.yaml")
	t.Setenv("HTTP_TIMEOUT", "5s")
	t.Setenv("FETCH_CONCURRENCY", "8")
	t.Setenv("FETCH_RETRIES", "0")
	t.Setenv("FETCH_BACKOFF", "250ms")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("KAFKA_CONTACTS_TOPIC", "qsos")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("RBN_SCHEDULE_HOUR", "0")
	t.Setenv("BATCH_SIZE", "100")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.StoreDriver)
	assert.Equal(t, "postgres://ham@localhost/contests", cfg.StoreDSN)
	assert.Equal(t, "/var/lib/ham/cty.plist", cfg.CTYPath)
	assert.Equal(t, 500, cfg.CTYCacheSize)
	assert.Equal(t, "contests.yaml", cfg.ContestsFile)
	assert.Equal(t, 5*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 8, cfg.FetchConcurrency)
	assert.Equal(t, 0, cfg.FetchRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.FetchBackoff)
	assert.True(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "qsos", cfg.KafkaContactsTopic)
	assert.Equal(t, "rbn-spots", cfg.KafkaSpotsTopic)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 0, cfg.ScheduleHour)
	assert.Equal(t, 100, cfg.BatchSize)
}

func TestLoad_InvalidShutdownTimeout(t *testing.T) {
	t.Setenv("SHUTDOWN_TIMEOUT", "not-a-duration")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHUTDOWN_TIMEOUT")
}

func TestLoad_InvalidBatchSize(t *testing.T) {
	t.Setenv("BATCH_SIZE", "0")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BATCH_SIZE")
}

func TestLoad_InvalidDurations(t *testing.T) {
	for _, key := range []string{"HTTP_TIMEOUT", "FETCH_BACKOFF"} {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, "-1s")
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), key)
		})
	}
}

func TestLoad_IntegerBounds(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"FETCH_CONCURRENCY", "0"},
		{"FETCH_RETRIES", "11"},
		{"CTY_CACHE_SIZE", "lots"},
		{"RBN_SCHEDULE_HOUR", "24"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestLoad_KafkaBrokersImplyEnabled(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "kafka:9092")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.KafkaEnabled)
}

func TestLoad_KafkaExplicitlyDisabled(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "kafka:9092")
	t.Setenv("KAFKA_ENABLED", "false")
	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.KafkaEnabled)
}

func TestLoad_KafkaEnabledWithDefaultBroker(t *testing.T) {
	t.Setenv("KAFKA_ENABLED", "true")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{defaultBroker}, cfg.KafkaBrokers)
}
