package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	StoreDriver string
	StoreDSN    string

	CTYPath      string
	CTYURL       string
	CTYCacheSize int

	RBNBaseURL   string
	ContestsFile string

	HTTPTimeout      time.Duration
	FetchConcurrency int
	FetchRetries     int
	FetchBackoff     time.Duration

	KafkaEnabled       bool
	KafkaBrokers       []string
	KafkaContactsTopic string
	KafkaSpotsTopic    string

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	ScheduleHour    int

	BatchSize          int
	BatchFlushInterval time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	httpTimeout, err := parsePositiveDuration("HTTP_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	fetchBackoff, err := parsePositiveDuration("FETCH_BACKOFF", "1s")
	if err != nil {
		return nil, err
	}

	concurrency, err := parseInt("FETCH_CONCURRENCY", 4, 1, 64)
	if err != nil {
		return nil, err
	}
	retries, err := parseInt("FETCH_RETRIES", 3, 0, 10)
	if err != nil {
		return nil, err
	}
	cacheSize, err := parseInt("CTY_CACHE_SIZE", 10000, 1, 1_000_000)
	if err != nil {
		return nil, err
	}
	scheduleHour, err := parseInt("RBN_SCHEDULE_HOUR", 2, 0, 23)
	if err != nil {
		return nil, err
	}

	kafkaEnabled := os.Getenv("KAFKA_BROKERS") != ""
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		kafkaEnabled = v == "true"
	}

	cfg := &Config{
		StoreDriver: sharedcfg.EnvOrDefault("STORE_DRIVER", "sqlite"),
		StoreDSN:    sharedcfg.EnvOrDefault("STORE_DSN", "hamcontestlog.db"),

		CTYPath:      sharedcfg.EnvOrDefault("CTY_PATH", "cty.plist"),
		CTYURL:       sharedcfg.EnvOrDefault("CTY_URL", "https://www.country-files.com/cty/cty.plist"),
		CTYCacheSize: cacheSize,

		RBNBaseURL:   sharedcfg.EnvOrDefault("RBN_BASE_URL", "https://data.reversebeacon.net/rbn_history"),
		ContestsFile: os.Getenv("CONTESTS_FILE"),

		HTTPTimeout:      httpTimeout,
		FetchConcurrency: concurrency,
		FetchRetries:     retries,
		FetchBackoff:     fetchBackoff,

		KafkaEnabled:       kafkaEnabled,
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaContactsTopic: sharedcfg.EnvOrDefault("KAFKA_CONTACTS_TOPIC", "contest-contacts"),
		KafkaSpotsTopic:    sharedcfg.EnvOrDefault("KAFKA_SPOTS_TOPIC", "rbn-spots"),

		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
		ScheduleHour:    scheduleHour,

		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,
	}

	if cfg.StoreDSN == "" {
		return nil, errors.New("STORE_DSN is required")
	}
	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is empty")
		}
		if cfg.KafkaContactsTopic == "" || cfg.KafkaSpotsTopic == "" {
			return nil, errors.New("KAFKA_CONTACTS_TOPIC and KAFKA_SPOTS_TOPIC are required when Kafka is enabled")
		}
	}

	return cfg, nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseInt(key string, def, lo, hi int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("invalid %s: must be an integer between %d and %d", key, lo, hi)
	}
	return n, nil
}
