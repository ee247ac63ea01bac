package main

import (
	"context"
	"fmt"
	"log/slog"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/jonboulle/clockwork"
	"github.com/rogercaminal/hamcontestlog/internal/adapter/cty"
	kafkaadapter "github.com/rogercaminal/hamcontestlog/internal/adapter/kafka"
	"github.com/rogercaminal/hamcontestlog/internal/adapter/logsource"
	"github.com/rogercaminal/hamcontestlog/internal/adapter/rbn"
	"github.com/rogercaminal/hamcontestlog/internal/adapter/store"
	"github.com/rogercaminal/hamcontestlog/internal/config"
	"github.com/rogercaminal/hamcontestlog/internal/domain"
	"github.com/rogercaminal/hamcontestlog/internal/observability"
	"github.com/rogercaminal/hamcontestlog/internal/pipeline"
)

// app holds the collaborators shared by every command.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	metrics   *observability.Metrics
	clock     clockwork.Clock
	store     *store.Store
	publisher *kafkaadapter.Publisher
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	st, err := store.Open(ctx, cfg.StoreDriver, cfg.StoreDSN, logger)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		metrics: observability.NewMetrics(),
		clock:   clockwork.NewRealClock(),
		store:   st,
	}
	if cfg.KafkaEnabled {
		a.publisher = kafkaadapter.NewPublisher(cfg.KafkaBrokers, cfg.KafkaContactsTopic, cfg.KafkaSpotsTopic,
			cfg.BatchSize, cfg.BatchFlushInterval, a.clock, logger)
		logger.Info("kafka publishing enabled", "brokers", cfg.KafkaBrokers)
	}
	return a, nil
}

// resolver loads the CTY prefix database, downloading it when missing or
// when refresh is set. Without a database continent backfill is skipped.
func (a *app) resolver(ctx context.Context, refresh bool) domain.ContinentResolver {
	r := cty.NewRefresher(a.cfg.CTYURL, a.cfg.CTYPath, a.cfg.HTTPTimeout, a.logger)
	if refresh {
		if _, err := r.Refresh(ctx); err != nil {
			a.logger.Warn("cty refresh failed, using local copy", "error", err)
		}
	}
	db, err := r.LoadOrFetch(ctx)
	if err != nil {
		a.logger.Warn("continent backfill disabled", "error", err)
		return nil
	}
	a.logger.Info("cty database loaded", "path", a.cfg.CTYPath, "entries", db.Len())
	return cty.NewCachedResolver(db, a.cfg.CTYCacheSize, a.metrics)
}

func (a *app) pipeline(resolver domain.ContinentResolver) *pipeline.Pipeline {
	var pub pipeline.Publisher
	if a.publisher != nil {
		pub = a.publisher
	}
	return pipeline.New(pipeline.Deps{
		Logs: logsource.Router{
			HTTP: logsource.NewHTTP(a.cfg.HTTPTimeout, a.logger),
		},
		Archive:     rbn.NewArchive(a.cfg.RBNBaseURL, a.cfg.HTTPTimeout, a.logger),
		Resolver:    resolver,
		Store:       a.store,
		Publisher:   pub,
		Clock:       a.clock,
		Logger:      a.logger,
		Metrics:     a.metrics,
		Concurrency: a.cfg.FetchConcurrency,
		Retries:     a.cfg.FetchRetries,
		Backoff:     a.cfg.FetchBackoff,
	})
}

func (a *app) Close() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Error("kafka publisher close error", "error", err)
		}
	}
	if err := a.store.Close(); err != nil {
		a.logger.Error("store close error", "error", err)
	}
}
