// Package pipeline drives ingestion: it fetches Cabrillo logs and RBN
// archives through injected collaborators, parses or normalizes them, stores
// the result and optionally fans it out to a publisher.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	sharedretry "github.com/couchcryptid/storm-data-shared/retry"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rogercaminal/hamcontestlog/internal/domain"
	"github.com/rogercaminal/hamcontestlog/internal/observability"
	"golang.org/x/sync/errgroup"
)

// maxBackoff caps the delay between fetch attempts.
const maxBackoff = 30 * time.Second

// LogSource opens a Cabrillo log by path or URL.
type LogSource interface {
	Open(ctx context.Context, location string) (io.ReadCloser, error)
}

// ContestCatalog lists the public logs of one contest edition.
type ContestCatalog interface {
	ListLogs(ctx context.Context, year int, mode string) ([]domain.LogRef, error)
}

// SpotArchive fetches the raw RBN spots of one UTC day.
type SpotArchive interface {
	Fetch(ctx context.Context, day time.Time) (domain.RawSpotTable, error)
}

// Store persists parsed logs and normalized spots, skipping existing ids.
type Store interface {
	SaveLog(ctx context.Context, edition string, log domain.ParsedLog) (int, error)
	SaveSpots(ctx context.Context, spots []domain.Spot) (int, error)
}

// Publisher forwards stored records downstream.
type Publisher interface {
	PublishLog(ctx context.Context, edition string, log domain.ParsedLog) error
	PublishSpots(ctx context.Context, spots []domain.Spot) error
}

// Deps wires a Pipeline. Publisher and Resolver may be nil.
type Deps struct {
	Logs      LogSource
	Archive   SpotArchive
	Resolver  domain.ContinentResolver
	Store     Store
	Publisher Publisher

	Clock   clockwork.Clock
	Logger  *slog.Logger
	Metrics *observability.Metrics

	// Concurrency bounds parallel log fetches during a contest run.
	Concurrency int
	// Retries is the number of extra attempts for a failed fetch.
	Retries int
	// Backoff is the delay before the first retry. It doubles per attempt.
	Backoff time.Duration
}

// Pipeline orchestrates fetch, parse, store and publish.
type Pipeline struct {
	logs      LogSource
	archive   SpotArchive
	resolver  domain.ContinentResolver
	store     Store
	publisher Publisher

	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics

	concurrency int
	retries     int
	backoff     time.Duration
}

// New creates a Pipeline from its dependencies.
func New(d Deps) *Pipeline {
	p := &Pipeline{
		logs:        d.Logs,
		archive:     d.Archive,
		resolver:    d.Resolver,
		store:       d.Store,
		publisher:   d.Publisher,
		clock:       d.Clock,
		logger:      d.Logger,
		metrics:     d.Metrics,
		concurrency: max(d.Concurrency, 1),
		retries:     max(d.Retries, 0),
		backoff:     d.Backoff,
	}
	if p.clock == nil {
		p.clock = clockwork.NewRealClock()
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.backoff <= 0 {
		p.backoff = time.Second
	}
	return p
}

// LogResult summarizes one ingested log.
type LogResult struct {
	Location string `json:"location"`
	Station  string `json:"station"`
	Contacts int    `json:"contacts"`
	Stored   int    `json:"stored"`
}

// SkippedLog is a catalog log that could not be ingested.
type SkippedLog struct {
	Callsign string `json:"callsign"`
	URL      string `json:"url"`
	Reason   string `json:"reason"`
}

// ContestResult summarizes a contest run. Logs and Skipped follow catalog
// (or requested call) order.
type ContestResult struct {
	Edition string       `json:"edition"`
	Logs    []LogResult  `json:"logs"`
	Skipped []SkippedLog `json:"skipped"`
}

// SpotDayResult summarizes one ingested RBN day.
type SpotDayResult struct {
	Day    time.Time             `json:"day"`
	Stats  domain.NormalizeStats `json:"stats"`
	Stored int                   `json:"stored"`
}

// storeError marks persistence failures, which abort a contest run.
type storeError struct{ err error }

func (e *storeError) Error() string { return e.err.Error() }
func (e *storeError) Unwrap() error { return e.err }

// IngestLog fetches, parses and stores a single log under edition.
func (p *Pipeline) IngestLog(ctx context.Context, edition, location string) (LogResult, error) {
	logger := p.logger.With("run_id", uuid.NewString(), "edition", edition)
	start := p.clock.Now()
	defer func() {
		p.metrics.IngestDuration.WithLabelValues("log").Observe(p.clock.Since(start).Seconds())
	}()
	return p.ingestLog(ctx, logger, edition, location)
}

func (p *Pipeline) ingestLog(ctx context.Context, logger *slog.Logger, edition, location string) (LogResult, error) {
	res := LogResult{Location: location}

	var data []byte
	err := p.withRetry(ctx, logger, location, func() error {
		rc, err := p.logs.Open(ctx, location)
		if err != nil {
			return err
		}
		defer rc.Close()
		data, err = io.ReadAll(rc)
		return err
	})
	if err != nil {
		p.metrics.LogsIngested.WithLabelValues("fetch_error").Inc()
		return res, fmt.Errorf("fetch log %s: %w", location, err)
	}

	log, err := domain.ParseCabrillo(bytes.NewReader(data))
	if err != nil {
		p.metrics.LogsIngested.WithLabelValues("malformed").Inc()
		return res, fmt.Errorf("parse log %s: %w", location, err)
	}
	res.Station = log.Station()
	if res.Station == "" {
		p.metrics.LogsIngested.WithLabelValues("malformed").Inc()
		return res, fmt.Errorf("parse log %s: %w", location, domain.ErrMissingStation)
	}
	res.Contacts = len(log.Contacts)
	p.metrics.ContactsParsed.Add(float64(res.Contacts))

	stored, err := p.store.SaveLog(ctx, edition, log)
	if err != nil {
		p.metrics.LogsIngested.WithLabelValues("store_error").Inc()
		return res, &storeError{err: fmt.Errorf("save log %s: %w", location, err)}
	}
	res.Stored = stored
	p.metrics.ContactsStored.Add(float64(stored))
	p.metrics.LogsIngested.WithLabelValues("success").Inc()

	if p.publisher != nil {
		if err := p.publisher.PublishLog(ctx, edition, log); err != nil {
			p.metrics.PublishErrors.Inc()
			logger.Warn("publish contacts failed", "station", res.Station, "error", err)
		}
	}

	logger.Info("log ingested",
		"station", res.Station,
		"location", location,
		"contacts", res.Contacts,
		"stored", res.Stored,
	)
	return res, nil
}

// IngestContest ingests the public logs of one contest edition. calls
// restricts the run to named stations; empty means every published log.
// Logs that cannot be fetched or parsed are skipped and reported. A store
// failure aborts the run.
func (p *Pipeline) IngestContest(ctx context.Context, catalog ContestCatalog, year int, mode string, calls []string) (ContestResult, error) {
	edition := domain.Edition(mode, year)
	logger := p.logger.With("run_id", uuid.NewString(), "edition", edition)
	start := p.clock.Now()
	defer func() {
		p.metrics.IngestDuration.WithLabelValues("contest").Observe(p.clock.Since(start).Seconds())
	}()

	result := ContestResult{Edition: edition, Logs: []LogResult{}, Skipped: []SkippedLog{}}

	refs, err := catalog.ListLogs(ctx, year, mode)
	if err != nil {
		return result, fmt.Errorf("list logs: %w", err)
	}
	selected, err := domain.SelectLogs(refs, calls)
	if err != nil {
		return result, err
	}
	logger.Info("contest ingest started", "logs", len(selected), "concurrency", p.concurrency)

	type outcome struct {
		log     LogResult
		skipped *SkippedLog
	}
	outcomes := make([]outcome, len(selected))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, ref := range selected {
		g.Go(func() error {
			res, err := p.ingestLog(gctx, logger, edition, ref.URL)
			if err == nil {
				outcomes[i] = outcome{log: res}
				return nil
			}
			var se *storeError
			if errors.As(err, &se) || gctx.Err() != nil {
				return err
			}
			logger.Warn("skipping log", "station", ref.Callsign, "url", ref.URL, "error", err)
			outcomes[i] = outcome{skipped: &SkippedLog{Callsign: ref.Callsign, URL: ref.URL, Reason: err.Error()}}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}

	contacts := 0
	for _, o := range outcomes {
		if o.skipped != nil {
			result.Skipped = append(result.Skipped, *o.skipped)
			continue
		}
		result.Logs = append(result.Logs, o.log)
		contacts += o.log.Contacts
	}
	logger.Info("contest ingest finished",
		"logs", len(result.Logs),
		"skipped", len(result.Skipped),
		"contacts", contacts,
	)
	return result, nil
}

// IngestSpotDay fetches, normalizes and stores the RBN spots of the UTC day
// containing day.
func (p *Pipeline) IngestSpotDay(ctx context.Context, day time.Time) (SpotDayResult, error) {
	day = truncateDay(day)
	logger := p.logger.With("run_id", uuid.NewString(), "day", day.Format(time.DateOnly))
	start := p.clock.Now()
	defer func() {
		p.metrics.IngestDuration.WithLabelValues("rbn").Observe(p.clock.Since(start).Seconds())
	}()

	res := SpotDayResult{Day: day}

	var table domain.RawSpotTable
	err := p.withRetry(ctx, logger, day.Format(time.DateOnly), func() error {
		var err error
		table, err = p.archive.Fetch(ctx, day)
		return err
	})
	if err != nil {
		p.metrics.SpotDays.WithLabelValues("fetch_error").Inc()
		return res, fmt.Errorf("fetch rbn archive: %w", err)
	}

	spots, stats, err := domain.NormalizeSpots(ctx, table, p.resolver, logger)
	res.Stats = stats
	if err != nil {
		p.metrics.SpotDays.WithLabelValues("schema_error").Inc()
		return res, fmt.Errorf("normalize spots: %w", err)
	}
	p.metrics.SpotsNormalized.Add(float64(stats.Output))
	p.metrics.SpotsDropped.WithLabelValues("null_dx").Add(float64(stats.DroppedNullDX))
	p.metrics.SpotsDropped.WithLabelValues("band").Add(float64(stats.DroppedBand))
	p.metrics.ContinentLookups.WithLabelValues("resolved").Add(float64(stats.ResolvedPrefixes))
	p.metrics.ContinentLookups.WithLabelValues("unresolved").Add(float64(stats.UnresolvedPrefixes))

	stored, err := p.store.SaveSpots(ctx, spots)
	if err != nil {
		p.metrics.SpotDays.WithLabelValues("store_error").Inc()
		return res, fmt.Errorf("save spots: %w", err)
	}
	res.Stored = stored
	p.metrics.SpotsStored.Add(float64(stored))
	p.metrics.SpotDays.WithLabelValues("success").Inc()

	if p.publisher != nil && len(spots) > 0 {
		if err := p.publisher.PublishSpots(ctx, spots); err != nil {
			p.metrics.PublishErrors.Inc()
			logger.Warn("publish spots failed", "error", err)
		}
	}

	logger.Info("rbn day ingested",
		"input", stats.Input,
		"output", stats.Output,
		"stored", stored,
		"dropped_null_dx", stats.DroppedNullDX,
		"dropped_band", stats.DroppedBand,
	)
	return res, nil
}

// RunDaily ingests the previous UTC day's RBN archive every day at hour:00
// UTC until ctx is cancelled. A failed day is logged and the loop goes on.
func (p *Pipeline) RunDaily(ctx context.Context, hour int) error {
	if hour < 0 || hour > 23 {
		return fmt.Errorf("invalid schedule hour %d", hour)
	}
	p.metrics.SchedulerUp.Set(1)
	defer p.metrics.SchedulerUp.Set(0)

	for {
		now := p.clock.Now().UTC()
		next := NextRun(now, hour)
		p.logger.Info("next rbn ingest scheduled", "at", next)

		select {
		case <-ctx.Done():
			p.logger.Info("scheduler stopping", "reason", ctx.Err())
			return nil
		case <-p.clock.After(next.Sub(now)):
		}

		day := truncateDay(next).AddDate(0, 0, -1)
		if _, err := p.IngestSpotDay(ctx, day); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.logger.Error("scheduled rbn ingest failed", "day", day.Format(time.DateOnly), "error", err)
		}
	}
}

// NextRun returns the first hour:00 UTC strictly after now.
func NextRun(now time.Time, hour int) time.Time {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// withRetry runs fn until it succeeds, the retry budget is spent, or the
// error is permanent.
func (p *Pipeline) withRetry(ctx context.Context, logger *slog.Logger, target string, fn func() error) error {
	backoff := p.backoff
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil || attempt >= p.retries || errors.Is(err, domain.ErrNotFound) || ctx.Err() != nil {
			return err
		}
		logger.Warn("fetch failed, retrying",
			"target", target,
			"attempt", attempt+1,
			"backoff", backoff,
			"error", err,
		)
		if !sharedretry.SleepWithContext(ctx, backoff) {
			return ctx.Err()
		}
		backoff = sharedretry.NextBackoff(backoff, maxBackoff)
	}
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
