package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hamcontestlog"

// Metrics holds the Prometheus counters, histograms, and gauges for log and
// spot ingestion.
type Metrics struct {
	// Cabrillo ingestion.
	LogsIngested   *prometheus.CounterVec // labels: outcome={success,malformed,fetch_error,store_error}
	ContactsParsed prometheus.Counter
	ContactsStored prometheus.Counter

	// RBN ingestion.
	SpotsNormalized prometheus.Counter
	SpotsDropped    *prometheus.CounterVec // labels: reason={null_dx,band}
	SpotsStored     prometheus.Counter
	SpotDays        *prometheus.CounterVec // labels: outcome={success,fetch_error,schema_error,store_error}

	// Continent backfill.
	ContinentLookups *prometheus.CounterVec // labels: result={resolved,unresolved}
	ContinentCache   *prometheus.CounterVec // labels: result={hit,miss}

	IngestDuration *prometheus.HistogramVec // labels: kind={log,contest,rbn}
	PublishErrors  prometheus.Counter
	SchedulerUp    prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.LogsIngested,
		m.ContactsParsed,
		m.ContactsStored,
		m.SpotsNormalized,
		m.SpotsDropped,
		m.SpotsStored,
		m.SpotDays,
		m.ContinentLookups,
		m.ContinentCache,
		m.IngestDuration,
		m.PublishErrors,
		m.SchedulerUp,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics so tests can build as
// many as they like.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		LogsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logs_ingested_total",
			Help:      "Cabrillo logs processed, by outcome.",
		}, []string{"outcome"}),
		ContactsParsed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "contacts_parsed_total",
			Help:      "QSO lines parsed from Cabrillo logs.",
		}),
		ContactsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "contacts_stored_total",
			Help:      "Contacts newly inserted into the store.",
		}),
		SpotsNormalized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spots_normalized_total",
			Help:      "RBN spots that survived normalization.",
		}),
		SpotsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spots_dropped_total",
			Help:      "RBN rows discarded during normalization, by reason.",
		}, []string{"reason"}),
		SpotsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spots_stored_total",
			Help:      "Spots newly inserted into the store.",
		}),
		SpotDays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spot_days_total",
			Help:      "RBN archive days processed, by outcome.",
		}, []string{"outcome"}),
		ContinentLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "continent_lookups_total",
			Help:      "Distinct prefixes sent to the continent resolver, by result.",
		}, []string{"result"}),
		ContinentCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "continent_cache_total",
			Help:      "Continent cache lookups by result.",
		}, []string{"result"}),
		IngestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_duration_seconds",
			Help:      "Wall time of one ingestion run.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"kind"}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Failed Kafka publish attempts.",
		}),
		SchedulerUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scheduler_running",
			Help:      "1 while the daily RBN scheduler is active, 0 otherwise.",
		}),
	}
}
