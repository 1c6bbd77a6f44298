package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "climate_insights"

// Metrics holds the Prometheus counters, histograms, and gauges for the service.
type Metrics struct {
	DatasetLoads        *prometheus.CounterVec // labels: outcome={success,error}
	LoadDuration        prometheus.Histogram
	CountriesLoaded     prometheus.Gauge
	ObservationsLoaded  prometheus.Gauge
	UnmatchedBoundaries prometheus.Gauge
	MemoLookups         *prometheus.CounterVec // labels: result={hit,miss}

	// City chart cache.
	CityCache *prometheus.CounterVec // labels: view={air_quality,monthly}, result={hit,miss}

	// Snapshot publishing.
	SnapshotMessages prometheus.Counter
	SnapshotErrors   prometheus.Counter

	HTTPRequests *prometheus.CounterVec // labels: route, status
}

func newMetrics() *Metrics {
	return &Metrics{
		DatasetLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dataset_loads_total",
			Help:      "Dataset load-and-transform runs by outcome.",
		}, []string{"outcome"}),
		LoadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dataset_load_duration_seconds",
			Help:      "Duration of a complete read-aggregate-join cycle.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		CountriesLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "countries_loaded",
			Help:      "Number of country aggregates in the current dataset.",
		}),
		ObservationsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "observations_loaded",
			Help:      "Number of observation rows in the current dataset.",
		}),
		UnmatchedBoundaries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "unmatched_boundaries",
			Help:      "Boundaries with no matching country aggregate.",
		}),
		MemoLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dataset_memo_lookups_total",
			Help:      "Dataset memo lookups by result.",
		}, []string{"result"}),
		CityCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "city_cache_total",
			Help:      "City chart cache lookups by view and result.",
		}, []string{"view", "result"}),
		SnapshotMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_messages_total",
			Help:      "Country aggregates published to the snapshot topic.",
		}),
		SnapshotErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_errors_total",
			Help:      "Failed snapshot publish attempts.",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern and status code.",
		}, []string{"route", "status"}),
	}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()

	prometheus.MustRegister(
		m.DatasetLoads,
		m.LoadDuration,
		m.CountriesLoaded,
		m.ObservationsLoaded,
		m.UnmatchedBoundaries,
		m.MemoLookups,
		m.CityCache,
		m.SnapshotMessages,
		m.SnapshotErrors,
		m.HTTPRequests,
	)

	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}
