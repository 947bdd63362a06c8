package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the cache counters. A nil *Metrics records nothing.
type Metrics struct {
	Lookups           *prometheus.CounterVec
	StorageErrors     *prometheus.CounterVec
	SweepRemoved      prometheus.Counter
	SweepDuration     prometheus.Histogram
	Fetches           *prometheus.CounterVec
	FetchDuration     prometheus.Histogram
	WritebackFailures prometheus.Counter
}

// New registers the cache collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Lookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wikicache_lookups_total",
				Help: "Total number of cache lookups",
			},
			[]string{"result"}, // result: hit, miss, stale
		),
		StorageErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wikicache_storage_errors_total",
				Help: "Total number of store operations that failed",
			},
			[]string{"op"}, // op: get, set, delete, sweep
		),
		SweepRemoved: f.NewCounter(
			prometheus.CounterOpts{
				Name: "wikicache_sweep_removed_total",
				Help: "Total number of expired records removed by sweeps",
			},
		),
		SweepDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "wikicache_sweep_duration_seconds",
				Help:    "Duration of expiry sweeps in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		Fetches: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wikicache_fetches_total",
				Help: "Total number of remote fetches performed on cache miss",
			},
			[]string{"result"}, // result: ok, error
		),
		FetchDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "wikicache_fetch_duration_seconds",
				Help:    "Duration of remote fetches in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
		),
		WritebackFailures: f.NewCounter(
			prometheus.CounterOpts{
				Name: "wikicache_writeback_failures_total",
				Help: "Total number of fetched values that could not be cached",
			},
		),
	}
}

func (m *Metrics) Lookup(result string) {
	if m != nil {
		m.Lookups.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) StorageError(op string) {
	if m != nil {
		m.StorageErrors.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) Swept(n int, seconds float64) {
	if m != nil {
		m.SweepRemoved.Add(float64(n))
		m.SweepDuration.Observe(seconds)
	}
}

func (m *Metrics) Fetch(result string, seconds float64) {
	if m != nil {
		m.Fetches.WithLabelValues(result).Inc()
		m.FetchDuration.Observe(seconds)
	}
}

func (m *Metrics) WritebackFailure() {
	if m != nil {
		m.WritebackFailures.Inc()
	}
}
