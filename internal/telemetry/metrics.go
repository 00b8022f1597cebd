// Package telemetry exposes Prometheus collectors for the data cache.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all collectors and implements fetcher.Observer.
type Metrics struct {
	CacheHits      prometheus.Counter
	CacheMisses    prometheus.Counter
	Refreshes      prometheus.Counter
	StaleHits      prometheus.Counter
	FetchErrors    *prometheus.CounterVec
	FetchDuration  prometheus.Histogram
	LastSuccess    prometheus.Gauge
	RequestsTotal  *prometheus.CounterVec
	RequestLatency *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "datacache",
			Name:      "cache_hits_total",
			Help:      "Calls served from a fresh cache entry.",
		}),

		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "datacache",
			Name:      "cache_misses_total",
			Help:      "Calls that found the entry empty or expired.",
		}),

		Refreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "datacache",
			Name:      "refreshes_total",
			Help:      "Successful upstream fetches.",
		}),

		StaleHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "datacache",
			Name:      "stale_served_total",
			Help:      "Calls answered with stale data after a failed refresh.",
		}),

		FetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "datacache",
			Name:      "fetch_errors_total",
			Help:      "Failed upstream fetches by kind.",
		}, []string{"kind"}),

		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "datacache",
			Name:      "fetch_duration_seconds",
			Help:      "Upstream fetch duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),

		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "datacache",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful fetch.",
		}),

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "datacache",
			Name:      "http_requests_total",
			Help:      "HTTP requests served, by route and status.",
		}, []string{"route", "status"}),

		RequestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "datacache",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	reg.MustRegister(
		m.CacheHits,
		m.CacheMisses,
		m.Refreshes,
		m.StaleHits,
		m.FetchErrors,
		m.FetchDuration,
		m.LastSuccess,
		m.RequestsTotal,
		m.RequestLatency,
	)

	return m
}

func (m *Metrics) CacheHit()    { m.CacheHits.Inc() }
func (m *Metrics) CacheMiss()   { m.CacheMisses.Inc() }
func (m *Metrics) StaleServed() { m.StaleHits.Inc() }

func (m *Metrics) FetchSucceeded(elapsed time.Duration, fetchedAt time.Time) {
	m.Refreshes.Inc()
	m.FetchDuration.Observe(elapsed.Seconds())
	m.LastSuccess.Set(float64(fetchedAt.UnixNano()) / 1e9)
}

func (m *Metrics) FetchFailed(kind string, elapsed time.Duration) {
	m.FetchErrors.WithLabelValues(kind).Inc()
	m.FetchDuration.Observe(elapsed.Seconds())
}
