// Package metrics owns the Prometheus registry exposed at /metrics.
// All recording methods are safe on a nil *Metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Ingestion sources.
const (
	SourceHTTP = "http"
	SourceMQTT = "mqtt"
)

// Cache lookup results.
const (
	CacheHit      = "hit"
	CacheMiss     = "miss"
	CacheError    = "error"
	CacheDisabled = "disabled"
)

type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	ingested          *prometheus.CounterVec
	rejected          *prometheus.CounterVec
	cacheLookups      *prometheus.CounterVec
	cbState           *prometheus.GaugeVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total count of HTTP requests processed by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by method and route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		ingested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "weather_readings_ingested_total",
			Help: "Readings stored, by ingestion source.",
		}, []string{"source"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "weather_ingest_rejected_total",
			Help: "Readings rejected by validation, by source and reason.",
		}, []string{"source", "reason"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "weather_cache_lookups_total",
			Help: "Latest-reading cache lookups by result.",
		}, []string{"result"}),
		cbState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cb_state",
			Help: "Circuit breaker state gauge (0 closed, 1 half, 2 open).",
		}, []string{"target"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpDuration,
		m.ingested,
		m.rejected,
		m.cacheLookups,
		m.cbState,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) ReadingIngested(source string) {
	if m == nil {
		return
	}
	m.ingested.WithLabelValues(source).Inc()
}

func (m *Metrics) ReadingRejected(source, reason string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(source, reason).Inc()
}

func (m *Metrics) CacheLookup(result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) BreakerState(target string, state int) {
	if m == nil {
		return
	}
	m.cbState.WithLabelValues(target).Set(float64(state))
}
