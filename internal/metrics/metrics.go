// Package metrics exposes Prometheus collectors for the pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Ingest outcomes.
const (
	OutcomeOK           = "ok"
	OutcomeInvalid      = "invalid"
	OutcomeAppendFailed = "append_failed"
	OutcomePartial      = "partial_write"
)

// Metrics holds every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	ingestTotal       *prometheus.CounterVec
	ingestDuration    prometheus.Histogram
	repairRuns        *prometheus.CounterVec
	repairDuration    prometheus.Histogram
	repairAggregates  prometheus.Gauge
	repairSkipped     prometheus.Counter
	consumerMessages  *prometheus.CounterVec
	exportsTotal      *prometheus.CounterVec
}

// New creates collectors on a private registry, plus Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vitalog_http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vitalog_http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		ingestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vitalog_ingest_total",
			Help: "Ingested events by kind and outcome.",
		}, []string{"kind", "outcome"}),
		ingestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vitalog_ingest_duration_seconds",
			Help:    "Histogram of ingest latency including both writes.",
			Buckets: prometheus.DefBuckets,
		}),
		repairRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vitalog_repair_runs_total",
			Help: "Day repairs by result.",
		}, []string{"result"}),
		repairDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vitalog_repair_duration_seconds",
			Help:    "Histogram of day repair durations.",
			Buckets: prometheus.DefBuckets,
		}),
		repairAggregates: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vitalog_repair_last_aggregates",
			Help: "Aggregates written by the most recent successful repair.",
		}),
		repairSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vitalog_repair_skipped_events_total",
			Help: "Stored events skipped during repair because they no longer validate.",
		}),
		consumerMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vitalog_consumer_messages_total",
			Help: "Kafka messages handled by result.",
		}, []string{"result"}),
		exportsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vitalog_snapshot_exports_total",
			Help: "Daily snapshot exports by result.",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpDuration,
		m.ingestTotal,
		m.ingestDuration,
		m.repairRuns,
		m.repairDuration,
		m.repairAggregates,
		m.repairSkipped,
		m.consumerMessages,
		m.exportsTotal,
	)
	return m
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// WrapHandler records request count and latency under route.
func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		if m != nil {
			m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
			m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		}
	})
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Ingest(kind, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ingestTotal.WithLabelValues(kind, outcome).Inc()
	if outcome == OutcomeOK {
		m.ingestDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) Repair(success bool, aggregates, skipped int, d time.Duration) {
	if m == nil {
		return
	}
	m.repairDuration.Observe(d.Seconds())
	if !success {
		m.repairRuns.WithLabelValues("error").Inc()
		return
	}
	m.repairRuns.WithLabelValues("ok").Inc()
	m.repairAggregates.Set(float64(aggregates))
	m.repairSkipped.Add(float64(skipped))
}

func (m *Metrics) ConsumerMessage(result string) {
	if m == nil {
		return
	}
	m.consumerMessages.WithLabelValues(result).Inc()
}

func (m *Metrics) Export(success bool) {
	if m == nil {
		return
	}
	if success {
		m.exportsTotal.WithLabelValues("ok").Inc()
		return
	}
	m.exportsTotal.WithLabelValues("error").Inc()
}
