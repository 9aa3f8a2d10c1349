// Package jobmetrics provides Prometheus-based metrics collection for the
// task pipeline: task throughput and latency, and cache hits, misses and
// writes. Outbound HTTP requests are not counted. Hosts mount the handler
// wherever they expose /metrics.
package jobmetrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"

	"github.com/edgecomet/urlcleaner/internal/cache"
)

// JobMetrics collects task pipeline metrics.
type JobMetrics struct {
	tasksTotal       *prometheus.CounterVec
	taskDuration     *prometheus.HistogramVec
	cacheHitsTotal   *prometheus.CounterVec
	cacheMissesTotal *prometheus.CounterVec
	cacheWritesTotal *prometheus.CounterVec

	logger      *zap.Logger
	httpHandler func(*fasthttp.RequestCtx)
}

// NewJobMetrics creates a collector registered against the default
// registerer.
func NewJobMetrics(namespace string, logger *zap.Logger) *JobMetrics {
	return NewJobMetricsWithRegistry(namespace, prometheus.DefaultRegisterer, logger)
}

// NewJobMetricsWithRegistry creates a collector registered against a custom
// registry, used by tests and hosts that isolate their metric namespaces.
func NewJobMetricsWithRegistry(namespace string, registerer prometheus.Registerer, logger *zap.Logger) *JobMetrics {
	jm := &JobMetrics{logger: logger}

	jm.tasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "job",
			Name:      "tasks_total",
			Help:      "Total number of tasks processed",
		},
		[]string{"status"}, // status: ok, parse_error, source_error, clean_error
	)

	jm.taskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "job",
			Name:      "task_duration_seconds",
			Help:      "Time taken to clean one URL",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		},
		[]string{"status"},
	)

	jm.cacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"subject"},
	)

	jm.cacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"subject"},
	)

	jm.cacheWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "writes_total",
			Help:      "Total number of cache upserts",
		},
		[]string{"subject"},
	)

	registerer.MustRegister(
		jm.tasksTotal,
		jm.taskDuration,
		jm.cacheHitsTotal,
		jm.cacheMissesTotal,
		jm.cacheWritesTotal,
	)

	gatherer, ok := registerer.(prometheus.Gatherer)
	if !ok {
		gatherer = prometheus.DefaultGatherer
	}
	jm.httpHandler = fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	logger.Debug("Job metrics initialized")
	return jm
}

// RecordTask records one completed task with its outcome and duration.
func (jm *JobMetrics) RecordTask(status string, duration time.Duration) {
	if jm == nil {
		return
	}
	jm.tasksTotal.WithLabelValues(status).Inc()
	jm.taskDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordCacheHit records a cache read that found a row.
func (jm *JobMetrics) RecordCacheHit(subject string) {
	if jm == nil {
		return
	}
	jm.cacheHitsTotal.WithLabelValues(subject).Inc()
}

// RecordCacheMiss records a cache read that found nothing.
func (jm *JobMetrics) RecordCacheMiss(subject string) {
	if jm == nil {
		return
	}
	jm.cacheMissesTotal.WithLabelValues(subject).Inc()
}

// RecordCacheWrite records a cache upsert.
func (jm *JobMetrics) RecordCacheWrite(subject string) {
	if jm == nil {
		return
	}
	jm.cacheWritesTotal.WithLabelValues(subject).Inc()
}

// ServeHTTP serves the Prometheus exposition endpoint.
func (jm *JobMetrics) ServeHTTP(ctx *fasthttp.RequestCtx) {
	jm.httpHandler(ctx)
}

// InstrumentedStore wraps a cache.Store and counts hits, misses, and
// writes per subject. A nil metrics collector makes it a pass-through.
type InstrumentedStore struct {
	Inner   cache.Store
	Metrics *JobMetrics
}

// NewInstrumentedStore wraps inner with per-subject hit/miss/write
// counters.
func NewInstrumentedStore(inner cache.Store, metrics *JobMetrics) *InstrumentedStore {
	return &InstrumentedStore{Inner: inner, Metrics: metrics}
}

func (s *InstrumentedStore) Read(ctx context.Context, keys cache.EntryKeys) (*cache.Entry, error) {
	entry, err := s.Inner.Read(ctx, keys)
	if err != nil {
		return nil, err
	}
	if entry != nil {
		s.Metrics.RecordCacheHit(keys.Subject)
	} else {
		s.Metrics.RecordCacheMiss(keys.Subject)
	}
	return entry, nil
}

func (s *InstrumentedStore) Write(ctx context.Context, entry cache.NewEntry) error {
	if err := s.Inner.Write(ctx, entry); err != nil {
		return err
	}
	s.Metrics.RecordCacheWrite(entry.Subject)
	return nil
}
