package service

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 汇总核心操作的观测点
type Metrics interface {
	ToggleRecorded(kind TrackableKind, state bool)
	ReconcileFinished(kind TrackableKind, report ReconcileReport)
	CacheHit()
	CacheMiss()
	ObserveRequest(route string, status int, duration time.Duration)
}

// PrometheusMetrics 将观测点注册到指定 Registerer
type PrometheusMetrics struct {
	toggles          *prometheus.CounterVec
	reconcileGroups  *prometheus.CounterVec
	reconcileDeleted *prometheus.CounterVec
	reconcileFailed  *prometheus.CounterVec
	cacheHits        prometheus.Counter
	cacheMisses      prometheus.Counter
	requests         *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
}

// NewPrometheusMetrics 创建并注册全部指标
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	factory := promauto.With(reg)
	return &PrometheusMetrics{
		toggles: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ritualog_toggles_total",
			Help: "Completion toggles by trackable kind and resulting state",
		}, []string{"kind", "state"}),
		reconcileGroups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ritualog_reconcile_groups_total",
			Help: "Duplicate groups found by reconciliation",
		}, []string{"kind"}),
		reconcileDeleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ritualog_reconcile_deleted_total",
			Help: "Duplicate records removed by reconciliation",
		}, []string{"kind"}),
		reconcileFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ritualog_reconcile_failed_groups_total",
			Help: "Duplicate groups whose cleanup failed",
		}, []string{"kind"}),
		cacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "ritualog_stats_cache_hits_total",
			Help: "Stats cache hits",
		}),
		cacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "ritualog_stats_cache_misses_total",
			Help: "Stats cache misses",
		}),
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ritualog_http_requests_total",
			Help: "HTTP requests by route and status class",
		}, []string{"route", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ritualog_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

func (m *PrometheusMetrics) ToggleRecorded(kind TrackableKind, state bool) {
	m.toggles.WithLabelValues(string(kind), strconv.FormatBool(state)).Inc()
}

func (m *PrometheusMetrics) ReconcileFinished(kind TrackableKind, report ReconcileReport) {
	m.reconcileGroups.WithLabelValues(string(kind)).Add(float64(report.GroupsFound))
	m.reconcileDeleted.WithLabelValues(string(kind)).Add(float64(report.RecordsDeleted))
	m.reconcileFailed.WithLabelValues(string(kind)).Add(float64(len(report.Failures)))
}

func (m *PrometheusMetrics) CacheHit()  { m.cacheHits.Inc() }
func (m *PrometheusMetrics) CacheMiss() { m.cacheMisses.Inc() }

func (m *PrometheusMetrics) ObserveRequest(route string, status int, duration time.Duration) {
	m.requests.WithLabelValues(route, statusClass(status)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

func statusClass(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

// NoopMetrics 在关闭指标时使用
type NoopMetrics struct{}

func (NoopMetrics) ToggleRecorded(TrackableKind, bool)               {}
func (NoopMetrics) ReconcileFinished(TrackableKind, ReconcileReport) {}
func (NoopMetrics) CacheHit()                                        {}
func (NoopMetrics) CacheMiss()                                       {}
func (NoopMetrics) ObserveRequest(string, int, time.Duration)        {}
