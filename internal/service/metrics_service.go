package service

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the API:
// request timings plus the auth and task domain counters.
type MetricsService struct {
	registry         *prometheus.Registry
	handler          http.Handler
	requestDuration  *prometheus.HistogramVec
	requestTotal     *prometheus.CounterVec
	authAttempts     *prometheus.CounterVec
	tokenRevocations prometheus.Counter
	revokedTokens    prometheus.GaugeFunc
	tasksByStatus    *prometheus.GaugeVec
}

// NewMetricsService registers the core collectors. blacklistLen feeds the
// revoked_tokens gauge; pass nil to report zero.
func NewMetricsService(blacklistLen func() int) *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	authAttempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_attempts_total",
		Help: "Total number of authentication attempts",
	}, []string{"type", "status"})

	tokenRevocations := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "token_revocations_total",
		Help: "Total number of tokens added to the blacklist",
	})

	if blacklistLen == nil {
		blacklistLen = func() int { return 0 }
	}
	revokedTokens := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "revoked_tokens",
		Help: "Current number of blacklisted token fingerprints",
	}, func() float64 { return float64(blacklistLen()) })

	tasksByStatus := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tasks_by_status",
		Help: "Number of tasks by status",
	}, []string{"status"})

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		requestDuration,
		requestTotal,
		authAttempts,
		tokenRevocations,
		revokedTokens,
		tasksByStatus,
	)

	return &MetricsService{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:  requestDuration,
		requestTotal:     requestTotal,
		authAttempts:     authAttempts,
		tokenRevocations: tokenRevocations,
		revokedTokens:    revokedTokens,
		tasksByStatus:    tasksByStatus,
	}
}

// Handler exposes the Prometheus scrape endpoint.
func (m *MetricsService) Handler() http.Handler {
	return m.handler
}

// ObserveHTTPRequest records one handled request.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	code := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, code).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, code).Inc()
}

// RecordAuthAttempt counts a login/register/token outcome.
func (m *MetricsService) RecordAuthAttempt(attemptType, status string) {
	m.authAttempts.WithLabelValues(attemptType, status).Inc()
}

// RecordRevocation counts a blacklist insertion.
func (m *MetricsService) RecordRevocation() {
	m.tokenRevocations.Inc()
}

// TaskCreated bumps the status gauge for a new task.
func (m *MetricsService) TaskCreated(status string) {
	m.tasksByStatus.WithLabelValues(status).Inc()
}

// TaskDeleted drops the status gauge for a removed task.
func (m *MetricsService) TaskDeleted(status string) {
	m.tasksByStatus.WithLabelValues(status).Dec()
}

// TaskStatusChanged moves a task between status gauges.
func (m *MetricsService) TaskStatusChanged(oldStatus, newStatus string) {
	if oldStatus == newStatus {
		return
	}
	m.tasksByStatus.WithLabelValues(oldStatus).Dec()
	m.tasksByStatus.WithLabelValues(newStatus).Inc()
}
