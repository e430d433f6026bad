// Package metrics provides Prometheus metrics for the Pinnacle gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector exposed by the gateway.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Leads
	leadsIngested     *prometheus.CounterVec
	leadsListRequests *prometheus.CounterVec

	// Cache
	cacheOperations *prometheus.CounterVec
	cacheLatency    *prometheus.HistogramVec
	cacheEvictions  *prometheus.CounterVec

	// Quotes
	quotesCreated       prometheus.Counter
	quoteRevisions      prometheus.Counter
	quoteRenderFailures *prometheus.CounterVec
	quoteRenderLatency  prometheus.Histogram
	quotesTotal         prometheus.Gauge

	activitiesScheduled prometheus.Counter

	// Jobs
	jobsEnqueued  *prometheus.CounterVec
	jobsDropped   *prometheus.CounterVec
	jobsProcessed *prometheus.CounterVec
	jobRetries    *prometheus.CounterVec
	jobLatency    *prometheus.HistogramVec

	// Queue / workers
	queueSize         prometheus.Gauge
	queueCapacity     prometheus.Gauge
	queueUtilization  prometheus.Gauge
	workerActiveCount prometheus.Gauge

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	errorsByComponent *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "pinnacle",
		subsystem:        "gateway",
		histogramBuckets: []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		constLabels:      prometheus.Labels{},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
		Buckets:     buckets,
	}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.leadsIngested = auto.NewCounterVec(
		m.counterOpts("leads_ingested_total", "Lead ingestion outcomes by status (synced, duplicate, invalid)"),
		[]string{"status"},
	)
	m.leadsListRequests = auto.NewCounterVec(
		m.counterOpts("leads_list_requests_total", "Lead list reads by source (cache, recompute)"),
		[]string{"source"},
	)

	m.cacheOperations = auto.NewCounterVec(
		m.counterOpts("cache_operations_total", "Cache operations by op and result (hit, miss, ok, error, disabled)"),
		[]string{"op", "result"},
	)
	m.cacheLatency = auto.NewHistogramVec(
		m.histogramOpts("cache_operation_latency_milliseconds", "Cache operation latency in milliseconds", m.histogramBuckets),
		[]string{"op"},
	)
	m.cacheEvictions = auto.NewCounterVec(
		m.counterOpts("cache_evictions_total", "In-process cache evictions by reason (expired, deleted, capacity)"),
		[]string{"reason"},
	)

	m.quotesCreated = auto.NewCounter(m.counterOpts("quotes_created_total", "Quotes created"))
	m.quoteRevisions = auto.NewCounter(m.counterOpts("quote_revisions_total", "Quote revisions committed"))
	m.quoteRenderFailures = auto.NewCounterVec(
		m.counterOpts("quote_render_failures_total", "Quote renders that failed, by operation"),
		[]string{"operation"},
	)
	m.quoteRenderLatency = auto.NewHistogram(
		m.histogramOpts("quote_render_latency_milliseconds", "Quote artifact render latency in milliseconds", m.histogramBuckets),
	)
	m.quotesTotal = auto.NewGauge(m.gaugeOpts("quotes_total", "Quotes held in memory"))

	m.activitiesScheduled = auto.NewCounter(m.counterOpts("activities_scheduled_total", "Activities scheduled"))

	m.jobsEnqueued = auto.NewCounterVec(
		m.counterOpts("jobs_enqueued_total", "Background jobs handed to a dispatcher"),
		[]string{"job", "dispatcher"},
	)
	m.jobsDropped = auto.NewCounterVec(
		m.counterOpts("jobs_dropped_total", "Background jobs a dispatcher refused, by reason"),
		[]string{"job", "reason"},
	)
	m.jobsProcessed = auto.NewCounterVec(
		m.counterOpts("jobs_processed_total", "Background jobs executed, by outcome (ok, failed)"),
		[]string{"job", "outcome"},
	)
	m.jobRetries = auto.NewCounterVec(
		m.counterOpts("job_retries_total", "Background job retry attempts"),
		[]string{"job"},
	)
	m.jobLatency = auto.NewHistogramVec(
		m.histogramOpts("job_latency_milliseconds", "Background job execution latency in milliseconds", m.histogramBuckets),
		[]string{"job"},
	)

	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size", "Jobs waiting in the in-memory queue"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity", "Capacity of the in-memory queue"))
	m.queueUtilization = auto.NewGauge(m.gaugeOpts("queue_utilization_ratio", "Queue size divided by capacity"))
	m.workerActiveCount = auto.NewGauge(m.gaugeOpts("worker_active_count", "Workers draining the in-memory queue"))

	m.httpRequests = auto.NewCounterVec(
		m.counterOpts("http_requests_total", "HTTP requests by endpoint, method and status code"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRequestDuration = auto.NewHistogramVec(
		m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds", m.histogramBuckets),
		[]string{"endpoint", "method", "status_code"},
	)

	m.errorsByComponent = auto.NewCounterVec(
		m.counterOpts("errors_total", "Errors by component and type"),
		[]string{"component", "type"},
	)

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes", "Heap bytes allocated"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count", "Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(m.histogramOpts(
		"system_gc_pause_time_milliseconds", "Average GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
	))
}

// RecordLeadIngested counts an ingestion outcome.
func RecordLeadIngested(status string) {
	globalManager.leadsIngested.WithLabelValues(status).Inc()
}

// RecordLeadsList counts a lead list read served from source.
func RecordLeadsList(source string) {
	globalManager.leadsListRequests.WithLabelValues(source).Inc()
}

// RecordCacheOperation counts a cache operation and its latency.
func RecordCacheOperation(op, result string, latencyMs float64) {
	globalManager.cacheOperations.WithLabelValues(op, result).Inc()
	globalManager.cacheLatency.WithLabelValues(op).Observe(latencyMs)
}

// RecordCacheEviction counts an entry leaving the in-process cache.
func RecordCacheEviction(reason string) {
	globalManager.cacheEvictions.WithLabelValues(reason).Inc()
}

// RecordQuoteCreated increments the created quotes counter.
func RecordQuoteCreated() {
	globalManager.quotesCreated.Inc()
}

// RecordQuoteRevised increments the committed revisions counter.
func RecordQuoteRevised() {
	globalManager.quoteRevisions.Inc()
}

// RecordQuoteRenderFailure counts a failed render for operation (create, revise).
func RecordQuoteRenderFailure(operation string) {
	globalManager.quoteRenderFailures.WithLabelValues(operation).Inc()
}

// RecordQuoteRenderLatency records render latency in milliseconds.
func RecordQuoteRenderLatency(latencyMs float64) {
	globalManager.quoteRenderLatency.Observe(latencyMs)
}

// UpdateQuotesTotal sets the number of quotes held.
func UpdateQuotesTotal(count int) {
	globalManager.quotesTotal.Set(float64(count))
}

// RecordActivityScheduled increments the scheduled activities counter.
func RecordActivityScheduled() {
	globalManager.activitiesScheduled.Inc()
}

// RecordJobEnqueued counts a job accepted by dispatcher.
func RecordJobEnqueued(job, dispatcher string) {
	globalManager.jobsEnqueued.WithLabelValues(job, dispatcher).Inc()
}

// RecordJobDropped counts a job a dispatcher refused.
func RecordJobDropped(job, reason string) {
	globalManager.jobsDropped.WithLabelValues(job, reason).Inc()
}

// RecordJobProcessed counts a job execution outcome and its latency.
func RecordJobProcessed(job, outcome string, latencyMs float64) {
	globalManager.jobsProcessed.WithLabelValues(job, outcome).Inc()
	globalManager.jobLatency.WithLabelValues(job).Observe(latencyMs)
}

// RecordJobRetry counts a retry attempt.
func RecordJobRetry(job string) {
	globalManager.jobRetries.WithLabelValues(job).Inc()
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// UpdateWorkerActiveCount sets the number of active workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
