// Package metrics provides Prometheus metrics for the FrameIt progression service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Ingestion
	eventsAccepted  prometheus.Counter
	eventsDuplicate prometheus.Counter
	eventsProcessed *prometheus.CounterVec
	eventsFailed    *prometheus.CounterVec

	// Progression
	xpAwarded           prometheus.Counter
	levelUps            prometheus.Counter
	achievementsGranted prometheus.Counter
	totalUsers          prometheus.Gauge

	// Votes
	votesCast     *prometheus.CounterVec
	tallyRepairs  prometheus.Counter
	tallySweeps   prometheus.Counter
	tallyIssues   prometheus.Counter
	processingLat prometheus.Histogram

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueued      prometheus.Counter
	queueDequeued      prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Workers
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// Repository
	repositoryLatency *prometheus.HistogramVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	errorsByComponent *prometheus.CounterVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "frameit",
		subsystem:        "progression",
		histogramBuckets: prometheus.DefBuckets,
		constLabels:      map[string]string{},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: m.histogramBuckets,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: m.histogramBuckets,
	}, labels)
}

func (m *Manager) initializeMetrics() {
	m.eventsAccepted = m.counter("events_accepted_total", "XP events accepted for processing")
	m.eventsDuplicate = m.counter("events_duplicate_total", "XP events rejected as duplicates")
	m.eventsProcessed = m.counterVec("events_processed_total", "XP events applied by workers", "reason")
	m.eventsFailed = m.counterVec("events_failed_total", "XP events that could not be applied", "reason")

	m.xpAwarded = m.counter("xp_awarded_total", "Total XP granted to users")
	m.levelUps = m.counter("level_ups_total", "Number of level increases")
	m.achievementsGranted = m.counter("achievements_granted_total", "Number of achievements granted")
	m.totalUsers = m.gauge("total_users", "Number of users with a progression record")

	m.votesCast = m.counterVec("votes_cast_total", "Votes applied by transition", "transition")
	m.tallyRepairs = m.counter("tally_repairs_total", "Submissions whose vote counters were repaired")
	m.tallySweeps = m.counter("tally_sweeps_total", "Completed vote tally repair sweeps")
	m.tallyIssues = m.counter("tally_issues_total", "Counter mismatches found by tally validation")
	m.processingLat = m.histogram("processing_latency_milliseconds", "Time to apply one XP event")

	m.queueSize = m.gauge("queue_size", "Current size of the event queue")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum event queue capacity")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue size divided by capacity")
	m.queueEnqueued = m.counter("queue_enqueued_total", "Events enqueued")
	m.queueDequeued = m.counter("queue_dequeued_total", "Events dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Enqueue attempts rejected")

	m.workerCount = m.gauge("worker_count", "Configured number of workers")
	m.workerActiveCount = m.gauge("worker_active_count", "Workers currently running")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Worker handling time per event")
	m.workerErrors = m.counter("worker_errors_total", "Worker processing errors")

	m.repositoryLatency = m.histogramVec("repository_latency_milliseconds", "Repository operation latency", "operation")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration", "endpoint", "method", "status_code")

	m.errorsByComponent = m.counterVec("errors_total", "Errors by component and type", "component", "error_type")
}

// RecordEventAccepted increments the accepted events counter.
func RecordEventAccepted() { globalManager.eventsAccepted.Inc() }

// RecordEventDuplicate increments the duplicate events counter.
func RecordEventDuplicate() { globalManager.eventsDuplicate.Inc() }

// RecordEventProcessed counts an applied event by reason.
func RecordEventProcessed(reason string) { globalManager.eventsProcessed.WithLabelValues(reason).Inc() }

// RecordEventFailed counts an event that could not be applied.
func RecordEventFailed(reason string) { globalManager.eventsFailed.WithLabelValues(reason).Inc() }

// RecordXPAwarded adds granted XP.
func RecordXPAwarded(amount int64) {
	if amount > 0 {
		globalManager.xpAwarded.Add(float64(amount))
	}
}

// RecordLevelUp counts level increases.
func RecordLevelUp(levels int) {
	if levels > 0 {
		globalManager.levelUps.Add(float64(levels))
	}
}

// RecordAchievementsGranted counts newly granted achievements.
func RecordAchievementsGranted(n int) {
	if n > 0 {
		globalManager.achievementsGranted.Add(float64(n))
	}
}

// UpdateTotalUsers sets the user count.
func UpdateTotalUsers(count int) { globalManager.totalUsers.Set(float64(count)) }

// RecordVoteCast counts a vote by its transition.
func RecordVoteCast(transition string) { globalManager.votesCast.WithLabelValues(transition).Inc() }

// RecordTallyRepair counts one repaired submission and its issues.
func RecordTallyRepair(issues int) {
	globalManager.tallyRepairs.Inc()
	globalManager.tallyIssues.Add(float64(issues))
}

// RecordTallySweep counts a completed repair sweep.
func RecordTallySweep() { globalManager.tallySweeps.Inc() }

// RecordProcessingLatency records event application latency in milliseconds.
func RecordProcessingLatency(latencyMs float64) { globalManager.processingLat.Observe(latencyMs) }

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) { globalManager.queueSize.Set(float64(size)) }

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) { globalManager.queueUtilization.Set(utilization) }

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() { globalManager.queueEnqueued.Inc() }

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() { globalManager.queueDequeued.Inc() }

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() { globalManager.queueEnqueueErrors.Inc() }

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) { globalManager.workerCount.Set(float64(count)) }

// UpdateWorkerActiveCount sets the number of running workers.
func UpdateWorkerActiveCount(count int) { globalManager.workerActiveCount.Set(float64(count)) }

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() { globalManager.workerErrors.Inc() }

// RecordRepositoryLatency records the latency of a repository operation.
func RecordRepositoryLatency(operation string, latencyMs float64) {
	globalManager.repositoryLatency.WithLabelValues(operation).Observe(latencyMs)
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

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
