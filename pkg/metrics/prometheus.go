// Package metrics provides Prometheus metrics for the laptimer service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector exported by laptimer.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	lapBuckets       []float64
	enabled          bool
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Capture
	framesCaptured *prometheus.CounterVec
	framesDropped  *prometheus.CounterVec
	captureErrors  *prometheus.CounterVec

	// Detection
	detectionLatency     prometheus.Histogram
	detectionsAccepted   prometheus.Counter
	detectionsSuppressed prometheus.Counter
	motionPixels         prometheus.Gauge
	conditionsMet        prometheus.Gauge

	// Crossing queue
	queueSize        prometheus.Gauge
	queueCapacity    prometheus.Gauge
	queueEnqueued    prometheus.Counter
	queueDequeued    prometheus.Counter
	queueEnqueueErrs prometheus.Counter

	// Race
	lapsRecorded  prometheus.Counter
	lapDuration   prometheus.Histogram
	bestLap       prometheus.Gauge
	raceState     prometheus.Gauge
	racesFinished prometheus.Counter

	// Storage
	storeLatency *prometheus.HistogramVec
	storeErrors  *prometheus.CounterVec
	storedRaces  prometheus.Gauge

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorsByComponent *prometheus.CounterVec
	errorsByEndpoint  *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// customRegistry keeps the default Go collectors out of /healthz.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "laptimer",
		subsystem:        "rig",
		histogramBuckets: []float64{0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		lapBuckets:       []float64{2, 5, 10, 15, 20, 30, 45, 60, 90, 120, 300},
		enabled:          true,
		customLabels:     make(map[string]string),
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
		Name:        m.metricPrefix + name,
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.metricPrefix + name,
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.metricPrefix + name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.framesCaptured = auto.NewCounterVec(m.counterOpts("frames_captured_total", "Frames read from a camera source"), []string{"camera"})
	m.framesDropped = auto.NewCounterVec(m.counterOpts("frames_dropped_total", "Frames overwritten in the slot before the detector saw them"), []string{"camera"})
	m.captureErrors = auto.NewCounterVec(m.counterOpts("capture_errors_total", "Failed frame reads"), []string{"camera"})

	m.detectionLatency = auto.NewHistogram(m.histogramOpts("detection_latency_milliseconds", "Time spent evaluating one frame", m.histogramBuckets))
	m.detectionsAccepted = auto.NewCounter(m.counterOpts("detections_accepted_total", "Detections that passed the cooldown gate"))
	m.detectionsSuppressed = auto.NewCounter(m.counterOpts("detections_suppressed_total", "Detections dropped by the cooldown gate"))
	m.motionPixels = auto.NewGauge(m.gaugeOpts("motion_pixels", "Foreground pixels in the last evaluated frame"))
	m.conditionsMet = auto.NewGauge(m.gaugeOpts("conditions_met", "Vote conditions met by the last evaluated frame"))

	m.queueSize = auto.NewGauge(m.gaugeOpts("crossing_queue_size", "Crossings waiting for the lap worker"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("crossing_queue_capacity", "Capacity of the crossing queue"))
	m.queueEnqueued = auto.NewCounter(m.counterOpts("crossing_enqueued_total", "Crossings enqueued"))
	m.queueDequeued = auto.NewCounter(m.counterOpts("crossing_dequeued_total", "Crossings dequeued"))
	m.queueEnqueueErrs = auto.NewCounter(m.counterOpts("crossing_enqueue_errors_total", "Crossings rejected by a full or closed queue"))

	m.lapsRecorded = auto.NewCounter(m.counterOpts("laps_recorded_total", "Laps recorded"))
	m.lapDuration = auto.NewHistogram(m.histogramOpts("lap_duration_seconds", "Lap durations", m.lapBuckets))
	m.bestLap = auto.NewGauge(m.gaugeOpts("best_lap_seconds", "Best lap of the current race"))
	m.raceState = auto.NewGauge(m.gaugeOpts("race_state", "Race state: 0 idle, 1 running, 2 finished"))
	m.racesFinished = auto.NewCounter(m.counterOpts("races_finished_total", "Races that produced a result"))

	m.storeLatency = auto.NewHistogramVec(m.histogramOpts("store_latency_milliseconds", "Result store operation latency", m.histogramBuckets), []string{"store", "op"})
	m.storeErrors = auto.NewCounterVec(m.counterOpts("store_errors_total", "Result store failures"), []string{"store", "op"})
	m.storedRaces = auto.NewGauge(m.gaugeOpts("stored_races", "Race results held by the store"))

	m.httpRequests = auto.NewCounterVec(m.counterOpts("http_requests_total", "HTTP requests by endpoint and method"), []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration", m.histogramBuckets), []string{"endpoint", "method", "status_code"})

	m.errorsByComponent = auto.NewCounterVec(m.counterOpts("errors_by_component_total", "Errors by component and type"), []string{"component", "error_type"})
	m.errorsByEndpoint = auto.NewCounterVec(m.counterOpts("errors_by_endpoint_total", "HTTP errors by endpoint"), []string{"endpoint", "method", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes", "Heap bytes allocated"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count", "Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(m.histogramOpts("system_gc_pause_milliseconds", "Average GC pause", []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100}))
}

// Enabled reports whether recording is active.
func (m *Manager) Enabled() bool { return m.enabled }

func on() bool { return globalManager.enabled }

// RecordFrameCaptured counts a frame read from camera.
func RecordFrameCaptured(camera string) {
	if on() {
		globalManager.framesCaptured.WithLabelValues(camera).Inc()
	}
}

// RecordFramesDropped counts frames the detector never evaluated.
func RecordFramesDropped(camera string, n int) {
	if on() && n > 0 {
		globalManager.framesDropped.WithLabelValues(camera).Add(float64(n))
	}
}

// RecordCaptureError counts a failed frame read.
func RecordCaptureError(camera string) {
	if on() {
		globalManager.captureErrors.WithLabelValues(camera).Inc()
	}
}

// RecordDetection records the evaluation of one frame.
func RecordDetection(latencyMs float64, motionPixels, conditionsMet int) {
	if !on() {
		return
	}
	globalManager.detectionLatency.Observe(latencyMs)
	globalManager.motionPixels.Set(float64(motionPixels))
	globalManager.conditionsMet.Set(float64(conditionsMet))
}

// RecordDetectionAccepted counts a detection that became a crossing.
func RecordDetectionAccepted() {
	if on() {
		globalManager.detectionsAccepted.Inc()
	}
}

// RecordDetectionSuppressed counts a detection dropped by the cooldown.
func RecordDetectionSuppressed() {
	if on() {
		globalManager.detectionsSuppressed.Inc()
	}
}

// UpdateQueueSize sets the crossing queue length.
func UpdateQueueSize(size int) {
	if on() {
		globalManager.queueSize.Set(float64(size))
	}
}

// UpdateQueueCapacity sets the crossing queue capacity.
func UpdateQueueCapacity(capacity int) {
	if on() {
		globalManager.queueCapacity.Set(float64(capacity))
	}
}

// RecordQueueEnqueue counts an enqueued crossing.
func RecordQueueEnqueue() {
	if on() {
		globalManager.queueEnqueued.Inc()
	}
}

// RecordQueueDequeue counts a dequeued crossing.
func RecordQueueDequeue() {
	if on() {
		globalManager.queueDequeued.Inc()
	}
}

// RecordQueueEnqueueError counts a rejected crossing.
func RecordQueueEnqueueError() {
	if on() {
		globalManager.queueEnqueueErrs.Inc()
	}
}

// RecordLap records a completed lap.
func RecordLap(seconds float64) {
	if !on() {
		return
	}
	globalManager.lapsRecorded.Inc()
	globalManager.lapDuration.Observe(seconds)
}

// UpdateBestLap sets the best lap of the running race.
func UpdateBestLap(seconds float64) {
	if on() {
		globalManager.bestLap.Set(seconds)
	}
}

// UpdateRaceState sets the race state gauge (0 idle, 1 running, 2 finished).
func UpdateRaceState(state int) {
	if on() {
		globalManager.raceState.Set(float64(state))
	}
}

// RecordRaceFinished counts a produced race result.
func RecordRaceFinished() {
	if on() {
		globalManager.racesFinished.Inc()
	}
}

// RecordStoreLatency records a store operation latency.
func RecordStoreLatency(store, op string, latencyMs float64) {
	if on() {
		globalManager.storeLatency.WithLabelValues(store, op).Observe(latencyMs)
	}
}

// RecordStoreError counts a failed store operation.
func RecordStoreError(store, op string) {
	if on() {
		globalManager.storeErrors.WithLabelValues(store, op).Inc()
	}
}

// UpdateStoredRaces sets the number of stored results.
func UpdateStoredRaces(count int) {
	if on() {
		globalManager.storedRaces.Set(float64(count))
	}
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if on() {
		globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	}
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	if on() {
		globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
	}
}

// RecordErrorByComponent counts an error raised by a component.
func RecordErrorByComponent(component, errorType string) {
	if on() {
		globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
	}
}

// RecordErrorByEndpoint counts an HTTP error response.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	if on() {
		globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
	}
}

// UpdateSystemMemoryUsage sets heap usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	if on() {
		globalManager.systemMemoryUsage.Set(float64(bytes))
	}
}

// UpdateSystemGoroutineCount sets the goroutine count.
func UpdateSystemGoroutineCount(count int) {
	if on() {
		globalManager.systemGoroutineCount.Set(float64(count))
	}
}

// RecordSystemGCPauseTime records the average GC pause in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	if on() {
		globalManager.systemGCPauseTime.Observe(pauseMs)
	}
}

// GetRegistry returns the registry backing the global manager.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
