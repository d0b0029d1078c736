// Package metrics provides Prometheus metrics for the volregime engine.
package metrics

import (
	"math"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultBucketStart  = 1
	defaultBucketFactor = 2
	defaultBucketCount  = 18 // 1ms .. ~2h
)

// Manager manages all Prometheus metrics for the engine.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Segmentation
	segmentationDuration     prometheus.Histogram
	segmentationBreakpoints  prometheus.Gauge
	segmentationInsufficient prometheus.Counter

	// Sampler
	samplerIterations      *prometheus.CounterVec
	samplerChainsCompleted prometheus.Counter
	samplerChainsCancelled prometheus.Counter
	samplerChainDuration   prometheus.Histogram
	samplerAcceptance      *prometheus.GaugeVec
	samplerStepSize        *prometheus.GaugeVec
	samplerDegenerate      *prometheus.CounterVec

	// Chain job queue and worker pool
	queueCapacity      prometheus.Gauge
	queueSize          prometheus.Gauge
	queueEnqueueTotal  prometheus.Counter
	queueEnqueueErrors prometheus.Counter
	workerActiveCount  prometheus.Gauge
	workerJobLatency   prometheus.Histogram
	workerErrors       prometheus.Counter

	// Posterior diagnostics
	posteriorRHat *prometheus.GaugeVec
	posteriorESS  *prometheus.GaugeVec

	// Event correlation
	eventsMatched      prometheus.Counter
	eventsChangePoints prometheus.Gauge

	// Pipeline
	pipelineRuns          *prometheus.CounterVec
	pipelineStageDuration *prometheus.HistogramVec

	errorRateByComponent *prometheus.CounterVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "volregime",
		subsystem:        "engine",
		histogramBuckets: prometheus.ExponentialBuckets(defaultBucketStart, defaultBucketFactor, defaultBucketCount),
		enabled:          true,
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

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	m.segmentationDuration = m.histogram("segmentation_duration_milliseconds", "PELT segmentation duration in milliseconds")
	m.segmentationBreakpoints = m.gauge("segmentation_breakpoints", "Number of breakpoints in the last segmentation")
	m.segmentationInsufficient = m.counter("segmentation_insufficient_total", "Segmentations skipped for lack of data")

	m.samplerIterations = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name: "sampler_iterations_total",
		Help: "Total MCMC iterations by phase (tune or draw)",
	}, []string{"phase"})
	m.samplerChainsCompleted = m.counter("sampler_chains_completed_total", "Chains that ran to completion")
	m.samplerChainsCancelled = m.counter("sampler_chains_cancelled_total", "Chains discarded after cancellation")
	m.samplerChainDuration = m.histogram("sampler_chain_duration_milliseconds", "Wall time of a single chain in milliseconds")
	m.samplerAcceptance = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name: "sampler_acceptance_ratio",
		Help: "Post-tuning acceptance ratio by chain and parameter",
	}, []string{"chain", "parameter"})
	m.samplerStepSize = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name: "sampler_step_size",
		Help: "Frozen proposal scale by chain and parameter",
	}, []string{"chain", "parameter"})
	m.samplerDegenerate = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name: "sampler_degenerate_total",
		Help: "Parameters with zero acceptances during tuning",
	}, []string{"parameter"})

	m.queueCapacity = m.gauge("queue_capacity", "Chain job queue capacity")
	m.queueSize = m.gauge("queue_size", "Pending chain jobs")
	m.queueEnqueueTotal = m.counter("queue_enqueue_total", "Chain jobs enqueued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Chain jobs rejected by the queue")
	m.workerActiveCount = m.gauge("worker_active_count", "Workers currently running a chain")
	m.workerJobLatency = m.histogram("worker_job_latency_milliseconds", "Chain job latency in milliseconds")
	m.workerErrors = m.counter("worker_errors_total", "Chain jobs that returned an error")

	m.posteriorRHat = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name: "posterior_rhat",
		Help: "Potential scale reduction by parameter",
	}, []string{"parameter"})
	m.posteriorESS = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name: "posterior_ess",
		Help: "Effective sample size by parameter",
	}, []string{"parameter"})

	m.eventsMatched = m.counter("events_matched_total", "Events matched to a change point")
	m.eventsChangePoints = m.gauge("events_change_points", "Change points considered by the last correlation")

	m.pipelineRuns = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name: "pipeline_runs_total",
		Help: "Pipeline runs by outcome",
	}, []string{"status"})
	m.pipelineStageDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name:    "pipeline_stage_duration_milliseconds",
		Help:    "Pipeline stage duration in milliseconds",
		Buckets: m.histogramBuckets,
	}, []string{"stage"})

	m.errorRateByComponent = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name: "errors_total",
		Help: "Errors by component and type",
	}, []string{"component", "error_type"})
}

// finite maps NaN and infinities to -1 so gauges stay plottable.
func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return -1
	}
	return v
}

// Segmentation Metrics Functions.

// RecordSegmentation records the duration and size of a segmentation.
func RecordSegmentation(durationMs float64, breakpoints int) {
	if !globalManager.enabled {
		return
	}
	globalManager.segmentationDuration.Observe(durationMs)
	globalManager.segmentationBreakpoints.Set(float64(breakpoints))
}

// RecordSegmentationInsufficient counts a segmentation skipped for lack of data.
func RecordSegmentationInsufficient() {
	if !globalManager.enabled {
		return
	}
	globalManager.segmentationInsufficient.Inc()
}

// Sampler Metrics Functions.

// RecordSamplerIterations adds n iterations for the given phase.
func RecordSamplerIterations(phase string, n int) {
	if !globalManager.enabled {
		return
	}
	globalManager.samplerIterations.WithLabelValues(phase).Add(float64(n))
}

// RecordChainCompleted records a finished chain and its wall time.
func RecordChainCompleted(durationMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.samplerChainsCompleted.Inc()
	globalManager.samplerChainDuration.Observe(durationMs)
}

// RecordChainCancelled counts a chain discarded after cancellation.
func RecordChainCancelled() {
	if !globalManager.enabled {
		return
	}
	globalManager.samplerChainsCancelled.Inc()
}

// UpdateChainParameter sets the acceptance ratio and step size of one parameter.
func UpdateChainParameter(chain, parameter string, acceptance, stepSize float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.samplerAcceptance.WithLabelValues(chain, parameter).Set(finite(acceptance))
	globalManager.samplerStepSize.WithLabelValues(chain, parameter).Set(finite(stepSize))
}

// RecordSamplerDegenerate counts a parameter that never accepted during tuning.
func RecordSamplerDegenerate(parameter string) {
	if !globalManager.enabled {
		return
	}
	globalManager.samplerDegenerate.WithLabelValues(parameter).Inc()
}

// Queue and Worker Metrics Functions.

// UpdateQueueCapacity sets the chain job queue capacity.
func UpdateQueueCapacity(capacity int) {
	if !globalManager.enabled {
		return
	}
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueSize sets the number of pending chain jobs.
func UpdateQueueSize(size int) {
	if !globalManager.enabled {
		return
	}
	globalManager.queueSize.Set(float64(size))
}

// RecordQueueEnqueue counts an accepted chain job.
func RecordQueueEnqueue() {
	if !globalManager.enabled {
		return
	}
	globalManager.queueEnqueueTotal.Inc()
}

// RecordQueueEnqueueError counts a rejected chain job.
func RecordQueueEnqueueError() {
	if !globalManager.enabled {
		return
	}
	globalManager.queueEnqueueErrors.Inc()
}

// AddWorkerActive adjusts the number of busy workers by delta.
func AddWorkerActive(delta int) {
	if !globalManager.enabled {
		return
	}
	globalManager.workerActiveCount.Add(float64(delta))
}

// RecordWorkerJobLatency records how long a chain job took.
func RecordWorkerJobLatency(latencyMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.workerJobLatency.Observe(latencyMs)
}

// RecordWorkerError counts a failed chain job.
func RecordWorkerError() {
	if !globalManager.enabled {
		return
	}
	globalManager.workerErrors.Inc()
}

// Posterior Metrics Functions.

// UpdatePosteriorDiagnostics sets R-hat and ESS for a parameter. Undefined
// values are exported as -1.
func UpdatePosteriorDiagnostics(parameter string, rhat, ess float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.posteriorRHat.WithLabelValues(parameter).Set(finite(rhat))
	globalManager.posteriorESS.WithLabelValues(parameter).Set(finite(ess))
}

// Event Metrics Functions.

// RecordEventsMatched records a correlation outcome.
func RecordEventsMatched(changePoints, matched int) {
	if !globalManager.enabled {
		return
	}
	globalManager.eventsChangePoints.Set(float64(changePoints))
	globalManager.eventsMatched.Add(float64(matched))
}

// Pipeline Metrics Functions.

// RecordPipelineRun counts a pipeline run by status ("ok", "error", "cancelled").
func RecordPipelineRun(status string) {
	if !globalManager.enabled {
		return
	}
	globalManager.pipelineRuns.WithLabelValues(status).Inc()
}

// RecordStageDuration records the duration of a pipeline stage.
func RecordStageDuration(stage string, durationMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.pipelineStageDuration.WithLabelValues(stage).Observe(durationMs)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	if !globalManager.enabled {
		return
	}
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// Init replaces the global manager with one built from opts on a fresh
// registry. Call it once at startup, before any metric is recorded.
func Init(opts ...Option) {
	registry := prometheus.NewRegistry()
	globalManager = NewManager(append([]Option{WithPrometheusRegistry(registry)}, opts...)...)
	customRegistry = registry
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
