// Package metrics provides vendor detection metrics for observability
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// DetectorMetrics contains Prometheus metrics for vendor prediction calls and runs
type DetectorMetrics struct {
	registry *prometheus.Registry

	// Vendor call metrics
	vendorRequestsTotal   *prometheus.CounterVec
	vendorRequestDuration *prometheus.HistogramVec
	vendorErrorsTotal     *prometheus.CounterVec
	vendorImageBytes      *prometheus.HistogramVec

	// Normalized output
	detectionsTotal      *prometheus.CounterVec
	detectionConfidence  *prometheus.HistogramVec
	malformedResponses   *prometheus.CounterVec
	rateLimitWaitSeconds *prometheus.HistogramVec

	// Runs
	runsTotal        *prometheus.CounterVec
	runDuration      prometheus.Histogram
	storedRunsGauge  prometheus.Gauge
	serviceAvailable *prometheus.GaugeVec
}

// NewDetectorMetrics creates and registers new detector metrics
func NewDetectorMetrics(registry *prometheus.Registry) (*DetectorMetrics, error) {
	m := &DetectorMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, err
	}
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// initMetrics initializes all Prometheus metrics
func (m *DetectorMetrics) initMetrics() error {
	m.vendorRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detector_vendor_requests_total",
			Help: "Total number of prediction requests sent to vendors",
		},
		[]string{"source", "status_code"}, // status_code: HTTP status or "transport_error"
	)

	m.vendorRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "detector_vendor_request_duration_seconds",
			Help: "Time taken by vendor prediction requests",
			// 10ms to ~40s, covers the 30s per call timeout
			Buckets: prometheus.ExponentialBuckets(BucketStart10ms, BucketFactor2, BucketCount12),
		},
		[]string{"source"},
	)

	m.vendorErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detector_vendor_errors_total",
			Help: "Total number of failed vendor calls by error kind",
		},
		[]string{"source", "kind"},
	)

	m.vendorImageBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "detector_vendor_image_bytes",
			Help:    "Size of images uploaded to vendors",
			Buckets: prometheus.ExponentialBuckets(BucketStart1KB, BucketFactor4, BucketCount8), // 1KB to ~16MB
		},
		[]string{"source"},
	)

	m.detectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detector_detections_total",
			Help: "Total number of normalized detections above threshold",
		},
		[]string{"source"},
	)

	m.detectionConfidence = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "detector_detection_confidence",
			Help:    "Confidence of normalized detections",
			Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
		},
		[]string{"source"},
	)

	m.malformedResponses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detector_malformed_responses_total",
			Help: "Total number of vendor responses that failed normalization",
		},
		[]string{"source"},
	)

	m.rateLimitWaitSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "detector_rate_limit_wait_seconds",
			Help:    "Time spent waiting for a rate limiter token",
			Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount12),
		},
		[]string{"source"},
	)

	m.runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detector_runs_total",
			Help: "Total number of aggregated detection runs",
		},
		[]string{"status"}, // status: success, partial, failed
	)

	m.runDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "detector_run_duration_seconds",
		Help:    "Wall time of aggregated detection runs",
		Buckets: prometheus.ExponentialBuckets(BucketStart10ms, BucketFactor2, BucketCount12),
	})

	m.storedRunsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "detector_stored_runs",
		Help: "Number of runs currently held in the run store",
	})

	m.serviceAvailable = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "detector_service_configured",
			Help: "1 when the vendor service is configured, 0 otherwise",
		},
		[]string{"source"},
	)

	return nil
}

// getCollectors returns all collectors in order for Describe/Collect operations
func (m *DetectorMetrics) getCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.vendorRequestsTotal,
		m.vendorRequestDuration,
		m.vendorErrorsTotal,
		m.vendorImageBytes,
		m.detectionsTotal,
		m.detectionConfidence,
		m.malformedResponses,
		m.rateLimitWaitSeconds,
		m.runsTotal,
		m.runDuration,
		m.storedRunsGauge,
		m.serviceAvailable,
	}
}

// Describe implements the Collector interface
func (m *DetectorMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.getCollectors() {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *DetectorMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.getCollectors() {
		collector.Collect(ch)
	}
}

// RecordVendorRequest records one vendor HTTP call. statusCode 0 means the
// request never produced a response.
func (m *DetectorMetrics) RecordVendorRequest(source string, statusCode int, duration float64) {
	code := "transport_error"
	if statusCode > 0 {
		code = strconv.Itoa(statusCode)
	}
	m.vendorRequestsTotal.WithLabelValues(source, code).Inc()
	m.vendorRequestDuration.WithLabelValues(source).Observe(duration)
}

// RecordVendorError records a failed vendor call by error kind
func (m *DetectorMetrics) RecordVendorError(source, kind string) {
	m.vendorErrorsTotal.WithLabelValues(source, kind).Inc()
}

// RecordImageUpload records the size of an uploaded image
func (m *DetectorMetrics) RecordImageUpload(source string, sizeBytes int) {
	m.vendorImageBytes.WithLabelValues(source).Observe(float64(sizeBytes))
}

// RecordDetections records the confidences of normalized detections
func (m *DetectorMetrics) RecordDetections(source string, confidences []float64) {
	m.detectionsTotal.WithLabelValues(source).Add(float64(len(confidences)))
	hist := m.detectionConfidence.WithLabelValues(source)
	for _, c := range confidences {
		hist.Observe(c)
	}
}

// RecordMalformedResponse records a response that failed normalization
func (m *DetectorMetrics) RecordMalformedResponse(source string) {
	m.malformedResponses.WithLabelValues(source).Inc()
}

// RecordRateLimitWait records time spent waiting on the rate limiter
func (m *DetectorMetrics) RecordRateLimitWait(source string, seconds float64) {
	m.rateLimitWaitSeconds.WithLabelValues(source).Observe(seconds)
}

// RecordRun records a finished aggregated run
func (m *DetectorMetrics) RecordRun(status string, seconds float64) {
	m.runsTotal.WithLabelValues(status).Inc()
	m.runDuration.Observe(seconds)
}

// SetStoredRuns sets the number of runs in the run store
func (m *DetectorMetrics) SetStoredRuns(count int) {
	m.storedRunsGauge.Set(float64(count))
}

// SetServiceConfigured records whether a vendor service is usable
func (m *DetectorMetrics) SetServiceConfigured(source string, configured bool) {
	value := 0.0
	if configured {
		value = 1
	}
	m.serviceAvailable.WithLabelValues(source).Set(value)
}
