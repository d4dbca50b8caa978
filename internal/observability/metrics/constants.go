// Package metrics provides constants used across metric definitions.
package metrics

// Label values shared by the collectors.
const (
	// StatusSuccess marks an operation that completed.
	StatusSuccess = "success"
	// StatusError marks an operation that failed.
	StatusError = "error"

	// OpPredict is the raw vendor call.
	OpPredict = "predict"
	// OpNormalize is response normalization.
	OpNormalize = "normalize"
	// OpRateLimitWait is time spent waiting for a rate limiter token.
	OpRateLimitWait = "rate_limit_wait"

	// OpCreateRun is a detection upload handled by the API.
	OpCreateRun = "create_run"
	// OpExportCSV is a CSV download.
	OpExportCSV = "export_csv"
	// OpRenderImage is an annotated image render.
	OpRenderImage = "render_image"
	// OpAnalytics is an analytics computation.
	OpAnalytics = "analytics"
)

// Histogram bucket configuration constants.
const (
	// BucketStart1ms is the starting bucket for 1ms histograms (1ms to ~4s range).
	BucketStart1ms = 0.001
	// BucketStart10ms is the starting bucket for 10ms histograms (10ms to ~40s range).
	BucketStart10ms = 0.01
	// BucketStart64B is the starting bucket for 64 byte histograms.
	BucketStart64B = 64.0
	// BucketStart1KB is the starting bucket for 1KB histograms.
	BucketStart1KB = 1024.0

	// BucketFactor2 is the common exponential growth factor of 2 for histogram buckets.
	BucketFactor2 = 2
	// BucketFactor4 grows image size buckets.
	BucketFactor4 = 4

	// BucketCount8 defines 8 exponential buckets.
	BucketCount8 = 8
	// BucketCount10 defines 10 exponential buckets.
	BucketCount10 = 10
	// BucketCount12 defines 12 exponential buckets.
	BucketCount12 = 12
)
