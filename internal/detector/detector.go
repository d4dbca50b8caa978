// Package detector implements the vendor prediction clients. Each client posts
// an image to one vendor endpoint, returns the raw JSON and can normalize it into
// a detection.Result. Clients do not retry; the first failure is returned.
package detector

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/antonholmquist/jason"
	"github.com/k3a/html2text"
	"golang.org/x/time/rate"

	"github.com/tphakala/visiondash/internal/detection"
	"github.com/tphakala/visiondash/internal/errors"
	"github.com/tphakala/visiondash/internal/httpclient"
	"github.com/tphakala/visiondash/internal/logging"
	"github.com/tphakala/visiondash/internal/observability/metrics"
	"github.com/tphakala/visiondash/internal/privacy"
)

// Detector is a vendor object detection service.
type Detector interface {
	// Source identifies the vendor.
	Source() detection.Source
	// Name is the human readable service name.
	Name() string
	// ConfigError returns nil when the detector has everything it needs to call
	// the vendor, otherwise a ConfigMissing error naming what is absent.
	ConfigError() error
	// Predict posts image to the vendor and returns the raw response body.
	Predict(ctx context.Context, image []byte) ([]byte, error)
	// Detect runs Predict and normalizes the response with threshold.
	Detect(ctx context.Context, image []byte, threshold float64) (*detection.Result, error)
}

const (
	componentName = "detector"

	// maxErrorSummary bounds vendor error text carried in messages
	maxErrorSummary = 300
)

// Options carries the shared dependencies of a detector. Zero values are valid.
type Options struct {
	HTTPClient *httpclient.Client
	Metrics    *metrics.DetectorMetrics
	Logger     *slog.Logger
}

// base holds what both vendor clients share: transport, throttling, metrics.
type base struct {
	source  detection.Source
	client  *httpclient.Client
	limiter *rate.Limiter
	metrics *metrics.DetectorMetrics
	logger  *slog.Logger
}

func newBase(source detection.Source, requestsPerSecond float64, opts Options) base {
	b := base{
		source:  source,
		client:  opts.HTTPClient,
		metrics: opts.Metrics,
		logger:  opts.Logger,
	}
	if b.client == nil {
		b.client = httpclient.New(nil)
	}
	if b.logger == nil {
		b.logger = logging.ForService(componentName)
	}
	b.logger = b.logger.With("source", string(source))
	if requestsPerSecond > 0 {
		b.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}
	return b
}

// Source returns the vendor this detector talks to.
func (b *base) Source() detection.Source { return b.source }

// Name returns the display name of the vendor service.
func (b *base) Name() string { return b.source.DisplayName() }

// wait blocks until the rate limiter grants a token or ctx ends.
func (b *base) wait(ctx context.Context) error {
	if b.limiter == nil {
		return nil
	}
	start := time.Now()
	err := b.limiter.Wait(ctx)
	if b.metrics != nil {
		b.metrics.RecordRateLimitWait(string(b.source), time.Since(start).Seconds())
	}
	if err != nil {
		return errors.New(err).
			Component(componentName).
			Category(errors.CategoryRateLimiterAborted).
			Context("source", string(b.source)).
			Context("operation", metrics.OpRateLimitWait).
			Build()
	}
	return nil
}

// send executes req and returns the response. Transport failures become
// Network or Timeout errors; the caller owns the response body.
func (b *base) send(ctx context.Context, req *http.Request, imageSize int) (*http.Response, error) {
	if err := b.wait(ctx); err != nil {
		return nil, err
	}
	if b.metrics != nil {
		b.metrics.RecordImageUpload(string(b.source), imageSize)
	}

	start := time.Now()
	resp, err := b.client.Do(ctx, req)
	elapsed := time.Since(start)

	if err != nil {
		if b.metrics != nil {
			b.metrics.RecordVendorRequest(string(b.source), 0, elapsed.Seconds())
		}
		category := errors.CategoryNetwork
		if errors.Is(err, context.DeadlineExceeded) {
			category = errors.CategoryTimeout
		} else if errors.Is(err, context.Canceled) {
			category = errors.CategoryCancellation
		}
		return nil, errors.New(privacy.WrapError(err)).
			Component(componentName).
			Category(category).
			Context("source", string(b.source)).
			Context("operation", metrics.OpPredict).
			Timing(metrics.OpPredict, elapsed).
			Build()
	}

	if b.metrics != nil {
		b.metrics.RecordVendorRequest(string(b.source), resp.StatusCode, elapsed.Seconds())
	}
	b.logger.Debug("vendor responded",
		"status", resp.StatusCode,
		"duration_ms", elapsed.Milliseconds())
	return resp, nil
}

// vendorStatusError builds the error for a non-2xx vendor answer.
func (b *base) vendorStatusError(statusCode int, summary string) error {
	msg := b.Name() + " returned HTTP " + http.StatusText(statusCode)
	if http.StatusText(statusCode) == "" {
		msg = b.Name() + " returned an unexpected HTTP status"
	}
	if summary != "" {
		msg += ": " + summary
	}
	return errors.New(errors.NewStd(msg)).
		Component(componentName).
		Category(errors.CategoryVendorUnavailable).
		Context("source", string(b.source)).
		Context("status_code", statusCode).
		Build()
}

// detect times Predict plus normalization and records the outcome.
func (b *base) detect(ctx context.Context, predict func(context.Context, []byte) ([]byte, error),
	image []byte, threshold float64,
) (*detection.Result, error) {
	start := time.Now()

	raw, err := predict(ctx, image)
	if err != nil {
		b.recordFailure(err)
		return nil, err
	}

	detections, err := detection.Normalize(b.source, raw, threshold)
	if err != nil {
		if b.metrics != nil {
			b.metrics.RecordMalformedResponse(string(b.source))
		}
		b.recordFailure(err)
		return nil, err
	}

	result := detection.NewResult(b.source, detections, threshold)
	result.ProcessingTime = time.Since(start)

	if b.metrics != nil {
		confidences := make([]float64, len(detections))
		for i, d := range detections {
			confidences[i] = d.Confidence
		}
		b.metrics.RecordDetections(string(b.source), confidences)
	}
	b.logger.Info("detection completed",
		"detections", len(detections),
		"threshold", threshold,
		"duration_ms", result.ProcessingTime.Milliseconds())

	return result, nil
}

func (b *base) recordFailure(err error) {
	kind := detection.KindOf(err)
	if b.metrics != nil {
		b.metrics.RecordVendorError(string(b.source), string(kind))
	}
	b.logger.Warn("detection failed", "kind", string(kind), "error", err)
}

// summarizeErrorBody turns a vendor error body into one short line. JSON bodies
// contribute their message field, HTML gateway pages are flattened to text.
func summarizeErrorBody(contentType string, body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return ""
	}

	var summary string
	switch {
	case strings.HasPrefix(trimmed, "{"):
		summary = summarizeJSONError(body)
	case strings.Contains(contentType, "html") || strings.HasPrefix(trimmed, "<"):
		summary = html2text.HTML2Text(trimmed)
	}
	if summary == "" {
		summary = trimmed
	}

	summary = strings.Join(strings.Fields(summary), " ")
	summary = privacy.ScrubMessage(summary)
	if len(summary) > maxErrorSummary {
		summary = summary[:maxErrorSummary] + "..."
	}
	return summary
}

// summarizeJSONError extracts code and message from the error shapes used by
// Custom Vision ({"code","message"}) and Google APIs ({"error":{"status","message"}}).
func summarizeJSONError(body []byte) string {
	obj, err := jason.NewObjectFromBytes(body)
	if err != nil {
		return ""
	}
	if inner, err := obj.GetObject("error"); err == nil {
		obj = inner
	}

	message, _ := obj.GetString("message")
	code, err := obj.GetString("code")
	if err != nil {
		code, _ = obj.GetString("status")
	}

	switch {
	case code != "" && message != "":
		return code + ": " + message
	case message != "":
		return message
	default:
		return code
	}
}
