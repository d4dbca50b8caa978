// Package aggregator runs the selected detectors against one image and merges
// their results. A failing service is reported as an outcome and never stops
// the others.
package aggregator

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/visiondash/internal/detection"
	"github.com/tphakala/visiondash/internal/detector"
	"github.com/tphakala/visiondash/internal/errors"
	"github.com/tphakala/visiondash/internal/logging"
	"github.com/tphakala/visiondash/internal/observability/metrics"
)

const (
	componentName = "aggregator"

	// DefaultCallTimeout bounds each vendor call independently.
	DefaultCallTimeout = 30 * time.Second

	// DefaultTopic is the MQTT topic for run summaries.
	DefaultTopic = "visiondash/runs"

	publishTimeout = 5 * time.Second
)

// Selector resolves requested service names into runnable detectors.
type Selector interface {
	Select(requested []string) ([]detector.Detector, []detector.Skipped, error)
}

// Publisher sends a payload to a topic. The MQTT client implements it.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload string) error
}

// Outcome is the per-service result of a run. Exactly one of Result or Err is set.
type Outcome struct {
	Source  detection.Source    `json:"source"`
	Service string              `json:"service"`
	Result  *detection.Result   `json:"result,omitempty"`
	Kind    detection.ErrorKind `json:"errorKind,omitempty"`
	Message string              `json:"error,omitempty"`
	Err     error               `json:"-"`
}

// OK reports whether the service returned a result.
func (o Outcome) OK() bool { return o.Err == nil && o.Result != nil }

// Report is the merged output of one run.
type Report struct {
	ID         string                `json:"id"`
	CreatedAt  time.Time             `json:"createdAt"`
	Threshold  float64               `json:"threshold"`
	Detections []detection.Detection `json:"detections"`
	Outcomes   []Outcome             `json:"outcomes"`
	Duration   time.Duration         `json:"duration"`
}

// Results returns the successful per-service results in service order.
func (r *Report) Results() []*detection.Result {
	var results []*detection.Result
	for _, o := range r.Outcomes {
		if o.OK() {
			results = append(results, o.Result)
		}
	}
	return results
}

// Failed returns the outcomes that carry an error.
func (r *Report) Failed() []Outcome {
	var failed []Outcome
	for _, o := range r.Outcomes {
		if !o.OK() {
			failed = append(failed, o)
		}
	}
	return failed
}

// Aggregator fans an image out to detectors and merges the answers.
type Aggregator struct {
	selector    Selector
	callTimeout time.Duration
	metrics     *metrics.DetectorMetrics
	publisher   Publisher
	topic       string
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithCallTimeout overrides the per-call timeout.
func WithCallTimeout(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.callTimeout = d
		}
	}
}

// WithMetrics records run metrics.
func WithMetrics(m *metrics.DetectorMetrics) Option {
	return func(a *Aggregator) { a.metrics = m }
}

// WithPublisher publishes a JSON summary of every run to topic.
func WithPublisher(p Publisher, topic string) Option {
	return func(a *Aggregator) {
		a.publisher = p
		if topic != "" {
			a.topic = topic
		}
	}
}

// New creates an aggregator over selector.
func New(selector Selector, opts ...Option) *Aggregator {
	a := &Aggregator{
		selector:    selector,
		callTimeout: DefaultCallTimeout,
		topic:       DefaultTopic,
		logger:      logging.ForService(componentName),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run sends image to the requested services in parallel and merges the
// detections in service order. It fails only when the request names an
// unknown service or when none of the requested services is configured.
func (a *Aggregator) Run(ctx context.Context, image []byte, requested []string, threshold float64) (*Report, error) {
	start := a.now()

	selected, skipped, err := a.selector.Select(requested)
	if err != nil {
		return nil, err
	}
	if len(selected) == 0 {
		a.recordRun(metrics.StatusError, start)
		return nil, noServicesError(skipped)
	}

	outcomes := make([]Outcome, len(selected))
	var g errgroup.Group
	for i, d := range selected {
		g.Go(func() error {
			outcomes[i] = a.call(ctx, d, image, threshold)
			return nil
		})
	}
	_ = g.Wait()

	for _, s := range skipped {
		outcomes = append(outcomes, Outcome{
			Source:  s.Source,
			Service: s.Source.DisplayName(),
			Kind:    detection.KindOf(s.Err),
			Message: s.Err.Error(),
			Err:     s.Err,
		})
	}
	slices.SortStableFunc(outcomes, func(x, y Outcome) int {
		return x.Source.Order() - y.Source.Order()
	})

	report := &Report{
		ID:         uuid.NewString(),
		CreatedAt:  start,
		Threshold:  threshold,
		Detections: []detection.Detection{},
		Outcomes:   outcomes,
	}
	for _, o := range outcomes {
		if o.OK() {
			report.Detections = append(report.Detections, o.Result.Detections...)
		}
	}
	report.Duration = a.now().Sub(start)

	status := metrics.StatusSuccess
	if len(report.Results()) == 0 {
		status = metrics.StatusError
	}
	a.recordRun(status, start)

	a.logger.Info("detection run completed",
		"run_id", report.ID,
		"services", len(outcomes),
		"failed", len(report.Failed()),
		"detections", len(report.Detections),
		"duration_ms", report.Duration.Milliseconds())

	a.publish(ctx, report)
	return report, nil
}

// call runs one detector under its own timeout and converts the answer to an Outcome.
func (a *Aggregator) call(ctx context.Context, d detector.Detector, image []byte, threshold float64) Outcome {
	callCtx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()

	outcome := Outcome{Source: d.Source(), Service: d.Name()}

	result, err := d.Detect(callCtx, image, threshold)
	switch {
	case err != nil:
		outcome.Err = err
	case result == nil:
		outcome.Err = errors.Newf("%s returned no result", d.Name()).
			Component(componentName).
			Category(errors.CategoryGeneric).
			Context("source", string(d.Source())).
			Build()
	default:
		outcome.Result = result
		return outcome
	}

	outcome.Kind = detection.KindOf(outcome.Err)
	outcome.Message = outcome.Err.Error()
	return outcome
}

func (a *Aggregator) recordRun(status string, start time.Time) {
	if a.metrics != nil {
		a.metrics.RecordRun(status, a.now().Sub(start).Seconds())
	}
}

// noServicesError explains why nothing could run.
func noServicesError(skipped []detector.Skipped) error {
	reasons := make([]string, 0, len(skipped))
	for _, s := range skipped {
		reasons = append(reasons, s.Err.Error())
	}
	return errors.Newf("no detection services configured").
		Component(componentName).
		Category(errors.CategoryNoServices).
		Context("reasons", reasons).
		Build()
}

// runSummary is the MQTT payload for a finished run.
type runSummary struct {
	ID         string           `json:"id"`
	CreatedAt  time.Time        `json:"createdAt"`
	Threshold  float64          `json:"threshold"`
	Detections int              `json:"detections"`
	Labels     []string         `json:"labels"`
	Services   []serviceSummary `json:"services"`
}

type serviceSummary struct {
	Source     detection.Source    `json:"source"`
	Detections int                 `json:"detections"`
	Kind       detection.ErrorKind `json:"errorKind,omitempty"`
}

func newRunSummary(r *Report) runSummary {
	s := runSummary{
		ID:         r.ID,
		CreatedAt:  r.CreatedAt,
		Threshold:  r.Threshold,
		Detections: len(r.Detections),
		Labels:     detection.UniqueLabels(r.Detections),
	}
	for _, o := range r.Outcomes {
		s.Services = append(s.Services, serviceSummary{
			Source:     o.Source,
			Detections: o.Result.Count(),
			Kind:       o.Kind,
		})
	}
	return s
}

// publish sends the run summary. Failures are logged only.
func (a *Aggregator) publish(ctx context.Context, r *Report) {
	if a.publisher == nil {
		return
	}

	payload, err := json.Marshal(newRunSummary(r))
	if err != nil {
		a.logger.Warn("failed to encode run summary", "run_id", r.ID, "error", err)
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := a.publisher.Publish(pubCtx, a.topic, string(payload)); err != nil {
		a.logger.Warn("failed to publish run summary", "run_id", r.ID, "topic", a.topic, "error", err)
	}
}
