package detector

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/tphakala/visiondash/internal/conf"
	"github.com/tphakala/visiondash/internal/detection"
	"github.com/tphakala/visiondash/internal/errors"
	"github.com/tphakala/visiondash/internal/httpclient"
	"github.com/tphakala/visiondash/internal/logging"
	"github.com/tphakala/visiondash/internal/observability/metrics"
	"github.com/tphakala/visiondash/internal/privacy"
)

// Factory constructs a detector for one source.
type Factory func(settings *conf.Settings, opts Options) Detector

// ServiceStatus describes whether a source can be used.
type ServiceStatus struct {
	Source     detection.Source `json:"source"`
	Name       string           `json:"name"`
	Configured bool             `json:"configured"`
	Reason     string           `json:"reason,omitempty"`
}

// Skipped is a requested source that cannot run.
type Skipped struct {
	Source detection.Source
	Err    error
}

// Registry lazily builds and caches one detector per source.
type Registry struct {
	settings *conf.Settings
	opts     Options
	logger   *slog.Logger

	mu        sync.Mutex
	factories map[detection.Source]Factory
	detectors map[detection.Source]Detector
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithMetrics records vendor metrics on every detector.
func WithMetrics(m *metrics.DetectorMetrics) RegistryOption {
	return func(r *Registry) { r.opts.Metrics = m }
}

// WithHTTPClient shares client between detectors.
func WithHTTPClient(client *httpclient.Client) RegistryOption {
	return func(r *Registry) { r.opts.HTTPClient = client }
}

// WithFactory replaces the constructor for source.
func WithFactory(source detection.Source, factory Factory) RegistryOption {
	return func(r *Registry) { r.factories[source] = factory }
}

// NewRegistry creates a registry for the built-in Azure and Google detectors.
func NewRegistry(settings *conf.Settings, opts ...RegistryOption) *Registry {
	r := &Registry{
		settings: settings,
		logger:   logging.ForService(componentName),
		factories: map[detection.Source]Factory{
			detection.SourceAzure: func(s *conf.Settings, o Options) Detector {
				return NewAzureClient(s, o)
			},
			detection.SourceGoogle: func(s *conf.Settings, o Options) Detector {
				return NewGoogleClient(s, o)
			},
		},
		detectors: make(map[detection.Source]Detector),
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.opts.HTTPClient == nil {
		cfg := httpclient.DefaultConfig()
		if settings.Detection.Timeout > 0 {
			cfg.DefaultTimeout = settings.Detection.Timeout
		}
		r.opts.HTTPClient = httpclient.New(&cfg)
	}
	r.opts.Logger = r.logger
	r.opts.HTTPClient.SetAfterResponseHook(r.traceRequest)

	return r
}

// traceRequest logs every vendor round trip at trace level.
func (r *Registry) traceRequest(req *http.Request, resp *http.Response, err error, elapsed time.Duration) {
	attrs := []any{
		"method", req.Method,
		"endpoint", privacy.SanitizeEndpoint(req.URL.String()),
		"duration_ms", elapsed.Milliseconds(),
	}
	if resp != nil {
		attrs = append(attrs, "status", resp.StatusCode)
	}
	if err != nil {
		attrs = append(attrs, "error", privacy.ScrubMessage(err.Error()))
	}
	r.logger.Log(req.Context(), logging.LevelTrace, "vendor round trip", attrs...)
}

// Get returns the cached detector for source, constructing it on first use.
func (r *Registry) Get(source detection.Source) (Detector, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if d, ok := r.detectors[source]; ok {
		return d, nil
	}
	factory, ok := r.factories[source]
	if !ok {
		return nil, errors.Newf("no detector registered for %s", source).
			Component(componentName).
			Category(errors.CategoryValidation).
			Build()
	}

	d := factory(r.settings, r.opts)
	r.detectors[source] = d
	return d, nil
}

// Statuses reports every known source in service order.
func (r *Registry) Statuses() []ServiceStatus {
	statuses := make([]ServiceStatus, 0, len(detection.AllSources()))
	for _, source := range detection.AllSources() {
		status := ServiceStatus{Source: source, Name: source.DisplayName()}

		d, err := r.Get(source)
		if err == nil {
			err = d.ConfigError()
		}
		if err != nil {
			status.Reason = err.Error()
		} else {
			status.Configured = true
		}

		if r.opts.Metrics != nil {
			r.opts.Metrics.SetServiceConfigured(string(source), status.Configured)
		}
		statuses = append(statuses, status)
	}
	return statuses
}

// Available returns the configured detectors in service order.
func (r *Registry) Available() []Detector {
	var available []Detector
	for _, source := range detection.AllSources() {
		d, err := r.Get(source)
		if err != nil || d.ConfigError() != nil {
			continue
		}
		available = append(available, d)
	}
	return available
}

// Select resolves requested service names. An empty request selects every
// source. Unconfigured sources are returned as skipped with a ConfigMissing
// error; unknown names are a validation error.
func (r *Registry) Select(requested []string) ([]Detector, []Skipped, error) {
	sources, err := resolveSources(requested)
	if err != nil {
		return nil, nil, err
	}

	var selected []Detector
	var skipped []Skipped
	for _, source := range sources {
		d, err := r.Get(source)
		if err == nil {
			err = d.ConfigError()
		}
		if err != nil {
			skipped = append(skipped, Skipped{Source: source, Err: err})
			continue
		}
		selected = append(selected, d)
	}
	return selected, skipped, nil
}

// resolveSources parses names into unique sources in service order.
func resolveSources(requested []string) ([]detection.Source, error) {
	if len(requested) == 0 {
		return detection.AllSources(), nil
	}

	wanted := make(map[detection.Source]bool, len(requested))
	for _, name := range requested {
		source, err := detection.ParseSource(name)
		if err != nil {
			return nil, errors.New(err).
				Component(componentName).
				Category(errors.CategoryValidation).
				Context("requested", name).
				Build()
		}
		wanted[source] = true
	}

	var sources []detection.Source
	for _, source := range detection.AllSources() {
		if wanted[source] {
			sources = append(sources, source)
		}
	}
	return sources, nil
}

// Close releases idle vendor connections.
func (r *Registry) Close() {
	r.opts.HTTPClient.Close()
}
