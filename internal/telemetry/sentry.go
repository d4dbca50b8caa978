// Package telemetry provides opt-in, privacy-filtered error reporting to Sentry.
package telemetry

import (
	"runtime"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/tphakala/visiondash/internal/buildinfo"
	"github.com/tphakala/visiondash/internal/conf"
	"github.com/tphakala/visiondash/internal/errors"
	"github.com/tphakala/visiondash/internal/logging"
	"github.com/tphakala/visiondash/internal/privacy"
)

const defaultEnvironment = "production"

// Option adjusts the Sentry client options before Init.
type Option func(*sentry.ClientOptions)

// WithTransport replaces the Sentry transport.
func WithTransport(t sentry.Transport) Option {
	return func(o *sentry.ClientOptions) { o.Transport = t }
}

// InitSentry initializes Sentry when it is explicitly enabled and routes
// EnhancedErrors to it. It reports whether telemetry is active.
func InitSentry(settings *conf.Settings, info buildinfo.BuildInfo, opts ...Option) (bool, error) {
	logger := logging.ForService("telemetry")

	if !settings.Sentry.Enabled {
		logger.Info("Sentry telemetry is disabled (opt-in required)")
		return false, nil
	}
	if settings.Sentry.DSN == "" {
		return false, errors.Newf("sentry is enabled but no DSN is configured").
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Build()
	}

	environment := settings.Sentry.Environment
	if environment == "" {
		environment = defaultEnvironment
	}

	clientOptions := sentry.ClientOptions{
		Dsn:              settings.Sentry.DSN,
		SampleRate:       1.0,
		AttachStacktrace: false,
		Environment:      environment,
		ServerName:       "",
		Release:          "visiondash@" + info.Version(),
		BeforeSend:       beforeSend,
	}
	for _, opt := range opts {
		opt(&clientOptions)
	}

	if err := sentry.Init(clientOptions); err != nil {
		return false, errors.New(err).
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Context("operation", "sentry_init").
			Build()
	}

	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("system_id", info.SystemID())
		scope.SetTag("build_date", info.BuildDate())
		scope.SetTag("os", runtime.GOOS)
		scope.SetTag("arch", runtime.GOARCH)
	})

	errors.SetPrivacyScrubber(privacy.ScrubMessage)
	errors.SetTelemetryReporter(errors.NewSentryReporter(true))

	logger.Info("Sentry telemetry initialized",
		"environment", environment,
		"release", clientOptions.Release)
	return true, nil
}

// Flush waits up to timeout for queued events to be sent.
func Flush(timeout time.Duration) bool {
	return sentry.Flush(timeout)
}

// beforeSend strips host and user identifying data from every event.
func beforeSend(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""

	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
		delete(event.Contexts, "runtime")
	}

	for k := range event.Extra {
		if k != "error_type" && k != "component" {
			delete(event.Extra, k)
		}
	}

	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}

	event.Message = privacy.ScrubMessage(event.Message)
	for i := range event.Exception {
		event.Exception[i].Value = privacy.ScrubMessage(event.Exception[i].Value)
	}
	return event
}
