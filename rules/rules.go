//go:build ruleguard

// Package gorules holds the ruleguard checks run by the linter on this module.
package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// ExplicitSettings flags reads of process wide configuration. Settings are
// loaded once by the CLI and passed to constructors.
func ExplicitSettings(m dsl.Matcher) {
	m.Match(`viper.$fn($*_)`).
		Where(!m.File().PkgPath.Matches(`/internal/conf$`)).
		Report("read configuration through *conf.Settings, not viper.$fn")

	m.Match(`os.Getenv($name)`).
		Where(m.File().PkgPath.Matches(`/internal/(detector|aggregator|api)`)).
		Report("environment variables are bound in internal/conf; take $name from *conf.Settings")
}

// SharedHTTPClient flags outbound calls that bypass internal/httpclient and
// with it the default timeout, user agent and request metrics.
func SharedHTTPClient(m dsl.Matcher) {
	m.Match(`http.Get($*_)`, `http.Post($*_)`, `http.Head($*_)`, `http.PostForm($*_)`).
		Where(!m.File().Name.Matches(`_test\.go$`)).
		Report("use internal/httpclient for outbound requests")

	m.Match(`http.DefaultClient`).
		Where(!m.File().Name.Matches(`_test\.go$`)).
		Report("use internal/httpclient instead of http.DefaultClient")
}

// CategorizedErrors flags plain errors in the service packages, which would
// surface as Internal instead of a detection error kind.
func CategorizedErrors(m dsl.Matcher) {
	m.Import("errors")

	m.Match(`errors.New($msg)`).
		Where(m.File().Imports("errors") &&
			m.File().PkgPath.Matches(`/internal/(detector|detection|aggregator)$`) &&
			!m.File().Name.Matches(`_test\.go$`)).
		Report("use the internal/errors builder with a category for $msg")
}

// SecretsInLogs flags vendor credentials passed to a logger.
func SecretsInLogs(m dsl.Matcher) {
	m.Match(
		`$log.$_($*_, $s.Azure.PredictionKey, $*_)`,
		`$log.$_($*_, $s.Google.AccessToken, $*_)`,
		`$log.$_($*_, $s.MQTT.Password, $*_)`,
	).
		Where(m["log"].Type.Is("*slog.Logger") || m["log"].Text == "logging").
		Report("mask credentials with privacy.MaskSecret before logging")
}

// DeferredTimeSince detects deferred calls to time.Since, which measure
// nothing because the argument is evaluated when defer runs.
func DeferredTimeSince(m dsl.Matcher) {
	m.Match(
		`defer $fn(time.Since($start))`,
		`defer $fn($*_, time.Since($start), $*_)`,
		`defer $fn($*_, time.Since($start).Seconds(), $*_)`,
	).
		Report("time.Since($start) is evaluated at defer time; wrap the call in func() to time the function")
}

// TestingContext suggests t.Context() over a background context in tests so
// vendor calls and servers stop when the test ends.
func TestingContext(m dsl.Matcher) {
	m.Match(
		`$ctx := context.Background()`,
		`$ctx := context.TODO()`,
		`$fn(context.Background(), $*_)`,
	).
		Where(m.File().Name.Matches(`_test\.go$`)).
		Report("in tests, use t.Context() instead of a background context")
}
