// Package privacy provides helpers that keep vendor credentials and endpoint details
// out of logs, telemetry and rendered configuration.
package privacy

import (
	"net/url"
	"regexp"
	"strings"
)

// Pre-compiled patterns
var (
	urlPattern = regexp.MustCompile(`\b(?:https?|tcp|ssl|mqtt|wss?)://\S+`)

	keyPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(prediction[_-]?key)([=:]\s*)\S+`),
		regexp.MustCompile(`(?i)(api[_-]?key|access[_-]?token|token|password)([=:]\s*)\S+`),
		regexp.MustCompile(`(?i)(bearer)(\s+)\S+`),
	}
)

// ScrubMessage sanitizes every URL in message and redacts inline credentials.
func ScrubMessage(message string) string {
	scrubbed := urlPattern.ReplaceAllStringFunc(message, SanitizeEndpoint)
	for _, re := range keyPatterns {
		scrubbed = re.ReplaceAllString(scrubbed, "${1}${2}[REDACTED]")
	}
	return scrubbed
}

// SanitizeEndpoint strips user info, query and fragment from a URL so it is safe to log.
// Host and path are kept because they identify the vendor region and project.
func SanitizeEndpoint(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return "[invalid-url]"
	}

	parsed.User = nil
	if parsed.RawQuery != "" {
		parsed.RawQuery = "[REDACTED]"
	}
	parsed.Fragment = ""
	parsed.RawFragment = ""

	return parsed.String()
}

// MaskSecret keeps the first four characters of a secret and masks the rest.
// Short secrets are masked entirely.
func MaskSecret(secret string) string {
	const visible = 4
	switch {
	case secret == "":
		return ""
	case len(secret) <= visible*2:
		return strings.Repeat("*", len(secret))
	default:
		return secret[:visible] + strings.Repeat("*", len(secret)-visible)
	}
}

// SanitizedError wraps an error while providing a sanitized message for logging.
type SanitizedError struct {
	original     error
	sanitizedMsg string
}

// Error returns the sanitized error message.
func (e *SanitizedError) Error() string {
	return e.sanitizedMsg
}

// Unwrap returns the original error, allowing errors.Is() and errors.As() to work.
func (e *SanitizedError) Unwrap() error {
	return e.original
}

// WrapError sanitizes an error message using ScrubMessage.
// Returns nil if the input error is nil.
func WrapError(err error) error {
	if err == nil {
		return nil
	}
	return &SanitizedError{
		original:     err,
		sanitizedMsg: ScrubMessage(err.Error()),
	}
}
