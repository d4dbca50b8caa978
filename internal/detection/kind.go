package detection

import (
	"context"
	"net"

	"github.com/tphakala/visiondash/internal/errors"
)

// ErrorKind classifies why a service produced no detections.
type ErrorKind string

const (
	KindNone                 ErrorKind = ""
	KindConfigMissing        ErrorKind = "ConfigMissing"
	KindNetworkFailure       ErrorKind = "NetworkFailure"
	KindMalformedResponse    ErrorKind = "MalformedResponse"
	KindNoServicesConfigured ErrorKind = "NoServicesConfigured"
	KindInternal             ErrorKind = "Internal"
)

// KindOf maps err to its ErrorKind. Non-2xx vendor answers, timeouts and
// transport failures are all NetworkFailure.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}

	var ee *errors.EnhancedError
	if errors.As(err, &ee) {
		switch ee.Category {
		case errors.CategoryConfigMissing:
			return KindConfigMissing
		case errors.CategoryMalformedResponse:
			return KindMalformedResponse
		case errors.CategoryNoServices:
			return KindNoServicesConfigured
		case errors.CategoryNetwork, errors.CategoryHTTP, errors.CategoryVendorUnavailable,
			errors.CategoryTimeout, errors.CategoryRateLimiterAborted, errors.CategoryCancellation:
			return KindNetworkFailure
		}
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.As(err, &netErr) {
		return KindNetworkFailure
	}

	return KindInternal
}

// newMalformed builds a MalformedResponse error for source.
func newMalformed(source Source, format string, args ...any) error {
	return errors.Newf(format, args...).
		Component("detection").
		Category(errors.CategoryMalformedResponse).
		Context("source", string(source)).
		Build()
}
