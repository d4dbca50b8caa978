package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/visiondash/internal/observability/metrics"
)

// unmatchedPath labels requests that hit no route so probes cannot grow the label set.
const unmatchedPath = "unmatched"

// NewMetrics records request counts, durations and response sizes per route pattern.
func NewMetrics(m *metrics.HTTPMetrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m == nil {
				return next(c)
			}

			m.RequestStarted()
			defer m.RequestFinished()

			start := time.Now()
			err := next(c)
			if err != nil {
				// Let echo write the error response so the recorded status is final
				c.Error(err)
			}

			path := c.Path()
			if path == "" {
				path = unmatchedPath
			}
			method := c.Request().Method
			m.RecordHTTPRequest(method, path, c.Response().Status, time.Since(start).Seconds())
			m.RecordHTTPResponseSize(method, path, c.Response().Size)

			return nil
		}
	}
}
