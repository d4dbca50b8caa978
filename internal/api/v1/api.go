// Package api implements the visiondash JSON API served under /api/v1.
package api

import (
	"context"
	"crypto/rand"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/visiondash/internal/aggregator"
	"github.com/tphakala/visiondash/internal/conf"
	"github.com/tphakala/visiondash/internal/detection"
	"github.com/tphakala/visiondash/internal/detector"
	"github.com/tphakala/visiondash/internal/errors"
	"github.com/tphakala/visiondash/internal/logging"
	"github.com/tphakala/visiondash/internal/observability/metrics"
	"github.com/tphakala/visiondash/internal/privacy"
	"github.com/tphakala/visiondash/internal/runstore"
)

// Prefix is the mount point of every route in this package.
const Prefix = "/api/v1"

// ServiceCatalog reports which detection services are configured.
type ServiceCatalog interface {
	Statuses() []detector.ServiceStatus
}

// DetectionRunner executes one aggregated detection run.
type DetectionRunner interface {
	Run(ctx context.Context, image []byte, requested []string, threshold float64) (*aggregator.Report, error)
}

// Controller manages the API routes and handlers
type Controller struct {
	Echo     *echo.Echo
	Group    *echo.Group
	Settings *conf.Settings

	catalog   ServiceCatalog
	runner    DetectionRunner
	store     *runstore.Store
	metrics   *metrics.HTTPMetrics
	apiLogger *slog.Logger
	startTime time.Time
}

// Option is a functional option for configuring the Controller.
type Option func(*Controller)

// WithLogger sets the structured logger for API operations.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.apiLogger = logger
	}
}

// WithMetrics records handler operations.
func WithMetrics(m *metrics.HTTPMetrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// New creates the controller and registers its routes on e.
func New(e *echo.Echo, settings *conf.Settings, catalog ServiceCatalog, runner DetectionRunner,
	store *runstore.Store, opts ...Option) (*Controller, error) {
	if settings == nil || catalog == nil || runner == nil || store == nil {
		return nil, errors.Newf("api controller requires settings, service catalog, runner and run store").
			Component("api").
			Category(errors.CategoryConfiguration).
			Build()
	}

	c := &Controller{
		Echo:      e,
		Group:     e.Group(Prefix),
		Settings:  settings,
		catalog:   catalog,
		runner:    runner,
		store:     store,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.apiLogger == nil {
		c.apiLogger = logging.ForService("api")
	}

	c.initRoutes()
	return c, nil
}

// initRoutes registers all API endpoints
func (c *Controller) initRoutes() {
	c.Group.GET("/health", c.HealthCheck)
	c.Group.GET("/services", c.GetServices)
	c.Group.POST("/detections", c.CreateDetectionRun)

	runs := c.Group.Group("/runs")
	runs.GET("/:id", c.GetRun)
	runs.GET("/:id/detections.csv", c.ExportRunCSV)
	runs.GET("/:id/analytics", c.GetRunAnalytics)
	runs.GET("/:id/image", c.GetRunImage)
}

// HealthCheck reports liveness and how many services can run.
func (c *Controller) HealthCheck(ctx echo.Context) error {
	configured := 0
	for _, s := range c.catalog.Statuses() {
		if s.Configured {
			configured++
		}
	}

	status := "healthy"
	if configured == 0 {
		status = "degraded"
	}

	uptime := time.Since(c.startTime)
	return ctx.JSON(http.StatusOK, map[string]any{
		"status":              status,
		"version":             c.Settings.Version,
		"build_date":          c.Settings.BuildDate,
		"uptime":              uptime.String(),
		"uptime_seconds":      uptime.Seconds(),
		"configured_services": configured,
		"stored_runs":         c.store.Len(),
		"timestamp":           time.Now().Format(time.RFC3339),
	})
}

// ServicesResponse lists every detection service and the usable subset.
type ServicesResponse struct {
	Services  []detector.ServiceStatus `json:"services"`
	Available []detection.Source       `json:"available"`
	Threshold float64                  `json:"defaultThreshold"`
}

// GetServices returns the status of each detection service.
func (c *Controller) GetServices(ctx echo.Context) error {
	statuses := c.catalog.Statuses()
	available := make([]detection.Source, 0, len(statuses))
	for _, s := range statuses {
		if s.Configured {
			available = append(available, s.Source)
		}
	}
	return ctx.JSON(http.StatusOK, ServicesResponse{
		Services:  statuses,
		Available: available,
		Threshold: c.defaultThreshold(),
	})
}

func (c *Controller) defaultThreshold() float64 {
	if t := c.Settings.Detection.Threshold; t > 0 {
		return t
	}
	return conf.DefaultThreshold
}

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Error         string              `json:"error"`
	Message       string              `json:"message"`
	Code          int                 `json:"code"`
	Kind          detection.ErrorKind `json:"kind,omitempty"`
	CorrelationID string              `json:"correlation_id"` // Unique identifier for tracking this error
}

// NewErrorResponse creates a new API error response. Secrets in err are redacted.
func NewErrorResponse(err error, message string, code int) *ErrorResponse {
	errorStr := message
	var kind detection.ErrorKind
	if err != nil {
		errorStr = privacy.ScrubMessage(err.Error())
		if k := detection.KindOf(err); k != detection.KindInternal {
			kind = k
		}
	}

	return &ErrorResponse{
		Error:         errorStr,
		Message:       message,
		Code:          code,
		Kind:          kind,
		CorrelationID: generateCorrelationID(),
	}
}

// generateCorrelationID creates a short random identifier for error tracking
func generateCorrelationID() string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	const length = 8

	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "ERR-RAND"
	}

	for i := range b {
		b[i] = charset[int(b[i])%len(charset)]
	}
	return string(b)
}

// HandleError logs err and writes an ErrorResponse with code.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	errorResp := NewErrorResponse(err, message, code)

	level := slog.LevelWarn
	if code >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	c.apiLogger.Log(ctx.Request().Context(), level, "API Error",
		"correlation_id", errorResp.CorrelationID,
		"request_id", ctx.Response().Header().Get(echo.HeaderXRequestID),
		"message", message,
		"error", errorResp.Error,
		"code", code,
		"path", ctx.Request().URL.Path,
		"method", ctx.Request().Method,
		"ip", ctx.RealIP(),
	)

	return ctx.JSON(code, errorResp)
}

// statusFor maps an error category to the HTTP status reported to clients.
func statusFor(err error) int {
	switch {
	case errors.IsCategory(err, errors.CategoryValidation),
		errors.IsCategory(err, errors.CategoryImageDecode):
		return http.StatusBadRequest
	case errors.IsNotFound(err):
		return http.StatusNotFound
	case errors.IsCategory(err, errors.CategoryNoServices),
		errors.IsCategory(err, errors.CategoryConfigMissing):
		return http.StatusUnprocessableEntity
	case errors.IsCategory(err, errors.CategoryTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// observe records a handler operation outcome when metrics are enabled.
func (c *Controller) observe(operation string, start time.Time, err error) {
	if c.metrics == nil {
		return
	}
	status := metrics.StatusSuccess
	if err != nil {
		status = metrics.StatusError
		c.metrics.RecordHandlerOperationError("v1", operation, string(detection.KindOf(err)))
	}
	c.metrics.RecordHandlerOperation("v1", operation, status, time.Since(start).Seconds())
}
