package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/crypto/acme/autocert"

	mw "github.com/tphakala/visiondash/internal/api/middleware"
	v1 "github.com/tphakala/visiondash/internal/api/v1"
	"github.com/tphakala/visiondash/internal/conf"
	"github.com/tphakala/visiondash/internal/logging"
	"github.com/tphakala/visiondash/internal/observability"
	"github.com/tphakala/visiondash/internal/observability/metrics"
	"github.com/tphakala/visiondash/internal/runstore"
)

// Server is the main HTTP server for visiondash.
// It manages the Echo instance, middleware and all HTTP routes.
type Server struct {
	// Core components
	echo     *echo.Echo
	config   *Config
	settings *conf.Settings
	slogger  *slog.Logger

	// Dependencies
	catalog v1.ServiceCatalog
	runner  v1.DetectionRunner
	store   *runstore.Store
	metrics *observability.Metrics

	apiController *v1.Controller
	spaHandler    *SPAHandler

	startTime time.Time
	errCh     chan error

	// Cleanup
	logCloser func() error
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithServiceCatalog sets the source of service statuses, normally the detector registry.
func WithServiceCatalog(catalog v1.ServiceCatalog) ServerOption {
	return func(s *Server) {
		s.catalog = catalog
	}
}

// WithRunner sets the detection runner, normally the aggregator.
func WithRunner(runner v1.DetectionRunner) ServerOption {
	return func(s *Server) {
		s.runner = runner
	}
}

// WithRunStore sets the store finished runs are kept in.
func WithRunStore(store *runstore.Store) ServerOption {
	return func(s *Server) {
		s.store = store
	}
}

// WithMetrics sets the observability metrics for the server.
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithLogger replaces the request logger. It disables the server log file.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.slogger = logger
	}
}

// New creates a new HTTP server with the given settings and options.
func New(settings *conf.Settings, opts ...ServerOption) (*Server, error) {
	config := ConfigFromSettings(settings)
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server configuration: %w", err)
	}

	s := &Server{
		config:    config,
		settings:  settings,
		startTime: time.Now(),
		errCh:     make(chan error, 1),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.store == nil {
		s.store = runstore.New(settings.Detection.RunTTL, s.detectorMetrics())
	}

	s.initLogger()

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Debug = config.Debug
	logger := NewEchoLoggerAdapter(s.slogger)
	logger.SetLevel(echoLevel(config.LogLevel))
	s.echo.Logger = logger
	s.echo.HTTPErrorHandler = s.handleHTTPError

	s.echo.Server.ReadTimeout = config.ReadTimeout
	s.echo.Server.WriteTimeout = config.WriteTimeout
	s.echo.Server.IdleTimeout = config.IdleTimeout

	if config.AutoTLS {
		s.echo.AutoTLSManager.Prompt = autocert.AcceptTOS
		s.echo.AutoTLSManager.Cache = autocert.DirCache(config.CertCacheDir)
		s.echo.AutoTLSManager.HostPolicy = autocert.HostWhitelist(config.AutoTLSHost)
	}

	s.setupMiddleware()

	if err := s.setupRoutes(); err != nil {
		_ = s.closeLog()
		return nil, fmt.Errorf("failed to setup routes: %w", err)
	}

	s.slogger.Info("HTTP server initialized",
		"address", config.Address(),
		"tls", config.TLSEnabled,
		"debug", config.Debug,
	)

	return s, nil
}

// initLogger initializes the structured request logger for the server.
func (s *Server) initLogger() {
	if s.slogger != nil {
		return
	}

	if s.config.LogFile {
		logger, closer, err := logging.NewFileLogger(s.config.LogPath, "server", s.config.Log)
		if err == nil {
			s.slogger = logger
			s.logCloser = closer
			logging.Info("Server logging initialized", "path", s.config.LogPath)
			return
		}
		logging.Warn("Failed to initialize server log file, request logging disabled", "error", err)
	}

	handler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: s.config.LogLevel})
	s.slogger = slog.New(handler).With("service", "server")
}

// setupMiddleware configures the Echo middleware stack.
func (s *Server) setupMiddleware() {
	// Recovery middleware - should be first
	s.echo.Use(echomw.Recover())

	s.echo.Use(mw.NewRequestID())

	if s.metrics != nil {
		s.echo.Use(mw.NewMetrics(s.metrics.HTTP))
	}

	s.echo.Use(mw.NewRequestLoggerWithSkipper(s.slogger, func(c echo.Context) bool {
		// Scrapes would drown the request log
		return c.Path() == "/metrics"
	}))

	securityConfig := mw.DefaultSecurityConfig()
	securityConfig.AllowedOrigins = s.config.AllowedOrigins
	if !s.config.TLSEnabled {
		securityConfig.HSTSMaxAge = 0
	}

	s.echo.Use(mw.NewCORS(securityConfig))
	s.echo.Use(mw.NewBodyLimit(s.config.BodyLimit))
	s.echo.Use(echomw.GzipWithConfig(echomw.GzipConfig{
		Skipper: func(c echo.Context) bool {
			// PNG renders are already compressed
			return strings.HasSuffix(c.Path(), "/image")
		},
	}))
	s.echo.Use(mw.NewSecureHeaders(securityConfig))
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() error {
	s.echo.GET("/health", s.healthCheck)

	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}

	var controllerOpts []v1.Option
	controllerOpts = append(controllerOpts, v1.WithLogger(s.slogger))
	if s.metrics != nil {
		controllerOpts = append(controllerOpts, v1.WithMetrics(s.metrics.HTTP))
	}
	apiController, err := v1.New(s.echo, s.settings, s.catalog, s.runner, s.store, controllerOpts...)
	if err != nil {
		return fmt.Errorf("failed to initialize API v1: %w", err)
	}
	s.apiController = apiController

	s.spaHandler = NewSPAHandler(s.config.DevMode, s.config.DevModePath, s.slogger)
	s.echo.GET("/", s.spaHandler.ServeApp)
	s.echo.GET("/ui", s.spaHandler.ServeApp)
	s.echo.GET("/ui/*", s.spaHandler.ServeApp)

	s.slogger.Info("Routes initialized",
		"api_version", "v1",
		"dashboard", s.spaHandler.DevModeStatus(),
		"metrics", s.metrics != nil,
	)

	return nil
}

// handleHTTPError renders framework errors (unknown routes, body limit,
// panics) as the same JSON error body the API handlers use.
func (s *Server) handleHTTPError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	message := http.StatusText(code)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if m, ok := he.Message.(string); ok {
			message = m
		} else {
			message = http.StatusText(code)
		}
		if he.Internal != nil {
			err = he.Internal
		}
	}

	if code >= http.StatusInternalServerError {
		s.slogger.Error("Unhandled server error", "error", err, "path", c.Request().URL.Path)
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	if jsonErr := c.JSON(code, v1.NewErrorResponse(err, message, code)); jsonErr != nil {
		s.slogger.Error("Failed to write error response", "error", jsonErr)
	}
}

// healthCheck handles the server health check endpoint.
func (s *Server) healthCheck(c echo.Context) error {
	uptime := time.Since(s.startTime)

	return c.JSON(http.StatusOK, map[string]any{
		"status":         "healthy",
		"version":        s.settings.Version,
		"build_date":     s.settings.BuildDate,
		"uptime":         uptime.String(),
		"uptime_seconds": uptime.Seconds(),
		"timestamp":      time.Now().Format(time.RFC3339),
	})
}

// Start begins serving HTTP requests in a background goroutine and returns
// immediately. Serve errors are delivered on Errors().
func (s *Server) Start() {
	go func() {
		if err := s.startBlocking(); err != nil {
			s.slogger.Error("Server error", "error", err)
			s.errCh <- err
		}
	}()

	addr := s.config.Address()
	switch {
	case s.config.AutoTLS:
		logging.Info("HTTPS server starting with AutoTLS", "address", addr, "host", s.config.AutoTLSHost)
	case s.config.TLSEnabled:
		logging.Info("HTTPS server starting", "address", addr)
	default:
		logging.Info("HTTP server starting", "address", addr)
	}
}

// Errors reports a failure of the listener started by Start.
func (s *Server) Errors() <-chan error {
	return s.errCh
}

// startBlocking begins serving HTTP requests and blocks until the server is shut down.
func (s *Server) startBlocking() error {
	addr := s.config.Address()

	var err error
	switch {
	case s.config.AutoTLS:
		err = s.echo.StartAutoTLS(addr)
	case s.config.TLSEnabled:
		err = s.echo.StartTLS(addr, s.config.TLSCertFile, s.config.TLSKeyFile)
	default:
		err = s.echo.Start(addr)
	}

	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// StartWithGracefulShutdown starts the server and shuts it down on SIGINT/SIGTERM
// or when ctx is cancelled.
func (s *Server) StartWithGracefulShutdown(ctx context.Context) error {
	s.Start()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		logging.Info("Shutdown signal received, initiating graceful shutdown")
	case err := <-s.errCh:
		_ = s.Shutdown()
		return err
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := s.echo.Shutdown(ctx); err != nil {
		s.slogger.Error("Error during server shutdown", "error", err)
		return fmt.Errorf("shutdown error: %w", err)
	}

	s.slogger.Info("Server shutdown complete")
	logging.Info("Server shutdown complete")

	return s.closeLog()
}

func (s *Server) closeLog() error {
	if s.logCloser == nil {
		return nil
	}
	closer := s.logCloser
	s.logCloser = nil
	return closer()
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// APIController returns the v1 API controller.
func (s *Server) APIController() *v1.Controller {
	return s.apiController
}

// Config returns the effective server configuration.
func (s *Server) Config() *Config {
	return s.config
}

func (s *Server) detectorMetrics() *metrics.DetectorMetrics {
	if s.metrics == nil {
		return nil
	}
	return s.metrics.Detector
}
