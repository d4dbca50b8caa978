// Package api provides the HTTP server infrastructure for visiondash.
// This package contains the server, middleware wiring and the dashboard shell
// while the JSON endpoints live in the v1 subpackage.
package api

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/tphakala/visiondash/internal/conf"
	"github.com/tphakala/visiondash/internal/logging"
)

// Default constants for the HTTP server.
const (
	DefaultReadTimeout     = 60 * time.Second
	DefaultWriteTimeout    = 90 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 10 * time.Second

	// DefaultLogFile is the server log file name inside the log directory.
	DefaultLogFile = "server.log"

	// DefaultCertCacheDir stores AutoTLS certificates when none is configured.
	DefaultCertCacheDir = "certs"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Server binding
	Host string // Host to bind to (empty for all interfaces)
	Port string // Port to listen on

	// TLS configuration
	TLSEnabled   bool   // Enable TLS
	AutoTLS      bool   // Use Let's Encrypt automatic TLS
	AutoTLSHost  string // Public host name the certificate is issued for
	CertCacheDir string // AutoTLS certificate cache
	TLSCertFile  string // Path to TLS certificate file (manual TLS)
	TLSKeyFile   string // Path to TLS key file (manual TLS)

	AllowedOrigins []string // CORS allowed origins

	// Timeouts
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Limits
	BodyLimit string // Maximum request body size (e.g., "10M")

	// Logging
	Debug    bool
	LogLevel slog.Level
	LogPath  string         // request log file
	Log      conf.LogConfig // rotation settings for LogPath
	LogFile  bool           // false disables the request log file

	// Development mode serves the dashboard from DevModePath instead of the embedded copy
	DevMode     bool
	DevModePath string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Port:            "8080",
		AllowedOrigins:  []string{"*"},
		CertCacheDir:    DefaultCertCacheDir,
		ReadTimeout:     DefaultReadTimeout,
		WriteTimeout:    DefaultWriteTimeout,
		IdleTimeout:     DefaultIdleTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
		BodyLimit:       "10M",
		LogLevel:        slog.LevelInfo,
		LogPath:         filepath.Join("logs", DefaultLogFile),
	}
}

// ConfigFromSettings creates a Config from the application settings.
func ConfigFromSettings(settings *conf.Settings) *Config {
	cfg := DefaultConfig()
	ws := settings.WebServer

	if ws.Port != "" {
		cfg.Port = ws.Port
	}
	if ws.BodyLimit != "" {
		cfg.BodyLimit = ws.BodyLimit
	}
	if len(ws.AllowedOrigins) > 0 {
		cfg.AllowedOrigins = ws.AllowedOrigins
	}

	cfg.AutoTLS = ws.AutoTLS
	cfg.AutoTLSHost = ws.Host
	if ws.CertCacheDir != "" {
		cfg.CertCacheDir = ws.CertCacheDir
	}
	cfg.TLSCertFile = ws.TLSCertFile
	cfg.TLSKeyFile = ws.TLSKeyFile
	cfg.TLSEnabled = ws.AutoTLS || (ws.TLSCertFile != "" && ws.TLSKeyFile != "")

	// Detection runs wait on vendors, keep the write deadline above the call timeout
	if timeout := settings.Detection.Timeout; timeout > 0 && cfg.WriteTimeout < timeout+DefaultShutdownTimeout {
		cfg.WriteTimeout = timeout + DefaultShutdownTimeout
	}

	cfg.Log = settings.Main.Log
	cfg.LogFile = settings.Main.Log.Enabled
	if settings.Main.Log.Path != "" {
		cfg.LogPath = filepath.Join(settings.Main.Log.Path, DefaultLogFile)
	}
	cfg.LogLevel = logging.ParseLevel(settings.Main.Log.Level)

	cfg.Debug = ws.Debug || settings.Debug
	if cfg.Debug {
		cfg.LogLevel = slog.LevelDebug
	}

	return cfg
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port is required")
	}

	if c.AutoTLS && c.AutoTLSHost == "" {
		return fmt.Errorf("AutoTLS enabled but no host configured")
	}
	if c.TLSEnabled && !c.AutoTLS {
		if c.TLSCertFile == "" || c.TLSKeyFile == "" {
			return fmt.Errorf("TLS enabled but certificate or key file not specified")
		}
	}

	if c.ReadTimeout <= 0 {
		return fmt.Errorf("read timeout must be positive")
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("write timeout must be positive")
	}

	return nil
}

// Address returns the full address string for the server to listen on.
func (c *Config) Address() string {
	if c.Host == "" {
		return ":" + c.Port
	}
	return c.Host + ":" + c.Port
}

// String returns a human-readable representation of the config.
func (c *Config) String() string {
	tlsStatus := "disabled"
	if c.AutoTLS {
		tlsStatus = "auto (Let's Encrypt)"
	} else if c.TLSEnabled {
		tlsStatus = "manual"
	}

	return fmt.Sprintf("Server Config: address=%s, tls=%s, debug=%v",
		c.Address(), tlsStatus, c.Debug)
}
