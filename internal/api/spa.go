package api

import (
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/visiondash/frontend"
)

// SPA handler constants
const (
	// indexHTMLPath is the dashboard shell within the dist directory
	indexHTMLPath = "index.html"

	// cacheControlNoCache disables caching for the HTML shell
	cacheControlNoCache = "no-cache, no-store, must-revalidate"
)

// SPAHandler serves the dashboard HTML shell. The shell talks to /api/v1.
type SPAHandler struct {
	devMode     bool
	devModePath string
	dist        fs.FS
	logger      *slog.Logger
}

// NewSPAHandler creates a new SPA handler.
// devMode serves index.html from devModePath on every request instead of the embedded copy.
func NewSPAHandler(devMode bool, devModePath string, logger *slog.Logger) *SPAHandler {
	return &SPAHandler{
		devMode:     devMode,
		devModePath: devModePath,
		dist:        frontend.DistFS,
		logger:      logger,
	}
}

// ServeApp serves the dashboard shell for all frontend routes.
func (h *SPAHandler) ServeApp(c echo.Context) error {
	content, err := h.readIndex()
	if err != nil {
		h.logger.Error("Failed to load dashboard shell", "error", err, "mode", h.DevModeStatus())
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load page")
	}

	c.Response().Header().Set(echo.HeaderCacheControl, cacheControlNoCache)
	c.Response().Header().Set("Pragma", "no-cache")
	c.Response().Header().Set("Expires", "0")

	return c.HTMLBlob(http.StatusOK, content)
}

func (h *SPAHandler) readIndex() ([]byte, error) {
	if !h.devMode {
		return fs.ReadFile(h.dist, indexHTMLPath)
	}

	// os.OpenRoot keeps reads inside the dist directory
	root, err := os.OpenRoot(h.devModePath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = root.Close() }()

	file, err := root.Open(indexHTMLPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	return io.ReadAll(file)
}

// DevModeStatus returns a human-readable status of the SPA handler mode.
func (h *SPAHandler) DevModeStatus() string {
	if h.devMode {
		return "Dev mode (disk): " + filepath.Join(h.devModePath, indexHTMLPath)
	}
	return "Production mode (embedded)"
}
