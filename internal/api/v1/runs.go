package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/visiondash/internal/analytics"
	"github.com/tphakala/visiondash/internal/detection"
	"github.com/tphakala/visiondash/internal/errors"
	"github.com/tphakala/visiondash/internal/imaging"
	"github.com/tphakala/visiondash/internal/observability/metrics"
	"github.com/tphakala/visiondash/internal/runstore"
)

const (
	contentTypeCSV = "text/csv; charset=utf-8"
	contentTypePNG = "image/png"

	// sourceAll selects detections from every service.
	sourceAll = "all"
)

// loadRun resolves the :id path parameter to a stored run.
func (c *Controller) loadRun(ctx echo.Context) (*runstore.Run, error) {
	id := strings.TrimSpace(ctx.Param("id"))
	if id == "" {
		return nil, errors.Newf("run id is required").
			Component("api").
			Category(errors.CategoryValidation).
			Build()
	}
	return c.store.Get(id)
}

// parseSourceFilter reads the optional ?source= query. Empty and "all" mean every service.
func parseSourceFilter(raw string) (detection.Source, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, sourceAll) {
		return "", nil
	}
	source, err := detection.ParseSource(raw)
	if err != nil {
		return "", errors.New(err).
			Component("api").
			Category(errors.CategoryValidation).
			Context("source", raw).
			Build()
	}
	return source, nil
}

// GetRun handles GET /api/v1/runs/:id
func (c *Controller) GetRun(ctx echo.Context) error {
	run, err := c.loadRun(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Run not available", statusFor(err))
	}
	return ctx.JSON(http.StatusOK, newRunResponse(run))
}

// ExportRunCSV handles GET /api/v1/runs/:id/detections.csv
func (c *Controller) ExportRunCSV(ctx echo.Context) (err error) {
	start := time.Now()
	defer func() { c.observe(metrics.OpExportCSV, start, err) }()

	run, err := c.loadRun(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Run not available", statusFor(err))
	}
	source, err := parseSourceFilter(ctx.QueryParam("source"))
	if err != nil {
		return c.HandleError(ctx, err, "Invalid source", http.StatusBadRequest)
	}

	var buf bytes.Buffer
	if err = analytics.WriteCSV(&buf, run.Detections(source)); err != nil {
		return c.HandleError(ctx, err, "Failed to export detections", http.StatusInternalServerError)
	}

	ctx.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=%q", csvFilename(run.ID, source)))
	return ctx.Blob(http.StatusOK, contentTypeCSV, buf.Bytes())
}

func csvFilename(runID string, source detection.Source) string {
	if source == "" {
		return "detections_" + runID + ".csv"
	}
	return fmt.Sprintf("detections_%s_%s.csv", strings.ToLower(string(source)), runID)
}

// GetRunAnalytics handles GET /api/v1/runs/:id/analytics
func (c *Controller) GetRunAnalytics(ctx echo.Context) (err error) {
	start := time.Now()
	defer func() { c.observe(metrics.OpAnalytics, start, err) }()

	run, err := c.loadRun(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Run not available", statusFor(err))
	}
	return ctx.JSON(http.StatusOK, analytics.Analyze(run.Results()))
}

// GetRunImage handles GET /api/v1/runs/:id/image. It returns the upload
// resized for display with the selected detections drawn on it.
func (c *Controller) GetRunImage(ctx echo.Context) (err error) {
	start := time.Now()
	defer func() { c.observe(metrics.OpRenderImage, start, err) }()

	run, err := c.loadRun(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Run not available", statusFor(err))
	}
	source, err := parseSourceFilter(ctx.QueryParam("source"))
	if err != nil {
		return c.HandleError(ctx, err, "Invalid source", http.StatusBadRequest)
	}

	maxW, maxH := c.displaySize()
	png, err := imaging.Render(run.ImageBytes(), run.Detections(source), maxW, maxH)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to render image", http.StatusInternalServerError)
	}

	ctx.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=300")
	return ctx.Blob(http.StatusOK, contentTypePNG, png)
}

func (c *Controller) displaySize() (width, height int) {
	width, height = c.Settings.Detection.DisplayWidth, c.Settings.Detection.DisplayHeight
	if width <= 0 {
		width = imaging.DisplayWidth
	}
	if height <= 0 {
		height = imaging.DisplayHeight
	}
	return width, height
}
