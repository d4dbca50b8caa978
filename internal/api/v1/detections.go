package api

import (
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/visiondash/internal/aggregator"
	"github.com/tphakala/visiondash/internal/analytics"
	"github.com/tphakala/visiondash/internal/detection"
	"github.com/tphakala/visiondash/internal/errors"
	"github.com/tphakala/visiondash/internal/imaging"
	"github.com/tphakala/visiondash/internal/observability/metrics"
	"github.com/tphakala/visiondash/internal/runstore"
)

// Form fields accepted by CreateDetectionRun.
const (
	formImage     = "image"
	formServices  = "services"
	formThreshold = "threshold"
)

var errUploadTooLarge = errors.NewStd("image upload too large")

// RunLinks points at the derived resources of a run.
type RunLinks struct {
	Self      string `json:"self"`
	CSV       string `json:"csv"`
	Analytics string `json:"analytics"`
	Image     string `json:"image"`
}

// RunResponse is the API view of a stored run.
type RunResponse struct {
	ID         string                `json:"id"`
	CreatedAt  time.Time             `json:"createdAt"`
	Image      imaging.Info          `json:"image"`
	Threshold  float64               `json:"threshold"`
	DurationMs int64                 `json:"durationMs"`
	Detections []detection.Detection `json:"detections"`
	Services   []aggregator.Outcome  `json:"services"`
	Summary    analytics.Summary     `json:"summary"`
	Links      RunLinks              `json:"links"`
}

func newRunResponse(run *runstore.Run) RunResponse {
	base := Prefix + "/runs/" + run.ID
	return RunResponse{
		ID:         run.ID,
		CreatedAt:  run.CreatedAt,
		Image:      run.Image,
		Threshold:  run.Report.Threshold,
		DurationMs: run.Report.Duration.Milliseconds(),
		Detections: run.Report.Detections,
		Services:   run.Report.Outcomes,
		Summary:    analytics.Summarize(run.Results()),
		Links: RunLinks{
			Self:      base,
			CSV:       base + "/detections.csv",
			Analytics: base + "/analytics",
			Image:     base + "/image",
		},
	}
}

// CreateDetectionRun handles POST /api/v1/detections. It reads the uploaded
// image, runs the requested services and stores the run.
func (c *Controller) CreateDetectionRun(ctx echo.Context) (err error) {
	start := time.Now()
	defer func() { c.observe(metrics.OpCreateRun, start, err) }()

	data, info, err := readUpload(ctx)
	if err != nil {
		code := statusFor(err)
		if errors.Is(err, errUploadTooLarge) {
			code = http.StatusRequestEntityTooLarge
		}
		return c.HandleError(ctx, err, "Invalid image upload", code)
	}

	threshold, err := parseThreshold(ctx.FormValue(formThreshold), c.defaultThreshold())
	if err != nil {
		return c.HandleError(ctx, err, "Invalid threshold", http.StatusBadRequest)
	}

	params, err := ctx.FormParams()
	if err != nil {
		return c.HandleError(ctx, err, "Failed to parse form", http.StatusBadRequest)
	}
	services := parseServices(params[formServices])

	report, err := c.runner.Run(ctx.Request().Context(), data, services, threshold)
	if err != nil {
		return c.HandleError(ctx, err, "Detection run failed", statusFor(err))
	}

	run := runstore.NewRun(report, info, data)
	c.store.Save(run)

	c.apiLogger.Info("detection run stored",
		"run_id", run.ID,
		"image_format", info.Format,
		"image_bytes", info.Size,
		"detections", len(report.Detections),
		"failed_services", len(report.Failed()))

	return ctx.JSON(http.StatusCreated, newRunResponse(run))
}

// readUpload returns the bytes and info of the multipart image field.
func readUpload(ctx echo.Context) ([]byte, imaging.Info, error) {
	fh, err := ctx.FormFile(formImage)
	if err != nil {
		return nil, imaging.Info{}, errors.New(err).
			Component("api").
			Category(errors.CategoryValidation).
			Context("field", formImage).
			Build()
	}
	if fh.Size > imaging.MaxUploadBytes {
		return nil, imaging.Info{}, errors.New(fmt.Errorf("%w: %d bytes exceeds %d", errUploadTooLarge, fh.Size, imaging.MaxUploadBytes)).
			Component("api").
			Category(errors.CategoryValidation).
			Context("size", fh.Size).
			Build()
	}

	src, err := fh.Open()
	if err != nil {
		return nil, imaging.Info{}, errors.New(err).
			Component("api").
			Category(errors.CategoryFileIO).
			Context("operation", "open_upload").
			Build()
	}
	defer func() { _ = src.Close() }()

	data, err := io.ReadAll(io.LimitReader(src, imaging.MaxUploadBytes+1))
	if err != nil {
		return nil, imaging.Info{}, errors.New(err).
			Component("api").
			Category(errors.CategoryFileIO).
			Context("operation", "read_upload").
			Build()
	}

	info, err := imaging.Validate(data)
	if err != nil {
		return nil, imaging.Info{}, err
	}
	return data, info, nil
}

// parseServices flattens repeated and comma separated service names.
func parseServices(values []string) []string {
	var services []string
	for _, v := range values {
		for name := range strings.SplitSeq(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				services = append(services, name)
			}
		}
	}
	return services
}

// parseThreshold parses a confidence threshold in [0,1], returning def for an empty value.
func parseThreshold(raw string, def float64) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	t, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(t) || t < 0 || t > 1 {
		return 0, errors.Newf("threshold must be a number between 0 and 1, got %q", raw).
			Component("api").
			Category(errors.CategoryValidation).
			Build()
	}
	return t, nil
}
