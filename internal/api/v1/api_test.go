package api

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/visiondash/internal/analytics"
	"github.com/tphakala/visiondash/internal/detection"
	"github.com/tphakala/visiondash/internal/errors"
	"github.com/tphakala/visiondash/internal/observability/metrics"
)

func TestNew_RequiresDependencies(t *testing.T) {
	t.Parallel()

	_, err := New(echo.New(), nil, configuredCatalog(), &stubRunner{}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()
	env := setupTestEnvironment(t)

	rec := env.serve(httptest.NewRequest(http.MethodGet, Prefix+"/health", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON)

	var response map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, "healthy", response["status"])
	assert.Equal(t, "1.2.3", response["version"])
	assert.Equal(t, "2024-05-01", response["build_date"])
	assert.InDelta(t, 1, response["configured_services"], 0)
	assert.Contains(t, response, "uptime_seconds")
}

func TestHealthCheck_DegradedWithoutServices(t *testing.T) {
	t.Parallel()
	env := setupTestEnvironment(t)
	env.controller.catalog = &stubCatalog{}

	rec := env.serve(httptest.NewRequest(http.MethodGet, Prefix+"/health", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"degraded"`)
}

func TestGetServices(t *testing.T) {
	t.Parallel()
	env := setupTestEnvironment(t)

	rec := env.serve(httptest.NewRequest(http.MethodGet, Prefix+"/services", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ServicesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Services, 2)
	assert.Equal(t, []detection.Source{detection.SourceAzure}, resp.Available)
	assert.InDelta(t, 0.5, resp.Threshold, 1e-9)
	assert.Equal(t, "missing GOOGLE_PROJECT_ID", resp.Services[1].Reason)
}

func TestCreateDetectionRun_Success(t *testing.T) {
	t.Parallel()
	env := setupTestEnvironment(t)
	img := testPNG(t, 64, 48)

	rec := env.serve(uploadRequest(t, img, map[string][]string{
		formServices:  {"azure, google"},
		formThreshold: {"0.6"},
	}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	assert.Equal(t, 1, env.runner.calls)
	assert.Equal(t, img, env.runner.image)
	assert.Equal(t, []string{"azure", "google"}, env.runner.requested)
	assert.InDelta(t, 0.6, env.runner.threshold, 1e-9)

	var resp RunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "run-123", resp.ID)
	assert.Equal(t, 64, resp.Image.Width)
	assert.Equal(t, 48, resp.Image.Height)
	assert.Equal(t, "png", resp.Image.Format)
	assert.Len(t, resp.Detections, 2)
	require.Len(t, resp.Services, 2)
	assert.Equal(t, detection.KindNetworkFailure, resp.Services[1].Kind)
	assert.Equal(t, 2, resp.Summary.TotalDetections)
	assert.Equal(t, int64(150), resp.DurationMs)
	assert.Equal(t, Prefix+"/runs/run-123/detections.csv", resp.Links.CSV)

	run, err := env.store.Get("run-123")
	require.NoError(t, err)
	assert.Equal(t, img, run.ImageBytes())
	assert.Equal(t, 64, run.Results()[0].ImageWidth, "results record the image size")
}

func TestCreateDetectionRun_RepeatedServicesAndDefaultThreshold(t *testing.T) {
	t.Parallel()
	env := setupTestEnvironment(t)
	env.settings.Detection.Threshold = 0.35

	rec := env.serve(uploadRequest(t, testPNG(t, 8, 8), map[string][]string{
		formServices: {"Azure", " ", "google"},
	}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	assert.Equal(t, []string{"Azure", "google"}, env.runner.requested)
	assert.InDelta(t, 0.35, env.runner.threshold, 1e-9)
}

func TestCreateDetectionRun_NoServicesRequestedSelectsAll(t *testing.T) {
	t.Parallel()
	env := setupTestEnvironment(t)

	rec := env.serve(uploadRequest(t, testPNG(t, 8, 8), nil))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Empty(t, env.runner.requested)
}

func TestCreateDetectionRun_InvalidUploads(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		image []byte
	}{
		{"missing image field", nil},
		{"empty image", []byte{}},
		{"not an image", []byte("definitely not a picture")},
		{"too many pixels", oversizedPNG(t)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			env := setupTestEnvironment(t)

			rec := env.serve(uploadRequest(t, tt.image, nil))
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			resp := decodeError(t, rec)
			assert.Equal(t, "Invalid image upload", resp.Message)
			assert.Equal(t, http.StatusBadRequest, resp.Code)
			assert.Len(t, resp.CorrelationID, 8)
			assert.Zero(t, env.runner.calls, "runner must not be called")
		})
	}
}

func TestCreateDetectionRun_InvalidThreshold(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"abc", "-0.1", "1.5", "NaN"} {
		t.Run(raw, func(t *testing.T) {
			t.Parallel()
			env := setupTestEnvironment(t)

			rec := env.serve(uploadRequest(t, testPNG(t, 8, 8), map[string][]string{formThreshold: {raw}}))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "Invalid threshold", decodeError(t, rec).Message)
			assert.Zero(t, env.runner.calls)
		})
	}
}

func TestCreateDetectionRun_RunnerErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		wantCode int
		wantKind detection.ErrorKind
	}{
		{
			name: "no services configured",
			err: errors.Newf("no requested detection service is configured").
				Category(errors.CategoryNoServices).Build(),
			wantCode: http.StatusUnprocessableEntity,
			wantKind: detection.KindNoServicesConfigured,
		},
		{
			name: "unknown service",
			err: errors.Newf(`unknown detection service "aws"`).
				Category(errors.CategoryValidation).Build(),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "unexpected failure",
			err:      errors.NewStd("boom"),
			wantCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			env := setupTestEnvironment(t)
			env.runner.err = tt.err

			rec := env.serve(uploadRequest(t, testPNG(t, 8, 8), nil))
			assert.Equal(t, tt.wantCode, rec.Code)

			resp := decodeError(t, rec)
			assert.Equal(t, tt.wantKind, resp.Kind)
			assert.Equal(t, "Detection run failed", resp.Message)
			assert.Zero(t, env.store.Len(), "failed runs are not stored")
		})
	}
}

func TestCreateDetectionRun_ScrubsSecretsFromErrors(t *testing.T) {
	t.Parallel()
	env := setupTestEnvironment(t)
	env.runner.err = errors.NewStd("upstream rejected Prediction-Key: abc123secret")

	rec := env.serve(uploadRequest(t, testPNG(t, 8, 8), nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	resp := decodeError(t, rec)
	assert.NotContains(t, resp.Error, "abc123secret")
	assert.Contains(t, resp.Error, "[REDACTED]")
}

func TestCreateDetectionRun_RecordsHandlerMetrics(t *testing.T) {
	t.Parallel()
	env := setupTestEnvironment(t)

	reg := prometheus.NewRegistry()
	m, err := metrics.NewHTTPMetrics(reg)
	require.NoError(t, err)
	env.controller.metrics = m

	rec := env.serve(uploadRequest(t, testPNG(t, 8, 8), nil))
	require.Equal(t, http.StatusCreated, rec.Code)

	count, err := testutil.GatherAndCount(reg, "http_handler_operations_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestGetRun(t *testing.T) {
	t.Parallel()
	env := setupTestEnvironment(t)
	env.saveSampleRun(t)

	rec := env.serve(httptest.NewRequest(http.MethodGet, Prefix+"/runs/run-123", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp RunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "run-123", resp.ID)
	assert.Equal(t, 40, resp.Image.Width)
	assert.Len(t, resp.Detections, 2)
}

func TestRunEndpoints_NotFound(t *testing.T) {
	t.Parallel()
	env := setupTestEnvironment(t)

	for _, path := range []string{
		"/runs/missing",
		"/runs/missing/detections.csv",
		"/runs/missing/analytics",
		"/runs/missing/image",
	} {
		t.Run(path, func(t *testing.T) {
			rec := env.serve(httptest.NewRequest(http.MethodGet, Prefix+path, http.NoBody))
			assert.Equal(t, http.StatusNotFound, rec.Code)
			assert.Equal(t, "Run not available", decodeError(t, rec).Message)
		})
	}
}

func TestExportRunCSV(t *testing.T) {
	t.Parallel()
	env := setupTestEnvironment(t)
	env.saveSampleRun(t)

	rec := env.serve(httptest.NewRequest(http.MethodGet, Prefix+"/runs/run-123/detections.csv", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, contentTypeCSV, rec.Header().Get(echo.HeaderContentType))
	assert.Equal(t, `attachment; filename="detections_run-123.csv"`, rec.Header().Get(echo.HeaderContentDisposition))

	records, err := csv.NewReader(bytes.NewReader(rec.Body.Bytes())).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, analytics.CSVHeader, records[0])
	assert.Equal(t, []string{"cat", "0.9", "0.1", "0.2", "0.3", "0.4", "Azure"}, records[1])
	assert.Equal(t, "dog, small", records[2][0])
}

func TestExportRunCSV_SourceFilter(t *testing.T) {
	t.Parallel()
	env := setupTestEnvironment(t)
	env.saveSampleRun(t)

	rec := env.serve(httptest.NewRequest(http.MethodGet, Prefix+"/runs/run-123/detections.csv?source=google", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename="detections_google_run-123.csv"`, rec.Header().Get(echo.HeaderContentDisposition))
	assert.Equal(t, strings.Join(analytics.CSVHeader, ",")+"\n", rec.Body.String())

	rec = env.serve(httptest.NewRequest(http.MethodGet, Prefix+"/runs/run-123/detections.csv?source=aws", http.NoBody))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetRunAnalytics(t *testing.T) {
	t.Parallel()
	env := setupTestEnvironment(t)
	env.saveSampleRun(t)

	rec := env.serve(httptest.NewRequest(http.MethodGet, Prefix+"/runs/run-123/analytics", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)

	var report analytics.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, 1, report.Summary.TotalServices)
	assert.Equal(t, 2, report.Summary.TotalDetections)
	assert.Equal(t, 2, report.Summary.ConfidenceBands.High)
	assert.Len(t, report.Histogram, analytics.HistogramBins)
	require.Len(t, report.Services, 1)
	assert.Equal(t, detection.SourceAzure, report.Services[0].Source)
}

func TestGetRunImage(t *testing.T) {
	t.Parallel()
	env := setupTestEnvironment(t)
	env.saveSampleRun(t)

	for _, source := range []string{"", "all", "Azure", "google"} {
		t.Run("source="+source, func(t *testing.T) {
			rec := env.serve(httptest.NewRequest(http.MethodGet, Prefix+"/runs/run-123/image?source="+source, http.NoBody))
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, contentTypePNG, rec.Header().Get(echo.HeaderContentType))

			cfg, err := png.DecodeConfig(bytes.NewReader(rec.Body.Bytes()))
			require.NoError(t, err)
			assert.Equal(t, 40, cfg.Width, "small images are not upscaled")
			assert.Equal(t, 30, cfg.Height)
		})
	}

	rec := env.serve(httptest.NewRequest(http.MethodGet, Prefix+"/runs/run-123/image?source=aws", http.NoBody))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetRunImage_ResizesToDisplaySize(t *testing.T) {
	t.Parallel()
	env := setupTestEnvironment(t)
	env.settings.Detection.DisplayWidth = 20
	env.settings.Detection.DisplayHeight = 20
	env.saveSampleRun(t)

	rec := env.serve(httptest.NewRequest(http.MethodGet, Prefix+"/runs/run-123/image", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)

	cfg, err := png.DecodeConfig(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Width)
	assert.Equal(t, 15, cfg.Height)
}

func TestParseServices(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		values []string
		want   []string
	}{
		{"none", nil, nil},
		{"single", []string{"azure"}, []string{"azure"}},
		{"comma separated", []string{"azure,google"}, []string{"azure", "google"}},
		{"repeated with blanks", []string{" azure ", "", "google, "}, []string{"azure", "google"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, parseServices(tt.values))
		})
	}
}

func TestParseThreshold(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw     string
		want    float64
		wantErr bool
	}{
		{"", 0.5, false},
		{"0", 0, false},
		{"1", 1, false},
		{" 0.25 ", 0.25, false},
		{"1.01", 0, true},
		{"-1", 0, true},
		{"NaN", 0, true},
		{"high", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			t.Parallel()
			got, err := parseThreshold(tt.raw, 0.5)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestStatusFor(t *testing.T) {
	t.Parallel()

	build := func(c errors.ErrorCategory) error {
		return errors.Newf("test").Category(c).Build()
	}
	assert.Equal(t, http.StatusBadRequest, statusFor(build(errors.CategoryValidation)))
	assert.Equal(t, http.StatusBadRequest, statusFor(build(errors.CategoryImageDecode)))
	assert.Equal(t, http.StatusNotFound, statusFor(build(errors.CategoryNotFound)))
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(build(errors.CategoryNoServices)))
	assert.Equal(t, http.StatusGatewayTimeout, statusFor(build(errors.CategoryTimeout)))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.NewStd("plain")))
}
