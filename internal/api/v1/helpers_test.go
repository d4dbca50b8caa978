package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/visiondash/internal/aggregator"
	"github.com/tphakala/visiondash/internal/conf"
	"github.com/tphakala/visiondash/internal/detection"
	"github.com/tphakala/visiondash/internal/detector"
	"github.com/tphakala/visiondash/internal/errors"
	"github.com/tphakala/visiondash/internal/imaging"
	"github.com/tphakala/visiondash/internal/runstore"
	"github.com/tphakala/visiondash/internal/testutil"
)

// stubCatalog returns fixed service statuses.
type stubCatalog struct {
	statuses []detector.ServiceStatus
}

func (s *stubCatalog) Statuses() []detector.ServiceStatus { return s.statuses }

func configuredCatalog() *stubCatalog {
	return &stubCatalog{statuses: []detector.ServiceStatus{
		{Source: detection.SourceAzure, Name: detection.SourceAzure.DisplayName(), Configured: true},
		{Source: detection.SourceGoogle, Name: detection.SourceGoogle.DisplayName(), Reason: "missing GOOGLE_PROJECT_ID"},
	}}
}

// stubRunner records its inputs and returns a canned report or error.
type stubRunner struct {
	mu        sync.Mutex
	calls     int
	image     []byte
	requested []string
	threshold float64

	err error
}

func (r *stubRunner) Run(_ context.Context, img []byte, requested []string, threshold float64) (*aggregator.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.image = img
	r.requested = requested
	r.threshold = threshold
	if r.err != nil {
		return nil, r.err
	}
	return sampleReport(threshold), nil
}

// sampleReport has two Azure detections and a failed Google call.
func sampleReport(threshold float64) *aggregator.Report {
	azure := detection.NewResult(detection.SourceAzure, []detection.Detection{
		{Label: "cat", Confidence: 0.9, Box: detection.Box{Left: 0.1, Top: 0.2, Width: 0.3, Height: 0.4}, Source: detection.SourceAzure},
		{Label: "dog, small", Confidence: 0.75, Box: detection.Box{Left: 0.5, Top: 0.5, Width: 0.2, Height: 0.2}, Source: detection.SourceAzure},
	}, threshold)
	azure.ProcessingTime = 120 * time.Millisecond

	return &aggregator.Report{
		ID:         "run-123",
		CreatedAt:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Threshold:  threshold,
		Detections: azure.Detections,
		Outcomes: []aggregator.Outcome{
			{Source: detection.SourceAzure, Service: azure.Service, Result: azure},
			{
				Source:  detection.SourceGoogle,
				Service: detection.SourceGoogle.DisplayName(),
				Kind:    detection.KindNetworkFailure,
				Message: "vendor returned HTTP 503",
				Err:     errTest,
			},
		},
		Duration: 150 * time.Millisecond,
	}
}

var errTest = errors.NewStd("vendor returned HTTP 503")

func imageInfo(w, h, size int) imaging.Info {
	return imaging.Info{Width: w, Height: h, Format: "png", Size: size}
}

// testEnv bundles a controller with its collaborators.
type testEnv struct {
	echo       *echo.Echo
	controller *Controller
	runner     *stubRunner
	store      *runstore.Store
	settings   *conf.Settings
}

func setupTestEnvironment(t *testing.T) *testEnv {
	t.Helper()

	settings := &conf.Settings{
		Detection: conf.DetectionSettings{Threshold: 0.5},
		Version:   "1.2.3",
		BuildDate: "2024-05-01",
	}
	e := echo.New()
	runner := &stubRunner{}
	store := runstore.New(time.Minute, nil)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	controller, err := New(e, settings, configuredCatalog(), runner, store, WithLogger(logger))
	require.NoError(t, err)

	return &testEnv{echo: e, controller: controller, runner: runner, store: store, settings: settings}
}

// serve routes req through echo so path parameters and routing apply.
func (env *testEnv) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	env.echo.ServeHTTP(rec, req)
	return rec
}

// testPNG encodes a w x h image.
func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	return testutil.PNG(t, w, h)
}

// uploadRequest builds a multipart POST to /api/v1/detections.
func uploadRequest(t *testing.T, imageData []byte, fields map[string][]string) *http.Request {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if imageData != nil {
		part, err := writer.CreateFormFile(formImage, "upload.png")
		require.NoError(t, err)
		_, err = part.Write(imageData)
		require.NoError(t, err)
	}
	for name, values := range fields {
		for _, v := range values {
			require.NoError(t, writer.WriteField(name, v))
		}
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, Prefix+"/detections", &body)
	req.Header.Set(echo.HeaderContentType, writer.FormDataContentType())
	return req
}

// saveSampleRun stores the sample report under run-123.
func (env *testEnv) saveSampleRun(t *testing.T) *runstore.Run {
	t.Helper()
	data := testPNG(t, 40, 30)
	run := runstore.NewRun(sampleReport(0.5), imageInfo(40, 30, len(data)), data)
	env.store.Save(run)
	return run
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

// oversizedPNG declares a 30000x30000 canvas in a few dozen bytes.
func oversizedPNG(t *testing.T) []byte {
	t.Helper()
	return testutil.PNGHeader(t, 30000, 30000)
}
