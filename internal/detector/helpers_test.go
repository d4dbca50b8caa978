package detector

import (
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/visiondash/internal/conf"
	"github.com/tphakala/visiondash/internal/httpclient"
	"github.com/tphakala/visiondash/internal/observability/metrics"
)

const (
	testAzureURL     = "https://westeurope.api.cognitive.microsoft.com/customvision/v3.0/Prediction/proj-1/detect/iterations/it-1/image"
	testAzureKey     = "azure-test-key-0123456789"
	testGoogleURL    = "https://automl.googleapis.com/v1/projects/my-project/locations/us-central1/models/IOD123:predict"
	testGoogleToken  = "ya29.test-token"
	testImagePayload = "\x89PNG\r\n\x1a\nfake-image"
)

// createTestSettings creates settings with both vendors configured.
func createTestSettings(t *testing.T, opts ...func(*conf.Settings)) *conf.Settings {
	t.Helper()

	settings := &conf.Settings{
		Detection: conf.DetectionSettings{
			Threshold: conf.DefaultThreshold,
			Timeout:   5 * time.Second,
		},
		Azure: conf.AzureSettings{
			PredictionURL: testAzureURL,
			PredictionKey: testAzureKey,
		},
		Google: conf.GoogleSettings{
			ProjectID:      "my-project",
			EndpointID:     "IOD123",
			Location:       conf.DefaultGoogleLocation,
			Endpoint:       conf.DefaultGoogleEndpoint,
			AccessToken:    testGoogleToken,
			ScoreThreshold: conf.DefaultGoogleThreshold,
		},
	}

	for _, opt := range opts {
		opt(settings)
	}
	return settings
}

// setupMockTransport returns detector options whose HTTP traffic is served by httpmock.
func setupMockTransport(t *testing.T) (Options, *httpmock.MockTransport, *prometheus.Registry) {
	t.Helper()

	transport := httpmock.NewMockTransport()
	client := httpclient.New(&httpclient.Config{Transport: transport, DefaultTimeout: 5 * time.Second})
	t.Cleanup(client.Close)

	reg := prometheus.NewRegistry()
	m, err := metrics.NewDetectorMetrics(reg)
	require.NoError(t, err)

	return Options{HTTPClient: client, Metrics: m}, transport, reg
}

// jsonResponder answers with body and a JSON content type.
func jsonResponder(status int, body string) httpmock.Responder {
	return func(req *http.Request) (*http.Response, error) {
		resp := httpmock.NewStringResponse(status, body)
		resp.Header.Set("Content-Type", "application/json")
		return resp, nil
	}
}

// registerAzureResponder checks the Custom Vision request shape and answers with body.
func registerAzureResponder(t *testing.T, transport *httpmock.MockTransport, status int, body string) {
	t.Helper()
	transport.RegisterResponder(http.MethodPost, testAzureURL, func(req *http.Request) (*http.Response, error) {
		if req.Header.Get("Prediction-Key") != testAzureKey {
			return httpmock.NewStringResponse(http.StatusUnauthorized, `{"code":"401","message":"Access denied"}`), nil
		}
		if req.Header.Get("Content-Type") != "application/octet-stream" {
			return httpmock.NewStringResponse(http.StatusUnsupportedMediaType, `{"code":"BadRequest","message":"wrong content type"}`), nil
		}
		payload, err := io.ReadAll(req.Body)
		if err != nil || string(payload) != testImagePayload {
			return httpmock.NewStringResponse(http.StatusBadRequest, `{"code":"BadRequestImageFormat","message":"bad image"}`), nil
		}
		return jsonResponder(status, body)(req)
	})
}

// blockingResponder waits until the request context ends.
func blockingResponder(req *http.Request) (*http.Response, error) {
	<-req.Context().Done()
	return nil, req.Context().Err()
}

func azureSuccessResponse() string {
	return `{
		"id": "0d8c1a52-4b7d-4f56-a8a9-5e3b0fdc4a8e",
		"project": "proj-1",
		"iteration": "it-1",
		"created": "2024-05-01T10:00:00.000Z",
		"predictions": [
			{"probability": 0.9, "tagId": "t1", "tagName": "cat",
			 "boundingBox": {"left": 0.1, "top": 0.2, "width": 0.3, "height": 0.4}},
			{"probability": 0.3, "tagId": "t2", "tagName": "dog",
			 "boundingBox": {"left": 0.5, "top": 0.5, "width": 0.2, "height": 0.2}}
		]
	}`
}

func googleSuccessResponse() string {
	return `{
		"payload": [
			{"annotationSpecId": "1", "displayName": "cat",
			 "imageObjectDetection": {"score": 0.95,
			   "boundingBox": {"normalizedVertices": [{"x": 0.1, "y": 0.2}, {"x": 0.4, "y": 0.6}]}}}
		]
	}`
}
