package detector

import (
	"bytes"
	"context"
	"net/http"

	"github.com/tphakala/visiondash/internal/conf"
	"github.com/tphakala/visiondash/internal/detection"
	"github.com/tphakala/visiondash/internal/errors"
	"github.com/tphakala/visiondash/internal/httpclient"
)

// AzureClient calls an Azure Custom Vision prediction endpoint, image variant.
type AzureClient struct {
	base
	settings *conf.Settings
}

// NewAzureClient creates a Custom Vision client from settings.
func NewAzureClient(settings *conf.Settings, opts Options) *AzureClient {
	return &AzureClient{
		base:     newBase(detection.SourceAzure, settings.Azure.RateLimit, opts),
		settings: settings,
	}
}

// ConfigError reports missing prediction URL or key.
func (c *AzureClient) ConfigError() error {
	return c.settings.ValidateAzureConfig()
}

// Predict posts the image bytes with the Prediction-Key header and returns the raw JSON.
func (c *AzureClient) Predict(ctx context.Context, image []byte) ([]byte, error) {
	if err := c.ConfigError(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.settings.Azure.PredictionURL, bytes.NewReader(image))
	if err != nil {
		return nil, errors.New(err).
			Component(componentName).
			Category(errors.CategoryConfigMissing).
			Context("source", string(c.source)).
			Context("operation", "build_request").
			Build()
	}
	req.Header.Set("Prediction-Key", c.settings.Azure.PredictionKey)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.send(ctx, req, len(image))
	if err != nil {
		return nil, err
	}

	body, err := httpclient.ReadBody(resp, 0)
	if err != nil {
		return nil, errors.New(err).
			Component(componentName).
			Category(errors.CategoryNetwork).
			Context("source", string(c.source)).
			Context("operation", "read_response").
			Build()
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.vendorStatusError(resp.StatusCode, summarizeErrorBody(resp.Header.Get("Content-Type"), body))
	}

	return body, nil
}

// Detect predicts and normalizes the Custom Vision response.
func (c *AzureClient) Detect(ctx context.Context, image []byte, threshold float64) (*detection.Result, error) {
	return c.detect(ctx, c.Predict, image, threshold)
}
