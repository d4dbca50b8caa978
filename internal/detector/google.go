package detector

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"

	"github.com/tphakala/visiondash/internal/conf"
	"github.com/tphakala/visiondash/internal/detection"
	"github.com/tphakala/visiondash/internal/errors"
	"github.com/tphakala/visiondash/internal/httpclient"
)

// cloudPlatformScope is the OAuth2 scope accepted by the AutoML API.
const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// GoogleClient calls a deployed Google AutoML Vision object detection model.
type GoogleClient struct {
	base
	settings *conf.Settings

	tokenMu     sync.Mutex
	tokenSource oauth2.TokenSource
}

// googlePredictRequest is the AutoML predict request body.
type googlePredictRequest struct {
	Payload struct {
		Image struct {
			ImageBytes string `json:"imageBytes"`
		} `json:"image"`
	} `json:"payload"`
	Params map[string]string `json:"params,omitempty"`
}

// NewGoogleClient creates an AutoML client from settings. Credentials are
// resolved on the first call.
func NewGoogleClient(settings *conf.Settings, opts Options) *GoogleClient {
	return &GoogleClient{
		base:     newBase(detection.SourceGoogle, settings.Google.RateLimit, opts),
		settings: settings,
	}
}

// WithTokenSource sets the OAuth2 token source, bypassing credential lookup.
func (c *GoogleClient) WithTokenSource(ts oauth2.TokenSource) *GoogleClient {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	c.tokenSource = ts
	return c
}

// ConfigError reports missing project, endpoint or location.
func (c *GoogleClient) ConfigError() error {
	return c.settings.ValidateGoogleConfig()
}

// PredictURL returns the model predict URL.
func (c *GoogleClient) PredictURL() string {
	g := c.settings.Google
	return fmt.Sprintf("%s/projects/%s/locations/%s/models/%s:predict",
		strings.TrimRight(g.Endpoint, "/"),
		url.PathEscape(g.ProjectID),
		url.PathEscape(g.Location),
		url.PathEscape(g.EndpointID))
}

// resolveTokenSource picks the static token, the credentials file or
// application default credentials, in that order.
func (c *GoogleClient) resolveTokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	if c.tokenSource != nil {
		return c.tokenSource, nil
	}

	g := c.settings.Google
	var ts oauth2.TokenSource
	switch {
	case g.AccessToken != "":
		ts = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: g.AccessToken, TokenType: "Bearer"})
	case g.CredentialsFile != "":
		data, err := os.ReadFile(g.CredentialsFile)
		if err != nil {
			return nil, c.credentialsError(err, "read_credentials_file")
		}
		creds, err := google.CredentialsFromJSON(ctx, data, cloudPlatformScope)
		if err != nil {
			return nil, c.credentialsError(err, "parse_credentials_file")
		}
		ts = creds.TokenSource
	default:
		creds, err := google.FindDefaultCredentials(ctx, cloudPlatformScope)
		if err != nil {
			return nil, c.credentialsError(err, "find_default_credentials")
		}
		ts = creds.TokenSource
	}

	c.tokenSource = oauth2.ReuseTokenSource(nil, ts)
	return c.tokenSource, nil
}

func (c *GoogleClient) credentialsError(err error, operation string) error {
	return errors.New(fmt.Errorf("google credentials unavailable, set GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_ACCESS_TOKEN: %w", err)).
		Component(componentName).
		Category(errors.CategoryConfigMissing).
		Context("source", string(c.source)).
		Context("operation", operation).
		Build()
}

// Predict posts the base64 image to the model and returns the raw JSON.
func (c *GoogleClient) Predict(ctx context.Context, image []byte) ([]byte, error) {
	if err := c.ConfigError(); err != nil {
		return nil, err
	}

	ts, err := c.resolveTokenSource(ctx)
	if err != nil {
		return nil, err
	}
	token, err := ts.Token()
	if err != nil {
		return nil, errors.New(err).
			Component(componentName).
			Category(errors.CategoryNetwork).
			Context("source", string(c.source)).
			Context("operation", "fetch_token").
			Build()
	}

	var body googlePredictRequest
	body.Payload.Image.ImageBytes = base64.StdEncoding.EncodeToString(image)
	body.Params = map[string]string{
		"score_threshold": strconv.FormatFloat(c.settings.Google.ScoreThreshold, 'f', -1, 64),
	}

	req, err := httpclient.NewPostRequest(ctx, c.PredictURL(), "application/json", body)
	if err != nil {
		return nil, errors.New(err).
			Component(componentName).
			Category(errors.CategoryConfigMissing).
			Context("source", string(c.source)).
			Context("operation", "build_request").
			Build()
	}
	token.SetAuthHeader(req)

	resp, err := c.send(ctx, req, len(image))
	if err != nil {
		return nil, err
	}

	if err := googleapi.CheckResponse(resp); err != nil {
		resp.Body.Close() //nolint:errcheck // body already consumed by CheckResponse
		return nil, c.googleStatusError(err)
	}

	raw, err := httpclient.ReadBody(resp, 0)
	if err != nil {
		return nil, errors.New(err).
			Component(componentName).
			Category(errors.CategoryNetwork).
			Context("source", string(c.source)).
			Context("operation", "read_response").
			Build()
	}
	return raw, nil
}

// googleStatusError converts a googleapi.Error into a VendorUnavailable error.
func (c *GoogleClient) googleStatusError(err error) error {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return c.vendorStatusError(0, err.Error())
	}

	summary := apiErr.Message
	if summary == "" {
		summary = summarizeErrorBody("", []byte(apiErr.Body))
	}
	return c.vendorStatusError(apiErr.Code, summary)
}

// Detect predicts and normalizes the AutoML response.
func (c *GoogleClient) Detect(ctx context.Context, image []byte, threshold float64) (*detection.Result, error) {
	return c.detect(ctx, c.Predict, image, threshold)
}
