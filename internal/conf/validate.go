// conf/validate.go

package conf

import (
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/tphakala/visiondash/internal/errors"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct.
// Vendor credentials may be absent; only values that are present are checked.
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	validators := []func() error{
		func() error { return validateLogSettings(&settings.Main.Log) },
		func() error { return validateDetectionSettings(&settings.Detection) },
		func() error { return validateAzureSettings(&settings.Azure) },
		func() error { return validateGoogleSettings(&settings.Google) },
		func() error { return validateWebServerSettings(&settings.WebServer) },
		func() error { return validateMQTTSettings(&settings.MQTT) },
		func() error { return validateSentrySettings(&settings.Sentry) },
	}

	for _, validate := range validators {
		if err := validate(); err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateLogSettings(settings *LogConfig) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLevels, strings.ToLower(settings.Level)) {
		return fmt.Errorf("log level must be one of %s, got %q", strings.Join(validLevels, ", "), settings.Level)
	}
	if settings.MaxSize < 0 || settings.MaxBackups < 0 || settings.MaxAge < 0 {
		return fmt.Errorf("log rotation values must be non-negative")
	}
	return nil
}

func validateDetectionSettings(settings *DetectionSettings) error {
	var errs []string

	if settings.Threshold < 0 || settings.Threshold > 1 {
		errs = append(errs, fmt.Sprintf("detection threshold must be between 0 and 1, got %g", settings.Threshold))
	}
	if settings.HighConfidence < 0 || settings.HighConfidence > 1 {
		errs = append(errs, fmt.Sprintf("high confidence threshold must be between 0 and 1, got %g", settings.HighConfidence))
	}
	if settings.Timeout <= 0 {
		errs = append(errs, "detection timeout must be positive")
	}
	if settings.RunTTL <= 0 {
		errs = append(errs, "run TTL must be positive")
	}
	if settings.DisplayWidth <= 0 || settings.DisplayHeight <= 0 {
		errs = append(errs, "display dimensions must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("detection settings errors: %v", errs)
	}
	return nil
}

func validateAzureSettings(settings *AzureSettings) error {
	if settings.PredictionURL != "" {
		if err := validateAbsoluteURL(settings.PredictionURL); err != nil {
			return fmt.Errorf("azure prediction URL: %w", err)
		}
	}
	if settings.RateLimit < 0 {
		return fmt.Errorf("azure rate limit must be non-negative")
	}
	return nil
}

func validateGoogleSettings(settings *GoogleSettings) error {
	if err := validateAbsoluteURL(settings.Endpoint); err != nil {
		return fmt.Errorf("google endpoint: %w", err)
	}
	if settings.ScoreThreshold < 0 || settings.ScoreThreshold > 1 {
		return fmt.Errorf("google score threshold must be between 0 and 1, got %g", settings.ScoreThreshold)
	}
	if settings.RateLimit < 0 {
		return fmt.Errorf("google rate limit must be non-negative")
	}
	return nil
}

func validateWebServerSettings(settings *WebServerSettings) error {
	port, err := strconv.Atoi(settings.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("webserver port must be a number between 1 and 65535, got %q", settings.Port)
	}
	if settings.AutoTLS && settings.Host == "" {
		return fmt.Errorf("webserver host is required when AutoTLS is enabled")
	}
	if (settings.TLSCertFile == "") != (settings.TLSKeyFile == "") {
		return fmt.Errorf("both TLS certificate and key files must be set")
	}
	return nil
}

func validateMQTTSettings(settings *MQTTSettings) error {
	if !settings.Enabled {
		return nil
	}
	if err := validateAbsoluteURL(settings.Broker); err != nil {
		return fmt.Errorf("mqtt broker: %w", err)
	}
	if settings.Topic == "" {
		return fmt.Errorf("mqtt topic is required when MQTT is enabled")
	}
	return nil
}

func validateSentrySettings(settings *SentrySettings) error {
	if settings.Enabled && settings.DSN == "" {
		return fmt.Errorf("sentry DSN is required when Sentry is enabled")
	}
	return nil
}

func validateAbsoluteURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL")
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("URL must be absolute with scheme and host")
	}
	return nil
}

// ValidateAzureConfig reports the Azure credentials that are missing.
// The returned error carries CategoryConfigMissing.
func (s *Settings) ValidateAzureConfig() error {
	var missing []string
	if s.Azure.PredictionURL == "" {
		missing = append(missing, "CUSTOMVISION_PREDICTION_URL")
	}
	if s.Azure.PredictionKey == "" {
		missing = append(missing, "CUSTOMVISION_PREDICTION_KEY")
	}
	return missingConfigError("azure", missing)
}

// ValidateGoogleConfig reports the Google settings that are missing.
// Credentials are resolved at call time so they are not checked here.
func (s *Settings) ValidateGoogleConfig() error {
	var missing []string
	if s.Google.ProjectID == "" {
		missing = append(missing, "GOOGLE_PROJECT_ID")
	}
	if s.Google.EndpointID == "" {
		missing = append(missing, "GOOGLE_ENDPOINT_ID")
	}
	if s.Google.Location == "" {
		missing = append(missing, "GOOGLE_LOCATION")
	}
	return missingConfigError("google", missing)
}

func missingConfigError(vendor string, missing []string) error {
	if len(missing) == 0 {
		return nil
	}
	return errors.Newf("%s configuration missing: %s", vendor, strings.Join(missing, ", ")).
		Component("conf").
		Category(errors.CategoryConfigMissing).
		Context("vendor", vendor).
		Context("missing", missing).
		Build()
}
