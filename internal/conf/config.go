// config.go: settings struct for visiondash and functions to load and render it.
package conf

import (
	"embed"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/tphakala/visiondash/internal/errors"
	"github.com/tphakala/visiondash/internal/privacy"
	"gopkg.in/yaml.v3"
)

//go:embed config.yaml
var configFiles embed.FS

// LogConfig holds file logging and rotation settings
type LogConfig struct {
	Enabled    bool   // true to write JSON logs to files
	Path       string // directory for log files
	Level      string // debug, info, warn, error
	MaxSize    int    // megabytes before rotation
	MaxBackups int    // rotated files to keep
	MaxAge     int    // days to keep rotated files
	Compress   bool   // gzip rotated files
}

// MainSettings holds application wide settings
type MainSettings struct {
	Name string    // instance name, used as MQTT client id fallback
	Log  LogConfig // log file settings
}

// DetectionSettings controls a detection run
type DetectionSettings struct {
	Threshold      float64       // default confidence threshold for normalized detections
	HighConfidence float64       // threshold for the high confidence bucket
	Timeout        time.Duration // per vendor call timeout
	RunTTL         time.Duration // how long finished runs stay in memory
	DisplayWidth   int           // max width of annotated images
	DisplayHeight  int           // max height of annotated images
}

// AzureSettings holds Azure Custom Vision prediction settings
type AzureSettings struct {
	PredictionURL string  // full prediction endpoint, image variant
	PredictionKey string  // Prediction-Key header value
	RateLimit     float64 // requests per second, 0 disables limiting
}

// GoogleSettings holds Google AutoML Vision prediction settings
type GoogleSettings struct {
	ProjectID       string  // GCP project id
	EndpointID      string  // deployed model id
	Location        string  // model location, e.g. us-central1
	Endpoint        string  // API base URL
	CredentialsFile string  // service account JSON, empty for application default credentials
	AccessToken     string  // static OAuth2 access token, overrides CredentialsFile
	ScoreThreshold  float64 // score_threshold request parameter
	RateLimit       float64 // requests per second, 0 disables limiting
}

// WebServerSettings holds dashboard server settings
type WebServerSettings struct {
	Port           string   // listen port
	Debug          bool     // verbose API logging
	BodyLimit      string   // maximum upload size, e.g. "10M"
	AllowedOrigins []string // CORS origins
	AutoTLS        bool     // obtain certificates from Let's Encrypt
	Host           string   // public host name for AutoTLS
	CertCacheDir   string   // AutoTLS certificate cache
	TLSCertFile    string   // manual TLS certificate
	TLSKeyFile     string   // manual TLS key
}

// MQTTSettings holds settings for publishing run summaries
type MQTTSettings struct {
	Enabled  bool   // true to publish finished runs
	Broker   string // e.g. tcp://localhost:1883
	Topic    string // topic for run summaries
	Username string
	Password string
	ClientID string
	Retain   bool
}

// SentrySettings holds error telemetry settings
type SentrySettings struct {
	Enabled     bool
	DSN         string
	Environment string
}

// Settings contains all configuration options for visiondash.
type Settings struct {
	Debug bool // true to enable debug mode

	Main      MainSettings
	Detection DetectionSettings
	Azure     AzureSettings
	Google    GoogleSettings
	WebServer WebServerSettings
	MQTT      MQTTSettings
	Sentry    SentrySettings

	Version    string `yaml:"-" mapstructure:"-"` // build version, runtime value
	BuildDate  string `yaml:"-" mapstructure:"-"` // build date, runtime value
	ConfigFile string `yaml:"-" mapstructure:"-"` // config file in use, runtime value
}

// settingsMutex serializes Load, which mutates the process environment
var settingsMutex sync.Mutex

// Load reads .env, the configuration file and environment variables into Settings.
// An empty configFile searches the default config paths; a missing file is not an error.
func Load(configFile string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	if err := initViper(v, configFile); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}
	settings.ConfigFile = v.ConfigFileUsed()

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	return settings, nil
}

// loadDotEnv loads KEY=VALUE pairs from path into the process environment.
// Variables already set in the environment win.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); stderrors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "load_dotenv").
			Build()
	}
	return nil
}

// initViper applies defaults and environment bindings and reads the configuration file.
func initViper(v *viper.Viper, configFile string) error {
	setDefaultConfig(v)

	if err := configureEnvironmentVariables(v); err != nil {
		return err
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		configPaths, err := GetDefaultConfigPaths()
		if err != nil {
			return err
		}
		for _, path := range configPaths {
			v.AddConfigPath(path)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if stderrors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// GetDefaultConfigPaths returns the directories searched for config.yaml.
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategorySystem).
			Context("operation", "get-home-directory").
			Build()
	}

	paths := []string{"."}
	if runtime.GOOS == "windows" {
		paths = append(paths, filepath.Join(homeDir, "AppData", "Roaming", "visiondash"))
	} else {
		paths = append(paths, filepath.Join(homeDir, ".config", "visiondash"), "/etc/visiondash")
	}
	return paths, nil
}

// WriteDefaultConfig writes the embedded default config.yaml to path.
// It refuses to overwrite an existing file.
func WriteDefaultConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return errors.Newf("config file already exists: %s", path).
			Component("conf").
			Category(errors.CategoryFileIO).
			Build()
	}

	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		return fmt.Errorf("error reading embedded config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("error creating directories for config file: %w", err)
		}
	}

	return os.WriteFile(path, data, 0o600)
}

// RenderYAML returns settings as YAML with credentials masked.
func RenderYAML(settings *Settings) ([]byte, error) {
	masked := *settings
	masked.Azure.PredictionKey = privacy.MaskSecret(settings.Azure.PredictionKey)
	masked.Google.AccessToken = privacy.MaskSecret(settings.Google.AccessToken)
	masked.MQTT.Password = privacy.MaskSecret(settings.MQTT.Password)
	masked.Sentry.DSN = privacy.ScrubMessage(settings.Sentry.DSN)

	out, err := yaml.Marshal(&masked)
	if err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "render_yaml").
			Build()
	}
	return out, nil
}
