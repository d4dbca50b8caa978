// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Default values shared with the rest of the module.
const (
	DefaultThreshold       = 0.5
	DefaultHighConfidence  = 0.7
	DefaultRequestTimeout  = 30 * time.Second
	DefaultGoogleEndpoint  = "https://automl.googleapis.com/v1"
	DefaultGoogleLocation  = "us-central1"
	DefaultGoogleThreshold = 0.3
)

// setDefaultConfig sets default values for the configuration.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("main.name", "visiondash")
	v.SetDefault("main.log.enabled", true)
	v.SetDefault("main.log.path", "logs")
	v.SetDefault("main.log.level", "info")
	v.SetDefault("main.log.maxsize", 10)
	v.SetDefault("main.log.maxbackups", 5)
	v.SetDefault("main.log.maxage", 28)
	v.SetDefault("main.log.compress", false)

	v.SetDefault("detection.threshold", DefaultThreshold)
	v.SetDefault("detection.highconfidence", DefaultHighConfidence)
	v.SetDefault("detection.timeout", DefaultRequestTimeout)
	v.SetDefault("detection.runttl", 30*time.Minute)
	v.SetDefault("detection.displaywidth", 800)
	v.SetDefault("detection.displayheight", 600)

	v.SetDefault("azure.predictionurl", "")
	v.SetDefault("azure.predictionkey", "")
	v.SetDefault("azure.ratelimit", 10.0)

	v.SetDefault("google.projectid", "")
	v.SetDefault("google.endpointid", "")
	v.SetDefault("google.location", DefaultGoogleLocation)
	v.SetDefault("google.endpoint", DefaultGoogleEndpoint)
	v.SetDefault("google.credentialsfile", "")
	v.SetDefault("google.accesstoken", "")
	v.SetDefault("google.scorethreshold", DefaultGoogleThreshold)
	v.SetDefault("google.ratelimit", 10.0)

	v.SetDefault("webserver.port", "8080")
	v.SetDefault("webserver.debug", false)
	v.SetDefault("webserver.bodylimit", "10M")
	v.SetDefault("webserver.allowedorigins", []string{"*"})
	v.SetDefault("webserver.autotls", false)
	v.SetDefault("webserver.host", "")
	v.SetDefault("webserver.certcachedir", "certs")
	v.SetDefault("webserver.tlscertfile", "")
	v.SetDefault("webserver.tlskeyfile", "")

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.topic", "visiondash/runs")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.clientid", "")
	v.SetDefault("mqtt.retain", false)

	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.environment", "production")
}
