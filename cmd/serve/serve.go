package serve

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/visiondash/internal/aggregator"
	"github.com/tphakala/visiondash/internal/api"
	"github.com/tphakala/visiondash/internal/conf"
	"github.com/tphakala/visiondash/internal/detector"
	"github.com/tphakala/visiondash/internal/httpclient"
	"github.com/tphakala/visiondash/internal/logging"
	"github.com/tphakala/visiondash/internal/mqtt"
	"github.com/tphakala/visiondash/internal/observability"
	"github.com/tphakala/visiondash/internal/runstore"
)

const mqttConnectTimeout = 10 * time.Second

// Command creates the command that runs the dashboard web server.
func Command(settings *conf.Settings) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the dashboard web server",
		Long:  "Serve the detection dashboard and the /api/v1 REST API until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("port") {
				settings.WebServer.Port = port
			}
			return Run(cmd.Context(), settings)
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "Listen port, overrides webserver.port")

	return cmd
}

// Run builds the detection pipeline and serves it until ctx is cancelled or
// the process receives SIGINT/SIGTERM.
func Run(ctx context.Context, settings *conf.Settings) error {
	logger := logging.ForService("serve")

	m, err := observability.NewMetrics()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}

	clientCfg := httpclient.DefaultConfig()
	clientCfg.UserAgent = "visiondash/" + settings.Version
	if settings.Detection.Timeout > 0 {
		clientCfg.DefaultTimeout = settings.Detection.Timeout
	}
	registry := detector.NewRegistry(settings,
		detector.WithHTTPClient(httpclient.New(&clientCfg)),
		detector.WithMetrics(m.Detector),
	)
	defer registry.Close()

	for _, status := range registry.Statuses() {
		if status.Configured {
			logger.Info("Detection service available", "service", status.Name)
		} else {
			logger.Warn("Detection service unavailable", "service", status.Name, "reason", status.Reason)
		}
	}

	aggOpts := []aggregator.Option{
		aggregator.WithCallTimeout(settings.Detection.Timeout),
		aggregator.WithMetrics(m.Detector),
	}
	if settings.MQTT.Enabled {
		publisher, err := connectMQTT(ctx, settings, m)
		if err != nil {
			return err
		}
		defer publisher.Disconnect()
		aggOpts = append(aggOpts, aggregator.WithPublisher(publisher, settings.MQTT.Topic))
	}
	runner := aggregator.New(registry, aggOpts...)

	store := runstore.New(settings.Detection.RunTTL, m.Detector)

	server, err := api.New(settings,
		api.WithServiceCatalog(registry),
		api.WithRunner(runner),
		api.WithRunStore(store),
		api.WithMetrics(m),
	)
	if err != nil {
		return err
	}

	return server.StartWithGracefulShutdown(ctx)
}

// connectMQTT creates the run publisher. A broker that is down at startup is
// logged, runs are then served without being published.
func connectMQTT(ctx context.Context, settings *conf.Settings, m *observability.Metrics) (mqtt.Client, error) {
	client, err := mqtt.NewClient(mqtt.ConfigFromSettings(settings), m.MQTT)
	if err != nil {
		return nil, fmt.Errorf("failed to create MQTT client: %w", err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, mqttConnectTimeout)
	defer cancel()
	if err := client.Connect(connectCtx); err != nil {
		logging.Warn("MQTT broker not reachable, runs will not be published", "broker", settings.MQTT.Broker, "error", err)
	}
	return client, nil
}
