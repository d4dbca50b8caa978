package mqtt

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/visiondash/internal/conf"
	"github.com/tphakala/visiondash/internal/errors"
	"github.com/tphakala/visiondash/internal/observability/metrics"
)

const publicTestBroker = "tcp://test.mosquitto.org:1883"

func isMosquittoTestServerAvailable() bool {
	conn, err := net.DialTimeout("tcp", "test.mosquitto.org:1883", 5*time.Second)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// createTestClient creates a client for broker with fresh metrics.
func createTestClient(t *testing.T, broker string) (Client, *metrics.MQTTMetrics) {
	t.Helper()

	m, err := metrics.NewMQTTMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Broker = broker
	cfg.ClientID = "visiondash-test"
	cfg.Topic = "visiondash/test"
	cfg.ConnectTimeout = 10 * time.Second

	c, err := NewClient(cfg, m)
	require.NoError(t, err)
	t.Cleanup(c.Disconnect)
	return c, m
}

func getGaugeValue(t *testing.T, gauge prometheus.Gauge) float64 {
	t.Helper()
	var metric dto.Metric
	require.NoError(t, gauge.Write(&metric))
	return metric.GetGauge().GetValue()
}

func getCounterValue(t *testing.T, counter prometheus.Counter) float64 {
	t.Helper()
	var metric dto.Metric
	require.NoError(t, counter.Write(&metric))
	return metric.GetCounter().GetValue()
}

func getHistogramSum(t *testing.T, histogram prometheus.Histogram) float64 {
	t.Helper()
	var metric dto.Metric
	require.NoError(t, histogram.Write(&metric))
	return metric.GetHistogram().GetSampleSum()
}

func TestConfigFromSettings(t *testing.T) {
	t.Parallel()

	settings := &conf.Settings{
		Main: conf.MainSettings{Name: "dash-01"},
		MQTT: conf.MQTTSettings{
			Broker:   "tcp://broker:1883",
			Topic:    "dash/runs",
			Username: "user",
			Password: "pass",
			Retain:   true,
		},
	}

	cfg := ConfigFromSettings(settings)
	assert.Equal(t, "tcp://broker:1883", cfg.Broker)
	assert.Equal(t, "dash-01", cfg.ClientID, "instance name is the client id fallback")
	assert.Equal(t, "dash/runs", cfg.Topic)
	assert.True(t, cfg.Retain)
	assert.Equal(t, DefaultConfig().PublishTimeout, cfg.PublishTimeout)

	settings.MQTT.ClientID = "explicit"
	assert.Equal(t, "explicit", ConfigFromSettings(settings).ClientID)
}

func TestNewClient_RequiresBroker(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Config{}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestPublishWhileDisconnected(t *testing.T) {
	t.Parallel()

	c, m := createTestClient(t, "tcp://127.0.0.1:1883")

	err := c.Publish(t.Context(), "visiondash/test", "This should fail")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryMQTTPublish))
	assert.False(t, c.IsConnected())
	assert.InDelta(t, 1, getCounterValue(t, m.Errors), 0)
}

func TestConnect_InvalidBrokerURL(t *testing.T) {
	t.Parallel()

	c, _ := createTestClient(t, "tcp://[::1:1883")

	err := c.Connect(t.Context())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryMQTTConnect))
}

func TestConnect_UnresolvableHostname(t *testing.T) {
	t.Parallel()

	c, _ := createTestClient(t, "tcp://unresolvable.invalid:1883")

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()

	err := c.Connect(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryMQTTConnect))
	assert.False(t, c.IsConnected())
}

func TestConnect_Cooldown(t *testing.T) {
	t.Parallel()

	c, _ := createTestClient(t, "tcp://unresolvable.invalid:1883")

	_ = c.Connect(t.Context())
	err := c.Connect(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection attempt too recent")
}

// TestMQTTClient exercises a real broker and is skipped when it is unreachable.
func TestMQTTClient(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping MQTT broker tests in short mode")
	}
	if !isMosquittoTestServerAvailable() {
		t.Skip("Skipping MQTT tests: test.mosquitto.org is not available")
	}

	c, m := createTestClient(t, publicTestBroker)

	ctx, cancel := context.WithTimeout(t.Context(), 30*time.Second)
	defer cancel()

	require.NoError(t, c.Connect(ctx))
	require.True(t, c.IsConnected())
	assert.InDelta(t, 1, getGaugeValue(t, m.ConnectionStatus), 0)

	payload := `{"id":"test","detections":0}`
	require.NoError(t, c.Publish(ctx, "visiondash/test", payload))
	assert.InDelta(t, 1, getCounterValue(t, m.MessagesDelivered), 0)
	assert.InDelta(t, float64(len(payload)), getHistogramSum(t, m.MessageSize), 0)

	c.Disconnect()
	assert.False(t, c.IsConnected())
	assert.InDelta(t, 0, getGaugeValue(t, m.ConnectionStatus), 0)
}
