package observability

import (
	"testing"

	"github.com/smallbiznis/placementpay/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigFromApplicationConfig(t *testing.T) {
	cfg := LoadConfig(config.Config{
		Environment:  "production",
		AppVersion:   "1.2.0",
		OTLPEndpoint: " collector:4317 ",
		Telemetry: config.TelemetryConfig{
			LogLevel:      "warn",
			LogFormat:     "json",
			OtelEnabled:   true,
			OtelProtocol:  "grpc",
			SamplingRatio: 3,
		},
	})

	assert.Equal(t, "placementpay", cfg.ServiceName)
	assert.Equal(t, "collector:4317", cfg.OtelExporterEndpoint)
	assert.Equal(t, 1.0, cfg.OtelSamplingRatio)
	assert.False(t, cfg.Debug())

	assert.True(t, Config{Environment: "local"}.Debug())
	assert.True(t, Config{LogLevel: "DEBUG", Environment: "production"}.Debug())
}
