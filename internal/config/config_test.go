package config

import (
	"io"
	"log/slog"
	"testing"

	"github.com/SAP-F-2025/exam-proctoring-service/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("EVENTS_PUBLISHER", "")
	t.Setenv("MINIO_USE_SSL", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "memory", cfg.Events.Publisher)
	assert.True(t, cfg.Events.Enabled)
	assert.False(t, cfg.Storage.MinioUseSSL)
}

func TestLoadConfig_FromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("EVENTS_PUBLISHER", "kafka")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("MINIO_USE_SSL", "true")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Events.GetKafkaBrokers())
	assert.True(t, cfg.Storage.MinioUseSSL)
}

func TestCreateBroker_FallsBackToMemory(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	for _, cfg := range []EventConfig{
		{Enabled: false, Publisher: "kafka"},
		{Enabled: true, Publisher: "memory"},
		{Enabled: true, Publisher: "redis"},
		{Enabled: true, Publisher: "carrier-pigeon"},
	} {
		broker, err := cfg.CreateBroker(logger, nil)
		require.NoError(t, err)
		assert.IsType(t, &events.MemoryBroker{}, broker, cfg.Publisher)
	}
}
