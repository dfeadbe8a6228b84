package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("nonexistent.env")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "development", cfg.Server.Env)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "sandbox", cfg.PesePay.Environment)
	assert.Equal(t, 30, cfg.PesePay.TimeoutSeconds)
	assert.False(t, cfg.Kafka.Enabled)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("PESEPAY_INTEGRATION_KEY", "int-key")
	t.Setenv("PESEPAY_ENCRYPTION_KEY", "0123456789abcdef0123456789abcdef")
	t.Setenv("PESEPAY_ENVIRONMENT", "production")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "broker1:9092, broker2:9092")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load("nonexistent.env")
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "int-key", cfg.PesePay.IntegrationKey)
	assert.Equal(t, "production", cfg.PesePay.Environment)
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_InvalidEnvironment(t *testing.T) {
	t.Setenv("PESEPAY_ENVIRONMENT", "staging")

	_, err := Load("nonexistent.env")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PESEPAY_ENVIRONMENT")
}

func TestLoad_KafkaEnabledWithoutBrokers(t *testing.T) {
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", " ")

	_, err := Load("nonexistent.env")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KAFKA_BROKERS")
}
