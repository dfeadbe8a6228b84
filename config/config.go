package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the application configuration.
type Config struct {
	Server  ServerConfig
	PesePay PesePayConfig
	Kafka   KafkaConfig
	Logging LoggingConfig
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port            string
	Env             string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// PesePayConfig holds the gateway credentials and endpoints.
type PesePayConfig struct {
	IntegrationKey string
	EncryptionKey  string
	BaseURL        string
	ReturnURL      string
	ResultURL      string
	Environment    string
	TimeoutSeconds int
}

// KafkaConfig configures event publication. When disabled the service
// runs without a broker and terminal outcomes are only logged.
type KafkaConfig struct {
	Enabled bool
	Brokers []string
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level string
}

// Load reads configuration from the environment. In non-production
// environments a .env file at path is loaded first, if present.
func Load(path string) (*Config, error) {
	if os.Getenv("APP_ENV") != "production" {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err != nil {
				return nil, fmt.Errorf("load env file %s: %w", path, err)
			}
		}
	}

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("APP_ENV", "development")
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("SERVER_READ_TIMEOUT", "15s")
	v.SetDefault("SERVER_WRITE_TIMEOUT", "15s")
	v.SetDefault("SERVER_SHUTDOWN_TIMEOUT", "10s")

	v.SetDefault("PESEPAY_ENVIRONMENT", "sandbox")
	v.SetDefault("PESEPAY_TIMEOUT_SECONDS", 30)

	v.SetDefault("KAFKA_ENABLED", false)
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")

	v.SetDefault("LOG_LEVEL", "info")

	cfg := &Config{
		Server: ServerConfig{
			Port:            v.GetString("SERVER_PORT"),
			Env:             v.GetString("APP_ENV"),
			ReadTimeout:     v.GetDuration("SERVER_READ_TIMEOUT"),
			WriteTimeout:    v.GetDuration("SERVER_WRITE_TIMEOUT"),
			ShutdownTimeout: v.GetDuration("SERVER_SHUTDOWN_TIMEOUT"),
		},
		PesePay: PesePayConfig{
			IntegrationKey: v.GetString("PESEPAY_INTEGRATION_KEY"),
			EncryptionKey:  v.GetString("PESEPAY_ENCRYPTION_KEY"),
			BaseURL:        v.GetString("PESEPAY_BASE_URL"),
			ReturnURL:      v.GetString("PESEPAY_RETURN_URL"),
			ResultURL:      v.GetString("PESEPAY_RESULT_URL"),
			Environment:    v.GetString("PESEPAY_ENVIRONMENT"),
			TimeoutSeconds: v.GetInt("PESEPAY_TIMEOUT_SECONDS"),
		},
		Kafka: KafkaConfig{
			Enabled: v.GetBool("KAFKA_ENABLED"),
			Brokers: splitBrokers(v.GetString("KAFKA_BROKERS")),
		},
		Logging: LoggingConfig{
			Level: v.GetString("LOG_LEVEL"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.PesePay.Environment {
	case "sandbox", "production":
	default:
		return fmt.Errorf("invalid PESEPAY_ENVIRONMENT %q, want sandbox or production", c.PesePay.Environment)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("KAFKA_ENABLED is set but KAFKA_BROKERS is empty")
	}
	return nil
}

func splitBrokers(s string) []string {
	var brokers []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
