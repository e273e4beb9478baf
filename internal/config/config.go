// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
// Outbound destinations (geolocation providers, collector, redirect target) are
// compiled in and intentionally absent here.
type Config struct {
	// Port is the TCP port the long-running server listens on (e.g. 3000).
	Port string `mapstructure:"PORT"`
	// DevPort is the port for the local function dev shim (e.g. 8888).
	DevPort string `mapstructure:"DEV_PORT"`
	// Env is the application environment (e.g. "development", "production"). Reported as an OTel resource attribute.
	Env string `mapstructure:"APP_ENV"`
	// LogLevel is the slog level name: debug, info, warn, error.
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// OTLPEndpoint is the OTLP gRPC collector (e.g. http://localhost:4317). Empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	// ServiceName is the OTel service.name resource attribute.
	ServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	// Visit mirror (optional). When brokers are set, every forwarded visit is also written to Kafka.
	// KafkaBrokers is a comma-separated list of Kafka broker addresses (e.g. "localhost:9092").
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// VisitKafkaTopic is the Kafka topic for mirrored visits.
	VisitKafkaTopic string `mapstructure:"VISIT_KAFKA_TOPIC"`
	// KafkaGroupID is the consumer group of the visit worker (cmd/worker).
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`

	// GeoIPCityDB is an optional path to a MaxMind City .mmdb, used as the last geolocation provider.
	GeoIPCityDB string `mapstructure:"GEOIP_CITY_DB"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored. Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("PORT", "3000")
	v.SetDefault("DEV_PORT", "8888")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "visitor-relay")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("VISIT_KAFKA_TOPIC", "visitor-relay-visits")
	v.SetDefault("KAFKA_GROUP_ID", "visitor-relay-worker")
	v.SetDefault("GEOIP_CITY_DB", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := validPort(cfg.Port); err != nil {
		return nil, errors.New("config: PORT must be a port number between 1 and 65535")
	}
	if err := validPort(cfg.DevPort); err != nil {
		return nil, errors.New("config: DEV_PORT must be a port number between 1 and 65535")
	}
	if _, err := parseLevel(cfg.LogLevel); err != nil {
		return nil, errors.New("config: LOG_LEVEL must be one of debug, info, warn, error")
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "visitor-relay"
	}

	return &cfg, nil
}

// Addr returns the server listen address for Port (e.g. ":3000").
func (c *Config) Addr() string {
	return ":" + c.Port
}

// DevAddr returns the dev shim listen address for DevPort.
func (c *Config) DevAddr() string {
	return ":" + c.DevPort
}

// Level returns the parsed LogLevel. Returns slog.LevelInfo if unset or invalid.
func (c *Config) Level() slog.Level {
	l, err := parseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return l
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if the visit mirror is enabled (non-empty list).
func (c *Config) KafkaBrokersList() []string {
	if c == nil || c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func validPort(p string) error {
	n, err := strconv.Atoi(strings.TrimSpace(p))
	if err != nil {
		return err
	}
	if n < 1 || n > 65535 {
		return errors.New("out of range")
	}
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if strings.TrimSpace(s) == "" {
		return slog.LevelInfo, nil
	}
	err := l.UnmarshalText([]byte(strings.TrimSpace(s)))
	return l, err
}
