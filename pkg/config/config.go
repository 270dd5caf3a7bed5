// Package config loads server configuration from environment variables,
// with an optional YAML file layered underneath (values from the
// environment always win).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the full set of settings runServer needs to boot.
type Config struct {
	Host             string            `yaml:"host"`
	Port             int               `yaml:"port"`
	DatabaseURL      string            `yaml:"database_url"`
	APIKeys          map[string]string `yaml:"api_keys"` // key -> principal id
	LogLevel         string            `yaml:"log_level"`
	FederationDID    string            `yaml:"federation_did"`
	RateLimitRPS     int               `yaml:"rate_limit_rps"`
	RateLimitBurst   int               `yaml:"rate_limit_burst"`
	RedisURL         string            `yaml:"redis_url"`
	S3Bucket         string            `yaml:"s3_bucket"`
	OTLPEndpoint     string            `yaml:"otlp_endpoint"`
	MetricsAddr      string            `yaml:"metrics_addr"`
	WebhookUserAgent string            `yaml:"webhook_user_agent"`
}

const (
	defaultHost           = "0.0.0.0"
	defaultPort           = 8080
	defaultRateLimitRPS   = 20
	defaultRateLimitBurst = 40
	defaultMetricsAddr    = ":9090"
)

// Load builds a Config from an optional YAML file (path taken from
// OPENINTENT_CONFIG_FILE) with environment variables applied on top.
func Load() (*Config, error) {
	cfg := &Config{
		Host:           defaultHost,
		Port:           defaultPort,
		LogLevel:       "info",
		RateLimitRPS:   defaultRateLimitRPS,
		RateLimitBurst: defaultRateLimitBurst,
		MetricsAddr:    defaultMetricsAddr,
		APIKeys:        map[string]string{},
	}

	if path := os.Getenv("OPENINTENT_CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("OPENINTENT_HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("OPENINTENT_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Port = n
		}
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("OPENINTENT_API_KEYS"); v != "" {
		for _, pair := range strings.Split(v, ",") {
			parts := strings.SplitN(pair, ":", 2)
			if len(parts) != 2 {
				continue
			}
			cfg.APIKeys[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}
	if v := os.Getenv("OPENINTENT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("OPENINTENT_FEDERATION_DID"); v != "" {
		cfg.FederationDID = v
	}
	if v := os.Getenv("OPENINTENT_RATE_LIMIT_RPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimitRPS = n
		}
	}
	if v := os.Getenv("OPENINTENT_RATE_LIMIT_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimitBurst = n
		}
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}
	if v := os.Getenv("OPENINTENT_S3_BUCKET"); v != "" {
		cfg.S3Bucket = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.OTLPEndpoint = v
	}
	if v := os.Getenv("OPENINTENT_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("OPENINTENT_WEBHOOK_USER_AGENT"); v != "" {
		cfg.WebhookUserAgent = v
	}
	if cfg.WebhookUserAgent == "" {
		cfg.WebhookUserAgent = "openintentd-webhook/1"
	}
}

// Addr is the listen address built from Host and Port.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
