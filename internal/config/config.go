// Package config loads the Pipeline Config of spec.md §6: gateway
// credentials, database/redis endpoints, chunk sizing and send-mode
// toggles, following the teacher's YAML-plus-env-expansion loader.
package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for the scheduler/pipeline
// binary.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Rules    string         `yaml:"rulesPath"`
}

// ServerConfig configures the metrics/health HTTP surface of §4.9.
type ServerConfig struct {
	MetricsAddr string `yaml:"metricsAddr"`
	LogLevel    string `yaml:"logLevel"`
}

// DatabaseConfig is the Postgres connection the tracking store uses.
type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int    `yaml:"maxConns"`
	MinConns int    `yaml:"minConns"`
}

// RedisConfig is the claim-lease coordination backend of SPEC_FULL §6.1.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	LeaseTTL int    `yaml:"leaseTtlSeconds"`
}

// GatewayConfig holds the SES v2 gateway's region, sender address and
// outbound rate limit; credentials come from the AWS default chain.
type GatewayConfig struct {
	Region            string `yaml:"region"`
	SenderAddress     string `yaml:"senderAddress"`
	RequestsPerSecond int    `yaml:"requestsPerSecond"`
	Burst             int    `yaml:"burst"`
}

// PipelineConfig controls one run of the Delivery Pipeline.
type PipelineConfig struct {
	ChunkSize            int    `yaml:"chunkSize"`
	MaxAttempts          int    `yaml:"maxAttempts"`
	InterMessageDelayMs  int    `yaml:"interMessageDelayMs"`
	StatusCheckStaleSecs int    `yaml:"statusCheckStaleSeconds"`
	DryRun               bool   `yaml:"dryRun"`
	SendMode             string `yaml:"sendMode"` // "test" or "production"
	TestEmail            string `yaml:"testEmail"`
}

// expandEnvWithDefaults expands ${VAR} and ${VAR:-default} references
// in raw config bytes before YAML parsing, the way the teacher's
// config.expandEnvWithDefaults does.
func expandEnvWithDefaults(s string) string {
	re := regexp.MustCompile(`\$\{([^}:]+):-([^}]*)\}`)
	result := re.ReplaceAllStringFunc(s, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) != 3 {
			return match
		}
		if val := os.Getenv(parts[1]); val != "" {
			return val
		}
		return parts[2]
	})
	return os.ExpandEnv(result)
}

// Load reads and parses the YAML config at path, applying env expansion
// and the documented defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	data = []byte(expandEnvWithDefaults(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.MetricsAddr == "" {
		cfg.Server.MetricsAddr = ":9090"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = "info"
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 25
	}
	if cfg.Database.MinConns == 0 {
		cfg.Database.MinConns = 5
	}
	if cfg.Redis.LeaseTTL == 0 {
		cfg.Redis.LeaseTTL = 30
	}
	if cfg.Gateway.RequestsPerSecond == 0 {
		cfg.Gateway.RequestsPerSecond = 14
	}
	if cfg.Gateway.Burst == 0 {
		cfg.Gateway.Burst = 5
	}
	if cfg.Pipeline.ChunkSize == 0 {
		cfg.Pipeline.ChunkSize = 50
	}
	if cfg.Pipeline.MaxAttempts == 0 {
		cfg.Pipeline.MaxAttempts = 5
	}
	if cfg.Pipeline.InterMessageDelayMs == 0 {
		cfg.Pipeline.InterMessageDelayMs = 500
	}
	if cfg.Pipeline.StatusCheckStaleSecs == 0 {
		cfg.Pipeline.StatusCheckStaleSecs = 600
	}
	if cfg.Pipeline.SendMode == "" {
		cfg.Pipeline.SendMode = "test"
	}
	if cfg.Rules == "" {
		cfg.Rules = "rules.yaml"
	}
}
