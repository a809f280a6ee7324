// Package config loads soundcheck configuration from an optional YAML file
// with environment-variable overrides on top. Precedence: defaults < file <
// environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// GatewayConfig configures the HTTP API server.
type GatewayConfig struct {
	Host string `yaml:"host" env:"SOUNDCHECK_HOST"`
	Port int    `yaml:"port" env:"SOUNDCHECK_PORT"`
	// APIKey, when non-empty, requires a bearer token on API requests.
	// The hub's WebSocket endpoint is always open — viewer auth is out of scope.
	APIKey string `yaml:"api_key" env:"SOUNDCHECK_API_KEY"`
}

// HubConfig configures the broadcast hub's own listener.
type HubConfig struct {
	Host string `yaml:"host" env:"SOUNDCHECK_WS_HOST"`
	Port int    `yaml:"port" env:"SOUNDCHECK_WS_PORT"`
}

// AnalyzerConfig selects and configures the statement analyzer.
type AnalyzerConfig struct {
	// Provider is one of "openai", "anthropic", "static".
	Provider string `yaml:"provider" env:"SOUNDCHECK_ANALYZER"`
	Model    string `yaml:"model" env:"SOUNDCHECK_ANALYZER_MODEL"`
	APIKey   string `yaml:"api_key" env:"SOUNDCHECK_ANALYZER_API_KEY"`
}

// Config is the root configuration.
type Config struct {
	Gateway  GatewayConfig  `yaml:"gateway"`
	Hub      HubConfig      `yaml:"hub"`
	Analyzer AnalyzerConfig `yaml:"analyzer"`
	LogLevel string         `yaml:"log_level" env:"SOUNDCHECK_LOG_LEVEL"`
}

// DefaultConfig returns the fixed fallback configuration: API on 3000,
// hub on 3001, matching the development split the viewer expects.
func DefaultConfig() *Config {
	return &Config{
		Gateway:  GatewayConfig{Host: "0.0.0.0", Port: 3000},
		Hub:      HubConfig{Host: "0.0.0.0", Port: 3001},
		Analyzer: AnalyzerConfig{Provider: "static"},
		LogLevel: "info",
	}
}

// Load reads the config file at path (missing file is fine — defaults apply)
// and then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	return cfg, nil
}

// DefaultPath returns ./soundcheck.yaml next to the working directory,
// the conventional location for a local deployment.
func DefaultPath() string {
	wd, err := os.Getwd()
	if err != nil {
		return "soundcheck.yaml"
	}
	return filepath.Join(wd, "soundcheck.yaml")
}

// GatewayAddr returns the host:port the API server binds.
func (c *Config) GatewayAddr() string {
	return fmt.Sprintf("%s:%d", c.Gateway.Host, c.Gateway.Port)
}

// HubAddr returns the host:port the broadcast hub binds.
func (c *Config) HubAddr() string {
	return fmt.Sprintf("%s:%d", c.Hub.Host, c.Hub.Port)
}
