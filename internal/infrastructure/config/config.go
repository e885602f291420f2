// Package config loads the process-level configuration every host binary
// needs before BotSupervisor can start (spec §6): the exchange base URL,
// the dashboard API listen port, and the CORS front-end origin, plus the
// Postgres DSN and log level that back ConfigStore/OrderService/
// PositionTracker/TrailingStopEngine and the logger. Per-bot configuration
// (BotConfig) is a separate durable concern owned by ConfigStore, never a
// YAML file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// defaultExchangeBaseURL matches spec §6's documented default.
const defaultExchangeBaseURL = "https://api.backpack.exchange"

// Config is the process-wide configuration, loaded once at startup.
type Config struct {
	App      AppConfig      `yaml:"app"`
	Exchange ExchangeConfig `yaml:"exchange"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
}

// AppConfig holds the dashboard HTTP API's listen settings.
type AppConfig struct {
	ListenPort int    `yaml:"listen_port"`
	CORSOrigin string `yaml:"cors_origin"`
}

// ExchangeConfig holds the single exchange base URL the core authenticates
// against (spec §4.2, §6). No credentials live here — they are per-bot
// fields on BotConfig.
type ExchangeConfig struct {
	BaseURL string `yaml:"base_url"`
	// WSURL is the exchange fill-stream WebSocket URL handed to each
	// BotRunner as Deps.FillStreamURL.
	WSURL string `yaml:"ws_url"`
}

// DatabaseConfig holds the Postgres DSN backing the durable stores.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// LogConfig controls the logger's level (spec's ambient logging stack).
type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads path (if non-empty) as YAML, then applies the three
// environment variables spec §6 documents (plus the DSN/log-level ambient
// additions SPEC_FULL carries), then fills any remaining defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.loadEnvOverrides()
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadEnvOverrides() {
	if v := os.Getenv("EXCHANGE_BASE_URL"); v != "" {
		c.Exchange.BaseURL = v
	}
	if v := os.Getenv("API_LISTEN_PORT"); v != "" {
		fmt.Sscanf(v, "%d", &c.App.ListenPort)
	}
	if v := os.Getenv("FRONTEND_ORIGIN"); v != "" {
		c.App.CORSOrigin = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

func (c *Config) applyDefaults() {
	if c.Exchange.BaseURL == "" {
		c.Exchange.BaseURL = defaultExchangeBaseURL
	}
	if c.App.ListenPort == 0 {
		c.App.ListenPort = 8080
	}
	if c.App.CORSOrigin == "" {
		c.App.CORSOrigin = "*"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c *Config) validate() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn (or DATABASE_URL) is required")
	}
	return nil
}
