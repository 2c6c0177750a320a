// Package common provides shared utilities for questfolio
package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for questfolio
type Config struct {
	Environment  string        `toml:"environment"`
	BaseCurrency string        `toml:"base_currency"` // Reporting currency for all series ("CAD" or "USD", default "CAD")
	Server       ServerConfig  `toml:"server"`
	Storage      StorageConfig `toml:"storage"`
	Clients      ClientsConfig `toml:"clients"`
	Logging      LoggingConfig `toml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// StorageConfig holds the market-data store location.
type StorageConfig struct {
	Market AreaConfig `toml:"market"` // Candle history + FX observations (BadgerHold)
}

// AreaConfig holds path configuration for a storage area.
type AreaConfig struct {
	Path string `toml:"path"`
}

// ClientsConfig holds API client configurations
type ClientsConfig struct {
	Questrade QuestradeConfig `toml:"questrade"`
	BOC       BOCConfig       `toml:"boc"`
}

// QuestradeConfig holds Questrade API configuration.
// Token acquisition/refresh is handled by an external proxy; the engine only
// needs the resolved API server base URL and an access token source.
type QuestradeConfig struct {
	BaseURL   string `toml:"base_url"`
	RateLimit int    `toml:"rate_limit"`
	Timeout   string `toml:"timeout"`
}

// GetTimeout parses and returns the timeout duration
func (c *QuestradeConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// BOCConfig holds Bank of Canada Valet API configuration (FX observations).
type BOCConfig struct {
	BaseURL   string `toml:"base_url"`
	RateLimit int    `toml:"rate_limit"`
	Timeout   string `toml:"timeout"`
}

// GetTimeout parses and returns the timeout duration
func (c *BOCConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment:  "development",
		BaseCurrency: "CAD",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8090,
		},
		Storage: StorageConfig{
			Market: AreaConfig{Path: "data/market"},
		},
		Clients: ClientsConfig{
			Questrade: QuestradeConfig{
				BaseURL:   "https://api01.iq.questrade.com",
				RateLimit: 5,
				Timeout:   "30s",
			},
			BOC: BOCConfig{
				BaseURL:   "https://www.bankofcanada.ca/valet",
				RateLimit: 5,
				Timeout:   "30s",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadConfig loads configuration from files with environment overrides
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier)
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue // Skip missing files
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)
	validateBaseCurrency(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("QUESTFOLIO_ENV"); env != "" {
		config.Environment = env
	}

	if host := os.Getenv("QUESTFOLIO_HOST"); host != "" {
		config.Server.Host = host
	}

	if port := os.Getenv("QUESTFOLIO_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if level := os.Getenv("QUESTFOLIO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if path := os.Getenv("QUESTFOLIO_DATA_PATH"); path != "" {
		config.Storage.Market.Path = path
	}

	if bc := os.Getenv("QUESTFOLIO_BASE_CURRENCY"); bc != "" {
		config.BaseCurrency = strings.ToUpper(bc)
	}

	if url := os.Getenv("QUESTFOLIO_QUESTRADE_URL"); url != "" {
		config.Clients.Questrade.BaseURL = url
	}
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// validateBaseCurrency ensures BaseCurrency is "CAD" or "USD", defaulting to "CAD".
func validateBaseCurrency(config *Config) {
	bc := strings.ToUpper(config.BaseCurrency)
	if bc != "CAD" && bc != "USD" {
		bc = "CAD"
	}
	config.BaseCurrency = bc
}
