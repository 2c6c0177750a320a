package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfig_Defaults(t *testing.T) {
	cfg := NewDefaultConfig()
	if cfg.Server.Port != 8090 {
		t.Errorf("Server.Port default = %d, want 8090", cfg.Server.Port)
	}
	if cfg.BaseCurrency != "CAD" {
		t.Errorf("BaseCurrency default = %q, want CAD", cfg.BaseCurrency)
	}
	if cfg.Storage.Market.Path != "data/market" {
		t.Errorf("Storage.Market.Path default = %q", cfg.Storage.Market.Path)
	}
	if cfg.Clients.Questrade.BaseURL == "" || cfg.Clients.BOC.BaseURL == "" {
		t.Error("client base URLs should have defaults")
	}
}

func TestConfig_LoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "questfolio.toml")
	content := `
environment = "production"
base_currency = "usd"

[server]
port = 9000

[clients.questrade]
base_url = "https://api05.iq.questrade.com"
timeout = "10s"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Environment != "production" {
		t.Errorf("Environment = %q, want production", cfg.Environment)
	}
	if cfg.BaseCurrency != "USD" {
		t.Errorf("BaseCurrency = %q, want uppercased USD", cfg.BaseCurrency)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Clients.Questrade.BaseURL != "https://api05.iq.questrade.com" {
		t.Errorf("Questrade.BaseURL = %q", cfg.Clients.Questrade.BaseURL)
	}
	if cfg.Clients.Questrade.GetTimeout() != 10*time.Second {
		t.Errorf("Questrade timeout = %v, want 10s", cfg.Clients.Questrade.GetTimeout())
	}
	// Untouched sections keep defaults.
	if cfg.Clients.BOC.BaseURL != "https://www.bankofcanada.ca/valet" {
		t.Errorf("BOC.BaseURL = %q, want default", cfg.Clients.BOC.BaseURL)
	}
}

func TestConfig_MissingFileSkipped(t *testing.T) {
	cfg, err := LoadConfig("/nonexistent/questfolio.toml")
	if err != nil {
		t.Fatalf("missing file should fall back to defaults: %v", err)
	}
	if cfg.Server.Port != 8090 {
		t.Errorf("Server.Port = %d, want default 8090", cfg.Server.Port)
	}
}

func TestConfig_EnvOverrides(t *testing.T) {
	t.Setenv("QUESTFOLIO_PORT", "9090")
	t.Setenv("QUESTFOLIO_LOG_LEVEL", "debug")
	t.Setenv("QUESTFOLIO_BASE_CURRENCY", "usd")
	t.Setenv("QUESTFOLIO_DATA_PATH", "/var/lib/questfolio/market")

	cfg := NewDefaultConfig()
	applyEnvOverrides(cfg)

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d after env override, want 9090", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.BaseCurrency != "USD" {
		t.Errorf("BaseCurrency = %q, want USD", cfg.BaseCurrency)
	}
	if cfg.Storage.Market.Path != "/var/lib/questfolio/market" {
		t.Errorf("Storage.Market.Path = %q", cfg.Storage.Market.Path)
	}
}

func TestConfig_InvalidBaseCurrencyFallsBack(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.BaseCurrency = "EUR"
	validateBaseCurrency(cfg)
	if cfg.BaseCurrency != "CAD" {
		t.Errorf("BaseCurrency = %q, want CAD fallback", cfg.BaseCurrency)
	}
}

func TestConfig_IsProduction(t *testing.T) {
	cfg := NewDefaultConfig()
	if cfg.IsProduction() {
		t.Error("development default should not be production")
	}
	for _, env := range []string{"production", "PROD", " prod "} {
		cfg.Environment = env
		if !cfg.IsProduction() {
			t.Errorf("IsProduction(%q) = false, want true", env)
		}
	}
}

func TestQuestradeConfig_TimeoutFallback(t *testing.T) {
	c := &QuestradeConfig{Timeout: "not-a-duration"}
	if c.GetTimeout() != 30*time.Second {
		t.Errorf("GetTimeout() = %v, want 30s fallback", c.GetTimeout())
	}
}
