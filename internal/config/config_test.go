package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAndValidate(t *testing.T) {
	path := writeConfig(t, `
exchange:
  timeout: 5s
  kline_limit: 60

monitor:
  scan_interval: 2m
  concurrency: 8
  watchlist:
    - btc
    - ETH/USDT
  drop_pct: 12

telegram:
  bot_token: "test_token"
  chat_id: "12345"
  enabled: true

storage:
  db_path: "./data/test.db"

logging:
  level: "debug"
  format: "text"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Exchange.Timeout != 5*time.Second {
		t.Errorf("Unexpected timeout: %v", cfg.Exchange.Timeout)
	}
	if cfg.Exchange.BaseURL != "https://fapi.binance.com" {
		t.Errorf("Default base URL not applied: %q", cfg.Exchange.BaseURL)
	}
	if cfg.Monitor.ScanInterval != 2*time.Minute {
		t.Errorf("Unexpected scan interval: %v", cfg.Monitor.ScanInterval)
	}
	if cfg.Monitor.DropPct != 12 {
		t.Errorf("Unexpected drop pct: %f", cfg.Monitor.DropPct)
	}
	if cfg.Monitor.BaselineWindow != 30*time.Minute {
		t.Errorf("Default baseline window not applied: %v", cfg.Monitor.BaselineWindow)
	}
	if len(cfg.Monitor.Watchlist) != 2 || cfg.Monitor.Watchlist[0] != "BTC/USDT" {
		t.Errorf("Watchlist not normalized: %v", cfg.Monitor.Watchlist)
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("MMRADAR_TELEGRAM_BOT_TOKEN", "from_env")
	t.Setenv("MMRADAR_MONITOR_CONCURRENCY", "16")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Telegram.BotToken != "from_env" {
		t.Errorf("Expected env bot token, got %q", cfg.Telegram.BotToken)
	}
	if cfg.Monitor.Concurrency != 16 {
		t.Errorf("Expected env concurrency, got %d", cfg.Monitor.Concurrency)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	return cfg
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing telegram token when enabled", func(c *Config) {
			c.Telegram.Enabled = true
			c.Telegram.ChatID = "1"
		}},
		{"missing chat id when enabled", func(c *Config) {
			c.Telegram.Enabled = true
			c.Telegram.BotToken = "t"
		}},
		{"scan interval too short", func(c *Config) { c.Monitor.ScanInterval = 30 * time.Second }},
		{"zero concurrency", func(c *Config) { c.Monitor.Concurrency = 0 }},
		{"bad watchlist entry", func(c *Config) { c.Monitor.Watchlist = []string{"BTC/USDT/X"} }},
		{"surge ratio not above one", func(c *Config) { c.Monitor.SurgeRatio = 1 }},
		{"drop pct out of range", func(c *Config) { c.Monitor.DropPct = 120 }},
		{"kline limit too small", func(c *Config) { c.Exchange.KlineLimit = 5 }},
		{"trade limit too large", func(c *Config) { c.Exchange.TradeLimit = 5000 }},
		{"http without addr", func(c *Config) { c.HTTP.Addr = "" }},
		{"invalid log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"invalid log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"sample interval as slow as the scan", func(c *Config) { c.Monitor.SampleInterval = 5 * time.Minute }},
		{"window too short for min samples", func(c *Config) { c.Monitor.BaselineWindow = 15 * time.Minute }},
		{"zero sample interval", func(c *Config) { c.Monitor.SampleInterval = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() expected error")
			}
		})
	}
}

func TestDefaultsWarmBaseline(t *testing.T) {
	cfg := validConfig(t)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
	if got := cfg.Monitor.SamplesPerWindow(); got < cfg.Monitor.MinBaselineSamples {
		t.Errorf("SamplesPerWindow() = %d, want at least %d", got, cfg.Monitor.MinBaselineSamples)
	}
	if cfg.Monitor.SampleInterval >= cfg.Monitor.ScanInterval {
		t.Errorf("sample interval %v should be faster than scan interval %v",
			cfg.Monitor.SampleInterval, cfg.Monitor.ScanInterval)
	}
}

func TestSamplesPerWindow(t *testing.T) {
	tests := []struct {
		window, interval time.Duration
		want             int
	}{
		{30 * time.Minute, 3 * time.Minute, 10},
		{30 * time.Minute, 2 * time.Minute, 15},
		{30 * time.Minute, 5 * time.Minute, 6},
		{30 * time.Minute, 0, 0},
	}
	for _, tt := range tests {
		m := MonitorConfig{BaselineWindow: tt.window, SampleInterval: tt.interval}
		if got := m.SamplesPerWindow(); got != tt.want {
			t.Errorf("SamplesPerWindow(%v, %v) = %d, want %d", tt.window, tt.interval, got, tt.want)
		}
	}
}
