package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/rewired-gh/mmradar/internal/models"
)

// EnvPrefix prefixes every environment override, e.g. MMRADAR_TELEGRAM_BOT_TOKEN.
const EnvPrefix = "MMRADAR"

// Config represents the complete application configuration
type Config struct {
	Exchange ExchangeConfig `mapstructure:"exchange"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Storage  StorageConfig  `mapstructure:"storage"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ExchangeConfig holds Binance futures REST configuration
type ExchangeConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	Timeout         time.Duration `mapstructure:"timeout"`
	RequestsPerSec  float64       `mapstructure:"requests_per_sec"`
	Burst           int           `mapstructure:"burst"`
	MaxRetries      int           `mapstructure:"max_retries"`
	BreakerFailures int           `mapstructure:"breaker_failures"`
	BreakerTimeout  time.Duration `mapstructure:"breaker_timeout"`
	DepthLimit      int           `mapstructure:"depth_limit"`
	KlineInterval   string        `mapstructure:"kline_interval"`
	KlineLimit      int           `mapstructure:"kline_limit"`
	TradeLimit      int           `mapstructure:"trade_limit"`
}

// MonitorConfig holds scanning and detection configuration
type MonitorConfig struct {
	ScanInterval       time.Duration `mapstructure:"scan_interval"`
	SampleInterval     time.Duration `mapstructure:"sample_interval"` // order-book baseline sampling
	Concurrency        int           `mapstructure:"concurrency"`
	Watchlist          []string      `mapstructure:"watchlist"` // scanned even without subscribers
	BaselineWindow     time.Duration `mapstructure:"baseline_window"`
	MinBaselineSamples int           `mapstructure:"min_baseline_samples"`
	InfoCooldown       time.Duration `mapstructure:"info_cooldown"`
	DepthCap           float64       `mapstructure:"depth_cap"`
	DropPct            float64       `mapstructure:"drop_pct"`
	PumpPct            float64       `mapstructure:"pump_pct"`
	SurgeRatio         float64       `mapstructure:"surge_ratio"`
	VolatilityRatio    float64       `mapstructure:"volatility_ratio"`
	TradeBatch         int           `mapstructure:"trade_batch"`
}

// SamplesPerWindow is how many baseline samples the window holds at the
// sampling cadence.
func (m MonitorConfig) SamplesPerWindow() int {
	if m.SampleInterval <= 0 {
		return 0
	}
	return int(m.BaselineWindow / m.SampleInterval)
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"` // admin chat for error and recovery notices
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// StorageConfig holds storage and persistence configuration
type StorageConfig struct {
	DBPath    string `mapstructure:"db_path"`
	MaxAlerts int    `mapstructure:"max_alerts"`
}

// HTTPConfig holds the diagnostics server configuration
type HTTPConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from an optional .env file, the config file at
// path, and environment variables. An empty path skips the config file.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	for i, s := range cfg.Monitor.Watchlist {
		cfg.Monitor.Watchlist[i] = models.NormalizeInstrument(s)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Exchange defaults
	v.SetDefault("exchange.base_url", "https://fapi.binance.com")
	v.SetDefault("exchange.timeout", "10s")
	v.SetDefault("exchange.requests_per_sec", 10.0)
	v.SetDefault("exchange.burst", 5)
	v.SetDefault("exchange.max_retries", 3)
	v.SetDefault("exchange.breaker_failures", 5)
	v.SetDefault("exchange.breaker_timeout", "30s")
	v.SetDefault("exchange.depth_limit", 100)
	v.SetDefault("exchange.kline_interval", "5m")
	v.SetDefault("exchange.kline_limit", 50)
	v.SetDefault("exchange.trade_limit", 500)

	// Monitor defaults
	v.SetDefault("monitor.scan_interval", "5m")
	v.SetDefault("monitor.sample_interval", "2m")
	v.SetDefault("monitor.concurrency", 4)
	v.SetDefault("monitor.watchlist", []string{})
	v.SetDefault("monitor.baseline_window", "30m")
	v.SetDefault("monitor.min_baseline_samples", 10)
	v.SetDefault("monitor.info_cooldown", "1h")
	v.SetDefault("monitor.depth_cap", 100000.0)
	v.SetDefault("monitor.drop_pct", 10.0)
	v.SetDefault("monitor.pump_pct", 15.0)
	v.SetDefault("monitor.surge_ratio", 2.0)
	v.SetDefault("monitor.volatility_ratio", 3.0)
	v.SetDefault("monitor.trade_batch", 500)

	// Telegram defaults; listed so environment overrides are picked up
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	// Storage defaults
	v.SetDefault("storage.db_path", "./data/mmradar.db")
	v.SetDefault("storage.max_alerts", 10000)

	// HTTP defaults
	v.SetDefault("http.enabled", true)
	v.SetDefault("http.addr", ":8080")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Exchange config
	if c.Exchange.BaseURL == "" {
		return fmt.Errorf("exchange.base_url is required")
	}
	if c.Exchange.Timeout <= 0 {
		return fmt.Errorf("exchange.timeout must be positive")
	}
	if c.Exchange.RequestsPerSec <= 0 {
		return fmt.Errorf("exchange.requests_per_sec must be positive")
	}
	if c.Exchange.MaxRetries < 0 {
		return fmt.Errorf("exchange.max_retries must not be negative")
	}
	if c.Exchange.KlineLimit < 13 {
		return fmt.Errorf("exchange.kline_limit must be at least 13 to cover the volume window")
	}
	if c.Exchange.TradeLimit < 1 || c.Exchange.TradeLimit > 1000 {
		return fmt.Errorf("exchange.trade_limit must be between 1 and 1000")
	}

	// Validate Monitor config
	if c.Monitor.ScanInterval < 1*time.Minute {
		return fmt.Errorf("monitor.scan_interval must be at least 1 minute")
	}
	if c.Monitor.Concurrency < 1 {
		return fmt.Errorf("monitor.concurrency must be at least 1")
	}
	for _, inst := range c.Monitor.Watchlist {
		if err := models.ValidateInstrument(inst); err != nil {
			return fmt.Errorf("monitor.watchlist: %w", err)
		}
	}
	if c.Monitor.BaselineWindow < 1*time.Minute {
		return fmt.Errorf("monitor.baseline_window must be at least 1 minute")
	}
	if c.Monitor.MinBaselineSamples < 2 {
		return fmt.Errorf("monitor.min_baseline_samples must be at least 2")
	}
	if c.Monitor.SampleInterval < 1*time.Second {
		return fmt.Errorf("monitor.sample_interval must be at least 1 second")
	}
	if n := c.Monitor.SamplesPerWindow(); n < c.Monitor.MinBaselineSamples {
		return fmt.Errorf("monitor.baseline_window %v holds only %d samples at monitor.sample_interval %v, need monitor.min_baseline_samples %d",
			c.Monitor.BaselineWindow, n, c.Monitor.SampleInterval, c.Monitor.MinBaselineSamples)
	}
	if c.Monitor.InfoCooldown < 0 {
		return fmt.Errorf("monitor.info_cooldown must not be negative")
	}
	if c.Monitor.DepthCap <= 0 {
		return fmt.Errorf("monitor.depth_cap must be positive")
	}
	if c.Monitor.DropPct <= 0 || c.Monitor.DropPct >= 100 {
		return fmt.Errorf("monitor.drop_pct must be between 0 and 100")
	}
	if c.Monitor.PumpPct <= 0 {
		return fmt.Errorf("monitor.pump_pct must be positive")
	}
	if c.Monitor.SurgeRatio <= 1 {
		return fmt.Errorf("monitor.surge_ratio must be greater than 1")
	}
	if c.Monitor.VolatilityRatio <= 1 {
		return fmt.Errorf("monitor.volatility_ratio must be greater than 1")
	}
	if c.Monitor.TradeBatch < 1 {
		return fmt.Errorf("monitor.trade_batch must be at least 1")
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	// Validate Storage config
	if c.Storage.MaxAlerts < 0 {
		return fmt.Errorf("storage.max_alerts must not be negative")
	}

	// Validate HTTP config
	if c.HTTP.Enabled && c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required when http is enabled")
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}
