package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/mmradar/internal/config"
	"github.com/rewired-gh/mmradar/internal/detector"
	"github.com/rewired-gh/mmradar/internal/exchange"
	"github.com/rewired-gh/mmradar/internal/logger"
	"github.com/rewired-gh/mmradar/internal/monitor"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "mmradar",
	Short: "Market maker withdrawal and pump/dump radar",
	Long: `mmradar watches order books, candles and trades of futures instruments,
scores the risk that market makers are pulling liquidity, and alerts
Telegram subscribers when it rises.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration file (environment only when empty)")
	rootCmd.AddCommand(runCmd, analyzeCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	if configPath != "" {
		logger.Info("Configuration loaded from %s", configPath)
	}
	return cfg, nil
}

func exchangeOptions(c config.ExchangeConfig) exchange.Options {
	opts := exchange.DefaultOptions()
	opts.BaseURL = c.BaseURL
	opts.Timeout = c.Timeout
	opts.RequestsPerSec = c.RequestsPerSec
	opts.Burst = c.Burst
	opts.MaxRetries = uint64(c.MaxRetries)
	opts.BreakerFailures = uint32(c.BreakerFailures)
	opts.BreakerTimeout = c.BreakerTimeout
	opts.DepthLimit = c.DepthLimit
	opts.KlineInterval = c.KlineInterval
	opts.KlineLimit = c.KlineLimit
	opts.TradeLimit = c.TradeLimit
	return opts
}

func monitorConfig(c config.MonitorConfig) monitor.Config {
	mc := monitor.DefaultConfig()
	mc.Thresholds = detector.Thresholds{
		DepthCap:        c.DepthCap,
		DropPct:         c.DropPct,
		PumpPct:         c.PumpPct,
		SurgeRatio:      c.SurgeRatio,
		VolatilityRatio: c.VolatilityRatio,
		TradeBatch:      c.TradeBatch,
	}
	mc.BaselineWindow = c.BaselineWindow
	mc.MinBaselineSamples = c.MinBaselineSamples
	mc.InfoCooldown = c.InfoCooldown
	mc.Concurrency = c.Concurrency
	return mc
}
