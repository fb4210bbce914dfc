package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/mmradar/internal/exchange"
	"github.com/rewired-gh/mmradar/internal/httpapi"
	"github.com/rewired-gh/mmradar/internal/logger"
	"github.com/rewired-gh/mmradar/internal/metrics"
	"github.com/rewired-gh/mmradar/internal/models"
	"github.com/rewired-gh/mmradar/internal/monitor"
	"github.com/rewired-gh/mmradar/internal/storage"
	"github.com/rewired-gh/mmradar/internal/telegram"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the monitoring service",
	Long: `Scan every tracked and watchlisted instrument on a fixed interval, deliver
alerts to Telegram subscribers and serve the diagnostics API.`,
	Args: cobra.NoArgs,
	RunE: runService,
}

// engine is the part of the monitor a cycle drives.
type engine interface {
	Scan(ctx context.Context, instruments []string) []models.RiskAssessment
	SampleBaseline(ctx context.Context, instruments []string) (int, error)
	ShouldAlert(a models.RiskAssessment) bool
	RecordAlerted(a models.RiskAssessment)
}

type alertStore interface {
	AllTrackedSymbols() ([]string, error)
	SubscribersFor(instrument string) ([]int64, error)
	RecordAlert(a models.RiskAssessment, recipients int) (models.AlertRecord, error)
	RotateAlerts() error
}

type notifier interface {
	SendAlert(chatIDs []int64, a models.RiskAssessment) (int, error)
	SendError(err error) error
	SendRecovery(failureCount int) error
}

func runService(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := storage.New(cfg.Storage.DBPath, cfg.Storage.MaxAlerts)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	reg := metrics.New()
	client := exchange.NewClient(exchangeOptions(cfg.Exchange), reg)
	mon := monitor.New(client, monitorConfig(cfg.Monitor), reg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc := &service{engine: mon, store: store, watchlist: cfg.Monitor.Watchlist}

	if cfg.Telegram.Enabled {
		tg, err := telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			return fmt.Errorf("failed to initialize Telegram client: %w", err)
		}
		logger.Info("Telegram client initialized successfully")
		tg.ListenForCommands(ctx, telegram.NewCommands(store, mon))
		svc.notifier = tg
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	if cfg.HTTP.Enabled {
		srv := httpapi.New(mon, store, reg.Handler(), map[string]httpapi.Checker{
			"storage":  func(context.Context) error { return store.Ping() },
			"exchange": client.Ping,
		})
		go func() {
			if err := srv.ListenAndServe(ctx, cfg.HTTP.Addr); err != nil {
				logger.Error("HTTP server failed: %v", err)
				stop()
			}
		}()
	}

	logger.Info("Starting monitoring service (interval: %v, sampling: %v, concurrency: %d, watchlist: %v)",
		cfg.Monitor.ScanInterval, cfg.Monitor.SampleInterval, cfg.Monitor.Concurrency, cfg.Monitor.Watchlist)

	ticker := time.NewTicker(cfg.Monitor.ScanInterval)
	defer ticker.Stop()
	sampleTicker := time.NewTicker(cfg.Monitor.SampleInterval)
	defer sampleTicker.Stop()

	logger.Debug("Running initial monitoring cycle")
	svc.handleCycleResult(svc.cycle(ctx))

	for {
		select {
		case <-ctx.Done():
			logger.Info("Service stopped")
			return nil

		case <-sampleTicker.C:
			svc.sample(ctx)

		case <-ticker.C:
			logger.Debug("Starting scheduled monitoring cycle")
			svc.handleCycleResult(svc.cycle(ctx))
			if err := store.RotateAlerts(); err != nil {
				logger.Warn("Failed to rotate alerts: %v", err)
			}
		}
	}
}

type service struct {
	engine    engine
	store     alertStore
	notifier  notifier
	watchlist []string

	consecutiveFailures int
}

// handleCycleResult notifies the admin chat on the first failure of a run of
// failures and again once a cycle succeeds.
func (s *service) handleCycleResult(err error) {
	if err != nil {
		s.consecutiveFailures++
		logger.Error("Monitoring cycle failed: %v", err)
		if s.consecutiveFailures == 1 && s.notifier != nil {
			if sendErr := s.notifier.SendError(err); sendErr != nil {
				logger.Warn("Failed to send error notification to Telegram: %v", sendErr)
			}
		}
		return
	}
	if s.consecutiveFailures > 0 && s.notifier != nil {
		if sendErr := s.notifier.SendRecovery(s.consecutiveFailures); sendErr != nil {
			logger.Warn("Failed to send recovery notification to Telegram: %v", sendErr)
		}
	}
	s.consecutiveFailures = 0
}

// cycle scans every instrument once and delivers the alerts that are due.
// It fails only when the instrument list cannot be loaded or every analysis
// failed.
func (s *service) cycle(ctx context.Context) error {
	start := time.Now()

	instruments, err := s.instruments()
	if err != nil {
		return err
	}
	if len(instruments) == 0 {
		logger.Info("No instruments to scan")
		return nil
	}

	logger.Info("Starting monitoring cycle for %d instruments", len(instruments))
	results := s.engine.Scan(ctx, instruments)
	if ctx.Err() != nil {
		return nil
	}

	failed, alerted := 0, 0
	var firstErr error
	for _, a := range results {
		if a.Failed() {
			failed++
			if firstErr == nil {
				firstErr = a.Err
			}
			logger.Warn("Analysis of %s failed: %v", a.Instrument, a.Err)
			continue
		}
		logger.Debug("%s: score %d (%s), %d signals", a.Instrument, a.RiskScore, a.Severity, len(a.Signals))
		if !s.engine.ShouldAlert(a) {
			continue
		}
		if s.deliver(a) {
			alerted++
		}
	}

	logger.Info("Monitoring cycle completed in %v: %d instruments, %d failed, %d alerts sent",
		time.Since(start), len(results), failed, alerted)

	if failed == len(results) {
		return fmt.Errorf("all %d analyses failed: %w", failed, firstErr)
	}
	return nil
}

func (s *service) instruments() ([]string, error) {
	tracked, err := s.store.AllTrackedSymbols()
	if err != nil {
		return nil, fmt.Errorf("failed to load tracked symbols: %w", err)
	}
	return mergeInstruments(s.watchlist, tracked), nil
}

// sample records order-book baselines between full scans. Failures are only
// logged; the next full scan reports fetch problems.
func (s *service) sample(ctx context.Context) {
	instruments, err := s.instruments()
	if err != nil {
		logger.Warn("Baseline sampling skipped: %v", err)
		return
	}
	if len(instruments) == 0 {
		return
	}
	n, err := s.engine.SampleBaseline(ctx, instruments)
	if err != nil && ctx.Err() == nil {
		logger.Warn("Baseline sampling recorded %d/%d books: %v", n, len(instruments), err)
		return
	}
	logger.Debug("Baseline sampling recorded %d/%d books", n, len(instruments))
}

// deliver sends a to the instrument's subscribers and commits the cooldown
// when at least one of them received it.
func (s *service) deliver(a models.RiskAssessment) bool {
	if s.notifier == nil {
		logger.Info("Alert for %s (score %d) not delivered: Telegram disabled", a.Instrument, a.RiskScore)
		return false
	}
	subscribers, err := s.store.SubscribersFor(a.Instrument)
	if err != nil {
		logger.Warn("Failed to load subscribers for %s: %v", a.Instrument, err)
		return false
	}
	if len(subscribers) == 0 {
		logger.Debug("Alert for %s has no subscribers", a.Instrument)
		return false
	}

	delivered, err := s.notifier.SendAlert(subscribers, a)
	if err != nil {
		logger.Warn("Alert for %s reached %d/%d subscribers: %v", a.Instrument, delivered, len(subscribers), err)
	}
	if delivered == 0 {
		return false
	}

	s.engine.RecordAlerted(a)
	if _, err := s.store.RecordAlert(a, delivered); err != nil {
		logger.Warn("Failed to record alert for %s: %v", a.Instrument, err)
	}
	logger.Info("Sent %s alert for %s (score %d) to %d subscribers", a.Severity, a.Instrument, a.RiskScore, delivered)
	return true
}

// mergeInstruments normalizes and de-duplicates instrument lists, keeping
// first-seen order.
func mergeInstruments(lists ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, list := range lists {
		for _, s := range list {
			inst := models.NormalizeInstrument(s)
			if inst == "" || seen[inst] {
				continue
			}
			seen[inst] = true
			out = append(out, inst)
		}
	}
	return out
}
