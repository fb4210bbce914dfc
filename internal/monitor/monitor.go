// Package monitor orchestrates data fetching, detectors, scoring and alert
// scheduling for a set of instruments.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/rewired-gh/mmradar/internal/detector"
	"github.com/rewired-gh/mmradar/internal/logger"
	"github.com/rewired-gh/mmradar/internal/metrics"
	"github.com/rewired-gh/mmradar/internal/models"
	"github.com/rewired-gh/mmradar/internal/risk"
)

// MarketData supplies fresh snapshots for one instrument. Implementations own
// transport and retry policy.
type MarketData interface {
	FetchOrderBook(ctx context.Context, instrument string) (models.OrderBook, error)
	FetchCandles(ctx context.Context, instrument string) ([]models.Candle, error)
	FetchTrades(ctx context.Context, instrument string) ([]models.Trade, error)
}

// Fetch sources reported in FetchError.
const (
	SourceOrderBook = "orderbook"
	SourceCandles   = "candles"
	SourceTrades    = "trades"
)

// FetchError reports that market data for an instrument could not be obtained.
type FetchError struct {
	Instrument string
	Source     string
	Err        error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s for %s: %v", e.Source, e.Instrument, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

const (
	FailedRecommendation = "❌ Analysis failed, market data unavailable"
	NoSignalsSummary     = "No anomalies detected"
)

type Config struct {
	Thresholds         detector.Thresholds
	BaselineWindow     time.Duration
	MinBaselineSamples int
	InfoCooldown       time.Duration
	Concurrency        int
	// Now overrides the clock used for baselines, cooldowns and timestamps.
	Now func() time.Time
}

func DefaultConfig() Config {
	return Config{
		Thresholds:         detector.DefaultThresholds(),
		BaselineWindow:     detector.DefaultBaselineWindow,
		MinBaselineSamples: detector.MinBaselineSamples,
		InfoCooldown:       risk.DefaultInfoCooldown,
		Concurrency:        4,
		Now:                time.Now,
	}
}

type Monitor struct {
	data      MarketData
	baseline  *detector.BaselineTracker
	scheduler *risk.Scheduler
	config    Config
	metrics   *metrics.Registry
	now       func() time.Time

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New builds a monitor. reg may be nil.
func New(data MarketData, config Config, reg *metrics.Registry) *Monitor {
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	return &Monitor{
		data: data,
		baseline: detector.NewBaselineTracker(
			detector.WithClock(config.Now),
			detector.WithWindow(config.BaselineWindow),
			detector.WithMinSamples(config.MinBaselineSamples),
			detector.WithDepthCap(config.Thresholds.DepthCap),
		),
		scheduler: risk.NewScheduler(config.InfoCooldown, config.Now),
		config:    config,
		metrics:   reg,
		now:       config.Now,
		locks:     make(map[string]*sync.Mutex),
	}
}

// lock serializes analyses of the same instrument.
func (m *Monitor) lock(instrument string) func() {
	m.locksMu.Lock()
	mu, ok := m.locks[instrument]
	if !ok {
		mu = &sync.Mutex{}
		m.locks[instrument] = mu
	}
	m.locksMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

type snapshot struct {
	book    models.OrderBook
	candles []models.Candle
	trades  []models.Trade
}

func (m *Monitor) fetch(ctx context.Context, instrument string) (snapshot, error) {
	var s snapshot
	var err error

	if s.book, err = m.data.FetchOrderBook(ctx, instrument); err != nil {
		return s, &FetchError{Instrument: instrument, Source: SourceOrderBook, Err: err}
	}
	if err = s.book.Validate(); err != nil {
		return s, &FetchError{Instrument: instrument, Source: SourceOrderBook, Err: err}
	}
	if s.candles, err = m.data.FetchCandles(ctx, instrument); err != nil {
		return s, &FetchError{Instrument: instrument, Source: SourceCandles, Err: err}
	}
	if s.trades, err = m.data.FetchTrades(ctx, instrument); err != nil {
		return s, &FetchError{Instrument: instrument, Source: SourceTrades, Err: err}
	}
	return s, nil
}

// Analyze fetches fresh data for instrument, feeds the book into the baseline
// and runs every detector. It never returns an error; failures are reported
// in the assessment's Err field.
func (m *Monitor) Analyze(ctx context.Context, instrument string) models.RiskAssessment {
	return m.analyze(ctx, instrument, true)
}

// Peek is Analyze without recording the book in the baseline. On-demand
// callers use it so request bursts cannot shape the baseline.
func (m *Monitor) Peek(ctx context.Context, instrument string) models.RiskAssessment {
	return m.analyze(ctx, instrument, false)
}

func (m *Monitor) analyze(ctx context.Context, instrument string, observe bool) models.RiskAssessment {
	start := time.Now()
	instrument = models.NormalizeInstrument(instrument)
	if err := models.ValidateInstrument(instrument); err != nil {
		return m.failed(instrument, err, start)
	}

	unlock := m.lock(instrument)
	defer unlock()

	snap, err := m.fetch(ctx, instrument)
	if err != nil {
		var fe *FetchError
		if errors.As(err, &fe) {
			m.metrics.FetchFailed(fe.Source)
		}
		return m.failed(instrument, err, start)
	}

	if observe {
		m.baseline.Observe(instrument, snap.book)
	}
	stats, ok := m.baseline.Stats(instrument)

	th := m.config.Thresholds
	results := []detector.Result{
		detector.WallRemoval(stats, ok, snap.book, th),
		detector.LiquidityDrain(snap.book),
		detector.PriceDrop(snap.candles, th),
		detector.PricePump(snap.candles, th),
		detector.VolumeSurge(snap.candles, th),
		detector.VolatilitySpike(snap.candles, th),
		detector.BuySellPressure(snap.trades, th),
	}

	signals := []models.Signal{}
	for _, r := range results {
		if r.Reason != nil {
			logger.Debug("%s: detector skipped: %s (%v)", instrument, r.Message, r.Reason)
			continue
		}
		sig, detected := r.Signal()
		if !detected {
			continue
		}
		signals = append(signals, sig)
		m.metrics.SignalDetected(string(sig.Type), sig.Severity.String())
	}

	score := risk.Score(signals)
	a := models.RiskAssessment{
		Instrument:     instrument,
		RiskScore:      score,
		Severity:       risk.Tier(score),
		Signals:        signals,
		Recommendation: risk.Recommendation(score),
		Summary:        summarize(signals),
		Timestamp:      m.now(),
	}
	m.metrics.ObserveAnalysis(instrument, a.Severity.String(), score, false, time.Since(start))
	logger.Debug("%s: score=%d severity=%s signals=%d", instrument, score, a.Severity, len(signals))
	return a
}

func (m *Monitor) failed(instrument string, err error, start time.Time) models.RiskAssessment {
	logger.Warn("Analysis of %s failed: %v", instrument, err)
	m.metrics.ObserveAnalysis(instrument, models.SeverityInfo.String(), 0, true, time.Since(start))
	return models.RiskAssessment{
		Instrument:     instrument,
		RiskScore:      0,
		Severity:       models.SeverityInfo,
		Signals:        []models.Signal{},
		Recommendation: FailedRecommendation,
		Summary:        err.Error(),
		Timestamp:      m.now(),
		Err:            err,
	}
}

func summarize(signals []models.Signal) string {
	if len(signals) == 0 {
		return NoSignalsSummary
	}
	msgs := make([]string, len(signals))
	for i, s := range signals {
		msgs[i] = s.Message
	}
	return strings.Join(msgs, "\n")
}

// Scan analyzes instruments concurrently with at most Config.Concurrency
// analyses in flight. Results are returned in input order. Duplicate
// instruments are analyzed one after another.
func (m *Monitor) Scan(ctx context.Context, instruments []string) []models.RiskAssessment {
	results := make([]models.RiskAssessment, len(instruments))
	p := pool.New().WithMaxGoroutines(m.config.Concurrency)
	for i, inst := range instruments {
		p.Go(func() {
			if err := ctx.Err(); err != nil {
				results[i] = m.failed(models.NormalizeInstrument(inst), err, time.Now())
				return
			}
			results[i] = m.Analyze(ctx, inst)
		})
	}
	p.Wait()
	m.metrics.SetScanSize(len(instruments))
	return results
}

// SampleBaseline fetches only the order book of each instrument and records
// it in the baseline. It runs on its own cadence, faster than full scans, so
// the window collects enough samples. It returns how many were recorded and
// the joined fetch errors.
func (m *Monitor) SampleBaseline(ctx context.Context, instruments []string) (int, error) {
	errs := make([]error, len(instruments))
	p := pool.New().WithMaxGoroutines(m.config.Concurrency)
	for i, inst := range instruments {
		p.Go(func() {
			errs[i] = m.sample(ctx, inst)
		})
	}
	p.Wait()

	sampled := 0
	for _, err := range errs {
		if err == nil {
			sampled++
		}
	}
	return sampled, errors.Join(errs...)
}

func (m *Monitor) sample(ctx context.Context, instrument string) error {
	instrument = models.NormalizeInstrument(instrument)
	if err := models.ValidateInstrument(instrument); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	unlock := m.lock(instrument)
	defer unlock()

	book, err := m.data.FetchOrderBook(ctx, instrument)
	if err == nil {
		err = book.Validate()
	}
	if err != nil {
		m.metrics.FetchFailed(SourceOrderBook)
		return &FetchError{Instrument: instrument, Source: SourceOrderBook, Err: err}
	}
	m.baseline.Observe(instrument, book)
	return nil
}

// ShouldAlert decides whether a is worth delivering. Failed assessments and
// assessments without signals are never delivered. It does not change state.
func (m *Monitor) ShouldAlert(a models.RiskAssessment) bool {
	if a.Failed() || len(a.Signals) == 0 {
		return false
	}
	return m.scheduler.Decide(a.Instrument, a.Severity, a.RiskScore)
}

// RecordAlerted commits an alert for instrument after it was delivered.
func (m *Monitor) RecordAlerted(a models.RiskAssessment) {
	m.scheduler.Commit(a.Instrument)
	m.metrics.AlertSent(a.Severity.String())
}

// LastAlert returns when instrument was last alerted.
func (m *Monitor) LastAlert(instrument string) (time.Time, bool) {
	return m.scheduler.LastAlert(models.NormalizeInstrument(instrument))
}

// AlertPhase returns the cooldown phase of instrument.
func (m *Monitor) AlertPhase(instrument string) risk.Phase {
	return m.scheduler.Phase(models.NormalizeInstrument(instrument))
}

// Baseline returns the current baseline statistics for diagnostics.
func (m *Monitor) Baseline(instrument string) (models.BaselineStats, bool) {
	return m.baseline.Stats(models.NormalizeInstrument(instrument))
}

// Instruments lists every instrument with baseline history.
func (m *Monitor) Instruments() []string {
	return m.baseline.Instruments()
}
