package main

import (
	"context"
	"testing"
	"time"

	"github.com/rewired-gh/mmradar/internal/config"
	"github.com/rewired-gh/mmradar/internal/models"
	"github.com/rewired-gh/mmradar/internal/monitor"
)

type steadyMarket struct{}

func (steadyMarket) FetchOrderBook(context.Context, string) (models.OrderBook, error) {
	return models.OrderBook{
		Bids: []models.Level{{Price: 100, Quantity: 1000}},
		Asks: []models.Level{{Price: 100.1, Quantity: 1000}},
	}, nil
}

func (steadyMarket) FetchCandles(context.Context, string) ([]models.Candle, error) {
	return []models.Candle{{Open: 100, High: 101, Low: 99, Close: 100, Volume: 10}}, nil
}

func (steadyMarket) FetchTrades(context.Context, string) ([]models.Trade, error) {
	return []models.Trade{{Price: 100, Quantity: 1, Side: models.TakerBuy}}, nil
}

// The shipped defaults must fill the baseline window within one window length
// and keep it valid from then on.
func TestDefaultCadenceWarmsBaseline(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mc := monitorConfig(cfg.Monitor)
	mc.Now = func() time.Time { return now }
	mon := monitor.New(steadyMarket{}, mc, nil)

	const inst = "BTC/USDT"
	ctx := context.Background()
	start := now
	nextSample, nextScan := now, now
	validScans, scans := 0, 0

	for now.Sub(start) <= 2*time.Hour {
		if !now.Before(nextSample) {
			if _, err := mon.SampleBaseline(ctx, []string{inst}); err != nil {
				t.Fatalf("SampleBaseline: %v", err)
			}
			nextSample = nextSample.Add(cfg.Monitor.SampleInterval)
		}
		if !now.Before(nextScan) {
			mon.Scan(ctx, []string{inst})
			if now.Sub(start) >= cfg.Monitor.BaselineWindow {
				scans++
				if _, ok := mon.Baseline(inst); ok {
					validScans++
				}
			}
			nextScan = nextScan.Add(cfg.Monitor.ScanInterval)
		}
		now = now.Add(time.Second)
	}

	if scans == 0 || validScans != scans {
		t.Errorf("baseline valid on %d/%d scans after the first window (sample %v, scan %v, window %v, min %d)",
			validScans, scans, cfg.Monitor.SampleInterval, cfg.Monitor.ScanInterval,
			cfg.Monitor.BaselineWindow, cfg.Monitor.MinBaselineSamples)
	}
}
