package detector

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/mmradar/internal/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// bookWith builds a one-level-per-side book with the given notional values.
func bookWith(bidNotional, askNotional float64) models.OrderBook {
	return models.OrderBook{
		Bids: []models.Level{{Price: 100, Quantity: bidNotional / 100}},
		Asks: []models.Level{{Price: 100.1, Quantity: askNotional / 100.1}},
	}
}

func TestBidSupport_BandAndCap(t *testing.T) {
	book := models.OrderBook{
		Bids: []models.Level{
			{Price: 100, Quantity: 100},  // 10k
			{Price: 99, Quantity: 100},   // 9.9k
			{Price: 97.5, Quantity: 100}, // outside 2%
		},
	}
	assert.InDelta(t, 19900.0, BidSupport(book, DefaultDepthCap), 1e-9)

	// The level that crosses the cap is still counted, then summing stops.
	assert.InDelta(t, 19900.0, BidSupport(book, 15000), 1e-9)
	assert.InDelta(t, 10000.0, BidSupport(book, 5000), 1e-9)
	assert.Zero(t, BidSupport(models.OrderBook{}, DefaultDepthCap))
}

func TestAskResistance_Band(t *testing.T) {
	book := models.OrderBook{
		Asks: []models.Level{
			{Price: 100, Quantity: 100},
			{Price: 101.5, Quantity: 100},
			{Price: 102.5, Quantity: 100},
		},
	}
	assert.InDelta(t, 20150.0, AskResistance(book, DefaultDepthCap), 1e-9)
}

func TestBaselineTracker_RequiresMinSamples(t *testing.T) {
	clock := newFakeClock()
	tr := NewBaselineTracker(WithClock(clock.Now))

	for i := 0; i < MinBaselineSamples-1; i++ {
		tr.Observe("BTC/USDT", bookWith(50000, 50000))
		clock.Advance(time.Minute)
	}
	stats, ok := tr.Stats("BTC/USDT")
	assert.False(t, ok)
	assert.Equal(t, MinBaselineSamples-1, stats.Samples)
	assert.Equal(t, MinBaselineSamples, stats.Required)

	tr.Observe("BTC/USDT", bookWith(50000, 50000))
	stats, ok = tr.Stats("BTC/USDT")
	require.True(t, ok)
	assert.Equal(t, MinBaselineSamples, stats.Samples)
	assert.InDelta(t, 50000.0, stats.MeanBidSupport, 1e-6)
	assert.InDelta(t, 0.0, stats.StdBidSupport, 1e-6)
	assert.InDelta(t, 1.0, stats.MeanRatio, 1e-9)
}

func TestBaselineTracker_PopulationStd(t *testing.T) {
	clock := newFakeClock()
	tr := NewBaselineTracker(WithClock(clock.Now), WithMinSamples(2))

	tr.Observe("ETH/USDT", bookWith(10000, 10000))
	tr.Observe("ETH/USDT", bookWith(30000, 10000))

	stats, ok := tr.Stats("ETH/USDT")
	require.True(t, ok)
	assert.Equal(t, 2, stats.Required)
	assert.InDelta(t, 20000.0, stats.MeanBidSupport, 1e-6)
	// Population std of {10k, 30k} is 10k; the sample formula would give ~14.1k.
	assert.InDelta(t, 10000.0, stats.StdBidSupport, 1e-6)
	assert.InDelta(t, 2.0, stats.MeanRatio, 1e-9)
	assert.InDelta(t, 1.0, stats.StdRatio, 1e-9)
}

func TestBaselineTracker_ZeroAskRatio(t *testing.T) {
	clock := newFakeClock()
	tr := NewBaselineTracker(WithClock(clock.Now), WithMinSamples(1))

	tr.Observe("X/USDT", models.OrderBook{Bids: []models.Level{{Price: 1, Quantity: 10}}})
	stats, ok := tr.Stats("X/USDT")
	require.True(t, ok)
	assert.Zero(t, stats.MeanRatio)
	assert.False(t, math.IsNaN(stats.StdRatio))
}

func TestBaselineTracker_EvictsOnUpdate(t *testing.T) {
	clock := newFakeClock()
	tr := NewBaselineTracker(WithClock(clock.Now))

	tr.Observe("BTC/USDT", bookWith(1_000_000, 50000)) // outlier that must age out
	clock.Advance(31 * time.Minute)
	for i := 0; i < MinBaselineSamples; i++ {
		tr.Observe("BTC/USDT", bookWith(40000, 50000))
	}

	stats, ok := tr.Stats("BTC/USDT")
	require.True(t, ok)
	assert.Equal(t, MinBaselineSamples, stats.Samples)
	assert.InDelta(t, 40000.0, stats.MeanBidSupport, 1e-6)
}

func TestBaselineTracker_StatsRevertWhenWindowElapses(t *testing.T) {
	clock := newFakeClock()
	tr := NewBaselineTracker(WithClock(clock.Now))

	for i := 0; i < 12; i++ {
		tr.Observe("SOL/USDT", bookWith(40000, 50000))
		clock.Advance(2 * time.Minute)
	}
	_, ok := tr.Stats("SOL/USDT")
	require.True(t, ok)

	// Samples were taken at t0..t0+22m; at t0+36m only the 8 after t0+6m remain.
	clock.Advance(12 * time.Minute)
	stats, ok := tr.Stats("SOL/USDT")
	assert.False(t, ok)
	assert.Less(t, stats.Samples, MinBaselineSamples)

	clock.Advance(time.Hour)
	assert.Zero(t, tr.Len("SOL/USDT"))
}

func TestBaselineTracker_InstrumentsAreIndependent(t *testing.T) {
	clock := newFakeClock()
	tr := NewBaselineTracker(WithClock(clock.Now), WithMinSamples(1))

	var wg sync.WaitGroup
	for _, sym := range []string{"A/USDT", "B/USDT", "C/USDT"} {
		wg.Add(1)
		go func(sym string) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				tr.Observe(sym, bookWith(10000, 10000))
			}
		}(sym)
	}
	wg.Wait()

	assert.ElementsMatch(t, []string{"A/USDT", "B/USDT", "C/USDT"}, tr.Instruments())
	for _, sym := range tr.Instruments() {
		assert.Equal(t, 50, tr.Len(sym))
	}
	_, ok := tr.Stats("unknown/USDT")
	assert.False(t, ok)
}
