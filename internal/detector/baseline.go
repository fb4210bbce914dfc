package detector

import (
	"sync"
	"time"

	"github.com/rewired-gh/mmradar/internal/models"
)

// BidSupport sums bid notional within DepthBand of the best bid, stopping once
// the running total reaches depthCap.
func BidSupport(book models.OrderBook, depthCap float64) float64 {
	if len(book.Bids) == 0 {
		return 0
	}
	floor := book.BestBid() * (1 - DepthBand)
	var total float64
	for _, l := range book.Bids {
		if l.Price >= floor {
			total += l.Notional()
		}
		if total >= depthCap {
			break
		}
	}
	return total
}

// AskResistance sums ask notional within DepthBand of the best ask, stopping
// once the running total reaches depthCap.
func AskResistance(book models.OrderBook, depthCap float64) float64 {
	if len(book.Asks) == 0 {
		return 0
	}
	ceiling := book.BestAsk() * (1 + DepthBand)
	var total float64
	for _, l := range book.Asks {
		if l.Price <= ceiling {
			total += l.Notional()
		}
		if total >= depthCap {
			break
		}
	}
	return total
}

// BaselineTracker keeps a trailing window of order-book samples per instrument.
// The map is guarded so distinct instruments can be observed concurrently;
// callers serialize observations of the same instrument.
type BaselineTracker struct {
	mu         sync.Mutex
	windows    map[string][]models.BaselineSample
	window     time.Duration
	minSamples int
	depthCap   float64
	now        func() time.Time
}

// TrackerOption customizes a BaselineTracker.
type TrackerOption func(*BaselineTracker)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) TrackerOption {
	return func(t *BaselineTracker) { t.now = now }
}

// WithWindow sets the trailing window length.
func WithWindow(d time.Duration) TrackerOption {
	return func(t *BaselineTracker) {
		if d > 0 {
			t.window = d
		}
	}
}

// WithDepthCap sets the notional cap applied while summing levels.
func WithDepthCap(c float64) TrackerOption {
	return func(t *BaselineTracker) {
		if c > 0 {
			t.depthCap = c
		}
	}
}

// WithMinSamples sets how many samples make the statistics valid.
func WithMinSamples(n int) TrackerOption {
	return func(t *BaselineTracker) {
		if n > 0 {
			t.minSamples = n
		}
	}
}

func NewBaselineTracker(opts ...TrackerOption) *BaselineTracker {
	t := &BaselineTracker{
		windows:    make(map[string][]models.BaselineSample),
		window:     DefaultBaselineWindow,
		minSamples: MinBaselineSamples,
		depthCap:   DefaultDepthCap,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// DepthCap returns the cap used when deriving samples.
func (t *BaselineTracker) DepthCap() float64 {
	return t.depthCap
}

// Observe derives a sample from book, appends it and evicts expired samples.
func (t *BaselineTracker) Observe(instrument string, book models.OrderBook) models.BaselineSample {
	now := t.now()
	sample := models.BaselineSample{
		Timestamp:     now,
		BidSupport:    BidSupport(book, t.depthCap),
		AskResistance: AskResistance(book, t.depthCap),
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.windows[instrument] = append(t.windows[instrument], sample)
	t.evictLocked(instrument, now)
	return sample
}

// Stats returns the baseline statistics, or false while fewer than the
// minimum number of in-window samples exist.
func (t *BaselineTracker) Stats(instrument string) (models.BaselineStats, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	samples := t.evictLocked(instrument, t.now())
	if len(samples) < t.minSamples {
		return models.BaselineStats{Samples: len(samples), Required: t.minSamples}, false
	}

	var bid, ratio welford
	for _, s := range samples {
		bid.add(s.BidSupport)
		ratio.add(s.Ratio())
	}
	return models.BaselineStats{
		MeanBidSupport: bid.mean,
		StdBidSupport:  bid.popStd(),
		MeanRatio:      ratio.mean,
		StdRatio:       ratio.popStd(),
		Samples:        len(samples),
		Required:       t.minSamples,
	}, true
}

// Len returns the number of in-window samples for instrument.
func (t *BaselineTracker) Len(instrument string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.evictLocked(instrument, t.now()))
}

// Instruments lists every instrument observed so far.
func (t *BaselineTracker) Instruments() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.windows))
	for k := range t.windows {
		out = append(out, k)
	}
	return out
}

// evictLocked drops samples at or before now-window and returns what remains.
func (t *BaselineTracker) evictLocked(instrument string, now time.Time) []models.BaselineSample {
	samples, ok := t.windows[instrument]
	if !ok {
		return nil
	}
	cutoff := now.Add(-t.window)
	i := 0
	for i < len(samples) && !samples[i].Timestamp.After(cutoff) {
		i++
	}
	if i > 0 {
		samples = append(samples[:0:0], samples[i:]...)
		t.windows[instrument] = samples
	}
	return samples
}
