package detector

import "time"

// Order-book baseline.
const (
	DefaultDepthCap       = 100_000.0
	DepthBand             = 0.02
	DefaultBaselineWindow = 30 * time.Minute
	MinBaselineSamples    = 10
)

// Wall removal, in standard deviations below the baseline.
const (
	WallCriticalBidDev   = 2.0
	WallCriticalRatioDev = 1.5
	WallWarningBidDev    = 1.5
	WallLowRatio         = 0.7
	WallHealthyBaseRatio = 1.0
)

// Liquidity drain.
const (
	SpreadCriticalPct = 1.0
	SpreadWarningPct  = 0.5
	ThinDepth         = 50_000.0
	DepthLevels       = 20
)

// Price moves. Candles are historically 5-minute bars, so the lookback of 3
// spans 15 minutes and the volume window of 9 spans the preceding 45.
const (
	PriceLookback         = 3
	PriceVolumeWindow     = 9
	MinPriceCandles       = PriceLookback + 1
	DefaultDropPct        = 10.0
	DropWarningPct        = 10.0
	DropCriticalPct       = 15.0
	DefaultPumpPct        = 15.0
	ConfirmingVolumeRatio = 1.5
)

// Volume and volatility.
const (
	VolumeWindow           = 12
	MinVolumeCandles       = 12
	DefaultSurgeRatio      = 2.0
	SurgeWarningRatio      = 3.0
	SurgeCriticalRatio     = 4.0
	DefaultVolatilityRatio = 3.0
)

// Buy/sell pressure.
const (
	DefaultTradeBatch       = 500
	SellPressureWarningPct  = 60.0
	SellPressureCriticalPct = 70.0
	BuyPressureStrongPct    = 60.0
)

// Thresholds holds the tunable trigger levels. Severity ladders above the
// trigger are fixed constants.
type Thresholds struct {
	DepthCap        float64
	DropPct         float64
	PumpPct         float64
	SurgeRatio      float64
	VolatilityRatio float64
	TradeBatch      int
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		DepthCap:        DefaultDepthCap,
		DropPct:         DefaultDropPct,
		PumpPct:         DefaultPumpPct,
		SurgeRatio:      DefaultSurgeRatio,
		VolatilityRatio: DefaultVolatilityRatio,
		TradeBatch:      DefaultTradeBatch,
	}
}

// withDefaults fills zero fields so a partially populated value stays usable.
func (t Thresholds) withDefaults() Thresholds {
	d := DefaultThresholds()
	if t.DepthCap <= 0 {
		t.DepthCap = d.DepthCap
	}
	if t.DropPct <= 0 {
		t.DropPct = d.DropPct
	}
	if t.PumpPct <= 0 {
		t.PumpPct = d.PumpPct
	}
	if t.SurgeRatio <= 0 {
		t.SurgeRatio = d.SurgeRatio
	}
	if t.VolatilityRatio <= 0 {
		t.VolatilityRatio = d.VolatilityRatio
	}
	if t.TradeBatch <= 0 {
		t.TradeBatch = d.TradeBatch
	}
	return t
}
