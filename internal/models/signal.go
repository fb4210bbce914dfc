package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Severity ranks a signal or assessment. Higher values are more severe.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// ParseSeverity is the inverse of Severity.String.
func ParseSeverity(s string) (Severity, error) {
	switch s {
	case "info":
		return SeverityInfo, nil
	case "warning":
		return SeverityWarning, nil
	case "critical":
		return SeverityCritical, nil
	default:
		return 0, fmt.Errorf("unknown severity %q", s)
	}
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(text []byte) error {
	v, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// SignalType is the closed set of detector outputs.
type SignalType string

const (
	SignalWallRemoval     SignalType = "wall_removal"
	SignalLiquidityDrain  SignalType = "liquidity_drain"
	SignalPriceDrop       SignalType = "price_drop"
	SignalPricePump       SignalType = "price_pump"
	SignalVolumeSurge     SignalType = "volume_surge"
	SignalVolatilitySpike SignalType = "volatility_spike"
	SignalSellPressure    SignalType = "sell_pressure"
)

// SignalTypes lists every signal type in detector invocation order.
var SignalTypes = []SignalType{
	SignalWallRemoval,
	SignalLiquidityDrain,
	SignalPriceDrop,
	SignalPricePump,
	SignalVolumeSurge,
	SignalVolatilitySpike,
	SignalSellPressure,
}

// Evidence is the numeric payload attached to a signal. Each signal type has
// exactly one evidence type; the set is closed to this package.
type Evidence interface {
	SignalType() SignalType
}

type WallEvidence struct {
	CurrentBidSupport  float64 `json:"current_bid_support"`
	BaselineBidSupport float64 `json:"baseline_bid_support"`
	BidDeviation       float64 `json:"bid_std_deviations"`
	CurrentRatio       float64 `json:"current_bid_ask_ratio"`
	BaselineRatio      float64 `json:"baseline_bid_ask_ratio"`
	RatioDeviation     float64 `json:"ratio_std_deviations"`
}

func (WallEvidence) SignalType() SignalType { return SignalWallRemoval }

type LiquidityEvidence struct {
	SpreadPct  float64 `json:"spread_pct"`
	TotalDepth float64 `json:"total_depth"`
	BestBid    float64 `json:"best_bid"`
	BestAsk    float64 `json:"best_ask"`
}

func (LiquidityEvidence) SignalType() SignalType { return SignalLiquidityDrain }

// PriceMoveEvidence backs both drop and pump signals; Confirmed reports
// whether volume backs the move (a "real" dump or pump).
type PriceMoveEvidence struct {
	Direction    SignalType `json:"direction"`
	ChangePct    float64    `json:"change_pct"`
	VolumeRatio  float64    `json:"volume_ratio"`
	Confirmed    bool       `json:"confirmed"`
	CurrentPrice float64    `json:"current_price"`
	ReferencePx  float64    `json:"reference_price"`
}

func (e PriceMoveEvidence) SignalType() SignalType { return e.Direction }

type VolumeSurgeEvidence struct {
	CurrentVolume float64 `json:"current_volume"`
	AverageVolume float64 `json:"avg_volume"`
	Ratio         float64 `json:"volume_ratio"`
}

func (VolumeSurgeEvidence) SignalType() SignalType { return SignalVolumeSurge }

type VolatilityEvidence struct {
	CurrentVolatility float64 `json:"current_volatility"`
	AverageVolatility float64 `json:"avg_volatility"`
	Ratio             float64 `json:"volatility_ratio"`
}

func (VolatilityEvidence) SignalType() SignalType { return SignalVolatilitySpike }

type PressureEvidence struct {
	BuyNotional     float64 `json:"buy_volume"`
	SellNotional    float64 `json:"sell_volume"`
	SellPressurePct float64 `json:"sell_pressure_pct"`
	BuyPressurePct  float64 `json:"buy_pressure_pct"`
	Trades          int     `json:"trades"`
}

func (PressureEvidence) SignalType() SignalType { return SignalSellPressure }

// Signal is one detected anomaly.
type Signal struct {
	Type     SignalType `json:"type"`
	Severity Severity   `json:"severity"`
	Message  string     `json:"message"`
	Evidence Evidence   `json:"evidence,omitempty"`
}

// RiskAssessment is the full result of analyzing one instrument. A non-nil Err
// means the instrument could not be analyzed; it is distinct from an
// assessment that simply found nothing.
type RiskAssessment struct {
	Instrument     string    `json:"instrument"`
	RiskScore      int       `json:"risk_score"`
	Severity       Severity  `json:"severity"`
	Signals        []Signal  `json:"signals"`
	Recommendation string    `json:"recommendation"`
	Summary        string    `json:"summary"`
	Timestamp      time.Time `json:"timestamp"`
	Err            error     `json:"-"`
}

// Failed reports whether the analysis could not be completed.
func (a RiskAssessment) Failed() bool {
	return a.Err != nil
}

// MarshalJSON adds the error text, which the error value itself cannot carry.
func (a RiskAssessment) MarshalJSON() ([]byte, error) {
	type plain RiskAssessment
	out := struct {
		plain
		Error string `json:"error,omitempty"`
	}{plain: plain(a)}
	if a.Err != nil {
		out.Error = a.Err.Error()
	}
	return json.Marshal(out)
}
