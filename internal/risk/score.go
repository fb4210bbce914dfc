// Package risk turns detector signals into a bounded risk score and decides
// when an assessment is worth delivering.
package risk

import "github.com/rewired-gh/mmradar/internal/models"

const (
	MaxScore = 100

	CriticalScore = 80
	WarningScore  = 50
)

type weightKey struct {
	typ      models.SignalType
	severity models.Severity
}

// weights holds the points each (type, severity) pair contributes.
// Pairs that are absent contribute nothing.
var weights = map[weightKey]int{
	{models.SignalWallRemoval, models.SeverityCritical}: 40,
	{models.SignalWallRemoval, models.SeverityWarning}:  20,
	{models.SignalWallRemoval, models.SeverityInfo}:     10,

	{models.SignalLiquidityDrain, models.SeverityCritical}: 30,
	{models.SignalLiquidityDrain, models.SeverityWarning}:  15,
	{models.SignalLiquidityDrain, models.SeverityInfo}:     5,

	{models.SignalPriceDrop, models.SeverityCritical}: 30,
	{models.SignalPriceDrop, models.SeverityWarning}:  15,

	{models.SignalVolumeSurge, models.SeverityCritical}: 15,
	{models.SignalVolumeSurge, models.SeverityWarning}:  10,

	{models.SignalSellPressure, models.SeverityCritical}: 20,
	{models.SignalSellPressure, models.SeverityWarning}:  10,
}

// Weight returns the contribution of a single signal.
func Weight(t models.SignalType, s models.Severity) int {
	return weights[weightKey{t, s}]
}

// Score sums signal weights and clamps the result to [0, MaxScore].
func Score(signals []models.Signal) int {
	total := 0
	for _, s := range signals {
		total += Weight(s.Type, s.Severity)
	}
	return min(max(total, 0), MaxScore)
}

// Tier maps a score to the overall assessment severity.
func Tier(score int) models.Severity {
	switch {
	case score >= CriticalScore:
		return models.SeverityCritical
	case score >= WarningScore:
		return models.SeverityWarning
	default:
		return models.SeverityInfo
	}
}

var recommendations = []struct {
	floor int
	text  string
}{
	{80, "🔴 EXTREME RISK\n• Close long positions now\n• Consider a short with a tight stop loss\n• No new longs until the market stabilises"},
	{60, "⚠️ HIGH RISK\n• Cut leverage to the minimum\n• Prepare to exit long positions\n• Set a tight stop loss\n• Watch the market closely"},
	{40, "📊 ELEVATED RISK\n• Be careful with new long positions\n• Reduce position size\n• Watch volume and price action\n• Wait for confirmation before entering"},
	{20, "📈 WATCH\n• Mild anomalies detected\n• Keep monitoring\n• Be careful when raising leverage"},
	{0, "✅ NORMAL\n• No sign of market makers pulling out\n• Trading conditions look normal\n• Keep managing risk"},
}

// Recommendation returns the action guidance for a score band. It depends on
// the score only.
func Recommendation(score int) string {
	for _, r := range recommendations {
		if score >= r.floor {
			return r.text
		}
	}
	return recommendations[len(recommendations)-1].text
}
