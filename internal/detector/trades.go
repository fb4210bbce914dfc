package detector

import (
	"fmt"

	"github.com/rewired-gh/mmradar/internal/models"
)

// BuySellPressure splits the most recent trades (up to th.TradeBatch) by
// taker side. Only sell-dominant flow is detected; buy-dominant and balanced
// flow is reported in the message without a signal.
func BuySellPressure(trades []models.Trade, th Thresholds) Result {
	if len(trades) == 0 {
		return insufficient("No recent trades")
	}
	th = th.withDefaults()
	if len(trades) > th.TradeBatch {
		trades = trades[len(trades)-th.TradeBatch:]
	}

	var buy, sell float64
	for _, t := range trades {
		switch t.Side {
		case models.TakerBuy:
			buy += t.Notional()
		case models.TakerSell:
			sell += t.Notional()
		}
	}
	total := buy + sell
	if total <= 0 {
		return degenerate("Trade volume is zero")
	}

	sellPct := sell / total * 100
	buyPct := buy / total * 100
	ev := models.PressureEvidence{
		BuyNotional:     buy,
		SellNotional:    sell,
		SellPressurePct: sellPct,
		BuyPressurePct:  buyPct,
		Trades:          len(trades),
	}

	switch {
	case sellPct > SellPressureCriticalPct:
		return detected(models.SeverityCritical,
			fmt.Sprintf("🔴 High sell pressure! Sell %.1f%% vs buy %.1f%%", sellPct, buyPct), ev)
	case sellPct > SellPressureWarningPct:
		return detected(models.SeverityWarning,
			fmt.Sprintf("⚠️ Elevated sell pressure: %.1f%%", sellPct), ev)
	case buyPct > BuyPressureStrongPct:
		return notDetected(fmt.Sprintf("✅ Strong buy pressure: %.1f%%", buyPct), ev)
	default:
		return notDetected(fmt.Sprintf("📊 Balanced: buy %.1f%%, sell %.1f%%", buyPct, sellPct), ev)
	}
}
