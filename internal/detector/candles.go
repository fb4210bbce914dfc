package detector

import (
	"fmt"
	"math"

	"github.com/rewired-gh/mmradar/internal/models"
)

type priceMove struct {
	current, reference float64
	changePct          float64
	volumeRatio        float64
}

// measureMove compares the latest close with the close PriceLookback candles
// earlier and the trailing volume with the preceding window scaled to the
// same length.
func measureMove(candles []models.Candle) (priceMove, bool) {
	n := len(candles)
	current := candles[n-1].Close
	reference := candles[n-1-PriceLookback].Close
	if reference <= 0 {
		return priceMove{}, false
	}

	var recent, preceding float64
	for _, c := range candles[n-PriceLookback:] {
		recent += c.Volume
	}
	start := max(0, n-PriceLookback-PriceVolumeWindow)
	for _, c := range candles[start : n-PriceLookback] {
		preceding += c.Volume
	}

	scale := float64(PriceVolumeWindow) / float64(PriceLookback)
	return priceMove{
		current:     current,
		reference:   reference,
		changePct:   (current - reference) / reference * 100,
		volumeRatio: safeDiv(recent, preceding/scale),
	}, true
}

// PriceDrop flags a sharp fall over the lookback. Falls backed by volume
// above ConfirmingVolumeRatio are treated as real dumps.
func PriceDrop(candles []models.Candle, th Thresholds) Result {
	if len(candles) < MinPriceCandles {
		return insufficient(fmt.Sprintf("Need at least %d candles, have %d", MinPriceCandles, len(candles)))
	}
	th = th.withDefaults()

	m, ok := measureMove(candles)
	if !ok {
		return degenerate("Reference close is not positive")
	}
	realDump := m.volumeRatio > ConfirmingVolumeRatio
	ev := models.PriceMoveEvidence{
		Direction:    models.SignalPriceDrop,
		ChangePct:    m.changePct,
		VolumeRatio:  m.volumeRatio,
		Confirmed:    realDump,
		CurrentPrice: m.current,
		ReferencePx:  m.reference,
	}
	if m.changePct > -th.DropPct {
		return notDetected("No significant price drop", ev)
	}

	drop := math.Abs(m.changePct)
	switch {
	case m.changePct <= -DropCriticalPct && realDump:
		return detected(models.SeverityCritical,
			fmt.Sprintf("🚨 Heavy dump: price down %.1f%% on high volume (%.1fx)", drop, m.volumeRatio), ev)
	case m.changePct <= -DropWarningPct:
		msg := fmt.Sprintf("⚠️ Price down %.1f%% in 15 minutes", drop)
		if realDump {
			msg += " (high volume, real dump)"
		} else {
			msg += " (low volume, may recover)"
		}
		return detected(models.SeverityWarning, msg, ev)
	default:
		return notDetected("Price drop below warning level", ev)
	}
}

// PricePump flags a sharp rise over the lookback. A pump without confirming
// volume is reported as a suspected fake pump at info severity.
func PricePump(candles []models.Candle, th Thresholds) Result {
	if len(candles) < MinPriceCandles {
		return insufficient(fmt.Sprintf("Need at least %d candles, have %d", MinPriceCandles, len(candles)))
	}
	th = th.withDefaults()

	m, ok := measureMove(candles)
	if !ok {
		return degenerate("Reference close is not positive")
	}
	realPump := m.volumeRatio > ConfirmingVolumeRatio
	ev := models.PriceMoveEvidence{
		Direction:    models.SignalPricePump,
		ChangePct:    m.changePct,
		VolumeRatio:  m.volumeRatio,
		Confirmed:    realPump,
		CurrentPrice: m.current,
		ReferencePx:  m.reference,
	}
	if m.changePct <= th.PumpPct {
		return notDetected("No significant price pump", ev)
	}

	if realPump {
		return detected(models.SeverityWarning,
			fmt.Sprintf("🚀 Real pump: price up %.1f%% on high volume (%.1fx)", m.changePct, m.volumeRatio), ev)
	}
	return detected(models.SeverityInfo,
		fmt.Sprintf("⚠️ Fake pump: price up %.1f%% but volume is low (%.1fx), beware of a bull trap", m.changePct, m.volumeRatio), ev)
}

// preceding returns up to VolumeWindow candles before the latest one.
func preceding(candles []models.Candle) []models.Candle {
	n := len(candles)
	return candles[max(0, n-1-VolumeWindow) : n-1]
}

// VolumeSurge compares the latest candle volume with the preceding average.
func VolumeSurge(candles []models.Candle, th Thresholds) Result {
	if len(candles) < MinVolumeCandles {
		return insufficient(fmt.Sprintf("Need at least %d candles, have %d", MinVolumeCandles, len(candles)))
	}
	th = th.withDefaults()

	prev := preceding(candles)
	volumes := make([]float64, len(prev))
	for i, c := range prev {
		volumes[i] = c.Volume
	}
	current := candles[len(candles)-1].Volume
	avg := mean(volumes)
	ratio := safeDiv(current, avg)

	ev := models.VolumeSurgeEvidence{CurrentVolume: current, AverageVolume: avg, Ratio: ratio}
	if ratio <= th.SurgeRatio {
		return notDetected("Volume normal", ev)
	}

	switch {
	case ratio > SurgeCriticalRatio:
		return detected(models.SeverityCritical,
			fmt.Sprintf("🔥 Extreme volume surge: %.1fx the average", ratio), ev)
	case ratio > SurgeWarningRatio:
		return detected(models.SeverityWarning,
			fmt.Sprintf("📊 Strong volume increase: %.1fx the average", ratio), ev)
	default:
		return detected(models.SeverityInfo,
			fmt.Sprintf("📈 Volume rising: %.1fx the average", ratio), ev)
	}
}

func candleVolatility(c models.Candle) float64 {
	return safeDiv(c.High-c.Low, c.Close) * 100
}

// VolatilitySpike compares the latest candle range with the preceding average.
func VolatilitySpike(candles []models.Candle, th Thresholds) Result {
	if len(candles) < MinVolumeCandles {
		return insufficient(fmt.Sprintf("Need at least %d candles, have %d", MinVolumeCandles, len(candles)))
	}
	th = th.withDefaults()

	prev := preceding(candles)
	vols := make([]float64, len(prev))
	for i, c := range prev {
		vols[i] = candleVolatility(c)
	}
	current := candleVolatility(candles[len(candles)-1])
	avg := mean(vols)
	ratio := safeDiv(current, avg)

	ev := models.VolatilityEvidence{CurrentVolatility: current, AverageVolatility: avg, Ratio: ratio}
	if ratio <= th.VolatilityRatio {
		return notDetected("Volatility normal", ev)
	}
	return detected(models.SeverityWarning,
		fmt.Sprintf("⚡ Volatility up %.1fx, market unstable", ratio), ev)
}
