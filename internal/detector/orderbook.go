package detector

import (
	"fmt"

	"github.com/rewired-gh/mmradar/internal/models"
)

// WallRemoval compares the current bid support and bid/ask ratio against the
// baseline. ok must be false when the baseline is not yet valid.
func WallRemoval(stats models.BaselineStats, ok bool, book models.OrderBook, th Thresholds) Result {
	if !ok {
		required := stats.Required
		if required <= 0 {
			required = MinBaselineSamples
		}
		return insufficient(fmt.Sprintf("Not enough order book history yet (%d/%d samples)", stats.Samples, required))
	}
	th = th.withDefaults()

	currentBid := BidSupport(book, th.DepthCap)
	currentAsk := AskResistance(book, th.DepthCap)
	if currentAsk <= 0 {
		return degenerate("No ask resistance in the current book")
	}
	return classifyWall(stats, currentBid, currentBid/currentAsk)
}

func classifyWall(stats models.BaselineStats, currentBid, currentRatio float64) Result {
	bidDev := safeDiv(stats.MeanBidSupport-currentBid, stats.StdBidSupport)
	ratioDev := safeDiv(stats.MeanRatio-currentRatio, stats.StdRatio)

	ev := models.WallEvidence{
		CurrentBidSupport:  currentBid,
		BaselineBidSupport: stats.MeanBidSupport,
		BidDeviation:       bidDev,
		CurrentRatio:       currentRatio,
		BaselineRatio:      stats.MeanRatio,
		RatioDeviation:     ratioDev,
	}

	switch {
	case bidDev > WallCriticalBidDev && ratioDev > WallCriticalRatioDev:
		return detected(models.SeverityCritical,
			fmt.Sprintf("🚨 Market maker pulling the support wall: bid support down %.1f std dev, bid/ask ratio down %.1f std dev", bidDev, ratioDev), ev)
	case bidDev > WallWarningBidDev:
		return detected(models.SeverityWarning,
			fmt.Sprintf("⚠️ Bid support dropping abnormally (%.1f std dev)", bidDev), ev)
	case currentRatio < WallLowRatio && stats.MeanRatio > WallHealthyBaseRatio:
		return detected(models.SeverityInfo,
			fmt.Sprintf("📊 Bid/ask ratio fell to %.2f (from %.2f)", currentRatio, stats.MeanRatio), ev)
	default:
		return notDetected("Bid support within normal range", ev)
	}
}

// LiquidityDrain inspects the spread and the top DepthLevels of both sides.
func LiquidityDrain(book models.OrderBook) Result {
	if book.Empty() {
		return notDetected("No order book data", nil)
	}
	bestBid, bestAsk := book.BestBid(), book.BestAsk()
	if bestBid <= 0 {
		return degenerate("Best bid is not positive")
	}

	var depth float64
	for _, side := range [][]models.Level{book.Bids, book.Asks} {
		for i, l := range side {
			if i >= DepthLevels {
				break
			}
			depth += l.Notional()
		}
	}
	spreadPct := (bestAsk - bestBid) / bestBid * 100

	ev := models.LiquidityEvidence{
		SpreadPct:  spreadPct,
		TotalDepth: depth,
		BestBid:    bestBid,
		BestAsk:    bestAsk,
	}

	switch {
	case spreadPct > SpreadCriticalPct:
		return detected(models.SeverityCritical,
			fmt.Sprintf("🔴 Liquidity drained: spread %.2f%% (very high)", spreadPct), ev)
	case spreadPct > SpreadWarningPct:
		return detected(models.SeverityWarning,
			fmt.Sprintf("⚠️ Spread widening: %.2f%%", spreadPct), ev)
	case depth < ThinDepth:
		return detected(models.SeverityInfo,
			fmt.Sprintf("📊 Thin liquidity: $%.1fk within top %d levels", depth/1000, DepthLevels), ev)
	default:
		return notDetected("Liquidity normal", ev)
	}
}
