// Package models defines the core domain entities: order books, candles, trades,
// signals and risk assessments.
package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultQuote is appended to bare base symbols such as "BTC".
const DefaultQuote = "USDT"

// NormalizeInstrument upper-cases a symbol and appends the default quote when
// none is given, so "btc" and "BTC/USDT" both become "BTC/USDT".
func NormalizeInstrument(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if s == "" {
		return ""
	}
	if !strings.Contains(s, "/") {
		s = strings.TrimSuffix(s, DefaultQuote)
		if s == "" {
			return ""
		}
		s = s + "/" + DefaultQuote
	}
	return s
}

// ValidateInstrument checks the BASE/QUOTE shape.
func ValidateInstrument(instrument string) error {
	parts := strings.Split(instrument, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return fmt.Errorf("instrument %q must have the form BASE/QUOTE", instrument)
	}
	return nil
}

// Level is a single price level of an order book.
type Level struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

// Notional returns price × quantity in quote currency.
func (l Level) Notional() float64 {
	return l.Price * l.Quantity
}

// OrderBook is an immutable snapshot. Bids are ordered best (highest) first,
// asks best (lowest) first.
type OrderBook struct {
	Instrument string    `json:"instrument"`
	Bids       []Level   `json:"bids"`
	Asks       []Level   `json:"asks"`
	CapturedAt time.Time `json:"captured_at"`
}

// Empty reports whether either side of the book has no levels.
func (b OrderBook) Empty() bool {
	return len(b.Bids) == 0 || len(b.Asks) == 0
}

// BestBid returns the top bid price, or 0 for an empty side.
func (b OrderBook) BestBid() float64 {
	if len(b.Bids) == 0 {
		return 0
	}
	return b.Bids[0].Price
}

// BestAsk returns the top ask price, or 0 for an empty side.
func (b OrderBook) BestAsk() float64 {
	if len(b.Asks) == 0 {
		return 0
	}
	return b.Asks[0].Price
}

// Validate checks ordering and sign constraints of the snapshot.
func (b OrderBook) Validate() error {
	for i, l := range b.Bids {
		if l.Price <= 0 || l.Quantity < 0 {
			return fmt.Errorf("bid level %d has invalid price/quantity", i)
		}
		if i > 0 && l.Price > b.Bids[i-1].Price {
			return errors.New("bids must be ordered best first")
		}
	}
	for i, l := range b.Asks {
		if l.Price <= 0 || l.Quantity < 0 {
			return fmt.Errorf("ask level %d has invalid price/quantity", i)
		}
		if i > 0 && l.Price < b.Asks[i-1].Price {
			return errors.New("asks must be ordered best first")
		}
	}
	return nil
}

// Candle is one fixed-interval OHLCV bar. Series are ordered oldest first.
type Candle struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// TakerSide is the side that initiated a matched trade.
type TakerSide string

const (
	TakerBuy  TakerSide = "buy"
	TakerSell TakerSide = "sell"
)

// Trade is a single matched trade.
type Trade struct {
	Price    float64   `json:"price"`
	Quantity float64   `json:"quantity"`
	Side     TakerSide `json:"side"`
	Time     time.Time `json:"time"`
}

// Notional returns price × quantity in quote currency.
func (t Trade) Notional() float64 {
	return t.Price * t.Quantity
}

// BaselineSample is the order-book summary recorded on each observation.
type BaselineSample struct {
	Timestamp     time.Time `json:"timestamp"`
	BidSupport    float64   `json:"bid_support"`
	AskResistance float64   `json:"ask_resistance"`
}

// Ratio returns bid support over ask resistance, 0 when there is no resistance.
func (s BaselineSample) Ratio() float64 {
	if s.AskResistance <= 0 {
		return 0
	}
	return s.BidSupport / s.AskResistance
}

// BaselineStats summarizes a baseline window.
type BaselineStats struct {
	MeanBidSupport float64 `json:"mean_bid_support"`
	StdBidSupport  float64 `json:"std_bid_support"`
	MeanRatio      float64 `json:"mean_bid_ask_ratio"`
	StdRatio       float64 `json:"std_bid_ask_ratio"`
	Samples        int     `json:"samples"`
	Required       int     `json:"required"` // samples needed before the stats are valid
}
