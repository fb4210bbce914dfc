package exchange

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"github.com/rewired-gh/mmradar/internal/models"
)

var ErrUnexpectedPayload = errors.New("unexpected payload")

// number parses a JSON string or number. Binance encodes prices and sizes as
// strings to keep their exact decimal form.
func number(r gjson.Result) (float64, error) {
	d, err := decimal.NewFromString(r.String())
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", r.Raw, err)
	}
	return d.InexactFloat64(), nil
}

func parseLevels(arr gjson.Result) ([]models.Level, error) {
	if !arr.IsArray() {
		return nil, fmt.Errorf("levels: %w", ErrUnexpectedPayload)
	}
	rows := arr.Array()
	levels := make([]models.Level, 0, len(rows))
	for _, row := range rows {
		pair := row.Array()
		if len(pair) < 2 {
			return nil, fmt.Errorf("level %s: %w", row.Raw, ErrUnexpectedPayload)
		}
		price, err := number(pair[0])
		if err != nil {
			return nil, err
		}
		qty, err := number(pair[1])
		if err != nil {
			return nil, err
		}
		levels = append(levels, models.Level{Price: price, Quantity: qty})
	}
	return levels, nil
}

// ParseDepth parses a /fapi/v1/depth response.
func ParseDepth(body []byte) (models.OrderBook, error) {
	if !gjson.ValidBytes(body) {
		return models.OrderBook{}, fmt.Errorf("depth: %w", ErrUnexpectedPayload)
	}
	res := gjson.ParseBytes(body)
	bids, err := parseLevels(res.Get("bids"))
	if err != nil {
		return models.OrderBook{}, fmt.Errorf("depth bids: %w", err)
	}
	asks, err := parseLevels(res.Get("asks"))
	if err != nil {
		return models.OrderBook{}, fmt.Errorf("depth asks: %w", err)
	}

	book := models.OrderBook{Bids: bids, Asks: asks, CapturedAt: time.Now().UTC()}
	if ts := res.Get("E").Int(); ts > 0 {
		book.CapturedAt = time.UnixMilli(ts).UTC()
	}
	return book, nil
}

// ParseKlines parses a /fapi/v1/klines response, oldest candle first.
func ParseKlines(body []byte) ([]models.Candle, error) {
	res := gjson.ParseBytes(body)
	if !res.IsArray() {
		return nil, fmt.Errorf("klines: %w", ErrUnexpectedPayload)
	}
	rows := res.Array()
	candles := make([]models.Candle, 0, len(rows))
	for _, v := range rows {
		row := v.Array()
		if len(row) < 6 {
			return nil, fmt.Errorf("kline %s: %w", v.Raw, ErrUnexpectedPayload)
		}
		var ohlcv [5]float64
		for i := range ohlcv {
			f, err := number(row[i+1])
			if err != nil {
				return nil, fmt.Errorf("kline: %w", err)
			}
			ohlcv[i] = f
		}
		candles = append(candles, models.Candle{
			OpenTime: time.UnixMilli(row[0].Int()).UTC(),
			Open:     ohlcv[0],
			High:     ohlcv[1],
			Low:      ohlcv[2],
			Close:    ohlcv[3],
			Volume:   ohlcv[4],
		})
	}
	return candles, nil
}

// ParseTrades parses a /fapi/v1/trades response. A buyer-maker trade was
// initiated by a seller.
func ParseTrades(body []byte) ([]models.Trade, error) {
	res := gjson.ParseBytes(body)
	if !res.IsArray() {
		return nil, fmt.Errorf("trades: %w", ErrUnexpectedPayload)
	}
	rows := res.Array()
	trades := make([]models.Trade, 0, len(rows))
	for _, v := range rows {
		price, err := number(v.Get("price"))
		if err != nil {
			return nil, fmt.Errorf("trade price: %w", err)
		}
		qty, err := number(v.Get("qty"))
		if err != nil {
			return nil, fmt.Errorf("trade qty: %w", err)
		}
		side := models.TakerBuy
		if v.Get("isBuyerMaker").Bool() {
			side = models.TakerSell
		}
		trades = append(trades, models.Trade{
			Price:    price,
			Quantity: qty,
			Side:     side,
			Time:     time.UnixMilli(v.Get("time").Int()).UTC(),
		})
	}
	return trades, nil
}
