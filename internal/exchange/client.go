// Package exchange fetches order books, candles and trades from the Binance
// USDⓈ-M futures REST API.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"github.com/tidwall/gjson"
	"github.com/valyala/fasthttp"
	"golang.org/x/time/rate"

	"github.com/rewired-gh/mmradar/internal/logger"
	"github.com/rewired-gh/mmradar/internal/metrics"
	"github.com/rewired-gh/mmradar/internal/models"
)

const (
	DefaultBaseURL = "https://fapi.binance.com"

	endpointDepth  = "/fapi/v1/depth"
	endpointKlines = "/fapi/v1/klines"
	endpointTrades = "/fapi/v1/trades"
)

type Options struct {
	BaseURL         string
	Timeout         time.Duration
	RequestsPerSec  float64
	Burst           int
	MaxRetries      uint64
	RetryInitial    time.Duration
	RetryMaxWait    time.Duration
	BreakerFailures uint32
	BreakerTimeout  time.Duration
	DepthLimit      int
	KlineInterval   string
	KlineLimit      int
	TradeLimit      int
}

func DefaultOptions() Options {
	return Options{
		BaseURL:         DefaultBaseURL,
		Timeout:         10 * time.Second,
		RequestsPerSec:  10,
		Burst:           5,
		MaxRetries:      3,
		RetryInitial:    500 * time.Millisecond,
		RetryMaxWait:    15 * time.Second,
		BreakerFailures: 5,
		BreakerTimeout:  30 * time.Second,
		DepthLimit:      100,
		KlineInterval:   "5m",
		KlineLimit:      50,
		TradeLimit:      500,
	}
}

// StatusError is a non-200 response. Code and Msg carry Binance's error body
// when present.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Code       int64
	Msg        string
}

func (e *StatusError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("%s: status %d: %s (code %d)", e.Endpoint, e.StatusCode, e.Msg, e.Code)
	}
	return fmt.Sprintf("%s: status %d", e.Endpoint, e.StatusCode)
}

// Temporary reports whether retrying may help.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == fasthttp.StatusTooManyRequests || e.StatusCode >= 500
}

type Client struct {
	opts     Options
	http     *fasthttp.Client
	limiter  *rate.Limiter
	breakers map[string]*gobreaker.CircuitBreaker
	metrics  *metrics.Registry
}

// NewClient creates a client. reg may be nil.
func NewClient(opts Options, reg *metrics.Registry) *Client {
	def := DefaultOptions()
	if opts.BaseURL == "" {
		opts.BaseURL = def.BaseURL
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.RequestsPerSec <= 0 {
		opts.RequestsPerSec = def.RequestsPerSec
	}
	if opts.Burst <= 0 {
		opts.Burst = def.Burst
	}
	if opts.RetryInitial <= 0 {
		opts.RetryInitial = def.RetryInitial
	}
	if opts.RetryMaxWait <= 0 {
		opts.RetryMaxWait = def.RetryMaxWait
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = def.BreakerFailures
	}
	if opts.BreakerTimeout <= 0 {
		opts.BreakerTimeout = def.BreakerTimeout
	}
	if opts.DepthLimit <= 0 {
		opts.DepthLimit = def.DepthLimit
	}
	if opts.KlineInterval == "" {
		opts.KlineInterval = def.KlineInterval
	}
	if opts.KlineLimit <= 0 {
		opts.KlineLimit = def.KlineLimit
	}
	if opts.TradeLimit <= 0 {
		opts.TradeLimit = def.TradeLimit
	}

	c := &Client{
		opts: opts,
		http: &fasthttp.Client{
			Name:         "mmradar",
			ReadTimeout:  opts.Timeout,
			WriteTimeout: opts.Timeout,
		},
		limiter:  rate.NewLimiter(rate.Limit(opts.RequestsPerSec), opts.Burst),
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		metrics:  reg,
	}
	for _, ep := range []string{endpointDepth, endpointKlines, endpointTrades} {
		c.breakers[ep] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    ep,
			Timeout: opts.BreakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= opts.BreakerFailures
			},
			// Client errors such as an unknown symbol say nothing about
			// exchange health.
			IsSuccessful: func(err error) bool {
				var se *StatusError
				if errors.As(err, &se) {
					return !se.Temporary()
				}
				return err == nil
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("Exchange breaker %s: %s -> %s", name, from, to)
			},
		})
	}
	return c
}

// Symbol converts "BTC/USDT" into the exchange symbol "BTCUSDT".
func Symbol(instrument string) string {
	return strings.ReplaceAll(models.NormalizeInstrument(instrument), "/", "")
}

func (c *Client) FetchOrderBook(ctx context.Context, instrument string) (models.OrderBook, error) {
	body, err := c.get(ctx, endpointDepth, map[string]string{
		"symbol": Symbol(instrument),
		"limit":  strconv.Itoa(c.opts.DepthLimit),
	})
	if err != nil {
		return models.OrderBook{}, err
	}
	book, err := ParseDepth(body)
	if err != nil {
		return models.OrderBook{}, err
	}
	book.Instrument = models.NormalizeInstrument(instrument)
	return book, nil
}

func (c *Client) FetchCandles(ctx context.Context, instrument string) ([]models.Candle, error) {
	body, err := c.get(ctx, endpointKlines, map[string]string{
		"symbol":   Symbol(instrument),
		"interval": c.opts.KlineInterval,
		"limit":    strconv.Itoa(min(c.opts.KlineLimit, 1500)),
	})
	if err != nil {
		return nil, err
	}
	return ParseKlines(body)
}

func (c *Client) FetchTrades(ctx context.Context, instrument string) ([]models.Trade, error) {
	body, err := c.get(ctx, endpointTrades, map[string]string{
		"symbol": Symbol(instrument),
		"limit":  strconv.Itoa(min(c.opts.TradeLimit, 1000)),
	})
	if err != nil {
		return nil, err
	}
	return ParseTrades(body)
}

// Ping checks connectivity.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, "/fapi/v1/ping", nil)
	return err
}

// get runs a rate-limited, retried request behind the endpoint's breaker.
func (c *Client) get(ctx context.Context, endpoint string, query map[string]string) ([]byte, error) {
	out, err := c.breakers[endpoint].Execute(func() (interface{}, error) {
		return c.retry(ctx, endpoint, query)
	})
	if err != nil {
		return nil, err
	}
	return out.([]byte), nil
}

func (c *Client) retry(ctx context.Context, endpoint string, query map[string]string) ([]byte, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.RetryInitial
	b.MaxElapsedTime = c.opts.RetryMaxWait

	var body []byte
	op := func() error {
		var err error
		body, err = c.do(ctx, endpoint, query)
		if err == nil {
			return nil
		}
		var se *StatusError
		if errors.As(err, &se) && !se.Temporary() {
			return backoff.Permanent(err)
		}
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		logger.Warn("Request %s failed, retrying in %v: %v", endpoint, wait.Round(time.Millisecond), err)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, c.opts.MaxRetries), ctx)
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return nil, fmt.Errorf("request %s: %w", endpoint, err)
	}
	return body, nil
}

func (c *Client) do(ctx context.Context, endpoint string, query map[string]string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.opts.BaseURL + endpoint)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Accept", "application/json")
	args := req.URI().QueryArgs()
	for k, v := range query {
		args.Set(k, v)
	}

	deadline := time.Now().Add(c.opts.Timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		c.metrics.ExchangeRequest(endpoint, "error")
		return nil, err
	}

	if code := resp.StatusCode(); code != fasthttp.StatusOK {
		c.metrics.ExchangeRequest(endpoint, strconv.Itoa(code))
		se := &StatusError{Endpoint: endpoint, StatusCode: code}
		if res := gjson.ParseBytes(resp.Body()); res.IsObject() {
			se.Code = res.Get("code").Int()
			se.Msg = res.Get("msg").String()
		}
		return nil, se
	}
	c.metrics.ExchangeRequest(endpoint, "ok")

	// resp is released on return.
	return append([]byte(nil), resp.Body()...), nil
}
