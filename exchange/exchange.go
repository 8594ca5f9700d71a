// Package exchange is the narrow Binance USDT-M futures adapter: candle
// fetch for the polling loop, market orders and position queries for the
// executor and crash-recovery reconciliation. Requests go through a shared
// rate limiter; candle fetches retry with exponential backoff.
package exchange

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"golang.org/x/time/rate"

	"github.com/juanjaure777-art/TRAD/config"
	"github.com/juanjaure777-art/TRAD/logger"
	"github.com/juanjaure777-art/TRAD/types"
)

const (
	requestTimeout = 10 * time.Second
	maxRetries     = 3
	retryBackoff   = 100 * time.Millisecond
)

// Client wraps the futures REST API.
type Client struct {
	api     *futures.Client
	limiter *rate.Limiter
	log     logger.Logger
}

// NewClient builds the adapter. Testnet routing is process-wide, set before
// the client is created.
func NewClient(cfg config.ExchangeConfig, log logger.Logger) *Client {
	futures.UseTestnet = cfg.UseTestnet

	httpClient := &http.Client{
		Timeout: requestTimeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	api := futures.NewClient(cfg.APIKey, cfg.SecretKey)
	api.HTTPClient = httpClient

	return &Client{
		api:     api,
		limiter: rate.NewLimiter(rate.Limit(10), 20),
		log:     log,
	}
}

// Klines fetches the most recent limit bars for one timeframe as parallel
// arrays, most-recent-last.
func (c *Client) Klines(ctx context.Context, symbol, interval string, limit int) (types.Series, error) {
	var klines []*futures.Kline
	var err error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if werr := c.limiter.Wait(ctx); werr != nil {
			return types.Series{}, werr
		}
		klines, err = c.api.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			Limit(limit).
			Do(ctx)
		if err == nil {
			break
		}
		if attempt == maxRetries {
			return types.Series{}, fmt.Errorf("exchange.Klines %s %s: %w", symbol, interval, err)
		}
		wait := time.Duration(math.Pow(2, float64(attempt))) * retryBackoff
		c.log.Warn("klines_retry",
			logger.String("symbol", symbol),
			logger.String("interval", interval),
			logger.Int("attempt", attempt+1),
			logger.Err(err))
		select {
		case <-ctx.Done():
			return types.Series{}, ctx.Err()
		case <-time.After(wait):
		}
	}

	s := types.Series{
		Timeframe: interval,
		Opens:     make([]float64, 0, len(klines)),
		Highs:     make([]float64, 0, len(klines)),
		Lows:      make([]float64, 0, len(klines)),
		Closes:    make([]float64, 0, len(klines)),
		Volumes:   make([]float64, 0, len(klines)),
	}
	for _, k := range klines {
		open, err := parsePrice(k.Open)
		if err != nil {
			return types.Series{}, err
		}
		high, err := parsePrice(k.High)
		if err != nil {
			return types.Series{}, err
		}
		low, err := parsePrice(k.Low)
		if err != nil {
			return types.Series{}, err
		}
		cl, err := parsePrice(k.Close)
		if err != nil {
			return types.Series{}, err
		}
		vol, err := parsePrice(k.Volume)
		if err != nil {
			return types.Series{}, err
		}
		s.Opens = append(s.Opens, open)
		s.Highs = append(s.Highs, high)
		s.Lows = append(s.Lows, low)
		s.Closes = append(s.Closes, cl)
		s.Volumes = append(s.Volumes, vol)
	}
	return s, nil
}

// PositionAmount returns the signed position quantity and average entry
// price, used by startup reconciliation.
func (c *Client) PositionAmount(ctx context.Context, symbol string) (qty, avgPrice float64, err error) {
	if werr := c.limiter.Wait(ctx); werr != nil {
		return 0, 0, werr
	}
	risks, err := c.api.NewGetPositionRiskService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("exchange.PositionAmount %s: %w", symbol, err)
	}
	for _, r := range risks {
		if r.Symbol != symbol {
			continue
		}
		qty, err = parsePrice(r.PositionAmt)
		if err != nil {
			return 0, 0, err
		}
		avgPrice, err = parsePrice(r.EntryPrice)
		if err != nil {
			return 0, 0, err
		}
		return qty, avgPrice, nil
	}
	return 0, 0, nil
}

func parsePrice(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad number %q", types.ErrDataQuality, s)
	}
	return v, nil
}
