package market

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"golang.org/x/time/rate"
)

const maxHistoryLimit = 1000

// BinanceConfig configures the spot REST source.
type BinanceConfig struct {
	RESTBaseURL    string
	HTTPTimeout    time.Duration
	RequestsPerSec float64
	Burst          int
}

func (c BinanceConfig) withDefaults() BinanceConfig {
	if strings.TrimSpace(c.RESTBaseURL) == "" {
		c.RESTBaseURL = "https://api.binance.com"
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 15 * time.Second
	}
	if c.RequestsPerSec <= 0 {
		c.RequestsPerSec = 10
	}
	if c.Burst <= 0 {
		c.Burst = 5
	}
	return c
}

// BinanceSource implements Source on top of the Binance spot REST API.
// All calls go through a shared limiter so slot bursts stay inside the
// exchange request weight budget.
type BinanceSource struct {
	cfg     BinanceConfig
	client  *binance.Client
	limiter *rate.Limiter
}

func NewBinanceSource(cfg BinanceConfig) *BinanceSource {
	final := cfg.withDefaults()
	client := binance.NewClient("", "")
	client.BaseURL = strings.TrimSpace(final.RESTBaseURL)
	client.HTTPClient = &http.Client{Timeout: final.HTTPTimeout}
	return &BinanceSource{
		cfg:     final,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(final.RequestsPerSec), final.Burst),
	}
}

func (s *BinanceSource) FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]Candle, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	interval = strings.ToLower(strings.TrimSpace(interval))
	if interval == "" {
		return nil, fmt.Errorf("interval is required")
	}
	if limit <= 0 || limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	kls, err := s.client.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance klines %s %s: %w", symbol, interval, err)
	}
	out := make([]Candle, 0, len(kls))
	for _, kl := range kls {
		if kl == nil {
			continue
		}
		out = append(out, Candle{
			OpenTime:  kl.OpenTime,
			CloseTime: kl.CloseTime,
			Open:      parseFloat(kl.Open),
			High:      parseFloat(kl.High),
			Low:       parseFloat(kl.Low),
			Close:     parseFloat(kl.Close),
			Volume:    parseFloat(kl.Volume),
			Trades:    kl.TradeNum,
		})
	}
	return dropUnclosed(out), nil
}

func (s *BinanceSource) FetchBookTop(ctx context.Context, symbol string) (BookTop, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return BookTop{}, fmt.Errorf("symbol is required")
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return BookTop{}, err
	}
	depth, err := s.client.NewDepthService().Symbol(symbol).Limit(5).Do(ctx)
	if err != nil {
		return BookTop{}, fmt.Errorf("binance depth %s: %w", symbol, err)
	}
	if len(depth.Bids) == 0 || len(depth.Asks) == 0 {
		return BookTop{}, fmt.Errorf("binance depth %s: empty book", symbol)
	}
	return BookTop{
		Bid:     parseFloat(depth.Bids[0].Price),
		Ask:     parseFloat(depth.Asks[0].Price),
		BidQty:  parseFloat(depth.Bids[0].Quantity),
		AskQty:  parseFloat(depth.Asks[0].Quantity),
		QuoteAt: time.Now().UTC(),
	}, nil
}

func (s *BinanceSource) Close() error { return nil }

// dropUnclosed trims the last kline when Binance returns the still-forming bar.
func dropUnclosed(candles []Candle) []Candle {
	if len(candles) == 0 {
		return candles
	}
	last := candles[len(candles)-1]
	if last.CloseTime > time.Now().UTC().UnixMilli() {
		return candles[:len(candles)-1]
	}
	return candles
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f
}
