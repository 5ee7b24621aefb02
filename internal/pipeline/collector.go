package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tidemark/internal/engine"
	"tidemark/internal/logger"
	"tidemark/internal/market"
	"tidemark/internal/news"
	"tidemark/internal/store"

	"golang.org/x/sync/errgroup"
)

const (
	dailyBars  = 430
	hourlyBars = 130
)

// NewsProvider is the external news collaborator: a deduplicated event stream
// plus per-event classifier output. A classifier failure surfaces as
// news.ErrClassifierUnavailable and is treated as neutral for new events.
type NewsProvider interface {
	Events(ctx context.Context, symbol string, since time.Time) ([]news.Event, error)
	Classify(ctx context.Context, ev news.Event) (*news.ClassifierResult, error)
}

// Collector materializes everything a slot run needs: market snapshots per
// symbol (through the local OHLCV cache) and news shock inputs. The engine
// itself never touches the network.
type Collector struct {
	source  market.Source
	history *store.HistoryStore
	scorer  *news.Scorer
	feed    NewsProvider

	benchmark string
	symbols   []string

	mu       sync.Mutex
	lastNews map[string]time.Time
}

func NewCollector(source market.Source, history *store.HistoryStore, scorer *news.Scorer,
	feed NewsProvider, benchmark string, symbols []string) *Collector {
	return &Collector{
		source:    source,
		history:   history,
		scorer:    scorer,
		feed:      feed,
		benchmark: benchmark,
		symbols:   symbols,
		lastNews:  make(map[string]time.Time),
	}
}

// Collect builds the slot input. A symbol whose market fetch fails still gets
// an entry (nil snapshot), so the data gate can record the rejection instead
// of the symbol silently vanishing from the slot.
func (c *Collector) Collect(ctx context.Context, slotID int64, now time.Time) (engine.SlotInput, error) {
	in := engine.SlotInput{
		SlotID:    slotID,
		Now:       now,
		Snapshots: make(map[string]*market.Snapshot, len(c.symbols)),
		Shocks:    make(map[string]news.ShockInput, len(c.symbols)),
	}

	btcDaily, err := c.fetchCandles(ctx, c.benchmark, "1d", dailyBars)
	if err != nil {
		return in, fmt.Errorf("benchmark history %s: %w", c.benchmark, err)
	}
	in.BTCDaily = btcDaily

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, sym := range c.symbols {
		sym := sym
		g.Go(func() error {
			snap := c.collectSymbol(gctx, sym, now)
			shock := c.collectNews(gctx, sym, snap, now)
			mu.Lock()
			in.Snapshots[sym] = snap
			in.Shocks[sym] = shock
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return in, err
	}
	return in, nil
}

func (c *Collector) collectSymbol(ctx context.Context, symbol string, now time.Time) *market.Snapshot {
	daily, err := c.fetchCandles(ctx, symbol, "1d", dailyBars)
	if err != nil {
		logger.Warnf("daily history %s: %v", symbol, err)
		return nil
	}
	hourly, err := c.fetchCandles(ctx, symbol, "1h", hourlyBars)
	if err != nil {
		logger.Warnf("hourly history %s: %v", symbol, err)
		return nil
	}
	book, err := c.source.FetchBookTop(ctx, symbol)
	if err != nil {
		logger.Warnf("book top %s: %v", symbol, err)
		return nil
	}
	return &market.Snapshot{
		Symbol:     symbol,
		Daily:      daily,
		Hourly:     hourly,
		Book:       book,
		CapturedAt: now,
	}
}

// fetchCandles pulls fresh bars from the exchange and keeps the local cache
// current; on a fetch failure it falls back to whatever the cache holds.
func (c *Collector) fetchCandles(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	candles, err := c.source.FetchHistory(ctx, symbol, interval, limit)
	if err != nil {
		logger.Warnf("fetch %s %s failed, trying cache: %v", symbol, interval, err)
		cached, cacheErr := c.history.RecentCandles(ctx, symbol, interval, limit)
		if cacheErr != nil || len(cached) == 0 {
			return nil, err
		}
		return cached, nil
	}
	if err := c.history.PutCandles(ctx, symbol, interval, candles); err != nil {
		logger.Warnf("cache %s %s: %v", symbol, interval, err)
	}
	return candles, nil
}

func (c *Collector) collectNews(ctx context.Context, symbol string, snap *market.Snapshot, now time.Time) news.ShockInput {
	in := news.ShockInput{Now: now}
	if snap != nil {
		in.Hourly = snap.Hourly
	}
	if c.feed == nil {
		return in
	}

	c.mu.Lock()
	since := c.lastNews[symbol]
	c.mu.Unlock()
	if since.IsZero() {
		since = now.Add(-24 * time.Hour)
	}

	events, err := c.feed.Events(ctx, symbol, since)
	if err != nil {
		logger.Warnf("news events %s: %v", symbol, err)
		return in
	}
	stats := c.scorer.Aggregate(symbol, events, now)
	in.SentZ = stats.Z

	// Only the most recent event is classified per slot; a classifier outage
	// leaves in.Classifier nil, which reads as neutral downstream.
	if len(events) > 0 {
		latest := events[len(events)-1]
		cls, err := c.feed.Classify(ctx, latest)
		if err != nil {
			logger.Warnf("classifier %s: %v", symbol, err)
		} else {
			in.Classifier = cls
		}
		c.mu.Lock()
		c.lastNews[symbol] = latest.PublishedAt
		c.mu.Unlock()
	}
	return in
}
