package market

import "context"

// Source abstracts the exchange data backend so the pipeline can run against
// Binance spot, a replay store, or a stub in tests.
type Source interface {
	FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
	FetchBookTop(ctx context.Context, symbol string) (BookTop, error)
	Close() error
}
