package signal

import (
	"testing"
	"time"

	"tidemark/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bookWith(bid, ask, bidQty, askQty float64) market.BookTop {
	return market.BookTop{Bid: bid, Ask: ask, BidQty: bidQty, AskQty: askQty, QuoteAt: time.Now()}
}

func TestSpreadBps(t *testing.T) {
	// mid 100, spread 0.1 -> 10 bps
	assert.InDelta(t, 10.0, SpreadBps(bookWith(99.95, 100.05, 1, 1)), 1e-9)
}

func TestAdmitRejectsWideSpread(t *testing.T) {
	g := NewMicrostructureGuard(MicrostructureConfig{SpreadMaxBps: 12})
	st := MicrostructureState{SpreadBps: 20, OFIZ: 2, VWAP1h: 100, SizeFactor: 1}

	err := g.Admit(st, 100, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "spread")
}

func TestAdmitOFIThresholdDependsOnRegime(t *testing.T) {
	g := NewMicrostructureGuard(MicrostructureConfig{
		OFIZMinNeutral: 0.5,
		OFIZMinRiskOn:  0.0,
	})
	st := MicrostructureState{SpreadBps: 5, OFIZ: 0.2, VWAP1h: 100, SizeFactor: 1}

	// 0.2 clears the risk-on floor but not the neutral one
	assert.Error(t, g.Admit(st, 100, false))
	assert.NoError(t, g.Admit(st, 100, true))
}

func TestAdmitVWAPBand(t *testing.T) {
	g := NewMicrostructureGuard(MicrostructureConfig{VWAPMaxDevPct: 1.5})
	st := MicrostructureState{SpreadBps: 5, OFIZ: 2, VWAP1h: 100, SizeFactor: 1}

	assert.Error(t, g.Admit(st, 99.0, false), "price below vwap blocks entry")
	assert.NoError(t, g.Admit(st, 100.5, false))
	assert.Error(t, g.Admit(st, 102.0, false), "more than 1.5%% above vwap blocks entry")
}

func TestAmihudBlockPolicy(t *testing.T) {
	g := NewMicrostructureGuard(MicrostructureConfig{AmihudPolicy: AmihudBlock})
	st := MicrostructureState{SpreadBps: 5, OFIZ: 2, VWAP1h: 100, IlliquidityPct: 97, SizeFactor: 1}

	err := g.Admit(st, 100.5, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "illiquidity")
}

func TestAmihudScalePolicyCutsSizeNotEntry(t *testing.T) {
	g := NewMicrostructureGuard(MicrostructureConfig{AmihudPolicy: AmihudScale, AmihudScale: 0.5})

	// thin last bar: tiny volume with a big move puts it at the top of the
	// trailing distribution
	candles := liquidCandles(200)
	candles[len(candles)-1].Volume = 0.001
	candles[len(candles)-1].Close *= 1.05

	snap := &market.Snapshot{
		Symbol: "ETHUSDT",
		Daily:  candles,
		Hourly: hourlyCandles(130),
		Book:   bookWith(99.95, 100.05, 2, 1),
	}
	st := g.Evaluate(snap)
	assert.GreaterOrEqual(t, st.IlliquidityPct, 95.0)
	assert.Equal(t, 0.5, st.SizeFactor)

	// scale policy admits the entry at the reduced size
	st.OFIZ = 2
	assert.NoError(t, g.Admit(st, st.VWAP1h, false))
}

func TestVWAP1hUsesLatestBarOnly(t *testing.T) {
	hourly := hourlyCandles(130)
	last := hourly[len(hourly)-1]
	want := (last.High + last.Low + last.Close) / 3
	assert.InDelta(t, want, VWAP1h(hourly), 1e-9)
}

func liquidCandles(n int) []market.Candle {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]market.Candle, n)
	price := 100.0
	for i := 0; i < n; i++ {
		if i%2 == 0 {
			price *= 1.004
		} else {
			price *= 0.998
		}
		open := start.Add(time.Duration(i) * 24 * time.Hour)
		out[i] = market.Candle{
			OpenTime:  open.UnixMilli(),
			CloseTime: open.Add(24*time.Hour - time.Millisecond).UnixMilli(),
			Open:      price, High: price * 1.01, Low: price * 0.99, Close: price,
			Volume: 5000,
		}
	}
	return out
}

func hourlyCandles(n int) []market.Candle {
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	out := make([]market.Candle, n)
	price := 100.0
	for i := 0; i < n; i++ {
		if i%3 == 0 {
			price *= 1.001
		} else {
			price *= 0.9996
		}
		open := start.Add(time.Duration(i) * time.Hour)
		out[i] = market.Candle{
			OpenTime:  open.UnixMilli(),
			CloseTime: open.Add(time.Hour - time.Millisecond).UnixMilli(),
			Open:      price, High: price * 1.002, Low: price * 0.998, Close: price,
			Volume: 800,
		}
	}
	return out
}
