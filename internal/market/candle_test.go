package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func barsAt(interval time.Duration, n int, skip ...int) []Candle {
	skipped := make(map[int]bool, len(skip))
	for _, s := range skip {
		skipped[s] = true
	}
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	out := make([]Candle, 0, n)
	for i := 0; i < n; i++ {
		if skipped[i] {
			continue
		}
		open := start.Add(time.Duration(i) * interval)
		out = append(out, Candle{
			OpenTime:  open.UnixMilli(),
			CloseTime: open.Add(interval).UnixMilli(),
			Close:     100,
			Volume:    1,
		})
	}
	return out
}

func TestValidateSeriesAcceptsSingleMissingBar(t *testing.T) {
	// one skipped bar is a 2x gap, tolerated for maintenance windows
	assert.NoError(t, ValidateSeries(barsAt(time.Hour, 10, 5), time.Hour))
}

func TestValidateSeriesRejectsWiderGaps(t *testing.T) {
	assert.Error(t, ValidateSeries(barsAt(time.Hour, 10, 5, 6), time.Hour))
}

func TestValidateSeriesRejectsDisorder(t *testing.T) {
	bars := barsAt(time.Hour, 5)
	bars[2], bars[3] = bars[3], bars[2]
	assert.Error(t, ValidateSeries(bars, time.Hour))
}

func TestSnapshotValidateRequiresHistoryFloor(t *testing.T) {
	snap := &Snapshot{
		Symbol: "ETHUSDT",
		Daily:  barsAt(24*time.Hour, 10),
		Hourly: barsAt(time.Hour, 130),
		Book:   BookTop{Bid: 99, Ask: 101},
	}
	err := snap.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientHistory)
}

func TestCheckFreshness(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	snap := &Snapshot{Symbol: "ETHUSDT", CapturedAt: now.Add(-2 * time.Minute)}

	assert.NoError(t, snap.CheckFreshness(now, 5*time.Minute))
	err := snap.CheckFreshness(now.Add(10*time.Minute), 5*time.Minute)
	assert.ErrorIs(t, err, ErrStaleData)
}

func TestLogReturnsFlagsNonPositiveCloses(t *testing.T) {
	bars := barsAt(time.Hour, 3)
	bars[1].Close = 0
	rets := LogReturns(bars)
	require.Len(t, rets, 2)
	assert.True(t, rets[0] != rets[0]) // NaN
	assert.True(t, rets[1] != rets[1])
}
