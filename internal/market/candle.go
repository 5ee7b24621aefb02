package market

import (
	"fmt"
	"math"
	"time"
)

type Candle struct {
	OpenTime  int64   `json:"open_time"`
	CloseTime int64   `json:"close_time"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	Trades    int64   `json:"trades"`
}

func (c Candle) OpenedAt() time.Time { return time.UnixMilli(c.OpenTime).UTC() }

func (c Candle) ClosedAt() time.Time { return time.UnixMilli(c.CloseTime).UTC() }

// Closes extracts close prices preserving order.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// LogReturns computes ln(c_t / c_{t-1}) for consecutive closes.
// The result has len(candles)-1 entries; non-positive prices yield NaN.
func LogReturns(candles []Candle) []float64 {
	if len(candles) < 2 {
		return nil
	}
	out := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		prev := candles[i-1].Close
		cur := candles[i].Close
		if prev <= 0 || cur <= 0 {
			out = append(out, math.NaN())
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}

// SimpleReturns computes (c_t - c_{t-1}) / c_{t-1}.
func SimpleReturns(candles []Candle) []float64 {
	if len(candles) < 2 {
		return nil
	}
	out := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		prev := candles[i-1].Close
		if prev == 0 {
			out = append(out, math.NaN())
			continue
		}
		out = append(out, (candles[i].Close-prev)/prev)
	}
	return out
}

// ValidateSeries checks that candles are strictly time-ordered and free of
// gaps larger than twice the given interval (one missed bar is tolerated for
// exchange maintenance windows).
func ValidateSeries(candles []Candle, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("invalid interval %s", interval)
	}
	for i := 1; i < len(candles); i++ {
		prev := candles[i-1]
		cur := candles[i]
		if cur.OpenTime <= prev.OpenTime {
			return fmt.Errorf("candles out of order at index %d (%d <= %d)", i, cur.OpenTime, prev.OpenTime)
		}
		gap := time.Duration(cur.OpenTime-prev.OpenTime) * time.Millisecond
		if gap > 2*interval {
			return fmt.Errorf("gap of %s at index %d exceeds tolerated 2x interval", gap, i)
		}
	}
	return nil
}
