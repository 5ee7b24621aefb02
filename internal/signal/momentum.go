package signal

import (
	"fmt"
	"math"
	"math/rand"

	"tidemark/internal/market"
)

// MomentumConfig controls the dual-window momentum signal and its bootstrap
// admission gate.
type MomentumConfig struct {
	ShortWindow   int
	LongWindow    int
	BlockSizeDays int
	Resamples     int
	MinPWin       float64
	Seed          int64 // 0 means non-deterministic resampling
}

func (c MomentumConfig) withDefaults() MomentumConfig {
	if c.ShortWindow <= 0 {
		c.ShortWindow = 60
	}
	if c.LongWindow <= 0 {
		c.LongWindow = 120
	}
	if c.BlockSizeDays <= 0 {
		c.BlockSizeDays = 7
	}
	if c.Resamples <= 0 {
		c.Resamples = 400
	}
	if c.MinPWin <= 0 {
		c.MinPWin = 0.60
	}
	return c
}

// MomentumState is recomputed from scratch every slot; nothing here persists.
type MomentumState struct {
	MShort      float64 `json:"m_short"`
	MLong       float64 `json:"m_long"`
	DeltaM      float64 `json:"delta_m"`
	AgeDays     int     `json:"age_days"`
	AgeDiscount float64 `json:"age_discount"`
	PWin        float64 `json:"p_win"`
	Score       float64 `json:"score"` // MShort x AgeDiscount
}

// PassesGate reports whether the bootstrap admits an entry.
func (m MomentumState) PassesGate(minPWin float64) bool {
	return !math.IsNaN(m.MShort) && m.PWin >= minPWin
}

// Momentum computes M = sum(log returns) / stdev(log returns) over short and
// long daily windows, an age discount based on the last sign flip of M_short,
// and a block-bootstrap win probability.
type Momentum struct {
	cfg MomentumConfig
}

func NewMomentum(cfg MomentumConfig) *Momentum {
	return &Momentum{cfg: cfg.withDefaults()}
}

// MinPWin exposes the configured gate threshold.
func (m *Momentum) MinPWin() float64 { return m.cfg.MinPWin }

// Evaluate derives the full momentum state from daily bars. Fails closed with
// market.ErrInsufficientHistory when the long window cannot be filled.
func (m *Momentum) Evaluate(daily []market.Candle) (MomentumState, error) {
	if len(daily) < m.cfg.LongWindow+1 {
		return MomentumState{MShort: math.NaN(), MLong: math.NaN()},
			fmt.Errorf("%w: momentum needs %d daily bars, have %d", market.ErrInsufficientHistory, m.cfg.LongWindow+1, len(daily))
	}
	rets := market.LogReturns(daily)
	st := MomentumState{
		MShort: momentumOver(rets, m.cfg.ShortWindow),
		MLong:  momentumOver(rets, m.cfg.LongWindow),
	}
	st.DeltaM = st.MShort - st.MLong
	st.AgeDays = m.ageDays(rets)
	st.AgeDiscount = ageDiscount(st.AgeDays)
	st.Score = st.MShort * st.AgeDiscount
	st.PWin = m.bootstrapPWin(rets)
	return st, nil
}

// momentumOver is sum/stdev over the trailing window of the return series.
func momentumOver(rets []float64, window int) float64 {
	if window <= 1 || len(rets) < window {
		return math.NaN()
	}
	tail := rets[len(rets)-window:]
	var sum float64
	for _, r := range tail {
		if math.IsNaN(r) {
			return math.NaN()
		}
		sum += r
	}
	std := sampleStd(tail)
	if std <= 0 || math.IsNaN(std) {
		return math.NaN()
	}
	return sum / std
}

// ageDays counts days since M_short last crossed zero, walking the rolling
// short-window momentum backwards from today.
func (m *Momentum) ageDays(rets []float64) int {
	w := m.cfg.ShortWindow
	if len(rets) < w {
		return 0
	}
	latest := momentumOver(rets, w)
	if math.IsNaN(latest) {
		return 0
	}
	sign := latest > 0
	age := 0
	for end := len(rets) - 1; end >= w; end-- {
		past := momentumOver(rets[:end], w)
		if math.IsNaN(past) || (past > 0) != sign {
			break
		}
		age++
	}
	return age
}

// Age tiers in months of trading days (21d per month): fresher trends keep
// full weight, stale ones are cut to a quarter.
const tradingDaysPerMonth = 21

func ageDiscount(ageDays int) float64 {
	months := float64(ageDays) / tradingDaysPerMonth
	switch {
	case months >= 18:
		return 0.25
	case months >= 15:
		return 0.50
	case months >= 12:
		return 0.75
	default:
		return 1.00
	}
}

// bootstrapPWin partitions the return series into contiguous blocks, resamples
// blocks with replacement to the original length, recomputes M_short on each
// synthetic series, and returns the fraction with positive momentum.
func (m *Momentum) bootstrapPWin(rets []float64) float64 {
	block := m.cfg.BlockSizeDays
	if len(rets) < block {
		return 0
	}
	var rng *rand.Rand
	if m.cfg.Seed != 0 {
		rng = rand.New(rand.NewSource(m.cfg.Seed))
	} else {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	nBlocks := len(rets) / block
	wins := 0
	valid := 0
	synthetic := make([]float64, 0, nBlocks*block)
	for i := 0; i < m.cfg.Resamples; i++ {
		synthetic = synthetic[:0]
		for b := 0; b < nBlocks; b++ {
			start := rng.Intn(len(rets) - block + 1)
			synthetic = append(synthetic, rets[start:start+block]...)
		}
		mShort := momentumOver(synthetic, min(m.cfg.ShortWindow, len(synthetic)))
		if math.IsNaN(mShort) {
			continue
		}
		valid++
		if mShort > 0 {
			wins++
		}
	}
	if valid == 0 {
		return 0
	}
	return float64(wins) / float64(valid)
}

func sampleStd(series []float64) float64 {
	n := len(series)
	if n < 2 {
		return 0
	}
	var sum float64
	for _, v := range series {
		sum += v
	}
	mean := sum / float64(n)
	var ss float64
	for _, v := range series {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(n-1))
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
