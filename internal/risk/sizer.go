package risk

import (
	"math"
	"sort"

	"tidemark/internal/market"
)

// Config carries the portfolio-level risk limits. It is passed immutably into
// the components that need it; overrides (see OverrideRegistry) produce a
// derived copy, never mutate the base.
type Config struct {
	TargetVol1d           float64 `json:"target_vol_1d"`
	MaxPositions          int     `json:"max_positions"`
	WeightPerPositionMax  float64 `json:"weight_per_position_max"`
	CashBufferMin         float64 `json:"cash_buffer_min"`
	DailyDrawdownPausePct float64 `json:"daily_drawdown_pause_pct"`
	MaxHoldingHours       float64 `json:"max_holding_hours"`
	VolWindowDays         int     `json:"vol_window_days"`
}

func (c Config) WithDefaults() Config {
	if c.TargetVol1d <= 0 {
		c.TargetVol1d = 0.012
	}
	if c.MaxPositions <= 0 {
		c.MaxPositions = 2
	}
	if c.WeightPerPositionMax <= 0 {
		c.WeightPerPositionMax = 0.30
	}
	if c.CashBufferMin <= 0 {
		c.CashBufferMin = 0.40
	}
	if c.DailyDrawdownPausePct <= 0 {
		c.DailyDrawdownPausePct = 2.5
	}
	if c.MaxHoldingHours <= 0 {
		c.MaxHoldingHours = 72
	}
	if c.VolWindowDays <= 0 {
		c.VolWindowDays = 30
	}
	return c
}

// Candidate is one symbol that passed every entry gate and is waiting for the
// cross-symbol normalization barrier.
type Candidate struct {
	Symbol     string
	Weight     float64 // volatility-targeted base weight
	Score      float64 // momentum score used for ranking
	SizeFactor float64 // microstructure cut, 1.0 when untouched
}

// Sizer computes volatility-targeted weights under the portfolio constraints.
type Sizer struct {
	cfg Config
}

func NewSizer(cfg Config) *Sizer {
	return &Sizer{cfg: cfg.WithDefaults()}
}

// Vol1d is the sample stdev of daily log returns over the config window,
// taken as a daily (not annualized) figure to match target_vol_1d.
func (s *Sizer) Vol1d(daily []market.Candle) float64 {
	rets := market.LogReturns(daily)
	clean := make([]float64, 0, len(rets))
	for _, r := range rets {
		if !math.IsNaN(r) {
			clean = append(clean, r)
		}
	}
	if len(clean) < 2 {
		return 0
	}
	if len(clean) > s.cfg.VolWindowDays {
		clean = clean[len(clean)-s.cfg.VolWindowDays:]
	}
	return sampleStd(clean)
}

// BaseWeight is min(weight_per_position_max, target_vol_1d / vol_1d).
// Zero volatility yields zero weight: an asset that never moves is not
// something the engine can size.
func (s *Sizer) BaseWeight(vol1d float64) float64 {
	if vol1d <= 0 || math.IsNaN(vol1d) {
		return 0
	}
	w := s.cfg.TargetVol1d / vol1d
	if w > s.cfg.WeightPerPositionMax {
		w = s.cfg.WeightPerPositionMax
	}
	return w
}

// Normalize is the cross-symbol synchronization point: rank candidates by
// momentum score, keep at most max_positions, and scale so the total stays
// within 1 - cash_buffer_min. It operates on a copy; no symbol is ever
// decided against a partially-updated total.
func (s *Sizer) Normalize(candidates []Candidate) []Candidate {
	if len(candidates) == 0 {
		return nil
	}
	out := append([]Candidate(nil), candidates...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Symbol < out[j].Symbol
	})
	if len(out) > s.cfg.MaxPositions {
		out = out[:s.cfg.MaxPositions]
	}
	budget := 1 - s.cfg.CashBufferMin
	var total float64
	for i := range out {
		out[i].Weight *= out[i].SizeFactor
		total += out[i].Weight
	}
	if total > budget && total > 0 {
		scale := budget / total
		for i := range out {
			out[i].Weight *= scale
		}
	}
	return out
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
