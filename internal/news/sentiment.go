package news

import (
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// SentimentConfig controls quantitative (vote-based) sentiment scoring.
type SentimentConfig struct {
	HalfLifeHours      float64
	BaselineWindowDays int
}

func (c SentimentConfig) withDefaults() SentimentConfig {
	if c.HalfLifeHours <= 0 {
		c.HalfLifeHours = 12
	}
	if c.BaselineWindowDays <= 0 {
		c.BaselineWindowDays = 30
	}
	return c
}

// SentimentStats is the per-symbol aggregate for one evaluation.
type SentimentStats struct {
	Mean          float64
	Sum           float64
	Count         int
	PositiveRatio float64
	Z             float64 // mean vs the trailing baseline
}

// Vote weights. Importance and saves count as weak positives, toxicity as a
// strong negative; media posts are discounted against editorial news.
var (
	weightImportant = decimal.RequireFromString("0.5")
	weightSaved     = decimal.RequireFromString("0.3")
	weightToxic     = decimal.RequireFromString("1.5")
	weightMediaKind = decimal.RequireFromString("0.7")
)

// Scorer turns raw vote counts into decayed, baseline-normalized sentiment.
// It keeps a rolling per-symbol history of aggregates so the z-score has a
// 30-day baseline to compare against.
type Scorer struct {
	cfg SentimentConfig

	mu       sync.Mutex
	baseline map[string][]float64
}

func NewScorer(cfg SentimentConfig) *Scorer {
	return &Scorer{
		cfg:      cfg.withDefaults(),
		baseline: make(map[string][]float64),
	}
}

// ScoreEvent maps vote counts to a sentiment in [-1, 1].
func (s *Scorer) ScoreEvent(ev Event) float64 {
	pos := decimal.NewFromInt(int64(ev.Votes.Positive)).
		Add(decimal.NewFromInt(int64(ev.Votes.Liked))).
		Add(weightImportant.Mul(decimal.NewFromInt(int64(ev.Votes.Important)))).
		Add(weightSaved.Mul(decimal.NewFromInt(int64(ev.Votes.Saved))))
	neg := decimal.NewFromInt(int64(ev.Votes.Negative)).
		Add(decimal.NewFromInt(int64(ev.Votes.Disliked))).
		Add(weightToxic.Mul(decimal.NewFromInt(int64(ev.Votes.Toxic))))
	total := pos.Add(neg)
	if total.IsZero() {
		return 0
	}
	score := pos.Sub(neg).Div(total)
	if ev.Kind == "media" {
		score = score.Mul(weightMediaKind)
	}
	out, _ := score.Float64()
	return clamp(out, -1, 1)
}

// Aggregate scores all events for a symbol with exponential time decay and
// updates the baseline. Events published after now contribute undecayed.
func (s *Scorer) Aggregate(symbol string, events []Event, now time.Time) SentimentStats {
	var stats SentimentStats
	var scores []float64
	for _, ev := range events {
		if ev.PublishedAt.IsZero() {
			continue
		}
		hoursAgo := now.Sub(ev.PublishedAt).Hours()
		if hoursAgo < 0 {
			hoursAgo = 0
		}
		decay := math.Pow(0.5, hoursAgo/s.cfg.HalfLifeHours)
		scores = append(scores, s.ScoreEvent(ev)*decay)
	}
	stats.Count = len(scores)
	if stats.Count > 0 {
		positive := 0
		for _, v := range scores {
			stats.Sum += v
			if v > 0 {
				positive++
			}
		}
		stats.Mean = stats.Sum / float64(stats.Count)
		stats.PositiveRatio = float64(positive) / float64(stats.Count)
	}
	stats.Z = s.observe(symbol, stats.Mean)
	return stats
}

// observe appends the aggregate to the baseline and returns its z-score
// against the trailing window (excluding the new observation).
func (s *Scorer) observe(symbol string, mean float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	hist := s.baseline[symbol]
	z := zScore(mean, hist)
	hist = append(hist, mean)
	if max := s.cfg.BaselineWindowDays; len(hist) > max {
		hist = hist[len(hist)-max:]
	}
	s.baseline[symbol] = hist
	return z
}

func zScore(value float64, baseline []float64) float64 {
	if len(baseline) < 2 {
		return 0
	}
	var sum float64
	for _, v := range baseline {
		sum += v
	}
	mean := sum / float64(len(baseline))
	var ss float64
	for _, v := range baseline {
		d := v - mean
		ss += d * d
	}
	std := math.Sqrt(ss / float64(len(baseline)-1))
	if std == 0 || math.IsNaN(std) {
		return 0
	}
	return (value - mean) / std
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
