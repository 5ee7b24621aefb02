package market

import (
	"errors"
	"fmt"
	"time"
)

// ErrInsufficientHistory is returned when a symbol does not carry enough bars
// for the pipeline to evaluate it. Gates treat it as a rejection, never a crash.
var ErrInsufficientHistory = errors.New("insufficient history")

// ErrStaleData is returned when a snapshot is older than the freshness bound.
var ErrStaleData = errors.New("stale market data")

const (
	// MinDailyBars is the floor of daily history required per symbol.
	MinDailyBars = 420
	// MinHourlyBars is the floor of hourly history required per symbol.
	MinHourlyBars = 120
)

// BookTop is the current best bid/ask for a symbol.
type BookTop struct {
	Bid     float64   `json:"bid"`
	Ask     float64   `json:"ask"`
	BidQty  float64   `json:"bid_qty"`
	AskQty  float64   `json:"ask_qty"`
	QuoteAt time.Time `json:"quote_at"`
}

func (b BookTop) Mid() float64 {
	return (b.Bid + b.Ask) / 2
}

// Snapshot is the immutable per-symbol view a decision run consumes.
// It is captured once per slot and never mutated afterwards.
type Snapshot struct {
	Symbol     string
	Daily      []Candle
	Hourly     []Candle
	Book       BookTop
	CapturedAt time.Time
}

// Validate enforces the market-data collaborator contract: enough bars,
// time-ordered, gap-checked, and a sane book.
func (s *Snapshot) Validate() error {
	if s == nil {
		return ErrInsufficientHistory
	}
	if len(s.Daily) < MinDailyBars {
		return fmt.Errorf("%w: %s has %d daily bars, need %d", ErrInsufficientHistory, s.Symbol, len(s.Daily), MinDailyBars)
	}
	if len(s.Hourly) < MinHourlyBars {
		return fmt.Errorf("%w: %s has %d hourly bars, need %d", ErrInsufficientHistory, s.Symbol, len(s.Hourly), MinHourlyBars)
	}
	if err := ValidateSeries(s.Daily, 24*time.Hour); err != nil {
		return fmt.Errorf("%w: %s daily: %v", ErrInsufficientHistory, s.Symbol, err)
	}
	if err := ValidateSeries(s.Hourly, time.Hour); err != nil {
		return fmt.Errorf("%w: %s hourly: %v", ErrInsufficientHistory, s.Symbol, err)
	}
	if s.Book.Bid <= 0 || s.Book.Ask <= 0 || s.Book.Ask < s.Book.Bid {
		return fmt.Errorf("%w: %s book bid=%f ask=%f", ErrInsufficientHistory, s.Symbol, s.Book.Bid, s.Book.Ask)
	}
	return nil
}

// CheckFreshness rejects snapshots older than maxAge relative to now.
func (s *Snapshot) CheckFreshness(now time.Time, maxAge time.Duration) error {
	if maxAge <= 0 {
		return nil
	}
	if s.CapturedAt.IsZero() || now.Sub(s.CapturedAt) > maxAge {
		return fmt.Errorf("%w: %s captured at %s", ErrStaleData, s.Symbol, s.CapturedAt.Format(time.RFC3339))
	}
	return nil
}

// LastClose returns the most recent daily close, or 0 when empty.
func (s *Snapshot) LastClose() float64 {
	if s == nil || len(s.Daily) == 0 {
		return 0
	}
	return s.Daily[len(s.Daily)-1].Close
}
