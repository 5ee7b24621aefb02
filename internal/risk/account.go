package risk

import (
	"fmt"
	"sync"
	"time"
)

// Position is a paper holding tracked for risk accounting only.
type Position struct {
	Symbol     string    `json:"symbol"`
	Weight     float64   `json:"weight"`
	EntryPrice float64   `json:"entry_price"`
	OpenedAt   time.Time `json:"opened_at"`
}

func (p Position) HoldingHours(now time.Time) float64 {
	return now.Sub(p.OpenedAt).Hours()
}

// Account tracks paper positions, per-UTC-day realized P&L and the daily
// drawdown pause. All amounts are fractions of equity, not currency.
type Account struct {
	mu          sync.RWMutex
	cfg         Config
	positions   map[string]Position
	pnlDay      string // UTC day the running P&L belongs to
	realizedPnl float64
	pausedUntil time.Time
}

func NewAccount(cfg Config) *Account {
	return &Account{
		cfg:       cfg.WithDefaults(),
		positions: make(map[string]Position),
	}
}

func utcDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// nextUTCDay is midnight of the following UTC day.
func nextUTCDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
}

func (a *Account) rollDayLocked(now time.Time) {
	day := utcDay(now)
	if a.pnlDay != day {
		a.pnlDay = day
		a.realizedPnl = 0
	}
}

// Open records a new paper position. Re-opening an existing symbol is an
// accounting error and is rejected.
func (a *Account) Open(symbol string, weight, price float64, now time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.positions[symbol]; ok {
		return fmt.Errorf("position already open for %s", symbol)
	}
	a.positions[symbol] = Position{
		Symbol:     symbol,
		Weight:     weight,
		EntryPrice: price,
		OpenedAt:   now,
	}
	return nil
}

// Reduce shrinks a position to the target weight, realizing the P&L on the
// portion closed.
func (a *Account) Reduce(symbol string, targetWeight, price float64, now time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	pos, ok := a.positions[symbol]
	if !ok {
		return fmt.Errorf("no position open for %s", symbol)
	}
	if targetWeight >= pos.Weight {
		return nil
	}
	a.realizeLocked(pos, pos.Weight-targetWeight, price, now)
	if targetWeight <= 0 {
		delete(a.positions, symbol)
		return nil
	}
	pos.Weight = targetWeight
	a.positions[symbol] = pos
	return nil
}

// Close flattens a position entirely.
func (a *Account) Close(symbol string, price float64, now time.Time) error {
	return a.Reduce(symbol, 0, price, now)
}

func (a *Account) realizeLocked(pos Position, closedWeight, price float64, now time.Time) {
	a.rollDayLocked(now)
	if pos.EntryPrice > 0 {
		ret := price/pos.EntryPrice - 1
		a.realizedPnl += ret * closedWeight
	}
	// Drawdown pause latches until the next UTC day; it is never shortened
	// by later gains.
	if a.realizedPnl*100 <= -a.cfg.DailyDrawdownPausePct {
		until := nextUTCDay(now)
		if until.After(a.pausedUntil) {
			a.pausedUntil = until
		}
	}
}

// Position returns the open position for symbol, if any.
func (a *Account) Position(symbol string) (Position, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	pos, ok := a.positions[symbol]
	return pos, ok
}

// Positions returns a snapshot of all open positions.
func (a *Account) Positions() []Position {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]Position, 0, len(a.positions))
	for _, p := range a.positions {
		out = append(out, p)
	}
	return out
}

// DrawdownPaused reports whether new entries are blocked by the daily
// drawdown rule at the given instant.
func (a *Account) DrawdownPaused(now time.Time) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return now.Before(a.pausedUntil)
}

// RealizedPnl returns the running realized P&L for the UTC day containing
// now, as a fraction of equity.
func (a *Account) RealizedPnl(now time.Time) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rollDayLocked(now)
	return a.realizedPnl
}

// HoldingExpired reports whether a position has exceeded the maximum holding
// period and must be flattened.
func (a *Account) HoldingExpired(symbol string, now time.Time) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	pos, ok := a.positions[symbol]
	if !ok {
		return false
	}
	return pos.HoldingHours(now) >= a.cfg.MaxHoldingHours
}
