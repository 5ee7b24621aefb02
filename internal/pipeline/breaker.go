package pipeline

import (
	"sync"
	"time"

	"tidemark/internal/logger"
)

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

func (s breakerState) String() string {
	switch s {
	case breakerClosed:
		return "CLOSED"
	case breakerOpen:
		return "OPEN"
	case breakerHalfOpen:
		return "HALF-OPEN"
	default:
		return "UNKNOWN"
	}
}

// failureBreaker stops hammering a collaborator that is clearly down. While
// open, calls are skipped outright; after the cooldown a single probe is let
// through and its outcome decides whether the circuit closes again.
type failureBreaker struct {
	mu          sync.Mutex
	name        string
	state       breakerState
	failures    int
	threshold   int
	cooldown    time.Duration
	lastFailure time.Time
}

func newFailureBreaker(name string, threshold int, cooldown time.Duration) *failureBreaker {
	return &failureBreaker{
		name:      name,
		threshold: threshold,
		cooldown:  cooldown,
		state:     breakerClosed,
	}
}

func (b *failureBreaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case breakerOpen:
		if time.Since(b.lastFailure) > b.cooldown {
			b.transition(breakerHalfOpen)
			return true
		}
		return false
	default:
		return true
	}
}

func (b *failureBreaker) success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == breakerHalfOpen {
		b.transition(breakerClosed)
	}
	b.failures = 0
}

func (b *failureBreaker) failure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	b.lastFailure = time.Now()
	switch b.state {
	case breakerClosed:
		if b.failures >= b.threshold {
			b.transition(breakerOpen)
		}
	case breakerHalfOpen:
		b.transition(breakerOpen)
	}
}

func (b *failureBreaker) transition(to breakerState) {
	from := b.state
	b.state = to
	logger.Warnf("Circuit %s: %s -> %s (failures=%d/%d, cooldown=%s)",
		b.name, from, to, b.failures, b.threshold, b.cooldown)
}
