package scheduler

import (
	"sync"
	"time"
)

// SlotScheduler maps wall-clock time onto monotonically increasing decision
// slots and guarantees at-most-once admission per slot, including across
// clock skew: an id less than or equal to the largest id already admitted is
// never admitted again.
type SlotScheduler struct {
	interval time.Duration

	mu     sync.Mutex
	lastID int64
}

// NewSlotScheduler rounds intervals below one minute up to one minute.
func NewSlotScheduler(interval time.Duration) *SlotScheduler {
	if interval < time.Minute {
		interval = time.Minute
	}
	return &SlotScheduler{interval: interval, lastID: -1}
}

// SlotID is floor(minutes since the Unix epoch / interval minutes).
func (s *SlotScheduler) SlotID(now time.Time) int64 {
	minutes := now.UTC().Unix() / 60
	return minutes / int64(s.interval/time.Minute)
}

// ShouldRun reports whether the slot containing now has not been admitted
// yet, and marks it admitted when so.
func (s *SlotScheduler) ShouldRun(now time.Time) (int64, bool) {
	id := s.SlotID(now)
	s.mu.Lock()
	defer s.mu.Unlock()
	if id <= s.lastID {
		return id, false
	}
	s.lastID = id
	return id, true
}

// LastSlot returns the largest slot id admitted so far, or -1.
func (s *SlotScheduler) LastSlot() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastID
}

// Interval returns the slot length.
func (s *SlotScheduler) Interval() time.Duration {
	return s.interval
}

// NextBoundary is the start of the next slot after now.
func (s *SlotScheduler) NextBoundary(now time.Time) time.Time {
	return now.UTC().Truncate(s.interval).Add(s.interval)
}
