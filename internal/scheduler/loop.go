package scheduler

import (
	"context"
	"time"

	"tidemark/internal/logger"
)

// Loop wakes at each slot boundary (plus an optional offset for bar-close
// settling) and runs the task synchronously, so a new slot never starts while
// the prior run is still in flight. Slots that elapse during a long run are
// skipped, never replayed.
type Loop struct {
	Name   string
	Slots  *SlotScheduler
	Offset time.Duration

	nowFn func() time.Time
}

func NewLoop(name string, slots *SlotScheduler, offset time.Duration) *Loop {
	if offset < 0 {
		offset = 0
	}
	return &Loop{Name: name, Slots: slots, Offset: offset, nowFn: time.Now}
}

// Run blocks until ctx is done, invoking task once per admitted slot.
func (l *Loop) Run(ctx context.Context, task func(ctx context.Context, slotID int64)) {
	if task == nil || l.Slots == nil {
		logger.Warnf("Loop[%s]: missing task or scheduler, exit", l.Name)
		return
	}
	if l.nowFn == nil {
		l.nowFn = time.Now
	}
	logger.Infof("Loop[%s]: started interval=%s offset=%s", l.Name, l.Slots.Interval(), l.Offset)

	for {
		now := l.nowFn().UTC()
		wakeAt := l.Slots.NextBoundary(now).Add(l.Offset)
		if !l.waitUntil(ctx, wakeAt) {
			logger.Infof("Loop[%s]: ctx done, exit", l.Name)
			return
		}
		if id, ok := l.Slots.ShouldRun(l.nowFn()); ok {
			task(ctx, id)
		}
	}
}

func (l *Loop) waitUntil(ctx context.Context, target time.Time) bool {
	wait := target.Sub(l.nowFn().UTC())
	if wait <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
