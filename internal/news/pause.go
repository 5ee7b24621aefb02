package news

import (
	"fmt"
	"time"
)

// PauseKind is the tagged variant of the per-symbol pause state machine.
type PauseKind int

const (
	PauseNone PauseKind = iota
	PauseSoft
	PauseHard
)

func (k PauseKind) String() string {
	switch k {
	case PauseSoft:
		return "SOFT"
	case PauseHard:
		return "HARD"
	default:
		return "NONE"
	}
}

// ParsePauseKind decodes the persisted representation.
func ParsePauseKind(s string) (PauseKind, error) {
	switch s {
	case "NONE", "":
		return PauseNone, nil
	case "SOFT":
		return PauseSoft, nil
	case "HARD":
		return PauseHard, nil
	}
	return PauseNone, fmt.Errorf("unknown pause kind %q", s)
}

// PauseState is the only long-lived mutable entity in the pipeline.
// Invariant: Kind is effectively NONE once now >= ExpiresAt.
type PauseState struct {
	Kind      PauseKind `json:"kind"`
	ExpiresAt time.Time `json:"expires_at"`
	Score     float64   `json:"score"` // NS_v3 at the last transition
	Reason    string    `json:"reason"`
}

// At collapses expiry: states past their TTL read as NONE. Clearing is
// passive and time-based only.
func (p PauseState) At(now time.Time) PauseState {
	if p.Kind == PauseNone || !now.Before(p.ExpiresAt) {
		return PauseState{}
	}
	return p
}

// Active reports whether the pause is still in force at now.
func (p PauseState) Active(now time.Time) bool {
	return p.At(now).Kind != PauseNone
}

// PauseTrigger is a new pause request derived from the current slot's signals.
type PauseTrigger struct {
	Kind     PauseKind
	Duration time.Duration
	Score    float64
	Reason   string
}

// Transition applies a trigger to the current state as a pure function of
// (state, trigger, now). Rules:
//   - HARD always overrides SOFT; a SOFT trigger during an active HARD is ignored.
//   - Re-triggering the active kind extends ExpiresAt to
//     max(current, now+duration); a pause is never shortened.
//   - HARD replacing SOFT uses HARD's own duration.
func Transition(cur PauseState, trig *PauseTrigger, now time.Time) PauseState {
	cur = cur.At(now)
	if trig == nil || trig.Kind == PauseNone {
		return cur
	}
	proposed := now.Add(trig.Duration)
	switch trig.Kind {
	case PauseHard:
		next := PauseState{Kind: PauseHard, ExpiresAt: proposed, Score: trig.Score, Reason: trig.Reason}
		if cur.Kind == PauseHard && cur.ExpiresAt.After(proposed) {
			next.ExpiresAt = cur.ExpiresAt
		}
		return next
	case PauseSoft:
		if cur.Kind == PauseHard {
			return cur
		}
		next := PauseState{Kind: PauseSoft, ExpiresAt: proposed, Score: trig.Score, Reason: trig.Reason}
		if cur.Kind == PauseSoft && cur.ExpiresAt.After(proposed) {
			next.ExpiresAt = cur.ExpiresAt
			next.Reason = cur.Reason
			next.Score = cur.Score
		}
		return next
	}
	return cur
}

// equalState compares the fields that matter for persistence.
func equalState(a, b PauseState) bool {
	return a.Kind == b.Kind && a.ExpiresAt.Equal(b.ExpiresAt) && a.Reason == b.Reason && a.Score == b.Score
}
