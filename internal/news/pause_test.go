package news

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)

func TestTransitionFromNone(t *testing.T) {
	trig := &PauseTrigger{Kind: PauseSoft, Duration: 3 * time.Hour, Score: -1.5}
	st := Transition(PauseState{}, trig, t0)
	assert.Equal(t, PauseSoft, st.Kind)
	assert.Equal(t, t0.Add(3*time.Hour), st.ExpiresAt)
}

func TestRetriggerNeverShortens(t *testing.T) {
	// 2h SOFT with 90 minutes remaining, then a 1h SOFT trigger
	cur := PauseState{Kind: PauseSoft, ExpiresAt: t0.Add(90 * time.Minute)}
	trig := &PauseTrigger{Kind: PauseSoft, Duration: time.Hour}

	st := Transition(cur, trig, t0)
	assert.Equal(t, PauseSoft, st.Kind)
	assert.Equal(t, cur.ExpiresAt, st.ExpiresAt, "max rule keeps the longer expiry")

	// a longer re-trigger extends
	st = Transition(cur, &PauseTrigger{Kind: PauseSoft, Duration: 4 * time.Hour}, t0)
	assert.Equal(t, t0.Add(4*time.Hour), st.ExpiresAt)
}

func TestHardOverridesSoft(t *testing.T) {
	cur := PauseState{Kind: PauseSoft, ExpiresAt: t0.Add(10 * time.Hour)}
	trig := &PauseTrigger{Kind: PauseHard, Duration: 6 * time.Hour}

	st := Transition(cur, trig, t0)
	assert.Equal(t, PauseHard, st.Kind)
	// HARD uses its own duration even when the SOFT expiry was later
	assert.Equal(t, t0.Add(6*time.Hour), st.ExpiresAt)
}

func TestSoftDuringHardIsIgnored(t *testing.T) {
	cur := PauseState{Kind: PauseHard, ExpiresAt: t0.Add(5 * time.Hour), Reason: "hack news"}
	trig := &PauseTrigger{Kind: PauseSoft, Duration: 3 * time.Hour}

	st := Transition(cur, trig, t0)
	assert.Equal(t, PauseHard, st.Kind)
	assert.Equal(t, cur.ExpiresAt, st.ExpiresAt)
	assert.Equal(t, "hack news", st.Reason)
}

func TestClearingIsPassive(t *testing.T) {
	cur := PauseState{Kind: PauseHard, ExpiresAt: t0.Add(time.Hour)}

	assert.True(t, cur.Active(t0))
	assert.True(t, cur.Active(t0.Add(59*time.Minute)))
	// at expiry the state collapses to NONE without any explicit clear call
	at := cur.At(t0.Add(time.Hour))
	assert.Equal(t, PauseNone, at.Kind)
	assert.False(t, cur.Active(t0.Add(2*time.Hour)))
}

func TestExpiredStateAcceptsNewTrigger(t *testing.T) {
	cur := PauseState{Kind: PauseHard, ExpiresAt: t0.Add(-time.Minute)}
	trig := &PauseTrigger{Kind: PauseSoft, Duration: time.Hour}

	st := Transition(cur, trig, t0)
	assert.Equal(t, PauseSoft, st.Kind, "expired HARD no longer blocks SOFT")
}

func TestParsePauseKindRoundTrip(t *testing.T) {
	for _, k := range []PauseKind{PauseNone, PauseSoft, PauseHard} {
		got, err := ParsePauseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := ParsePauseKind("bogus")
	assert.Error(t, err)
}
