package news

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryPauseStore is an in-memory PauseStore with togglable failure modes.
type memoryPauseStore struct {
	mu        sync.Mutex
	states    map[string]PauseState
	failLoad  bool
	failSave  bool
	saveCalls int
}

func newMemoryPauseStore() *memoryPauseStore {
	return &memoryPauseStore{states: make(map[string]PauseState)}
}

func (s *memoryPauseStore) LoadPauseStates(ctx context.Context) (map[string]PauseState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failLoad {
		return nil, errors.New("disk unreadable")
	}
	out := make(map[string]PauseState, len(s.states))
	for k, v := range s.states {
		out[k] = v
	}
	return out, nil
}

func (s *memoryPauseStore) SavePauseState(ctx context.Context, symbol string, st PauseState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveCalls++
	if s.failSave {
		return errors.New("disk full")
	}
	s.states[symbol] = st
	return nil
}

func hardClassifier() *ClassifierResult {
	return &ClassifierResult{Sentiment: -0.75, Confidence: 0.80, Category: "hack"}
}

func newTestEngine(t *testing.T, store PauseStore) *ShockEngine {
	t.Helper()
	e, err := NewShockEngine(context.Background(), ShockConfig{}, store, []string{"ETHUSDT"})
	require.NoError(t, err)
	e.sleep = func(time.Duration) {}
	return e
}

func TestHardTriggerExpiresInSixHours(t *testing.T) {
	store := newMemoryPauseStore()
	e := newTestEngine(t, store)
	now := time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)

	res, err := e.Evaluate(context.Background(), "ETHUSDT", ShockInput{
		Classifier: hardClassifier(),
		Now:        now,
	})
	require.NoError(t, err)
	assert.Equal(t, PauseHard, res.State.Kind)
	assert.InDelta(t, -0.6, res.SentLLM, 1e-9)
	assert.Equal(t, now.Add(6*time.Hour), res.State.ExpiresAt)

	// persisted before effective
	persisted := store.states["ETHUSDT"]
	assert.Equal(t, PauseHard, persisted.Kind)
	assert.Equal(t, res.State.ExpiresAt, persisted.ExpiresAt)

	// passive expiry: no clear call needed
	assert.Equal(t, PauseNone, e.ActivePause("ETHUSDT", now.Add(6*time.Hour)).Kind)
}

func TestSoftTriggerFromNSv3(t *testing.T) {
	e := newTestEngine(t, newMemoryPauseStore())
	now := time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)

	// SentZ = -3 -> SentComb = 0.7*-3 = -2.1 -> NS_v3 = 0.6*-2.1 = -1.26
	res, err := e.Evaluate(context.Background(), "ETHUSDT", ShockInput{SentZ: -3, Now: now})
	require.NoError(t, err)
	assert.InDelta(t, -1.26, res.NSv3, 1e-9)
	assert.Equal(t, PauseSoft, res.State.Kind)
	assert.Equal(t, now.Add(3*time.Hour), res.State.ExpiresAt)
}

func TestNilClassifierReadsNeutral(t *testing.T) {
	e := newTestEngine(t, newMemoryPauseStore())
	now := time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)

	res, err := e.Evaluate(context.Background(), "ETHUSDT", ShockInput{Now: now})
	require.NoError(t, err)
	assert.Zero(t, res.SentLLM)
	assert.Equal(t, PauseNone, res.State.Kind)
}

func TestPersistFailureKeepsOldStateInForce(t *testing.T) {
	store := newMemoryPauseStore()
	store.failSave = true
	e := newTestEngine(t, store)
	now := time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)

	res, err := e.Evaluate(context.Background(), "ETHUSDT", ShockInput{
		Classifier: hardClassifier(),
		Now:        now,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPersistenceWrite))
	// unwritten transition is never advertised
	assert.Equal(t, PauseNone, res.State.Kind)
	assert.Equal(t, PauseNone, e.ActivePause("ETHUSDT", now).Kind)
	// write was retried with backoff
	assert.Equal(t, 3, store.saveCalls)
}

func TestStartupReloadSkipsExpired(t *testing.T) {
	store := newMemoryPauseStore()
	now := time.Now().UTC()
	store.states["ETHUSDT"] = PauseState{Kind: PauseHard, ExpiresAt: now.Add(2 * time.Hour)}
	store.states["SOLUSDT"] = PauseState{Kind: PauseSoft, ExpiresAt: now.Add(-time.Minute)}

	e, err := NewShockEngine(context.Background(), ShockConfig{}, store, []string{"ETHUSDT", "SOLUSDT"})
	require.NoError(t, err)
	assert.Equal(t, PauseHard, e.ActivePause("ETHUSDT", now).Kind)
	assert.Equal(t, PauseNone, e.ActivePause("SOLUSDT", now).Kind)
}

func TestStartupReadFailureFailOpen(t *testing.T) {
	store := newMemoryPauseStore()
	store.failLoad = true

	e, err := NewShockEngine(context.Background(), ShockConfig{}, store, []string{"ETHUSDT"})
	require.NoError(t, err)
	assert.Equal(t, PauseNone, e.ActivePause("ETHUSDT", time.Now().UTC()).Kind)
}

func TestStartupReadFailureFailClosed(t *testing.T) {
	store := newMemoryPauseStore()
	store.failLoad = true

	e, err := NewShockEngine(context.Background(), ShockConfig{
		ReadFailurePolicy: ReadFailClosed,
	}, store, []string{"ETHUSDT", "SOLUSDT"})
	require.NoError(t, err)
	now := time.Now().UTC()
	assert.Equal(t, PauseHard, e.ActivePause("ETHUSDT", now).Kind)
	assert.Equal(t, PauseHard, e.ActivePause("SOLUSDT", now).Kind)
}

func TestPersistedRoundTrip(t *testing.T) {
	store := newMemoryPauseStore()
	e := newTestEngine(t, store)
	now := time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)

	_, err := e.Evaluate(context.Background(), "ETHUSDT", ShockInput{
		Classifier: hardClassifier(),
		Now:        now,
	})
	require.NoError(t, err)

	// a fresh engine over the same store sees the identical state
	e2, err := NewShockEngine(context.Background(), ShockConfig{}, store, []string{"ETHUSDT"})
	require.NoError(t, err)
	got := e2.ActivePause("ETHUSDT", now)
	assert.Equal(t, PauseHard, got.Kind)
	assert.Equal(t, now.Add(6*time.Hour), got.ExpiresAt)
}
