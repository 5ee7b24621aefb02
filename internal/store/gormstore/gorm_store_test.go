package gormstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"tidemark/internal/engine"
	"tidemark/internal/news"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPauseStateRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	st := news.PauseState{
		Kind:      news.PauseHard,
		ExpiresAt: time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC),
		Score:     -0.9,
		Reason:    "exchange hack headline",
	}
	require.NoError(t, s.SavePauseState(ctx, "BTCUSDT", st))

	loaded, err := s.LoadPauseStates(ctx)
	require.NoError(t, err)
	require.Contains(t, loaded, "BTCUSDT")
	got := loaded["BTCUSDT"]
	assert.Equal(t, news.PauseHard, got.Kind)
	assert.True(t, got.ExpiresAt.Equal(st.ExpiresAt))
	assert.Equal(t, st.Score, got.Score)
	assert.Equal(t, st.Reason, got.Reason)
}

func TestSavePauseStateUpserts(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	first := news.PauseState{Kind: news.PauseSoft, ExpiresAt: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	require.NoError(t, s.SavePauseState(ctx, "ETHUSDT", first))

	second := news.PauseState{Kind: news.PauseHard, ExpiresAt: time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC), Reason: "escalated"}
	require.NoError(t, s.SavePauseState(ctx, "ETHUSDT", second))

	loaded, err := s.LoadPauseStates(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, news.PauseHard, loaded["ETHUSDT"].Kind)
	assert.Equal(t, "escalated", loaded["ETHUSDT"].Reason)
}

func TestLoadPauseStatesIncludesExpired(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	expired := news.PauseState{Kind: news.PauseSoft, ExpiresAt: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, s.SavePauseState(ctx, "SOLUSDT", expired))

	loaded, err := s.LoadPauseStates(ctx)
	require.NoError(t, err)
	assert.Contains(t, loaded, "SOLUSDT")
}

func sampleDecision(slot int64, symbol string) engine.Decision {
	return engine.Decision{
		TraceID:      "trace-" + symbol,
		SlotID:       slot,
		Symbol:       symbol,
		Action:       engine.ActionEnter,
		TargetWeight: 0.24,
		Price:        50_000,
		CreatedAt:    time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestAppendAndReadDecisions(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendDecision(ctx, sampleDecision(100, "BTCUSDT")))
	require.NoError(t, s.AppendDecision(ctx, sampleDecision(100, "ETHUSDT")))
	require.NoError(t, s.AppendDecision(ctx, sampleDecision(101, "BTCUSDT")))

	recent, err := s.RecentDecisions(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	// newest first
	assert.Equal(t, int64(101), recent[0].SlotID)

	slot, err := s.DecisionsBySlot(ctx, 100)
	require.NoError(t, err)
	require.Len(t, slot, 2)
	assert.Equal(t, "BTCUSDT", slot[0].Symbol)
	assert.Equal(t, "ETHUSDT", slot[1].Symbol)
	assert.Equal(t, engine.ActionEnter, slot[0].Action)
	assert.InDelta(t, 0.24, slot[0].TargetWeight, 1e-12)
}

func TestDuplicateSlotSymbolIsRejected(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendDecision(ctx, sampleDecision(100, "BTCUSDT")))
	assert.Error(t, s.AppendDecision(ctx, sampleDecision(100, "BTCUSDT")))
}
