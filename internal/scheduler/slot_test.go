package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlotIDFloorsMinutes(t *testing.T) {
	s := NewSlotScheduler(60 * time.Minute)
	base := time.Date(2025, 3, 1, 14, 0, 0, 0, time.UTC)
	id0 := s.SlotID(base)
	assert.Equal(t, id0, s.SlotID(base.Add(30*time.Minute)))
	assert.Equal(t, id0, s.SlotID(base.Add(59*time.Minute+59*time.Second)))
	assert.Equal(t, id0+1, s.SlotID(base.Add(time.Hour)))
}

func TestShouldRunAtMostOncePerSlot(t *testing.T) {
	s := NewSlotScheduler(30 * time.Minute)
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	id1, ok := s.ShouldRun(base)
	require.True(t, ok)

	// same slot never fires twice
	_, ok = s.ShouldRun(base.Add(10 * time.Minute))
	assert.False(t, ok)

	id2, ok := s.ShouldRun(base.Add(30 * time.Minute))
	require.True(t, ok)
	assert.Greater(t, id2, id1)
}

func TestShouldRunRejectsClockRollback(t *testing.T) {
	s := NewSlotScheduler(15 * time.Minute)
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	_, ok := s.ShouldRun(base)
	require.True(t, ok)

	// an id at or below the largest already seen is never admitted again
	_, ok = s.ShouldRun(base.Add(-45 * time.Minute))
	assert.False(t, ok)
	_, ok = s.ShouldRun(base)
	assert.False(t, ok)
}

func TestNextBoundary(t *testing.T) {
	s := NewSlotScheduler(60 * time.Minute)
	now := time.Date(2025, 3, 1, 9, 42, 11, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), s.NextBoundary(now))
}
