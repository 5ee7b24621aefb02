package risk

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeOverrideFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "risk_overrides.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestEmptyPathDisablesRegistry(t *testing.T) {
	base := Config{}.WithDefaults()
	r, err := NewOverrideRegistry(base, "")
	require.NoError(t, err)

	assert.Equal(t, base, r.Apply(time.Now()))
	assert.Empty(t, r.Snapshot().Overrides)
}

func TestApplyTightensLiveOverrides(t *testing.T) {
	path := writeOverrideFile(t, `
overrides:
  - target_vol_1d: 0.008
    max_positions: 1
    cash_buffer_min: 0.55
    expires_at: 2030-01-01T00:00:00Z
    reason: exchange incident
`)
	base := Config{}.WithDefaults()
	r, err := NewOverrideRegistry(base, path)
	require.NoError(t, err)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := r.Apply(now)
	assert.InDelta(t, 0.008, cfg.TargetVol1d, 1e-12)
	assert.Equal(t, 1, cfg.MaxPositions)
	assert.InDelta(t, 0.55, cfg.CashBufferMin, 1e-12)
	// untouched fields come from the base
	assert.Equal(t, base.WeightPerPositionMax, cfg.WeightPerPositionMax)
	assert.Equal(t, base.MaxHoldingHours, cfg.MaxHoldingHours)
}

func TestExpiredOverrideIsSkipped(t *testing.T) {
	path := writeOverrideFile(t, `
overrides:
  - max_positions: 1
    expires_at: 2024-01-01T00:00:00Z
    reason: past incident
`)
	base := Config{}.WithDefaults()
	r, err := NewOverrideRegistry(base, path)
	require.NoError(t, err)

	assert.Equal(t, base, r.Apply(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestLooseningOverrideIsRejected(t *testing.T) {
	path := writeOverrideFile(t, `
overrides:
  - max_positions: 10
    expires_at: 2030-01-01T00:00:00Z
    reason: nope
`)
	_, err := NewOverrideRegistry(Config{}.WithDefaults(), path)
	assert.Error(t, err)
}

func TestOverrideWithoutExpiryIsRejected(t *testing.T) {
	path := writeOverrideFile(t, `
overrides:
  - max_positions: 1
    reason: forever is not allowed
`)
	_, err := NewOverrideRegistry(Config{}.WithDefaults(), path)
	assert.Error(t, err)
}
