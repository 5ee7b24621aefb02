package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
universe:
  benchmark: BTCUSDT
  symbols: [ETHUSDT, SOLUSDT]
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 60, cfg.Slot.DecisionEveryMinutes)
	assert.Equal(t, 10, cfg.Slot.OffsetSeconds)
	assert.Equal(t, 60, cfg.Momentum.ShortWindowDays)
	assert.Equal(t, 120, cfg.Momentum.LongWindowDays)
	assert.InDelta(t, 0.60, cfg.Momentum.MinPWin, 1e-12)
	assert.Equal(t, "scale", cfg.Microstructure.AmihudPolicy)
	assert.Equal(t, "fail_open", cfg.News.ReadFailurePolicy)
	assert.InDelta(t, -1.2, cfg.News.SoftThreshold, 1e-12)
	assert.Equal(t, 2, cfg.Risk.MaxPositions)
	assert.InDelta(t, 0.012, cfg.Risk.TargetVol1d, 1e-12)
}

func TestLoadKeepsExplicitValues(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
universe:
  benchmark: BTCUSDT
  symbols: [ETHUSDT]
slot:
  decision_every_minutes: 15
momentum:
  min_pwin: 0.7
risk:
  max_positions: 1
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 15, cfg.Slot.DecisionEveryMinutes)
	assert.InDelta(t, 0.7, cfg.Momentum.MinPWin, 1e-12)
	assert.Equal(t, 1, cfg.Risk.MaxPositions)
	// untouched sections still fall back to defaults
	assert.Equal(t, 10, cfg.Slot.OffsetSeconds)
}

func TestLoadMergesIncludes(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.yaml")
	require.NoError(t, os.WriteFile(base, []byte(`
universe:
  benchmark: BTCUSDT
  symbols: [ETHUSDT]
risk:
  max_positions: 1
`), 0o644))
	main := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(main, []byte(`
include:
  - base.yaml
slot:
  decision_every_minutes: 30
`), 0o644))

	cfg, err := Load(main)
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Risk.MaxPositions)
	assert.Equal(t, 30, cfg.Slot.DecisionEveryMinutes)
	assert.Equal(t, "BTCUSDT", cfg.Universe.Benchmark)
}

func TestLoadRejectsMissingBenchmark(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
universe:
  benchmark: ""
  symbols: [ETHUSDT]
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsInvalidMinPWin(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
universe:
  benchmark: BTCUSDT
  symbols: [ETHUSDT]
momentum:
  min_pwin: 1.4
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "min_pwin")
}

func TestLoadRejectsInvertedMomentumWindows(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
universe:
  benchmark: BTCUSDT
  symbols: [ETHUSDT]
momentum:
  short_window_days: 120
  long_window_days: 60
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsUnknownAmihudPolicy(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
universe:
  benchmark: BTCUSDT
  symbols: [ETHUSDT]
microstructure:
  amihud_policy: drop
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsUnknownReadFailurePolicy(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
universe:
  benchmark: BTCUSDT
  symbols: [ETHUSDT]
news:
  read_failure_policy: panic
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestNormalizedSymbolsDropsBlanksAndUppercases(t *testing.T) {
	u := UniverseConfig{Symbols: []string{" ethusdt ", "", "SOLUSDT"}}
	assert.Equal(t, []string{"ETHUSDT", "SOLUSDT"}, u.NormalizedSymbols())
}
