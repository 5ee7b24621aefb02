package config

import "strings"

// Config is the full tidemark configuration tree.
type Config struct {
	App            AppConfig            `toml:"app"`
	Universe       UniverseConfig       `toml:"universe"`
	Slot           SlotConfig           `toml:"slot"`
	Momentum       MomentumConfig       `toml:"momentum"`
	Microstructure MicrostructureConfig `toml:"microstructure"`
	Regime         RegimeConfig         `toml:"regime"`
	News           NewsConfig           `toml:"news"`
	Risk           RiskConfig           `toml:"risk"`
	Storage        StorageConfig        `toml:"storage"`
	Binance        BinanceConfig        `toml:"binance"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	HTTPAddr string `toml:"http_addr"`
	LogPath  string `toml:"log_path"`
}

// UniverseConfig fixes the tradable symbol set. No auto-discovery.
type UniverseConfig struct {
	Benchmark string   `toml:"benchmark"` // correlation anchor, e.g. BTCUSDT
	Symbols   []string `toml:"symbols"`
}

type SlotConfig struct {
	DecisionEveryMinutes int `toml:"decision_every_minutes"`
	OffsetSeconds        int `toml:"offset_seconds"` // settle time after bar close
	MaxSnapshotAgeSec    int `toml:"max_snapshot_age_seconds"`
}

type MomentumConfig struct {
	ShortWindowDays int     `toml:"short_window_days"`
	LongWindowDays  int     `toml:"long_window_days"`
	BlockSizeDays   int     `toml:"block_size_days"`
	Resamples       int     `toml:"resamples"`
	MinPWin         float64 `toml:"min_pwin"`
	Seed            int64   `toml:"seed"`
}

type MicrostructureConfig struct {
	SpreadMaxBps   float64 `toml:"spread_max_bps"`
	OFIWindow      int     `toml:"ofi_window"`
	OFIZMinNeutral float64 `toml:"ofi_z_min_neutral"`
	OFIZMinRiskOn  float64 `toml:"ofi_z_min_risk_on"`
	VWAPMaxDevPct  float64 `toml:"vwap_max_dev_pct"`
	AmihudPolicy   string  `toml:"amihud_policy"` // "block" | "scale"
	AmihudScale    float64 `toml:"amihud_scale"`
	AmihudLookback int     `toml:"amihud_lookback_days"`
}

type RegimeConfig struct {
	ShortWindowDays int     `toml:"short_window_days"`
	LongWindowDays  int     `toml:"long_window_days"`
	CorrThreshold   float64 `toml:"corr_threshold"`
	ClearSlots      int     `toml:"clear_slots"`
}

type NewsConfig struct {
	HalfLifeHours      float64  `toml:"half_life_hours"`
	BaselineWindowDays int      `toml:"baseline_window_days"`
	HardDurationHours  float64  `toml:"hard_duration_hours"`
	SoftDurationHours  float64  `toml:"soft_duration_hours"`
	SoftThreshold      float64  `toml:"soft_threshold"`
	HardMinConfidence  float64  `toml:"hard_min_confidence"`
	HardMaxSentLLM     float64  `toml:"hard_max_sent_llm"`
	CriticalCategories []string `toml:"critical_categories"`
	ReadFailurePolicy  string   `toml:"read_failure_policy"` // "fail_open" | "fail_closed"
	FeedURL            string   `toml:"feed_url"`
	ClassifierURL      string   `toml:"classifier_url"`
	AuthToken          string   `toml:"auth_token"`
}

type RiskConfig struct {
	TargetVol1d           float64 `toml:"target_vol_1d"`
	MaxPositions          int     `toml:"max_positions"`
	WeightPerPositionMax  float64 `toml:"weight_per_position_max"`
	CashBufferMin         float64 `toml:"cash_buffer_min"`
	DailyDrawdownPausePct float64 `toml:"daily_drawdown_pause_pct"`
	MaxHoldingHours       float64 `toml:"max_holding_hours"`
	VolWindowDays         int     `toml:"vol_window_days"`
	OverridesPath         string  `toml:"overrides_path"`
}

type StorageConfig struct {
	StatePath   string `toml:"state_path"`   // pause states + decision log
	HistoryPath string `toml:"history_path"` // OHLCV cache
}

type BinanceConfig struct {
	RESTBaseURL    string  `toml:"rest_base_url"`
	RequestsPerSec float64 `toml:"requests_per_sec"`
	Burst          int     `toml:"burst"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
}

// NormalizedSymbols returns the deduplicated, upper-cased universe.
func (u UniverseConfig) NormalizedSymbols() []string {
	seen := make(map[string]bool, len(u.Symbols))
	out := make([]string, 0, len(u.Symbols))
	for _, s := range u.Symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// keySet tracks which config paths were explicitly set in the file.
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault describes one field's defaulting rule.
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
