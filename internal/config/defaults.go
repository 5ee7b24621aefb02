package config

import "strings"

const (
	defaultAppEnv      = "dev"
	defaultAppLogLevel = "info"
	defaultAppHTTPAddr = ":9981"
	defaultAppLogPath  = "/data/logs/tidemark.log"

	defaultBenchmark = "BTCUSDT"

	defaultSlotMinutes        = 60
	defaultSlotOffsetSeconds  = 10
	defaultMaxSnapshotAgeSec  = 300

	defaultMomentumShortDays = 60
	defaultMomentumLongDays  = 120
	defaultBlockSizeDays     = 7
	defaultResamples         = 400
	defaultMinPWin           = 0.60

	defaultSpreadMaxBps   = 12.0
	defaultOFIWindow      = 24
	defaultOFIZMinNeutral = 0.5
	defaultVWAPMaxDevPct  = 1.5
	defaultAmihudPolicy   = "scale"
	defaultAmihudScale    = 0.5
	defaultAmihudLookback = 180

	defaultRegimeShortDays = 7
	defaultRegimeLongDays  = 30
	defaultCorrThreshold   = 0.75
	defaultClearSlots      = 3

	defaultHalfLifeHours      = 12.0
	defaultBaselineDays       = 30
	defaultHardDurationHours  = 6.0
	defaultSoftDurationHours  = 3.0
	defaultSoftThreshold      = -1.2
	defaultHardMinConfidence  = 0.65
	defaultHardMaxSentLLM     = -0.5
	defaultReadFailurePolicy  = "fail_open"

	defaultTargetVol1d       = 0.012
	defaultMaxPositions      = 2
	defaultWeightPerPosition = 0.30
	defaultCashBufferMin     = 0.40
	defaultDrawdownPausePct  = 2.5
	defaultMaxHoldingHours   = 72.0
	defaultVolWindowDays     = 30

	defaultStatePath   = "/data/tidemark/state.db"
	defaultHistoryPath = "/data/tidemark/history.db"

	defaultBinanceREST    = "https://api.binance.com"
	defaultRequestsPerSec = 5.0
	defaultBurst          = 10
	defaultBinanceTimeout = 15
)

func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Universe.applyDefaults(keys)
	c.Slot.applyDefaults(keys)
	c.Momentum.applyDefaults(keys)
	c.Microstructure.applyDefaults(keys)
	c.Regime.applyDefaults(keys)
	c.News.applyDefaults(keys)
	c.Risk.applyDefaults(keys)
	c.Storage.applyDefaults(keys)
	c.Binance.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
	)
}

func (u *UniverseConfig) applyDefaults(keys keySet) {
	if u == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("universe.benchmark", &u.Benchmark, defaultBenchmark),
	)
}

func (s *SlotConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "slot.decision_every_minutes",
			need:  func() bool { return s.DecisionEveryMinutes <= 0 },
			apply: func() { s.DecisionEveryMinutes = defaultSlotMinutes },
		},
		fieldDefault{
			key:   "slot.offset_seconds",
			need:  func() bool { return s.OffsetSeconds <= 0 },
			apply: func() { s.OffsetSeconds = defaultSlotOffsetSeconds },
		},
		fieldDefault{
			key:   "slot.max_snapshot_age_seconds",
			need:  func() bool { return s.MaxSnapshotAgeSec <= 0 },
			apply: func() { s.MaxSnapshotAgeSec = defaultMaxSnapshotAgeSec },
		},
	)
}

func (m *MomentumConfig) applyDefaults(keys keySet) {
	if m == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "momentum.short_window_days",
			need:  func() bool { return m.ShortWindowDays <= 0 },
			apply: func() { m.ShortWindowDays = defaultMomentumShortDays },
		},
		fieldDefault{
			key:   "momentum.long_window_days",
			need:  func() bool { return m.LongWindowDays <= 0 },
			apply: func() { m.LongWindowDays = defaultMomentumLongDays },
		},
		fieldDefault{
			key:   "momentum.block_size_days",
			need:  func() bool { return m.BlockSizeDays <= 0 },
			apply: func() { m.BlockSizeDays = defaultBlockSizeDays },
		},
		fieldDefault{
			key:   "momentum.resamples",
			need:  func() bool { return m.Resamples <= 0 },
			apply: func() { m.Resamples = defaultResamples },
		},
		fieldDefault{
			key:   "momentum.min_pwin",
			need:  func() bool { return m.MinPWin == 0 },
			apply: func() { m.MinPWin = defaultMinPWin },
		},
	)
}

func (m *MicrostructureConfig) applyDefaults(keys keySet) {
	if m == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("microstructure.amihud_policy", &m.AmihudPolicy, defaultAmihudPolicy),
		fieldDefault{
			key:   "microstructure.spread_max_bps",
			need:  func() bool { return m.SpreadMaxBps <= 0 },
			apply: func() { m.SpreadMaxBps = defaultSpreadMaxBps },
		},
		fieldDefault{
			key:   "microstructure.ofi_window",
			need:  func() bool { return m.OFIWindow <= 0 },
			apply: func() { m.OFIWindow = defaultOFIWindow },
		},
		fieldDefault{
			key:   "microstructure.ofi_z_min_neutral",
			need:  func() bool { return m.OFIZMinNeutral == 0 },
			apply: func() { m.OFIZMinNeutral = defaultOFIZMinNeutral },
		},
		fieldDefault{
			key:   "microstructure.vwap_max_dev_pct",
			need:  func() bool { return m.VWAPMaxDevPct <= 0 },
			apply: func() { m.VWAPMaxDevPct = defaultVWAPMaxDevPct },
		},
		fieldDefault{
			key:   "microstructure.amihud_scale",
			need:  func() bool { return m.AmihudScale <= 0 },
			apply: func() { m.AmihudScale = defaultAmihudScale },
		},
		fieldDefault{
			key:   "microstructure.amihud_lookback_days",
			need:  func() bool { return m.AmihudLookback <= 0 },
			apply: func() { m.AmihudLookback = defaultAmihudLookback },
		},
	)
}

func (r *RegimeConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "regime.short_window_days",
			need:  func() bool { return r.ShortWindowDays <= 0 },
			apply: func() { r.ShortWindowDays = defaultRegimeShortDays },
		},
		fieldDefault{
			key:   "regime.long_window_days",
			need:  func() bool { return r.LongWindowDays <= 0 },
			apply: func() { r.LongWindowDays = defaultRegimeLongDays },
		},
		fieldDefault{
			key:   "regime.corr_threshold",
			need:  func() bool { return r.CorrThreshold <= 0 },
			apply: func() { r.CorrThreshold = defaultCorrThreshold },
		},
		fieldDefault{
			key:   "regime.clear_slots",
			need:  func() bool { return r.ClearSlots <= 0 },
			apply: func() { r.ClearSlots = defaultClearSlots },
		},
	)
}

func (n *NewsConfig) applyDefaults(keys keySet) {
	if n == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("news.read_failure_policy", &n.ReadFailurePolicy, defaultReadFailurePolicy),
		fieldDefault{
			key:   "news.half_life_hours",
			need:  func() bool { return n.HalfLifeHours <= 0 },
			apply: func() { n.HalfLifeHours = defaultHalfLifeHours },
		},
		fieldDefault{
			key:   "news.baseline_window_days",
			need:  func() bool { return n.BaselineWindowDays <= 0 },
			apply: func() { n.BaselineWindowDays = defaultBaselineDays },
		},
		fieldDefault{
			key:   "news.hard_duration_hours",
			need:  func() bool { return n.HardDurationHours <= 0 },
			apply: func() { n.HardDurationHours = defaultHardDurationHours },
		},
		fieldDefault{
			key:   "news.soft_duration_hours",
			need:  func() bool { return n.SoftDurationHours <= 0 },
			apply: func() { n.SoftDurationHours = defaultSoftDurationHours },
		},
		fieldDefault{
			key:   "news.soft_threshold",
			need:  func() bool { return n.SoftThreshold == 0 },
			apply: func() { n.SoftThreshold = defaultSoftThreshold },
		},
		fieldDefault{
			key:   "news.hard_min_confidence",
			need:  func() bool { return n.HardMinConfidence == 0 },
			apply: func() { n.HardMinConfidence = defaultHardMinConfidence },
		},
		fieldDefault{
			key:   "news.hard_max_sent_llm",
			need:  func() bool { return n.HardMaxSentLLM == 0 },
			apply: func() { n.HardMaxSentLLM = defaultHardMaxSentLLM },
		},
	)
	if len(n.CriticalCategories) == 0 {
		n.CriticalCategories = []string{"regulation", "hack", "bankruptcy", "delisting"}
	}
}

func (r *RiskConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "risk.target_vol_1d",
			need:  func() bool { return r.TargetVol1d <= 0 },
			apply: func() { r.TargetVol1d = defaultTargetVol1d },
		},
		fieldDefault{
			key:   "risk.max_positions",
			need:  func() bool { return r.MaxPositions == 0 },
			apply: func() { r.MaxPositions = defaultMaxPositions },
		},
		fieldDefault{
			key:   "risk.weight_per_position_max",
			need:  func() bool { return r.WeightPerPositionMax <= 0 },
			apply: func() { r.WeightPerPositionMax = defaultWeightPerPosition },
		},
		fieldDefault{
			key:   "risk.cash_buffer_min",
			need:  func() bool { return r.CashBufferMin <= 0 },
			apply: func() { r.CashBufferMin = defaultCashBufferMin },
		},
		fieldDefault{
			key:   "risk.daily_drawdown_pause_pct",
			need:  func() bool { return r.DailyDrawdownPausePct <= 0 },
			apply: func() { r.DailyDrawdownPausePct = defaultDrawdownPausePct },
		},
		fieldDefault{
			key:   "risk.max_holding_hours",
			need:  func() bool { return r.MaxHoldingHours <= 0 },
			apply: func() { r.MaxHoldingHours = defaultMaxHoldingHours },
		},
		fieldDefault{
			key:   "risk.vol_window_days",
			need:  func() bool { return r.VolWindowDays <= 0 },
			apply: func() { r.VolWindowDays = defaultVolWindowDays },
		},
	)
}

func (s *StorageConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("storage.state_path", &s.StatePath, defaultStatePath),
		stringFieldDefault("storage.history_path", &s.HistoryPath, defaultHistoryPath),
	)
}

func (b *BinanceConfig) applyDefaults(keys keySet) {
	if b == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("binance.rest_base_url", &b.RESTBaseURL, defaultBinanceREST),
		fieldDefault{
			key:   "binance.requests_per_sec",
			need:  func() bool { return b.RequestsPerSec <= 0 },
			apply: func() { b.RequestsPerSec = defaultRequestsPerSec },
		},
		fieldDefault{
			key:   "binance.burst",
			need:  func() bool { return b.Burst <= 0 },
			apply: func() { b.Burst = defaultBurst },
		},
		fieldDefault{
			key:   "binance.timeout_seconds",
			need:  func() bool { return b.TimeoutSeconds <= 0 },
			apply: func() { b.TimeoutSeconds = defaultBinanceTimeout },
		},
	)
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
