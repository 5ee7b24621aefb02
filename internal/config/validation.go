package config

import (
	"fmt"
	"strings"
)

// validate enforces the startup invariants. A violation here is the only
// fatal error class in the process.
func validate(c *Config) error {
	if err := c.Universe.validate(); err != nil {
		return err
	}
	if err := c.Slot.validate(); err != nil {
		return err
	}
	if err := c.Momentum.validate(); err != nil {
		return err
	}
	if err := c.Microstructure.validate(); err != nil {
		return err
	}
	if err := c.News.validate(); err != nil {
		return err
	}
	if err := c.Risk.validate(); err != nil {
		return err
	}
	return nil
}

func (u *UniverseConfig) validate() error {
	if strings.TrimSpace(u.Benchmark) == "" {
		return fmt.Errorf("universe.benchmark cannot be empty")
	}
	if len(u.NormalizedSymbols()) == 0 {
		return fmt.Errorf("universe.symbols requires at least one symbol")
	}
	return nil
}

func (s *SlotConfig) validate() error {
	if s.DecisionEveryMinutes <= 0 {
		return fmt.Errorf("slot.decision_every_minutes must be > 0")
	}
	if s.OffsetSeconds < 0 {
		return fmt.Errorf("slot.offset_seconds must be >= 0")
	}
	return nil
}

func (m *MomentumConfig) validate() error {
	if m.MinPWin < 0 || m.MinPWin > 1 {
		return fmt.Errorf("momentum.min_pwin must be within [0, 1], got %v", m.MinPWin)
	}
	if m.ShortWindowDays >= m.LongWindowDays {
		return fmt.Errorf("momentum.short_window_days %d must be below long_window_days %d",
			m.ShortWindowDays, m.LongWindowDays)
	}
	if m.BlockSizeDays < 5 || m.BlockSizeDays > 10 {
		return fmt.Errorf("momentum.block_size_days must be within [5, 10], got %d", m.BlockSizeDays)
	}
	if m.Resamples < 300 {
		return fmt.Errorf("momentum.resamples must be >= 300, got %d", m.Resamples)
	}
	return nil
}

func (m *MicrostructureConfig) validate() error {
	switch m.AmihudPolicy {
	case "block", "scale":
	default:
		return fmt.Errorf("microstructure.amihud_policy must be \"block\" or \"scale\", got %q", m.AmihudPolicy)
	}
	if m.AmihudScale <= 0 || m.AmihudScale > 1 {
		return fmt.Errorf("microstructure.amihud_scale must be within (0, 1], got %v", m.AmihudScale)
	}
	return nil
}

func (n *NewsConfig) validate() error {
	switch n.ReadFailurePolicy {
	case "fail_open", "fail_closed":
	default:
		return fmt.Errorf("news.read_failure_policy must be \"fail_open\" or \"fail_closed\", got %q", n.ReadFailurePolicy)
	}
	if n.HardMinConfidence < 0 || n.HardMinConfidence > 1 {
		return fmt.Errorf("news.hard_min_confidence must be within [0, 1], got %v", n.HardMinConfidence)
	}
	if n.SoftThreshold >= 0 {
		return fmt.Errorf("news.soft_threshold must be negative, got %v", n.SoftThreshold)
	}
	return nil
}

func (r *RiskConfig) validate() error {
	if r.MaxPositions <= 0 {
		return fmt.Errorf("risk.max_positions must be > 0, got %d", r.MaxPositions)
	}
	if r.WeightPerPositionMax <= 0 || r.WeightPerPositionMax > 1 {
		return fmt.Errorf("risk.weight_per_position_max must be within (0, 1], got %v", r.WeightPerPositionMax)
	}
	if r.CashBufferMin < 0 || r.CashBufferMin >= 1 {
		return fmt.Errorf("risk.cash_buffer_min must be within [0, 1), got %v", r.CashBufferMin)
	}
	if r.TargetVol1d <= 0 {
		return fmt.Errorf("risk.target_vol_1d must be > 0, got %v", r.TargetVol1d)
	}
	return nil
}
