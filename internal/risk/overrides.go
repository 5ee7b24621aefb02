package risk

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"tidemark/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Override is a temporary risk-reducing parameter adjustment. Every field is
// optional; an unset field leaves the base value alone. Overrides that would
// loosen the base limits are rejected at load time.
type Override struct {
	TargetVol1d           float64   `mapstructure:"target_vol_1d" yaml:"target_vol_1d"`
	MaxPositions          int       `mapstructure:"max_positions" yaml:"max_positions"`
	WeightPerPositionMax  float64   `mapstructure:"weight_per_position_max" yaml:"weight_per_position_max"`
	CashBufferMin         float64   `mapstructure:"cash_buffer_min" yaml:"cash_buffer_min"`
	DailyDrawdownPausePct float64   `mapstructure:"daily_drawdown_pause_pct" yaml:"daily_drawdown_pause_pct"`
	MaxHoldingHours       float64   `mapstructure:"max_holding_hours" yaml:"max_holding_hours"`
	ExpiresAt             time.Time `mapstructure:"expires_at" yaml:"expires_at"`
	Reason                string    `mapstructure:"reason" yaml:"reason"`
}

func (o Override) Expired(now time.Time) bool {
	return !o.ExpiresAt.IsZero() && !now.Before(o.ExpiresAt)
}

type overrideFile struct {
	Overrides []Override `mapstructure:"overrides" yaml:"overrides"`
}

// OverrideSnapshot is the currently loaded override set.
type OverrideSnapshot struct {
	Version   int64
	LoadedAt  time.Time
	Overrides []Override
}

// OverrideRegistry watches an overrides file and applies risk-reducing
// adjustments on top of the base config. A missing path means a no-op
// registry: Apply returns the base unchanged.
type OverrideRegistry struct {
	base Config
	path string
	v    *viper.Viper

	mu       sync.RWMutex
	snapshot OverrideSnapshot
}

// NewOverrideRegistry reads the override file and watches it for changes.
// An empty path disables the registry without error.
func NewOverrideRegistry(base Config, path string) (*OverrideRegistry, error) {
	r := &OverrideRegistry{base: base.WithDefaults(), path: strings.TrimSpace(path)}
	if r.path == "" {
		return r, nil
	}
	v := viper.New()
	v.SetConfigFile(r.path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read risk override file failed: %w", err)
	}
	r.v = v
	if err := r.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := r.reload(); err != nil {
			logger.Errorf("risk override reload failed: %v", err)
		}
	})
	v.WatchConfig()
	return r, nil
}

// Snapshot returns the current override set.
func (r *OverrideRegistry) Snapshot() OverrideSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snap := r.snapshot
	snap.Overrides = append([]Override(nil), r.snapshot.Overrides...)
	return snap
}

// Apply layers all live overrides onto the base config. Each override only
// tightens; expired entries are skipped.
func (r *OverrideRegistry) Apply(now time.Time) Config {
	cfg := r.base
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, o := range r.snapshot.Overrides {
		if o.Expired(now) {
			continue
		}
		if o.TargetVol1d > 0 && o.TargetVol1d < cfg.TargetVol1d {
			cfg.TargetVol1d = o.TargetVol1d
		}
		if o.MaxPositions > 0 && o.MaxPositions < cfg.MaxPositions {
			cfg.MaxPositions = o.MaxPositions
		}
		if o.WeightPerPositionMax > 0 && o.WeightPerPositionMax < cfg.WeightPerPositionMax {
			cfg.WeightPerPositionMax = o.WeightPerPositionMax
		}
		if o.CashBufferMin > cfg.CashBufferMin {
			cfg.CashBufferMin = o.CashBufferMin
		}
		if o.DailyDrawdownPausePct > 0 && o.DailyDrawdownPausePct < cfg.DailyDrawdownPausePct {
			cfg.DailyDrawdownPausePct = o.DailyDrawdownPausePct
		}
		if o.MaxHoldingHours > 0 && o.MaxHoldingHours < cfg.MaxHoldingHours {
			cfg.MaxHoldingHours = o.MaxHoldingHours
		}
	}
	return cfg
}

func (r *OverrideRegistry) reload() error {
	var file overrideFile
	if err := r.v.ReadInConfig(); err != nil {
		return fmt.Errorf("read risk override file failed: %w", err)
	}
	if err := r.v.Unmarshal(&file, viper.DecodeHook(mapstructure.StringToTimeHookFunc(time.RFC3339))); err != nil {
		return fmt.Errorf("parse risk override file failed: %w", err)
	}
	for i, o := range file.Overrides {
		if err := validateOverride(r.base, o); err != nil {
			return fmt.Errorf("override %d rejected: %w", i, err)
		}
	}
	r.mu.Lock()
	r.snapshot = OverrideSnapshot{
		Version:   r.snapshot.Version + 1,
		LoadedAt:  time.Now(),
		Overrides: file.Overrides,
	}
	r.mu.Unlock()
	logger.Infof("Risk override registry loaded %d entries from %s", len(file.Overrides), filepath.Base(r.path))
	return nil
}

// validateOverride enforces the tighten-only contract: an override may lower
// limits or raise the cash buffer, never the reverse.
func validateOverride(base Config, o Override) error {
	if o.ExpiresAt.IsZero() {
		return fmt.Errorf("expires_at is required")
	}
	if o.TargetVol1d > base.TargetVol1d {
		return fmt.Errorf("target_vol_1d %.4f exceeds base %.4f", o.TargetVol1d, base.TargetVol1d)
	}
	if o.MaxPositions > base.MaxPositions {
		return fmt.Errorf("max_positions %d exceeds base %d", o.MaxPositions, base.MaxPositions)
	}
	if o.WeightPerPositionMax > base.WeightPerPositionMax {
		return fmt.Errorf("weight_per_position_max %.4f exceeds base %.4f", o.WeightPerPositionMax, base.WeightPerPositionMax)
	}
	if o.CashBufferMin != 0 && o.CashBufferMin < base.CashBufferMin {
		return fmt.Errorf("cash_buffer_min %.4f below base %.4f", o.CashBufferMin, base.CashBufferMin)
	}
	if o.DailyDrawdownPausePct > base.DailyDrawdownPausePct {
		return fmt.Errorf("daily_drawdown_pause_pct %.2f exceeds base %.2f", o.DailyDrawdownPausePct, base.DailyDrawdownPausePct)
	}
	if o.MaxHoldingHours > base.MaxHoldingHours {
		return fmt.Errorf("max_holding_hours %.1f exceeds base %.1f", o.MaxHoldingHours, base.MaxHoldingHours)
	}
	return nil
}
