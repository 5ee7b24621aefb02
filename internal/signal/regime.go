package signal

import (
	"math"
	"sync"

	"tidemark/internal/market"

	talib "github.com/markcheno/go-talib"
)

// RegimeConfig sets the bloc-regime detection windows and thresholds.
type RegimeConfig struct {
	ShortWindow   int // days, correlation + volatility
	LongWindow    int
	CorrThreshold float64
	ClearSlots    int // consecutive non-bloc slots required to re-enable entries
}

func (c RegimeConfig) withDefaults() RegimeConfig {
	if c.ShortWindow <= 0 {
		c.ShortWindow = 7
	}
	if c.LongWindow <= 0 {
		c.LongWindow = 30
	}
	if c.CorrThreshold <= 0 {
		c.CorrThreshold = 0.75
	}
	if c.ClearSlots <= 0 {
		c.ClearSlots = 3
	}
	return c
}

// RegimeState captures one slot's correlation/volatility reading.
// Only the hysteresis counter inside the detector survives across slots.
type RegimeState struct {
	Corr7  float64 `json:"corr_7d"`
	Corr30 float64 `json:"corr_30d"`
	Vol7   float64 `json:"vol_7d"`
	Vol30  float64 `json:"vol_30d"`
	IsBloc bool    `json:"is_bloc"`
	// EntriesAllowed reflects the hysteresis: false while bloc and until
	// ClearSlots consecutive non-bloc observations have passed.
	EntriesAllowed bool `json:"entries_allowed"`
}

// RiskOn marks the benign side of the regime: entries allowed and short-term
// correlation comfortably below the bloc threshold. The microstructure guard
// relaxes its OFI floor in this state.
func (r RegimeState) RiskOn() bool {
	return r.EntriesAllowed && r.Corr7 < 0.5
}

// RegimeDetector classifies the BTC/alt correlation regime with hysteresis.
// The hysteresis counter lives only in memory; a fresh detector starts
// latched, so after a restart entries resume only once ClearSlots clean
// observations have passed.
type RegimeDetector struct {
	cfg RegimeConfig

	mu          sync.Mutex
	clearStreak int
	blocLatched bool
}

func NewRegimeDetector(cfg RegimeConfig) *RegimeDetector {
	return &RegimeDetector{cfg: cfg.withDefaults(), blocLatched: true}
}

// Observe evaluates the regime from BTC daily bars and the alt set, updates
// the hysteresis counter, and returns the resulting state. Call exactly once
// per slot.
func (d *RegimeDetector) Observe(btcDaily []market.Candle, altDaily map[string][]market.Candle) RegimeState {
	st := d.measure(btcDaily, altDaily)

	d.mu.Lock()
	defer d.mu.Unlock()
	if st.IsBloc {
		d.blocLatched = true
		d.clearStreak = 0
	} else if d.blocLatched {
		d.clearStreak++
		if d.clearStreak >= d.cfg.ClearSlots {
			d.blocLatched = false
			d.clearStreak = 0
		}
	}
	st.EntriesAllowed = !d.blocLatched
	return st
}

func (d *RegimeDetector) measure(btcDaily []market.Candle, altDaily map[string][]market.Candle) RegimeState {
	st := RegimeState{}
	btcRets := cleanSeries(market.LogReturns(btcDaily))
	if len(btcRets) < d.cfg.LongWindow {
		return st
	}
	var sum7, sum30 float64
	n := 0
	for _, candles := range altDaily {
		altRets := cleanSeries(market.LogReturns(candles))
		c7 := tailCorrelation(btcRets, altRets, d.cfg.ShortWindow)
		c30 := tailCorrelation(btcRets, altRets, d.cfg.LongWindow)
		if math.IsNaN(c7) || math.IsNaN(c30) {
			continue
		}
		sum7 += c7
		sum30 += c30
		n++
	}
	if n > 0 {
		st.Corr7 = sum7 / float64(n)
		st.Corr30 = sum30 / float64(n)
	}
	st.Vol7 = tailVolatility(btcRets, d.cfg.ShortWindow)
	st.Vol30 = tailVolatility(btcRets, d.cfg.LongWindow)
	st.IsBloc = st.Corr7 > d.cfg.CorrThreshold && st.Vol7 > st.Vol30
	return st
}

// tailCorrelation is the Pearson correlation over the trailing window of two
// aligned return series.
func tailCorrelation(a, b []float64, window int) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n < window {
		return math.NaN()
	}
	at := a[len(a)-window:]
	bt := b[len(b)-window:]
	corr := talib.Correl(at, bt, window)
	return corr[len(corr)-1]
}

// tailVolatility is the sample stdev of the trailing window, annualized.
func tailVolatility(rets []float64, window int) float64 {
	if len(rets) < window {
		return 0
	}
	stds := talib.StdDev(rets[len(rets)-window:], window, 1)
	std := stds[len(stds)-1]
	if math.IsNaN(std) {
		return 0
	}
	return std * math.Sqrt(252)
}

func cleanSeries(series []float64) []float64 {
	out := make([]float64, 0, len(series))
	for _, v := range series {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}
