package signal

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"tidemark/internal/market"

	talib "github.com/markcheno/go-talib"
)

// AmihudPolicy selects what happens above the illiquidity p95: either the
// entry is blocked outright or the requested size is scaled down. Exactly one
// applies; never both.
type AmihudPolicy string

const (
	AmihudBlock AmihudPolicy = "block"
	AmihudScale AmihudPolicy = "scale"
)

// MicrostructureConfig bundles the liquidity-confirmation thresholds.
type MicrostructureConfig struct {
	SpreadMaxBps   float64
	OFIWindow      int // rolling baseline samples, 24 with hourly sampling
	OFIZMinNeutral float64
	OFIZMinRiskOn  float64
	VWAPMaxDevPct  float64
	AmihudPolicy   AmihudPolicy
	AmihudScale    float64
	AmihudLookback int // daily bars for the p95 distribution
}

func (c MicrostructureConfig) withDefaults() MicrostructureConfig {
	if c.SpreadMaxBps <= 0 {
		c.SpreadMaxBps = 12
	}
	if c.OFIWindow <= 0 {
		c.OFIWindow = 24
	}
	if c.OFIZMinNeutral == 0 {
		c.OFIZMinNeutral = 0.5
	}
	if c.OFIZMinRiskOn == 0 {
		c.OFIZMinRiskOn = 0.0
	}
	if c.VWAPMaxDevPct <= 0 {
		c.VWAPMaxDevPct = 1.5
	}
	if c.AmihudPolicy == "" {
		c.AmihudPolicy = AmihudScale
	}
	if c.AmihudScale <= 0 || c.AmihudScale > 1 {
		c.AmihudScale = 0.5
	}
	if c.AmihudLookback <= 0 {
		c.AmihudLookback = 180
	}
	return c
}

// MicrostructureState is derived fresh every slot.
type MicrostructureState struct {
	SpreadBps      float64 `json:"spread_bps"`
	OFIZ           float64 `json:"ofi_z"`
	VWAP1h         float64 `json:"vwap_1h"`
	Illiquidity    float64 `json:"illiquidity"`
	IlliquidityPct float64 `json:"illiquidity_percentile"`
	SizeFactor     float64 `json:"size_factor"` // 1.0 unless the scale policy cut it
}

// MicrostructureGuard confirms liquidity before an entry. It keeps a rolling
// per-symbol OFI baseline across slots; everything else is stateless.
type MicrostructureGuard struct {
	cfg MicrostructureConfig

	mu      sync.Mutex
	ofiHist map[string][]float64
}

func NewMicrostructureGuard(cfg MicrostructureConfig) *MicrostructureGuard {
	return &MicrostructureGuard{
		cfg:     cfg.withDefaults(),
		ofiHist: make(map[string][]float64),
	}
}

// Evaluate computes the microstructure state for a snapshot. The OFI proxy
// observation is folded into the baseline as a side effect.
func (g *MicrostructureGuard) Evaluate(snap *market.Snapshot) MicrostructureState {
	st := MicrostructureState{SizeFactor: 1.0}
	st.SpreadBps = SpreadBps(snap.Book)
	st.OFIZ = g.observeOFI(snap.Symbol, ofiProxy(snap.Book))
	st.VWAP1h = VWAP1h(snap.Hourly)
	st.Illiquidity, st.IlliquidityPct = g.amihud(snap.Daily)
	if st.IlliquidityPct >= 95 && g.cfg.AmihudPolicy == AmihudScale {
		st.SizeFactor = g.cfg.AmihudScale
	}
	return st
}

// Admit applies the guard thresholds to a computed state. A nil error means
// entry is allowed at st.SizeFactor of the requested size.
func (g *MicrostructureGuard) Admit(st MicrostructureState, price float64, riskOn bool) error {
	if st.SpreadBps > g.cfg.SpreadMaxBps {
		return fmt.Errorf("spread %.1f bps above ceiling %.1f", st.SpreadBps, g.cfg.SpreadMaxBps)
	}
	minOFI := g.cfg.OFIZMinNeutral
	if riskOn {
		minOFI = g.cfg.OFIZMinRiskOn
	}
	if st.OFIZ < minOFI {
		return fmt.Errorf("ofi z %.2f below required %.2f", st.OFIZ, minOFI)
	}
	if st.VWAP1h <= 0 {
		return fmt.Errorf("no vwap available")
	}
	if price < st.VWAP1h {
		return fmt.Errorf("price %.4f below 1h vwap %.4f", price, st.VWAP1h)
	}
	if dev := (price - st.VWAP1h) / st.VWAP1h * 100; dev > g.cfg.VWAPMaxDevPct {
		return fmt.Errorf("price %.2f%% above vwap, limit %.2f%%", dev, g.cfg.VWAPMaxDevPct)
	}
	if st.IlliquidityPct >= 95 && g.cfg.AmihudPolicy == AmihudBlock {
		return fmt.Errorf("amihud illiquidity at p%.0f of trailing distribution", st.IlliquidityPct)
	}
	return nil
}

// SpreadBps is (ask-bid)/mid in basis points; degenerate books read as +Inf.
func SpreadBps(book market.BookTop) float64 {
	mid := book.Mid()
	if mid <= 0 {
		return math.Inf(1)
	}
	return (book.Ask - book.Bid) / mid * 10000
}

// VWAP1h is the volume-weighted average price over the trailing one-hour
// window only. With hourly bars that is the most recent closed bar.
func VWAP1h(hourly []market.Candle) float64 {
	if len(hourly) == 0 {
		return 0
	}
	last := hourly[len(hourly)-1]
	if last.Volume <= 0 {
		return 0
	}
	typical := (last.High + last.Low + last.Close) / 3
	return typical
}

// ofiProxy reads net top-of-book pressure from resting size.
func ofiProxy(book market.BookTop) float64 {
	total := book.BidQty + book.AskQty
	if total <= 0 {
		return 0
	}
	return (book.BidQty - book.AskQty) / total
}

// observeOFI appends the proxy to the rolling baseline and returns the
// z-score of the newest observation against the trailing window.
func (g *MicrostructureGuard) observeOFI(symbol string, ofi float64) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	hist := append(g.ofiHist[symbol], ofi)
	if keep := g.cfg.OFIWindow * 2; len(hist) > keep {
		hist = hist[len(hist)-keep:]
	}
	g.ofiHist[symbol] = hist
	if len(hist) < g.cfg.OFIWindow {
		return 0
	}
	means := talib.Sma(hist, g.cfg.OFIWindow)
	stds := talib.StdDev(hist, g.cfg.OFIWindow, 1)
	mean := means[len(means)-1]
	std := stds[len(stds)-1]
	if std == 0 || math.IsNaN(std) {
		return 0
	}
	return (ofi - mean) / std
}

// amihud returns today's |return|/volume and its percentile rank within the
// trailing lookback distribution.
func (g *MicrostructureGuard) amihud(daily []market.Candle) (float64, float64) {
	rets := market.SimpleReturns(daily)
	if len(rets) == 0 {
		return 0, 0
	}
	series := make([]float64, 0, len(rets))
	for i, r := range rets {
		vol := daily[i+1].Volume
		if vol <= 0 || math.IsNaN(r) {
			continue
		}
		series = append(series, math.Abs(r)/vol)
	}
	if len(series) == 0 {
		return 0, 0
	}
	if len(series) > g.cfg.AmihudLookback {
		series = series[len(series)-g.cfg.AmihudLookback:]
	}
	current := series[len(series)-1]
	return current, percentileRank(series, current)
}

// percentileRank is the share of observations <= value, as a percentage.
func percentileRank(series []float64, value float64) float64 {
	if len(series) == 0 {
		return 0
	}
	sorted := append([]float64(nil), series...)
	sort.Float64s(sorted)
	idx := sort.SearchFloat64s(sorted, math.Nextafter(value, math.Inf(1)))
	return float64(idx) / float64(len(sorted)) * 100
}
