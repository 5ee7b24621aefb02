package news

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"tidemark/internal/logger"
	"tidemark/internal/market"
)

// ErrPersistenceWrite wraps a pause-store write failure. A transition that
// cannot be made durable is not effective.
var ErrPersistenceWrite = errors.New("pause persistence write failed")

// PauseStore is the durable collaborator contract for pause states.
// Writes must be crash-safe: fully applied or invisible to readers.
type PauseStore interface {
	LoadPauseStates(ctx context.Context) (map[string]PauseState, error)
	SavePauseState(ctx context.Context, symbol string, st PauseState) error
}

// ReadFailurePolicy decides what a failed startup load means.
type ReadFailurePolicy string

const (
	// ReadFailOpen treats unreadable state as no pause.
	ReadFailOpen ReadFailurePolicy = "fail_open"
	// ReadFailClosed assumes a HARD pause until state can be confirmed.
	ReadFailClosed ReadFailurePolicy = "fail_closed"
)

// ShockConfig carries the NS_v3 weights and pause rules.
type ShockConfig struct {
	WeightSentZ       float64
	WeightSentLLM     float64
	WeightSentComb    float64
	WeightPriceShock  float64
	EWMASpan          int
	HardDuration      time.Duration
	HardMinConfidence float64
	HardMaxSentLLM    float64
	CriticalCategories []string
	SoftDuration      time.Duration
	SoftThreshold     float64
	WriteRetries      int
	WriteBackoff      time.Duration
	ReadFailurePolicy ReadFailurePolicy
}

func (c ShockConfig) withDefaults() ShockConfig {
	if c.WeightSentZ == 0 {
		c.WeightSentZ = 0.7
	}
	if c.WeightSentLLM == 0 {
		c.WeightSentLLM = 0.3
	}
	if c.WeightSentComb == 0 {
		c.WeightSentComb = 0.6
	}
	if c.WeightPriceShock == 0 {
		c.WeightPriceShock = 0.4
	}
	if c.EWMASpan <= 0 {
		c.EWMASpan = 24
	}
	if c.HardDuration <= 0 {
		c.HardDuration = 6 * time.Hour
	}
	if c.HardMinConfidence == 0 {
		c.HardMinConfidence = 0.65
	}
	if c.HardMaxSentLLM == 0 {
		c.HardMaxSentLLM = -0.5
	}
	if len(c.CriticalCategories) == 0 {
		c.CriticalCategories = []string{"regulation", "hack", "bankruptcy", "delisting"}
	}
	if c.SoftDuration <= 0 {
		c.SoftDuration = 3 * time.Hour
	}
	if c.SoftThreshold == 0 {
		c.SoftThreshold = -1.2
	}
	if c.WriteRetries <= 0 {
		c.WriteRetries = 3
	}
	if c.WriteBackoff <= 0 {
		c.WriteBackoff = 200 * time.Millisecond
	}
	if c.ReadFailurePolicy == "" {
		c.ReadFailurePolicy = ReadFailOpen
	}
	return c
}

// ShockInput is the per-symbol material for one slot evaluation.
type ShockInput struct {
	SentZ      float64
	Classifier *ClassifierResult // nil when the classifier is unavailable
	Hourly     []market.Candle
	Now        time.Time
}

// ShockResult exposes the computed components plus the effective pause state.
type ShockResult struct {
	SentLLM     float64    `json:"sent_llm"`
	SentComb    float64    `json:"sent_comb"`
	PriceShockZ float64    `json:"price_shock_z"`
	NSv3        float64    `json:"ns_v3"`
	Triggered   PauseKind  `json:"triggered"`
	State       PauseState `json:"state"`
}

// ShockEngine evaluates the NS_v3 score and drives the persisted pause state
// machine. Every transition is written through the store before it is allowed
// to influence a decision.
type ShockEngine struct {
	cfg   ShockConfig
	store PauseStore
	sleep func(time.Duration)

	mu     sync.Mutex
	states map[string]PauseState
}

// NewShockEngine loads persisted, non-expired pauses. A load failure is
// handled per the configured policy instead of crashing.
func NewShockEngine(ctx context.Context, cfg ShockConfig, store PauseStore, symbols []string) (*ShockEngine, error) {
	e := &ShockEngine{
		cfg:    cfg.withDefaults(),
		store:  store,
		sleep:  time.Sleep,
		states: make(map[string]PauseState),
	}
	loaded, err := store.LoadPauseStates(ctx)
	if err != nil {
		switch e.cfg.ReadFailurePolicy {
		case ReadFailClosed:
			logger.Errorf("pause state load failed, assuming HARD pause for all symbols: %v", err)
			expires := time.Now().UTC().Add(e.cfg.HardDuration)
			for _, sym := range symbols {
				e.states[sym] = PauseState{Kind: PauseHard, ExpiresAt: expires, Reason: "pause state unreadable at startup"}
			}
		default:
			logger.Warnf("pause state load failed, starting with no pauses: %v", err)
		}
		return e, nil
	}
	now := time.Now().UTC()
	for sym, st := range loaded {
		if st.Active(now) {
			e.states[sym] = st
		}
	}
	return e, nil
}

// Evaluate computes the shock score for one symbol and applies any resulting
// pause transition. On persistence failure the previous state stays in force
// and the error is returned; the engine never advertises an unwritten pause.
func (e *ShockEngine) Evaluate(ctx context.Context, symbol string, in ShockInput) (ShockResult, error) {
	res := ShockResult{}
	res.SentLLM = in.Classifier.SentLLM()
	res.SentComb = e.cfg.WeightSentZ*in.SentZ + e.cfg.WeightSentLLM*res.SentLLM
	res.PriceShockZ = priceShockZ(in.Hourly, e.cfg.EWMASpan)
	res.NSv3 = e.cfg.WeightSentComb*res.SentComb - e.cfg.WeightPriceShock*res.PriceShockZ

	trig := e.trigger(in.Classifier, res)
	if trig != nil {
		res.Triggered = trig.Kind
	}

	e.mu.Lock()
	cur := e.states[symbol]
	e.mu.Unlock()

	next := Transition(cur, trig, in.Now)
	if !equalState(next, cur.At(in.Now)) {
		if err := e.persist(ctx, symbol, next); err != nil {
			res.State = cur.At(in.Now)
			return res, err
		}
		logger.Infof("news pause %s: %s -> %s until %s (%s)",
			symbol, cur.At(in.Now).Kind, next.Kind, next.ExpiresAt.Format(time.RFC3339), next.Reason)
	}
	e.mu.Lock()
	e.states[symbol] = next
	e.mu.Unlock()
	res.State = next.At(in.Now)
	return res, nil
}

func (e *ShockEngine) trigger(cls *ClassifierResult, res ShockResult) *PauseTrigger {
	if cls != nil && e.isCritical(cls.Category) &&
		cls.Confidence >= e.cfg.HardMinConfidence && res.SentLLM <= e.cfg.HardMaxSentLLM {
		return &PauseTrigger{
			Kind:     PauseHard,
			Duration: e.cfg.HardDuration,
			Score:    res.NSv3,
			Reason:   fmt.Sprintf("%s news (conf=%.2f sent_llm=%.2f)", cls.Category, cls.Confidence, res.SentLLM),
		}
	}
	if res.NSv3 <= e.cfg.SoftThreshold {
		return &PauseTrigger{
			Kind:     PauseSoft,
			Duration: e.cfg.SoftDuration,
			Score:    res.NSv3,
			Reason:   fmt.Sprintf("ns_v3=%.2f", res.NSv3),
		}
	}
	return nil
}

func (e *ShockEngine) isCritical(category string) bool {
	for _, c := range e.cfg.CriticalCategories {
		if c == category {
			return true
		}
	}
	return false
}

func (e *ShockEngine) persist(ctx context.Context, symbol string, st PauseState) error {
	var lastErr error
	backoff := e.cfg.WriteBackoff
	for attempt := 0; attempt < e.cfg.WriteRetries; attempt++ {
		if attempt > 0 {
			e.sleep(backoff)
			backoff *= 2
		}
		if lastErr = e.store.SavePauseState(ctx, symbol, st); lastErr == nil {
			return nil
		}
		logger.Warnf("pause write %s attempt %d failed: %v", symbol, attempt+1, lastErr)
	}
	return fmt.Errorf("%w: %s: %v", ErrPersistenceWrite, symbol, lastErr)
}

// ActivePause returns the effective pause for a symbol at now.
func (e *ShockEngine) ActivePause(symbol string, now time.Time) PauseState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.states[symbol].At(now)
}

// ActivePauses snapshots every in-force pause, keyed by symbol.
func (e *ShockEngine) ActivePauses(now time.Time) map[string]PauseState {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]PauseState)
	for sym, st := range e.states {
		if eff := st.At(now); eff.Kind != PauseNone {
			out[sym] = eff
		}
	}
	return out
}

// priceShockZ is ret_1h divided by the EWMA volatility of hourly returns.
func priceShockZ(hourly []market.Candle, span int) float64 {
	rets := market.SimpleReturns(hourly)
	if len(rets) == 0 {
		return 0
	}
	last := rets[len(rets)-1]
	if math.IsNaN(last) {
		return 0
	}
	vol := ewmaStd(rets, span)
	if vol == 0 || math.IsNaN(vol) {
		return 0
	}
	return last / vol
}

// ewmaStd computes the exponentially weighted standard deviation with the
// pandas span convention (alpha = 2/(span+1)). Falls back to the plain sample
// stdev when the series is shorter than the span.
func ewmaStd(series []float64, span int) float64 {
	clean := series[:0:0]
	for _, v := range series {
		if !math.IsNaN(v) {
			clean = append(clean, v)
		}
	}
	if len(clean) < 2 {
		return 0
	}
	if len(clean) < span {
		return sampleStd(clean)
	}
	alpha := 2.0 / (float64(span) + 1.0)
	mean := clean[0]
	variance := 0.0
	for _, v := range clean[1:] {
		delta := v - mean
		mean += alpha * delta
		variance = (1 - alpha) * (variance + alpha*delta*delta)
	}
	return math.Sqrt(variance)
}

func sampleStd(series []float64) float64 {
	n := len(series)
	if n < 2 {
		return 0
	}
	var sum float64
	for _, v := range series {
		sum += v
	}
	mean := sum / float64(n)
	var ss float64
	for _, v := range series {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(n-1))
}
