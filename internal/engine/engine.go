package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"tidemark/internal/logger"
	"tidemark/internal/market"
	"tidemark/internal/news"
	"tidemark/internal/risk"
	"tidemark/internal/signal"

	"golang.org/x/sync/errgroup"
)

// Config tunes the aggregation step itself; component thresholds live in the
// respective component configs.
type Config struct {
	MaxSnapshotAge time.Duration // freshness bound for market snapshots
	SoftSizeFactor float64       // weight multiplier under a SOFT pause
}

func (c Config) withDefaults() Config {
	if c.MaxSnapshotAge <= 0 {
		c.MaxSnapshotAge = 5 * time.Minute
	}
	if c.SoftSizeFactor <= 0 {
		c.SoftSizeFactor = 0.5
	}
	return c
}

// SlotInput is the fully materialized input for one decision run. The engine
// performs no market or news I/O itself; collaborators fill this in before
// the slot fires.
type SlotInput struct {
	SlotID    int64
	Now       time.Time
	BTCDaily  []market.Candle
	Snapshots map[string]*market.Snapshot
	Shocks    map[string]news.ShockInput
}

// Engine runs the gate chain per symbol and the cross-symbol normalization
// barrier, emitting exactly one Decision per (symbol, slot).
type Engine struct {
	cfg       Config
	momentum  *signal.Momentum
	micro     *signal.MicrostructureGuard
	regime    *signal.RegimeDetector
	shock     *news.ShockEngine
	overrides *risk.OverrideRegistry
	account   *risk.Account
	sink      Sink
}

func New(cfg Config, momentum *signal.Momentum, micro *signal.MicrostructureGuard,
	regime *signal.RegimeDetector, shock *news.ShockEngine,
	overrides *risk.OverrideRegistry, account *risk.Account, sink Sink) *Engine {
	return &Engine{
		cfg:       cfg.withDefaults(),
		momentum:  momentum,
		micro:     micro,
		regime:    regime,
		shock:     shock,
		overrides: overrides,
		account:   account,
		sink:      sink,
	}
}

// Account exposes the paper account for status reporting.
func (e *Engine) Account() *risk.Account { return e.account }

// EvaluateSlot runs one full decision cycle. Symbols are processed in
// lexicographic order for reproducible logs; the per-symbol gate chains run
// in parallel, then the weight normalization barrier finalizes every ENTER
// in one atomic step.
func (e *Engine) EvaluateSlot(ctx context.Context, in SlotInput) ([]Decision, error) {
	symbols := make([]string, 0, len(in.Snapshots))
	for sym := range in.Snapshots {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	regimeState := e.regime.Observe(in.BTCDaily, dailyBySymbol(in.Snapshots))

	// Pause transitions persist synchronously, so they run sequentially
	// before the parallel stage; a slot abandoned here leaves no partial
	// decision behind.
	pauses := make(map[string]news.PauseState, len(symbols))
	for _, sym := range symbols {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		shockIn, ok := in.Shocks[sym]
		if !ok {
			pauses[sym] = e.shock.ActivePause(sym, in.Now)
			continue
		}
		res, err := e.shock.Evaluate(ctx, sym, shockIn)
		if err != nil {
			logger.Errorf("news shock evaluation %s: %v", sym, err)
		}
		pauses[sym] = res.State.At(in.Now)
	}

	riskCfg := e.overrides.Apply(in.Now)
	sizer := risk.NewSizer(riskCfg)

	results := make([]symbolResult, len(symbols))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for i, sym := range symbols {
		i, sym := i, sym
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res := e.evaluateSymbol(in, sym, regimeState, pauses[sym], sizer)
			mu.Lock()
			results[i] = res
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	decisions := e.normalize(in, sizer, results)
	e.apply(in.Now, decisions)
	for _, d := range decisions {
		if e.sink == nil {
			continue
		}
		if err := e.sink.AppendDecision(ctx, d); err != nil {
			logger.Errorf("decision log append %s slot %d: %v", d.Symbol, d.SlotID, err)
		}
	}
	return decisions, nil
}

// normalize is the single cross-symbol synchronization point: candidates are
// ranked and scaled together, then every decision is finalized at once.
func (e *Engine) normalize(in SlotInput, sizer *risk.Sizer, results []symbolResult) []Decision {
	var candidates []risk.Candidate
	for _, r := range results {
		if r.candidate != nil {
			candidates = append(candidates, *r.candidate)
		}
	}
	kept := make(map[string]float64, len(candidates))
	for _, c := range sizer.Normalize(candidates) {
		kept[c.Symbol] = c.Weight
	}

	decisions := make([]Decision, 0, len(results))
	for _, r := range results {
		d := r.decision
		if r.candidate != nil {
			w, ok := kept[d.Symbol]
			switch {
			case !ok:
				d.Action = ActionHold
				d.RejectedBy = GateRisk
				d.Reason = "ranked below max_positions"
			default:
				pos, hasPos := e.account.Position(d.Symbol)
				switch {
				case !hasPos:
					d.Action = ActionEnter
					d.TargetWeight = w
				case w < pos.Weight:
					d.Action = ActionReduce
					d.TargetWeight = w
				default:
					d.Action = ActionHold
					d.TargetWeight = pos.Weight
				}
			}
		}
		decisions = append(decisions, d)
	}
	return decisions
}

// apply books the finalized decisions into the paper account.
func (e *Engine) apply(now time.Time, decisions []Decision) {
	for _, d := range decisions {
		var err error
		switch d.Action {
		case ActionExit:
			err = e.account.Close(d.Symbol, d.Price, now)
		case ActionEnter:
			err = e.account.Open(d.Symbol, d.TargetWeight, d.Price, now)
		case ActionReduce:
			err = e.account.Reduce(d.Symbol, d.TargetWeight, d.Price, now)
		}
		if err != nil {
			logger.Warnf("account update %s %s: %v", d.Action, d.Symbol, err)
		}
	}
}

func dailyBySymbol(snaps map[string]*market.Snapshot) map[string][]market.Candle {
	out := make(map[string][]market.Candle, len(snaps))
	for sym, snap := range snaps {
		if snap != nil {
			out[sym] = snap.Daily
		}
	}
	return out
}
