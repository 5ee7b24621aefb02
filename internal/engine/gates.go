package engine

import (
	"tidemark/internal/news"
	"tidemark/internal/risk"
	"tidemark/internal/signal"

	"github.com/google/uuid"
)

type symbolResult struct {
	decision Decision
	// candidate is non-nil when every entry gate passed; the final action is
	// settled at the normalization barrier.
	candidate *risk.Candidate
}

// evaluateSymbol runs exit authorities first, then the short-circuiting entry
// chain. It never performs I/O.
func (e *Engine) evaluateSymbol(in SlotInput, symbol string, regime signal.RegimeState,
	pause news.PauseState, sizer *risk.Sizer) symbolResult {

	d := Decision{
		TraceID:   uuid.NewString(),
		SlotID:    in.SlotID,
		Symbol:    symbol,
		Action:    ActionHold,
		CreatedAt: in.Now,
		Regime:    &regime,
		Pause:     &pause,
	}
	snap := in.Snapshots[symbol]
	if snap != nil {
		d.Price = snap.LastClose()
	}

	pos, hasPos := e.account.Position(symbol)

	// Exit authorities override entry gating and are checked irrespective of
	// it. RejectedBy stays empty on a forced exit.
	if hasPos {
		switch {
		case !regime.EntriesAllowed:
			return exitResult(d, AuthorityRegime, "bloc regime force-close")
		case pause.Kind == news.PauseHard:
			return exitResult(d, AuthorityNewsHard, pause.Reason)
		case e.account.HoldingExpired(symbol, in.Now):
			return exitResult(d, AuthorityHoldingCap, "max holding period reached")
		}
	}

	// A SOFT pause halves the risk weight of an existing position once.
	if hasPos && pause.Kind == news.PauseSoft {
		half := pos.Weight * e.cfg.SoftSizeFactor
		if half < pos.Weight {
			d.Action = ActionReduce
			d.TargetWeight = half
			d.Reason = pause.Reason
			return symbolResult{decision: d}
		}
	}

	fail := func(gate, reason string) symbolResult {
		d.RejectedBy = gate
		d.Reason = reason
		return symbolResult{decision: d}
	}

	if snap == nil {
		return fail(GateData, "no market snapshot")
	}
	if err := snap.Validate(); err != nil {
		return fail(GateData, err.Error())
	}
	if err := snap.CheckFreshness(in.Now, e.cfg.MaxSnapshotAge); err != nil {
		return fail(GateData, err.Error())
	}

	mom, err := e.momentum.Evaluate(snap.Daily)
	if err != nil {
		return fail(GateBootstrap, err.Error())
	}
	d.Momentum = &mom
	if !mom.PassesGate(e.momentum.MinPWin()) {
		return fail(GateBootstrap, "p_win below threshold")
	}

	micro := e.micro.Evaluate(snap)
	d.Micro = &micro
	if err := e.micro.Admit(micro, d.Price, regime.RiskOn()); err != nil {
		return fail(GateMicrostructure, err.Error())
	}

	if !regime.EntriesAllowed {
		return fail(GateRegime, "bloc regime active")
	}

	sizeFactor := micro.SizeFactor
	switch pause.Kind {
	case news.PauseHard:
		return fail(GateNews, pause.Reason)
	case news.PauseSoft:
		sizeFactor *= e.cfg.SoftSizeFactor
	}

	if e.account.DrawdownPaused(in.Now) {
		return fail(GateRisk, "daily drawdown pause active")
	}
	base := sizer.BaseWeight(sizer.Vol1d(snap.Daily))
	if base <= 0 {
		return fail(GateRisk, "volatility target yields zero weight")
	}

	return symbolResult{
		decision: d,
		candidate: &risk.Candidate{
			Symbol:     symbol,
			Weight:     base,
			Score:      mom.Score,
			SizeFactor: sizeFactor,
		},
	}
}

func exitResult(d Decision, authority, reason string) symbolResult {
	d.Action = ActionExit
	d.TargetWeight = 0
	d.ExitAuthority = authority
	d.Reason = reason
	return symbolResult{decision: d}
}
