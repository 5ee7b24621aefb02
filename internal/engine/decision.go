package engine

import (
	"context"
	"time"

	"tidemark/internal/news"
	"tidemark/internal/signal"
)

// Action is the per-symbol, per-slot verdict handed to execution.
type Action string

const (
	ActionEnter  Action = "ENTER"
	ActionHold   Action = "HOLD"
	ActionReduce Action = "REDUCE"
	ActionExit   Action = "EXIT"
)

// Gate names, in evaluation order. The first failing gate is recorded on the
// decision; exit authorities are reported separately and leave RejectedBy
// empty.
const (
	GateData           = "data"
	GateBootstrap      = "bootstrap"
	GateMicrostructure = "microstructure"
	GateRegime         = "regime"
	GateNews           = "news"
	GateRisk           = "risk"
)

// Exit authorities. They override entry gating and are evaluated before it.
const (
	AuthorityRegime     = "regime"
	AuthorityNewsHard   = "news_hard"
	AuthorityHoldingCap = "holding_cap"
)

// Decision is the single output record per (symbol, slot). The snapshot
// fields carry the upstream component states for audit; nil means the chain
// short-circuited before that component ran.
type Decision struct {
	TraceID       string    `json:"trace_id"`
	SlotID        int64     `json:"slot_id"`
	Symbol        string    `json:"symbol"`
	Action        Action    `json:"action"`
	TargetWeight  float64   `json:"target_weight"`
	RejectedBy    string    `json:"rejected_by,omitempty"`
	ExitAuthority string    `json:"exit_authority,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	Price         float64   `json:"price,omitempty"`
	CreatedAt     time.Time `json:"created_at"`

	Momentum *signal.MomentumState        `json:"momentum,omitempty"`
	Micro    *signal.MicrostructureState  `json:"microstructure,omitempty"`
	Regime   *signal.RegimeState          `json:"regime,omitempty"`
	Pause    *news.PauseState             `json:"pause,omitempty"`
}

// Sink receives finalized decisions for durable logging.
type Sink interface {
	AppendDecision(ctx context.Context, d Decision) error
}
