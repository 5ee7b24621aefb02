package app

import (
	"context"
	"fmt"
	"time"

	tmcfg "tidemark/internal/config"
	"tidemark/internal/engine"
	"tidemark/internal/logger"
	"tidemark/internal/market"
	"tidemark/internal/news"
	"tidemark/internal/pipeline"
	"tidemark/internal/risk"
	"tidemark/internal/scheduler"
	"tidemark/internal/signal"
	"tidemark/internal/store"
	"tidemark/internal/store/gormstore"
	statushttp "tidemark/internal/transport/http"

	"golang.org/x/sync/errgroup"
)

// App owns application-level orchestration: build dependencies from config,
// run the slot loop and the status HTTP server, shut everything down cleanly.
type App struct {
	cfg *tmcfg.Config

	stateStore *gormstore.Store
	history    *store.HistoryStore
	source     market.Source
	collector  *pipeline.Collector
	engine     *engine.Engine
	loop       *scheduler.Loop
	httpSrv    *statushttp.Server
}

// NewApp builds the full dependency graph without starting anything.
func NewApp(ctx context.Context, cfg *tmcfg.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	symbols := cfg.Universe.NormalizedSymbols()

	stateStore, err := gormstore.New(cfg.Storage.StatePath)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}
	history, err := store.NewHistoryStore(cfg.Storage.HistoryPath)
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}

	source := market.NewBinanceSource(market.BinanceConfig{
		RESTBaseURL:    cfg.Binance.RESTBaseURL,
		HTTPTimeout:    time.Duration(cfg.Binance.TimeoutSeconds) * time.Second,
		RequestsPerSec: cfg.Binance.RequestsPerSec,
		Burst:          cfg.Binance.Burst,
	})

	shock, err := news.NewShockEngine(ctx, news.ShockConfig{
		HardDuration:       time.Duration(cfg.News.HardDurationHours * float64(time.Hour)),
		SoftDuration:       time.Duration(cfg.News.SoftDurationHours * float64(time.Hour)),
		SoftThreshold:      cfg.News.SoftThreshold,
		HardMinConfidence:  cfg.News.HardMinConfidence,
		HardMaxSentLLM:     cfg.News.HardMaxSentLLM,
		CriticalCategories: cfg.News.CriticalCategories,
		ReadFailurePolicy:  news.ReadFailurePolicy(cfg.News.ReadFailurePolicy),
	}, stateStore, symbols)
	if err != nil {
		return nil, fmt.Errorf("news shock engine: %w", err)
	}

	momentum := signal.NewMomentum(signal.MomentumConfig{
		ShortWindow:   cfg.Momentum.ShortWindowDays,
		LongWindow:    cfg.Momentum.LongWindowDays,
		BlockSizeDays: cfg.Momentum.BlockSizeDays,
		Resamples:     cfg.Momentum.Resamples,
		MinPWin:       cfg.Momentum.MinPWin,
		Seed:          cfg.Momentum.Seed,
	})
	micro := signal.NewMicrostructureGuard(signal.MicrostructureConfig{
		SpreadMaxBps:   cfg.Microstructure.SpreadMaxBps,
		OFIWindow:      cfg.Microstructure.OFIWindow,
		OFIZMinNeutral: cfg.Microstructure.OFIZMinNeutral,
		OFIZMinRiskOn:  cfg.Microstructure.OFIZMinRiskOn,
		VWAPMaxDevPct:  cfg.Microstructure.VWAPMaxDevPct,
		AmihudPolicy:   signal.AmihudPolicy(cfg.Microstructure.AmihudPolicy),
		AmihudScale:    cfg.Microstructure.AmihudScale,
		AmihudLookback: cfg.Microstructure.AmihudLookback,
	})
	regime := signal.NewRegimeDetector(signal.RegimeConfig{
		ShortWindow:   cfg.Regime.ShortWindowDays,
		LongWindow:    cfg.Regime.LongWindowDays,
		CorrThreshold: cfg.Regime.CorrThreshold,
		ClearSlots:    cfg.Regime.ClearSlots,
	})

	riskCfg := risk.Config{
		TargetVol1d:           cfg.Risk.TargetVol1d,
		MaxPositions:          cfg.Risk.MaxPositions,
		WeightPerPositionMax:  cfg.Risk.WeightPerPositionMax,
		CashBufferMin:         cfg.Risk.CashBufferMin,
		DailyDrawdownPausePct: cfg.Risk.DailyDrawdownPausePct,
		MaxHoldingHours:       cfg.Risk.MaxHoldingHours,
		VolWindowDays:         cfg.Risk.VolWindowDays,
	}
	overrides, err := risk.NewOverrideRegistry(riskCfg, cfg.Risk.OverridesPath)
	if err != nil {
		return nil, fmt.Errorf("risk overrides: %w", err)
	}
	account := risk.NewAccount(riskCfg)

	eng := engine.New(engine.Config{
		MaxSnapshotAge: time.Duration(cfg.Slot.MaxSnapshotAgeSec) * time.Second,
	}, momentum, micro, regime, shock, overrides, account, stateStore)

	scorer := news.NewScorer(news.SentimentConfig{
		HalfLifeHours:      cfg.News.HalfLifeHours,
		BaselineWindowDays: cfg.News.BaselineWindowDays,
	})
	feed := pipeline.NewFeedClient(pipeline.FeedConfig{
		FeedURL:       cfg.News.FeedURL,
		ClassifierURL: cfg.News.ClassifierURL,
		AuthToken:     cfg.News.AuthToken,
	})
	collector := pipeline.NewCollector(source, history, scorer, feed, cfg.Universe.Benchmark, symbols)

	slots := scheduler.NewSlotScheduler(time.Duration(cfg.Slot.DecisionEveryMinutes) * time.Minute)
	loop := scheduler.NewLoop("decision", slots, time.Duration(cfg.Slot.OffsetSeconds)*time.Second)

	httpSrv, err := statushttp.NewServer(statushttp.ServerConfig{
		Addr:    cfg.App.HTTPAddr,
		Store:   stateStore,
		Shock:   shock,
		Account: account,
	})
	if err != nil {
		return nil, fmt.Errorf("status http server: %w", err)
	}

	return &App{
		cfg:        cfg,
		stateStore: stateStore,
		history:    history,
		source:     source,
		collector:  collector,
		engine:     eng,
		loop:       loop,
		httpSrv:    httpSrv,
	}, nil
}

// Run starts the slot loop and HTTP server, blocking until ctx is done.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	printStartupSummary(a.cfg)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := a.httpSrv.Start(ctx); err != nil {
			return fmt.Errorf("status http server error: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		defer a.close()
		a.loop.Run(ctx, a.runSlot)
		return nil
	})
	return group.Wait()
}

// runSlot executes one full decision cycle.
func (a *App) runSlot(ctx context.Context, slotID int64) {
	now := time.Now().UTC()
	logger.Infof("slot %d: collecting inputs for %d symbols", slotID, len(a.cfg.Universe.NormalizedSymbols()))
	in, err := a.collector.Collect(ctx, slotID, now)
	if err != nil {
		logger.Errorf("slot %d: collect failed: %v", slotID, err)
		return
	}
	decisions, err := a.engine.EvaluateSlot(ctx, in)
	if err != nil {
		logger.Errorf("slot %d: evaluation abandoned: %v", slotID, err)
		return
	}
	for _, d := range decisions {
		switch {
		case d.ExitAuthority != "":
			logger.Infof("slot %d %s: %s (authority=%s)", slotID, d.Symbol, d.Action, d.ExitAuthority)
		case d.RejectedBy != "":
			logger.Infof("slot %d %s: %s (rejected_by=%s: %s)", slotID, d.Symbol, d.Action, d.RejectedBy, d.Reason)
		default:
			logger.Infof("slot %d %s: %s weight=%.4f", slotID, d.Symbol, d.Action, d.TargetWeight)
		}
	}
}

func (a *App) close() {
	if err := a.source.Close(); err != nil {
		logger.Warnf("close market source: %v", err)
	}
	if err := a.history.Close(); err != nil {
		logger.Warnf("close history store: %v", err)
	}
	if err := a.stateStore.Close(); err != nil {
		logger.Warnf("close state store: %v", err)
	}
}
