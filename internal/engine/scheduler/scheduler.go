// Package scheduler implements the Replay Scheduler: it owns the clock
// and drives the single-threaded cooperative loop that advances the
// price oracle, the order processor, the position monitor and the
// strategy callbacks in lockstep over a candle feed.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"backtestsim/internal/domain"
	"backtestsim/internal/engine/accountant"
	"backtestsim/internal/engine/clock"
	"backtestsim/internal/engine/monitor"
	"backtestsim/internal/engine/oracle"
	"backtestsim/internal/engine/orderbook"
	"backtestsim/internal/engine/processor"
	"backtestsim/internal/engine/report"
	"backtestsim/internal/engine/tradeapi"
	"backtestsim/internal/feed"
	"backtestsim/internal/strategy"
	"backtestsim/libs/observability"
	"backtestsim/libs/risk"
)

// Result is the external output of a completed run.
type Result struct {
	InitialValue  float64
	FinalValue    float64
	PnL           float64
	PnLPercentage float64
	BaseToken     string
	Trades        []domain.TradeRecord
	TriggerEvents []domain.PositionTriggerEvent
	Report        string
}

// Scheduler is not safe for concurrent use: it is the single logical task
// that owns every other engine component.
type Scheduler struct {
	tradingCfg domain.TradingConfig
	cfg        domain.SimulationConfig

	book *orderbook.Book
	px   *oracle.Oracle
	acct *accountant.Accountant
	proc *processor.Processor
	mon  *monitor.Monitor
	api  *tradeapi.TradeAPI
	clk  *clock.Clock
	rpt  *report.Generator

	initialValue float64
}

// New wires a fresh engine for one run from validated configuration. The
// caller is responsible for calling domain.Validate first; New does not
// re-validate. riskPolicy is optional; pass nil to run with no
// portfolio-level gate beyond the accountant's own capital checks.
func New(tradingCfg domain.TradingConfig, simCfg domain.SimulationConfig, riskPolicy *risk.Policy) *Scheduler {
	var seed int64
	if simCfg.RandomSeed != nil {
		seed = *simCfg.RandomSeed
	}

	book := orderbook.New()
	px := oracle.New(simCfg.PriceVolatility, seed)
	acct := accountant.New(tradingCfg)
	initialValue := acct.PortfolioValue(nil)
	rpt := report.New(initialValue)
	proc := processor.New(book, px, acct, rpt, simCfg)
	mon := monitor.New(book, px, acct, rpt, simCfg)
	clk := clock.New(0)
	api := tradeapi.New(book, px, acct, proc, clk, simCfg)
	if riskPolicy != nil {
		api.SetRiskPolicy(risk.NewEnforcer(riskPolicy))
	}

	return &Scheduler{
		tradingCfg:   tradingCfg,
		cfg:          simCfg,
		book:         book,
		px:           px,
		acct:         acct,
		proc:         proc,
		mon:          mon,
		api:          api,
		clk:          clk,
		rpt:          rpt,
		initialValue: initialValue,
	}
}

// Run replays src to completion against strat:
//
//	strategy.initialize(config)
//	for each candle in feed order:
//	    clock.advance; oracle.update; processor.tick; monitor.tick; strategy.analyze
//	strategy.closeSession
//	processor.tick (final flush)
//	accountant.liquidateAll
//
// Feed errors are fatal and returned immediately; strategy callback
// errors and panics are caught, logged, and do not abort the run.
func (s *Scheduler) Run(ctx context.Context, strat strategy.Strategy, src feed.Source) (Result, error) {
	ctx = observability.WithRunInfo(ctx, observability.RunInfo{RunID: observability.NewRunID()})
	s.api.SetContext(ctx)
	s.mon.SetContext(ctx)
	s.proc.SetContext(ctx)
	s.callInitialize(ctx, strat)

	lastPrices := make(map[string]float64)
	for {
		c, ok, err := src.Next()
		if err != nil {
			return Result{}, err
		}
		if !ok {
			break
		}

		s.clk.Advance(c.Timestamp)
		s.px.Update(c.Symbol, c.Close, c.Timestamp)
		lastPrices[c.Symbol] = c.Close

		s.proc.Tick(c.Timestamp)
		s.api.ReconcilePendingTriggers()
		s.mon.Tick(c.Timestamp)
		observability.RecordPortfolioState(ctx, s.acct.PortfolioValue(lastPrices), len(s.acct.PositionTokens()))

		s.callAnalyze(ctx, strat, c)
	}

	s.callCloseSession(ctx, strat)
	s.proc.Tick(s.clk.Now())

	_, warnings := s.acct.LiquidateAll(lastPrices)
	for _, token := range warnings {
		observability.LogEvent(ctx, "warn", "liquidation_skipped", map[string]any{"token": token})
	}

	// Positions are gone after LiquidateAll; this values any remaining
	// spot holdings at their last feed prices on top of the base balance.
	finalValue := s.acct.PortfolioValue(lastPrices)
	pnl := finalValue - s.initialValue
	pct := 0.0
	if s.initialValue != 0 {
		pct = pnl / s.initialValue * 100
	}

	fillTimestamps := s.proc.FillTimestamps()
	for id, ts := range s.mon.FillTimestamps() {
		fillTimestamps[id] = ts
	}
	trades := s.book.TradeRecords(fillTimestamps, s.proc.Slippages())

	result := Result{
		InitialValue:  s.initialValue,
		FinalValue:    finalValue,
		PnL:           pnl,
		PnLPercentage: pct,
		BaseToken:     s.acct.BaseToken(),
		Trades:        trades,
		TriggerEvents: s.mon.Events(),
		Report:        s.rpt.Render(),
	}
	observability.RecordRunComplete(ctx, len(trades), result.PnL, result.PnLPercentage)
	return result, nil
}

// The wall clock below feeds only callback-latency log fields; engine
// state and every recorded timestamp still derive from candle time alone.

func (s *Scheduler) callInitialize(ctx context.Context, strat strategy.Strategy) {
	defer s.recoverCallback(ctx, "initialize")
	observability.LogCallbackStart(ctx, "initialize", nil)
	start := time.Now()
	err := strat.Initialize(ctx, s.tradingCfg, s.api)
	observability.LogCallbackEnd(ctx, "initialize", time.Since(start), err)
	if err != nil {
		observability.LogEvent(ctx, "error", "strategy_error", map[string]any{"callback": "initialize", "error": err.Error()})
	}
}

func (s *Scheduler) callAnalyze(ctx context.Context, strat strategy.Strategy, c domain.Candle) {
	defer s.recoverCallback(ctx, "analyze")
	observability.LogCallbackStart(ctx, "analyze", map[string]any{"symbol": c.Symbol, "timestamp": c.Timestamp})
	start := time.Now()
	err := strat.Analyze(ctx, c, s.api)
	observability.LogCallbackEnd(ctx, "analyze", time.Since(start), err)
	if err != nil {
		observability.LogEvent(ctx, "error", "strategy_error", map[string]any{"callback": "analyze", "symbol": c.Symbol, "error": err.Error()})
	}
}

func (s *Scheduler) callCloseSession(ctx context.Context, strat strategy.Strategy) {
	defer s.recoverCallback(ctx, "closeSession")
	observability.LogCallbackStart(ctx, "closeSession", nil)
	start := time.Now()
	err := strat.CloseSession(ctx, s.api)
	observability.LogCallbackEnd(ctx, "closeSession", time.Since(start), err)
	if err != nil {
		observability.LogEvent(ctx, "error", "strategy_error", map[string]any{"callback": "closeSession", "error": err.Error()})
	}
}

// recoverCallback catches a panicking strategy callback so one bad tick
// never tears down the run.
func (s *Scheduler) recoverCallback(ctx context.Context, callback string) {
	if r := recover(); r != nil {
		observability.LogEvent(ctx, "error", "strategy_panic", map[string]any{"callback": callback, "panic": fmt.Sprintf("%v", r)})
	}
}
