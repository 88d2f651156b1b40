// Package report implements the Trade Report Generator: a running
// per-trade ledger anchored on the liquidated-balance chain
// invariant, plus summary aggregates and a Markdown rendering.
package report

import (
	"fmt"
	"strings"

	"backtestsim/internal/domain"
)

// Row is one bookkeeping line for a single filled order.
type Row struct {
	TradeNumber int
	Timestamp   int64
	Action      domain.OrderAction
	Token       string
	Segment     domain.Segment
	Leverage    int

	RequestedAmount, FilledAmount  float64
	RequestedPrice, ExecutionPrice float64
	Slippage                       float64
	CapitalUsed                    float64

	BaseBefore, BaseAfter, BaseDelta float64
	TokenBefore, TokenAfter          float64
	PositionBefore, PositionAfter    string

	RealizedPnL                             float64
	UnrealizedPnLBefore, UnrealizedPnLAfter float64

	LiqBefore, LiqAfter, LiqChange float64
	CumulativePnL                  float64
	CumulativePnLPercentage        float64
}

// TradeInput is everything the scheduler knows about a fill that the
// report row can't derive from the order alone.
type TradeInput struct {
	Order           domain.SimulatedOrder
	Slippage        float64
	BaseBefore      float64
	BaseAfter       float64
	TokenBefore     float64
	TokenAfter      float64
	PositionBefore  *domain.Position
	PositionAfter   *domain.Position
	RealizedPnL     float64
	LiquidatedAfter float64
}

// Summary aggregates across every recorded row.
type Summary struct {
	TotalTrades               int
	SpotTrades, FuturesTrades int
	TotalCapitalDeployed      float64
	AvgSlippage               float64
	WinRate                   float64
	ProfitFactor              float64
	LargestWin, LargestLoss   float64
	FinalPnL                  float64
	FinalPnLPercentage        float64
}

// Generator accumulates rows in trade order, chaining each row's
// liqBefore to the previous row's liqAfter, so the report reads as one
// continuous balance trajectory. It is not safe for concurrent use; the
// scheduler serializes all access.
type Generator struct {
	initialValue   float64
	lastLiquidated float64
	rows           []Row
}

// New constructs a Generator seeded with the run's initial portfolio
// value; row 0's liqBefore equals this value.
func New(initialValue float64) *Generator {
	return &Generator{initialValue: initialValue, lastLiquidated: initialValue}
}

// RecordTrade appends one row for a completed fill.
func (g *Generator) RecordTrade(in TradeInput) Row {
	segment := domain.SegmentSpot
	if in.Order.IsFutures {
		segment = domain.SegmentFutures
	}

	capitalUsed := in.Order.FilledAmount * in.Order.ExecutionPrice
	if in.Order.IsFutures && in.Order.Leverage > 0 {
		capitalUsed /= float64(in.Order.Leverage)
	}

	var unrealBefore, unrealAfter float64
	if in.PositionBefore != nil {
		unrealBefore = in.PositionBefore.UnrealizedPnL(in.Order.ExecutionPrice)
	}
	if in.PositionAfter != nil {
		unrealAfter = in.PositionAfter.UnrealizedPnL(in.Order.ExecutionPrice)
	}

	liqBefore := g.lastLiquidated
	liqAfter := in.LiquidatedAfter
	cumulative := liqAfter - g.initialValue
	pct := 0.0
	if g.initialValue != 0 {
		pct = cumulative / g.initialValue * 100
	}

	row := Row{
		TradeNumber:             len(g.rows) + 1,
		Timestamp:               in.Order.LastUpdatedAt,
		Action:                  in.Order.Action,
		Token:                   in.Order.Token,
		Segment:                 segment,
		Leverage:                in.Order.Leverage,
		RequestedAmount:         in.Order.RequestedAmount,
		FilledAmount:            in.Order.FilledAmount,
		RequestedPrice:          in.Order.RequestedPrice,
		ExecutionPrice:          in.Order.ExecutionPrice,
		Slippage:                in.Slippage,
		CapitalUsed:             capitalUsed,
		BaseBefore:              in.BaseBefore,
		BaseAfter:               in.BaseAfter,
		BaseDelta:               in.BaseAfter - in.BaseBefore,
		TokenBefore:             in.TokenBefore,
		TokenAfter:              in.TokenAfter,
		PositionBefore:          positionSnapshot(in.PositionBefore),
		PositionAfter:           positionSnapshot(in.PositionAfter),
		RealizedPnL:             in.RealizedPnL,
		UnrealizedPnLBefore:     unrealBefore,
		UnrealizedPnLAfter:      unrealAfter,
		LiqBefore:               liqBefore,
		LiqAfter:                liqAfter,
		LiqChange:               liqAfter - liqBefore,
		CumulativePnL:           cumulative,
		CumulativePnLPercentage: pct,
	}
	g.lastLiquidated = liqAfter
	g.rows = append(g.rows, row)
	return row
}

func positionSnapshot(pos *domain.Position) string {
	if pos == nil {
		return "none"
	}
	side := "long"
	amount := pos.Amount
	if pos.IsShort() {
		side = "short"
		amount = -amount
	}
	return fmt.Sprintf("%s %.8f @ %.8f (lev %d)", side, amount, pos.EntryPrice, pos.Leverage)
}

// Rows returns every recorded row, in trade order.
func (g *Generator) Rows() []Row {
	out := make([]Row, len(g.rows))
	copy(out, g.rows)
	return out
}

// Summarize computes the end-of-run aggregates.
func (g *Generator) Summarize() Summary {
	s := Summary{TotalTrades: len(g.rows)}
	if len(g.rows) == 0 {
		return s
	}

	var grossProfit, grossLoss, slippageSum float64
	for _, row := range g.rows {
		if row.Segment == domain.SegmentFutures {
			s.FuturesTrades++
		} else {
			s.SpotTrades++
		}
		s.TotalCapitalDeployed += row.CapitalUsed
		slippageSum += row.Slippage

		if row.LiqChange > 0 {
			s.WinRate++
			grossProfit += row.LiqChange
			if row.LiqChange > s.LargestWin {
				s.LargestWin = row.LiqChange
			}
		} else if row.LiqChange < 0 {
			grossLoss += -row.LiqChange
			if row.LiqChange < s.LargestLoss {
				s.LargestLoss = row.LiqChange
			}
		}
	}

	s.WinRate /= float64(len(g.rows))
	s.AvgSlippage = slippageSum / float64(len(g.rows))
	if grossLoss > 0 {
		s.ProfitFactor = grossProfit / grossLoss
	} else {
		s.ProfitFactor = grossProfit
	}

	last := g.rows[len(g.rows)-1]
	s.FinalPnL = last.CumulativePnL
	s.FinalPnLPercentage = last.CumulativePnLPercentage
	return s
}

// Render produces a Markdown report of every row plus the summary
// aggregates.
func (g *Generator) Render() string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Backtest Report\n\n")
	fmt.Fprintf(&b, "| # | Time | Action | Token | Segment | Lev | Filled | Exec Price | Slippage | Realized PnL | Liq After | Cum PnL | Cum %% |\n")
	fmt.Fprintf(&b, "|---|------|--------|-------|---------|-----|--------|------------|----------|---------------|-----------|---------|-------|\n")
	for _, row := range g.rows {
		fmt.Fprintf(&b, "| %d | %d | %s | %s | %s | %d | %.8f | %.8f | %.6f | %.8f | %.8f | %.8f | %.4f |\n",
			row.TradeNumber, row.Timestamp, row.Action, row.Token, row.Segment, row.Leverage,
			row.FilledAmount, row.ExecutionPrice, row.Slippage, row.RealizedPnL,
			row.LiqAfter, row.CumulativePnL, row.CumulativePnLPercentage)
	}

	s := g.Summarize()
	fmt.Fprintf(&b, "\n## Summary\n\n")
	fmt.Fprintf(&b, "- Total trades: %d (spot %d, futures %d)\n", s.TotalTrades, s.SpotTrades, s.FuturesTrades)
	fmt.Fprintf(&b, "- Capital deployed: %.8f\n", s.TotalCapitalDeployed)
	fmt.Fprintf(&b, "- Average slippage: %.6f\n", s.AvgSlippage)
	fmt.Fprintf(&b, "- Win rate: %.2f%%\n", s.WinRate*100)
	fmt.Fprintf(&b, "- Profit factor: %.4f\n", s.ProfitFactor)
	fmt.Fprintf(&b, "- Largest win: %.8f\n", s.LargestWin)
	fmt.Fprintf(&b, "- Largest loss: %.8f\n", s.LargestLoss)
	fmt.Fprintf(&b, "- Final PnL: %.8f (%.4f%%)\n", s.FinalPnL, s.FinalPnLPercentage)

	return b.String()
}
