// Package monitor implements the Position Monitor: after each processor
// pass it checks every position's stop-loss/profit-target triggers
// against the current price and, on a hit, forces a synthetic market
// close.
package monitor

import (
	"context"

	"github.com/google/uuid"

	"backtestsim/internal/domain"
	"backtestsim/internal/engine/accountant"
	"backtestsim/internal/engine/oracle"
	"backtestsim/internal/engine/orderbook"
	"backtestsim/internal/engine/report"
	"backtestsim/libs/observability"
)

// Monitor is not safe for concurrent use; the scheduler serializes all
// access.
type Monitor struct {
	book *orderbook.Book
	px   *oracle.Oracle
	acct *accountant.Accountant
	rpt  *report.Generator
	cfg  domain.SimulationConfig
	ctx  context.Context

	events         []domain.PositionTriggerEvent
	fillTimestamps map[string]int64
}

// New constructs a Monitor.
func New(book *orderbook.Book, px *oracle.Oracle, acct *accountant.Accountant, rpt *report.Generator, cfg domain.SimulationConfig) *Monitor {
	return &Monitor{
		book:           book,
		px:             px,
		acct:           acct,
		rpt:            rpt,
		cfg:            cfg,
		ctx:            context.Background(),
		fillTimestamps: make(map[string]int64),
	}
}

// SetContext updates the context used for structured observability logging
// during subsequent ticks. The scheduler calls this once at the start of Run.
func (m *Monitor) SetContext(ctx context.Context) {
	m.ctx = ctx
}

// Tick evaluates every position's triggers at the given clock time. Stop
// loss takes precedence over profit target when both fire in the same
// tick; at most one event is emitted per position per tick.
func (m *Monitor) Tick(now int64) {
	for _, token := range m.acct.PositionTokens() {
		pos, ok := m.acct.GetPosition(token)
		if !ok || (pos.StopLoss == nil && pos.ProfitTarget == nil) {
			continue
		}
		quote, ok := m.px.CurrentPrice(token)
		if !ok {
			continue
		}
		stopLossHit, profitTargetHit := m.acct.CheckPositionTriggers(token, quote.Price)
		switch {
		case stopLossHit:
			m.closePosition(token, pos, now, domain.TriggerStopLoss)
		case profitTargetHit:
			m.closePosition(token, pos, now, domain.TriggerProfitTarget)
		}
	}
}

// closePosition issues a synthetic market order that closes pos in full,
// at executionPrice with the position's own leverage.
func (m *Monitor) closePosition(token string, pos domain.Position, now int64, kind domain.TriggerEventType) {
	isBuy := pos.IsShort()
	price, ok := m.px.ExecutionPrice(token, isBuy, m.cfg.SlippagePercentage)
	if !ok {
		return
	}
	amount := pos.Amount
	if amount < 0 {
		amount = -amount
	}
	action := domain.ActionSell
	if isBuy {
		action = domain.ActionBuy
	}

	o := domain.SimulatedOrder{
		ID:              uuid.New(),
		Action:          action,
		Token:           token,
		BaseToken:       m.acct.Wallet().BaseToken,
		RequestedAmount: amount,
		OrderType:       domain.OrderMarket,
		Leverage:        pos.Leverage,
		IsFutures:       true,
		Status:          domain.StatusOpen,
		CreatedAt:       now,
		LastUpdatedAt:   now,
	}
	m.book.Add(o)

	baseBefore := m.acct.Wallet().Balance(m.acct.BaseToken())
	tokenBefore := m.acct.Wallet().Balance(token)

	var realized float64
	if isBuy {
		realized = m.acct.ExecuteBuy(token, amount, price, pos.Leverage, true, now)
	} else {
		realized = m.acct.ExecuteSell(token, amount, price, pos.Leverage, true, now)
	}

	baseAfter := m.acct.Wallet().Balance(m.acct.BaseToken())
	tokenAfter := m.acct.Wallet().Balance(token)
	posAfter := m.acct.PositionPtr(token)

	filled := domain.ApplyFill(o, amount, price, now)
	m.book.Update(filled)
	m.fillTimestamps[filled.ID.String()] = now

	m.rpt.RecordTrade(report.TradeInput{
		Order:           filled,
		BaseBefore:      baseBefore,
		BaseAfter:       baseAfter,
		TokenBefore:     tokenBefore,
		TokenAfter:      tokenAfter,
		PositionBefore:  &pos,
		PositionAfter:   posAfter,
		RealizedPnL:     realized,
		LiquidatedAfter: m.acct.PortfolioValue(m.markPrices(token, price, now)),
	})

	observability.RecordFill(m.ctx, token, amount, price, 0, 0)
	m.events = append(m.events, domain.PositionTriggerEvent{
		Token:      token,
		Type:       kind,
		Timestamp:  now,
		EntryPrice: pos.EntryPrice,
		Price:      price,
		Amount:     amount,
	})
	observability.RecordTriggerEvent(m.ctx, token, string(kind), price)
}

// markPrices values every held token for the liquidated-balance snapshot:
// the synthetic close's execution price for the triggered token, the
// oracle's last recorded price for everything else. Raw recorded prices
// are used rather than CurrentPrice so bookkeeping never consumes a
// volatility draw.
func (m *Monitor) markPrices(token string, price float64, now int64) map[string]float64 {
	marks := map[string]float64{token: price}
	for t := range m.acct.Wallet().Balances {
		if t == token || t == m.acct.BaseToken() {
			continue
		}
		if last, ok := m.px.HistoricalAt(t, now); ok {
			marks[t] = last
		}
	}
	for _, t := range m.acct.PositionTokens() {
		if _, ok := marks[t]; ok {
			continue
		}
		if last, ok := m.px.HistoricalAt(t, now); ok {
			marks[t] = last
		}
	}
	return marks
}

// Events returns the audit list of every trigger fired this run, in the
// order they occurred.
func (m *Monitor) Events() []domain.PositionTriggerEvent {
	out := make([]domain.PositionTriggerEvent, len(m.events))
	copy(out, m.events)
	return out
}

// FillTimestamps returns a defensive copy of order-id -> fill-time for the
// synthetic closes this monitor issued.
func (m *Monitor) FillTimestamps() map[string]int64 {
	out := make(map[string]int64, len(m.fillTimestamps))
	for k, v := range m.fillTimestamps {
		out[k] = v
	}
	return out
}
