// Package processor implements the Order Processor: on each
// scheduler tick it advances every active order through auto-cancel, the
// configured fill strategy, and the failure/fill-probability rolls, driving
// fills through the Accountant.
package processor

import (
	"context"

	"backtestsim/internal/domain"
	"backtestsim/internal/engine/accountant"
	"backtestsim/internal/engine/oracle"
	"backtestsim/internal/engine/orderbook"
	"backtestsim/internal/engine/report"
	"backtestsim/internal/engine/simrand"
	"backtestsim/libs/observability"
)

// Processor is not safe for concurrent use; the scheduler serializes all
// access.
type Processor struct {
	book *orderbook.Book
	px   *oracle.Oracle
	acct *accountant.Accountant
	rpt  *report.Generator
	cfg  domain.SimulationConfig
	ctx  context.Context

	// failureRNG and fillRNG are independent seeded streams so that the
	// order in which orders are created or ticked never perturbs the
	// oracle's own sequence, or each other's.
	failureRNG *simrand.Generator
	fillRNG    *simrand.Generator

	fillTimestamps map[string]int64
	slippages      map[string]float64
}

// New constructs a Processor. The failure-roll and fill-probability streams
// are seeded off cfg.RandomSeed with fixed offsets so each owns a distinct
// sequence from the oracle's, which seeds directly off the same value.
func New(book *orderbook.Book, px *oracle.Oracle, acct *accountant.Accountant, rpt *report.Generator, cfg domain.SimulationConfig) *Processor {
	var seed int64
	if cfg.RandomSeed != nil {
		seed = *cfg.RandomSeed
	}
	return &Processor{
		book:           book,
		ctx:            context.Background(),
		px:             px,
		acct:           acct,
		rpt:            rpt,
		cfg:            cfg,
		failureRNG:     simrand.New(seed + 1),
		fillRNG:        simrand.New(seed + 2),
		fillTimestamps: make(map[string]int64),
		slippages:      make(map[string]float64),
	}
}

// SetContext updates the context used for structured observability logging
// during the next tick. The scheduler calls this once per run.
func (p *Processor) SetContext(ctx context.Context) {
	p.ctx = ctx
}

// ShouldOrderFail rolls the failure die for a freshly created order.
// Market orders never fail when marketOrdersAlwaysSucceed is set.
func (p *Processor) ShouldOrderFail(orderType domain.OrderType) bool {
	if orderType == domain.OrderMarket && p.cfg.MarketOrdersAlwaysSucceed {
		return false
	}
	return p.failureRNG.Next() < p.cfg.OrderFailureRate
}

// ShouldLimitFill rolls the limit-order fill probability at the fill
// decision point. Market orders always pass.
func (p *Processor) ShouldLimitFill(orderType domain.OrderType) bool {
	if orderType != domain.OrderLimit {
		return true
	}
	return p.fillRNG.Next() < p.cfg.LimitOrderFillProbability
}

// Tick advances every active order in the book by one scheduler step.
func (p *Processor) Tick(now int64) {
	for _, o := range p.book.ActiveOrders() {
		p.book.Update(p.advance(o, now))
	}
}

func (p *Processor) advance(o domain.SimulatedOrder, now int64) domain.SimulatedOrder {
	if p.cfg.CancellationAfterMs != nil && now-o.CreatedAt >= *p.cfg.CancellationAfterMs {
		return p.cancel(o, now)
	}

	switch p.cfg.OrderFillStrategy {
	case domain.FillDelayed:
		if o.ScheduledFillTime != nil && now >= *o.ScheduledFillTime {
			return p.attemptFill(o, o.RemainingAmount, now)
		}
	case domain.FillGradual:
		if now-o.LastUpdatedAt >= p.cfg.GradualFillIntervalMs {
			return p.attemptFill(o, o.RemainingAmount*p.cfg.PartialFillPercentage, now)
		}
	}
	return o
}

// attemptFill consults the limit-order fill probability at the fill
// decision point before pricing and applying the fill.
func (p *Processor) attemptFill(o domain.SimulatedOrder, delta float64, now int64) domain.SimulatedOrder {
	if !p.ShouldLimitFill(o.OrderType) {
		return o
	}
	price, ok := p.px.ExecutionPrice(o.Token, o.Action == domain.ActionBuy, p.cfg.SlippagePercentage)
	if !ok {
		return p.reject(o, now, "no price available")
	}
	return p.applyFill(o, delta, price, now)
}

// applyFill executes the delta against the accountant, releasing the
// proportional commitment for the amount filled, then folds the fill into
// the order record via domain.ApplyFill.
func (p *Processor) applyFill(o domain.SimulatedOrder, delta, price float64, now int64) domain.SimulatedOrder {
	if delta <= 0 {
		return o
	}
	if delta > o.RemainingAmount {
		delta = o.RemainingAmount
	}

	baseBefore := p.acct.Wallet().Balance(o.BaseToken)
	tokenBefore := p.acct.Wallet().Balance(o.Token)
	posBefore := p.acct.PositionPtr(o.Token)

	// Release the order's recorded reservation proportionally to the
	// delta filled. Buys and futures sells reserved base token
	// (CommittedCapital, fixed at placement); a spot sell reserved the
	// token quantity itself, so its share is just delta.
	var realized float64
	if o.Action == domain.ActionBuy {
		p.acct.Release(o.BaseToken, commitmentShare(o, delta))
		realized = p.acct.ExecuteBuy(o.Token, delta, price, o.Leverage, o.IsFutures, now)
	} else {
		if o.IsFutures {
			p.acct.Release(o.BaseToken, commitmentShare(o, delta))
		} else {
			p.acct.Release(o.Token, delta)
		}
		realized = p.acct.ExecuteSell(o.Token, delta, price, o.Leverage, o.IsFutures, now)
	}

	baseAfter := p.acct.Wallet().Balance(o.BaseToken)
	tokenAfter := p.acct.Wallet().Balance(o.Token)
	posAfter := p.acct.PositionPtr(o.Token)

	updated := domain.ApplyFill(o, delta, price, now)

	id := updated.ID.String()
	p.fillTimestamps[id] = now
	var slippage float64
	if updated.RequestedPrice > 0 {
		slippage = (price - updated.RequestedPrice) / updated.RequestedPrice
		p.slippages[id] = slippage
	}
	observability.RecordFill(p.ctx, o.Token, delta, price, slippage, float64(now-o.CreatedAt))

	p.rpt.RecordTrade(report.TradeInput{
		Order:           updated,
		Slippage:        slippage,
		BaseBefore:      baseBefore,
		BaseAfter:       baseAfter,
		TokenBefore:     tokenBefore,
		TokenAfter:      tokenAfter,
		PositionBefore:  posBefore,
		PositionAfter:   posAfter,
		RealizedPnL:     realized,
		LiquidatedAfter: p.acct.PortfolioValue(p.markPrices(o.Token, price, now)),
	})

	return updated
}

// markPrices values every held token for the liquidated-balance snapshot:
// the fill price for the token just traded, the oracle's last recorded
// price for everything else. Raw recorded prices are used rather than
// CurrentPrice so bookkeeping never consumes a volatility draw.
func (p *Processor) markPrices(token string, price float64, now int64) map[string]float64 {
	marks := map[string]float64{token: price}
	for t := range p.acct.Wallet().Balances {
		if t == token || t == p.acct.BaseToken() {
			continue
		}
		if last, ok := p.px.HistoricalAt(t, now); ok {
			marks[t] = last
		}
	}
	for _, t := range p.acct.PositionTokens() {
		if _, ok := marks[t]; ok {
			continue
		}
		if last, ok := p.px.HistoricalAt(t, now); ok {
			marks[t] = last
		}
	}
	return marks
}

// reject transitions o to rejected, releasing whatever remains committed
// for it. Used both for mid-life no-price conditions and at creation time
// by the trade API when a price is unavailable.
func (p *Processor) reject(o domain.SimulatedOrder, now int64, reason string) domain.SimulatedOrder {
	p.releaseRemaining(o)
	o.Status = domain.StatusRejected
	o.RejectReason = reason
	o.LastUpdatedAt = now
	return o
}

func (p *Processor) cancel(o domain.SimulatedOrder, now int64) domain.SimulatedOrder {
	p.releaseRemaining(o)
	o.Status = domain.StatusCancelled
	o.CancelReason = "cancellationAfterMs elapsed"
	o.LastUpdatedAt = now
	return o
}

// releaseRemaining releases the commitment attributable to an order's
// unfilled remainder on cancellation or rejection: the remainder's share
// of the recorded base-token reservation, or the remaining token quantity
// for a spot sell. An order that never committed (still pending, as when
// rejected by the failure roll before commit) releases nothing.
func (p *Processor) releaseRemaining(o domain.SimulatedOrder) {
	if o.Status == domain.StatusPending {
		return
	}
	if o.Action == domain.ActionBuy || o.IsFutures {
		p.acct.Release(o.BaseToken, commitmentShare(o, o.RemainingAmount))
		return
	}
	p.acct.Release(o.Token, o.RemainingAmount)
}

// commitmentShare returns the slice of an order's CommittedCapital
// attributable to qty units of its RequestedAmount. The reservation was
// fixed at placement (and a closing futures sell may have reserved
// nothing at all), so the recorded amount is scaled rather than
// recomputing RequiredCapital at a fill price that has drifted from the
// placement price — recomputing would over- or under-release whenever the
// two differ, corrupting other live orders' commitments.
func commitmentShare(o domain.SimulatedOrder, qty float64) float64 {
	if o.CommittedCapital <= 0 || o.RequestedAmount <= 0 {
		return 0
	}
	share := qty / o.RequestedAmount
	return o.CommittedCapital * share
}

// FillNow performs an immediate full fill of o at price, used by the trade
// API facade for the "immediate" fill strategy, which
// applies the fill synchronously rather than waiting for a scheduler tick.
func (p *Processor) FillNow(o domain.SimulatedOrder, price float64, now int64) domain.SimulatedOrder {
	return p.applyFill(o, o.RemainingAmount, price, now)
}

// RejectNow is called by the trade API at order-creation time: when the
// failure roll hit, before the order is committed or booked, or when no
// execution price is available on the immediate-fill path, after the
// order was committed and booked.
func (p *Processor) RejectNow(o domain.SimulatedOrder, now int64, reason string) domain.SimulatedOrder {
	return p.reject(o, now, reason)
}

// FillTimestamps returns a defensive copy of order-id -> last-fill-time,
// for projecting TradeRecords.
func (p *Processor) FillTimestamps() map[string]int64 {
	out := make(map[string]int64, len(p.fillTimestamps))
	for k, v := range p.fillTimestamps {
		out[k] = v
	}
	return out
}

// Slippages returns a defensive copy of order-id -> realized slippage
// fraction, for orders that carried a requested price.
func (p *Processor) Slippages() map[string]float64 {
	out := make(map[string]float64, len(p.slippages))
	for k, v := range p.slippages {
		out[k] = v
	}
	return out
}
