// Package tradeapi implements the Trade API facade exposed to strategy
// code: validation, failure rolls, order creation, and fill-strategy
// dispatch, all delegating to the Order Book, Accountant, and Order
// Processor the scheduler owns.
package tradeapi

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"backtestsim/internal/domain"
	"backtestsim/internal/engine/accountant"
	"backtestsim/internal/engine/clock"
	"backtestsim/internal/engine/oracle"
	"backtestsim/internal/engine/orderbook"
	"backtestsim/internal/engine/processor"
	"backtestsim/internal/strategy"
	"backtestsim/libs/observability"
	"backtestsim/libs/risk"
)

type pendingTrigger struct {
	stopLoss     *domain.TriggerConfig
	profitTarget *domain.TriggerConfig
}

// TradeAPI is the concrete strategy.TradeAPI implementation. It is not
// safe for concurrent use; the scheduler serializes every strategy
// callback into a single critical section.
type TradeAPI struct {
	book *orderbook.Book
	px   *oracle.Oracle
	acct *accountant.Accountant
	proc *processor.Processor
	clk  *clock.Clock
	cfg  domain.SimulationConfig
	ctx  context.Context

	// risk is an optional portfolio-level gate layered on top of the
	// accountant's own capital checks. A nil risk leaves every order
	// subject only to CanBuy/CanSell.
	risk *risk.Enforcer

	// pendingTriggers holds stop-loss/profit-target requests for orders
	// that have not yet opened a position (delayed/gradual/never fill
	// strategies); ReconcilePendingTriggers attaches them once the
	// position exists.
	pendingTriggers map[string]pendingTrigger
}

var _ strategy.TradeAPI = (*TradeAPI)(nil)

// New constructs a TradeAPI bound to the scheduler's shared engine state.
func New(book *orderbook.Book, px *oracle.Oracle, acct *accountant.Accountant, proc *processor.Processor, clk *clock.Clock, cfg domain.SimulationConfig) *TradeAPI {
	return &TradeAPI{
		book:            book,
		px:              px,
		acct:            acct,
		proc:            proc,
		clk:             clk,
		cfg:             cfg,
		ctx:             context.Background(),
		pendingTriggers: make(map[string]pendingTrigger),
	}
}

// SetContext updates the context used for structured observability logging
// during subsequent strategy callbacks. The scheduler calls this once at
// the start of Run, before Initialize.
func (t *TradeAPI) SetContext(ctx context.Context) {
	t.ctx = ctx
}

// SetRiskPolicy attaches a portfolio-level risk gate that runs alongside
// the accountant's own capital checks on every Buy/Sell. Passing nil
// disables the gate.
func (t *TradeAPI) SetRiskPolicy(e *risk.Enforcer) {
	t.risk = e
}

// Buy places a buy order.
func (t *TradeAPI) Buy(token string, amount float64, opts strategy.OrderOptions) strategy.TradeResult {
	return t.place(domain.ActionBuy, token, amount, opts)
}

// Sell places a sell order.
func (t *TradeAPI) Sell(token string, amount float64, opts strategy.OrderOptions) strategy.TradeResult {
	return t.place(domain.ActionSell, token, amount, opts)
}

func (t *TradeAPI) place(action domain.OrderAction, token string, amount float64, opts strategy.OrderOptions) strategy.TradeResult {
	orderType := opts.OrderType
	if orderType == "" {
		orderType = domain.OrderMarket
	}
	leverage := opts.Leverage
	if leverage <= 0 {
		leverage = 1
	}

	price := opts.RequestedPrice
	if orderType == domain.OrderMarket || price <= 0 {
		quote, ok := t.px.CurrentPrice(token)
		if !ok {
			return strategy.TradeResult{Success: false, Error: "no price available for " + token}
		}
		price = quote.Price
	}

	var valErr *domain.EngineError
	if action == domain.ActionBuy {
		valErr = t.acct.CanBuy(token, amount, price, leverage, opts.IsFutures)
	} else {
		valErr = t.acct.CanSell(token, amount, opts.IsFutures)
	}
	if valErr != nil {
		return strategy.TradeResult{Success: false, Error: valErr.Error()}
	}

	if t.risk != nil {
		if vs := t.checkRiskPolicy(token, amount, price, action, opts); !vs.IsEmpty() {
			return strategy.TradeResult{Success: false, Error: vs.Error()}
		}
	}

	now := t.clk.Now()
	o := domain.SimulatedOrder{
		ID:              uuid.New(),
		Action:          action,
		Token:           token,
		BaseToken:       t.acct.BaseToken(),
		RequestedAmount: amount,
		RemainingAmount: amount,
		OrderType:       orderType,
		RequestedPrice:  opts.RequestedPrice,
		Leverage:        leverage,
		IsFutures:       opts.IsFutures,
		Status:          domain.StatusPending,
		CreatedAt:       now,
		LastUpdatedAt:   now,
	}

	if t.proc.ShouldOrderFail(orderType) {
		o = t.proc.RejectNow(o, now, "order failure roll")
		t.book.Add(o)
		observability.RecordOrderPlaced(t.ctx, token, string(action), opts.IsFutures, false)
		return strategy.TradeResult{Success: false, Error: "order rejected by failure roll", OrderID: o.ID.String(), Status: o.Status}
	}

	o.Status = domain.StatusOpen
	if action == domain.ActionBuy {
		o.CommittedCapital = t.acct.CommitBuy(amount, price, leverage, opts.IsFutures)
	} else {
		o.CommittedCapital = t.acct.CommitSell(token, amount, price, leverage, opts.IsFutures)
	}
	t.book.Add(o)
	observability.RecordOrderPlaced(t.ctx, token, string(action), opts.IsFutures, true)

	if opts.IsFutures && (opts.StopLoss != nil || opts.ProfitTarget != nil) {
		t.pendingTriggers[token] = pendingTrigger{stopLoss: opts.StopLoss, profitTarget: opts.ProfitTarget}
	}

	if t.cfg.OrderFillStrategy == domain.FillImmediate {
		// Limit orders consult the fill probability at the fill decision
		// point even on the immediate path; a failed roll leaves the order
		// open, where auto-cancel can reap it.
		if !t.proc.ShouldLimitFill(orderType) {
			return strategy.TradeResult{Success: true, OrderID: o.ID.String(), Status: o.Status}
		}
		fillPrice, ok := t.px.ExecutionPrice(token, action == domain.ActionBuy, t.cfg.SlippagePercentage)
		if !ok {
			o = t.proc.RejectNow(o, now, "no price available")
			t.book.Update(o)
			return strategy.TradeResult{Success: false, Error: "no price available", OrderID: o.ID.String(), Status: o.Status}
		}
		o = t.proc.FillNow(o, fillPrice, now)
		t.book.Update(o)
		t.reconcileTriggers(token)
		slippage := t.proc.Slippages()[o.ID.String()]
		return strategy.TradeResult{
			Success:        true,
			OrderID:        o.ID.String(),
			Status:         o.Status,
			ExecutionPrice: o.ExecutionPrice,
			Slippage:       slippage,
		}
	}

	if t.cfg.OrderFillStrategy == domain.FillDelayed {
		scheduled := now + t.cfg.FillDelayMs
		o.ScheduledFillTime = &scheduled
		t.book.Update(o)
	}

	return strategy.TradeResult{Success: true, OrderID: o.ID.String(), Status: o.Status}
}

// checkRiskPolicy runs the portfolio-level gate ahead of a buy/sell. Stop
// distance is only evaluated when the strategy expressed it as an absolute
// price; a percentage-kind stop has no fixed distance until a position
// exists to anchor it, so CheckSignal is skipped in that case and only the
// portfolio-level constraints run. CheckPortfolio receives net liquidation
// and the open-position count only; daily loss and drawdown are passed as
// zero, so those two gates never trip here.
func (t *TradeAPI) checkRiskPolicy(token string, amount, price float64, action domain.OrderAction, opts strategy.OrderOptions) risk.Violations {
	var vs risk.Violations

	equity := t.acct.PortfolioValue(nil)
	if opts.StopLoss != nil && opts.StopLoss.Kind == domain.TriggerPrice {
		vs = append(vs, t.risk.CheckSignal(risk.SignalInput{
			Symbol:        token,
			EntryPrice:    price,
			StopLoss:      opts.StopLoss.Value,
			AccountEquity: equity,
			PositionValue: amount * price,
		})...)
	}

	_, alreadyOpen := t.acct.GetPosition(token)
	openPositions := len(t.acct.AllPositions())
	if !alreadyOpen && action == domain.ActionBuy || (!alreadyOpen && action == domain.ActionSell && opts.IsFutures) {
		openPositions++
	}
	vs = append(vs, t.risk.CheckPortfolio(risk.PortfolioState{
		NetLiquidation: equity,
		OpenPositions:  openPositions,
	})...)

	return vs
}

func (t *TradeAPI) reconcileTriggers(token string) {
	pt, ok := t.pendingTriggers[token]
	if !ok {
		return
	}
	if t.acct.HasPosition(token) {
		t.acct.SetTriggers(token, pt.stopLoss, pt.profitTarget)
		delete(t.pendingTriggers, token)
	}
}

// ReconcilePendingTriggers attaches any stop-loss/profit-target requested
// at order placement time to positions that have since opened via a
// delayed or gradual fill. The scheduler calls this after each processor
// tick, before the position monitor runs.
func (t *TradeAPI) ReconcilePendingTriggers() {
	tokens := make([]string, 0, len(t.pendingTriggers))
	for token := range t.pendingTriggers {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	for _, token := range tokens {
		t.reconcileTriggers(token)
	}
}

// GetOrderStatus reads an order by ID from the book.
func (t *TradeAPI) GetOrderStatus(orderID string) (domain.SimulatedOrder, bool) {
	return t.book.Get(orderID)
}

// GetOpenOrders returns every pending/open/partial order.
func (t *TradeAPI) GetOpenOrders() []domain.SimulatedOrder {
	return t.book.ActiveOrders()
}

// GetCurrentPrice is an oracle pass-through.
func (t *TradeAPI) GetCurrentPrice(token string) (price, bid, ask float64, ok bool) {
	q, found := t.px.CurrentPrice(token)
	if !found {
		return 0, 0, 0, false
	}
	return q.Price, q.Bid, q.Ask, true
}

// GetPosition returns a copy of token's position, if any.
func (t *TradeAPI) GetPosition(token string) (domain.Position, bool) {
	return t.acct.GetPosition(token)
}

// GetAllPositions returns a defensive copy of every open position.
func (t *TradeAPI) GetAllPositions() map[string]domain.Position {
	return t.acct.AllPositions()
}

// ClosePosition issues a market order closing token's position in full.
// A second call with no position returns {success: false, error: "No
// position"}.
func (t *TradeAPI) ClosePosition(token string) strategy.TradeResult {
	pos, ok := t.acct.GetPosition(token)
	if !ok {
		return strategy.TradeResult{Success: false, Error: "No position"}
	}
	amount := pos.Amount
	if amount < 0 {
		amount = -amount
	}
	opts := strategy.OrderOptions{OrderType: domain.OrderMarket, Leverage: pos.Leverage, IsFutures: true}
	if pos.IsShort() {
		return t.Buy(token, amount, opts)
	}
	return t.Sell(token, amount, opts)
}

// GetAvailableBalance returns the available (uncommitted) balance of token.
func (t *TradeAPI) GetAvailableBalance(token string) float64 {
	return t.acct.AvailableBalance(token)
}

// GetWallet returns a defensive copy of every token balance.
func (t *TradeAPI) GetWallet() map[string]float64 {
	return t.acct.Wallet().Snapshot()
}

// GetPortfolio returns a combined wallet + positions snapshot.
func (t *TradeAPI) GetPortfolio() strategy.Portfolio {
	return strategy.Portfolio{
		Wallet:    t.acct.Wallet().Snapshot(),
		Positions: t.acct.AllPositions(),
	}
}

// CanTrade reports whether token/segment is tradable under the current
// exchange settings.
func (t *TradeAPI) CanTrade(token string, isFutures bool) bool {
	if token == t.acct.BaseToken() {
		return false
	}
	settings := t.acct.Settings()
	if isFutures {
		return settings.FuturesEnabled
	}
	return settings.SpotEnabled
}
