// Package accountant is the single source of truth for money: it owns the
// Wallet and the per-symbol Position map, validates trades before they are
// placed, reserves and releases commitments, executes fills against spot
// and cross-margined futures balances, and evaluates stop-loss /
// profit-target triggers. All numeric comparisons use
// domain.Epsilon for zero-tests.
package accountant

import (
	"sort"

	"backtestsim/internal/domain"
)

// Accountant is not safe for concurrent use; the scheduler serializes all
// access.
type Accountant struct {
	wallet    *domain.Wallet
	positions map[string]domain.Position
	settings  domain.ExchangeSettings
	baseToken string
}

// New constructs an Accountant from a validated TradingConfig.
func New(cfg domain.TradingConfig) *Accountant {
	return &Accountant{
		wallet:    domain.NewWallet(cfg.BaseToken, cfg.WalletBalance),
		positions: make(map[string]domain.Position),
		settings:  cfg.ExchangeSettings,
		baseToken: cfg.BaseToken,
	}
}

// BaseToken returns the accounting currency token.
func (a *Accountant) BaseToken() string { return a.baseToken }

// Settings returns the configured per-segment trading toggles and
// leverage allow-lists.
func (a *Accountant) Settings() domain.ExchangeSettings { return a.settings }

// Wallet exposes the underlying wallet for components (processor,
// facade) that need direct read/commit access within the same
// single-threaded critical section. Strategy-facing reads must go
// through the facade's defensive-copy accessors instead.
func (a *Accountant) Wallet() *domain.Wallet { return a.wallet }

// AvailableBalance returns the available (uncommitted) balance of token.
func (a *Accountant) AvailableBalance(token string) float64 {
	return a.wallet.Available(token)
}

// RequiredCapital computes the capital a buy of amount at price requires:
// the full notional for spot, margin for futures.
func RequiredCapital(amount, price float64, leverage int, isFutures bool) float64 {
	if isFutures {
		return amount * price / float64(leverage)
	}
	return amount * price
}

// CanBuy validates a prospective buy order.
func (a *Accountant) CanBuy(token string, amount, price float64, leverage int, isFutures bool) *domain.EngineError {
	if token == a.baseToken {
		return domain.NewPreTradeValidationError("cannot trade base token %q", token)
	}
	if isFutures && !a.settings.FuturesEnabled {
		return domain.NewPreTradeValidationError("futures trading is disabled")
	}
	if !isFutures && !a.settings.SpotEnabled {
		return domain.NewPreTradeValidationError("spot trading is disabled")
	}
	if !domain.LeverageAllowed(a.settings, leverage, isFutures) {
		return domain.NewPreTradeValidationError("leverage %d not allowed for this segment", leverage)
	}
	required := RequiredCapital(amount, price, leverage, isFutures)
	if a.wallet.Available(a.baseToken) < required-domain.Epsilon {
		return domain.NewPreTradeValidationError("insufficient %s balance: need %.8f, have %.8f", a.baseToken, required, a.wallet.Available(a.baseToken))
	}
	return nil
}

// CanSell validates a prospective sell order. Futures margin sufficiency
// for a new or extending short is deferred to CommitSell.
func (a *Accountant) CanSell(token string, amount float64, isFutures bool) *domain.EngineError {
	if token == a.baseToken {
		return domain.NewPreTradeValidationError("cannot trade base token %q", token)
	}
	if !isFutures {
		if a.wallet.Available(token) < amount-domain.Epsilon {
			return domain.NewPreTradeValidationError("insufficient %s balance: need %.8f, have %.8f", token, amount, a.wallet.Available(token))
		}
		return nil
	}
	if pos, ok := a.positions[token]; ok && pos.IsLong() {
		if amount > pos.Amount+domain.Epsilon {
			return domain.NewPreTradeValidationError("cannot sell %.8f %s: only %.8f in position", amount, token, pos.Amount)
		}
	}
	return nil
}

// CommitBuy reserves the capital a buy order requires at its placement
// price and returns the base-token amount committed, so the caller can
// record it on the order and release exactly that reservation later.
// Fill prices drift from placement prices (volatility, slippage, limit
// orders filling off the oracle), so releasing a recomputed
// RequiredCapital at fill time would release the wrong amount.
func (a *Accountant) CommitBuy(amount, price float64, leverage int, isFutures bool) float64 {
	committed := RequiredCapital(amount, price, leverage, isFutures)
	a.wallet.Commit(a.baseToken, committed)
	return committed
}

// CommitSell reserves the capital a sell order requires: the token
// quantity for spot, margin for a futures open/extend, and nothing for a
// futures close (margin already sits in the position being closed). It
// returns the base-token amount actually committed (0 for spot, where the
// reservation is in token units instead) so the caller can record it on
// the order and release exactly that amount later, rather than
// recomputing a commitment from position state that will have moved on.
func (a *Accountant) CommitSell(token string, amount, price float64, leverage int, isFutures bool) float64 {
	if !isFutures {
		a.wallet.Commit(token, amount)
		return 0
	}
	pos, hasLong := a.positions[token]
	if hasLong && pos.IsLong() {
		closing := amount
		if closing > pos.Amount {
			closing = pos.Amount
		}
		residual := amount - closing
		if residual > domain.Epsilon {
			committed := residual * price / float64(leverage)
			a.wallet.Commit(a.baseToken, committed)
			return committed
		}
		return 0
	}
	committed := amount * price / float64(leverage)
	a.wallet.Commit(a.baseToken, committed)
	return committed
}

// Release reverses a commitment made by CommitBuy/CommitSell, on order
// cancellation, rejection, or proportionally on a partial fill.
func (a *Accountant) Release(token string, amount float64) {
	a.wallet.Release(token, amount)
}

// ExecuteBuy applies a buy fill of amount at price. Returns the realized
// PnL from any short position closed by this fill (0 for spot or when no
// short was closed). Executes never touch commitments: the caller
// releases the order's recorded reservation proportionally before
// executing, since only the order knows what was actually committed.
func (a *Accountant) ExecuteBuy(token string, amount, price float64, leverage int, isFutures bool, now int64) float64 {
	if !isFutures {
		a.wallet.Debit(a.baseToken, amount*price)
		a.wallet.Credit(token, amount)
		return 0
	}
	return a.executeFuturesBuy(token, amount, price, leverage, now)
}

// ExecuteSell applies a sell fill of amount at price. Returns the
// realized PnL from any long position closed by this fill (0 for spot or
// when no long was closed). Like ExecuteBuy, it leaves commitment
// release to the caller.
func (a *Accountant) ExecuteSell(token string, amount, price float64, leverage int, isFutures bool, now int64) float64 {
	if !isFutures {
		a.wallet.Debit(token, amount)
		a.wallet.Credit(a.baseToken, amount*price)
		return 0
	}
	return a.executeFuturesSell(token, amount, price, leverage, now)
}

func (a *Accountant) executeFuturesBuy(token string, amount, price float64, leverage int, now int64) float64 {
	pos, exists := a.positions[token]
	if exists && pos.IsShort() {
		short := -pos.Amount
		closed := amount
		if closed > short {
			closed = short
		}
		realizedPnL := closed * (pos.EntryPrice - price)
		marginReturned := closed * pos.EntryPrice / float64(pos.Leverage)
		a.wallet.Credit(a.baseToken, marginReturned+realizedPnL)

		residualShort := short - closed
		residualBuy := amount - closed
		if residualShort > domain.Epsilon {
			pos.Amount = -residualShort
			pos.MarginUsed = residualShort * pos.EntryPrice / float64(pos.Leverage)
			a.positions[token] = pos
		} else {
			delete(a.positions, token)
		}
		if residualBuy > domain.Epsilon {
			margin := residualBuy * price / float64(leverage)
			a.wallet.Debit(a.baseToken, margin)
			newPos, hasResidual := a.positions[token]
			if hasResidual {
				newPos.Amount += residualBuy
				newPos.MarginUsed += margin
				a.positions[token] = newPos
			} else {
				a.positions[token] = domain.Position{
					Token: token, Amount: residualBuy, EntryPrice: price,
					Leverage: leverage, MarginUsed: margin, CreatedAt: now,
				}
			}
		}
		return realizedPnL
	}

	if exists && pos.IsLong() {
		newAmount := pos.Amount + amount
		pos.EntryPrice = (pos.Amount*pos.EntryPrice + amount*price) / newAmount
		pos.Amount = newAmount
		margin := amount * price / float64(leverage)
		pos.MarginUsed += margin
		a.wallet.Debit(a.baseToken, margin)
		a.positions[token] = pos
		return 0
	}

	margin := amount * price / float64(leverage)
	a.wallet.Debit(a.baseToken, margin)
	a.positions[token] = domain.Position{
		Token: token, Amount: amount, EntryPrice: price,
		Leverage: leverage, MarginUsed: margin, CreatedAt: now,
	}
	return 0
}

func (a *Accountant) executeFuturesSell(token string, amount, price float64, leverage int, now int64) float64 {
	pos, exists := a.positions[token]
	if exists && pos.IsLong() {
		closed := amount
		if closed > pos.Amount {
			closed = pos.Amount
		}
		realizedPnL := closed * (price - pos.EntryPrice)
		marginReturned := closed * pos.EntryPrice / float64(pos.Leverage)
		a.wallet.Credit(a.baseToken, marginReturned+realizedPnL)

		residualLong := pos.Amount - closed
		residualSell := amount - closed
		if residualLong > domain.Epsilon {
			pos.Amount = residualLong
			pos.MarginUsed = residualLong * pos.EntryPrice / float64(pos.Leverage)
			a.positions[token] = pos
		} else {
			delete(a.positions, token)
		}
		if residualSell > domain.Epsilon {
			margin := residualSell * price / float64(leverage)
			a.wallet.Debit(a.baseToken, margin)
			newPos, hasResidual := a.positions[token]
			if hasResidual {
				newPos.Amount -= residualSell
				newPos.MarginUsed += margin
				a.positions[token] = newPos
			} else {
				a.positions[token] = domain.Position{
					Token: token, Amount: -residualSell, EntryPrice: price,
					Leverage: leverage, MarginUsed: margin, CreatedAt: now,
				}
			}
		}
		return realizedPnL
	}

	if exists && pos.IsShort() {
		existingShort := -pos.Amount
		newShort := existingShort + amount
		pos.EntryPrice = (existingShort*pos.EntryPrice + amount*price) / newShort
		pos.Amount = -newShort
		margin := amount * price / float64(leverage)
		pos.MarginUsed += margin
		a.wallet.Debit(a.baseToken, margin)
		a.positions[token] = pos
		return 0
	}

	margin := amount * price / float64(leverage)
	a.wallet.Debit(a.baseToken, margin)
	a.positions[token] = domain.Position{
		Token: token, Amount: -amount, EntryPrice: price,
		Leverage: leverage, MarginUsed: margin, CreatedAt: now,
	}
	return 0
}

// SetTriggers attaches stop-loss/profit-target configs to an existing
// position, as requested at order-placement time.
func (a *Accountant) SetTriggers(token string, stopLoss, profitTarget *domain.TriggerConfig) {
	pos, ok := a.positions[token]
	if !ok {
		return
	}
	if stopLoss != nil {
		pos.StopLoss = stopLoss
	}
	if profitTarget != nil {
		pos.ProfitTarget = profitTarget
	}
	a.positions[token] = pos
}

// CheckPositionTriggers evaluates the stop-loss and profit-target
// thresholds for token's position against currentPrice.
// Both booleans may be true in the same call; callers must apply the
// stop-loss-takes-precedence rule themselves.
func (a *Accountant) CheckPositionTriggers(token string, currentPrice float64) (stopLossTriggered, profitTargetTriggered bool) {
	pos, ok := a.positions[token]
	if !ok {
		return false, false
	}
	if pos.StopLoss != nil {
		stopLossTriggered = triggerHit(pos, *pos.StopLoss, currentPrice, true)
	}
	if pos.ProfitTarget != nil {
		profitTargetTriggered = triggerHit(pos, *pos.ProfitTarget, currentPrice, false)
	}
	return
}

// triggerHit evaluates a single trigger for pos against currentPrice.
// isStopLoss selects the stop-loss inequality; profit-target is its
// mirror. Percentage triggers are interpreted relative to entryPrice and
// the sign of amount; price triggers compare the absolute value directly.
func triggerHit(pos domain.Position, trigger domain.TriggerConfig, currentPrice float64, isStopLoss bool) bool {
	pct := trigger.Kind == domain.TriggerPercentage

	if pos.IsLong() {
		if isStopLoss {
			threshold := trigger.Value
			if pct {
				threshold = pos.EntryPrice * (1 - trigger.Value/100)
			}
			return currentPrice <= threshold
		}
		threshold := trigger.Value
		if pct {
			threshold = pos.EntryPrice * (1 + trigger.Value/100)
		}
		return currentPrice >= threshold
	}

	// Short position: inequalities mirror the long case.
	if isStopLoss {
		threshold := trigger.Value
		if pct {
			threshold = pos.EntryPrice * (1 + trigger.Value/100)
		}
		return currentPrice >= threshold
	}
	threshold := trigger.Value
	if pct {
		threshold = pos.EntryPrice * (1 - trigger.Value/100)
	}
	return currentPrice <= threshold
}

// GetPosition returns a copy of token's position, if any.
func (a *Accountant) GetPosition(token string) (domain.Position, bool) {
	pos, ok := a.positions[token]
	return pos, ok
}

// PositionPtr returns a pointer to a copy of token's position, or nil if
// none exists. Used by report bookkeeping, where a nil before/after
// snapshot is the natural "no position" representation.
func (a *Accountant) PositionPtr(token string) *domain.Position {
	pos, ok := a.positions[token]
	if !ok {
		return nil
	}
	return &pos
}

// AllPositions returns a defensive copy of every open position, keyed by
// token.
func (a *Accountant) AllPositions() map[string]domain.Position {
	out := make(map[string]domain.Position, len(a.positions))
	for token, pos := range a.positions {
		out[token] = pos
	}
	return out
}

// HasPosition reports whether token currently has an open position.
func (a *Accountant) HasPosition(token string) bool {
	_, ok := a.positions[token]
	return ok
}

// PositionTokens returns every token with an open position, in a fixed
// lexical order (see sortedTokens).
func (a *Accountant) PositionTokens() []string {
	return a.sortedTokens()
}

// LiquidateAll closes every remaining position at its symbol's
// last-known price, crediting baseToken with marginUsed plus unrealized
// PnL and dropping the position. A position whose symbol has no known price is skipped
// and its token returned in the warnings slice.
func (a *Accountant) LiquidateAll(lastPrices map[string]float64) (totalCredited float64, warnings []string) {
	for _, token := range a.sortedTokens() {
		pos := a.positions[token]
		price, ok := lastPrices[token]
		if !ok {
			warnings = append(warnings, token)
			continue
		}
		amount := pos.MarginUsed + (price-pos.EntryPrice)*pos.Amount
		a.wallet.Credit(a.baseToken, amount)
		totalCredited += amount
		delete(a.positions, token)
	}
	return totalCredited, warnings
}

// sortedTokens returns open-position tokens in lexical order. Iterating
// positions in a fixed order (rather than Go's randomized map order) keeps
// summations and generated event orderings bit-identical across runs of the
// same (feed, config, seed, strategy).
func (a *Accountant) sortedTokens() []string {
	tokens := make([]string, 0, len(a.positions))
	for token := range a.positions {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	return tokens
}

// PortfolioValue is the liquidated balance: the wallet's base-token
// balance, plus every open position's margin and unrealized PnL at the
// given mark prices, plus every spot holding valued at its mark price.
// Spot tokens with no mark price are skipped, the same treatment
// LiquidateAll gives a position with no known price. Used by the report
// generator's running chain and by the scheduler's initial/final value.
func (a *Accountant) PortfolioValue(markPrices map[string]float64) float64 {
	value := a.wallet.Balance(a.baseToken)
	for _, token := range a.sortedTokens() {
		pos := a.positions[token]
		price, ok := markPrices[token]
		if !ok {
			price = pos.EntryPrice
		}
		value += pos.MarginUsed + pos.UnrealizedPnL(price)
	}
	for _, token := range a.sortedWalletTokens() {
		if token == a.baseToken {
			continue
		}
		balance := a.wallet.Balance(token)
		if balance < domain.Epsilon {
			continue
		}
		if price, ok := markPrices[token]; ok {
			value += balance * price
		}
	}
	return value
}

// sortedWalletTokens returns every wallet token in lexical order, for the
// same bit-identical-summation reason as sortedTokens.
func (a *Accountant) sortedWalletTokens() []string {
	tokens := make([]string, 0, len(a.wallet.Balances))
	for token := range a.wallet.Balances {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	return tokens
}
