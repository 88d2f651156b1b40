// Package strategy defines the capability-set boundary between the engine
// and user-supplied trading strategies. A Strategy receives a TradeAPI
// handle by dependency injection and never reaches engine state any
// other way.
package strategy

import (
	"context"

	"backtestsim/internal/domain"
)

// Strategy is the contract every backtest strategy implements. Callback
// errors are caught at each boundary by the scheduler and logged; one bad
// tick does not tear down the run.
type Strategy interface {
	// Initialize is called once before the first candle, with the trading
	// configuration the run was started with.
	Initialize(ctx context.Context, config domain.TradingConfig, api TradeAPI) error
	// Analyze is invoked once per candle, strictly after that candle's
	// fills and trigger checks have been processed.
	Analyze(ctx context.Context, candle domain.Candle, api TradeAPI) error
	// CloseSession is called once after the last candle, before final
	// liquidation.
	CloseSession(ctx context.Context, api TradeAPI) error
}

// OrderOptions configures a buy/sell call. OrderType defaults to market
// when zero-valued.
type OrderOptions struct {
	OrderType      domain.OrderType
	RequestedPrice float64 // required for limit orders
	Leverage       int     // 1 for spot; futures segments validate against the allow-list
	IsFutures      bool
	StopLoss       *domain.TriggerConfig
	ProfitTarget   *domain.TriggerConfig
}

// TradeResult is returned synchronously from buy/sell.
// Validation and runtime failures set Success=false and Error instead of
// returning a Go error, because strategies routinely probe the engine.
type TradeResult struct {
	Success        bool
	Error          string
	OrderID        string
	Status         domain.OrderStatus
	ExecutionPrice float64
	Slippage       float64
}

// Portfolio is the read-only snapshot returned by GetPortfolio.
type Portfolio struct {
	Wallet    map[string]float64
	Positions map[string]domain.Position
}

// TradeAPI is the facade exposed to strategy code. All
// read accessors return defensive copies so a strategy can never mutate
// engine state through them.
type TradeAPI interface {
	Buy(token string, amount float64, opts OrderOptions) TradeResult
	Sell(token string, amount float64, opts OrderOptions) TradeResult

	GetOrderStatus(orderID string) (domain.SimulatedOrder, bool)
	GetOpenOrders() []domain.SimulatedOrder

	GetCurrentPrice(token string) (price, bid, ask float64, ok bool)

	GetPosition(token string) (domain.Position, bool)
	GetAllPositions() map[string]domain.Position
	ClosePosition(token string) TradeResult

	GetAvailableBalance(token string) float64
	GetWallet() map[string]float64
	GetPortfolio() Portfolio

	CanTrade(token string, isFutures bool) bool
}
