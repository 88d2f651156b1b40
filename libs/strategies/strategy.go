// Package strategies holds the technical-indicator strategies that
// internal/strategy/momentum.Adapter delegates to. The adapter rolls a
// per-symbol candle window and computes RSI/MACD/SMA/ATR/Bollinger values
// via markcheno/go-talib before calling Strategy.Analyze — a Strategy here
// never touches raw candles or the order book directly, only the derived
// AnalysisInput.
package strategies

import (
	"context"
	"time"
)

// Strategy turns one candle's worth of indicator values into a trading
// decision. Implementations must be safe to call repeatedly from a single
// goroutine per symbol; internal/strategy/momentum.Adapter keeps one
// rolling window per symbol but shares a single Strategy across all of them.
type Strategy interface {
	// ID is the identifier strategies.Registry keys registrations by, and
	// the value cmd/backtester's -strategy flag selects.
	ID() string

	// Name is a human-readable label for reports and logs.
	Name() string

	// Analyze examines the latest indicator snapshot and returns a signal.
	Analyze(ctx context.Context, input AnalysisInput) (Signal, error)
}

// AnalysisInput is the indicator snapshot a Strategy reasons over, computed
// once per candle by internal/strategy/momentum.Adapter.buildInput.
type AnalysisInput struct {
	Symbol    string
	Price     float64
	Timestamp time.Time

	// Indicator values, computed over the adapter's rolling close/high/low window.
	RSI            float64
	MACD           MACD
	SMA20          float64
	SMA50          float64
	SMA200         float64
	ATR            float64
	BollingerBands BollingerBands

	// Volume confirms (or undercuts) a signal derived from price/indicators alone.
	Volume      int64
	AvgVolume20 int64

	// MarketTrend and SectorTrend are coarse directional labels
	// ("bullish"/"bearish"/"neutral") the adapter derives from the SMA50/
	// SMA200 relationship; a backtest with one symbol sets both to the
	// same value since there is no broader sector series to compare against.
	MarketTrend string
	SectorTrend string
}

// MACD holds the three values talib.Macd returns for the latest candle.
type MACD struct {
	Value     float64
	Signal    float64
	Histogram float64
}

// BollingerBands holds the three bands talib.BBands returns for the latest candle.
type BollingerBands struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// SignalType is the directional decision a Strategy reaches.
type SignalType string

const (
	SignalBuy  SignalType = "buy"
	SignalSell SignalType = "sell"
	SignalHold SignalType = "hold"
)

// Signal is a Strategy's output for one candle. internal/strategy/momentum.Adapter
// translates a non-hold Signal into a TradeAPI.Buy/Sell call, carrying
// StopLoss and the first TakeProfit entry as domain.TriggerConfig values.
type Signal struct {
	Type       SignalType
	Symbol     string
	Timestamp  time.Time
	Confidence float64 // 0.0 to 1.0

	EntryPrice float64
	StopLoss   float64
	TakeProfit []float64 // ordered targets; the adapter only acts on the first

	Reason     string
	Indicators map[string]interface{}
}

// StrategyMetadata describes a registered strategy for reporting and
// strategy-selection purposes; Registry.ListAll exposes it alongside the
// strategy itself.
type StrategyMetadata struct {
	ID          string
	Name        string
	Description string
	EventTypes  []string
	MinRR       float64
	MaxRisk     float64
	Timeframes  []string // "1m", "5m", "1h", "1d"
	Extra       map[string]interface{}
}

// clampConfidence caps a strategy's accumulated confidence score at 1.0.
// Every strategy in this package builds confidence as a base value plus a
// series of additive boosts, so the cap is shared rather than repeated.
func clampConfidence(c float64) float64 {
	if c > 1.0 {
		return 1.0
	}
	return c
}

// trendAligned reports whether a coarse trend label agrees with the
// direction a strategy is about to signal.
func trendAligned(trend string, bullish bool) bool {
	if bullish {
		return trend == "bullish"
	}
	return trend == "bearish"
}

// volumeConfirms reports whether current volume exceeds its 20-period
// average, the shared volume-confirmation check every strategy below uses.
func volumeConfirms(volume, avgVolume20 int64) bool {
	return volume > avgVolume20
}
