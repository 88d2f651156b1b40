// Package domain holds the core value types shared across the backtesting
// engine: candles, orders, positions, wallets and the typed configuration
// and error unions that bind them together.
package domain

// Candle is one OHLCV bar for a symbol. It is immutable and consumed once
// per scheduler tick; timestamps are clock milliseconds, never wall time.
type Candle struct {
	Timestamp int64   `json:"timestamp"`
	Symbol    string  `json:"symbol"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}
