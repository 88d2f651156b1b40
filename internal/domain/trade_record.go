package domain

import "github.com/google/uuid"

// Segment distinguishes a spot trade from a futures trade.
type Segment string

const (
	SegmentSpot    Segment = "spot"
	SegmentFutures Segment = "futures"
)

// TradeRecord is the external, wire-level projection of a filled order.
// It is what Result.Trades carries to the caller; the richer per-trade
// bookkeeping row used to build the report lives in the report package.
type TradeRecord struct {
	ID              uuid.UUID   `json:"id"`
	Timestamp       int64       `json:"timestamp"`
	Action          OrderAction `json:"action"`
	Token           string      `json:"token"`
	RequestedAmount float64     `json:"requestedAmount"`
	FilledAmount    float64     `json:"filledAmount"`
	RequestedPrice  float64     `json:"requestedPrice,omitempty"`
	ExecutionPrice  float64     `json:"executionPrice"`
	Leverage        int         `json:"leverage"`
	IsFutures       bool        `json:"isFutures"`
	Slippage        float64     `json:"slippage,omitempty"`
}

// TradeRecordFromOrder projects a filled SimulatedOrder into its external TradeRecord
// form. requestedPrice is 0 for market orders that never carried one.
func TradeRecordFromOrder(o SimulatedOrder, fillTimestamp int64, slippage float64) TradeRecord {
	return TradeRecord{
		ID:              o.ID,
		Timestamp:       fillTimestamp,
		Action:          o.Action,
		Token:           o.Token,
		RequestedAmount: o.RequestedAmount,
		FilledAmount:    o.FilledAmount,
		RequestedPrice:  o.RequestedPrice,
		ExecutionPrice:  o.ExecutionPrice,
		Leverage:        o.Leverage,
		IsFutures:       o.IsFutures,
		Slippage:        slippage,
	}
}
