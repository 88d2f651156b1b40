package domain

import "github.com/google/uuid"

// OrderAction is the side of an order.
type OrderAction string

const (
	ActionBuy  OrderAction = "buy"
	ActionSell OrderAction = "sell"
)

// OrderType distinguishes market from limit orders.
type OrderType string

const (
	OrderMarket OrderType = "market"
	OrderLimit  OrderType = "limit"
)

// OrderStatus is the order's position in the lifecycle state machine.
// Terminal states (Filled, Cancelled, Rejected) are never mutated again
// once reached.
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusOpen      OrderStatus = "open"
	StatusPartial   OrderStatus = "partial"
	StatusFilled    OrderStatus = "filled"
	StatusCancelled OrderStatus = "cancelled"
	StatusRejected  OrderStatus = "rejected"
)

// Terminal reports whether status admits no further transitions.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusRejected:
		return true
	default:
		return false
	}
}

// Zero-test tolerance used throughout the engine for money and quantity
// comparisons.
const Epsilon = 1e-7

// SimulatedOrder is the Order Book's owned record. Other components hold
// only its ID; all mutation goes through orderbook.Update.
type SimulatedOrder struct {
	ID        uuid.UUID   `json:"id"`
	Action    OrderAction `json:"action"`
	Token     string      `json:"token"`
	BaseToken string      `json:"baseToken"`

	RequestedAmount float64 `json:"requestedAmount"`
	FilledAmount    float64 `json:"filledAmount"`
	RemainingAmount float64 `json:"remainingAmount"`

	OrderType      OrderType `json:"orderType"`
	RequestedPrice float64   `json:"requestedPrice,omitempty"`
	ExecutionPrice float64   `json:"executionPrice,omitempty"`

	Leverage  int  `json:"leverage"`
	IsFutures bool `json:"isFutures"`

	Status OrderStatus `json:"status"`

	CreatedAt         int64  `json:"createdAt"`
	LastUpdatedAt     int64  `json:"lastUpdatedAt"`
	ScheduledFillTime *int64 `json:"scheduledFillTime,omitempty"`

	TotalCost    float64 `json:"totalCost"`
	FillProgress float64 `json:"fillProgress"`

	// CommittedCapital is the base-token amount actually reserved for this
	// order at creation time (the return value of accountant.CommitBuy or
	// CommitSell; zero for a spot sell, whose reservation is in token
	// units, and for a futures sell that only closes an existing long).
	// Fills and cancellation release this amount proportionally to
	// RequestedAmount rather than recomputing RequiredCapital at the fill
	// price: commit and fill prices drift apart (volatility, slippage,
	// limit orders), and releasing a recomputed figure would leak phantom
	// commitments or eat other orders' reservations.
	CommittedCapital float64 `json:"committedCapital,omitempty"`

	RejectReason string `json:"rejectReason,omitempty"`
	CancelReason string `json:"cancelReason,omitempty"`
}

// FillProgressOf computes filled/requested, guarding the zero-requested case.
func FillProgressOf(filled, requested float64) float64 {
	if requested <= 0 {
		return 0
	}
	return filled / requested
}

// ApplyFill returns the order after absorbing a fill of delta units at
// price p, per the commutative fill-update rule:
//
//	filled' = filled + delta
//	cost'   = cost + delta*p
//	execPrice' = cost'/filled'
//	remaining' = max(0, requested - filled')
//	status' = filled if remaining' < epsilon else partial
func ApplyFill(o SimulatedOrder, delta, price float64, now int64) SimulatedOrder {
	o.FilledAmount += delta
	o.TotalCost += delta * price
	if o.FilledAmount > 0 {
		o.ExecutionPrice = o.TotalCost / o.FilledAmount
	}
	o.RemainingAmount = o.RequestedAmount - o.FilledAmount
	if o.RemainingAmount < 0 {
		o.RemainingAmount = 0
	}
	o.FillProgress = FillProgressOf(o.FilledAmount, o.RequestedAmount)
	if o.RemainingAmount < Epsilon {
		o.Status = StatusFilled
	} else {
		o.Status = StatusPartial
	}
	o.LastUpdatedAt = now
	return o
}
