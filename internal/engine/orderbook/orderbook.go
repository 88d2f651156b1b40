// Package orderbook owns the set of SimulatedOrder records and the
// order-lifecycle state machine. It is not
// concurrent — all access is serialized by the scheduler's single-threaded
// loop.
package orderbook

import (
	"backtestsim/internal/domain"
)

// Book owns orders by ID plus an insertion-ordered history, so that
// report generation can walk trades in creation order without relying on
// Go's unordered map iteration.
type Book struct {
	orders  map[string]domain.SimulatedOrder
	history []string // order IDs in insertion order
}

// New creates an empty Book.
func New() *Book {
	return &Book{orders: make(map[string]domain.SimulatedOrder)}
}

// Add inserts a newly created order.
func (b *Book) Add(o domain.SimulatedOrder) {
	id := o.ID.String()
	b.orders[id] = o
	b.history = append(b.history, id)
}

// Update replaces the stored order by ID. The caller is responsible for
// only ever transitioning an order forward through its state machine;
// terminal states are never passed back in here by well-behaved callers.
func (b *Book) Update(o domain.SimulatedOrder) {
	b.orders[o.ID.String()] = o
}

// Get retrieves an order by ID.
func (b *Book) Get(id string) (domain.SimulatedOrder, bool) {
	o, ok := b.orders[id]
	return o, ok
}

// ActiveOrders returns every order whose status is pending, open or
// partial, in creation order.
func (b *Book) ActiveOrders() []domain.SimulatedOrder {
	var out []domain.SimulatedOrder
	for _, id := range b.history {
		o := b.orders[id]
		switch o.Status {
		case domain.StatusPending, domain.StatusOpen, domain.StatusPartial:
			out = append(out, o)
		}
	}
	return out
}

// FilledOrders returns every order whose status is filled, in creation
// order.
func (b *Book) FilledOrders() []domain.SimulatedOrder {
	var out []domain.SimulatedOrder
	for _, id := range b.history {
		o := b.orders[id]
		if o.Status == domain.StatusFilled {
			out = append(out, o)
		}
	}
	return out
}

// All returns every order ever added, in creation order.
func (b *Book) All() []domain.SimulatedOrder {
	out := make([]domain.SimulatedOrder, 0, len(b.history))
	for _, id := range b.history {
		out = append(out, b.orders[id])
	}
	return out
}

// TradeRecords projects every filled order into the external TradeRecord
// schema. fillTimestamps and slippages must be keyed by
// order ID — the book itself does not track per-fill slippage, only the
// Order Processor that produced the fill does.
func (b *Book) TradeRecords(fillTimestamps map[string]int64, slippages map[string]float64) []domain.TradeRecord {
	var out []domain.TradeRecord
	for _, o := range b.FilledOrders() {
		id := o.ID.String()
		out = append(out, domain.TradeRecordFromOrder(o, fillTimestamps[id], slippages[id]))
	}
	return out
}
