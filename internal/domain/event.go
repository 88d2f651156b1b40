package domain

// TriggerEventType discriminates which threshold fired.
type TriggerEventType string

const (
	TriggerStopLoss     TriggerEventType = "stop_loss"
	TriggerProfitTarget TriggerEventType = "profit_target"
)

// PositionTriggerEvent is emitted by the Position Monitor when a stop-loss
// or profit-target threshold is crossed. Stop-loss always
// takes precedence over profit-target within a single tick, so at most one
// event is ever emitted per position per tick. Triggered events are
// retained in the monitor's audit list for the lifetime of the run.
type PositionTriggerEvent struct {
	Token      string           `json:"token"`
	Type       TriggerEventType `json:"type"`
	Timestamp  int64            `json:"timestamp"`
	EntryPrice float64          `json:"entryPrice"`
	Price      float64          `json:"price"`
	Amount     float64          `json:"amount"`
}
