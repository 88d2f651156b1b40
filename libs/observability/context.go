package observability

import "context"

type contextKey string

const (
	runIDKey      contextKey = "run_id"
	strategyIDKey contextKey = "strategy_id"
	symbolKey     contextKey = "symbol"
	flowIDKey     contextKey = "flow_id"
)

// RunInfo carries identifiers through a run's context so every LogEvent
// call along the way tags its output the same way, without threading the
// values through every function signature.
//
//   - RunID identifies one invocation of scheduler.Run.
//   - StrategyID is the registered strategies.Strategy the run is driving.
//   - Symbol is set when a log line concerns one ticker specifically.
//   - FlowID spans a single order's lifecycle: signal → risk gate →
//     placement → fill/trigger.
type RunInfo struct {
	RunID      string
	StrategyID string
	Symbol     string
	FlowID     string
}

// WithRunInfo attaches non-empty RunInfo fields to ctx.
func WithRunInfo(ctx context.Context, info RunInfo) context.Context {
	if info.RunID != "" {
		ctx = context.WithValue(ctx, runIDKey, info.RunID)
	}
	if info.StrategyID != "" {
		ctx = context.WithValue(ctx, strategyIDKey, info.StrategyID)
	}
	if info.Symbol != "" {
		ctx = context.WithValue(ctx, symbolKey, info.Symbol)
	}
	if info.FlowID != "" {
		ctx = context.WithValue(ctx, flowIDKey, info.FlowID)
	}
	return ctx
}

// RunInfoFromContext reads back whatever RunInfo fields WithRunInfo attached.
func RunInfoFromContext(ctx context.Context) RunInfo {
	var info RunInfo
	if v, ok := ctx.Value(runIDKey).(string); ok {
		info.RunID = v
	}
	if v, ok := ctx.Value(strategyIDKey).(string); ok {
		info.StrategyID = v
	}
	if v, ok := ctx.Value(symbolKey).(string); ok {
		info.Symbol = v
	}
	if v, ok := ctx.Value(flowIDKey).(string); ok {
		info.FlowID = v
	}
	return info
}

// WithFlowID attaches a flow_id to ctx, scoped to a single order's
// signal-to-fill lifecycle.
func WithFlowID(ctx context.Context, flowID string) context.Context {
	if flowID == "" {
		return ctx
	}
	return context.WithValue(ctx, flowIDKey, flowID)
}

// FlowIDFromContext retrieves the flow_id set by WithFlowID, or "" if none was set.
func FlowIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(flowIDKey).(string); ok {
		return v
	}
	return ""
}
