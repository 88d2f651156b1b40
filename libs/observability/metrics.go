package observability

import (
	"context"
	"io"
)

// The Record* helpers below feed two sinks at once: a structured JSON log
// line (LogEvent) and the package's default Prometheus registry, so a run
// is observable both as an event stream and as an aggregate scrape.
// cmd/backtester dumps the registry via WriteMetrics after a run.
var (
	defaultRegistry = NewRegistry()
	defaultMetrics  = NewBacktestMetrics(defaultRegistry)
)

// DefaultRegistry returns the registry the Record* helpers write to.
func DefaultRegistry() *Registry { return defaultRegistry }

// WriteMetrics writes the default registry in Prometheus text format.
func WriteMetrics(w io.Writer) { defaultRegistry.WriteText(w) }

func segmentLabel(isFutures bool) string {
	if isFutures {
		return "futures"
	}
	return "spot"
}

// RecordOrderPlaced logs a placed order, successful or not, and counts it
// by action and segment; rejections get their own counter.
func RecordOrderPlaced(ctx context.Context, token, action string, isFutures bool, accepted bool) {
	segment := segmentLabel(isFutures)
	defaultMetrics.OrdersPlaced.Inc("action", action, "segment", segment)
	if !accepted {
		defaultMetrics.OrderRejections.Inc("segment", segment)
	}
	LogEvent(ctx, "info", "metric", map[string]any{
		"name":     "order_placed",
		"token":    token,
		"action":   action,
		"futures":  isFutures,
		"accepted": accepted,
	})
}

// RecordFill logs a completed fill and observes its realized slippage (in
// basis points) and the simulated-clock delay between order creation and
// the fill.
func RecordFill(ctx context.Context, token string, filledAmount, executionPrice, slippage, fillDelayMs float64) {
	defaultMetrics.SlippageBps.Observe(slippage*10000, "token", token)
	defaultMetrics.FillDelayMs.Observe(fillDelayMs, "token", token)
	LogEvent(ctx, "info", "metric", map[string]any{
		"name":            "order_filled",
		"token":           token,
		"filled_amount":   filledAmount,
		"execution_price": executionPrice,
		"slippage":        slippage,
		"fill_delay_ms":   fillDelayMs,
	})
}

// RecordTriggerEvent logs a stop-loss/profit-target trigger firing and
// counts it by kind.
func RecordTriggerEvent(ctx context.Context, token, kind string, price float64) {
	defaultMetrics.TriggerEvents.Inc("type", kind)
	LogEvent(ctx, "info", "metric", map[string]any{
		"name":  "position_trigger",
		"token": token,
		"kind":  kind,
		"price": price,
	})
}

// RecordPortfolioState sets the mark-to-market equity gauge and the
// open-position count. The scheduler calls this once per candle, after
// the fill and trigger passes.
func RecordPortfolioState(ctx context.Context, equity float64, openPositions int) {
	defaultMetrics.Equity.Set(equity)
	defaultMetrics.ActivePositions.Set(float64(openPositions))
	LogEvent(ctx, "debug", "metric", map[string]any{
		"name":           "portfolio_state",
		"equity":         equity,
		"open_positions": openPositions,
	})
}

// RecordRunComplete logs the summary of a finished backtest run.
func RecordRunComplete(ctx context.Context, trades int, pnl, pnlPercentage float64) {
	LogEvent(ctx, "info", "metric", map[string]any{
		"name":           "run_complete",
		"trades":         trades,
		"pnl":            pnl,
		"pnl_percentage": pnlPercentage,
	})
}
