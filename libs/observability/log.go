package observability

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"time"
)

var logger = log.New(os.Stdout, "", 0)

// LogEvent writes one structured JSON line to stdout: a timestamp, level,
// event name, whatever RunInfo the context carries, and the caller's
// fields. Sensitive fields under the "input" or "payload" keys are run
// through RedactValue first, so a logged order payload never leaks
// account or credential data into run output.
func LogEvent(ctx context.Context, level string, event string, fields map[string]any) {
	payload := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339),
		"level": level,
		"event": event,
	}

	info := RunInfoFromContext(ctx)
	if info.FlowID != "" {
		payload["flow_id"] = info.FlowID
	}
	if info.RunID != "" {
		payload["run_id"] = info.RunID
	}
	if info.StrategyID != "" {
		payload["strategy_id"] = info.StrategyID
	}
	if info.Symbol != "" {
		payload["symbol"] = info.Symbol
	}

	for key, value := range normalizeFields(fields) {
		payload[key] = value
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		logger.Printf("{\"level\":\"error\",\"event\":\"log_marshal_failed\",\"error\":%q}", err.Error())
		return
	}
	logger.Print(string(raw))
}

// LogPolicyLoad logs the outcome of loading a risk.Policy document, the one
// call cmd/backtester makes before a run starts.
func LogPolicyLoad(ctx context.Context, path string, err error) {
	fields := map[string]any{
		"path":    path,
		"success": err == nil,
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	LogEvent(ctx, "info", "risk_policy_load", fields)
}

// LogCallbackStart logs a strategy callback about to run (initialize,
// analyze, or closeSession), with its input redacted the same way order
// payloads are.
func LogCallbackStart(ctx context.Context, callback string, input any) {
	LogEvent(ctx, "info", "strategy_callback_start", map[string]any{
		"callback": callback,
		"input":    input,
	})
}

// LogCallbackEnd logs a strategy callback's outcome and latency.
func LogCallbackEnd(ctx context.Context, callback string, duration time.Duration, err error) {
	fields := map[string]any{
		"callback":   callback,
		"latency_ms": duration.Milliseconds(),
		"success":    err == nil,
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	LogEvent(ctx, "info", "strategy_callback_end", fields)
}

// normalizeFields redacts sensitive keys and stringifies error values so
// every logged field is JSON-marshalable.
func normalizeFields(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}
	out := make(map[string]any, len(fields))
	for key, value := range fields {
		switch key {
		case "input", "payload":
			out[key] = RedactValue(value)
			continue
		}
		if err, ok := value.(error); ok {
			out[key] = err.Error()
			continue
		}
		out[key] = value
	}
	return out
}
