package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestLogEvent_WritesJSON(t *testing.T) {
	var buf bytes.Buffer
	previous := logger.Writer()
	logger.SetOutput(&buf)
	t.Cleanup(func() {
		logger.SetOutput(previous)
	})

	ctx := WithRunInfo(context.Background(), RunInfo{
		RunID:      "run-1",
		StrategyID: "ma_crossover_v1",
		Symbol:     "AAPL",
	})

	LogEvent(ctx, "info", "test_event", map[string]any{
		"input": map[string]any{
			"api_key": "secret",
			"value":   42,
		},
	})

	raw := strings.TrimSpace(buf.String())
	if raw == "" {
		t.Fatal("expected log output")
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if payload["event"] != "test_event" {
		t.Fatalf("expected event test_event, got %#v", payload["event"])
	}
	if payload["level"] != "info" {
		t.Fatalf("expected level info, got %#v", payload["level"])
	}
	if payload["run_id"] != "run-1" || payload["strategy_id"] != "ma_crossover_v1" || payload["symbol"] != "AAPL" {
		t.Fatalf("expected run info fields, got %#v", payload)
	}

	input, ok := payload["input"].(map[string]any)
	if !ok {
		t.Fatalf("expected input field to be object, got %#v", payload["input"])
	}
	if input["api_key"] != redactedValue {
		t.Fatalf("expected api_key to be redacted, got %#v", input["api_key"])
	}
}

func TestLogCallbackStart_RedactsInput(t *testing.T) {
	var buf bytes.Buffer
	previous := logger.Writer()
	logger.SetOutput(&buf)
	t.Cleanup(func() {
		logger.SetOutput(previous)
	})

	LogCallbackStart(context.Background(), "analyze", map[string]any{
		"api_key": "secret",
		"value":   1,
	})

	raw := strings.TrimSpace(buf.String())
	if raw == "" {
		t.Fatal("expected log output")
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}

	input, ok := payload["input"].(map[string]any)
	if !ok {
		t.Fatalf("expected input field to be object, got %#v", payload["input"])
	}
	if input["api_key"] != redactedValue {
		t.Fatalf("expected api_key to be redacted, got %#v", input["api_key"])
	}
}

func TestLogCallbackEnd_ReportsFailure(t *testing.T) {
	var buf bytes.Buffer
	previous := logger.Writer()
	logger.SetOutput(&buf)
	t.Cleanup(func() {
		logger.SetOutput(previous)
	})

	LogCallbackEnd(context.Background(), "initialize", 12*time.Millisecond, errExample)

	raw := strings.TrimSpace(buf.String())
	var payload map[string]any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["success"] != false {
		t.Fatalf("expected success=false, got %#v", payload["success"])
	}
	if payload["latency_ms"].(float64) != 12 {
		t.Fatalf("expected latency_ms=12, got %#v", payload["latency_ms"])
	}
}

func TestLogPolicyLoad_ReportsSuccess(t *testing.T) {
	var buf bytes.Buffer
	previous := logger.Writer()
	logger.SetOutput(&buf)
	t.Cleanup(func() {
		logger.SetOutput(previous)
	})

	LogPolicyLoad(context.Background(), "risk.json", nil)

	raw := strings.TrimSpace(buf.String())
	var payload map[string]any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["event"] != "risk_policy_load" {
		t.Fatalf("expected risk_policy_load event, got %#v", payload["event"])
	}
	if payload["success"] != true {
		t.Fatalf("expected success=true, got %#v", payload["success"])
	}
}

var errExample = exampleError{"callback failed"}

type exampleError struct{ msg string }

func (e exampleError) Error() string { return e.msg }
