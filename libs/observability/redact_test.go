package observability

import (
	"reflect"
	"testing"
)

func TestRedactValue_RedactsSensitiveFields(t *testing.T) {
	input := map[string]any{
		"symbol":             "AAPL",
		"broker_credentials": map[string]any{"api_key": "abc"},
		"order_payload": map[string]any{
			"price": 123.45,
		},
		"account_id": "acct-123",
		"nested": map[string]any{
			"password": "secret",
		},
	}

	expected := map[string]any{
		"symbol":             "AAPL",
		"broker_credentials": redactedValue,
		"order_payload":      redactedValue,
		"account_id":         redactedValue,
		"nested": map[string]any{
			"password": redactedValue,
		},
	}

	got := RedactValue(input)
	if !reflect.DeepEqual(got, expected) {
		t.Fatalf("expected %#v, got %#v", expected, got)
	}
}

func TestRedactValue_RedactsSliceValues(t *testing.T) {
	input := []any{
		map[string]any{"token": "secret"},
		map[string]any{"ok": true},
	}

	expected := []any{
		map[string]any{"token": redactedValue},
		map[string]any{"ok": true},
	}

	got := RedactValue(input)
	if !reflect.DeepEqual(got, expected) {
		t.Fatalf("expected %#v, got %#v", expected, got)
	}
}

// orderRequest mimics the shape of a decoded order payload passed straight
// to LogEvent's "input" field without pre-flattening.
type orderRequest struct {
	Symbol       string         `json:"symbol"`
	APIKey       string         `json:"api_key"`
	OrderRequest map[string]any `json:"order_request"`
}

func TestRedactValue_DecodesStructs(t *testing.T) {
	input := orderRequest{
		Symbol: "MSFT",
		APIKey: "secret",
		OrderRequest: map[string]any{
			"price": 200.0,
		},
	}

	got := RedactValue(input)
	asMap, ok := got.(map[string]any)
	if !ok {
		t.Fatalf("expected map output, got %#v", got)
	}
	if asMap["api_key"] != redactedValue {
		t.Fatalf("expected api_key to be redacted")
	}
	if asMap["order_request"] != redactedValue {
		t.Fatalf("expected order_request to be redacted")
	}
}

func TestRedactValue_PreservesNonSensitiveNumbers(t *testing.T) {
	input := map[string]any{
		"max_risk_per_trade": 0.02,
		"max_positions":      10,
		"account_id":         "acct-987",
	}

	got := RedactValue(input).(map[string]any)
	if got["max_risk_per_trade"] != 0.02 {
		t.Errorf("expected max_risk_per_trade to pass through unredacted, got %#v", got["max_risk_per_trade"])
	}
	if got["max_positions"] != 10 {
		t.Errorf("expected max_positions to pass through unredacted, got %#v", got["max_positions"])
	}
	if got["account_id"] != redactedValue {
		t.Errorf("expected account_id to be redacted, got %#v", got["account_id"])
	}
}
