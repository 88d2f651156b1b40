package observability

import (
	"encoding/json"
	"strings"
)

const redactedValue = "[REDACTED]"

// RedactValue walks a value that is about to be logged and replaces any
// field under a sensitive key with redactedValue. It is applied to the
// "input"/"payload" fields LogEvent receives, so an order payload or a
// loaded risk policy can be logged in full without leaking broker
// credentials or account identifiers into run output.
func RedactValue(value any) any {
	if value == nil {
		return nil
	}
	switch typed := value.(type) {
	case map[string]any:
		return redactMap(typed)
	case []any:
		return redactSlice(typed)
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64,
		json.Number:
		return typed
	default:
		// Structs and other concrete types get redacted by round-tripping
		// through JSON into a map, so a caller can pass a domain.Candle or
		// an order struct directly instead of pre-flattening it.
		if decoded, ok := decodeToInterface(value); ok {
			return RedactValue(decoded)
		}
		return value
	}
}

func redactMap(input map[string]any) map[string]any {
	out := make(map[string]any, len(input))
	for key, value := range input {
		if isSensitiveKey(key) {
			out[key] = redactedValue
			continue
		}
		switch typed := value.(type) {
		case map[string]any:
			out[key] = redactMap(typed)
		case []any:
			out[key] = redactSlice(typed)
		default:
			out[key] = RedactValue(typed)
		}
	}
	return out
}

func redactSlice(input []any) []any {
	out := make([]any, len(input))
	for i, value := range input {
		out[i] = RedactValue(value)
	}
	return out
}

func decodeToInterface(value any) (any, bool) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, false
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, false
	}
	return decoded, true
}

// isSensitiveKey names the fields this engine's order/account/risk-policy
// payloads use for anything that shouldn't appear in run logs verbatim.
func isSensitiveKey(key string) bool {
	if key == "" {
		return false
	}
	normalized := strings.ToLower(strings.TrimSpace(key))
	switch normalized {
	case "order_payload", "order_request", "raw_order":
		return true
	case "account_id", "accountid", "account-id", "acct_id":
		return true
	}
	switch {
	case strings.Contains(normalized, "password"):
		return true
	case strings.Contains(normalized, "secret"):
		return true
	case strings.Contains(normalized, "token"):
		return true
	case strings.Contains(normalized, "api_key"), strings.Contains(normalized, "apikey"):
		return true
	case strings.Contains(normalized, "credential"):
		return true
	case strings.Contains(normalized, "broker") && strings.Contains(normalized, "key"):
		return true
	}
	return false
}
