package domain

import "fmt"

// ErrorKind discriminates the five error taxonomies the engine produces.
// Everything except FeedError and ConfigError is recovered within the
// engine; those two are fatal to the run.
type ErrorKind string

const (
	KindConfig             ErrorKind = "config"
	KindPreTradeValidation ErrorKind = "pre_trade_validation"
	KindOrderRuntime       ErrorKind = "order_runtime"
	KindStrategy           ErrorKind = "strategy"
	KindFeed               ErrorKind = "feed"
)

// EngineError is the single error type every engine component returns.
// Callers switch on Kind rather than string-matching messages.
type EngineError struct {
	Kind    ErrorKind
	Message string
	// Field optionally names the offending config field or order field.
	Field string
}

func (e *EngineError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func NewConfigError(field, format string, args ...any) *EngineError {
	return &EngineError{Kind: KindConfig, Field: field, Message: fmt.Sprintf(format, args...)}
}

func NewPreTradeValidationError(format string, args ...any) *EngineError {
	return &EngineError{Kind: KindPreTradeValidation, Message: fmt.Sprintf(format, args...)}
}

func NewOrderRuntimeError(format string, args ...any) *EngineError {
	return &EngineError{Kind: KindOrderRuntime, Message: fmt.Sprintf(format, args...)}
}

func NewStrategyError(format string, args ...any) *EngineError {
	return &EngineError{Kind: KindStrategy, Message: fmt.Sprintf(format, args...)}
}

func NewFeedError(format string, args ...any) *EngineError {
	return &EngineError{Kind: KindFeed, Message: fmt.Sprintf(format, args...)}
}

// ConfigErrors collects every validation failure found while checking a
// TradingConfig/SimulationConfig pair, the same aggregate-error shape as
// risk.Violations, so callers see every problem in one pass instead of
// fixing them one at a time.
type ConfigErrors []*EngineError

func (ce ConfigErrors) Error() string {
	if len(ce) == 0 {
		return "no config errors"
	}
	s := fmt.Sprintf("%d config error(s): %s", len(ce), ce[0].Error())
	for _, e := range ce[1:] {
		s += "; " + e.Error()
	}
	return s
}
