// Package risk is the backtester's optional portfolio-level risk gate,
// layered on top of the accountant's own pre-trade capital checks
// (internal/engine/accountant.CanBuy/CanSell). Where the accountant only
// asks "can the wallet afford this," an Enforcer additionally asks "should
// this strategy be allowed to place this order at all" — stop distance,
// per-trade risk fraction, open-position count, drawdown halt.
//
// A Policy is loaded once per run (see cmd/backtester's -risk flag) and
// passed read-only to internal/engine/tradeapi.TradeAPI.SetRiskPolicy,
// which runs the checks below on a Buy/Sell once CanBuy/CanSell have passed:
//  1. CheckSignal — stop-distance and per-trade risk fraction, evaluated
//     against the proposed order before it is placed, only when the order
//     carries a fixed-price stop.
//  2. CheckPortfolio — open-position count, daily loss, and drawdown,
//     evaluated against the account's current state.
//
// A Violation carries a machine-readable Code so callers can log, alert, or
// branch on a specific breach kind without string matching the message.
package risk

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"
	"time"
)

// PortfolioConstraints is the "portfolio_constraints" block of a risk
// policy document.
type PortfolioConstraints struct {
	// MaxPositionSize is the maximum notional value for a single position.
	MaxPositionSize float64 `json:"max_position_size"`
	// MaxPositions is the maximum number of open positions at any time.
	MaxPositions int `json:"max_positions"`
	// MaxSectorExposure is the maximum portfolio fraction in one sector (0–1).
	MaxSectorExposure float64 `json:"max_sector_exposure"`
	// MaxCorrelatedExposure is the maximum fraction in correlated positions (0–1).
	MaxCorrelatedExposure float64 `json:"max_correlated_exposure"`
	// MaxPortfolioRisk caps the fraction of net liquidation a single
	// session's losses may consume before the daily-loss gate trips (0–1).
	MaxPortfolioRisk float64 `json:"max_portfolio_risk"`
	// MaxDrawdown is the peak-to-trough drawdown fraction at which trading halts.
	MaxDrawdown float64 `json:"max_drawdown"`
	// MinAccountSize is the minimum net liquidation value required to trade.
	MinAccountSize float64 `json:"min_account_size"`
}

// PositionLimits is the "position_limits" block of a risk policy document.
type PositionLimits struct {
	// MaxRiskPerTrade is the maximum fraction of account equity a single
	// trade's stop may put at risk (0–1).
	MaxRiskPerTrade float64 `json:"max_risk_per_trade"`
	// MinRiskPerTrade is the minimum fraction — trades below this are
	// flagged as too small to be worth the commission/slippage drag.
	MinRiskPerTrade float64 `json:"min_risk_per_trade"`
	// MaxLeverage is the maximum gross leverage ratio this policy allows,
	// independent of the exchange's own leverage allow-list.
	MaxLeverage float64 `json:"max_leverage"`
	// MinStopDistance is the minimum stop-loss distance as a fraction of entry price.
	MinStopDistance float64 `json:"min_stop_distance"`
	// MaxStopDistance is the maximum stop-loss distance as a fraction of entry price.
	MaxStopDistance float64 `json:"max_stop_distance"`
}

// Policy is an immutable, loaded risk policy. It is constructed once per
// backtest run and passed read-only through the engine.
type Policy struct {
	Portfolio   PortfolioConstraints `json:"portfolio_constraints"`
	Position    PositionLimits       `json:"position_limits"`
	SizingModel string               `json:"sizing_model"`
	// LoadedFrom is the file path the policy was read from (empty for defaults).
	LoadedFrom string `json:"-"`
	// LoadedAt is the wall-clock time the policy was loaded. This is the
	// one legitimate wall-clock read in the whole repo: a policy's load
	// time is audit metadata about the run, not a value the simulation's
	// deterministic decision path ever consults.
	LoadedAt time.Time `json:"-"`
	// Version is a short fingerprint of the loaded JSON, for audit logs.
	Version string `json:"-"`
}

// LoadPolicy reads a JSON risk-policy document and returns a validated
// Policy. An empty path or a missing file falls back to DefaultPolicy, so
// a backtest can run with a conservative gate even when the caller didn't
// supply one (cmd/backtester's -risk flag is optional).
func LoadPolicy(path string) (*Policy, error) {
	if path == "" {
		return DefaultPolicy(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultPolicy(), nil
		}
		return nil, fmt.Errorf("risk: read policy file %q: %w", path, err)
	}

	var p Policy
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("risk: parse policy file %q: %w", path, err)
	}
	if err := p.validate(); err != nil {
		return nil, fmt.Errorf("risk: invalid policy in %q: %w", path, err)
	}

	p.LoadedFrom = path
	p.LoadedAt = time.Now().UTC()
	p.Version = fingerprint(data)
	return &p, nil
}

// DefaultPolicy returns a conservative policy used when no risk-policy
// document is configured for a run.
func DefaultPolicy() *Policy {
	p := &Policy{
		Portfolio: PortfolioConstraints{
			MaxPositionSize:       50_000,
			MaxPositions:          10,
			MaxSectorExposure:     0.30,
			MaxCorrelatedExposure: 0.40,
			MaxPortfolioRisk:      0.15,
			MaxDrawdown:           0.20,
			MinAccountSize:        10_000,
		},
		Position: PositionLimits{
			MaxRiskPerTrade: 0.02,
			MinRiskPerTrade: 0.005,
			MaxLeverage:     2.0,
			MinStopDistance: 0.01,
			MaxStopDistance: 0.10,
		},
		SizingModel: "fixed_fractional",
		LoadedAt:    time.Now().UTC(),
	}
	b, _ := json.Marshal(p)
	p.Version = fingerprint(b)
	return p
}

func (p *Policy) validate() error {
	var problems []string

	if p.Position.MaxRiskPerTrade <= 0 || p.Position.MaxRiskPerTrade > 1 {
		problems = append(problems, fmt.Sprintf("max_risk_per_trade must be in (0,1], got %.4f", p.Position.MaxRiskPerTrade))
	}
	if p.Position.MinStopDistance < 0 || p.Position.MinStopDistance >= p.Position.MaxStopDistance {
		problems = append(problems, fmt.Sprintf("min_stop_distance (%.4f) must be < max_stop_distance (%.4f)", p.Position.MinStopDistance, p.Position.MaxStopDistance))
	}
	if p.Portfolio.MaxPositions <= 0 {
		problems = append(problems, "max_positions must be > 0")
	}
	if p.Portfolio.MaxDrawdown <= 0 || p.Portfolio.MaxDrawdown > 1 {
		problems = append(problems, fmt.Sprintf("max_drawdown must be in (0,1], got %.4f", p.Portfolio.MaxDrawdown))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return nil
}

// fingerprint derives a short, deterministic label from a policy document's
// raw bytes, for audit logging. It is not a cryptographic hash — only
// uniqueness-for-labelling is required — and deliberately uses the same
// FNV-1a constants the standard library's hash/fnv package does, so the
// arithmetic is unsurprising to a reader who already knows that hash.
func fingerprint(data []byte) string {
	h := uint64(14695981039346656037)
	for _, b := range data {
		h ^= uint64(b)
		h *= 1099511628211
	}
	return fmt.Sprintf("v%x", h&0xffffffffffff)
}

// ViolationCode is a machine-readable identifier for a specific breach.
type ViolationCode string

const (
	ViolationStopTooTight      ViolationCode = "STOP_TOO_TIGHT"
	ViolationStopTooWide       ViolationCode = "STOP_TOO_WIDE"
	ViolationRiskTooHigh       ViolationCode = "RISK_PER_TRADE_TOO_HIGH"
	ViolationRiskTooLow        ViolationCode = "RISK_PER_TRADE_TOO_LOW"
	ViolationPositionTooLarge  ViolationCode = "POSITION_VALUE_TOO_LARGE"
	ViolationTooManyPositions  ViolationCode = "TOO_MANY_OPEN_POSITIONS"
	ViolationDailyLossExceeded ViolationCode = "DAILY_LOSS_EXCEEDED"
	ViolationAccountTooSmall   ViolationCode = "ACCOUNT_TOO_SMALL"
	ViolationDrawdownHalt      ViolationCode = "DRAWDOWN_HALT"
)

// Violation describes a single policy breach: the limit configured and the
// value observed that crossed it.
type Violation struct {
	Code     ViolationCode
	Message  string
	Limit    float64
	Observed float64
}

func violation(code ViolationCode, limit, observed float64, format string, args ...any) Violation {
	return Violation{Code: code, Message: fmt.Sprintf(format, args...), Limit: limit, Observed: observed}
}

func (v Violation) Error() string {
	return fmt.Sprintf("risk violation [%s]: %s (limit=%.4f, observed=%.4f)",
		v.Code, v.Message, v.Limit, v.Observed)
}

// Violations is a slice of Violation that also satisfies the error interface.
type Violations []Violation

func (vs Violations) Error() string {
	msgs := make([]string, len(vs))
	for i, v := range vs {
		msgs[i] = v.Error()
	}
	return strings.Join(msgs, " | ")
}

// IsEmpty reports whether there are no violations.
func (vs Violations) IsEmpty() bool { return len(vs) == 0 }

// SignalInput carries the proposed-order values CheckSignal needs: entry
// price and stop distance come from internal/engine/tradeapi's fixed-price
// stop-loss option, account equity from accountant.PortfolioValue.
type SignalInput struct {
	Symbol        string
	EntryPrice    float64
	StopLoss      float64
	AccountEquity float64
	PositionValue float64
}

// PortfolioState carries current account state for CheckPortfolio's
// portfolio-level gates.
type PortfolioState struct {
	NetLiquidation  float64
	OpenPositions   int
	DailyLossDollar float64
	// CurrentDrawdown is the current peak-to-trough drawdown fraction (0–1).
	CurrentDrawdown float64
}

// Enforcer applies a Policy to proposed orders and account state. Construct
// one with NewEnforcer and reuse it for every order in a run.
type Enforcer struct {
	policy *Policy
}

// NewEnforcer creates an Enforcer backed by the given Policy.
func NewEnforcer(policy *Policy) *Enforcer {
	return &Enforcer{policy: policy}
}

// Policy returns the enforcer's backing policy, for logging/audit.
func (e *Enforcer) Policy() *Policy { return e.policy }

// CheckSignal validates a proposed order against the per-trade position
// limits. internal/engine/tradeapi only calls this when the order carries
// a fixed-price stop — a percentage-kind stop has no absolute distance to
// measure until a position exists to anchor it.
func (e *Enforcer) CheckSignal(in SignalInput) Violations {
	var vs Violations
	limits := e.policy.Position
	if in.EntryPrice <= 0 {
		return vs
	}

	stopDistance := math.Abs(in.EntryPrice-in.StopLoss) / in.EntryPrice

	if limits.MinStopDistance > 0 && stopDistance < limits.MinStopDistance {
		vs = append(vs, violation(ViolationStopTooTight, limits.MinStopDistance, stopDistance,
			"stop distance %.2f%% is below minimum %.2f%%", stopDistance*100, limits.MinStopDistance*100))
	}
	if limits.MaxStopDistance > 0 && stopDistance > limits.MaxStopDistance {
		vs = append(vs, violation(ViolationStopTooWide, limits.MaxStopDistance, stopDistance,
			"stop distance %.2f%% exceeds maximum %.2f%%", stopDistance*100, limits.MaxStopDistance*100))
	}

	if in.AccountEquity > 0 {
		riskDollars := math.Abs(in.EntryPrice-in.StopLoss) * (in.PositionValue / in.EntryPrice)
		riskFraction := riskDollars / in.AccountEquity

		if limits.MaxRiskPerTrade > 0 && riskFraction > limits.MaxRiskPerTrade {
			vs = append(vs, violation(ViolationRiskTooHigh, limits.MaxRiskPerTrade, riskFraction,
				"trade risk %.2f%% exceeds maximum %.2f%%", riskFraction*100, limits.MaxRiskPerTrade*100))
		}
		if limits.MinRiskPerTrade > 0 && riskFraction < limits.MinRiskPerTrade {
			vs = append(vs, violation(ViolationRiskTooLow, limits.MinRiskPerTrade, riskFraction,
				"trade risk %.2f%% is below minimum %.2f%%", riskFraction*100, limits.MinRiskPerTrade*100))
		}
	}

	if portfolio := e.policy.Portfolio; portfolio.MaxPositionSize > 0 && in.PositionValue > portfolio.MaxPositionSize {
		vs = append(vs, violation(ViolationPositionTooLarge, portfolio.MaxPositionSize, in.PositionValue,
			"position value %.2f exceeds maximum %.2f", in.PositionValue, portfolio.MaxPositionSize))
	}

	return vs
}

// CheckPortfolio validates the account's current state against the
// portfolio-level constraints. internal/engine/tradeapi runs this on every
// order, not just ones carrying a stop.
func (e *Enforcer) CheckPortfolio(state PortfolioState) Violations {
	var vs Violations
	limits := e.policy.Portfolio

	if limits.MinAccountSize > 0 && state.NetLiquidation < limits.MinAccountSize {
		vs = append(vs, violation(ViolationAccountTooSmall, limits.MinAccountSize, state.NetLiquidation,
			"account equity %.2f is below minimum %.2f", state.NetLiquidation, limits.MinAccountSize))
	}

	if limits.MaxPositions > 0 && state.OpenPositions >= limits.MaxPositions {
		vs = append(vs, violation(ViolationTooManyPositions, float64(limits.MaxPositions), float64(state.OpenPositions),
			"open positions %d has reached maximum %d", state.OpenPositions, limits.MaxPositions))
	}

	if limits.MaxPortfolioRisk > 0 && state.NetLiquidation > 0 {
		dailyLossFraction := state.DailyLossDollar / state.NetLiquidation
		if dailyLossFraction >= limits.MaxPortfolioRisk {
			vs = append(vs, violation(ViolationDailyLossExceeded, limits.MaxPortfolioRisk, dailyLossFraction,
				"daily loss %.2f%% has reached portfolio risk limit %.2f%%", dailyLossFraction*100, limits.MaxPortfolioRisk*100))
		}
	}

	if limits.MaxDrawdown > 0 && state.CurrentDrawdown >= limits.MaxDrawdown {
		vs = append(vs, violation(ViolationDrawdownHalt, limits.MaxDrawdown, state.CurrentDrawdown,
			"drawdown %.2f%% has reached halt threshold %.2f%%", state.CurrentDrawdown*100, limits.MaxDrawdown*100))
	}

	return vs
}
