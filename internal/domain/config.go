package domain

// OrderFillStrategy governs when an accepted order transitions to filled.
type OrderFillStrategy string

const (
	FillImmediate OrderFillStrategy = "immediate"
	FillDelayed   OrderFillStrategy = "delayed"
	FillGradual   OrderFillStrategy = "gradual"
	FillNever     OrderFillStrategy = "never"
)

// ExchangeSettings toggles which segments are tradable and which leverage
// tiers each segment allows.
type ExchangeSettings struct {
	SpotEnabled            bool  `json:"spotEnabled"`
	FuturesEnabled         bool  `json:"futuresEnabled"`
	SpotLeverageOptions    []int `json:"spotLeverageOptions"`
	FuturesLeverageOptions []int `json:"futuresLeverageOptions"`
}

// TradingConfig is consumed at startup to build the Wallet/Position
// Accountant.
type TradingConfig struct {
	BaseToken        string             `json:"baseToken"`
	TradableTokens   []string           `json:"tradableTokens"`
	WalletBalance    map[string]float64 `json:"walletBalance"`
	ExchangeSettings ExchangeSettings   `json:"exchangeSettings"`
}

// SimulationConfig parameterizes the Order Processor and Price Oracle.
type SimulationConfig struct {
	OrderFillStrategy         OrderFillStrategy `json:"orderFillStrategy"`
	FillDelayMs               int64             `json:"fillDelayMs,omitempty"`
	PartialFillPercentage     float64           `json:"partialFillPercentage,omitempty"`
	GradualFillIntervalMs     int64             `json:"gradualFillIntervalMs,omitempty"`
	OrderFailureRate          float64           `json:"orderFailureRate"`
	CancellationAfterMs       *int64            `json:"cancellationAfterMs,omitempty"`
	SlippagePercentage        float64           `json:"slippagePercentage"`
	PriceVolatility           float64           `json:"priceVolatility"`
	MarketOrdersAlwaysSucceed bool              `json:"marketOrdersAlwaysSucceed"`
	LimitOrderFillProbability float64           `json:"limitOrderFillProbability"`
	RandomSeed                *int64            `json:"randomSeed,omitempty"`
}

// ExchangeConfig configures the feed-side adapter only; the engine never
// reads it directly, it is carried here purely so a single
// JSON document can be threaded end to end by the CLI.
type ExchangeConfig struct {
	ExchangeID   string `json:"exchangeId"`
	ExchangeType string `json:"exchangeType"`
	Symbol       string `json:"symbol"`
	TimeFrom     int64  `json:"timeFrom"`
	TimeTo       int64  `json:"timeTo"`
	IntervalType string `json:"intervalType"`
}

// Validate checks a TradingConfig/SimulationConfig pair for malformed
// fields, unknown symbols, disallowed leverage options, and the base
// token listed as tradable. Every problem found is returned at once
// rather than failing fast on the first one.
func Validate(tc TradingConfig, sc SimulationConfig) ConfigErrors {
	var errs ConfigErrors

	if tc.BaseToken == "" {
		errs = append(errs, NewConfigError("baseToken", "baseToken is required"))
	}
	for _, token := range tc.TradableTokens {
		if token == tc.BaseToken {
			errs = append(errs, NewConfigError("tradableTokens", "base token %q must not appear in tradableTokens", token))
		}
	}
	if len(tc.ExchangeSettings.SpotLeverageOptions) == 0 && tc.ExchangeSettings.SpotEnabled {
		errs = append(errs, NewConfigError("exchangeSettings.spotLeverageOptions", "spot enabled but no leverage options configured"))
	}
	if len(tc.ExchangeSettings.FuturesLeverageOptions) == 0 && tc.ExchangeSettings.FuturesEnabled {
		errs = append(errs, NewConfigError("exchangeSettings.futuresLeverageOptions", "futures enabled but no leverage options configured"))
	}

	switch sc.OrderFillStrategy {
	case FillImmediate, FillDelayed, FillGradual, FillNever:
	default:
		errs = append(errs, NewConfigError("orderFillStrategy", "unknown fill strategy %q", sc.OrderFillStrategy))
	}
	if sc.OrderFailureRate < 0 || sc.OrderFailureRate > 1 {
		errs = append(errs, NewConfigError("orderFailureRate", "must be in [0,1], got %v", sc.OrderFailureRate))
	}
	if sc.SlippagePercentage < 0 || sc.SlippagePercentage > 1 {
		errs = append(errs, NewConfigError("slippagePercentage", "must be in [0,1], got %v", sc.SlippagePercentage))
	}
	if sc.PriceVolatility < 0 || sc.PriceVolatility > 1 {
		errs = append(errs, NewConfigError("priceVolatility", "must be in [0,1], got %v", sc.PriceVolatility))
	}
	if sc.LimitOrderFillProbability < 0 || sc.LimitOrderFillProbability > 1 {
		errs = append(errs, NewConfigError("limitOrderFillProbability", "must be in [0,1], got %v", sc.LimitOrderFillProbability))
	}
	if sc.OrderFillStrategy == FillGradual {
		if sc.PartialFillPercentage <= 0 || sc.PartialFillPercentage > 1 {
			errs = append(errs, NewConfigError("partialFillPercentage", "must be in (0,1] for gradual fills, got %v", sc.PartialFillPercentage))
		}
		if sc.GradualFillIntervalMs <= 0 {
			errs = append(errs, NewConfigError("gradualFillIntervalMs", "must be > 0 for gradual fills"))
		}
	}

	return errs
}

// LeverageAllowed reports whether leverage is in the allow-list for the
// given segment (spot vs futures).
func LeverageAllowed(settings ExchangeSettings, leverage int, isFutures bool) bool {
	options := settings.SpotLeverageOptions
	if isFutures {
		options = settings.FuturesLeverageOptions
	}
	for _, allowed := range options {
		if allowed == leverage {
			return true
		}
	}
	return false
}
