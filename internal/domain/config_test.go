package domain_test

import (
	"testing"

	"backtestsim/internal/domain"
)

func validConfigs() (domain.TradingConfig, domain.SimulationConfig) {
	tc := domain.TradingConfig{
		BaseToken:      "USD",
		TradableTokens: []string{"BTC"},
		WalletBalance:  map[string]float64{"USD": 1000},
		ExchangeSettings: domain.ExchangeSettings{
			SpotEnabled:         true,
			SpotLeverageOptions: []int{1},
		},
	}
	sc := domain.SimulationConfig{
		OrderFillStrategy:         domain.FillImmediate,
		LimitOrderFillProbability: 1,
	}
	return tc, sc
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	tc, sc := validConfigs()
	if errs := domain.Validate(tc, sc); len(errs) != 0 {
		t.Fatalf("expected a clean config to validate, got %v", errs)
	}
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	tc, sc := validConfigs()
	tc.TradableTokens = append(tc.TradableTokens, "USD")
	sc.OrderFillStrategy = "sometimes"
	sc.OrderFailureRate = 1.5
	sc.SlippagePercentage = -0.1
	sc.PriceVolatility = 2
	sc.LimitOrderFillProbability = 1.2

	errs := domain.Validate(tc, sc)
	if len(errs) != 6 {
		t.Fatalf("expected all six problems reported at once, got %d: %v", len(errs), errs)
	}
}

func TestValidateGradualFillRequiresItsParameters(t *testing.T) {
	tc, sc := validConfigs()
	sc.OrderFillStrategy = domain.FillGradual

	errs := domain.Validate(tc, sc)
	if len(errs) != 2 {
		t.Fatalf("expected missing partialFillPercentage and gradualFillIntervalMs both reported, got %v", errs)
	}
}
