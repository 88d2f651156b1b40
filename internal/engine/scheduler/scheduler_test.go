package scheduler_test

import (
	"context"
	"testing"

	simtesting "backtestsim/libs/testing"

	"backtestsim/internal/domain"
	"backtestsim/internal/engine/scheduler"
	"backtestsim/internal/feed"
	"backtestsim/internal/strategy"
)

func baseConfig() (domain.TradingConfig, domain.SimulationConfig) {
	tc := domain.TradingConfig{
		BaseToken:      "USD",
		TradableTokens: []string{"BTC"},
		WalletBalance:  map[string]float64{"USD": 100000},
		ExchangeSettings: domain.ExchangeSettings{
			SpotEnabled:         true,
			SpotLeverageOptions: []int{1},
		},
	}
	sc := domain.SimulationConfig{
		OrderFillStrategy:         domain.FillImmediate,
		OrderFailureRate:          0,
		SlippagePercentage:        0,
		PriceVolatility:           0,
		MarketOrdersAlwaysSucceed: true,
		LimitOrderFillProbability: 1,
	}
	return tc, sc
}

func candles(symbol string, prices ...float64) []domain.Candle {
	out := make([]domain.Candle, len(prices))
	for i, p := range prices {
		out[i] = domain.Candle{Timestamp: int64(i + 1), Symbol: symbol, Open: p, High: p, Low: p, Close: p, Volume: 100}
	}
	return out
}

// buyThenSellOnce buys on the first candle and sells its entire position on
// the second; it is a no-op after that.
type buyThenSellOnce struct {
	bought bool
	sold   bool
}

func (s *buyThenSellOnce) Initialize(ctx context.Context, cfg domain.TradingConfig, api strategy.TradeAPI) error {
	return nil
}

func (s *buyThenSellOnce) Analyze(ctx context.Context, c domain.Candle, api strategy.TradeAPI) error {
	if !s.bought {
		api.Buy(c.Symbol, 1, strategy.OrderOptions{})
		s.bought = true
		return nil
	}
	if !s.sold {
		if held := api.GetAvailableBalance(c.Symbol); held > 0 {
			api.Sell(c.Symbol, held, strategy.OrderOptions{})
			s.sold = true
		}
	}
	return nil
}

func (s *buyThenSellOnce) CloseSession(ctx context.Context, api strategy.TradeAPI) error {
	return nil
}

func TestPerfectSpotRoundTrip(t *testing.T) {
	tc, sc := baseConfig()
	sched := scheduler.New(tc, sc, nil)

	src := feed.NewSlice(candles("BTC", 100, 100, 100))
	result, err := sched.Run(context.Background(), &buyThenSellOnce{}, src)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := result.FinalValue; got < result.InitialValue-domain.Epsilon || got > result.InitialValue+domain.Epsilon {
		t.Errorf("expected no net PnL on a zero-slippage round trip at flat price, got initial=%.8f final=%.8f", result.InitialValue, got)
	}
	if len(result.Trades) != 2 {
		t.Fatalf("expected 2 trade records, got %d", len(result.Trades))
	}
}

func TestSlippageOnBuyWidensExecutionPrice(t *testing.T) {
	tc, sc := baseConfig()
	sc.SlippagePercentage = 0.05
	seed := int64(7)
	sc.RandomSeed = &seed
	sched := scheduler.New(tc, sc, nil)

	src := feed.NewSlice(candles("BTC", 100, 100))
	strat := &buyThenSellOnce{}
	result, err := sched.Run(context.Background(), strat, src)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Trades) == 0 {
		t.Fatal("expected at least one trade")
	}
	buy := result.Trades[0]
	if buy.Action != domain.ActionBuy {
		t.Fatalf("expected first trade to be a buy, got %s", buy.Action)
	}
	if buy.ExecutionPrice <= 100+domain.Epsilon {
		t.Errorf("expected slippage to push the buy's execution price above the 100 quote, got %.8f", buy.ExecutionPrice)
	}
}

func TestDeterminismSameSeedSameResult(t *testing.T) {
	tc, sc := baseConfig()
	sc.SlippagePercentage = 0.02
	sc.PriceVolatility = 0.01
	sc.OrderFailureRate = 0.1
	seed := int64(42)
	sc.RandomSeed = &seed

	run := func() any {
		sched := scheduler.New(tc, sc, nil)
		src := feed.NewSlice(candles("BTC", 100, 101, 99, 102, 98, 103))
		result, err := sched.Run(context.Background(), &buyThenSellOnce{}, src)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		return result
	}

	simtesting.AssertDeterministic(t, run)
}

// futuresStopLossStrategy opens a leveraged long with a price-based stop on
// the first candle and never intervenes again, letting the monitor force
// the close.
type futuresStopLossStrategy struct {
	opened bool
}

func (s *futuresStopLossStrategy) Initialize(ctx context.Context, cfg domain.TradingConfig, api strategy.TradeAPI) error {
	return nil
}

func (s *futuresStopLossStrategy) Analyze(ctx context.Context, c domain.Candle, api strategy.TradeAPI) error {
	if s.opened {
		return nil
	}
	api.Buy(c.Symbol, 1, strategy.OrderOptions{
		Leverage:  2,
		IsFutures: true,
		StopLoss:  &domain.TriggerConfig{Kind: domain.TriggerPrice, Value: 95},
	})
	s.opened = true
	return nil
}

func (s *futuresStopLossStrategy) CloseSession(ctx context.Context, api strategy.TradeAPI) error {
	return nil
}

// profitAndStopStrategy opens a leveraged long with both a stop-loss and a
// profit target that are simultaneously breached on the same tick.
type profitAndStopStrategy struct {
	opened bool
}

func (s *profitAndStopStrategy) Initialize(ctx context.Context, cfg domain.TradingConfig, api strategy.TradeAPI) error {
	return nil
}

func (s *profitAndStopStrategy) Analyze(ctx context.Context, c domain.Candle, api strategy.TradeAPI) error {
	if s.opened {
		return nil
	}
	// Deliberately inverted thresholds (stop above target, both straddling
	// the next close) so a single price satisfies both trigger
	// inequalities at once — the only way to force the tie the monitor's
	// precedence rule exists to resolve.
	api.Buy(c.Symbol, 1, strategy.OrderOptions{
		Leverage:     2,
		IsFutures:    true,
		StopLoss:     &domain.TriggerConfig{Kind: domain.TriggerPrice, Value: 105},
		ProfitTarget: &domain.TriggerConfig{Kind: domain.TriggerPrice, Value: 95},
	})
	s.opened = true
	return nil
}

func (s *profitAndStopStrategy) CloseSession(ctx context.Context, api strategy.TradeAPI) error {
	return nil
}

// TestStopLossBeatsProfitTargetOnSameTick asserts the monitor's documented
// precedence: when a single candle breaches both a stop-loss and a profit
// target on the same position, only the stop-loss fires.
func TestStopLossBeatsProfitTargetOnSameTick(t *testing.T) {
	tc, sc := baseConfig()
	tc.ExchangeSettings.FuturesEnabled = true
	tc.ExchangeSettings.FuturesLeverageOptions = []int{2}
	sched := scheduler.New(tc, sc, nil)

	src := feed.NewSlice([]domain.Candle{
		{Timestamp: 1, Symbol: "BTC", Open: 100, High: 100, Low: 100, Close: 100, Volume: 100},
		{Timestamp: 2, Symbol: "BTC", Open: 100, High: 100, Low: 100, Close: 100, Volume: 100},
	})
	result, err := sched.Run(context.Background(), &profitAndStopStrategy{}, src)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	stopSeen, targetSeen := false, false
	for _, ev := range result.TriggerEvents {
		switch ev.Type {
		case domain.TriggerStopLoss:
			stopSeen = true
		case domain.TriggerProfitTarget:
			targetSeen = true
		}
	}
	if !stopSeen {
		t.Error("expected the stop-loss to fire")
	}
	if targetSeen {
		t.Error("expected the profit target to be suppressed once the stop-loss fired on the same tick")
	}
	if len(result.TriggerEvents) != 1 {
		t.Errorf("expected exactly one trigger event for the position, got %d", len(result.TriggerEvents))
	}
}

// delayedOrderNeverSold places a single limit buy, far below market, that
// never fills, and never intervenes again.
type delayedOrderNeverSold struct {
	placed bool
}

func (s *delayedOrderNeverSold) Initialize(ctx context.Context, cfg domain.TradingConfig, api strategy.TradeAPI) error {
	return nil
}

func (s *delayedOrderNeverSold) Analyze(ctx context.Context, c domain.Candle, api strategy.TradeAPI) error {
	if s.placed {
		return nil
	}
	api.Buy(c.Symbol, 1, strategy.OrderOptions{
		OrderType:      domain.OrderLimit,
		RequestedPrice: 1,
	})
	s.placed = true
	return nil
}

func (s *delayedOrderNeverSold) CloseSession(ctx context.Context, api strategy.TradeAPI) error {
	return nil
}

// TestCancellationAfterMsCancelsStaleOrder asserts an order that has sat
// open past cancellationAfterMs is cancelled — and never filled — rather
// than left open forever. TradeRecords only ever projects filled
// orders, so a cancelled order simply never appears among them.
func TestCancellationAfterMsCancelsStaleOrder(t *testing.T) {
	tc, sc := baseConfig()
	sc.OrderFillStrategy = domain.FillDelayed
	sc.FillDelayMs = 1000
	cancelAfter := int64(2)
	sc.CancellationAfterMs = &cancelAfter

	sched := scheduler.New(tc, sc, nil)
	src := feed.NewSlice(candles("BTC", 100, 100, 100, 100, 100))
	result, err := sched.Run(context.Background(), &delayedOrderNeverSold{}, src)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Trades) != 0 {
		t.Fatalf("expected the stale order to be cancelled before its scheduled fill time, got %d filled trades", len(result.Trades))
	}
}

// gradualBuyOnce places a single gradual-fill buy and never intervenes
// again, letting the processor's partial-fill ticks carry it to completion.
type gradualBuyOnce struct {
	placed bool
}

func (s *gradualBuyOnce) Initialize(ctx context.Context, cfg domain.TradingConfig, api strategy.TradeAPI) error {
	return nil
}

func (s *gradualBuyOnce) Analyze(ctx context.Context, c domain.Candle, api strategy.TradeAPI) error {
	if s.placed {
		return nil
	}
	api.Buy(c.Symbol, 10, strategy.OrderOptions{})
	s.placed = true
	return nil
}

func (s *gradualBuyOnce) CloseSession(ctx context.Context, api strategy.TradeAPI) error {
	return nil
}

// TestGradualFillCompletesAcrossTicks asserts a gradual-fill order's
// requested amount is fully filled once enough ticks have elapsed, with no
// amount lost or double-counted across the partial steps. Each step takes
// the configured fraction of what remains, so a fraction of 1 converges to
// a full fill as soon as a single interval has elapsed, exercising the
// tick-gated path without requiring dozens of geometric halvings.
func TestGradualFillCompletesAcrossTicks(t *testing.T) {
	tc, sc := baseConfig()
	sc.OrderFillStrategy = domain.FillGradual
	sc.PartialFillPercentage = 1
	sc.GradualFillIntervalMs = 1

	sched := scheduler.New(tc, sc, nil)
	src := feed.NewSlice(candles("BTC", 100, 100, 100, 100, 100))
	result, err := sched.Run(context.Background(), &gradualBuyOnce{}, src)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Trades) != 1 {
		t.Fatalf("expected a single order record once its gradual fills complete, got %d", len(result.Trades))
	}
	if got := result.Trades[0].FilledAmount; got < 10-domain.Epsilon || got > 10+domain.Epsilon {
		t.Errorf("expected the full requested amount filled across partial steps, got %.8f", got)
	}
}

func TestFuturesStopLossForcesClose(t *testing.T) {
	tc, sc := baseConfig()
	tc.ExchangeSettings.FuturesEnabled = true
	tc.ExchangeSettings.FuturesLeverageOptions = []int{2}
	sched := scheduler.New(tc, sc, nil)

	src := feed.NewSlice(candles("BTC", 100, 100, 90))
	result, err := sched.Run(context.Background(), &futuresStopLossStrategy{}, src)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	found := false
	for _, ev := range result.TriggerEvents {
		if ev.Type == domain.TriggerStopLoss {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a stop-loss trigger event, got %+v", result.TriggerEvents)
	}
	if len(result.Trades) != 2 {
		t.Fatalf("expected an open trade and a forced-close trade, got %d", len(result.Trades))
	}
}

func TestEmptyFeedReturnsInitialValue(t *testing.T) {
	tc, sc := baseConfig()
	sched := scheduler.New(tc, sc, nil)

	result, err := sched.Run(context.Background(), &buyThenSellOnce{}, feed.NewSlice(nil))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Trades) != 0 {
		t.Errorf("expected zero trades on an empty feed, got %d", len(result.Trades))
	}
	if result.InitialValue != result.FinalValue || result.PnL != 0 {
		t.Errorf("expected initial == final with zero PnL, got %+v", result)
	}
}

func TestNeverFillStrategyProducesNoTrades(t *testing.T) {
	tc, sc := baseConfig()
	sc.OrderFillStrategy = domain.FillNever
	sched := scheduler.New(tc, sc, nil)

	result, err := sched.Run(context.Background(), &buyThenSellOnce{}, feed.NewSlice(candles("BTC", 100, 105, 110)))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Trades) != 0 {
		t.Fatalf("never-fill must produce no trades, got %d", len(result.Trades))
	}
	if got := result.FinalValue; got < result.InitialValue-domain.Epsilon || got > result.InitialValue+domain.Epsilon {
		t.Errorf("an all-cash wallet with no fills keeps its starting value, got initial=%.8f final=%.8f", result.InitialValue, got)
	}
}

// marketAndLimitOnce places one market buy and one limit buy on the first
// candle, to separate the failure roll's treatment of the two order types.
type marketAndLimitOnce struct {
	placed       bool
	marketResult strategy.TradeResult
	limitResult  strategy.TradeResult
}

func (s *marketAndLimitOnce) Initialize(ctx context.Context, cfg domain.TradingConfig, api strategy.TradeAPI) error {
	return nil
}

func (s *marketAndLimitOnce) Analyze(ctx context.Context, c domain.Candle, api strategy.TradeAPI) error {
	if s.placed {
		return nil
	}
	s.marketResult = api.Buy(c.Symbol, 1, strategy.OrderOptions{})
	s.limitResult = api.Buy(c.Symbol, 1, strategy.OrderOptions{OrderType: domain.OrderLimit, RequestedPrice: 100})
	s.placed = true
	return nil
}

func (s *marketAndLimitOnce) CloseSession(ctx context.Context, api strategy.TradeAPI) error {
	return nil
}

func TestFailureRateOneSparesOnlyMarketOrders(t *testing.T) {
	tc, sc := baseConfig()
	sc.OrderFailureRate = 1
	sc.MarketOrdersAlwaysSucceed = true
	sched := scheduler.New(tc, sc, nil)

	strat := &marketAndLimitOnce{}
	result, err := sched.Run(context.Background(), strat, feed.NewSlice(candles("BTC", 100, 100)))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strat.marketResult.Success {
		t.Errorf("market order must survive orderFailureRate=1 when marketOrdersAlwaysSucceed is set, got %q", strat.marketResult.Error)
	}
	if strat.limitResult.Success {
		t.Error("limit order must be rejected by the failure roll at orderFailureRate=1")
	}
	if len(result.Trades) != 1 {
		t.Errorf("expected only the market order's fill recorded, got %d", len(result.Trades))
	}
}

// futuresProfitTargetStrategy opens a 5x long with a 10% profit target on
// the first candle and never intervenes again.
type futuresProfitTargetStrategy struct {
	opened bool
}

func (s *futuresProfitTargetStrategy) Initialize(ctx context.Context, cfg domain.TradingConfig, api strategy.TradeAPI) error {
	return nil
}

func (s *futuresProfitTargetStrategy) Analyze(ctx context.Context, c domain.Candle, api strategy.TradeAPI) error {
	if s.opened {
		return nil
	}
	api.Buy(c.Symbol, 1, strategy.OrderOptions{
		Leverage:     5,
		IsFutures:    true,
		ProfitTarget: &domain.TriggerConfig{Kind: domain.TriggerPercentage, Value: 10},
	})
	s.opened = true
	return nil
}

func (s *futuresProfitTargetStrategy) CloseSession(ctx context.Context, api strategy.TradeAPI) error {
	return nil
}

func TestFuturesProfitTargetTakesProfit(t *testing.T) {
	tc, sc := baseConfig()
	tc.WalletBalance = map[string]float64{"USD": 1000}
	tc.ExchangeSettings.FuturesEnabled = true
	tc.ExchangeSettings.FuturesLeverageOptions = []int{1, 5}
	sched := scheduler.New(tc, sc, nil)

	src := feed.NewSlice(candles("BTC", 100, 105, 112))
	result, err := sched.Run(context.Background(), &futuresProfitTargetStrategy{}, src)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(result.TriggerEvents) != 1 || result.TriggerEvents[0].Type != domain.TriggerProfitTarget {
		t.Fatalf("expected a single profit-target event, got %+v", result.TriggerEvents)
	}
	if len(result.Trades) != 2 {
		t.Fatalf("expected the opening buy and the synthetic close, got %d trades", len(result.Trades))
	}
	want := 1012.0
	if got := result.FinalValue; got < want-domain.Epsilon || got > want+domain.Epsilon {
		t.Errorf("expected ~12 USD of realized profit on the 5x long, got final %.8f", got)
	}
}

// buyAndHold buys once and never sells, leaving a spot holding on the
// books at end of run.
type buyAndHold struct {
	bought bool
}

func (s *buyAndHold) Initialize(ctx context.Context, cfg domain.TradingConfig, api strategy.TradeAPI) error {
	return nil
}

func (s *buyAndHold) Analyze(ctx context.Context, c domain.Candle, api strategy.TradeAPI) error {
	if !s.bought {
		api.Buy(c.Symbol, 1, strategy.OrderOptions{})
		s.bought = true
	}
	return nil
}

func (s *buyAndHold) CloseSession(ctx context.Context, api strategy.TradeAPI) error {
	return nil
}

// TestFinalValueIncludesSpotHoldings asserts a spot position held to the
// end of the run is valued at its last feed price rather than silently
// dropped — at a flat price, buying and holding is PnL-neutral.
func TestFinalValueIncludesSpotHoldings(t *testing.T) {
	tc, sc := baseConfig()
	sched := scheduler.New(tc, sc, nil)

	result, err := sched.Run(context.Background(), &buyAndHold{}, feed.NewSlice(candles("BTC", 100, 100, 100)))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Trades) != 1 {
		t.Fatalf("expected the single opening buy, got %d trades", len(result.Trades))
	}
	if got := result.FinalValue; got < result.InitialValue-domain.Epsilon || got > result.InitialValue+domain.Epsilon {
		t.Errorf("holding 1 BTC at an unchanged price must be PnL-neutral, got initial=%.8f final=%.8f", result.InitialValue, got)
	}
}
