// Package momentum adapts the indicator-driven strategies in
// backtestsim/libs/strategies to the engine's Strategy contract: it rolls a
// per-symbol candle window, computes the technical indicators those
// strategies expect via markcheno/go-talib, and translates the resulting
// buy/sell/hold Signal into TradeAPI calls.
package momentum

import (
	"context"
	"fmt"
	"time"

	"github.com/markcheno/go-talib"

	"backtestsim/internal/domain"
	"backtestsim/internal/strategy"
	"backtestsim/libs/strategies"
)

const (
	minWindow = 200 // SMA200 needs 200 closes before a strategy can fire
	maxWindow = 260 // retain a small buffer past the longest lookback
)

type series struct {
	closes  []float64
	highs   []float64
	lows    []float64
	volumes []float64
}

func (s *series) push(c domain.Candle) {
	s.closes = append(s.closes, c.Close)
	s.highs = append(s.highs, c.High)
	s.lows = append(s.lows, c.Low)
	s.volumes = append(s.volumes, c.Volume)
	if len(s.closes) > maxWindow {
		trim := len(s.closes) - maxWindow
		s.closes = s.closes[trim:]
		s.highs = s.highs[trim:]
		s.lows = s.lows[trim:]
		s.volumes = s.volumes[trim:]
	}
}

// Adapter implements strategy.Strategy by delegating per-candle analysis to
// a registered backtestsim/libs/strategies.Strategy. PositionFraction is the
// share of available balance committed to a fresh signal (default 0.10 when
// zero-valued).
type Adapter struct {
	registry         *strategies.Registry
	strategyID       string
	PositionFraction float64

	baseToken string
	history   map[string]*series
}

// NewAdapter registers every strategy in backtestsim/libs/strategies and
// selects strategyID as the one Analyze delegates to.
func NewAdapter(strategyID string) (*Adapter, error) {
	r := strategies.NewRegistry()
	ma := strategies.NewMACrossoverStrategy()
	macd := strategies.NewMACDCrossoverStrategy()
	rsi := strategies.NewRSIMomentumStrategy()
	for _, s := range []interface {
		strategies.Strategy
		GetMetadata() strategies.StrategyMetadata
	}{ma, macd, rsi} {
		if err := r.Register(s, s.GetMetadata()); err != nil {
			return nil, fmt.Errorf("momentum: register %s: %w", s.ID(), err)
		}
	}
	if _, err := r.Get(strategyID); err != nil {
		return nil, fmt.Errorf("momentum: unknown strategy %q: %w", strategyID, err)
	}
	return &Adapter{registry: r, strategyID: strategyID, history: make(map[string]*series)}, nil
}

var _ strategy.Strategy = (*Adapter)(nil)

// Initialize records the run's base token, the balance act sizes orders
// against; the only other per-run state is the rolling candle windows
// Analyze builds up.
func (a *Adapter) Initialize(ctx context.Context, cfg domain.TradingConfig, api strategy.TradeAPI) error {
	a.baseToken = cfg.BaseToken
	return nil
}

// Analyze appends the candle to its symbol's window, and once enough
// history has accumulated, computes indicators and acts on the resulting
// signal.
func (a *Adapter) Analyze(ctx context.Context, c domain.Candle, api strategy.TradeAPI) error {
	s, ok := a.history[c.Symbol]
	if !ok {
		s = &series{}
		a.history[c.Symbol] = s
	}
	s.push(c)
	if len(s.closes) < minWindow {
		return nil
	}

	input := a.buildInput(c, s)
	strat, err := a.registry.Get(a.strategyID)
	if err != nil {
		return err
	}
	signal, err := strat.Analyze(ctx, input)
	if err != nil {
		return err
	}
	return a.act(c.Symbol, signal, api)
}

// CloseSession closes every open futures position. act places spot orders,
// so token balances the adapter bought are left in the wallet.
func (a *Adapter) CloseSession(ctx context.Context, api strategy.TradeAPI) error {
	for token := range api.GetAllPositions() {
		api.ClosePosition(token)
	}
	return nil
}

func (a *Adapter) buildInput(c domain.Candle, s *series) strategies.AnalysisInput {
	sma20 := lastOf(talib.Sma(s.closes, 20))
	sma50 := lastOf(talib.Sma(s.closes, 50))
	sma200 := lastOf(talib.Sma(s.closes, 200))
	rsi := lastOf(talib.Rsi(s.closes, 14))
	atr := lastOf(talib.Atr(s.highs, s.lows, s.closes, 14))
	macd, macdSignal, macdHist := talib.Macd(s.closes, 12, 26, 9)
	upper, middle, lower := talib.BBands(s.closes, 20, 2, 2, talib.SMA)

	var avgVol20 float64
	window := s.volumes
	if len(window) > 20 {
		window = window[len(window)-20:]
	}
	for _, v := range window {
		avgVol20 += v
	}
	if len(window) > 0 {
		avgVol20 /= float64(len(window))
	}

	trend := "neutral"
	switch {
	case sma50 > sma200:
		trend = "bullish"
	case sma50 < sma200:
		trend = "bearish"
	}

	return strategies.AnalysisInput{
		Symbol:    c.Symbol,
		Price:     c.Close,
		Timestamp: time.UnixMilli(c.Timestamp).UTC(),
		RSI:       rsi,
		MACD:      strategies.MACD{Value: lastOf(macd), Signal: lastOf(macdSignal), Histogram: lastOf(macdHist)},
		SMA20:     sma20,
		SMA50:     sma50,
		SMA200:    sma200,
		ATR:       atr,
		BollingerBands: strategies.BollingerBands{
			Upper:  lastOf(upper),
			Middle: lastOf(middle),
			Lower:  lastOf(lower),
		},
		Volume:      int64(c.Volume),
		AvgVolume20: int64(avgVol20),
		MarketTrend: trend,
		SectorTrend: trend,
	}
}

// act sizes and places an order from a non-hold signal. Position sizing is
// fixed-fractional against available balance; the accountant's capital
// checks still gate the final amount via CanBuy/CanSell.
func (a *Adapter) act(token string, sig strategies.Signal, api strategy.TradeAPI) error {
	if sig.Type == strategies.SignalHold {
		return nil
	}
	if _, open := api.GetPosition(token); open {
		return nil
	}

	fraction := a.PositionFraction
	if fraction <= 0 {
		fraction = 0.10
	}
	price, _, _, ok := api.GetCurrentPrice(token)
	if !ok || price <= 0 {
		return nil
	}
	available := api.GetAvailableBalance(a.baseToken)
	amount := (available * fraction) / price
	if amount <= 0 {
		return nil
	}

	opts := strategy.OrderOptions{OrderType: domain.OrderMarket}
	if sig.StopLoss > 0 {
		opts.StopLoss = &domain.TriggerConfig{Kind: domain.TriggerPrice, Value: sig.StopLoss}
	}
	if len(sig.TakeProfit) > 0 {
		opts.ProfitTarget = &domain.TriggerConfig{Kind: domain.TriggerPrice, Value: sig.TakeProfit[0]}
	}

	if sig.Type == strategies.SignalBuy {
		api.Buy(token, amount, opts)
	} else {
		api.Sell(token, amount, opts)
	}
	return nil
}

func lastOf(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	return vals[len(vals)-1]
}
