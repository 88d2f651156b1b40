package strategies

import (
	"context"
	"fmt"
)

// RSIMomentumStrategy is a mean-reversion strategy driven by the 14-period
// RSI internal/strategy/momentum.Adapter computes from its rolling close
// window. It is the simplest strategy in this package — a single indicator
// against two fixed thresholds — and is a reasonable default for
// cmd/backtester's -strategy flag.
type RSIMomentumStrategy struct {
	id              string
	name            string
	oversoldLevel   float64
	overboughtLevel float64
	minConfidence   float64
}

// NewRSIMomentumStrategy constructs the strategy with its fixed thresholds.
func NewRSIMomentumStrategy() *RSIMomentumStrategy {
	return &RSIMomentumStrategy{
		id:              "rsi_momentum_v1",
		name:            "RSI Momentum V1",
		oversoldLevel:   30.0,
		overboughtLevel: 70.0,
		minConfidence:   0.6,
	}
}

func (s *RSIMomentumStrategy) ID() string { return s.id }

func (s *RSIMomentumStrategy) Name() string { return s.name }

func (s *RSIMomentumStrategy) Analyze(ctx context.Context, input AnalysisInput) (Signal, error) {
	signal := Signal{
		Symbol:     input.Symbol,
		Timestamp:  input.Timestamp,
		Type:       SignalHold,
		Confidence: 0.0,
		Indicators: map[string]interface{}{
			"rsi":   input.RSI,
			"price": input.Price,
			"atr":   input.ATR,
		},
	}

	switch {
	case input.RSI < s.oversoldLevel:
		signal.Type = SignalBuy
		signal.Confidence = s.confidence(input, true)
		signal.EntryPrice = input.Price
		signal.StopLoss = input.Price - (2.0 * input.ATR)
		signal.TakeProfit = []float64{
			input.Price + (2.0 * input.ATR),
			input.Price + (3.0 * input.ATR),
		}
		signal.Reason = fmt.Sprintf("RSI oversold at %.2f, bullish reversal expected", input.RSI)

	case input.RSI > s.overboughtLevel:
		signal.Type = SignalSell
		signal.Confidence = s.confidence(input, false)
		signal.EntryPrice = input.Price
		signal.StopLoss = input.Price + (2.0 * input.ATR)
		signal.TakeProfit = []float64{
			input.Price - (2.0 * input.ATR),
			input.Price - (3.0 * input.ATR),
		}
		signal.Reason = fmt.Sprintf("RSI overbought at %.2f, bearish reversal expected", input.RSI)

	default:
		signal.Reason = fmt.Sprintf("RSI neutral at %.2f, no clear signal", input.RSI)
	}

	return signal, nil
}

// confidence scores a reversal signal: the base threshold plus boosts for
// trend agreement, volume confirmation, and how deep into extreme
// territory the RSI reading sits.
func (s *RSIMomentumStrategy) confidence(input AnalysisInput, bullish bool) float64 {
	c := s.minConfidence

	if trendAligned(input.MarketTrend, bullish) {
		c += 0.15
	}
	if volumeConfirms(input.Volume, input.AvgVolume20) {
		c += 0.10
	}

	switch {
	case bullish && input.RSI < 20:
		c += 0.15
	case !bullish && input.RSI > 80:
		c += 0.15
	}

	return clampConfidence(c)
}

// GetMetadata describes this strategy for strategies.Registry.
func (s *RSIMomentumStrategy) GetMetadata() StrategyMetadata {
	return StrategyMetadata{
		ID:          s.id,
		Name:        s.name,
		Description: "Mean reversion strategy based on RSI oversold/overbought levels",
		EventTypes:  []string{"rsi_oversold", "rsi_overbought"},
		MinRR:       2.0,
		MaxRisk:     2.0,
		Timeframes:  []string{"5m", "15m", "1h", "4h"},
	}
}
