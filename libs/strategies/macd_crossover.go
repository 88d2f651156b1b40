package strategies

import (
	"context"
	"fmt"
	"math"
)

// MACDCrossoverStrategy is a momentum strategy driven by the MACD line,
// signal line, and histogram internal/strategy/momentum.Adapter computes
// via talib.Macd(12, 26, 9). Unlike MACrossoverStrategy it reacts to a
// single candle's indicator state rather than requiring a multi-average
// stack alignment, so it tends to fire earlier and more often.
type MACDCrossoverStrategy struct {
	id            string
	name          string
	minHistogram  float64
	minConfidence float64
}

// NewMACDCrossoverStrategy constructs the strategy with its fixed thresholds.
func NewMACDCrossoverStrategy() *MACDCrossoverStrategy {
	return &MACDCrossoverStrategy{
		id:            "macd_crossover_v1",
		name:          "MACD Crossover V1",
		minHistogram:  0.0,
		minConfidence: 0.6,
	}
}

func (s *MACDCrossoverStrategy) ID() string { return s.id }

func (s *MACDCrossoverStrategy) Name() string { return s.name }

func (s *MACDCrossoverStrategy) Analyze(ctx context.Context, input AnalysisInput) (Signal, error) {
	signal := Signal{
		Symbol:     input.Symbol,
		Timestamp:  input.Timestamp,
		Type:       SignalHold,
		Confidence: 0.0,
		Indicators: map[string]interface{}{
			"macd_value":     input.MACD.Value,
			"macd_signal":    input.MACD.Signal,
			"macd_histogram": input.MACD.Histogram,
			"price":          input.Price,
			"atr":            input.ATR,
		},
	}

	switch {
	case input.MACD.Histogram > s.minHistogram && input.MACD.Value > input.MACD.Signal:
		signal.Type = SignalBuy
		signal.Confidence = s.confidence(input, true)
		signal.EntryPrice = input.Price
		signal.StopLoss = input.Price - (2.0 * input.ATR)
		signal.TakeProfit = []float64{
			input.Price + (2.5 * input.ATR),
			input.Price + (4.0 * input.ATR),
		}
		signal.Reason = fmt.Sprintf("MACD bullish crossover, histogram=%.4f", input.MACD.Histogram)

	case input.MACD.Histogram < -s.minHistogram && input.MACD.Value < input.MACD.Signal:
		signal.Type = SignalSell
		signal.Confidence = s.confidence(input, false)
		signal.EntryPrice = input.Price
		signal.StopLoss = input.Price + (2.0 * input.ATR)
		signal.TakeProfit = []float64{
			input.Price - (2.5 * input.ATR),
			input.Price - (4.0 * input.ATR),
		}
		signal.Reason = fmt.Sprintf("MACD bearish crossover, histogram=%.4f", input.MACD.Histogram)

	default:
		signal.Reason = fmt.Sprintf("MACD neutral, histogram=%.4f", input.MACD.Histogram)
	}

	return signal, nil
}

// confidence scores a crossover signal: the base threshold plus boosts for
// trend/sector agreement, histogram magnitude, and volume confirmation.
func (s *MACDCrossoverStrategy) confidence(input AnalysisInput, bullish bool) float64 {
	c := s.minConfidence

	if trendAligned(input.MarketTrend, bullish) {
		c += 0.15
	}
	if trendAligned(input.SectorTrend, bullish) {
		c += 0.10
	}
	if math.Abs(input.MACD.Histogram) > 0.5 {
		c += 0.10
	}
	if volumeConfirms(input.Volume, input.AvgVolume20) {
		c += 0.05
	}

	return clampConfidence(c)
}

// GetMetadata describes this strategy for strategies.Registry.
func (s *MACDCrossoverStrategy) GetMetadata() StrategyMetadata {
	return StrategyMetadata{
		ID:          s.id,
		Name:        s.name,
		Description: "Trend-following strategy based on MACD crossover signals",
		EventTypes:  []string{"macd_bullish_crossover", "macd_bearish_crossover"},
		MinRR:       2.5,
		MaxRisk:     2.0,
		Timeframes:  []string{"15m", "1h", "4h", "1d"},
	}
}
