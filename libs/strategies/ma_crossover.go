package strategies

import (
	"context"
)

// MACrossoverStrategy is a trend-following strategy driven by the
// SMA20/SMA50/SMA200 stack internal/strategy/momentum.Adapter computes from
// its rolling close window. It looks for a full alignment across all three
// averages (a "golden" or "death" cross) before anything else, and falls
// back to a lower-confidence pullback entry when the trend is intact but
// price has not yet confirmed a fresh cross.
type MACrossoverStrategy struct {
	id            string
	name          string
	minConfidence float64
}

// NewMACrossoverStrategy constructs the strategy with its fixed thresholds.
func NewMACrossoverStrategy() *MACrossoverStrategy {
	return &MACrossoverStrategy{
		id:            "ma_crossover_v1",
		name:          "MA Crossover V1",
		minConfidence: 0.65,
	}
}

func (s *MACrossoverStrategy) ID() string { return s.id }

func (s *MACrossoverStrategy) Name() string { return s.name }

func (s *MACrossoverStrategy) Analyze(ctx context.Context, input AnalysisInput) (Signal, error) {
	signal := Signal{
		Symbol:     input.Symbol,
		Timestamp:  input.Timestamp,
		Type:       SignalHold,
		Confidence: 0.0,
		Indicators: map[string]interface{}{
			"sma20":  input.SMA20,
			"sma50":  input.SMA50,
			"sma200": input.SMA200,
			"price":  input.Price,
			"atr":    input.ATR,
		},
	}

	uptrendStack := input.SMA20 > input.SMA50 && input.SMA50 > input.SMA200
	downtrendStack := input.SMA20 < input.SMA50 && input.SMA50 < input.SMA200

	// Golden cross: the full SMA stack is bullish and price confirms above SMA20.
	if uptrendStack && input.Price > input.SMA20 {
		signal.Type = SignalBuy
		signal.Confidence = s.confidence(input, true)
		signal.EntryPrice = input.Price
		signal.StopLoss = input.SMA50 - input.ATR
		signal.TakeProfit = []float64{
			input.Price + (3.0 * input.ATR),
			input.Price + (5.0 * input.ATR),
		}
		signal.Reason = "Golden cross: SMA20 > SMA50 > SMA200, strong bullish trend"
		return signal, nil
	}

	// Death cross: the full SMA stack is bearish and price confirms below SMA20.
	if downtrendStack && input.Price < input.SMA20 {
		signal.Type = SignalSell
		signal.Confidence = s.confidence(input, false)
		signal.EntryPrice = input.Price
		signal.StopLoss = input.SMA50 + input.ATR
		signal.TakeProfit = []float64{
			input.Price - (3.0 * input.ATR),
			input.Price - (5.0 * input.ATR),
		}
		signal.Reason = "Death cross: SMA20 < SMA50 < SMA200, strong bearish trend"
		return signal, nil
	}

	// Pullback entry: trend intact but price has retraced to SMA20 without
	// a fresh cross — a lower-confidence continuation entry.
	if uptrendStack {
		pullbackPct := (input.Price - input.SMA20) / input.SMA20
		if pullbackPct >= -0.02 && pullbackPct <= 0.01 {
			signal.Type = SignalBuy
			signal.Confidence = s.minConfidence - 0.10
			signal.EntryPrice = input.Price
			signal.StopLoss = input.Price - (1.5 * input.ATR)
			signal.TakeProfit = []float64{
				input.Price + (2.0 * input.ATR),
				input.Price + (3.5 * input.ATR),
			}
			signal.Reason = "Bullish pullback to SMA20 in uptrend"
			return signal, nil
		}
	}

	signal.Reason = "No clear MA alignment for entry"
	return signal, nil
}

// confidence scores a cross signal: the base threshold plus boosts for
// trend agreement, volume confirmation, and how far SMA20 has separated
// from SMA200 (a wider gap implies a more established trend).
func (s *MACrossoverStrategy) confidence(input AnalysisInput, bullish bool) float64 {
	c := s.minConfidence

	if trendAligned(input.MarketTrend, bullish) {
		c += 0.12
	}
	if volumeConfirms(input.Volume, input.AvgVolume20) {
		c += 0.08
	}

	separation := (input.SMA20 - input.SMA200) / input.SMA200
	if !bullish {
		separation = -separation
	}
	if separation > 0.05 {
		c += 0.10
	}

	return clampConfidence(c)
}

// GetMetadata describes this strategy for strategies.Registry.
func (s *MACrossoverStrategy) GetMetadata() StrategyMetadata {
	return StrategyMetadata{
		ID:          s.id,
		Name:        s.name,
		Description: "Trend-following strategy based on moving average alignments (golden/death cross)",
		EventTypes:  []string{"golden_cross", "death_cross", "ma_pullback"},
		MinRR:       2.0,
		MaxRisk:     1.5,
		Timeframes:  []string{"1h", "4h", "1d"},
	}
}
