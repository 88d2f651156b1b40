// cmd/backtester is the offline entry point for the deterministic
// backtesting engine: it loads a trading/simulation config and a candle
// feed from disk, replays them against a momentum strategy adapter, and
// writes the resulting Result as JSON plus the human-readable report.
// There is no live broker connection; every input arrives as a file.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"backtestsim/internal/domain"
	"backtestsim/internal/engine/scheduler"
	"backtestsim/internal/feed"
	"backtestsim/internal/strategy/momentum"
	"backtestsim/libs/observability"
	"backtestsim/libs/risk"
)

// runConfig is the on-disk document combining everything the engine needs
// for one run, so a single JSON file can be threaded end to end by the CLI.
type runConfig struct {
	Trading    domain.TradingConfig    `json:"trading"`
	Simulation domain.SimulationConfig `json:"simulation"`
}

func main() {
	var (
		configPath  = flag.String("config", "", "path to the trading/simulation config JSON (required)")
		feedPath    = flag.String("feed", "", "path to the candle feed JSON, an array of {timestamp,symbol,open,high,low,close,volume} (required)")
		riskPath    = flag.String("risk", "", "optional path to a risk-constraints JSON policy; falls back to the conservative default when the file does not exist")
		strategyID  = flag.String("strategy", "ma_crossover_v1", "registered strategy id: ma_crossover_v1, macd_crossover_v1, or rsi_momentum_v1")
		outPath     = flag.String("out", "", "file to write the Markdown report to; when empty it appears only in the JSON result on stdout")
		metricsPath = flag.String("metrics", "", "optional file to write Prometheus text-format run metrics to")
	)
	flag.Parse()

	if *configPath == "" || *feedPath == "" {
		fmt.Fprintln(os.Stderr, "usage: backtester -config run.json -feed candles.json [-strategy id] [-risk policy.json] [-out report.md]")
		os.Exit(1)
	}

	cfg, err := loadRunConfig(*configPath)
	if err != nil {
		log.Fatalf("backtester: %v", err)
	}
	if errs := domain.Validate(cfg.Trading, cfg.Simulation); len(errs) > 0 {
		log.Fatalf("backtester: invalid config: %v", errs)
	}

	candles, err := loadCandles(*feedPath)
	if err != nil {
		log.Fatalf("backtester: %v", err)
	}
	if err := feed.Validate(candles, cfg.Trading.TradableTokens); err != nil {
		log.Fatalf("backtester: %v", err)
	}

	var policy *risk.Policy
	if *riskPath != "" {
		policy, err = risk.LoadPolicy(*riskPath)
		observability.LogPolicyLoad(context.Background(), *riskPath, err)
		if err != nil {
			log.Fatalf("backtester: %v", err)
		}
	}

	adapter, err := momentum.NewAdapter(*strategyID)
	if err != nil {
		log.Fatalf("backtester: %v", err)
	}

	sched := scheduler.New(cfg.Trading, cfg.Simulation, policy)
	result, err := sched.Run(context.Background(), adapter, feed.NewSlice(candles))
	if err != nil {
		log.Fatalf("backtester: run failed: %v", err)
	}

	summary, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		log.Fatalf("backtester: marshal result: %v", err)
	}
	fmt.Println(string(summary))

	if *outPath != "" {
		if err := os.WriteFile(*outPath, []byte(result.Report), 0o644); err != nil {
			log.Fatalf("backtester: write report: %v", err)
		}
	}

	if *metricsPath != "" {
		f, err := os.Create(*metricsPath)
		if err != nil {
			log.Fatalf("backtester: write metrics: %v", err)
		}
		observability.WriteMetrics(f)
		if err := f.Close(); err != nil {
			log.Fatalf("backtester: write metrics: %v", err)
		}
	}
}

func loadRunConfig(path string) (runConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return runConfig{}, fmt.Errorf("read config %q: %w", path, err)
	}
	var cfg runConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return runConfig{}, fmt.Errorf("parse config %q: %w", path, err)
	}
	return cfg, nil
}

func loadCandles(path string) ([]domain.Candle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read feed %q: %w", path, err)
	}
	var candles []domain.Candle
	if err := json.Unmarshal(data, &candles); err != nil {
		return nil, fmt.Errorf("parse feed %q: %w", path, err)
	}
	return candles, nil
}
