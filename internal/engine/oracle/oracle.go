// Package oracle implements the simulated price oracle: it
// tracks the latest price per symbol, an append-only price history for
// historical lookups, and applies deterministic seeded volatility and
// slippage to reads.
package oracle

import (
	"sort"

	"backtestsim/internal/engine/simrand"
)

// spread is the bid/ask half-spread applied around the latest price.
const spread = 0.0005

// point is one (price, timestamp) observation.
type point struct {
	price     float64
	timestamp int64
}

// Quote is the bid/ask/mid view returned by CurrentPrice.
type Quote struct {
	Price float64
	Bid   float64
	Ask   float64
}

// Oracle is the engine's single source of truth for simulated prices. It
// is not safe for concurrent use; access is serialized by the Scheduler.
type Oracle struct {
	latest     map[string]point
	history    map[string][]point
	volatility float64
	rng        *simrand.Generator
}

// New creates an Oracle with the given volatility in [0,1] and RNG seed.
func New(volatility float64, seed int64) *Oracle {
	return &Oracle{
		latest:     make(map[string]point),
		history:    make(map[string][]point),
		volatility: volatility,
		rng:        simrand.New(seed),
	}
}

// Update records a new observed price for symbol at timestamp, setting
// the latest price and appending to the history.
func (o *Oracle) Update(symbol string, price float64, timestamp int64) {
	p := point{price: price, timestamp: timestamp}
	o.latest[symbol] = p
	o.history[symbol] = append(o.history[symbol], p)
}

// perturb applies the deterministic volatility perturbation
// price*(2*rand-1)*volatility. Each call advances the oracle's own RNG,
// so two consecutive CurrentPrice reads for the same symbol return
// different values; callers must not assume idempotent reads.
func (o *Oracle) perturb(price float64) float64 {
	if o.volatility <= 0 {
		return price
	}
	return price + price*o.rng.Signed()*o.volatility
}

// CurrentPrice returns the volatility-perturbed latest price for symbol
// plus its bid/ask quote. ok is false if no price has been observed yet.
func (o *Oracle) CurrentPrice(symbol string) (Quote, bool) {
	p, found := o.latest[symbol]
	if !found {
		return Quote{}, false
	}
	price := o.perturb(p.price)
	return Quote{
		Price: price,
		Bid:   price * (1 - spread),
		Ask:   price * (1 + spread),
	}, true
}

// ExecutionPrice returns the volatility-perturbed base price adjusted for
// slippage on the given side: buys pay base*(1+rand*slippage), sells
// receive base/(1+rand*slippage). ok is false if no price is known yet.
func (o *Oracle) ExecutionPrice(symbol string, isBuy bool, slippage float64) (float64, bool) {
	p, found := o.latest[symbol]
	if !found {
		return 0, false
	}
	base := o.perturb(p.price)
	if slippage <= 0 {
		return base, true
	}
	factor := 1 + o.rng.Next()*slippage
	if isBuy {
		return base * factor, true
	}
	return base / factor, true
}

// HistoricalAt returns the last known price for symbol with a timestamp
// <= t, via binary search over the append-only history.
func (o *Oracle) HistoricalAt(symbol string, t int64) (float64, bool) {
	hist := o.history[symbol]
	if len(hist) == 0 {
		return 0, false
	}
	idx := sort.Search(len(hist), func(i int) bool { return hist[i].timestamp > t })
	if idx == 0 {
		return 0, false
	}
	return hist[idx-1].price, true
}
