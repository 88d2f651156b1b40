// Package simrand provides the seeded linear-congruential generator the
// whole engine draws nondeterministic choices from:
//
//	state <- (state*9301 + 49297) mod 233280
//	output  <- state/233280
//
// Every component with a nondeterministic choice — the price oracle's
// volatility perturbation, the order processor's failure roll and limit
// fill probability — owns its own Generator so that call order in one
// component never perturbs another's sequence.
package simrand

// Generator is a single seeded LCG stream.
type Generator struct {
	state int64
}

// New seeds a Generator. A zero seed still produces a deterministic
// sequence, so callers never need to special-case "no seed configured".
func New(seed int64) *Generator {
	return &Generator{state: seed}
}

// Next returns the next value in [0, 1).
func (g *Generator) Next() float64 {
	g.state = (g.state*9301 + 49297) % 233280
	if g.state < 0 {
		g.state += 233280
	}
	return float64(g.state) / 233280.0
}

// Signed returns the next value in [-1, 1).
func (g *Generator) Signed() float64 {
	return 2*g.Next() - 1
}
