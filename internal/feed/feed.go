// Package feed defines the boundary to the external market-data ingestion
// adapter: a lazy, time-ordered sequence of candles. The engine only
// ever consumes this interface; fetching, caching and rate-limiting
// historical candles from a real exchange is explicitly out of scope
// and left to the caller.
package feed

import "backtestsim/internal/domain"

// Source yields candles one at a time, sorted non-decreasing by
// timestamp, with Symbol drawn from the run's tradableTokens. Next
// returns ok=false once the sequence is exhausted.
type Source interface {
	Next() (candle domain.Candle, ok bool, err error)
}

// Slice adapts a pre-loaded, in-memory candle slice to Source. This is
// the reference implementation used by tests and the CLI's offline mode;
// a live ingestion adapter would implement Source by streaming from an
// exchange API or a database instead.
type Slice struct {
	candles []domain.Candle
	pos     int
}

// NewSlice wraps candles as a Source. The caller is responsible for
// ensuring candles are already sorted by timestamp; Validate enforces it.
func NewSlice(candles []domain.Candle) *Slice {
	return &Slice{candles: candles}
}

func (s *Slice) Next() (domain.Candle, bool, error) {
	if s.pos >= len(s.candles) {
		return domain.Candle{}, false, nil
	}
	c := s.candles[s.pos]
	s.pos++
	return c, true, nil
}

// Validate checks for out-of-order and unknown-symbol candles ahead of a
// run — both are fatal — so the scheduler can fail fast instead of
// discovering corruption mid-replay.
func Validate(candles []domain.Candle, tradableTokens []string) error {
	allowed := make(map[string]bool, len(tradableTokens))
	for _, t := range tradableTokens {
		allowed[t] = true
	}

	var lastTs int64
	for i, c := range candles {
		if i > 0 && c.Timestamp < lastTs {
			return domain.NewFeedError("candle %d out of order: timestamp %d < previous %d", i, c.Timestamp, lastTs)
		}
		if !allowed[c.Symbol] {
			return domain.NewFeedError("candle %d: unknown symbol %q", i, c.Symbol)
		}
		lastTs = c.Timestamp
	}
	return nil
}
