package domain_test

import (
	"testing"

	"backtestsim/internal/domain"
)

func TestWalletAvailableNeverNegative(t *testing.T) {
	w := domain.NewWallet("USD", map[string]float64{"USD": 100})
	w.Commit("USD", 150)
	if got := w.Available("USD"); got != 0 {
		t.Errorf("expected Available to clamp at 0 when committed exceeds balance, got %.8f", got)
	}
}

func TestWalletCommitReleaseRoundTrip(t *testing.T) {
	w := domain.NewWallet("USD", map[string]float64{"USD": 100})
	w.Commit("USD", 40)
	if got := w.Available("USD"); got != 60 {
		t.Fatalf("expected Available=60 after committing 40 of 100, got %.8f", got)
	}
	w.Release("USD", 40)
	if got := w.Available("USD"); got != 100 {
		t.Fatalf("expected Available=100 after releasing the full commitment, got %.8f", got)
	}
	if got := w.Committed["USD"]; got != 0 {
		t.Errorf("expected Committed to be exactly 0 after a full release, got %.8f", got)
	}
}

func TestWalletReleaseClampsBelowEpsilon(t *testing.T) {
	w := domain.NewWallet("USD", map[string]float64{"USD": 100})
	w.Commit("USD", 10)
	w.Release("USD", 10+domain.Epsilon/2)
	if got := w.Committed["USD"]; got != 0 {
		t.Errorf("expected a sub-epsilon overshoot on release to clamp to 0, got %.8e", got)
	}
}

func TestWalletSnapshotIsDefensiveCopy(t *testing.T) {
	w := domain.NewWallet("USD", map[string]float64{"USD": 100})
	snap := w.Snapshot()
	snap["USD"] = 0
	if got := w.Balance("USD"); got != 100 {
		t.Errorf("mutating a Snapshot result must not affect the wallet, got balance %.8f", got)
	}
}
