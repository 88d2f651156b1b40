package domain_test

import (
	"testing"

	"backtestsim/internal/domain"
)

func TestPositionLongShortClassification(t *testing.T) {
	long := domain.Position{Amount: 2}
	short := domain.Position{Amount: -2}
	flat := domain.Position{Amount: 0}

	if !long.IsLong() || long.IsShort() {
		t.Error("amount > 0 must classify as long, never short")
	}
	if !short.IsShort() || short.IsLong() {
		t.Error("amount < 0 must classify as short, never long")
	}
	if flat.IsLong() || flat.IsShort() {
		t.Error("a zero amount must be neither long nor short")
	}
}

func TestPositionUnrealizedPnLMirrorsLongAndShort(t *testing.T) {
	long := domain.Position{Amount: 2, EntryPrice: 100}
	if got := long.UnrealizedPnL(110); got != 20 {
		t.Errorf("expected long PnL of 20 on a 10-point gain over 2 units, got %.8f", got)
	}

	short := domain.Position{Amount: -2, EntryPrice: 100}
	if got := short.UnrealizedPnL(110); got != -20 {
		t.Errorf("expected short PnL of -20 on a 10-point adverse move over 2 units, got %.8f", got)
	}
	if got := short.UnrealizedPnL(90); got != 20 {
		t.Errorf("expected short PnL of 20 on a 10-point favorable move, got %.8f", got)
	}
}
