package domain_test

import (
	"testing"

	"github.com/google/uuid"

	"backtestsim/internal/domain"
)

func newOrder(requested float64) domain.SimulatedOrder {
	return domain.SimulatedOrder{
		ID:              uuid.New(),
		RequestedAmount: requested,
		RemainingAmount: requested,
		Status:          domain.StatusOpen,
	}
}

func TestApplyFillRequestedEqualsFilledPlusRemaining(t *testing.T) {
	o := newOrder(10)
	o = domain.ApplyFill(o, 4, 100, 1)
	if got := o.FilledAmount + o.RemainingAmount; got != o.RequestedAmount {
		t.Errorf("filled+remaining must equal requested, got %.8f+%.8f != %.8f", o.FilledAmount, o.RemainingAmount, o.RequestedAmount)
	}
	if o.Status != domain.StatusPartial {
		t.Errorf("expected partial status after a partial fill, got %s", o.Status)
	}

	o = domain.ApplyFill(o, 6, 110, 2)
	if got := o.FilledAmount + o.RemainingAmount; got != o.RequestedAmount {
		t.Errorf("filled+remaining must equal requested after the closing fill, got %.8f+%.8f != %.8f", o.FilledAmount, o.RemainingAmount, o.RequestedAmount)
	}
	if o.Status != domain.StatusFilled {
		t.Errorf("expected filled status once remaining drops below epsilon, got %s", o.Status)
	}
}

func TestApplyFillExecutionPriceIsVolumeWeighted(t *testing.T) {
	o := newOrder(10)
	o = domain.ApplyFill(o, 4, 100, 1)
	o = domain.ApplyFill(o, 6, 200, 2)

	want := (4*100 + 6*200) / 10.0
	if o.ExecutionPrice != want {
		t.Errorf("expected volume-weighted execution price %.8f, got %.8f", want, o.ExecutionPrice)
	}
}

func TestFillProgressOfZeroRequested(t *testing.T) {
	if got := domain.FillProgressOf(5, 0); got != 0 {
		t.Errorf("expected FillProgressOf to guard a zero-requested order, got %.8f", got)
	}
}

func TestOrderStatusTerminal(t *testing.T) {
	cases := map[domain.OrderStatus]bool{
		domain.StatusPending:   false,
		domain.StatusOpen:      false,
		domain.StatusPartial:   false,
		domain.StatusFilled:    true,
		domain.StatusCancelled: true,
		domain.StatusRejected:  true,
	}
	for status, want := range cases {
		if got := status.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v, want %v", status, got, want)
		}
	}
}
