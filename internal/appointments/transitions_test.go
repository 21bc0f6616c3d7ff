package appointments

import (
	"errors"
	"testing"
	"time"
)

var allStatuses = []Status{
	StatusPending, StatusConfirmed, StatusBooked,
	StatusCompleted, StatusCancelled, StatusNoShow, StatusOverflow,
}

func reasonOf(t *testing.T, err error) string {
	t.Helper()
	var te *TransitionError
	if !errors.As(err, &te) {
		t.Fatalf("expected *TransitionError, got %v", err)
	}
	return te.Reason
}

func TestSameStatusIsAlwaysNoOp(t *testing.T) {
	now := time.Now().UTC()
	timings := [][2]time.Time{
		{now.Add(-2 * time.Hour), now.Add(-time.Hour)},
		{now.Add(-time.Hour), now.Add(time.Hour)},
		{now.Add(time.Hour), now.Add(2 * time.Hour)},
	}
	for _, s := range allStatuses {
		for _, tt := range timings {
			if err := ValidateTransition(s, s, tt[0], tt[1], now); err != nil {
				t.Fatalf("self transition %s rejected: %v", s, err)
			}
		}
	}
}

func TestTerminalSourcesReject(t *testing.T) {
	now := time.Now().UTC()
	start, end := now.Add(time.Hour), now.Add(2*time.Hour)

	cases := []struct {
		from   Status
		reason string
	}{
		{StatusCancelled, "Cannot update a cancelled appointment."},
		{StatusCompleted, "Cannot update a completed appointment."},
		{StatusNoShow, "Cannot update a no-show appointment."},
		{StatusOverflow, "Cannot update an overflowed appointment."},
	}
	for _, c := range cases {
		for _, next := range allStatuses {
			if next == c.from {
				continue
			}
			err := ValidateTransition(c.from, next, start, end, now)
			if err == nil {
				t.Fatalf("expected %s -> %s to be rejected", c.from, next)
			}
			if got := reasonOf(t, err); got != c.reason {
				t.Fatalf("wrong reason for %s -> %s: %q", c.from, next, got)
			}
		}
	}
}

func TestCompleteUnconfirmedRejects(t *testing.T) {
	now := time.Now().UTC()
	timings := [][2]time.Time{
		{now.Add(-2 * time.Hour), now.Add(-time.Hour)},
		{now.Add(-time.Hour), now.Add(time.Hour)},
		{now.Add(time.Hour), now.Add(2 * time.Hour)},
	}
	for _, tt := range timings {
		err := ValidateTransition(StatusPending, StatusCompleted, tt[0], tt[1], now)
		if err == nil {
			t.Fatal("expected PENDING -> COMPLETED to be rejected")
		}
		if got := reasonOf(t, err); got != "Cannot complete an unconfirmed appointment." {
			t.Fatalf("wrong reason: %q", got)
		}
	}
}

func TestCompleteBeforeStartRejects(t *testing.T) {
	now := time.Now().UTC()
	err := ValidateTransition(StatusConfirmed, StatusCompleted, now.Add(time.Hour), now.Add(2*time.Hour), now)
	if err == nil {
		t.Fatal("expected completion before start to be rejected")
	}
	if got := reasonOf(t, err); got != "Cannot complete an appointment that hasn't started." {
		t.Fatalf("wrong reason: %q", got)
	}
}

func TestCompleteAfterStartSucceeds(t *testing.T) {
	now := time.Now().UTC()
	for _, from := range []Status{StatusConfirmed, StatusBooked} {
		if err := ValidateTransition(from, StatusCompleted, now.Add(-time.Hour), now.Add(time.Hour), now); err != nil {
			t.Fatalf("%s -> COMPLETED mid-window rejected: %v", from, err)
		}
	}
}

func TestCompleteExactlyAtStartSucceeds(t *testing.T) {
	now := time.Now().UTC()
	if err := ValidateTransition(StatusConfirmed, StatusCompleted, now, now.Add(time.Hour), now); err != nil {
		t.Fatalf("completion exactly at start rejected: %v", err)
	}
}

func TestConfirmPastWindowRejects(t *testing.T) {
	now := time.Now().UTC()
	err := ValidateTransition(StatusPending, StatusConfirmed, now.Add(-2*time.Hour), now.Add(-time.Hour), now)
	if err == nil {
		t.Fatal("expected confirming a past appointment to be rejected")
	}
	if got := reasonOf(t, err); got != "Cannot confirm a past appointment." {
		t.Fatalf("wrong reason: %q", got)
	}
}

func TestConfirmFutureWindowSucceeds(t *testing.T) {
	now := time.Now().UTC()
	if err := ValidateTransition(StatusPending, StatusConfirmed, now.Add(time.Hour), now.Add(2*time.Hour), now); err != nil {
		t.Fatalf("confirming a future appointment rejected: %v", err)
	}
}

func TestConfirmInsideWindowSucceeds(t *testing.T) {
	// Patients may confirm slightly late, while the window is still open.
	now := time.Now().UTC()
	if err := ValidateTransition(StatusPending, StatusConfirmed, now.Add(-30*time.Minute), now.Add(90*time.Minute), now); err != nil {
		t.Fatalf("late confirm inside the window rejected: %v", err)
	}
}

func TestConfirmExactlyAtEndSucceeds(t *testing.T) {
	now := time.Now().UTC()
	if err := ValidateTransition(StatusPending, StatusConfirmed, now.Add(-time.Hour), now, now); err != nil {
		t.Fatalf("confirm exactly at window end rejected: %v", err)
	}
}

func TestCancelAlwaysAllowedFromActiveStates(t *testing.T) {
	now := time.Now().UTC()
	timings := [][2]time.Time{
		{now.Add(-2 * time.Hour), now.Add(-time.Hour)},
		{now.Add(-time.Hour), now.Add(time.Hour)},
		{now.Add(time.Hour), now.Add(2 * time.Hour)},
	}
	for _, from := range []Status{StatusPending, StatusConfirmed, StatusBooked} {
		for _, tt := range timings {
			if err := ValidateTransition(from, StatusCancelled, tt[0], tt[1], now); err != nil {
				t.Fatalf("%s -> CANCELLED rejected: %v", from, err)
			}
		}
	}
}

func TestTerminalHelper(t *testing.T) {
	for _, s := range []Status{StatusCompleted, StatusCancelled, StatusNoShow, StatusOverflow} {
		if !s.Terminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
	for _, s := range []Status{StatusPending, StatusConfirmed, StatusBooked} {
		if s.Terminal() {
			t.Fatalf("%s should not be terminal", s)
		}
	}
}
