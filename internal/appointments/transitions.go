package appointments

import "time"

// TransitionError rejects a status transition with a user-facing reason.
// Handlers surface Reason verbatim.
type TransitionError struct {
	From   Status
	To     Status
	Reason string
}

func (e *TransitionError) Error() string {
	return e.Reason
}

// ValidateTransition decides whether an appointment may move from current to
// next at the given instant. It is pure: no I/O, no clock reads.
//
// Rules are evaluated in precedence order: same-status no-ops first, then
// terminal-state guards, then the timing rules for COMPLETED and CONFIRMED.
// Anything not explicitly rejected is allowed.
func ValidateTransition(current, next Status, start, end, now time.Time) error {
	if current == next {
		return nil
	}

	switch current {
	case StatusCancelled:
		return &TransitionError{From: current, To: next, Reason: "Cannot update a cancelled appointment."}
	case StatusCompleted:
		return &TransitionError{From: current, To: next, Reason: "Cannot update a completed appointment."}
	case StatusNoShow:
		return &TransitionError{From: current, To: next, Reason: "Cannot update a no-show appointment."}
	case StatusOverflow:
		return &TransitionError{From: current, To: next, Reason: "Cannot update an overflowed appointment."}
	}

	if next == StatusCompleted {
		if current == StatusPending {
			return &TransitionError{From: current, To: next, Reason: "Cannot complete an unconfirmed appointment."}
		}
		if current == StatusConfirmed || current == StatusBooked {
			if now.Before(start) {
				return &TransitionError{From: current, To: next, Reason: "Cannot complete an appointment that hasn't started."}
			}
			return nil
		}
	}

	if next == StatusConfirmed {
		// Late confirms inside the window are fine; a window that has
		// already ended can no longer be confirmed.
		if now.After(end) {
			return &TransitionError{From: current, To: next, Reason: "Cannot confirm a past appointment."}
		}
		return nil
	}

	return nil
}
