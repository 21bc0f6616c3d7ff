// Package refund decides refund eligibility for cancelled appointments.
// The decision is a pure function of who cancelled and how far ahead of
// the appointment start they did it; issuing the money is the caller's
// problem.
package refund

import (
	"time"

	"github.com/oakwell-health/booking-platform/internal/appointments"
)

// Eligibility is the refund outcome class.
type Eligibility string

const (
	EligibilityFull Eligibility = "FULL"
	EligibilityNone Eligibility = "NONE"
)

// Decision is the policy outcome for one cancellation.
type Decision struct {
	Eligibility Eligibility
	Reason      string
}

// Eligible reports whether any amount should be refunded.
func (d Decision) Eligible() bool {
	return d.Eligibility == EligibilityFull
}

// PatientCutoff is the notice a patient must give for a full refund.
const PatientCutoff = 24 * time.Hour

// Decide applies the cancellation refund policy. Provider and clinic
// cancellations always refund in full. Patient cancellations refund in
// full with at least 24 hours of notice, boundary inclusive, and nothing
// after that. Times are compared in UTC.
func Decide(role appointments.Role, appointmentStart, now time.Time) Decision {
	switch role {
	case appointments.RoleDoctor, appointments.RoleAdmin:
		return Decision{Eligibility: EligibilityFull, Reason: "Cancelled by provider/clinic."}
	}

	cutoff := appointmentStart.UTC().Add(-PatientCutoff)
	if !now.UTC().After(cutoff) {
		return Decision{Eligibility: EligibilityFull, Reason: "Cancelled ≥24h before appointment."}
	}
	return Decision{Eligibility: EligibilityNone, Reason: "Cancelled <24h before appointment."}
}
