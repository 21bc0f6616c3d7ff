package refund

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/oakwell-health/booking-platform/internal/appointments"
)

var start = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func TestProviderCancellationsAlwaysRefund(t *testing.T) {
	for _, role := range []appointments.Role{appointments.RoleDoctor, appointments.RoleAdmin} {
		// Even one minute before the start.
		d := Decide(role, start, start.Add(-time.Minute))
		assert.True(t, d.Eligible(), "role %s", role)
		assert.Equal(t, "Cancelled by provider/clinic.", d.Reason)
	}
}

func TestPatientEarlyCancellationRefunds(t *testing.T) {
	d := Decide(appointments.RolePatient, start, start.Add(-30*time.Hour))
	assert.True(t, d.Eligible())
	assert.Equal(t, EligibilityFull, d.Eligibility)
	assert.Equal(t, "Cancelled ≥24h before appointment.", d.Reason)
}

func TestPatientLateCancellationForfeits(t *testing.T) {
	d := Decide(appointments.RolePatient, start, start.Add(-2*time.Hour))
	assert.False(t, d.Eligible())
	assert.Equal(t, EligibilityNone, d.Eligibility)
	assert.Equal(t, "Cancelled <24h before appointment.", d.Reason)
}

func TestPatientBoundaryIsInclusive(t *testing.T) {
	// Exactly 24h of notice still refunds.
	d := Decide(appointments.RolePatient, start, start.Add(-PatientCutoff))
	assert.True(t, d.Eligible())

	// One second less does not.
	d = Decide(appointments.RolePatient, start, start.Add(-PatientCutoff+time.Second))
	assert.False(t, d.Eligible())
}

func TestDecideComparesInUTC(t *testing.T) {
	est := time.FixedZone("EST", -5*3600)
	localNow := start.Add(-30 * time.Hour).In(est)
	d := Decide(appointments.RolePatient, start, localNow)
	assert.True(t, d.Eligible())
}

func TestPatientCancellationAfterStart(t *testing.T) {
	d := Decide(appointments.RolePatient, start, start.Add(time.Hour))
	assert.False(t, d.Eligible())
}
