package schedules

import (
	"time"

	"github.com/google/uuid"
)

// Schedule is a doctor-defined capacity window: a date plus wall-clock
// bounds, a patient ceiling, and the price charged per reservation.
// StartsAt/EndsAt are the resolved UTC instants used for all comparisons.
type Schedule struct {
	ID          uuid.UUID
	DoctorID    uuid.UUID
	VisitDate   time.Time
	StartTime   string
	EndTime     string
	StartsAt    time.Time
	EndsAt      time.Time
	MaxPatients int
	PriceCents  int64
	CreatedAt   time.Time
}

// Ended reports whether the window can no longer accept bookings.
func (s *Schedule) Ended(now time.Time) bool {
	return now.After(s.EndsAt)
}
