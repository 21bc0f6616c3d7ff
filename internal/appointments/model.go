package appointments

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	// StatusBooked is a legacy alias kept for rows written by the old
	// scheduler; it behaves like CONFIRMED for completion purposes.
	StatusBooked    Status = "BOOKED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
	StatusNoShow    Status = "NO_SHOW"
	StatusOverflow  Status = "OVERFLOW"
)

// Terminal reports whether no further transition is permitted from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusNoShow, StatusOverflow:
		return true
	}
	return false
}

// Role identifies who is acting on an appointment.
type Role string

const (
	RolePatient Role = "PATIENT"
	RoleDoctor  Role = "DOCTOR"
	RoleAdmin   Role = "ADMIN"
)

// ParseRole normalizes a role claim, returning false for unknown values.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RolePatient, RoleDoctor, RoleAdmin:
		return Role(s), true
	}
	return "", false
}

// Appointment is a patient's reservation inside a doctor's capacity window.
// Rows are never deleted; terminal outcomes are stamped onto the row.
type Appointment struct {
	ID           uuid.UUID
	PatientID    uuid.UUID
	DoctorID     uuid.UUID
	ScheduleID   uuid.UUID
	StartsAt     time.Time
	EndsAt       time.Time
	Status       Status
	QueueNumber  *int
	CancelledBy  *Role
	CancelledAt  *time.Time
	CancelReason *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
