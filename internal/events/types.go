package events

import "time"

// Event type names written to the outbox.
const (
	TypeAppointmentConfirmed = "appointment.confirmed.v1"
	TypeAppointmentOverflow  = "appointment.overflow.v1"
	TypeAppointmentCancelled = "appointment.cancelled.v1"
)

// AppointmentStatusChangedV1 is the payload for all appointment outcome
// events. QueueNumber is set only for confirmations.
type AppointmentStatusChangedV1 struct {
	AppointmentID string    `json:"appointment_id"`
	ScheduleID    string    `json:"schedule_id"`
	PatientID     string    `json:"patient_id"`
	Status        string    `json:"status"`
	QueueNumber   *int      `json:"queue_number,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}
