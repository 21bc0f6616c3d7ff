package payments

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a payment record.
type Status string

const (
	StatusPending       Status = "PENDING"
	StatusProcessing    Status = "PROCESSING"
	StatusCompleted     Status = "COMPLETED"
	StatusFailed        Status = "FAILED"
	StatusRefundPending Status = "REFUND_PENDING"
	StatusRefunded      Status = "REFUNDED"
	StatusRefundFailed  Status = "REFUND_FAILED"
)

// Payment links an appointment to its gateway charge.
// RefundedCents never exceeds AmountCents.
type Payment struct {
	ID              uuid.UUID
	AppointmentID   *uuid.UUID
	PatientID       uuid.UUID
	DoctorID        uuid.UUID
	AmountCents     int64
	Currency        string
	Status          Status
	GatewayIntentID *string
	RefundedCents   int64
	RefundID        *string
	RefundAttempts  int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
