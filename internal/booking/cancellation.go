package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/oakwell-health/booking-platform/internal/appointments"
	"github.com/oakwell-health/booking-platform/internal/booking/refund"
	"github.com/oakwell-health/booking-platform/internal/events"
	"github.com/oakwell-health/booking-platform/internal/observability/metrics"
	"github.com/oakwell-health/booking-platform/internal/payments"
	"github.com/oakwell-health/booking-platform/pkg/logging"
)

// CancellationService cancels appointments and settles the refund
// consequence. The cancellation itself always wins: a failed refund is
// recorded on the payment row for retry, never rolled back into an
// un-cancelled appointment.
type CancellationService struct {
	appts   appointmentStore
	payRepo paymentStore
	refunds refunder
	outbox  outboxWriter
	metrics *metrics.BookingMetrics
	logger  *logging.Logger
	now     func() time.Time
}

func NewCancellationService(appts appointmentStore, payRepo paymentStore, refunds refunder, outbox outboxWriter, m *metrics.BookingMetrics, logger *logging.Logger) *CancellationService {
	if logger == nil {
		logger = logging.Default()
	}
	return &CancellationService{
		appts:   appts,
		payRepo: payRepo,
		refunds: refunds,
		outbox:  outbox,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// WithClock overrides the time source.
func (s *CancellationService) WithClock(now func() time.Time) *CancellationService {
	if now != nil {
		s.now = now
	}
	return s
}

// Cancel transitions the appointment to CANCELLED and applies the refund
// policy. The returned decision tells the caller whether money is coming
// back and why. Transition rejections surface verbatim; a double cancel is
// rejected by the terminal-state rule.
func (s *CancellationService) Cancel(ctx context.Context, appointmentID, requesterID uuid.UUID, role appointments.Role, reason string) (*refund.Decision, error) {
	ctx, span := bookingTracer.Start(ctx, "booking.cancel")
	defer span.End()
	span.SetAttributes(
		attribute.String("booking.appointment_id", appointmentID.String()),
		attribute.String("booking.cancelled_by", string(role)),
	)

	appt, err := s.appts.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if role == appointments.RolePatient && appt.PatientID != requesterID {
		return nil, ErrNotAppointmentOwner
	}

	now := s.now()
	if err := appointments.ValidateTransition(appt.Status, appointments.StatusCancelled, appt.StartsAt, appt.EndsAt, now); err != nil {
		return nil, err
	}

	decision := refund.Decide(role, appt.StartsAt, now)

	if err := s.appts.MarkCancelled(ctx, appt.ID, role, now, reason); err != nil {
		return nil, err
	}
	s.logger.Info("appointment cancelled",
		"appointment_id", appt.ID,
		"cancelled_by", role,
		"requester_id", requesterID,
		"refund", decision.Eligibility,
	)
	s.emit(ctx, appt, decision, now)

	if decision.Eligible() {
		s.issueRefund(ctx, appt.ID)
	}
	return &decision, nil
}

// issueRefund refunds the appointment's payment without failing the
// cancellation. Appointments from the legacy slot path may have no payment
// row at all; that is not an error.
func (s *CancellationService) issueRefund(ctx context.Context, appointmentID uuid.UUID) {
	pay, err := s.payRepo.GetByAppointment(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, payments.ErrNotFound) {
			return
		}
		s.logger.Error("failed to load payment for refund", "appointment_id", appointmentID, "error", err)
		return
	}
	if err := s.refunds.IssueFullRefund(ctx, pay); err != nil {
		s.metrics.ObserveRefund("failed")
		s.logger.Error("cancellation refund failed, left for retry worker", "payment_id", pay.ID, "error", err)
		return
	}
	s.metrics.ObserveRefund("refunded")
}

func (s *CancellationService) emit(ctx context.Context, appt *appointments.Appointment, decision refund.Decision, now time.Time) {
	if s.outbox == nil {
		return
	}
	payload := events.AppointmentStatusChangedV1{
		AppointmentID: appt.ID.String(),
		ScheduleID:    appt.ScheduleID.String(),
		PatientID:     appt.PatientID.String(),
		Status:        string(appointments.StatusCancelled),
		Reason:        decision.Reason,
		OccurredAt:    now,
	}
	if _, err := s.outbox.Insert(ctx, appt.ID, events.TypeAppointmentCancelled, payload); err != nil {
		s.logger.Error("failed to enqueue outbox event", "appointment_id", appt.ID, "error", err)
	}
}
