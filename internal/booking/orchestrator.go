// Package booking drives the reserve-pay-admit protocol. A booking holds
// no seat until the payment settles; the capacity ledger decides at
// settlement time whether the paid appointment is admitted with a queue
// number or overflowed and refunded.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/oakwell-health/booking-platform/internal/appointments"
	"github.com/oakwell-health/booking-platform/internal/capacity"
	"github.com/oakwell-health/booking-platform/internal/events"
	"github.com/oakwell-health/booking-platform/internal/observability/metrics"
	"github.com/oakwell-health/booking-platform/internal/payments"
	"github.com/oakwell-health/booking-platform/internal/schedules"
	"github.com/oakwell-health/booking-platform/pkg/logging"
)

var bookingTracer = otel.Tracer("booking.internal.booking")

var (
	// ErrForbiddenRole is returned when a non-patient tries to book.
	ErrForbiddenRole = errors.New("booking: only patients can book appointments")
	// ErrScheduleEnded is returned when the window is already over.
	ErrScheduleEnded = errors.New("booking: schedule has already ended")
	// ErrTooManyAttempts is returned when the patient exceeds the booking
	// velocity limit.
	ErrTooManyAttempts = errors.New("booking: too many booking attempts")
	// ErrIntentMismatch is returned when a settlement references an intent
	// that does not belong to the appointment's payment.
	ErrIntentMismatch = errors.New("booking: payment intent does not match appointment")
	// ErrPaymentNotSettled is returned when the gateway does not report the
	// intent as succeeded.
	ErrPaymentNotSettled = errors.New("booking: payment intent not settled")
	// ErrNotAppointmentOwner is returned when a patient acts on someone
	// else's appointment.
	ErrNotAppointmentOwner = errors.New("booking: appointment belongs to another patient")
)

// OverflowReasonFull is recorded when the window was at capacity.
const OverflowReasonFull = "Schedule is fully booked."

type scheduleStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*schedules.Schedule, error)
}

type appointmentStore interface {
	CreatePending(ctx context.Context, patientID, doctorID, scheduleID uuid.UUID, startsAt, endsAt time.Time) (*appointments.Appointment, error)
	GetByID(ctx context.Context, id uuid.UUID) (*appointments.Appointment, error)
	MarkOverflow(ctx context.Context, id uuid.UUID) error
	MarkCancelled(ctx context.Context, id uuid.UUID, by appointments.Role, at time.Time, reason string) error
}

type paymentStore interface {
	Create(ctx context.Context, appointmentID, patientID, doctorID uuid.UUID, amountCents int64, currency, intentID string) (*payments.Payment, error)
	GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*payments.Payment, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status payments.Status) error
}

type admitter interface {
	TryAdmit(ctx context.Context, scheduleID, appointmentID uuid.UUID) (capacity.Admission, error)
}

type refunder interface {
	IssueFullRefund(ctx context.Context, p *payments.Payment) error
}

type outboxWriter interface {
	Insert(ctx context.Context, appointmentID uuid.UUID, eventType string, payload any) (uuid.UUID, error)
}

type velocityGate interface {
	CheckBookingVelocity(ctx context.Context, patientID uuid.UUID) (*VelocityResult, error)
}

// BookingIntent is what the client needs to complete payment for a
// reservation. The appointment is PENDING and holds no seat yet.
type BookingIntent struct {
	AppointmentID uuid.UUID
	PaymentID     uuid.UUID
	ClientSecret  string
	AmountCents   int64
	Currency      string
}

// Orchestrator coordinates schedules, payments, and the capacity ledger.
type Orchestrator struct {
	schedules scheduleStore
	appts     appointmentStore
	payRepo   paymentStore
	gateway   payments.Gateway
	ledger    admitter
	refunds   refunder
	velocity  velocityGate
	outbox    outboxWriter
	metrics   *metrics.BookingMetrics
	logger    *logging.Logger
	currency  string
	now       func() time.Time
}

// OrchestratorConfig wires the orchestrator's collaborators.
type OrchestratorConfig struct {
	Schedules    scheduleStore
	Appointments appointmentStore
	Payments     paymentStore
	Gateway      payments.Gateway
	Ledger       admitter
	Refunds      refunder
	Velocity     velocityGate
	Outbox       outboxWriter
	Metrics      *metrics.BookingMetrics
	Logger       *logging.Logger
	Currency     string
}

func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	currency := cfg.Currency
	if currency == "" {
		currency = "usd"
	}
	return &Orchestrator{
		schedules: cfg.Schedules,
		appts:     cfg.Appointments,
		payRepo:   cfg.Payments,
		gateway:   cfg.Gateway,
		ledger:    cfg.Ledger,
		refunds:   cfg.Refunds,
		velocity:  cfg.Velocity,
		outbox:    cfg.Outbox,
		metrics:   cfg.Metrics,
		logger:    logger,
		currency:  currency,
		now:       time.Now,
	}
}

// WithClock overrides the time source.
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	if now != nil {
		o.now = now
	}
	return o
}

// StartBooking reserves a PENDING appointment in the window and opens a
// payment intent for the window's price. Capacity is not consulted here;
// the seat is contested only when the payment settles.
func (o *Orchestrator) StartBooking(ctx context.Context, scheduleID, patientID uuid.UUID, role appointments.Role) (*BookingIntent, error) {
	ctx, span := bookingTracer.Start(ctx, "booking.start")
	defer span.End()
	span.SetAttributes(
		attribute.String("booking.schedule_id", scheduleID.String()),
		attribute.String("booking.patient_id", patientID.String()),
	)

	if role != appointments.RolePatient {
		return nil, ErrForbiddenRole
	}

	sched, err := o.schedules.GetByID(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if !o.now().Before(sched.EndsAt) {
		return nil, ErrScheduleEnded
	}

	if o.velocity != nil {
		res, err := o.velocity.CheckBookingVelocity(ctx, patientID)
		if err != nil {
			return nil, err
		}
		if !res.Allowed {
			return nil, fmt.Errorf("%w: %s", ErrTooManyAttempts, res.Message)
		}
	}

	appt, err := o.appts.CreatePending(ctx, patientID, sched.DoctorID, sched.ID, sched.StartsAt, sched.EndsAt)
	if err != nil {
		return nil, err
	}

	intent, err := o.gateway.CreateIntent(ctx, sched.PriceCents, o.currency)
	if err != nil {
		return nil, fmt.Errorf("booking: create payment intent: %w", err)
	}

	pay, err := o.payRepo.Create(ctx, appt.ID, patientID, sched.DoctorID, sched.PriceCents, o.currency, intent.ID)
	if err != nil {
		return nil, err
	}

	o.logger.Info("booking started",
		"appointment_id", appt.ID,
		"schedule_id", sched.ID,
		"patient_id", patientID,
		"amount_cents", sched.PriceCents,
	)

	return &BookingIntent{
		AppointmentID: appt.ID,
		PaymentID:     pay.ID,
		ClientSecret:  intent.ClientSecret,
		AmountCents:   sched.PriceCents,
		Currency:      o.currency,
	}, nil
}

// OnPaymentSucceeded settles a paid reservation: the appointment is either
// admitted with a queue number or overflowed and refunded. Once settlement
// begins the appointment always reaches CONFIRMED or OVERFLOW, except when
// admission retries are exhausted, in which case it stays PENDING and the
// error surfaces for reconciliation.
func (o *Orchestrator) OnPaymentSucceeded(ctx context.Context, appointmentID uuid.UUID, intentID string) error {
	ctx, span := bookingTracer.Start(ctx, "booking.on_payment_succeeded")
	defer span.End()
	span.SetAttributes(
		attribute.String("booking.appointment_id", appointmentID.String()),
		attribute.String("booking.intent_id", intentID),
	)

	appt, err := o.appts.GetByID(ctx, appointmentID)
	if err != nil {
		return err
	}
	pay, err := o.payRepo.GetByAppointment(ctx, appointmentID)
	if err != nil {
		return err
	}
	if pay.GatewayIntentID == nil || *pay.GatewayIntentID != intentID {
		return ErrIntentMismatch
	}

	status, err := o.gateway.GetIntentStatus(ctx, intentID)
	if err != nil {
		return fmt.Errorf("booking: verify intent status: %w", err)
	}
	if status != payments.IntentSucceeded {
		return fmt.Errorf("%w: gateway reports %q", ErrPaymentNotSettled, status)
	}

	if appt.Status == appointments.StatusConfirmed || appt.Status == appointments.StatusBooked {
		// Replayed settlement for an already admitted appointment.
		o.logger.Info("settlement replay ignored, appointment already admitted", "appointment_id", appt.ID)
		return nil
	}

	now := o.now()
	if verr := appointments.ValidateTransition(appt.Status, appointments.StatusConfirmed, appt.StartsAt, appt.EndsAt, now); verr != nil {
		// The money arrived but the appointment can no longer be
		// confirmed. Same outcome as a full window: park it and give the
		// money back.
		return o.overflow(ctx, appt, pay, reasonOf(verr))
	}

	admitStart := time.Now()
	adm, err := o.ledger.TryAdmit(ctx, appt.ScheduleID, appt.ID)
	if err != nil {
		if errors.Is(err, capacity.ErrAdmissionConflict) {
			o.metrics.ObserveAdmissionConflict()
			o.logger.Error("paid appointment stuck pending after admission conflict",
				"appointment_id", appt.ID,
				"schedule_id", appt.ScheduleID,
				"error", err,
			)
			return err
		}
		if errors.Is(err, capacity.ErrAppointmentNotPending) {
			// A concurrent settlement won the race; nothing left to do.
			o.logger.Info("settlement race lost, appointment already resolved", "appointment_id", appt.ID)
			return nil
		}
		return err
	}
	elapsed := time.Since(admitStart).Seconds()

	if !adm.Admitted {
		o.metrics.ObserveAdmission("overflow", elapsed)
		o.logger.Info("window full, appointment overflowed",
			"appointment_id", appt.ID,
			"schedule_id", appt.ScheduleID,
		)
		o.emit(ctx, appt, events.TypeAppointmentOverflow, events.AppointmentStatusChangedV1{
			AppointmentID: appt.ID.String(),
			ScheduleID:    appt.ScheduleID.String(),
			PatientID:     appt.PatientID.String(),
			Status:        string(appointments.StatusOverflow),
			Reason:        OverflowReasonFull,
			OccurredAt:    now,
		})
		o.refund(ctx, pay)
		return nil
	}

	o.metrics.ObserveAdmission("confirmed", elapsed)
	if err := o.payRepo.UpdateStatus(ctx, pay.ID, payments.StatusCompleted); err != nil {
		// The seat is held either way; the payment row catches up on the
		// next settlement replay.
		o.logger.Error("failed to mark payment completed", "payment_id", pay.ID, "error", err)
	}
	queue := adm.QueueNumber
	o.emit(ctx, appt, events.TypeAppointmentConfirmed, events.AppointmentStatusChangedV1{
		AppointmentID: appt.ID.String(),
		ScheduleID:    appt.ScheduleID.String(),
		PatientID:     appt.PatientID.String(),
		Status:        string(appointments.StatusConfirmed),
		QueueNumber:   &queue,
		OccurredAt:    now,
	})
	o.logger.Info("appointment confirmed",
		"appointment_id", appt.ID,
		"schedule_id", appt.ScheduleID,
		"queue_number", queue,
	)
	return nil
}

// overflow parks a paid but unconfirmable appointment and refunds it.
func (o *Orchestrator) overflow(ctx context.Context, appt *appointments.Appointment, pay *payments.Payment, reason string) error {
	if appt.Status == appointments.StatusPending {
		if err := o.appts.MarkOverflow(ctx, appt.ID); err != nil {
			return err
		}
		o.metrics.ObserveAdmission("overflow", 0)
		o.emit(ctx, appt, events.TypeAppointmentOverflow, events.AppointmentStatusChangedV1{
			AppointmentID: appt.ID.String(),
			ScheduleID:    appt.ScheduleID.String(),
			PatientID:     appt.PatientID.String(),
			Status:        string(appointments.StatusOverflow),
			Reason:        reason,
			OccurredAt:    o.now(),
		})
	}
	o.logger.Info("paid appointment not confirmable, refunding",
		"appointment_id", appt.ID,
		"status", appt.Status,
		"reason", reason,
	)
	o.refund(ctx, pay)
	return nil
}

// refund issues a full refund without failing the settlement; a failed
// refund lands in REFUND_FAILED for the retry worker.
func (o *Orchestrator) refund(ctx context.Context, pay *payments.Payment) {
	if err := o.refunds.IssueFullRefund(ctx, pay); err != nil {
		o.metrics.ObserveRefund("failed")
		o.logger.Error("refund failed, left for retry worker", "payment_id", pay.ID, "error", err)
		return
	}
	o.metrics.ObserveRefund("refunded")
}

func (o *Orchestrator) emit(ctx context.Context, appt *appointments.Appointment, eventType string, payload events.AppointmentStatusChangedV1) {
	if o.outbox == nil {
		return
	}
	if _, err := o.outbox.Insert(ctx, appt.ID, eventType, payload); err != nil {
		o.logger.Error("failed to enqueue outbox event", "appointment_id", appt.ID, "type", eventType, "error", err)
	}
}

func reasonOf(err error) string {
	var terr *appointments.TransitionError
	if errors.As(err, &terr) {
		return terr.Reason
	}
	return err.Error()
}
