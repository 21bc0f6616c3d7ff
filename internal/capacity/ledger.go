// Package capacity serializes admission of paid appointments against a
// window's patient ceiling. TryAdmit is the only operation in the system
// that must be strictly ordered across replicas, so the ordering lives in
// the database: a row lock on the window plus a serializable transaction,
// never an in-process counter.
package capacity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/oakwell-health/booking-platform/internal/appointments"
	"github.com/oakwell-health/booking-platform/pkg/logging"
)

var ledgerTracer = otel.Tracer("booking.internal.capacity")

var (
	// ErrScheduleNotFound is returned when the window does not exist.
	ErrScheduleNotFound = errors.New("capacity: schedule not found")
	// ErrAppointmentNotPending is returned when the target appointment is
	// in a state that cannot be admitted or overflowed.
	ErrAppointmentNotPending = errors.New("capacity: appointment is not pending")
	// ErrAdmissionConflict reports exhausted serialization retries. The
	// appointment is left PENDING for reconciliation; this is a transient
	// operational error, never an Overflow.
	ErrAdmissionConflict = errors.New("capacity: admission conflict, retries exhausted")
)

type db interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// Admission is the outcome of TryAdmit: either the appointment was admitted
// with a queue number, or the window was full and it overflowed. Overflow is
// a defined outcome, not an error.
type Admission struct {
	Admitted    bool
	QueueNumber int
}

// Ledger admits CONFIRMED appointments against schedule capacity and
// assigns gapless 1-based queue numbers in commit order.
type Ledger struct {
	db         db
	logger     *logging.Logger
	maxRetries int
	baseDelay  time.Duration
	sleep      func(time.Duration)
}

func NewLedger(db db, logger *logging.Logger) *Ledger {
	if db == nil {
		panic("capacity: database required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Ledger{
		db:         db,
		logger:     logger,
		maxRetries: 3,
		baseDelay:  25 * time.Millisecond,
		sleep:      time.Sleep,
	}
}

func (l *Ledger) WithMaxRetries(n int) *Ledger {
	if n > 0 {
		l.maxRetries = n
	}
	return l
}

func (l *Ledger) WithBaseDelay(d time.Duration) *Ledger {
	if d > 0 {
		l.baseDelay = d
	}
	return l
}

// TryAdmit atomically counts admitted appointments for the window and either
// confirms the target appointment with the next queue number or marks it
// OVERFLOW. Serialization failures are retried with exponential backoff;
// exhaustion returns ErrAdmissionConflict and leaves the appointment PENDING.
func (l *Ledger) TryAdmit(ctx context.Context, scheduleID, appointmentID uuid.UUID) (Admission, error) {
	ctx, span := ledgerTracer.Start(ctx, "capacity.try_admit")
	defer span.End()
	span.SetAttributes(
		attribute.String("booking.schedule_id", scheduleID.String()),
		attribute.String("booking.appointment_id", appointmentID.String()),
	)

	var lastErr error
	for attempt := 0; attempt <= l.maxRetries; attempt++ {
		if attempt > 0 {
			l.sleep(l.baseDelay << (attempt - 1))
		}
		adm, err := l.tryAdmitOnce(ctx, scheduleID, appointmentID)
		if err == nil {
			span.SetAttributes(attribute.Bool("booking.admitted", adm.Admitted))
			return adm, nil
		}
		if !isSerializationFailure(err) {
			span.RecordError(err)
			return Admission{}, err
		}
		lastErr = err
		l.logger.Warn("admission transaction conflict, retrying",
			"schedule_id", scheduleID,
			"appointment_id", appointmentID,
			"attempt", attempt+1,
		)
	}

	span.RecordError(lastErr)
	l.logger.Error("admission retries exhausted, appointment left pending",
		"schedule_id", scheduleID,
		"appointment_id", appointmentID,
		"error", lastErr,
	)
	return Admission{}, fmt.Errorf("%w: %v", ErrAdmissionConflict, lastErr)
}

// tryAdmitOnce makes the admit-or-overflow decision in one transaction.
// Mutual exclusion between concurrent settlements is the FOR UPDATE lock on
// the schedule row; the mock tests pin the SQL contract, the exclusion
// itself is exercised by the DATABASE_URL-gated integration tests.
func (l *Ledger) tryAdmitOnce(ctx context.Context, scheduleID, appointmentID uuid.UUID) (Admission, error) {
	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return Admission{}, fmt.Errorf("capacity: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// The row lock on the window serializes concurrent admissions even if
	// the store downgrades the isolation level.
	var maxPatients int
	err = tx.QueryRow(ctx, `SELECT max_patients FROM schedules WHERE id = $1 FOR UPDATE`, scheduleID).Scan(&maxPatients)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Admission{}, ErrScheduleNotFound
		}
		return Admission{}, fmt.Errorf("capacity: lock schedule: %w", err)
	}

	// The set of admitted rows is the source of truth, never a cached
	// counter: replicas cannot diverge on a transactional aggregate.
	var confirmed int
	err = tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM appointments
		WHERE schedule_id = $1 AND status IN ($2, $3, $4)`,
		scheduleID, appointments.StatusConfirmed, appointments.StatusBooked, appointments.StatusCompleted,
	).Scan(&confirmed)
	if err != nil {
		return Admission{}, fmt.Errorf("capacity: count admitted: %w", err)
	}

	if confirmed >= maxPatients {
		ct, err := tx.Exec(ctx, `
			UPDATE appointments SET status = $2, updated_at = now()
			WHERE id = $1 AND status = $3`,
			appointmentID, appointments.StatusOverflow, appointments.StatusPending)
		if err != nil {
			return Admission{}, fmt.Errorf("capacity: mark overflow: %w", err)
		}
		if ct.RowsAffected() == 0 {
			return Admission{}, ErrAppointmentNotPending
		}
		if err := tx.Commit(ctx); err != nil {
			return Admission{}, fmt.Errorf("capacity: commit overflow: %w", err)
		}
		return Admission{Admitted: false}, nil
	}

	// The next queue number continues the highest ever assigned in the
	// window, not confirmed+1: cancelled rows keep their number, so a
	// cancellation frees a seat without freeing its number for reuse.
	var queueNumber int
	err = tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    queue_number = (
		        SELECT COALESCE(MAX(queue_number), 0) + 1
		        FROM appointments WHERE schedule_id = $3
		    ),
		    updated_at = now()
		WHERE id = $1 AND status = $4
		RETURNING queue_number`,
		appointmentID, appointments.StatusConfirmed, scheduleID, appointments.StatusPending,
	).Scan(&queueNumber)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Admission{}, ErrAppointmentNotPending
		}
		return Admission{}, fmt.Errorf("capacity: admit: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Admission{}, fmt.Errorf("capacity: commit admission: %w", err)
	}
	return Admission{Admitted: true, QueueNumber: queueNumber}, nil
}

// isSerializationFailure matches Postgres serialization_failure (40001) and
// deadlock_detected (40P01), both safe to retry from scratch.
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}
