package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when an appointment id does not exist.
var ErrNotFound = errors.New("appointments: not found")

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository persists appointment rows.
type Repository struct {
	db querier
}

// NewRepository creates a repository backed by a pgx pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("appointments: pgx pool required")
	}
	return &Repository{db: pool}
}

// NewRepositoryWithQuerier allows injecting a mock in tests.
func NewRepositoryWithQuerier(q querier) *Repository {
	if q == nil {
		panic("appointments: querier required")
	}
	return &Repository{db: q}
}

const appointmentColumns = `
	id, patient_id, doctor_id, schedule_id, starts_at, ends_at, status,
	queue_number, cancelled_by, cancelled_at, cancel_reason, created_at, updated_at`

// CreatePending inserts a new PENDING appointment with no queue number.
func (r *Repository) CreatePending(ctx context.Context, patientID, doctorID, scheduleID uuid.UUID, startsAt, endsAt time.Time) (*Appointment, error) {
	query := `
		INSERT INTO appointments (id, patient_id, doctor_id, schedule_id, starts_at, ends_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING` + appointmentColumns
	row := r.db.QueryRow(ctx, query, uuid.New(), patientID, doctorID, scheduleID, startsAt, endsAt, StatusPending)
	appt, err := scanAppointment(row)
	if err != nil {
		return nil, fmt.Errorf("appointments: create pending: %w", err)
	}
	return appt, nil
}

// GetByID loads a single appointment.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	query := `SELECT` + appointmentColumns + ` FROM appointments WHERE id = $1`
	appt, err := scanAppointment(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("appointments: load by id: %w", err)
	}
	return appt, nil
}

// MarkCancelled stamps the cancellation outcome onto the row.
func (r *Repository) MarkCancelled(ctx context.Context, id uuid.UUID, by Role, at time.Time, reason string) error {
	query := `
		UPDATE appointments
		SET status = $2, cancelled_by = $3, cancelled_at = $4, cancel_reason = NULLIF($5, ''), updated_at = now()
		WHERE id = $1`
	ct, err := r.db.Exec(ctx, query, id, StatusCancelled, by, at, reason)
	if err != nil {
		return fmt.Errorf("appointments: mark cancelled: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkCompleted stamps a completed visit. The queue number is retained.
func (r *Repository) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE appointments SET status = $2, updated_at = now() WHERE id = $1`
	ct, err := r.db.Exec(ctx, query, id, StatusCompleted)
	if err != nil {
		return fmt.Errorf("appointments: mark completed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkOverflow parks a still-pending appointment in OVERFLOW. It is a
// no-op for rows that already left PENDING, so concurrent settlement paths
// cannot clobber an admitted appointment.
func (r *Repository) MarkOverflow(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE appointments SET status = $2, updated_at = now() WHERE id = $1 AND status = $3`
	if _, err := r.db.Exec(ctx, query, id, StatusOverflow, StatusPending); err != nil {
		return fmt.Errorf("appointments: mark overflow: %w", err)
	}
	return nil
}

// MarkNoShow stamps a no-show. No refund is ever issued for a no-show.
func (r *Repository) MarkNoShow(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE appointments SET status = $2, updated_at = now() WHERE id = $1`
	ct, err := r.db.Exec(ctx, query, id, StatusNoShow)
	if err != nil {
		return fmt.Errorf("appointments: mark no-show: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListCompletionDue returns admitted appointments whose window has ended.
func (r *Repository) ListCompletionDue(ctx context.Context, now time.Time, limit int32) ([]Appointment, error) {
	query := `
		SELECT` + appointmentColumns + `
		FROM appointments
		WHERE status IN ($1, $2) AND ends_at <= $3
		ORDER BY ends_at
		LIMIT $4`
	rows, err := r.db.Query(ctx, query, StatusConfirmed, StatusBooked, now, limit)
	if err != nil {
		return nil, fmt.Errorf("appointments: list completion due: %w", err)
	}
	defer rows.Close()

	var out []Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("appointments: scan completion due: %w", err)
		}
		out = append(out, *appt)
	}
	return out, rows.Err()
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var cancelledBy *string
	if err := row.Scan(
		&a.ID, &a.PatientID, &a.DoctorID, &a.ScheduleID, &a.StartsAt, &a.EndsAt, &a.Status,
		&a.QueueNumber, &cancelledBy, &a.CancelledAt, &a.CancelReason, &a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if cancelledBy != nil {
		role := Role(*cancelledBy)
		a.CancelledBy = &role
	}
	return &a, nil
}
