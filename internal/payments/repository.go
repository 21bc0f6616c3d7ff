package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a payment row does not exist.
var ErrNotFound = errors.New("payments: not found")

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository persists payment intents and lifecycle transitions.
type Repository struct {
	db querier
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("payments: pgx pool required")
	}
	return &Repository{db: pool}
}

// NewRepositoryWithQuerier allows injecting a mock in tests.
func NewRepositoryWithQuerier(q querier) *Repository {
	if q == nil {
		panic("payments: querier required")
	}
	return &Repository{db: q}
}

const paymentColumns = `
	id, appointment_id, patient_id, doctor_id, amount_cents, currency, status,
	gateway_intent_id, refunded_cents, refund_id, refund_attempts, created_at, updated_at`

// Create inserts a pending payment tied to an appointment and gateway intent.
func (r *Repository) Create(ctx context.Context, appointmentID, patientID, doctorID uuid.UUID, amountCents int64, currency, intentID string) (*Payment, error) {
	query := `
		INSERT INTO payments (id, appointment_id, patient_id, doctor_id, amount_cents, currency, status, gateway_intent_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING` + paymentColumns
	row := r.db.QueryRow(ctx, query, uuid.New(), appointmentID, patientID, doctorID, amountCents, currency, StatusPending, intentID)
	p, err := scanPayment(row)
	if err != nil {
		return nil, fmt.Errorf("payments: create: %w", err)
	}
	return p, nil
}

// GetByAppointment loads the payment linked to an appointment.
func (r *Repository) GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Payment, error) {
	query := `SELECT` + paymentColumns + ` FROM payments WHERE appointment_id = $1`
	p, err := scanPayment(r.db.QueryRow(ctx, query, appointmentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("payments: load by appointment: %w", err)
	}
	return p, nil
}

// GetByIntentID loads a payment by its gateway intent reference.
func (r *Repository) GetByIntentID(ctx context.Context, intentID string) (*Payment, error) {
	query := `SELECT` + paymentColumns + ` FROM payments WHERE gateway_intent_id = $1`
	p, err := scanPayment(r.db.QueryRow(ctx, query, intentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("payments: load by intent: %w", err)
	}
	return p, nil
}

// UpdateStatus moves a payment to the given status.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error {
	query := `UPDATE payments SET status = $2, updated_at = now() WHERE id = $1`
	ct, err := r.db.Exec(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("payments: update status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkRefunded records a completed refund.
func (r *Repository) MarkRefunded(ctx context.Context, id uuid.UUID, refundID string, refundedCents int64) error {
	query := `
		UPDATE payments
		SET status = $2, refund_id = $3, refunded_cents = $4, updated_at = now()
		WHERE id = $1`
	ct, err := r.db.Exec(ctx, query, id, StatusRefunded, refundID, refundedCents)
	if err != nil {
		return fmt.Errorf("payments: mark refunded: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkRefundFailed records a failed refund attempt for later retry.
func (r *Repository) MarkRefundFailed(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE payments
		SET status = $2, refund_attempts = refund_attempts + 1, updated_at = now()
		WHERE id = $1`
	ct, err := r.db.Exec(ctx, query, id, StatusRefundFailed)
	if err != nil {
		return fmt.Errorf("payments: mark refund failed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListRefundRetryCandidates returns payments still owed a refund, oldest
// first, skipping those that exhausted their attempts.
func (r *Repository) ListRefundRetryCandidates(ctx context.Context, limit int32, maxAttempts int) ([]Payment, error) {
	query := `
		SELECT` + paymentColumns + `
		FROM payments
		WHERE status IN ($1, $2) AND refund_attempts < $3
		ORDER BY updated_at
		LIMIT $4`
	rows, err := r.db.Query(ctx, query, StatusRefundPending, StatusRefundFailed, maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("payments: list refund candidates: %w", err)
	}
	defer rows.Close()

	var out []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("payments: scan refund candidate: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	if err := row.Scan(
		&p.ID, &p.AppointmentID, &p.PatientID, &p.DoctorID, &p.AmountCents, &p.Currency, &p.Status,
		&p.GatewayIntentID, &p.RefundedCents, &p.RefundID, &p.RefundAttempts, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &p, nil
}
