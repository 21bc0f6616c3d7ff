package schedules

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

var (
	// ErrNotFound is returned when a schedule id does not exist.
	ErrNotFound = errors.New("schedules: not found")
	// ErrInvalidCapacity rejects windows below one patient.
	ErrInvalidCapacity = errors.New("schedules: max patients must be at least 1")
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository persists capacity windows.
type Repository struct {
	db querier
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("schedules: pgx pool required")
	}
	return &Repository{db: pool}
}

func NewRepositoryWithQuerier(q querier) *Repository {
	if q == nil {
		panic("schedules: querier required")
	}
	return &Repository{db: q}
}

const scheduleColumns = `
	id, doctor_id, visit_date, start_time, end_time, starts_at, ends_at,
	max_patients, price_cents, created_at`

// Create inserts a new window. MaxPatients below 1 is rejected before any I/O.
func (r *Repository) Create(ctx context.Context, s Schedule) (*Schedule, error) {
	if s.MaxPatients < 1 {
		return nil, ErrInvalidCapacity
	}
	query := `
		INSERT INTO schedules (id, doctor_id, visit_date, start_time, end_time, starts_at, ends_at, max_patients, price_cents)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING` + scheduleColumns
	row := r.db.QueryRow(ctx, query,
		uuid.New(), s.DoctorID, s.VisitDate, s.StartTime, s.EndTime, s.StartsAt, s.EndsAt, s.MaxPatients, s.PriceCents)
	out, err := scanSchedule(row)
	if err != nil {
		return nil, fmt.Errorf("schedules: create: %w", err)
	}
	return out, nil
}

// GetByID loads a window.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Schedule, error) {
	query := `SELECT` + scheduleColumns + ` FROM schedules WHERE id = $1`
	out, err := scanSchedule(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("schedules: load by id: %w", err)
	}
	return out, nil
}

// ListByDoctor returns a doctor's windows for one date, earliest first.
func (r *Repository) ListByDoctor(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Schedule, error) {
	query := `
		SELECT` + scheduleColumns + `
		FROM schedules
		WHERE doctor_id = $1 AND visit_date = $2
		ORDER BY starts_at`
	rows, err := r.db.Query(ctx, query, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("schedules: list by doctor: %w", err)
	}
	defer rows.Close()

	var out []Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("schedules: scan list: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// UpdateCapacity changes the window's ceiling. Already-admitted
// confirmations are never revoked; a ceiling below the confirmed count
// only blocks future admissions.
func (r *Repository) UpdateCapacity(ctx context.Context, id uuid.UUID, maxPatients int) error {
	if maxPatients < 1 {
		return ErrInvalidCapacity
	}
	query := `UPDATE schedules SET max_patients = $2 WHERE id = $1`
	ct, err := r.db.Exec(ctx, query, id, maxPatients)
	if err != nil {
		return fmt.Errorf("schedules: update capacity: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanSchedule(row pgx.Row) (*Schedule, error) {
	var s Schedule
	if err := row.Scan(
		&s.ID, &s.DoctorID, &s.VisitDate, &s.StartTime, &s.EndTime, &s.StartsAt, &s.EndsAt,
		&s.MaxPatients, &s.PriceCents, &s.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &s, nil
}
