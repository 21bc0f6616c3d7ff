package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type contactQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGContactResolver resolves patient contacts from the patient_contacts
// table. A patient without a row gets no notifications; that is a routing
// gap, not a delivery failure.
type PGContactResolver struct {
	db contactQuerier
}

// NewPGContactResolver creates a resolver backed by a pgx pool.
func NewPGContactResolver(pool *pgxpool.Pool) *PGContactResolver {
	if pool == nil {
		panic("notify: pgx pool required")
	}
	return &PGContactResolver{db: pool}
}

// NewPGContactResolverWithQuerier allows injecting a mock in tests.
func NewPGContactResolverWithQuerier(q contactQuerier) *PGContactResolver {
	if q == nil {
		panic("notify: querier required")
	}
	return &PGContactResolver{db: q}
}

func (r *PGContactResolver) ContactFor(ctx context.Context, patientID uuid.UUID) (*Contact, error) {
	var c Contact
	err := r.db.QueryRow(ctx,
		`SELECT email, full_name FROM patient_contacts WHERE patient_id = $1`,
		patientID,
	).Scan(&c.Email, &c.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("notify: lookup contact: %w", err)
	}
	return &c, nil
}
