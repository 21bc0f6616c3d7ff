// Package sweeper closes out admitted appointments whose window has
// ended. It is the scheduled counterpart to the interactive booking flow:
// CONFIRMED and BOOKED rows become COMPLETED once their end time passes.
package sweeper

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/oakwell-health/booking-platform/internal/appointments"
	"github.com/oakwell-health/booking-platform/pkg/logging"
)

type completionStore interface {
	ListCompletionDue(ctx context.Context, now time.Time, limit int32) ([]appointments.Appointment, error)
	MarkCompleted(ctx context.Context, id uuid.UUID) error
}

// Sweeper marks due appointments COMPLETED on a fixed interval.
type Sweeper struct {
	store     completionStore
	logger    *logging.Logger
	interval  time.Duration
	batchSize int32
	now       func() time.Time
}

func New(store completionStore, logger *logging.Logger) *Sweeper {
	if logger == nil {
		logger = logging.Default()
	}
	return &Sweeper{
		store:     store,
		logger:    logger,
		interval:  5 * time.Minute,
		batchSize: 100,
		now:       time.Now,
	}
}

func (s *Sweeper) WithInterval(d time.Duration) *Sweeper {
	if d > 0 {
		s.interval = d
	}
	return s
}

func (s *Sweeper) WithBatchSize(n int32) *Sweeper {
	if n > 0 {
		s.batchSize = n
	}
	return s
}

// WithClock overrides the time source.
func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	if s.store == nil {
		return
	}
	now := s.now()
	due, err := s.store.ListCompletionDue(ctx, now, s.batchSize)
	if err != nil {
		s.logger.Error("completion sweep fetch failed", "error", err)
		return
	}
	completed := 0
	for i := range due {
		appt := &due[i]
		// The query already filters to admitted rows, but the transition
		// rules stay the single authority on what may complete.
		if err := appointments.ValidateTransition(appt.Status, appointments.StatusCompleted, appt.StartsAt, appt.EndsAt, now); err != nil {
			s.logger.Warn("sweep skipped appointment", "appointment_id", appt.ID, "reason", err.Error())
			continue
		}
		if err := s.store.MarkCompleted(ctx, appt.ID); err != nil {
			s.logger.Error("sweep failed to complete appointment", "appointment_id", appt.ID, "error", err)
			continue
		}
		completed++
	}
	if completed > 0 {
		s.logger.Info("completion sweep finished", "completed", completed, "due", len(due))
	}
}
