// Package refundworker re-drives refunds that the gateway rejected on the
// first attempt. A refund is never dropped: it stays REFUND_FAILED until
// it succeeds or exhausts its attempt budget, at which point it is flagged
// for manual follow-up.
package refundworker

import (
	"context"
	"time"

	"github.com/oakwell-health/booking-platform/internal/payments"
	"github.com/oakwell-health/booking-platform/pkg/logging"
)

type refundStore interface {
	ListRefundRetryCandidates(ctx context.Context, limit int32, maxAttempts int) ([]payments.Payment, error)
}

type refundIssuer interface {
	IssueFullRefund(ctx context.Context, p *payments.Payment) error
}

// Retrier periodically retries stuck refunds.
type Retrier struct {
	store       refundStore
	issuer      refundIssuer
	logger      *logging.Logger
	maxAttempts int
	interval    time.Duration
	batchSize   int32
}

func NewRetrier(store refundStore, issuer refundIssuer, logger *logging.Logger) *Retrier {
	if logger == nil {
		logger = logging.Default()
	}
	return &Retrier{
		store:       store,
		issuer:      issuer,
		logger:      logger,
		maxAttempts: 5,
		interval:    time.Minute,
		batchSize:   25,
	}
}

func (r *Retrier) WithMaxAttempts(n int) *Retrier {
	if n > 0 {
		r.maxAttempts = n
	}
	return r
}

func (r *Retrier) WithInterval(d time.Duration) *Retrier {
	if d > 0 {
		r.interval = d
	}
	return r
}

func (r *Retrier) WithBatchSize(n int32) *Retrier {
	if n > 0 {
		r.batchSize = n
	}
	return r
}

func (r *Retrier) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	r.drain(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.drain(ctx)
		}
	}
}

func (r *Retrier) drain(ctx context.Context) {
	if r.store == nil || r.issuer == nil {
		return
	}
	candidates, err := r.store.ListRefundRetryCandidates(ctx, r.batchSize, r.maxAttempts)
	if err != nil {
		r.logger.Error("refund retry fetch failed", "error", err)
		return
	}
	for i := range candidates {
		p := candidates[i]
		if err := r.issuer.IssueFullRefund(ctx, &p); err != nil {
			// The issuer already recorded the failure and bumped the
			// attempt counter.
			r.logger.Warn("refund retry failed",
				"payment_id", p.ID,
				"attempts", p.RefundAttempts+1,
				"error", err,
			)
			continue
		}
		r.logger.Info("stuck refund completed", "payment_id", p.ID)
	}
}
