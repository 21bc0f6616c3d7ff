package payments

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/oakwell-health/booking-platform/pkg/logging"
)

var refundTracer = otel.Tracer("booking.internal.payments")

// RefundService drives full refunds through the gateway and records the
// outcome on the payment row. A failed gateway call leaves the payment in
// REFUND_FAILED for the retry worker; it is never silently dropped, and it
// never rolls back the appointment transition that triggered it.
type RefundService struct {
	gateway Gateway
	repo    *Repository
	logger  *logging.Logger
}

func NewRefundService(gateway Gateway, repo *Repository, logger *logging.Logger) *RefundService {
	if logger == nil {
		logger = logging.Default()
	}
	return &RefundService{gateway: gateway, repo: repo, logger: logger}
}

// IssueFullRefund refunds the unrefunded remainder of a payment.
func (s *RefundService) IssueFullRefund(ctx context.Context, p *Payment) error {
	ctx, span := refundTracer.Start(ctx, "payments.issue_full_refund")
	defer span.End()
	span.SetAttributes(attribute.String("booking.payment_id", p.ID.String()))

	if p.GatewayIntentID == nil || *p.GatewayIntentID == "" {
		return fmt.Errorf("payments: payment %s has no gateway reference to refund", p.ID)
	}
	remaining := p.AmountCents - p.RefundedCents
	if remaining <= 0 {
		return nil
	}

	if p.Status != StatusRefundPending && p.Status != StatusRefundFailed {
		if err := s.repo.UpdateStatus(ctx, p.ID, StatusRefundPending); err != nil {
			return err
		}
	}

	refundID, err := s.gateway.Refund(ctx, *p.GatewayIntentID, remaining)
	if err != nil {
		span.RecordError(err)
		s.logger.Error("refund failed, queued for retry",
			"payment_id", p.ID,
			"intent_id", *p.GatewayIntentID,
			"error", err,
		)
		if markErr := s.repo.MarkRefundFailed(ctx, p.ID); markErr != nil {
			s.logger.Error("failed to record refund failure", "payment_id", p.ID, "error", markErr)
		}
		return fmt.Errorf("payments: refund %s: %w", p.ID, err)
	}

	if err := s.repo.MarkRefunded(ctx, p.ID, refundID, p.AmountCents); err != nil {
		return err
	}
	s.logger.Info("payment refunded", "payment_id", p.ID, "refund_id", refundID, "amount_cents", remaining)
	return nil
}
