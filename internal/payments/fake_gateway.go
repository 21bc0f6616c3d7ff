package payments

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/oakwell-health/booking-platform/pkg/logging"
)

// FakeGateway is a dev/demo payment provider that lets the booking flow run
// without real gateway credentials.
//
// This MUST be gated by configuration (ALLOW_FAKE_PAYMENTS) and should never
// be enabled in production.
type FakeGateway struct {
	mu       sync.Mutex
	statuses map[string]IntentStatus
	refunds  map[string]int64
	logger   *logging.Logger

	// FailRefunds makes Refund return an error, for exercising the
	// refund-retry path in development.
	FailRefunds bool
}

func NewFakeGateway(logger *logging.Logger) *FakeGateway {
	if logger == nil {
		logger = logging.Default()
	}
	return &FakeGateway{
		statuses: make(map[string]IntentStatus),
		refunds:  make(map[string]int64),
		logger:   logger,
	}
}

func (g *FakeGateway) CreateIntent(ctx context.Context, amountCents int64, currency string) (Intent, error) {
	_ = ctx
	id := "fake_pi_" + uuid.NewString()
	g.mu.Lock()
	g.statuses[id] = IntentRequiresPaymentMethod
	g.mu.Unlock()
	g.logger.Info("fake intent created", "intent_id", id, "amount_cents", amountCents, "currency", currency)
	return Intent{ID: id, ClientSecret: id + "_secret"}, nil
}

func (g *FakeGateway) GetIntentStatus(ctx context.Context, intentID string) (IntentStatus, error) {
	_ = ctx
	g.mu.Lock()
	defer g.mu.Unlock()
	status, ok := g.statuses[intentID]
	if !ok {
		return "", ErrIntentNotFound
	}
	return status, nil
}

func (g *FakeGateway) Refund(ctx context.Context, paymentRef string, amountCents int64) (string, error) {
	_ = ctx
	if g.FailRefunds {
		return "", fmt.Errorf("payments: fake gateway refund rejected")
	}
	g.mu.Lock()
	g.refunds[paymentRef] += amountCents
	g.mu.Unlock()
	return "fake_re_" + uuid.NewString(), nil
}

// CompletePayment simulates the patient finishing checkout.
func (g *FakeGateway) CompletePayment(intentID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.statuses[intentID]; !ok {
		return ErrIntentNotFound
	}
	g.statuses[intentID] = IntentSucceeded
	return nil
}

// RefundedAmount reports the total refunded against a payment ref.
func (g *FakeGateway) RefundedAmount(paymentRef string) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.refunds[paymentRef]
}
