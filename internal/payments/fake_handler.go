package payments

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/oakwell-health/booking-platform/pkg/logging"
)

// SettleFunc feeds a completed fake payment into the booking flow the same
// way a gateway webhook would.
type SettleFunc func(ctx context.Context, appointmentID uuid.UUID, intentID string) error

type paymentLookup interface {
	GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Payment, error)
}

// FakePaymentsHandler exposes a tiny demo checkout to "complete" payments
// without a real gateway.
// Only mount this handler when ALLOW_FAKE_PAYMENTS=true.
type FakePaymentsHandler struct {
	repo    paymentLookup
	gateway *FakeGateway
	settle  SettleFunc
	logger  *logging.Logger
}

func NewFakePaymentsHandler(repo paymentLookup, gateway *FakeGateway, settle SettleFunc, logger *logging.Logger) *FakePaymentsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &FakePaymentsHandler{
		repo:    repo,
		gateway: gateway,
		settle:  settle,
		logger:  logger,
	}
}

func (h *FakePaymentsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/appointments/{appointmentID}/checkout", h.HandleCheckout)
	r.Post("/appointments/{appointmentID}/complete", h.HandleComplete)
	return r
}

// HandleCheckout renders a bare-bones checkout page for demos.
func (h *FakePaymentsHandler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	appointmentID, err := uuid.Parse(chi.URLParam(r, "appointmentID"))
	if err != nil {
		http.Error(w, "invalid appointment id", http.StatusBadRequest)
		return
	}
	pay, err := h.repo.GetByAppointment(r.Context(), appointmentID)
	if err != nil {
		http.Error(w, "payment not found", http.StatusNotFound)
		return
	}

	amount := float64(pay.AmountCents) / 100.0
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<!doctype html>
<html>
  <head><meta charset="utf-8" /><title>Demo checkout</title></head>
  <body>
    <h1>Demo checkout</h1>
    <p>Appointment %s</p>
    <p>Amount due: %.2f %s</p>
    <form method="post" action="/demo/appointments/%s/complete">
      <button type="submit">Pay now (fake)</button>
    </form>
  </body>
</html>`, appointmentID, amount, pay.Currency, appointmentID)
}

// HandleComplete marks the fake intent as succeeded and runs settlement.
func (h *FakePaymentsHandler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	appointmentID, err := uuid.Parse(chi.URLParam(r, "appointmentID"))
	if err != nil {
		http.Error(w, "invalid appointment id", http.StatusBadRequest)
		return
	}
	pay, err := h.repo.GetByAppointment(r.Context(), appointmentID)
	if err != nil {
		http.Error(w, "payment not found", http.StatusNotFound)
		return
	}
	if pay.GatewayIntentID == nil {
		http.Error(w, "payment has no intent", http.StatusConflict)
		return
	}

	if err := h.gateway.CompletePayment(*pay.GatewayIntentID); err != nil {
		http.Error(w, "intent not found on fake gateway", http.StatusConflict)
		return
	}
	h.logger.Info("fake payment completed", "appointment_id", appointmentID, "intent_id", *pay.GatewayIntentID)

	if h.settle != nil {
		if err := h.settle(r.Context(), appointmentID, *pay.GatewayIntentID); err != nil {
			h.logger.Error("fake settlement failed", "appointment_id", appointmentID, "error", err)
			http.Error(w, "settlement failed, poll the appointment", http.StatusAccepted)
			return
		}
	}

	http.Redirect(w, r, "/appointments/"+appointmentID.String(), http.StatusSeeOther)
}
