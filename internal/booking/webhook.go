package booking

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/oakwell-health/booking-platform/internal/appointments"
	"github.com/oakwell-health/booking-platform/internal/capacity"
	"github.com/oakwell-health/booking-platform/internal/observability/metrics"
	"github.com/oakwell-health/booking-platform/internal/payments"
	"github.com/oakwell-health/booking-platform/pkg/logging"
)

// eventIntentSucceeded is the only gateway event the booking flow acts on.
const eventIntentSucceeded = "payment_intent.succeeded"

// signatureHeader carries the gateway's hex HMAC-SHA256 of the raw body.
const signatureHeader = "X-Gateway-Signature"

const processedProvider = "gateway"

type processedTracker interface {
	AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, provider, eventID string) (bool, error)
}

// settler is the slice of the orchestrator the webhook drives.
type settler interface {
	OnPaymentSucceeded(ctx context.Context, appointmentID uuid.UUID, intentID string) error
}

// WebhookHandler receives payment gateway callbacks and feeds settlements
// into the orchestrator. Events the system can never act on are acked with
// 200 so the gateway stops retrying them; transient failures return 5xx so
// the gateway retries.
type WebhookHandler struct {
	secret    string
	settler   settler
	processed processedTracker
	metrics   *metrics.BookingMetrics
	logger    *logging.Logger
}

func NewWebhookHandler(secret string, settler settler, processed processedTracker, m *metrics.BookingMetrics, logger *logging.Logger) *WebhookHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &WebhookHandler{
		secret:    secret,
		settler:   settler,
		processed: processed,
		metrics:   m,
		logger:    logger,
	}
}

type gatewayEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		IntentID      string `json:"intent_id"`
		AppointmentID string `json:"appointment_id"`
	} `json:"data"`
}

// Handle processes POST /webhooks/payments.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	if !verifySignature(h.secret, payload, r.Header.Get(signatureHeader)) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	var evt gatewayEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		h.logger.Error("failed to decode gateway event", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if evt.ID == "" {
		http.Error(w, "missing event id", http.StatusBadRequest)
		return
	}

	if evt.Type != eventIntentSucceeded {
		h.metrics.ObserveWebhook(evt.Type, "ignored", time.Since(started).Seconds())
		w.WriteHeader(http.StatusOK)
		return
	}

	ctx := r.Context()
	if done, err := h.processed.AlreadyProcessed(ctx, processedProvider, evt.ID); err != nil {
		h.logger.Error("processed lookup failed", "error", err, "event_id", evt.ID)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	} else if done {
		h.metrics.ObserveWebhook(evt.Type, "duplicate", time.Since(started).Seconds())
		w.WriteHeader(http.StatusOK)
		return
	}

	appointmentID, err := uuid.Parse(evt.Data.AppointmentID)
	if err != nil || evt.Data.IntentID == "" {
		// Malformed payloads will never become processable; ack them.
		h.logger.Warn("gateway event missing usable references", "event_id", evt.ID)
		h.metrics.ObserveWebhook(evt.Type, "unprocessable", time.Since(started).Seconds())
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := h.settler.OnPaymentSucceeded(ctx, appointmentID, evt.Data.IntentID); err != nil {
		if isUnprocessable(err) {
			h.logger.Warn("gateway event unprocessable, acking",
				"event_id", evt.ID,
				"appointment_id", appointmentID,
				"error", err,
			)
			h.markProcessed(ctx, evt.ID)
			h.metrics.ObserveWebhook(evt.Type, "unprocessable", time.Since(started).Seconds())
			w.WriteHeader(http.StatusOK)
			return
		}
		h.logger.Error("settlement failed, gateway will retry",
			"event_id", evt.ID,
			"appointment_id", appointmentID,
			"error", err,
		)
		h.metrics.ObserveWebhook(evt.Type, "error", time.Since(started).Seconds())
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	h.markProcessed(ctx, evt.ID)
	h.metrics.ObserveWebhook(evt.Type, "processed", time.Since(started).Seconds())
	w.WriteHeader(http.StatusOK)
}

func (h *WebhookHandler) markProcessed(ctx context.Context, eventID string) {
	if _, err := h.processed.MarkProcessed(ctx, processedProvider, eventID); err != nil {
		h.logger.Error("failed to mark event processed", "event_id", eventID, "error", err)
	}
}

// isUnprocessable reports errors that retrying the same event can never
// fix. Admission conflicts are deliberately excluded: the gateway's retry
// is the recovery path for a stranded PENDING appointment.
func isUnprocessable(err error) bool {
	return errors.Is(err, ErrIntentMismatch) ||
		errors.Is(err, ErrPaymentNotSettled) ||
		errors.Is(err, appointments.ErrNotFound) ||
		errors.Is(err, payments.ErrNotFound) ||
		errors.Is(err, capacity.ErrScheduleNotFound)
}

// verifySignature checks the gateway's hex HMAC-SHA256 over the raw body.
func verifySignature(secret string, payload []byte, header string) bool {
	if secret == "" {
		return true // bypass for development
	}
	if header == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(header), []byte(expected))
}
