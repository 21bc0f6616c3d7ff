package booking

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/oakwell-health/booking-platform/internal/appointments"
	"github.com/oakwell-health/booking-platform/internal/auth"
	"github.com/oakwell-health/booking-platform/internal/schedules"
	"github.com/oakwell-health/booking-platform/pkg/logging"
)

// Handler exposes the booking and cancellation endpoints.
type Handler struct {
	orch   *Orchestrator
	cancel *CancellationService
	logger *logging.Logger
}

func NewHandler(orch *Orchestrator, cancel *CancellationService, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{orch: orch, cancel: cancel, logger: logger}
}

type startBookingRequest struct {
	ScheduleID string `json:"schedule_id"`
}

type startBookingResponse struct {
	AppointmentID string `json:"appointment_id"`
	PaymentID     string `json:"payment_id"`
	ClientSecret  string `json:"client_secret"`
	AmountCents   int64  `json:"amount_cents"`
	Currency      string `json:"currency"`
}

// Start handles POST /bookings. The response carries the client secret the
// caller needs to pay; the appointment stays PENDING until settlement.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		http.Error(w, "missing actor context", http.StatusUnauthorized)
		return
	}

	var req startBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	scheduleID, err := uuid.Parse(req.ScheduleID)
	if err != nil {
		http.Error(w, "invalid schedule_id", http.StatusBadRequest)
		return
	}

	intent, err := h.orch.StartBooking(r.Context(), scheduleID, actor.ID, actor.Role)
	if err != nil {
		switch {
		case errors.Is(err, ErrForbiddenRole):
			http.Error(w, err.Error(), http.StatusForbidden)
		case errors.Is(err, schedules.ErrNotFound):
			http.Error(w, "schedule not found", http.StatusNotFound)
		case errors.Is(err, ErrScheduleEnded):
			http.Error(w, "schedule has already ended", http.StatusConflict)
		case errors.Is(err, ErrTooManyAttempts):
			http.Error(w, "too many booking attempts, try again later", http.StatusTooManyRequests)
		default:
			h.logger.Error("start booking failed", "error", err, "schedule_id", scheduleID)
			http.Error(w, "server error", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(startBookingResponse{
		AppointmentID: intent.AppointmentID.String(),
		PaymentID:     intent.PaymentID.String(),
		ClientSecret:  intent.ClientSecret,
		AmountCents:   intent.AmountCents,
		Currency:      intent.Currency,
	})
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type cancelResponse struct {
	Status         string `json:"status"`
	RefundEligible bool   `json:"refund_eligible"`
	RefundReason   string `json:"refund_reason"`
}

// Cancel handles POST /appointments/{id}/cancel. Transition rejections are
// returned verbatim so the client can render them directly.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		http.Error(w, "missing actor context", http.StatusUnauthorized)
		return
	}

	appointmentID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid appointment id", http.StatusBadRequest)
		return
	}

	var req cancelRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
	}

	decision, err := h.cancel.Cancel(r.Context(), appointmentID, actor.ID, actor.Role, req.Reason)
	if err != nil {
		var terr *appointments.TransitionError
		switch {
		case errors.As(err, &terr):
			http.Error(w, terr.Reason, http.StatusConflict)
		case errors.Is(err, appointments.ErrNotFound):
			http.Error(w, "appointment not found", http.StatusNotFound)
		case errors.Is(err, ErrNotAppointmentOwner):
			http.Error(w, "appointment belongs to another patient", http.StatusForbidden)
		default:
			h.logger.Error("cancel failed", "error", err, "appointment_id", appointmentID)
			http.Error(w, "server error", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(cancelResponse{
		Status:         string(appointments.StatusCancelled),
		RefundEligible: decision.Eligible(),
		RefundReason:   decision.Reason,
	})
}
