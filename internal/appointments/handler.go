package appointments

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/oakwell-health/booking-platform/pkg/logging"
)

// Handler exposes the polling endpoint clients use to observe an
// appointment's status until it reaches a terminal outcome.
type Handler struct {
	repo   *Repository
	logger *logging.Logger
}

func NewHandler(repo *Repository, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{repo: repo, logger: logger}
}

type appointmentResponse struct {
	ID           string  `json:"id"`
	Status       Status  `json:"status"`
	QueueNumber  *int    `json:"queue_number,omitempty"`
	ScheduleID   string  `json:"schedule_id"`
	StartsAt     string  `json:"starts_at"`
	EndsAt       string  `json:"ends_at"`
	CancelledBy  *Role   `json:"cancelled_by,omitempty"`
	CancelReason *string `json:"cancel_reason,omitempty"`
}

// Get handles GET /appointments/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid appointment id", http.StatusBadRequest)
		return
	}

	appt, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "appointment not found", http.StatusNotFound)
			return
		}
		h.logger.Error("appointment lookup failed", "error", err, "appointment_id", id)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	resp := appointmentResponse{
		ID:           appt.ID.String(),
		Status:       appt.Status,
		QueueNumber:  appt.QueueNumber,
		ScheduleID:   appt.ScheduleID.String(),
		StartsAt:     appt.StartsAt.UTC().Format(time.RFC3339),
		EndsAt:       appt.EndsAt.UTC().Format(time.RFC3339),
		CancelledBy:  appt.CancelledBy,
		CancelReason: appt.CancelReason,
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
