package schedules

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/oakwell-health/booking-platform/internal/appointments"
	"github.com/oakwell-health/booking-platform/internal/auth"
	"github.com/oakwell-health/booking-platform/pkg/logging"
)

// Handler exposes window management for doctors and admins.
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

type createScheduleRequest struct {
	DoctorID    string `json:"doctor_id"`
	Date        string `json:"date"`       // YYYY-MM-DD
	StartTime   string `json:"start_time"` // HH:MM wall clock
	EndTime     string `json:"end_time"`
	MaxPatients int    `json:"max_patients"`
	PriceCents  int64  `json:"price_cents"`
}

type scheduleResponse struct {
	ID          string `json:"id"`
	DoctorID    string `json:"doctor_id"`
	Date        string `json:"date"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	MaxPatients int    `json:"max_patients"`
	PriceCents  int64  `json:"price_cents"`
}

// Create handles POST /schedules. Only doctors and admins may open windows.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		http.Error(w, "missing actor context", http.StatusUnauthorized)
		return
	}
	if actor.Role != appointments.RoleDoctor && actor.Role != appointments.RoleAdmin {
		http.Error(w, "only doctors or admins can create schedules", http.StatusForbidden)
		return
	}

	var req createScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	doctorID := actor.ID
	if actor.Role == appointments.RoleAdmin && req.DoctorID != "" {
		parsed, err := uuid.Parse(req.DoctorID)
		if err != nil {
			http.Error(w, "invalid doctor_id", http.StatusBadRequest)
			return
		}
		doctorID = parsed
	}

	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		http.Error(w, "invalid date, want YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	startsAt, err := combineWallClock(date, req.StartTime)
	if err != nil {
		http.Error(w, "invalid start_time, want HH:MM", http.StatusBadRequest)
		return
	}
	endsAt, err := combineWallClock(date, req.EndTime)
	if err != nil {
		http.Error(w, "invalid end_time, want HH:MM", http.StatusBadRequest)
		return
	}
	if !endsAt.After(startsAt) {
		http.Error(w, "end_time must be after start_time", http.StatusBadRequest)
		return
	}

	created, err := h.repo.Create(r.Context(), Schedule{
		DoctorID:    doctorID,
		VisitDate:   date,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		StartsAt:    startsAt,
		EndsAt:      endsAt,
		MaxPatients: req.MaxPatients,
		PriceCents:  req.PriceCents,
	})
	if err != nil {
		if errors.Is(err, ErrInvalidCapacity) {
			http.Error(w, "max_patients must be at least 1", http.StatusBadRequest)
			return
		}
		h.logger.Error("schedule create failed", "error", err, "doctor_id", doctorID)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(toResponse(created))
}

// ListForDoctor handles GET /doctors/{id}/schedules?date=YYYY-MM-DD.
func (h *Handler) ListForDoctor(w http.ResponseWriter, r *http.Request) {
	doctorID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid doctor id", http.StatusBadRequest)
		return
	}
	date, err := time.Parse("2006-01-02", r.URL.Query().Get("date"))
	if err != nil {
		http.Error(w, "date query parameter required, want YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	windows, err := h.repo.ListByDoctor(r.Context(), doctorID, date)
	if err != nil {
		h.logger.Error("schedule list failed", "error", err, "doctor_id", doctorID)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	out := make([]scheduleResponse, 0, len(windows))
	for i := range windows {
		out = append(out, toResponse(&windows[i]))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

func toResponse(s *Schedule) scheduleResponse {
	return scheduleResponse{
		ID:          s.ID.String(),
		DoctorID:    s.DoctorID.String(),
		Date:        s.VisitDate.Format("2006-01-02"),
		StartTime:   s.StartTime,
		EndTime:     s.EndTime,
		MaxPatients: s.MaxPatients,
		PriceCents:  s.PriceCents,
	}
}

// combineWallClock resolves a wall-clock HH:MM on the given date to UTC.
func combineWallClock(date time.Time, hhmm string) (time.Time, error) {
	clock, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(date.Year(), date.Month(), date.Day(), clock.Hour(), clock.Minute(), 0, 0, time.UTC), nil
}
