package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/oakwell-health/booking-platform/internal/appointments"
	"github.com/oakwell-health/booking-platform/internal/booking"
	httpmiddleware "github.com/oakwell-health/booking-platform/internal/http/middleware"
	"github.com/oakwell-health/booking-platform/internal/payments"
	"github.com/oakwell-health/booking-platform/internal/schedules"
	"github.com/oakwell-health/booking-platform/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger              *logging.Logger
	SchedulesHandler    *schedules.Handler
	AppointmentsHandler *appointments.Handler
	BookingHandler      *booking.Handler
	PaymentWebhook      *booking.WebhookHandler
	FakePayments        *payments.FakePaymentsHandler
	MetricsHandler      http.Handler
	CORSAllowedOrigins  []string

	// AuthJWTSecret signs actor tokens (HMAC). Empty disables the
	// authenticated route group entirely.
	AuthJWTSecret string

	// RateLimitRPS/RateLimitBurst throttle unauthenticated traffic.
	// Zero disables the limiter.
	RateLimitRPS   float64
	RateLimitBurst int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}
	if cfg.RateLimitRPS > 0 {
		r.Use(httpmiddleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
	}

	// Public endpoints (webhooks, health checks)
	r.Group(func(public chi.Router) {
		public.Get("/health", handleHealth)
		if cfg.PaymentWebhook != nil {
			public.Post("/webhooks/payments", cfg.PaymentWebhook.Handle)
		}
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		// DEV ONLY: demo checkout pages, gated by ALLOW_FAKE_PAYMENTS
		if cfg.FakePayments != nil {
			public.Mount("/demo", cfg.FakePayments.Routes())
		}
	})

	// Authenticated API routes
	if cfg.AuthJWTSecret != "" {
		r.Group(func(authed chi.Router) {
			authed.Use(httpmiddleware.ActorJWT(cfg.AuthJWTSecret))

			if cfg.BookingHandler != nil {
				authed.Post("/bookings", cfg.BookingHandler.Start)
				authed.Post("/appointments/{id}/cancel", cfg.BookingHandler.Cancel)
			}
			if cfg.AppointmentsHandler != nil {
				authed.Get("/appointments/{id}", cfg.AppointmentsHandler.Get)
			}
			if cfg.SchedulesHandler != nil {
				authed.With(httpmiddleware.RequireRole(appointments.RoleDoctor, appointments.RoleAdmin)).
					Post("/schedules", cfg.SchedulesHandler.Create)
				authed.Get("/doctors/{id}/schedules", cfg.SchedulesHandler.ListForDoctor)
			}
		})
	}

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
