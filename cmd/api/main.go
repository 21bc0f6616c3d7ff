package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/oakwell-health/booking-platform/internal/api/router"
	"github.com/oakwell-health/booking-platform/internal/appointments"
	"github.com/oakwell-health/booking-platform/internal/booking"
	"github.com/oakwell-health/booking-platform/internal/capacity"
	"github.com/oakwell-health/booking-platform/internal/config"
	"github.com/oakwell-health/booking-platform/internal/events"
	"github.com/oakwell-health/booking-platform/internal/notify"
	"github.com/oakwell-health/booking-platform/internal/observability/metrics"
	"github.com/oakwell-health/booking-platform/internal/payments"
	"github.com/oakwell-health/booking-platform/internal/schedules"
	refundworker "github.com/oakwell-health/booking-platform/internal/worker/refunds"
	"github.com/oakwell-health/booking-platform/internal/worker/sweeper"
	"github.com/oakwell-health/booking-platform/pkg/logging"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting booking-platform API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Error("database unreachable", "error", err)
		os.Exit(1)
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, booking velocity checks disabled", "error", err)
		}
	} else {
		logger.Warn("REDIS_ADDR not set, booking velocity checks disabled")
	}

	registry := prometheus.NewRegistry()
	bookingMetrics := metrics.NewBookingMetrics(registry)

	// Repositories
	scheduleRepo := schedules.NewRepository(pool)
	apptRepo := appointments.NewRepository(pool)
	payRepo := payments.NewRepository(pool)
	outboxStore := events.NewOutboxStore(pool)
	processedStore := events.NewProcessedStore(pool)

	// Payment gateway: a real HTTP gateway when configured, the fake
	// gateway for local development.
	var gateway payments.Gateway
	var fakeGateway *payments.FakeGateway
	switch {
	case cfg.GatewayBaseURL != "":
		gateway = payments.NewHTTPGateway(cfg.GatewayBaseURL, cfg.GatewayAPIKey, logger)
	case cfg.AllowFakePayments:
		fakeGateway = payments.NewFakeGateway(logger)
		gateway = fakeGateway
		logger.Warn("using fake payment gateway, do not run this in production")
	default:
		logger.Error("no payment gateway configured, set PAYMENT_GATEWAY_BASE_URL or ALLOW_FAKE_PAYMENTS")
		os.Exit(1)
	}

	refundService := payments.NewRefundService(gateway, payRepo, logger)

	ledger := capacity.NewLedger(pool, logger).
		WithMaxRetries(cfg.AdmitMaxRetries).
		WithBaseDelay(cfg.AdmitRetryBaseDelay)

	velocity := booking.NewVelocityChecker(redisClient, cfg.BookingVelocityLimit, cfg.BookingVelocityWindow, logger)

	orch := booking.NewOrchestrator(booking.OrchestratorConfig{
		Schedules:    scheduleRepo,
		Appointments: apptRepo,
		Payments:     payRepo,
		Gateway:      gateway,
		Ledger:       ledger,
		Refunds:      refundService,
		Velocity:     velocity,
		Outbox:       outboxStore,
		Metrics:      bookingMetrics,
		Logger:       logger,
		Currency:     cfg.PaymentCurrency,
	})
	cancelService := booking.NewCancellationService(apptRepo, payRepo, refundService, outboxStore, bookingMetrics, logger)

	// Notifications ride the outbox: status-change events are drained in
	// the background and turned into patient emails.
	var emailSender notify.EmailSender
	if cfg.SendGridAPIKey != "" {
		emailSender = notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger)
	} else {
		emailSender = notify.NewStubEmailSender(logger)
	}
	notifyService := notify.NewService(emailSender, notify.NewPGContactResolver(pool), logger)
	deliverer := events.NewDeliverer(outboxStore, notifyService, logger).
		WithInterval(cfg.OutboxPollInterval)
	go deliverer.Start(ctx)

	// Background workers
	go sweeper.New(apptRepo, logger).
		WithInterval(cfg.SweepInterval).
		Run(ctx)
	go refundworker.NewRetrier(payRepo, refundService, logger).
		WithInterval(cfg.RefundRetryInterval).
		WithMaxAttempts(cfg.RefundMaxAttempts).
		Run(ctx)

	// HTTP surface
	var fakePayments *payments.FakePaymentsHandler
	if cfg.AllowFakePayments && fakeGateway != nil {
		fakePayments = payments.NewFakePaymentsHandler(payRepo, fakeGateway, orch.OnPaymentSucceeded, logger)
	}

	routerCfg := &router.Config{
		Logger:              logger,
		SchedulesHandler:    schedules.NewHandler(scheduleRepo, logger),
		AppointmentsHandler: appointments.NewHandler(apptRepo, logger),
		BookingHandler:      booking.NewHandler(orch, cancelService, logger),
		PaymentWebhook:      booking.NewWebhookHandler(cfg.GatewayWebhookKey, orch, processedStore, bookingMetrics, logger),
		FakePayments:        fakePayments,
		MetricsHandler:      promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		CORSAllowedOrigins:  splitOrigins(cfg.CORSAllowedOrigins),
		AuthJWTSecret:       cfg.AuthJWTSecret,
		RateLimitRPS:        cfg.RateLimitRPS,
		RateLimitBurst:      cfg.RateLimitBurst,
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router.New(routerCfg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

func splitOrigins(raw string) []string {
	if raw == "" {
		return nil
	}
	var origins []string
	for _, origin := range strings.Split(raw, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}
