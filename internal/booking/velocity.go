package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"

	"github.com/oakwell-health/booking-platform/pkg/logging"
)

// VelocityChecker caps booking attempts per patient in a rolling window so
// a single account cannot hold seats across many windows by spamming
// reservations.
type VelocityChecker struct {
	redis  *redis.Client
	logger *logging.Logger
	limit  int
	window time.Duration
}

// VelocityResult contains the result of a velocity check.
type VelocityResult struct {
	Allowed      bool
	CurrentCount int
	MaxAllowed   int
	WindowExpiry time.Time
	Message      string
}

// NewVelocityChecker creates a booking velocity checker. A nil Redis client
// disables the check entirely.
func NewVelocityChecker(redisClient *redis.Client, limit int, window time.Duration, logger *logging.Logger) *VelocityChecker {
	if logger == nil {
		logger = logging.Default()
	}
	if limit <= 0 {
		limit = 5
	}
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &VelocityChecker{
		redis:  redisClient,
		logger: logger,
		limit:  limit,
		window: window,
	}
}

// CheckBookingVelocity counts this attempt against the patient's window.
func (v *VelocityChecker) CheckBookingVelocity(ctx context.Context, patientID uuid.UUID) (*VelocityResult, error) {
	ctx, span := bookingTracer.Start(ctx, "booking.check_velocity")
	defer span.End()
	span.SetAttributes(attribute.String("booking.patient_id", patientID.String()))

	if v.redis == nil {
		return &VelocityResult{Allowed: true}, nil
	}

	key := fmt.Sprintf("velocity:booking:%s", patientID)

	count, expiry, err := v.incrementAndGet(ctx, key, v.window)
	if err != nil {
		v.logger.Error("velocity check failed", "error", err, "key", key)
		// Fail open - allow the booking if Redis is down
		return &VelocityResult{Allowed: true, Message: "velocity check unavailable"}, nil
	}

	result := &VelocityResult{
		Allowed:      count <= v.limit,
		CurrentCount: count,
		MaxAllowed:   v.limit,
		WindowExpiry: expiry,
	}

	if !result.Allowed {
		result.Message = fmt.Sprintf("exceeded %d booking attempts in %s", v.limit, v.window)
		v.logger.Warn("booking velocity exceeded",
			"patient_id", patientID,
			"count", count,
			"max", v.limit,
		)
		span.SetAttributes(attribute.Bool("velocity.exceeded", true))
	}

	return result, nil
}

// incrementAndGet increments a counter and returns the new value with expiry time.
func (v *VelocityChecker) incrementAndGet(ctx context.Context, key string, window time.Duration) (int, time.Time, error) {
	count, err := v.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("booking: incr velocity key: %w", err)
	}

	// Set expiry only when the window opens.
	if count == 1 {
		if err := v.redis.Expire(ctx, key, window).Err(); err != nil {
			v.logger.Warn("failed to set velocity key expiry", "error", err, "key", key)
		}
	}

	ttl, err := v.redis.TTL(ctx, key).Result()
	if err != nil {
		return int(count), time.Now().Add(window), nil
	}
	return int(count), time.Now().Add(ttl), nil
}
