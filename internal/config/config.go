package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string
	DatabaseURL   string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Payment gateway
	GatewayBaseURL    string
	GatewayAPIKey     string
	GatewayWebhookKey string
	PaymentCurrency   string
	AllowFakePayments bool

	// Booking policy
	AdmitMaxRetries       int
	AdmitRetryBaseDelay   time.Duration
	BookingVelocityLimit  int
	BookingVelocityWindow time.Duration

	// Background workers
	SweepInterval       time.Duration
	RefundRetryInterval time.Duration
	RefundMaxAttempts   int
	OutboxPollInterval  time.Duration

	// Auth
	AuthJWTSecret string

	// HTTP throttling
	RateLimitRPS   float64
	RateLimitBurst int

	// SendGrid Email Configuration
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string

	CORSAllowedOrigins string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		GatewayBaseURL:    getEnv("PAYMENT_GATEWAY_BASE_URL", ""),
		GatewayAPIKey:     getEnv("PAYMENT_GATEWAY_API_KEY", ""),
		GatewayWebhookKey: getEnv("PAYMENT_GATEWAY_WEBHOOK_KEY", ""),
		PaymentCurrency:   getEnv("PAYMENT_CURRENCY", "USD"),
		AllowFakePayments: getEnvAsBool("ALLOW_FAKE_PAYMENTS", false),

		AdmitMaxRetries:       getEnvAsInt("ADMIT_MAX_RETRIES", 3),
		AdmitRetryBaseDelay:   getEnvAsDuration("ADMIT_RETRY_BASE_DELAY", 25*time.Millisecond),
		BookingVelocityLimit:  getEnvAsInt("BOOKING_VELOCITY_LIMIT", 5),
		BookingVelocityWindow: getEnvAsDuration("BOOKING_VELOCITY_WINDOW", 24*time.Hour),

		SweepInterval:       getEnvAsDuration("SWEEP_INTERVAL", 5*time.Minute),
		RefundRetryInterval: getEnvAsDuration("REFUND_RETRY_INTERVAL", time.Minute),
		RefundMaxAttempts:   getEnvAsInt("REFUND_MAX_ATTEMPTS", 5),
		OutboxPollInterval:  getEnvAsDuration("OUTBOX_POLL_INTERVAL", 15*time.Second),

		AuthJWTSecret: getEnv("AUTH_JWT_SECRET", ""),

		RateLimitRPS:   getEnvAsFloat("RATE_LIMIT_RPS", 0),
		RateLimitBurst: getEnvAsInt("RATE_LIMIT_BURST", 20),

		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Oakwell Health"),

		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", ""),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
