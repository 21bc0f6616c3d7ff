package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/oakwell-health/booking-platform/pkg/logging"
)

// IntentStatus is the gateway-side state of a payment intent.
type IntentStatus string

const (
	IntentSucceeded             IntentStatus = "succeeded"
	IntentProcessing            IntentStatus = "processing"
	IntentRequiresPaymentMethod IntentStatus = "requires_payment_method"
	IntentFailed                IntentStatus = "failed"
)

// Intent is a gateway payment intent handed back to the booking client.
type Intent struct {
	ID           string
	ClientSecret string
}

// ErrIntentNotFound is returned when the gateway does not know the intent.
var ErrIntentNotFound = errors.New("payments: intent not found")

// Gateway is the external payment processor, specified only at its
// interface. Refund failures never roll back the state transition that
// triggered them; callers record them for out-of-band retry.
type Gateway interface {
	CreateIntent(ctx context.Context, amountCents int64, currency string) (Intent, error)
	GetIntentStatus(ctx context.Context, intentID string) (IntentStatus, error)
	Refund(ctx context.Context, paymentRef string, amountCents int64) (string, error)
}

// HTTPGateway talks to the hosted payment provider's REST API.
type HTTPGateway struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logging.Logger
}

func NewHTTPGateway(baseURL, apiKey string, logger *logging.Logger) *HTTPGateway {
	if logger == nil {
		logger = logging.Default()
	}
	return &HTTPGateway{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
}

func (g *HTTPGateway) CreateIntent(ctx context.Context, amountCents int64, currency string) (Intent, error) {
	body := map[string]any{
		"amount":   amountCents,
		"currency": currency,
	}
	var parsed struct {
		ID           string `json:"id"`
		ClientSecret string `json:"client_secret"`
	}
	if err := g.do(ctx, http.MethodPost, "/v1/intents", body, &parsed); err != nil {
		return Intent{}, fmt.Errorf("payments: create intent: %w", err)
	}
	return Intent{ID: parsed.ID, ClientSecret: parsed.ClientSecret}, nil
}

func (g *HTTPGateway) GetIntentStatus(ctx context.Context, intentID string) (IntentStatus, error) {
	var parsed struct {
		Status string `json:"status"`
	}
	if err := g.do(ctx, http.MethodGet, "/v1/intents/"+intentID, nil, &parsed); err != nil {
		return "", fmt.Errorf("payments: intent status: %w", err)
	}
	return IntentStatus(parsed.Status), nil
}

func (g *HTTPGateway) Refund(ctx context.Context, paymentRef string, amountCents int64) (string, error) {
	// Idempotency key derived from the payment ref prevents double refunds
	// when the retry worker re-drives a request the gateway already took.
	body := map[string]any{
		"payment_ref":     paymentRef,
		"amount":          amountCents,
		"idempotency_key": "refund-" + paymentRef,
	}
	var parsed struct {
		ID string `json:"id"`
	}
	if err := g.do(ctx, http.MethodPost, "/v1/refunds", body, &parsed); err != nil {
		return "", fmt.Errorf("payments: refund: %w", err)
	}
	g.logger.Info("refund issued", "payment_ref", paymentRef, "refund_id", parsed.ID, "amount_cents", amountCents)
	return parsed.ID, nil
}

func (g *HTTPGateway) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusNotFound {
		return ErrIntentNotFound
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		g.logger.Error("gateway call failed", "method", method, "path", path, "status", resp.StatusCode, "body", string(respBody))
		return fmt.Errorf("gateway status %d: %s", resp.StatusCode, string(respBody))
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
