package booking

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oakwell-health/booking-platform/internal/appointments"
	"github.com/oakwell-health/booking-platform/internal/capacity"
)

type fakeSettler struct {
	calls []string
	err   error
}

func (f *fakeSettler) OnPaymentSucceeded(_ context.Context, appointmentID uuid.UUID, intentID string) error {
	f.calls = append(f.calls, appointmentID.String()+"/"+intentID)
	return f.err
}

type fakeProcessed struct {
	seen map[string]bool
}

func newFakeProcessed() *fakeProcessed {
	return &fakeProcessed{seen: make(map[string]bool)}
}

func (f *fakeProcessed) AlreadyProcessed(_ context.Context, provider, eventID string) (bool, error) {
	return f.seen[provider+":"+eventID], nil
}

func (f *fakeProcessed) MarkProcessed(_ context.Context, provider, eventID string) (bool, error) {
	key := provider + ":" + eventID
	if f.seen[key] {
		return false, nil
	}
	f.seen[key] = true
	return true, nil
}

const webhookSecret = "whsec_test"

func signPayload(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func eventBody(eventID, eventType string, appointmentID uuid.UUID, intentID string) []byte {
	return []byte(fmt.Sprintf(
		`{"id":%q,"type":%q,"data":{"intent_id":%q,"appointment_id":%q}}`,
		eventID, eventType, intentID, appointmentID.String(),
	))
}

func postWebhook(t *testing.T, h *WebhookHandler, body []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set(signatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	h.Handle(rec, req)
	return rec
}

func TestWebhookSettlesPayment(t *testing.T) {
	settler := &fakeSettler{}
	processed := newFakeProcessed()
	h := NewWebhookHandler(webhookSecret, settler, processed, nil, nil)

	apptID := uuid.New()
	body := eventBody("evt_1", eventIntentSucceeded, apptID, "pi_1")
	rec := postWebhook(t, h, body, signPayload(webhookSecret, body))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, settler.calls, 1)
	assert.Equal(t, apptID.String()+"/pi_1", settler.calls[0])

	done, err := processed.AlreadyProcessed(context.Background(), processedProvider, "evt_1")
	require.NoError(t, err)
	assert.True(t, done)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	settler := &fakeSettler{}
	h := NewWebhookHandler(webhookSecret, settler, newFakeProcessed(), nil, nil)

	body := eventBody("evt_1", eventIntentSucceeded, uuid.New(), "pi_1")
	rec := postWebhook(t, h, body, "deadbeef")

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, settler.calls)
}

func TestWebhookDuplicateEventAckedOnce(t *testing.T) {
	settler := &fakeSettler{}
	h := NewWebhookHandler(webhookSecret, settler, newFakeProcessed(), nil, nil)

	body := eventBody("evt_1", eventIntentSucceeded, uuid.New(), "pi_1")
	sig := signPayload(webhookSecret, body)
	assert.Equal(t, http.StatusOK, postWebhook(t, h, body, sig).Code)
	assert.Equal(t, http.StatusOK, postWebhook(t, h, body, sig).Code)

	assert.Len(t, settler.calls, 1)
}

func TestWebhookIgnoresOtherEventTypes(t *testing.T) {
	settler := &fakeSettler{}
	h := NewWebhookHandler(webhookSecret, settler, newFakeProcessed(), nil, nil)

	body := eventBody("evt_1", "payment_intent.created", uuid.New(), "pi_1")
	rec := postWebhook(t, h, body, signPayload(webhookSecret, body))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, settler.calls)
}

func TestWebhookAcksUnprocessableEvent(t *testing.T) {
	// An appointment the system does not know cannot be fixed by retrying.
	settler := &fakeSettler{err: appointments.ErrNotFound}
	processed := newFakeProcessed()
	h := NewWebhookHandler(webhookSecret, settler, processed, nil, nil)

	body := eventBody("evt_1", eventIntentSucceeded, uuid.New(), "pi_1")
	rec := postWebhook(t, h, body, signPayload(webhookSecret, body))

	assert.Equal(t, http.StatusOK, rec.Code)
	done, err := processed.AlreadyProcessed(context.Background(), processedProvider, "evt_1")
	require.NoError(t, err)
	assert.True(t, done)
}

func TestWebhookRetriesTransientFailure(t *testing.T) {
	settler := &fakeSettler{err: capacity.ErrAdmissionConflict}
	processed := newFakeProcessed()
	h := NewWebhookHandler(webhookSecret, settler, processed, nil, nil)

	body := eventBody("evt_1", eventIntentSucceeded, uuid.New(), "pi_1")
	rec := postWebhook(t, h, body, signPayload(webhookSecret, body))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	done, err := processed.AlreadyProcessed(context.Background(), processedProvider, "evt_1")
	require.NoError(t, err)
	assert.False(t, done, "failed settlements must stay retryable")
}

func TestWebhookMissingEventID(t *testing.T) {
	h := NewWebhookHandler(webhookSecret, &fakeSettler{}, newFakeProcessed(), nil, nil)

	body := []byte(`{"type":"payment_intent.succeeded","data":{}}`)
	rec := postWebhook(t, h, body, signPayload(webhookSecret, body))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookMalformedReferencesAcked(t *testing.T) {
	h := NewWebhookHandler(webhookSecret, &fakeSettler{}, newFakeProcessed(), nil, nil)

	body := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"intent_id":"pi_1","appointment_id":"not-a-uuid"}}`)
	rec := postWebhook(t, h, body, signPayload(webhookSecret, body))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"id":"evt_1"}`)
	assert.True(t, verifySignature(webhookSecret, body, signPayload(webhookSecret, body)))
	assert.False(t, verifySignature(webhookSecret, body, "bad"))
	assert.False(t, verifySignature(webhookSecret, body, ""))
	// Empty secret bypasses verification for development.
	assert.True(t, verifySignature("", body, ""))
}
