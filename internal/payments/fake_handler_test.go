package payments

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLookup struct {
	byAppointment map[uuid.UUID]*Payment
}

func (f *fakeLookup) GetByAppointment(_ context.Context, appointmentID uuid.UUID) (*Payment, error) {
	p, ok := f.byAppointment[appointmentID]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func seedFakeCheckout(t *testing.T, gw *FakeGateway) (uuid.UUID, *fakeLookup, string) {
	t.Helper()
	intent, err := gw.CreateIntent(context.Background(), 5000, "usd")
	require.NoError(t, err)
	appointmentID := uuid.New()
	lookup := &fakeLookup{byAppointment: map[uuid.UUID]*Payment{
		appointmentID: {
			ID:              uuid.New(),
			AppointmentID:   &appointmentID,
			AmountCents:     5000,
			Currency:        "usd",
			Status:          StatusPending,
			GatewayIntentID: &intent.ID,
		},
	}}
	return appointmentID, lookup, intent.ID
}

func TestFakeCheckoutCompletesIntentAndSettles(t *testing.T) {
	gw := NewFakeGateway(nil)
	appointmentID, lookup, intentID := seedFakeCheckout(t, gw)

	var settledAppt uuid.UUID
	var settledIntent string
	settle := func(_ context.Context, appt uuid.UUID, intent string) error {
		settledAppt = appt
		settledIntent = intent
		return nil
	}

	h := NewFakePaymentsHandler(lookup, gw, settle, nil)
	srv := httptest.NewServer(h.Routes())
	defer srv.Close()

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}

	resp, err := client.Post(srv.URL+"/appointments/"+appointmentID.String()+"/complete", "", nil)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, appointmentID, settledAppt)
	assert.Equal(t, intentID, settledIntent)

	status, err := gw.GetIntentStatus(context.Background(), intentID)
	require.NoError(t, err)
	assert.Equal(t, IntentSucceeded, status)
}

func TestFakeCheckoutSettlementFailureStillCompletesIntent(t *testing.T) {
	gw := NewFakeGateway(nil)
	appointmentID, lookup, intentID := seedFakeCheckout(t, gw)

	settle := func(context.Context, uuid.UUID, string) error {
		return errors.New("capacity race")
	}

	h := NewFakePaymentsHandler(lookup, gw, settle, nil)
	srv := httptest.NewServer(h.Routes())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/appointments/"+appointmentID.String()+"/complete", "", nil)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	status, err := gw.GetIntentStatus(context.Background(), intentID)
	require.NoError(t, err)
	assert.Equal(t, IntentSucceeded, status)
}

func TestFakeCheckoutUnknownAppointment(t *testing.T) {
	gw := NewFakeGateway(nil)
	h := NewFakePaymentsHandler(&fakeLookup{byAppointment: map[uuid.UUID]*Payment{}}, gw, nil, nil)
	srv := httptest.NewServer(h.Routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/appointments/" + uuid.NewString() + "/checkout")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/appointments/"+uuid.NewString()+"/complete", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestFakeCheckoutPageShowsAmount(t *testing.T) {
	gw := NewFakeGateway(nil)
	appointmentID, lookup, _ := seedFakeCheckout(t, gw)

	h := NewFakePaymentsHandler(lookup, gw, nil, nil)
	srv := httptest.NewServer(h.Routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/appointments/" + appointmentID.String() + "/checkout")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := make([]byte, 4096)
	n, _ := resp.Body.Read(body)
	assert.Contains(t, string(body[:n]), "50.00 usd")
}
