package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestBookingMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)
	m.ObserveAdmission("confirmed", 0.02)
	m.ObserveAdmission("overflow", 0.01)
	m.ObserveRefund("refunded")
	m.ObserveWebhook("payment_intent.succeeded", "processed", 0.005)
	m.ObserveAdmissionConflict()

	families, err := reg.Gather()
	require.NoError(t, err)

	byName := make(map[string]*dto.MetricFamily, len(families))
	for _, mf := range families {
		byName[mf.GetName()] = mf
	}

	admissions := byName["oakwell_booking_admissions_total"]
	require.NotNil(t, admissions)
	var total float64
	for _, metric := range admissions.GetMetric() {
		total += metric.GetCounter().GetValue()
	}
	require.Equal(t, 2.0, total)

	conflicts := byName["oakwell_booking_admission_conflicts_total"]
	require.NotNil(t, conflicts)
	require.Equal(t, 1.0, conflicts.GetMetric()[0].GetCounter().GetValue())
}

func TestBookingMetricsNilSafe(t *testing.T) {
	var m *BookingMetrics
	m.ObserveAdmission("confirmed", 0.1)
	m.ObserveRefund("failed")
	m.ObserveWebhook("event", "ignored", 0.1)
	m.ObserveAdmissionConflict()
}
