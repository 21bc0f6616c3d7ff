package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for the booking pipeline.
type BookingMetrics struct {
	admissionsTotal  *prometheus.CounterVec
	refundsTotal     *prometheus.CounterVec
	webhookTotal     *prometheus.CounterVec
	admissionLatency prometheus.Histogram
	webhookLatency   *prometheus.HistogramVec
	conflictsTotal   prometheus.Counter
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		admissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oakwell",
			Subsystem: "booking",
			Name:      "admissions_total",
			Help:      "Admission attempts by outcome",
		}, []string{"outcome"}),
		refundsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oakwell",
			Subsystem: "booking",
			Name:      "refunds_total",
			Help:      "Refund attempts by outcome",
		}, []string{"outcome"}),
		webhookTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oakwell",
			Subsystem: "booking",
			Name:      "payment_webhook_total",
			Help:      "Inbound payment gateway webhooks",
		}, []string{"event_type", "status"}),
		admissionLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "oakwell",
			Subsystem: "booking",
			Name:      "admission_latency_seconds",
			Help:      "Latency of the capacity admission transaction",
			Buckets:   prometheus.DefBuckets,
		}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "oakwell",
			Subsystem: "booking",
			Name:      "payment_webhook_latency_seconds",
			Help:      "Latency of payment webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event_type"}),
		conflictsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "oakwell",
			Subsystem: "booking",
			Name:      "admission_conflicts_total",
			Help:      "Paid appointments left pending after exhausted admission retries",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.admissionsTotal, m.refundsTotal, m.webhookTotal, m.admissionLatency, m.webhookLatency, m.conflictsTotal)
	return m
}

func (m *BookingMetrics) ObserveAdmission(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.admissionsTotal.WithLabelValues(outcome).Inc()
	m.admissionLatency.Observe(seconds)
}

func (m *BookingMetrics) ObserveRefund(outcome string) {
	if m == nil {
		return
	}
	m.refundsTotal.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) ObserveWebhook(eventType, status string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookTotal.WithLabelValues(eventType, status).Inc()
	m.webhookLatency.WithLabelValues(eventType).Observe(seconds)
}

// ObserveAdmissionConflict records a paid appointment stranded in PENDING.
// These rows need operator reconciliation, so the counter is alert fodder.
func (m *BookingMetrics) ObserveAdmissionConflict() {
	if m == nil {
		return
	}
	m.conflictsTotal.Inc()
}
