package booking

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oakwell-health/booking-platform/internal/appointments"
	"github.com/oakwell-health/booking-platform/internal/capacity"
	"github.com/oakwell-health/booking-platform/internal/payments"
	"github.com/oakwell-health/booking-platform/internal/schedules"
)

// In-memory collaborators for exercising the orchestration flow without a
// database. The ledger fake preserves the real ledger's contract: it
// mutates the appointment store the way the transactional ledger does.

type fakeSchedules struct {
	byID map[uuid.UUID]*schedules.Schedule
}

func newFakeSchedules(windows ...*schedules.Schedule) *fakeSchedules {
	f := &fakeSchedules{byID: make(map[uuid.UUID]*schedules.Schedule)}
	for _, w := range windows {
		f.byID[w.ID] = w
	}
	return f
}

func (f *fakeSchedules) GetByID(_ context.Context, id uuid.UUID) (*schedules.Schedule, error) {
	w, ok := f.byID[id]
	if !ok {
		return nil, schedules.ErrNotFound
	}
	return w, nil
}

type fakeAppointments struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*appointments.Appointment
}

func newFakeAppointments() *fakeAppointments {
	return &fakeAppointments{byID: make(map[uuid.UUID]*appointments.Appointment)}
}

func (f *fakeAppointments) CreatePending(_ context.Context, patientID, doctorID, scheduleID uuid.UUID, startsAt, endsAt time.Time) (*appointments.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	appt := &appointments.Appointment{
		ID:         uuid.New(),
		PatientID:  patientID,
		DoctorID:   doctorID,
		ScheduleID: scheduleID,
		StartsAt:   startsAt,
		EndsAt:     endsAt,
		Status:     appointments.StatusPending,
	}
	f.byID[appt.ID] = appt
	return copyAppt(appt), nil
}

func (f *fakeAppointments) GetByID(_ context.Context, id uuid.UUID) (*appointments.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	appt, ok := f.byID[id]
	if !ok {
		return nil, appointments.ErrNotFound
	}
	return copyAppt(appt), nil
}

func (f *fakeAppointments) MarkOverflow(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if appt, ok := f.byID[id]; ok && appt.Status == appointments.StatusPending {
		appt.Status = appointments.StatusOverflow
	}
	return nil
}

func (f *fakeAppointments) MarkCancelled(_ context.Context, id uuid.UUID, by appointments.Role, at time.Time, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	appt, ok := f.byID[id]
	if !ok {
		return appointments.ErrNotFound
	}
	appt.Status = appointments.StatusCancelled
	appt.CancelledBy = &by
	appt.CancelledAt = &at
	if reason != "" {
		appt.CancelReason = &reason
	}
	return nil
}

func (f *fakeAppointments) put(appt *appointments.Appointment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[appt.ID] = appt
}

func copyAppt(a *appointments.Appointment) *appointments.Appointment {
	c := *a
	return &c
}

type fakePayments struct {
	mu     sync.Mutex
	byID   map[uuid.UUID]*payments.Payment
	byAppt map[uuid.UUID]uuid.UUID
}

func newFakePayments() *fakePayments {
	return &fakePayments{
		byID:   make(map[uuid.UUID]*payments.Payment),
		byAppt: make(map[uuid.UUID]uuid.UUID),
	}
}

func (f *fakePayments) Create(_ context.Context, appointmentID, patientID, doctorID uuid.UUID, amountCents int64, currency, intentID string) (*payments.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	apptID := appointmentID
	pay := &payments.Payment{
		ID:              uuid.New(),
		AppointmentID:   &apptID,
		PatientID:       patientID,
		DoctorID:        doctorID,
		AmountCents:     amountCents,
		Currency:        currency,
		Status:          payments.StatusPending,
		GatewayIntentID: &intentID,
	}
	f.byID[pay.ID] = pay
	f.byAppt[appointmentID] = pay.ID
	return copyPayment(pay), nil
}

func (f *fakePayments) GetByAppointment(_ context.Context, appointmentID uuid.UUID) (*payments.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byAppt[appointmentID]
	if !ok {
		return nil, payments.ErrNotFound
	}
	return copyPayment(f.byID[id]), nil
}

func (f *fakePayments) UpdateStatus(_ context.Context, id uuid.UUID, status payments.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	pay, ok := f.byID[id]
	if !ok {
		return payments.ErrNotFound
	}
	pay.Status = status
	return nil
}

func (f *fakePayments) status(id uuid.UUID) payments.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byID[id].Status
}

func copyPayment(p *payments.Payment) *payments.Payment {
	c := *p
	return &c
}

// fakeLedger admits against a fixed capacity, mutating the appointment
// store the way the transactional ledger does: seats are governed by the
// live count of admitted rows, queue numbers continue the highest ever
// assigned in the window.
type fakeLedger struct {
	mu       sync.Mutex
	appts    *fakeAppointments
	capacity int
	admitted int
	err      error
}

func newFakeLedger(appts *fakeAppointments, capacity int) *fakeLedger {
	return &fakeLedger{appts: appts, capacity: capacity}
}

func (f *fakeLedger) TryAdmit(_ context.Context, _, appointmentID uuid.UUID) (capacity.Admission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return capacity.Admission{}, f.err
	}

	f.appts.mu.Lock()
	appt, ok := f.appts.byID[appointmentID]
	if !ok || appt.Status != appointments.StatusPending {
		f.appts.mu.Unlock()
		return capacity.Admission{}, capacity.ErrAppointmentNotPending
	}
	admitted, highest := 0, 0
	for _, other := range f.appts.byID {
		switch other.Status {
		case appointments.StatusConfirmed, appointments.StatusBooked, appointments.StatusCompleted:
			admitted++
		}
		if other.QueueNumber != nil && *other.QueueNumber > highest {
			highest = *other.QueueNumber
		}
	}
	if admitted >= f.capacity {
		appt.Status = appointments.StatusOverflow
		f.appts.mu.Unlock()
		return capacity.Admission{Admitted: false}, nil
	}
	queue := highest + 1
	appt.Status = appointments.StatusConfirmed
	appt.QueueNumber = &queue
	f.appts.mu.Unlock()
	f.admitted++
	return capacity.Admission{Admitted: true, QueueNumber: queue}, nil
}

// fakeRefunder records refund requests and mirrors the refund service's
// status bookkeeping on the payment store.
type fakeRefunder struct {
	mu       sync.Mutex
	payStore *fakePayments
	refunded []uuid.UUID
	err      error
}

func (f *fakeRefunder) IssueFullRefund(_ context.Context, p *payments.Payment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		if f.payStore != nil {
			_ = f.payStore.UpdateStatus(context.Background(), p.ID, payments.StatusRefundFailed)
		}
		return f.err
	}
	f.refunded = append(f.refunded, p.ID)
	if f.payStore != nil {
		_ = f.payStore.UpdateStatus(context.Background(), p.ID, payments.StatusRefunded)
	}
	return nil
}

type outboxRecord struct {
	appointmentID uuid.UUID
	eventType     string
	payload       any
}

type fakeOutbox struct {
	mu      sync.Mutex
	entries []outboxRecord
}

func (f *fakeOutbox) Insert(_ context.Context, appointmentID uuid.UUID, eventType string, payload any) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, outboxRecord{appointmentID: appointmentID, eventType: eventType, payload: payload})
	return uuid.New(), nil
}

func (f *fakeOutbox) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e.eventType)
	}
	return out
}

type fakeVelocity struct {
	allowed bool
	calls   int
}

func (f *fakeVelocity) CheckBookingVelocity(_ context.Context, _ uuid.UUID) (*VelocityResult, error) {
	f.calls++
	if f.allowed {
		return &VelocityResult{Allowed: true}, nil
	}
	return &VelocityResult{Allowed: false, Message: "exceeded 5 booking attempts in 24h0m0s"}, nil
}
