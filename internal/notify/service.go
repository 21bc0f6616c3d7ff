package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/oakwell-health/booking-platform/internal/events"
	"github.com/oakwell-health/booking-platform/pkg/logging"
)

// Contact is a deliverable address for a patient.
type Contact struct {
	Email string
	Name  string
}

// ContactResolver looks up where to reach a patient. Deployments without a
// patient directory leave it nil and notifications are skipped.
type ContactResolver interface {
	ContactFor(ctx context.Context, patientID uuid.UUID) (*Contact, error)
}

// Service turns appointment status events from the outbox into patient
// emails. It implements events.DeliveryHandler.
type Service struct {
	email    EmailSender
	contacts ContactResolver
	logger   *logging.Logger
}

// NewService creates a notification service.
func NewService(email EmailSender, contacts ContactResolver, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		email:    email,
		contacts: contacts,
		logger:   logger,
	}
}

// Handle delivers one outbox entry. Events the service cannot route (no
// contact, unknown type) are logged and dropped rather than retried
// forever; only transport failures are returned for redelivery.
func (s *Service) Handle(ctx context.Context, entry events.OutboxEntry) error {
	var evt events.AppointmentStatusChangedV1
	if err := json.Unmarshal(entry.Payload, &evt); err != nil {
		s.logger.Error("notify: undecodable outbox payload, dropping", "entry_id", entry.ID, "error", err)
		return nil
	}

	subject, body, ok := composeStatusEmail(entry.Type, evt)
	if !ok {
		s.logger.Debug("notify: no email template for event type, dropping", "type", entry.Type)
		return nil
	}

	if s.email == nil || s.contacts == nil {
		s.logger.Debug("notify: email delivery not configured, dropping", "entry_id", entry.ID)
		return nil
	}

	patientID, err := uuid.Parse(evt.PatientID)
	if err != nil {
		s.logger.Error("notify: event carries invalid patient id, dropping", "entry_id", entry.ID)
		return nil
	}
	contact, err := s.contacts.ContactFor(ctx, patientID)
	if err != nil {
		return fmt.Errorf("notify: resolve contact for %s: %w", patientID, err)
	}
	if contact == nil || contact.Email == "" {
		s.logger.Warn("notify: no contact on file, dropping", "patient_id", patientID)
		return nil
	}

	msg := EmailMessage{
		To:      contact.Email,
		ToName:  contact.Name,
		Subject: subject,
		Body:    body,
	}
	if err := s.email.Send(ctx, msg); err != nil {
		return err
	}
	s.logger.Info("appointment status email sent",
		"appointment_id", evt.AppointmentID,
		"type", entry.Type,
		"to", contact.Email,
	)
	return nil
}

// composeStatusEmail maps an event to a subject and plain-text body.
func composeStatusEmail(eventType string, evt events.AppointmentStatusChangedV1) (subject, body string, ok bool) {
	when := evt.OccurredAt.Format("Mon, 2 Jan 2006 15:04 MST")
	switch eventType {
	case events.TypeAppointmentConfirmed:
		queue := 0
		if evt.QueueNumber != nil {
			queue = *evt.QueueNumber
		}
		return "Your appointment is confirmed",
			fmt.Sprintf("Your appointment is confirmed. Your queue number is %d. Please arrive in queue order. (Confirmed %s.)", queue, when),
			true
	case events.TypeAppointmentOverflow:
		return "Your appointment could not be scheduled",
			fmt.Sprintf("Unfortunately the time slot filled up before your payment completed. %s A full refund has been initiated and will arrive within a few business days.", evt.Reason),
			true
	case events.TypeAppointmentCancelled:
		return "Your appointment was cancelled",
			fmt.Sprintf("Your appointment has been cancelled. %s (Cancelled %s.)", evt.Reason, when),
			true
	}
	return "", "", false
}
