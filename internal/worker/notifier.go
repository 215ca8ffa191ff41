// Package worker holds the background consumers run by cmd/worker.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/medimeet/appointment-api/internal/email"
	"github.com/medimeet/appointment-api/internal/model"
	"github.com/medimeet/appointment-api/internal/repository"
	"github.com/medimeet/appointment-api/internal/service/event"
	"github.com/medimeet/appointment-api/pkg/logger"
	"github.com/medimeet/appointment-api/pkg/messaging"
	"github.com/medimeet/appointment-api/pkg/metrics"
)

// Notifier emails the people affected by a domain event.
type Notifier struct {
	accounts repository.AccountRepository
	sender   email.Sender
	logger   *logger.Logger
	metrics  *metrics.Metrics
}

func NewNotifier(accounts repository.AccountRepository, sender email.Sender, logger *logger.Logger, metrics *metrics.Metrics) *Notifier {
	return &Notifier{
		accounts: accounts,
		sender:   sender,
		logger:   logger,
		metrics:  metrics,
	}
}

// Run consumes channel until ctx is done.
func (n *Notifier) Run(ctx context.Context, broker messaging.Broker, channel string) error {
	n.logger.Info("Starting notifier", "channel", channel)
	return messaging.Consume(ctx, broker, channel, n.Handle, n.logger.ZL)
}

// Handle sends the notifications for one message. Event types without a
// notification are ignored.
func (n *Notifier) Handle(ctx context.Context, msg messaging.Message) error {
	var messages []email.Message
	var err error

	switch event.EventType(msg.Type) {
	case event.AppointmentBooked, event.AppointmentCancelled, event.AppointmentCompleted:
		messages, err = n.appointmentMessages(ctx, event.EventType(msg.Type), msg.Payload)
	case event.DoctorApproved, event.DoctorRejected:
		messages, err = doctorMessages(event.EventType(msg.Type), msg.Payload)
	default:
		return nil
	}
	if err != nil {
		n.metrics.NotificationsSent.WithLabelValues(msg.Type, "failed").Inc()
		return err
	}

	var errs []error
	for _, m := range messages {
		if err := n.sender.Send(ctx, m); err != nil {
			n.metrics.NotificationsSent.WithLabelValues(msg.Type, "failed").Inc()
			errs = append(errs, err)
			continue
		}
		n.metrics.NotificationsSent.WithLabelValues(msg.Type, "sent").Inc()
	}
	return errors.Join(errs...)
}

func (n *Notifier) appointmentMessages(ctx context.Context, eventType event.EventType, raw json.RawMessage) ([]email.Message, error) {
	var p event.AppointmentPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", eventType, err)
	}

	patient, err := n.accounts.Get(ctx, p.PatientID)
	if err != nil {
		return nil, fmt.Errorf("failed to load patient: %w", err)
	}
	doctor, err := n.accounts.Get(ctx, p.DoctorID)
	if err != nil {
		return nil, fmt.Errorf("failed to load doctor: %w", err)
	}

	build := func(to, counterpart *model.Account) email.Message {
		switch eventType {
		case event.AppointmentBooked:
			return email.AppointmentBooked(to.Email, counterpart.Name, p.StartTime)
		case event.AppointmentCancelled:
			return email.AppointmentCancelled(to.Email, counterpart.Name, p.StartTime)
		default:
			return email.AppointmentCompleted(to.Email, counterpart.Name)
		}
	}
	return []email.Message{build(patient, doctor), build(doctor, patient)}, nil
}

func doctorMessages(eventType event.EventType, raw json.RawMessage) ([]email.Message, error) {
	var p event.DoctorPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", eventType, err)
	}
	if eventType == event.DoctorApproved {
		return []email.Message{email.DoctorApproved(p.Email, p.Name)}, nil
	}
	return []email.Message{email.DoctorRejected(p.Email, p.Name)}, nil
}
