package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/medimeet/appointment-api/internal/model"
	"github.com/medimeet/appointment-api/internal/repository"
	"github.com/medimeet/appointment-api/pkg/clock"
	"github.com/medimeet/appointment-api/pkg/logger"
)

const recordTimeout = 5 * time.Second

type EventService struct {
	outboxRepo repository.OutboxRepository
	clock      clock.Clock
	logger     *logger.Logger
}

func NewEventService(outboxRepo repository.OutboxRepository, clk clock.Clock, logger *logger.Logger) *EventService {
	return &EventService{
		outboxRepo: outboxRepo,
		clock:      clk,
		logger:     logger,
	}
}

// Emit writes the event to the outbox.
func (s *EventService) Emit(ctx context.Context, eventType EventType, payload interface{}) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	event := &model.OutboxEvent{
		EventType: string(eventType),
		Payload:   payloadJSON,
		Status:    model.OutboxStatusPending,
		CreatedAt: s.clock.Now(),
	}

	if err := s.outboxRepo.Create(ctx, event); err != nil {
		return fmt.Errorf("failed to create outbox event: %w", err)
	}
	return nil
}

// Record is Emit for callers that have already committed: the caller's
// cancellation is ignored and failures are only logged.
func (s *EventService) Record(ctx context.Context, eventType EventType, payload interface{}) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	if err := s.Emit(ctx, eventType, payload); err != nil {
		s.logger.Error(err, "Failed to record event", "event_type", string(eventType))
	}
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, EventType, interface{}) {}

// NewNop returns a Recorder that drops every event.
func NewNop() Recorder {
	return nopRecorder{}
}
