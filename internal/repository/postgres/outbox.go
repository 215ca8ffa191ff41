package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/medimeet/appointment-api/internal/model"
	"github.com/medimeet/appointment-api/internal/repository"
)

// outboxRow scans payload through a plain []byte so the driver buffer is copied.
type outboxRow struct {
	model.OutboxEvent
	Payload []byte `db:"payload"`
}

type outboxRepository struct {
	BaseRepository
}

func NewOutboxRepository(base BaseRepository) repository.OutboxRepository {
	return &outboxRepository{base}
}

func (r *outboxRepository) Create(ctx context.Context, event *model.OutboxEvent) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	if event.Payload == nil {
		return fmt.Errorf("event payload cannot be nil")
	}

	query := `
		INSERT INTO outbox_events (
			id, event_type, payload, status, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6
		)
	`
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	event.UpdatedAt = event.CreatedAt
	event.Status = model.OutboxStatusPending

	_, err := r.db.ExecContext(ctx, query,
		event.ID,
		event.EventType,
		[]byte(event.Payload),
		event.Status,
		event.CreatedAt,
		event.UpdatedAt,
	)
	return classify(err, "create outbox event")
}

func (r *outboxRepository) GetPendingEvents(ctx context.Context, limit int) ([]*model.OutboxEvent, error) {
	query := `
		SELECT id, event_type, payload, status, error_message, retry_count,
			   created_at, processed_at, updated_at
		FROM outbox_events
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2
	`

	var rows []outboxRow
	if err := r.db.SelectContext(ctx, &rows, query, model.OutboxStatusPending, limit); err != nil {
		return nil, classify(err, "get pending outbox events")
	}

	events := make([]*model.OutboxEvent, 0, len(rows))
	for i := range rows {
		event := rows[i].OutboxEvent
		event.Payload = rows[i].Payload
		events = append(events, &event)
	}
	return events, nil
}

func (r *outboxRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.OutboxStatus, errMsg *string) error {
	query := `
		UPDATE outbox_events
		SET status = $1,
			error_message = $2,
			retry_count = retry_count + CASE WHEN $1 = 'FAILED' THEN 1 ELSE 0 END,
			processed_at = CASE WHEN $1 = 'PROCESSED' THEN $3 ELSE processed_at END,
			updated_at = $3
		WHERE id = $4
	`

	result, err := r.db.ExecContext(ctx, query, status, errMsg, time.Now().UTC(), id)
	if err != nil {
		return classify(err, "update outbox event")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("update outbox event: %w", repository.ErrNotFound)
	}
	return nil
}

func (r *outboxRepository) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	query := `
		DELETE FROM outbox_events
		WHERE status = 'PROCESSED'
		AND processed_at < $1
	`
	result, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, classify(err, "delete processed outbox events")
	}

	return result.RowsAffected()
}
