package messaging

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"
)

// Handler consumes one decoded message.
type Handler func(ctx context.Context, msg Message) error

// Consume subscribes to channel and feeds each message to handler until ctx
// is done or the subscription closes. Undecodable messages and handler
// failures are logged and skipped.
func Consume(ctx context.Context, broker Broker, channel string, handler Handler, logger zerolog.Logger) error {
	msgChan, err := broker.Subscribe(ctx, channel)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case raw, ok := <-msgChan:
			if !ok {
				return nil
			}
			var msg Message
			if err := json.Unmarshal(raw, &msg); err != nil {
				logger.Error().Err(err).Msg("failed to decode message")
				continue
			}
			if err := handler(ctx, msg); err != nil {
				// Log error but continue processing
				logger.Error().Err(err).Str("type", msg.Type).Msg("failed to handle message")
			}
		}
	}
}
