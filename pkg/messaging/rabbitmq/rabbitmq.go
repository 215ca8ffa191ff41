package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/medimeet/appointment-api/pkg/circuitbreaker"
	"github.com/medimeet/appointment-api/pkg/messaging"
)

// RabbitMQBroker publishes to a fanout exchange; the channel argument is used
// as the routing key.
type RabbitMQBroker struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	cb       *circuitbreaker.CircuitBreaker
	logger   zerolog.Logger
}

func NewRabbitMQBroker(amqpURL, exchange string, cb *circuitbreaker.CircuitBreaker, logger zerolog.Logger) (messaging.Broker, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	// Declare the exchange (idempotent)
	err = ch.ExchangeDeclare(
		exchange,
		amqp.ExchangeFanout,
		true,  // durable
		false, // autoDelete
		false, // internal
		false, // noWait
		nil,   // args
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &RabbitMQBroker{
		conn:     conn,
		ch:       ch,
		exchange: exchange,
		cb:       cb,
		logger:   logger,
	}, nil
}

func (b *RabbitMQBroker) Publish(ctx context.Context, channel string, message interface{}) error {
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	return b.cb.Execute(func() error {
		return b.ch.PublishWithContext(
			ctx,
			b.exchange,
			channel, // routing key
			false,   // mandatory
			false,   // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				Body:         body,
			},
		)
	})
}

// Subscribe binds a durable queue named after channel to the exchange.
func (b *RabbitMQBroker) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	q, err := b.ch.QueueDeclare(
		channel,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,   // args
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}
	if err := b.ch.QueueBind(q.Name, channel, b.exchange, false, nil); err != nil {
		return nil, fmt.Errorf("failed to bind queue: %w", err)
	}

	deliveries, err := b.ch.ConsumeWithContext(ctx, q.Name, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to consume: %w", err)
	}

	msgChan := make(chan []byte, 100)
	go func() {
		defer close(msgChan)
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				select {
				case msgChan <- d.Body:
					if err := d.Ack(false); err != nil {
						b.logger.Error().Err(err).Msg("failed to ack delivery")
					}
				case <-ctx.Done():
					d.Nack(false, true)
					return
				}
			}
		}
	}()

	return msgChan, nil
}

func (b *RabbitMQBroker) Close() error {
	if b.ch != nil {
		if err := b.ch.Close(); err != nil {
			return err
		}
	}
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}
