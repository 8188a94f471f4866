package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/kamal-github/outbox-sweeper/event"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// confirmation is the broker's eventual verdict on one publish.
type confirmation interface {
	WaitContext(ctx context.Context) (bool, error)
}

// confirmChannel is the slice of an AMQP channel the dispatcher needs: a
// publish on a confirm-mode channel, handing back the pending
// confirmation.
type confirmChannel interface {
	publishWithConfirm(ctx context.Context, routingKey string, msg amqp.Publishing) (confirmation, error)
	Close() error
}

type amqpConfirmChannel struct {
	ch *amqp.Channel
}

func (c amqpConfirmChannel) publishWithConfirm(ctx context.Context, routingKey string, msg amqp.Publishing) (confirmation, error) {
	return c.ch.PublishWithDeferredConfirmWithContext(ctx, "", routingKey, false, false, msg)
}

func (c amqpConfirmChannel) Close() error {
	return c.ch.Close()
}

// RabbitMQ dispatches outbox batches to a RabbitMQ broker. The physical
// address is used as the routing key on the default exchange.
type RabbitMQ struct {
	conn    *amqp.Connection
	channel confirmChannel

	logger *zap.Logger
}

// NewRabbitMQ creates a RabbitMQ dispatcher with a publisher-confirm
// channel, so a publish counts as sent only once the broker acks it.
func NewRabbitMQ(amqpURL string, logger *zap.Logger) (*RabbitMQ, error) {
	if logger == nil {
		return nil, errors.New("RabbitMQ: invalid logger")
	}

	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("RabbitMQ: %w", err)
	}

	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("RabbitMQ: %w", err)
	}

	return &RabbitMQ{
		conn:    conn,
		channel: amqpConfirmChannel{ch: ch},
		logger:  logger,
	}, nil
}

// SendBatch publishes one message per row and then waits for every broker
// confirmation. A single nack or publish error fails the whole batch.
func (r *RabbitMQ) SendBatch(ctx context.Context, routingKey string, msgs []event.OutboxMessage) error {
	if len(msgs) == 0 {
		return nil
	}

	confirms := make([]confirmation, 0, len(msgs))

	for _, m := range msgs {
		dc, err := r.channel.publishWithConfirm(ctx, routingKey, amqp.Publishing{
			MessageId:    m.MessageID,
			DeliveryMode: amqp.Persistent,
			Body:         []byte(m.Body),
		})
		if err != nil {
			return fmt.Errorf("rabbitmq.SendBatch: %w", err)
		}

		confirms = append(confirms, dc)
	}

	for _, dc := range confirms {
		acked, err := dc.WaitContext(ctx)
		if err != nil {
			return fmt.Errorf("rabbitmq.SendBatch: %w", err)
		}
		if !acked {
			return fmt.Errorf("rabbitmq.SendBatch: publish nacked by broker")
		}
	}

	return nil
}

// Close closes the confirm channel and the underlying connection.
func (r *RabbitMQ) Close() error {
	if err := r.channel.Close(); err != nil {
		return err
	}

	if r.conn == nil {
		return nil
	}

	return r.conn.Close()
}
