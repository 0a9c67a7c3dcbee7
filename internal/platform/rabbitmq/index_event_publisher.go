package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"ragdoll/internal/model"
)

// IndexEventPublisher announces index builds and clears on a durable queue.
type IndexEventPublisher struct {
	conn      *amqp.Connection
	queueName string
}

func NewIndexEventPublisher(conn *amqp.Connection, queueName string) *IndexEventPublisher {
	return &IndexEventPublisher{
		conn:      conn,
		queueName: queueName,
	}
}

func (p *IndexEventPublisher) Publish(ctx context.Context, event model.IndexEvent) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()

	if _, err := declareQueue(ch, p.queueName); err != nil {
		return fmt.Errorf("declare queue failed: %w", err)
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal index event failed: %w", err)
	}

	if err := ch.PublishWithContext(
		ctx,
		"",
		p.queueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Type:         event.Type,
			Timestamp:    event.OccurredAt,
			Body:         payload,
			DeliveryMode: amqp.Persistent,
		},
	); err != nil {
		return fmt.Errorf("publish index event failed: %w", err)
	}
	return nil
}
