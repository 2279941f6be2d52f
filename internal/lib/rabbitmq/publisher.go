package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/aicheck/internal/models"
)

// Channel часть amqp.Channel, нужная для публикации.
type Channel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// PublishMessage публикует сообщение в RabbitMQ.
func PublishMessage(ch Channel, exchange string, routingkey string, message any) error {
	const op = "rabbitmq.PublishMessage"
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err = ch.Publish(
		exchange,
		routingkey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Publisher отправляет уведомления в обменник notifications.
type Publisher struct {
	ch Channel
}

// NewPublisher создаёт публикатор поверх открытого канала.
func NewPublisher(ch Channel) *Publisher {
	return &Publisher{ch: ch}
}

// Notify ставит письмо в очередь, соответствующую виду уведомления.
func (p *Publisher) Notify(ctx context.Context, n models.Notification) error {
	const op = "rabbitmq.Publisher.Notify"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}
	if err := PublishMessage(p.ch, Exchange, n.Kind, n); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
