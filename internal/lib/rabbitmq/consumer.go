package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/aicheck/internal/lib/sl"
)

// Deliveries часть amqp.Channel, нужная для потребления.
type Deliveries interface {
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
}

// ConsumerMessage запускает потребителя очереди. Обработка идёт не более чем в workers горутинах;
// при ошибке обработчика сообщение возвращается в очередь.
func ConsumerMessage(ctx context.Context, ch Deliveries, queueName string, workers int,
	log *slog.Logger, handler func([]byte) error) error {
	const op = "rabbitmq.ConsumerMessage"
	delivery, err := ch.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	sem := make(chan struct{}, max(workers, 1))
	go func() {
		for {
			select {
			case d, ok := <-delivery:
				if !ok {
					return
				}
				sem <- struct{}{}
				go func(d amqp.Delivery) {
					defer func() { <-sem }()
					handle(d, queueName, log, handler)
				}(d)
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

func handle(d amqp.Delivery, queueName string, log *slog.Logger, handler func([]byte) error) {
	if err := handler(d.Body); err != nil {
		log.Error("failed to handle message", sl.Err(err), slog.String("queue", queueName))
		if nackErr := d.Nack(false, !d.Redelivered); nackErr != nil {
			log.Error("failed to nack message", sl.Err(nackErr))
		}
		return
	}
	if ackErr := d.Ack(false); ackErr != nil {
		log.Error("failed to ack message", sl.Err(ackErr))
	}
}
