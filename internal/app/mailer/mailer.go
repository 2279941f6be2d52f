// Package mailer собирает воркер почтовых уведомлений.
package mailer

import (
	"context"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/aicheck/internal/config"
	"github.com/magabrotheeeer/aicheck/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/aicheck/internal/lib/sl"
	"github.com/magabrotheeeer/aicheck/internal/lib/smtp"
	mailerservice "github.com/magabrotheeeer/aicheck/internal/services/mailer"
)

// App читает очереди уведомлений и отправляет письма.
type App struct {
	conn    *amqp.Connection
	ch      *amqp.Channel
	mailer  *mailerservice.Service
	workers int
	logger  *slog.Logger
}

// New подключается к RabbitMQ и объявляет очереди уведомлений.
func New(_ context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		return nil, err
	}

	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetNotificationQueues())
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	transport := smtp.NewTransport(cfg.SMTP, logger)
	return &App{
		conn:    conn,
		ch:      ch,
		mailer:  mailerservice.New(transport, logger),
		workers: cfg.Workers,
		logger:  logger,
	}, nil
}

// Run запускает потребителей всех очередей и блокируется до отмены ctx.
func (a *App) Run(ctx context.Context) error {
	for _, q := range rabbitmq.GetNotificationQueues() {
		if err := rabbitmq.ConsumerMessage(ctx, a.ch, q.QueueName, a.workers, a.logger, a.mailer.Handle); err != nil {
			a.logger.Error("failed to start consumer", sl.Err(err), slog.String("queue", q.QueueName))
			return err
		}
	}

	<-ctx.Done()
	a.logger.Info("mailer shutting down gracefully")

	if err := a.ch.Close(); err != nil {
		a.logger.Error("failed to close channel", sl.Err(err))
	}
	if err := a.conn.Close(); err != nil {
		a.logger.Error("failed to close connection", sl.Err(err))
	}
	return nil
}
