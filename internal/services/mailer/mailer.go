// Package mailer отправляет письма из очередей уведомлений.
package mailer

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/magabrotheeeer/aicheck/internal/lib/sl"
	"github.com/magabrotheeeer/aicheck/internal/lib/smtp"
	"github.com/magabrotheeeer/aicheck/internal/models"
)

// Service формирует и отправляет письма.
type Service struct {
	transport smtp.TransportInterface
	log       *slog.Logger
}

// New создает новый экземпляр Service.
func New(transport smtp.TransportInterface, log *slog.Logger) *Service {
	return &Service{
		transport: transport,
		log:       log,
	}
}

// Handle разбирает уведомление из очереди и отправляет соответствующее письмо.
func (s *Service) Handle(body []byte) error {
	const op = "mailer.Handle"
	var n models.Notification
	if err := json.Unmarshal(body, &n); err != nil {
		s.log.Error("failed to unmarshal message body", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	if n.Email == "" {
		return fmt.Errorf("%s: notification without recipient", op)
	}

	subject, text, err := render(n)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.sendEmail([]string{n.Email}, subject, text); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func render(n models.Notification) (string, string, error) {
	name := n.Name
	if name == "" {
		name = "there"
	}
	switch n.Kind {
	case models.NotificationVerification:
		return "Verify your email address",
			fmt.Sprintf("Hello, %s!\n\nYour verification code is %s.\n", name, n.Code), nil
	case models.NotificationPasswordReset:
		return "Reset your password",
			fmt.Sprintf("Hello, %s!\n\nUse code %s to set a new password. If you did not request a reset, ignore this email.\n", name, n.Code), nil
	case models.NotificationSubscription:
		return "Your subscription has changed",
			fmt.Sprintf("Hello, %s!\n\n%s\n", name, n.Text), nil
	default:
		return "", "", fmt.Errorf("unknown notification kind %q", n.Kind)
	}
}

func (s *Service) sendEmail(to []string, subject, bodyText string) error {
	from := s.transport.Sender()
	msg := strings.Join([]string{
		"From: " + from,
		"To: " + strings.Join(to, ";"),
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
		"",
		bodyText,
	}, "\r\n")

	client, err := s.transport.Connect()
	if err != nil {
		s.log.Error("failed to connect to SMTP server", sl.Err(err))
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	if err := client.Mail(from); err != nil {
		s.log.Error("failed to set MAIL FROM", slog.String("from", from), sl.Err(err))
		return err
	}
	for _, addr := range to {
		if err := client.Rcpt(addr); err != nil {
			s.log.Error("failed to set RCPT TO", slog.String("recipient", addr), sl.Err(err))
			return err
		}
	}

	wc, err := client.Data()
	if err != nil {
		s.log.Error("failed to get Data writer", sl.Err(err))
		return err
	}
	if _, err = wc.Write([]byte(msg)); err != nil {
		s.log.Error("failed to write email body", sl.Err(err))
		return err
	}
	if err = wc.Close(); err != nil {
		s.log.Error("failed to close Data writer", sl.Err(err))
		return err
	}
	if err = client.Quit(); err != nil {
		s.log.Error("failed to quit SMTP client", sl.Err(err))
		return err
	}

	s.log.Info("email sent", slog.Any("to", to), slog.String("subject", subject))
	return nil
}
