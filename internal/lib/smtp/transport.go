package smtp

import (
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/magabrotheeeer/aicheck/internal/config"
	"github.com/magabrotheeeer/aicheck/internal/lib/sl"
)

const dialTimeout = 10 * time.Second

// Transport реализует SMTP транспорт для отправки писем.
type Transport struct {
	cfg config.SMTP
	log *slog.Logger
}

type smtpClientWrapper struct {
	client *smtp.Client
}

func (w *smtpClientWrapper) Mail(from string) error       { return w.client.Mail(from) }
func (w *smtpClientWrapper) Rcpt(to string) error         { return w.client.Rcpt(to) }
func (w *smtpClientWrapper) Data() (io.WriteCloser, error) { return w.client.Data() }
func (w *smtpClientWrapper) Quit() error                  { return w.client.Quit() }
func (w *smtpClientWrapper) Close() error                 { return w.client.Close() }

// NewTransport создает новый экземпляр Transport.
func NewTransport(cfg config.SMTP, log *slog.Logger) *Transport {
	return &Transport{cfg: cfg, log: log}
}

// Connect устанавливает соединение с SMTP сервером. STARTTLS и аутентификация
// включаются, если сервер их поддерживает и задан пользователь.
func (t *Transport) Connect() (Client, error) {
	const op = "smtp.Transport.Connect"
	addr := net.JoinHostPort(t.cfg.SMTPHost, strconv.Itoa(t.cfg.SMTPPort))

	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("%s: dial: %w", op, err)
	}

	client, err := smtp.NewClient(conn, t.cfg.SMTPHost)
	if err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			t.log.Error("failed to close connection", sl.Err(closeErr))
		}
		return nil, fmt.Errorf("%s: create client: %w", op, err)
	}

	if ok, _ := client.Extension("STARTTLS"); ok {
		tlsConfig := &tls.Config{
			ServerName: t.cfg.SMTPHost,
			MinVersion: tls.VersionTLS12,
		}
		if err = client.StartTLS(tlsConfig); err != nil {
			t.closeClient(client)
			return nil, fmt.Errorf("%s: start TLS: %w", op, err)
		}
	}

	if t.cfg.SMTPUser != "" {
		auth := smtp.PlainAuth("", t.cfg.SMTPUser, t.cfg.SMTPPass, t.cfg.SMTPHost)
		if err = client.Auth(auth); err != nil {
			t.closeClient(client)
			return nil, fmt.Errorf("%s: auth: %w", op, err)
		}
	}

	return &smtpClientWrapper{client: client}, nil
}

// Sender возвращает адрес отправителя.
func (t *Transport) Sender() string {
	if t.cfg.From != "" {
		return t.cfg.From
	}
	return t.cfg.SMTPUser
}

func (t *Transport) closeClient(c *smtp.Client) {
	if err := c.Close(); err != nil {
		t.log.Error("failed to close client", sl.Err(err))
	}
}
