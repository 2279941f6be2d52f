package smtp

import (
	"bufio"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/aicheck/internal/config"
)

// fakeServer отвечает минимальным диалогом SMTP без STARTTLS.
func fakeServer(t *testing.T) (string, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		_, _ = io.WriteString(conn, "220 localhost ESMTP\r\n")
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			switch {
			case strings.HasPrefix(line, "EHLO"):
				_, _ = io.WriteString(conn, "250-localhost\r\n250 8BITMIME\r\n")
			case strings.HasPrefix(line, "QUIT"):
				_, _ = io.WriteString(conn, "221 bye\r\n")
				return
			default:
				_, _ = io.WriteString(conn, "250 ok\r\n")
			}
		}
	}()

	host, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	return host, p
}

func TestTransport_ConnectPlain(t *testing.T) {
	host, port := fakeServer(t)
	tr := NewTransport(config.SMTP{SMTPHost: host, SMTPPort: port, From: "bot@x.com"},
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	c, err := tr.Connect()
	require.NoError(t, err)
	require.NoError(t, c.Mail("bot@x.com"))
	require.NoError(t, c.Quit())
	assert.Equal(t, "bot@x.com", tr.Sender())
}

func TestTransport_ConnectRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	require.NoError(t, ln.Close())

	tr := NewTransport(config.SMTP{SMTPHost: "127.0.0.1", SMTPPort: addr.Port},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	_, err = tr.Connect()
	assert.Error(t, err)
}

func TestTransport_SenderFallsBackToUser(t *testing.T) {
	tr := NewTransport(config.SMTP{SMTPUser: "user@x.com"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Equal(t, "user@x.com", tr.Sender())
}
