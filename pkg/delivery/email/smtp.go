// Package email delivers email steps over SMTP.
package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/dukex/bizflow/pkg/protocol"
	"github.com/google/uuid"
)

// Config holds the SMTP relay settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func (c Config) addr() string {
	port := c.Port
	if port == 0 {
		port = 587
	}

	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

type sendFunc func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error

// Sender implements protocol.EmailSender.
type Sender struct {
	config   Config
	sendMail sendFunc
	now      func() time.Time
	logger   *slog.Logger
}

func NewSender(config Config, logger *slog.Logger) *Sender {
	return &Sender{
		config:   config,
		sendMail: smtp.SendMail,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger.With("module", "email_sender"),
	}
}

// Send relays the message. Permanent SMTP replies (5xx) are validation errors,
// temporary replies and network failures are transient.
func (s *Sender) Send(ctx context.Context, msg protocol.EmailMessage) (protocol.Receipt, error) {
	if s.config.Host == "" {
		return protocol.Receipt{}, protocol.Configurationf("smtp host is not configured")
	}

	from := msg.From
	if from == "" {
		from = s.config.From
	}

	if from == "" {
		return protocol.Receipt{}, protocol.Configurationf("email sender address is not configured")
	}

	messageID := uuid.NewString()
	sentAt := s.now()
	body := buildMessage(messageID, from, msg, sentAt)

	var auth smtp.Auth
	if s.config.Username != "" {
		auth = smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
	}

	done := make(chan error, 1)

	go func() {
		done <- s.sendMail(s.config.addr(), auth, from, msg.To, body)
	}()

	select {
	case err := <-done:
		if err != nil {
			return protocol.Receipt{}, classify(err)
		}
	case <-ctx.Done():
		return protocol.Receipt{}, fmt.Errorf("sending email: %w", ctx.Err())
	}

	s.logger.InfoContext(ctx, "email sent", "message_id", messageID, "recipients", len(msg.To))

	return protocol.Receipt{
		ID:        messageID,
		Status:    "sent",
		Recipient: strings.Join(msg.To, ", "),
		SentAt:    sentAt,
	}, nil
}

func classify(err error) error {
	var reply *textproto.Error
	if errors.As(err, &reply) {
		if reply.Code >= 500 {
			return protocol.Validationf("smtp rejected message: %w", err)
		}

		return protocol.Transientf("smtp deferred message: %w", err)
	}

	return protocol.Transientf("smtp delivery failed: %w", err)
}

func buildMessage(messageID, from string, msg protocol.EmailMessage, sentAt time.Time) []byte {
	var b strings.Builder

	header := func(key, value string) {
		b.WriteString(key)
		b.WriteString(": ")
		b.WriteString(value)
		b.WriteString("\r\n")
	}

	header("Message-ID", "<"+messageID+"@bizflow>")
	header("Date", sentAt.Format(time.RFC1123Z))
	header("From", from)
	header("To", strings.Join(msg.To, ", "))
	header("Subject", msg.Subject)
	header("MIME-Version", "1.0")

	if msg.Template != "" {
		header("X-Bizflow-Template", msg.Template)
	}

	if looksLikeHTML(msg.Body) {
		header("Content-Type", `text/html; charset="UTF-8"`)
	} else {
		header("Content-Type", `text/plain; charset="UTF-8"`)
	}

	b.WriteString("\r\n")
	b.WriteString(msg.Body)

	return []byte(b.String())
}

func looksLikeHTML(body string) bool {
	trimmed := strings.TrimSpace(strings.ToLower(body))

	return strings.HasPrefix(trimmed, "<!doctype html") || strings.HasPrefix(trimmed, "<html")
}
