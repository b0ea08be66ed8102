package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"membership-billing/internal/common/errors"
	"membership-billing/internal/common/logger"
)

// SMTPConfig holds the mail relay settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	UseTLS   bool
}

// SMTPSender delivers messages over a plain or STARTTLS SMTP session.
type SMTPSender struct {
	config SMTPConfig
	logger logger.Logger
}

func NewSMTPSender(config SMTPConfig, log logger.Logger) *SMTPSender {
	return &SMTPSender{
		config: config,
		logger: log.WithFields(map[string]interface{}{"component": "smtp-sender"}),
	}
}

func (s *SMTPSender) Send(ctx context.Context, msg *Message) (string, error) {
	if !isValidEmail(msg.To) {
		return "", errors.NewArgumentMismatchError(fmt.Sprintf("invalid 'to' email address: %s", msg.To))
	}
	if !isValidEmail(msg.From) {
		return "", errors.NewArgumentMismatchError(fmt.Sprintf("invalid 'from' email address: %s", msg.From))
	}
	if err := ctx.Err(); err != nil {
		return "", errors.NewNotificationSendFailedError(msg.To, err)
	}

	raw := buildRawMessage(msg)

	if err := s.send(msg.From, []string{msg.To}, []byte(raw)); err != nil {
		return "", errors.NewNotificationSendFailedError(msg.To, err)
	}

	messageID := s.generateMessageID(msg.To)
	s.logger.Info("email sent", map[string]interface{}{
		"to":        msg.To,
		"messageId": messageID,
	})
	return messageID, nil
}

func buildRawMessage(msg *Message) string {
	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("From: %s\r\n", msg.From))
	builder.WriteString(fmt.Sprintf("To: %s\r\n", msg.To))
	builder.WriteString(fmt.Sprintf("Subject: %s\r\n", msg.Subject))
	builder.WriteString("MIME-Version: 1.0\r\n")
	if msg.IsHTML {
		builder.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	} else {
		builder.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	}
	builder.WriteString("\r\n")
	builder.WriteString(msg.Body)
	return builder.String()
}

func (s *SMTPSender) send(from string, to []string, raw []byte) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	var auth smtp.Auth
	if s.config.Username != "" && s.config.Password != "" {
		auth = smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
	}

	if s.config.UseTLS {
		return s.sendWithTLS(addr, auth, from, to, raw)
	}
	return smtp.SendMail(addr, auth, from, to, raw)
}

func (s *SMTPSender) sendWithTLS(addr string, auth smtp.Auth, from string, to []string, raw []byte) error {
	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer client.Close()

	tlsConfig := &tls.Config{ServerName: s.config.Host}
	if err = client.StartTLS(tlsConfig); err != nil {
		return fmt.Errorf("failed to start TLS: %w", err)
	}

	if auth != nil {
		if err = client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	if err = client.Mail(from); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	for _, rcpt := range to {
		if err = client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("failed to set recipient %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to open data writer: %w", err)
	}
	if _, err = w.Write(raw); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err = w.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	return client.Quit()
}

func (s *SMTPSender) generateMessageID(to string) string {
	return fmt.Sprintf("<%d.%s@%s>", time.Now().UnixNano(), sanitizeLocalPart(to), s.config.Host)
}

func sanitizeLocalPart(email string) string {
	parts := strings.Split(email, "@")
	local := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return -1
	}, parts[0])
	if local == "" {
		return "user"
	}
	if len(local) > 10 {
		local = local[:10]
	}
	return local
}

// TestConnection dials the relay and quits, verifying reachability and the
// TLS handshake without sending anything.
func (s *SMTPSender) TestConnection(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer client.Close()

	if s.config.UseTLS {
		if err = client.StartTLS(&tls.Config{ServerName: s.config.Host}); err != nil {
			return fmt.Errorf("failed to start TLS: %w", err)
		}
	}
	return client.Quit()
}
