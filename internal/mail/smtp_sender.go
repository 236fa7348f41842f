// internal/mail/smtp_sender.go
package mail

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/unclebandit/outreach-service/internal/config"
	appErrors "github.com/unclebandit/outreach-service/internal/errors"
	"github.com/unclebandit/outreach-service/internal/model"
)

// SMTPSender delivers outbound messages through an authenticated relay.
type SMTPSender struct {
	cfg    config.SMTPConfig
	logger *zap.Logger
}

func NewSMTPSender(cfg config.SMTPConfig, logger *zap.Logger) *SMTPSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SMTPSender{cfg: cfg, logger: logger}
}

// CheckConfig reports missing relay settings before any send is attempted.
func (s *SMTPSender) CheckConfig() error {
	if s.cfg.Host == "" {
		return appErrors.NewConfigurationError("smtp", "EMAIL_HOST is empty")
	}
	if s.cfg.FromAddress == "" {
		return appErrors.NewConfigurationError("smtp", "no sender address (DEFAULT_FROM_EMAIL or EMAIL_HOST_USER)")
	}
	if s.cfg.User != "" && s.cfg.Password == "" {
		return appErrors.NewConfigurationError("smtp", "EMAIL_HOST_PASSWORD is empty")
	}
	return nil
}

// Send delivers msg and returns the Message-ID the relay accepted.
// The id is generated locally so it can be matched against In-Reply-To later.
func (s *SMTPSender) Send(ctx context.Context, msg model.OutgoingMessage) (string, error) {
	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), domainOf(s.cfg.FromAddress))

	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.cfg.FromAddress, s.cfg.FromName)
	if msg.ToName != "" {
		m.SetAddressHeader("To", msg.To, msg.ToName)
	} else {
		m.SetHeader("To", msg.To)
	}
	m.SetHeader("Subject", msg.Subject)
	m.SetHeader("Message-ID", messageID)
	m.SetDateHeader("Date", time.Now())

	switch {
	case msg.HTMLBody != "" && msg.TextBody != "":
		m.SetBody("text/plain", msg.TextBody)
		m.AddAlternative("text/html", msg.HTMLBody)
	case msg.HTMLBody != "":
		m.SetBody("text/html", msg.HTMLBody)
	default:
		m.SetBody("text/plain", msg.TextBody)
	}

	dialer := gomail.NewDialer(s.cfg.Host, s.cfg.Port, s.cfg.User, s.cfg.Password)
	dialer.SSL = s.cfg.Port == 465

	// gomail has no context support; the send keeps running in the
	// background after ctx expires but its result is discarded.
	done := make(chan error, 1)
	go func() { done <- dialer.DialAndSend(m) }()

	select {
	case err := <-done:
		if err != nil {
			return "", appErrors.NewTransportError("smtp send", err)
		}
	case <-ctx.Done():
		return "", appErrors.NewTransportError("smtp send", ctx.Err())
	}

	s.logger.Debug("message accepted by relay",
		zap.String("to", msg.To),
		zap.String("message_id", messageID),
	)
	return messageID, nil
}

func domainOf(address string) string {
	if i := strings.LastIndex(address, "@"); i >= 0 && i < len(address)-1 {
		return address[i+1:]
	}
	return "localhost"
}
