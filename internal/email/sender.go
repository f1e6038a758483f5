package email

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dukerupert/cabinshare/internal/config"
)

// ErrNotConfigured is returned when no delivery method is configured.
var ErrNotConfigured = errors.New("email not configured")

// Message is a rendered email.
type Message struct {
	To       string
	Subject  string
	TextBody string
	HTMLBody string
}

// Sender delivers a message.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// Disabled drops every message.
type Disabled struct{}

func (Disabled) Send(context.Context, Message) error { return ErrNotConfigured }

// NewSender picks Postmark when a token is set, then SMTP, otherwise Disabled.
func NewSender(cfg config.EmailConfig, logger *slog.Logger) Sender {
	switch {
	case cfg.PostmarkToken != "":
		logger.Info("email via postmark", "from", cfg.FromEmail)
		return NewClient(cfg.PostmarkToken, cfg.FromEmail)
	case cfg.SMTPHost != "":
		logger.Info("email via smtp", "host", cfg.SMTPHost, "port", cfg.SMTPPort)
		return NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.FromEmail)
	}
	logger.Warn("email disabled: set CABINSHARE_POSTMARK_TOKEN or CABINSHARE_SMTP_HOST")
	return Disabled{}
}
