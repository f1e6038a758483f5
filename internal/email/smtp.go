package email

import (
	"context"
	"fmt"
	"time"

	mail "gopkg.in/mail.v2"
)

// SMTPSender delivers mail through an SMTP relay.
type SMTPSender struct {
	dialer    *mail.Dialer
	fromEmail string
}

func NewSMTPSender(host string, port int, user, password, fromEmail string) *SMTPSender {
	d := mail.NewDialer(host, port, user, password)
	d.Timeout = 10 * time.Second
	return &SMTPSender{dialer: d, fromEmail: fromEmail}
}

func (s *SMTPSender) Send(ctx context.Context, m Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.dialer.DialAndSend(s.build(m)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func (s *SMTPSender) build(m Message) *mail.Message {
	msg := mail.NewMessage()
	msg.SetHeader("From", s.fromEmail)
	msg.SetHeader("To", m.To)
	msg.SetHeader("Subject", m.Subject)
	msg.SetBody("text/plain", m.TextBody)
	if m.HTMLBody != "" {
		msg.AddAlternative("text/html", m.HTMLBody)
	}
	return msg
}
