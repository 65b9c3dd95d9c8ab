// Package mail delivers the service's outbound email over SMTP.
package mail

import (
	"context"
	"fmt"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/hsyntes/authentication-authorization-security/internal/core/ports"
)

const defaultTimeout = 10 * time.Second

// Config holds the SMTP relay settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

type sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPMailer sends plain-text messages through an authenticated SMTP relay.
type SMTPMailer struct {
	dialer  sender
	from    string
	timeout time.Duration
}

// NewSMTPMailer builds a mailer for cfg. No connection is made until Send.
func NewSMTPMailer(cfg Config) *SMTPMailer {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &SMTPMailer{
		dialer:  gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:    cfg.From,
		timeout: timeout,
	}
}

// Send delivers msg. It gives up when ctx is done or the configured timeout
// elapses, whichever comes first; the dial itself may outlive the call.
func (m *SMTPMailer) Send(ctx context.Context, msg ports.MailMessage) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	gm := gomail.NewMessage()
	gm.SetHeader("From", m.from)
	gm.SetHeader("To", msg.To)
	gm.SetHeader("Subject", msg.Subject)
	gm.SetBody("text/plain", msg.Text)

	errCh := make(chan error, 1)
	go func() { errCh <- m.dialer.DialAndSend(gm) }()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("smtp send: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("smtp send: %w", ctx.Err())
	}
}
