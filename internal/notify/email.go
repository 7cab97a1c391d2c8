package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/wneessen/go-mail"
)

const sendTimeout = 10 * time.Second

// SmtpConfig holds SMTP connection parameters.
type SmtpConfig struct {
	Host     string
	Port     int
	From     string
	Username string
	Password string
	TLS      bool
}

// Email sends one plaintext mail per alert. It dials per send; alert
// traffic is sporadic.
type Email struct {
	cfg        SmtpConfig
	recipients []string
	hostname   string
	send       func(ctx context.Context, m *mail.Msg) error
}

func NewEmail(cfg SmtpConfig, recipients []string) *Email {
	host, _ := os.Hostname()
	e := &Email{cfg: cfg, recipients: recipients, hostname: host}
	e.send = e.dialAndSend
	return e
}

func (e *Email) Deliver(ctx context.Context, subject string, cause error) {
	if err := e.deliver(ctx, subject, cause); err != nil {
		slog.ErrorContext(ctx, "failed to send notification email", "subject", subject, "error", err)
	}
}

func (e *Email) deliver(ctx context.Context, subject string, cause error) error {
	m, err := e.compose(subject, cause)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	return e.send(ctx, m)
}

func (e *Email) compose(subject string, cause error) (*mail.Msg, error) {
	if len(e.recipients) == 0 {
		return nil, errors.New("email notify: no recipients")
	}

	// Strip CR/LF from subject to prevent header injection.
	subject = strings.NewReplacer("\r", "", "\n", "").Replace(subject)

	m := mail.NewMsg()
	if err := m.FromFormat("ayl worker", e.cfg.From); err != nil {
		return nil, fmt.Errorf("email notify: set from: %w", err)
	}
	if err := m.To(e.recipients...); err != nil {
		return nil, fmt.Errorf("email notify: set to: %w", err)
	}
	m.Subject("[ayl] " + subject)
	m.SetBodyString(mail.TypeTextPlain, e.body(subject, cause))
	return m, nil
}

func (e *Email) body(subject string, cause error) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", subject)
	fmt.Fprintf(&b, "Host: %s\n", e.hostname)
	fmt.Fprintf(&b, "Time: %s\n", time.Now().UTC().Format(time.RFC3339))
	if cause != nil {
		fmt.Fprintf(&b, "Error: %v\n", cause)
	}
	return b.String()
}

func (e *Email) dialAndSend(ctx context.Context, m *mail.Msg) error {
	opts := []mail.Option{
		mail.WithPort(e.cfg.Port),
	}
	if e.cfg.Username != "" {
		opts = append(opts, mail.WithSMTPAuth(mail.SMTPAuthPlain))
		opts = append(opts, mail.WithUsername(e.cfg.Username))
		opts = append(opts, mail.WithPassword(e.cfg.Password))
	}
	if e.cfg.TLS {
		opts = append(opts, mail.WithTLSPortPolicy(mail.TLSMandatory))
	} else {
		opts = append(opts, mail.WithTLSPortPolicy(mail.TLSOpportunistic))
	}

	c, err := mail.NewClient(e.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("email notify: create client: %w", err)
	}
	if err := c.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("email notify: %w", err)
	}
	return nil
}
