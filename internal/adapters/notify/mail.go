package notify

import (
	"context"
	"fmt"

	"github.com/okian/pinnacle/pkg/logger"
	"gopkg.in/gomail.v2"
)

const defaultSubject = "Pinnacle Dynamics"

// MailConfig holds SMTP settings.
type MailConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	Subject  string
}

// MailSender delivers messages as plain-text e-mail over SMTP.
type MailSender struct {
	cfg    MailConfig
	dial   func() (gomail.SendCloser, error)
	logger logger.Logger
}

// NewMailSender returns a sender that dials SMTP per message.
func NewMailSender(cfg MailConfig, l logger.Logger) (*MailSender, error) {
	if cfg.Host == "" || cfg.From == "" {
		return nil, fmt.Errorf("%w: smtp host and from address are required", ErrNotConfigured)
	}
	if cfg.Subject == "" {
		cfg.Subject = defaultSubject
	}
	if l == nil {
		l = logger.Get()
	}
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password)
	return &MailSender{cfg: cfg, dial: dialer.Dial, logger: l.Named("notify.mail")}, nil
}

// NewMailSenderWithDialer is NewMailSender with a custom transport.
func NewMailSenderWithDialer(cfg MailConfig, dial func() (gomail.SendCloser, error), l logger.Logger) (*MailSender, error) {
	s, err := NewMailSender(cfg, l)
	if err != nil {
		return nil, err
	}
	s.dial = dial
	return s, nil
}

func (s *MailSender) Send(ctx context.Context, to, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := gomail.NewMessage()
	m.SetHeader("From", s.cfg.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", s.cfg.Subject)
	m.SetBody("text/plain", message)

	sc, err := s.dial()
	if err != nil {
		return fmt.Errorf("dial smtp %s:%d: %w", s.cfg.Host, s.cfg.Port, err)
	}
	defer sc.Close()

	if err := gomail.Send(sc, m); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	s.logger.Info(ctx, "mail sent", logger.String("to", to))
	return nil
}
