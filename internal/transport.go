package internal

import (
	"context"
	"fmt"

	"github.com/DukeRupert/mailprobe/internal/domain"
	"github.com/DukeRupert/mailprobe/internal/email"
)

// MailTransport delivers messages and probes relay credentials.
type MailTransport interface {
	email.Transport
	email.Prober
}

// NewMailTransport builds the transport selected by MAIL_TRANSPORT.
func NewMailTransport(ctx context.Context, cfg *Config) (MailTransport, error) {
	switch cfg.MailTransport {
	case "ses":
		t, err := email.NewSESTransport(ctx, email.SESOptions{
			Region:          cfg.SESRegion,
			AccessKeyID:     cfg.SESAccessKeyID,
			SecretAccessKey: cfg.SESSecretAccessKey,
			Timeout:         cfg.SMTPTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("ses transport: %w", err)
		}
		return t, nil
	case "smtp":
		return email.NewSMTPTransport(email.SMTPOptions{
			Timeout:    cfg.SMTPTimeout,
			RequireTLS: cfg.SMTPRequireTLS,
		}), nil
	default:
		return nil, fmt.Errorf("unknown mail transport %q", cfg.MailTransport)
	}
}

// BootstrapSMTP returns the relay settings seeded from SMTP_* variables.
// ok is false when SMTP_HOST is unset.
func (c *Config) BootstrapSMTP() (params domain.SMTPConfigParams, ok bool) {
	if c.SMTPHost == "" {
		return domain.SMTPConfigParams{}, false
	}
	return domain.SMTPConfigParams{
		Host:      c.SMTPHost,
		Port:      c.SMTPPort,
		Username:  c.SMTPUsername,
		Password:  c.SMTPPassword,
		FromEmail: c.SMTPFrom,
		FromName:  c.SMTPFromName,
	}, true
}
