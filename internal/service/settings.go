package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"

	"github.com/DukeRupert/mailprobe/internal/domain"
	"github.com/DukeRupert/mailprobe/internal/email"
	"github.com/DukeRupert/mailprobe/internal/repository"
)

// =============================================================================
// Interface Definition
// =============================================================================

// SettingsService is the config store for the outbound relay.
type SettingsService interface {
	// Active returns the active relay configuration.
	// Returns domain.ECONFIG when none has been saved.
	Active(ctx context.Context) (*domain.SMTPConfig, error)

	// Update validates and saves the relay configuration. A blank password
	// keeps the stored one. The first save creates the active row.
	Update(ctx context.Context, params domain.SMTPConfigParams) (*domain.SMTPConfig, error)

	// Bootstrap seeds the active row from params when none exists. It
	// reports whether a row was created.
	Bootstrap(ctx context.Context, params domain.SMTPConfigParams) (bool, error)

	// TestConnection checks that the relay accepts the given (unsaved)
	// credentials without sending mail. A blank password uses the stored one.
	// Returns domain.EDELIVERY when the relay rejects the connection.
	TestConnection(ctx context.Context, params domain.SMTPConfigParams) error
}

// SettingsStore is the persistence the settings service needs.
// *repository.Store satisfies it.
type SettingsStore interface {
	GetActiveSmtpConfig(ctx context.Context) (repository.SmtpConfig, error)
	SaveActiveSmtpConfig(ctx context.Context, merge func(current *repository.SmtpConfig) (repository.SmtpConfigParams, error)) (repository.SmtpConfig, error)
}

// =============================================================================
// Implementation
// =============================================================================

type settingsService struct {
	store  SettingsStore
	prober email.Prober
	logger *slog.Logger
}

// NewSettingsService creates a SettingsService. prober is used by
// TestConnection and is normally the configured mail transport.
func NewSettingsService(store SettingsStore, prober email.Prober, logger *slog.Logger) SettingsService {
	return &settingsService{
		store:  store,
		prober: prober,
		logger: logger,
	}
}

func (s *settingsService) Active(ctx context.Context) (*domain.SMTPConfig, error) {
	const op = "SettingsService.Active"

	row, err := s.store.GetActiveSmtpConfig(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.Configuration(op, "SMTP configuration not found. Save relay settings first.")
		}
		return nil, domain.Internal(err, op, "Failed to load SMTP configuration")
	}

	return repoSmtpConfigToDomain(row), nil
}

// settingsInput mirrors the settings form for validation.
type settingsInput struct {
	Host      string `validate:"required,hostname_rfc1123"`
	Port      int    `validate:"min=1,max=65535"`
	Username  string `validate:"required"`
	FromEmail string `validate:"required,email"`
	FromName  string `validate:"max=100"`
}

// normalizeSettings trims fields and applies the default port.
func normalizeSettings(p domain.SMTPConfigParams) domain.SMTPConfigParams {
	p.Host = strings.TrimSpace(p.Host)
	p.Username = strings.TrimSpace(p.Username)
	p.FromEmail = strings.TrimSpace(p.FromEmail)
	p.FromName = strings.TrimSpace(p.FromName)
	if p.Port == 0 {
		p.Port = domain.DefaultSMTPPort
	}
	return p
}

func validateSettings(op string, p domain.SMTPConfigParams) error {
	return validateStruct(op, settingsInput{
		Host:      p.Host,
		Port:      p.Port,
		Username:  p.Username,
		FromEmail: p.FromEmail,
		FromName:  p.FromName,
	})
}

func (s *settingsService) Update(ctx context.Context, params domain.SMTPConfigParams) (*domain.SMTPConfig, error) {
	const op = "SettingsService.Update"

	params = normalizeSettings(params)
	if err := validateSettings(op, params); err != nil {
		return nil, err
	}

	saved, err := s.store.SaveActiveSmtpConfig(ctx, func(current *repository.SmtpConfig) (repository.SmtpConfigParams, error) {
		password := params.Password
		if password == "" {
			if current == nil {
				return repository.SmtpConfigParams{}, domain.NewValidationError(op, "password", "Password is required")
			}
			password = current.Password
		}

		return repository.SmtpConfigParams{
			Host:      params.Host,
			Port:      int32(params.Port),
			Username:  params.Username,
			Password:  password,
			FromEmail: params.FromEmail,
			FromName:  params.FromName,
		}, nil
	})
	if err != nil {
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			return nil, ve
		}
		return nil, domain.Internal(err, op, "Failed to save SMTP configuration")
	}

	s.logger.Info("smtp configuration updated", "host", saved.Host, "port", saved.Port, "from_email", saved.FromEmail)
	return repoSmtpConfigToDomain(saved), nil
}

func (s *settingsService) Bootstrap(ctx context.Context, params domain.SMTPConfigParams) (bool, error) {
	const op = "SettingsService.Bootstrap"

	params = normalizeSettings(params)
	if params.Host == "" {
		return false, nil
	}
	if err := validateSettings(op, params); err != nil {
		return false, err
	}
	if params.Password == "" {
		return false, domain.NewValidationError(op, "password", "Password is required")
	}

	created := false
	_, err := s.store.SaveActiveSmtpConfig(ctx, func(current *repository.SmtpConfig) (repository.SmtpConfigParams, error) {
		if current != nil {
			return repository.SmtpConfigParams{}, errAlreadyConfigured
		}
		created = true
		return repository.SmtpConfigParams{
			Host:      params.Host,
			Port:      int32(params.Port),
			Username:  params.Username,
			Password:  params.Password,
			FromEmail: params.FromEmail,
			FromName:  params.FromName,
		}, nil
	})
	if errors.Is(err, errAlreadyConfigured) {
		return false, nil
	}
	if err != nil {
		return false, domain.Internal(err, op, "Failed to seed SMTP configuration")
	}

	s.logger.Info("smtp configuration seeded from environment", "host", params.Host)
	return created, nil
}

// errAlreadyConfigured aborts the bootstrap transaction without writing.
var errAlreadyConfigured = errors.New("smtp configuration already present")

func (s *settingsService) TestConnection(ctx context.Context, params domain.SMTPConfigParams) error {
	const op = "SettingsService.TestConnection"

	params = normalizeSettings(params)
	if err := validateSettings(op, params); err != nil {
		return err
	}

	if params.Password == "" {
		row, err := s.store.GetActiveSmtpConfig(ctx)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return domain.Internal(err, op, "Failed to load SMTP configuration")
		}
		params.Password = row.Password
	}

	cfg := domain.SMTPConfig{
		Host:      params.Host,
		Port:      params.Port,
		Username:  params.Username,
		Password:  params.Password,
		FromEmail: params.FromEmail,
		FromName:  params.FromName,
	}

	if err := s.prober.Probe(ctx, cfg); err != nil {
		s.logger.Info("smtp connection test failed", "host", cfg.Host, "port", cfg.Port, "error", err)
		return domain.Delivery(err, op)
	}

	s.logger.Info("smtp connection test succeeded", "host", cfg.Host, "port", cfg.Port)
	return nil
}

func repoSmtpConfigToDomain(c repository.SmtpConfig) *domain.SMTPConfig {
	return &domain.SMTPConfig{
		ID:        c.ID,
		Host:      c.Host,
		Port:      int(c.Port),
		Username:  c.Username,
		Password:  c.Password,
		FromEmail: c.FromEmail,
		FromName:  c.FromName,
		IsActive:  c.IsActive,
		UpdatedAt: c.UpdatedAt,
	}
}
