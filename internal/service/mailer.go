package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/DukeRupert/mailprobe/internal/domain"
	"github.com/DukeRupert/mailprobe/internal/email"
	"github.com/DukeRupert/mailprobe/internal/metrics"
	"github.com/DukeRupert/mailprobe/internal/repository"
	"github.com/google/uuid"
)

// =============================================================================
// Interface Definition
// =============================================================================

// MailService hands out request-scoped Mailers.
type MailService interface {
	// NewMailer snapshots the active relay configuration and binds the acting
	// user. Returns domain.ECONFIG when no configuration is active; nothing
	// is sent or logged in that case.
	NewMailer(ctx context.Context, actor domain.Actor) (Mailer, error)
}

// Mailer sends with one configuration snapshot. Every attempt, successful or
// not, is recorded in the activity log. Delivery failures are reported in
// the returned SendResult, never as errors.
type Mailer interface {
	// Config returns the snapshot this mailer sends with.
	Config() domain.SMTPConfig

	// Send delivers one message. TemplateID set logs the attempt as a
	// template test, otherwise as a basic test.
	Send(ctx context.Context, req domain.SendRequest) domain.SendResult

	// SendTemplate renders a stored template and delivers it. Returns
	// domain.ENOTFOUND before any send attempt if the template is absent.
	SendTemplate(ctx context.Context, to string, templateID uuid.UUID, vars map[string]string) (domain.SendResult, error)

	// SendBulk sends the same message to each recipient sequentially, in
	// input order, continuing past failures.
	SendBulk(ctx context.Context, req domain.BulkRequest) domain.BulkReport
}

// LogWriter appends activity log entries. *repository.Queries satisfies it.
type LogWriter interface {
	CreateEmailLog(ctx context.Context, arg repository.CreateEmailLogParams) (repository.EmailLog, error)
}

// =============================================================================
// Implementation
// =============================================================================

type mailService struct {
	settings  SettingsService
	templates TemplateService
	transport email.Transport
	logs      LogWriter
	logger    *slog.Logger
}

// NewMailService creates a MailService delivering through transport.
func NewMailService(settings SettingsService, templates TemplateService, transport email.Transport, logs LogWriter, logger *slog.Logger) MailService {
	return &mailService{
		settings:  settings,
		templates: templates,
		transport: transport,
		logs:      logs,
		logger:    logger,
	}
}

func (s *mailService) NewMailer(ctx context.Context, actor domain.Actor) (Mailer, error) {
	cfg, err := s.settings.Active(ctx)
	if err != nil {
		return nil, err
	}
	return &mailer{svc: s, cfg: *cfg, actor: actor}, nil
}

type mailer struct {
	svc   *mailService
	cfg   domain.SMTPConfig
	actor domain.Actor
}

func (m *mailer) Config() domain.SMTPConfig {
	return m.cfg
}

func (m *mailer) Send(ctx context.Context, req domain.SendRequest) domain.SendResult {
	testType := domain.TestTypeBasic
	if req.TemplateID != nil {
		testType = domain.TestTypeTemplate
	}

	msg := email.NewMessage(req.To, req.Subject, req.Body, req.IsHTML)
	return m.deliver(ctx, msg, testType, req.TemplateID)
}

func (m *mailer) SendTemplate(ctx context.Context, to string, templateID uuid.UUID, vars map[string]string) (domain.SendResult, error) {
	_, rendered, err := m.svc.templates.Render(ctx, templateID, vars)
	if err != nil {
		return domain.SendResult{}, err
	}

	msg := email.Message{
		To:       to,
		Subject:  rendered.Subject,
		HTMLBody: rendered.BodyHTML,
		TextBody: rendered.BodyText,
	}
	if msg.TextBody == "" && msg.HTMLBody != "" {
		msg.TextBody = email.StripTags(msg.HTMLBody)
	}

	return m.deliver(ctx, msg, domain.TestTypeTemplate, &templateID), nil
}

func (m *mailer) SendBulk(ctx context.Context, req domain.BulkRequest) domain.BulkReport {
	metrics.BulkDispatched(len(req.Recipients))

	report := domain.BulkReport{Results: make([]domain.RecipientResult, 0, len(req.Recipients))}
	for _, to := range req.Recipients {
		msg := email.NewMessage(to, req.Subject, req.Body, req.IsHTML)
		report.Results = append(report.Results, domain.RecipientResult{
			Email:  to,
			Result: m.deliver(ctx, msg, domain.TestTypeBulk, nil),
		})
	}

	m.svc.logger.Info("bulk dispatch finished",
		"user", m.actor.Username,
		"total", report.Total(),
		"succeeded", report.Succeeded(),
	)
	return report
}

// deliver performs one attempt and records it. A failed log write is
// reported but does not change the result.
func (m *mailer) deliver(ctx context.Context, msg email.Message, testType domain.TestType, templateID *uuid.UUID) domain.SendResult {
	start := time.Now()
	messageID, err := m.svc.transport.Deliver(ctx, m.cfg, msg)
	elapsed := time.Since(start)

	var result domain.SendResult
	if err != nil {
		result = domain.Failed(err)
		m.svc.logger.Warn("delivery failed",
			"to", msg.To,
			"test_type", testType,
			"transport", m.svc.transport.Name(),
			"error", err,
		)
	} else {
		result = domain.Sent(messageID)
		m.svc.logger.Info("delivery succeeded",
			"to", msg.To,
			"test_type", testType,
			"message_id", messageID,
			"duration", elapsed,
		)
	}

	metrics.EmailAttempted(string(testType), string(result.Status()), m.svc.transport.Name(), elapsed)
	m.record(ctx, msg, testType, templateID, result)

	return result
}

func (m *mailer) record(ctx context.Context, msg email.Message, testType domain.TestType, templateID *uuid.UUID, result domain.SendResult) {
	userID := uuid.NullUUID{UUID: m.actor.UserID, Valid: m.actor.UserID != uuid.Nil}

	// The attempt already happened; record it even if the caller went away.
	_, err := m.svc.logs.CreateEmailLog(context.WithoutCancel(ctx), repository.CreateEmailLogParams{
		UserID:         userID,
		TestType:       string(testType),
		RecipientEmail: msg.To,
		Subject:        msg.Subject,
		TemplateID:     domain.ToNullUUID(templateID),
		Status:         string(result.Status()),
		MessageID:      domain.ToNullString(result.MessageID),
		ErrorMessage:   domain.ToNullString(result.Error),
	})
	if err != nil {
		metrics.LogWriteFailed()
		m.svc.logger.Error("failed to write activity log",
			"to", msg.To,
			"status", result.Status(),
			"error", err,
		)
	}
}
