package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/DukeRupert/mailprobe/internal/domain"
	"github.com/DukeRupert/mailprobe/internal/repository"
	"github.com/google/uuid"
)

// TemplateService reads stored templates and renders them.
type TemplateService interface {
	// List returns every template ordered by type, then name.
	List(ctx context.Context) ([]domain.EmailTemplate, error)

	// Get returns one template. Returns domain.ENOTFOUND if absent.
	Get(ctx context.Context, id uuid.UUID) (*domain.EmailTemplate, error)

	// Variables returns the distinct placeholder names of a template in
	// first-seen order.
	Variables(ctx context.Context, id uuid.UUID) ([]string, error)

	// Render substitutes vars into a template. Unsupplied placeholders are
	// left as written.
	Render(ctx context.Context, id uuid.UUID, vars map[string]string) (*domain.EmailTemplate, domain.RenderedTemplate, error)
}

// TemplateStore is satisfied by *repository.Queries.
type TemplateStore interface {
	ListEmailTemplates(ctx context.Context) ([]repository.EmailTemplate, error)
	GetEmailTemplate(ctx context.Context, id uuid.UUID) (repository.EmailTemplate, error)
}

type templateService struct {
	store  TemplateStore
	logger *slog.Logger
}

// NewTemplateService creates a TemplateService.
func NewTemplateService(store TemplateStore, logger *slog.Logger) TemplateService {
	return &templateService{store: store, logger: logger}
}

func (s *templateService) List(ctx context.Context) ([]domain.EmailTemplate, error) {
	const op = "TemplateService.List"

	rows, err := s.store.ListEmailTemplates(ctx)
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to list templates")
	}

	out := make([]domain.EmailTemplate, 0, len(rows))
	for _, r := range rows {
		out = append(out, *repoTemplateToDomain(r))
	}
	return out, nil
}

func (s *templateService) Get(ctx context.Context, id uuid.UUID) (*domain.EmailTemplate, error) {
	const op = "TemplateService.Get"

	row, err := s.store.GetEmailTemplate(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "template", id.String())
		}
		return nil, domain.Internal(err, op, "Failed to load template")
	}
	return repoTemplateToDomain(row), nil
}

func (s *templateService) Variables(ctx context.Context, id uuid.UUID) ([]string, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return t.Variables(), nil
}

func (s *templateService) Render(ctx context.Context, id uuid.UUID, vars map[string]string) (*domain.EmailTemplate, domain.RenderedTemplate, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, domain.RenderedTemplate{}, err
	}
	return t, t.Render(vars), nil
}

func repoTemplateToDomain(t repository.EmailTemplate) *domain.EmailTemplate {
	return &domain.EmailTemplate{
		ID:        t.ID,
		Name:      t.Name,
		Type:      domain.TemplateType(t.Type),
		Subject:   t.Subject,
		BodyHTML:  t.BodyHtml,
		BodyText:  t.BodyText,
		CreatedAt: t.CreatedAt,
	}
}
