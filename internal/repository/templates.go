package repository

import (
	"context"

	"github.com/google/uuid"
)

const listEmailTemplates = `
SELECT id, name, type, subject, body_html, body_text, created_at
FROM email_templates
ORDER BY type, name`

func (q *Queries) ListEmailTemplates(ctx context.Context) ([]EmailTemplate, error) {
	var items []EmailTemplate
	if err := q.db.SelectContext(ctx, &items, listEmailTemplates); err != nil {
		return nil, err
	}
	return items, nil
}

const getEmailTemplate = `
SELECT id, name, type, subject, body_html, body_text, created_at
FROM email_templates
WHERE id = $1`

func (q *Queries) GetEmailTemplate(ctx context.Context, id uuid.UUID) (EmailTemplate, error) {
	var t EmailTemplate
	err := q.db.GetContext(ctx, &t, getEmailTemplate, id)
	return t, err
}
