package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type CreateEmailLogParams struct {
	UserID         uuid.NullUUID
	TestType       string
	RecipientEmail string
	Subject        string
	TemplateID     uuid.NullUUID
	Status         string
	MessageID      sql.NullString
	ErrorMessage   sql.NullString
}

const createEmailLog = `
INSERT INTO email_logs (user_id, test_type, recipient_email, subject, template_id, status, message_id, error_message)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id, user_id, test_type, recipient_email, subject, template_id, status, message_id, error_message, sent_at`

func (q *Queries) CreateEmailLog(ctx context.Context, arg CreateEmailLogParams) (EmailLog, error) {
	var l EmailLog
	err := q.db.GetContext(ctx, &l, createEmailLog,
		arg.UserID, arg.TestType, arg.RecipientEmail, arg.Subject,
		arg.TemplateID, arg.Status, arg.MessageID, arg.ErrorMessage)
	return l, err
}

// =============================================================================
// Filtered listing
// =============================================================================

// EmailLogFilter narrows a log listing. Zero fields are unconstrained.
type EmailLogFilter struct {
	Status   string
	TestType string
	Date     string // YYYY-MM-DD, compared against sent_at in the database time zone
}

// buildLogWhere renders the WHERE clause and its positional arguments.
func buildLogWhere(f EmailLogFilter) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)

	if f.Status != "" {
		args = append(args, f.Status)
		conds = append(conds, fmt.Sprintf("l.status = $%d", len(args)))
	}
	if f.TestType != "" {
		args = append(args, f.TestType)
		conds = append(conds, fmt.Sprintf("l.test_type = $%d", len(args)))
	}
	if f.Date != "" {
		args = append(args, f.Date)
		conds = append(conds, fmt.Sprintf("l.sent_at::date = $%d::date", len(args)))
	}

	if len(conds) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

// buildListLogsQuery returns the page query and the matching count query.
// Both share the filter arguments; the page query appends LIMIT and OFFSET.
func buildListLogsQuery(f EmailLogFilter, limit, offset int) (listSQL string, listArgs []interface{}, countSQL string, countArgs []interface{}) {
	where, args := buildLogWhere(f)

	countSQL = "SELECT COUNT(*) FROM email_logs l " + where

	listArgs = append(append([]interface{}{}, args...), limit, offset)
	listSQL = fmt.Sprintf(`
SELECT l.id, l.user_id, l.test_type, l.recipient_email, l.subject, l.template_id,
       l.status, l.message_id, l.error_message, l.sent_at,
       t.name AS template_name, u.username AS username
FROM email_logs l
LEFT JOIN email_templates t ON t.id = l.template_id
LEFT JOIN users u ON u.id = l.user_id
%s
ORDER BY l.sent_at DESC, l.id DESC
LIMIT $%d OFFSET $%d`, where, len(args)+1, len(args)+2)

	return listSQL, listArgs, countSQL, args
}

// ListEmailLogs returns one page of matching entries (newest first) and the
// total number of matching entries.
func (q *Queries) ListEmailLogs(ctx context.Context, f EmailLogFilter, limit, offset int) ([]EmailLogRow, int, error) {
	listSQL, listArgs, countSQL, countArgs := buildListLogsQuery(f, limit, offset)

	var total int
	if err := q.db.GetContext(ctx, &total, countSQL, countArgs...); err != nil {
		return nil, 0, fmt.Errorf("count email logs: %w", err)
	}

	rows := []EmailLogRow{}
	if err := q.db.SelectContext(ctx, &rows, listSQL, listArgs...); err != nil {
		return nil, 0, fmt.Errorf("list email logs: %w", err)
	}

	return rows, total, nil
}

// =============================================================================
// Dashboard
// =============================================================================

type DailyLogStats struct {
	Total  int `db:"total"`
	Sent   int `db:"sent"`
	Failed int `db:"failed"`
}

const getDailyLogStats = `
SELECT COUNT(*) AS total,
       COUNT(*) FILTER (WHERE status = 'sent') AS sent,
       COUNT(*) FILTER (WHERE status = 'failed') AS failed
FROM email_logs
WHERE sent_at::date = $1::date`

func (q *Queries) GetDailyLogStats(ctx context.Context, day time.Time) (DailyLogStats, error) {
	var s DailyLogStats
	err := q.db.GetContext(ctx, &s, getDailyLogStats, day.Format("2006-01-02"))
	return s, err
}

const listRecentEmailLogs = `
SELECT l.id, l.user_id, l.test_type, l.recipient_email, l.subject, l.template_id,
       l.status, l.message_id, l.error_message, l.sent_at,
       t.name AS template_name, u.username AS username
FROM email_logs l
LEFT JOIN email_templates t ON t.id = l.template_id
LEFT JOIN users u ON u.id = l.user_id
ORDER BY l.sent_at DESC, l.id DESC
LIMIT $1`

func (q *Queries) ListRecentEmailLogs(ctx context.Context, limit int) ([]EmailLogRow, error) {
	rows := []EmailLogRow{}
	if err := q.db.SelectContext(ctx, &rows, listRecentEmailLogs, limit); err != nil {
		return nil, err
	}
	return rows, nil
}
