package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/DukeRupert/mailprobe/internal/domain"
	"github.com/DukeRupert/mailprobe/internal/repository"
)

// DashboardRecentLimit is how many entries the dashboard shows.
const DashboardRecentLimit = 10

// ActivityService reads the append-only activity log.
type ActivityService interface {
	// Query returns one newest-first page of entries matching filter, with
	// the total size of the filtered set. Pages below 1 are treated as 1.
	Query(ctx context.Context, filter domain.LogFilter, page int) (*domain.LogPage, error)

	// Stats counts attempts on the calendar day of day.
	Stats(ctx context.Context, day time.Time) (domain.DailyStats, error)

	// Recent returns the newest entries.
	Recent(ctx context.Context, limit int) ([]domain.LogEntry, error)
}

// ActivityStore is satisfied by *repository.Queries.
type ActivityStore interface {
	ListEmailLogs(ctx context.Context, f repository.EmailLogFilter, limit, offset int) ([]repository.EmailLogRow, int, error)
	GetDailyLogStats(ctx context.Context, day time.Time) (repository.DailyLogStats, error)
	ListRecentEmailLogs(ctx context.Context, limit int) ([]repository.EmailLogRow, error)
}

type activityService struct {
	store    ActivityStore
	pageSize int
	logger   *slog.Logger
}

// NewActivityService creates an ActivityService. pageSize <= 0 uses
// domain.DefaultLogPageSize.
func NewActivityService(store ActivityStore, pageSize int, logger *slog.Logger) ActivityService {
	if pageSize <= 0 {
		pageSize = domain.DefaultLogPageSize
	}
	return &activityService{store: store, pageSize: pageSize, logger: logger}
}

func (s *activityService) Query(ctx context.Context, filter domain.LogFilter, page int) (*domain.LogPage, error) {
	const op = "ActivityService.Query"

	if page < 1 {
		page = 1
	}

	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, domain.NewValidationError(op, "status", "Status must be sent or failed")
	}
	if filter.TestType != "" && !filter.TestType.IsValid() {
		return nil, domain.NewValidationError(op, "type", "Type must be basic, template or bulk")
	}

	repoFilter := repository.EmailLogFilter{
		Status:   string(filter.Status),
		TestType: string(filter.TestType),
	}
	if filter.Date != nil {
		repoFilter.Date = filter.Date.Format(domain.LogDateLayout)
	}

	rows, total, err := s.store.ListEmailLogs(ctx, repoFilter, s.pageSize, domain.PageOffset(page, s.pageSize))
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to load activity log")
	}

	entries := make([]domain.LogEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, repoLogToDomain(r))
	}

	return &domain.LogPage{
		Entries:  entries,
		Total:    total,
		Page:     page,
		PageSize: s.pageSize,
	}, nil
}

func (s *activityService) Stats(ctx context.Context, day time.Time) (domain.DailyStats, error) {
	const op = "ActivityService.Stats"

	st, err := s.store.GetDailyLogStats(ctx, day)
	if err != nil {
		return domain.DailyStats{}, domain.Internal(err, op, "Failed to load statistics")
	}
	return domain.DailyStats{Total: st.Total, Sent: st.Sent, Failed: st.Failed}, nil
}

func (s *activityService) Recent(ctx context.Context, limit int) ([]domain.LogEntry, error) {
	const op = "ActivityService.Recent"

	if limit <= 0 {
		limit = DashboardRecentLimit
	}

	rows, err := s.store.ListRecentEmailLogs(ctx, limit)
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to load recent activity")
	}

	entries := make([]domain.LogEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, repoLogToDomain(r))
	}
	return entries, nil
}

func repoLogToDomain(r repository.EmailLogRow) domain.LogEntry {
	e := domain.LogEntry{
		ID:             r.ID,
		TestType:       domain.TestType(r.TestType),
		RecipientEmail: r.RecipientEmail,
		Subject:        r.Subject,
		Status:         domain.LogStatus(r.Status),
		MessageID:      domain.NullStringValue(r.MessageID),
		ErrorMessage:   domain.NullStringValue(r.ErrorMessage),
		SentAt:         r.SentAt,
		TemplateName:   domain.NullStringValue(r.TemplateName),
		Username:       domain.NullStringValue(r.Username),
	}
	if r.UserID.Valid {
		e.UserID = r.UserID.UUID
	}
	if r.TemplateID.Valid {
		id := r.TemplateID.UUID
		e.TemplateID = &id
	}
	return e
}
