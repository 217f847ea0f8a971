package domain

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// LogStatus is the persisted outcome of a send attempt.
type LogStatus string

const (
	LogStatusSent   LogStatus = "sent"
	LogStatusFailed LogStatus = "failed"
)

// IsValid returns true if the status is a recognized value.
func (s LogStatus) IsValid() bool {
	return s == LogStatusSent || s == LogStatusFailed
}

// LogDateLayout is the format of the date filter (matches <input type="date">).
const LogDateLayout = "2006-01-02"

// DefaultLogPageSize is the log viewer page size.
const DefaultLogPageSize = 20

// LogEntry records exactly one send attempt. Entries are never updated or
// deleted.
type LogEntry struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	TestType       TestType
	RecipientEmail string
	Subject        string
	TemplateID     *uuid.UUID
	Status         LogStatus
	MessageID      string
	ErrorMessage   string
	SentAt         time.Time

	// Display-only, filled by queries.
	TemplateName string
	Username     string
}

// LogFilter narrows a log query. Zero values are unconstrained; set fields
// combine with AND.
type LogFilter struct {
	Status   LogStatus
	TestType TestType
	Date     *time.Time // Matches entries whose sent_at falls on this calendar day
}

// IsEmpty reports whether no constraint is set.
func (f LogFilter) IsEmpty() bool {
	return f.Status == "" && f.TestType == "" && f.Date == nil
}

// ParseLogFilter validates raw query-string values.
func ParseLogFilter(status, testType, date string) (LogFilter, error) {
	const op = "log.filter"
	var f LogFilter
	ve := &ValidationError{Op: op}

	if status != "" {
		f.Status = LogStatus(status)
		if !f.Status.IsValid() {
			ve.Add("status", "Status must be sent or failed")
		}
	}
	if testType != "" {
		f.TestType = TestType(testType)
		if !f.TestType.IsValid() {
			ve.Add("type", "Type must be basic, template or bulk")
		}
	}
	if date != "" {
		d, err := time.Parse(LogDateLayout, date)
		if err != nil {
			ve.Add("date", "Date must be in YYYY-MM-DD format")
		} else {
			f.Date = &d
		}
	}

	if ve.HasErrors() {
		return LogFilter{}, ve
	}
	return f, nil
}

// LogPage is one window of a filtered, newest-first log query.
type LogPage struct {
	Entries  []LogEntry
	Total    int // Size of the filtered set, not of this page
	Page     int
	PageSize int
}

// TotalPages returns ceil(Total / PageSize).
func (p *LogPage) TotalPages() int {
	return TotalPages(p.Total, p.PageSize)
}

// HasPrevious reports whether a previous page exists.
func (p *LogPage) HasPrevious() bool {
	return p.Page > 1
}

// HasNext reports whether a later page exists.
func (p *LogPage) HasNext() bool {
	return p.Page < p.TotalPages()
}

// TotalPages returns ceil(total / pageSize), or 0 for an empty set.
func TotalPages(total, pageSize int) int {
	if pageSize <= 0 || total <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}

// PageOffset returns the row offset for a 1-based page, clamping page to 1.
// Pages whose offset would overflow get the largest representable offset,
// which is past the end of any real result set.
func PageOffset(page, pageSize int) int {
	if page < 1 || pageSize <= 0 {
		return 0
	}
	if page-1 > math.MaxInt/pageSize {
		return math.MaxInt / pageSize * pageSize
	}
	return (page - 1) * pageSize
}

// DailyStats summarizes the attempts made on one day.
type DailyStats struct {
	Total  int
	Sent   int
	Failed int
}
