package handler

import (
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/DukeRupert/mailprobe/internal/domain"
	"github.com/DukeRupert/mailprobe/internal/service"
)

// ActivityHandler serves the dashboard and the log viewer.
//
// Routes handled:
// - GET /dashboard -> Dashboard
// - GET /logs      -> Logs
type ActivityHandler struct {
	activity service.ActivityService
	settings service.SettingsService
	renderer TemplateRenderer
	logger   *slog.Logger
	now      func() time.Time
}

// NewActivityHandler creates a new ActivityHandler.
func NewActivityHandler(activity service.ActivityService, settings service.SettingsService, renderer TemplateRenderer, logger *slog.Logger) *ActivityHandler {
	return &ActivityHandler{
		activity: activity,
		settings: settings,
		renderer: renderer,
		logger:   logger,
		now:      time.Now,
	}
}

// DashboardPageData is passed to the dashboard template.
type DashboardPageData struct {
	PageData
	Stats      domain.DailyStats
	Recent     []domain.LogEntry
	Configured bool
	FromEmail  string
}

// LogsPageData is passed to the logs template.
type LogsPageData struct {
	PageData
	Status string
	Type   string
	Date   string
	Errors map[string]string
	Page   *domain.LogPage

	// Filtered is set when at least one constraint narrowed the query.
	Filtered bool
}

// PageURL links to page n of the current filter.
func (d LogsPageData) PageURL(n int) string {
	q := url.Values{}
	if d.Status != "" {
		q.Set("status", d.Status)
	}
	if d.Type != "" {
		q.Set("type", d.Type)
	}
	if d.Date != "" {
		q.Set("date", d.Date)
	}
	if n > 1 {
		q.Set("page", strconv.Itoa(n))
	}
	if len(q) == 0 {
		return "/logs"
	}
	return "/logs?" + q.Encode()
}

// Dashboard shows today's counts, the newest entries and whether a relay
// configuration is active.
func (h *ActivityHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	data := DashboardPageData{PageData: newPageData(r)}

	stats, err := h.activity.Stats(ctx, h.now())
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	data.Stats = stats

	recent, err := h.activity.Recent(ctx, service.DashboardRecentLimit)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	data.Recent = recent

	cfg, err := h.settings.Active(ctx)
	switch {
	case err == nil:
		data.Configured = true
		data.FromEmail = cfg.FromEmail
	case domain.ErrorCode(err) == domain.ECONFIG:
		data.Flash = &Flash{Type: "info", Message: "No SMTP configuration is active. Configure one under Settings before sending."}
	default:
		ErrorResponse(w, r, h.logger, err)
		return
	}

	h.renderer.RenderHTTP(w, "dashboard", data)
}

// Logs lists activity entries newest first, filtered by status, type and
// day, one page at a time. Invalid filters re-render the form with a 400.
func (h *ActivityHandler) Logs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	data := LogsPageData{
		PageData: newPageData(r),
		Status:   q.Get("status"),
		Type:     q.Get("type"),
		Date:     q.Get("date"),
		Errors:   map[string]string{},
	}

	filter, err := domain.ParseLogFilter(data.Status, data.Type, data.Date)
	if err != nil {
		data.Errors = fieldErrors(err)
		data.Flash = errorFlash(domain.ErrorMessage(err))
		data.Page = &domain.LogPage{Page: 1}
		data.Filtered = true
		h.renderer.RenderHTTPStatus(w, http.StatusBadRequest, "logs", data)
		return
	}

	data.Filtered = !filter.IsEmpty()

	page, _ := strconv.Atoi(q.Get("page"))
	result, err := h.activity.Query(r.Context(), filter, page)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	data.Page = result

	h.renderer.RenderHTTP(w, "logs", data)
}

// RegisterRoutes registers the dashboard and log routes behind app.
func (h *ActivityHandler) RegisterRoutes(mux *http.ServeMux, app func(http.Handler) http.Handler) {
	mux.Handle("GET /dashboard", app(http.HandlerFunc(h.Dashboard)))
	mux.Handle("GET /logs", app(http.HandlerFunc(h.Logs)))
}
