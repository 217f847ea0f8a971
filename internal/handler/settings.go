package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/DukeRupert/mailprobe/internal/domain"
	"github.com/DukeRupert/mailprobe/internal/service"
)

// SettingsHandler manages the active relay configuration.
//
// Routes handled:
// - GET  /settings                 -> Show
// - POST /settings                 -> Update
// - POST /settings/test-connection -> TestConnection (JSON)
type SettingsHandler struct {
	settings service.SettingsService
	renderer TemplateRenderer
	logger   *slog.Logger
}

// NewSettingsHandler creates a new SettingsHandler.
func NewSettingsHandler(settings service.SettingsService, renderer TemplateRenderer, logger *slog.Logger) *SettingsHandler {
	return &SettingsHandler{
		settings: settings,
		renderer: renderer,
		logger:   logger,
	}
}

// SettingsPageData is passed to the settings template. The stored password
// is never included; HasPassword drives a "saved" indicator instead.
type SettingsPageData struct {
	PageData
	Form        map[string]string
	Errors      map[string]string
	HasPassword bool
	UpdatedAt   string
}

// TestConnectionResponse is the JSON body of POST /settings/test-connection.
type TestConnectionResponse struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Show renders the settings form pre-filled with the active configuration.
func (h *SettingsHandler) Show(w http.ResponseWriter, r *http.Request) {
	data := SettingsPageData{
		PageData: newPageData(r),
		Form:     map[string]string{"Port": strconv.Itoa(domain.DefaultSMTPPort)},
		Errors:   map[string]string{},
	}

	cfg, err := h.settings.Active(r.Context())
	switch {
	case err == nil:
		data.Form = configForm(cfg)
		data.HasPassword = cfg.HasPassword()
		if !cfg.UpdatedAt.IsZero() {
			data.UpdatedAt = cfg.UpdatedAt.Format("Jan 2, 2006 3:04 PM")
		}
	case domain.ErrorCode(err) == domain.ECONFIG:
		data.Flash = &Flash{Type: "info", Message: "No SMTP configuration saved yet."}
	default:
		ErrorResponse(w, r, h.logger, err)
		return
	}

	if r.URL.Query().Get("saved") == "1" {
		data.Flash = successFlash("Settings updated successfully!")
	}

	h.renderer.RenderHTTP(w, "settings", data)
}

// Update validates and saves the configuration. A blank password keeps the
// stored one.
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	data := SettingsPageData{
		PageData: newPageData(r),
		Errors:   map[string]string{},
	}

	if err := parseForm(w, r); err != nil {
		data.Form = map[string]string{}
		data.Flash = errorFlash("Invalid form submission. Please try again.")
		h.renderer.RenderHTTPStatus(w, http.StatusBadRequest, "settings", data)
		return
	}

	params, errs := settingsFromForm(r)
	data.Form = paramsForm(params, r.FormValue("smtp_port"))
	if current, err := h.settings.Active(r.Context()); err == nil {
		data.HasPassword = current.HasPassword()
	}

	if len(errs) > 0 {
		data.Errors = errs
		data.Flash = errorFlash("Please correct the errors below.")
		h.renderer.RenderHTTPStatus(w, http.StatusBadRequest, "settings", data)
		return
	}

	if _, err := h.settings.Update(r.Context(), params); err != nil {
		status := ErrorCodeToHTTPStatus(domain.ErrorCode(err))
		if status >= 500 {
			h.logger.Error("failed to update settings", "error", err)
		}
		data.Errors = fieldErrors(err)
		data.Flash = errorFlash(domain.ErrorMessage(err))
		h.renderer.RenderHTTPStatus(w, status, "settings", data)
		return
	}

	http.Redirect(w, r, "/settings?saved=1", http.StatusSeeOther)
}

// TestConnection dials the relay with the submitted, unsaved credentials.
// Validation and connection failures are reported with success=false and a
// 200 status so the page script can show the message.
func (h *SettingsHandler) TestConnection(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(w, r); err != nil {
		writeJSON(w, http.StatusBadRequest, TestConnectionResponse{Message: "Invalid form submission"})
		return
	}

	params, errs := settingsFromForm(r)
	if len(errs) > 0 {
		writeJSON(w, http.StatusOK, TestConnectionResponse{
			Message: "Please fill in all required fields",
			Fields:  errs,
		})
		return
	}

	err := h.settings.TestConnection(r.Context(), params)
	switch domain.ErrorCode(err) {
	case "":
		writeJSON(w, http.StatusOK, TestConnectionResponse{
			Success: true,
			Message: "SMTP connection successful! Credentials are valid.",
		})
	case domain.EINVALID:
		writeJSON(w, http.StatusOK, TestConnectionResponse{
			Message: domain.ErrorMessage(err),
			Fields:  fieldErrors(err),
		})
	case domain.EDELIVERY:
		writeJSON(w, http.StatusOK, TestConnectionResponse{
			Message: "Connection failed: " + domain.ErrorMessage(err),
		})
	default:
		ErrorResponse(w, r, h.logger, err)
	}
}

// settingsFromForm reads the smtp_* fields. Only the port needs parsing
// here; everything else is validated by the service.
func settingsFromForm(r *http.Request) (domain.SMTPConfigParams, map[string]string) {
	errs := make(map[string]string)
	params := domain.SMTPConfigParams{
		Host:      strings.TrimSpace(r.FormValue("smtp_host")),
		Username:  strings.TrimSpace(r.FormValue("smtp_username")),
		Password:  r.FormValue("smtp_password"),
		FromEmail: strings.TrimSpace(r.FormValue("from_email")),
		FromName:  strings.TrimSpace(r.FormValue("from_name")),
	}

	if raw := strings.TrimSpace(r.FormValue("smtp_port")); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			errs["port"] = "Port must be a number"
		} else {
			params.Port = port
		}
	}
	return params, errs
}

func configForm(cfg *domain.SMTPConfig) map[string]string {
	return map[string]string{
		"Host":      cfg.Host,
		"Port":      strconv.Itoa(cfg.Port),
		"Username":  cfg.Username,
		"FromEmail": cfg.FromEmail,
		"FromName":  cfg.FromName,
	}
}

func paramsForm(p domain.SMTPConfigParams, rawPort string) map[string]string {
	return map[string]string{
		"Host":      p.Host,
		"Port":      strings.TrimSpace(rawPort),
		"Username":  p.Username,
		"FromEmail": p.FromEmail,
		"FromName":  p.FromName,
	}
}

// RegisterRoutes registers the settings routes. probe wraps the connection
// test with its rate limit.
func (h *SettingsHandler) RegisterRoutes(mux *http.ServeMux, app, probe func(http.Handler) http.Handler) {
	mux.Handle("GET /settings", app(http.HandlerFunc(h.Show)))
	mux.Handle("POST /settings", app(http.HandlerFunc(h.Update)))
	mux.Handle("POST /settings/test-connection", app(probe(http.HandlerFunc(h.TestConnection))))
}
