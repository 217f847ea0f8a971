package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/DukeRupert/mailprobe/internal/auth"
	"github.com/DukeRupert/mailprobe/internal/domain"
	"github.com/DukeRupert/mailprobe/internal/service"
	"github.com/google/uuid"
)

// templateVarPrefix marks form fields that carry template variables,
// e.g. var_OTP_CODE.
const templateVarPrefix = "var_"

// SendHandler serves the three test forms: basic, bulk and template.
type SendHandler struct {
	mail      service.MailService
	templates service.TemplateService
	renderer  TemplateRenderer
	logger    *slog.Logger
	now       func() time.Time
}

// NewSendHandler creates a new SendHandler.
func NewSendHandler(mail service.MailService, templates service.TemplateService, renderer TemplateRenderer, logger *slog.Logger) *SendHandler {
	return &SendHandler{
		mail:      mail,
		templates: templates,
		renderer:  renderer,
		logger:    logger,
		now:       time.Now,
	}
}

// =============================================================================
// Template Data Types
// =============================================================================

// SendPageData is passed to send/basic.
type SendPageData struct {
	PageData
	Form   map[string]string
	IsHTML bool
	Errors map[string]string
	Result *domain.SendResult
}

// BulkPageData is passed to send/bulk.
type BulkPageData struct {
	PageData
	Form    map[string]string
	IsHTML  bool
	Errors  map[string]string
	Skipped []string // addresses dropped for failing syntax validation
	Report  *domain.BulkReport
}

// TemplateVariable is one input on the template test form.
type TemplateVariable struct {
	Name  string
	Value string
}

// TemplatePageData is passed to send/template.
type TemplatePageData struct {
	PageData
	Templates []domain.EmailTemplate
	Selected  *domain.EmailTemplate
	Variables []TemplateVariable
	To        string
	Errors    map[string]string
	Result    *domain.SendResult
}

// PreviewPageData is passed to templates/preview.
type PreviewPageData struct {
	PageData
	Template  *domain.EmailTemplate
	Variables []TemplateVariable
	Rendered  domain.RenderedTemplate
}

// =============================================================================
// Basic test
// =============================================================================

// ShowBasic renders the single-recipient form.
func (h *SendHandler) ShowBasic(w http.ResponseWriter, r *http.Request) {
	h.renderer.RenderHTTP(w, "send/basic", SendPageData{
		PageData: newPageData(r),
		Form:     map[string]string{},
		Errors:   map[string]string{},
	})
}

// SendBasic validates the form and sends one message.
//
// Responses:
// - 400 with field errors on invalid input (nothing sent or logged)
// - 503 when no relay configuration is active
// - 200 with the send result otherwise, including delivery failures
func (h *SendHandler) SendBasic(w http.ResponseWriter, r *http.Request) {
	data := SendPageData{
		PageData: newPageData(r),
		Form:     map[string]string{},
		Errors:   map[string]string{},
	}

	if err := parseForm(w, r); err != nil {
		data.Flash = errorFlash("Invalid form submission. Please try again.")
		h.renderer.RenderHTTPStatus(w, http.StatusBadRequest, "send/basic", data)
		return
	}

	req := domain.SendRequest{
		To:      strings.TrimSpace(r.FormValue("to")),
		Subject: strings.TrimSpace(r.FormValue("subject")),
		Body:    r.FormValue("body"),
		IsHTML:  r.FormValue("is_html") != "",
	}
	data.Form = map[string]string{"To": req.To, "Subject": req.Subject, "Body": req.Body}
	data.IsHTML = req.IsHTML

	if err := service.ValidateSendRequest(req); err != nil {
		data.Errors = fieldErrors(err)
		data.Flash = errorFlash("Please fill in all required fields.")
		h.renderer.RenderHTTPStatus(w, http.StatusBadRequest, "send/basic", data)
		return
	}

	mailer, err := h.mail.NewMailer(r.Context(), auth.ActorFromRequest(r))
	if err != nil {
		data.Flash = h.mailerErrorFlash(err)
		h.renderer.RenderHTTPStatus(w, ErrorCodeToHTTPStatus(domain.ErrorCode(err)), "send/basic", data)
		return
	}

	result := mailer.Send(r.Context(), req)
	data.Result = &result
	data.Flash = resultFlash(result, "Email sent successfully!")
	h.renderer.RenderHTTP(w, "send/basic", data)
}

// =============================================================================
// Bulk test
// =============================================================================

// ShowBulk renders the bulk form.
func (h *SendHandler) ShowBulk(w http.ResponseWriter, r *http.Request) {
	h.renderer.RenderHTTP(w, "send/bulk", BulkPageData{
		PageData: newPageData(r),
		Form:     map[string]string{},
		Errors:   map[string]string{},
	})
}

// SendBulk sends the message to every valid address in the pasted list.
// Addresses failing syntax validation are skipped and listed on the page.
func (h *SendHandler) SendBulk(w http.ResponseWriter, r *http.Request) {
	data := BulkPageData{
		PageData: newPageData(r),
		Form:     map[string]string{},
		Errors:   map[string]string{},
	}

	if err := parseForm(w, r); err != nil {
		data.Flash = errorFlash("Invalid form submission. Please try again.")
		h.renderer.RenderHTTPStatus(w, http.StatusBadRequest, "send/bulk", data)
		return
	}

	emails := r.FormValue("emails")
	subject := strings.TrimSpace(r.FormValue("subject"))
	body := r.FormValue("body")
	data.Form = map[string]string{"Emails": emails, "Subject": subject, "Body": body}
	data.IsHTML = r.FormValue("is_html") != ""

	if err := service.ValidateBulkContent(subject, body); err != nil {
		data.Errors = fieldErrors(err)
	}
	if strings.TrimSpace(emails) == "" {
		data.Errors["emails"] = "Enter at least one email address"
	}
	if len(data.Errors) > 0 {
		data.Flash = errorFlash("Please fill in all required fields.")
		h.renderer.RenderHTTPStatus(w, http.StatusBadRequest, "send/bulk", data)
		return
	}

	valid, invalid := service.ParseRecipients(emails)
	data.Skipped = invalid
	if len(valid) == 0 {
		data.Errors["emails"] = "No valid email addresses found"
		data.Flash = errorFlash("No valid email addresses found.")
		h.renderer.RenderHTTPStatus(w, http.StatusBadRequest, "send/bulk", data)
		return
	}

	mailer, err := h.mail.NewMailer(r.Context(), auth.ActorFromRequest(r))
	if err != nil {
		data.Flash = h.mailerErrorFlash(err)
		h.renderer.RenderHTTPStatus(w, ErrorCodeToHTTPStatus(domain.ErrorCode(err)), "send/bulk", data)
		return
	}

	report := mailer.SendBulk(r.Context(), domain.BulkRequest{
		Recipients: valid,
		Subject:    subject,
		Body:       body,
		IsHTML:     data.IsHTML,
	})
	data.Report = &report

	flashType := "success"
	if !report.AllSucceeded() {
		flashType = "warning"
	}
	data.Flash = &Flash{Type: flashType, Message: "Bulk email completed: " + report.Summary() + "."}
	h.renderer.RenderHTTP(w, "send/bulk", data)
}

// =============================================================================
// Template test
// =============================================================================

// ShowTemplate renders the template form. With ?template_id= it also lists
// the selected template's variables, pre-filled with sample values.
func (h *SendHandler) ShowTemplate(w http.ResponseWriter, r *http.Request) {
	data, status := h.templatePageData(r, r.URL.Query().Get("template_id"))
	if data.Selected != nil {
		data.Variables = h.sampleVariables(data.Selected)
	}
	h.renderer.RenderHTTPStatus(w, status, "send/template", data)
}

// SendTemplate renders the chosen template with the submitted variables and
// sends it as HTML.
func (h *SendHandler) SendTemplate(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(w, r); err != nil {
		data, _ := h.templatePageData(r, "")
		data.Flash = errorFlash("Invalid form submission. Please try again.")
		h.renderer.RenderHTTPStatus(w, http.StatusBadRequest, "send/template", data)
		return
	}

	data, status := h.templatePageData(r, r.FormValue("template_id"))
	data.To = strings.TrimSpace(r.FormValue("to"))
	vars := templateVarsFromForm(r)
	if data.Selected != nil {
		data.Variables = submittedVariables(data.Selected, vars)
	}

	if status != http.StatusOK {
		data.Flash = errorFlash("Template not found.")
		h.renderer.RenderHTTPStatus(w, status, "send/template", data)
		return
	}

	if data.Selected == nil {
		data.Errors["template_id"] = "Select a template"
	}
	if data.To == "" {
		data.Errors["to"] = "Recipient is required"
	} else if !service.IsValidEmail(data.To) {
		data.Errors["to"] = "Recipient is not a valid email address"
	}
	if len(data.Errors) > 0 {
		data.Flash = errorFlash("Please select a template and enter recipient email.")
		h.renderer.RenderHTTPStatus(w, http.StatusBadRequest, "send/template", data)
		return
	}

	mailer, err := h.mail.NewMailer(r.Context(), auth.ActorFromRequest(r))
	if err != nil {
		data.Flash = h.mailerErrorFlash(err)
		h.renderer.RenderHTTPStatus(w, ErrorCodeToHTTPStatus(domain.ErrorCode(err)), "send/template", data)
		return
	}

	result, err := mailer.SendTemplate(r.Context(), data.To, data.Selected.ID, vars)
	if err != nil {
		data.Flash = h.mailerErrorFlash(err)
		h.renderer.RenderHTTPStatus(w, ErrorCodeToHTTPStatus(domain.ErrorCode(err)), "send/template", data)
		return
	}

	data.Result = &result
	data.Flash = resultFlash(result, "Template email sent successfully!")
	h.renderer.RenderHTTP(w, "send/template", data)
}

// PreviewTemplate renders a stored template with sample values. The HTML
// body is shown in a sandboxed iframe.
func (h *SendHandler) PreviewTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		NotFoundResponse(w, r, h.logger)
		return
	}

	vars := make(map[string]string)
	tmpl, err := h.templates.Get(r.Context(), id)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	variables := h.sampleVariables(tmpl)
	for _, v := range variables {
		vars[v.Name] = v.Value
	}

	_, rendered, err := h.templates.Render(r.Context(), id, vars)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	h.renderer.RenderHTTP(w, "templates/preview", PreviewPageData{
		PageData:  newPageData(r),
		Template:  tmpl,
		Variables: variables,
		Rendered:  rendered,
	})
}

// =============================================================================
// Helpers
// =============================================================================

// templatePageData loads the template list and, when rawID is set, the
// selected template. The status is 404 for an unknown id and 400 for a
// malformed one.
func (h *SendHandler) templatePageData(r *http.Request, rawID string) (TemplatePageData, int) {
	data := TemplatePageData{
		PageData: newPageData(r),
		Errors:   map[string]string{},
	}

	templates, err := h.templates.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list templates", "error", err)
		data.Flash = errorFlash(domain.ErrorMessage(err))
		return data, http.StatusInternalServerError
	}
	data.Templates = templates

	rawID = strings.TrimSpace(rawID)
	if rawID == "" {
		return data, http.StatusOK
	}

	id, err := uuid.Parse(rawID)
	if err != nil {
		data.Errors["template_id"] = "Select a template"
		return data, http.StatusBadRequest
	}

	tmpl, err := h.templates.Get(r.Context(), id)
	if err != nil {
		if domain.ErrorCode(err) == domain.ENOTFOUND {
			data.Errors["template_id"] = "Template not found"
			return data, http.StatusNotFound
		}
		data.Flash = errorFlash(domain.ErrorMessage(err))
		return data, ErrorCodeToHTTPStatus(domain.ErrorCode(err))
	}
	data.Selected = tmpl
	return data, http.StatusOK
}

func (h *SendHandler) sampleVariables(tmpl *domain.EmailTemplate) []TemplateVariable {
	now := h.now()
	names := tmpl.Variables()
	vars := make([]TemplateVariable, 0, len(names))
	for _, name := range names {
		vars = append(vars, TemplateVariable{Name: name, Value: domain.SampleValue(name, now)})
	}
	return vars
}

// submittedVariables lists the template's variables with the values the
// operator posted, so a re-rendered form keeps them.
func submittedVariables(tmpl *domain.EmailTemplate, vars map[string]string) []TemplateVariable {
	names := tmpl.Variables()
	out := make([]TemplateVariable, 0, len(names))
	for _, name := range names {
		out = append(out, TemplateVariable{Name: name, Value: vars[name]})
	}
	return out
}

// templateVarsFromForm collects var_* fields. Names are upper-cased to
// match {PLACEHOLDER} tokens.
func templateVarsFromForm(r *http.Request) map[string]string {
	vars := make(map[string]string)
	keys := make([]string, 0, len(r.PostForm))
	for key := range r.PostForm {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if !strings.HasPrefix(key, templateVarPrefix) {
			continue
		}
		name := strings.ToUpper(strings.TrimPrefix(key, templateVarPrefix))
		if name == "" {
			continue
		}
		vars[name] = r.PostForm.Get(key)
	}
	return vars
}

func (h *SendHandler) mailerErrorFlash(err error) *Flash {
	switch domain.ErrorCode(err) {
	case domain.ECONFIG, domain.ENOTFOUND, domain.EINVALID:
		return errorFlash(domain.ErrorMessage(err))
	default:
		h.logger.Error("send failed", "error", err)
		return errorFlash("An unexpected error occurred. Please try again later.")
	}
}

func resultFlash(result domain.SendResult, success string) *Flash {
	if result.Success {
		return successFlash(fmt.Sprintf("%s Message ID: %s", success, result.MessageID))
	}
	return errorFlash("Failed to send email: " + result.Error)
}

// RegisterRoutes registers the send and preview routes behind app.
func (h *SendHandler) RegisterRoutes(mux *http.ServeMux, app func(http.Handler) http.Handler) {
	mux.Handle("GET /send/basic", app(http.HandlerFunc(h.ShowBasic)))
	mux.Handle("POST /send/basic", app(http.HandlerFunc(h.SendBasic)))
	mux.Handle("GET /send/bulk", app(http.HandlerFunc(h.ShowBulk)))
	mux.Handle("POST /send/bulk", app(http.HandlerFunc(h.SendBulk)))
	mux.Handle("GET /send/template", app(http.HandlerFunc(h.ShowTemplate)))
	mux.Handle("POST /send/template", app(http.HandlerFunc(h.SendTemplate)))
	mux.Handle("GET /templates/{id}/preview", app(http.HandlerFunc(h.PreviewTemplate)))
}
