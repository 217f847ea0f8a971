package handler

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/DukeRupert/mailprobe/internal/auth"
	"github.com/DukeRupert/mailprobe/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sendFixture struct {
	handler   *SendHandler
	renderer  *mockRenderer
	mail      *mockMailService
	mailer    *mockMailer
	templates *mockTemplateService
}

func newSendFixture() *sendFixture {
	mailer := &mockMailer{fail: map[string]string{}}
	f := &sendFixture{
		renderer:  &mockRenderer{},
		mailer:    mailer,
		mail:      &mockMailService{mailer: mailer},
		templates: &mockTemplateService{templates: []domain.EmailTemplate{otpTemplate()}},
	}
	f.handler = NewSendHandler(f.mail, f.templates, f.renderer, newTestLogger())
	f.handler.now = func() time.Time { return time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC) }
	return f
}

func withOperator(req *http.Request) *http.Request {
	user := &domain.User{ID: uuid.New(), Username: "operator"}
	return req.WithContext(auth.SetUser(req.Context(), user))
}

// =============================================================================
// Basic test
// =============================================================================

func TestSendBasic_Success(t *testing.T) {
	f := newSendFixture()

	req := withOperator(postForm("/send/basic", url.Values{
		"to":      {"ops@example.com"},
		"subject": {"Relay check"},
		"body":    {"<p>hello</p>"},
		"is_html": {"on"},
	}))
	rec := httptest.NewRecorder()

	f.handler.SendBasic(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "send/basic", f.renderer.name)
	require.Len(t, f.mailer.sent, 1)
	assert.Equal(t, domain.SendRequest{To: "ops@example.com", Subject: "Relay check", Body: "<p>hello</p>", IsHTML: true}, f.mailer.sent[0])

	require.Len(t, f.mail.actors, 1)
	assert.Equal(t, "operator", f.mail.actors[0].Username)

	data := f.renderer.data.(SendPageData)
	require.NotNil(t, data.Result)
	assert.True(t, data.Result.Success)
	assert.Equal(t, "success", data.Flash.Type)
	assert.Contains(t, data.Flash.Message, "<msg-ops@example.com>")
}

func TestSendBasic_DeliveryFailureIsReported(t *testing.T) {
	f := newSendFixture()
	f.mailer.fail["ops@example.com"] = "554 Message rejected: Email address is not verified"

	req := withOperator(postForm("/send/basic", url.Values{
		"to": {"ops@example.com"}, "subject": {"s"}, "body": {"b"},
	}))
	rec := httptest.NewRecorder()

	f.handler.SendBasic(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	data := f.renderer.data.(SendPageData)
	assert.False(t, data.Result.Success)
	assert.Equal(t, "error", data.Flash.Type)
	assert.Contains(t, data.Flash.Message, "not verified")
}

func TestSendBasic_InvalidInput(t *testing.T) {
	f := newSendFixture()

	req := withOperator(postForm("/send/basic", url.Values{
		"to": {"not-an-email"}, "subject": {""}, "body": {"b"},
	}))
	rec := httptest.NewRecorder()

	f.handler.SendBasic(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.mail.actors, "no mailer may be created for invalid input")
	data := f.renderer.data.(SendPageData)
	assert.Contains(t, data.Errors, "to")
	assert.Contains(t, data.Errors, "subject")
	assert.Equal(t, "not-an-email", data.Form["To"])
}

func TestSendBasic_NoConfiguration(t *testing.T) {
	f := newSendFixture()
	f.mail.err = domain.Configuration("MailService.NewMailer", "No active SMTP configuration")

	req := withOperator(postForm("/send/basic", url.Values{
		"to": {"ops@example.com"}, "subject": {"s"}, "body": {"b"},
	}))
	rec := httptest.NewRecorder()

	f.handler.SendBasic(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Empty(t, f.mailer.sent)
	data := f.renderer.data.(SendPageData)
	assert.Contains(t, data.Flash.Message, "No active SMTP configuration")
}

// =============================================================================
// Bulk test
// =============================================================================

func TestSendBulk_SkipsInvalidAndReportsSummary(t *testing.T) {
	f := newSendFixture()
	f.mailer.fail["b@x.com"] = "mailbox unavailable"

	req := withOperator(postForm("/send/bulk", url.Values{
		"emails":  {"a@x.com, not-an-email; b@x.com\nc@x.com\n\n"},
		"subject": {"Bulk"},
		"body":    {"body"},
	}))
	rec := httptest.NewRecorder()

	f.handler.SendBulk(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, f.mailer.bulk, 1)
	assert.Equal(t, []string{"a@x.com", "b@x.com", "c@x.com"}, f.mailer.bulk[0].Recipients)

	data := f.renderer.data.(BulkPageData)
	assert.Equal(t, []string{"not-an-email"}, data.Skipped)
	require.NotNil(t, data.Report)
	assert.Equal(t, 2, data.Report.Succeeded())
	assert.Equal(t, "warning", data.Flash.Type)
	assert.Contains(t, data.Flash.Message, "2 of 3 succeeded")
}

func TestSendBulk_AllSucceeded(t *testing.T) {
	f := newSendFixture()

	req := withOperator(postForm("/send/bulk", url.Values{
		"emails": {"a@x.com;b@x.com"}, "subject": {"Bulk"}, "body": {"body"}, "is_html": {"1"},
	}))
	rec := httptest.NewRecorder()

	f.handler.SendBulk(rec, req)

	require.Len(t, f.mailer.bulk, 1)
	assert.True(t, f.mailer.bulk[0].IsHTML)
	data := f.renderer.data.(BulkPageData)
	assert.Equal(t, "success", data.Flash.Type)
	assert.Contains(t, data.Flash.Message, "2 of 2 succeeded")
}

func TestSendBulk_NoValidRecipients(t *testing.T) {
	f := newSendFixture()

	req := withOperator(postForm("/send/bulk", url.Values{
		"emails": {"nope, also nope"}, "subject": {"Bulk"}, "body": {"body"},
	}))
	rec := httptest.NewRecorder()

	f.handler.SendBulk(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.mailer.bulk)
	data := f.renderer.data.(BulkPageData)
	assert.Equal(t, []string{"nope", "also nope"}, data.Skipped)
	assert.Contains(t, data.Errors, "emails")
}

func TestSendBulk_MissingFields(t *testing.T) {
	f := newSendFixture()

	req := withOperator(postForm("/send/bulk", url.Values{"emails": {""}, "subject": {""}, "body": {""}}))
	rec := httptest.NewRecorder()

	f.handler.SendBulk(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	data := f.renderer.data.(BulkPageData)
	for _, field := range []string{"emails", "subject", "body"} {
		assert.Contains(t, data.Errors, field)
	}
}

// =============================================================================
// Template test
// =============================================================================

func TestShowTemplate_ListsVariablesWithSamples(t *testing.T) {
	f := newSendFixture()
	tmpl := otpTemplate()

	req := withOperator(httptest.NewRequest("GET", "/send/template?template_id="+tmpl.ID.String(), nil))
	rec := httptest.NewRecorder()

	f.handler.ShowTemplate(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	data := f.renderer.data.(TemplatePageData)
	require.NotNil(t, data.Selected)
	assert.Len(t, data.Templates, 1)

	names := make([]string, 0, len(data.Variables))
	for _, v := range data.Variables {
		names = append(names, v.Name)
	}
	assert.Equal(t, []string{"OTP_CODE", "USER_NAME"}, names)
}

func TestShowTemplate_UnknownID(t *testing.T) {
	f := newSendFixture()

	req := withOperator(httptest.NewRequest("GET", "/send/template?template_id="+uuid.NewString(), nil))
	rec := httptest.NewRecorder()

	f.handler.ShowTemplate(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	data := f.renderer.data.(TemplatePageData)
	assert.Nil(t, data.Selected)
	assert.Contains(t, data.Errors, "template_id")
}

func TestSendTemplate_PassesUppercasedVariables(t *testing.T) {
	f := newSendFixture()
	tmpl := otpTemplate()

	req := withOperator(postForm("/send/template", url.Values{
		"template_id":   {tmpl.ID.String()},
		"to":            {"ops@example.com"},
		"var_otp_code":  {"123456"},
		"var_USER_NAME": {"Dana"},
		"unrelated":     {"x"},
	}))
	rec := httptest.NewRecorder()

	f.handler.SendTemplate(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, f.mailer.templated, 1)
	assert.Equal(t, map[string]string{"OTP_CODE": "123456", "USER_NAME": "Dana"}, f.mailer.templated[0])

	data := f.renderer.data.(TemplatePageData)
	assert.True(t, data.Result.Success)
	assert.Contains(t, data.Flash.Message, "Template email sent successfully!")
}

func TestSendTemplate_Validation(t *testing.T) {
	tests := []struct {
		name       string
		form       url.Values
		wantStatus int
		wantField  string
	}{
		{"missing template", url.Values{"to": {"ops@example.com"}}, http.StatusBadRequest, "template_id"},
		{"malformed template id", url.Values{"template_id": {"abc"}, "to": {"ops@example.com"}}, http.StatusBadRequest, "template_id"},
		{"unknown template", url.Values{"template_id": {uuid.NewString()}, "to": {"ops@example.com"}}, http.StatusNotFound, "template_id"},
		{"missing recipient", url.Values{"template_id": {otpTemplate().ID.String()}}, http.StatusBadRequest, "to"},
		{"invalid recipient", url.Values{"template_id": {otpTemplate().ID.String()}, "to": {"bad"}}, http.StatusBadRequest, "to"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSendFixture()
			rec := httptest.NewRecorder()

			f.handler.SendTemplate(rec, withOperator(postForm("/send/template", tt.form)))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Empty(t, f.mailer.templated)
			data := f.renderer.data.(TemplatePageData)
			assert.Contains(t, data.Errors, tt.wantField)
		})
	}
}

// =============================================================================
// Preview
// =============================================================================

func TestPreviewTemplate_RendersSampleValues(t *testing.T) {
	f := newSendFixture()
	tmpl := otpTemplate()

	req := withOperator(httptest.NewRequest("GET", "/templates/"+tmpl.ID.String()+"/preview", nil))
	req.SetPathValue("id", tmpl.ID.String())
	rec := httptest.NewRecorder()

	f.handler.PreviewTemplate(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "templates/preview", f.renderer.name)
	data := f.renderer.data.(PreviewPageData)
	assert.NotContains(t, data.Rendered.Subject, "{OTP_CODE}")
	assert.True(t, strings.HasPrefix(data.Rendered.Subject, "Your code is "))
}

func TestPreviewTemplate_NotFound(t *testing.T) {
	f := newSendFixture()

	for _, id := range []string{"not-a-uuid", uuid.NewString()} {
		req := httptest.NewRequest("GET", "/templates/"+id+"/preview", nil)
		req.SetPathValue("id", id)
		rec := httptest.NewRecorder()

		f.handler.PreviewTemplate(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code, "id %q", id)
		assert.Zero(t, f.renderer.calls)
	}
}
