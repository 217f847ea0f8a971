package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/DukeRupert/mailprobe/internal/domain"
	"github.com/DukeRupert/mailprobe/internal/service"
	"github.com/google/uuid"
)

// newTestLogger creates a logger that discards output for testing.
func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// postForm builds a form-encoded POST request.
func postForm(target string, values url.Values) *http.Request {
	req, _ := http.NewRequest(http.MethodPost, target, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// =============================================================================
// Renderer
// =============================================================================

// mockRenderer records the last render instead of executing templates.
type mockRenderer struct {
	name   string
	status int
	data   interface{}
	calls  int
}

func (m *mockRenderer) RenderHTTP(w http.ResponseWriter, name string, data interface{}) {
	m.RenderHTTPStatus(w, http.StatusOK, name, data)
}

func (m *mockRenderer) RenderHTTPStatus(w http.ResponseWriter, status int, name string, data interface{}) {
	m.name = name
	m.status = status
	m.data = data
	m.calls++
	w.WriteHeader(status)
}

// =============================================================================
// UserService
// =============================================================================

// mockUserService implements the service.UserService interface for testing.
type mockUserService struct {
	LoginFunc                 func(ctx context.Context, username, password string) (*domain.LoginResult, error)
	LogoutFunc                func(ctx context.Context, token string) error
	GetBySessionTokenFunc     func(ctx context.Context, token string) (*domain.User, error)
	GetByUsernameFunc         func(ctx context.Context, username string) (*domain.User, error)
	CreateUserFunc            func(ctx context.Context, username, password string) (*domain.User, error)
	ChangePasswordFunc        func(ctx context.Context, username, newPassword string) error
	DeleteExpiredSessionsFunc func(ctx context.Context) (int64, error)
}

func (m *mockUserService) Login(ctx context.Context, username, password string) (*domain.LoginResult, error) {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, username, password)
	}
	return nil, errors.New("LoginFunc not implemented")
}

func (m *mockUserService) Logout(ctx context.Context, token string) error {
	if m.LogoutFunc != nil {
		return m.LogoutFunc(ctx, token)
	}
	return nil
}

func (m *mockUserService) GetBySessionToken(ctx context.Context, token string) (*domain.User, error) {
	if m.GetBySessionTokenFunc != nil {
		return m.GetBySessionTokenFunc(ctx, token)
	}
	return nil, errors.New("GetBySessionTokenFunc not implemented")
}

func (m *mockUserService) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	if m.GetByUsernameFunc != nil {
		return m.GetByUsernameFunc(ctx, username)
	}
	return nil, errors.New("GetByUsernameFunc not implemented")
}

func (m *mockUserService) CreateUser(ctx context.Context, username, password string) (*domain.User, error) {
	if m.CreateUserFunc != nil {
		return m.CreateUserFunc(ctx, username, password)
	}
	return nil, errors.New("CreateUserFunc not implemented")
}

func (m *mockUserService) ChangePassword(ctx context.Context, username, newPassword string) error {
	if m.ChangePasswordFunc != nil {
		return m.ChangePasswordFunc(ctx, username, newPassword)
	}
	return errors.New("ChangePasswordFunc not implemented")
}

func (m *mockUserService) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	if m.DeleteExpiredSessionsFunc != nil {
		return m.DeleteExpiredSessionsFunc(ctx)
	}
	return 0, errors.New("DeleteExpiredSessionsFunc not implemented")
}

var _ service.UserService = (*mockUserService)(nil)

// =============================================================================
// SettingsService
// =============================================================================

type mockSettingsService struct {
	ActiveFunc         func(ctx context.Context) (*domain.SMTPConfig, error)
	UpdateFunc         func(ctx context.Context, params domain.SMTPConfigParams) (*domain.SMTPConfig, error)
	BootstrapFunc      func(ctx context.Context, params domain.SMTPConfigParams) (bool, error)
	TestConnectionFunc func(ctx context.Context, params domain.SMTPConfigParams) error
}

func (m *mockSettingsService) Active(ctx context.Context) (*domain.SMTPConfig, error) {
	if m.ActiveFunc != nil {
		return m.ActiveFunc(ctx)
	}
	return nil, domain.Configuration("mock", "No active SMTP configuration")
}

func (m *mockSettingsService) Update(ctx context.Context, params domain.SMTPConfigParams) (*domain.SMTPConfig, error) {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, params)
	}
	return nil, errors.New("UpdateFunc not implemented")
}

func (m *mockSettingsService) Bootstrap(ctx context.Context, params domain.SMTPConfigParams) (bool, error) {
	if m.BootstrapFunc != nil {
		return m.BootstrapFunc(ctx, params)
	}
	return false, nil
}

func (m *mockSettingsService) TestConnection(ctx context.Context, params domain.SMTPConfigParams) error {
	if m.TestConnectionFunc != nil {
		return m.TestConnectionFunc(ctx, params)
	}
	return errors.New("TestConnectionFunc not implemented")
}

var _ service.SettingsService = (*mockSettingsService)(nil)

// =============================================================================
// TemplateService
// =============================================================================

type mockTemplateService struct {
	templates []domain.EmailTemplate
}

func (m *mockTemplateService) List(ctx context.Context) ([]domain.EmailTemplate, error) {
	return m.templates, nil
}

func (m *mockTemplateService) Get(ctx context.Context, id uuid.UUID) (*domain.EmailTemplate, error) {
	for i := range m.templates {
		if m.templates[i].ID == id {
			t := m.templates[i]
			return &t, nil
		}
	}
	return nil, domain.NotFound("mock", "template", id.String())
}

func (m *mockTemplateService) Variables(ctx context.Context, id uuid.UUID) ([]string, error) {
	t, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return t.Variables(), nil
}

func (m *mockTemplateService) Render(ctx context.Context, id uuid.UUID, vars map[string]string) (*domain.EmailTemplate, domain.RenderedTemplate, error) {
	t, err := m.Get(ctx, id)
	if err != nil {
		return nil, domain.RenderedTemplate{}, err
	}
	return t, t.Render(vars), nil
}

var _ service.TemplateService = (*mockTemplateService)(nil)

func otpTemplate() domain.EmailTemplate {
	return domain.EmailTemplate{
		ID:       uuid.MustParse("7d7b0a52-3c1e-4a57-9f0e-2f0f6b7b1a01"),
		Name:     "OTP Verification",
		Type:     domain.TemplateTypeOTP,
		Subject:  "Your code is {OTP_CODE}",
		BodyHTML: "<p>Hello {USER_NAME}, your code is <b>{OTP_CODE}</b>.</p>",
		BodyText: "Hello {USER_NAME}, your code is {OTP_CODE}.",
	}
}

// =============================================================================
// MailService
// =============================================================================

type mockMailService struct {
	err    error
	mailer *mockMailer
	actors []domain.Actor
}

func (m *mockMailService) NewMailer(ctx context.Context, actor domain.Actor) (service.Mailer, error) {
	m.actors = append(m.actors, actor)
	if m.err != nil {
		return nil, m.err
	}
	return m.mailer, nil
}

// mockMailer succeeds unless the recipient is listed in fail.
type mockMailer struct {
	fail        map[string]string
	templateErr error

	sent      []domain.SendRequest
	templated []map[string]string
	bulk      []domain.BulkRequest
}

func (m *mockMailer) Config() domain.SMTPConfig {
	return domain.SMTPConfig{Host: "email-smtp.us-east-1.amazonaws.com", Port: 587, FromEmail: "noreply@example.com"}
}

func (m *mockMailer) result(to string) domain.SendResult {
	if msg, ok := m.fail[to]; ok {
		return domain.SendResult{Error: msg}
	}
	return domain.Sent("<msg-" + to + ">")
}

func (m *mockMailer) Send(ctx context.Context, req domain.SendRequest) domain.SendResult {
	m.sent = append(m.sent, req)
	return m.result(req.To)
}

func (m *mockMailer) SendTemplate(ctx context.Context, to string, templateID uuid.UUID, vars map[string]string) (domain.SendResult, error) {
	if m.templateErr != nil {
		return domain.SendResult{}, m.templateErr
	}
	m.templated = append(m.templated, vars)
	return m.result(to), nil
}

func (m *mockMailer) SendBulk(ctx context.Context, req domain.BulkRequest) domain.BulkReport {
	m.bulk = append(m.bulk, req)
	var report domain.BulkReport
	for _, to := range req.Recipients {
		report.Results = append(report.Results, domain.RecipientResult{Email: to, Result: m.result(to)})
	}
	return report
}

// =============================================================================
// ActivityService
// =============================================================================

type mockActivityService struct {
	page       *domain.LogPage
	stats      domain.DailyStats
	recent     []domain.LogEntry
	err        error
	lastFilter domain.LogFilter
	lastPage   int
	lastDay    time.Time
}

func (m *mockActivityService) Query(ctx context.Context, filter domain.LogFilter, page int) (*domain.LogPage, error) {
	m.lastFilter = filter
	m.lastPage = page
	if m.err != nil {
		return nil, m.err
	}
	return m.page, nil
}

func (m *mockActivityService) Stats(ctx context.Context, day time.Time) (domain.DailyStats, error) {
	m.lastDay = day
	return m.stats, m.err
}

func (m *mockActivityService) Recent(ctx context.Context, limit int) ([]domain.LogEntry, error) {
	return m.recent, m.err
}

var _ service.ActivityService = (*mockActivityService)(nil)
