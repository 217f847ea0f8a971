package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/DukeRupert/mailprobe/internal/auth"
	"github.com/DukeRupert/mailprobe/internal/csrf"
	"github.com/DukeRupert/mailprobe/internal/domain"
	"github.com/DukeRupert/mailprobe/internal/session"
	"github.com/google/uuid"
)

// =============================================================================
// Test Helpers
// =============================================================================

// newTestAuthHandler creates an AuthHandler with mock dependencies for testing.
func newTestAuthHandler(mock *mockUserService) (*AuthHandler, *mockRenderer) {
	renderer := &mockRenderer{}
	h := NewAuthHandler(mock, renderer, newTestLogger(), false)
	return h, renderer
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

// =============================================================================
// Login Form Tests
// =============================================================================

func TestShowLogin_RendersFormWithCSRFAndReturnTo(t *testing.T) {
	h, renderer := newTestAuthHandler(&mockUserService{})

	req := httptest.NewRequest("GET", "/login?return_to=%2Flogs%3Fstatus%3Dfailed", nil)
	req = req.WithContext(csrf.WithToken(req.Context(), "csrf-abc"))
	rec := httptest.NewRecorder()

	h.ShowLogin(rec, req)

	if renderer.name != "auth/login" {
		t.Fatalf("template = %q, want auth/login", renderer.name)
	}
	data := renderer.data.(LoginPageData)
	if data.CSRFToken != "csrf-abc" {
		t.Errorf("CSRFToken = %q, want csrf-abc", data.CSRFToken)
	}
	if data.ReturnTo != "/logs?status=failed" {
		t.Errorf("ReturnTo = %q, want /logs?status=failed", data.ReturnTo)
	}
	if data.Flash != nil {
		t.Errorf("Flash = %+v, want nil", data.Flash)
	}
}

func TestShowLogin_SignedOutFlash(t *testing.T) {
	h, renderer := newTestAuthHandler(&mockUserService{})

	req := httptest.NewRequest("GET", "/login?logout=1", nil)
	h.ShowLogin(httptest.NewRecorder(), req)

	data := renderer.data.(LoginPageData)
	if data.Flash == nil || data.Flash.Type != "success" {
		t.Errorf("Flash = %+v, want success flash", data.Flash)
	}
}

// =============================================================================
// Login Tests
// =============================================================================

func TestLogin_Success_SetsCookieAndRedirects(t *testing.T) {
	userID := uuid.New()
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var gotUsername, gotPassword string

	mock := &mockUserService{
		LoginFunc: func(ctx context.Context, username, password string) (*domain.LoginResult, error) {
			gotUsername, gotPassword = username, password
			return &domain.LoginResult{
				User:      &domain.User{ID: userID, Username: username},
				Token:     "raw-token",
				ExpiresAt: fixed.Add(24 * time.Hour),
			}, nil
		},
	}
	h, _ := newTestAuthHandler(mock)
	h.now = func() time.Time { return fixed }

	req := postForm("/login", url.Values{"username": {"  admin "}, "password": {"S3cretPass"}})
	rec := httptest.NewRecorder()

	h.Login(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusSeeOther)
	}
	if loc := rec.Header().Get("Location"); loc != "/dashboard" {
		t.Errorf("Location = %q, want /dashboard", loc)
	}
	if gotUsername != "admin" || gotPassword != "S3cretPass" {
		t.Errorf("Login called with (%q, %q)", gotUsername, gotPassword)
	}

	cookie := findCookie(rec, session.CookieName)
	if cookie == nil {
		t.Fatal("session cookie not set")
	}
	if cookie.Value != "raw-token" {
		t.Errorf("cookie value = %q, want raw-token", cookie.Value)
	}
	if cookie.MaxAge != 24*60*60 {
		t.Errorf("cookie MaxAge = %d, want %d", cookie.MaxAge, 24*60*60)
	}
	if !cookie.HttpOnly {
		t.Error("cookie must be HttpOnly")
	}
}

func TestLogin_ReturnTo(t *testing.T) {
	tests := []struct {
		name     string
		returnTo string
		want     string
	}{
		{"safe path", "/send/bulk", "/send/bulk"},
		{"path with query", "/logs?status=failed", "/logs?status=failed"},
		{"external URL ignored", "https://evil.com", "/dashboard"},
		{"protocol-relative ignored", "//evil.com", "/dashboard"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockUserService{
				LoginFunc: func(ctx context.Context, username, password string) (*domain.LoginResult, error) {
					return &domain.LoginResult{User: &domain.User{Username: username}, Token: "t", ExpiresAt: time.Now().Add(time.Hour)}, nil
				},
			}
			h, _ := newTestAuthHandler(mock)

			req := postForm("/login", url.Values{"username": {"admin"}, "password": {"pw"}, "return_to": {tt.returnTo}})
			rec := httptest.NewRecorder()
			h.Login(rec, req)

			if loc := rec.Header().Get("Location"); loc != tt.want {
				t.Errorf("Location = %q, want %q", loc, tt.want)
			}
		})
	}
}

func TestLogin_InvalidCredentials_Returns401(t *testing.T) {
	mock := &mockUserService{
		LoginFunc: func(ctx context.Context, username, password string) (*domain.LoginResult, error) {
			return nil, domain.Unauthorized("UserService.Login", "Invalid username or password")
		},
	}
	h, renderer := newTestAuthHandler(mock)

	req := postForm("/login", url.Values{"username": {"admin"}, "password": {"wrong"}})
	rec := httptest.NewRecorder()

	h.Login(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if findCookie(rec, session.CookieName) != nil {
		t.Error("no session cookie may be set on failure")
	}
	data := renderer.data.(LoginPageData)
	if data.Form["Username"] != "admin" {
		t.Errorf("form should keep the username, got %q", data.Form["Username"])
	}
	if data.Flash == nil || !strings.Contains(data.Flash.Message, "Invalid username or password") {
		t.Errorf("Flash = %+v, want invalid credentials message", data.Flash)
	}
}

func TestLogin_MissingFields_Returns400(t *testing.T) {
	called := false
	mock := &mockUserService{
		LoginFunc: func(ctx context.Context, username, password string) (*domain.LoginResult, error) {
			called = true
			return nil, errors.New("unexpected")
		},
	}
	h, renderer := newTestAuthHandler(mock)

	req := postForm("/login", url.Values{"username": {""}, "password": {""}})
	rec := httptest.NewRecorder()

	h.Login(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if called {
		t.Error("Login must not be called with missing fields")
	}
	data := renderer.data.(LoginPageData)
	if data.Errors["username"] == "" || data.Errors["password"] == "" {
		t.Errorf("Errors = %v, want username and password errors", data.Errors)
	}
}

func TestLogin_InternalError_Returns500(t *testing.T) {
	mock := &mockUserService{
		LoginFunc: func(ctx context.Context, username, password string) (*domain.LoginResult, error) {
			return nil, domain.Internal(errors.New("redis down"), "UserService.Login", "Failed to create session")
		},
	}
	h, renderer := newTestAuthHandler(mock)

	req := postForm("/login", url.Values{"username": {"admin"}, "password": {"pw"}})
	rec := httptest.NewRecorder()

	h.Login(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	data := renderer.data.(LoginPageData)
	if data.Flash == nil || strings.Contains(data.Flash.Message, "redis") {
		t.Errorf("Flash = %+v, want generic message", data.Flash)
	}
}

// =============================================================================
// Logout Tests
// =============================================================================

func TestLogout_POST_ClearsCookie(t *testing.T) {
	var revoked string

	mock := &mockUserService{
		LogoutFunc: func(ctx context.Context, token string) error {
			revoked = token
			return nil
		},
	}

	h, _ := newTestAuthHandler(mock)

	req := httptest.NewRequest("POST", "/logout", nil)
	req.AddCookie(&http.Cookie{
		Name:  session.CookieName,
		Value: "session-token-123",
	})
	rec := httptest.NewRecorder()

	h.Logout(rec, req)

	if revoked != "session-token-123" {
		t.Errorf("revoked token = %q, want session-token-123", revoked)
	}

	sessionCookie := findCookie(rec, session.CookieName)
	if sessionCookie == nil {
		t.Fatal("session cookie not found in response")
	}
	if sessionCookie.MaxAge != -1 {
		t.Errorf("cookie MaxAge = %d, want -1 (deleted)", sessionCookie.MaxAge)
	}
}

func TestLogout_PrefersContextToken(t *testing.T) {
	var revoked string
	h, _ := newTestAuthHandler(&mockUserService{
		LogoutFunc: func(ctx context.Context, token string) error {
			revoked = token
			return nil
		},
	})

	req := httptest.NewRequest("POST", "/logout", nil)
	req = req.WithContext(auth.SetSessionToken(req.Context(), "from-context"))
	h.Logout(httptest.NewRecorder(), req)

	if revoked != "from-context" {
		t.Errorf("revoked token = %q, want from-context", revoked)
	}
}

func TestLogout_POST_RedirectsToLogin(t *testing.T) {
	mock := &mockUserService{
		LogoutFunc: func(ctx context.Context, token string) error {
			return errors.New("store unavailable")
		},
	}

	h, _ := newTestAuthHandler(mock)

	req := httptest.NewRequest("POST", "/logout", nil)
	req.AddCookie(&http.Cookie{
		Name:  session.CookieName,
		Value: "session-token-123",
	})
	rec := httptest.NewRecorder()

	h.Logout(rec, req)

	// Revocation failure still signs the browser out
	if rec.Code != http.StatusSeeOther {
		t.Errorf("status code = %d, want %d", rec.Code, http.StatusSeeOther)
	}

	location := rec.Header().Get("Location")
	if location != "/login?logout=1" {
		t.Errorf("Location = %q, want /login?logout=1", location)
	}
	if c := findCookie(rec, session.CookieName); c == nil || c.MaxAge != -1 {
		t.Error("session cookie must be cleared")
	}
}

// =============================================================================
// isSafeRedirectURL Tests
// =============================================================================

func TestIsSafeRedirectURL_RelativeURLs_Safe(t *testing.T) {
	tests := []struct {
		name string
		url  string
		safe bool
	}{
		{"simple path", "/dashboard", true},
		{"path with query", "/logs?status=failed&page=2", true},
		{"nested path", "/templates/123/preview", true},
		{"root path", "/", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := isSafeRedirectURL(tt.url)
			if result != tt.safe {
				t.Errorf("isSafeRedirectURL(%q) = %v, want %v", tt.url, result, tt.safe)
			}
		})
	}
}

func TestIsSafeRedirectURL_ProtocolRelativeURLs_Unsafe(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"protocol-relative", "//evil.com"},
		{"protocol-relative with path", "//evil.com/phishing"},
		{"backslash protocol-relative", "/\\evil.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := isSafeRedirectURL(tt.url)
			if result {
				t.Errorf("isSafeRedirectURL(%q) = true, want false (unsafe)", tt.url)
			}
		})
	}
}

func TestIsSafeRedirectURL_AbsoluteURLs_Unsafe(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"http URL", "http://evil.com"},
		{"https URL", "https://evil.com"},
		{"ftp URL", "ftp://evil.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := isSafeRedirectURL(tt.url)
			if result {
				t.Errorf("isSafeRedirectURL(%q) = true, want false (unsafe)", tt.url)
			}
		})
	}
}

func TestIsSafeRedirectURL_JavaScriptURL_Unsafe(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"javascript scheme", "javascript:alert(1)"},
		{"data scheme", "data:text/html,<script>alert(1)</script>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := isSafeRedirectURL(tt.url)
			if result {
				t.Errorf("isSafeRedirectURL(%q) = true, want false (unsafe)", tt.url)
			}
		})
	}
}

func TestIsSafeRedirectURL_EmptyURL_Unsafe(t *testing.T) {
	result := isSafeRedirectURL("")
	if result {
		t.Error("isSafeRedirectURL(\"\") = true, want false")
	}
}

func TestIsSafeRedirectURL_NoLeadingSlash_Unsafe(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"relative without slash", "dashboard"},
		{"domain-like", "evil.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := isSafeRedirectURL(tt.url)
			if result {
				t.Errorf("isSafeRedirectURL(%q) = true, want false (unsafe)", tt.url)
			}
		})
	}
}
