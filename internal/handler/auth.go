package handler

// This file implements the login and logout handlers of the session gate.

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/DukeRupert/mailprobe/internal/auth"
	"github.com/DukeRupert/mailprobe/internal/csrf"
	"github.com/DukeRupert/mailprobe/internal/domain"
	"github.com/DukeRupert/mailprobe/internal/service"
	"github.com/DukeRupert/mailprobe/internal/session"
)

// =============================================================================
// Handler Configuration
// =============================================================================

// AuthHandler handles authentication-related HTTP requests.
//
// Routes handled:
// - GET  /login    -> ShowLogin
// - POST /login    -> Login
// - POST /logout   -> Logout
type AuthHandler struct {
	userService service.UserService
	renderer    TemplateRenderer
	logger      *slog.Logger
	isSecure    bool
	now         func() time.Time
}

// NewAuthHandler creates a new AuthHandler with the required dependencies.
//
// Example usage in main.go:
//
//	authHandler := handler.NewAuthHandler(userService, renderer, logger, cfg.Env != "development")
func NewAuthHandler(
	userService service.UserService,
	renderer TemplateRenderer,
	logger *slog.Logger,
	isSecure bool,
) *AuthHandler {
	return &AuthHandler{
		userService: userService,
		renderer:    renderer,
		logger:      logger,
		isSecure:    isSecure,
		now:         time.Now,
	}
}

// LoginPageData is passed to the auth/login template.
type LoginPageData struct {
	CurrentPath string
	CSRFToken   string
	Form        map[string]string // Form field values for re-populating on error
	Errors      map[string]string // Field-level validation errors
	Flash       *Flash
	ReturnTo    string // URL to redirect to after successful login
}

// =============================================================================
// GET /login - Show Login Form
// =============================================================================

// ShowLogin renders the login form.
//
// Query Parameters:
// - return_to (optional): URL to redirect to after successful login
// - logout=1: shows a signed-out message
func (h *AuthHandler) ShowLogin(w http.ResponseWriter, r *http.Request) {
	var flash *Flash
	if r.URL.Query().Get("logout") == "1" {
		flash = successFlash("You have been signed out.")
	}

	h.renderer.RenderHTTP(w, "auth/login", LoginPageData{
		CurrentPath: r.URL.Path,
		CSRFToken:   csrf.Token(r.Context()),
		Form:        map[string]string{},
		Errors:      map[string]string{},
		Flash:       flash,
		ReturnTo:    r.URL.Query().Get("return_to"),
	})
}

// =============================================================================
// POST /login - Process Login
// =============================================================================

// Login verifies the credentials and starts a session.
//
// Responses:
// - 303 to return_to (when safe) or /dashboard on success
// - 400 with the form when a field is missing
// - 401 with the form on bad credentials (counted by the login throttle)
// - 500 with the form when the session store fails
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(w, r); err != nil {
		h.renderLoginError(w, r, http.StatusBadRequest, nil, nil, errorFlash("Invalid form submission. Please try again."))
		return
	}

	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")

	formValues := map[string]string{"Username": username}

	errs := make(map[string]string)
	if username == "" {
		errs["username"] = "Username is required"
	}
	if password == "" {
		errs["password"] = "Password is required"
	}
	if len(errs) > 0 {
		h.renderLoginError(w, r, http.StatusBadRequest, formValues, errs, nil)
		return
	}

	result, err := h.userService.Login(r.Context(), username, password)
	if err != nil {
		switch domain.ErrorCode(err) {
		case domain.EUNAUTHORIZED:
			h.renderLoginError(w, r, http.StatusUnauthorized, formValues, nil, errorFlash("Invalid username or password"))
		default:
			h.logger.Error("login failed", "error", err, "username", username)
			h.renderLoginError(w, r, http.StatusInternalServerError, formValues, nil, errorFlash("Login failed. Please try again later."))
		}
		return
	}

	session.SetCookie(w, result.Token, h.isSecure, result.ExpiresAt.Sub(h.now()))

	redirectURL := "/dashboard"
	if returnTo := r.FormValue("return_to"); returnTo != "" && isSafeRedirectURL(returnTo) {
		redirectURL = returnTo
	}
	http.Redirect(w, r, redirectURL, http.StatusSeeOther)
}

// renderLoginError re-renders the login form with errors.
func (h *AuthHandler) renderLoginError(
	w http.ResponseWriter,
	r *http.Request,
	status int,
	formValues map[string]string,
	errs map[string]string,
	flash *Flash,
) {
	if formValues == nil {
		formValues = make(map[string]string)
	}
	if errs == nil {
		errs = make(map[string]string)
	}

	h.renderer.RenderHTTPStatus(w, status, "auth/login", LoginPageData{
		CurrentPath: "/login",
		CSRFToken:   csrf.Token(r.Context()),
		Form:        formValues,
		Errors:      errs,
		Flash:       flash,
		ReturnTo:    r.FormValue("return_to"),
	})
}

// =============================================================================
// POST /logout - Process Logout
// =============================================================================

// Logout revokes the session and clears the cookie. The cookie is cleared
// even when revocation fails.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := auth.GetSessionToken(r.Context())
	if token == "" {
		if cookie, err := r.Cookie(session.CookieName); err == nil {
			token = cookie.Value
		}
	}

	if token != "" {
		if err := h.userService.Logout(r.Context(), token); err != nil {
			h.logger.Warn("failed to revoke session", "error", err)
		}
	}

	session.ClearCookie(w, h.isSecure)
	http.Redirect(w, r, "/login?logout=1", http.StatusSeeOther)
}

// =============================================================================
// Helper Functions
// =============================================================================

// isSafeRedirectURL validates that a redirect URL is safe (same-origin).
//
// Rejects absolute URLs, protocol-relative URLs (//evil.com) and anything
// carrying a scheme or host.
func isSafeRedirectURL(rawURL string) bool {
	// Must start with /
	if !strings.HasPrefix(rawURL, "/") {
		return false
	}

	// Must not start with // or /\ (protocol-relative URL)
	if strings.HasPrefix(rawURL, "//") || strings.HasPrefix(rawURL, "/\\") {
		return false
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	return parsed.Scheme == "" && parsed.Host == ""
}

// =============================================================================
// Route Registration
// =============================================================================

// RegisterRoutes registers the auth routes. guest wraps the login form,
// login additionally wraps the credential check (throttling), and app wraps
// logout.
func (h *AuthHandler) RegisterRoutes(mux *http.ServeMux, guest, login, app func(http.Handler) http.Handler) {
	mux.Handle("GET /login", guest(http.HandlerFunc(h.ShowLogin)))
	mux.Handle("POST /login", login(http.HandlerFunc(h.Login)))
	mux.Handle("POST /logout", app(http.HandlerFunc(h.Logout)))
}
