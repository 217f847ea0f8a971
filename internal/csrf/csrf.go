// Package csrf provides CSRF protection using the double-submit cookie pattern.
//
// A random token is set in a cookie and echoed by every form as a hidden
// field (or, for fetch requests, in the X-CSRF-Token header). Unsafe requests
// are rejected unless both copies match. Cross-site pages can make the
// browser send the cookie but cannot read it, so they cannot echo it.
package csrf

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
)

// =============================================================================
// Configuration Constants
// =============================================================================

const (
	// CookieName is the name of the CSRF token cookie.
	CookieName = "mailprobe_csrf"

	// FormFieldName is the name of the CSRF token form field.
	FormFieldName = "csrf_token"

	// HeaderName carries the token for JSON endpoints called from scripts.
	HeaderName = "X-CSRF-Token"

	// TokenLength is the number of random bytes for the token (32 bytes = 256 bits).
	TokenLength = 32

	// CookieMaxAge is the lifetime of the CSRF cookie (12 hours), long enough
	// for an operator to leave a form open during a test session.
	CookieMaxAge = 12 * 3600
)

type contextKey struct{}

// =============================================================================
// Token Generation and Validation
// =============================================================================

// GenerateToken returns 32 random bytes, base64 URL-encoded (44 characters).
func GenerateToken() (string, error) {
	b := make([]byte, TokenLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// ValidateToken compares the cookie token with the submitted token in
// constant time. Empty tokens never match.
func ValidateToken(cookieToken, submitted string) bool {
	if cookieToken == "" || submitted == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(cookieToken), []byte(submitted)) == 1
}

// ValidateRequest checks the submitted token against the cookie. The header
// takes precedence over the form field.
func ValidateRequest(r *http.Request) bool {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return false
	}

	submitted := r.Header.Get(HeaderName)
	if submitted == "" {
		submitted = r.FormValue(FormFieldName)
	}

	return ValidateToken(cookie.Value, submitted)
}

// =============================================================================
// Cookie and Context
// =============================================================================

func setCookie(w http.ResponseWriter, token string, isSecure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   CookieMaxAge,
		HttpOnly: false, // Read by the settings page script for the test-connection call
		Secure:   isSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

// Token returns the request's CSRF token placed by Middleware, or "".
func Token(ctx context.Context) string {
	token, _ := ctx.Value(contextKey{}).(string)
	return token
}

// WithToken stores token in ctx. Exposed for handler tests.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, contextKey{}, token)
}

// =============================================================================
// Middleware
// =============================================================================

// Middleware ensures every request carries a token (issuing the cookie when
// missing) and rejects POST, PUT, PATCH and DELETE requests whose token does
// not match. Rejections are answered by onFail, or a plain 403 when nil.
func Middleware(isSecure bool, onFail http.Handler) func(http.Handler) http.Handler {
	if onFail == nil {
		onFail = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "Invalid or missing CSRF token", http.StatusForbidden)
		})
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
				if !ValidateRequest(r) {
					onFail.ServeHTTP(w, r)
					return
				}
			}

			token := ""
			if cookie, err := r.Cookie(CookieName); err == nil && cookie.Value != "" {
				token = cookie.Value
			} else {
				var err error
				token, err = GenerateToken()
				if err != nil {
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
					return
				}
				setCookie(w, token, isSecure)
			}

			next.ServeHTTP(w, r.WithContext(WithToken(r.Context(), token)))
		})
	}
}
