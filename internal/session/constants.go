// Package session provides the session cookie shared by the handler and
// middleware packages, and the server-side session stores.
package session

import (
	"net/http"
	"time"
)

const (
	// CookieName is the name of the cookie that stores the session token.
	CookieName = "mailprobe_session"

	// CookiePath ensures the cookie is sent with all requests.
	CookiePath = "/"
)

// CookieMaxAge converts a session lifetime into the cookie Max-Age value.
func CookieMaxAge(d time.Duration) int {
	return int(d / time.Second)
}

// SetCookie sets the session cookie on the response.
//
// Cookie Settings:
// - HttpOnly: true - Prevents JavaScript access
// - Secure: configurable - Set true in production (HTTPS only)
// - SameSite: Lax - Sent on top-level navigation only
// - MaxAge: matches the server-side session lifetime
func SetCookie(w http.ResponseWriter, token string, isSecure bool, lifetime time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     CookiePath,
		MaxAge:   CookieMaxAge(lifetime),
		HttpOnly: true,
		Secure:   isSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie removes the session cookie from the client.
func ClearCookie(w http.ResponseWriter, isSecure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     CookiePath,
		MaxAge:   -1, // Delete immediately
		HttpOnly: true,
		Secure:   isSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
