package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
)

// BasicAuthMiddleware protects an endpoint such as /metrics with HTTP basic
// authentication.
type BasicAuthMiddleware struct {
	realm    string
	username string
	password string
	logger   *slog.Logger
}

// NewBasicAuthMiddleware creates a basic auth gate for realm. When both
// username and password are empty the gate is open.
func NewBasicAuthMiddleware(realm, username, password string, logger *slog.Logger) *BasicAuthMiddleware {
	return &BasicAuthMiddleware{
		realm:    realm,
		username: username,
		password: password,
		logger:   logger,
	}
}

// Enabled reports whether credentials are required.
func (m *BasicAuthMiddleware) Enabled() bool {
	return m.username != "" || m.password != ""
}

// Handler returns middleware that requires basic authentication.
func (m *BasicAuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		user, pass, ok := r.BasicAuth()
		if !ok {
			m.unauthorized(w)
			return
		}

		// Compare both fields so timing does not reveal which one differs
		userMatch := subtle.ConstantTimeCompare([]byte(user), []byte(m.username)) == 1
		passMatch := subtle.ConstantTimeCompare([]byte(pass), []byte(m.password)) == 1

		if !userMatch || !passMatch {
			m.logger.Warn("basic auth rejected", "realm", m.realm, "ip", getClientIP(r))
			m.unauthorized(w)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *BasicAuthMiddleware) unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="`+m.realm+`"`)
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}
