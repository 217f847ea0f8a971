// Package auth provides authentication context helpers.
//
// This package is designed to be imported by both middleware and handler
// packages without causing import cycles.
package auth

import (
	"context"
	"net/http"

	"github.com/DukeRupert/mailprobe/internal/domain"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	userContextKey  contextKey = "user"
	tokenContextKey contextKey = "session_token"
)

// GetUser retrieves the authenticated user from the context.
//
// Returns nil if no user is authenticated.
//
// Usage:
//
//	user := auth.GetUser(r.Context())
//	if user == nil {
//	    // Handle unauthenticated request
//	}
func GetUser(ctx context.Context) *domain.User {
	user, ok := ctx.Value(userContextKey).(*domain.User)
	if !ok {
		return nil
	}
	return user
}

// GetUserFromRequest retrieves the authenticated user from the request context.
func GetUserFromRequest(r *http.Request) *domain.User {
	return GetUser(r.Context())
}

// SetUser stores a user in the context.
func SetUser(ctx context.Context, user *domain.User) context.Context {
	if h, ok := ctx.Value(holderContextKey).(*UserHolder); ok && user != nil {
		h.Username = user.Username
	}
	return context.WithValue(ctx, userContextKey, user)
}

// ActorFromRequest returns who is acting for audit purposes. Unauthenticated
// requests yield the zero Actor.
func ActorFromRequest(r *http.Request) domain.Actor {
	return domain.ActorFromUser(GetUser(r.Context()))
}

// SetSessionToken stores the raw session token so logout can revoke it.
func SetSessionToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenContextKey, token)
}

// GetSessionToken returns the raw session token, or "".
func GetSessionToken(ctx context.Context) string {
	token, _ := ctx.Value(tokenContextKey).(string)
	return token
}

// UserHolder lets an outer middleware learn who a request was served for
// after inner middleware resolved the session.
type UserHolder struct {
	Username string
}

const holderContextKey contextKey = "user_holder"

// WithUserHolder attaches h so SetUser can fill it in.
func WithUserHolder(ctx context.Context, h *UserHolder) context.Context {
	return context.WithValue(ctx, holderContextKey, h)
}
