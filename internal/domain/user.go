// Package domain contains core business types and interfaces.
//
// This file defines the operator account and the server-side session used by
// the login gate. Accounts are created from the CLI; the web surface only
// authenticates them.
package domain

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// User is an operator allowed to use the tester.
type User struct {
	ID           uuid.UUID
	Username     string
	PasswordHash string // Never expose this in responses
	CreatedAt    time.Time
}

// Session represents an authenticated session.
//
// The raw token is handed to the client once (at login); stores keep only a
// SHA-256 hash of it.
type Session struct {
	TokenHash string
	UserID    uuid.UUID
	Username  string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsExpired returns true if the session has expired.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// LoginResult contains the result of a successful login.
type LoginResult struct {
	User      *User
	Token     string // Raw session token (not hashed) - only returned once
	ExpiresAt time.Time
}

// Actor identifies who triggered a send. It is captured from the session at
// request start and written to every log entry produced by the request.
type Actor struct {
	UserID   uuid.UUID
	Username string
}

// ActorFromUser builds the Actor for an authenticated user.
func ActorFromUser(u *User) Actor {
	if u == nil {
		return Actor{}
	}
	return Actor{UserID: u.ID, Username: u.Username}
}

// =============================================================================
// Conversion helpers for nullable columns
// =============================================================================

// NullStringValue safely extracts a string from sql.NullString.
func NullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// ToNullString converts a string to sql.NullString.
func ToNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}

// ToNullUUID converts a uuid pointer to uuid.NullUUID.
func ToNullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{Valid: false}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}
