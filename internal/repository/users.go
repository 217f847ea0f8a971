package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const createUser = `
INSERT INTO users (username, password_hash)
VALUES ($1, $2)
RETURNING id, username, password_hash, created_at`

func (q *Queries) CreateUser(ctx context.Context, username, passwordHash string) (User, error) {
	var u User
	err := q.db.GetContext(ctx, &u, createUser, username, passwordHash)
	return u, err
}

const getUserByID = `
SELECT id, username, password_hash, created_at
FROM users
WHERE id = $1`

func (q *Queries) GetUserByID(ctx context.Context, id uuid.UUID) (User, error) {
	var u User
	err := q.db.GetContext(ctx, &u, getUserByID, id)
	return u, err
}

const getUserByUsername = `
SELECT id, username, password_hash, created_at
FROM users
WHERE username = $1`

func (q *Queries) GetUserByUsername(ctx context.Context, username string) (User, error) {
	var u User
	err := q.db.GetContext(ctx, &u, getUserByUsername, username)
	return u, err
}

const updateUserPassword = `
UPDATE users SET password_hash = $2 WHERE id = $1`

func (q *Queries) UpdateUserPassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	_, err := q.db.ExecContext(ctx, updateUserPassword, id, passwordHash)
	return err
}

// =============================================================================
// Sessions
// =============================================================================

const createSession = `
INSERT INTO sessions (user_id, token_hash, expires_at)
VALUES ($1, $2, $3)
RETURNING id, user_id, token_hash, expires_at, created_at`

func (q *Queries) CreateSession(ctx context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) (Session, error) {
	var s Session
	err := q.db.GetContext(ctx, &s, createSession, userID, tokenHash, expiresAt)
	return s, err
}

const getSessionByTokenHash = `
SELECT s.id, s.user_id, s.token_hash, s.expires_at, s.created_at, u.username
FROM sessions s
JOIN users u ON u.id = s.user_id
WHERE s.token_hash = $1 AND s.expires_at > NOW()`

// GetSessionByTokenHash returns only unexpired sessions.
func (q *Queries) GetSessionByTokenHash(ctx context.Context, tokenHash string) (SessionWithUser, error) {
	var s SessionWithUser
	err := q.db.GetContext(ctx, &s, getSessionByTokenHash, tokenHash)
	return s, err
}

const deleteSession = `DELETE FROM sessions WHERE token_hash = $1`

func (q *Queries) DeleteSession(ctx context.Context, tokenHash string) error {
	_, err := q.db.ExecContext(ctx, deleteSession, tokenHash)
	return err
}

const deleteUserSessions = `DELETE FROM sessions WHERE user_id = $1`

func (q *Queries) DeleteUserSessions(ctx context.Context, userID uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, deleteUserSessions, userID)
	return err
}

const deleteExpiredSessions = `DELETE FROM sessions WHERE expires_at <= NOW()`

func (q *Queries) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteExpiredSessions)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
