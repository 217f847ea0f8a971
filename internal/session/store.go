package session

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/DukeRupert/mailprobe/internal/domain"
	"github.com/DukeRupert/mailprobe/internal/repository"
	"github.com/google/uuid"
)

// ErrNotFound is returned when a token hash has no live session.
var ErrNotFound = errors.New("session not found")

// Store persists sessions keyed by the SHA-256 hash of the raw token.
//
// Get must never return an expired session.
type Store interface {
	Create(ctx context.Context, s domain.Session) error
	Get(ctx context.Context, tokenHash string) (*domain.Session, error)
	Delete(ctx context.Context, tokenHash string) error
	DeleteUser(ctx context.Context, userID uuid.UUID) error
	DeleteExpired(ctx context.Context) (int64, error)
}

// =============================================================================
// PostgreSQL
// =============================================================================

// PostgresStore keeps sessions in the sessions table.
type PostgresStore struct {
	queries *repository.Queries
}

// NewPostgresStore creates a Store over the sessions table.
func NewPostgresStore(queries *repository.Queries) *PostgresStore {
	return &PostgresStore{queries: queries}
}

func (s *PostgresStore) Create(ctx context.Context, sess domain.Session) error {
	_, err := s.queries.CreateSession(ctx, sess.UserID, sess.TokenHash, sess.ExpiresAt)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, tokenHash string) (*domain.Session, error) {
	row, err := s.queries.GetSessionByTokenHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &domain.Session{
		TokenHash: row.TokenHash,
		UserID:    row.UserID,
		Username:  row.Username,
		ExpiresAt: row.ExpiresAt,
		CreatedAt: row.CreatedAt,
	}, nil
}

func (s *PostgresStore) Delete(ctx context.Context, tokenHash string) error {
	return s.queries.DeleteSession(ctx, tokenHash)
}

func (s *PostgresStore) DeleteUser(ctx context.Context, userID uuid.UUID) error {
	return s.queries.DeleteUserSessions(ctx, userID)
}

func (s *PostgresStore) DeleteExpired(ctx context.Context) (int64, error) {
	return s.queries.DeleteExpiredSessions(ctx)
}

// ttlUntil returns the remaining lifetime, or zero if already expired.
func ttlUntil(expiresAt, now time.Time) time.Duration {
	if d := expiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

var _ Store = (*PostgresStore)(nil)
