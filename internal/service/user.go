// Package service contains the business logic layer.
//
// Services orchestrate interactions between repositories, transports,
// and domain logic. They are responsible for:
// - Input validation
// - Business rule enforcement
// - Transaction coordination
// - Error translation (database errors -> domain errors)
package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/DukeRupert/mailprobe/internal/domain"
	"github.com/DukeRupert/mailprobe/internal/metrics"
	"github.com/DukeRupert/mailprobe/internal/repository"
	"github.com/DukeRupert/mailprobe/internal/session"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// =============================================================================
// Configuration Constants
// =============================================================================

const (
	// BcryptCost is the cost factor for bcrypt password hashing.
	// Cost 12 provides good security (~250ms on modern hardware) while being
	// fast enough for login flows.
	//
	// SECURITY NOTE: This should NOT be configurable at runtime to prevent
	// accidental weakening. If you need to change it, do so here and redeploy.
	BcryptCost = 12

	// SessionTokenBytes is the number of random bytes for session tokens.
	// 32 bytes = 256 bits of entropy. The token is hex-encoded to 64 characters.
	SessionTokenBytes = 32

	// DefaultSessionDuration applies when no duration is configured.
	DefaultSessionDuration = 24 * time.Hour

	// MinSessionDuration and MaxSessionDuration bound SESSION_DURATION.
	MinSessionDuration = 15 * time.Minute
	MaxSessionDuration = 30 * 24 * time.Hour

	// MinPasswordLength is the minimum password length.
	// NIST SP 800-63B recommends 8+ characters minimum.
	MinPasswordLength = 8

	// MaxPasswordLength prevents DoS via bcrypt on very long passwords.
	// bcrypt has a 72-byte limit anyway, but we cap earlier for clarity.
	MaxPasswordLength = 72
)

// dummyHash is compared against when the username does not exist so both
// branches of Login cost one bcrypt comparison.
const dummyHash = "$2a$12$R9h/cIPz0gi.URNNX3kh2OPST9/PgBkqquzi.Ss7KIUgO2t0jWMUW"

// invalidCredentials is shared by every login failure so responses do not
// reveal which part was wrong.
const invalidCredentials = "Invalid username or password"

// =============================================================================
// Interface Definition
// =============================================================================

// UserService is the session gate: it authenticates operators and manages
// their server-side sessions.
type UserService interface {
	// Login verifies credentials and creates a new session.
	// Returns domain.EUNAUTHORIZED for invalid credentials; no session is
	// created in that case.
	Login(ctx context.Context, username, password string) (*domain.LoginResult, error)

	// Logout invalidates a session by its raw token.
	// This is idempotent - calling with an invalid token is not an error.
	Logout(ctx context.Context, token string) error

	// GetBySessionToken resolves a raw session token to its user.
	// Returns domain.EUNAUTHORIZED if the token is invalid or expired.
	GetBySessionToken(ctx context.Context, token string) (*domain.User, error)

	// GetByUsername looks up an operator account.
	// Returns domain.ENOTFOUND if the user does not exist.
	GetByUsername(ctx context.Context, username string) (*domain.User, error)

	// CreateUser adds an operator account.
	// Returns domain.ECONFLICT if the username is taken.
	CreateUser(ctx context.Context, username, password string) (*domain.User, error)

	// ChangePassword replaces a user's password and revokes all of their
	// sessions.
	ChangePassword(ctx context.Context, username, newPassword string) error

	// DeleteExpiredSessions removes expired sessions and returns how many.
	DeleteExpiredSessions(ctx context.Context) (int64, error)
}

// UserStore is the persistence the user service needs.
// *repository.Queries satisfies it.
type UserStore interface {
	CreateUser(ctx context.Context, username, passwordHash string) (repository.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (repository.User, error)
	GetUserByUsername(ctx context.Context, username string) (repository.User, error)
	UpdateUserPassword(ctx context.Context, id uuid.UUID, passwordHash string) error
}

// UserServiceConfig tunes session lifetime.
type UserServiceConfig struct {
	SessionDuration time.Duration
}

// =============================================================================
// Implementation
// =============================================================================

type userService struct {
	users           UserStore
	sessions        session.Store
	sessionDuration time.Duration
	logger          *slog.Logger
	now             func() time.Time
}

// NewUserService creates a new UserService instance.
//
// Dependencies:
// - users: account persistence
// - sessions: PostgreSQL or Redis session store
// - logger: structured logger for operation logging
func NewUserService(users UserStore, sessions session.Store, cfg UserServiceConfig, logger *slog.Logger) UserService {
	return &userService{
		users:           users,
		sessions:        sessions,
		sessionDuration: normalizeSessionDuration(cfg.SessionDuration),
		logger:          logger,
		now:             time.Now,
	}
}

// normalizeSessionDuration applies the default and clamps to the allowed range.
func normalizeSessionDuration(d time.Duration) time.Duration {
	switch {
	case d == 0:
		return DefaultSessionDuration
	case d < MinSessionDuration:
		return MinSessionDuration
	case d > MaxSessionDuration:
		return MaxSessionDuration
	default:
		return d
	}
}

// =============================================================================
// Login / Logout
// =============================================================================

// Login authenticates an operator and creates a new session.
//
// Flow:
// 1. Look up user by username
// 2. Compare password hash using bcrypt (dummy compare when user is missing)
// 3. Generate a random session token and store its SHA-256 hash
// 4. Return user and raw token
func (s *userService) Login(ctx context.Context, username, password string) (*domain.LoginResult, error) {
	const op = "UserService.Login"

	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		metrics.LoginAttempted("failure")
		return nil, domain.Unauthorized(op, invalidCredentials)
	}

	repoUser, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
			metrics.LoginAttempted("failure")
			return nil, domain.Unauthorized(op, invalidCredentials)
		}
		return nil, domain.Internal(err, op, "Failed to retrieve user")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(repoUser.PasswordHash), []byte(password)); err != nil {
		metrics.LoginAttempted("failure")
		s.logger.Info("login failed", "username", username)
		return nil, domain.Unauthorized(op, invalidCredentials)
	}

	token, err := generateSessionToken()
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to generate session token")
	}

	now := s.now()
	expiresAt := now.Add(s.sessionDuration)
	err = s.sessions.Create(ctx, domain.Session{
		TokenHash: hashSessionToken(token),
		UserID:    repoUser.ID,
		Username:  repoUser.Username,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	})
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to create session")
	}

	user := repoUserToDomain(repoUser)
	user.PasswordHash = ""

	metrics.LoginAttempted("success")
	s.logger.Info("user logged in", "user_id", user.ID, "username", user.Username)

	return &domain.LoginResult{User: user, Token: token, ExpiresAt: expiresAt}, nil
}

// Logout invalidates a session. Unknown or malformed tokens are ignored.
func (s *userService) Logout(ctx context.Context, token string) error {
	if !validTokenFormat(token) {
		return nil
	}

	if err := s.sessions.Delete(ctx, hashSessionToken(token)); err != nil {
		s.logger.Warn("failed to delete session", "error", err)
	}

	s.logger.Debug("session invalidated")
	return nil
}

// GetBySessionToken resolves a session to its user. Expired sessions are
// rejected by the store.
func (s *userService) GetBySessionToken(ctx context.Context, token string) (*domain.User, error) {
	const op = "UserService.GetBySessionToken"

	if !validTokenFormat(token) {
		return nil, domain.Unauthorized(op, "Invalid or expired session")
	}

	sess, err := s.sessions.Get(ctx, hashSessionToken(token))
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, domain.Unauthorized(op, "Invalid or expired session")
		}
		return nil, domain.Internal(err, op, "Failed to retrieve session")
	}

	return &domain.User{ID: sess.UserID, Username: sess.Username}, nil
}

// =============================================================================
// Account management
// =============================================================================

func (s *userService) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	const op = "UserService.GetByUsername"

	repoUser, err := s.users.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "user", username)
		}
		return nil, domain.Internal(err, op, "Failed to retrieve user")
	}

	user := repoUserToDomain(repoUser)
	user.PasswordHash = ""
	return user, nil
}

// CreateUser validates and stores a new operator account.
func (s *userService) CreateUser(ctx context.Context, username, password string) (*domain.User, error) {
	const op = "UserService.CreateUser"

	username = strings.TrimSpace(username)
	if err := validateUsername(username); err != nil {
		return nil, domain.Wrap(err, domain.EINVALID, op, domain.ErrorMessage(err))
	}
	if err := validatePassword(password); err != nil {
		return nil, domain.Wrap(err, domain.EINVALID, op, domain.ErrorMessage(err))
	}

	_, err := s.users.GetUserByUsername(ctx, username)
	if err == nil {
		return nil, domain.Conflict(op, "Username already taken")
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, domain.Internal(err, op, "Failed to check username availability")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to hash password")
	}

	repoUser, err := s.users.CreateUser(ctx, username, string(hash))
	if err != nil {
		// Unique constraint violation (race with another create)
		if strings.Contains(err.Error(), "unique") || strings.Contains(err.Error(), "duplicate") {
			return nil, domain.Conflict(op, "Username already taken")
		}
		return nil, domain.Internal(err, op, "Failed to create user")
	}

	user := repoUserToDomain(repoUser)
	user.PasswordHash = ""

	s.logger.Info("user created", "user_id", user.ID, "username", user.Username)
	return user, nil
}

// ChangePassword sets a new password and revokes existing sessions.
func (s *userService) ChangePassword(ctx context.Context, username, newPassword string) error {
	const op = "UserService.ChangePassword"

	if err := validatePassword(newPassword); err != nil {
		return domain.Wrap(err, domain.EINVALID, op, domain.ErrorMessage(err))
	}

	repoUser, err := s.users.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NotFound(op, "user", username)
		}
		return domain.Internal(err, op, "Failed to retrieve user")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), BcryptCost)
	if err != nil {
		return domain.Internal(err, op, "Failed to hash password")
	}

	if err := s.users.UpdateUserPassword(ctx, repoUser.ID, string(hash)); err != nil {
		return domain.Internal(err, op, "Failed to update password")
	}

	if err := s.sessions.DeleteUser(ctx, repoUser.ID); err != nil {
		s.logger.Warn("failed to revoke sessions after password change", "user_id", repoUser.ID, "error", err)
	}

	s.logger.Info("password changed", "user_id", repoUser.ID)
	return nil
}

// DeleteExpiredSessions removes expired sessions. Redis-backed stores
// expire on their own and report zero.
func (s *userService) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	const op = "UserService.DeleteExpiredSessions"

	n, err := s.sessions.DeleteExpired(ctx)
	if err != nil {
		return 0, domain.Internal(err, op, "Failed to delete expired sessions")
	}
	if n > 0 {
		s.logger.Info("expired sessions deleted", "count", n)
	}
	return n, nil
}

// =============================================================================
// Helper Functions
// =============================================================================

// generateSessionToken creates a cryptographically random, hex-encoded token.
func generateSessionToken() (string, error) {
	b := make([]byte, SessionTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// hashSessionToken creates a SHA-256 hash of a session token. Tokens are
// high-entropy random values, so a fast hash is sufficient.
func hashSessionToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

func validTokenFormat(token string) bool {
	if len(token) != SessionTokenBytes*2 {
		return false
	}
	_, err := hex.DecodeString(token)
	return err == nil
}

func repoUserToDomain(u repository.User) *domain.User {
	return &domain.User{
		ID:           u.ID,
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
	}
}

// validateUsername allows 3-64 characters of letters, digits, dot, dash
// and underscore.
func validateUsername(username string) error {
	if err := validate.Var(username, "required,min=3,max=64"); err != nil {
		return domain.Invalid("", "Username must be 3 to 64 characters")
	}
	for _, r := range username {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '.' && r != '-' && r != '_' {
			return domain.Invalid("", "Username may contain only letters, digits, '.', '-' and '_'")
		}
	}
	return nil
}

// commonPasswords are rejected even when they meet the other rules.
var commonPasswords = map[string]bool{
	"password1":   true,
	"password123": true,
	"qwerty123":   true,
	"letmein1":    true,
	"welcome1":    true,
	"admin123":    true,
	"changeme1":   true,
	"abc12345":    true,
	"iloveyou1":   true,
	"passw0rd":    true,
}

// validatePassword validates password strength requirements.
//
// Rules:
// - Length between 8 and 72 characters (bcrypt limit)
// - At least one letter and one number
// - Not a well-known password
func validatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return domain.Invalid("", "Password must be at least 8 characters")
	}

	if len(password) > MaxPasswordLength {
		return domain.Invalid("", "Password must be 72 characters or less")
	}

	var hasLetter, hasNumber bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasNumber = true
		}
	}
	if !hasLetter {
		return domain.Invalid("", "Password must contain at least one letter")
	}
	if !hasNumber {
		return domain.Invalid("", "Password must contain at least one number")
	}

	if commonPasswords[strings.ToLower(password)] {
		return domain.Invalid("", "Password is too common")
	}

	return nil
}
