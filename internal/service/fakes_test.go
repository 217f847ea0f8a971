package service

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/DukeRupert/mailprobe/internal/domain"
	"github.com/DukeRupert/mailprobe/internal/email"
	"github.com/DukeRupert/mailprobe/internal/repository"
	"github.com/DukeRupert/mailprobe/internal/session"
	"github.com/google/uuid"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// =============================================================================
// Users and sessions
// =============================================================================

type fakeUserStore struct {
	users map[string]repository.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: map[string]repository.User{}}
}

func (f *fakeUserStore) CreateUser(ctx context.Context, username, passwordHash string) (repository.User, error) {
	u := repository.User{ID: uuid.New(), Username: username, PasswordHash: passwordHash, CreatedAt: time.Now()}
	f.users[username] = u
	return u, nil
}

func (f *fakeUserStore) GetUserByID(ctx context.Context, id uuid.UUID) (repository.User, error) {
	for _, u := range f.users {
		if u.ID == id {
			return u, nil
		}
	}
	return repository.User{}, sql.ErrNoRows
}

func (f *fakeUserStore) GetUserByUsername(ctx context.Context, username string) (repository.User, error) {
	u, ok := f.users[username]
	if !ok {
		return repository.User{}, sql.ErrNoRows
	}
	return u, nil
}

func (f *fakeUserStore) UpdateUserPassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	for name, u := range f.users {
		if u.ID == id {
			u.PasswordHash = passwordHash
			f.users[name] = u
			return nil
		}
	}
	return sql.ErrNoRows
}

type fakeSessionStore struct {
	sessions map[string]domain.Session
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{sessions: map[string]domain.Session{}}
}

func (f *fakeSessionStore) Create(ctx context.Context, s domain.Session) error {
	f.sessions[s.TokenHash] = s
	return nil
}

func (f *fakeSessionStore) Get(ctx context.Context, tokenHash string) (*domain.Session, error) {
	s, ok := f.sessions[tokenHash]
	if !ok || s.IsExpired() {
		return nil, session.ErrNotFound
	}
	return &s, nil
}

func (f *fakeSessionStore) Delete(ctx context.Context, tokenHash string) error {
	delete(f.sessions, tokenHash)
	return nil
}

func (f *fakeSessionStore) DeleteUser(ctx context.Context, userID uuid.UUID) error {
	for h, s := range f.sessions {
		if s.UserID == userID {
			delete(f.sessions, h)
		}
	}
	return nil
}

func (f *fakeSessionStore) DeleteExpired(ctx context.Context) (int64, error) {
	var n int64
	for h, s := range f.sessions {
		if s.IsExpired() {
			delete(f.sessions, h)
			n++
		}
	}
	return n, nil
}

// =============================================================================
// Settings
// =============================================================================

type fakeSettingsStore struct {
	current *repository.SmtpConfig
	saveErr error
	saves   int
}

func (f *fakeSettingsStore) GetActiveSmtpConfig(ctx context.Context) (repository.SmtpConfig, error) {
	if f.current == nil {
		return repository.SmtpConfig{}, sql.ErrNoRows
	}
	return *f.current, nil
}

func (f *fakeSettingsStore) SaveActiveSmtpConfig(ctx context.Context, merge func(current *repository.SmtpConfig) (repository.SmtpConfigParams, error)) (repository.SmtpConfig, error) {
	if f.saveErr != nil {
		return repository.SmtpConfig{}, f.saveErr
	}

	var snapshot *repository.SmtpConfig
	if f.current != nil {
		c := *f.current
		snapshot = &c
	}

	p, err := merge(snapshot)
	if err != nil {
		return repository.SmtpConfig{}, err
	}

	id := uuid.New()
	if f.current != nil {
		id = f.current.ID
	}
	f.current = &repository.SmtpConfig{
		ID:        id,
		Host:      p.Host,
		Port:      p.Port,
		Username:  p.Username,
		Password:  p.Password,
		FromEmail: p.FromEmail,
		FromName:  p.FromName,
		IsActive:  true,
		UpdatedAt: time.Now(),
	}
	f.saves++
	return *f.current, nil
}

// fakeSettings is a SettingsService returning a fixed config or error.
type fakeSettings struct {
	cfg *domain.SMTPConfig
	err error
}

func (f *fakeSettings) Active(ctx context.Context) (*domain.SMTPConfig, error) {
	if f.err != nil {
		return nil, f.err
	}
	c := *f.cfg
	return &c, nil
}

func (f *fakeSettings) Update(ctx context.Context, params domain.SMTPConfigParams) (*domain.SMTPConfig, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeSettings) Bootstrap(ctx context.Context, params domain.SMTPConfigParams) (bool, error) {
	return false, nil
}

func (f *fakeSettings) TestConnection(ctx context.Context, params domain.SMTPConfigParams) error {
	return nil
}

// =============================================================================
// Templates
// =============================================================================

type fakeTemplateStore struct {
	templates []repository.EmailTemplate
}

func (f *fakeTemplateStore) ListEmailTemplates(ctx context.Context) ([]repository.EmailTemplate, error) {
	return f.templates, nil
}

func (f *fakeTemplateStore) GetEmailTemplate(ctx context.Context, id uuid.UUID) (repository.EmailTemplate, error) {
	for _, t := range f.templates {
		if t.ID == id {
			return t, nil
		}
	}
	return repository.EmailTemplate{}, sql.ErrNoRows
}

// =============================================================================
// Delivery and logging
// =============================================================================

type delivery struct {
	cfg domain.SMTPConfig
	msg email.Message
}

// fakeTransport fails for any recipient listed in failFor.
type fakeTransport struct {
	mu         sync.Mutex
	deliveries []delivery
	failFor    map[string]error
	probeErr   error
	probed     []domain.SMTPConfig
}

func (f *fakeTransport) Name() string { return "fake" }

func (f *fakeTransport) Deliver(ctx context.Context, cfg domain.SMTPConfig, msg email.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.deliveries = append(f.deliveries, delivery{cfg: cfg, msg: msg})
	if err, ok := f.failFor[msg.To]; ok {
		return "", err
	}
	return "<" + uuid.NewString() + "@example.com>", nil
}

func (f *fakeTransport) Probe(ctx context.Context, cfg domain.SMTPConfig) error {
	f.probed = append(f.probed, cfg)
	return f.probeErr
}

type fakeLogWriter struct {
	entries []repository.CreateEmailLogParams
	err     error
}

func (f *fakeLogWriter) CreateEmailLog(ctx context.Context, arg repository.CreateEmailLogParams) (repository.EmailLog, error) {
	if f.err != nil {
		return repository.EmailLog{}, f.err
	}
	f.entries = append(f.entries, arg)
	return repository.EmailLog{ID: uuid.New(), SentAt: time.Now()}, nil
}

// =============================================================================
// Activity
// =============================================================================

type fakeActivityStore struct {
	rows       []repository.EmailLogRow
	total      int
	lastFilter repository.EmailLogFilter
	lastLimit  int
	lastOffset int
	stats      repository.DailyLogStats
}

func (f *fakeActivityStore) ListEmailLogs(ctx context.Context, filter repository.EmailLogFilter, limit, offset int) ([]repository.EmailLogRow, int, error) {
	f.lastFilter = filter
	f.lastLimit = limit
	f.lastOffset = offset
	return f.rows, f.total, nil
}

func (f *fakeActivityStore) GetDailyLogStats(ctx context.Context, day time.Time) (repository.DailyLogStats, error) {
	return f.stats, nil
}

func (f *fakeActivityStore) ListRecentEmailLogs(ctx context.Context, limit int) ([]repository.EmailLogRow, error) {
	f.lastLimit = limit
	if len(f.rows) > limit {
		return f.rows[:limit], nil
	}
	return f.rows, nil
}
