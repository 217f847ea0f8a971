package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
)

const smtpConfigColumns = `id, host, port, username, password, from_email, from_name, is_active, created_at, updated_at`

const getActiveSmtpConfig = `
SELECT ` + smtpConfigColumns + `
FROM smtp_config
WHERE is_active
ORDER BY updated_at DESC
LIMIT 1`

func (q *Queries) GetActiveSmtpConfig(ctx context.Context) (SmtpConfig, error) {
	var c SmtpConfig
	err := q.db.GetContext(ctx, &c, getActiveSmtpConfig)
	return c, err
}

// getActiveSmtpConfigForUpdate locks the row so concurrent saves serialize.
const getActiveSmtpConfigForUpdate = getActiveSmtpConfig + ` FOR UPDATE`

func (q *Queries) GetActiveSmtpConfigForUpdate(ctx context.Context) (SmtpConfig, error) {
	var c SmtpConfig
	err := q.db.GetContext(ctx, &c, getActiveSmtpConfigForUpdate)
	return c, err
}

type SmtpConfigParams struct {
	Host      string `db:"host"`
	Port      int32  `db:"port"`
	Username  string `db:"username"`
	Password  string `db:"password"`
	FromEmail string `db:"from_email"`
	FromName  string `db:"from_name"`
}

const createSmtpConfig = `
INSERT INTO smtp_config (host, port, username, password, from_email, from_name, is_active)
VALUES ($1, $2, $3, $4, $5, $6, TRUE)
RETURNING ` + smtpConfigColumns

func (q *Queries) CreateSmtpConfig(ctx context.Context, arg SmtpConfigParams) (SmtpConfig, error) {
	var c SmtpConfig
	err := q.db.GetContext(ctx, &c, createSmtpConfig,
		arg.Host, arg.Port, arg.Username, arg.Password, arg.FromEmail, arg.FromName)
	return c, err
}

const updateSmtpConfig = `
UPDATE smtp_config
SET host = $2, port = $3, username = $4, password = $5,
    from_email = $6, from_name = $7, updated_at = NOW()
WHERE id = $1
RETURNING ` + smtpConfigColumns

func (q *Queries) UpdateSmtpConfig(ctx context.Context, id uuid.UUID, arg SmtpConfigParams) (SmtpConfig, error) {
	var c SmtpConfig
	err := q.db.GetContext(ctx, &c, updateSmtpConfig,
		id, arg.Host, arg.Port, arg.Username, arg.Password, arg.FromEmail, arg.FromName)
	return c, err
}

// SaveActiveSmtpConfig locks the active row (if any), lets merge compute the
// new values from it, and then updates that row or inserts the first one.
// current is nil when no active row exists.
func (s *Store) SaveActiveSmtpConfig(ctx context.Context, merge func(current *SmtpConfig) (SmtpConfigParams, error)) (SmtpConfig, error) {
	var saved SmtpConfig

	err := s.InTx(ctx, func(q *Queries) error {
		var current *SmtpConfig
		row, err := q.GetActiveSmtpConfigForUpdate(ctx)
		switch {
		case err == nil:
			current = &row
		case errors.Is(err, sql.ErrNoRows):
		default:
			return err
		}

		params, err := merge(current)
		if err != nil {
			return err
		}

		if current == nil {
			saved, err = q.CreateSmtpConfig(ctx, params)
		} else {
			saved, err = q.UpdateSmtpConfig(ctx, current.ID, params)
		}
		return err
	})

	return saved, err
}
