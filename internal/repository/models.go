package repository

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID           uuid.UUID `db:"id"`
	Username     string    `db:"username"`
	PasswordHash string    `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`
}

type Session struct {
	ID        uuid.UUID `db:"id"`
	UserID    uuid.UUID `db:"user_id"`
	TokenHash string    `db:"token_hash"`
	ExpiresAt time.Time `db:"expires_at"`
	CreatedAt time.Time `db:"created_at"`
}

// SessionWithUser is a session joined with its owner's username.
type SessionWithUser struct {
	Session
	Username string `db:"username"`
}

type SmtpConfig struct {
	ID        uuid.UUID `db:"id"`
	Host      string    `db:"host"`
	Port      int32     `db:"port"`
	Username  string    `db:"username"`
	Password  string    `db:"password"`
	FromEmail string    `db:"from_email"`
	FromName  string    `db:"from_name"`
	IsActive  bool      `db:"is_active"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

type EmailTemplate struct {
	ID        uuid.UUID `db:"id"`
	Name      string    `db:"name"`
	Type      string    `db:"type"`
	Subject   string    `db:"subject"`
	BodyHtml  string    `db:"body_html"`
	BodyText  string    `db:"body_text"`
	CreatedAt time.Time `db:"created_at"`
}

type EmailLog struct {
	ID             uuid.UUID      `db:"id"`
	UserID         uuid.NullUUID  `db:"user_id"`
	TestType       string         `db:"test_type"`
	RecipientEmail string         `db:"recipient_email"`
	Subject        string         `db:"subject"`
	TemplateID     uuid.NullUUID  `db:"template_id"`
	Status         string         `db:"status"`
	MessageID      sql.NullString `db:"message_id"`
	ErrorMessage   sql.NullString `db:"error_message"`
	SentAt         time.Time      `db:"sent_at"`
}

// EmailLogRow is an EmailLog joined with display columns.
type EmailLogRow struct {
	EmailLog
	TemplateName sql.NullString `db:"template_name"`
	Username     sql.NullString `db:"username"`
}
