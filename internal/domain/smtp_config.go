package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultSMTPPort is the STARTTLS submission port used by SES and most relays.
const DefaultSMTPPort = 587

// SMTPConfig is a credential set for the outbound relay. Exactly one row is
// active at a time; the mailer refuses to send when none is.
type SMTPConfig struct {
	ID        uuid.UUID
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	FromName  string
	IsActive  bool
	UpdatedAt time.Time
}

// Addr returns host:port for dialing.
func (c *SMTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// FromHeader returns the RFC 5322 From value ("Name <addr>" or just addr).
func (c *SMTPConfig) FromHeader() string {
	if c.FromName == "" {
		return c.FromEmail
	}
	return fmt.Sprintf("%q <%s>", c.FromName, c.FromEmail)
}

// FromDomain returns the domain part of FromEmail, used for Message-ID generation.
func (c *SMTPConfig) FromDomain() string {
	if i := strings.LastIndex(c.FromEmail, "@"); i >= 0 && i < len(c.FromEmail)-1 {
		return c.FromEmail[i+1:]
	}
	return "localhost"
}

// HasPassword reports whether a password is stored, for display without
// revealing it.
func (c *SMTPConfig) HasPassword() bool {
	return c.Password != ""
}

// SMTPConfigParams contains the fields an operator may change.
// An empty Password keeps the stored one.
type SMTPConfigParams struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	FromName  string
}
