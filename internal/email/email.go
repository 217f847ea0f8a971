// Package email delivers single messages through an outbound relay.
//
// This package defines a Transport interface with implementations for:
// - SMTP submission with STARTTLS (or implicit TLS on 465) using the active
//   relay credentials
// - The SES SendEmail API, for relays that are reachable over HTTPS only
//
// Transports never write logs of their own outcome; the caller (the mailer
// service) records every attempt.
package email

import (
	"context"
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/DukeRupert/mailprobe/internal/domain"
	"github.com/google/uuid"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Transport delivers one message using a relay configuration snapshot.
//
// Implementations must honor ctx cancellation and return the provider's
// message id on success. Any failure is returned as an error; callers convert
// it into a failed send result.
type Transport interface {
	// Name identifies the transport in metrics and logs ("smtp", "ses").
	Name() string

	// Deliver sends msg using cfg and returns the message id.
	Deliver(ctx context.Context, cfg domain.SMTPConfig, msg Message) (string, error)
}

// Prober checks that relay credentials are accepted without sending mail.
type Prober interface {
	Probe(ctx context.Context, cfg domain.SMTPConfig) error
}

// =============================================================================
// Email Data Types
// =============================================================================

// Message represents a single email message.
type Message struct {
	To       string // Recipient email address
	Subject  string // Email subject line
	HTMLBody string // HTML content; empty for plain-text messages
	TextBody string // Plain text content or HTML alternative
}

// NewMessage builds a Message from a raw body. HTML bodies get a plain-text
// alternative derived by stripping tags.
func NewMessage(to, subject, body string, isHTML bool) Message {
	if isHTML {
		return Message{
			To:       to,
			Subject:  subject,
			HTMLBody: body,
			TextBody: StripTags(body),
		}
	}
	return Message{
		To:       to,
		Subject:  subject,
		TextBody: body,
	}
}

// IsHTML reports whether the message carries an HTML part.
func (m Message) IsHTML() bool {
	return m.HTMLBody != ""
}

// =============================================================================
// Helpers
// =============================================================================

var (
	tagPattern        = regexp.MustCompile(`(?s)<[^>]*>`)
	blockPattern      = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	blankLinesPattern = regexp.MustCompile(`\n{3,}`)
)

// StripTags removes markup to produce a readable plain-text alternative. It
// is not an HTML parser: it drops script/style blocks, removes tags, decodes
// entities, and collapses runs of blank lines.
func StripTags(s string) string {
	s = blockPattern.ReplaceAllString(s, "")
	s = tagPattern.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = blankLinesPattern.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// NewMessageID generates an RFC 5322 Message-ID for the sender's domain.
func NewMessageID(domainName string) string {
	return fmt.Sprintf("<%s@%s>", uuid.New().String(), domainName)
}

// DefaultTimeout bounds a single delivery when the caller sets none.
const DefaultTimeout = 30 * time.Second
