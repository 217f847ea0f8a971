package domain

import (
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TemplateType categorizes stored email templates.
type TemplateType string

const (
	TemplateTypeOTP         TemplateType = "otp"
	TemplateTypeTransaction TemplateType = "transaction"
	TemplateTypeNotice      TemplateType = "notice"
)

// String returns the string representation of the type.
func (t TemplateType) String() string {
	return string(t)
}

// placeholderPattern matches {UPPER_SNAKE} tokens. Lowercase, digits and
// whitespace inside the braces never form a placeholder.
var placeholderPattern = regexp.MustCompile(`\{([A-Z_]+)\}`)

// EmailTemplate is a stored message with {NAME} placeholders in its subject
// and bodies. The sending flow never modifies it.
type EmailTemplate struct {
	ID        uuid.UUID
	Name      string
	Type      TemplateType
	Subject   string
	BodyHTML  string
	BodyText  string
	CreatedAt time.Time
}

// RenderedTemplate is the output of substitution.
type RenderedTemplate struct {
	Subject  string
	BodyHTML string
	BodyText string
}

// Variables returns the distinct placeholder names used anywhere in the
// template, in first-seen order across subject, HTML body, then text body.
func (t *EmailTemplate) Variables() []string {
	return ExtractVariables(t.Subject, t.BodyHTML, t.BodyText)
}

// Render substitutes every supplied variable. Keys are matched
// case-insensitively against the uppercase placeholder names; placeholders
// without a value are left untouched.
//
// Values placed into BodyHTML are HTML-escaped. Subject and BodyText are
// plain text and receive the raw value.
func (t *EmailTemplate) Render(vars map[string]string) RenderedTemplate {
	plain := make(map[string]string, len(vars))
	escaped := make(map[string]string, len(vars))
	for k, v := range vars {
		name := strings.ToUpper(strings.TrimSpace(k))
		if name == "" {
			continue
		}
		plain[name] = v
		escaped[name] = html.EscapeString(v)
	}

	return RenderedTemplate{
		Subject:  ReplacePlaceholders(t.Subject, plain),
		BodyHTML: ReplacePlaceholders(t.BodyHTML, escaped),
		BodyText: ReplacePlaceholders(t.BodyText, plain),
	}
}

// ExtractVariables scans the given texts for {NAME} placeholders and returns
// each name once, in the order first encountered.
func ExtractVariables(texts ...string) []string {
	seen := make(map[string]struct{})
	names := []string{}
	for _, text := range texts {
		for _, m := range placeholderPattern.FindAllStringSubmatch(text, -1) {
			name := m[1]
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	return names
}

// ReplacePlaceholders performs one pass of literal replacement. Each
// placeholder is looked up exactly once, so a value that itself looks like a
// placeholder is never expanded again.
func ReplacePlaceholders(text string, values map[string]string) string {
	if len(values) == 0 || text == "" {
		return text
	}
	return placeholderPattern.ReplaceAllStringFunc(text, func(token string) string {
		name := token[1 : len(token)-1]
		if v, ok := values[name]; ok {
			return v
		}
		return token
	})
}

// sampleValues are the suggested form values for the seeded templates.
var sampleValues = map[string]func(now time.Time) string{
	"OTP_CODE":         func(time.Time) string { return "123456" },
	"CUSTOMER_NAME":    func(time.Time) string { return "Juan Dela Cruz" },
	"TRANSACTION_ID":   func(now time.Time) string { return "TXN-" + now.Format("20060102150405") },
	"SERVICE_NAME":     func(time.Time) string { return "Vessel Registration" },
	"AMOUNT":           func(time.Time) string { return "1,500.00" },
	"TRANSACTION_DATE": func(now time.Time) string { return now.Format("January 2, 2006 3:04 PM") },
	"REFERENCE_NUMBER": func(now time.Time) string { return "REF-" + now.Format("20060102150405") },
	"NOTICE_TITLE":     func(time.Time) string { return "Important System Maintenance" },
	"NOTICE_CONTENT":   func(time.Time) string { return "This is a sample notice content for testing purposes." },
	"ACTION_REQUIRED":  func(time.Time) string { return "Please review and acknowledge this notice." },
	"CONTACT_EMAIL":    func(time.Time) string { return "support@example.com" },
	"CONTACT_PHONE":    func(time.Time) string { return "(02) 8527-8537" },
	"NOTICE_DATE":      func(now time.Time) string { return now.Format("January 2, 2006") },
	"ISSUING_OFFICE":   func(time.Time) string { return "IT Department" },
	"VALIDITY_MINUTES": func(time.Time) string { return "5" },
}

// SampleValue returns a plausible default for a known placeholder, or "".
func SampleValue(name string, now time.Time) string {
	if fn, ok := sampleValues[name]; ok {
		return fn(now)
	}
	return ""
}
