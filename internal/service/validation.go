package service

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/DukeRupert/mailprobe/internal/domain"
	"github.com/go-playground/validator/v10"
)

// validate is shared by every service; validator caches struct metadata.
var validate = validator.New(validator.WithRequiredStructEnabled())

// fieldLabels gives form-facing names for struct fields.
var fieldLabels = map[string]string{
	"To":        "Recipient",
	"Subject":   "Subject",
	"Body":      "Body",
	"Host":      "SMTP host",
	"Port":      "Port",
	"Username":  "Username",
	"Password":  "Password",
	"FromEmail": "From email",
	"FromName":  "From name",
}

// validateStruct runs validator tags on v and converts failures into a
// domain.ValidationError keyed by lower_snake field names.
func validateStruct(op string, v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return domain.Internal(err, op, "Validation failed")
	}

	ve := &domain.ValidationError{Op: op}
	for _, fe := range verrs {
		ve.Add(snakeCase(fe.Field()), fieldMessage(fe))
	}
	return ve
}

func fieldMessage(fe validator.FieldError) string {
	label, ok := fieldLabels[fe.Field()]
	if !ok {
		label = fe.Field()
	}

	switch fe.Tag() {
	case "required":
		return label + " is required"
	case "email":
		return label + " must be a valid email address"
	case "min":
		return fmt.Sprintf("%s must be at least %s", label, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", label, fe.Param())
	case "hostname_rfc1123", "hostname":
		return label + " must be a valid hostname"
	default:
		return label + " is invalid"
	}
}

var camelBoundary = regexp.MustCompile(`([a-z0-9])([A-Z])`)

func snakeCase(s string) string {
	return strings.ToLower(camelBoundary.ReplaceAllString(s, "${1}_${2}"))
}

// IsValidEmail reports whether addr is a syntactically valid address.
func IsValidEmail(addr string) bool {
	return validate.Var(addr, "required,email") == nil
}

// =============================================================================
// Send input validation
// =============================================================================

type sendInput struct {
	To      string `validate:"required,email"`
	Subject string `validate:"required,max=998"`
	Body    string `validate:"required"`
}

// ValidateSendRequest checks a single-recipient request before it reaches
// the mailer. Invalid input never produces a log entry.
func ValidateSendRequest(req domain.SendRequest) error {
	return validateStruct("service.ValidateSendRequest", sendInput{
		To:      strings.TrimSpace(req.To),
		Subject: strings.TrimSpace(req.Subject),
		Body:    strings.TrimSpace(req.Body),
	})
}

type bulkInput struct {
	Subject string `validate:"required,max=998"`
	Body    string `validate:"required"`
}

// ValidateBulkContent checks the shared subject and body of a bulk request.
func ValidateBulkContent(subject, body string) error {
	return validateStruct("service.ValidateBulkContent", bulkInput{
		Subject: strings.TrimSpace(subject),
		Body:    strings.TrimSpace(body),
	})
}

// =============================================================================
// Recipient list parsing
// =============================================================================

var recipientSeparators = regexp.MustCompile(`[\r\n,;]+`)

// ParseRecipients splits a pasted address list on newlines, commas and
// semicolons, trims each candidate and drops empties. Candidates are
// returned in input order, split by validity. Duplicates are kept.
func ParseRecipients(blob string) (valid, invalid []string) {
	valid = []string{}
	invalid = []string{}

	for _, candidate := range recipientSeparators.Split(blob, -1) {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		if IsValidEmail(candidate) {
			valid = append(valid, candidate)
		} else {
			invalid = append(invalid, candidate)
		}
	}

	return valid, invalid
}
