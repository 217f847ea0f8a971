package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// TestType records which flow produced a send attempt.
type TestType string

const (
	TestTypeBasic    TestType = "basic"
	TestTypeTemplate TestType = "template"
	TestTypeBulk     TestType = "bulk"
)

// IsValid returns true if the type is a recognized value.
func (t TestType) IsValid() bool {
	switch t {
	case TestTypeBasic, TestTypeTemplate, TestTypeBulk:
		return true
	}
	return false
}

// SendRequest is one message to one recipient.
type SendRequest struct {
	To         string
	Subject    string
	Body       string
	IsHTML     bool
	TemplateID *uuid.UUID // Set when the body came from a stored template
}

// SendResult is the outcome of a single attempt. Delivery failures are
// reported here rather than returned as errors.
type SendResult struct {
	Success   bool
	MessageID string
	Error     string
}

// Sent builds a successful result.
func Sent(messageID string) SendResult {
	return SendResult{Success: true, MessageID: messageID}
}

// Failed builds a failed result from a delivery error.
func Failed(err error) SendResult {
	msg := "unknown delivery error"
	if err != nil {
		msg = err.Error()
	}
	return SendResult{Success: false, Error: msg}
}

// Status maps the result to the persisted log status.
func (r SendResult) Status() LogStatus {
	if r.Success {
		return LogStatusSent
	}
	return LogStatusFailed
}

// BulkRequest fans one subject/body out to many recipients. Recipients must
// already be validated; duplicates are sent twice.
type BulkRequest struct {
	Recipients []string
	Subject    string
	Body       string
	IsHTML     bool
}

// RecipientResult pairs a recipient with its outcome.
type RecipientResult struct {
	Email  string
	Result SendResult
}

// BulkReport holds one result per recipient, in input order.
type BulkReport struct {
	Results []RecipientResult
}

// Total returns the number of attempted recipients.
func (b *BulkReport) Total() int {
	return len(b.Results)
}

// Succeeded counts successful sends.
func (b *BulkReport) Succeeded() int {
	n := 0
	for _, r := range b.Results {
		if r.Result.Success {
			n++
		}
	}
	return n
}

// AllSucceeded reports whether every recipient was accepted.
func (b *BulkReport) AllSucceeded() bool {
	return b.Succeeded() == b.Total()
}

// Summary returns the "N of M succeeded" line shown to the operator.
func (b *BulkReport) Summary() string {
	return fmt.Sprintf("%d of %d succeeded", b.Succeeded(), b.Total())
}
