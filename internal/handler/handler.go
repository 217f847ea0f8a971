// Package handler contains HTTP handlers for the mailprobe operator UI.
//
// Handlers parse forms, call the service layer, and render html/template
// pages. They never talk to the database or a mail transport directly.
package handler

import (
	"errors"
	"net/http"

	"github.com/DukeRupert/mailprobe/internal/auth"
	"github.com/DukeRupert/mailprobe/internal/csrf"
	"github.com/DukeRupert/mailprobe/internal/domain"
)

// maxFormBytes caps form bodies. Bulk recipient lists are the largest input.
const maxFormBytes = 1 << 20

// TemplateRenderer is the interface for rendering HTML templates.
// This interface allows for mocking in tests.
type TemplateRenderer interface {
	RenderHTTP(w http.ResponseWriter, name string, data interface{})
	RenderHTTPStatus(w http.ResponseWriter, status int, name string, data interface{})
}

// =============================================================================
// Template Data Types
// =============================================================================

// Flash represents a status message shown at the top of a page.
//
// The Type field determines styling in templates:
// - "success" -> green background
// - "error"   -> red background
// - "info"    -> blue background
type Flash struct {
	Type    string
	Message string
}

func successFlash(msg string) *Flash { return &Flash{Type: "success", Message: msg} }
func errorFlash(msg string) *Flash   { return &Flash{Type: "error", Message: msg} }

// PageData contains the fields every app page needs.
type PageData struct {
	CurrentPath string
	CSRFToken   string
	User        *domain.User
	Flash       *Flash
}

func newPageData(r *http.Request) PageData {
	return PageData{
		CurrentPath: r.URL.Path,
		CSRFToken:   csrf.Token(r.Context()),
		User:        auth.GetUser(r.Context()),
	}
}

// fieldErrors extracts per-field messages from a validation error.
// Other errors yield an empty map.
func fieldErrors(err error) map[string]string {
	var ve *domain.ValidationError
	if errors.As(err, &ve) && ve.Fields != nil {
		return ve.Fields
	}
	return map[string]string{}
}

// parseForm limits and parses the request body.
func parseForm(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	return r.ParseForm()
}
