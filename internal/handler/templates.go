package handler

import (
	"fmt"
	"html/template"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// TemplateFuncs returns a FuncMap with custom template functions
func TemplateFuncs() template.FuncMap {
	return template.FuncMap{
		// Math functions
		"add": func(a, b int) int {
			return a + b
		},
		"sub": func(a, b int) int {
			return a - b
		},

		// Date/Time functions
		"year": func() int {
			return time.Now().Year()
		},
		"formatDateTime": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("Jan 2, 2006 3:04 PM")
		},
		"timeAgo": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			now := time.Now()
			diff := now.Sub(t)

			switch {
			case diff < time.Minute:
				return "just now"
			case diff < time.Hour:
				mins := int(diff.Minutes())
				if mins == 1 {
					return "1 minute ago"
				}
				return fmt.Sprintf("%d minutes ago", mins)
			case diff < 24*time.Hour:
				hours := int(diff.Hours())
				if hours == 1 {
					return "1 hour ago"
				}
				return fmt.Sprintf("%d hours ago", hours)
			case diff < 7*24*time.Hour:
				days := int(diff.Hours() / 24)
				if days == 1 {
					return "yesterday"
				}
				return fmt.Sprintf("%d days ago", days)
			case diff < 30*24*time.Hour:
				weeks := int(diff.Hours() / 24 / 7)
				if weeks == 1 {
					return "1 week ago"
				}
				return fmt.Sprintf("%d weeks ago", weeks)
			default:
				return t.Format("Jan 2, 2006")
			}
		},

		// String functions
		"title": func(v interface{}) string {
			s := fmt.Sprint(v)
			return cases.Title(language.English).String(s)
		},
		"truncate": func(s string, length int) string {
			if len(s) <= length {
				return s
			}
			return s[:length] + "..."
		},
		// Conditional/Logic functions
		"default": func(defaultVal, val interface{}) interface{} {
			if val == nil || val == "" || val == 0 {
				return defaultVal
			}
			return val
		},

		// Collection functions
		"pageRange": func(currentPage, totalPages int) []int {
			// Show max 7 page numbers
			maxPages := 7
			if totalPages <= maxPages {
				result := []int{}
				for i := 1; i <= totalPages; i++ {
					result = append(result, i)
				}
				return result
			}

			// Calculate range around current page
			start := currentPage - 3
			end := currentPage + 3

			// Adjust if at beginning
			if start < 1 {
				start = 1
				end = maxPages
			}

			// Adjust if at end
			if end > totalPages {
				end = totalPages
				start = totalPages - maxPages + 1
			}

			result := []int{}
			for i := start; i <= end; i++ {
				result = append(result, i)
			}
			return result
		},

		// Form helpers
		"csrfField": func(token string) template.HTML {
			return template.HTML(fmt.Sprintf(`<input type="hidden" name="csrf_token" value="%s">`, template.HTMLEscapeString(token)))
		},

		// Status/badge helpers for the activity log.
		// These accept interface{} to handle domain.LogStatus and domain.TestType.
		"statusColor": func(status interface{}) string {
			switch fmt.Sprint(status) {
			case "sent":
				return "badge badge-success"
			case "failed":
				return "badge badge-danger"
			default:
				return "badge"
			}
		},
		"typeColor": func(testType interface{}) string {
			switch fmt.Sprint(testType) {
			case "basic":
				return "badge badge-info"
			case "template":
				return "badge badge-accent"
			case "bulk":
				return "badge badge-warning"
			default:
				return "badge"
			}
		},
	}
}
