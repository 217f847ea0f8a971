package handler

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path"
	"strings"
	"sync"
)

// Renderer manages template parsing and rendering with isolated template sets.
// It supports two layouts:
//   - "auth" layout for the login page
//   - "app" layout for authenticated pages (dashboard, send forms, logs, settings)
//
// Templates are organized as:
//   - layouts/auth.html, layouts/app.html - base layouts
//   - partials/*.html - shared fragments (flash, pagination, send results)
//   - pages/auth/*.html - auth pages (use auth layout)
//   - pages/*.html - app pages (use app layout)
//   - pages/<dir>/*.html - nested app pages, stored as "<dir>/<name>"
type Renderer struct {
	templates map[string]*template.Template
	fsys      fs.FS
	logger    *slog.Logger
	isDev     bool
	mu        sync.RWMutex
}

// RendererConfig holds configuration for the renderer.
type RendererConfig struct {
	// FS is the template tree, normally web.Templates().
	FS fs.FS

	// TemplatesDir, when set in development, reads templates from disk
	// instead of FS and reparses them on every render.
	TemplatesDir string

	Logger *slog.Logger
	IsDev  bool
}

// NewRenderer creates a new template renderer.
func NewRenderer(cfg RendererConfig) (*Renderer, error) {
	fsys := cfg.FS
	if cfg.IsDev && cfg.TemplatesDir != "" {
		fsys = os.DirFS(cfg.TemplatesDir)
	}
	if fsys == nil {
		return nil, errors.New("renderer: no template source configured")
	}

	r := &Renderer{
		templates: make(map[string]*template.Template),
		fsys:      fsys,
		logger:    cfg.Logger,
		isDev:     cfg.IsDev && cfg.TemplatesDir != "",
	}

	if err := r.loadTemplates(); err != nil {
		return nil, err
	}

	return r, nil
}

func (r *Renderer) loadTemplates() error {
	templates, err := parseTemplates(r.fsys)
	if err != nil {
		return err
	}
	r.templates = templates
	r.logger.Debug("templates loaded", "count", len(templates))
	return nil
}

// parseTemplates builds one isolated template set per page so that pages can
// each define "content" and "title" without colliding.
func parseTemplates(fsys fs.FS) (map[string]*template.Template, error) {
	templates := make(map[string]*template.Template)

	partialFiles, err := fs.Glob(fsys, "partials/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to glob partials: %w", err)
	}

	authBaseTmpl, err := parseLayout(fsys, "auth", partialFiles)
	if err != nil {
		return nil, err
	}
	appBaseTmpl, err := parseLayout(fsys, "app", partialFiles)
	if err != nil {
		return nil, err
	}

	// Auth pages (login)
	if err := parsePages(fsys, authBaseTmpl, "pages/auth/*.html", "auth/", templates); err != nil {
		return nil, err
	}

	// Root level app pages (dashboard, logs, settings)
	if err := parsePages(fsys, appBaseTmpl, "pages/*.html", "", templates); err != nil {
		return nil, err
	}

	// Nested app pages (send/basic, templates/preview, ...)
	entries, err := fs.ReadDir(fsys, "pages")
	if err != nil {
		return nil, fmt.Errorf("failed to read pages dir: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == "auth" {
			continue
		}
		dir := entry.Name()
		if err := parsePages(fsys, appBaseTmpl, path.Join("pages", dir, "*.html"), dir+"/", templates); err != nil {
			return nil, err
		}
	}

	return templates, nil
}

func parseLayout(fsys fs.FS, name string, partialFiles []string) (*template.Template, error) {
	layoutPath := path.Join("layouts", name+".html")
	tmpl, err := template.New(name).Funcs(TemplateFuncs()).ParseFS(fsys, layoutPath)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s layout: %w", name, err)
	}

	// Parse partials into the layout so pages can use {{template "flash" .}}
	if len(partialFiles) > 0 {
		tmpl, err = tmpl.ParseFS(fsys, partialFiles...)
		if err != nil {
			return nil, fmt.Errorf("failed to parse partials into %s layout: %w", name, err)
		}
	}
	return tmpl, nil
}

func parsePages(fsys fs.FS, base *template.Template, pattern, prefix string, into map[string]*template.Template) error {
	pages, err := fs.Glob(fsys, pattern)
	if err != nil {
		return fmt.Errorf("failed to glob %s: %w", pattern, err)
	}

	for _, page := range pages {
		pageTmpl, err := base.Clone()
		if err != nil {
			return fmt.Errorf("failed to clone layout for %s: %w", page, err)
		}

		pageTmpl, err = pageTmpl.ParseFS(fsys, page)
		if err != nil {
			return fmt.Errorf("failed to parse page %s: %w", page, err)
		}

		// Store as "auth/login", "dashboard", "send/bulk", etc.
		pageName := strings.TrimSuffix(path.Base(page), path.Ext(page))
		into[prefix+pageName] = pageTmpl
	}
	return nil
}

// Reload reparses all templates. Useful for development.
func (r *Renderer) Reload() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.loadTemplates()
}

// Render renders a template to an io.Writer.
func (r *Renderer) Render(w io.Writer, name string, data interface{}) error {
	// In dev mode, reload templates on each request
	if r.isDev {
		if err := r.Reload(); err != nil {
			return fmt.Errorf("template reload failed: %w", err)
		}
	}

	r.mu.RLock()
	tmpl, ok := r.templates[name]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("template %q not found", name)
	}

	return tmpl.ExecuteTemplate(w, baseTemplateName(name), data)
}

// RenderHTTP renders a template directly to an http.ResponseWriter with 200 OK.
func (r *Renderer) RenderHTTP(w http.ResponseWriter, name string, data interface{}) {
	r.RenderHTTPStatus(w, http.StatusOK, name, data)
}

// RenderHTTPStatus renders a template with the given status code. Rendering
// happens into a buffer first so a template error still produces a clean 500.
func (r *Renderer) RenderHTTPStatus(w http.ResponseWriter, status int, name string, data interface{}) {
	var buf bytes.Buffer
	if err := r.Render(&buf, name, data); err != nil {
		r.logger.Error("template execution failed", "name", name, "error", err)
		http.Error(w, "Template execution failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// baseTemplateName determines which layout to execute.
func baseTemplateName(name string) string {
	if strings.HasPrefix(name, "auth/") {
		return "auth"
	}
	return "app"
}

// ListTemplates returns a list of all loaded template names.
// Useful for debugging.
func (r *Renderer) ListTemplates() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.templates))
	for name := range r.templates {
		names = append(names, name)
	}
	return names
}
