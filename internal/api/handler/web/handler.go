// internal/api/handler/web/handler.go
package web

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"os"
	"time"

	"github.com/newthinker/scalper/internal/core"
	"github.com/newthinker/scalper/internal/session"
)

//go:embed templates/*
var templateFS embed.FS

// pages are rendered inside layout.html. Partials are rendered on their own.
var (
	pages    = []string{"dashboard.html", "history.html"}
	partials = []string{"live.html"}
)

// Controller defines the controls needed from app.App.
type Controller interface {
	SelectPair(label string) (core.Pair, error)
	SetInterval(d time.Duration) error
	Interval() time.Duration
}

// Handler provides web UI handlers with template rendering
type Handler struct {
	// pageTemplates holds separate template instances for each page
	// Each instance contains layout.html + live.html + the specific page template
	pageTemplates map[string]*template.Template
	sess          *session.Session
	ctrl          Controller
}

// NewHandler creates a new web handler with templates loaded from the given directory.
// If templatesDir is empty, it falls back to embedded templates.
func NewHandler(templatesDir string, sess *session.Session, ctrl Controller) (*Handler, error) {
	var fsys fs.FS
	if templatesDir != "" {
		fsys = os.DirFS(templatesDir)
	} else {
		fsys = TemplateFS()
	}

	h, err := NewHandlerWithFS(fsys)
	if err != nil {
		return nil, err
	}
	h.sess = sess
	h.ctrl = ctrl
	return h, nil
}

// NewHandlerWithFS creates a new web handler using a custom filesystem.
// This is useful for testing or custom template sources.
func NewHandlerWithFS(fsys fs.FS) (*Handler, error) {
	pageTemplates := make(map[string]*template.Template)

	for _, page := range pages {
		tmpl, err := template.New(page).Funcs(funcs).ParseFS(fsys, "layout.html", "live.html", page)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", page, err)
		}
		pageTemplates[page] = tmpl
	}
	for _, partial := range partials {
		tmpl, err := template.New(partial).Funcs(funcs).ParseFS(fsys, partial)
		if err != nil {
			return nil, fmt.Errorf("parsing partial %s: %w", partial, err)
		}
		pageTemplates[partial] = tmpl
	}

	return &Handler{pageTemplates: pageTemplates}, nil
}

// render executes the specified page template with the given data
func (h *Handler) render(w http.ResponseWriter, page string, data any) {
	h.execute(w, page, "layout.html", data)
}

// renderPartial executes the fragment a partial file defines
func (h *Handler) renderPartial(w http.ResponseWriter, partial, name string, data any) {
	h.execute(w, partial, name, data)
}

func (h *Handler) execute(w http.ResponseWriter, key, name string, data any) {
	tmpl, ok := h.pageTemplates[key]
	if !ok {
		http.Error(w, "template not found: "+key, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, name, data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// TemplateFS returns the embedded template filesystem for external use.
func TemplateFS() fs.FS {
	subFS, err := fs.Sub(templateFS, "templates")
	if err != nil {
		// This should never happen with valid embed directive
		return templateFS
	}
	return subFS
}
