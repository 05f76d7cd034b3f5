// Package ui serves the embedded single-page dashboard.
package ui

import (
	"embed"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
)

//go:embed templates/*.html
var templateFS embed.FS

// Handler renders the dashboard page.
type Handler struct {
	templates *template.Template
	logger    *slog.Logger
}

// New parses the embedded templates and returns a Handler.
func New(logger *slog.Logger) (*Handler, error) {
	tmplFS, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, err
	}
	templates, err := template.New("base").ParseFS(tmplFS, "*.html")
	if err != nil {
		return nil, err
	}
	return &Handler{templates: templates, logger: logger}, nil
}

// ServeHTTP serves the dashboard at the root path only.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	data := map[string]any{"Title": "Browser Automation Studio"}
	if err := h.templates.ExecuteTemplate(w, "index.html", data); err != nil {
		h.logger.Error("template render failed", "template", "index.html", "error", err)
		http.Error(w, "template error", http.StatusInternalServerError)
	}
}
