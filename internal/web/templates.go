package web

import (
	"embed"
	"fmt"
	"html/template"
	"io"

	"github.com/jfmyers9/spotlog/internal/daemon"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Templates renders the HTML pages
type Templates struct {
	index *template.Template
}

// NewTemplates parses the embedded page templates
func NewTemplates() (*Templates, error) {
	index, err := template.ParseFS(templatesFS, "templates/index.html")
	if err != nil {
		return nil, fmt.Errorf("parsing index template: %w", err)
	}
	return &Templates{index: index}, nil
}

// PageData is passed to the index page
type PageData struct {
	Flash  string
	Status daemon.Status
}

// RenderIndex writes the status page
func (t *Templates) RenderIndex(w io.Writer, data PageData) error {
	return t.index.Execute(w, data)
}
