// Package render turns a completed pipeline result into standalone HTML
// pages ready for screenshot capture. Default templates are embedded;
// a template directory on disk overrides them.
package render

import (
	"embed"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"sync"
	"time"

	"redcube/internal/logging"
	"redcube/internal/workflow"
)

//go:embed templates/*.tmpl
var defaultTemplates embed.FS

// Renderer writes page and index HTML files for one run. Reload may be
// called concurrently with Render (the template watcher does), so template
// access goes through a lock.
type Renderer struct {
	templateDir string // optional on-disk overrides
	outputDir   string

	mu   sync.RWMutex
	tmpl *template.Template
}

// Manifest lists what a render pass produced.
type Manifest struct {
	IndexPath string
	PagePaths []string
}

type pageData struct {
	Topic      string
	PageNumber int
	PageHTML   template.HTML
	CSSTheme   template.CSS
}

type indexData struct {
	Topic         string
	RunID         string
	Duration      string
	FallbackCount int
	Stages        []workflow.StageOutput
	Pages         []string
}

// NewRenderer loads templates, preferring files in templateDir over the
// embedded defaults. templateDir may be empty.
func NewRenderer(templateDir, outputDir string) (*Renderer, error) {
	r := &Renderer{templateDir: templateDir, outputDir: outputDir}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-parses templates from disk overrides and embedded defaults.
// Safe to call while rendering is idle; the watcher calls this on change.
func (r *Renderer) Reload() error {
	tmpl, err := template.ParseFS(defaultTemplates, "templates/*.tmpl")
	if err != nil {
		return fmt.Errorf("parse embedded templates: %w", err)
	}
	if r.templateDir != "" {
		overrides, globErr := filepath.Glob(filepath.Join(r.templateDir, "*.tmpl"))
		if globErr == nil && len(overrides) > 0 {
			tmpl, err = tmpl.ParseFiles(overrides...)
			if err != nil {
				return fmt.Errorf("parse template overrides: %w", err)
			}
			logging.Render("loaded %d template overrides from %s", len(overrides), r.templateDir)
		}
	}
	r.mu.Lock()
	r.tmpl = tmpl
	r.mu.Unlock()
	return nil
}

// Render writes one HTML file per visual_encoder page plus an index page
// summarizing the run. The visual_encoder contract guarantees html_pages
// and css_theme exist even on fallback, so rendering never sees a missing
// key; unexpected value shapes degrade to empty pages rather than failing
// the run.
func (r *Renderer) Render(result *workflow.Result) (*Manifest, error) {
	if err := os.MkdirAll(r.outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	visual, ok := result.Stage(workflow.StageVisualEncoder)
	if !ok {
		return nil, fmt.Errorf("result has no %s stage", workflow.StageVisualEncoder)
	}

	pages := stringSlice(visual.StructuredData["html_pages"])
	css, _ := visual.StructuredData["css_theme"].(string)

	manifest := &Manifest{}
	for i, page := range pages {
		name := fmt.Sprintf("page_%02d.html", i+1)
		path := filepath.Join(r.outputDir, name)
		if err := r.writeTemplate(path, "page.html.tmpl", pageData{
			Topic:      result.Topic,
			PageNumber: i + 1,
			PageHTML:   template.HTML(page),
			CSSTheme:   template.CSS(css),
		}); err != nil {
			return nil, err
		}
		manifest.PagePaths = append(manifest.PagePaths, path)
	}

	rel := make([]string, len(manifest.PagePaths))
	for i, p := range manifest.PagePaths {
		rel[i] = filepath.Base(p)
	}
	indexPath := filepath.Join(r.outputDir, "index.html")
	if err := r.writeTemplate(indexPath, "index.html.tmpl", indexData{
		Topic:         result.Topic,
		RunID:         result.RunID,
		Duration:      result.Duration.Round(time.Millisecond).String(),
		FallbackCount: result.FallbackCount(),
		Stages:        result.Stages,
		Pages:         rel,
	}); err != nil {
		return nil, err
	}
	manifest.IndexPath = indexPath

	logging.Render("wrote %d pages + index to %s", len(manifest.PagePaths), r.outputDir)
	return manifest, nil
}

func (r *Renderer) writeTemplate(path, name string, data any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	r.mu.RLock()
	tmpl := r.tmpl
	r.mu.RUnlock()
	if err := tmpl.ExecuteTemplate(f, name, data); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}
	return nil
}

// stringSlice coerces the loosely-typed JSON value into a list of page
// fragments. Non-string elements are skipped.
func stringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
