package httpx

import (
	"bytes"
	"encoding/json"
	"errors"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/target/ledger-console/internal/domain/access"
	domainauth "github.com/target/ledger-console/internal/domain/auth"
	"github.com/target/ledger-console/internal/domain/nav"
)

// PageData is what every template receives.
type PageData struct {
	Title            string
	Page             string // content template, e.g. "page-dashboard"
	Snapshot         domainauth.Snapshot
	Nav              []nav.Entry
	CurrentPath      string
	CSRFToken        string
	SidebarCollapsed bool
	Paths            access.Paths
	Data             any
}

// TemplateRenderer renders HTML templates for UI responses.
type TemplateRenderer struct {
	t      *template.Template
	logger *slog.Logger
}

// TemplateRendererConfig holds configuration for creating a TemplateRenderer.
type TemplateRendererConfig struct {
	TemplateFS fs.FS        // Filesystem containing templates (required)
	Logger     *slog.Logger // Logger for template errors (optional)
}

// NewTemplateRenderer parses every template in cfg.TemplateFS.
func NewTemplateRenderer(cfg TemplateRendererConfig) (*TemplateRenderer, error) {
	if cfg.TemplateFS == nil {
		return nil, errors.New("TemplateFS is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	renderer := &TemplateRenderer{logger: logger.With("component", "templates")}
	t, err := template.New("root").Funcs(renderer.funcs()).ParseFS(cfg.TemplateFS,
		"*.tmpl",
		"pages/*.tmpl",
		"partials/*.tmpl",
	)
	if err != nil {
		renderer.logger.Error("template parsing failed", slog.Any("error", err))
		return nil, err
	}
	renderer.t = t
	return renderer, nil
}

// RenderPage writes the full layout, or only the page fragment for htmx requests.
func (r *TemplateRenderer) RenderPage(w http.ResponseWriter, req *http.Request, status int, data PageData) error {
	name := "layout"
	if WantsPartial(req) {
		name = data.Page
	}
	return r.Render(w, status, name, data)
}

// Render executes one named template.
func (r *TemplateRenderer) Render(w http.ResponseWriter, status int, name string, data any) error {
	var buf bytes.Buffer
	if err := r.t.ExecuteTemplate(&buf, name, data); err != nil {
		r.logger.Error("template execution failed", slog.String("template", name), slog.Any("error", err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return err
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		r.logger.Debug("failed to write rendered template", slog.String("template", name), slog.Any("error", err))
		return err
	}
	return nil
}

func (r *TemplateRenderer) funcs() template.FuncMap {
	return template.FuncMap{
		"renderSection": func(name string, data any) (template.HTML, error) {
			var buf bytes.Buffer
			if err := r.t.ExecuteTemplate(&buf, name, data); err != nil {
				return "", err
			}
			// #nosec G203 - produced by our own html/template set; values were escaped during execution.
			return template.HTML(buf.String()), nil
		},
		"isActive": func(current, path string) bool {
			if path == "/" || path == "" {
				return current == path
			}
			return current == path || strings.HasPrefix(current, path+"/")
		},
		"friendlyTime": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.UTC().Format("2006-01-02 15:04:05 UTC")
		},
		"toJSON": func(v any) (string, error) {
			b, err := json.Marshal(v)
			if err != nil {
				return "", err
			}
			return string(b), nil
		},
		"since":    relativeTime,
		"truncate": truncate,
	}
}

// relativeTime describes how long ago t was, switching to a date after a week.
func relativeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return plural(int(d.Minutes()), "minute") + " ago"
	case d < 24*time.Hour:
		return plural(int(d.Hours()), "hour") + " ago"
	case d < 7*24*time.Hour:
		return plural(int(d.Hours()/24), "day") + " ago"
	default:
		return t.Local().Format("Jan 2, 2006 3:04 PM")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return strconv.Itoa(n) + " " + unit + "s"
}

// truncate shortens s to limit runes, marking the cut with an ellipsis.
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	if limit <= 1 {
		return "…"
	}
	return string(runes[:limit-1]) + "…"
}
