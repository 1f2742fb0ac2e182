package httpx

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	ledgerconsole "github.com/target/ledger-console"
	"github.com/target/ledger-console/internal/domain/access"
	"github.com/target/ledger-console/internal/domain/nav"
	"github.com/target/ledger-console/internal/ports"
)

// Fixed routes outside the configurable sign-in, registration and landing paths.
const (
	PathLogout         = "/logout"
	PathSession        = "/session"
	PathSessionEvents  = "/session/events"
	PathAdminActivity  = "/admin/activity"
	PathAdminApprovals = "/admin/approvals"
	PathHealth         = "/healthz"
	DefaultMetricsPath = "/metrics"

	registerStatusSuffix  = "/status"
	registerDismissSuffix = "/dismiss"
	compressionLevel      = 5
)

// sectionSummaries describe the business sections served as placeholders.
var sectionSummaries = map[string]string{
	"/transactions":       "Income and expense entries.",
	"/banks":              "Bank accounts and balances.",
	"/categories":         "Transaction categories.",
	"/reports":            "Financial reports.",
	"/reports/monthly":    "Totals per month.",
	"/reports/categories": "Totals per category.",
	"/import":             "Import OFX statements.",
}

// RouterServices holds everything the HTTP router wires together.
type RouterServices struct {
	Consoles  ConsoleRegistry // Required
	Paths     access.Paths
	Tree      []nav.Entry // defaults to nav.DefaultTree()
	Activity  ports.ActivityReader
	Approvals ports.ApprovalQueue
	Health    map[string]HealthCheck

	Observability RouterObservability
	Timing        RouterTiming
	Assets        RouterAssets

	CookieDomain string
	IsDev        bool            // serve templates and static files from disk
	Draining     <-chan struct{} // closed when the server starts shutting down
	Logger       *slog.Logger
}

// RouterObservability groups optional metrics wiring.
type RouterObservability struct {
	HTTP        interface{ Middleware(http.Handler) http.Handler }
	Handler     http.Handler // served at Path when set
	MetricsPath string
}

// RouterTiming tunes the session-facing endpoints.
type RouterTiming struct {
	Settle    time.Duration // guard wait for a pending restore; 0 uses DefaultSettleBudget
	Heartbeat time.Duration // session stream keepalive; 0 uses DefaultHeartbeat
}

// RouterAssets overrides where templates and static files come from.
type RouterAssets struct {
	Templates fs.FS
	Static    fs.FS
}

// NewRouter builds the console's HTTP handler.
func NewRouter(services RouterServices) (http.Handler, error) {
	if services.Consoles == nil {
		return nil, errors.New("console registry is required")
	}
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	paths := withDefaultPaths(services.Paths)
	tree := services.Tree
	if tree == nil {
		tree = nav.DefaultTree()
	}
	settle := services.Timing.Settle
	if settle == 0 {
		settle = DefaultSettleBudget
	}

	templates, static, err := resolveAssets(services.Assets, services.IsDev)
	if err != nil {
		return nil, err
	}
	renderer, err := NewTemplateRenderer(TemplateRendererConfig{TemplateFS: templates, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}

	ui := &UIHandlers{
		T:         renderer,
		Paths:     paths,
		Tree:      tree,
		Activity:  services.Activity,
		Approvals: services.Approvals,
		Logger:    logger.With("component", "ui"),
	}
	auth := &AuthHandlers{T: renderer, Paths: paths, Settle: settle, Logger: logger.With("component", "auth_http")}
	sessions := &SessionHandlers{Heartbeat: services.Timing.Heartbeat, Draining: services.Draining, Logger: logger}
	health := &HealthHandlers{Checks: services.Health}

	console := ConsoleCookie(ConsoleCookieConfig{
		Registry: services.Consoles,
		Cookie:   CookieOptions{Domain: services.CookieDomain},
		Logger:   logger,
	})
	csrf := CSRFProtection(CookieOptions{Domain: services.CookieDomain})
	guard := func(chain access.Chain) func(http.Handler) http.Handler {
		return Guard(GuardConfig{Chain: chain, Paths: paths, Settle: settle, Loader: ui, Logger: logger})
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, Recover(logger), Logging(logger))
	if services.Observability.HTTP != nil {
		r.Use(services.Observability.HTTP.Middleware)
	}
	r.Use(middleware.Compress(compressionLevel))

	r.Get(PathHealth, health.Healthz)
	r.Head(PathHealth, health.Healthz)
	if services.Observability.Handler != nil {
		metricsPath := services.Observability.MetricsPath
		if metricsPath == "" {
			metricsPath = DefaultMetricsPath
		}
		r.Method(http.MethodGet, metricsPath, services.Observability.Handler)
	}
	r.Handle("/static/*", staticHandler(static, services.IsDev))

	r.Group(func(r chi.Router) {
		r.Use(csrf, console, NoStore)

		r.With(LeaveRegistrationOnNavigate).Get(paths.Login, auth.LoginPage)
		r.Post(paths.Login, auth.LoginSubmit)
		r.Get(paths.Register, auth.RegisterPage)
		r.Post(paths.Register, auth.RegisterSubmit)
		r.Get(paths.Register+registerStatusSuffix, auth.RegisterStatus)
		r.Post(paths.Register+registerDismissSuffix, auth.RegisterDismiss)
		r.Post(PathLogout, auth.Logout)
		r.Get(PathSession, sessions.Session)
		r.Get(PathSessionEvents, sessions.Events)

		r.Group(func(r chi.Router) {
			r.Use(LeaveRegistrationOnNavigate, guard(access.Authenticated(paths)))
			r.Get(paths.Landing, ui.Dashboard)
			for _, path := range sectionPaths(tree, paths.Landing) {
				r.Get(path, ui.Section(sectionSummaries[path]))
			}
		})

		r.Group(func(r chi.Router) {
			r.Use(LeaveRegistrationOnNavigate, guard(access.AdminOnly(paths)))
			r.Get(PathAdminActivity, ui.AdminActivity)
			r.Get(PathAdminApprovals, ui.AdminApprovals)
			r.Post(PathAdminApprovals+"/approve", ui.AdminApprove)
		})

		r.NotFound(ui.NotFound)
	})

	return r, nil
}

func withDefaultPaths(p access.Paths) access.Paths {
	if p.Login == "" {
		p.Login = "/login"
	}
	if p.Register == "" {
		p.Register = "/register"
	}
	if p.Landing == "" {
		p.Landing = "/"
	}
	return p
}

// sectionPaths lists the menu paths served as sections: everything except
// the landing page and the admin area, which have their own handlers.
func sectionPaths(tree []nav.Entry, landing string) []string {
	var out []string
	var walk func([]nav.Entry)
	walk = func(entries []nav.Entry) {
		for _, e := range entries {
			if e.Path != "" && e.Path != landing && !strings.HasPrefix(e.Path, "/admin") {
				out = append(out, e.Path)
			}
			walk(e.Submenu)
		}
	}
	walk(tree)
	return out
}

// resolveAssets picks the template and static filesystems: explicit
// overrides first, then the working tree in dev mode, then the embedded copy.
func resolveAssets(a RouterAssets, isDev bool) (fs.FS, fs.FS, error) {
	templates, static := a.Templates, a.Static
	if isDev {
		if templates == nil {
			templates = os.DirFS("frontend/templates")
		}
		if static == nil {
			static = os.DirFS("frontend/static")
		}
		return templates, static, nil
	}

	var err error
	if templates == nil {
		if templates, err = fs.Sub(ledgerconsole.TemplateFS, "frontend/templates"); err != nil {
			return nil, nil, fmt.Errorf("embedded templates: %w", err)
		}
	}
	if static == nil {
		if static, err = fs.Sub(ledgerconsole.StaticFS, "frontend/static"); err != nil {
			return nil, nil, fmt.Errorf("embedded static assets: %w", err)
		}
	}
	return templates, static, nil
}

// staticHandler serves /static/*. Embedded assets are cached briefly; disk
// assets in dev mode are never cached.
func staticHandler(static fs.FS, isDev bool) http.Handler {
	files := http.StripPrefix("/static/", http.FileServer(http.FS(static)))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isDev {
			w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		} else {
			w.Header().Set("Cache-Control", "public, max-age=3600")
		}
		files.ServeHTTP(w, r)
	})
}
