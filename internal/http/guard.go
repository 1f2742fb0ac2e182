package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/target/ledger-console/internal/domain/access"
	domainauth "github.com/target/ledger-console/internal/domain/auth"
	"github.com/target/ledger-console/internal/service"
)

// DefaultSettleBudget is how long a guarded request waits for an in-flight
// session restore before the loading placeholder is rendered instead.
const DefaultSettleBudget = 750 * time.Millisecond

// GuardConfig configures Guard.
type GuardConfig struct {
	Chain  access.Chain
	Paths  access.Paths
	Settle time.Duration // 0 disables waiting for a pending restore
	Loader LoadingRenderer
	Logger *slog.Logger
}

// LoadingRenderer writes the placeholder shown while a session is unresolved.
type LoadingRenderer interface {
	Loading(w http.ResponseWriter, r *http.Request)
}

// Guard evaluates the chain against the console's session for every request.
// Allowed requests carry the admitting snapshot in their context. A pending
// session gets the loading placeholder, and a redirect is delivered with
// Navigate. Redirects to the login path carry the requested location as next.
func Guard(cfg GuardConfig) func(http.Handler) http.Handler {
	if len(cfg.Chain) == 0 {
		panic("guard chain is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "guard")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, ok := ConsoleFromContext(r.Context())
			if !ok {
				http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
				return
			}

			snap := awaitSettled(r.Context(), c.Session, cfg.Settle)
			decision, gate := cfg.Chain.Evaluate(snap)
			switch decision.Kind {
			case access.Allow:
				next.ServeHTTP(w, r.WithContext(SetSnapshotInContext(r.Context(), snap)))
			case access.Wait:
				w.Header().Set("Cache-Control", "no-store")
				if cfg.Loader == nil {
					w.Header().Set("Retry-After", "1")
					http.Error(w, "Session loading", http.StatusServiceUnavailable)
					return
				}
				cfg.Loader.Loading(w, r)
			default:
				target := decision.Target
				if target == cfg.Paths.Login && cfg.Paths.Login != "" {
					target = loginURL(cfg.Paths.Login, requestedPath(r))
				}
				logger.DebugContext(r.Context(), "guard redirect",
					"gate", gate,
					"path", r.URL.Path,
					"target", target,
					"console_id", c.ID,
				)
				Navigate(w, r, target)
			}
		})
	}
}

// awaitSettled returns the session snapshot, giving a pending session up to
// budget to resolve first.
func awaitSettled(ctx context.Context, s *service.SessionController, budget time.Duration) domainauth.Snapshot {
	snap := s.Snapshot()
	if !snap.Status.Pending() || budget <= 0 {
		return snap
	}

	settled := make(chan struct{}, 1)
	unsubscribe := s.Subscribe(func(next domainauth.Snapshot) {
		if next.Status.Pending() {
			return
		}
		select {
		case settled <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	// The restore may have finished before the subscription was in place.
	if snap = s.Snapshot(); !snap.Status.Pending() {
		return snap
	}

	timer := time.NewTimer(budget)
	defer timer.Stop()
	select {
	case <-settled:
	case <-timer.C:
	case <-ctx.Done():
	}
	return s.Snapshot()
}

// loginURL appends next to the login path unless it would just return to
// the landing page.
func loginURL(login, next string) string {
	if next == "" || next == "/" || strings.HasPrefix(next, login) {
		return login
	}
	return login + "?next=" + url.QueryEscape(next)
}

// requestedPath is where the user was headed: the page htmx is on for
// fragment requests, otherwise the request URI.
func requestedPath(r *http.Request) string {
	if IsHTMX(r) {
		if current := safeRedirectFromURL(r.Header.Get("Hx-Current-Url")); current != "" {
			return current
		}
	}
	if r.Method != http.MethodGet {
		return ""
	}
	return SafeRedirectPath(r.URL.RequestURI())
}

func safeRedirectFromURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	// Reject scheme-relative or host-only references.
	if u.Host != "" && !u.IsAbs() {
		return ""
	}
	if u.IsAbs() {
		return SafeRedirectPath(u.RequestURI())
	}
	return SafeRedirectPath(raw)
}

// SafeRedirectPath returns candidate when it is a same-origin relative path
// starting with "/", and "/" otherwise.
func SafeRedirectPath(candidate string) string {
	if candidate == "" || strings.HasPrefix(candidate, "//") || strings.Contains(candidate, "\\") {
		return "/"
	}
	u, err := url.Parse(candidate)
	if err != nil || u.IsAbs() || u.Host != "" || !strings.HasPrefix(u.Path, "/") {
		return "/"
	}
	return candidate
}
