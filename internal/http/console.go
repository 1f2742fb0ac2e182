package httpx

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/target/ledger-console/internal/service"
)

// DefaultConsoleCookieName names the cookie identifying a browser client.
const DefaultConsoleCookieName = "console_id"

const consoleCookieMaxAge = 60 * 60 * 24 * 30

// ConsoleRegistry resolves console instances by id.
type ConsoleRegistry interface {
	Get(id string) (*service.Console, bool, error)
}

// ConsoleCookieConfig configures ConsoleCookie.
type ConsoleCookieConfig struct {
	Registry ConsoleRegistry
	Cookie   CookieOptions
	Logger   *slog.Logger
}

// CookieOptions are the attributes shared by the console's own cookies.
type CookieOptions struct {
	Name   string
	Domain string
}

// ConsoleCookie binds every request to a console instance. A browser without
// a valid console_id cookie is issued a fresh one, which starts a new console
// whose session restore runs in the background.
func ConsoleCookie(cfg ConsoleCookieConfig) func(http.Handler) http.Handler {
	if cfg.Registry == nil {
		panic("console registry is required")
	}
	name := cfg.Cookie.Name
	if name == "" {
		name = DefaultConsoleCookieName
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := consoleIDFromRequest(r, name)
			if id == "" {
				id = uuid.NewString()
				setCookie(w, r, &http.Cookie{
					Name:     name,
					Value:    id,
					Domain:   cfg.Cookie.Domain,
					MaxAge:   consoleCookieMaxAge,
					HttpOnly: true,
					SameSite: http.SameSiteLaxMode,
				})
			}

			c, created, err := cfg.Registry.Get(id)
			if err != nil {
				logger.ErrorContext(r.Context(), "console unavailable", "error", err)
				http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
				return
			}
			if created {
				logger.DebugContext(r.Context(), "console opened", "console_id", id)
			}
			next.ServeHTTP(w, r.WithContext(SetConsoleInContext(r.Context(), c)))
		})
	}
}

func consoleIDFromRequest(r *http.Request, name string) string {
	cookie, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	id, err := uuid.Parse(strings.TrimSpace(cookie.Value))
	if err != nil {
		return ""
	}
	return id.String()
}

// setCookie writes a cookie scoped to the whole console, marking it Secure
// when the request arrived over TLS.
func setCookie(w http.ResponseWriter, r *http.Request, c *http.Cookie) {
	c.Path = "/"
	c.Secure = r.TLS != nil || isForwardedHTTPS(r)
	http.SetCookie(w, c)
}

// isForwardedHTTPS checks if the request was forwarded over HTTPS.
// Handles comma-separated values in X-Forwarded-Proto header.
func isForwardedHTTPS(r *http.Request) bool {
	for _, proto := range strings.Split(r.Header.Get("X-Forwarded-Proto"), ",") {
		if strings.EqualFold(strings.TrimSpace(proto), "https") {
			return true
		}
	}
	return false
}
