package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// AuthMode represents the authentication backend the console talks to.
type AuthMode string

const (
	// AuthModeRemote uses the external backend authentication API.
	AuthModeRemote AuthMode = "remote"
	// AuthModeDev uses the in-process dev backend (for development only).
	AuthModeDev AuthMode = "dev"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "remote", "dev":
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: remote, dev)", v)
	}
}

// RemoteAuthConfig configures the backend authentication API client.
type RemoteAuthConfig struct {
	// BaseURL is the backend auth API root, e.g. https://api.example.com/auth.
	BaseURL string `env:"API_URL"`

	// JWKSURL enables signature verification of persisted tokens before
	// they are resolved. Issuer alone triggers OIDC discovery.
	JWKSURL  string `env:"JWKS_URL"`
	Issuer   string `env:"ISSUER"`
	Audience string `env:"AUDIENCE"`

	// RequireJWT rejects opaque persisted tokens locally.
	RequireJWT bool `env:"REQUIRE_JWT" envDefault:"false"`

	// JMESPath expressions mapping the backend's user JSON.
	UserIDExpr      string `env:"USER_ID_EXPR"       envDefault:"id"`
	UserNameExpr    string `env:"USER_NAME_EXPR"     envDefault:"name"`
	UserEmailExpr   string `env:"USER_EMAIL_EXPR"    envDefault:"email"`
	UserIsAdminExpr string `env:"USER_IS_ADMIN_EXPR" envDefault:"is_admin"`
}

// DevAuthConfig controls the in-process dev backend.
// Used when AUTH_MODE=dev for development and testing.
type DevAuthConfig struct {
	// Users seeds accounts as "email:bcrypt-hash[:admin]" entries separated by commas.
	Users string `env:"USERS"`

	// Approval is auto (register signs in) or manual (admin approves).
	Approval string `env:"APPROVAL" envDefault:"auto"`

	// SigningKey signs dev tokens. A random key is generated in dev mode
	// when empty, which invalidates tokens on restart.
	SigningKey string `env:"SIGNING_KEY"`

	TokenTTL time.Duration `env:"TOKEN_TTL" envDefault:"8h"`
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// Mode determines which authentication backend to use.
	Mode AuthMode `env:"AUTH_MODE" envDefault:"remote"`

	// Timeout bounds every backend round trip, including background restores.
	Timeout time.Duration `env:"AUTH_TIMEOUT" envDefault:"10s"`

	// Remote configuration (used when Mode=remote).
	Remote RemoteAuthConfig `envPrefix:"AUTH_"`

	// Dev configuration (used when Mode=dev).
	Dev DevAuthConfig `envPrefix:"DEV_AUTH_"`
}

// Sanitize trims values and applies minimums.
func (a *AuthConfig) Sanitize() {
	if a.Timeout <= 0 {
		a.Timeout = 10 * time.Second
	}
	a.Remote.BaseURL = strings.TrimRight(strings.TrimSpace(a.Remote.BaseURL), "/")
	a.Remote.JWKSURL = strings.TrimSpace(a.Remote.JWKSURL)
	a.Remote.Issuer = strings.TrimSpace(a.Remote.Issuer)
	a.Dev.Approval = strings.ToLower(strings.TrimSpace(a.Dev.Approval))
	if a.Dev.TokenTTL <= 0 {
		a.Dev.TokenTTL = 8 * time.Hour
	}
}

// Validate rejects unusable backend settings.
func (a *AuthConfig) Validate(isDev bool) error {
	switch a.Mode {
	case AuthModeRemote:
		if a.Remote.BaseURL == "" {
			return errors.New("AUTH_API_URL is required when AUTH_MODE=remote")
		}
		u, err := url.Parse(a.Remote.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("AUTH_API_URL must be an absolute http(s) URL, got %q", a.Remote.BaseURL)
		}
		if a.Remote.JWKSURL != "" && a.Remote.Issuer == "" {
			return errors.New("AUTH_ISSUER is required when AUTH_JWKS_URL is set")
		}
	case AuthModeDev:
		switch a.Dev.Approval {
		case "auto", "manual":
		default:
			return fmt.Errorf("invalid DEV_AUTH_APPROVAL %q (valid options: auto, manual)", a.Dev.Approval)
		}
		if a.Dev.SigningKey == "" && !isDev {
			return errors.New("DEV_AUTH_SIGNING_KEY is required outside development mode")
		}
		if a.Dev.SigningKey != "" && len(a.Dev.SigningKey) < 16 {
			return errors.New("DEV_AUTH_SIGNING_KEY must be at least 16 bytes")
		}
	default:
		return fmt.Errorf("invalid AUTH_MODE %q", a.Mode)
	}
	return nil
}
