package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ConsoleConfig controls the console's routes, registration redirect and
// the per-browser console instances. All variables carry the CONSOLE_ prefix.
type ConsoleConfig struct {
	LoginPath    string `env:"LOGIN_PATH"    envDefault:"/login"`
	RegisterPath string `env:"REGISTER_PATH" envDefault:"/register"`
	LandingPath  string `env:"LANDING_PATH"  envDefault:"/"`

	// PendingRedirectDelay is how long the pending-approval message stays
	// before the redirect to the login path.
	PendingRedirectDelay time.Duration `env:"PENDING_REDIRECT_DELAY" envDefault:"5s"`

	// TokenTTL is the persisted token lifetime when the backend reports no expiry.
	TokenTTL time.Duration `env:"TOKEN_TTL" envDefault:"12h"`

	// MaxInstances bounds the console instances held in memory.
	MaxInstances int `env:"MAX_INSTANCES" envDefault:"10000"`

	// InstanceTTL tears down a console instance after this much idle time.
	InstanceTTL time.Duration `env:"INSTANCE_TTL" envDefault:"30m"`

	// SettleBudget is how long a guarded request waits for a pending restore.
	SettleBudget time.Duration `env:"SETTLE_BUDGET" envDefault:"750ms"`
}

// Sanitize applies guardrails to console configuration values.
func (c *ConsoleConfig) Sanitize() {
	c.LoginPath = strings.TrimSpace(c.LoginPath)
	c.RegisterPath = strings.TrimSpace(c.RegisterPath)
	c.LandingPath = strings.TrimSpace(c.LandingPath)
	if c.PendingRedirectDelay <= 0 {
		c.PendingRedirectDelay = 5 * time.Second
	}
	if c.TokenTTL < time.Minute {
		c.TokenTTL = time.Minute
	}
	if c.MaxInstances < 1 {
		c.MaxInstances = 1
	}
	if c.InstanceTTL < time.Minute {
		c.InstanceTTL = time.Minute
	}
	if c.SettleBudget < 0 {
		c.SettleBudget = 0
	}
}

// Validate checks the paths are distinct absolute paths.
func (c *ConsoleConfig) Validate() error {
	paths := map[string]string{
		"CONSOLE_LOGIN_PATH":    c.LoginPath,
		"CONSOLE_REGISTER_PATH": c.RegisterPath,
		"CONSOLE_LANDING_PATH":  c.LandingPath,
	}
	var errs []error
	for name, p := range paths {
		if !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") {
			errs = append(errs, fmt.Errorf("%s must be an absolute path, got %q", name, p))
		}
	}
	if c.LoginPath == c.RegisterPath || c.LoginPath == c.LandingPath || c.RegisterPath == c.LandingPath {
		errs = append(errs, errors.New("console login, register and landing paths must differ"))
	}
	return errors.Join(errs...)
}
