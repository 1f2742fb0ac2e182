package bootstrap

import (
	"log/slog"

	"github.com/target/ledger-console/config"
	"github.com/target/ledger-console/internal/ports"
	"github.com/target/ledger-console/internal/service"
)

// RegistryDeps contains the collaborators shared by every console instance.
type RegistryDeps struct {
	Config   *config.AppConfig
	Auth     AuthComponents
	Tokens   ports.TokenStore
	Activity ports.ActivitySink // Optional
	Metrics  service.Metrics    // Optional
	Logger   *slog.Logger
}

// BuildRegistry creates the console registry from configuration.
func BuildRegistry(deps RegistryDeps) *service.Registry {
	appCfg := deps.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}
	c := appCfg.Console

	return service.NewRegistry(service.RegistryOptions{
		Session: service.SessionControllerOptions{
			Deps: service.SessionDeps{
				Backend:  deps.Auth.Backend,
				Tokens:   deps.Tokens,
				Verifier: deps.Auth.Verifier,
			},
			Config: service.SessionConfig{DefaultTokenTTL: c.TokenTTL},
			Observers: service.SessionObservers{
				Logger:   deps.Logger,
				Activity: deps.Activity,
				Metrics:  deps.Metrics,
			},
		},
		Registration: service.RegistrationFlowConfig{
			Paths:        service.RedirectPaths{Login: c.LoginPath, Landing: c.LandingPath},
			PendingDelay: c.PendingRedirectDelay,
		},
		Limits: service.RegistryLimits{
			MaxConsoles:    c.MaxInstances,
			IdleTTL:        c.InstanceTTL,
			RestoreTimeout: appCfg.Auth.Timeout,
		},
	})
}
