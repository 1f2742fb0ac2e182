package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/target/ledger-console/config"
	redisadapter "github.com/target/ledger-console/internal/adapters/redis"
	"github.com/target/ledger-console/internal/data"
	httpx "github.com/target/ledger-console/internal/http"
	"github.com/target/ledger-console/internal/observability/metrics"
	"github.com/target/ledger-console/internal/service"
)

// ObservabilityContainer holds the Prometheus registry and its instruments.
// Registry is nil when metrics are disabled.
type ObservabilityContainer struct {
	Registry *prometheus.Registry
	Auth     *metrics.Auth
	HTTP     *metrics.HTTP
	Reaper   *metrics.Reaper
}

// ServiceContainer holds everything the enabled services run on.
type ServiceContainer struct {
	Consoles      *service.Registry // nil unless the HTTP service is enabled
	Auth          AuthComponents
	Tokens        *redisadapter.TokenStore
	Activity      *data.ActivityRepo // nil without a database
	Observability ObservabilityContainer

	db    *sql.DB
	redis redis.UniversalClient
}

// HealthChecks returns the dependency probes served by the health endpoint.
func (s ServiceContainer) HealthChecks() map[string]httpx.HealthCheck {
	checks := map[string]httpx.HealthCheck{}
	if s.db != nil {
		db := s.db
		checks["postgres"] = func(ctx context.Context) error { return db.PingContext(ctx) }
	}
	if s.redis != nil {
		client := s.redis
		checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	}
	return checks
}

// Close tears down every console instance.
func (s ServiceContainer) Close() {
	if s.Consoles != nil {
		s.Consoles.Close()
	}
}

// ServiceDeps contains the infrastructure NewServices wires together.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB               // Optional: enables the activity log
	RedisClient redis.UniversalClient // Required for the HTTP service
	Logger      *slog.Logger
}

func buildObservability(cfg config.ObservabilityConfig) ObservabilityContainer {
	if !cfg.Metrics.Enabled {
		return ObservabilityContainer{}
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return ObservabilityContainer{
		Registry: reg,
		Auth:     metrics.NewAuth(reg),
		HTTP:     metrics.NewHTTP(reg),
		Reaper:   metrics.NewReaper(reg),
	}
}

// NewServices builds the service container for the enabled services.
func NewServices(ctx context.Context, deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service deps with config are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	container := ServiceContainer{
		Observability: buildObservability(deps.Config.Observability),
		db:            deps.DB,
		redis:         deps.RedisClient,
	}
	if deps.DB != nil {
		container.Activity = data.NewActivityRepo(deps.DB)
	}

	if !deps.Config.IsHTTPServerEnabled() {
		return container, nil
	}
	if deps.RedisClient == nil {
		return ServiceContainer{}, errors.New("redis is required to persist console tokens")
	}

	auth, err := BuildAuth(ctx, AuthDeps{Auth: deps.Config.Auth, IsDev: deps.Config.IsDev, Logger: logger})
	if err != nil {
		return ServiceContainer{}, err
	}
	container.Auth = auth
	container.Tokens = redisadapter.NewTokenStoreWithPrefix(deps.RedisClient, deps.Config.Redis.KeyPrefix)

	registryDeps := RegistryDeps{
		Config: deps.Config,
		Auth:   auth,
		Tokens: container.Tokens,
		Logger: logger,
	}
	if container.Activity != nil {
		registryDeps.Activity = container.Activity
	} else {
		logger.Warn("auth activity log disabled: no database configured")
	}
	if container.Observability.Auth != nil {
		registryDeps.Metrics = container.Observability.Auth
	}
	container.Consoles = BuildRegistry(registryDeps)

	return container, nil
}

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
}

// backgroundService describes a startable background component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

func newReaperBackgroundService(cfg *ServiceOrchestrationConfig, logger *slog.Logger) backgroundService {
	return backgroundService{
		mode: config.ServiceModeReaper,
		name: "reaper",
		start: func(ctx context.Context) error {
			if cfg.Services.Activity == nil {
				return errors.New("reaper requires a database")
			}
			opts := ReaperConfig{
				Repo:   cfg.Services.Activity,
				Logger: logger,
				Config: cfg.Config.Reaper,
			}
			if m := cfg.Services.Observability.Reaper; m != nil {
				opts.Metrics = m
			}
			return RunReaper(ctx, opts)
		},
	}
}

func newHTTPBackgroundService(cfg *ServiceOrchestrationConfig, logger *slog.Logger) backgroundService {
	return backgroundService{
		mode: config.ServiceModeHTTP,
		name: "http server",
		start: func(ctx context.Context) error {
			draining := make(chan struct{})
			handler, err := BuildHTTPHandler(&HTTPServerConfig{
				Config:   cfg.Config,
				Services: cfg.Services,
				Draining: draining,
				Logger:   logger,
			})
			if err != nil {
				return fmt.Errorf("build http handler: %w", err)
			}
			server := NewHTTPServer(cfg.Config.HTTP, handler)
			var once sync.Once
			server.RegisterOnShutdown(func() { once.Do(func() { close(draining) }) })
			return ServeHTTP(ctx, server, cfg.Config.HTTP.ShutdownTimeout, logger)
		},
	}
}

func buildBackgroundServices(cfg *ServiceOrchestrationConfig, logger *slog.Logger) []backgroundService {
	return []backgroundService{
		newHTTPBackgroundService(cfg, logger),
		newReaperBackgroundService(cfg, logger),
	}
}

// RunServicesWithShutdown starts all enabled services and blocks until a
// shutdown signal arrives or one of them fails. A failing service stops the others.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return RunServices(ctx, cfg)
}

// RunServices runs the enabled services until ctx is cancelled or one fails.
func RunServices(ctx context.Context, cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	enabled, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	defer cfg.Services.Close()

	g, gctx := errgroup.WithContext(ctx)
	for _, svc := range buildBackgroundServices(cfg, logger) {
		if !enabled[svc.mode] {
			continue
		}
		g.Go(func() error {
			logger.InfoContext(gctx, "service started", "service", svc.name, "mode", svc.mode)
			if err := svc.start(gctx); err != nil {
				return fmt.Errorf("%s failed: %w", svc.name, err)
			}
			logger.InfoContext(gctx, svc.name+" stopped")
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("service error", "error", err)
		return err
	}
	return nil
}
