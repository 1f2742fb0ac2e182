package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/target/ledger-console/config"
	"github.com/target/ledger-console/internal/domain/access"
	httpx "github.com/target/ledger-console/internal/http"
)

// HTTPServerConfig contains configuration for HTTP server.
type HTTPServerConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Draining <-chan struct{} // closed when shutdown begins
	Logger   *slog.Logger
}

// BuildHTTPHandler builds the console router from the service container.
func BuildHTTPHandler(cfg *HTTPServerConfig) (http.Handler, error) {
	if cfg == nil {
		return nil, errors.New("http server config is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	appCfg := cfg.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}
	svc := cfg.Services
	if svc.Consoles == nil {
		return nil, errors.New("console registry is required")
	}

	services := httpx.RouterServices{
		Consoles: svc.Consoles,
		Paths: access.Paths{
			Login:    appCfg.Console.LoginPath,
			Register: appCfg.Console.RegisterPath,
			Landing:  appCfg.Console.LandingPath,
		},
		Approvals:    svc.Auth.Approvals,
		Health:       svc.HealthChecks(),
		Timing:       httpx.RouterTiming{Settle: appCfg.Console.SettleBudget},
		CookieDomain: appCfg.HTTP.CookieDomain,
		IsDev:        appCfg.IsDev,
		Draining:     cfg.Draining,
		Logger:       logger,
	}
	if svc.Activity != nil {
		services.Activity = svc.Activity
	}
	if obs := svc.Observability; obs.Registry != nil {
		services.Observability = httpx.RouterObservability{
			HTTP:        obs.HTTP,
			Handler:     promhttp.HandlerFor(obs.Registry, promhttp.HandlerOpts{Registry: obs.Registry}),
			MetricsPath: appCfg.Observability.Metrics.Path,
		}
	}

	return httpx.NewRouter(services)
}

// NewHTTPServer wraps handler in a server configured from cfg. There is no
// write timeout because the session event stream stays open.
func NewHTTPServer(cfg config.HTTPConfig, handler http.Handler) *http.Server {
	addr := cfg.Addr
	// Guard against empty addr to avoid listening on Go default
	if addr == "" {
		addr = ":8080"
	}
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// ServeHTTP runs server until ctx is cancelled, then shuts it down within timeout.
func ServeHTTP(ctx context.Context, server *http.Server, timeout time.Duration, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil {
		return err
	}
	logger.Info("HTTP server stopped")
	return nil
}
