package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/target/ledger-console/config"
	"github.com/target/ledger-console/internal/adapters/reaper"
	"github.com/target/ledger-console/internal/ports"
	"github.com/target/ledger-console/internal/service"
)

// ReaperConfig contains configuration for the activity reaper.
type ReaperConfig struct {
	DB      *sql.DB
	Repo    ports.ActivityPruner // Optional: replaces the database store
	Logger  *slog.Logger
	Config  config.ReaperConfig
	Metrics service.ReaperMetrics
}

// RunReaper starts the activity reaper service.
func RunReaper(ctx context.Context, cfg ReaperConfig) error {
	runner, err := reaper.NewRunner(reaper.RunnerOptions{
		DB:      cfg.DB,
		Repo:    cfg.Repo,
		Config:  cfg.Config,
		Logger:  cfg.Logger,
		Metrics: cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create reaper runner: %w", err)
	}

	return runner.Run(ctx)
}
