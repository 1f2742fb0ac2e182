package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/ledger-console/config"
	"github.com/target/ledger-console/internal/ports"
)

// ReaperMetrics receives the outcome of each retention run.
type ReaperMetrics interface {
	ObservePrune(removed int64, err error, elapsed time.Duration)
}

// ReaperServiceOptions groups dependencies for ReaperService.
type ReaperServiceOptions struct {
	Repo    ports.ActivityPruner // Required: activity store
	Config  config.ReaperConfig  // Required: reaper configuration
	Logger  *slog.Logger         // Optional: structured logger
	Metrics ReaperMetrics        // Optional
	Now     func() time.Time     // Optional: defaults to time.Now
}

// ReaperService enforces auth activity retention: on every tick it deletes
// activity older than the configured max age.
type ReaperService struct {
	repo    ports.ActivityPruner
	config  config.ReaperConfig
	logger  *slog.Logger
	metrics ReaperMetrics
	now     func() time.Time
}

// NewReaperService constructs a new ReaperService.
func NewReaperService(opts ReaperServiceOptions) (*ReaperService, error) {
	if opts.Repo == nil {
		return nil, errors.New("activity pruner is required")
	}
	if opts.Config.Interval <= 0 {
		return nil, errors.New("reaper interval must be positive")
	}
	if opts.Config.ActivityMaxAge <= 0 {
		return nil, errors.New("activity max age must be positive")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "reaper_service")
		logger.Debug("ReaperService initialized",
			"interval", opts.Config.Interval,
			"activity_max_age", opts.Config.ActivityMaxAge,
		)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &ReaperService{
		repo:    opts.Repo,
		config:  opts.Config,
		logger:  logger,
		metrics: opts.Metrics,
		now:     now,
	}, nil
}

// Run starts the reaper loop and runs until the context is cancelled.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (s *ReaperService) Run(ctx context.Context) error {
	if s.logger != nil {
		s.logger.InfoContext(ctx, "starting reaper service", "interval", s.config.Interval)
	}

	// Add jitter to prevent thundering herd if multiple instances start together
	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if _, err := s.RunOnce(ctx); err != nil {
		s.logCleanupError(err, "initial cleanup")
	}

	return s.runLoop(ctx, ticker)
}

// waitWithJitter adds a random delay up to 10% of the interval.
func (s *ReaperService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// If crypto/rand fails, skip jitter rather than failing startup
		if s.logger != nil {
			s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		}
		return
	}

	jitterNanos := binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)
	jitter := time.Duration(int64(jitterNanos)) // #nosec G115 - bounded by maxJitter which is int64

	t := time.NewTimer(jitter)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func (s *ReaperService) runLoop(ctx context.Context, ticker *time.Ticker) error {
	for {
		select {
		case <-ctx.Done():
			if s.logger != nil {
				s.logger.InfoContext(ctx, "reaper service stopping", "reason", ctx.Err())
			}
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logCleanupError(err, "cleanup")
			}
		}
	}
}

// RunOnce deletes activity older than the max age and reports how many rows went.
func (s *ReaperService) RunOnce(ctx context.Context) (int64, error) {
	start := time.Now()
	cutoff := s.now().Add(-s.config.ActivityMaxAge)

	removed, err := s.repo.Prune(ctx, cutoff)
	if s.metrics != nil {
		s.metrics.ObservePrune(removed, suppressContextCancellation(err), time.Since(start))
	}
	if err != nil {
		if isContextCancellation(err) {
			return removed, context.Canceled
		}
		return removed, fmt.Errorf("prune activity: %w", err)
	}

	if removed > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "pruned auth activity",
			"count", removed,
			"cutoff", cutoff,
			"max_age", s.config.ActivityMaxAge,
		)
	}
	return removed, nil
}

func (s *ReaperService) logCleanupError(err error, label string) {
	if err == nil || s.logger == nil {
		return
	}

	if isContextCancellation(err) {
		s.logger.Debug(label+" cancelled by context", "error", err)
		return
	}

	s.logger.Error(label+" failed", "error", err)
}

func isContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func suppressContextCancellation(err error) error {
	if isContextCancellation(err) {
		return nil
	}
	return err
}
