package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/ledger-console/config"
)

type stubPruner struct {
	mu      sync.Mutex
	calls   int
	cutoffs []time.Time
	removed int64
	err     error
}

func (p *stubPruner) Prune(_ context.Context, cutoff time.Time) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.cutoffs = append(p.cutoffs, cutoff)
	return p.removed, p.err
}

func (p *stubPruner) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type recordedPrune struct {
	removed int64
	err     error
}

type stubReaperMetrics struct {
	mu   sync.Mutex
	runs []recordedPrune
}

func (m *stubReaperMetrics) ObservePrune(removed int64, err error, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, recordedPrune{removed: removed, err: err})
}

func reaperConfig(interval time.Duration) config.ReaperConfig {
	return config.ReaperConfig{Interval: interval, ActivityMaxAge: 90 * 24 * time.Hour}
}

func TestNewReaperService(t *testing.T) {
	t.Run("requires repo", func(t *testing.T) {
		_, err := NewReaperService(ReaperServiceOptions{Config: reaperConfig(time.Hour)})
		require.Error(t, err)
	})

	t.Run("requires positive interval and max age", func(t *testing.T) {
		_, err := NewReaperService(ReaperServiceOptions{Repo: &stubPruner{}, Config: config.ReaperConfig{ActivityMaxAge: time.Hour}})
		require.Error(t, err)
		_, err = NewReaperService(ReaperServiceOptions{Repo: &stubPruner{}, Config: config.ReaperConfig{Interval: time.Hour}})
		require.Error(t, err)
	})

	t.Run("valid options", func(t *testing.T) {
		svc, err := NewReaperService(ReaperServiceOptions{Repo: &stubPruner{}, Config: reaperConfig(time.Hour)})
		require.NoError(t, err)
		assert.NotNil(t, svc)
	})
}

func TestReaperService_RunOnce(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("prunes before max age cutoff", func(t *testing.T) {
		repo := &stubPruner{removed: 7}
		m := &stubReaperMetrics{}
		svc, err := NewReaperService(ReaperServiceOptions{
			Repo:    repo,
			Config:  reaperConfig(time.Hour),
			Metrics: m,
			Now:     func() time.Time { return now },
		})
		require.NoError(t, err)

		removed, err := svc.RunOnce(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(7), removed)
		require.Len(t, repo.cutoffs, 1)
		assert.Equal(t, now.Add(-90*24*time.Hour), repo.cutoffs[0])
		assert.Equal(t, []recordedPrune{{removed: 7}}, m.runs)
	})

	t.Run("wraps repository errors", func(t *testing.T) {
		boom := errors.New("db down")
		m := &stubReaperMetrics{}
		svc, err := NewReaperService(ReaperServiceOptions{
			Repo:    &stubPruner{err: boom},
			Config:  reaperConfig(time.Hour),
			Metrics: m,
		})
		require.NoError(t, err)

		_, err = svc.RunOnce(context.Background())
		require.ErrorIs(t, err, boom)
		require.Len(t, m.runs, 1)
		assert.ErrorIs(t, m.runs[0].err, boom)
	})

	t.Run("cancellation is not reported as a failure", func(t *testing.T) {
		m := &stubReaperMetrics{}
		svc, err := NewReaperService(ReaperServiceOptions{
			Repo:    &stubPruner{err: context.DeadlineExceeded},
			Config:  reaperConfig(time.Hour),
			Metrics: m,
		})
		require.NoError(t, err)

		_, err = svc.RunOnce(context.Background())
		require.ErrorIs(t, err, context.Canceled)
		require.Len(t, m.runs, 1)
		assert.NoError(t, m.runs[0].err)
	})
}

func TestReaperService_Run(t *testing.T) {
	t.Run("stops on context cancellation", func(t *testing.T) {
		repo := &stubPruner{}
		svc, err := NewReaperService(ReaperServiceOptions{Repo: repo, Config: reaperConfig(100 * time.Millisecond)})
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- svc.Run(ctx) }()

		require.Eventually(t, func() bool { return repo.callCount() >= 1 }, time.Second, 10*time.Millisecond)
		cancel()

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("Run did not stop after context cancellation")
		}
	})

	t.Run("continues running despite cleanup errors", func(t *testing.T) {
		repo := &stubPruner{err: errors.New("test error")}
		svc, err := NewReaperService(ReaperServiceOptions{Repo: repo, Config: reaperConfig(50 * time.Millisecond)})
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
		defer cancel()

		err = svc.Run(ctx)
		require.ErrorIs(t, err, context.DeadlineExceeded)
		assert.GreaterOrEqual(t, repo.callCount(), 2)
	})
}
