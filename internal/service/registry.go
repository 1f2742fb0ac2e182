package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// ErrRegistryClosed is returned by Registry.Get after Close.
var ErrRegistryClosed = errors.New("console registry closed")

const (
	defaultMaxConsoles    = 10000
	defaultConsoleIdleTTL = 12 * time.Hour
	defaultRestoreTimeout = 10 * time.Second
)

// Console is one application instance: a browser client with its own
// session controller and at most one active registration flow.
type Console struct {
	ID      string
	Session *SessionController

	newFlow func() *RegistrationFlow

	mu   sync.Mutex
	flow *RegistrationFlow
}

// BeginRegistration starts a fresh registration flow, tearing down the
// previous one.
func (c *Console) BeginRegistration() *RegistrationFlow {
	next := c.newFlow()
	c.mu.Lock()
	prev := c.flow
	c.flow = next
	c.mu.Unlock()
	if prev != nil {
		prev.Close()
	}
	return next
}

// Registration returns the active registration flow.
func (c *Console) Registration() (*RegistrationFlow, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flow, c.flow != nil
}

// LeaveRegistration tears down the active flow, cancelling a scheduled
// redirect. It reports whether a redirect was cancelled.
func (c *Console) LeaveRegistration() bool {
	c.mu.Lock()
	flow := c.flow
	c.flow = nil
	c.mu.Unlock()
	if flow == nil {
		return false
	}
	return flow.Close()
}

func (c *Console) close() {
	c.LeaveRegistration()
	c.Session.Close()
}

// RegistryLimits bounds the number and lifetime of console instances.
type RegistryLimits struct {
	MaxConsoles    int
	IdleTTL        time.Duration
	RestoreTimeout time.Duration
}

// RegistryOptions groups dependencies for Registry. Session is the template
// for every console; its ConsoleID is replaced per instance.
type RegistryOptions struct {
	Session      SessionControllerOptions
	Registration RegistrationFlowConfig
	Limits       RegistryLimits
}

// Registry maps console ids to console instances. Instances are created on
// first use, restore their session in the background, and are torn down when
// evicted, removed, or when the registry closes.
type Registry struct {
	session      SessionControllerOptions
	registration RegistrationFlowConfig
	restoreTTL   time.Duration
	logger       *slog.Logger
	metrics      Metrics

	consoles *expirable.LRU[string, *Console]

	mu     sync.Mutex
	closed bool
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRegistry constructs an empty registry.
func NewRegistry(opts RegistryOptions) *Registry {
	if opts.Session.Deps.Backend == nil || opts.Session.Deps.Tokens == nil {
		panic("session dependencies are required")
	}
	limits := opts.Limits
	if limits.MaxConsoles <= 0 {
		limits.MaxConsoles = defaultMaxConsoles
	}
	if limits.IdleTTL <= 0 {
		limits.IdleTTL = defaultConsoleIdleTTL
	}
	if limits.RestoreTimeout <= 0 {
		limits.RestoreTimeout = defaultRestoreTimeout
	}
	logger := opts.Session.Observers.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := opts.Session.Observers.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		session:      opts.Session,
		registration: opts.Registration,
		restoreTTL:   limits.RestoreTimeout,
		logger:       logger.With("component", "console_registry"),
		metrics:      metrics,
		ctx:          ctx,
		cancel:       cancel,
	}
	r.consoles = expirable.NewLRU[string, *Console](limits.MaxConsoles, r.onEvict, limits.IdleTTL)
	return r
}

// onEvict runs under the LRU lock; it must not call back into the LRU.
func (r *Registry) onEvict(id string, c *Console) {
	c.close()
	r.metrics.ConsoleClosed()
	r.logger.Debug("console closed", "console_id", id)
}

// Get returns the console for id, creating it when absent. A new console
// starts restoring its persisted session in the background; created reports
// whether that happened. Every Get refreshes the idle timeout.
func (r *Registry) Get(id string) (*Console, bool, error) {
	if id == "" {
		return nil, false, errors.New("console id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, false, ErrRegistryClosed
	}

	if c, ok := r.consoles.Get(id); ok {
		r.consoles.Add(id, c)
		return c, false, nil
	}

	c := r.newConsole(id)
	r.consoles.Add(id, c)
	r.metrics.ConsoleOpened()
	r.restore(c)
	return c, true, nil
}

// Peek returns an existing console without creating one or refreshing it.
func (r *Registry) Peek(id string) (*Console, bool) {
	return r.consoles.Peek(id)
}

// Remove tears down the console for id.
func (r *Registry) Remove(id string) bool {
	return r.consoles.Remove(id)
}

// Len returns the number of live consoles.
func (r *Registry) Len() int {
	return r.consoles.Len()
}

// Close tears down every console and waits for background restores.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.cancel()
	r.mu.Unlock()

	r.consoles.Purge()
	r.wg.Wait()
}

func (r *Registry) newConsole(id string) *Console {
	opts := r.session
	opts.Config.ConsoleID = id
	controller := NewSessionController(opts)

	flowOpts := RegistrationFlowOptions{
		Session: controller,
		Config:  r.registration,
		Observers: FlowObservers{
			Logger:  r.session.Observers.Logger,
			Metrics: r.session.Observers.Metrics,
		},
	}
	return &Console{
		ID:      id,
		Session: controller,
		newFlow: func() *RegistrationFlow { return NewRegistrationFlow(flowOpts) },
	}
}

// restore runs RestoreSession detached from the creating request.
func (r *Registry) restore(c *Console) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(r.ctx, r.restoreTTL)
		defer cancel()
		if _, err := c.Session.RestoreSession(ctx); err != nil && !errors.Is(err, ErrSuperseded) {
			r.logger.Debug("session restore ended unauthenticated", "console_id", c.ID, "error", err)
		}
	}()
}
