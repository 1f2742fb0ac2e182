package auth

// Package auth contains simple hand-written test doubles for session ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	domainauth "github.com/target/ledger-console/internal/domain/auth"
	"github.com/target/ledger-console/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.AuthBackend    = (*FakeAuthBackend)(nil)
	_ ports.TokenStore     = (*MemoryTokenStore)(nil)
	_ ports.ActivitySink   = (*MemoryActivitySink)(nil)
	_ ports.ActivityReader = (*MemoryActivitySink)(nil)
	_ ports.Clock          = (*ManualClock)(nil)
)

// FakeAuthBackend is a configurable AuthBackend. Unset funcs return zero
// values; every call is counted.
type FakeAuthBackend struct {
	LoginFunc        func(ctx context.Context, email, password string) (domainauth.Credentials, error)
	RegisterFunc     func(ctx context.Context, in domainauth.RegisterInput) (domainauth.RegistrationResult, error)
	ResolveTokenFunc func(ctx context.Context, token string) (domainauth.User, error)
	RevokeFunc       func(ctx context.Context, token string) error

	mu    sync.Mutex
	calls map[string]int
}

func (f *FakeAuthBackend) count(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[name]++
}

// Calls returns how many times the named method was invoked.
func (f *FakeAuthBackend) Calls(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *FakeAuthBackend) Login(ctx context.Context, email, password string) (domainauth.Credentials, error) {
	f.count("Login")
	if f.LoginFunc != nil {
		return f.LoginFunc(ctx, email, password)
	}
	return domainauth.Credentials{}, nil
}

func (f *FakeAuthBackend) Register(
	ctx context.Context,
	in domainauth.RegisterInput,
) (domainauth.RegistrationResult, error) {
	f.count("Register")
	if f.RegisterFunc != nil {
		return f.RegisterFunc(ctx, in)
	}
	return domainauth.RegistrationResult{}, nil
}

func (f *FakeAuthBackend) ResolveToken(ctx context.Context, token string) (domainauth.User, error) {
	f.count("ResolveToken")
	if f.ResolveTokenFunc != nil {
		return f.ResolveTokenFunc(ctx, token)
	}
	return domainauth.User{}, nil
}

func (f *FakeAuthBackend) Revoke(ctx context.Context, token string) error {
	f.count("Revoke")
	if f.RevokeFunc != nil {
		return f.RevokeFunc(ctx, token)
	}
	return nil
}

// MemoryTokenStore is an in-memory token store for unit tests.
type MemoryTokenStore struct {
	mu     sync.Mutex
	tokens map[string]string
	ttls   map[string]time.Duration
}

// NewMemoryTokenStore creates a new in-memory token store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{
		tokens: make(map[string]string),
		ttls:   make(map[string]time.Duration),
	}
}

func (m *MemoryTokenStore) Load(_ context.Context, consoleID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tok, ok := m.tokens[consoleID]
	if !ok {
		return "", ports.ErrTokenNotFound
	}
	return tok, nil
}

func (m *MemoryTokenStore) Save(_ context.Context, consoleID, token string, ttl time.Duration) error {
	if consoleID == "" {
		return errors.New("console ID cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[consoleID] = token
	m.ttls[consoleID] = ttl
	return nil
}

func (m *MemoryTokenStore) Delete(_ context.Context, consoleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, consoleID)
	delete(m.ttls, consoleID)
	return nil
}

// TTL returns the ttl the token was last saved with.
func (m *MemoryTokenStore) TTL(consoleID string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ttls[consoleID]
}

// MemoryActivitySink records activity in memory.
type MemoryActivitySink struct {
	mu     sync.Mutex
	events []domainauth.ActivityEvent
}

func (m *MemoryActivitySink) Record(_ context.Context, evt domainauth.ActivityEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
	return nil
}

// Events returns a copy of the recorded events in insertion order.
func (m *MemoryActivitySink) Events() []domainauth.ActivityEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domainauth.ActivityEvent(nil), m.events...)
}

// List implements ports.ActivityReader, newest first.
func (m *MemoryActivitySink) List(
	_ context.Context,
	opts domainauth.ActivityListOptions,
) ([]domainauth.ActivityEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domainauth.ActivityEvent, 0, len(m.events))
	for i := len(m.events) - 1; i >= 0; i-- {
		e := m.events[i]
		if opts.Email != "" && e.Email != opts.Email {
			continue
		}
		if opts.Kind != "" && e.Kind != opts.Kind {
			continue
		}
		out = append(out, e)
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out, nil
}

// ManualClock is a ports.Clock whose time only moves on Advance.
type ManualClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer
}

// NewManualClock returns a clock fixed at now.
func NewManualClock(now time.Time) *ManualClock {
	return &ManualClock{now: now}
}

type manualTimer struct {
	clock   *ManualClock
	due     time.Time
	fn      func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) AfterFunc(d time.Duration, f func()) ports.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{clock: c, due: c.now.Add(d), fn: f}
	c.timers = append(c.timers, t)
	return t
}

// Pending returns the number of timers that have neither fired nor stopped.
func (c *ManualClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// Advance moves time forward and runs due timers in due order, synchronously.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*manualTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.due.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].due.Before(due[j].due) })
	for _, t := range due {
		t.fn()
	}
}
