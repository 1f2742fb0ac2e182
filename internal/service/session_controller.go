package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	domainauth "github.com/target/ledger-console/internal/domain/auth"
	apperrors "github.com/target/ledger-console/internal/errors"
	"github.com/target/ledger-console/internal/ports"
)

// ErrSuperseded is returned when an operation resolved after a newer
// operation had already settled the session; its result was discarded.
var ErrSuperseded = errors.New("session operation superseded")

// SessionDeps groups the collaborators a SessionController calls.
type SessionDeps struct {
	Backend  ports.AuthBackend   // Required
	Tokens   ports.TokenStore    // Required
	Verifier ports.TokenVerifier // Optional: local checks before ResolveToken
}

// SessionConfig configures one controller.
type SessionConfig struct {
	ConsoleID       string
	DefaultTokenTTL time.Duration // used when credentials carry no expiry
	Clock           ports.Clock   // defaults to SystemClock
}

// SessionObservers groups optional logging, activity and metrics sinks.
type SessionObservers struct {
	Logger   *slog.Logger
	Activity ports.ActivitySink
	Metrics  Metrics
}

// SessionControllerOptions groups dependencies for SessionController.
type SessionControllerOptions struct {
	Deps      SessionDeps
	Config    SessionConfig
	Observers SessionObservers
}

// SessionController owns the Session of one console instance. Every
// transition happens under its lock; consumers read Snapshots and may
// subscribe to changes.
//
// Login and Register are last-resolved-wins: whichever resolves last is what
// the Session reflects. Logout supersedes every operation that started before
// it. A restore is discarded when a login, register or logout settled the
// session while it was in flight.
type SessionController struct {
	backend   ports.AuthBackend
	tokens    ports.TokenStore
	verifier  ports.TokenVerifier
	clock     ports.Clock
	consoleID string
	tokenTTL  time.Duration
	logger    *slog.Logger
	activity  ports.ActivitySink
	metrics   Metrics

	mu        sync.Mutex
	session   domainauth.Session
	lastErr   string
	inFlight  int
	version   uint64
	epoch     uint64 // bumped by Logout
	applied   uint64 // bumped when login or register authenticates
	identity  uint64 // bumped whenever the persisted token must change
	restoring bool
	subs      map[uint64]*subscriber
	nextSub   uint64
	closed    bool

	// persistMu orders token store writes so the last identity wins.
	persistMu sync.Mutex
}

type subscriber struct {
	fn   func(domainauth.Snapshot)
	mu   sync.Mutex
	last uint64
}

// deliver drops snapshots older than one already delivered.
func (s *subscriber) deliver(snap domainauth.Snapshot) {
	s.mu.Lock()
	if snap.Version <= s.last {
		s.mu.Unlock()
		return
	}
	s.last = snap.Version
	s.mu.Unlock()
	s.fn(snap)
}

// NewSessionController constructs a controller in the Uninitialized state.
func NewSessionController(opts SessionControllerOptions) *SessionController {
	if opts.Deps.Backend == nil {
		panic("AuthBackend is required")
	}
	if opts.Deps.Tokens == nil {
		panic("TokenStore is required")
	}

	clock := opts.Config.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	logger := opts.Observers.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := opts.Observers.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}

	return &SessionController{
		backend:   opts.Deps.Backend,
		tokens:    opts.Deps.Tokens,
		verifier:  opts.Deps.Verifier,
		clock:     clock,
		consoleID: opts.Config.ConsoleID,
		tokenTTL:  opts.Config.DefaultTokenTTL,
		logger:    logger.With("component", "session", "console_id", opts.Config.ConsoleID),
		activity:  opts.Observers.Activity,
		metrics:   metrics,
		session:   domainauth.NewSession(),
		subs:      make(map[uint64]*subscriber),
	}
}

// ConsoleID returns the console instance this controller belongs to.
func (c *SessionController) ConsoleID() string { return c.consoleID }

// Snapshot returns a read-only copy of the current session state.
func (c *SessionController) Snapshot() domainauth.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Subscribe registers fn to receive every subsequent snapshot. fn runs on the
// goroutine that changed the session, outside the controller lock, and must
// not block.
func (c *SessionController) Subscribe(fn func(domainauth.Snapshot)) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = &subscriber{fn: fn, last: c.version}
	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// Close tears the controller down. Subscribers are dropped and later changes
// notify nobody. The persisted token is left in place.
func (c *SessionController) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.subs = nil
}

// Login exchanges credentials for an authenticated session. A rejected pair
// fails with InvalidCredentials and a transport failure with Network; the
// session is left unchanged and the error message is recorded in the snapshot.
func (c *SessionController) Login(ctx context.Context, email, password string) (domainauth.Snapshot, error) {
	start := c.clock.Now()
	epoch := c.begin()

	creds, err := c.backend.Login(ctx, email, password)
	if err == nil && creds.Token == "" {
		err = apperrors.Internalf("backend returned no token")
	}
	if err != nil {
		snap := c.fail(epoch, err)
		c.record(ctx, domainauth.ActivityLogin, email, err, start)
		return snap, fmt.Errorf("login: %w", err)
	}

	snap, err := c.authenticate(ctx, epoch, creds)
	c.record(ctx, domainauth.ActivityLogin, email, err, start)
	if err != nil {
		return snap, fmt.Errorf("login: %w", err)
	}
	c.logger.InfoContext(ctx, "login succeeded", "email", email)
	return snap, nil
}

// Register creates an account. PendingApproval leaves the session unchanged;
// Approved authenticates exactly as Login does.
func (c *SessionController) Register(
	ctx context.Context,
	in domainauth.RegisterInput,
) (domainauth.RegistrationResult, error) {
	start := c.clock.Now()
	epoch := c.begin()

	res, err := c.backend.Register(ctx, in)
	if err == nil {
		if vErr := res.Validate(); vErr != nil {
			err = apperrors.Wrap(vErr, apperrors.ErrCodeInternal, "backend returned an invalid registration result")
		}
	}
	if err != nil {
		c.fail(epoch, err)
		c.record(ctx, domainauth.ActivityRegister, in.Email, err, start)
		return domainauth.RegistrationResult{}, fmt.Errorf("register: %w", err)
	}

	if _, pending := res.Pending(); pending {
		c.settle(epoch)
		c.recordOutcome(ctx, domainauth.ActivityRegister, domainauth.OutcomePending, in.Email, nil, start)
		c.logger.InfoContext(ctx, "registration pending approval", "email", in.Email)
		return res, nil
	}

	approved, _ := res.Approved()
	if _, err := c.authenticate(ctx, epoch, approved.Credentials); err != nil {
		c.record(ctx, domainauth.ActivityRegister, in.Email, err, start)
		return domainauth.RegistrationResult{}, fmt.Errorf("register: %w", err)
	}
	c.record(ctx, domainauth.ActivityRegister, in.Email, nil, start)
	c.logger.InfoContext(ctx, "registration approved", "email", in.Email)
	return res, nil
}

// Logout clears the session unconditionally, deletes the persisted token and
// revokes it at the backend on a best-effort basis. It never fails and calling
// it again changes nothing.
func (c *SessionController) Logout(ctx context.Context) domainauth.Snapshot {
	start := c.clock.Now()

	c.mu.Lock()
	c.epoch++
	token := c.session.Token
	var email string
	if c.session.User != nil {
		email = c.session.User.Email
	}
	changed := c.session.Status != domainauth.StatusUnauthenticated || c.lastErr != ""
	c.session = domainauth.Unauthenticated()
	c.lastErr = ""
	c.identity++
	identity := c.identity
	var (
		snap domainauth.Snapshot
		subs []*subscriber
	)
	if changed {
		snap, subs = c.commitLocked()
	} else {
		snap = c.snapshotLocked()
	}
	c.mu.Unlock()
	notify(snap, subs)

	c.persist(ctx, identity, func(ctx context.Context) error {
		return c.tokens.Delete(ctx, c.consoleID)
	})

	if token == "" {
		return snap
	}
	if err := c.backend.Revoke(context.WithoutCancel(ctx), token); err != nil {
		c.logger.WarnContext(ctx, "token revocation failed", "error", err)
	}
	c.record(ctx, domainauth.ActivityLogout, email, nil, start)
	c.logger.InfoContext(ctx, "logout", "email", email)
	return snap
}

// RestoreSession resolves the persisted token once at startup. The session is
// Loading while it runs and ends Authenticated or Unauthenticated. Expired or
// invalid tokens fail with SessionExpired and are deleted. Any later call is a
// no-op returning the current snapshot.
func (c *SessionController) RestoreSession(ctx context.Context) (domainauth.Snapshot, error) {
	start := c.clock.Now()

	c.mu.Lock()
	if c.restoring || c.session.Status != domainauth.StatusUninitialized {
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return snap, nil
	}
	c.restoring = true
	c.session.Status = domainauth.StatusLoading
	c.inFlight++
	epoch, applied := c.epoch, c.applied
	snap, subs := c.commitLocked()
	c.mu.Unlock()
	notify(snap, subs)

	creds, found, err := c.resolvePersisted(ctx)

	c.mu.Lock()
	c.inFlight--
	if epoch != c.epoch || applied != c.applied {
		snap, subs = c.commitLocked()
		c.mu.Unlock()
		notify(snap, subs)
		return snap, fmt.Errorf("restore session: %w", ErrSuperseded)
	}
	stale := err != nil && (apperrors.IsSessionExpired(err) || apperrors.IsInvalidCredentials(err))
	switch {
	case err != nil:
		c.session = domainauth.Unauthenticated()
		c.lastErr = apperrors.UserMessage(err)
	case !found:
		c.session = domainauth.Unauthenticated()
	default:
		c.session = domainauth.Authenticated(creds)
	}
	if stale {
		c.identity++
	}
	identity := c.identity
	snap, subs = c.commitLocked()
	c.mu.Unlock()
	notify(snap, subs)

	if stale {
		c.persist(ctx, identity, func(ctx context.Context) error {
			return c.tokens.Delete(ctx, c.consoleID)
		})
	}

	if !found && err == nil {
		return snap, nil
	}
	c.record(ctx, domainauth.ActivityRestore, creds.User.Email, err, start)
	if err != nil {
		c.logger.InfoContext(ctx, "session restore failed", "error", err)
		return snap, fmt.Errorf("restore session: %w", err)
	}
	return snap, nil
}

// resolvePersisted loads the persisted token and resolves it to a user.
// found is false when nothing was persisted.
func (c *SessionController) resolvePersisted(ctx context.Context) (domainauth.Credentials, bool, error) {
	token, err := c.tokens.Load(ctx, c.consoleID)
	if errors.Is(err, ports.ErrTokenNotFound) || (err == nil && token == "") {
		return domainauth.Credentials{}, false, nil
	}
	if err != nil {
		return domainauth.Credentials{}, true, apperrors.Network(fmt.Errorf("load token: %w", err))
	}

	creds := domainauth.Credentials{Token: token}
	if c.verifier != nil {
		claims, vErr := c.verifier.Verify(ctx, token)
		if vErr != nil {
			return creds, true, vErr
		}
		creds.ExpiresAt = claims.ExpiresAt
		if creds.IsExpired(c.clock.Now()) {
			return creds, true, apperrors.SessionExpired(nil)
		}
	}

	user, err := c.backend.ResolveToken(ctx, token)
	if err != nil {
		return creds, true, err
	}
	creds.User = user
	return creds, true, nil
}

// begin marks an operation in flight and returns the epoch it started in.
func (c *SessionController) begin() uint64 {
	c.mu.Lock()
	c.inFlight++
	epoch := c.epoch
	snap, subs := c.commitLocked()
	c.mu.Unlock()
	notify(snap, subs)
	return epoch
}

// settle ends an operation that does not change the session.
func (c *SessionController) settle(epoch uint64) domainauth.Snapshot {
	c.mu.Lock()
	c.inFlight--
	if epoch == c.epoch {
		c.lastErr = ""
	}
	snap, subs := c.commitLocked()
	c.mu.Unlock()
	notify(snap, subs)
	return snap
}

// fail ends a failed operation; the session is left unchanged.
func (c *SessionController) fail(epoch uint64, err error) domainauth.Snapshot {
	c.mu.Lock()
	c.inFlight--
	if epoch == c.epoch {
		c.lastErr = apperrors.UserMessage(err)
	}
	snap, subs := c.commitLocked()
	c.mu.Unlock()
	notify(snap, subs)
	return snap
}

// authenticate applies credentials unless a logout happened since epoch,
// then persists the token.
func (c *SessionController) authenticate(
	ctx context.Context,
	epoch uint64,
	creds domainauth.Credentials,
) (domainauth.Snapshot, error) {
	c.mu.Lock()
	c.inFlight--
	if epoch != c.epoch {
		snap, subs := c.commitLocked()
		c.mu.Unlock()
		notify(snap, subs)
		return snap, ErrSuperseded
	}
	c.session = domainauth.Authenticated(creds)
	c.lastErr = ""
	c.applied++
	c.identity++
	identity := c.identity
	snap, subs := c.commitLocked()
	c.mu.Unlock()
	notify(snap, subs)

	ttl := c.ttlFor(creds)
	c.persist(ctx, identity, func(ctx context.Context) error {
		return c.tokens.Save(ctx, c.consoleID, creds.Token, ttl)
	})
	return snap, nil
}

// persist runs write unless a newer identity has been applied since.
func (c *SessionController) persist(ctx context.Context, identity uint64, write func(context.Context) error) {
	c.persistMu.Lock()
	defer c.persistMu.Unlock()

	c.mu.Lock()
	current := c.identity == identity
	c.mu.Unlock()
	if !current {
		return
	}
	if err := write(context.WithoutCancel(ctx)); err != nil {
		c.logger.WarnContext(ctx, "persist session token failed", "error", err)
	}
}

func (c *SessionController) ttlFor(creds domainauth.Credentials) time.Duration {
	if !creds.ExpiresAt.IsZero() {
		if ttl := creds.ExpiresAt.Sub(c.clock.Now()); ttl > 0 {
			return ttl
		}
	}
	return c.tokenTTL
}

func (c *SessionController) record(
	ctx context.Context,
	kind domainauth.ActivityKind,
	email string,
	err error,
	start time.Time,
) {
	outcome := domainauth.OutcomeSuccess
	if err != nil {
		outcome = domainauth.OutcomeFailure
	}
	c.recordOutcome(ctx, kind, outcome, email, err, start)
}

func (c *SessionController) recordOutcome(
	ctx context.Context,
	kind domainauth.ActivityKind,
	outcome domainauth.ActivityOutcome,
	email string,
	err error,
	start time.Time,
) {
	now := c.clock.Now()
	c.metrics.ObserveAuthOperation(kind, outcome, now.Sub(start))
	if c.activity == nil {
		return
	}

	evt := domainauth.ActivityEvent{
		ID:        uuid.NewString(),
		ConsoleID: c.consoleID,
		Kind:      kind,
		Outcome:   outcome,
		Email:     email,
		ErrorCode: activityErrorCode(err),
		CreatedAt: now.UTC(),
	}
	if recErr := c.activity.Record(context.WithoutCancel(ctx), evt); recErr != nil {
		c.logger.WarnContext(ctx, "record auth activity failed", "kind", kind, "error", recErr)
	}
}

func activityErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSuperseded):
		return "superseded"
	}
	if code := apperrors.GetCode(err); code != "" {
		return string(code)
	}
	return string(apperrors.ErrCodeInternal)
}

// snapshotLocked must be called with mu held.
func (c *SessionController) snapshotLocked() domainauth.Snapshot {
	snap := c.session.Snapshot()
	snap.InFlight = c.inFlight > 0
	snap.Error = c.lastErr
	snap.Version = c.version
	return snap
}

// commitLocked bumps the version and returns the new snapshot with the
// subscribers to notify once mu is released.
func (c *SessionController) commitLocked() (domainauth.Snapshot, []*subscriber) {
	c.version++
	snap := c.snapshotLocked()
	if c.closed || len(c.subs) == 0 {
		return snap, nil
	}
	subs := make([]*subscriber, 0, len(c.subs))
	for _, s := range c.subs {
		subs = append(subs, s)
	}
	return snap, subs
}

func notify(snap domainauth.Snapshot, subs []*subscriber) {
	for _, s := range subs {
		s.deliver(snap)
	}
}
