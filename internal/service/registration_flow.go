package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	domainauth "github.com/target/ledger-console/internal/domain/auth"
	apperrors "github.com/target/ledger-console/internal/errors"
	"github.com/target/ledger-console/internal/ports"
)

var (
	// ErrSubmissionInFlight rejects a second submission while one is running.
	ErrSubmissionInFlight = errors.New("registration submission already in flight")
	// ErrFlowFinished rejects submissions after the flow produced an outcome.
	ErrFlowFinished = errors.New("registration flow already finished")
	// ErrFlowClosed rejects submissions after teardown.
	ErrFlowClosed = errors.New("registration flow closed")
)

// DefaultPendingRedirectDelay is how long a pending-approval message stays
// on screen before the redirect to the login page.
const DefaultPendingRedirectDelay = 5 * time.Second

// FlowState is the lifecycle of one registration flow.
type FlowState string

const (
	FlowIdle       FlowState = "idle"
	FlowSubmitting FlowState = "submitting"
	FlowPending    FlowState = "pending"  // message shown, redirect scheduled
	FlowRedirect   FlowState = "redirect" // redirect due, not yet delivered
	FlowDone       FlowState = "done"
	FlowClosed     FlowState = "closed"
)

// registrar is the slice of SessionController the flow needs.
type registrar interface {
	Register(ctx context.Context, in domainauth.RegisterInput) (domainauth.RegistrationResult, error)
}

// RegistrationFlowConfig configures redirect targets and timing.
type RegistrationFlowConfig struct {
	Paths        RedirectPaths
	PendingDelay time.Duration
	Clock        ports.Clock
}

// RedirectPaths are the destinations a flow redirects to.
type RedirectPaths struct {
	Login   string
	Landing string
}

// FlowObservers groups optional logging and metrics.
type FlowObservers struct {
	Logger  *slog.Logger
	Metrics Metrics
}

// RegistrationFlowOptions groups dependencies for RegistrationFlow.
type RegistrationFlowOptions struct {
	Session   registrar
	Config    RegistrationFlowConfig
	Observers FlowObservers
}

// RegistrationStep is what the caller renders after a submission.
type RegistrationStep struct {
	Outcome  domainauth.Outcome
	Redirect string // set for Approved: redirect now
	Message  string // set for PendingApproval
}

// RegistrationView is a read-only copy of the flow state.
type RegistrationView struct {
	State   FlowState
	Message string
	Error   string
}

// RegistrationFlow runs one registration attempt of a console instance:
// local validation, a single in-flight submission, and for a pending-approval
// outcome exactly one delayed redirect to the login page, cancelled by Close.
type RegistrationFlow struct {
	session registrar
	paths   RedirectPaths
	delay   time.Duration
	clock   ports.Clock
	logger  *slog.Logger
	metrics Metrics

	mu      sync.Mutex
	state   FlowState
	message string
	lastErr string
	timer   ports.Timer
}

// NewRegistrationFlow constructs an idle flow.
func NewRegistrationFlow(opts RegistrationFlowOptions) *RegistrationFlow {
	if opts.Session == nil {
		panic("session controller is required")
	}
	cfg := opts.Config
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	if cfg.PendingDelay <= 0 {
		cfg.PendingDelay = DefaultPendingRedirectDelay
	}
	if cfg.Paths.Login == "" {
		cfg.Paths.Login = "/login"
	}
	if cfg.Paths.Landing == "" {
		cfg.Paths.Landing = "/"
	}
	logger := opts.Observers.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := opts.Observers.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}

	return &RegistrationFlow{
		session: opts.Session,
		paths:   cfg.Paths,
		delay:   cfg.PendingDelay,
		clock:   cfg.Clock,
		logger:  logger.With("component", "registration"),
		metrics: metrics,
		state:   FlowIdle,
	}
}

// Submit validates the form locally and, when valid, registers through the
// session controller. Invalid forms never reach the backend.
func (f *RegistrationFlow) Submit(ctx context.Context, form domainauth.RegistrationForm) (RegistrationStep, error) {
	form.Normalize()
	if err := f.beginSubmit(); err != nil {
		return RegistrationStep{}, err
	}

	if err := form.Validate(); err != nil {
		verr := apperrors.Wrap(err, apperrors.ErrCodeValidation, firstFieldMessage(err))
		f.endSubmit(verr)
		return RegistrationStep{}, verr
	}

	res, err := f.session.Register(ctx, form.Input())
	if err != nil {
		f.endSubmit(err)
		return RegistrationStep{}, fmt.Errorf("submit registration: %w", err)
	}

	if approved, ok := res.Approved(); ok {
		target := f.landingTarget(approved.RedirectTarget)
		f.mu.Lock()
		if f.state == FlowSubmitting {
			f.state = FlowDone
		}
		f.lastErr = ""
		f.mu.Unlock()
		return RegistrationStep{Outcome: domainauth.OutcomeApproved, Redirect: target}, nil
	}

	pending, _ := res.Pending()
	f.schedule(pending.Message)
	return RegistrationStep{Outcome: domainauth.OutcomePendingApproval, Message: pending.Message}, nil
}

func (f *RegistrationFlow) beginSubmit() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch f.state {
	case FlowIdle:
		f.state = FlowSubmitting
		f.lastErr = ""
		return nil
	case FlowSubmitting:
		return ErrSubmissionInFlight
	case FlowClosed:
		return ErrFlowClosed
	default:
		return ErrFlowFinished
	}
}

// endSubmit returns the flow to idle so the form can be resubmitted.
func (f *RegistrationFlow) endSubmit(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != FlowSubmitting {
		return
	}
	f.state = FlowIdle
	f.lastErr = apperrors.UserMessage(err)
}

// schedule shows the pending message and arms the single redirect timer.
func (f *RegistrationFlow) schedule(message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != FlowSubmitting {
		return
	}
	f.state = FlowPending
	f.message = message
	f.lastErr = ""
	f.timer = f.clock.AfterFunc(f.delay, f.fire)
	f.logger.Debug("pending approval redirect scheduled", "delay", f.delay)
}

func (f *RegistrationFlow) fire() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != FlowPending {
		return
	}
	f.state = FlowRedirect
	f.timer = nil
	f.metrics.PendingRedirectFired()
}

// TakeRedirect returns the login redirect once the pending delay elapsed.
// It reports true exactly once per flow.
func (f *RegistrationFlow) TakeRedirect() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != FlowRedirect {
		return "", false
	}
	f.state = FlowDone
	return f.paths.Login, true
}

// View returns the current flow state.
func (f *RegistrationFlow) View() RegistrationView {
	f.mu.Lock()
	defer f.mu.Unlock()
	return RegistrationView{State: f.state, Message: f.message, Error: f.lastErr}
}

// Close tears the flow down and cancels a scheduled redirect. It reports
// whether a pending redirect was cancelled.
func (f *RegistrationFlow) Close() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	cancelled := false
	if f.timer != nil {
		cancelled = f.timer.Stop()
		f.timer = nil
	}
	f.state = FlowClosed
	return cancelled
}

// landingTarget accepts a backend-provided redirect only when it is a local path.
func (f *RegistrationFlow) landingTarget(target string) string {
	if strings.HasPrefix(target, "/") && !strings.HasPrefix(target, "//") && !strings.Contains(target, "\\") {
		return target
	}
	return f.paths.Landing
}

func firstFieldMessage(err error) string {
	var fe *domainauth.FormError
	if errors.As(err, &fe) {
		if msg := fe.Fields[fe.FirstField()]; msg != "" {
			return msg
		}
	}
	return "Please correct the highlighted fields."
}
