package ports

// Package ports defines interfaces (hexagonal ports) for session-related behavior.
// Implementations live in internal/adapters; orchestration in internal/service.

import (
	"context"
	"errors"
	"time"

	domainauth "github.com/target/ledger-console/internal/domain/auth"
)

// AuthBackend is the external authentication API.
//
// Implementations report failures with the internal/errors taxonomy:
// InvalidCredentials, Validation, Network and SessionExpired.
type AuthBackend interface {
	// Login exchanges an email/password pair for credentials.
	Login(ctx context.Context, email, password string) (domainauth.Credentials, error)

	// Register creates an account. The result is either Approved (with
	// credentials) or PendingApproval (with a message).
	Register(ctx context.Context, in domainauth.RegisterInput) (domainauth.RegistrationResult, error)

	// ResolveToken returns the user a persisted token belongs to.
	ResolveToken(ctx context.Context, token string) (domainauth.User, error)

	// Revoke invalidates a token at the backend. Callers treat it as best effort.
	Revoke(ctx context.Context, token string) error
}

// PendingAccount is a registration awaiting administrator approval.
type PendingAccount struct {
	Name        string
	Email       string
	RequestedAt time.Time
}

// ApprovalQueue is implemented by backends that let the console approve
// pending registrations.
type ApprovalQueue interface {
	ListPending(ctx context.Context) ([]PendingAccount, error)
	Approve(ctx context.Context, email string) error
}

// ErrTokenNotFound is returned by TokenStore.Load when nothing is persisted.
var ErrTokenNotFound = errors.New("token not found")

// TokenStore persists the session token of each console instance.
type TokenStore interface {
	Load(ctx context.Context, consoleID string) (string, error)
	Save(ctx context.Context, consoleID, token string, ttl time.Duration) error
	Delete(ctx context.Context, consoleID string) error
}

// TokenClaims is what a verifier can tell about a token without the backend.
type TokenClaims struct {
	Subject   string
	ExpiresAt time.Time
}

// TokenVerifier checks a persisted token locally before it is resolved.
// It returns a SessionExpired error for expired or malformed tokens.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (TokenClaims, error)
}

// ActivitySink records session operation outcomes.
type ActivitySink interface {
	Record(ctx context.Context, evt domainauth.ActivityEvent) error
}

// ActivityReader lists recorded activity, newest first.
type ActivityReader interface {
	List(ctx context.Context, opts domainauth.ActivityListOptions) ([]domainauth.ActivityEvent, error)
}

// Timer is a scheduled callback that can be cancelled.
type Timer interface {
	// Stop prevents the callback from firing; it reports whether it did.
	Stop() bool
}

// Clock abstracts time for session and registration flows.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// ActivityPruner removes activity recorded before a cutoff.
type ActivityPruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}
