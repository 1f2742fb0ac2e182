package auth

import (
	"errors"
	"strings"
)

// Outcome tags a RegistrationResult branch.
type Outcome string

const (
	OutcomeApproved        Outcome = "approved"
	OutcomePendingApproval Outcome = "pending_approval"
)

// Approved is the branch of a registration that authenticated the caller.
type Approved struct {
	RedirectTarget string
	Credentials    Credentials
}

// PendingApproval is the branch of a registration that created an account
// an administrator must approve before it can sign in.
type PendingApproval struct {
	Message string
}

// RegistrationResult carries exactly one of Approved or PendingApproval.
// Build it with NewApproved or NewPendingApproval.
type RegistrationResult struct {
	approved *Approved
	pending  *PendingApproval
}

var (
	errNoBranch     = errors.New("registration result has no outcome")
	errBothBranches = errors.New("registration result has both outcomes")
)

// NewApproved returns an Approved registration result.
func NewApproved(a Approved) RegistrationResult {
	return RegistrationResult{approved: &a}
}

// DefaultPendingMessage is shown when the backend queues an account without
// saying anything about it.
const DefaultPendingMessage = "Your account was created and is awaiting administrator approval."

// NewPendingApproval returns a PendingApproval registration result. A blank
// message becomes DefaultPendingMessage.
func NewPendingApproval(message string) RegistrationResult {
	message = strings.TrimSpace(message)
	if message == "" {
		message = DefaultPendingMessage
	}
	return RegistrationResult{pending: &PendingApproval{Message: message}}
}

// Outcome returns the branch tag, or "" for a zero value.
func (r RegistrationResult) Outcome() Outcome {
	switch {
	case r.approved != nil && r.pending == nil:
		return OutcomeApproved
	case r.pending != nil && r.approved == nil:
		return OutcomePendingApproval
	default:
		return ""
	}
}

// Approved returns the approved branch.
func (r RegistrationResult) Approved() (Approved, bool) {
	if r.Outcome() != OutcomeApproved {
		return Approved{}, false
	}
	return *r.approved, true
}

// Pending returns the pending-approval branch.
func (r RegistrationResult) Pending() (PendingApproval, bool) {
	if r.Outcome() != OutcomePendingApproval {
		return PendingApproval{}, false
	}
	return *r.pending, true
}

// Validate reports a result that carries neither or both branches, or an
// approved branch without a token.
func (r RegistrationResult) Validate() error {
	switch {
	case r.approved == nil && r.pending == nil:
		return errNoBranch
	case r.approved != nil && r.pending != nil:
		return errBothBranches
	case r.approved != nil && r.approved.Credentials.Token == "":
		return errors.New("approved registration result has no token")
	}
	return nil
}

// WithRedirectTarget returns a copy whose approved branch redirects to target.
// Pending results are returned unchanged.
func (r RegistrationResult) WithRedirectTarget(target string) RegistrationResult {
	a, ok := r.Approved()
	if !ok {
		return r
	}
	a.RedirectTarget = target
	return NewApproved(a)
}

// RegisterInput is what the backend register operation receives.
type RegisterInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}
