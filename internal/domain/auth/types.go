package auth

// Package auth contains domain-level types for console sessions.
// It is pure and free of framework/adapter concerns.

import (
	"maps"
	"time"
)

// Status is the lifecycle state of a console Session.
type Status string

const (
	StatusUninitialized   Status = "uninitialized"
	StatusLoading         Status = "loading"
	StatusAuthenticated   Status = "authenticated"
	StatusUnauthenticated Status = "unauthenticated"
)

// Pending reports whether the session has not resolved yet.
func (s Status) Pending() bool {
	return s == StatusUninitialized || s == StatusLoading
}

// Role is the privilege a navigation entry or route requires.
type Role string

const (
	// RoleNone requires only authentication.
	RoleNone Role = ""
	// RoleAdmin requires User.IsAdmin.
	RoleAdmin Role = "admin"
)

// User is the authenticated principal as resolved by the backend.
// Profile carries fields this package does not interpret.
type User struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	Email   string         `json:"email"`
	IsAdmin bool           `json:"is_admin"`
	Profile map[string]any `json:"profile,omitempty"`
}

// Clone returns a copy that shares no mutable state with u.
func (u User) Clone() User {
	u.Profile = maps.Clone(u.Profile)
	return u
}

// Satisfies reports whether the user holds the given role.
func (u *User) Satisfies(role Role) bool {
	switch role {
	case RoleNone:
		return u != nil
	case RoleAdmin:
		return u != nil && u.IsAdmin
	default:
		return false
	}
}

// Credentials is what the backend returns for a successful login or an
// approved registration.
type Credentials struct {
	Token     string    `json:"token"`
	User      User      `json:"user"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

// IsExpired reports whether the credentials carry an expiry that has passed.
func (c Credentials) IsExpired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// Session is the authentication state of one console instance.
// Invariant: Status == StatusAuthenticated iff User != nil and Token != "".
type Session struct {
	User   *User
	Token  string
	Status Status
}

// NewSession returns a fresh, uninitialized session.
func NewSession() Session {
	return Session{Status: StatusUninitialized}
}

// Authenticated builds an authenticated session from credentials.
func Authenticated(c Credentials) Session {
	u := c.User.Clone()
	return Session{User: &u, Token: c.Token, Status: StatusAuthenticated}
}

// Unauthenticated builds a cleared session.
func Unauthenticated() Session {
	return Session{Status: StatusUnauthenticated}
}

// Valid reports whether the session satisfies its status invariant.
func (s Session) Valid() bool {
	hasIdentity := s.User != nil && s.Token != ""
	if s.Status == StatusAuthenticated {
		return hasIdentity
	}
	return !hasIdentity
}

// Snapshot is the read-only projection of a Session handed to guards,
// navigation and templates. It never carries the token.
type Snapshot struct {
	Status   Status
	User     *User
	InFlight bool
	Error    string
	Version  uint64
}

// Snapshot projects the session, copying the user.
func (s Session) Snapshot() Snapshot {
	snap := Snapshot{Status: s.Status}
	if s.User != nil {
		u := s.User.Clone()
		snap.User = &u
	}
	return snap
}

// Authenticated reports whether the snapshot is in the authenticated state.
func (s Snapshot) Authenticated() bool {
	return s.Status == StatusAuthenticated && s.User != nil
}

// IsAdmin reports whether the snapshot holds an authenticated administrator.
func (s Snapshot) IsAdmin() bool {
	return s.Authenticated() && s.User.IsAdmin
}
