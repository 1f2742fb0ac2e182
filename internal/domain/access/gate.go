// Package access decides whether a console session may enter a route.
//
// Gates are pure: they read an auth.Snapshot and return a Decision. They are
// composed outermost-to-innermost with Chain, and the first non-Allow decision
// wins. Gates never return errors; lacking authentication or privilege is an
// ordinary redirect.
package access

import (
	domainauth "github.com/target/ledger-console/internal/domain/auth"
)

// Kind is the outcome of a gate.
type Kind int

const (
	// Allow renders the protected content.
	Allow Kind = iota
	// Wait renders a loading placeholder until the session resolves.
	Wait
	// Redirect sends the client to Decision.Target.
	Redirect
)

func (k Kind) String() string {
	switch k {
	case Allow:
		return "allow"
	case Wait:
		return "wait"
	case Redirect:
		return "redirect"
	default:
		return "unknown"
	}
}

// Decision is what a gate returns for a snapshot.
type Decision struct {
	Kind   Kind
	Target string
}

// Allowed returns an Allow decision.
func Allowed() Decision { return Decision{Kind: Allow} }

// Waiting returns a Wait decision.
func Waiting() Decision { return Decision{Kind: Wait} }

// RedirectTo returns a Redirect decision to target.
func RedirectTo(target string) Decision { return Decision{Kind: Redirect, Target: target} }

// Gate is a single capability check.
type Gate interface {
	Name() string
	CanEnter(snap domainauth.Snapshot) Decision
}

// RouteGuard requires an authenticated session.
type RouteGuard struct {
	LoginPath string
}

// Name implements Gate.
func (RouteGuard) Name() string { return "route" }

// CanEnter waits while the session is unresolved, redirects to the login
// path when unauthenticated, and allows otherwise.
func (g RouteGuard) CanEnter(snap domainauth.Snapshot) Decision {
	switch {
	case snap.Status.Pending():
		return Waiting()
	case snap.Authenticated():
		return Allowed()
	default:
		return RedirectTo(g.LoginPath)
	}
}

// RoleGuard requires an administrator. It must run after RouteGuard.
type RoleGuard struct {
	// FallbackPath is where non-admins are sent; never an error page.
	FallbackPath string
}

// Name implements Gate.
func (RoleGuard) Name() string { return "role" }

// CanEnter allows only an authenticated administrator. A missing user is
// treated as non-admin.
func (g RoleGuard) CanEnter(snap domainauth.Snapshot) Decision {
	if snap.IsAdmin() {
		return Allowed()
	}
	return RedirectTo(g.FallbackPath)
}

// Chain evaluates gates in order.
type Chain []Gate

// CanEnter returns the first non-Allow decision, or Allow.
func (c Chain) CanEnter(snap domainauth.Snapshot) Decision {
	d, _ := c.Evaluate(snap)
	return d
}

// Evaluate is CanEnter that also names the deciding gate ("" when allowed).
func (c Chain) Evaluate(snap domainauth.Snapshot) (Decision, string) {
	for _, g := range c {
		if d := g.CanEnter(snap); d.Kind != Allow {
			return d, g.Name()
		}
	}
	return Allowed(), ""
}

// Paths are the route paths gates redirect between.
type Paths struct {
	Login    string
	Register string
	Landing  string
}

// Authenticated returns the chain for routes that require a session.
func Authenticated(p Paths) Chain {
	return Chain{RouteGuard{LoginPath: p.Login}}
}

// AdminOnly returns the chain for admin routes: RouteGuard wraps RoleGuard.
func AdminOnly(p Paths) Chain {
	return Chain{RouteGuard{LoginPath: p.Login}, RoleGuard{FallbackPath: p.Landing}}
}
