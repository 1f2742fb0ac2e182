package httpx

import (
	"context"

	domainauth "github.com/target/ledger-console/internal/domain/auth"
	"github.com/target/ledger-console/internal/service"
)

// consoleKey and snapshotKey are unexported context key types to avoid
// collisions across packages.
type (
	consoleKey  struct{}
	snapshotKey struct{}
)

// SetConsoleInContext returns a child context carrying the request's console.
func SetConsoleInContext(ctx context.Context, c *service.Console) context.Context {
	if c == nil {
		return ctx
	}
	return context.WithValue(ctx, consoleKey{}, c)
}

// ConsoleFromContext returns the console bound by ConsoleCookie.
func ConsoleFromContext(ctx context.Context) (*service.Console, bool) {
	c, ok := ctx.Value(consoleKey{}).(*service.Console)
	return c, ok && c != nil
}

// SetSnapshotInContext records the snapshot a guard admitted the request with.
func SetSnapshotInContext(ctx context.Context, snap domainauth.Snapshot) context.Context {
	return context.WithValue(ctx, snapshotKey{}, snap)
}

// SnapshotFromContext returns the snapshot stored by a guard, falling back
// to the console's current snapshot.
func SnapshotFromContext(ctx context.Context) domainauth.Snapshot {
	if snap, ok := ctx.Value(snapshotKey{}).(domainauth.Snapshot); ok {
		return snap
	}
	if c, ok := ConsoleFromContext(ctx); ok {
		return c.Session.Snapshot()
	}
	return domainauth.NewSession().Snapshot()
}
