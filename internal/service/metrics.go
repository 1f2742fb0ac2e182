package service

import (
	"time"

	domainauth "github.com/target/ledger-console/internal/domain/auth"
)

// Metrics receives session, registration and registry measurements.
// Implementations must be safe for concurrent use.
type Metrics interface {
	ObserveAuthOperation(kind domainauth.ActivityKind, outcome domainauth.ActivityOutcome, elapsed time.Duration)
	PendingRedirectFired()
	ConsoleOpened()
	ConsoleClosed()
}

type noopMetrics struct{}

func (noopMetrics) ObserveAuthOperation(domainauth.ActivityKind, domainauth.ActivityOutcome, time.Duration) {
}
func (noopMetrics) PendingRedirectFired() {}
func (noopMetrics) ConsoleOpened()        {}
func (noopMetrics) ConsoleClosed()        {}
