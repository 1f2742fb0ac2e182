package metrics

// Package metrics exposes Prometheus instruments for console sessions and
// the HTTP surface.

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	domainauth "github.com/target/ledger-console/internal/domain/auth"
)

const namespace = "ledger_console"

// Auth records session operation outcomes and console registry churn.
// It satisfies service.Metrics.
type Auth struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	redirects  prometheus.Counter
	opened     prometheus.Counter
	live       prometheus.Gauge
}

// NewAuth registers the auth instruments with reg.
func NewAuth(reg prometheus.Registerer) *Auth {
	f := promauto.With(reg)
	return &Auth{
		operations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_operations_total",
			Help:      "Session operations by kind and outcome.",
		}, []string{"kind", "outcome"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "auth_operation_duration_seconds",
			Help:      "Duration of session operations, including the backend round trip.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		redirects: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registration_pending_redirects_total",
			Help:      "Delayed redirects to the login page fired after a pending registration.",
		}),
		opened: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consoles_opened_total",
			Help:      "Console instances created.",
		}),
		live: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "consoles_live",
			Help:      "Console instances currently held by the registry.",
		}),
	}
}

// ObserveAuthOperation counts one finished operation.
func (a *Auth) ObserveAuthOperation(kind domainauth.ActivityKind, outcome domainauth.ActivityOutcome, elapsed time.Duration) {
	a.operations.WithLabelValues(string(kind), string(outcome)).Inc()
	a.duration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
}

// PendingRedirectFired counts a delayed registration redirect.
func (a *Auth) PendingRedirectFired() { a.redirects.Inc() }

// ConsoleOpened tracks a new console instance.
func (a *Auth) ConsoleOpened() {
	a.opened.Inc()
	a.live.Inc()
}

// ConsoleClosed tracks a torn-down console instance.
func (a *Auth) ConsoleClosed() { a.live.Dec() }
