package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Reaper records activity retention runs. It satisfies service.ReaperMetrics.
type Reaper struct {
	runs        *prometheus.CounterVec
	pruned      prometheus.Counter
	duration    prometheus.Histogram
	lastSuccess prometheus.Gauge
}

// NewReaper registers the reaper instruments with reg.
func NewReaper(reg prometheus.Registerer) *Reaper {
	f := promauto.With(reg)
	return &Reaper{
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reaper_runs_total",
			Help:      "Activity retention runs by result (success, noop, error).",
		}, []string{"result"}),
		pruned: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reaper_activity_pruned_total",
			Help:      "Auth activity rows removed by retention.",
		}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reaper_run_duration_seconds",
			Help:      "Duration of activity retention runs.",
			Buckets:   prometheus.DefBuckets,
		}),
		lastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reaper_last_success_timestamp_seconds",
			Help:      "Unix time of the last successful retention run.",
		}),
	}
}

// ObservePrune records one retention run.
func (r *Reaper) ObservePrune(removed int64, err error, elapsed time.Duration) {
	result := "success"
	switch {
	case err != nil:
		result = "error"
	case removed == 0:
		result = "noop"
	}
	r.runs.WithLabelValues(result).Inc()
	r.duration.Observe(elapsed.Seconds())
	if err != nil {
		return
	}
	r.pruned.Add(float64(removed))
	r.lastSuccess.SetToCurrentTime()
}
