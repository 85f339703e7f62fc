// Package metrics exposes Prometheus counters for pass transitions,
// escalations and sweeps. A nil *Recorder is valid and records nothing,
// so services can be built without metrics in tests.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hallpass"

type Recorder struct {
	registry    *prometheus.Registry
	transitions *prometheus.CounterVec
	rejections  *prometheus.CounterVec
	escalations *prometheus.CounterVec
	archived    prometheus.Counter
	sweeps      *prometheus.CounterVec
	sweepTime   prometheus.Histogram
}

// New builds a Recorder on its own registry, with the Go runtime and
// process collectors attached.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		registry: reg,
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pass_transitions_total",
			Help:      "Accepted pass lifecycle operations by action.",
		}, []string{"action"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pass_rejections_total",
			Help:      "Rejected pass lifecycle operations by action.",
		}, []string{"action"}),
		escalations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escalations_total",
			Help:      "Escalations raised by level.",
		}, []string{"level"}),
		archived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "passes_archived_total",
			Help:      "Closed passes moved to long-term storage.",
		}),
		sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeps_total",
			Help:      "Sweeper cycles by result.",
		}, []string{"result"}),
		sweepTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Wall time of a sweeper cycle.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(
		r.transitions, r.rejections, r.escalations, r.archived, r.sweeps, r.sweepTime,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Registry returns the underlying registry, mostly for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the Prometheus exposition format for this recorder.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Transition counts an operation; err decides accepted vs rejected.
func (r *Recorder) Transition(action string, err error) {
	if r == nil {
		return
	}
	if err != nil {
		r.rejections.WithLabelValues(action).Inc()
		return
	}
	r.transitions.WithLabelValues(action).Inc()
}

func (r *Recorder) Escalation(level string) {
	if r == nil || level == "" {
		return
	}
	r.escalations.WithLabelValues(level).Inc()
}

func (r *Recorder) Archived() {
	if r == nil {
		return
	}
	r.archived.Inc()
}

func (r *Recorder) Sweep(d time.Duration, failures int) {
	if r == nil {
		return
	}
	result := "ok"
	if failures > 0 {
		result = "partial"
	}
	r.sweeps.WithLabelValues(result).Inc()
	r.sweepTime.Observe(d.Seconds())
}
