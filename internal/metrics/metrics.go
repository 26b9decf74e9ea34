// Package metrics exports routing job activity to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mil-ad/audioswitch/internal/bluetooth"
)

// Recorder implements bluetooth.Recorder with a counter of finished jobs by
// direction and outcome and a gauge of running jobs by direction.
type Recorder struct {
	registry *prometheus.Registry
	started  *prometheus.CounterVec
	finished *prometheus.CounterVec
	pending  *prometheus.GaugeVec
}

// New registers the routing metrics on a fresh registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		started: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "audioswitch_routing_jobs_started_total",
				Help: "Routing jobs started by direction.",
			},
			[]string{"direction"},
		),
		finished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "audioswitch_routing_jobs_finished_total",
				Help: "Routing jobs finished by direction and outcome.",
			},
			[]string{"direction", "outcome"},
		),
		pending: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "audioswitch_routing_jobs_pending",
				Help: "Routing jobs currently polling for confirmation.",
			},
			[]string{"direction"},
		),
	}
	r.registry.MustRegister(r.started, r.finished, r.pending)
	return r
}

// JobStarted counts a started job and marks it pending.
func (r *Recorder) JobStarted(dir bluetooth.Direction) {
	r.started.WithLabelValues(dir.String()).Inc()
	r.pending.WithLabelValues(dir.String()).Inc()
}

// JobFinished counts a job's outcome and clears its pending mark.
func (r *Recorder) JobFinished(dir bluetooth.Direction, outcome bluetooth.Outcome) {
	r.finished.WithLabelValues(dir.String(), string(outcome)).Inc()
	r.pending.WithLabelValues(dir.String()).Dec()
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
