package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "netemstate"

// Registry holds the metrics of one tool run. A nil *Registry is valid and
// records nothing.
type Registry struct {
	reg *prometheus.Registry

	ApplyAttempts     *prometheus.CounterVec
	ApplyItemFailures *prometheus.CounterVec
	ApplySuccess      *prometheus.GaugeVec
	CaptureObjects    *prometheus.GaugeVec
	RunDuration       *prometheus.GaugeVec
}

// New creates a registry with every metric registered.
func New() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Registry{
		reg: reg,
		ApplyAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "apply_attempts_total",
			Help:      "Whole-pass apply attempts, including the successful one",
		}, []string{"tool"}),
		ApplyItemFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "apply_item_failures_total",
			Help:      "Individual items that failed and were skipped during apply",
		}, []string{"tool", "kind"}),
		ApplySuccess: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "apply_success",
			Help:      "1 if the last apply completed, 0 if retries were exhausted",
		}, []string{"tool"}),
		CaptureObjects: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "capture_objects",
			Help:      "Objects recorded by the last capture, per descriptor section",
		}, []string{"tool", "section"}),
		RunDuration: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last save or load",
		}, []string{"tool", "action"}),
	}
}

// Attempt counts one apply pass.
func (r *Registry) Attempt(tool string) {
	if r == nil {
		return
	}
	r.ApplyAttempts.WithLabelValues(tool).Inc()
}

// ItemFailed counts one skipped item.
func (r *Registry) ItemFailed(tool, kind string) {
	if r == nil {
		return
	}
	r.ApplyItemFailures.WithLabelValues(tool, kind).Inc()
}

// ApplyDone records the outcome of an apply.
func (r *Registry) ApplyDone(tool string, ok bool) {
	if r == nil {
		return
	}
	v := 0.0
	if ok {
		v = 1
	}
	r.ApplySuccess.WithLabelValues(tool).Set(v)
}

// Captured records how many objects a capture produced for section.
func (r *Registry) Captured(tool, section string, n int) {
	if r == nil {
		return
	}
	r.CaptureObjects.WithLabelValues(tool, section).Set(float64(n))
}

// ObserveRun records the duration of an action.
func (r *Registry) ObserveRun(tool, action string, d time.Duration) {
	if r == nil {
		return
	}
	r.RunDuration.WithLabelValues(tool, action).Set(d.Seconds())
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// WriteTextfile writes every metric in the node-exporter textfile format.
func (r *Registry) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
