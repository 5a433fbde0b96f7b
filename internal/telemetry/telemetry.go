// Package telemetry exposes simulation progress as Prometheus metrics. A
// Recorder plugs into the simulator as an Observer and can dump its registry
// in the node-exporter textfile format once a batch run ends.
package telemetry

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"panelsim/internal/portfolio"
	"panelsim/internal/simulator"
)

var _ simulator.Observer = (*Recorder)(nil)

// Recorder collects per-strategy simulation counters. It is safe for
// concurrent use by the runs of a sweep.
type Recorder struct {
	reg *prometheus.Registry

	warmups         *prometheus.CounterVec
	rebalances      *prometheus.CounterVec
	truncations     *prometheus.CounterVec
	truncatedWeight *prometheus.CounterVec
	grossExposure   *prometheus.GaugeVec
	value           *prometheus.GaugeVec
}

// NewRecorder creates a Recorder with its own registry.
func NewRecorder() *Recorder {
	labels := []string{"strategy"}
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		warmups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "panelsim",
			Name:      "warmup_steps_total",
			Help:      "Schedule dates consumed before the first rebalance.",
		}, labels),
		rebalances: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "panelsim",
			Name:      "rebalances_total",
			Help:      "Committed rebalance steps.",
		}, labels),
		truncations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "panelsim",
			Name:      "allocation_truncations_total",
			Help:      "Weights reduced because a long or short cap was reached.",
		}, labels),
		truncatedWeight: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "panelsim",
			Name:      "allocation_truncated_weight_total",
			Help:      "Absolute weight removed by allocation caps.",
		}, labels),
		grossExposure: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "panelsim",
			Name:      "gross_exposure",
			Help:      "Long plus short weight after the latest rebalance.",
		}, labels),
		value: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "panelsim",
			Name:      "portfolio_value",
			Help:      "Portfolio value after the latest mark-to-market.",
		}, labels),
	}
	r.reg.MustRegister(r.warmups, r.rebalances, r.truncations, r.truncatedWeight, r.grossExposure, r.value)
	return r
}

// Registry returns the registry holding the Recorder's collectors.
func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

// WarmupStep implements simulator.Observer.
func (r *Recorder) WarmupStep(strategy string) {
	r.warmups.WithLabelValues(strategy).Inc()
}

// Rebalanced implements simulator.Observer.
func (r *Recorder) Rebalanced(strategy string, rb portfolio.Rebalance) {
	r.rebalances.WithLabelValues(strategy).Inc()
	r.grossExposure.WithLabelValues(strategy).Set(rb.TotalLong + rb.TotalShort)
	if n := len(rb.Truncations); n > 0 {
		r.truncations.WithLabelValues(strategy).Add(float64(n))
		var cut float64
		for _, t := range rb.Truncations {
			cut += t.Amount()
		}
		r.truncatedWeight.WithLabelValues(strategy).Add(cut)
	}
}

// Marked implements simulator.Observer.
func (r *Recorder) Marked(strategy string, value float64) {
	r.value.WithLabelValues(strategy).Set(value)
}

// WriteTextfile writes the current metrics to path in the Prometheus text
// format. The file is replaced atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}
