// Package metrics exports training and evaluation figures as Prometheus
// metrics.
package metrics

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/happyhackingspace/digits/classifier"
	"github.com/happyhackingspace/digits/sdca"
)

const namespace = "digits"

// Metrics collects one run's figures in its own registry. Prometheus
// collectors are safe for concurrent use, so Metrics needs no locking.
type Metrics struct {
	registry   *prometheus.Registry
	prometheus Prometheus
}

// New creates a Metrics with every collector registered.
func New() *Metrics {
	m := &Metrics{
		registry:   prometheus.NewRegistry(),
		prometheus: NewPrometheusMetrics(),
	}
	m.registry.MustRegister(m.prometheus.collectors()...)
	return m
}

// Registry exposes the underlying registry, e.g. for a promhttp handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveEpoch implements sdca.Observer.
func (m *Metrics) ObserveEpoch(s sdca.EpochStats) {
	p := m.prometheus
	p.Epochs.Inc()
	p.Dual.Set(s.Dual)
	p.Primal.Set(s.Primal)
	p.Gap.Set(s.Gap)
	p.WeightNorm.Set(s.WeightNorm)
	p.Updates.Set(float64(s.Updates))
	p.EpochDuration.Observe(s.Duration.Seconds())
}

// RecordReport stores the outcome of a finished training run.
func (m *Metrics) RecordReport(r *sdca.Report) {
	if r.Converged {
		m.prometheus.Converged.Set(1)
	} else {
		m.prometheus.Converged.Set(0)
	}
}

// RecordEvaluation stores held-out metrics. Per-class figures are labelled
// with the raw label of each class.
func (m *Metrics) RecordEvaluation(ev *classifier.Metrics, labels *classifier.LabelMap) {
	p := m.prometheus
	p.Accuracy.WithLabelValues("micro").Set(ev.MicroAccuracy)
	p.Accuracy.WithLabelValues("macro").Set(ev.MacroAccuracy)
	p.LogLoss.Set(ev.LogLoss)
	p.LogLossReduction.Set(ev.LogLossReduction)
	p.Samples.WithLabelValues("evaluated").Set(float64(ev.Evaluated))
	p.Samples.WithLabelValues("skipped").Set(float64(ev.Skipped))

	p.ClassLogLoss.Reset()
	p.ClassSupport.Reset()
	for c, loss := range ev.PerClassLogLoss {
		label := strconv.Itoa(c)
		if labels != nil {
			if raw, err := labels.Decode(c); err == nil {
				label = strconv.Itoa(raw)
			}
		}
		p.ClassLogLoss.WithLabelValues(label).Set(loss)
		p.ClassSupport.WithLabelValues(label).Set(float64(ev.PerClassSupport[c]))
	}
}

// WriteTextfile dumps the registry in the text exposition format, for
// node_exporter's textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("metrics: write %s: %w", path, err)
	}
	return nil
}
