package metrics

import "github.com/prometheus/client_golang/prometheus"

type Prometheus struct {
	Epochs        prometheus.Counter
	Dual          prometheus.Gauge
	Primal        prometheus.Gauge
	Gap           prometheus.Gauge
	WeightNorm    prometheus.Gauge
	Updates       prometheus.Gauge
	EpochDuration prometheus.Histogram
	Converged     prometheus.Gauge

	Accuracy         *prometheus.GaugeVec
	LogLoss          prometheus.Gauge
	LogLossReduction prometheus.Gauge
	Samples          *prometheus.GaugeVec
	ClassLogLoss     *prometheus.GaugeVec
	ClassSupport     *prometheus.GaugeVec
}

func NewPrometheusMetrics() Prometheus {
	gauge := func(subsystem, name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		})
	}
	gaugeVec := func(subsystem, name, help string, labels ...string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		}, labels)
	}

	return Prometheus{
		Epochs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "train",
			Name:      "epochs_total",
			Help:      "Completed SDCA epochs.",
		}),
		Dual:       gauge("train", "dual_objective", "Dual objective at the last epoch boundary."),
		Primal:     gauge("train", "primal_objective", "Primal objective at the last epoch boundary."),
		Gap:        gauge("train", "duality_gap", "Primal minus dual objective."),
		WeightNorm: gauge("train", "weight_norm", "Frobenius norm of the weights with the bias as an extra column."),
		Updates:    gauge("train", "block_updates", "Samples whose dual block moved in the last epoch."),
		EpochDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "train",
			Name:      "epoch_duration_seconds",
			Help:      "Wall time per epoch.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		Converged: gauge("train", "converged", "1 if training met the tolerance, 0 otherwise."),

		Accuracy:         gaugeVec("eval", "accuracy", "Held-out accuracy.", "average"),
		LogLoss:          gauge("eval", "log_loss", "Mean held-out log loss."),
		LogLossReduction: gauge("eval", "log_loss_reduction", "Log loss improvement over the class prior."),
		Samples:          gaugeVec("eval", "samples", "Held-out samples by outcome.", "outcome"),
		ClassLogLoss:     gaugeVec("eval", "class_log_loss", "Mean log loss per true class.", "label"),
		ClassSupport:     gaugeVec("eval", "class_support", "Held-out samples per true class.", "label"),
	}
}

func (p Prometheus) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		p.Epochs, p.Dual, p.Primal, p.Gap, p.WeightNorm, p.Updates, p.EpochDuration, p.Converged,
		p.Accuracy, p.LogLoss, p.LogLossReduction, p.Samples, p.ClassLogLoss, p.ClassSupport,
	}
}
