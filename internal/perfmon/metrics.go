package perfmon

import "github.com/prometheus/client_golang/prometheus"

var (
	samplesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "modelhost",
			Subsystem: "perf",
			Name:      "samples_total",
			Help:      "Total performance samples recorded",
		},
		[]string{"model", "kind"},
	)

	inferenceDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "modelhost",
			Subsystem: "perf",
			Name:      "inference_duration_seconds",
			Help:      "Duration of inference calls in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"model"},
	)

	loadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "modelhost",
			Subsystem: "perf",
			Name:      "load_duration_seconds",
			Help:      "Duration of model loads in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		},
		[]string{"model"},
	)
)

func init() {
	prometheus.MustRegister(samplesTotal, inferenceDuration, loadDuration)
}

func observeMetric(m Metric) {
	samplesTotal.WithLabelValues(m.ModelID, string(m.Kind)).Inc()
	switch m.Kind {
	case MetricInference:
		inferenceDuration.WithLabelValues(m.ModelID).Observe(m.Value / 1000)
	case MetricLoad:
		loadDuration.WithLabelValues(m.ModelID).Observe(m.Value / 1000)
	}
}
