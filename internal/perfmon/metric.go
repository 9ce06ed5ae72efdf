package perfmon

import "time"

// MetricKind classifies a performance sample.
type MetricKind string

const (
	MetricLoad         MetricKind = "load"
	MetricInference    MetricKind = "inference"
	MetricMemory       MetricKind = "memory"
	MetricError        MetricKind = "error"
	MetricSwitch       MetricKind = "switch"
	MetricOptimization MetricKind = "optimization"
)

// Metric is one append-only typed sample.
type Metric struct {
	ModelID string
	Kind    MetricKind
	Value   float64
	Unit    string
	Time    time.Time
	Meta    map[string]string
}

// Recorder receives metrics from the other components. Implementations must
// be cheap and non-blocking; Record must not panic.
type Recorder interface {
	Record(Metric)
}

// NopRecorder drops all metrics.
type NopRecorder struct{}

func (NopRecorder) Record(Metric) {}
