package manager

import "github.com/prometheus/client_golang/prometheus"

var (
	modelsLoaded = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "modelhost",
		Name:      "models_loaded",
		Help:      "Number of model instances currently loaded",
	})

	modelsMemoryBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "modelhost",
		Name:      "models_memory_bytes",
		Help:      "Total memory footprint of loaded model instances",
	})

	loadsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "modelhost",
		Name:      "model_loads_total",
		Help:      "Total successful model loads",
	})

	loadFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "modelhost",
		Name:      "model_load_failures_total",
		Help:      "Total failed model load attempts",
	})

	unloadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "modelhost",
		Name:      "model_unloads_total",
		Help:      "Total model unloads by reason",
	}, []string{"reason"})

	inferencesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "modelhost",
		Name:      "inferences_total",
		Help:      "Total completed inference calls",
	})
)

func init() {
	prometheus.MustRegister(modelsLoaded, modelsMemoryBytes, loadsTotal, loadFailuresTotal, unloadsTotal, inferencesTotal)
}

// updateGaugesLocked refreshes the loaded-set gauges. Caller holds m.mu.
func (m *Manager) updateGaugesLocked() {
	modelsLoaded.Set(float64(len(m.loaded)))
	modelsMemoryBytes.Set(float64(m.usedBytes))
}
