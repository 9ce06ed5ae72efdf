package resmon

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"modelhost/internal/events"
)

var memoryUsedPercent = prometheus.NewGauge(prometheus.GaugeOpts{
	Namespace: "modelhost",
	Subsystem: "memory",
	Name:      "used_percent",
	Help:      "Host memory usage percentage from the last sample",
})

func init() {
	prometheus.MustRegister(memoryUsedPercent)
}

// Monitor samples memory on a fixed interval, independent of any load
// request, and publishes memory.pressure events when pressure reaches High
// or Critical.
type Monitor struct {
	sampler  Sampler
	bus      *events.Bus
	log      zerolog.Logger
	interval time.Duration
	warning  float64
	critical float64
}

func NewMonitor(sampler Sampler, bus *events.Bus, log zerolog.Logger, interval time.Duration, warningPercent, criticalPercent float64) *Monitor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Monitor{
		sampler:  sampler,
		bus:      bus,
		log:      log.With().Str("component", "resmon").Logger(),
		interval: interval,
		warning:  warningPercent,
		critical: criticalPercent,
	}
}

// Current samples live and classifies the result.
func (m *Monitor) Current() (Snapshot, Pressure, error) {
	snap, err := m.sampler.Sample()
	if err != nil {
		return Snapshot{}, PressureLow, err
	}
	return snap, Classify(snap.UsedPercent(), m.warning, m.critical), nil
}

// Run ticks until ctx is done. One failed sample is logged and skipped, not
// fatal.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.tick()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.tick()
		}
	}
}

func (m *Monitor) tick() {
	snap, err := m.sampler.Sample()
	if err != nil {
		m.log.Warn().Err(err).Msg("memory sample failed")
		return
	}
	pct := snap.UsedPercent()
	memoryUsedPercent.Set(pct)
	pressure := Classify(pct, m.warning, m.critical)
	if pressure >= PressureHigh {
		m.log.Info().Float64("used_percent", pct).Stringer("pressure", pressure).Msg("memory pressure")
		m.bus.Publish(events.Event{
			Kind: events.KindMemoryPressure,
			Fields: map[string]any{
				"pressure":     pressure.String(),
				"used_percent": pct,
				"total_bytes":  snap.TotalBytes,
				"used_bytes":   snap.UsedBytes,
			},
		})
	}
}
