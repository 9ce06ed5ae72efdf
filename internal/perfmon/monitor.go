// Package perfmon records performance metrics emitted by the lifecycle
// manager and inference cache, computes per-model summaries and trends, and
// raises threshold alerts.
package perfmon

import (
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"modelhost/internal/events"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultMaxSamplesPerModel = 512
	defaultMaxAlerts          = 128
	defaultMaxInferenceMs     = 10_000
	defaultMaxMemoryBytes     = 12 << 30
)

// Config holds monitor tunables.
type Config struct {
	MaxSamplesPerModel int
	MaxAlerts          int
	// Alert ceilings.
	MaxInferenceMs float64
	MaxMemoryBytes float64
}

func (c Config) withDefaults() Config {
	if c.MaxSamplesPerModel <= 0 {
		c.MaxSamplesPerModel = defaultMaxSamplesPerModel
	}
	if c.MaxAlerts <= 0 {
		c.MaxAlerts = defaultMaxAlerts
	}
	if c.MaxInferenceMs <= 0 {
		c.MaxInferenceMs = defaultMaxInferenceMs
	}
	if c.MaxMemoryBytes <= 0 {
		c.MaxMemoryBytes = defaultMaxMemoryBytes
	}
	return c
}

// Summary is the derived view of one model's ring buffer, recomputed on
// every insert and never independently mutated.
type Summary struct {
	ModelID         string  `json:"model_id"`
	Samples         int     `json:"samples"`
	AvgLoadMs       float64 `json:"avg_load_ms"`
	AvgInferenceMs  float64 `json:"avg_inference_ms"`
	PeakMemoryBytes float64 `json:"peak_memory_bytes"`
	ErrorRate       float64 `json:"error_rate"`
	TokensPerSecond float64 `json:"tokens_per_second"`
	UptimeSeconds   float64 `json:"uptime_seconds"`
	EfficiencyScore float64 `json:"efficiency_score"`
}

// Monitor owns per-model metric rings, summaries, and the alert list.
type Monitor struct {
	cfg Config
	bus *events.Bus
	log zerolog.Logger

	mu        sync.RWMutex
	rings     map[string]*ring
	summaries map[string]Summary
	alerts    []Alert

	clock func() time.Time
}

func New(cfg Config, bus *events.Bus, log zerolog.Logger) *Monitor {
	return &Monitor{
		cfg:       cfg.withDefaults(),
		bus:       bus,
		log:       log.With().Str("component", "perfmon").Logger(),
		rings:     make(map[string]*ring),
		summaries: make(map[string]Summary),
		clock:     time.Now,
	}
}

// Record appends a sample, recomputes the model's summary, and runs
// threshold checks.
func (p *Monitor) Record(m Metric) {
	if m.Time.IsZero() {
		m.Time = p.clock()
	}
	p.mu.Lock()
	r := p.rings[m.ModelID]
	if r == nil {
		r = newRing(p.cfg.MaxSamplesPerModel)
		p.rings[m.ModelID] = r
	}
	r.add(m)
	summary := computeSummary(m.ModelID, r.items())
	p.summaries[m.ModelID] = summary
	p.checkThresholdsLocked(m)
	p.mu.Unlock()

	observeMetric(m)
	if p.bus != nil {
		p.bus.Publish(events.Event{
			Kind:    events.KindMetricsCollected,
			ModelID: m.ModelID,
			Fields:  map[string]any{"kind": string(m.Kind), "value": m.Value, "unit": m.Unit},
		})
	}
}

// Summary returns the derived view for one model.
func (p *Monitor) Summary(modelID string) (Summary, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.summaries[modelID]
	return s, ok
}

// Summaries returns all model summaries sorted by id.
func (p *Monitor) Summaries() []Summary {
	p.mu.RLock()
	out := make([]Summary, 0, len(p.summaries))
	for _, s := range p.summaries {
		out = append(out, s)
	}
	p.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ModelID < out[j].ModelID })
	return out
}

func computeSummary(modelID string, items []Metric) Summary {
	s := Summary{ModelID: modelID, Samples: len(items)}
	if len(items) == 0 {
		return s
	}
	var loadSum, loadN, infSum, infN float64
	var errN float64
	var tokenSum, infSeconds float64
	var oldest, newest time.Time
	for _, m := range items {
		if oldest.IsZero() || m.Time.Before(oldest) {
			oldest = m.Time
		}
		if m.Time.After(newest) {
			newest = m.Time
		}
		switch m.Kind {
		case MetricLoad:
			loadSum += m.Value
			loadN++
		case MetricInference:
			infSum += m.Value
			infN++
			infSeconds += m.Value / 1000
			if t, err := strconv.Atoi(m.Meta["tokens"]); err == nil {
				tokenSum += float64(t)
			}
		case MetricMemory:
			if m.Value > s.PeakMemoryBytes {
				s.PeakMemoryBytes = m.Value
			}
		case MetricError:
			errN++
		}
	}
	if loadN > 0 {
		s.AvgLoadMs = loadSum / loadN
	}
	if infN > 0 {
		s.AvgInferenceMs = infSum / infN
	}
	if errN+infN > 0 {
		s.ErrorRate = errN / (errN + infN)
	}
	if infSeconds > 0 {
		s.TokensPerSecond = tokenSum / infSeconds
	}
	s.UptimeSeconds = newest.Sub(oldest).Seconds()
	// Higher throughput on a smaller footprint scores better.
	gb := s.PeakMemoryBytes / (1 << 30)
	s.EfficiencyScore = s.TokensPerSecond / (gb + 1)
	return s
}
