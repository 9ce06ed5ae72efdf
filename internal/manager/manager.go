package manager

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"modelhost/internal/events"
	"modelhost/internal/perfmon"
	"modelhost/internal/registry"
	"modelhost/internal/resmon"
	"modelhost/internal/runtime"
	"modelhost/pkg/types"
)

// Manager owns the loaded-model set and is the single writer of model
// lifecycle state. All transitions happen under its mutex; usedBytes is
// mutated in the same locked section as the loaded map so the two can never
// be observed out of sync.
type Manager struct {
	cfg     Config
	reg     *registry.Registry
	factory runtime.Factory
	sampler resmon.Sampler
	bus     *events.Bus
	perf    perfmon.Recorder
	log     zerolog.Logger

	// loads collapses concurrent LoadModel calls for the same id into one
	// in-flight load.
	loads singleflight.Group

	mu        sync.Mutex
	loaded    map[string]*loadedModel
	usedBytes int64
	// pendingRetry holds the timer for the single scheduled retry of a
	// recoverable load failure, keyed by model id.
	pendingRetry map[string]*time.Timer
	closed       bool

	started time.Time
	clock   func() time.Time
}

func New(cfg Config, reg *registry.Registry, factory runtime.Factory, sampler resmon.Sampler, bus *events.Bus, perf perfmon.Recorder, log zerolog.Logger) *Manager {
	if bus == nil {
		bus = events.NewBus()
	}
	if perf == nil {
		perf = perfmon.NopRecorder{}
	}
	return &Manager{
		cfg:          cfg.withDefaults(),
		reg:          reg,
		factory:      factory,
		sampler:      sampler,
		bus:          bus,
		perf:         perf,
		log:          log.With().Str("component", "manager").Logger(),
		loaded:       make(map[string]*loadedModel),
		pendingRetry: make(map[string]*time.Timer),
		started:      time.Now(),
		clock:        time.Now,
	}
}

// Stats returns an aggregate snapshot of the loaded set.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{LoadedCount: len(m.loaded), TotalMemoryUsed: m.usedBytes}
}

// IsLoaded reports whether id has a live instance (any state but unloading).
func (m *Manager) IsLoaded(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	lm, ok := m.loaded[id]
	return ok && lm.state != StateUnloading
}

// Status assembles the full daemon status view, including a fresh host
// memory sample and its pressure classification.
func (m *Manager) Status() types.StatusResponse {
	snap, err := m.sampler.Sample()
	pressure := "unknown"
	if err == nil {
		pressure = resmon.Classify(snap.UsedPercent(), m.cfg.WarningThresholdPercent, m.cfg.CriticalThresholdPercent).String()
	}

	m.mu.Lock()
	models := make([]types.LoadedModelStatus, 0, len(m.loaded))
	for id, lm := range m.loaded {
		models = append(models, types.LoadedModelStatus{
			ModelID:      id,
			State:        string(lm.state),
			MemoryBytes:  lm.memoryBytes,
			Priority:     lm.desc.Priority,
			Inferences:   lm.inferences,
			AvgLatencyMs: lm.avgLatency.Milliseconds(),
			LastUsed:     lm.lastUsed.Unix(),
			Created:      lm.created.Unix(),
			Error:        lm.lastErr,
		})
	}
	total := m.usedBytes
	m.mu.Unlock()

	sort.Slice(models, func(i, j int) bool { return models[i].ModelID < models[j].ModelID })
	return types.StatusResponse{
		Models:          models,
		TotalMemoryUsed: total,
		HostTotalBytes:  snap.TotalBytes,
		HostUsedBytes:   snap.UsedBytes,
		Pressure:        pressure,
		Registered:      m.reg.Len(),
		UptimeSeconds:   int64(m.clock().Sub(m.started).Seconds()),
	}
}

// Close cancels pending retries and unloads every instance. Safe to call
// once; subsequent lifecycle calls fail.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	for id, t := range m.pendingRetry {
		t.Stop()
		delete(m.pendingRetry, id)
	}
	var ids []string
	for id, lm := range m.loaded {
		if lm.state != StateUnloading {
			lm.state = StateUnloading
			ids = append(ids, id)
		}
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.mu.Lock()
		lm := m.loaded[id]
		m.mu.Unlock()
		if lm != nil {
			m.completeUnload(id, lm, "shutdown")
		}
	}
	return ctx.Err()
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
