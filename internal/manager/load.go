package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"modelhost/internal/events"
	"modelhost/internal/perfmon"
	"modelhost/internal/runtime"
	"modelhost/pkg/types"
)

// LoadModel brings the model into memory. Concurrent calls for the same id
// share one in-flight load; a model already loaded returns immediately.
func (m *Manager) LoadModel(ctx context.Context, id string, opts types.LoadOptions) error {
	_, err, _ := m.loads.Do(id, func() (any, error) {
		return nil, m.load(ctx, id, opts, true)
	})
	return err
}

// load performs one load attempt. allowRetry gates the single scheduled
// retry so a retry that fails again does not reschedule itself.
func (m *Manager) load(ctx context.Context, id string, opts types.LoadOptions, allowRetry bool) error {
	if m.isClosed() {
		return &Error{Code: CodeUnknown, ModelID: id, Message: "manager is shut down"}
	}

	desc, ok := m.reg.Get(id)
	if !ok {
		return errModelNotFound(id)
	}
	if desc.Format != types.FormatGGUF && desc.Format != types.FormatGGML {
		return errUnsupportedFormat(id, string(desc.Format))
	}

	snap, err := m.sampler.Sample()
	if err != nil {
		return errLoadingFailed(id, fmt.Errorf("memory sample: %w", err), true)
	}

	m.mu.Lock()
	if lm, ok := m.loaded[id]; ok {
		if lm.state == StateUnloading {
			m.mu.Unlock()
			return &Error{
				Code:        CodeLoadingFailed,
				ModelID:     id,
				Message:     "model is unloading",
				Recoverable: true,
				Suggestions: []string{"retry once the unload completes"},
			}
		}
		lm.lastUsed = m.clock()
		m.mu.Unlock()
		return nil
	}

	decision := m.decideLocked(desc, snap, opts.ForceLoad)
	if decision.Action == ActionDefer {
		m.mu.Unlock()
		return errInsufficientMemory(id, decision.Reason)
	}

	// Claim victims and the placeholder inside the same locked section so no
	// concurrent decision can double-count the headroom.
	victims := make(map[string]*loadedModel, len(decision.Victims))
	for _, vid := range decision.Victims {
		if lm, ok := m.loaded[vid]; ok && lm.state != StateUnloading {
			lm.state = StateUnloading
			victims[vid] = lm
		}
	}
	placeholder := &loadedModel{desc: desc, state: StateLoading, created: m.clock()}
	m.loaded[id] = placeholder
	m.mu.Unlock()

	for vid, lm := range victims {
		m.log.Info().Str("model", vid).Str("for", id).Msg("evicting to make room")
		m.completeUnload(vid, lm, "evicted")
	}

	start := m.clock()
	handle, err := m.factory.New(desc)
	if err == nil {
		err = handle.Load(ctx)
	}
	if err != nil {
		m.mu.Lock()
		delete(m.loaded, id)
		m.mu.Unlock()
		loadFailuresTotal.Inc()

		recoverable := !errors.Is(err, context.Canceled) && !errors.Is(err, runtime.ErrRuntimeUnavailable)
		lerr := errLoadingFailed(id, err, recoverable)
		m.bus.Publish(events.Event{
			Kind:    events.KindModelError,
			ModelID: id,
			Fields:  map[string]any{"stage": "load", "error": err.Error(), "recoverable": recoverable},
		})
		m.perf.Record(perfmon.Metric{
			ModelID: id, Kind: perfmon.MetricError, Value: 1,
			Meta: map[string]string{"stage": "load", "error": err.Error()},
		})
		if recoverable && allowRetry {
			m.scheduleRetry(id)
		}
		m.log.Error().Err(err).Str("model", id).Bool("recoverable", recoverable).Msg("load failed")
		return lerr
	}

	footprint := handle.MemoryFootprint()
	if footprint <= 0 {
		footprint = desc.MemoryBytes
	}
	loadDur := m.clock().Sub(start)

	m.mu.Lock()
	placeholder.handle = handle
	placeholder.state = StateLoaded
	placeholder.memoryBytes = footprint
	placeholder.lastUsed = m.clock()
	placeholder.lastErr = ""
	m.usedBytes += footprint
	if t, ok := m.pendingRetry[id]; ok {
		t.Stop()
		delete(m.pendingRetry, id)
	}
	m.updateGaugesLocked()
	m.mu.Unlock()

	loadsTotal.Inc()
	m.bus.Publish(events.Event{
		Kind:    events.KindModelLoaded,
		ModelID: id,
		Fields:  map[string]any{"memory_bytes": footprint, "load_ms": loadDur.Milliseconds(), "evicted": len(victims)},
	})
	m.perf.Record(perfmon.Metric{ModelID: id, Kind: perfmon.MetricLoad, Value: float64(loadDur.Milliseconds()), Unit: "ms"})
	m.perf.Record(perfmon.Metric{ModelID: id, Kind: perfmon.MetricMemory, Value: float64(footprint), Unit: "bytes"})
	m.log.Info().Str("model", id).Int64("memory_bytes", footprint).Dur("took", loadDur).Msg("model loaded")
	return nil
}

// scheduleRetry arms the single retry for a recoverable load failure. A
// retry already pending for the id is left in place.
func (m *Manager) scheduleRetry(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	if _, ok := m.pendingRetry[id]; ok {
		return
	}
	m.log.Info().Str("model", id).Dur("delay", m.cfg.RetryDelay).Msg("scheduling load retry")
	m.pendingRetry[id] = time.AfterFunc(m.cfg.RetryDelay, func() {
		m.mu.Lock()
		delete(m.pendingRetry, id)
		closed := m.closed
		m.mu.Unlock()
		if closed {
			return
		}
		_, err, _ := m.loads.Do(id, func() (any, error) {
			return nil, m.load(context.Background(), id, types.LoadOptions{}, false)
		})
		if err != nil {
			m.log.Warn().Err(err).Str("model", id).Msg("scheduled retry failed")
		}
	})
}
