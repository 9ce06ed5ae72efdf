package manager

import (
	"context"
	"fmt"

	"modelhost/internal/events"
	"modelhost/internal/perfmon"
	"modelhost/pkg/types"
)

// UnloadModel releases the model's runtime resources. Unloading a model that
// is not loaded is a no-op.
func (m *Manager) UnloadModel(ctx context.Context, id string) error {
	m.mu.Lock()
	lm, ok := m.loaded[id]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	switch lm.state {
	case StateUnloading:
		m.mu.Unlock()
		return nil
	case StateLoading, StateActive:
		state := lm.state
		m.mu.Unlock()
		return &Error{
			Code:        CodeUnknown,
			ModelID:     id,
			Message:     fmt.Sprintf("model is %s; retry when it settles", state),
			Recoverable: true,
			Suggestions: []string{"retry the unload shortly"},
		}
	}
	lm.state = StateUnloading
	m.mu.Unlock()

	m.completeUnload(id, lm, "requested")
	return ctx.Err()
}

// completeUnload releases the handle and removes the instance. The entry
// must already be in StateUnloading. A failing runtime release is logged and
// the instance is removed anyway so memory accounting stays truthful to the
// loaded set.
func (m *Manager) completeUnload(id string, lm *loadedModel, reason string) {
	if lm.handle != nil {
		if err := lm.handle.Unload(); err != nil {
			m.log.Warn().Err(err).Str("model", id).Msg("runtime release failed; removing instance anyway")
		}
	}

	m.mu.Lock()
	delete(m.loaded, id)
	m.usedBytes -= lm.memoryBytes
	m.updateGaugesLocked()
	m.mu.Unlock()

	unloadsTotal.WithLabelValues(reason).Inc()
	m.bus.Publish(events.Event{
		Kind:    events.KindModelUnloaded,
		ModelID: id,
		Fields:  map[string]any{"bytes_freed": lm.memoryBytes, "reason": reason},
	})
	m.log.Info().Str("model", id).Str("reason", reason).Int64("bytes_freed", lm.memoryBytes).Msg("model unloaded")
}

// SwitchModel loads "to" and, unless keepPrevious is set, unloads "from"
// afterwards so the window where neither is available is avoided. Switching
// to a model that is already loaded refreshes its last-used time only.
func (m *Manager) SwitchModel(ctx context.Context, from, to string, keepPrevious bool) error {
	if to == "" {
		return errModelNotFound(to)
	}
	if from == to {
		m.mu.Lock()
		if lm, ok := m.loaded[to]; ok && lm.state != StateUnloading {
			lm.lastUsed = m.clock()
			m.mu.Unlock()
			return nil
		}
		m.mu.Unlock()
	}

	start := m.clock()
	if err := m.LoadModel(ctx, to, types.LoadOptions{}); err != nil {
		return err
	}
	if !keepPrevious && from != "" && from != to {
		if err := m.UnloadModel(ctx, from); err != nil {
			m.log.Warn().Err(err).Str("model", from).Msg("unloading previous model after switch failed")
		}
	}

	m.bus.Publish(events.Event{
		Kind:    events.KindModelSwitched,
		ModelID: to,
		Fields:  map[string]any{"from": from, "kept_previous": keepPrevious},
	})
	m.perf.Record(perfmon.Metric{
		ModelID: to, Kind: perfmon.MetricSwitch,
		Value: float64(m.clock().Sub(start).Milliseconds()), Unit: "ms",
		Meta: map[string]string{"from": from},
	})
	return nil
}
