package manager

import (
	"context"
	"sync/atomic"
	"time"

	"modelhost/internal/events"
	"modelhost/internal/resmon"
)

// Run drives the background maintenance loops until ctx is canceled: the
// idle sweep on its ticker, and emergency cleanup whenever a critical
// memory pressure event arrives.
func (m *Manager) Run(ctx context.Context) error {
	var cleanupBusy atomic.Bool
	unsub := m.bus.Subscribe(events.KindMemoryPressure, func(e events.Event) {
		if e.Fields["pressure"] != resmon.PressureCritical.String() {
			return
		}
		if !cleanupBusy.CompareAndSwap(false, true) {
			return
		}
		go func() {
			defer cleanupBusy.Store(false)
			m.emergencyCleanup(ctx)
		}()
	})
	defer unsub()

	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.sweepIdle()
		}
	}
}

// sweepIdle unloads instances idle longer than the auto-unload timeout.
// The highest priority tier present is exempt regardless of idle time, as
// are instances mid-transition or actively serving.
func (m *Manager) sweepIdle() {
	cutoff := m.clock().Add(-m.cfg.AutoUnloadTimeout)

	m.mu.Lock()
	top := m.highestPriorityLocked()
	victims := make(map[string]*loadedModel)
	for id, lm := range m.loaded {
		if lm.state != StateLoaded || lm.desc.Priority == top {
			continue
		}
		if lm.lastUsed.Before(cutoff) {
			lm.state = StateUnloading
			victims[id] = lm
		}
	}
	m.mu.Unlock()

	for id, lm := range victims {
		m.log.Info().Str("model", id).Time("last_used", lm.lastUsed).Msg("unloading idle model")
		m.completeUnload(id, lm, "idle")
	}
}

// emergencyCleanup sheds instances one at a time until host pressure drops
// below critical, re-sampling between unloads so it stops as soon as the
// host recovers. Only the single highest priority tier is spared.
func (m *Manager) emergencyCleanup(ctx context.Context) {
	for ctx.Err() == nil {
		snap, err := m.sampler.Sample()
		if err != nil {
			m.log.Warn().Err(err).Msg("emergency cleanup: memory sample failed")
			return
		}
		p := resmon.Classify(snap.UsedPercent(), m.cfg.WarningThresholdPercent, m.cfg.CriticalThresholdPercent)
		if p < resmon.PressureCritical {
			return
		}

		m.mu.Lock()
		var victimID string
		var victim *loadedModel
		if cands := m.aggressiveVictimsLocked(); len(cands) > 0 {
			victim = cands[0]
			victimID = victim.desc.ID
			victim.state = StateUnloading
		}
		m.mu.Unlock()

		if victim == nil {
			m.log.Warn().Msg("emergency cleanup: pressure critical but nothing evictable")
			return
		}
		m.log.Warn().Str("model", victimID).Float64("used_percent", snap.UsedPercent()).
			Msg("emergency cleanup: unloading under critical pressure")
		m.completeUnload(victimID, victim, "pressure")
	}
}

// OptimizeMemory proactively unloads idle instances, lowest priority and
// least recently used first, until pressure classifies low or nothing
// evictable remains. The highest priority tier is never touched. Returns
// the ids unloaded and the bytes freed.
func (m *Manager) OptimizeMemory(ctx context.Context) ([]string, int64, error) {
	var unloaded []string
	var freed int64
	for ctx.Err() == nil {
		snap, err := m.sampler.Sample()
		if err != nil {
			return unloaded, freed, err
		}
		p := resmon.Classify(snap.UsedPercent(), m.cfg.WarningThresholdPercent, m.cfg.CriticalThresholdPercent)
		if p == resmon.PressureLow {
			return unloaded, freed, nil
		}

		m.mu.Lock()
		var victimID string
		var victim *loadedModel
		if cands := m.aggressiveVictimsLocked(); len(cands) > 0 {
			victim = cands[0]
			victimID = victim.desc.ID
			victim.state = StateUnloading
		}
		m.mu.Unlock()

		if victim == nil {
			return unloaded, freed, nil
		}
		m.completeUnload(victimID, victim, "optimize")
		unloaded = append(unloaded, victimID)
		freed += victim.memoryBytes
	}
	return unloaded, freed, ctx.Err()
}
