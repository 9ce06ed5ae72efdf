package manager

import (
	"fmt"
	"sort"

	"modelhost/internal/resmon"
	"modelhost/pkg/types"
)

// Action is the outcome of a loading decision.
type Action string

const (
	ActionLoad             Action = "load"
	ActionLoadWithEviction Action = "load_with_eviction"
	ActionDefer            Action = "defer"
)

// Decision is the strategy verdict for one load request. Victims are the
// instance ids to unload first, ordered least valuable first.
type Decision struct {
	Action  Action
	Victims []string
	Reason  string
}

// decideLocked picks the action for loading desc given the host snapshot.
// Caller holds m.mu; the verdict is therefore consistent with the loaded set
// it was computed against.
//
// The candidate footprint is inflated by the overhead multiplier before
// projection. A forced load always proceeds. Otherwise: below the warning
// threshold the model loads directly; between warning and critical it loads
// after evicting lower-value instances, deferring when nothing is evictable;
// at or above critical the load is always deferred.
func (m *Manager) decideLocked(desc types.ModelDescriptor, snap resmon.Snapshot, force bool) Decision {
	if force {
		return Decision{Action: ActionLoad}
	}

	need := int64(float64(desc.MemoryBytes) * m.cfg.OverheadMultiplier)
	projected := projectedPercent(snap, need)

	if projected >= m.cfg.CriticalThresholdPercent {
		return Decision{
			Action: ActionDefer,
			Reason: fmt.Sprintf("projected memory usage %.1f%% is at or above the critical threshold %.1f%%", projected, m.cfg.CriticalThresholdPercent),
		}
	}

	var victims []string
	freed := int64(0)
	if projected >= m.cfg.WarningThresholdPercent {
		for _, c := range m.victimCandidatesLocked(desc.Priority) {
			if freed >= need {
				break
			}
			victims = append(victims, c.desc.ID)
			freed += c.memoryBytes
		}
		if len(victims) == 0 {
			return Decision{
				Action: ActionDefer,
				Reason: fmt.Sprintf("projected memory usage %.1f%% exceeds the warning threshold and no instance is evictable", projected),
			}
		}
		// Eviction that cannot free the requested bytes only proceeds when
		// it at least brings the projection back to the warning line.
		if freed < need {
			after := projectedPercent(snap, need-freed)
			if after > m.cfg.WarningThresholdPercent {
				return Decision{
					Action: ActionDefer,
					Reason: fmt.Sprintf("evicting %d instance(s) frees only %d bytes and projected usage stays at %.1f%%", len(victims), freed, after),
				}
			}
		}
	}

	// The concurrency cap applies regardless of memory headroom.
	for _, c := range m.victimCandidatesLocked(desc.Priority) {
		if len(m.loaded)+1-len(victims) <= m.cfg.MaxConcurrentModels {
			break
		}
		if containsID(victims, c.desc.ID) {
			continue
		}
		victims = append(victims, c.desc.ID)
	}
	if len(m.loaded)+1-len(victims) > m.cfg.MaxConcurrentModels {
		return Decision{
			Action: ActionDefer,
			Reason: fmt.Sprintf("concurrency cap of %d reached and no instance is evictable", m.cfg.MaxConcurrentModels),
		}
	}

	if len(victims) > 0 {
		return Decision{
			Action:  ActionLoadWithEviction,
			Victims: victims,
			Reason:  fmt.Sprintf("projected memory usage %.1f%% requires evicting %d instance(s)", projected, len(victims)),
		}
	}
	return Decision{Action: ActionLoad}
}

// victimCandidatesLocked returns evictable instances ordered lowest priority
// first, then least recently used. Instances whose tier is strictly above
// the requester's are excluded, as are ones mid-transition or actively
// serving.
func (m *Manager) victimCandidatesLocked(requesterPriority int) []*loadedModel {
	out := make([]*loadedModel, 0, len(m.loaded))
	for _, lm := range m.loaded {
		if lm.state != StateLoaded && lm.state != StateError {
			continue
		}
		if lm.desc.Priority > requesterPriority {
			continue
		}
		out = append(out, lm)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].desc.Priority != out[j].desc.Priority {
			return out[i].desc.Priority < out[j].desc.Priority
		}
		return out[i].lastUsed.Before(out[j].lastUsed)
	})
	return out
}

// aggressiveVictimsLocked is the emergency-path selection: every instance is
// eligible except the single highest priority tier, ordered lowest priority
// first then oldest last-used first. When only one tier is loaded the
// protection yields, otherwise critical pressure could never be relieved.
func (m *Manager) aggressiveVictimsLocked() []*loadedModel {
	top := m.highestPriorityLocked()
	protectTop := false
	for _, lm := range m.loaded {
		if lm.desc.Priority != top {
			protectTop = true
			break
		}
	}
	out := make([]*loadedModel, 0, len(m.loaded))
	for _, lm := range m.loaded {
		if lm.state != StateLoaded && lm.state != StateError {
			continue
		}
		if protectTop && lm.desc.Priority == top {
			continue
		}
		out = append(out, lm)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].desc.Priority != out[j].desc.Priority {
			return out[i].desc.Priority < out[j].desc.Priority
		}
		return out[i].lastUsed.Before(out[j].lastUsed)
	})
	return out
}

// highestPriorityLocked returns the top priority tier among loaded
// instances; that tier is never unloaded automatically.
func (m *Manager) highestPriorityLocked() int {
	best := 0
	first := true
	for _, lm := range m.loaded {
		if first || lm.desc.Priority > best {
			best = lm.desc.Priority
			first = false
		}
	}
	return best
}

func projectedPercent(snap resmon.Snapshot, extra int64) float64 {
	if snap.TotalBytes <= 0 {
		return 0
	}
	return float64(snap.UsedBytes+extra) / float64(snap.TotalBytes) * 100
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
