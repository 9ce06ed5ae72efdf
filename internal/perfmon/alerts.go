package perfmon

import (
	"fmt"

	"github.com/google/uuid"
)

// Alert is raised by a threshold check and only resolved by an explicit
// ResolveAlert call; the monitor never auto-resolves.
type Alert struct {
	ID       string `json:"id"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	ModelID  string `json:"model_id,omitempty"`
	TimeUnix int64  `json:"time_unix"`
	Resolved bool   `json:"resolved"`
}

const (
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// checkThresholdsLocked fires on each metric insert. Caller holds p.mu.
func (p *Monitor) checkThresholdsLocked(m Metric) {
	switch m.Kind {
	case MetricInference:
		if m.Value > p.cfg.MaxInferenceMs {
			p.appendAlertLocked(Alert{
				Severity: SeverityWarning,
				ModelID:  m.ModelID,
				Message:  fmt.Sprintf("inference time %.0fms exceeds ceiling %.0fms", m.Value, p.cfg.MaxInferenceMs),
			})
		}
	case MetricMemory:
		if m.Value > p.cfg.MaxMemoryBytes {
			p.appendAlertLocked(Alert{
				Severity: SeverityWarning,
				ModelID:  m.ModelID,
				Message:  fmt.Sprintf("memory footprint %.0f bytes exceeds ceiling %.0f", m.Value, p.cfg.MaxMemoryBytes),
			})
		}
	case MetricError:
		msg := m.Meta["error"]
		if msg == "" {
			msg = "model reported an error"
		}
		p.appendAlertLocked(Alert{
			Severity: SeverityError,
			ModelID:  m.ModelID,
			Message:  msg,
		})
	}
}

// appendAlertLocked caps the list, dropping the oldest resolved alert first
// so unresolved alerts are retained preferentially.
func (p *Monitor) appendAlertLocked(a Alert) {
	a.ID = uuid.NewString()
	a.TimeUnix = p.clock().Unix()
	if len(p.alerts) >= p.cfg.MaxAlerts {
		dropped := false
		for i, old := range p.alerts {
			if old.Resolved {
				p.alerts = append(p.alerts[:i], p.alerts[i+1:]...)
				dropped = true
				break
			}
		}
		if !dropped {
			p.alerts = p.alerts[1:]
		}
	}
	p.alerts = append(p.alerts, a)
	p.log.Warn().Str("severity", a.Severity).Str("model", a.ModelID).Msg(a.Message)
}

// Alerts returns alerts in creation order; resolved ones are included only
// when requested.
func (p *Monitor) Alerts(includeResolved bool) []Alert {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Alert, 0, len(p.alerts))
	for _, a := range p.alerts {
		if !includeResolved && a.Resolved {
			continue
		}
		out = append(out, a)
	}
	return out
}

// ResolveAlert marks an alert resolved; returns false for unknown ids.
func (p *Monitor) ResolveAlert(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.alerts {
		if p.alerts[i].ID == id {
			p.alerts[i].Resolved = true
			return true
		}
	}
	return false
}
