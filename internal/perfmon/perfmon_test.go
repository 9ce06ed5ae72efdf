package perfmon

import (
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"modelhost/internal/events"
)

func newTestMonitor(cfg Config) *Monitor {
	return New(cfg, events.NewBus(), zerolog.Nop())
}

func TestRingDropsOldestFirst(t *testing.T) {
	r := newRing(3)
	for i := 0; i < 5; i++ {
		r.add(Metric{Value: float64(i)})
	}
	items := r.items()
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	for i, m := range items {
		if m.Value != float64(i+2) {
			t.Fatalf("expected oldest-first [2 3 4], got %v at %d", m.Value, i)
		}
	}
}

func TestSummaryRecomputedOnInsert(t *testing.T) {
	p := newTestMonitor(Config{})
	p.Record(Metric{ModelID: "m", Kind: MetricLoad, Value: 1000, Unit: "ms"})
	p.Record(Metric{ModelID: "m", Kind: MetricLoad, Value: 3000, Unit: "ms"})
	p.Record(Metric{ModelID: "m", Kind: MetricInference, Value: 500, Unit: "ms", Meta: map[string]string{"tokens": "100"}})
	p.Record(Metric{ModelID: "m", Kind: MetricMemory, Value: 2 << 30, Unit: "bytes"})

	s, ok := p.Summary("m")
	if !ok {
		t.Fatalf("expected summary")
	}
	if s.AvgLoadMs != 2000 {
		t.Fatalf("avg load: got %v", s.AvgLoadMs)
	}
	if s.AvgInferenceMs != 500 {
		t.Fatalf("avg inference: got %v", s.AvgInferenceMs)
	}
	if s.PeakMemoryBytes != float64(2<<30) {
		t.Fatalf("peak memory: got %v", s.PeakMemoryBytes)
	}
	// 100 tokens in 0.5s.
	if s.TokensPerSecond < 199 || s.TokensPerSecond > 201 {
		t.Fatalf("tokens/s: got %v", s.TokensPerSecond)
	}
	if s.ErrorRate != 0 {
		t.Fatalf("error rate: got %v", s.ErrorRate)
	}
}

func TestErrorRate(t *testing.T) {
	p := newTestMonitor(Config{})
	for i := 0; i < 3; i++ {
		p.Record(Metric{ModelID: "m", Kind: MetricInference, Value: 100})
	}
	p.Record(Metric{ModelID: "m", Kind: MetricError, Value: 1})
	s, _ := p.Summary("m")
	if s.ErrorRate != 0.25 {
		t.Fatalf("expected 0.25, got %v", s.ErrorRate)
	}
}

func TestTrendDegradingAndStable(t *testing.T) {
	p := newTestMonitor(Config{})
	now := time.Now()
	p.clock = func() time.Time { return now }

	// Previous window: ~100ms. Recent window: ~200ms -> degrading.
	for i := 0; i < 6; i++ {
		p.Record(Metric{ModelID: "m", Kind: MetricInference, Value: 100, Time: now.Add(-30 * time.Hour)})
		p.Record(Metric{ModelID: "m", Kind: MetricInference, Value: 200, Time: now.Add(-2 * time.Hour)})
	}
	tr := p.Trend("m", MetricInference)
	if tr.Direction != TrendDegrading {
		t.Fatalf("expected degrading, got %v (%+v)", tr.Direction, tr)
	}
	if tr.ChangePercent < 99 || tr.ChangePercent > 101 {
		t.Fatalf("change percent: got %v", tr.ChangePercent)
	}
	if tr.Confidence != 1 {
		t.Fatalf("confidence: got %v", tr.Confidence)
	}

	// Small change stays stable.
	p2 := newTestMonitor(Config{})
	p2.clock = func() time.Time { return now }
	for i := 0; i < 6; i++ {
		p2.Record(Metric{ModelID: "m", Kind: MetricInference, Value: 100, Time: now.Add(-30 * time.Hour)})
		p2.Record(Metric{ModelID: "m", Kind: MetricInference, Value: 102, Time: now.Add(-2 * time.Hour)})
	}
	if tr := p2.Trend("m", MetricInference); tr.Direction != TrendStable {
		t.Fatalf("expected stable, got %v", tr.Direction)
	}
}

func TestErrorRateTrendDegrading(t *testing.T) {
	p := newTestMonitor(Config{})
	now := time.Now()
	p.clock = func() time.Time { return now }

	// Previous window: 1 failure in 20 calls. Recent window: 10 failures
	// in 20 calls. Every error sample carries value 1, so only the
	// per-window failure rate can expose the regression.
	prev := now.Add(-30 * time.Hour)
	recent := now.Add(-2 * time.Hour)
	for i := 0; i < 19; i++ {
		p.Record(Metric{ModelID: "m", Kind: MetricInference, Value: 100, Time: prev})
	}
	p.Record(Metric{ModelID: "m", Kind: MetricError, Value: 1, Time: prev})
	for i := 0; i < 10; i++ {
		p.Record(Metric{ModelID: "m", Kind: MetricInference, Value: 100, Time: recent})
		p.Record(Metric{ModelID: "m", Kind: MetricError, Value: 1, Time: recent})
	}

	tr := p.Trend("m", MetricError)
	if tr.Direction != TrendDegrading {
		t.Fatalf("expected degrading, got %v (%+v)", tr.Direction, tr)
	}
	// 5% -> 50%, a 45-point rise.
	if tr.ChangePercent < 44 || tr.ChangePercent > 46 {
		t.Fatalf("change percent: got %v", tr.ChangePercent)
	}
}

func TestErrorRateTrendImprovingWhenFailuresStop(t *testing.T) {
	p := newTestMonitor(Config{})
	now := time.Now()
	p.clock = func() time.Time { return now }

	prev := now.Add(-30 * time.Hour)
	recent := now.Add(-2 * time.Hour)
	for i := 0; i < 5; i++ {
		p.Record(Metric{ModelID: "m", Kind: MetricInference, Value: 100, Time: prev})
		p.Record(Metric{ModelID: "m", Kind: MetricError, Value: 1, Time: prev})
		p.Record(Metric{ModelID: "m", Kind: MetricInference, Value: 100, Time: recent})
	}

	tr := p.Trend("m", MetricError)
	if tr.Direction != TrendImproving {
		t.Fatalf("expected improving, got %v (%+v)", tr.Direction, tr)
	}
}

func TestTrendImprovingWithSparseConfidence(t *testing.T) {
	p := newTestMonitor(Config{})
	now := time.Now()
	p.clock = func() time.Time { return now }
	p.Record(Metric{ModelID: "m", Kind: MetricInference, Value: 200, Time: now.Add(-30 * time.Hour)})
	p.Record(Metric{ModelID: "m", Kind: MetricInference, Value: 100, Time: now.Add(-time.Hour)})
	tr := p.Trend("m", MetricInference)
	if tr.Direction != TrendImproving {
		t.Fatalf("expected improving, got %v", tr.Direction)
	}
	if tr.Confidence >= 1 {
		t.Fatalf("expected low confidence with 1 sample per window, got %v", tr.Confidence)
	}
}

func TestTrendNoPreviousWindow(t *testing.T) {
	p := newTestMonitor(Config{})
	p.Record(Metric{ModelID: "m", Kind: MetricInference, Value: 100})
	if tr := p.Trend("m", MetricInference); tr.Direction != TrendStable {
		t.Fatalf("expected stable without previous window, got %v", tr.Direction)
	}
}

func TestAlertsOnThresholds(t *testing.T) {
	p := newTestMonitor(Config{MaxInferenceMs: 1000, MaxMemoryBytes: 1 << 30})
	p.Record(Metric{ModelID: "m", Kind: MetricInference, Value: 5000})
	p.Record(Metric{ModelID: "m", Kind: MetricMemory, Value: 2 << 30})
	p.Record(Metric{ModelID: "m", Kind: MetricError, Value: 1, Meta: map[string]string{"error": "boom"}})

	alerts := p.Alerts(true)
	if len(alerts) != 3 {
		t.Fatalf("expected 3 alerts, got %d", len(alerts))
	}
	if alerts[2].Severity != SeverityError || alerts[2].Message != "boom" {
		t.Fatalf("unexpected error alert: %+v", alerts[2])
	}
	// Below ceilings: no alert.
	p.Record(Metric{ModelID: "m", Kind: MetricInference, Value: 10})
	if len(p.Alerts(true)) != 3 {
		t.Fatalf("unexpected alert below ceiling")
	}
}

func TestResolveAlertExplicitOnly(t *testing.T) {
	p := newTestMonitor(Config{MaxInferenceMs: 1})
	p.Record(Metric{ModelID: "m", Kind: MetricInference, Value: 100})
	alerts := p.Alerts(false)
	if len(alerts) != 1 || alerts[0].Resolved {
		t.Fatalf("expected one unresolved alert")
	}
	// More inserts never auto-resolve.
	p.Record(Metric{ModelID: "m", Kind: MetricLoad, Value: 1})
	if len(p.Alerts(false)) != 1 {
		t.Fatalf("alert auto-resolved")
	}
	if !p.ResolveAlert(alerts[0].ID) {
		t.Fatalf("resolve failed")
	}
	if len(p.Alerts(false)) != 0 {
		t.Fatalf("resolved alert still listed")
	}
	if len(p.Alerts(true)) != 1 {
		t.Fatalf("resolved alert missing from full list")
	}
	if p.ResolveAlert("nope") {
		t.Fatalf("resolving unknown id should fail")
	}
}

func TestAlertCapDropsResolvedFirst(t *testing.T) {
	p := newTestMonitor(Config{MaxAlerts: 3, MaxInferenceMs: 1})
	for i := 0; i < 3; i++ {
		p.Record(Metric{ModelID: fmt.Sprintf("m%d", i), Kind: MetricInference, Value: 100})
	}
	all := p.Alerts(true)
	p.ResolveAlert(all[1].ID)

	// A fourth alert drops the resolved one, not the oldest unresolved.
	p.Record(Metric{ModelID: "m3", Kind: MetricInference, Value: 100})
	after := p.Alerts(true)
	if len(after) != 3 {
		t.Fatalf("expected capped list of 3, got %d", len(after))
	}
	for _, a := range after {
		if a.ID == all[1].ID {
			t.Fatalf("resolved alert should have been dropped first")
		}
	}
	if after[0].ID != all[0].ID {
		t.Fatalf("oldest unresolved alert should survive")
	}
}

func TestRecommendations(t *testing.T) {
	p := newTestMonitor(Config{MaxInferenceMs: 1000})
	p.Record(Metric{ModelID: "m", Kind: MetricInference, Value: 900})
	recs := p.Recommendations("m")
	if len(recs) == 0 {
		t.Fatalf("expected a latency recommendation")
	}
	if p.Recommendations("unknown") != nil {
		t.Fatalf("expected nil for unknown model")
	}
}

func TestMetricsCollectedEvent(t *testing.T) {
	bus := events.NewBus()
	rec := events.NewRecorder()
	bus.Subscribe(events.KindMetricsCollected, rec.Handle)
	p := New(Config{}, bus, zerolog.Nop())
	p.Record(Metric{ModelID: "m", Kind: MetricLoad, Value: 10, Unit: "ms"})
	evs := rec.ByKind(events.KindMetricsCollected)
	if len(evs) != 1 || evs[0].ModelID != "m" || evs[0].Fields["kind"] != "load" {
		t.Fatalf("unexpected events: %+v", evs)
	}
}
