package resmon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"modelhost/internal/events"
)

func TestClassifyBoundaries(t *testing.T) {
	cases := []struct {
		used float64
		want Pressure
	}{
		{10, PressureLow},
		{64.9, PressureLow},
		{65, PressureModerate},
		{79.9, PressureModerate},
		{80, PressureHigh},
		{94.9, PressureHigh},
		{95, PressureCritical},
		{100, PressureCritical},
	}
	for _, c := range cases {
		if got := Classify(c.used, 80, 95); got != c.want {
			t.Fatalf("Classify(%v) = %v, want %v", c.used, got, c.want)
		}
	}
}

func TestSnapshotUsedPercent(t *testing.T) {
	s := Snapshot{TotalBytes: 10 << 30, UsedBytes: 7 << 30}
	if pct := s.UsedPercent(); pct < 69.9 || pct > 70.1 {
		t.Fatalf("expected ~70%%, got %v", pct)
	}
	if (Snapshot{}).UsedPercent() != 0 {
		t.Fatalf("zero snapshot should report 0%%")
	}
}

func TestProcSampler(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "meminfo")
	content := "MemTotal:       16384000 kB\nMemFree:         1024000 kB\nMemAvailable:    4096000 kB\nBuffers:          512000 kB\n"
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	snap, err := ProcSampler{Path: p}.Sample()
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	if snap.TotalBytes != 16384000*1024 {
		t.Fatalf("total: got %d", snap.TotalBytes)
	}
	if snap.UsedBytes != (16384000-4096000)*1024 {
		t.Fatalf("used: got %d", snap.UsedBytes)
	}
}

func TestProcSamplerMissingFile(t *testing.T) {
	if _, err := (ProcSampler{Path: filepath.Join(t.TempDir(), "nope")}).Sample(); err == nil {
		t.Fatalf("expected error")
	}
}

func TestMonitorPublishesPressureEvents(t *testing.T) {
	sampler := NewStaticSampler(100, 96) // 96% -> critical
	bus := events.NewBus()
	rec := events.NewRecorder()
	bus.Subscribe(events.KindMemoryPressure, rec.Handle)

	m := NewMonitor(sampler, bus, zerolog.Nop(), 5*time.Millisecond, 80, 95)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = m.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for len(rec.ByKind(events.KindMemoryPressure)) == 0 {
		select {
		case <-deadline:
			t.Fatalf("no pressure event published")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done

	ev := rec.ByKind(events.KindMemoryPressure)[0]
	if ev.Fields["pressure"] != "critical" {
		t.Fatalf("expected critical, got %v", ev.Fields["pressure"])
	}
}

func TestMonitorQuietBelowHigh(t *testing.T) {
	sampler := NewStaticSampler(100, 50)
	bus := events.NewBus()
	rec := events.NewRecorder()
	bus.Subscribe(events.KindMemoryPressure, rec.Handle)

	m := NewMonitor(sampler, bus, zerolog.Nop(), 5*time.Millisecond, 80, 95)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_ = m.Run(ctx)

	if n := len(rec.ByKind(events.KindMemoryPressure)); n != 0 {
		t.Fatalf("expected no pressure events at 50%%, got %d", n)
	}
}

func TestMonitorCurrent(t *testing.T) {
	sampler := NewStaticSampler(1000, 850)
	m := NewMonitor(sampler, events.NewBus(), zerolog.Nop(), time.Second, 80, 95)
	snap, pressure, err := m.Current()
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if snap.UsedBytes != 850 || pressure != PressureHigh {
		t.Fatalf("unexpected: snap=%+v pressure=%v", snap, pressure)
	}
	sampler.Set(1000, 100)
	_, pressure, _ = m.Current()
	if pressure != PressureLow {
		t.Fatalf("expected low after set, got %v", pressure)
	}
}
