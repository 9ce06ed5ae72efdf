// Package resmon samples host memory through an injected capability and
// classifies usage into pressure levels. The core never computes real memory
// figures itself and never uses randomness.
package resmon

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Snapshot is one memory sample.
type Snapshot struct {
	TotalBytes int64
	UsedBytes  int64
}

// UsedPercent returns used/total as a percentage; 0 when total is unknown.
func (s Snapshot) UsedPercent() float64 {
	if s.TotalBytes <= 0 {
		return 0
	}
	return float64(s.UsedBytes) / float64(s.TotalBytes) * 100
}

// Sampler is the platform-specific resource snapshot capability.
type Sampler interface {
	Sample() (Snapshot, error)
}

// Pressure classifies current usage against configured thresholds. It is
// always recomputed from a snapshot, never stored.
type Pressure int

const (
	PressureLow Pressure = iota
	PressureModerate
	PressureHigh
	PressureCritical
)

func (p Pressure) String() string {
	switch p {
	case PressureLow:
		return "low"
	case PressureModerate:
		return "moderate"
	case PressureHigh:
		return "high"
	case PressureCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// moderateBand is how far below the warning threshold usage may sit before
// being classified Low rather than Moderate.
const moderateBand = 15.0

// Classify maps a usage percentage onto a pressure level.
func Classify(usedPercent, warningPercent, criticalPercent float64) Pressure {
	switch {
	case usedPercent >= criticalPercent:
		return PressureCritical
	case usedPercent >= warningPercent:
		return PressureHigh
	case usedPercent >= warningPercent-moderateBand:
		return PressureModerate
	default:
		return PressureLow
	}
}

// ProcSampler reads /proc/meminfo. Used is MemTotal - MemAvailable.
type ProcSampler struct {
	// Path overrides /proc/meminfo, for tests.
	Path string
}

func (p ProcSampler) Sample() (Snapshot, error) {
	path := p.Path
	if path == "" {
		path = "/proc/meminfo"
	}
	f, err := os.Open(path)
	if err != nil {
		return Snapshot{}, err
	}
	defer f.Close()

	var totalKB, availKB int64
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "MemTotal:"):
			totalKB = parseMeminfoKB(line)
		case strings.HasPrefix(line, "MemAvailable:"):
			availKB = parseMeminfoKB(line)
		}
		if totalKB > 0 && availKB > 0 {
			break
		}
	}
	if err := sc.Err(); err != nil {
		return Snapshot{}, err
	}
	if totalKB <= 0 {
		return Snapshot{}, fmt.Errorf("meminfo: MemTotal not found in %s", path)
	}
	return Snapshot{
		TotalBytes: totalKB * 1024,
		UsedBytes:  (totalKB - availKB) * 1024,
	}, nil
}

func parseMeminfoKB(line string) int64 {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0
	}
	n, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// StaticSampler returns a fixed snapshot; used in tests and as a stand-in
// when no platform sampler is available.
type StaticSampler struct {
	mu   sync.Mutex
	snap Snapshot
}

func NewStaticSampler(total, used int64) *StaticSampler {
	return &StaticSampler{snap: Snapshot{TotalBytes: total, UsedBytes: used}}
}

func (s *StaticSampler) Sample() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap, nil
}

// Set replaces the snapshot returned by future samples.
func (s *StaticSampler) Set(total, used int64) {
	s.mu.Lock()
	s.snap = Snapshot{TotalBytes: total, UsedBytes: used}
	s.mu.Unlock()
}
