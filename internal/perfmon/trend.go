package perfmon

import "time"

// TrendDirection reports how a metric is moving across the trend windows.
type TrendDirection string

const (
	TrendImproving TrendDirection = "improving"
	TrendDegrading TrendDirection = "degrading"
	TrendStable    TrendDirection = "stable"
)

// Trend compares a recent window against the immediately preceding window
// of equal length.
type Trend struct {
	ModelID       string         `json:"model_id"`
	Metric        MetricKind     `json:"metric"`
	Direction     TrendDirection `json:"direction"`
	ChangePercent float64        `json:"change_percent"`
	// Confidence scales with window sample counts, capped at 1.0.
	Confidence float64 `json:"confidence"`
}

const (
	trendWindow = 24 * time.Hour
	// Relative change below the noise threshold reads as stable.
	noiseThresholdDefault   = 0.05
	noiseThresholdErrorRate = 0.10
	trendMinSamples         = 5
)

// Trend computes the movement of one metric kind for one model. Lower values
// are better for every tracked kind (latency, memory, errors), so a negative
// change is improvement. Latency and memory compare window averages
// relatively; the error kind compares the per-window failure rate
// (errors / (errors + inferences)) as an absolute difference, so a window
// without failures still participates.
func (p *Monitor) Trend(modelID string, kind MetricKind) Trend {
	t := Trend{ModelID: modelID, Metric: kind, Direction: TrendStable}

	p.mu.RLock()
	r := p.rings[modelID]
	var items []Metric
	if r != nil {
		items = r.items()
	}
	p.mu.RUnlock()
	if len(items) == 0 {
		return t
	}

	now := p.clock()
	recentStart := now.Add(-trendWindow)
	previousStart := now.Add(-2 * trendWindow)

	var recentAvg, previousAvg float64
	var recentN, previousN int
	if kind == MetricError {
		recentAvg, previousAvg, recentN, previousN = errorRates(items, recentStart, previousStart)
	} else {
		var recentSum, previousSum float64
		for _, m := range items {
			if m.Kind != kind {
				continue
			}
			switch {
			case !m.Time.Before(recentStart):
				recentSum += m.Value
				recentN++
			case !m.Time.Before(previousStart):
				previousSum += m.Value
				previousN++
			}
		}
		if recentN > 0 {
			recentAvg = recentSum / float64(recentN)
		}
		if previousN > 0 {
			previousAvg = previousSum / float64(previousN)
		}
	}
	if recentN == 0 || previousN == 0 {
		return t
	}

	var change float64
	if kind == MetricError {
		change = recentAvg - previousAvg
	} else {
		if previousAvg == 0 {
			return t
		}
		change = (recentAvg - previousAvg) / previousAvg
	}
	t.ChangePercent = change * 100

	minN := recentN
	if previousN < minN {
		minN = previousN
	}
	t.Confidence = float64(minN) / trendMinSamples
	if t.Confidence > 1 {
		t.Confidence = 1
	}

	noise := noiseThresholdDefault
	if kind == MetricError {
		noise = noiseThresholdErrorRate
	}
	switch {
	case change <= -noise:
		t.Direction = TrendImproving
	case change >= noise:
		t.Direction = TrendDegrading
	}
	return t
}

// errorRates computes the failure rate of each trend window. The window
// population is error plus inference samples, so a quiet model yields zero
// counts rather than a misleading rate.
func errorRates(items []Metric, recentStart, previousStart time.Time) (recent, previous float64, recentN, previousN int) {
	var errs, totals [2]int
	for _, m := range items {
		if m.Kind != MetricError && m.Kind != MetricInference {
			continue
		}
		var w int
		switch {
		case !m.Time.Before(recentStart):
			w = 0
		case !m.Time.Before(previousStart):
			w = 1
		default:
			continue
		}
		totals[w]++
		if m.Kind == MetricError {
			errs[w]++
		}
	}
	if totals[0] > 0 {
		recent = float64(errs[0]) / float64(totals[0])
	}
	if totals[1] > 0 {
		previous = float64(errs[1]) / float64(totals[1])
	}
	return recent, previous, totals[0], totals[1]
}
