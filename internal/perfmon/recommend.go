package perfmon

import "fmt"

// Recommendations derives heuristic tuning advice from the current summary.
// Regenerated on demand, never stored.
func (p *Monitor) Recommendations(modelID string) []string {
	s, ok := p.Summary(modelID)
	if !ok {
		return nil
	}
	var recs []string
	if s.AvgInferenceMs > p.cfg.MaxInferenceMs/2 {
		recs = append(recs, fmt.Sprintf("average inference latency is %.0fms; consider a smaller or more aggressively quantized model", s.AvgInferenceMs))
	}
	if s.ErrorRate > 0.1 {
		recs = append(recs, fmt.Sprintf("error rate is %.0f%%; inspect recent errors and reload the model", s.ErrorRate*100))
	}
	if s.PeakMemoryBytes > p.cfg.MaxMemoryBytes/2 {
		recs = append(recs, "peak memory is high; reduce context length or switch to a lower-precision variant")
	}
	if s.TokensPerSecond > 0 && s.TokensPerSecond < 5 {
		recs = append(recs, fmt.Sprintf("throughput is %.1f tokens/s; check host memory pressure or lower max_tokens", s.TokensPerSecond))
	}
	if tr := p.Trend(modelID, MetricInference); tr.Direction == TrendDegrading && tr.Confidence >= 0.5 {
		recs = append(recs, fmt.Sprintf("inference latency degraded %.1f%% over the last day; consider restarting the instance", tr.ChangePercent))
	}
	return recs
}
