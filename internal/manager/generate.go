package manager

import (
	"context"
	"errors"
	"strconv"
	"time"

	"modelhost/internal/events"
	"modelhost/internal/perfmon"
	"modelhost/pkg/types"
)

// GenerateText runs one synchronous completion, loading the model first if
// needed.
func (m *Manager) GenerateText(ctx context.Context, id, prompt string, opts types.GenerateOptions) (types.GenerateResult, error) {
	return m.generate(ctx, id, prompt, opts, nil)
}

// GenerateTextStream runs one streaming completion. onToken is invoked for
// every produced token before the next is generated; each token is also
// published as a stream event.
func (m *Manager) GenerateTextStream(ctx context.Context, id, prompt string, opts types.GenerateOptions, onToken func(token string) error) (types.GenerateResult, error) {
	return m.generate(ctx, id, prompt, opts, onToken)
}

func (m *Manager) generate(ctx context.Context, id, prompt string, opts types.GenerateOptions, onToken func(string) error) (types.GenerateResult, error) {
	lm, err := m.acquire(ctx, id)
	if err != nil {
		return types.GenerateResult{}, err
	}

	start := m.clock()
	var res types.GenerateResult
	if onToken == nil {
		res, err = lm.handle.Generate(ctx, prompt, opts)
	} else {
		n := 0
		res, err = lm.handle.GenerateStream(ctx, prompt, opts, func(token string) error {
			m.bus.Publish(events.Event{
				Kind:    events.KindModelStreamToken,
				ModelID: id,
				Fields:  map[string]any{"token": token, "index": n},
			})
			n++
			return onToken(token)
		})
	}
	latency := m.clock().Sub(start)
	m.release(lm, latency, err)

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
			return res, errCancelled(id, err)
		}
		m.bus.Publish(events.Event{
			Kind:    events.KindModelError,
			ModelID: id,
			Fields:  map[string]any{"stage": "inference", "error": err.Error()},
		})
		m.perf.Record(perfmon.Metric{
			ModelID: id, Kind: perfmon.MetricError, Value: 1,
			Meta: map[string]string{"stage": "inference", "error": err.Error()},
		})
		m.log.Error().Err(err).Str("model", id).Msg("inference failed")
		if errors.Is(err, context.DeadlineExceeded) {
			return res, &Error{Code: CodeTimeout, ModelID: id, Message: "inference timed out", Recoverable: true, Cause: err}
		}
		return res, errInferenceFailed(id, err)
	}

	res.InferenceTime = latency
	inferencesTotal.Inc()
	m.bus.Publish(events.Event{
		Kind:    events.KindInferenceCompleted,
		ModelID: id,
		Fields:  map[string]any{"tokens": res.TokenCount, "latency_ms": latency.Milliseconds(), "streamed": onToken != nil},
	})
	m.perf.Record(perfmon.Metric{
		ModelID: id, Kind: perfmon.MetricInference,
		Value: float64(latency.Milliseconds()), Unit: "ms",
		Meta: map[string]string{"tokens": strconv.Itoa(res.TokenCount)},
	})
	return res, nil
}

// acquire pins the instance for one inference, loading it on demand, and
// moves it to the active state.
func (m *Manager) acquire(ctx context.Context, id string) (*loadedModel, error) {
	for attempt := 0; ; attempt++ {
		m.mu.Lock()
		lm, ok := m.loaded[id]
		if ok && (lm.state == StateLoaded || lm.state == StateActive || lm.state == StateError) {
			lm.active++
			lm.state = StateActive
			lm.lastUsed = m.clock()
			m.mu.Unlock()
			return lm, nil
		}
		m.mu.Unlock()

		if attempt > 0 {
			return nil, errLoadingFailed(id, errors.New("model did not settle after load"), true)
		}
		if err := m.LoadModel(ctx, id, types.LoadOptions{}); err != nil {
			return nil, err
		}
	}
}

// release is acquire's counterpart; it updates the per-instance running
// stats and settles the state once no inference remains active.
func (m *Manager) release(lm *loadedModel, latency time.Duration, genErr error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lm.active--
	lm.lastUsed = m.clock()
	if errors.Is(genErr, context.Canceled) {
		// A cancellation is an outcome, not a fault of the instance.
		if lm.active == 0 && lm.state == StateActive {
			lm.state = StateLoaded
		}
		return
	}
	if genErr != nil {
		lm.state = StateError
		lm.lastErr = genErr.Error()
		return
	}
	lm.inferences++
	lm.avgLatency += (latency - lm.avgLatency) / time.Duration(lm.inferences)
	lm.lastErr = ""
	if lm.active == 0 && (lm.state == StateActive || lm.state == StateError) {
		lm.state = StateLoaded
	}
}
