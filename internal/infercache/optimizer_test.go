package infercache

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"modelhost/pkg/types"
)

type fakeGen struct {
	mu         sync.Mutex
	calls      int
	text       string
	latency    time.Duration
	lastOpts   types.GenerateOptions
	lastPrompt string
}

func (g *fakeGen) GenerateText(ctx context.Context, id, prompt string, opts types.GenerateOptions) (types.GenerateResult, error) {
	g.mu.Lock()
	g.calls++
	g.lastOpts = opts
	g.lastPrompt = prompt
	text := g.text
	latency := g.latency
	g.mu.Unlock()
	return types.GenerateResult{Text: text, TokenCount: len(text) / 4, InferenceTime: latency, FinishReason: "stop"}, nil
}

func (g *fakeGen) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func newTestOptimizer(cfg Config) (*Optimizer, *Cache, *fakeGen) {
	cache, _ := newTestCache(cfg)
	gen := &fakeGen{text: strings.Repeat("Paris is the capital of France. ", 4), latency: time.Second}
	return NewOptimizer(cache, gen, nil, zerolog.Nop()), cache, gen
}

func TestOptimizerCachesRepeatedRequests(t *testing.T) {
	opt, _, gen := newTestOptimizer(Config{})
	ctx := context.Background()
	prompt := "What is the capital of France?"

	first, err := opt.Generate(ctx, "m", prompt, types.GenerateOptions{})
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	if first.Cached {
		t.Fatalf("first call cannot be a hit")
	}

	second, err := opt.Generate(ctx, "m", prompt, types.GenerateOptions{})
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if !second.Cached || second.InferenceTime != 0 {
		t.Fatalf("expected cache hit: %+v", second)
	}
	if second.Text != first.Text {
		t.Fatalf("hit diverged from stored result")
	}
	if gen.callCount() != 1 {
		t.Fatalf("generator called %d times", gen.callCount())
	}
}

func TestFactualRequestHitsAnHourLater(t *testing.T) {
	opt, cache, gen := newTestOptimizer(Config{})
	now := time.Now()
	cache.clock = func() time.Time { return now }
	ctx := context.Background()
	prompt := "What is the capital of France?"

	if _, err := opt.Generate(ctx, "m", prompt, types.GenerateOptions{}); err != nil {
		t.Fatalf("first: %v", err)
	}

	now = now.Add(time.Hour)
	res, err := opt.Generate(ctx, "m", prompt, types.GenerateOptions{})
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if !res.Cached {
		t.Fatalf("factual request one hour later should be a cache hit")
	}
	if gen.callCount() != 1 {
		t.Fatalf("generator called %d times", gen.callCount())
	}
}

func TestTrivialResultsNotCached(t *testing.T) {
	opt, cache, gen := newTestOptimizer(Config{})
	gen.text = "ok"
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := opt.Generate(ctx, "m", "What is up?", types.GenerateOptions{}); err != nil {
			t.Fatalf("generate %d: %v", i, err)
		}
	}
	if gen.callCount() != 2 {
		t.Fatalf("trivial result should not have been cached")
	}
	if cache.Len() != 0 {
		t.Fatalf("cache holds %d entries", cache.Len())
	}
}

func TestOptionDefaultsByClass(t *testing.T) {
	opt, _, gen := newTestOptimizer(Config{})
	ctx := context.Background()

	if _, err := opt.Generate(ctx, "m", "What is the boiling point of water?", types.GenerateOptions{}); err != nil {
		t.Fatalf("factual: %v", err)
	}
	if gen.lastOpts.Temperature != 0.3 || gen.lastOpts.TopP != 0.9 || gen.lastOpts.MaxTokens != 256 {
		t.Fatalf("factual defaults: %+v", gen.lastOpts)
	}

	if _, err := opt.Generate(ctx, "m", "Write a poem about rust", types.GenerateOptions{}); err != nil {
		t.Fatalf("creative: %v", err)
	}
	if gen.lastOpts.Temperature != 0.9 || gen.lastOpts.MaxTokens != 512 {
		t.Fatalf("creative defaults: %+v", gen.lastOpts)
	}

	// Caller-set options are never overridden.
	if _, err := opt.Generate(ctx, "m", "What is love?", types.GenerateOptions{Temperature: 1.5}); err != nil {
		t.Fatalf("explicit: %v", err)
	}
	if gen.lastOpts.Temperature != 1.5 {
		t.Fatalf("explicit temperature overridden: %+v", gen.lastOpts)
	}
}

func TestPreProcessRewritesAndHints(t *testing.T) {
	out, applied := preProcess("Could you please explain generics", "tinyllama")
	if strings.Contains(strings.ToLower(out), "could you please") {
		t.Fatalf("verbose phrasing kept: %q", out)
	}
	if !containsString(applied, "verbosity_rewrite") {
		t.Fatalf("applied: %v", applied)
	}

	out, applied = preProcess("print hello world", "codellama-7b")
	if !strings.Contains(out, "code only") || !containsString(applied, "code_hint") {
		t.Fatalf("code hint missing: %q %v", out, applied)
	}

	long := strings.Repeat("This is a sentence. ", 200)
	out, applied = preProcess(long, "tinyllama")
	if len(out) > maxPromptLen || !strings.HasSuffix(out, ".") {
		t.Fatalf("truncation broke sentence boundary: len=%d tail=%q", len(out), out[len(out)-10:])
	}
	if !containsString(applied, "truncation") {
		t.Fatalf("applied: %v", applied)
	}
}

func TestPostProcessSkippedForCreative(t *testing.T) {
	opt, _, gen := newTestOptimizer(Config{})
	gen.text = "line one\n\n\n\nline two " + strings.Repeat("pad ", 10)
	ctx := context.Background()

	res, err := opt.Generate(ctx, "m", "Write a poem about whitespace", types.GenerateOptions{})
	if err != nil {
		t.Fatalf("creative: %v", err)
	}
	if !strings.Contains(res.Text, "\n\n\n") {
		t.Fatalf("creative output was normalized: %q", res.Text)
	}

	res, err = opt.Generate(ctx, "m", "What is whitespace?", types.GenerateOptions{})
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	if strings.Contains(res.Text, "\n\n\n") {
		t.Fatalf("non-creative output not normalized: %q", res.Text)
	}
	if !containsString(res.OptimizationsApplied, "output_normalization") {
		t.Fatalf("applied trail: %v", res.OptimizationsApplied)
	}
}
