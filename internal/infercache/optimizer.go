package infercache

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"modelhost/internal/perfmon"
	"modelhost/pkg/types"
)

// maxPromptLen is the character budget before truncation kicks in.
const maxPromptLen = 2048

// Thresholds below which a result is not worth caching.
const (
	worthCachingMinLen     = 32
	worthCachingMinLatency = 250 * time.Millisecond
)

// Generator is the generation capability the optimizer fronts.
type Generator interface {
	GenerateText(ctx context.Context, id, prompt string, opts types.GenerateOptions) (types.GenerateResult, error)
}

// Optimizer sits in front of generation: it rewrites prompts, fills unset
// sampling options from the prompt class, serves repeats from the cache, and
// normalizes non-creative output.
type Optimizer struct {
	cache *Cache
	gen   Generator
	perf  perfmon.Recorder
	log   zerolog.Logger
}

func NewOptimizer(cache *Cache, gen Generator, perf perfmon.Recorder, log zerolog.Logger) *Optimizer {
	if perf == nil {
		perf = perfmon.NopRecorder{}
	}
	return &Optimizer{
		cache: cache,
		gen:   gen,
		perf:  perf,
		log:   log.With().Str("component", "optimizer").Logger(),
	}
}

// Generate runs the optimized path: classify, rewrite, fill options, consult
// the cache, then generate and post-process on a miss.
func (o *Optimizer) Generate(ctx context.Context, id, prompt string, opts types.GenerateOptions) (types.GenerateResult, error) {
	class := ClassifyPrompt(prompt)
	optimized, applied := preProcess(prompt, id)
	opts, optApplied := fillOptions(opts, class)
	applied = append(applied, optApplied...)

	key := Key(id, optimized, opts)
	if res, ok := o.cache.Get(key); ok {
		res.OptimizationsApplied = applied
		return res, nil
	}

	res, err := o.gen.GenerateText(ctx, id, optimized, opts)
	if err != nil {
		return res, err
	}

	if class != ClassCreative {
		if normalized := postProcess(res.Text); normalized != res.Text {
			res.Text = normalized
			applied = append(applied, "output_normalization")
		}
	}
	res.OptimizationsApplied = applied

	if worthCaching(res) {
		o.cache.Put(key, class, res)
	}
	o.perf.Record(perfmon.Metric{
		ModelID: id, Kind: perfmon.MetricOptimization,
		Value: float64(len(applied)), Unit: "count",
		Meta: map[string]string{"class": string(class)},
	})
	return res, nil
}

var verboseRewrites = []struct{ from, to string }{
	{"could you please ", ""},
	{"can you please ", ""},
	{"would you kindly ", ""},
	{"i would like you to ", ""},
	{"please ", ""},
}

// preProcess rewrites verbose phrasings, truncates overlong prompts at a
// sentence boundary, and appends a model-family framing hint.
func preProcess(prompt, modelID string) (string, []string) {
	var applied []string
	out := prompt

	lower := strings.ToLower(out)
	for _, r := range verboseRewrites {
		if idx := strings.Index(lower, r.from); idx >= 0 {
			out = out[:idx] + r.to + out[idx+len(r.from):]
			lower = strings.ToLower(out)
			if !containsString(applied, "verbosity_rewrite") {
				applied = append(applied, "verbosity_rewrite")
			}
		}
	}

	if len(out) > maxPromptLen {
		out = truncateAtSentence(out, maxPromptLen)
		applied = append(applied, "truncation")
	}

	if strings.Contains(strings.ToLower(modelID), "code") {
		out += "\n\nRespond with code only, inside a fenced block."
		applied = append(applied, "code_hint")
	}
	return out, applied
}

// truncateAtSentence cuts at the last sentence end before limit, falling
// back to a hard cut when none exists.
func truncateAtSentence(s string, limit int) string {
	cut := s[:limit]
	best := -1
	for _, sep := range []string{". ", "! ", "? ", ".\n", "!\n", "?\n"} {
		if i := strings.LastIndex(cut, sep); i > best {
			best = i
		}
	}
	if best > 0 {
		return cut[:best+1]
	}
	return cut
}

// fillOptions supplies class-derived defaults for unset sampling options.
func fillOptions(opts types.GenerateOptions, class PromptClass) (types.GenerateOptions, []string) {
	var applied []string
	if opts.Temperature == 0 {
		switch class {
		case ClassFactual:
			opts.Temperature = 0.3
		case ClassCreative:
			opts.Temperature = 0.9
		default:
			opts.Temperature = 0.7
		}
		applied = append(applied, "temperature_default")
	}
	if opts.TopP == 0 {
		opts.TopP = 0.9
		applied = append(applied, "top_p_default")
	}
	if opts.MaxTokens == 0 {
		if class == ClassCreative {
			opts.MaxTokens = 512
		} else {
			opts.MaxTokens = 256
		}
		applied = append(applied, "max_tokens_default")
	}
	return opts, applied
}

// postProcess normalizes whitespace and code-block spacing. Creative output
// is never normalized, to preserve stylistic content.
func postProcess(text string) string {
	out := strings.TrimSpace(text)
	for strings.Contains(out, "\n\n\n") {
		out = strings.ReplaceAll(out, "\n\n\n", "\n\n")
	}
	out = strings.ReplaceAll(out, "```\n\n", "```\n")
	out = strings.ReplaceAll(out, "\n\n```", "\n```")
	return out
}

// worthCaching skips trivial results whose regeneration is cheaper than the
// cache space.
func worthCaching(res types.GenerateResult) bool {
	return len(res.Text) >= worthCachingMinLen && res.InferenceTime >= worthCachingMinLatency
}

func containsString(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
