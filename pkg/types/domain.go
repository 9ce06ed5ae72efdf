package types

import "time"

// ModelFormat identifies the on-disk container format of a model file.
type ModelFormat string

const (
	FormatGGUF        ModelFormat = "gguf"
	FormatGGML        ModelFormat = "ggml"
	FormatSafetensors ModelFormat = "safetensors"
	FormatUnknown     ModelFormat = "unknown"
)

// ModelDescriptor is the immutable identity and static metadata of a
// discoverable model. Descriptors are created by discovery and replaced
// wholesale by re-discovery; the lifecycle manager never mutates them.
type ModelDescriptor struct {
	// Stable identifier for the model, derived from the filename.
	// example: tinyllama-q4
	ID string `json:"id" example:"tinyllama-q4"`
	// Human-friendly name.
	// example: TinyLlama (Q4)
	Name string `json:"name" example:"TinyLlama (Q4)"`
	// Absolute path to the model file on disk.
	// example: /home/user/models/TinyLlama.Q4_K_M.gguf
	Path string `json:"path" example:"/home/user/models/TinyLlama.Q4_K_M.gguf"`
	// Container format of the model file.
	// example: gguf
	Format ModelFormat `json:"format" example:"gguf"`
	// Declared memory requirement in bytes (file size when not declared).
	// example: 1258291200
	MemoryBytes int64 `json:"memory_bytes" example:"1258291200"`
	// Priority tier; higher tiers are protected longer from eviction and
	// auto-unload. The single highest tier present is never auto-unloaded.
	// example: 1
	Priority int `json:"priority" example:"1"`
	// Context window length in tokens, when known.
	// example: 4096
	ContextLength int `json:"context_length,omitempty" example:"4096"`
	// Capability tags (chat, code, embedding, ...).
	Capabilities []string `json:"capabilities,omitempty"`
}

// GenerateOptions are sampling parameters for a generation call. Zero values
// mean "unset" and may be filled in by the inference optimizer.
type GenerateOptions struct {
	// Sampling temperature (higher = more random).
	// example: 0.7
	Temperature float64 `json:"temperature,omitempty" example:"0.7"`
	// Nucleus sampling probability.
	// example: 0.9
	TopP float64 `json:"top_p,omitempty" example:"0.9"`
	// Top-K sampling: limit candidates to top K tokens.
	// example: 40
	TopK int `json:"top_k,omitempty" example:"40"`
	// Maximum number of new tokens to generate.
	// example: 128
	MaxTokens int `json:"max_tokens,omitempty" example:"128"`
	// Optional stop sequences.
	Stop []string `json:"stop,omitempty"`
	// Random seed; 0 lets the runtime choose.
	// example: 42
	Seed int64 `json:"seed,omitempty" example:"42"`
}

// GenerateResult is the outcome of a generation call.
type GenerateResult struct {
	// Generated text.
	Text string `json:"text"`
	// Number of tokens produced.
	// example: 96
	TokenCount int `json:"token_count" example:"96"`
	// Wall time spent in the runtime. Zero for cache hits.
	InferenceTime time.Duration `json:"inference_time_ns" swaggertype:"integer"`
	// True when the result was served from the inference cache.
	// example: false
	Cached bool `json:"cached" example:"false"`
	// Why generation stopped (stop, length, cancelled).
	// example: stop
	FinishReason string `json:"finish_reason,omitempty" example:"stop"`
	// Names of prompt/option optimizations applied before generation.
	OptimizationsApplied []string `json:"optimizations_applied,omitempty"`
}

// LoadOptions tune a single LoadModel call.
type LoadOptions struct {
	// Load even when the strategy would defer for memory pressure.
	// example: false
	ForceLoad bool `json:"force_load,omitempty" example:"false"`
}
