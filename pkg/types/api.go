package types

// InferRequest is the payload for POST /infer.
type InferRequest struct {
	// Optional model identifier. If empty, the configured fallback model is used.
	// example: tinyllama-q4
	Model string `json:"model,omitempty" example:"tinyllama-q4"`
	// Required prompt text to generate a completion for.
	// example: Write a haiku about the ocean.
	Prompt string `json:"prompt" example:"Write a haiku about the ocean."`
	// If true, stream tokens as NDJSON lines instead of one JSON body.
	// example: true
	Stream bool `json:"stream,omitempty" example:"true"`
	// Sampling options; unset fields are filled by the optimizer.
	Options GenerateOptions `json:"options"`
}

// DiscoverRequest is the payload for POST /models/discover.
type DiscoverRequest struct {
	// Directories to scan. Empty means the configured model directories.
	Directories []string `json:"directories,omitempty"`
}

// DiscoverResponse reports a discovery pass.
type DiscoverResponse struct {
	// Number of descriptors now registered.
	// example: 4
	Discovered int `json:"discovered" example:"4"`
}

// SwitchRequest is the payload for POST /switch.
type SwitchRequest struct {
	// Model to switch away from (optional).
	// example: tinyllama-q4
	From string `json:"from,omitempty" example:"tinyllama-q4"`
	// Model to switch to.
	// example: mistral-7b-q5
	To string `json:"to" example:"mistral-7b-q5"`
	// Keep the previous model loaded instead of unloading it.
	// example: false
	KeepPrevious bool `json:"keep_previous,omitempty" example:"false"`
}

// LoadedModelStatus summarizes one loaded model for GET /status.
type LoadedModelStatus struct {
	// ID of the model.
	// example: tinyllama-q4
	ModelID string `json:"model_id" example:"tinyllama-q4"`
	// Current lifecycle state (unloaded, loading, loaded, active, unloading, error).
	// example: loaded
	State string `json:"state" example:"loaded"`
	// Measured memory footprint in bytes.
	// example: 1258291200
	MemoryBytes int64 `json:"memory_bytes" example:"1258291200"`
	// Priority tier.
	// example: 1
	Priority int `json:"priority" example:"1"`
	// Completed inference calls on this instance.
	// example: 12
	Inferences uint64 `json:"inferences" example:"12"`
	// Running average inference latency in milliseconds.
	// example: 420
	AvgLatencyMs int64 `json:"avg_latency_ms" example:"420"`
	// Last time this instance served a request (unix seconds).
	// example: 1700000000
	LastUsed int64 `json:"last_used_unix" example:"1700000000"`
	// When the instance was loaded (unix seconds).
	// example: 1700000000
	Created int64 `json:"created_unix" example:"1700000000"`
	// Last error observed on this instance, if any.
	Error string `json:"error,omitempty"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Loaded model instances.
	Models []LoadedModelStatus `json:"models"`
	// Sum of loaded model footprints in bytes. Always equals the sum of
	// the per-model memory_bytes fields.
	// example: 2516582400
	TotalMemoryUsed int64 `json:"total_memory_used" example:"2516582400"`
	// Host memory total in bytes.
	// example: 17179869184
	HostTotalBytes int64 `json:"host_total_bytes" example:"17179869184"`
	// Host memory used in bytes.
	// example: 8589934592
	HostUsedBytes int64 `json:"host_used_bytes" example:"8589934592"`
	// Current memory pressure classification.
	// example: moderate
	Pressure string `json:"pressure" example:"moderate"`
	// Registered (discoverable) model count.
	// example: 6
	Registered int `json:"registered" example:"6"`
	// Uptime of the daemon in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Machine-readable error code.
	// example: insufficient_memory
	Code string `json:"code" example:"insufficient_memory"`
	// Error message.
	// example: projected memory usage 90.0% exceeds critical threshold
	Error string `json:"error" example:"projected memory usage 90.0% exceeds critical threshold"`
	// Whether a retry may succeed without operator action.
	// example: false
	Recoverable bool `json:"recoverable" example:"false"`
	// Actionable suggestions, when available.
	Suggestions []string `json:"suggestions,omitempty"`
}
