// Package runtime abstracts the model runtime behind a per-model handle.
// The default build ships a no-CGO stub; build with -tags=llama for the
// in-process llama.cpp implementation.
package runtime

import (
	"context"
	"errors"

	"modelhost/pkg/types"
)

// ErrRuntimeUnavailable is returned by the stub runtime for every
// operation; callers map it to a non-recoverable loading failure, since no
// retry can materialize a missing build tag.
var ErrRuntimeUnavailable = errors.New("llama runtime not built (missing 'llama' build tag)")

// Handle is the runtime capability for one model. Load must be called
// before Generate*; Unload releases runtime resources and the handle must
// not be reused afterwards.
type Handle interface {
	// Load materializes the model into memory. Implementations must return
	// promptly when ctx is canceled.
	Load(ctx context.Context) error
	// Unload releases the runtime resources. Idempotent.
	Unload() error
	// Generate produces a completion synchronously.
	Generate(ctx context.Context, prompt string, opts types.GenerateOptions) (types.GenerateResult, error)
	// GenerateStream produces tokens one at a time, invoking onToken for
	// each before producing the next (finite, not restartable). A canceled
	// ctx stops token production; an onToken error aborts generation.
	GenerateStream(ctx context.Context, prompt string, opts types.GenerateOptions, onToken func(token string) error) (types.GenerateResult, error)
	// MemoryFootprint reports the resident size of the loaded model in
	// bytes; 0 when unknown or not loaded.
	MemoryFootprint() int64
}

// Factory creates handles for descriptors.
type Factory interface {
	New(desc types.ModelDescriptor) (Handle, error)
}
