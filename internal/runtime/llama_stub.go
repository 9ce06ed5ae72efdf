//go:build !llama

package runtime

// This file provides a no-CGO stub for the llama runtime. It is compiled
// when the 'llama' build tag is NOT set, keeping default builds and CI
// CGO-free. The real implementation lives in llama.go (tagged 'llama').

import (
	"context"

	"modelhost/pkg/types"
)

type llamaFactory struct {
	ctxSize int
	threads int
}

// NewLlamaFactory returns the runtime factory. Without the 'llama' build
// tag every handle fails fast rather than mocking inference.
func NewLlamaFactory(ctxSize, threads int) Factory {
	return &llamaFactory{ctxSize: ctxSize, threads: threads}
}

type stubHandle struct{}

func (f *llamaFactory) New(desc types.ModelDescriptor) (Handle, error) {
	return stubHandle{}, nil
}

func (stubHandle) Load(ctx context.Context) error { return ErrRuntimeUnavailable }
func (stubHandle) Unload() error                  { return nil }

func (stubHandle) Generate(ctx context.Context, prompt string, opts types.GenerateOptions) (types.GenerateResult, error) {
	return types.GenerateResult{}, ErrRuntimeUnavailable
}

func (stubHandle) GenerateStream(ctx context.Context, prompt string, opts types.GenerateOptions, onToken func(string) error) (types.GenerateResult, error) {
	return types.GenerateResult{}, ErrRuntimeUnavailable
}

func (stubHandle) MemoryFootprint() int64 { return 0 }
