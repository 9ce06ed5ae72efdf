//go:build llama

package runtime

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"

	llama "github.com/go-skynet/go-llama.cpp"

	"modelhost/pkg/types"
)

type llamaFactory struct {
	ctxSize int
	threads int
}

// NewLlamaFactory returns a factory producing in-process llama.cpp handles.
func NewLlamaFactory(ctxSize, threads int) Factory {
	return &llamaFactory{ctxSize: ctxSize, threads: threads}
}

func (f *llamaFactory) New(desc types.ModelDescriptor) (Handle, error) {
	if strings.TrimSpace(desc.Path) == "" {
		return nil, errors.New("model path is empty")
	}
	ctxSize := f.ctxSize
	if desc.ContextLength > 0 {
		ctxSize = desc.ContextLength
	}
	return &llamaHandle{path: desc.Path, ctxSize: ctxSize, threads: f.threads}, nil
}

// llamaHandle owns one loaded llama.cpp model.
type llamaHandle struct {
	mu      sync.Mutex
	path    string
	ctxSize int
	threads int
	model   *llama.LLama
	size    int64
}

func (h *llamaHandle) Load(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.model != nil {
		return nil
	}
	m, err := llama.New(h.path, llama.SetContext(h.ctxSize))
	if err != nil {
		return err
	}
	h.model = m
	if fi, err := os.Stat(h.path); err == nil {
		h.size = fi.Size()
	}
	return nil
}

func (h *llamaHandle) Unload() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.model != nil {
		h.model.Free()
		h.model = nil
	}
	h.size = 0
	return nil
}

func (h *llamaHandle) Generate(ctx context.Context, prompt string, opts types.GenerateOptions) (types.GenerateResult, error) {
	return h.GenerateStream(ctx, prompt, opts, nil)
}

func (h *llamaHandle) GenerateStream(ctx context.Context, prompt string, opts types.GenerateOptions, onToken func(string) error) (types.GenerateResult, error) {
	h.mu.Lock()
	model := h.model
	h.mu.Unlock()
	if model == nil {
		return types.GenerateResult{}, errors.New("llama model not loaded")
	}

	tokens := 0
	var cbErr error
	model.SetTokenCallback(func(tok string) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}
		tokens++
		if onToken != nil {
			if err := onToken(tok); err != nil {
				cbErr = err
				return false
			}
		}
		return true
	})

	text, err := model.Predict(prompt, predictOptions(opts, h.threads)...)
	if err != nil {
		if ctx.Err() != nil {
			return types.GenerateResult{}, ctx.Err()
		}
		return types.GenerateResult{}, err
	}
	if cbErr != nil {
		return types.GenerateResult{}, cbErr
	}
	if ctx.Err() != nil {
		return types.GenerateResult{Text: text, TokenCount: tokens, FinishReason: "cancelled"}, ctx.Err()
	}
	return types.GenerateResult{Text: text, TokenCount: tokens, FinishReason: "stop"}, nil
}

func (h *llamaHandle) MemoryFootprint() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.size
}

func orInt(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func orFloat(v float64, def float32) float32 {
	if v > 0 {
		return float32(v)
	}
	return def
}

// predictOptions converts generation options into go-llama.cpp options.
func predictOptions(opts types.GenerateOptions, threads int) []llama.PredictOption {
	po := []llama.PredictOption{
		llama.SetTokens(orInt(opts.MaxTokens, 128)),
		llama.SetThreads(orInt(threads, 1)),
		llama.SetTopP(orFloat(opts.TopP, llama.DefaultOptions.TopP)),
		llama.SetTopK(orInt(opts.TopK, llama.DefaultOptions.TopK)),
		llama.SetTemperature(orFloat(opts.Temperature, llama.DefaultOptions.Temperature)),
	}
	if opts.Seed != 0 {
		po = append(po, llama.SetSeed(int(opts.Seed)))
	}
	if len(opts.Stop) > 0 {
		po = append(po, llama.SetStopWords(opts.Stop...))
	}
	return po
}
