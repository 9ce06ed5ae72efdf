package manager

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"modelhost/internal/events"
	"modelhost/internal/registry"
	"modelhost/internal/resmon"
	"modelhost/internal/runtime"
	"modelhost/pkg/types"
)

type fakeHandle struct {
	mu        sync.Mutex
	footprint int64
	loadErr   error
	unloadErr error
	genErr    error
	text      string
	tokens    []string
	loads     int
	unloads   int
	generates int
}

func (h *fakeHandle) Load(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	h.loads++
	err := h.loadErr
	h.mu.Unlock()
	return err
}

func (h *fakeHandle) Unload() error {
	h.mu.Lock()
	h.unloads++
	err := h.unloadErr
	h.mu.Unlock()
	return err
}

func (h *fakeHandle) Generate(ctx context.Context, prompt string, opts types.GenerateOptions) (types.GenerateResult, error) {
	if err := ctx.Err(); err != nil {
		return types.GenerateResult{}, err
	}
	h.mu.Lock()
	h.generates++
	err := h.genErr
	text := h.text
	h.mu.Unlock()
	if err != nil {
		return types.GenerateResult{}, err
	}
	return types.GenerateResult{Text: text, TokenCount: len(text) / 4, FinishReason: "stop"}, nil
}

func (h *fakeHandle) GenerateStream(ctx context.Context, prompt string, opts types.GenerateOptions, onToken func(string) error) (types.GenerateResult, error) {
	h.mu.Lock()
	h.generates++
	tokens := h.tokens
	h.mu.Unlock()
	var out string
	for _, tok := range tokens {
		if err := ctx.Err(); err != nil {
			return types.GenerateResult{Text: out, FinishReason: "cancelled"}, err
		}
		if err := onToken(tok); err != nil {
			return types.GenerateResult{Text: out, FinishReason: "cancelled"}, err
		}
		out += tok
	}
	return types.GenerateResult{Text: out, TokenCount: len(tokens), FinishReason: "stop"}, nil
}

func (h *fakeHandle) MemoryFootprint() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.footprint
}

func (h *fakeHandle) loadCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.loads
}

type fakeFactory struct {
	mu      sync.Mutex
	newErr  error
	handles map[string]*fakeHandle
	created []string
	// newHook runs inside New before the handle is returned, for injecting
	// latency in concurrency tests.
	newHook func()
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{handles: make(map[string]*fakeHandle)}
}

func (f *fakeFactory) New(desc types.ModelDescriptor) (runtime.Handle, error) {
	f.mu.Lock()
	f.created = append(f.created, desc.ID)
	hook := f.newHook
	if f.newErr != nil {
		err := f.newErr
		f.mu.Unlock()
		return nil, err
	}
	h, ok := f.handles[desc.ID]
	if !ok {
		h = &fakeHandle{footprint: desc.MemoryBytes, text: "ok", tokens: []string{"a", "b", "c"}}
		f.handles[desc.ID] = h
	}
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return h, nil
}

func (f *fakeFactory) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

func desc(id string, bytes int64, priority int) types.ModelDescriptor {
	return types.ModelDescriptor{
		ID:          id,
		Name:        id,
		Path:        "/models/" + id + ".gguf",
		Format:      types.FormatGGUF,
		MemoryBytes: bytes,
		Priority:    priority,
	}
}

type testEnv struct {
	mgr     *Manager
	reg     *registry.Registry
	factory *fakeFactory
	sampler *resmon.StaticSampler
	bus     *events.Bus
	rec     *events.Recorder
}

func newTestEnv(t *testing.T, cfg Config, descs ...types.ModelDescriptor) *testEnv {
	t.Helper()
	reg := registry.New()
	for _, d := range descs {
		reg.Register(d)
	}
	factory := newFakeFactory()
	sampler := resmon.NewStaticSampler(10<<30, 2<<30)
	bus := events.NewBus()
	rec := events.NewRecorder()
	bus.SubscribeAll(rec.Handle)
	mgr := New(cfg, reg, factory, sampler, bus, nil, zerolog.Nop())
	t.Cleanup(func() { _ = mgr.Close(context.Background()) })
	return &testEnv{mgr: mgr, reg: reg, factory: factory, sampler: sampler, bus: bus, rec: rec}
}

// backdate shifts an instance's last-used timestamp into the past for sweep
// and victim-ordering tests.
func (e *testEnv) backdate(t *testing.T, id string, d time.Duration) {
	t.Helper()
	e.mgr.mu.Lock()
	defer e.mgr.mu.Unlock()
	lm, ok := e.mgr.loaded[id]
	if !ok {
		t.Fatalf("model %s not loaded", id)
	}
	lm.lastUsed = lm.lastUsed.Add(-d)
}
