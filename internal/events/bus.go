package events

import (
	"sync"
	"time"
)

// Kind identifies a lifecycle event. Subscribers register per kind; dispatch
// is synchronous and in subscription order for a given kind.
type Kind string

const (
	KindModelDiscovered    Kind = "model.discovered"
	KindModelLoaded        Kind = "model.loaded"
	KindModelUnloaded      Kind = "model.unloaded"
	KindModelError         Kind = "model.error"
	KindModelSwitched      Kind = "model.switched"
	KindModelStreamToken   Kind = "model.stream_token"
	KindInferenceCompleted Kind = "inference.completed"
	KindCacheCleared       Kind = "cache.cleared"
	KindMemoryPressure     Kind = "memory.pressure"
	KindMetricsCollected   Kind = "metrics.collected"
)

// Event is a lifecycle notification. Fields carry the kind-specific payload.
type Event struct {
	Kind    Kind
	ModelID string
	Time    time.Time
	Fields  map[string]any
}

// Handler receives events. Handlers run on the publisher's goroutine and
// must not block.
type Handler func(Event)

type subscription struct {
	id int
	fn Handler
}

// Bus routes events to ordered per-kind subscriber lists. The zero value is
// not usable; construct with NewBus.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[Kind][]subscription
	all    []subscription
}

func NewBus() *Bus {
	return &Bus{subs: make(map[Kind][]subscription)}
}

// Subscribe registers a handler for one event kind and returns an
// unsubscribe func.
func (b *Bus) Subscribe(k Kind, fn Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[k] = append(b.subs[k], subscription{id: id, fn: fn})
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.subs[k]
		for i, s := range list {
			if s.id == id {
				b.subs[k] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	}
}

// SubscribeAll registers a handler for every event kind.
func (b *Bus) SubscribeAll(fn Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.all = append(b.all, subscription{id: id, fn: fn})
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.all {
			if s.id == id {
				b.all = append(b.all[:i:i], b.all[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers the event to kind subscribers then catch-all subscribers,
// in subscription order. A zero Time is stamped with the current time.
func (b *Bus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	kindSubs := make([]subscription, len(b.subs[e.Kind]))
	copy(kindSubs, b.subs[e.Kind])
	allSubs := make([]subscription, len(b.all))
	copy(allSubs, b.all)
	b.mu.RUnlock()
	for _, s := range kindSubs {
		s.fn(e)
	}
	for _, s := range allSubs {
		s.fn(e)
	}
}

// Recorder stores events in memory for tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Handle(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// ByKind returns recorded events of one kind, in order.
func (r *Recorder) ByKind(k Kind) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}
