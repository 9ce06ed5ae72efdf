// Package infercache is the inference-side cache and prompt optimizer: it
// normalizes prompts, serves repeated requests from a TTL and LRU bounded
// store, and fills unset sampling options from prompt heuristics.
package infercache

import (
	"container/list"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"lukechampine.com/blake3"

	"modelhost/internal/events"
	"modelhost/pkg/types"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultMaxBytes    = 64 << 20
	defaultFactualTTL  = 24 * time.Hour
	defaultCreativeTTL = 30 * time.Minute
	defaultDefaultTTL  = 2 * time.Hour
)

// keyPrefixLen bounds how much of the prompt feeds the cache key. Collisions
// between distinct prompts sharing a long prefix are an accepted
// approximation.
const keyPrefixLen = 256

// entrySizeOverhead approximates per-entry bookkeeping bytes beyond the
// stored text.
const entrySizeOverhead = 128

// Config holds cache tunables.
type Config struct {
	MaxBytes    int64
	FactualTTL  time.Duration
	CreativeTTL time.Duration
	DefaultTTL  time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxBytes <= 0 {
		c.MaxBytes = defaultMaxBytes
	}
	if c.FactualTTL <= 0 {
		c.FactualTTL = defaultFactualTTL
	}
	if c.CreativeTTL <= 0 {
		c.CreativeTTL = defaultCreativeTTL
	}
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = defaultDefaultTTL
	}
	return c
}

type entry struct {
	key         string
	result      types.GenerateResult
	class       PromptClass
	size        int64
	created     time.Time
	lastAccess  time.Time
	accessCount int
}

// Cache is a byte-budgeted LRU with per-class TTLs. The recency list front
// is most recently accessed; eviction always consumes the back.
type Cache struct {
	cfg Config
	bus *events.Bus
	log zerolog.Logger

	mu        sync.Mutex
	entries   map[string]*list.Element
	lru       *list.List
	usedBytes int64

	clock func() time.Time
}

func New(cfg Config, bus *events.Bus, log zerolog.Logger) *Cache {
	if bus == nil {
		bus = events.NewBus()
	}
	return &Cache{
		cfg:     cfg.withDefaults(),
		bus:     bus,
		log:     log.With().Str("component", "infercache").Logger(),
		entries: make(map[string]*list.Element),
		lru:     list.New(),
		clock:   time.Now,
	}
}

// Key derives the deterministic cache key from the model, the prompt prefix,
// and the sampling parameters that change the output distribution.
func Key(modelID, prompt string, opts types.GenerateOptions) string {
	prefix := prompt
	if len(prefix) > keyPrefixLen {
		prefix = prefix[:keyPrefixLen]
	}
	h := blake3.New(16, nil)
	fmt.Fprintf(h, "%s\x00%s\x00%.4f\x00%d\x00%.4f", modelID, prefix, opts.Temperature, opts.MaxTokens, opts.TopP)
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the stored result for key when present and unexpired. Hits are
// marked cached with zero inference time; expired entries are removed and
// read as misses.
func (c *Cache) Get(key string) (types.GenerateResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		cacheMisses.Inc()
		return types.GenerateResult{}, false
	}
	e := el.Value.(*entry)
	if c.clock().Sub(e.created) > c.cfg.ttlFor(e.class) {
		c.removeLocked(el)
		cacheExpirations.Inc()
		cacheMisses.Inc()
		return types.GenerateResult{}, false
	}

	e.lastAccess = c.clock()
	e.accessCount++
	c.lru.MoveToFront(el)
	cacheHits.Inc()

	res := e.result
	res.Cached = true
	res.InferenceTime = 0
	return res, true
}

// Put stores a result under key, evicting least-recently-accessed entries
// until the newcomer fits. Results larger than the whole budget are dropped.
func (c *Cache) Put(key string, class PromptClass, res types.GenerateResult) {
	size := int64(len(res.Text)) + entrySizeOverhead
	if size > c.cfg.MaxBytes {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.removeLocked(el)
	}
	for c.usedBytes+size > c.cfg.MaxBytes {
		back := c.lru.Back()
		if back == nil {
			break
		}
		c.removeLocked(back)
		cacheEvictions.Inc()
	}

	now := c.clock()
	e := &entry{key: key, result: res, class: class, size: size, created: now, lastAccess: now}
	c.entries[key] = c.lru.PushFront(e)
	c.usedBytes += size
	c.updateGaugesLocked()
}

func (c *Cache) removeLocked(el *list.Element) {
	e := el.Value.(*entry)
	c.lru.Remove(el)
	delete(c.entries, e.key)
	c.usedBytes -= e.size
	c.updateGaugesLocked()
}

// Clear drops every entry and reports how many were removed.
func (c *Cache) Clear() int {
	c.mu.Lock()
	n := len(c.entries)
	bytes := c.usedBytes
	c.entries = make(map[string]*list.Element)
	c.lru.Init()
	c.usedBytes = 0
	c.updateGaugesLocked()
	c.mu.Unlock()

	c.bus.Publish(events.Event{
		Kind:   events.KindCacheCleared,
		Fields: map[string]any{"entries": n, "bytes": bytes},
	})
	c.log.Info().Int("entries", n).Int64("bytes", bytes).Msg("cache cleared")
	return n
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// UsedBytes returns the current budget consumption.
func (c *Cache) UsedBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usedBytes
}
