package infercache

import (
	"context"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"modelhost/internal/store"
	"modelhost/pkg/types"
)

const cacheBucket = "infercache"

// persistedEntry is the msgpack shape of one cache entry at rest.
type persistedEntry struct {
	Result      types.GenerateResult `msgpack:"result"`
	Class       PromptClass          `msgpack:"class"`
	CreatedUnix int64                `msgpack:"created_unix"`
}

// SaveTo snapshots every live entry into the store. Called on shutdown so
// warm results survive a restart.
func (c *Cache) SaveTo(ctx context.Context, st *store.Store) error {
	c.mu.Lock()
	snapshot := make(map[string]persistedEntry, len(c.entries))
	for key, el := range c.entries {
		e := el.Value.(*entry)
		snapshot[key] = persistedEntry{
			Result:      e.result,
			Class:       e.class,
			CreatedUnix: e.created.Unix(),
		}
	}
	c.mu.Unlock()

	for key, pe := range snapshot {
		b, err := msgpack.Marshal(pe)
		if err != nil {
			return err
		}
		if err := st.Put(ctx, cacheBucket, key, b); err != nil {
			return err
		}
	}
	return nil
}

// LoadFrom restores persisted entries, skipping ones whose TTL elapsed while
// the daemon was down. Undecodable entries are dropped from the store.
func (c *Cache) LoadFrom(ctx context.Context, st *store.Store) (int, error) {
	all, err := st.List(ctx, cacheBucket)
	if err != nil {
		return 0, err
	}

	restored := 0
	for key, b := range all {
		var pe persistedEntry
		if err := msgpack.Unmarshal(b, &pe); err != nil {
			c.log.Warn().Str("key", key).Err(err).Msg("dropping undecodable cache entry")
			_ = st.Delete(ctx, cacheBucket, key)
			continue
		}
		created := time.Unix(pe.CreatedUnix, 0)
		if c.clock().Sub(created) > c.cfg.ttlFor(pe.Class) {
			_ = st.Delete(ctx, cacheBucket, key)
			continue
		}

		c.mu.Lock()
		size := int64(len(pe.Result.Text)) + entrySizeOverhead
		if _, dup := c.entries[key]; !dup && c.usedBytes+size <= c.cfg.MaxBytes {
			e := &entry{key: key, result: pe.Result, class: pe.Class, size: size, created: created, lastAccess: created}
			c.entries[key] = c.lru.PushBack(e)
			c.usedBytes += size
			c.updateGaugesLocked()
			restored++
		}
		c.mu.Unlock()
	}
	return restored, nil
}
