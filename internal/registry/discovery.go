package registry

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"modelhost/internal/events"
	"modelhost/internal/store"
	"modelhost/pkg/types"
)

const descriptorBucket = "discovery"

// Discovery populates the registry from directory scans, persisting each
// successful scan so a later failing scan can degrade to cached descriptors
// instead of failing outright.
type Discovery struct {
	reg     *Registry
	scanner Scanner
	store   *store.Store
	bus     *events.Bus
	log     zerolog.Logger
}

func NewDiscovery(reg *Registry, scanner Scanner, st *store.Store, bus *events.Bus, log zerolog.Logger) *Discovery {
	return &Discovery{
		reg:     reg,
		scanner: scanner,
		store:   st,
		bus:     bus,
		log:     log.With().Str("component", "discovery").Logger(),
	}
}

// Discover scans each directory, registers the resulting descriptors, and
// returns the total number registered. A failed scan falls back to the last
// persisted descriptor set for that directory and is logged as degraded;
// discovery never fails silently and only errors when a directory yields
// neither a live scan nor a cached set.
func (d *Discovery) Discover(ctx context.Context, dirs []string) (int, error) {
	total := 0
	var lastErr error
	for _, dir := range dirs {
		descs, err := d.scanner.Scan(dir)
		if err != nil {
			cached, cacheErr := d.loadCached(ctx, dir)
			if cacheErr != nil || cached == nil {
				d.log.Error().Err(err).Str("dir", dir).Msg("scan failed and no cached descriptors")
				lastErr = err
				continue
			}
			d.log.Warn().Err(err).Str("dir", dir).Int("cached", len(cached)).
				Msg("scan failed, using persisted descriptors (degraded discovery)")
			descs = cached
		} else if err := d.persist(ctx, dir, descs); err != nil {
			d.log.Warn().Err(err).Str("dir", dir).Msg("persisting descriptors failed")
		}
		for _, desc := range descs {
			d.reg.Register(desc)
		}
		total += len(descs)
		d.bus.Publish(events.Event{
			Kind:   events.KindModelDiscovered,
			Fields: map[string]any{"directory": dir, "count": len(descs)},
		})
	}
	return total, lastErr
}

func (d *Discovery) persist(ctx context.Context, dir string, descs []types.ModelDescriptor) error {
	if d.store == nil {
		return nil
	}
	b, err := msgpack.Marshal(descs)
	if err != nil {
		return err
	}
	return d.store.Put(ctx, descriptorBucket, dir, b)
}

func (d *Discovery) loadCached(ctx context.Context, dir string) ([]types.ModelDescriptor, error) {
	if d.store == nil {
		return nil, nil
	}
	b, ok, err := d.store.Get(ctx, descriptorBucket, dir)
	if err != nil || !ok {
		return nil, err
	}
	var descs []types.ModelDescriptor
	if err := msgpack.Unmarshal(b, &descs); err != nil {
		return nil, err
	}
	return descs, nil
}
