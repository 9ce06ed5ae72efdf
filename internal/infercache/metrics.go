package infercache

import "github.com/prometheus/client_golang/prometheus"

var (
	cacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "modelhost",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total cache hits",
	})

	cacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "modelhost",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total cache misses",
	})

	cacheEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "modelhost",
		Subsystem: "cache",
		Name:      "evictions_total",
		Help:      "Total entries evicted for the byte budget",
	})

	cacheExpirations = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "modelhost",
		Subsystem: "cache",
		Name:      "expirations_total",
		Help:      "Total entries dropped on TTL expiry",
	})

	cacheEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "modelhost",
		Subsystem: "cache",
		Name:      "entries",
		Help:      "Live cache entries",
	})

	cacheBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "modelhost",
		Subsystem: "cache",
		Name:      "bytes",
		Help:      "Bytes consumed of the cache budget",
	})
)

func init() {
	prometheus.MustRegister(cacheHits, cacheMisses, cacheEvictions, cacheExpirations, cacheEntries, cacheBytes)
}

// updateGaugesLocked refreshes the size gauges. Caller holds c.mu.
func (c *Cache) updateGaugesLocked() {
	cacheEntries.Set(float64(len(c.entries)))
	cacheBytes.Set(float64(c.usedBytes))
}
