package syncache

import (
	"sort"

	"github.com/prometheus/client_golang/prometheus"
)

// KeyAccess pairs a key with its lifetime access count.
type KeyAccess struct {
	Key   string
	Count int64
}

// Stats is a diagnostic snapshot of the engine. Reading it never mutates
// cache state.
type Stats struct {
	Hits         uint64
	Misses       uint64
	Evictions    uint64
	Expirations  uint64
	HitRate      float64
	MissRate     float64
	Size         int
	MostAccessed []KeyAccess
}

const mostAccessedCount = 5

// Stats returns the current counters, live entry count and the most
// accessed keys (ties broken by key order).
func (e *Engine) Stats() Stats {
	hits, misses, evictions, expirations := e.store.Counters()
	s := Stats{
		Hits:        hits,
		Misses:      misses,
		Evictions:   evictions,
		Expirations: expirations,
	}
	if total := hits + misses; total > 0 {
		s.HitRate = float64(hits) / float64(total)
		s.MissRate = float64(misses) / float64(total)
	}
	entries := e.store.Entries()
	s.Size = len(entries)
	top := make([]KeyAccess, 0, len(entries))
	for key, entry := range entries {
		top = append(top, KeyAccess{Key: key, Count: entry.AccessCount})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Count != top[j].Count {
			return top[i].Count > top[j].Count
		}
		return top[i].Key < top[j].Key
	})
	if len(top) > mostAccessedCount {
		top = top[:mostAccessedCount]
	}
	s.MostAccessed = top
	return s
}

// Collector exposes the engine's counters as Prometheus metrics.
type Collector struct {
	engine      *Engine
	hits        *prometheus.Desc
	misses      *prometheus.Desc
	evictions   *prometheus.Desc
	expirations *prometheus.Desc
	size        *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector returns a prometheus.Collector reporting the engine's
// lifetime counters and current size. Register it with a prometheus
// registry to scrape cache health.
func NewCollector(e *Engine) *Collector {
	return &Collector{
		engine:      e,
		hits:        prometheus.NewDesc("syncache_hits_total", "Cache lookups served from memory.", nil, nil),
		misses:      prometheus.NewDesc("syncache_misses_total", "Cache lookups that required a loader.", nil, nil),
		evictions:   prometheus.NewDesc("syncache_evictions_total", "Entries evicted by namespace size bounds.", nil, nil),
		expirations: prometheus.NewDesc("syncache_expirations_total", "Entries removed after their TTL elapsed.", nil, nil),
		size:        prometheus.NewDesc("syncache_entries", "Live entries currently cached.", nil, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.hits
	ch <- c.misses
	ch <- c.evictions
	ch <- c.expirations
	ch <- c.size
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	hits, misses, evictions, expirations := c.engine.store.Counters()
	ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(hits))
	ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(misses))
	ch <- prometheus.MustNewConstMetric(c.evictions, prometheus.CounterValue, float64(evictions))
	ch <- prometheus.MustNewConstMetric(c.expirations, prometheus.CounterValue, float64(expirations))
	ch <- prometheus.MustNewConstMetric(c.size, prometheus.GaugeValue, float64(c.engine.store.Len()))
}
