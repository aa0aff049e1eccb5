package pager

import "github.com/prometheus/client_golang/prometheus"

// PoolMetrics exposes buffer-pool hit/miss/eviction counters as Prometheus
// collectors. A nil *PoolMetrics is valid and turns every call into a
// no-op, so tests can construct a BufferPoolManager without a registry.
type PoolMetrics struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	evictions prometheus.Counter
	newPages  prometheus.Counter
}

// NewPoolMetrics registers buffer-pool counters against reg, labeled with
// the given instance name so multiple engines in one process don't collide.
func NewPoolMetrics(reg prometheus.Registerer, instance string) *PoolMetrics {
	labels := prometheus.Labels{"instance": instance}
	m := &PoolMetrics{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storage_bufferpool_hits_total", Help: "Buffer pool fetches served from cache.", ConstLabels: labels,
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storage_bufferpool_misses_total", Help: "Buffer pool fetches that read through to disk.", ConstLabels: labels,
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storage_bufferpool_evictions_total", Help: "Frames evicted by the LRU replacer.", ConstLabels: labels,
		}),
		newPages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storage_bufferpool_new_pages_total", Help: "Pages allocated via NewPage.", ConstLabels: labels,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.hits, m.misses, m.evictions, m.newPages)
	}
	return m
}

func (m *PoolMetrics) hit() {
	if m != nil {
		m.hits.Inc()
	}
}

func (m *PoolMetrics) miss() {
	if m != nil {
		m.misses.Inc()
	}
}

func (m *PoolMetrics) eviction() {
	if m != nil {
		m.evictions.Inc()
	}
}

func (m *PoolMetrics) newPage() {
	if m != nil {
		m.newPages.Inc()
	}
}
