package cluster

import (
	"sync"

	"github.com/kvpipe/kvpipe/internal/conn"
)

// Cache is the shared, cross-session keyslot->node mapping spec.md §4.5
// and §5 describe: one entry per cluster name, updated by MOVED
// redirects and never by ASK (ASK targets are one-shot and never
// cached). Update swaps in a freshly built per-cluster slot map, so
// concurrent readers never observe a torn map — a mutex-guarded swap
// standing in for the spec's "atomic compare-and-set of the whole map"
// phrasing, since a held write lock already gives exclusive access
// during the swap.
type Cache struct {
	mu sync.RWMutex
	m  map[string]map[int]conn.NodeSpec
}

func NewCache() *Cache {
	return &Cache{m: make(map[string]map[int]conn.NodeSpec)}
}

func (c *Cache) Lookup(clusterName string, slot int) (conn.NodeSpec, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	slots, ok := c.m[clusterName]
	if !ok {
		return conn.NodeSpec{}, false
	}
	n, ok := slots[slot]
	return n, ok
}

func (c *Cache) Update(clusterName string, slot int, node conn.NodeSpec) {
	c.mu.Lock()
	defer c.mu.Unlock()
	old := c.m[clusterName]
	fresh := make(map[int]conn.NodeSpec, len(old)+1)
	for k, v := range old {
		fresh[k] = v
	}
	fresh[slot] = node
	c.m[clusterName] = fresh
}
