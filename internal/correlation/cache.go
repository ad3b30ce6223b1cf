// Package correlation implements the BT-side status correlation cache
// (spec component C7): the last response seen for each in-flight request
// id, with best-effort time-bounded eviction on overflow.
package correlation

import (
	"sync"
	"time"
)

// ArmResp is the cached shape of a status response, as observed by the BT
// service (it never holds the full wire.Response, just what action nodes
// need to decide SUCCESS/FAILURE and to populate getter output ports).
type ArmResp struct {
	OK      bool
	ErrCode int
	Err     string
	SdkCode int
	TsMs    int64
	FullKV  map[string]string
}

const (
	softCap       = 256
	retentionTime = 30 * time.Second
)

// Cache is a concurrent map keyed by request id.
type Cache struct {
	mu      sync.Mutex
	entries map[string]ArmResp
}

// New returns an empty correlation cache.
func New() *Cache {
	return &Cache{entries: make(map[string]ArmResp)}
}

// Put records resp under id. If the cache has grown past softCap, entries
// older than retentionTime are pruned first — size-based and age-based
// eviction both trigger, per spec.md §9.
func (c *Cache) Put(id string, resp ArmResp) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) > softCap {
		cutoff := time.Now().UnixMilli() - retentionTime.Milliseconds()
		for k, v := range c.entries {
			if v.TsMs < cutoff {
				delete(c.entries, k)
			}
		}
	}
	c.entries[id] = resp
}

// Get returns the cached response for id, if any.
func (c *Cache) Get(id string) (ArmResp, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[id]
	return v, ok
}

// Len reports the current entry count, mainly for tests and metrics.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// PreferErrCodeSuccess implements the "err_code wins" rule from spec.md §9
// when an action node decides SUCCESS vs FAILURE from a cached response.
func PreferErrCodeSuccess(ok bool, errCode int) bool {
	return errCode == 0
}
