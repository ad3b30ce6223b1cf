// Package trace carries a single active trace id across the arm_control
// ingress pipeline: whatever trace_id arrives on an inbound command becomes
// the trace_id stamped on subsequent outbound status and fault messages,
// until a new inbound command overwrites it.
package trace

import "sync"

// Context holds the currently active trace id, shared across goroutines.
type Context struct {
	mu     sync.Mutex
	active string
}

// New returns an empty trace Context.
func New() *Context {
	return &Context{}
}

// Observe records traceID as the active trace if it is non-empty. An empty
// traceID leaves the previously active trace in place: commands that don't
// carry a trace_id don't clear one that's in flight.
func (c *Context) Observe(traceID string) {
	if traceID == "" {
		return
	}
	c.mu.Lock()
	c.active = traceID
	c.mu.Unlock()
}

// Active returns the currently active trace id, or "" if none has been
// observed yet.
func (c *Context) Active() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}
