// Package queue implements the bounded command queue (spec component C4)
// that decouples the DDS listener thread from arm_control's main loop: a
// multiple-producer, single-consumer ring with a hard capacity cap,
// condition-variable-style blocking pop, and a shutdown signal that wakes
// every waiter.
package queue

import (
	"sync"
	"time"
)

// CommandQueue is an MPSC queue of raw inbound command payloads.
type CommandQueue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	items   []string
	maxSize int
	running bool
}

// NewCommandQueue returns a queue capped at maxSize.
func NewCommandQueue(maxSize int) *CommandQueue {
	q := &CommandQueue{maxSize: maxSize, running: true}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends raw to the queue. It never blocks: if the queue is already
// at capacity, it returns false and raw is dropped, letting the caller
// (the ingress pipeline) synthesize a QueueFull response and fault.
func (q *CommandQueue) Push(raw string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.running || len(q.items) >= q.maxSize {
		return false
	}
	q.items = append(q.items, raw)
	q.cond.Signal()
	return true
}

// TryPop removes and returns the oldest item without blocking. ok is false
// if the queue is empty.
func (q *CommandQueue) TryPop() (raw string, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popLocked()
}

// PopFor blocks up to timeout, or until the queue becomes non-empty, or
// until runningFn returns false (checked once at entry and once after each
// wakeup), whichever comes first. A shutdown (Stop) broadcasts immediately
// so a pending PopFor wakes without waiting out its timeout.
func (q *CommandQueue) PopFor(timeout time.Duration, runningFn func() bool) (raw string, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	deadline := time.Now().Add(timeout)
	for len(q.items) == 0 && q.running && (runningFn == nil || runningFn()) {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return "", false
		}
		q.waitWithTimeout(remaining)
	}
	return q.popLocked()
}

func (q *CommandQueue) popLocked() (string, bool) {
	if len(q.items) == 0 {
		return "", false
	}
	raw := q.items[0]
	q.items = q.items[1:]
	return raw, true
}

// waitWithTimeout waits on q.cond for up to d. sync.Cond has no native
// timed wait, so a timer goroutine broadcasts after d to guarantee the
// waiter wakes even with no Push/Stop; the caller's loop re-checks the
// deadline afterward to distinguish a real wakeup from a timeout.
// Must be called with q.mu held; re-acquires it before returning.
func (q *CommandQueue) waitWithTimeout(d time.Duration) {
	timer := time.AfterFunc(d, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer timer.Stop()
	q.cond.Wait()
}

// Stop flips the running predicate and wakes every blocked PopFor caller.
// Subsequent Push calls fail.
func (q *CommandQueue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.running = false
	q.cond.Broadcast()
}

// Len reports the current queue depth, mainly for metrics.
func (q *CommandQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
