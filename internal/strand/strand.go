// Package strand implements the cooperative executor and serialized lanes
// (spec component C5) that bind handlers, the SDK session, and the RPC
// dispatchers to a single-threaded execution order per resource.
//
// A Strand is a serial execution lane: tasks posted to the same Strand run
// one at a time, in post order, even though the Executor itself may be
// driven from multiple worker goroutines (or zero, with spin-driven
// draining — see Executor.SpinOnce). Three named lanes are used across the
// two services: arm_sdk_strand (every SDK call, from the ingress pipeline,
// the RPC handler, and the fault-action handler alike), ingress_strand
// (BT-side status decoding, kept off the bus's own goroutine), and
// rpc_strand (RPC handler invocations).
package strand

import (
	"sync"
)

// Executor runs posted tasks, one Strand at a time per lane, with an
// optional pool of worker goroutines draining a shared task channel. With
// Workers == 0, nothing is drained automatically: the caller must invoke
// SpinOnce from its own loop, which is how arm_control's 5ms main loop
// drives dispatch without an extra goroutine underneath it.
type Executor struct {
	mu      sync.Mutex
	workers int
	tasks   chan func()
	stopped bool
	wg      sync.WaitGroup
}

// NewExecutor returns an Executor with the given worker-goroutine count.
// queueDepth bounds the number of posted-but-not-yet-run tasks; Post
// returns false once it's full.
func NewExecutor(workers, queueDepth int) *Executor {
	if queueDepth <= 0 {
		queueDepth = 256
	}
	e := &Executor{
		workers: workers,
		tasks:   make(chan func(), queueDepth),
	}
	for i := 0; i < workers; i++ {
		e.wg.Add(1)
		go e.runWorker()
	}
	return e
}

func (e *Executor) runWorker() {
	defer e.wg.Done()
	for task := range e.tasks {
		task()
	}
}

// Post submits task for execution. It returns false if the executor has
// been stopped or the internal queue is full (backpressure); the caller
// synthesizes an InvalidArgs/executor_rejected response in that case.
func (e *Executor) Post(task func()) bool {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return false
	}
	e.mu.Unlock()

	select {
	case e.tasks <- task:
		return true
	default:
		return false
	}
}

// SpinOnce drains and runs whatever tasks are currently queued, without
// blocking beyond that. Used by a zero-worker Executor driven from an
// external main loop (arm_control's 5ms ingress spin).
func (e *Executor) SpinOnce() {
	for {
		select {
		case task := <-e.tasks:
			task()
		default:
			return
		}
	}
}

// Stop refuses new Post calls and waits for worker goroutines (if any) to
// drain in-flight tasks. Tasks already queued but not yet picked up by a
// worker are abandoned along with the channel; callers that need every
// queued task to run before shutdown should SpinOnce a zero-worker executor
// to drain it first.
func (e *Executor) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	e.mu.Unlock()
	close(e.tasks)
	e.wg.Wait()
}

// Strand is a serialized lane bound to an Executor: at most one task
// posted through this Strand is running at any instant, and tasks run in
// the order they were posted to it, regardless of how many Executor
// workers exist.
type Strand struct {
	executor *Executor

	mu      sync.Mutex
	queue   []func()
	running bool
}

// NewStrand binds a new serial lane to executor.
func NewStrand(executor *Executor) *Strand {
	return &Strand{executor: executor}
}

// Post appends task to the strand's queue and, if nothing from this strand
// is currently running, posts a drain step to the Executor. Returns false
// if the Executor rejected the drain step (queue full / stopped); task is
// discarded in that case along with anything already queued behind it is
// unaffected (they'll be picked up once a drain step does get accepted).
func (s *Strand) Post(task func()) bool {
	s.mu.Lock()
	idx := len(s.queue)
	s.queue = append(s.queue, task)
	needDrain := !s.running
	if needDrain {
		s.running = true
	}
	s.mu.Unlock()

	if !needDrain {
		return true
	}
	if ok := s.executor.Post(s.drain); !ok {
		s.mu.Lock()
		s.running = false
		// Nothing else can have drained s.queue while running was true, so
		// our own append is still at idx; strip it back out so the discard
		// this method promises actually happens. Tasks left over from an
		// earlier rejection (ahead of it) and anything appended behind it by
		// a concurrent Post call stay in place and are picked up whenever a
		// later Post succeeds in posting a drain step.
		s.queue = append(s.queue[:idx], s.queue[idx+1:]...)
		s.mu.Unlock()
		return false
	}
	return true
}

// drain runs queued tasks one at a time until the queue is empty, then
// clears the running flag. Because running stays true until the queue is
// seen empty under the lock, a task appended concurrently is picked up by
// this same loop and no second drain step is posted to the executor.
func (s *Strand) drain() {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.running = false
			s.mu.Unlock()
			return
		}
		task := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		task()
	}
}
