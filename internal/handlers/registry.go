// Package handlers implements the operation registry and router (spec
// component C2): maps operation names to typed handlers, enforces per-op
// required fields before invoking one, and produces structured responses.
package handlers

import (
	"context"
	"sync"

	"github.com/wxzhao/workstation/internal/kv"
	"github.com/wxzhao/workstation/internal/wire"
)

// Handler is a typed operation: decode what it needs from cmd, call the SDK
// session (or not, for pure queries), and build a Response. Handlers never
// see a command whose required keys are missing — Dispatch checks that
// first — but they're still responsible for parsing and range-checking
// their own field values.
type Handler func(ctx context.Context, cmd wire.Command) *wire.Response

// Registry maps operation names (including aliases) to handlers. It is
// populated once at startup via Register. Readers are not lock-free:
// Dispatch and Alias take the RWMutex's read lock for each lookup. After
// registration completes nothing takes the write lock, so those read locks
// are never contended at runtime.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	required map[string][]string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
		required: make(map[string][]string),
	}
}

// Register binds op to handler with the given required-keys list.
// Registration is idempotent: a later Register for the same op overwrites
// the earlier binding, matching the "last write wins" contract in spec.md
// §3.
func (r *Registry) Register(op string, required []string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[op] = handler
	r.required[op] = required
}

// Alias registers the same handler and required-keys list under an
// additional name.
func (r *Registry) Alias(alias, existing string) {
	r.mu.RLock()
	h, hasH := r.handlers[existing]
	req := r.required[existing]
	r.mu.RUnlock()
	if !hasH {
		return
	}
	r.Register(alias, req, h)
}

// Dispatch implements the four-step contract from spec.md §4.2.
func (r *Registry) Dispatch(ctx context.Context, cmd wire.Command) *wire.Response {
	if cmd.Op == "" {
		return wire.FailResponse("", cmd.ID, wire.MissingField, "missing_op")
	}

	r.mu.RLock()
	h, ok := r.handlers[cmd.Op]
	required := r.required[cmd.Op]
	r.mu.RUnlock()

	if !ok {
		return wire.FailResponse(cmd.Op, cmd.ID, wire.UnknownOp, "unknown_op")
	}

	for _, key := range required {
		if !cmd.Has(key) {
			return wire.FailResponse(cmd.Op, cmd.ID, wire.MissingField, kv.MissingFieldToken(key))
		}
	}

	return h(ctx, cmd)
}
