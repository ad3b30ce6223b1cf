// Package treerunner owns the BT service's tree instance (spec component
// C11): loading and hot-reloading the XML tree file, ticking it on a
// throttled cadence, and publishing visualization state after a successful
// reload.
package treerunner

import (
	"context"
	"os"
	"time"

	"github.com/wxzhao/workstation/internal/btnodes"
	"github.com/wxzhao/workstation/internal/logging"
	"github.com/wxzhao/workstation/internal/pkg/fsutil"
)

// ReloadStatus is the outcome of a reload attempt.
type ReloadStatus string

const (
	ReloadUnchanged  ReloadStatus = "unchanged"
	ReloadOK         ReloadStatus = "ok"
	ReloadReadError  ReloadStatus = "read_error"
	ReloadParseError ReloadStatus = "parse_error"
)

// TreeLoader parses raw XML into a runnable tree. The concrete BT engine
// (a groot2-compatible XML tree of btnodes.Node) is supplied by the
// composition root; treerunner only owns the reload/tick lifecycle around
// whatever it returns.
type TreeLoader func(xml []byte) (btnodes.Node, error)

// VizPublisher pushes tree state to an external visualizer (Groot2-style).
// Construction failures are non-fatal: Runner logs and continues without
// visualization rather than treating it as a startup failure.
type VizPublisher interface {
	Publish(ctx context.Context, root btnodes.Node) error
}

// Runner owns the current tree and its reload/tick cadence.
type Runner struct {
	path       string
	load       TreeLoader
	reloadEvery time.Duration
	viz        VizPublisher

	cachedHash   string
	lastReadErr  bool
	root         btnodes.Node
	lastReloadAt time.Time
}

// New returns a Runner for the tree file at path, not yet loaded: the first
// maybe_reload call performs the initial load.
func New(path string, load TreeLoader, reloadEvery time.Duration, viz VizPublisher) *Runner {
	return &Runner{path: path, load: load, reloadEvery: reloadEvery, viz: viz}
}

// MaybeReload honors the reload_ms throttle: it only attempts
// ReloadIfChanged once reloadEvery has elapsed since the last attempt.
func (r *Runner) MaybeReload(ctx context.Context) ReloadStatus {
	if time.Since(r.lastReloadAt) < r.reloadEvery {
		return ReloadUnchanged
	}
	r.lastReloadAt = time.Now()
	return r.ReloadIfChanged(ctx)
}

// ReloadIfChanged reads the tree file, compares its content hash against
// the cached one, and replaces the tree on change. A read failure is
// logged once per failing streak, not on every throttled attempt, so a
// missing file doesn't spam the log every reload_ms.
func (r *Runner) ReloadIfChanged(ctx context.Context) ReloadStatus {
	hash, err := fsutil.HashFile(r.path)
	if err != nil {
		if !r.lastReadErr {
			logging.Op().Warn("tree file read failed", "path", r.path, "error", err)
			r.lastReadErr = true
		}
		return ReloadReadError
	}
	r.lastReadErr = false

	if hash == r.cachedHash && r.root != nil {
		return ReloadUnchanged
	}

	data, err := os.ReadFile(r.path)
	if err != nil {
		logging.Op().Warn("tree file read failed", "path", r.path, "error", err)
		return ReloadReadError
	}

	root, err := r.load(data)
	if err != nil {
		logging.Op().Warn("tree parse failed, keeping previous tree", "path", r.path, "error", err)
		return ReloadParseError
	}

	r.root = root
	r.cachedHash = hash
	logging.Op().Info("tree loaded", "path", r.path)

	if r.viz != nil {
		if err := r.viz.Publish(ctx, r.root); err != nil {
			logging.Op().Warn("tree visualization publish failed, continuing without it", "error", err)
		}
	}
	return ReloadOK
}

// TickOnce ticks the root node if one has been loaded.
func (r *Runner) TickOnce(ctx context.Context) btnodes.Status {
	if r.root == nil {
		return btnodes.StatusRunning
	}
	return r.root.Tick(ctx)
}

// Root returns the currently loaded tree, or nil if none has loaded yet.
func (r *Runner) Root() btnodes.Node { return r.root }
