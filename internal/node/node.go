// Package node provides the small piece of behavior every daemon in this
// system shares regardless of which service it is: a periodic heartbeat
// publish and an optional health-file touch, so an external supervisor (or
// the other service) can tell it's alive without a dedicated RPC round
// trip.
package node

import (
	"context"
	"os"
	"time"

	"github.com/wxzhao/workstation/internal/bus"
	"github.com/wxzhao/workstation/internal/kv"
	"github.com/wxzhao/workstation/internal/logging"
	"github.com/wxzhao/workstation/internal/wire"
)

// Base is constructed once by each daemon's composition root (arm_control
// and bt_service), which runs it in its own goroutine.
type Base struct {
	Name       string
	Bus        bus.Bus
	Topic      string
	HealthFile string

	stop chan struct{}
}

// NewBase wires a heartbeat publisher for name, publishing to topic and
// optionally touching healthFile (ignored if empty) on the same cadence.
func NewBase(name string, b bus.Bus, topic, healthFile string) *Base {
	return &Base{Name: name, Bus: b, Topic: topic, HealthFile: healthFile, stop: make(chan struct{})}
}

// Run publishes a heartbeat envelope and touches the health file every
// interval until ctx is cancelled or Stop is called. Intended to run in its
// own goroutine from the composition root.
func (n *Base) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-n.stop:
			return
		case <-ticker.C:
			n.beat(ctx)
		}
	}
}

// Stop ends the Run loop without needing the caller's context to be
// cancelled.
func (n *Base) Stop() {
	close(n.stop)
}

func (n *Base) beat(ctx context.Context) {
	payload := kv.Encode(map[string]string{
		"service": n.Name,
		"ts_ms":   kv.FormatInt(int(time.Now().UnixMilli())),
	}, []string{"service", "ts_ms"})

	env := bus.Envelope{
		Version:     1,
		SchemaID:    wire.SchemaHeartbeat,
		Topic:       n.Topic,
		Source:      n.Name,
		TimestampMs: time.Now().UnixMilli(),
		Payload:     []byte(payload),
	}
	if err := n.Bus.Publish(ctx, n.Topic, env); err != nil {
		logging.Op().Warn("heartbeat publish failed", "service", n.Name, "error", err)
	}

	if n.HealthFile == "" {
		return
	}
	if err := os.WriteFile(n.HealthFile, []byte(time.Now().UTC().Format(time.RFC3339)), 0644); err != nil {
		logging.Op().Warn("health file touch failed", "service", n.Name, "path", n.HealthFile, "error", err)
	}
}
