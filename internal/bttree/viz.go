package bttree

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"time"

	"github.com/wxzhao/workstation/internal/btnodes"
	"github.com/wxzhao/workstation/internal/logging"
)

// GrootPublisher is a minimal stand-in for a Groot2 visualization server:
// it accepts TCP connections and broadcasts a JSON snapshot line to every
// connected client on each successful reload. It does not implement
// Groot2's actual framing/handshake protocol — no example in the retrieval
// pack carries a Groot2 client library to ground that on, so this trades
// wire compatibility for "something a operator's script can still tail"
// (see DESIGN.md).
type GrootPublisher struct {
	mu      sync.Mutex
	clients map[net.Conn]struct{}
	ln      net.Listener
}

// snapshot is the per-reload payload broadcast to every connected client.
type snapshot struct {
	ReloadedAt int64  `json:"reloaded_at_ms"`
	TreeType   string `json:"tree_type"`
}

// NewGrootPublisher starts listening on addr (host:port) and returns a
// publisher broadcasting to whatever clients connect. A listen failure is
// returned to the caller, who treats it as non-fatal per treerunner's
// contract (log and continue without visualization).
func NewGrootPublisher(addr string) (*GrootPublisher, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	p := &GrootPublisher{clients: make(map[net.Conn]struct{}), ln: ln}
	go p.acceptLoop()
	return p, nil
}

func (p *GrootPublisher) acceptLoop() {
	for {
		conn, err := p.ln.Accept()
		if err != nil {
			return
		}
		p.mu.Lock()
		p.clients[conn] = struct{}{}
		p.mu.Unlock()
	}
}

// Publish broadcasts a reload snapshot to every connected client,
// dropping any connection that can't keep up or has gone away.
func (p *GrootPublisher) Publish(ctx context.Context, root btnodes.Node) error {
	payload, err := json.Marshal(snapshot{
		ReloadedAt: time.Now().UnixMilli(),
		TreeType:   nodeTypeName(root),
	})
	if err != nil {
		return err
	}
	payload = append(payload, '\n')

	p.mu.Lock()
	defer p.mu.Unlock()
	for conn := range p.clients {
		_ = conn.SetWriteDeadline(time.Now().Add(1 * time.Second))
		if _, err := conn.Write(payload); err != nil {
			logging.Op().Warn("groot publisher: dropping stalled client", "error", err)
			conn.Close()
			delete(p.clients, conn)
		}
	}
	return nil
}

// Close stops accepting new clients and closes every live connection.
func (p *GrootPublisher) Close() {
	p.ln.Close()
	p.mu.Lock()
	defer p.mu.Unlock()
	for conn := range p.clients {
		conn.Close()
	}
	p.clients = nil
}

func nodeTypeName(n btnodes.Node) string {
	switch n.(type) {
	case *btnodes.Sequence:
		return "Sequence"
	case *btnodes.Fallback:
		return "Fallback"
	case *btnodes.Parallel:
		return "Parallel"
	case *btnodes.Inverter:
		return "Inverter"
	case *btnodes.ForceSuccess:
		return "ForceSuccess"
	case *btnodes.Retry:
		return "Retry"
	case *btnodes.CommandAction:
		return "Action"
	default:
		return "Unknown"
	}
}
