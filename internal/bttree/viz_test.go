package bttree

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/wxzhao/workstation/internal/btnodes"
)

func TestGrootPublisherBroadcastsSnapshotToConnectedClients(t *testing.T) {
	pub, err := NewGrootPublisher("127.0.0.1:0")
	if err != nil {
		t.Fatalf("unexpected error starting publisher: %v", err)
	}
	defer pub.Close()

	conn, err := net.Dial("tcp", pub.ln.Addr().String())
	if err != nil {
		t.Fatalf("unexpected error dialing publisher: %v", err)
	}
	defer conn.Close()

	time.Sleep(20 * time.Millisecond) // let acceptLoop register the connection

	seq := btnodes.NewSequence()
	if err := pub.Publish(context.Background(), seq); err != nil {
		t.Fatalf("unexpected error publishing: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(time.Second))
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		t.Fatalf("expected a broadcast line, got error: %v", err)
	}
	if line == "" {
		t.Fatal("expected a non-empty snapshot line")
	}
}

func TestNodeTypeNameCoversKnownComposites(t *testing.T) {
	cases := []struct {
		node btnodes.Node
		want string
	}{
		{btnodes.NewSequence(), "Sequence"},
		{btnodes.NewFallback(), "Fallback"},
		{btnodes.NewInverter(nil), "Inverter"},
	}
	for _, c := range cases {
		if got := nodeTypeName(c.node); got != c.want {
			t.Fatalf("expected %q, got %q", c.want, got)
		}
	}
}
