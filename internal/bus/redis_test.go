package bus

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// newTestRedisClient creates a Redis client for testing, skipping the test
// automatically when no Redis instance is reachable.
func newTestRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 15})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available, skipping: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisBusPublishAndSubscribe(t *testing.T) {
	client := newTestRedisClient(t)
	b := NewRedisBus(client)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, unsub := b.Subscribe(ctx, "arm_status")
	defer unsub()

	time.Sleep(50 * time.Millisecond)

	env := Envelope{Topic: "arm_status", Source: "arm_control", EventID: "evt-1", Payload: []byte("ok")}
	if err := b.Publish(ctx, "arm_status", env); err != nil {
		t.Fatalf("unexpected publish error: %v", err)
	}

	select {
	case got := <-ch:
		if got.EventID != "evt-1" {
			t.Fatalf("expected envelope event id evt-1, got %q", got.EventID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected to receive the published envelope")
	}
}

func TestRedisBusUnsubscribeClosesChannel(t *testing.T) {
	client := newTestRedisClient(t)
	b := NewRedisBus(client)
	defer b.Close()

	ch, unsub := b.Subscribe(context.Background(), "arm_status")
	unsub()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected the channel to eventually close after unsubscribe")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected the channel to close promptly after unsubscribe")
	}
}

func TestRedisBusSubscribeAfterCloseReturnsClosedChannel(t *testing.T) {
	client := newTestRedisClient(t)
	b := NewRedisBus(client)
	b.Close()

	ch, unsub := b.Subscribe(context.Background(), "arm_status")
	defer unsub()

	if _, ok := <-ch; ok {
		t.Fatal("expected subscribe on a closed bus to return an already-closed channel")
	}
}
