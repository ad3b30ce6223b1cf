package bus

import (
	"context"
	"testing"
	"time"
)

func TestInProcessBusDeliversToAllSubscribers(t *testing.T) {
	b := NewInProcessBus()
	defer b.Close()

	ctx := context.Background()
	ch1, unsub1 := b.Subscribe(ctx, "arm_status")
	defer unsub1()
	ch2, unsub2 := b.Subscribe(ctx, "arm_status")
	defer unsub2()

	if err := b.Publish(ctx, "arm_status", Envelope{EventID: "evt-1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, ch := range []<-chan Envelope{ch1, ch2} {
		select {
		case env := <-ch:
			if env.EventID != "evt-1" {
				t.Fatalf("expected evt-1, got %q", env.EventID)
			}
		case <-time.After(time.Second):
			t.Fatal("expected every subscriber to receive the publish")
		}
	}
}

func TestInProcessBusDoesNotDeliverToOtherTopics(t *testing.T) {
	b := NewInProcessBus()
	defer b.Close()

	ctx := context.Background()
	ch, unsub := b.Subscribe(ctx, "fault_status")
	defer unsub()

	b.Publish(ctx, "arm_status", Envelope{EventID: "evt-1"})

	select {
	case <-ch:
		t.Fatal("expected no delivery for an unrelated topic")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestInProcessBusUnsubscribeStopsDelivery(t *testing.T) {
	b := NewInProcessBus()
	defer b.Close()

	ctx := context.Background()
	ch, unsub := b.Subscribe(ctx, "arm_status")
	unsub()

	b.Publish(ctx, "arm_status", Envelope{EventID: "evt-1"})

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected no envelope to arrive after unsubscribe")
		}
	case <-time.After(time.Second):
		t.Fatal("expected unsubscribe to close the channel")
	}
}

func TestInProcessBusSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	b := NewInProcessBus()
	defer b.Close()

	ctx := context.Background()
	_, unsub := b.Subscribe(ctx, "arm_status") // never drained
	defer unsub()

	for i := 0; i < 100; i++ {
		if err := b.Publish(ctx, "arm_status", Envelope{EventID: "evt"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
}

func TestInProcessBusCloseClosesOpenSubscriptions(t *testing.T) {
	b := NewInProcessBus()
	ch, unsub := b.Subscribe(context.Background(), "arm_status")
	defer unsub()

	if err := b.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("expected channel close to be immediate")
	}
}

func TestInProcessBusSubscribeAfterCloseReturnsClosedChannel(t *testing.T) {
	b := NewInProcessBus()
	b.Close()

	ch, _ := b.Subscribe(context.Background(), "arm_status")
	if _, ok := <-ch; ok {
		t.Fatal("expected subscribing after close to return an already-closed channel")
	}
}
