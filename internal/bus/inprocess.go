package bus

import (
	"context"
	"sync"
)

// InProcessBus is a channel-backed Bus for single-process deployments and
// tests: both arm_control and bt_service in one binary, or a test harness
// driving both sides directly. Adapted from the teacher's channel-based
// notifier: per-topic subscriber lists, non-blocking fan-out sends.
type InProcessBus struct {
	mu     sync.Mutex
	subs   map[string][]chan Envelope
	closed bool
}

// NewInProcessBus returns an empty in-process bus.
func NewInProcessBus() *InProcessBus {
	return &InProcessBus{subs: make(map[string][]chan Envelope)}
}

func (b *InProcessBus) Publish(ctx context.Context, topic string, env Envelope) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	for _, ch := range b.subs[topic] {
		select {
		case ch <- env:
		default:
			// Slow subscriber: drop rather than block the publisher.
		}
	}
	return nil
}

func (b *InProcessBus) Subscribe(ctx context.Context, topic string) (<-chan Envelope, func()) {
	ch := make(chan Envelope, 64)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	b.subs[topic] = append(b.subs[topic], ch)
	b.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if b.closed {
				// Close already closed every subscriber channel.
				return
			}
			subs := b.subs[topic]
			for i, s := range subs {
				if s == ch {
					b.subs[topic] = append(subs[:i], subs[i+1:]...)
					break
				}
			}
			close(ch)
		})
	}

	go func() {
		<-ctx.Done()
		unsubscribe()
	}()

	return ch, unsubscribe
}

func (b *InProcessBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, subs := range b.subs {
		for _, ch := range subs {
			close(ch)
		}
	}
	b.subs = nil
	return nil
}
