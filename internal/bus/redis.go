package bus

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/wxzhao/workstation/internal/logging"
)

const redisTopicPrefix = "ws:bus:"

// RedisBus is a distributed Bus backed by Redis PUBLISH/SUBSCRIBE,
// adapted from the teacher's RedisNotifier: every process publishing or
// subscribing to the same topic sees the same stream of envelopes,
// regardless of which process or host it runs on. This is the production
// backing for the DDS-shaped transport when arm_control and bt_service run
// as separate processes (or separate hosts).
type RedisBus struct {
	client *redis.Client

	mu     sync.Mutex
	subs   map[string][]*redisSub
	closed bool
}

type redisSub struct {
	ch     chan Envelope
	cancel context.CancelFunc
}

// NewRedisBus wraps an existing Redis client.
func NewRedisBus(client *redis.Client) *RedisBus {
	return &RedisBus{
		client: client,
		subs:   make(map[string][]*redisSub),
	}
}

func (b *RedisBus) Publish(ctx context.Context, topic string, env Envelope) error {
	data, err := marshalEnvelope(env)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, redisTopicPrefix+topic, data).Err()
}

func (b *RedisBus) Subscribe(ctx context.Context, topic string) (<-chan Envelope, func()) {
	ch := make(chan Envelope, 64)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	subCtx, cancel := context.WithCancel(ctx)
	rs := &redisSub{ch: ch, cancel: cancel}
	b.subs[topic] = append(b.subs[topic], rs)
	b.mu.Unlock()

	pubsub := b.client.Subscribe(subCtx, redisTopicPrefix+topic)

	go func() {
		// This goroutine is the only writer to ch, so it must also be the
		// one to close it: closing from unsubscribe/Close instead would
		// race with a send still in flight here.
		defer close(ch)
		defer pubsub.Close()
		msgCh := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				b.removeSub(topic, rs)
				return
			case msg, ok := <-msgCh:
				if !ok {
					b.removeSub(topic, rs)
					return
				}
				env, err := unmarshalEnvelope([]byte(msg.Payload))
				if err != nil {
					logging.Op().Warn("bus: dropping malformed envelope", "topic", topic, "error", err)
					continue
				}
				select {
				case ch <- env:
				default:
					logging.Op().Warn("bus: subscriber channel full, dropping envelope", "topic", topic)
				}
			}
		}
	}()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			cancel()
		})
	}
	return ch, unsubscribe
}

func (b *RedisBus) removeSub(topic string, target *redisSub) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[topic]
	for i, s := range subs {
		if s == target {
			b.subs[topic] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
}

func (b *RedisBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, subs := range b.subs {
		for _, s := range subs {
			// Cancelling subCtx makes each subscription's own goroutine
			// close its channel; see the comment in Subscribe.
			s.cancel()
		}
	}
	b.subs = nil
	return nil
}
