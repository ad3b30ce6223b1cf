// Package bus abstracts the DDS-style publish/subscribe transport that
// arm_control and bt_service exchange envelopes over. We specify only the
// envelope shape and the fan-out contract a real DDS participant must
// satisfy (every current subscriber receives every publish, regardless of
// how many); the transport underneath is pluggable.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
)

// Bus is the transport contract both services depend on.
type Bus interface {
	// Publish delivers env to every current subscriber of topic. It never
	// blocks on a slow subscriber: delivery to each subscriber is
	// best-effort and non-blocking, matching the "reliable by default, but
	// a stalled reader must not stall the bus" posture of a DDS QoS
	// profile tuned for a control loop.
	Publish(ctx context.Context, topic string, env Envelope) error

	// Subscribe returns a channel of envelopes published to topic from
	// this point forward, and an unsubscribe function. The channel is
	// closed once unsubscribe is called or ctx is cancelled.
	Subscribe(ctx context.Context, topic string) (<-chan Envelope, func())

	// Close releases all resources held by the bus.
	Close() error
}

// Envelope is the wire envelope carried over Bus, mirroring
// internal/wire.Envelope without importing it: bus has no opinion on
// payload shape, it just moves bytes tagged with routing metadata.
type Envelope struct {
	Version   int    `json:"version"`
	SchemaID  string `json:"schema_id"`
	Topic     string `json:"topic"`
	Source    string `json:"source"`
	EventID   string `json:"event_id"`
	TimestampMs int64 `json:"timestamp_ms"`
	Payload   []byte `json:"payload"`
}

// marshalEnvelope/unmarshalEnvelope are shared by any Bus implementation
// whose underlying transport only moves opaque bytes (Redis pub/sub).
func marshalEnvelope(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}

func unmarshalEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("bus: decode envelope: %w", err)
	}
	return env, nil
}
