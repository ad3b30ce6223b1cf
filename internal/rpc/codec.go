package rpc

import "encoding/json"

// jsonCodec is a hand-rolled grpc/encoding.Codec: the RPC control plane
// carries JSON-shaped {op, args}/{status, result} envelopes (spec.md §4.9),
// not protobuf, so messages are plain Go values rather than proto.Message
// implementations. Server.Start installs it with grpc.ForceServerCodec, so
// every method on that grpc.Server is coded with it; it is not registered
// under its name in grpc's codec registry.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (jsonCodec) Name() string { return "ws-json" }
