// Package wire defines the schema ids and topics stamped on envelopes, the
// stable error taxonomy, the fault event, and the Command/Response shapes
// carried inside an envelope's payload. Everything here is pure data plus
// total, side-effect-free transforms; the Envelope type itself and the
// transport that moves it between processes live in internal/bus.
package wire

// Schema IDs for the envelopes defined in spec.md §6. These are the single
// source of truth for schema_id values stamped on outbound bus.Envelopes;
// internal/config seeds its defaults from these, and every publisher
// references them directly instead of repeating the literal.
const (
	SchemaArmCommand  = "ws.arm_command.v1"
	SchemaArmStatus   = "ws.arm_status.v1"
	SchemaSystemAlert = "ws.system_alert.v1"
	SchemaFaultEvent  = "ws.fault_event.v1"
	SchemaHeartbeat   = "ws.heartbeat.v1"
)

// Well-known topics. Like the schema IDs above, these are the source of
// truth for internal/config's defaults and for every publish/subscribe
// call site.
const (
	TopicArmCommand     = "/arm/command"
	TopicArmStatus      = "/arm/status"
	TopicSystemAlert    = "/system/alert"
	TopicCapability     = "capability/status"
	TopicFaultStatus    = "fault/status"
	TopicFaultAction    = "fault/action"
	TopicHeartbeat      = "heartbeat/status"
	TopicTimesyncPrefix = "timesync/"
)
