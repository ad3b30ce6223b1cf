// Package btnodes implements the BT action node contract (spec component
// C8): the common on_start/on_running/on_halted lifecycle shared by every
// node that issues an arm command and waits for its correlated response,
// plus the concrete nodes for the handler catalog in spec.md §4.2.
package btnodes

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wxzhao/workstation/internal/bus"
	"github.com/wxzhao/workstation/internal/correlation"
	"github.com/wxzhao/workstation/internal/kv"
	"github.com/wxzhao/workstation/internal/logging"
	"github.com/wxzhao/workstation/internal/trace"
	"github.com/wxzhao/workstation/internal/wire"
)

// Status is a BT node's tick result.
type Status int

const (
	StatusRunning Status = iota
	StatusSuccess
	StatusFailure
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	default:
		return "running"
	}
}

// Node is the minimal contract the tree runner drives: tick it once per BT
// tick, get back a status.
type Node interface {
	Tick(ctx context.Context) Status
}

// Ports is a minimal blackboard substitute: named string values read by a
// node's input-building step, and written to by getter nodes on success.
type Ports map[string]string

func (p Ports) Get(key string) string { return p[key] }
func (p Ports) Set(key, value string) { p[key] = value }

// NewRequestID builds a fresh request id: monotonic milliseconds plus a
// random suffix, matching the "monotonic ms + random" scheme in spec.md
// §4.8. The suffix comes from a uuid4, truncated the way the rest of this
// codebase's ancestry shortens uuids for a human-legible id.
func NewRequestID() string {
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), uuid.New().String()[:8])
}

// CommandAction is the shared implementation of the on_start/on_running/
// on_halted lifecycle. Concrete ops are built by filling in its fields; see
// ops.go for the handler-catalog instances.
type CommandAction struct {
	Op           string
	Bus          bus.Bus
	CommandTopic string
	AlertTopic   string
	Source       string
	Trace        *trace.Context
	Cache        *correlation.Cache
	TimeoutMs    int
	AlertCode    string // e.g. "ARM_POWER_ON" -> E_ARM_POWER_ON_TIMEOUT / _FAIL

	// RequiredPorts lists input ports that must be non-empty at on_start;
	// a missing one fails immediately without publishing anything.
	RequiredPorts []string

	// BuildKV maps node-specific input ports onto the outbound KV payload,
	// beyond the op/id/trace fields CommandAction always sets.
	BuildKV func(ports Ports) map[string]string

	// Decide maps a cache hit to SUCCESS/FAILURE. Defaults to the
	// err_code-wins rule; boolean-query nodes override it to also check
	// the value field.
	Decide func(resp correlation.ArmResp) Status

	// OnSuccess is called once, on SUCCESS, before Tick returns — getter
	// nodes use it to write the retrieved value to an output port.
	OnSuccess func(resp correlation.ArmResp, ports Ports)

	ports    Ports
	id       string
	deadline time.Time
	alerted  bool
	active   bool
}

// Bind attaches the blackboard this activation will read inputs from and
// write outputs to. Called once before Tick, by the tree (or a test).
func (a *CommandAction) Bind(ports Ports) *CommandAction {
	a.ports = ports
	return a
}

// Tick drives the on_start/on_running state machine.
func (a *CommandAction) Tick(ctx context.Context) Status {
	if !a.active {
		return a.onStart(ctx)
	}
	return a.onRunning(ctx)
}

func (a *CommandAction) onStart(ctx context.Context) Status {
	for _, p := range a.RequiredPorts {
		if a.ports.Get(p) == "" {
			return StatusFailure
		}
	}

	a.id = NewRequestID()
	timeout := a.TimeoutMs
	if timeout <= 0 {
		timeout = 30000
	}
	a.deadline = time.Now().Add(time.Duration(timeout) * time.Millisecond)
	a.alerted = false
	a.active = true

	fields := map[string]string{"op": a.Op, "id": a.id}
	if tr := a.Trace.Active(); tr != "" {
		fields["trace_id"] = tr
	}
	if a.BuildKV != nil {
		for k, v := range a.BuildKV(a.ports) {
			fields[k] = v
		}
	}
	payload := kv.Encode(fields, []string{"op", "id", "trace_id"})

	env := bus.Envelope{
		Version:     1,
		SchemaID:    wire.SchemaArmCommand,
		Topic:       a.CommandTopic,
		Source:      a.Source,
		EventID:     a.id,
		TimestampMs: time.Now().UnixMilli(),
		Payload:     []byte(payload),
	}
	if err := a.Bus.Publish(ctx, a.CommandTopic, env); err != nil {
		logging.Op().Warn("btnodes: command publish failed", "op", a.Op, "error", err)
	}
	return StatusRunning
}

func (a *CommandAction) onRunning(ctx context.Context) Status {
	if time.Now().After(a.deadline) {
		a.emitAlert(ctx, "TIMEOUT", correlation.ArmResp{})
		a.active = false
		return StatusFailure
	}

	resp, ok := a.Cache.Get(a.id)
	if !ok {
		return StatusRunning
	}

	decide := a.Decide
	if decide == nil {
		decide = func(r correlation.ArmResp) Status {
			if correlation.PreferErrCodeSuccess(r.OK, r.ErrCode) {
				return StatusSuccess
			}
			return StatusFailure
		}
	}

	status := decide(resp)
	a.active = false
	if status == StatusSuccess {
		if a.OnSuccess != nil {
			a.OnSuccess(resp, a.ports)
		}
		return StatusSuccess
	}
	a.emitAlert(ctx, "FAIL", resp)
	return StatusFailure
}

// OnHalted clears local activation state.
func (a *CommandAction) OnHalted() {
	a.active = false
}

// emitAlert publishes a one-shot system-alert DTO. At most one alert is
// emitted per activation, per spec.md §4.8.
func (a *CommandAction) emitAlert(ctx context.Context, kind string, resp correlation.ArmResp) {
	if a.alerted {
		return
	}
	a.alerted = true

	code := fmt.Sprintf("E_%s_%s", a.AlertCode, kind)
	fields := map[string]string{
		"error_code": code,
		"message":    a.Op + " " + kind,
	}
	if kind == "FAIL" {
		fields["sdk_code"] = kv.FormatInt(resp.SdkCode)
		fields["arm_err_code"] = kv.FormatInt(resp.ErrCode)
		fields["arm_err"] = resp.Err
	}
	payload := kv.Encode(fields, []string{"error_code", "message"})

	env := bus.Envelope{
		Version:     1,
		SchemaID:    wire.SchemaSystemAlert,
		Topic:       a.AlertTopic,
		Source:      a.Source,
		EventID:     a.id,
		TimestampMs: time.Now().UnixMilli(),
		Payload:     []byte(payload),
	}
	if err := a.Bus.Publish(ctx, a.AlertTopic, env); err != nil {
		logging.Op().Warn("btnodes: alert publish failed", "code", code, "error", err)
	}
}
