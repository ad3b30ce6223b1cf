// Package armcontrol implements the arm_control ingress pipeline (spec
// component C6): the per-spin loop that drains strand-computed responses,
// drains fault-reset actions, and pops one command off the bounded queue to
// post onto the SDK strand.
package armcontrol

import (
	"context"
	"encoding/json"
	"time"

	"github.com/wxzhao/workstation/internal/bus"
	"github.com/wxzhao/workstation/internal/handlers"
	"github.com/wxzhao/workstation/internal/kv"
	"github.com/wxzhao/workstation/internal/metrics"
	"github.com/wxzhao/workstation/internal/queue"
	"github.com/wxzhao/workstation/internal/sdk"
	"github.com/wxzhao/workstation/internal/strand"
	"github.com/wxzhao/workstation/internal/trace"
	"github.com/wxzhao/workstation/internal/wire"

	"github.com/wxzhao/workstation/internal/logging"
)

const spinInterval = 5 * time.Millisecond

// FaultAction is a requested fault_reset, queued by the RPC path or by an
// operator action, drained on the next spin per spec.md §4.6 step 2.
type FaultAction struct {
	Fault string
}

type responseItem struct {
	resp *wire.Response
}

// Pipeline wires the queue, strand, registry, and bus together into the
// arm_control per-spin loop.
type Pipeline struct {
	Queue        *queue.CommandQueue
	ArmStrand    *strand.Strand
	Registry     *handlers.Registry
	Sess         *sdk.Session
	Bus          bus.Bus
	Trace        *trace.Context
	Metrics      *metrics.Collectors
	Source       string
	StatusTopic  string
	FaultTopic   string
	ServiceName  string

	responses    chan responseItem
	faultActions chan FaultAction
}

// New returns a Pipeline ready to Run.
func New(q *queue.CommandQueue, armStrand *strand.Strand, reg *handlers.Registry, sess *sdk.Session, b bus.Bus, tr *trace.Context, m *metrics.Collectors, source, statusTopic, faultTopic, serviceName string) *Pipeline {
	return &Pipeline{
		Queue:        q,
		ArmStrand:    armStrand,
		Registry:     reg,
		Sess:         sess,
		Bus:          b,
		Trace:        tr,
		Metrics:      m,
		Source:       source,
		StatusTopic:  statusTopic,
		FaultTopic:   faultTopic,
		ServiceName:  serviceName,
		responses:    make(chan responseItem, 256),
		faultActions: make(chan FaultAction, 16),
	}
}

// TriggerFaultReset enqueues a fault_reset action for the next spin.
// Non-blocking: a full queue drops the request and returns false.
func (p *Pipeline) TriggerFaultReset(fault string) bool {
	select {
	case p.faultActions <- FaultAction{Fault: fault}:
		return true
	default:
		return false
	}
}

// Run drives the spin loop until ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context) {
	ticker := time.NewTicker(spinInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.SpinOnce(ctx)
		}
	}
}

// SpinOnce runs exactly one iteration of the four-step loop in spec.md
// §4.6, exported so tests can drive it deterministically without a ticker.
func (p *Pipeline) SpinOnce(ctx context.Context) {
	p.drainResponses(ctx)
	p.drainFaultActions(ctx)
	p.tryDispatchOne(ctx)
	if p.Metrics != nil {
		p.Metrics.SetQueueDepth("arm_command", p.Queue.Len())
		p.Metrics.SetBreakerState("arm_sdk", p.Sess.BreakerState())
	}
}

func (p *Pipeline) drainResponses(ctx context.Context) {
	for {
		select {
		case item := <-p.responses:
			p.publishResponse(ctx, item.resp)
		default:
			return
		}
	}
}

func (p *Pipeline) publishResponse(ctx context.Context, resp *wire.Response) {
	if !resp.IsOK() {
		faultName, severity := "response_failed", wire.SeverityError
		if resp.Get("err") == "queue_full" {
			faultName, severity = "arm.queue_full", wire.SeverityWarn
		}
		p.emitFault(ctx, faultName, severity, resp)
	}

	env := bus.Envelope{
		Version:     1,
		SchemaID:    wire.SchemaArmStatus,
		Topic:       p.StatusTopic,
		Source:      p.Source,
		EventID:     resp.Get("id"),
		TimestampMs: time.Now().UnixMilli(),
		Payload:     []byte(resp.Encode()),
	}
	if err := p.Bus.Publish(ctx, p.StatusTopic, env); err != nil {
		logging.Op().Warn("armcontrol: status publish failed", "error", err)
	}
	if p.Metrics != nil {
		result := "ok"
		if !resp.IsOK() {
			result = "fail"
		}
		p.Metrics.RecordCommand(resp.Get("op"), result)
	}
}

func (p *Pipeline) emitFault(ctx context.Context, fault string, severity wire.Severity, resp *wire.Response) {
	errCode := 0
	if v := resp.Get("err_code"); v != "" {
		if f, ok := kv.ParseFloat(v); ok {
			errCode = int(f)
		}
	}
	ev := wire.NewFault(fault, p.ServiceName, severity, errCode, resp.Get("err"))
	p.publishFault(ctx, ev)
	if p.Metrics != nil {
		p.Metrics.RecordFault(p.ServiceName, string(severity))
	}
}

func (p *Pipeline) publishFault(ctx context.Context, ev wire.FaultEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		logging.Op().Warn("armcontrol: fault marshal failed", "error", err)
		return
	}
	env := bus.Envelope{
		Version:     1,
		SchemaID:    wire.SchemaFaultEvent,
		Topic:       p.FaultTopic,
		Source:      p.Source,
		TimestampMs: time.Now().UnixMilli(),
		Payload:     payload,
	}
	if err := p.Bus.Publish(ctx, p.FaultTopic, env); err != nil {
		logging.Op().Warn("armcontrol: fault publish failed", "error", err)
	}
}

func (p *Pipeline) drainFaultActions(ctx context.Context) {
	for {
		select {
		case action := <-p.faultActions:
			p.runFaultAction(ctx, action)
		default:
			return
		}
	}
}

func (p *Pipeline) runFaultAction(ctx context.Context, action FaultAction) {
	p.publishFault(ctx, wire.NewFault(action.Fault, p.ServiceName, wire.SeverityInfo, 0, ""))

	posted := p.ArmStrand.Post(func() {
		code, err := p.Sess.FaultReset(ctx)
		var resp *wire.Response
		if err != nil {
			resp = wire.FailResponse("fault_reset", "", wire.SdkUnavailable, "sdk_unavailable")
		} else {
			resp = wire.NewResponse("fault_reset", "").SetSdkResult(code)
		}
		p.responses <- responseItem{resp: resp}
	})
	if !posted {
		logging.Op().Warn("armcontrol: fault_reset rejected by strand", "fault", action.Fault)
	}
}

func (p *Pipeline) tryDispatchOne(ctx context.Context) {
	raw, ok := p.Queue.TryPop()
	if !ok {
		return
	}

	posted := p.ArmStrand.Post(func() {
		start := time.Now()
		cmd := wire.ParseCommand(raw)
		p.Trace.Observe(cmd.Get("trace_id"))
		resp := p.Registry.Dispatch(ctx, cmd)
		if p.Metrics != nil {
			p.Metrics.ObserveDispatch(cmd.Op, float64(time.Since(start).Milliseconds()))
		}
		p.responses <- responseItem{resp: resp}
	})
	if !posted {
		cmd := wire.ParseCommand(raw)
		p.responses <- responseItem{resp: wire.FailResponse(cmd.Op, cmd.ID, wire.InvalidArgs, "executor_rejected")}
	}
}

// HandleIngress decodes a raw envelope payload off the bus and pushes it
// onto the queue, synthesizing a QueueFull response/fault when the queue
// is saturated. Bound to the bus subscription on arm_control's command
// topic by the composition root.
func (p *Pipeline) HandleIngress(ctx context.Context, env bus.Envelope) {
	if ok := p.Queue.Push(string(env.Payload)); ok {
		return
	}
	cmd := wire.ParseCommand(string(env.Payload))
	resp := wire.FailResponse(cmd.Op, cmd.ID, wire.QueueFull, "queue_full")
	p.responses <- responseItem{resp: resp}
}
