package armcontrol

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/wxzhao/workstation/internal/bus"
	"github.com/wxzhao/workstation/internal/handlers"
	"github.com/wxzhao/workstation/internal/metrics"
	"github.com/wxzhao/workstation/internal/queue"
	"github.com/wxzhao/workstation/internal/sdk"
	"github.com/wxzhao/workstation/internal/strand"
	"github.com/wxzhao/workstation/internal/trace"
	"github.com/wxzhao/workstation/internal/wire"
)

func newTestPipeline(t *testing.T, queueMax int) (*Pipeline, bus.Bus, <-chan bus.Envelope) {
	t.Helper()
	b := bus.NewInProcessBus()
	q := queue.NewCommandQueue(queueMax)
	ex := strand.NewExecutor(1, 64)
	t.Cleanup(ex.Stop)
	st := strand.NewStrand(ex)

	reg := handlers.NewRegistry()
	sess := sdk.NewSession(sdk.Config{IP: "127.0.0.1", Port: 8080, Pass: "pw"}, sdk.NewMockHandle())
	builtins := &handlers.Builtins{Sess: sess}
	builtins.RegisterAll(reg)

	p := New(q, st, reg, sess, b, trace.New(), nil, "arm_control", "arm_status", "fault_status", "arm_control")

	statusCh, unsub := b.Subscribe(context.Background(), "arm_status")
	t.Cleanup(unsub)
	return p, b, statusCh
}

func TestHandleIngressThenSpinPublishesStatus(t *testing.T) {
	p, _, statusCh := newTestPipeline(t, 4)
	ctx := context.Background()

	env := bus.Envelope{Payload: []byte("op=demo_echo;id=req-1;msg=hi")}
	p.HandleIngress(ctx, env)

	p.SpinOnce(ctx)
	time.Sleep(20 * time.Millisecond)
	p.SpinOnce(ctx)

	select {
	case out := <-statusCh:
		resp := wire.ParseCommand(string(out.Payload))
		if resp.Op != "demo_echo" || resp.ID != "req-1" {
			t.Fatalf("unexpected status envelope: %+v", resp)
		}
		if resp.Get("echo") != "hi" {
			t.Fatalf("expected echo=hi, got %+v", resp.KV)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a status envelope within a second")
	}
}

func TestHandleIngressQueueFullSynthesizesResponse(t *testing.T) {
	p, _, statusCh := newTestPipeline(t, 1)
	ctx := context.Background()

	// Fill the one-slot queue, then overflow it — the overflowing command
	// never reaches the registry and gets an immediate queue_full status.
	p.HandleIngress(ctx, bus.Envelope{Payload: []byte("op=demo_echo;id=req-a;msg=a")})
	p.HandleIngress(ctx, bus.Envelope{Payload: []byte("op=demo_echo;id=req-b;msg=b")})

	p.SpinOnce(ctx) // drains the queue_full response, pops req-a onto the strand
	time.Sleep(20 * time.Millisecond)
	p.SpinOnce(ctx) // drains req-a's response

	seen := map[string]wire.Command{}
	for i := 0; i < 2; i++ {
		select {
		case out := <-statusCh:
			c := wire.ParseCommand(string(out.Payload))
			seen[c.ID] = c
		case <-time.After(time.Second):
			t.Fatalf("expected 2 status envelopes, got %d", len(seen))
		}
	}

	if got := seen["req-b"]; got.Get("err") != "queue_full" {
		t.Fatalf("expected req-b to fail with queue_full, got %+v", got)
	}
	if got := seen["req-a"]; got.Get("err") == "queue_full" {
		t.Fatal("expected req-a to have been dispatched, not rejected")
	}
}

func TestQueueFullEmitsWarnSeverityFault(t *testing.T) {
	p, b, _ := newTestPipeline(t, 2)
	ctx := context.Background()

	faultCh, unsub := b.Subscribe(ctx, "fault_status")
	defer unsub()

	p.HandleIngress(ctx, bus.Envelope{Payload: []byte("op=demo_echo;id=req-a;msg=a")})
	p.HandleIngress(ctx, bus.Envelope{Payload: []byte("op=demo_echo;id=req-b;msg=b")})
	p.HandleIngress(ctx, bus.Envelope{Payload: []byte("op=demo_echo;id=req-c;msg=c")}) // overflows capacity 2

	p.SpinOnce(ctx)

	select {
	case out := <-faultCh:
		var ev wire.FaultEvent
		if err := json.Unmarshal(out.Payload, &ev); err != nil {
			t.Fatalf("failed to decode fault event: %v", err)
		}
		if ev.Fault != "arm.queue_full" {
			t.Fatalf("expected fault %q, got %q", "arm.queue_full", ev.Fault)
		}
		if ev.Severity != wire.SeverityWarn {
			t.Fatalf("expected warn severity, got %q", ev.Severity)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a queue_full fault event within a second")
	}
}

func TestSpinOnceRecordsBreakerState(t *testing.T) {
	b := bus.NewInProcessBus()
	q := queue.NewCommandQueue(4)
	ex := strand.NewExecutor(1, 64)
	t.Cleanup(ex.Stop)
	st := strand.NewStrand(ex)

	reg := handlers.NewRegistry()
	sess := sdk.NewSession(sdk.Config{IP: "127.0.0.1", Port: 8080, Pass: "pw"}, sdk.NewMockHandle())
	builtins := &handlers.Builtins{Sess: sess}
	builtins.RegisterAll(reg)

	m := metrics.New("pipeline_test_breaker")
	p := New(q, st, reg, sess, b, trace.New(), m, "arm_control", "arm_status", "fault_status", "arm_control")

	p.SpinOnce(context.Background())

	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	var found bool
	for _, fam := range families {
		if fam.GetName() != "pipeline_test_breaker_circuit_breaker_state" {
			continue
		}
		for _, metric := range fam.GetMetric() {
			for _, lbl := range metric.GetLabel() {
				if lbl.GetName() == "breaker" && lbl.GetValue() == "arm_sdk" {
					found = true
					if got := metric.GetGauge().GetValue(); got != 0 {
						t.Fatalf("expected a fresh session's breaker state to be 0 (closed), got %v", got)
					}
				}
			}
		}
	}
	if !found {
		t.Fatal("expected SpinOnce to record a circuit_breaker_state sample for arm_sdk")
	}
}

func TestTriggerFaultResetDrainsOnNextSpin(t *testing.T) {
	p, _, statusCh := newTestPipeline(t, 4)
	ctx := context.Background()

	if !p.TriggerFaultReset("test_fault") {
		t.Fatal("expected TriggerFaultReset to accept under capacity")
	}

	p.SpinOnce(ctx)
	time.Sleep(20 * time.Millisecond)
	p.SpinOnce(ctx)

	select {
	case out := <-statusCh:
		resp := wire.ParseCommand(string(out.Payload))
		if resp.Op != "fault_reset" {
			t.Fatalf("expected a fault_reset status, got %+v", resp)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a fault_reset status envelope within a second")
	}
}
