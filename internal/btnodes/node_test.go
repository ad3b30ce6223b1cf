package btnodes

import (
	"context"
	"testing"
	"time"

	"github.com/wxzhao/workstation/internal/bus"
	"github.com/wxzhao/workstation/internal/correlation"
	"github.com/wxzhao/workstation/internal/trace"
	"github.com/wxzhao/workstation/internal/wire"
)

func newTestDeps(b bus.Bus) Deps {
	return Deps{
		Bus:          b,
		Cache:        correlation.New(),
		Trace:        trace.New(),
		Source:       "bt_service",
		CommandTopic: "arm_command",
		AlertTopic:   "fault_status",
	}
}

func TestArmPowerOnSucceedsOnMatchingStatus(t *testing.T) {
	b := bus.NewInProcessBus()
	ctx := context.Background()
	deps := newTestDeps(b)

	commandCh, unsub := b.Subscribe(ctx, deps.CommandTopic)
	defer unsub()

	node := NewPowerOnEnable(deps, 5000)
	node.Bind(Ports{})

	if status := node.Tick(ctx); status != StatusRunning {
		t.Fatalf("expected RUNNING after on_start, got %v", status)
	}

	var cmd wire.Command
	select {
	case env := <-commandCh:
		cmd = wire.ParseCommand(string(env.Payload))
		if cmd.Op != "power_on_enable" {
			t.Fatalf("expected op=power_on_enable, got %q", cmd.Op)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a published command within a second")
	}

	deps.Cache.Put(cmd.ID, correlation.ArmResp{OK: true, ErrCode: 0, TsMs: time.Now().UnixMilli()})

	if status := node.Tick(ctx); status != StatusSuccess {
		t.Fatalf("expected SUCCESS once the matching status lands, got %v", status)
	}
}

func TestArmPowerOnTimesOutWithOneAlert(t *testing.T) {
	b := bus.NewInProcessBus()
	ctx := context.Background()
	deps := newTestDeps(b)

	alertCh, unsub := b.Subscribe(ctx, deps.AlertTopic)
	defer unsub()

	node := NewPowerOnEnable(deps, 1) // 1ms timeout
	node.Bind(Ports{})
	node.Tick(ctx)

	time.Sleep(5 * time.Millisecond)

	if status := node.Tick(ctx); status != StatusFailure {
		t.Fatalf("expected FAILURE after deadline, got %v", status)
	}

	select {
	case env := <-alertCh:
		alert := wire.ParseCommand(string(env.Payload))
		if alert.Get("error_code") != "E_ARM_POWER_ON_TIMEOUT" {
			t.Fatalf("expected E_ARM_POWER_ON_TIMEOUT, got %q", alert.Get("error_code"))
		}
	case <-time.After(time.Second):
		t.Fatal("expected exactly one timeout alert")
	}

	select {
	case <-alertCh:
		t.Fatal("expected exactly one alert, got a second")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestCommandActionFailsImmediatelyWhenRequiredPortMissing(t *testing.T) {
	b := bus.NewInProcessBus()
	ctx := context.Background()
	deps := newTestDeps(b)

	node := NewMoveJoint(deps, 5000)
	node.Bind(Ports{})

	if status := node.Tick(ctx); status != StatusFailure {
		t.Fatalf("expected immediate FAILURE for missing jointpos port, got %v", status)
	}
}

func TestBoolQueryNodeMapsValueToStatus(t *testing.T) {
	b := bus.NewInProcessBus()
	ctx := context.Background()
	deps := newTestDeps(b)

	commandCh, unsub := b.Subscribe(ctx, deps.CommandTopic)
	defer unsub()

	node := NewIsReady(deps, 5000)
	node.Bind(Ports{})
	node.Tick(ctx)

	env := <-commandCh
	cmd := wire.ParseCommand(string(env.Payload))
	deps.Cache.Put(cmd.ID, correlation.ArmResp{OK: true, ErrCode: 0, TsMs: time.Now().UnixMilli(), FullKV: map[string]string{"value": "0"}})

	if status := node.Tick(ctx); status != StatusFailure {
		t.Fatalf("expected FAILURE for value=0 on an is_ready query, got %v", status)
	}
}

func TestGetJointActualPosWritesOutputPorts(t *testing.T) {
	b := bus.NewInProcessBus()
	ctx := context.Background()
	deps := newTestDeps(b)

	commandCh, unsub := b.Subscribe(ctx, deps.CommandTopic)
	defer unsub()

	ports := Ports{}
	node := NewGetJointActualPos(deps, 5000, "rad_out", "deg_out")
	node.Bind(ports)
	node.Tick(ctx)

	env := <-commandCh
	cmd := wire.ParseCommand(string(env.Payload))
	deps.Cache.Put(cmd.ID, correlation.ArmResp{
		OK: true, ErrCode: 0, TsMs: time.Now().UnixMilli(),
		FullKV: map[string]string{"jointpos": "0.1,0,0,0,0,0", "jointpos_deg": "5.7,0,0,0,0,0"},
	})

	if status := node.Tick(ctx); status != StatusSuccess {
		t.Fatalf("expected SUCCESS, got %v", status)
	}
	if ports.Get("rad_out") != "0.1,0,0,0,0,0" {
		t.Fatalf("expected rad_out written, got %q", ports.Get("rad_out"))
	}
	if ports.Get("deg_out") != "5.7,0,0,0,0,0" {
		t.Fatalf("expected deg_out written, got %q", ports.Get("deg_out"))
	}
}

func TestNewRequestIDIsUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := NewRequestID()
		if seen[id] {
			t.Fatalf("duplicate request id %q", id)
		}
		seen[id] = true
	}
}
