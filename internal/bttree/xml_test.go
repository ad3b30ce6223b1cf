package bttree

import (
	"testing"

	"github.com/wxzhao/workstation/internal/bus"
	"github.com/wxzhao/workstation/internal/btnodes"
	"github.com/wxzhao/workstation/internal/correlation"
	"github.com/wxzhao/workstation/internal/trace"
)

func testDeps() btnodes.Deps {
	return btnodes.Deps{
		Bus:          bus.NewInProcessBus(),
		Cache:        correlation.New(),
		Trace:        trace.New(),
		Source:       "bt_service",
		CommandTopic: "arm_command",
		AlertTopic:   "fault_status",
	}
}

func TestBuildSimpleSequenceOfActions(t *testing.T) {
	doc := `<root><BehaviorTree>
		<Sequence>
			<Action ID="power_on_enable"/>
			<Action ID="demo_echo" msg="hi"/>
		</Sequence>
	</BehaviorTree></root>`

	node, err := Build([]byte(doc), testDeps(), 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := node.(*btnodes.Sequence); !ok {
		t.Fatalf("expected a *btnodes.Sequence root, got %T", node)
	}
}

func TestBuildFallbackAndAliases(t *testing.T) {
	doc := `<root><BehaviorTree>
		<Fallback>
			<Action ID="is_ready"/>
			<Action ID="powerOnEnable"/>
		</Fallback>
	</BehaviorTree></root>`

	node, err := Build([]byte(doc), testDeps(), 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := node.(*btnodes.Fallback); !ok {
		t.Fatalf("expected a *btnodes.Fallback root, got %T", node)
	}
}

func TestBuildParallelUsesSuccessThreshold(t *testing.T) {
	doc := `<root><BehaviorTree>
		<Parallel success_threshold="1">
			<Action ID="is_power_on"/>
			<Action ID="is_start_signal"/>
		</Parallel>
	</BehaviorTree></root>`

	node, err := Build([]byte(doc), testDeps(), 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := node.(*btnodes.Parallel); !ok {
		t.Fatalf("expected a *btnodes.Parallel root, got %T", node)
	}
}

func TestBuildDecoratorsWrapSingleChild(t *testing.T) {
	for _, tag := range []string{"Inverter", "ForceSuccess"} {
		doc := `<root><BehaviorTree><` + tag + `><Action ID="is_ready"/></` + tag + `></BehaviorTree></root>`
		if _, err := Build([]byte(doc), testDeps(), 1000); err != nil {
			t.Fatalf("%s: unexpected error: %v", tag, err)
		}
	}
}

func TestBuildRetryReadsNumAttempts(t *testing.T) {
	doc := `<root><BehaviorTree>
		<Retry num_attempts="5"><Action ID="is_ready"/></Retry>
	</BehaviorTree></root>`

	node, err := Build([]byte(doc), testDeps(), 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	retry, ok := node.(*btnodes.Retry)
	if !ok {
		t.Fatalf("expected a *btnodes.Retry root, got %T", node)
	}
	if retry.MaxAttempts != 5 {
		t.Fatalf("expected num_attempts=5 to thread through, got %d", retry.MaxAttempts)
	}
}

func TestBuildGetterActions(t *testing.T) {
	doc := `<root><BehaviorTree>
		<Sequence>
			<Action ID="robot_mode" mode_port="mode"/>
			<Action ID="get_joint_actual_pos" rad_port="rad" deg_port="deg"/>
		</Sequence>
	</BehaviorTree></root>`

	if _, err := Build([]byte(doc), testDeps(), 1000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBuildUnknownActionIDFails(t *testing.T) {
	doc := `<root><BehaviorTree><Action ID="not_a_real_action"/></BehaviorTree></root>`
	if _, err := Build([]byte(doc), testDeps(), 1000); err == nil {
		t.Fatal("expected an error for an unknown action ID")
	}
}

func TestBuildUnknownNodeTypeFails(t *testing.T) {
	doc := `<root><BehaviorTree><NotARealNode/></BehaviorTree></root>`
	if _, err := Build([]byte(doc), testDeps(), 1000); err == nil {
		t.Fatal("expected an error for an unknown node type")
	}
}

func TestBuildDecoratorRequiresExactlyOneChild(t *testing.T) {
	doc := `<root><BehaviorTree>
		<Inverter><Action ID="is_ready"/><Action ID="is_ready"/></Inverter>
	</BehaviorTree></root>`
	if _, err := Build([]byte(doc), testDeps(), 1000); err == nil {
		t.Fatal("expected an error when a decorator has more than one child")
	}
}

func TestBuildMalformedXMLFails(t *testing.T) {
	if _, err := Build([]byte("<root><BehaviorTree><Sequence>"), testDeps(), 1000); err == nil {
		t.Fatal("expected an error for malformed XML")
	}
}
