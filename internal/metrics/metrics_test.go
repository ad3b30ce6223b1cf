package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordCommandIncrementsCounter(t *testing.T) {
	c := New("test_commands")
	c.RecordCommand("moveJoint", "ok")
	c.RecordCommand("moveJoint", "ok")
	c.RecordCommand("moveJoint", "error")

	got := testutil.ToFloat64(c.commandsTotal.WithLabelValues("moveJoint", "ok"))
	if got != 2 {
		t.Fatalf("expected 2 ok commands recorded, got %v", got)
	}
}

func TestSetQueueDepthReflectsLatestValue(t *testing.T) {
	c := New("test_queue")
	c.SetQueueDepth("ingress", 3)
	c.SetQueueDepth("ingress", 7)

	got := testutil.ToFloat64(c.queueDepth.WithLabelValues("ingress"))
	if got != 7 {
		t.Fatalf("expected the gauge to reflect the latest set value, got %v", got)
	}
}

func TestRecordFaultIncrementsBySeverity(t *testing.T) {
	c := New("test_faults")
	c.RecordFault("arm_control", "warn")

	got := testutil.ToFloat64(c.faultsTotal.WithLabelValues("arm_control", "warn"))
	if got != 1 {
		t.Fatalf("expected 1 warn fault recorded, got %v", got)
	}
}

func TestSetBreakerStateReflectsLatestValue(t *testing.T) {
	c := New("test_breaker")
	c.SetBreakerState("arm_sdk", 1)

	got := testutil.ToFloat64(c.breakerState.WithLabelValues("arm_sdk"))
	if got != 1 {
		t.Fatalf("expected breaker state 1 (open), got %v", got)
	}
}
