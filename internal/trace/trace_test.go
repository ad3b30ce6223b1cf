package trace

import "testing"

func TestActiveIsEmptyBeforeAnyObserve(t *testing.T) {
	c := New()
	if got := c.Active(); got != "" {
		t.Fatalf("expected empty active trace, got %q", got)
	}
}

func TestObserveSetsActiveTrace(t *testing.T) {
	c := New()
	c.Observe("trace-1")
	if got := c.Active(); got != "trace-1" {
		t.Fatalf("expected active trace trace-1, got %q", got)
	}
}

func TestObserveEmptyLeavesPreviousTraceInPlace(t *testing.T) {
	c := New()
	c.Observe("trace-1")
	c.Observe("")
	if got := c.Active(); got != "trace-1" {
		t.Fatalf("expected trace-1 to remain active, got %q", got)
	}
}

func TestObserveOverwritesPreviousTrace(t *testing.T) {
	c := New()
	c.Observe("trace-1")
	c.Observe("trace-2")
	if got := c.Active(); got != "trace-2" {
		t.Fatalf("expected trace-2 to be active, got %q", got)
	}
}
