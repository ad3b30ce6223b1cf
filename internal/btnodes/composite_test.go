package btnodes

import (
	"context"
	"testing"
)

// scriptedNode returns each status in sequence, repeating the last one once
// the script is exhausted.
type scriptedNode struct {
	script []Status
	calls  int
}

func (n *scriptedNode) Tick(ctx context.Context) Status {
	i := n.calls
	if i >= len(n.script) {
		i = len(n.script) - 1
	}
	n.calls++
	return n.script[i]
}

func TestSequenceSucceedsWhenAllChildrenSucceed(t *testing.T) {
	s := NewSequence(
		&scriptedNode{script: []Status{StatusSuccess}},
		&scriptedNode{script: []Status{StatusSuccess}},
	)
	if got := s.Tick(context.Background()); got != StatusSuccess {
		t.Fatalf("expected SUCCESS, got %v", got)
	}
}

func TestSequenceFailsOnFirstFailingChild(t *testing.T) {
	second := &scriptedNode{script: []Status{StatusSuccess}}
	s := NewSequence(
		&scriptedNode{script: []Status{StatusFailure}},
		second,
	)
	if got := s.Tick(context.Background()); got != StatusFailure {
		t.Fatalf("expected FAILURE, got %v", got)
	}
	if second.calls != 0 {
		t.Fatal("expected second child never ticked after first fails")
	}
}

func TestSequenceResumesRunningChildAtSameIndex(t *testing.T) {
	first := &scriptedNode{script: []Status{StatusRunning, StatusSuccess}}
	second := &scriptedNode{script: []Status{StatusSuccess}}
	s := NewSequence(first, second)

	if got := s.Tick(context.Background()); got != StatusRunning {
		t.Fatalf("expected RUNNING on first tick, got %v", got)
	}
	if second.calls != 0 {
		t.Fatal("expected second child not ticked while first is running")
	}
	if got := s.Tick(context.Background()); got != StatusSuccess {
		t.Fatalf("expected SUCCESS on second tick, got %v", got)
	}
}

func TestFallbackSucceedsOnFirstSucceedingChild(t *testing.T) {
	second := &scriptedNode{script: []Status{StatusSuccess}}
	f := NewFallback(
		&scriptedNode{script: []Status{StatusFailure}},
		second,
	)
	if got := f.Tick(context.Background()); got != StatusSuccess {
		t.Fatalf("expected SUCCESS, got %v", got)
	}
	if second.calls != 1 {
		t.Fatal("expected second child to have been tried")
	}
}

func TestFallbackFailsWhenAllChildrenFail(t *testing.T) {
	f := NewFallback(
		&scriptedNode{script: []Status{StatusFailure}},
		&scriptedNode{script: []Status{StatusFailure}},
	)
	if got := f.Tick(context.Background()); got != StatusFailure {
		t.Fatalf("expected FAILURE, got %v", got)
	}
}

func TestParallelSucceedsAtThreshold(t *testing.T) {
	p := NewParallel(2,
		&scriptedNode{script: []Status{StatusSuccess}},
		&scriptedNode{script: []Status{StatusSuccess}},
		&scriptedNode{script: []Status{StatusFailure}},
	)
	if got := p.Tick(context.Background()); got != StatusSuccess {
		t.Fatalf("expected SUCCESS at threshold, got %v", got)
	}
}

func TestParallelFailsWhenThresholdUnreachable(t *testing.T) {
	p := NewParallel(2,
		&scriptedNode{script: []Status{StatusSuccess}},
		&scriptedNode{script: []Status{StatusFailure}},
		&scriptedNode{script: []Status{StatusFailure}},
	)
	if got := p.Tick(context.Background()); got != StatusFailure {
		t.Fatalf("expected FAILURE, threshold unreachable, got %v", got)
	}
}

func TestParallelRunningWhileUndecided(t *testing.T) {
	p := NewParallel(2,
		&scriptedNode{script: []Status{StatusSuccess}},
		&scriptedNode{script: []Status{StatusRunning}},
		&scriptedNode{script: []Status{StatusRunning}},
	)
	if got := p.Tick(context.Background()); got != StatusRunning {
		t.Fatalf("expected RUNNING, threshold still reachable, got %v", got)
	}
}

func TestInverterFlipsSuccessAndFailure(t *testing.T) {
	if got := NewInverter(&scriptedNode{script: []Status{StatusSuccess}}).Tick(context.Background()); got != StatusFailure {
		t.Fatalf("expected FAILURE, got %v", got)
	}
	if got := NewInverter(&scriptedNode{script: []Status{StatusFailure}}).Tick(context.Background()); got != StatusSuccess {
		t.Fatalf("expected SUCCESS, got %v", got)
	}
	if got := NewInverter(&scriptedNode{script: []Status{StatusRunning}}).Tick(context.Background()); got != StatusRunning {
		t.Fatalf("expected RUNNING passed through, got %v", got)
	}
}

func TestForceSuccessAlwaysSucceedsOnSettle(t *testing.T) {
	if got := NewForceSuccess(&scriptedNode{script: []Status{StatusFailure}}).Tick(context.Background()); got != StatusSuccess {
		t.Fatalf("expected SUCCESS even on child failure, got %v", got)
	}
	if got := NewForceSuccess(&scriptedNode{script: []Status{StatusRunning}}).Tick(context.Background()); got != StatusRunning {
		t.Fatalf("expected RUNNING passed through, got %v", got)
	}
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	child := &scriptedNode{script: []Status{StatusFailure, StatusFailure, StatusFailure}}
	r := NewRetry(3, child)

	for i := 0; i < 2; i++ {
		if got := r.Tick(context.Background()); got != StatusRunning {
			t.Fatalf("attempt %d: expected RUNNING before max attempts, got %v", i, got)
		}
	}
	if got := r.Tick(context.Background()); got != StatusFailure {
		t.Fatalf("expected FAILURE after max attempts, got %v", got)
	}
}

func TestRetryResetsAttemptsOnSuccess(t *testing.T) {
	child := &scriptedNode{script: []Status{StatusFailure, StatusSuccess}}
	r := NewRetry(5, child)

	r.Tick(context.Background()) // failure, attempts=1
	if got := r.Tick(context.Background()); got != StatusSuccess {
		t.Fatalf("expected SUCCESS, got %v", got)
	}
	if r.attempts != 0 {
		t.Fatalf("expected attempts reset to 0 after success, got %d", r.attempts)
	}
}
