package sdk

import (
	"context"
	"math"
	"testing"
	"time"
)

func newTestSession() *Session {
	return NewSession(Config{IP: "127.0.0.1", Port: 8080, Pass: "pw"}, NewMockHandle())
}

func TestPowerOnEnableBringsArmToProgramStop(t *testing.T) {
	s := newTestSession()
	code, err := s.PowerOnEnable(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if code != ResultOK {
		t.Fatalf("expected ResultOK, got %d", code)
	}

	mode, err := s.GetRobotMode(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mode != ModeProgramStop {
		t.Fatalf("expected program_stop, got %v", mode)
	}
}

func TestMoveJointRejectsNonFiniteAngles(t *testing.T) {
	s := newTestSession()
	_, err := s.MoveJoint(context.Background(), [6]float64{0, 0, 0, 0, 0, math.NaN()}, 1.0, false)
	if err == nil {
		t.Fatal("expected SafetyError for a NaN joint angle")
	}
}

func TestMoveJointRejectsOutOfRangeSpeed(t *testing.T) {
	s := newTestSession()
	joint6 := [6]float64{0, 0, 0, 0, 0, 0}

	if _, err := s.MoveJoint(context.Background(), joint6, 0, false); err == nil {
		t.Fatal("expected SafetyError for zero speed")
	}
	if _, err := s.MoveJoint(context.Background(), joint6, 100, false); err == nil {
		t.Fatal("expected SafetyError for speed above limit")
	}
}

func TestMoveJointRejectsLargeAngleUnlessAllowed(t *testing.T) {
	s := newTestSession()
	large := [6]float64{20, 0, 0, 0, 0, 0}

	if _, err := s.MoveJoint(context.Background(), large, 1.0, false); err == nil {
		t.Fatal("expected SafetyError for large angle without override")
	}
	if _, err := s.MoveJoint(context.Background(), large, 1.0, true); err != nil {
		t.Fatalf("expected large-angle override to pass, got %v", err)
	}
}

func TestMoveJointRadDegRoundTrip(t *testing.T) {
	s := newTestSession()
	sent := [6]float64{0.1, -0.2, 0.3, -0.4, 0.5, -0.6}

	if _, err := s.MoveJoint(context.Background(), sent, 1.0, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _, err := s.GetJointActualPosDeg(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range sent {
		if diff := sent[i] - got[i]; diff > 1e-9 || diff < -1e-9 {
			t.Fatalf("joint %d: sent %v, read back %v", i, sent[i], got[i])
		}
	}
}

func TestWaitForStartTimesOutAndQuickStops(t *testing.T) {
	s := newTestSession()
	ok, err := s.WaitForStart(context.Background(), 30*time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected false, no start signal was ever set")
	}

	mode, err := s.GetRobotMode(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mode != ModeProgramStop {
		t.Fatalf("expected quick-stop to leave mode at program_stop, got %v", mode)
	}
}

func TestWaitForStartReturnsTrueWhenSignaled(t *testing.T) {
	s := newTestSession()
	handle := s.handle.(*MockHandle)
	handle.SetStartSignal(true)

	ok, err := s.WaitForStart(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected true when start signal is set")
	}
}

func TestIsPowerOnReflectsMode(t *testing.T) {
	s := newTestSession()
	on, err := s.IsPowerOn(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if on {
		t.Fatal("expected false while in joint_power_off")
	}

	if _, err := s.PowerOnEnable(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	on, err = s.IsPowerOn(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !on {
		t.Fatal("expected true after power_on_enable")
	}
}
