package sdk

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// MockHandle is the default Handle: an in-process simulation of the
// controller's power-up state machine, used by tests, by offline_selftest,
// and by any deployment without the vendor SDK linked.
type MockHandle struct {
	mu        sync.Mutex
	connected bool
	mode      RobotMode

	joint6Deg        [6]float64
	trajectoryBusy   bool
	startSignal      atomic.Bool
	stopSignal       atomic.Bool
	faultLatched     bool

	// FailConnectTimes, when positive, makes the next N Connect calls fail.
	FailConnectTimes int
}

// NewMockHandle returns a MockHandle starting in JointPowerOff, matching an
// arm that has just been energized but not yet enabled.
func NewMockHandle() *MockHandle {
	return &MockHandle{mode: ModeJointPowerOff}
}

func (h *MockHandle) Connect(ip string, port int, pass string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.FailConnectTimes > 0 {
		h.FailConnectTimes--
		return fmt.Errorf("mock connect refused to %s:%d", ip, port)
	}
	h.connected = true
	return nil
}

func (h *MockHandle) Disconnect() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connected = false
	return nil
}

func (h *MockHandle) Connected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.connected
}

func (h *MockHandle) MoveLinear(joint6Deg, pose6 [6]float64, speedMMs, acc, jerk float64) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.faultLatched {
		return ResultOK, fmt.Errorf("fault latched")
	}
	h.joint6Deg = joint6Deg
	h.trajectoryBusy = false
	return ResultOK, nil
}

func (h *MockHandle) MoveJoint(joint6Deg [6]float64, speedDegS float64) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.faultLatched {
		return ResultOK, fmt.Errorf("fault latched")
	}
	h.joint6Deg = joint6Deg
	h.trajectoryBusy = false
	return ResultOK, nil
}

func (h *MockHandle) PowerOn() (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.mode != ModeJointPowerOff {
		return ResultOK, nil
	}
	h.mode = ModeJointIdle
	return ResultOK, nil
}

func (h *MockHandle) Enable() (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.mode != ModeJointIdle {
		return ResultOK, nil
	}
	h.mode = ModeProgramStop
	return ResultOK, nil
}

func (h *MockHandle) GetMode() (RobotMode, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.mode, nil
}

func (h *MockHandle) FaultReset() (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.faultLatched = false
	return ResultOK, nil
}

func (h *MockHandle) SlowSpeed(enable bool) (int, error) {
	return ResultOK, nil
}

func (h *MockHandle) QuickStop(enable bool) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if enable {
		h.mode = ModeProgramStop
		h.trajectoryBusy = false
	}
	return ResultOK, nil
}

func (h *MockHandle) PathDownload(file string, index, moveType, maxPoints int) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.trajectoryBusy = true
	return ResultOK, nil
}

func (h *MockHandle) GetJointActualPosDeg() ([6]float64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.joint6Deg, nil
}

func (h *MockHandle) StartSignal() (bool, error) {
	return h.startSignal.Load(), nil
}

func (h *MockHandle) StopSignal() (bool, error) {
	return h.stopSignal.Load(), nil
}

func (h *MockHandle) TrajectoryComplete() (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.trajectoryBusy, nil
}

// SetStartSignal lets tests and the offline self-test drive the simulated
// start button.
func (h *MockHandle) SetStartSignal(v bool) { h.startSignal.Store(v) }

// SetStopSignal lets tests and the offline self-test drive the simulated
// stop button.
func (h *MockHandle) SetStopSignal(v bool) { h.stopSignal.Store(v) }

// CompleteTrajectory lets tests mark the in-flight trajectory done without
// waiting out a real motion profile.
func (h *MockHandle) CompleteTrajectory() {
	h.mu.Lock()
	h.trajectoryBusy = false
	h.mu.Unlock()
}
