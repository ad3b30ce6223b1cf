// Package sdk owns the single connection to the vendor robot controller and
// everything that must happen at that boundary: unit conversion between the
// radian/millimeter external API and the degree-based SDK, safety gates on
// motion parameters, and the reconnect-on-transport-error discipline.
//
// Every exported Session method is a single mutex-protected call. In
// arm_control the ingress pipeline, the RPC handlers and the fault-action
// path all run on arm_sdk_strand, which gives ordering; the mutex gives
// mutual exclusion for any caller that does not. power_on_enable polls the
// raw Handle under the lock it already holds; wait_for_start and
// execute_trajectory hold no lock themselves and call the locking Session
// methods in a loop, so a single non-reentrant mutex is sufficient.
package sdk

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/wxzhao/workstation/internal/circuitbreaker"
	"github.com/wxzhao/workstation/internal/logging"
)

// RobotMode mirrors the power-up state machine observed through
// get_robot_mode.
type RobotMode int

const (
	ModeClosed RobotMode = iota
	ModeJointPowerOff
	ModeJointIdle
	ModeProgramStop
	ModeJog
	ModeRunning
)

func (m RobotMode) String() string {
	switch m {
	case ModeClosed:
		return "closed"
	case ModeJointPowerOff:
		return "joint_power_off"
	case ModeJointIdle:
		return "joint_idle"
	case ModeProgramStop:
		return "program_stop"
	case ModeJog:
		return "jog"
	case ModeRunning:
		return "running"
	default:
		return "unknown"
	}
}

// Result codes a Handle call can return. Non-zero, non-transport codes are
// surfaced to the caller verbatim as sdk_code; the two transport-like codes
// additionally force a disconnect.
const (
	ResultOK             = 0
	ResultOperateTimeout = -1
	ResultThreadRunning  = -2
	ResultNotConnected   = -3
)

func isTransportError(code int) bool {
	return code == ResultOperateTimeout || code == ResultThreadRunning
}

// Handle is the raw vendor capability surface, in the SDK's own units
// (degrees, and whatever the vendor calls its position/signal accessors).
// Session is the only caller; everything else goes through Session.
//
// The real implementation lives behind a cgo-bridged adapter built with the
// "sdk_vendor" build tag (not included here: it requires the vendor header
// and .so at build time). MockHandle below is the default and is what the
// test suite and any "offline_selftest" run exercise.
type Handle interface {
	Connect(ip string, port int, pass string) error
	Disconnect() error
	Connected() bool

	MoveLinear(joint6Deg, pose6 [6]float64, speedMMs, acc, jerk float64) (int, error)
	MoveJoint(joint6Deg [6]float64, speedDegS float64) (int, error)
	PowerOn() (int, error)
	Enable() (int, error)
	GetMode() (RobotMode, error)
	FaultReset() (int, error)
	SlowSpeed(enable bool) (int, error)
	QuickStop(enable bool) (int, error)
	PathDownload(file string, index, moveType, maxPoints int) (int, error)
	GetJointActualPosDeg() ([6]float64, error)
	StartSignal() (bool, error)
	StopSignal() (bool, error)
	TrajectoryComplete() (bool, error)
}

// Config is the connection triple used by ensure_connected.
type Config struct {
	IP   string
	Port int
	Pass string
}

// Session serializes every call against handle and applies the unit
// conversion and safety-gate boundary described in the package doc.
type Session struct {
	mu      sync.Mutex
	cfg     Config
	handle  Handle
	breaker *circuitbreaker.Breaker

	connectAttempted bool
}

// NewSession wraps handle with the connection config it should use for
// ensure_connected. The breaker fails fast with SdkUnavailable once repeated
// connects fail in a row, instead of hammering a dead controller on every
// dispatched command.
func NewSession(cfg Config, handle Handle) *Session {
	return &Session{
		cfg:    cfg,
		handle: handle,
		breaker: circuitbreaker.New(circuitbreaker.Config{
			ErrorPct:       50,
			WindowDuration: 30 * time.Second,
			OpenDuration:   5 * time.Second,
			HalfOpenProbes: 1,
		}),
	}
}

// Stop disconnects the underlying handle. Safe to call once at shutdown.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle.Connected() {
		_ = s.handle.Disconnect()
	}
}

// BreakerState reports the connection breaker's current state as
// circuitbreaker.State's underlying int (0=closed, 1=open, 2=half_open),
// matching metrics.Collectors.SetBreakerState's expected encoding.
func (s *Session) BreakerState() int {
	return int(s.breaker.State())
}

// ensureConnected is called at the entry of every Session method, under the
// lock. If the first connect attempt fails, it disconnects (clears any
// partial state) and retries once; a second failure is returned to the
// caller as-is.
func (s *Session) ensureConnected() error {
	if s.handle.Connected() {
		return nil
	}
	if !s.breaker.Allow() {
		return fmt.Errorf("sdk unavailable: breaker open")
	}
	err := s.handle.Connect(s.cfg.IP, s.cfg.Port, s.cfg.Pass)
	if err == nil {
		s.breaker.RecordSuccess()
		return nil
	}
	logging.Op().Warn("sdk connect failed, retrying once", "error", err)
	_ = s.handle.Disconnect()
	err = s.handle.Connect(s.cfg.IP, s.cfg.Port, s.cfg.Pass)
	if err != nil {
		s.breaker.RecordFailure()
		return err
	}
	s.breaker.RecordSuccess()
	return nil
}

// afterCall applies the disconnect-on-transport-error rule that every
// Session method shares.
func (s *Session) afterCall(code int, err error) {
	if err != nil || isTransportError(code) {
		_ = s.handle.Disconnect()
	}
}

func finite6(v [6]float64) bool {
	for _, f := range v {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

func anyAbsOver(v [6]float64, limit float64) bool {
	for _, f := range v {
		if math.Abs(f) > limit {
			return true
		}
	}
	return false
}

// SafetyError is returned by Session methods when a parameter is rejected
// before ever reaching the handle. Handlers map this to InvalidArgs with
// the Field as the error-token suffix.
type SafetyError struct {
	Field string
}

func (e *SafetyError) Error() string { return "invalid_" + e.Field }

// MoveLinearParams bundles the caller's six-vectors and motion parameters,
// all in external units: joint6/pose6 angles in radians, pose6 translation
// in millimeters, speed in mm/s.
type MoveLinearParams struct {
	Joint6       [6]float64
	Pose6        [6]float64
	SpeedMMs     float64
	Acc          float64
	Jerk         float64
	AllowLargeAngle bool
}

// MoveLinear validates and dispatches a linear motion command.
func (s *Session) MoveLinear(ctx context.Context, p MoveLinearParams) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !finite6(p.Joint6) || !finite6(p.Pose6) {
		return 0, &SafetyError{Field: "pose_or_jointpos"}
	}
	if p.SpeedMMs <= 0 || p.SpeedMMs > 3000 {
		return 0, &SafetyError{Field: "speed"}
	}
	if p.Acc < 0 || p.Acc > 20000 {
		return 0, &SafetyError{Field: "acc"}
	}
	if p.Jerk < 0 || p.Jerk > 20000 {
		return 0, &SafetyError{Field: "jerk"}
	}
	if !p.AllowLargeAngle && (anyAbsOver(p.Joint6, 10) || anyAbsOver(anglesOf(p.Pose6), 10)) {
		return 0, &SafetyError{Field: "pose_or_jointpos"}
	}

	if err := s.ensureConnected(); err != nil {
		return 0, err
	}

	joint6Deg := radToDeg6(p.Joint6)
	poseOut := p.Pose6
	rpy := degFromRad3([3]float64{p.Pose6[3], p.Pose6[4], p.Pose6[5]})
	poseOut[3], poseOut[4], poseOut[5] = rpy[0], rpy[1], rpy[2]

	code, err := s.handle.MoveLinear(joint6Deg, poseOut, p.SpeedMMs, p.Acc, 0 /* jerk forced to zero on the wire */)
	s.afterCall(code, err)
	return code, err
}

// anglesOf extracts the rotational components (rx,ry,rz) of a pose6 for the
// large-angle safety check; xyz translation is exempt since it's already in
// millimeters, not radians.
func anglesOf(pose6 [6]float64) [6]float64 {
	var out [6]float64
	out[0], out[1], out[2] = pose6[3], pose6[4], pose6[5]
	return out
}

// MoveJoint validates and dispatches a joint-space motion command.
func (s *Session) MoveJoint(ctx context.Context, joint6 [6]float64, speedRadS float64, allowLargeAngle bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !finite6(joint6) {
		return 0, &SafetyError{Field: "jointpos"}
	}
	if speedRadS <= 0 || speedRadS > 6 {
		return 0, &SafetyError{Field: "speed"}
	}
	if !allowLargeAngle && anyAbsOver(joint6, 10) {
		return 0, &SafetyError{Field: "jointpos"}
	}

	if err := s.ensureConnected(); err != nil {
		return 0, err
	}

	code, err := s.handle.MoveJoint(radToDeg6(joint6), radToDeg(speedRadS))
	s.afterCall(code, err)
	return code, err
}

// PowerOnEnable is a no-op returning ResultOK unless the observed mode is
// JointPowerOff: query mode → poweron → poll up to 40×50ms for JointIdle →
// enable → poll up to 40×200ms for ProgramStop.
func (s *Session) PowerOnEnable(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureConnected(); err != nil {
		return 0, err
	}

	mode, err := s.handle.GetMode()
	if err != nil {
		return 0, err
	}
	if mode != ModeJointPowerOff {
		return ResultOK, nil
	}

	code, err := s.handle.PowerOn()
	if err != nil || code != ResultOK {
		s.afterCall(code, err)
		return code, err
	}

	if !s.pollMode(ctx, ModeJointIdle, 40, 50*time.Millisecond) {
		return 0, fmt.Errorf("timed out waiting for joint_idle")
	}

	code, err = s.handle.Enable()
	if err != nil || code != ResultOK {
		s.afterCall(code, err)
		return code, err
	}

	if !s.pollMode(ctx, ModeProgramStop, 40, 200*time.Millisecond) {
		return 0, fmt.Errorf("timed out waiting for program_stop")
	}
	return ResultOK, nil
}

// pollMode polls GetMode up to attempts times, sleeping interval between
// tries, until it observes want. Must be called under s.mu.
func (s *Session) pollMode(ctx context.Context, want RobotMode, attempts int, interval time.Duration) bool {
	for i := 0; i < attempts; i++ {
		mode, err := s.handle.GetMode()
		if err == nil && mode == want {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(interval):
		}
	}
	return false
}

// GetRobotMode returns the raw observed mode.
func (s *Session) GetRobotMode(ctx context.Context) (RobotMode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureConnected(); err != nil {
		return 0, err
	}
	mode, err := s.handle.GetMode()
	if err != nil {
		_ = s.handle.Disconnect()
	}
	return mode, err
}

// FaultReset clears a latched fault.
func (s *Session) FaultReset(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureConnected(); err != nil {
		return 0, err
	}
	code, err := s.handle.FaultReset()
	s.afterCall(code, err)
	return code, err
}

// SlowSpeed toggles reduced-speed mode.
func (s *Session) SlowSpeed(ctx context.Context, enable bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureConnected(); err != nil {
		return 0, err
	}
	code, err := s.handle.SlowSpeed(enable)
	s.afterCall(code, err)
	return code, err
}

// QuickStop toggles the quick-stop line.
func (s *Session) QuickStop(ctx context.Context, enable bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureConnected(); err != nil {
		return 0, err
	}
	code, err := s.handle.QuickStop(enable)
	s.afterCall(code, err)
	return code, err
}

// maxPathPoints bounds PathDownload's maxPoints to a sane ceiling, per the
// open question in spec.md §9: the buffer it sizes is local and freed
// before return, but an unbounded caller-supplied size is still a resource
// exhaustion vector worth capping at the boundary.
const maxPathPoints = 1 << 20

// PathDownload downloads a trajectory file into the controller.
func (s *Session) PathDownload(ctx context.Context, file string, index, moveType, maxPoints int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if maxPoints <= 0 || maxPoints > maxPathPoints {
		return 0, &SafetyError{Field: "maxPoints"}
	}
	if err := s.ensureConnected(); err != nil {
		return 0, err
	}
	code, err := s.handle.PathDownload(file, index, moveType, maxPoints)
	s.afterCall(code, err)
	return code, err
}

// GetJointActualPosDeg returns the current joint position in radians (the
// external unit) along with the raw degree reading, used for the
// jointpos_deg debug field attached by the handler layer.
func (s *Session) GetJointActualPosDeg(ctx context.Context) (radians, degrees [6]float64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err = s.ensureConnected(); err != nil {
		return
	}
	degrees, err = s.handle.GetJointActualPosDeg()
	if err != nil {
		_ = s.handle.Disconnect()
		return
	}
	radians = degToRad6(degrees)
	return
}

// IsPowerOn reports whether the observed mode is past JointPowerOff.
func (s *Session) IsPowerOn(ctx context.Context) (bool, error) {
	mode, err := s.GetRobotMode(ctx)
	if err != nil {
		return false, err
	}
	return mode != ModeClosed && mode != ModeJointPowerOff, nil
}

// IsReady reports whether the arm is in ProgramStop, Jog or Running, i.e.
// past the power-up sequence and ready to accept motion.
func (s *Session) IsReady(ctx context.Context) (bool, error) {
	mode, err := s.GetRobotMode(ctx)
	if err != nil {
		return false, err
	}
	return mode == ModeProgramStop || mode == ModeJog || mode == ModeRunning, nil
}

// IsStartSignal reads the controller's start-button line.
func (s *Session) IsStartSignal(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureConnected(); err != nil {
		return false, err
	}
	v, err := s.handle.StartSignal()
	if err != nil {
		_ = s.handle.Disconnect()
	}
	return v, err
}

// IsStopSignal reads the controller's stop-button line.
func (s *Session) IsStopSignal(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureConnected(); err != nil {
		return false, err
	}
	v, err := s.handle.StopSignal()
	if err != nil {
		_ = s.handle.Disconnect()
	}
	return v, err
}

// IsTrajectoryComplete reports whether the last downloaded trajectory has
// finished executing.
func (s *Session) IsTrajectoryComplete(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureConnected(); err != nil {
		return false, err
	}
	v, err := s.handle.TrajectoryComplete()
	if err != nil {
		_ = s.handle.Disconnect()
	}
	return v, err
}

// WaitForStart polls IsStartSignal until true or timeout. On expiry it
// issues an SDK-level quick-stop before returning false, per spec.md §5.
func (s *Session) WaitForStart(ctx context.Context, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		ok, err := s.IsStartSignal(ctx)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(20 * time.Millisecond):
		}
	}
	_, _ = s.QuickStop(ctx, true)
	return false, nil
}

// ExecuteTrajectory polls IsTrajectoryComplete until true or timeout. On
// expiry it issues an SDK-level quick-stop before returning false.
func (s *Session) ExecuteTrajectory(ctx context.Context, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		ok, err := s.IsTrajectoryComplete(ctx)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(20 * time.Millisecond):
		}
	}
	_, _ = s.QuickStop(ctx, true)
	return false, nil
}

// EmergencyStop is an alias for an immediate quick-stop engage.
func (s *Session) EmergencyStop(ctx context.Context) (int, error) {
	return s.QuickStop(ctx, true)
}

func radToDeg(r float64) float64    { return r * 180 / math.Pi }
func degToRad(d float64) float64    { return d * math.Pi / 180 }
func radToDeg6(v [6]float64) [6]float64 {
	var out [6]float64
	for i, f := range v {
		out[i] = radToDeg(f)
	}
	return out
}
func degToRad6(v [6]float64) [6]float64 {
	var out [6]float64
	for i, f := range v {
		out[i] = degToRad(f)
	}
	return out
}
func degFromRad3(v [3]float64) [3]float64 {
	return [3]float64{radToDeg(v[0]), radToDeg(v[1]), radToDeg(v[2])}
}
