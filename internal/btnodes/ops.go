package btnodes

import (
	"github.com/wxzhao/workstation/internal/bus"
	"github.com/wxzhao/workstation/internal/correlation"
	"github.com/wxzhao/workstation/internal/kv"
	"github.com/wxzhao/workstation/internal/trace"
)

// Deps bundles the wiring every concrete node constructor needs: the bus to
// publish commands and alerts on, the correlation cache to poll, and the
// topics/trace/source identity to stamp on outbound envelopes.
type Deps struct {
	Bus          bus.Bus
	Cache        *correlation.Cache
	Trace        *trace.Context
	Source       string
	CommandTopic string
	AlertTopic   string
}

func (d Deps) base(op, alertCode string, timeoutMs int) *CommandAction {
	return &CommandAction{
		Op:           op,
		Bus:          d.Bus,
		CommandTopic: d.CommandTopic,
		AlertTopic:   d.AlertTopic,
		Source:       d.Source,
		Trace:        d.Trace,
		Cache:        d.Cache,
		TimeoutMs:    timeoutMs,
		AlertCode:    alertCode,
	}
}

func valueDecide(want bool) func(correlation.ArmResp) Status {
	return func(r correlation.ArmResp) Status {
		if r.ErrCode != 0 {
			return StatusFailure
		}
		if kv.ParseBool(r.FullKV["value"]) == want {
			return StatusSuccess
		}
		return StatusFailure
	}
}

// NewMoveLinear builds the moveL action node. Input ports: pose and
// jointpos (the moveL handler needs both), speed, acc, jerk,
// allow_large_angle.
func NewMoveLinear(d Deps, timeoutMs int) *CommandAction {
	a := d.base("moveL", "ARM_MOVE_L", timeoutMs)
	a.BuildKV = func(p Ports) map[string]string {
		kvs := map[string]string{}
		if v := p.Get("pose"); v != "" {
			kvs["pose"] = v
		}
		if v := p.Get("jointpos"); v != "" {
			kvs["jointpos"] = v
		}
		for _, k := range []string{"speed", "acc", "jerk", "allow_large_angle"} {
			if v := p.Get(k); v != "" {
				kvs[k] = v
			}
		}
		return kvs
	}
	return a
}

// NewMoveJoint builds the moveJoint action node. Required port: jointpos.
func NewMoveJoint(d Deps, timeoutMs int) *CommandAction {
	a := d.base("moveJoint", "ARM_MOVE_JOINT", timeoutMs)
	a.RequiredPorts = []string{"jointpos"}
	a.BuildKV = func(p Ports) map[string]string {
		kvs := map[string]string{"jointpos": p.Get("jointpos")}
		for _, k := range []string{"speed", "allow_large_angle"} {
			if v := p.Get(k); v != "" {
				kvs[k] = v
			}
		}
		return kvs
	}
	return a
}

// NewPathDownload builds the path_download action node. Required port: file.
func NewPathDownload(d Deps, timeoutMs int) *CommandAction {
	a := d.base("path_download", "ARM_PATH_DOWNLOAD", timeoutMs)
	a.RequiredPorts = []string{"file"}
	a.BuildKV = func(p Ports) map[string]string {
		kvs := map[string]string{"file": p.Get("file")}
		for _, k := range []string{"index", "moveType", "maxPoints"} {
			if v := p.Get(k); v != "" {
				kvs[k] = v
			}
		}
		return kvs
	}
	return a
}

// NewSlowSpeed builds the slowSpeed action node. Required port: enable.
func NewSlowSpeed(d Deps, timeoutMs int) *CommandAction {
	a := d.base("slowSpeed", "ARM_SLOW_SPEED", timeoutMs)
	a.RequiredPorts = []string{"enable"}
	a.BuildKV = func(p Ports) map[string]string {
		return map[string]string{"enable": p.Get("enable")}
	}
	return a
}

// NewQuickStop builds the quickStop action node. Required port: enable.
func NewQuickStop(d Deps, timeoutMs int) *CommandAction {
	a := d.base("quickStop", "ARM_QUICK_STOP", timeoutMs)
	a.RequiredPorts = []string{"enable"}
	a.BuildKV = func(p Ports) map[string]string {
		return map[string]string{"enable": p.Get("enable")}
	}
	return a
}

// NewDemoEcho builds the demo_echo action node, mainly used to exercise a
// tree's wiring end to end without touching the controller.
func NewDemoEcho(d Deps, timeoutMs int) *CommandAction {
	a := d.base("demo_echo", "ARM_DEMO_ECHO", timeoutMs)
	a.RequiredPorts = []string{"msg"}
	a.BuildKV = func(p Ports) map[string]string {
		return map[string]string{"msg": p.Get("msg")}
	}
	return a
}

// NewPowerOnEnable builds the power_on_enable action node driving the
// JointPowerOff->JointIdle->ProgramStop power-up sequence. No input ports.
func NewPowerOnEnable(d Deps, timeoutMs int) *CommandAction {
	return d.base("power_on_enable", "ARM_POWER_ON", timeoutMs)
}

// NewFaultReset builds the fault_reset action node.
func NewFaultReset(d Deps, timeoutMs int) *CommandAction {
	return d.base("fault_reset", "ARM_FAULT_RESET", timeoutMs)
}

// NewEmergencyStop builds the emergency_stop action node.
func NewEmergencyStop(d Deps, timeoutMs int) *CommandAction {
	return d.base("emergency_stop", "ARM_EMERGENCY_STOP", timeoutMs)
}

// NewRobotMode builds the robot_mode getter node: on success, writes the
// mode integer to the modePort output port.
func NewRobotMode(d Deps, timeoutMs int, modePort string) *CommandAction {
	a := d.base("robot_mode", "ARM_ROBOT_MODE", timeoutMs)
	a.OnSuccess = func(r correlation.ArmResp, p Ports) {
		p.Set(modePort, r.FullKV["mode"])
	}
	return a
}

// NewGetJointActualPos builds the get_joint_actual_pos getter node: on
// success, writes the radian and degree sextuples to their output ports.
func NewGetJointActualPos(d Deps, timeoutMs int, radPort, degPort string) *CommandAction {
	a := d.base("get_joint_actual_pos", "ARM_JOINT_POS", timeoutMs)
	a.OnSuccess = func(r correlation.ArmResp, p Ports) {
		if radPort != "" {
			p.Set(radPort, r.FullKV["jointpos"])
		}
		if degPort != "" {
			p.Set(degPort, r.FullKV["jointpos_deg"])
		}
	}
	return a
}

func newBoolQuery(d Deps, op, alertCode string, timeoutMs int, want bool) *CommandAction {
	a := d.base(op, alertCode, timeoutMs)
	a.Decide = valueDecide(want)
	return a
}

// NewIsReady builds the is_ready boolean-query node.
func NewIsReady(d Deps, timeoutMs int) *CommandAction {
	return newBoolQuery(d, "is_ready", "ARM_IS_READY", timeoutMs, true)
}

// NewIsPowerOn builds the is_power_on boolean-query node.
func NewIsPowerOn(d Deps, timeoutMs int) *CommandAction {
	return newBoolQuery(d, "is_power_on", "ARM_IS_POWER_ON", timeoutMs, true)
}

// NewIsStartSignal builds the is_start_signal boolean-query node.
func NewIsStartSignal(d Deps, timeoutMs int) *CommandAction {
	return newBoolQuery(d, "is_start_signal", "ARM_IS_START_SIGNAL", timeoutMs, true)
}

// NewIsStopSignal builds the is_stop_signal boolean-query node.
func NewIsStopSignal(d Deps, timeoutMs int) *CommandAction {
	return newBoolQuery(d, "is_stop_signal", "ARM_IS_STOP_SIGNAL", timeoutMs, true)
}

// NewIsTrajectoryComplete builds the is_trajectory_complete boolean-query
// node.
func NewIsTrajectoryComplete(d Deps, timeoutMs int) *CommandAction {
	return newBoolQuery(d, "is_trajectory_complete", "ARM_TRAJECTORY_COMPLETE", timeoutMs, true)
}

// NewWaitForStart builds the wait_for_start action node. Optional port:
// timeout_ms.
func NewWaitForStart(d Deps, timeoutMs int) *CommandAction {
	a := newBoolQuery(d, "wait_for_start", "ARM_WAIT_FOR_START", timeoutMs, true)
	a.BuildKV = func(p Ports) map[string]string {
		if v := p.Get("timeout_ms"); v != "" {
			return map[string]string{"timeout_ms": v}
		}
		return nil
	}
	return a
}

// NewExecuteTrajectory builds the execute_trajectory action node. Optional
// port: timeout_ms.
func NewExecuteTrajectory(d Deps, timeoutMs int) *CommandAction {
	a := newBoolQuery(d, "execute_trajectory", "ARM_EXECUTE_TRAJECTORY", timeoutMs, true)
	a.BuildKV = func(p Ports) map[string]string {
		if v := p.Get("timeout_ms"); v != "" {
			return map[string]string{"timeout_ms": v}
		}
		return nil
	}
	return a
}
