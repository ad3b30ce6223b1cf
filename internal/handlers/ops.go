package handlers

import (
	"context"
	"time"

	"github.com/wxzhao/workstation/internal/kv"
	"github.com/wxzhao/workstation/internal/sdk"
	"github.com/wxzhao/workstation/internal/wire"
)

// Builtins binds the handler catalog in spec.md §4.2 to a concrete SDK
// session. RegisterAll is called once at startup, from the composition
// root, before any command is dispatched.
type Builtins struct {
	Sess *sdk.Session
}

const defaultMoveJointSpeedRadS = 3.14
const defaultWaitTimeoutMs = 30000

// RegisterAll registers every built-in op (and its aliases) on r.
func (b *Builtins) RegisterAll(r *Registry) {
	r.Register("moveL", []string{"pose", "jointpos"}, b.moveLinear)
	r.Alias("moveLine", "moveL")

	r.Register("moveJoint", []string{"jointpos"}, b.moveJoint)
	r.Alias("moveJ", "moveJoint")

	r.Register("path_download", []string{"file"}, b.pathDownload)

	r.Register("slowSpeed", []string{"enable"}, b.slowSpeed)
	r.Alias("slow_speed", "slowSpeed")

	r.Register("quickStop", []string{"enable"}, b.quickStop)
	r.Alias("quick_stop", "quickStop")

	r.Register("demo_echo", []string{"msg"}, b.demoEcho)

	r.Register("power_on_enable", nil, b.powerOnEnable)
	r.Alias("powerOnEnable", "power_on_enable")

	r.Register("fault_reset", nil, b.faultReset)
	r.Alias("reset_system", "fault_reset")

	r.Register("robot_mode", nil, b.robotMode)
	r.Register("get_joint_actual_pos", nil, b.getJointActualPos)

	r.Register("is_ready", nil, b.boolQuery(func(ctx context.Context) (bool, error) { return b.Sess.IsReady(ctx) }))
	r.Register("is_power_on", nil, b.boolQuery(func(ctx context.Context) (bool, error) { return b.Sess.IsPowerOn(ctx) }))
	r.Register("is_start_signal", nil, b.boolQuery(func(ctx context.Context) (bool, error) { return b.Sess.IsStartSignal(ctx) }))
	r.Register("is_stop_signal", nil, b.boolQuery(func(ctx context.Context) (bool, error) { return b.Sess.IsStopSignal(ctx) }))
	r.Register("is_trajectory_complete", nil, b.boolQuery(func(ctx context.Context) (bool, error) { return b.Sess.IsTrajectoryComplete(ctx) }))

	r.Register("wait_for_start", nil, b.waitForStart)
	r.Register("execute_trajectory", nil, b.executeTrajectory)
	r.Register("emergency_stop", nil, b.emergencyStop)
}

func respFor(cmd wire.Command) *wire.Response { return wire.NewResponse(cmd.Op, cmd.ID) }

// safetyOrParse maps an error returned from a Session method to the right
// failure response: a *sdk.SafetyError becomes InvalidArgs/invalid_<field>,
// anything else (connect failure, transport error) becomes
// SdkUnavailable/sdk_unavailable.
func safetyOrParse(resp *wire.Response, err error) *wire.Response {
	if se, ok := err.(*sdk.SafetyError); ok {
		return resp.Fail(wire.InvalidArgs, "invalid_"+se.Field)
	}
	return resp.Fail(wire.SdkUnavailable, "sdk_unavailable")
}

func (b *Builtins) moveLinear(ctx context.Context, cmd wire.Command) *wire.Response {
	resp := respFor(cmd)

	pose, ok := kv.ParseCSV6(cmd.Get("pose"))
	if !ok {
		return resp.Fail(wire.ParseError, kv.BadFieldToken("pose_or_jointpos"))
	}
	joint6, ok := kv.ParseCSV6(cmd.Get("jointpos"))
	if !ok {
		return resp.Fail(wire.ParseError, kv.BadFieldToken("pose_or_jointpos"))
	}

	speed := 3000.0
	if v := cmd.Get("speed"); v != "" {
		f, ok := kv.ParseFloat(v)
		if !ok {
			return resp.Fail(wire.ParseError, kv.BadFieldToken("speed"))
		}
		speed = f
	}
	acc := 0.0
	if v := cmd.Get("acc"); v != "" {
		f, ok := kv.ParseFloat(v)
		if !ok {
			return resp.Fail(wire.ParseError, kv.BadFieldToken("acc"))
		}
		acc = f
	}
	jerk := 0.0
	if v := cmd.Get("jerk"); v != "" {
		f, ok := kv.ParseFloat(v)
		if !ok {
			return resp.Fail(wire.ParseError, kv.BadFieldToken("jerk"))
		}
		jerk = f
	}

	code, err := b.Sess.MoveLinear(ctx, sdk.MoveLinearParams{
		Joint6:          joint6,
		Pose6:           pose,
		SpeedMMs:        speed,
		Acc:             acc,
		Jerk:            jerk,
		AllowLargeAngle: kv.ParseBool(cmd.Get("allow_large_angle")),
	})
	if err != nil {
		return safetyOrParse(resp, err)
	}
	return resp.SetSdkResult(code)
}

func (b *Builtins) moveJoint(ctx context.Context, cmd wire.Command) *wire.Response {
	resp := respFor(cmd)

	joint6, ok := kv.ParseCSV6(cmd.Get("jointpos"))
	if !ok {
		return resp.Fail(wire.ParseError, kv.BadFieldToken("jointpos"))
	}

	speed := defaultMoveJointSpeedRadS
	if v := cmd.Get("speed"); v != "" {
		f, ok := kv.ParseFloat(v)
		if !ok {
			return resp.Fail(wire.ParseError, kv.BadFieldToken("speed"))
		}
		speed = f
	}

	code, err := b.Sess.MoveJoint(ctx, joint6, speed, kv.ParseBool(cmd.Get("allow_large_angle")))
	if err != nil {
		return safetyOrParse(resp, err)
	}
	return resp.SetSdkResult(code)
}

func (b *Builtins) pathDownload(ctx context.Context, cmd wire.Command) *wire.Response {
	resp := respFor(cmd)

	index := parseIntOr(cmd.Get("index"), 0)
	moveType := parseIntOr(cmd.Get("moveType"), 0)
	maxPoints := parseIntOr(cmd.Get("maxPoints"), 4096)

	code, err := b.Sess.PathDownload(ctx, cmd.Get("file"), index, moveType, maxPoints)
	if err != nil {
		return safetyOrParse(resp, err)
	}
	return resp.SetSdkResult(code)
}

func (b *Builtins) slowSpeed(ctx context.Context, cmd wire.Command) *wire.Response {
	resp := respFor(cmd)
	code, err := b.Sess.SlowSpeed(ctx, kv.ParseBool(cmd.Get("enable")))
	if err != nil {
		return safetyOrParse(resp, err)
	}
	return resp.SetSdkResult(code)
}

func (b *Builtins) quickStop(ctx context.Context, cmd wire.Command) *wire.Response {
	resp := respFor(cmd)
	code, err := b.Sess.QuickStop(ctx, kv.ParseBool(cmd.Get("enable")))
	if err != nil {
		return safetyOrParse(resp, err)
	}
	return resp.SetSdkResult(code)
}

func (b *Builtins) demoEcho(ctx context.Context, cmd wire.Command) *wire.Response {
	return respFor(cmd).Set("echo", cmd.Get("msg"))
}

func (b *Builtins) powerOnEnable(ctx context.Context, cmd wire.Command) *wire.Response {
	resp := respFor(cmd)
	code, err := b.Sess.PowerOnEnable(ctx)
	if err != nil {
		return resp.Fail(wire.SdkUnavailable, "sdk_unavailable")
	}
	return resp.SetSdkResult(code)
}

func (b *Builtins) faultReset(ctx context.Context, cmd wire.Command) *wire.Response {
	resp := respFor(cmd)
	code, err := b.Sess.FaultReset(ctx)
	if err != nil {
		return safetyOrParse(resp, err)
	}
	return resp.SetSdkResult(code)
}

func (b *Builtins) robotMode(ctx context.Context, cmd wire.Command) *wire.Response {
	resp := respFor(cmd)
	mode, err := b.Sess.GetRobotMode(ctx)
	if err != nil {
		return resp.Fail(wire.SdkUnavailable, "sdk_unavailable")
	}
	return resp.Set("mode", kv.FormatInt(int(mode)))
}

func (b *Builtins) getJointActualPos(ctx context.Context, cmd wire.Command) *wire.Response {
	resp := respFor(cmd)
	rad, deg, err := b.Sess.GetJointActualPosDeg(ctx)
	if err != nil {
		return resp.Fail(wire.SdkUnavailable, "sdk_unavailable")
	}
	resp.Set("jointpos", kv.FormatCSV6Fixed(rad))
	resp.Set("jointpos_deg", kv.FormatCSV6Fixed(deg))
	return resp
}

// boolQuery adapts a (ctx) -> (bool, error) SDK query into a handler that
// returns value=0|1 on success, matching the "is_*" op family in spec.md
// §4.2.
func (b *Builtins) boolQuery(query func(ctx context.Context) (bool, error)) Handler {
	return func(ctx context.Context, cmd wire.Command) *wire.Response {
		resp := respFor(cmd)
		v, err := query(ctx)
		if err != nil {
			return resp.Fail(wire.SdkUnavailable, "sdk_unavailable")
		}
		return resp.Set("value", kv.FormatBool(v))
	}
}

func (b *Builtins) waitForStart(ctx context.Context, cmd wire.Command) *wire.Response {
	resp := respFor(cmd)
	timeout := time.Duration(parseIntOr(cmd.Get("timeout_ms"), defaultWaitTimeoutMs)) * time.Millisecond
	ok, err := b.Sess.WaitForStart(ctx, timeout)
	if err != nil {
		return resp.Fail(wire.SdkUnavailable, "sdk_unavailable")
	}
	return resp.Set("value", kv.FormatBool(ok))
}

func (b *Builtins) executeTrajectory(ctx context.Context, cmd wire.Command) *wire.Response {
	resp := respFor(cmd)
	timeout := time.Duration(parseIntOr(cmd.Get("timeout_ms"), defaultWaitTimeoutMs)) * time.Millisecond
	ok, err := b.Sess.ExecuteTrajectory(ctx, timeout)
	if err != nil {
		return resp.Fail(wire.SdkUnavailable, "sdk_unavailable")
	}
	return resp.Set("value", kv.FormatBool(ok))
}

func (b *Builtins) emergencyStop(ctx context.Context, cmd wire.Command) *wire.Response {
	resp := respFor(cmd)
	code, err := b.Sess.EmergencyStop(ctx)
	if err != nil {
		return safetyOrParse(resp, err)
	}
	return resp.SetSdkResult(code)
}

func parseIntOr(s string, def int) int {
	if s == "" {
		return def
	}
	f, ok := kv.ParseFloat(s)
	if !ok {
		return def
	}
	return int(f)
}
