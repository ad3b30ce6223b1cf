//go:build sdk_vendor

package sdk

// This file is the seam where the vendor C SDK would be bridged in via
// cgo. It is excluded from default builds (build tag sdk_vendor) because it
// requires the vendor header and shared library at compile time, neither of
// which are available outside the robot cell. A production build opts in
// with `go build -tags sdk_vendor` once CGO_CFLAGS/CGO_LDFLAGS point at the
// vendor SDK's include and lib directories.
//
// #cgo CFLAGS: -I${SRCDIR}/vendorinclude
// #cgo LDFLAGS: -lrobot_sdk
// #include "robot_sdk.h"
// #include <stdlib.h>
import "C"

import (
	"fmt"
	"unsafe"
)

// VendorHandle implements Handle against the real controller. Every method
// is a thin shim converting to/from the vendor's C structs; no unit
// conversion or validation happens here, since Session already did that.
type VendorHandle struct {
	handle C.robot_handle_t
}

func NewVendorHandle() *VendorHandle {
	return &VendorHandle{}
}

func (v *VendorHandle) Connect(ip string, port int, pass string) error {
	cip := C.CString(ip)
	defer C.free(unsafe.Pointer(cip))
	cpass := C.CString(pass)
	defer C.free(unsafe.Pointer(cpass))
	rc := C.robot_connect(&v.handle, cip, C.int(port), cpass)
	if rc != 0 {
		return fmt.Errorf("robot_connect: rc=%d", int(rc))
	}
	return nil
}

func (v *VendorHandle) Disconnect() error {
	C.robot_disconnect(v.handle)
	return nil
}

func (v *VendorHandle) Connected() bool {
	return C.robot_is_connected(v.handle) != 0
}

func (v *VendorHandle) MoveLinear(joint6Deg, pose6 [6]float64, speedMMs, acc, jerk float64) (int, error) {
	var cj, cp [6]C.double
	for i := 0; i < 6; i++ {
		cj[i] = C.double(joint6Deg[i])
		cp[i] = C.double(pose6[i])
	}
	rc := C.robot_move_linear(v.handle, &cj[0], &cp[0], C.double(speedMMs), C.double(acc), C.double(jerk))
	return int(rc), nil
}

func (v *VendorHandle) MoveJoint(joint6Deg [6]float64, speedDegS float64) (int, error) {
	var cj [6]C.double
	for i := 0; i < 6; i++ {
		cj[i] = C.double(joint6Deg[i])
	}
	rc := C.robot_move_joint(v.handle, &cj[0], C.double(speedDegS))
	return int(rc), nil
}

func (v *VendorHandle) PowerOn() (int, error) {
	return int(C.robot_power_on(v.handle)), nil
}

func (v *VendorHandle) Enable() (int, error) {
	return int(C.robot_enable(v.handle)), nil
}

func (v *VendorHandle) GetMode() (RobotMode, error) {
	return RobotMode(int(C.robot_get_mode(v.handle))), nil
}

func (v *VendorHandle) FaultReset() (int, error) {
	return int(C.robot_fault_reset(v.handle)), nil
}

func (v *VendorHandle) SlowSpeed(enable bool) (int, error) {
	var e C.int
	if enable {
		e = 1
	}
	return int(C.robot_slow_speed(v.handle, e)), nil
}

func (v *VendorHandle) QuickStop(enable bool) (int, error) {
	var e C.int
	if enable {
		e = 1
	}
	return int(C.robot_quick_stop(v.handle, e)), nil
}

func (v *VendorHandle) PathDownload(file string, index, moveType, maxPoints int) (int, error) {
	cfile := C.CString(file)
	defer C.free(unsafe.Pointer(cfile))
	rc := C.robot_path_download(v.handle, cfile, C.int(index), C.int(moveType), C.int(maxPoints))
	return int(rc), nil
}

func (v *VendorHandle) GetJointActualPosDeg() ([6]float64, error) {
	var cj [6]C.double
	C.robot_get_joint_actual_pos(v.handle, &cj[0])
	var out [6]float64
	for i := 0; i < 6; i++ {
		out[i] = float64(cj[i])
	}
	return out, nil
}

func (v *VendorHandle) StartSignal() (bool, error) {
	return C.robot_start_signal(v.handle) != 0, nil
}

func (v *VendorHandle) StopSignal() (bool, error) {
	return C.robot_stop_signal(v.handle) != 0, nil
}

func (v *VendorHandle) TrajectoryComplete() (bool, error) {
	return C.robot_trajectory_complete(v.handle) != 0, nil
}
