// Package topics holds the shared wire types and the fixed (channel, topic)
// addresses that couple the onboard control modules together through
// package broker. Nothing in this package blocks or allocates goroutines —
// it is pure data, the vocabulary every module binds against.
package topics

import (
	"github.com/triton-robotics/onboard/broker"
	"github.com/triton-robotics/onboard/pid"
)

// Address is broker.Address, re-exported so callers that only need wire
// addresses don't have to spell out the broker import themselves.
type Address = broker.Address

// Fixed (channel, topic) addresses. These are the only addresses the core
// binds against; external collaborators (UDP/TCP receivers, the firmware
// codec, the ball-capture state machine) are modeled solely as the
// producer or consumer implied by each row.
var (
	PIDConstants      = Address{Channel: "PID", Topic: "Constants"}
	MotionCMD         = Address{Channel: "CMD Server", Topic: "MotionCMD"}
	EnableDribbler    = Address{Channel: "CMD Server", Topic: "EnableDribbler"}
	KickingSetPoint   = Address{Channel: "Kicker", Topic: "KickingSetPoint"}
	SafetyEnable      = Address{Channel: "AI Connection", Topic: "SafetyEnable"}
	MotionPrediction  = Address{Channel: "virtual-motion ekf", Topic: "motion prediction"}
	FirmwareCommands  = Address{Channel: "firmware", Topic: "commands"}
	FirmwareTelemetry = Address{Channel: "vfirm-client", Topic: "data"}

	// TransSetpoint and RotatSetpoint carry the per-axis setpoints the
	// control subsystem's inner step reads each tick, already resolved
	// from the raw MotionCMD. The Motion Module (translator in package
	// motion) is the producer.
	TransSetpoint = Address{Channel: "Motion Module", Topic: "TransSetpoint"}
	RotatSetpoint = Address{Channel: "Motion Module", Topic: "RotatSetpoint"}
)

// SetpointKind tags whether a Setpoint targets a displacement or a velocity.
type SetpointKind int

const (
	Displacement SetpointKind = iota
	Velocity
)

func (k SetpointKind) String() string {
	if k == Velocity {
		return "velocity"
	}
	return "displacement"
}

// Setpoint is the tagged pair the control subsystem dispatches on. T is
// pid.Scalar for the rotational axis, pid.Vec2 for the translational axis.
type Setpoint[T pid.Value[T]] struct {
	Kind  SetpointKind
	Value T
}

// GainSet5 is the wire payload on PID/Constants: the tunable gain triplet
// for each of the cascade's five PID instances, including the reserved
// Direction slot that is never read on any control path (see DESIGN.md
// for why it stays wired rather than removed).
type GainSet5 struct {
	RotatDisp pid.Gains
	RotatVel  pid.Gains
	TransDisp pid.Gains
	TransVel  pid.Gains
	Direction pid.Gains
}

// MotionSnapshot is the fused motion estimate the control subsystem reads
// each tick.
type MotionSnapshot struct {
	TransDisp pid.Vec2
	TransVel  pid.Vec2
	RotatDisp pid.Scalar // degrees, (-180, 180]
	RotatVel  pid.Scalar // degrees/sec
}

// Telemetry is the raw payload on vfirm-client/data: one firmware sample,
// queued because samples can arrive in bursts faster than the control
// loop consumes them. Its shape mirrors MotionSnapshot deliberately — the
// estimator adapter in package motion does no filtering, only
// repackaging from queued samples to a latest-value snapshot.
type Telemetry struct {
	TransDisp pid.Vec2
	TransVel  pid.Vec2
	RotatDisp pid.Scalar
	RotatVel  pid.Scalar
}

// ActuatorCommand is the outbound command consumed by the firmware
// client. Magnitudes are clamped to the configured cap by the control
// subsystem before publish.
type ActuatorCommand struct {
	Init          bool
	Translational pid.Vec2
	Rotational    pid.Scalar
	Kicker        pid.Vec2
	Dribbler      bool
}

// Halt is the distinguished command published when the control subsystem
// is disabled: zero motion, dribbler off.
func Halt() ActuatorCommand {
	return ActuatorCommand{Init: true}
}

// ControlMode is the six-way axis-mode enumeration the upstream Motion
// Module consumes from the UDP command receiver and translates into per-axis
// Setpoint Kinds before publishing onto MotionCMD's downstream setpoint
// topics. The control subsystem itself never sees this type — by the time
// a command reaches the cascade it is already a tagged Setpoint — but it
// is part of the external interface and is implemented here for the
// translator in package motion.
type ControlMode int

const (
	TDRD ControlMode = iota // translational displacement, rotational displacement
	TDRV                    // translational displacement, rotational velocity
	TVRD                    // translational velocity, rotational displacement
	TVRV                    // translational velocity, rotational velocity
	NSTDRD                  // non-smoothed TDRD
	NSTDRV                  // non-smoothed TDRV
)

// ReferenceFrame selects which frame a MotionCMD's setpoint vector is
// expressed in. The control core is frame-agnostic: whichever module
// produces a Setpoint is responsible for the body/world transform before
// publishing.
type ReferenceFrame int

const (
	BodyFrame ReferenceFrame = iota
	WorldFrame
)

// MotionCommand is the raw payload on CMD Server/MotionCMD, before the
// Motion Module translates it into per-axis Setpoints.
type MotionCommand struct {
	Setpoint3D pid.Vec2 // planar component of the 3-vector setpoint
	Rotational pid.Scalar
	Mode       ControlMode
	RefFrame   ReferenceFrame
}
