package motion

import (
	"context"
	"math"
	"time"

	"github.com/triton-robotics/onboard/broker"
	"github.com/triton-robotics/onboard/lifecycle"
	"github.com/triton-robotics/onboard/logger"
	"github.com/triton-robotics/onboard/pid"
	"github.com/triton-robotics/onboard/topics"
)

// TranslatorConfig parameterizes a Translator.
type TranslatorConfig struct {
	// TickInterval is how often the translator re-derives Setpoints from
	// the latest MotionCMD and current heading. It must re-run even when
	// MotionCMD hasn't changed, because a world-frame setpoint's body
	// projection changes as the robot turns.
	TickInterval      time.Duration
	BindRetryInterval time.Duration
}

// Translator turns a raw MotionCMD (produced upstream of the control
// core) into the per-axis Setpoints the control cascade
// dispatches on, rotating a world-frame translational setpoint into the
// body frame using the current heading from the motion snapshot.
// Implements lifecycle.Module.
type Translator struct {
	cfg TranslatorConfig
	log logger.Logger

	cmdSub    *broker.LatestSubscriber[topics.MotionCommand]
	motionSub *broker.LatestSubscriber[topics.MotionSnapshot]
	transPub  *broker.LatestPublisher[topics.Setpoint[pid.Vec2]]
	rotatPub  *broker.LatestPublisher[topics.Setpoint[pid.Scalar]]
}

// NewTranslator constructs a Translator.
func NewTranslator(cfg TranslatorConfig, log logger.Logger) *Translator {
	if log == nil {
		log = logger.Nop{}
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 10 * time.Millisecond
	}
	if cfg.BindRetryInterval <= 0 {
		cfg.BindRetryInterval = 50 * time.Millisecond
	}
	return &Translator{cfg: cfg, log: log}
}

// Name implements lifecycle.Module.
func (t *Translator) Name() string { return "motion-translator" }

// Init implements lifecycle.Module.
func (t *Translator) Init(ctx context.Context, b *broker.Broker) error {
	transPub, err := broker.BindLatestPublisher(b, topics.TransSetpoint, topics.Setpoint[pid.Vec2]{})
	if err != nil {
		return err
	}
	t.transPub = transPub

	rotatPub, err := broker.BindLatestPublisher(b, topics.RotatSetpoint, topics.Setpoint[pid.Scalar]{})
	if err != nil {
		return err
	}
	t.rotatPub = rotatPub

	cmdSub, err := lifecycle.RetryBind(ctx, t.cfg.BindRetryInterval, func() (*broker.LatestSubscriber[topics.MotionCommand], error) {
		return broker.BindLatestSubscriber[topics.MotionCommand](b, topics.MotionCMD)
	})
	if err != nil {
		return err
	}
	t.cmdSub = cmdSub

	motionSub, err := lifecycle.RetryBind(ctx, t.cfg.BindRetryInterval, func() (*broker.LatestSubscriber[topics.MotionSnapshot], error) {
		return broker.BindLatestSubscriber[topics.MotionSnapshot](b, topics.MotionPrediction)
	})
	if err != nil {
		return err
	}
	t.motionSub = motionSub

	return nil
}

// Run implements lifecycle.Module.
func (t *Translator) Run(ctx context.Context) {
	ticker := time.NewTicker(t.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}

		cmd := t.cmdSub.Latest()
		motion := t.motionSub.Latest()

		transKind, rotatKind := axisKinds(cmd.Mode)

		transVal := cmd.Setpoint3D
		if cmd.RefFrame == topics.WorldFrame {
			transVal = rotateIntoBody(transVal, float64(motion.RotatDisp))
		}

		t.transPub.Publish(topics.Setpoint[pid.Vec2]{Kind: transKind, Value: transVal})
		t.rotatPub.Publish(topics.Setpoint[pid.Scalar]{Kind: rotatKind, Value: cmd.Rotational})
	}
}

// axisKinds maps a ControlMode to the per-axis Setpoint Kind the cascade
// dispatches on. The NS ("non-smoothed") variants select the same axis
// kinds as their counterparts: smoothing of the commanded setpoint
// between ticks is out of this core's scope, so both variants behave
// identically here.
func axisKinds(mode topics.ControlMode) (trans, rotat topics.SetpointKind) {
	switch mode {
	case topics.TDRD, topics.NSTDRD:
		return topics.Displacement, topics.Displacement
	case topics.TDRV, topics.NSTDRV:
		return topics.Displacement, topics.Velocity
	case topics.TVRD:
		return topics.Velocity, topics.Displacement
	case topics.TVRV:
		return topics.Velocity, topics.Velocity
	default:
		return topics.Displacement, topics.Displacement
	}
}

// rotateIntoBody projects a world-frame planar vector into the body
// frame given the current heading in degrees. Only the translational
// setpoint is frame-dependent; a commanded heading or angular velocity is
// already expressed the same way in both frames.
func rotateIntoBody(v pid.Vec2, headingDeg float64) pid.Vec2 {
	r := -headingDeg * math.Pi / 180
	cos, sin := math.Cos(r), math.Sin(r)
	return pid.Vec2{
		X: v.X*cos - v.Y*sin,
		Y: v.X*sin + v.Y*cos,
	}
}
