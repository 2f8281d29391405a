// Package control implements the PID control subsystem: the heart of the
// onboard core. It owns five PID instances — rotational-displacement,
// rotational-velocity, translational-displacement, translational-velocity,
// and a reserved direction controller that is wired but never invoked on
// any control path — and the enable-gated outer loop that cycles them.
//
// Each axis picks exactly one of its two PIDs per tick, selected by the
// setpoint's Kind: displacement mode runs the displacement PID and feeds
// its output straight to the actuator command, velocity mode runs the
// velocity PID the same way. There is no cascade — the PID not selected
// this tick is re-initialized instead of run, matching
// original_source's ControlModule/pid_system.cpp, which keeps
// displacement and velocity control mutually exclusive per axis.
package control

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"github.com/triton-robotics/onboard/broker"
	"github.com/triton-robotics/onboard/lifecycle"
	"github.com/triton-robotics/onboard/logger"
	"github.com/triton-robotics/onboard/pid"
	"github.com/triton-robotics/onboard/topics"
)

// Config parameterizes one Subsystem instance. Frequency and OutputCap
// come from the gains/config file (package config); InitDelay and
// BindRetryInterval are process-startup knobs.
type Config struct {
	// Frequency is CTRL_FREQUENCY, the cascade's tick rate in Hz.
	Frequency float64
	// OutputCap is the Euclidean norm cap M applied to the assembled
	// (translational-x, translational-y, rotational) output vector.
	OutputCap float64
	// InitDelay is how long Run waits before its first enable check,
	// giving the firmware client and motion estimator time to publish
	// their first values.
	InitDelay time.Duration
	// BindRetryInterval is the poll interval Init uses while retrying
	// binds during the startup barrier.
	BindRetryInterval time.Duration
	// DisabledPollInterval is how often Run rechecks the enable signal
	// while disabled.
	DisabledPollInterval time.Duration
}

// Subsystem is the control module. It implements lifecycle.Module.
type Subsystem struct {
	cfg Config
	log logger.Logger

	gainsSub    *broker.LatestSubscriber[topics.GainSet5]
	motionSub   *broker.LatestSubscriber[topics.MotionSnapshot]
	kickerSub   *broker.LatestSubscriber[pid.Vec2]
	dribblerSub *broker.LatestSubscriber[bool]
	transSPSub  *broker.LatestSubscriber[topics.Setpoint[pid.Vec2]]
	rotatSPSub  *broker.LatestSubscriber[topics.Setpoint[pid.Scalar]]
	enable      *lifecycle.EnableGate
	cmdPub      *broker.LatestPublisher[topics.ActuatorCommand]

	rotatDisp *pid.Controller[pid.Scalar]
	rotatVel  *pid.Controller[pid.Scalar]
	transDisp *pid.Controller[pid.Vec2]
	transVel  *pid.Controller[pid.Vec2]
	// direction is constructed, gain-refreshed every tick, and never
	// invoked. See DESIGN.md for why it stays wired rather than deleted.
	direction *pid.Controller[pid.Vec2]

	lastRotatKind topics.SetpointKind
	lastTransKind topics.SetpointKind
	haveLastKind  bool

	saturationTrips atomic.Uint64
}

// New constructs a Subsystem with its five PID instances. Gains start at
// their zero value; the first tick's gain refresh (section below) applies
// whatever GainSet5 the config/gains-file watcher has published.
func New(cfg Config, log logger.Logger) *Subsystem {
	if log == nil {
		log = logger.Nop{}
	}
	if cfg.BindRetryInterval <= 0 {
		cfg.BindRetryInterval = 50 * time.Millisecond
	}
	if cfg.DisabledPollInterval <= 0 {
		cfg.DisabledPollInterval = 20 * time.Millisecond
	}
	return &Subsystem{
		cfg:       cfg,
		log:       log,
		rotatDisp: pid.New[pid.Scalar](pid.Gains{}),
		rotatVel:  pid.New[pid.Scalar](pid.Gains{}),
		transDisp: pid.New[pid.Vec2](pid.Gains{}),
		transVel:  pid.New[pid.Vec2](pid.Gains{}),
		direction: pid.New[pid.Vec2](pid.Gains{}),
	}
}

// Name implements lifecycle.Module.
func (s *Subsystem) Name() string { return "control" }

// Init implements lifecycle.Module: binds every subscriber and publisher
// the cascade needs, retrying each against the startup barrier. It
// publishes ActuatorCommand with a halt default so any earlier-starting
// consumer (the firmware client) sees a safe command immediately.
func (s *Subsystem) Init(ctx context.Context, b *broker.Broker) error {
	var err error

	s.cmdPub, err = broker.BindLatestPublisher(b, topics.FirmwareCommands, topics.Halt())
	if err != nil {
		return err
	}

	s.gainsSub, err = lifecycle.RetryBind(ctx, s.cfg.BindRetryInterval, func() (*broker.LatestSubscriber[topics.GainSet5], error) {
		return broker.BindLatestSubscriber[topics.GainSet5](b, topics.PIDConstants)
	})
	if err != nil {
		return err
	}

	s.motionSub, err = lifecycle.RetryBind(ctx, s.cfg.BindRetryInterval, func() (*broker.LatestSubscriber[topics.MotionSnapshot], error) {
		return broker.BindLatestSubscriber[topics.MotionSnapshot](b, topics.MotionPrediction)
	})
	if err != nil {
		return err
	}

	s.kickerSub, err = lifecycle.RetryBind(ctx, s.cfg.BindRetryInterval, func() (*broker.LatestSubscriber[pid.Vec2], error) {
		return broker.BindLatestSubscriber[pid.Vec2](b, topics.KickingSetPoint)
	})
	if err != nil {
		return err
	}

	s.dribblerSub, err = lifecycle.RetryBind(ctx, s.cfg.BindRetryInterval, func() (*broker.LatestSubscriber[bool], error) {
		return broker.BindLatestSubscriber[bool](b, topics.EnableDribbler)
	})
	if err != nil {
		return err
	}

	s.transSPSub, err = lifecycle.RetryBind(ctx, s.cfg.BindRetryInterval, func() (*broker.LatestSubscriber[topics.Setpoint[pid.Vec2]], error) {
		return broker.BindLatestSubscriber[topics.Setpoint[pid.Vec2]](b, topics.TransSetpoint)
	})
	if err != nil {
		return err
	}

	s.rotatSPSub, err = lifecycle.RetryBind(ctx, s.cfg.BindRetryInterval, func() (*broker.LatestSubscriber[topics.Setpoint[pid.Scalar]], error) {
		return broker.BindLatestSubscriber[topics.Setpoint[pid.Scalar]](b, topics.RotatSetpoint)
	})
	if err != nil {
		return err
	}

	enableSub, err := lifecycle.RetryBind(ctx, s.cfg.BindRetryInterval, func() (*broker.LatestSubscriber[bool], error) {
		return broker.BindLatestSubscriber[bool](b, topics.SafetyEnable)
	})
	if err != nil {
		return err
	}
	s.enable = lifecycle.NewEnableGate(enableSub)

	return nil
}

// SaturationTrips returns the running count of ticks whose assembled
// output exceeded OutputCap and was rescaled, for the diagnostics
// reporter.
func (s *Subsystem) SaturationTrips() uint64 { return s.saturationTrips.Load() }

// Run implements lifecycle.Module. It waits InitDelay, then cycles
// forever between a disabled state (publishing Halt, polling the enable
// signal) and an enabled run (reinitializing all five PIDs and ticking
// the cascade at Frequency until disabled).
func (s *Subsystem) Run(ctx context.Context) {
	select {
	case <-time.After(s.cfg.InitDelay):
	case <-ctx.Done():
		return
	}

	dt := time.Duration(float64(time.Second) / s.cfg.Frequency)

	for {
		if ctx.Err() != nil {
			return
		}
		if !s.enable.Enabled() {
			s.cmdPub.Publish(topics.Halt())
			select {
			case <-time.After(s.cfg.DisabledPollInterval):
				continue
			case <-ctx.Done():
				return
			}
		}

		s.reinitAll()
		s.haveLastKind = false

		ticker := time.NewTicker(dt)
		for s.enable.Enabled() {
			s.tick()
			select {
			case <-ticker.C:
			case <-ctx.Done():
				ticker.Stop()
				return
			}
		}
		ticker.Stop()
	}
}

func (s *Subsystem) reinitAll() {
	s.rotatDisp.Init(s.cfg.Frequency)
	s.rotatVel.Init(s.cfg.Frequency)
	s.transDisp.Init(s.cfg.Frequency)
	s.transVel.Init(s.cfg.Frequency)
	s.direction.Init(s.cfg.Frequency)
}

// tick runs one inner control step: refresh gains, read inputs, compute
// each axis, saturate, publish.
func (s *Subsystem) tick() {
	gains := s.gainsSub.Latest()
	s.rotatDisp.UpdateGains(gains.RotatDisp)
	s.rotatVel.UpdateGains(gains.RotatVel)
	s.transDisp.UpdateGains(gains.TransDisp)
	s.transVel.UpdateGains(gains.TransVel)
	s.direction.UpdateGains(gains.Direction)

	motion := s.motionSub.Latest()
	rotatSP := s.rotatSPSub.Latest()
	transSP := s.transSPSub.Latest()

	if s.haveLastKind && (rotatSP.Kind != s.lastRotatKind || transSP.Kind != s.lastTransKind) {
		s.resetOnModeSwitch(rotatSP.Kind, transSP.Kind)
	}
	s.lastRotatKind, s.lastTransKind = rotatSP.Kind, transSP.Kind
	s.haveLastKind = true

	rotatOut := s.computeRotational(rotatSP, motion)
	transOut := s.computeTranslational(transSP, motion)
	rotatOut, transOut, tripped := saturate(rotatOut, transOut, s.cfg.OutputCap)
	if tripped {
		s.saturationTrips.Add(1)
	}

	cmd := topics.ActuatorCommand{
		Init:          true,
		Translational: transOut,
		Rotational:    rotatOut,
		Kicker:        s.kickerSub.Latest(),
		Dribbler:      s.dribblerSub.Latest(),
	}
	s.cmdPub.Publish(cmd)
}

// resetOnModeSwitch clears the integral/previous-error state of whichever
// axes changed Kind this tick, implementing the cascade's mode-switch
// integral-windup reset. Both controllers on a switched axis are reset
// together: the idle one so it doesn't resume mid-windup when control
// returns to it, the active one so the switch itself starts from a clean
// derivative term.
func (s *Subsystem) resetOnModeSwitch(rotatKind, transKind topics.SetpointKind) {
	if rotatKind != s.lastRotatKind {
		s.rotatDisp.Init(s.cfg.Frequency)
		s.rotatVel.Init(s.cfg.Frequency)
	}
	if transKind != s.lastTransKind {
		s.transDisp.Init(s.cfg.Frequency)
		s.transVel.Init(s.cfg.Frequency)
	}
}

// computeRotational selects exactly one of rotatDisp/rotatVel for this
// tick, by sp.Kind, and re-initializes the other so it carries no stale
// integral when control returns to it. There is no cascading between the
// two: the selected PID's output is the rotational command directly.
func (s *Subsystem) computeRotational(sp topics.Setpoint[pid.Scalar], motion topics.MotionSnapshot) pid.Scalar {
	if sp.Kind == topics.Displacement {
		dispErr := pid.Scalar(wrapDeg(float64(sp.Value) - float64(motion.RotatDisp)))
		out := s.rotatDisp.Calculate(dispErr)
		s.rotatVel.Init(s.cfg.Frequency)
		return out
	}
	velErr := sp.Value - motion.RotatVel
	out := s.rotatVel.Calculate(velErr)
	s.rotatDisp.Init(s.cfg.Frequency)
	return out
}

// computeTranslational is computeRotational's translational-axis twin:
// exactly one of transDisp/transVel runs per tick, the other is
// re-initialized.
func (s *Subsystem) computeTranslational(sp topics.Setpoint[pid.Vec2], motion topics.MotionSnapshot) pid.Vec2 {
	if sp.Kind == topics.Displacement {
		dispErr := sp.Value.Sub(motion.TransDisp)
		out := s.transDisp.Calculate(dispErr)
		s.transVel.Init(s.cfg.Frequency)
		return out
	}
	velErr := sp.Value.Sub(motion.TransVel)
	out := s.transVel.Calculate(velErr)
	s.transDisp.Init(s.cfg.Frequency)
	return out
}

// wrapDeg wraps a rotational error into (-180, 180]: the result is the
// minimum-magnitude angle equivalent to e, an error of exactly ±180 is
// reported as +180, and a zero error (including negative zero) stays 0.
// See DESIGN.md for this open question's resolution.
func wrapDeg(e float64) float64 {
	e = math.Mod(e+180, 360)
	if math.Signbit(e) {
		e += 360
	}
	e -= 180
	if e == -180 {
		return 180
	}
	return e
}

// saturate clamps the assembled (transX, transY, rotational) vector to
// norm cap. Translational and rotational components share one cap
// because the original firmware treats them as one 3-vector motor-space
// command, not because the units are commensurate.
func saturate(rotat pid.Scalar, trans pid.Vec2, cap float64) (pid.Scalar, pid.Vec2, bool) {
	if cap <= 0 {
		return rotat, trans, false
	}
	norm := math.Sqrt(trans.X*trans.X + trans.Y*trans.Y + float64(rotat)*float64(rotat))
	if norm <= cap {
		return rotat, trans, false
	}
	scale := cap / norm
	return pid.Scalar(float64(rotat) * scale), trans.Scale(scale), true
}
