package control

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triton-robotics/onboard/broker"
	"github.com/triton-robotics/onboard/pid"
	"github.com/triton-robotics/onboard/topics"
)

func testConfig() Config {
	return Config{
		Frequency:            100,
		OutputCap:            4,
		InitDelay:            0,
		BindRetryInterval:    time.Millisecond,
		DisabledPollInterval: time.Millisecond,
	}
}

// harness holds a publisher for every address the Subsystem subscribes
// to; newHarness binds them all before Init runs so the startup barrier
// resolves on the first attempt.
type harness struct {
	b        *broker.Broker
	gains    *broker.LatestPublisher[topics.GainSet5]
	motion   *broker.LatestPublisher[topics.MotionSnapshot]
	kicker   *broker.LatestPublisher[pid.Vec2]
	dribbler *broker.LatestPublisher[bool]
	transSP  *broker.LatestPublisher[topics.Setpoint[pid.Vec2]]
	rotatSP  *broker.LatestPublisher[topics.Setpoint[pid.Scalar]]
	enable   *broker.LatestPublisher[bool]
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	b := broker.New(nil)
	h := &harness{b: b}

	var err error
	h.gains, err = broker.BindLatestPublisher(b, topics.PIDConstants, topics.GainSet5{})
	require.NoError(t, err)
	h.motion, err = broker.BindLatestPublisher(b, topics.MotionPrediction, topics.MotionSnapshot{})
	require.NoError(t, err)
	h.kicker, err = broker.BindLatestPublisher(b, topics.KickingSetPoint, pid.Vec2{})
	require.NoError(t, err)
	h.dribbler, err = broker.BindLatestPublisher(b, topics.EnableDribbler, false)
	require.NoError(t, err)
	h.transSP, err = broker.BindLatestPublisher(b, topics.TransSetpoint, topics.Setpoint[pid.Vec2]{})
	require.NoError(t, err)
	h.rotatSP, err = broker.BindLatestPublisher(b, topics.RotatSetpoint, topics.Setpoint[pid.Scalar]{})
	require.NoError(t, err)
	h.enable, err = broker.BindLatestPublisher(b, topics.SafetyEnable, false)
	require.NoError(t, err)

	return h
}

func TestWrapDegShortestPath(t *testing.T) {
	assert.InDelta(t, 10.0, wrapDeg(10), 1e-9)
	assert.InDelta(t, 180.0, wrapDeg(180), 1e-9)
	assert.InDelta(t, -179.0, wrapDeg(181), 1e-9)
	assert.InDelta(t, -10.0, wrapDeg(-10), 1e-9)
	assert.InDelta(t, 90.0, wrapDeg(-270), 1e-9)
	// negative zero is a zero error and stays zero; it is not wrapped a
	// full turn.
	assert.InDelta(t, 0.0, wrapDeg(math.Copysign(0, -1)), 1e-9)
	assert.InDelta(t, 0.0, wrapDeg(0), 1e-9)
}

func TestSaturateLeavesUnderCapUntouched(t *testing.T) {
	rotat, trans, tripped := saturate(1, pid.Vec2{X: 1, Y: 1}, 10)
	assert.False(t, tripped)
	assert.Equal(t, pid.Scalar(1), rotat)
	assert.Equal(t, pid.Vec2{X: 1, Y: 1}, trans)
}

func TestSaturateRescalesOverCap(t *testing.T) {
	rotat, trans, tripped := saturate(0, pid.Vec2{X: 3, Y: 4}, 2.5)
	assert.True(t, tripped)
	assert.InDelta(t, 0, float64(rotat), 1e-9)
	norm := trans.X*trans.X + trans.Y*trans.Y
	assert.InDelta(t, 2.5*2.5, norm, 1e-6)
}

func TestVelocityModeBypassesDisplacementPID(t *testing.T) {
	s := New(testConfig(), nil)
	s.rotatDisp.UpdateGains(pid.Gains{Ki: 1})
	s.reinitAll()

	sp := topics.Setpoint[pid.Scalar]{Kind: topics.Velocity, Value: 5}
	motion := topics.MotionSnapshot{RotatVel: 0}

	for i := 0; i < 5; i++ {
		s.computeRotational(sp, motion)
	}
	// velocity mode never runs the displacement PID; it is
	// re-initialized every tick instead, so its integral never advances.
	assert.Equal(t, pid.Scalar(0), s.rotatDisp.Calculate(0))
}

func TestDisplacementModeOutputsDisplacementPIDDirectly(t *testing.T) {
	s := New(testConfig(), nil)
	s.rotatDisp.UpdateGains(pid.Gains{Kp: 1})
	s.reinitAll()

	sp := topics.Setpoint[pid.Scalar]{Kind: topics.Displacement, Value: 10}
	motion := topics.MotionSnapshot{RotatDisp: 0, RotatVel: 0}

	out := s.computeRotational(sp, motion)
	// the displacement PID's output is the rotational command directly;
	// the velocity PID's gains (left at zero here) play no part.
	assert.InDelta(t, 10, float64(out), 1e-9)
}

func TestModeSwitchResetsIntegral(t *testing.T) {
	s := New(testConfig(), nil)
	s.rotatVel.UpdateGains(pid.Gains{Ki: 1})
	s.reinitAll()
	s.lastRotatKind = topics.Velocity
	s.lastTransKind = topics.Displacement
	s.haveLastKind = true

	for i := 0; i < 5; i++ {
		s.computeRotational(topics.Setpoint[pid.Scalar]{Kind: topics.Velocity, Value: 1}, topics.MotionSnapshot{})
	}
	assert.NotEqual(t, pid.Scalar(0), s.rotatVel.Calculate(0))

	s.resetOnModeSwitch(topics.Displacement, topics.Displacement)
	assert.Equal(t, pid.Scalar(0), s.rotatVel.Calculate(0))
}

func TestRunPublishesHaltWhileDisabled(t *testing.T) {
	h := newHarness(t)
	s := New(testConfig(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	require.NoError(t, s.Init(ctx, h.b))

	cmdSub, err := broker.BindLatestSubscriber[topics.ActuatorCommand](h.b, topics.FirmwareCommands)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	<-ctx.Done()
	<-done

	got := cmdSub.Latest()
	assert.Equal(t, topics.Halt(), got)
}

func TestRunTicksAndPublishesWhileEnabled(t *testing.T) {
	h := newHarness(t)
	s := New(testConfig(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	require.NoError(t, s.Init(ctx, h.b))
	h.enable.Publish(true)
	h.gains.Publish(topics.GainSet5{RotatVel: pid.Gains{Kp: 1}, TransVel: pid.Gains{Kp: 1}})
	h.rotatSP.Publish(topics.Setpoint[pid.Scalar]{Kind: topics.Velocity, Value: 3})
	h.transSP.Publish(topics.Setpoint[pid.Vec2]{Kind: topics.Velocity, Value: pid.Vec2{X: 1}})

	cmdSub, err := broker.BindLatestSubscriber[topics.ActuatorCommand](h.b, topics.FirmwareCommands)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	<-ctx.Done()
	<-done

	got := cmdSub.Latest()
	assert.True(t, got.Init)
	assert.InDelta(t, 3, float64(got.Rotational), 0.5)
}
