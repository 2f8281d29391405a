package motion

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triton-robotics/onboard/broker"
	"github.com/triton-robotics/onboard/pid"
	"github.com/triton-robotics/onboard/topics"
)

func TestAxisKindsMapsEveryMode(t *testing.T) {
	cases := []struct {
		mode        topics.ControlMode
		trans, rot  topics.SetpointKind
	}{
		{topics.TDRD, topics.Displacement, topics.Displacement},
		{topics.NSTDRD, topics.Displacement, topics.Displacement},
		{topics.TDRV, topics.Displacement, topics.Velocity},
		{topics.NSTDRV, topics.Displacement, topics.Velocity},
		{topics.TVRD, topics.Velocity, topics.Displacement},
		{topics.TVRV, topics.Velocity, topics.Velocity},
	}
	for _, c := range cases {
		trans, rot := axisKinds(c.mode)
		assert.Equal(t, c.trans, trans, "mode %v", c.mode)
		assert.Equal(t, c.rot, rot, "mode %v", c.mode)
	}
}

func TestRotateIntoBodyIdentityAtZeroHeading(t *testing.T) {
	v := rotateIntoBody(pid.Vec2{X: 1, Y: 2}, 0)
	assert.InDelta(t, 1, v.X, 1e-9)
	assert.InDelta(t, 2, v.Y, 1e-9)
}

func TestRotateIntoBodyNinetyDegrees(t *testing.T) {
	v := rotateIntoBody(pid.Vec2{X: 1, Y: 0}, 90)
	assert.InDelta(t, 0, v.X, 1e-9)
	assert.InDelta(t, -1, v.Y, 1e-9)
}

func TestEstimatorRepublishesLatestSample(t *testing.T) {
	b := broker.New(nil)
	telemetryPub, err := broker.BindQueuePublisher[topics.Telemetry](b, topics.FirmwareTelemetry, 4)
	require.NoError(t, err)

	e := NewEstimator(EstimatorConfig{BindRetryInterval: time.Millisecond}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, e.Init(ctx, b))

	snapshotSub, err := broker.BindLatestSubscriber[topics.MotionSnapshot](b, topics.MotionPrediction)
	require.NoError(t, err)

	go e.Run(ctx)

	telemetryPub.Push(topics.Telemetry{RotatDisp: 1})
	telemetryPub.Push(topics.Telemetry{RotatDisp: 2})

	require.Eventually(t, func() bool {
		return snapshotSub.Latest().RotatDisp == 2
	}, 40*time.Millisecond, time.Millisecond)
}

func TestTranslatorAppliesWorldFrameRotation(t *testing.T) {
	b := broker.New(nil)
	cmdPub, err := broker.BindLatestPublisher(b, topics.MotionCMD, topics.MotionCommand{})
	require.NoError(t, err)
	motionPub, err := broker.BindLatestPublisher(b, topics.MotionPrediction, topics.MotionSnapshot{})
	require.NoError(t, err)

	tr := NewTranslator(TranslatorConfig{TickInterval: time.Millisecond, BindRetryInterval: time.Millisecond}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, tr.Init(ctx, b))

	transSub, err := broker.BindLatestSubscriber[topics.Setpoint[pid.Vec2]](b, topics.TransSetpoint)
	require.NoError(t, err)

	motionPub.Publish(topics.MotionSnapshot{RotatDisp: 90})
	cmdPub.Publish(topics.MotionCommand{
		Setpoint3D: pid.Vec2{X: 1, Y: 0},
		Mode:       topics.TDRD,
		RefFrame:   topics.WorldFrame,
	})

	go tr.Run(ctx)

	require.Eventually(t, func() bool {
		v := transSub.Latest()
		return v.Value.Y < -0.9
	}, 40*time.Millisecond, time.Millisecond)
}
