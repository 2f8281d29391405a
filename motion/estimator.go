// Package motion holds the two small adapter modules that sit between the
// firmware boundary and the control cascade: Estimator repackages queued
// raw telemetry into the latest-value MotionSnapshot the cascade reads,
// and Translator repackages a raw MotionCMD into the per-axis Setpoints
// the cascade dispatches on. Neither module filters or smooths anything;
// both are pure repackaging, matching original_source's
// virtual_motion_ekf.cpp which republishes its input unfiltered despite
// its name.
package motion

import (
	"context"
	"time"

	"github.com/triton-robotics/onboard/broker"
	"github.com/triton-robotics/onboard/lifecycle"
	"github.com/triton-robotics/onboard/logger"
	"github.com/triton-robotics/onboard/topics"
)

// EstimatorConfig parameterizes an Estimator.
type EstimatorConfig struct {
	BindRetryInterval time.Duration
}

// Estimator consumes queued Telemetry samples and republishes the most
// recent one as a MotionSnapshot. It implements lifecycle.Module.
type Estimator struct {
	cfg EstimatorConfig
	log logger.Logger

	telemetrySub *broker.QueueSubscriber[topics.Telemetry]
	snapshotPub  *broker.LatestPublisher[topics.MotionSnapshot]
}

// NewEstimator constructs an Estimator.
func NewEstimator(cfg EstimatorConfig, log logger.Logger) *Estimator {
	if log == nil {
		log = logger.Nop{}
	}
	if cfg.BindRetryInterval <= 0 {
		cfg.BindRetryInterval = 50 * time.Millisecond
	}
	return &Estimator{cfg: cfg, log: log}
}

// Name implements lifecycle.Module.
func (e *Estimator) Name() string { return "motion-estimator" }

// Init implements lifecycle.Module. The snapshot publisher binds with a
// zero-value default so the control subsystem's own startup barrier
// resolves even before the first telemetry sample arrives.
func (e *Estimator) Init(ctx context.Context, b *broker.Broker) error {
	pub, err := broker.BindLatestPublisher(b, topics.MotionPrediction, topics.MotionSnapshot{})
	if err != nil {
		return err
	}
	e.snapshotPub = pub

	sub, err := lifecycle.RetryBind(ctx, e.cfg.BindRetryInterval, func() (*broker.QueueSubscriber[topics.Telemetry], error) {
		return broker.BindQueueSubscriber[topics.Telemetry](b, topics.FirmwareTelemetry)
	})
	if err != nil {
		return err
	}
	e.telemetrySub = sub

	return nil
}

// Run implements lifecycle.Module: pop telemetry samples and republish
// the latest one as a MotionSnapshot, forever, until ctx is cancelled.
func (e *Estimator) Run(ctx context.Context) {
	for {
		sample, err := e.telemetrySub.Pop(ctx)
		if err != nil {
			return
		}
		e.snapshotPub.Publish(topics.MotionSnapshot{
			TransDisp: sample.TransDisp,
			TransVel:  sample.TransVel,
			RotatDisp: sample.RotatDisp,
			RotatVel:  sample.RotatVel,
		})
	}
}
