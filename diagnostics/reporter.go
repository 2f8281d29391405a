// Package diagnostics provides read-only observability over a running
// core: a low-rate cron-scheduled log reporter and a small chi-based HTTP
// surface. Neither can influence the broker or control subsystem — they
// only read broker.Stats() and the control subsystem's saturation
// counter. There is no actuating diagnostics/ops surface, only ambient
// observability.
package diagnostics

import (
	"context"

	"github.com/robfig/cron/v3"

	"github.com/triton-robotics/onboard/broker"
	"github.com/triton-robotics/onboard/logger"
)

// SaturationCounter is satisfied by control.Subsystem; kept as a narrow
// interface here so diagnostics never imports package control directly.
type SaturationCounter interface {
	SaturationTrips() uint64
}

// Reporter periodically logs a snapshot of every broker slot plus the
// control cascade's saturation trip count.
type Reporter struct {
	b          *broker.Broker
	saturation SaturationCounter
	log        logger.Logger
	spec       string

	cron *cron.Cron
}

// NewReporter constructs a Reporter. spec is a robfig/cron schedule
// expression, e.g. "@every 5s".
func NewReporter(b *broker.Broker, saturation SaturationCounter, spec string, log logger.Logger) *Reporter {
	if log == nil {
		log = logger.Nop{}
	}
	return &Reporter{b: b, saturation: saturation, log: log, spec: spec}
}

// Name implements lifecycle.Module.
func (r *Reporter) Name() string { return "diagnostics-reporter" }

// Init implements lifecycle.Module. Reporter has nothing to bind; it
// reads the broker directly.
func (r *Reporter) Init(ctx context.Context, b *broker.Broker) error {
	return nil
}

// Run implements lifecycle.Module: starts the cron schedule and blocks
// until ctx is cancelled.
func (r *Reporter) Run(ctx context.Context) {
	r.cron = cron.New()
	_, err := r.cron.AddFunc(r.spec, r.report)
	if err != nil {
		r.log.Error("diagnostics: invalid cron spec, reporter disabled", "spec", r.spec, "error", err)
		return
	}
	r.cron.Start()
	defer r.cron.Stop()

	<-ctx.Done()
}

func (r *Reporter) report() {
	stats := r.b.Stats()
	dropped := uint64(0)
	for _, s := range stats {
		dropped += s.Dropped
	}
	r.log.Info("diagnostics: periodic report",
		"slots", len(stats),
		"total_dropped", dropped,
		"saturation_trips", r.saturation.SaturationTrips(),
	)
}
