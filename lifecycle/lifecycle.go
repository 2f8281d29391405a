// Package lifecycle is the module lifecycle glue: the abstract module
// shape every long-running task implements, the init-subscribers retry
// barrier that makes module startup order irrelevant, and a small
// enable/disable gate helper the control subsystem and any future gated
// module can share.
//
// There is no dependency graph to resolve, no service registry, no
// config-section machinery — modules depend on each other only through
// broker topic names.
package lifecycle

import (
	"context"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"

	"github.com/triton-robotics/onboard/broker"
	"github.com/triton-robotics/onboard/logger"
	"github.com/triton-robotics/onboard/workerpool"
)

// Lifecycle event types. Start builds a CloudEvent of one of these types
// for each module and logs its ID on the structured log line; the event
// itself is not sent anywhere — there is no event bus in this system,
// only the process log.
const (
	eventModuleStarted    = "onboard.module.started"
	eventModuleInitFailed = "onboard.module.init_failed"
)

func newModuleEvent(eventType, moduleName string) cloudevents.Event {
	e := cloudevents.NewEvent()
	e.SetID(uuid.NewString())
	e.SetSource("onboard/lifecycle")
	e.SetType(eventType)
	e.SetTime(time.Now())
	_ = e.SetData(cloudevents.ApplicationJSON, map[string]string{"module": moduleName})
	return e
}

// Module is the shape every long-running component in this system
// implements. A module is created once, started once, and runs forever —
// it never re-enters its task body.
type Module interface {
	// Name identifies the module for logging.
	Name() string

	// Init performs the module's init-subscribers barrier: binding every
	// publisher and subscriber it needs, retrying until each succeeds or
	// ctx is cancelled. It must not block on anything other than those
	// binds.
	Init(ctx context.Context, b *broker.Broker) error

	// Run is the module's long-running task body. It is called exactly
	// once, on a worker from the pool, after Init succeeds. It should run
	// until ctx is cancelled.
	Run(ctx context.Context)
}

// Runtime dispatches each registered Module onto the thread pool exactly
// once: each module's Init+Run is enqueued onto a worker and Start
// returns immediately.
type Runtime struct {
	broker  *broker.Broker
	pool    *workerpool.Pool
	log     logger.Logger
	modules []Module
}

// NewRuntime constructs a Runtime bound to a single broker and pool,
// constructed explicitly by the caller and never looked up through a
// package-level singleton.
func NewRuntime(b *broker.Broker, pool *workerpool.Pool, log logger.Logger) *Runtime {
	if log == nil {
		log = logger.Nop{}
	}
	return &Runtime{broker: b, pool: pool, log: log}
}

// Register adds a module to the runtime. Must be called before Start.
func (rt *Runtime) Register(m Module) {
	rt.modules = append(rt.modules, m)
}

// Start dispatches every registered module's Init+Run onto the pool. It
// returns immediately; Init failures are reported through onInitErr (e.g.
// to safe the robot or abort), not by Start's return value, since each
// module's failure is independent of the others.
func (rt *Runtime) Start(ctx context.Context, onInitErr func(module string, err error)) {
	for _, m := range rt.modules {
		m := m
		_ = rt.pool.Submit(func(ctx context.Context, pool *workerpool.Pool) {
			if err := m.Init(ctx, rt.broker); err != nil {
				ev := newModuleEvent(eventModuleInitFailed, m.Name())
				rt.log.Error("lifecycle: module init failed", "module", m.Name(), "error", err, "event_id", ev.ID())
				if onInitErr != nil {
					onInitErr(m.Name(), err)
				}
				return
			}
			ev := newModuleEvent(eventModuleStarted, m.Name())
			rt.log.Info("lifecycle: module started", "module", m.Name(), "event_id", ev.ID())
			m.Run(ctx)
		})
	}
}

// RetryBind is the init-subscribers barrier primitive: it calls bind
// repeatedly, waiting interval between attempts, until it succeeds or ctx
// is cancelled. Module startup order is irrelevant because every
// subscriber retries like this rather than failing immediately when its
// publisher hasn't bound yet.
func RetryBind[T any](ctx context.Context, interval time.Duration, bind func() (T, error)) (T, error) {
	for {
		v, err := bind()
		if err == nil {
			return v, nil
		}
		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return v, err
		}
	}
}

// EnableGate wraps a latest-value bool subscriber (e.g. SafetyEnable) with
// the read helper the control subsystem's outer loop polls each iteration.
type EnableGate struct {
	sub *broker.LatestSubscriber[bool]
}

// NewEnableGate wraps an already-bound bool subscriber.
func NewEnableGate(sub *broker.LatestSubscriber[bool]) *EnableGate {
	return &EnableGate{sub: sub}
}

// Enabled reports the current enable signal. Never blocks.
func (g *EnableGate) Enabled() bool {
	return g.sub.Latest()
}
