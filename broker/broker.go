// Package broker implements the process-wide publish/subscribe fabric that
// couples the onboard control modules together. Modules never hold a direct
// reference to one another; they address each other only by (channel, topic)
// and exchange typed payloads through the Broker.
//
// Three delivery modes are supported, chosen by which bind function a caller
// uses: latest-value non-blocking (Latest), latest-value blocking with
// optional timeout (Wait), and bounded queued (Pop).
package broker

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/triton-robotics/onboard/logger"
)

// Address uniquely identifies a message slot.
type Address struct {
	Channel string
	Topic   string
}

func (a Address) String() string {
	return a.Channel + "/" + a.Topic
}

// Mode distinguishes the two slot storage shapes.
type Mode int

const (
	// ModeLatest stores exactly one payload, overwritten on every publish.
	ModeLatest Mode = iota
	// ModeQueued stores a bounded FIFO, oldest entry dropped on overflow.
	ModeQueued
)

// Sentinel errors returned by the bind and wait operations below.
var (
	ErrNotBound     = errors.New("broker: no slot registered at this address yet")
	ErrTypeMismatch = errors.New("broker: payload type does not match the slot's bound type")
	ErrModeMismatch = errors.New("broker: requested delivery mode does not match the slot's bound mode")
	ErrTimeout      = errors.New("broker: timed out waiting for a publish")
)

// slot is the type-erased storage cell behind one Address. Typed Publisher
// and Subscriber handles wrap a slot and assert T against payloadType at
// bind time; after that, all access is through plain `any`.
type slot struct {
	addr        Address
	payloadType reflect.Type
	mode        Mode

	mu        sync.RWMutex
	value     any  // current value: the default until the first Publish
	published bool // true once at least one real Publish has landed
	firstPub  chan struct{}
	waiters   chan struct{} // closed and replaced on every publish; Wait blocks on firstPub, not on this

	capacity int
	queue    []any
	notEmpty chan struct{}

	publishCount uint64
	dropped      atomic.Uint64
}

// Broker is the process-wide registry mapping (channel, topic) to a slot.
// A single Broker instance should be constructed explicitly at process
// startup and passed to every module — never looked up through a package
// level singleton.
type Broker struct {
	mu    sync.Mutex
	slots map[Address]*slot
	log   logger.Logger
}

// New constructs an empty Broker.
func New(log logger.Logger) *Broker {
	if log == nil {
		log = logger.Nop{}
	}
	return &Broker{
		slots: make(map[Address]*slot),
		log:   log,
	}
}

// getOrCreate returns the slot at addr, creating it if absent. It is the
// only place that mutates the registry, and holds one lock over the whole
// map for the duration — slot creation is mutually exclusive, but the
// returned slot's own mutex governs reads/writes after that.
func (b *Broker) getOrCreate(addr Address, t reflect.Type, mode Mode, capacity int, def any, hasDefault bool) (*slot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if s, ok := b.slots[addr]; ok {
		if s.payloadType != t {
			return nil, fmt.Errorf("%w: addr=%s bound=%s requested=%s", ErrTypeMismatch, addr, s.payloadType, t)
		}
		if s.mode != mode {
			return nil, fmt.Errorf("%w: addr=%s bound=%v requested=%v", ErrModeMismatch, addr, s.mode, mode)
		}
		return s, nil
	}

	s := &slot{
		addr:        addr,
		payloadType: t,
		mode:        mode,
		firstPub:    make(chan struct{}),
		waiters:     make(chan struct{}),
		capacity:    capacity,
		notEmpty:    make(chan struct{}),
	}
	if mode == ModeLatest && hasDefault {
		s.value = def
	}
	b.slots[addr] = s
	b.log.Debug("broker: slot created", "addr", addr.String(), "mode", mode)
	return s, nil
}

// lookup attaches to an existing slot without creating one. This is the
// subscriber-side half of the bind protocol: subscribers never create a
// slot, they retry until the owning publisher has bound it (the
// init-subscribers barrier).
func (b *Broker) lookup(addr Address, t reflect.Type, mode Mode) (*slot, error) {
	b.mu.Lock()
	s, ok := b.slots[addr]
	b.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: addr=%s", ErrNotBound, addr)
	}
	if s.payloadType != t {
		return nil, fmt.Errorf("%w: addr=%s bound=%s requested=%s", ErrTypeMismatch, addr, s.payloadType, t)
	}
	if s.mode != mode {
		return nil, fmt.Errorf("%w: addr=%s bound=%v requested=%v", ErrModeMismatch, addr, s.mode, mode)
	}
	return s, nil
}

func typeOf[T any]() reflect.Type {
	var zero T
	return reflect.TypeOf(&zero).Elem()
}

// --- Latest-value mode ---------------------------------------------------

// LatestPublisher publishes payloads of type T onto a latest-value slot.
type LatestPublisher[T any] struct {
	s *slot
}

// BindLatestPublisher registers (or attaches to) a latest-value slot at
// addr with payload type T and the given default. Re-binding with a
// different T is a fatal TypeMismatch error for the caller.
func BindLatestPublisher[T any](b *Broker, addr Address, def T) (*LatestPublisher[T], error) {
	s, err := b.getOrCreate(addr, typeOf[T](), ModeLatest, 0, def, true)
	if err != nil {
		return nil, err
	}
	return &LatestPublisher[T]{s: s}, nil
}

// Publish overwrites the slot's current value and wakes any blocked Wait
// callers. Publishes are totally ordered per-slot.
func (p *LatestPublisher[T]) Publish(v T) {
	s := p.s
	s.mu.Lock()
	s.value = v
	wasPublished := s.published
	s.published = true
	s.publishCount++
	oldWaiters := s.waiters
	s.waiters = make(chan struct{})
	var firstPub chan struct{}
	if !wasPublished {
		firstPub = s.firstPub
	}
	s.mu.Unlock()

	close(oldWaiters)
	if firstPub != nil {
		close(firstPub)
	}
}

// Addr returns the bound address.
func (p *LatestPublisher[T]) Addr() Address { return p.s.addr }

// LatestSubscriber reads payloads of type T from a latest-value slot. A
// single handle supports both the non-blocking and blocking reader
// contracts for the same slot: Latest never blocks, Wait blocks for the
// first real publish.
type LatestSubscriber[T any] struct {
	s *slot
}

// BindLatestSubscriber attaches to an existing latest-value slot of type T.
// Returns ErrNotBound if no publisher has bound the address yet, or
// ErrTypeMismatch/ErrModeMismatch if it was bound differently. Callers
// retry this call until it succeeds (the init-subscribers barrier).
func BindLatestSubscriber[T any](b *Broker, addr Address) (*LatestSubscriber[T], error) {
	s, err := b.lookup(addr, typeOf[T](), ModeLatest)
	if err != nil {
		return nil, err
	}
	return &LatestSubscriber[T]{s: s}, nil
}

// Latest returns the current payload, or the registered default if no
// publish has landed yet. It never blocks and never fails once bound.
func (sub *LatestSubscriber[T]) Latest() T {
	s := sub.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, _ := s.value.(T)
	return v
}

// Wait blocks until the first real Publish lands, or ctx is done (in which
// case it returns ErrTimeout). Already-published slots return immediately.
func (sub *LatestSubscriber[T]) Wait(ctx context.Context) (T, error) {
	s := sub.s
	for {
		s.mu.RLock()
		if s.published {
			v, _ := s.value.(T)
			s.mu.RUnlock()
			return v, nil
		}
		ch := s.firstPub
		s.mu.RUnlock()

		select {
		case <-ch:
			continue
		case <-ctx.Done():
			var zero T
			return zero, ErrTimeout
		}
	}
}

// Addr returns the bound address.
func (sub *LatestSubscriber[T]) Addr() Address { return sub.s.addr }

// --- Queued mode ----------------------------------------------------------

// QueuePublisher pushes payloads of type T onto a bounded FIFO slot.
type QueuePublisher[T any] struct {
	s *slot
}

// BindQueuePublisher registers (or attaches to) a queued slot of capacity
// cap with payload type T.
func BindQueuePublisher[T any](b *Broker, addr Address, capacity int) (*QueuePublisher[T], error) {
	s, err := b.getOrCreate(addr, typeOf[T](), ModeQueued, capacity, nil, false)
	if err != nil {
		return nil, err
	}
	return &QueuePublisher[T]{s: s}, nil
}

// Push enqueues v. If the queue is at capacity, the oldest entry is
// dropped and the slot's dropped counter is incremented — non-fatal,
// observable only via the counter.
func (p *QueuePublisher[T]) Push(v T) {
	s := p.s
	s.mu.Lock()
	if len(s.queue) >= s.capacity {
		s.queue = s.queue[1:]
		s.dropped.Add(1)
	}
	s.queue = append(s.queue, v)
	s.publishCount++
	old := s.notEmpty
	s.notEmpty = make(chan struct{})
	s.mu.Unlock()

	close(old)
}

// Addr returns the bound address.
func (p *QueuePublisher[T]) Addr() Address { return p.s.addr }

// QueueSubscriber pops payloads of type T from a bounded FIFO slot.
type QueueSubscriber[T any] struct {
	s *slot
}

// BindQueueSubscriber attaches to an existing queued slot of type T.
func BindQueueSubscriber[T any](b *Broker, addr Address) (*QueueSubscriber[T], error) {
	s, err := b.lookup(addr, typeOf[T](), ModeQueued)
	if err != nil {
		return nil, err
	}
	return &QueueSubscriber[T]{s: s}, nil
}

// Pop blocks until an element is available or ctx is done.
func (sub *QueueSubscriber[T]) Pop(ctx context.Context) (T, error) {
	s := sub.s
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			v := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			typed, _ := v.(T)
			return typed, nil
		}
		ch := s.notEmpty
		s.mu.Unlock()

		select {
		case <-ch:
			continue
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// Addr returns the bound address.
func (sub *QueueSubscriber[T]) Addr() Address { return sub.s.addr }

// --- Diagnostics ------------------------------------------------------------

// SlotStats is a read-only snapshot of one slot's counters, used by the
// diagnostics reporter and HTTP surface. It never exposes the payload
// itself, only shape and health.
type SlotStats struct {
	Addr      Address
	Mode      Mode
	Published uint64
	Dropped   uint64
	QueueLen  int
}

// Stats returns a snapshot of every registered slot. Safe to call
// concurrently with publishers and subscribers.
func (b *Broker) Stats() []SlotStats {
	b.mu.Lock()
	addrs := make([]*slot, 0, len(b.slots))
	for _, s := range b.slots {
		addrs = append(addrs, s)
	}
	b.mu.Unlock()

	out := make([]SlotStats, 0, len(addrs))
	for _, s := range addrs {
		s.mu.RLock()
		out = append(out, SlotStats{
			Addr:      s.addr,
			Mode:      s.mode,
			Published: s.publishCount,
			Dropped:   s.dropped.Load(),
			QueueLen:  len(s.queue),
		})
		s.mu.RUnlock()
	}
	return out
}
