package eventbus

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"lumen-agent/internal/domain"
	"lumen-agent/internal/infra/logger"
	"lumen-agent/internal/infra/metrics"
)

// Defaults for Options.
const (
	DefaultBatchSize     = 10
	DefaultSnapshotSize  = 300
	DefaultFlushInterval = 16 * time.Millisecond
)

// Scheduler runs fn on the next flush tick.
type Scheduler interface {
	Schedule(fn func())
}

// TimerScheduler schedules ticks with time.AfterFunc. It is the host
// fallback for a frame-callback scheduler.
type TimerScheduler struct {
	Interval time.Duration
}

// Schedule implements Scheduler.
func (s TimerScheduler) Schedule(fn func()) {
	d := s.Interval
	if d <= 0 {
		d = DefaultFlushInterval
	}
	time.AfterFunc(d, fn)
}

// Options configures a Bus.
type Options struct {
	BatchSize    int
	SnapshotSize int
	Scheduler    Scheduler
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
}

type subscription struct {
	id      uint64
	handler domain.EventHandler
	active  atomic.Bool
}

// Bus is the runtime's in-process event bus. Batched events are delivered
// on scheduler ticks, at most BatchSize per tick and in emission order.
// Immediate events are delivered synchronously. Handlers run on the
// emitting (or ticking) goroutine.
type Bus struct {
	batchSize int
	scheduler Scheduler
	logger    *slog.Logger
	metrics   *metrics.Metrics

	mu        sync.Mutex
	typed     map[domain.EventType][]*subscription
	allSubs   []*subscription
	queue     []domain.Event
	scheduled bool
	snapshot  *ring[domain.Event]

	flushMu sync.Mutex
	nextID  atomic.Uint64
	closed  atomic.Bool
}

var _ domain.EventBus = (*Bus)(nil)

// New creates an event bus.
func New(opts Options) *Bus {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.SnapshotSize <= 0 {
		opts.SnapshotSize = DefaultSnapshotSize
	}
	if opts.Scheduler == nil {
		opts.Scheduler = TimerScheduler{Interval: DefaultFlushInterval}
	}
	return &Bus{
		batchSize: opts.BatchSize,
		scheduler: opts.Scheduler,
		logger:    logger.Component(opts.Logger, "eventbus"),
		metrics:   opts.Metrics,
		typed:     make(map[domain.EventType][]*subscription),
		snapshot:  newRing[domain.Event](opts.SnapshotSize),
	}
}

// NewEvent builds an event with a JSON-encoded payload. Encoding failures
// yield an event without payload.
func NewEvent(t domain.EventType, turnID, stepID string, payload any) domain.Event {
	e := domain.Event{Type: t, TurnID: turnID, StepID: stepID}
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			e.Payload = data
		}
	}
	return e
}

func (b *Bus) stamp(e domain.Event) domain.Event {
	if e.ID == "" {
		e.ID = ulid.Make().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	return e
}

// Emit records the event in the snapshot and queues it for the next tick.
func (b *Bus) Emit(e domain.Event) {
	if b.closed.Load() {
		return
	}
	e = b.stamp(e)

	b.mu.Lock()
	b.snapshot.push(e)
	b.queue = append(b.queue, e)
	schedule := !b.scheduled
	b.scheduled = true
	b.mu.Unlock()

	b.metrics.EventEmitted(string(e.Type), false)
	if schedule {
		b.scheduler.Schedule(b.tick)
	}
}

// EmitImmediate records the event in the snapshot and delivers it before
// returning. Reserved for transitions the UI must reflect without delay.
func (b *Bus) EmitImmediate(e domain.Event) {
	if b.closed.Load() {
		return
	}
	e = b.stamp(e)

	b.mu.Lock()
	b.snapshot.push(e)
	b.mu.Unlock()

	b.metrics.EventEmitted(string(e.Type), true)
	b.dispatch(e)
}

// tick delivers one batch and reschedules itself while events remain.
func (b *Bus) tick() {
	b.flushMu.Lock()
	b.dispatchBatch()
	b.flushMu.Unlock()

	b.mu.Lock()
	more := len(b.queue) > 0
	b.scheduled = more
	b.mu.Unlock()

	if more {
		b.scheduler.Schedule(b.tick)
	}
}

// dispatchBatch takes at most batchSize events off the queue and delivers them.
func (b *Bus) dispatchBatch() int {
	b.mu.Lock()
	n := min(b.batchSize, len(b.queue))
	batch := make([]domain.Event, n)
	copy(batch, b.queue[:n])
	b.queue = b.queue[n:]
	b.mu.Unlock()

	for _, e := range batch {
		b.dispatch(e)
	}
	return n
}

// Flush synchronously delivers every queued event. It must not be called
// from inside a handler.
func (b *Bus) Flush() {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()
	for b.dispatchBatch() > 0 {
	}
}

func (b *Bus) dispatch(e domain.Event) {
	b.mu.Lock()
	subs := make([]*subscription, 0, len(b.typed[e.Type])+len(b.allSubs))
	subs = append(subs, b.typed[e.Type]...)
	subs = append(subs, b.allSubs...)
	b.mu.Unlock()

	for _, sub := range subs {
		if !sub.active.Load() {
			continue
		}
		b.invoke(sub, e)
	}
}

func (b *Bus) invoke(sub *subscription, e domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"event", string(e.Type),
				"subscription", sub.id,
				"panic", r,
			)
		}
	}()
	sub.handler(e)
}

// Subscribe registers a handler for a specific event type.
// Returns an unsubscribe function.
func (b *Bus) Subscribe(eventType domain.EventType, handler domain.EventHandler) func() {
	sub := b.newSubscription(handler)

	b.mu.Lock()
	b.typed[eventType] = append(b.typed[eventType], sub)
	b.mu.Unlock()

	return func() {
		sub.active.Store(false)
		b.mu.Lock()
		defer b.mu.Unlock()
		b.typed[eventType] = removeSub(b.typed[eventType], sub.id)
	}
}

// SubscribeAll registers a handler that receives every event.
// Returns an unsubscribe function.
func (b *Bus) SubscribeAll(handler domain.EventHandler) func() {
	sub := b.newSubscription(handler)

	b.mu.Lock()
	b.allSubs = append(b.allSubs, sub)
	b.mu.Unlock()

	return func() {
		sub.active.Store(false)
		b.mu.Lock()
		defer b.mu.Unlock()
		b.allSubs = removeSub(b.allSubs, sub.id)
	}
}

func (b *Bus) newSubscription(h domain.EventHandler) *subscription {
	sub := &subscription{id: b.nextID.Add(1), handler: h}
	sub.active.Store(true)
	return sub
}

// removeSub returns subs without id. It allocates a new slice so snapshots
// taken by an in-progress dispatch stay intact.
func removeSub(subs []*subscription, id uint64) []*subscription {
	out := make([]*subscription, 0, len(subs))
	for _, s := range subs {
		if s.id != id {
			out = append(out, s)
		}
	}
	return out
}

// Snapshot returns the most recent events, oldest first.
func (b *Bus) Snapshot() []domain.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshot.items()
}

// Stats reports queue depth, snapshot length and events dropped from the snapshot.
func (b *Bus) Stats() (queued, retained int, dropped uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue), b.snapshot.len(), b.snapshot.dropped()
}

// Close delivers pending events and rejects further emissions.
// Close is idempotent.
func (b *Bus) Close() {
	if b.closed.Swap(true) {
		return
	}
	b.Flush()
}
