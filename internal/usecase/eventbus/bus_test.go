package eventbus

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lumen-agent/internal/domain"
)

// manualScheduler queues scheduled ticks until the test runs them.
type manualScheduler struct {
	mu      sync.Mutex
	pending []func()
}

func (s *manualScheduler) Schedule(fn func()) {
	s.mu.Lock()
	s.pending = append(s.pending, fn)
	s.mu.Unlock()
}

// Tick runs the ticks scheduled so far and reports how many ran.
func (s *manualScheduler) Tick() int {
	s.mu.Lock()
	fns := s.pending
	s.pending = nil
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
	return len(fns)
}

func newTestBus(opts Options) (*Bus, *manualScheduler) {
	sched := &manualScheduler{}
	opts.Scheduler = sched
	return New(opts), sched
}

type recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recorder) handle(e domain.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestEmitBatchesPerTick(t *testing.T) {
	bus, sched := newTestBus(Options{BatchSize: 10})
	rec := &recorder{}
	bus.SubscribeAll(rec.handle)

	for i := range 25 {
		bus.Emit(NewEvent(domain.EventTextDelta, "turn", "", domain.DeltaPayload{Content: fmt.Sprint(i)}))
	}
	assert.Equal(t, 0, rec.count(), "nothing is delivered before the first tick")

	var rounds []int
	for sched.Tick() > 0 {
		rounds = append(rounds, rec.count())
	}
	assert.Equal(t, []int{10, 20, 25}, rounds)

	for i, e := range rec.events {
		var p domain.DeltaPayload
		require.NoError(t, unmarshal(e, &p))
		assert.Equal(t, fmt.Sprint(i), p.Content, "events must keep emission order")
	}
}

func TestEmitSchedulesOnlyOneTick(t *testing.T) {
	bus, sched := newTestBus(Options{})
	bus.Emit(domain.Event{Type: domain.EventStepProgress})
	bus.Emit(domain.Event{Type: domain.EventStepProgress})
	assert.Len(t, sched.pending, 1)
}

func TestEmitImmediateIsSynchronous(t *testing.T) {
	bus, sched := newTestBus(Options{})
	rec := &recorder{}
	bus.Subscribe(domain.EventStatusChanged, rec.handle)

	bus.EmitImmediate(NewEvent(domain.EventStatusChanged, "", "", domain.StatusPayload{Status: domain.StatusThinking}))

	assert.Equal(t, 1, rec.count())
	assert.Empty(t, sched.pending)
}

func TestSubscribeFiltersByType(t *testing.T) {
	bus, _ := newTestBus(Options{})
	tools := &recorder{}
	all := &recorder{}
	bus.Subscribe(domain.EventToolStarted, tools.handle)
	bus.SubscribeAll(all.handle)

	bus.EmitImmediate(domain.Event{Type: domain.EventToolStarted})
	bus.EmitImmediate(domain.Event{Type: domain.EventToolCompleted})

	assert.Equal(t, 1, tools.count())
	assert.Equal(t, 2, all.count())
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus, sched := newTestBus(Options{})
	typed := &recorder{}
	all := &recorder{}
	unsubTyped := bus.Subscribe(domain.EventTextDelta, typed.handle)
	unsubAll := bus.SubscribeAll(all.handle)

	// Queued before unsubscribing, delivered after: must still be dropped.
	bus.Emit(domain.Event{Type: domain.EventTextDelta})
	unsubTyped()
	unsubAll()
	bus.EmitImmediate(domain.Event{Type: domain.EventTextDelta})
	sched.Tick()
	bus.Flush()

	assert.Equal(t, 0, typed.count())
	assert.Equal(t, 0, all.count())

	// Calling unsubscribe twice is harmless.
	unsubTyped()
}

func TestUnsubscribeDuringDispatch(t *testing.T) {
	bus, _ := newTestBus(Options{})
	second := &recorder{}
	var unsubSecond func()
	bus.SubscribeAll(func(domain.Event) { unsubSecond() })
	unsubSecond = bus.SubscribeAll(second.handle)

	bus.EmitImmediate(domain.Event{Type: domain.EventPlanStarted})
	bus.EmitImmediate(domain.Event{Type: domain.EventPlanStarted})

	assert.Equal(t, 0, second.count())
}

func TestHandlerPanicDoesNotStopOthers(t *testing.T) {
	bus, sched := newTestBus(Options{})
	rec := &recorder{}
	bus.SubscribeAll(func(domain.Event) { panic("boom") })
	bus.SubscribeAll(rec.handle)

	bus.EmitImmediate(domain.Event{Type: domain.EventStepFailed})
	bus.Emit(domain.Event{Type: domain.EventStepFailed})
	sched.Tick()

	assert.Equal(t, 2, rec.count())
}

func TestSnapshotIsBounded(t *testing.T) {
	bus, _ := newTestBus(Options{SnapshotSize: 5})
	for i := range 8 {
		bus.Emit(NewEvent(domain.EventStepProgress, "", fmt.Sprint(i), nil))
	}
	bus.EmitImmediate(NewEvent(domain.EventStatusChanged, "", "immediate", nil))

	snap := bus.Snapshot()
	require.Len(t, snap, 5)
	var steps []string
	for _, e := range snap {
		steps = append(steps, e.StepID)
	}
	assert.Equal(t, []string{"4", "5", "6", "7", "immediate"}, steps)

	queued, retained, dropped := bus.Stats()
	assert.Equal(t, 8, queued)
	assert.Equal(t, 5, retained)
	assert.Equal(t, uint64(4), dropped)
}

func TestEmitStampsEvents(t *testing.T) {
	bus, _ := newTestBus(Options{})
	bus.EmitImmediate(domain.Event{Type: domain.EventPlanCompleted})
	bus.EmitImmediate(domain.Event{Type: domain.EventPlanCompleted, ID: "fixed"})

	snap := bus.Snapshot()
	require.Len(t, snap, 2)
	assert.NotEmpty(t, snap[0].ID)
	assert.False(t, snap[0].Timestamp.IsZero())
	assert.Equal(t, "fixed", snap[1].ID)
}

func TestCloseFlushesAndRejects(t *testing.T) {
	bus, _ := newTestBus(Options{BatchSize: 2})
	rec := &recorder{}
	bus.SubscribeAll(rec.handle)

	for range 5 {
		bus.Emit(domain.Event{Type: domain.EventTextDelta})
	}
	bus.Close()
	assert.Equal(t, 5, rec.count())

	bus.Emit(domain.Event{Type: domain.EventTextDelta})
	bus.EmitImmediate(domain.Event{Type: domain.EventTextDelta})
	bus.Close()
	assert.Equal(t, 5, rec.count())
}

func TestEmitFromHandler(t *testing.T) {
	bus, sched := newTestBus(Options{})
	rec := &recorder{}
	bus.Subscribe(domain.EventArtifactCreated, rec.handle)
	bus.Subscribe(domain.EventToolCompleted, func(domain.Event) {
		bus.Emit(domain.Event{Type: domain.EventArtifactCreated})
	})

	bus.Emit(domain.Event{Type: domain.EventToolCompleted})
	sched.Tick()
	assert.Equal(t, 0, rec.count())
	sched.Tick()
	assert.Equal(t, 1, rec.count())
}

func TestNewEventEncodesPayload(t *testing.T) {
	e := NewEvent(domain.EventToolCompleted, "t1", "s1", domain.ToolCompletedPayload{Tool: domain.ToolCalculate, Success: true, Output: "4"})
	assert.Equal(t, "t1", e.TurnID)
	assert.Equal(t, "s1", e.StepID)

	var p domain.ToolCompletedPayload
	require.NoError(t, unmarshal(e, &p))
	assert.Equal(t, "4", p.Output)

	assert.Nil(t, NewEvent(domain.EventPlanStarted, "", "", nil).Payload)
}
