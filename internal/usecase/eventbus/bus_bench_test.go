package eventbus

import (
	"encoding/json"
	"testing"

	"lumen-agent/internal/domain"
)

func unmarshal(e domain.Event, v any) error {
	return json.Unmarshal(e.Payload, v)
}

// BenchmarkEmitFlush measures the batched hot path: queueing text deltas
// and draining them to a subscriber.
func BenchmarkEmitFlush(b *testing.B) {
	bus := New(Options{Scheduler: &manualScheduler{}})
	bus.SubscribeAll(func(domain.Event) {})
	event := NewEvent(domain.EventTextDelta, "bench-turn", "", domain.DeltaPayload{Content: "token"})

	b.ReportAllocs()
	for b.Loop() {
		bus.Emit(event)
		bus.Flush()
	}
}

// BenchmarkEmitImmediate measures synchronous delivery to several subscribers.
func BenchmarkEmitImmediate(b *testing.B) {
	bus := New(Options{Scheduler: &manualScheduler{}})
	for range 5 {
		bus.Subscribe(domain.EventStatusChanged, func(domain.Event) {})
	}
	event := NewEvent(domain.EventStatusChanged, "", "", domain.StatusPayload{Status: domain.StatusThinking})

	b.ReportAllocs()
	for b.Loop() {
		bus.EmitImmediate(event)
	}
}
