package usecase

import (
	"lumen-agent/internal/domain"
	"lumen-agent/internal/usecase/eventbus"
)

// publishEvent emits on the bus if it is configured. immediate events are
// reserved for transitions a UI must reflect without delay.
func publishEvent(bus domain.EventBus, immediate bool, eventType domain.EventType, turnID, stepID string, payload any) {
	if bus == nil {
		return
	}
	e := eventbus.NewEvent(eventType, turnID, stepID, payload)
	if immediate {
		bus.EmitImmediate(e)
		return
	}
	bus.Emit(e)
}
