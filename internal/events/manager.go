package events

import (
	"github.com/rs/zerolog"
)

// Manager emits events to the bus and logs them
type Manager struct {
	bus *Bus
	log zerolog.Logger
}

// NewManager creates a new event manager
func NewManager(bus *Bus, log zerolog.Logger) *Manager {
	return &Manager{
		bus: bus,
		log: log.With().Str("service", "events").Logger(),
	}
}

// Bus returns the underlying bus for subscribers
func (m *Manager) Bus() *Bus {
	return m.bus
}

// Emit publishes typed event data on behalf of module
func (m *Manager) Emit(module string, data EventData) {
	if m == nil || data == nil {
		return
	}
	m.bus.Emit(data.EventType(), module, toMap(data))
	m.log.Info().
		Str("event_type", string(data.EventType())).
		Str("module", module).
		Interface("data", data).
		Msg("Event emitted")
}

// EmitError emits an error event
func (m *Manager) EmitError(module string, err error, context map[string]interface{}) {
	if m == nil || err == nil {
		return
	}
	m.Emit(module, &ErrorEventData{Error: err.Error(), Context: context})
}
