// Package push listens to the backend's asynchronous device events and turns
// them into status patches, refresh triggers, journal entries and notices.
package push

import (
	"encoding/json"

	"device_sync/internal/models"
)

// Event categories published by the backend.
const (
	CategoryCommandResult    = "hardware:resultado_comando"
	CategorySensorUpdate     = "hardware:actualizacion_sensor"
	CategoryRelayUpdate      = "hardware:actualizacion_rele"
	CategoryConnectionUpdate = "dispositivo:actualizacion_conexion"
)

// Categories lists every category the listener subscribes to.
var Categories = []string{
	CategoryCommandResult,
	CategorySensorUpdate,
	CategoryRelayUpdate,
	CategoryConnectionUpdate,
}

// Handler receives the raw data of one event.
type Handler func(data json.RawMessage)

// Channel is a push transport. Handlers and the connection hook may be
// invoked from the channel's own goroutines, never while it holds a lock
// that Subscribe or Unsubscribe would take.
type Channel interface {
	Open() error
	Close()
	Connected() bool
	Subscribe(category string, h Handler) error
	Unsubscribe(category string) error
	OnConnectionChange(fn func(connected bool))
}

// Sink is where normalized events end up. The engine implements it.
type Sink interface {
	ApplyPushPatch(p models.StatusPatch)
	RequestRefresh()
	Record(ev models.Event)
}
