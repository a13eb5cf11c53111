package models

import "time"

// EventType classifies journal entries.
type EventType string

const (
	EventConnection EventType = "connection"
	EventCommand    EventType = "command"
	EventStatus     EventType = "status"
	EventError      EventType = "error"
)

// EventSource tells where an observed activity originated.
type EventSource string

const (
	SourceWeb      EventSource = "web"
	SourcePhysical EventSource = "physical"
	SourceSystem   EventSource = "system"
)

// Event is a single journal entry. It is never modified after being appended.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   any         `json:"payload,omitempty"`
	Source    EventSource `json:"source"`
}

// Snapshot is what observers of the engine receive.
type Snapshot struct {
	Status      DeviceStatus      `json:"status"`
	Connection  ConnectionState   `json:"connection"`
	Stats       StatsSnapshot     `json:"stats"`
	Loading     LoadingState      `json:"loading"`
	Events      []Event           `json:"events"`
	AutoRefresh AutoRefreshConfig `json:"auto_refresh"`
}
