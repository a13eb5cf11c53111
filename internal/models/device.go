package models

// LedState is the last known output state of the device LED.
type LedState string

const (
	LedOn      LedState = "ON"
	LedOff     LedState = "OFF"
	LedUnknown LedState = "UNKNOWN"
)

// ConnectionState tracks the device link as seen by the reconciler.
type ConnectionState string

const (
	ConnUnknown      ConnectionState = "UNKNOWN"
	ConnConnected    ConnectionState = "CONNECTED"
	ConnDisconnected ConnectionState = "DISCONNECTED"
)

// MaxRecentMessages caps DeviceStatus.RecentMessages.
const MaxRecentMessages = 20

// DeviceStatus is the canonical snapshot of the remote device.
type DeviceStatus struct {
	Connected      bool     `json:"connected"`
	Port           string   `json:"port"`
	LedState       LedState `json:"led_state"`       // ON | OFF | UNKNOWN
	RecentMessages []string `json:"recent_messages"` // most recent first
}

// DefaultStatus is the status the engine starts with.
func DefaultStatus() DeviceStatus {
	return DeviceStatus{
		Connected:      false,
		LedState:       LedUnknown,
		RecentMessages: []string{},
	}
}

// Clone returns a copy that shares no slices with s.
func (s DeviceStatus) Clone() DeviceStatus {
	out := s
	out.RecentMessages = append([]string(nil), s.RecentMessages...)
	if out.RecentMessages == nil {
		out.RecentMessages = []string{}
	}
	return out
}

// WithMessage returns a copy with msg prepended, trimmed to MaxRecentMessages.
func (s DeviceStatus) WithMessage(msg string) DeviceStatus {
	out := s.Clone()
	out.RecentMessages = append([]string{msg}, out.RecentMessages...)
	if len(out.RecentMessages) > MaxRecentMessages {
		out.RecentMessages = out.RecentMessages[:MaxRecentMessages]
	}
	return out
}

// StatusPatch is a partial update delivered by the push channel.
type StatusPatch struct {
	Connected *bool     `json:"connected,omitempty"`
	LedState  *LedState `json:"led_state,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// Empty reports whether the patch would change nothing.
func (p StatusPatch) Empty() bool {
	return p.Connected == nil && p.LedState == nil && p.Message == ""
}

// LoadingState holds advisory in-flight flags. Categories are independent.
type LoadingState struct {
	Connection bool `json:"connection"`
	Control    bool `json:"control"`
	Stats      bool `json:"stats"`
	Export     bool `json:"export"`
}
