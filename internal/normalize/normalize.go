// Package normalize is the single boundary between loose backend/push payloads
// and the engine's strict models. Nothing outside this package reads raw field
// aliases.
package normalize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"device_sync/internal/models"
)

// Field aliases seen across backend versions, in priority order.
var (
	connectedKeys = []string{"connected", "isConnected", "conectado"}
	portKeys      = []string{"port", "puerto", "portName"}
	ledKeys       = []string{"ledState", "led", "estadoLed", "state"}
	messageKeys   = []string{"recentMessages", "messages", "mensajes"}
	messageText   = []string{"message", "mensaje", "text"}

	totalCommandsKeys = []string{"totalCommands", "total_commands"}
	onCommandsKeys    = []string{"onCommands", "ledOnCommands"}
	totalDurationKeys = []string{"totalDuration", "totalOnTime"}
	avgSessionKeys    = []string{"avgSessionTime", "averageDuration"}
)

// Object decodes raw JSON into a generic object. Non-objects yield ok=false.
func Object(raw json.RawMessage) (map[string]any, bool) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil || m == nil {
		return nil, false
	}
	return m, true
}

// First returns the first present, non-null value among keys.
func First(m map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// Status maps a backend status object into DeviceStatus. A nested "status"
// object is unwrapped first. A disconnected device always reports LedUnknown.
func Status(m map[string]any) models.DeviceStatus {
	if inner, ok := m["status"].(map[string]any); ok {
		m = inner
	}
	st := models.DefaultStatus()
	if v, ok := First(m, connectedKeys...); ok {
		st.Connected = Bool(v)
	}
	if v, ok := First(m, portKeys...); ok {
		st.Port = String(v)
	}
	if v, ok := First(m, ledKeys...); ok {
		st.LedState = Led(v)
	}
	if v, ok := First(m, messageKeys...); ok {
		st.RecentMessages = Messages(v)
	}
	return Enforce(st)
}

// Enforce applies the disconnected-LED policy and message cap.
func Enforce(st models.DeviceStatus) models.DeviceStatus {
	st = st.Clone()
	if !st.Connected {
		st.LedState = models.LedUnknown
	}
	if st.LedState == "" {
		st.LedState = models.LedUnknown
	}
	if len(st.RecentMessages) > models.MaxRecentMessages {
		st.RecentMessages = st.RecentMessages[:models.MaxRecentMessages]
	}
	return st
}

// Stats maps raw backend counters into a StatsSnapshot. Missing or negative
// fields become 0.
func Stats(m map[string]any) models.StatsSnapshot {
	if inner, ok := m["stats"].(map[string]any); ok {
		m = inner
	}
	count := func(keys []string) float64 {
		v, ok := First(m, keys...)
		if !ok {
			return 0
		}
		f := Float(v)
		if f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0
		}
		return f
	}
	avg := count(avgSessionKeys)
	return models.StatsSnapshot{
		TotalCommands:    counter(count(totalCommandsKeys)),
		OnCommands:       counter(count(onCommandsKeys)),
		TotalDurationSec: count(totalDurationKeys),
		AvgDurationSec:   avg,
		EfficiencyPct:    models.EfficiencyPct(avg),
	}
}

// counter converts a non-negative float to int, saturating at math.MaxInt.
func counter(f float64) int {
	if f >= math.MaxInt {
		return math.MaxInt
	}
	return int(f)
}

// Led interprets the many spellings of an LED state.
func Led(v any) models.LedState {
	switch t := v.(type) {
	case bool:
		if t {
			return models.LedOn
		}
		return models.LedOff
	case float64:
		switch t {
		case 1:
			return models.LedOn
		case 0:
			return models.LedOff
		}
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "on", "encendido", "true", "1", "high":
			return models.LedOn
		case "off", "apagado", "false", "0", "low":
			return models.LedOff
		}
	}
	return models.LedUnknown
}

// LedField looks for an LED state inside a payload object.
func LedField(m map[string]any) (models.LedState, bool) {
	v, ok := First(m, ledKeys...)
	if !ok {
		return models.LedUnknown, false
	}
	led := Led(v)
	return led, led != models.LedUnknown
}

// Messages accepts a list of strings or of message objects.
func Messages(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		switch t := item.(type) {
		case string:
			out = append(out, t)
		case map[string]any:
			if s, ok := First(t, messageText...); ok {
				out = append(out, String(s))
			}
		}
	}
	return out
}

func Bool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		return err == nil && b
	}
	return false
}

func Float(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0
		}
		return f
	case bool:
		if t {
			return 1
		}
	}
	return 0
}

func String(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
