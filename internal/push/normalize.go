package push

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"device_sync/internal/models"
	"device_sync/internal/normalize"
	"device_sync/internal/notify"
)

var (
	ErrMalformed       = errors.New("malformed push payload")
	ErrUnknownCategory = errors.New("unknown push category")
)

// Action is what one push event asks the engine to do. Any field may be empty.
type Action struct {
	Notice  *notify.Notification
	Patch   *models.StatusPatch
	Event   *models.Event
	Refresh bool
}

// Normalize interprets one event. Payloads that are not JSON objects are rejected.
func Normalize(category string, raw json.RawMessage) (Action, error) {
	m, ok := normalize.Object(raw)
	if !ok {
		return Action{}, fmt.Errorf("%w: %s", ErrMalformed, category)
	}
	switch category {
	case CategoryCommandResult:
		return commandResult(m), nil
	case CategorySensorUpdate:
		return Action{Event: physicalEvent(m)}, nil
	case CategoryRelayUpdate:
		return Action{Event: physicalEvent(m), Refresh: true}, nil
	case CategoryConnectionUpdate:
		return connectionUpdate(m), nil
	}
	return Action{}, fmt.Errorf("%w: %q", ErrUnknownCategory, category)
}

func commandResult(m map[string]any) Action {
	if !normalize.Bool(m["exitoso"]) {
		reason := normalize.String(m["error"])
		if reason == "" {
			reason = "unknown error"
		}
		return Action{Notice: notice(notify.LevelError, "Device command failed: "+reason)}
	}

	led, found := models.LedUnknown, false
	if inner, ok := m["resultado"].(map[string]any); ok {
		led, found = normalize.LedField(inner)
	} else if s, ok := m["resultado"].(string); ok {
		if l := normalize.Led(s); l != models.LedUnknown {
			led, found = l, true
		}
	}
	if !found {
		led, found = normalize.LedField(m)
	}
	if !found {
		return Action{Refresh: true}
	}

	msg := "LED " + string(led)
	if id := normalize.String(m["idComando"]); id != "" {
		msg += " (command " + id + ")"
	}
	return Action{
		Patch:   &models.StatusPatch{LedState: &led, Message: msg},
		Refresh: true,
	}
}

func connectionUpdate(m map[string]any) Action {
	switch strings.ToLower(strings.TrimSpace(normalize.String(m["estado"]))) {
	case "desconectado":
		return Action{
			Notice:  notice(notify.LevelWarning, "Device connection lost"),
			Patch:   connectedPatch(false, "device disconnected"),
			Refresh: true,
		}
	case "conectado":
		return Action{
			Notice:  notice(notify.LevelInfo, "Device connection restored"),
			Patch:   connectedPatch(true, "device connected"),
			Refresh: true,
		}
	}
	return Action{Refresh: true}
}

func physicalEvent(m map[string]any) *models.Event {
	return &models.Event{Type: models.EventStatus, Source: models.SourcePhysical, Payload: m}
}

func connectedPatch(connected bool, msg string) *models.StatusPatch {
	return &models.StatusPatch{Connected: &connected, Message: msg}
}

func notice(level notify.Level, msg string) *notify.Notification {
	return &notify.Notification{Level: level, Message: msg}
}
