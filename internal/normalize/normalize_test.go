package normalize

import (
	"encoding/json"
	"math"
	"testing"

	"device_sync/internal/models"
)

func obj(t *testing.T, s string) map[string]any {
	t.Helper()
	m, ok := Object(json.RawMessage(s))
	if !ok {
		t.Fatalf("not an object: %s", s)
	}
	return m
}

func TestStatus_FieldAliases(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want models.DeviceStatus
	}{
		{
			name: "canonical",
			in:   `{"connected":true,"port":"COM3","ledState":"ON","recentMessages":["a","b"]}`,
			want: models.DeviceStatus{Connected: true, Port: "COM3", LedState: models.LedOn, RecentMessages: []string{"a", "b"}},
		},
		{
			name: "spanish_aliases",
			in:   `{"conectado":"true","puerto":"/dev/ttyACM0","estadoLed":"apagado","mensajes":[{"mensaje":"hola"}]}`,
			want: models.DeviceStatus{Connected: true, Port: "/dev/ttyACM0", LedState: models.LedOff, RecentMessages: []string{"hola"}},
		},
		{
			name: "nested_status",
			in:   `{"status":{"isConnected":1,"portName":"COM9","led":true}}`,
			want: models.DeviceStatus{Connected: true, Port: "COM9", LedState: models.LedOn, RecentMessages: []string{}},
		},
		{
			name: "disconnected_forces_unknown",
			in:   `{"connected":false,"port":"COM3","ledState":"ON"}`,
			want: models.DeviceStatus{Connected: false, Port: "COM3", LedState: models.LedUnknown, RecentMessages: []string{}},
		},
		{
			name: "empty",
			in:   `{}`,
			want: models.DefaultStatus(),
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Status(obj(t, tc.in))
			if got.Connected != tc.want.Connected || got.Port != tc.want.Port || got.LedState != tc.want.LedState {
				t.Fatalf("got %+v, want %+v", got, tc.want)
			}
			if len(got.RecentMessages) != len(tc.want.RecentMessages) {
				t.Fatalf("messages: got %v, want %v", got.RecentMessages, tc.want.RecentMessages)
			}
			for i := range got.RecentMessages {
				if got.RecentMessages[i] != tc.want.RecentMessages[i] {
					t.Fatalf("messages: got %v, want %v", got.RecentMessages, tc.want.RecentMessages)
				}
			}
		})
	}
}

func TestStats_DefaultsAndEfficiency(t *testing.T) {
	got := Stats(obj(t, `{"totalCommands":12,"ledOnCommands":"5","totalOnTime":3600,"avgSessionTime":43200}`))
	want := models.StatsSnapshot{TotalCommands: 12, OnCommands: 5, TotalDurationSec: 3600, AvgDurationSec: 43200, EfficiencyPct: 50}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}

	if got := Stats(obj(t, `{}`)); got != (models.StatsSnapshot{}) {
		t.Fatalf("expected zero stats, got %+v", got)
	}

	got = Stats(obj(t, `{"stats":{"avgSessionTime":999999,"totalCommands":-4}}`))
	if got.EfficiencyPct != 100 || got.TotalCommands != 0 {
		t.Fatalf("clamping failed: %+v", got)
	}

	got = Stats(obj(t, `{"totalCommands":1e300,"onCommands":1e19}`))
	if got.TotalCommands != math.MaxInt || got.OnCommands != math.MaxInt {
		t.Fatalf("huge counters must saturate, got %+v", got)
	}
}

func TestLed(t *testing.T) {
	cases := map[any]models.LedState{
		"ON":          models.LedOn,
		" encendido ": models.LedOn,
		"off":         models.LedOff,
		true:          models.LedOn,
		false:         models.LedOff,
		float64(1):    models.LedOn,
		float64(0):    models.LedOff,
		float64(7):    models.LedUnknown,
		"blinking":    models.LedUnknown,
	}
	for in, want := range cases {
		if got := Led(in); got != want {
			t.Fatalf("Led(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestLedField(t *testing.T) {
	if led, ok := LedField(obj(t, `{"estado":"x","led":"off"}`)); !ok || led != models.LedOff {
		t.Fatalf("got %v %v", led, ok)
	}
	if _, ok := LedField(obj(t, `{"value":1}`)); ok {
		t.Fatalf("expected no led field")
	}
}
