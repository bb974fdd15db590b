package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sweeney/fan-controller/internal/logic"
)

func testState() StateEvent {
	return StateEvent{
		Timestamp: time.Date(2026, 2, 2, 22, 18, 12, 0, time.UTC),
		Fan: logic.ChannelState{
			ID:          "intake",
			Label:       "Intake",
			DutyPercent: 50,
			RPM:         2295,
			Samples:     4,
			Bounces:     2,
		},
	}
}

func TestTopics(t *testing.T) {
	topics := Topics{Prefix: "energy/fans"}

	tests := []struct {
		got, want string
	}{
		{topics.System(), "energy/fans/system"},
		{topics.State("intake"), "energy/fans/intake/state"},
		{topics.Set("exhaust"), "energy/fans/exhaust/set"},
		{topics.SetFilter(), "energy/fans/+/set"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}

func TestTopicsChannel(t *testing.T) {
	topics := Topics{Prefix: "energy/fans"}

	tests := []struct {
		topic string
		want  string
		ok    bool
	}{
		{"energy/fans/intake/set", "intake", true},
		{"energy/fans/exhaust/set", "exhaust", true},
		{"energy/fans/intake/state", "", false},
		{"energy/fans//set", "", false},
		{"energy/fans/a/b/set", "", false},
		{"other/fans/intake/set", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			got, ok := topics.Channel(tt.topic)
			if got != tt.want || ok != tt.ok {
				t.Errorf("Channel(%q) = %q, %v; want %q, %v", tt.topic, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestFormatStatePayloadExactJSON(t *testing.T) {
	payload, err := FormatStatePayload(testState())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"fan":{"timestamp":"2026-02-02T22:18:12Z","id":"intake","label":"Intake","speed":50,"rpm":2295,"bounces":2}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestFormatStatePayloadStretched(t *testing.T) {
	event := testState()
	event.Stretched = true

	payload, err := FormatStatePayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed StatePayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if !parsed.Fan.Stretched {
		t.Error("expected stretched=true")
	}
}

func TestFormatStatePayloadTimezoneConversion(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	event := testState()
	event.Timestamp = time.Date(2026, 2, 3, 0, 18, 12, 0, loc)

	payload, _ := FormatStatePayload(event)

	var parsed StatePayload
	json.Unmarshal(payload, &parsed)
	if parsed.Fan.Timestamp != "2026-02-02T22:18:12Z" {
		t.Errorf("timestamp not converted to UTC: %s", parsed.Fan.Timestamp)
	}
}

func TestFormatSystemPayloadExactJSON(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC),
		Event:     "SHUTDOWN",
		Reason:    "SIGTERM",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"system":{"timestamp":"2026-02-10T08:30:00Z","event":"SHUTDOWN","reason":"SIGTERM"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestWillPayloadFormat(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC),
		Event:     "OFFLINE",
		Reason:    "MQTT_DISCONNECT",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"system":{"timestamp":"2026-02-10T08:30:00Z","event":"OFFLINE","reason":"MQTT_DISCONNECT"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestFormatSystemPayloadReconnected(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 10, 14, 30, 0, 0, time.UTC),
		Event:     "RECONNECTED",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"system":{"timestamp":"2026-02-10T14:30:00Z","event":"RECONNECTED"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestFormatSystemPayloadRaw(t *testing.T) {
	raw := []byte(`{"status":{"event":"STARTUP"}}`)
	payload, err := FormatSystemPayload(SystemEvent{Event: "STARTUP", RawPayload: raw})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(payload) != string(raw) {
		t.Errorf("raw payload not passed through: %s", payload)
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		payload string
		want    int
		wantErr bool
	}{
		{"55", 55, false},
		{" 100\n", 100, false},
		{"-5", -5, false},
		{`{"speed":40}`, 40, false},
		{`{"speed":0}`, 0, false},
		{`{"fan":"intake"}`, 0, true},
		{`{"speed":"fast"}`, 0, true},
		{"fast", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.payload, func(t *testing.T) {
			got, err := ParseCommand([]byte(tt.payload))
			if tt.wantErr {
				if !errors.Is(err, ErrBadCommand) {
					t.Errorf("expected ErrBadCommand, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFakePublisher(t *testing.T) {
	f := NewFakePublisher()

	if err := f.PublishState(testState()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.States) != 1 || len(f.StatePayloads) != 1 {
		t.Fatalf("expected 1 state, got %d/%d", len(f.States), len(f.StatePayloads))
	}
	if f.States[0].Fan.RPM != 2295 {
		t.Errorf("RPM: got %d", f.States[0].Fan.RPM)
	}
}

func TestFakePublisherError(t *testing.T) {
	f := NewFakePublisher()
	f.PublishStateError = errors.New("broker down")
	f.PublishSystemError = errors.New("broker down")

	if err := f.PublishState(testState()); err == nil {
		t.Error("expected state error")
	}
	if err := f.PublishSystem(SystemEvent{Event: "HEARTBEAT"}); err == nil {
		t.Error("expected system error")
	}
	if len(f.States) != 0 || len(f.SystemEvents) != 0 {
		t.Error("failed publishes must not be recorded")
	}
}

func TestFakePublisherRecordsRetainedFlag(t *testing.T) {
	f := NewFakePublisher()

	f.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: "STARTUP", Retained: true})
	f.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: "HEARTBEAT"})

	if names := f.SystemEventNames(); len(names) != 2 || names[0] != "STARTUP" || names[1] != "HEARTBEAT" {
		t.Fatalf("unexpected events: %v", names)
	}
	if !f.SystemEvents[0].Retained {
		t.Error("first event should have Retained=true")
	}
	if f.SystemEvents[1].Retained {
		t.Error("second event should have Retained=false")
	}
}

func TestFakePublisherDeliver(t *testing.T) {
	f := NewFakePublisher()

	if f.Deliver("energy/fans/intake/set", []byte("30")) {
		t.Error("Deliver without handler should report false")
	}

	var gotID string
	var gotPercent int
	f.OnCommand = func(id string, percent int) {
		gotID, gotPercent = id, percent
	}

	if !f.Deliver("energy/fans/exhaust/set", []byte(`{"speed":75}`)) {
		t.Fatal("expected command to be delivered")
	}
	if gotID != "exhaust" || gotPercent != 75 {
		t.Errorf("got %q %d", gotID, gotPercent)
	}

	if f.Deliver("energy/fans/exhaust/set", []byte("loud")) {
		t.Error("malformed payload should not be delivered")
	}
	if f.Deliver("energy/fans/exhaust/state", []byte("10")) {
		t.Error("state topic should not be delivered")
	}
}

func TestFakePublisherReset(t *testing.T) {
	f := NewFakePublisher()
	f.PublishState(testState())
	f.PublishSystem(SystemEvent{Event: "STARTUP"})
	f.Connected = true
	f.Close()

	f.Reset()

	if f.States != nil || f.SystemEvents != nil || f.Closed || f.Connected {
		t.Errorf("Reset left state behind: %+v", f)
	}
	if err := f.PublishState(testState()); err != nil {
		t.Fatalf("publisher not reusable after reset: %v", err)
	}
}

func TestClientIDUnique(t *testing.T) {
	a, b := ClientID(), ClientID()
	if a == b {
		t.Errorf("client ids should differ: %s", a)
	}
	if len(a) != len("fan-controller-")+8 {
		t.Errorf("unexpected client id %q", a)
	}
}
