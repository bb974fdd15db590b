package status

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/fan-controller/internal/logic"
)

func testFans() []logic.ChannelState {
	return []logic.ChannelState{
		{ID: "intake", Label: "Intake", DutyPercent: 50, RPM: 1200, Samples: 3, Bounces: 7},
		{ID: "exhaust", Label: "Exhaust", DutyPercent: 30, RPM: 800, Samples: 3},
	}
}

func testConfig() Config {
	return Config{
		LoopMs:            100,
		HeartbeatMs:       900000,
		Broker:            "tcp://localhost:1883",
		HTTPPort:          ":80",
		PWMDriver:         "sysfs",
		PWMFrequencyHz:    25000,
		PWMResolutionBits: 8,
		TachSource:        "gpio",
		Channels: []ChannelConfig{
			{ID: "intake", PulsesPerRevolution: 1.83, Debounce: 500 * time.Microsecond, Window: time.Second},
		},
	}
}

func TestNewTracker(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := NewTracker(start, testConfig())

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.Config.LoopMs != 100 {
		t.Errorf("Config.LoopMs: got %d, want 100", snap.Config.LoopMs)
	}
	if snap.Config.HTTPPort != ":80" {
		t.Errorf("Config.HTTPPort: got %q, want %q", snap.Config.HTTPPort, ":80")
	}
	if snap.Ready() {
		t.Error("expected Ready=false before any fan state")
	}
	if snap.MQTTConnected {
		t.Error("expected MQTTConnected=false initially")
	}
}

func TestUpdateAndSnapshot(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	tr.Update(testFans())

	snap := tr.Snapshot()
	if len(snap.Fans) != 2 {
		t.Fatalf("Fans: got %d, want 2", len(snap.Fans))
	}
	if snap.Fans[0].RPM != 1200 {
		t.Errorf("intake RPM: got %d, want 1200", snap.Fans[0].RPM)
	}
	if !snap.Ready() {
		t.Error("expected Ready=true")
	}

	f, ok := snap.Fan("exhaust")
	if !ok || f.DutyPercent != 30 {
		t.Errorf("Fan(exhaust): got %+v, %v", f, ok)
	}
	if _, ok := snap.Fan("rear"); ok {
		t.Error("Fan(rear) should not exist")
	}
}

func TestReadyNeedsEveryFanSampled(t *testing.T) {
	fans := testFans()
	fans[1].Samples = 0

	snap := Snapshot{Fans: fans}
	if snap.Ready() {
		t.Error("expected Ready=false while a fan has no sample")
	}
}

func TestSetMQTTConnected(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	tr.SetMQTTConnected(true)
	if !tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=true")
	}

	tr.SetMQTTConnected(false)
	if tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=false")
	}
}

func TestSetNetwork(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	if tr.Snapshot().Network != nil {
		t.Error("expected nil Network initially")
	}

	net := &NetworkInfo{Type: "wifi", IP: "192.168.1.42", Status: "connected"}
	tr.SetNetwork(net)

	snap := tr.Snapshot()
	if snap.Network == nil {
		t.Fatal("expected non-nil Network")
	}
	if snap.Network.IP != "192.168.1.42" {
		t.Errorf("Network.IP: got %q, want %q", snap.Network.IP, "192.168.1.42")
	}
}

func TestSnapshotUptime(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		StartTime: start,
		Now:       start.Add(15 * time.Minute),
	}

	if snap.Uptime() != 15*time.Minute {
		t.Errorf("Uptime: got %v, want 15m", snap.Uptime())
	}
}

func TestSnapshotNowIsSet(t *testing.T) {
	tr := NewTracker(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), Config{})

	before := time.Now()
	snap := tr.Snapshot()
	after := time.Now()

	if snap.Now.Before(before) || snap.Now.After(after) {
		t.Errorf("Now (%v) not between %v and %v", snap.Now, before, after)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	fans := testFans()
	tr.Update(fans)

	// Mutating the caller's slice must not leak into the tracker.
	fans[0].RPM = 9999
	snap1 := tr.Snapshot()
	if snap1.Fans[0].RPM != 1200 {
		t.Errorf("tracker aliased caller slice: RPM %d", snap1.Fans[0].RPM)
	}

	next := testFans()
	next[0].RPM = 1300
	tr.Update(next)

	if snap1.Fans[0].RPM != 1200 {
		t.Error("snapshot should be a copy; RPM was modified")
	}
}

func testSnapshot() Snapshot {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return Snapshot{
		Fans:          testFans(),
		StartTime:     start,
		Now:           start.Add(15 * time.Minute),
		MQTTConnected: true,
		Config:        testConfig(),
	}
}

func TestFormatJSON(t *testing.T) {
	data := FormatJSON(testSnapshot())

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if len(parsed.Status.Fans) != 2 {
		t.Fatalf("Fans: got %d, want 2", len(parsed.Status.Fans))
	}
	intake := parsed.Status.Fans[0]
	if intake.ID != "intake" || intake.Speed != 50 || intake.RPM != 1200 || intake.Bounces != 7 {
		t.Errorf("intake: got %+v", intake)
	}
	if !parsed.Status.Ready {
		t.Error("expected Ready=true")
	}
	if parsed.Status.UptimeSeconds != 900 {
		t.Errorf("UptimeSeconds: got %d, want 900", parsed.Status.UptimeSeconds)
	}
	if parsed.Status.MQTT.Connected != true {
		t.Error("expected MQTT.Connected=true")
	}
	if parsed.Status.Config.PWMFrequencyHz != 25000 {
		t.Errorf("Config.PWMFrequencyHz: got %d", parsed.Status.Config.PWMFrequencyHz)
	}
	if len(parsed.Status.Config.Channels) != 1 || parsed.Status.Config.Channels[0].DebounceUs != 500 {
		t.Errorf("Config.Channels: got %+v", parsed.Status.Config.Channels)
	}
	// Event and Reason should be omitted
	if parsed.Status.Event != "" {
		t.Errorf("expected empty Event for web format, got %q", parsed.Status.Event)
	}
	if parsed.Status.Reason != "" {
		t.Errorf("expected empty Reason for web format, got %q", parsed.Status.Reason)
	}
}

func TestFormatJSONNoFans(t *testing.T) {
	snap := Snapshot{
		StartTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Now:       time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC),
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(FormatJSON(snap), &raw); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	status := raw["status"].(map[string]interface{})
	fans, ok := status["fans"].([]interface{})
	if !ok || len(fans) != 0 {
		t.Errorf("fans: got %v, want empty array", status["fans"])
	}
	if status["ready"] != false {
		t.Error("expected ready=false")
	}
}

func TestFormatStatusEvent(t *testing.T) {
	data := FormatStatusEvent(testSnapshot(), "HEARTBEAT", "")

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.Status.Event != "HEARTBEAT" {
		t.Errorf("Event: got %q, want HEARTBEAT", parsed.Status.Event)
	}
	if parsed.Status.Reason != "" {
		t.Errorf("Reason: got %q, want empty", parsed.Status.Reason)
	}
	if parsed.Status.Fans[1].RPM != 800 {
		t.Errorf("exhaust RPM: got %d, want 800", parsed.Status.Fans[1].RPM)
	}
	if parsed.Status.UptimeSeconds != 900 {
		t.Errorf("UptimeSeconds: got %d, want 900", parsed.Status.UptimeSeconds)
	}
}

func TestFormatStatusEventShutdown(t *testing.T) {
	data := FormatStatusEvent(testSnapshot(), "SHUTDOWN", "SIGTERM")

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.Status.Event != "SHUTDOWN" {
		t.Errorf("Event: got %q, want SHUTDOWN", parsed.Status.Event)
	}
	if parsed.Status.Reason != "SIGTERM" {
		t.Errorf("Reason: got %q, want SIGTERM", parsed.Status.Reason)
	}
}

func TestFormatStatusEventOmitsReasonWhenEmpty(t *testing.T) {
	snap := Snapshot{
		StartTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Now:       time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC),
	}

	data := FormatStatusEvent(snap, "STARTUP", "")

	var raw map[string]interface{}
	json.Unmarshal(data, &raw)
	status := raw["status"].(map[string]interface{})
	if _, exists := status["reason"]; exists {
		t.Error("reason should be omitted when empty")
	}
	if status["event"] != "STARTUP" {
		t.Errorf("event: got %v, want STARTUP", status["event"])
	}
}

func TestFormatJSONWithNetwork(t *testing.T) {
	snap := testSnapshot()
	snap.Network = &NetworkInfo{Type: "wifi", IP: "192.168.1.42", Status: "connected", SSID: "MyNet"}

	var parsed StatusJSON
	json.Unmarshal(FormatJSON(snap), &parsed)

	if parsed.Status.Network == nil {
		t.Fatal("expected Network in JSON")
	}
	if parsed.Status.Network.IP != "192.168.1.42" {
		t.Errorf("Network.IP: got %q, want 192.168.1.42", parsed.Status.Network.IP)
	}
	if parsed.Status.Network.SSID != "MyNet" {
		t.Errorf("Network.SSID: got %q, want MyNet", parsed.Status.Network.SSID)
	}
}

func TestFormatLegacyJSON(t *testing.T) {
	snap := testSnapshot()
	snap.Network = &NetworkInfo{IP: "192.168.1.42", SSID: "MyNet"}

	got := string(FormatLegacyJSON(snap))
	want := `{"fan1_speed":50,"fan1_rpm":1200,"fan2_speed":30,"fan2_rpm":800,"fan_speed":50,"fan_rpm":1200,"uptime":900,"ip_address":"192.168.1.42","wifi_network":"MyNet"}`
	if got != want {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", got, want)
	}
}

func TestFormatLegacyJSONSingleFan(t *testing.T) {
	snap := testSnapshot()
	snap.Fans = snap.Fans[:1]

	var parsed LegacyJSON
	if err := json.Unmarshal(FormatLegacyJSON(snap), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Fan2Speed != 0 || parsed.Fan2RPM != 0 {
		t.Errorf("fan2 should be zero, got %+v", parsed)
	}
	if parsed.FanRPM != 1200 {
		t.Errorf("fan_rpm: got %d, want 1200", parsed.FanRPM)
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	var wg sync.WaitGroup

	// Writer
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			fans := testFans()
			fans[0].RPM = uint32(i)
			tr.Update(fans)
			tr.SetMQTTConnected(i%2 == 0)
			tr.SetNetwork(&NetworkInfo{IP: "1.2.3.4"})
		}
	}()

	// Reader
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			snap := tr.Snapshot()
			_ = snap.Uptime()
			_ = FormatJSON(snap)
		}
	}()

	wg.Wait()
}
