package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/fan-controller/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Fans          []FanJSON    `json:"fans"`
	Ready         bool         `json:"ready"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// FanJSON is the JSON representation of one fan.
type FanJSON struct {
	ID      string `json:"id"`
	Label   string `json:"label,omitempty"`
	Speed   int    `json:"speed"`
	RPM     uint32 `json:"rpm"`
	Samples uint64 `json:"samples"`
	Bounces uint64 `json:"bounces"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	LoopMs            int64               `json:"loop_ms"`
	HeartbeatMs       int64               `json:"heartbeat_ms"`
	Broker            string              `json:"broker"`
	MQTTPrefix        string              `json:"mqtt_prefix,omitempty"`
	HTTPPort          string              `json:"http_port"`
	WSBroker          string              `json:"ws_broker,omitempty"`
	PWMDriver         string              `json:"pwm_driver"`
	PWMFrequencyHz    uint32              `json:"pwm_frequency_hz"`
	PWMResolutionBits uint                `json:"pwm_resolution_bits"`
	TachSource        string              `json:"tach_source"`
	Channels          []ChannelConfigJSON `json:"channels"`
}

// ChannelConfigJSON is the JSON representation of a fan's calibration.
type ChannelConfigJSON struct {
	ID                  string  `json:"id"`
	PulsesPerRevolution float64 `json:"pulses_per_revolution"`
	DebounceUs          int64   `json:"debounce_us"`
	WindowMs            int64   `json:"window_ms"`
}

// LegacyJSON is the flat status document served on /status. The fan_*
// fields mirror the first fan.
type LegacyJSON struct {
	Fan1Speed   int    `json:"fan1_speed"`
	Fan1RPM     uint32 `json:"fan1_rpm"`
	Fan2Speed   int    `json:"fan2_speed"`
	Fan2RPM     uint32 `json:"fan2_rpm"`
	FanSpeed    int    `json:"fan_speed"`
	FanRPM      uint32 `json:"fan_rpm"`
	Uptime      int64  `json:"uptime"`
	IPAddress   string `json:"ip_address,omitempty"`
	WifiNetwork string `json:"wifi_network,omitempty"`
}

// NewFanJSON converts a channel state.
func NewFanJSON(f logic.ChannelState) FanJSON {
	return FanJSON{
		ID:      f.ID,
		Label:   f.Label,
		Speed:   f.DutyPercent,
		RPM:     f.RPM,
		Samples: f.Samples,
		Bounces: f.Bounces,
	}
}

func buildInner(snap Snapshot) StatusInner {
	fans := make([]FanJSON, 0, len(snap.Fans))
	for _, f := range snap.Fans {
		fans = append(fans, NewFanJSON(f))
	}

	channels := make([]ChannelConfigJSON, 0, len(snap.Config.Channels))
	for _, c := range snap.Config.Channels {
		channels = append(channels, ChannelConfigJSON{
			ID:                  c.ID,
			PulsesPerRevolution: c.PulsesPerRevolution,
			DebounceUs:          c.Debounce.Microseconds(),
			WindowMs:            c.Window.Milliseconds(),
		})
	}

	return StatusInner{
		Fans:          fans,
		Ready:         snap.Ready(),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			LoopMs:            snap.Config.LoopMs,
			HeartbeatMs:       snap.Config.HeartbeatMs,
			Broker:            snap.Config.Broker,
			MQTTPrefix:        snap.Config.MQTTPrefix,
			HTTPPort:          snap.Config.HTTPPort,
			WSBroker:          snap.Config.WSBroker,
			PWMDriver:         snap.Config.PWMDriver,
			PWMFrequencyHz:    snap.Config.PWMFrequencyHz,
			PWMResolutionBits: snap.Config.PWMResolutionBits,
			TachSource:        snap.Config.TachSource,
			Channels:          channels,
		},
	}
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}

// FormatLegacyJSON returns the flat /status document. Fans beyond the
// second are only visible through FormatJSON.
func FormatLegacyJSON(snap Snapshot) []byte {
	var doc LegacyJSON
	if len(snap.Fans) > 0 {
		doc.Fan1Speed, doc.Fan1RPM = snap.Fans[0].DutyPercent, snap.Fans[0].RPM
		doc.FanSpeed, doc.FanRPM = doc.Fan1Speed, doc.Fan1RPM
	}
	if len(snap.Fans) > 1 {
		doc.Fan2Speed, doc.Fan2RPM = snap.Fans[1].DutyPercent, snap.Fans[1].RPM
	}
	doc.Uptime = int64(snap.Uptime().Seconds())
	if snap.Network != nil {
		doc.IPAddress = snap.Network.IP
		doc.WifiNetwork = snap.Network.SSID
	}

	data, _ := json.Marshal(doc)
	return data
}
