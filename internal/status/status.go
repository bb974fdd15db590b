// Package status provides a thread-safe status tracker for the fan-controller daemon.
// It is read by HTTP handlers and the MQTT heartbeat.
package status

import (
	"slices"
	"sync"
	"time"

	"github.com/sweeney/fan-controller/internal/logic"
)

// NetworkInfo contains network state as reported by pi-helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// ChannelConfig is the per-fan calibration shown in status output.
type ChannelConfig struct {
	ID                  string
	PulsesPerRevolution float64
	Debounce            time.Duration
	Window              time.Duration
}

// Config contains daemon configuration for display.
type Config struct {
	LoopMs            int64
	HeartbeatMs       int64
	Broker            string
	MQTTPrefix        string
	HTTPPort          string
	WSBroker          string // Websocket broker URL for browser MQTT (empty = disabled)
	PWMDriver         string
	PWMFrequencyHz    uint32
	PWMResolutionBits uint
	TachSource        string
	Channels          []ChannelConfig
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	Fans          []logic.ChannelState
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Ready reports whether every fan has completed a sampling window.
func (s Snapshot) Ready() bool {
	if len(s.Fans) == 0 {
		return false
	}
	for _, f := range s.Fans {
		if f.Samples == 0 {
			return false
		}
	}
	return true
}

// Fan returns the state of the fan with the given id.
func (s Snapshot) Fan(id string) (logic.ChannelState, bool) {
	for _, f := range s.Fans {
		if f.ID == id {
			return f, true
		}
	}
	return logic.ChannelState{}, false
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update replaces the fan states.
// Called from runLoop on every tick.
func (t *Tracker) Update(fans []logic.ChannelState) {
	fans = slices.Clone(fans)
	t.mu.Lock()
	t.snap.Fans = fans
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
