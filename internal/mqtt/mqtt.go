// Package mqtt provides MQTT publishing and fan speed commands with
// abstraction for testing.
package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sweeney/fan-controller/internal/logic"
)

// DefaultPrefix is the topic root for fan telemetry.
const DefaultPrefix = "energy/fans"

// Topics derives topic names from a prefix.
//
//	<prefix>/system       lifecycle events and the OFFLINE will
//	<prefix>/<id>/state   retained per-fan measurement
//	<prefix>/<id>/set     speed commands
type Topics struct {
	Prefix string
}

func (t Topics) System() string {
	return t.Prefix + "/system"
}

func (t Topics) State(id string) string {
	return t.Prefix + "/" + id + "/state"
}

func (t Topics) Set(id string) string {
	return t.Prefix + "/" + id + "/set"
}

// SetFilter matches the command topic of every fan.
func (t Topics) SetFilter() string {
	return t.Prefix + "/+/set"
}

// Channel extracts the fan id from a command topic.
func (t Topics) Channel(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, t.Prefix+"/")
	if !ok {
		return "", false
	}
	id, ok := strings.CutSuffix(rest, "/set")
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

// Publisher publishes events to MQTT.
type Publisher interface {
	// PublishState sends a fan measurement, retained.
	// Returns error if publishing fails (should not crash the process).
	PublishState(event StateEvent) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// CommandHandler receives a speed command addressed to a fan.
type CommandHandler func(channel string, percent int)

// StateEvent is a fan's state after a sampling window.
type StateEvent struct {
	Timestamp time.Time
	Fan       logic.ChannelState
	Stretched bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// StatePayload represents the MQTT message payload for a fan state.
type StatePayload struct {
	Fan FanPayload `json:"fan"`
}

// FanPayload contains one fan's measurement.
type FanPayload struct {
	Timestamp string `json:"timestamp"`
	ID        string `json:"id"`
	Label     string `json:"label,omitempty"`
	Speed     int    `json:"speed"`
	RPM       uint32 `json:"rpm"`
	Bounces   uint64 `json:"bounces"`
	Stretched bool   `json:"stretched,omitempty"`
}

// FormatStatePayload creates the JSON payload for a fan state.
func FormatStatePayload(event StateEvent) ([]byte, error) {
	payload := StatePayload{
		Fan: FanPayload{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			ID:        event.Fan.ID,
			Label:     event.Fan.Label,
			Speed:     event.Fan.DutyPercent,
			RPM:       event.Fan.RPM,
			Bounces:   event.Fan.Bounces,
			Stretched: event.Stretched,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

var ErrBadCommand = errors.New("invalid speed command")

// ParseCommand reads a speed percentage from a command payload: either a
// bare integer ("55") or {"speed":55}.
func ParseCommand(payload []byte) (int, error) {
	s := strings.TrimSpace(string(payload))
	if s == "" {
		return 0, ErrBadCommand
	}

	if s[0] == '{' {
		var cmd struct {
			Speed *int `json:"speed"`
		}
		if err := json.Unmarshal([]byte(s), &cmd); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrBadCommand, err)
		}
		if cmd.Speed == nil {
			return 0, fmt.Errorf("%w: missing speed", ErrBadCommand)
		}
		return *cmd.Speed, nil
	}

	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadCommand, s)
	}
	return v, nil
}
