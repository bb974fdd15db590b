package logic

import (
	"errors"
	"fmt"
)

// ErrUnknownChannel is returned when a request names a channel that does not exist.
var ErrUnknownChannel = errors.New("unknown fan channel")

// ControllerState owns every fan channel of the controller.
type ControllerState struct {
	channels []*FanChannel
	byID     map[string]*FanChannel
}

// NewControllerState creates a controller over channels, keeping their order.
func NewControllerState(channels ...*FanChannel) (*ControllerState, error) {
	if len(channels) == 0 {
		return nil, errors.New("no fan channels")
	}

	s := &ControllerState{
		channels: channels,
		byID:     make(map[string]*FanChannel, len(channels)),
	}
	for _, c := range channels {
		if _, dup := s.byID[c.ID()]; dup {
			return nil, fmt.Errorf("duplicate fan channel %q", c.ID())
		}
		s.byID[c.ID()] = c
	}
	return s, nil
}

// Advance ticks every channel and returns the samples completed at now.
// It must be called frequently relative to the sampling window.
func (s *ControllerState) Advance(now Micros) []Sample {
	var samples []Sample
	for _, c := range s.channels {
		if sample, ok := c.Tick(now); ok {
			samples = append(samples, sample)
		}
	}
	return samples
}

// Snapshot returns the state of every channel in configuration order.
// Each entry is internally consistent; no cross-channel atomicity is implied.
func (s *ControllerState) Snapshot() []ChannelState {
	out := make([]ChannelState, len(s.channels))
	for i, c := range s.channels {
		out[i] = c.State()
	}
	return out
}

// SetChannelSpeed routes a speed request to the named channel.
func (s *ControllerState) SetChannelSpeed(id string, percent int) (int, error) {
	c, ok := s.byID[id]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownChannel, id)
	}
	return c.SetSpeed(percent)
}

// Channel looks a channel up by id.
func (s *ControllerState) Channel(id string) (*FanChannel, bool) {
	c, ok := s.byID[id]
	return c, ok
}

// IDs returns the channel ids in configuration order.
func (s *ControllerState) IDs() []string {
	ids := make([]string, len(s.channels))
	for i, c := range s.channels {
		ids[i] = c.ID()
	}
	return ids
}
