package logic

import (
	"sync"
	"sync/atomic"
	"time"
)

// ChannelConfig is the static description of one fan channel.
type ChannelConfig struct {
	ID                  string
	Label               string
	PulsesPerRevolution float64
	Window              time.Duration
	// Slack is how late a window may close before it counts as stretched,
	// normally the sampling tick period. Zero allows one extra window.
	Slack time.Duration
}

// FanChannel ties a pulse source, an RPM estimator and an actuator to one
// stable identity.
//
// Writers (the sampling tick and speed changes) serialize on mu and publish
// a fresh ChannelState; readers load it without locking.
type FanChannel struct {
	id        string
	label     string
	source    PulseSource
	estimator *RpmEstimator
	actuator  *FanActuator

	mu    sync.Mutex
	state atomic.Pointer[ChannelState]
}

// NewFanChannel creates a channel whose first sampling window opens at start.
func NewFanChannel(cfg ChannelConfig, src PulseSource, act *FanActuator, start Micros) *FanChannel {
	c := &FanChannel{
		id:        cfg.ID,
		label:     cfg.Label,
		source:    src,
		estimator: NewRpmEstimator(cfg.PulsesPerRevolution, cfg.Window, start),
		actuator:  act,
	}
	c.estimator.SetSlack(cfg.Slack)
	c.state.Store(&ChannelState{
		ID:          cfg.ID,
		Label:       cfg.Label,
		DutyPercent: act.Percent(),
		SampledAt:   start,
	})
	return c
}

// ID returns the channel identity.
func (c *FanChannel) ID() string {
	return c.id
}

// Label returns the human readable name.
func (c *FanChannel) Label() string {
	return c.label
}

// PulsesPerRevolution returns the channel calibration.
func (c *FanChannel) PulsesPerRevolution() float64 {
	return c.estimator.PulsesPerRevolution()
}

// Window returns the sampling window.
func (c *FanChannel) Window() time.Duration {
	return c.estimator.Window()
}

// State returns the last published state.
func (c *FanChannel) State() ChannelState {
	return *c.state.Load()
}

// Tick advances the RPM estimator and publishes the new measurement.
func (c *FanChannel) Tick(now Micros) (Sample, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.estimator.Tick(now, c.source)
	if !ok {
		return Sample{}, false
	}
	s.Channel = c.id

	next := *c.state.Load()
	next.RPM = s.RPM
	next.SampledAt = s.At
	next.Samples++
	if b, ok := c.source.(BounceReporter); ok {
		next.Bounces = b.Bounces()
	}
	c.state.Store(&next)

	return s, true
}

// SetSpeed applies a duty percentage and publishes it.
func (c *FanChannel) SetSpeed(percent int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	applied, err := c.actuator.SetSpeed(percent)

	next := *c.state.Load()
	next.DutyPercent = applied
	c.state.Store(&next)

	return applied, err
}
