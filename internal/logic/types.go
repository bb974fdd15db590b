// Package logic contains the fan measurement and actuation core.
// This package has NO external dependencies (no GPIO, PWM, MQTT or OS access).
// Time is always injectable via Micros parameters.
package logic

import "time"

// Micros is a wrapping microsecond tick taken from a monotonic source.
// Elapsed time is always computed with unsigned subtraction, so values that
// straddle the 2^32 wrap (about 71.6 minutes) still compare correctly.
type Micros uint32

// MicrosFromDuration truncates a monotonic offset to a wrapping tick.
func MicrosFromDuration(d time.Duration) Micros {
	return Micros(uint64(d / time.Microsecond))
}

// Since returns the time elapsed from earlier to t.
func (t Micros) Since(earlier Micros) time.Duration {
	return time.Duration(t-earlier) * time.Microsecond
}

// Add returns t advanced by d, wrapping like the hardware tick would.
func (t Micros) Add(d time.Duration) Micros {
	return t + MicrosFromDuration(d)
}

// MaxInterval is the longest interval Micros arithmetic can represent.
const MaxInterval = time.Duration(1<<32-1) * time.Microsecond

// Clock is a monotonic time source.
type Clock interface {
	Now() Micros
}

// MonotonicClock reads the Go runtime's monotonic clock relative to its start.
type MonotonicClock struct {
	start time.Time
}

// NewMonotonicClock returns a clock whose zero tick is now.
func NewMonotonicClock() MonotonicClock {
	return MonotonicClock{start: time.Now()}
}

// Now returns the wrapping tick.
func (c MonotonicClock) Now() Micros {
	return MicrosFromDuration(time.Since(c.start))
}

// Sample is one completed RPM measurement window.
type Sample struct {
	Channel string
	At      Micros
	Pulses  uint32
	Elapsed time.Duration
	RPM     uint32
	// Stretched is set when the window closed at least one slack period
	// late, in which case RPM is divided by Elapsed instead of the nominal
	// window.
	Stretched bool
}

// ChannelState is a point-in-time view of one fan channel.
// It is a value type; the controller never mutates a published copy.
type ChannelState struct {
	ID          string
	Label       string
	DutyPercent int
	RPM         uint32
	SampledAt   Micros
	Samples     uint64
	Bounces     uint64
}
