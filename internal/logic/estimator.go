package logic

import (
	"math"
	"time"
)

// DefaultWindow is the reference sampling window.
const DefaultWindow = time.Second

// RpmEstimator turns the pulses collected over a fixed window into RPM.
type RpmEstimator struct {
	pulsesPerRev float64
	window       time.Duration
	slack        time.Duration
	lastSample   Micros
	lastRPM      uint32
}

// NewRpmEstimator creates an estimator whose first window opens at start.
func NewRpmEstimator(pulsesPerRev float64, window time.Duration, start Micros) *RpmEstimator {
	if window <= 0 {
		window = DefaultWindow
	}
	return &RpmEstimator{
		pulsesPerRev: pulsesPerRev,
		window:       window,
		slack:        window,
		lastSample:   start,
	}
}

// SetSlack sets how far past the window a sample may close and still be
// divided by the nominal window. Non-positive values restore the default
// of one window.
func (e *RpmEstimator) SetSlack(d time.Duration) {
	if d <= 0 {
		d = e.window
	}
	e.slack = d
}

// Tick drains src and returns a new sample once a full window has elapsed
// since the previous one. Earlier calls return false and change nothing.
func (e *RpmEstimator) Tick(now Micros, src PulseSource) (Sample, bool) {
	elapsed := now.Since(e.lastSample)
	if elapsed < e.window {
		return Sample{}, false
	}

	pulses := src.Drain()

	s := Sample{
		At:      now,
		Pulses:  pulses,
		Elapsed: elapsed,
	}

	// A late close must not report the extra pulses as one window's worth.
	span := e.window
	if elapsed >= e.window+e.slack {
		span = elapsed
		s.Stretched = true
	}

	s.RPM = RPM(pulses, e.pulsesPerRev, span)
	e.lastRPM = s.RPM
	e.lastSample = now
	return s, true
}

// LastRPM returns the most recent estimate.
func (e *RpmEstimator) LastRPM() uint32 {
	return e.lastRPM
}

// LastSample returns when the most recent window closed.
func (e *RpmEstimator) LastSample() Micros {
	return e.lastSample
}

// Window returns the nominal sampling window.
func (e *RpmEstimator) Window() time.Duration {
	return e.window
}

// PulsesPerRevolution returns the calibration constant.
func (e *RpmEstimator) PulsesPerRevolution() float64 {
	return e.pulsesPerRev
}

// RPM computes round(pulses * 60 / (pulsesPerRev * window seconds)).
func RPM(pulses uint32, pulsesPerRev float64, window time.Duration) uint32 {
	if pulses == 0 || pulsesPerRev <= 0 || window <= 0 {
		return 0
	}
	rpm := float64(pulses) * 60 / (pulsesPerRev * window.Seconds())
	if rpm >= math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(math.Round(rpm))
}
