package logic

import (
	"sync/atomic"
	"time"
)

// PulseSource yields the tachometer pulses accumulated since the last call.
// Drain is only ever called from the sampling loop.
type PulseSource interface {
	Drain() uint32
}

// BounceReporter is implemented by sources that filter edges in software.
type BounceReporter interface {
	Bounces() uint64
}

// edgeSeen marks lastEdge as holding a real timestamp. The low 32 bits
// hold the Micros of the last accepted edge.
const edgeSeen = uint64(1) << 32

// PulseCounter counts debounced tachometer edges.
//
// OnEdge runs in edge-delivery context and Drain runs in the sampling loop.
// They share only atomics: the pending count is handed over with a single
// swap, so no pulse is lost or counted twice.
type PulseCounter struct {
	debounce time.Duration
	lastEdge atomic.Uint64
	pending  atomic.Uint32
	bounces  atomic.Uint64
}

// NewPulseCounter creates a counter rejecting edges that arrive within
// debounce of the previously accepted one. Zero disables filtering.
func NewPulseCounter(debounce time.Duration) *PulseCounter {
	if debounce < 0 {
		debounce = 0
	}
	return &PulseCounter{debounce: debounce}
}

// Debounce returns the configured debounce interval.
func (c *PulseCounter) Debounce() time.Duration {
	return c.debounce
}

// OnEdge records a rising edge observed at now.
func (c *PulseCounter) OnEdge(now Micros) {
	if c.debounce == 0 {
		c.lastEdge.Store(edgeSeen | uint64(now))
		c.pending.Add(1)
		return
	}

	for {
		last := c.lastEdge.Load()
		if last&edgeSeen != 0 && now.Since(Micros(last)) <= c.debounce {
			c.bounces.Add(1)
			return
		}
		if c.lastEdge.CompareAndSwap(last, edgeSeen|uint64(now)) {
			c.pending.Add(1)
			return
		}
		// Another edge won the race; re-evaluate against it.
	}
}

// Drain returns the pulses accepted since the previous Drain and resets the count.
func (c *PulseCounter) Drain() uint32 {
	return c.pending.Swap(0)
}

// Pending returns the pulses accepted but not yet drained.
func (c *PulseCounter) Pending() uint32 {
	return c.pending.Load()
}

// Bounces returns how many edges were rejected by the debounce filter.
func (c *PulseCounter) Bounces() uint64 {
	return c.bounces.Load()
}
