// Package counter reads tachometer pulses from a hardware pulse-counter
// peripheral exposed by the Linux counter subsystem
// (/sys/bus/counter/devices/counterN/countM).
//
// The peripheral register is the single source of truth: edges are counted
// in hardware, so there is no software debounce and no shared mutable state
// between an edge context and the sampler.
package counter

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/mdouchement/logger"
)

// DefaultRoot is where the Linux counter subsystem publishes its devices.
const DefaultRoot = "/sys/bus/counter/devices"

// Register is a free-running edge count register.
type Register interface {
	Read() (uint64, error)
}

// SysfsRegister reads the count attribute of a counter subsystem count.
type SysfsRegister struct {
	path string
}

// NewSysfsRegister opens <dir>/count, e.g. /sys/bus/counter/devices/counter0/count0.
func NewSysfsRegister(dir string) (*SysfsRegister, error) {
	path := filepath.Join(dir, "count")
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("counter register: %w", err)
	}
	return &SysfsRegister{path: path}, nil
}

// Read returns the current register value.
func (r *SysfsRegister) Read() (uint64, error) {
	buf, err := os.ReadFile(r.path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(strings.TrimSpace(string(buf)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", r.path, err)
	}
	return v, nil
}

// Clear zeroes the register. Not every driver allows it.
func (r *SysfsRegister) Clear() error {
	return os.WriteFile(r.path, []byte("0"), 0o644)
}

// Counter adapts a Register to the pulse source contract.
//
// The sysfs register cannot be read and cleared atomically, so Drain never
// clears it: it reports the increase since the previous read. Edges that land
// between two reads are carried into the next window instead of being lost.
type Counter struct {
	mu       sync.Mutex
	reg      Register
	last     uint64
	primed   bool
	lastErr  error
	clearErr error
	log      logger.Logger
}

// New creates a Counter and takes the baseline reading.
func New(reg Register) *Counter {
	c := &Counter{reg: reg}
	if v, err := reg.Read(); err == nil {
		c.last = v
		c.primed = true
	}
	return c
}

// Open creates a Counter over a sysfs count directory.
func Open(dir string) (*Counter, error) {
	reg, err := NewSysfsRegister(dir)
	if err != nil {
		return nil, err
	}
	// A fresh start keeps the register far from its ceiling; drivers that
	// refuse the write are still usable thanks to delta reads.
	clearErr := reg.Clear()
	c := New(reg)
	c.clearErr = clearErr
	return c, nil
}

// SetLogger enables logging of register read failures.
func (c *Counter) SetLogger(l logger.Logger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log = l
	if c.clearErr != nil && l != nil {
		l.WithError(c.clearErr).Debug("Pulse counter not cleared, counting from its current value")
	}
}

// ClearError reports why the register could not be zeroed on Open, if it
// could not.
func (c *Counter) ClearError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clearErr
}

// Drain returns the edges counted since the previous Drain.
// A failed read yields zero and is kept for LastError.
func (c *Counter) Drain() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, err := c.reg.Read()
	if err != nil {
		if c.lastErr == nil && c.log != nil {
			c.log.WithError(err).Error("Could not read pulse counter")
		}
		c.lastErr = err
		return 0
	}
	c.lastErr = nil

	if !c.primed {
		c.last = v
		c.primed = true
		return 0
	}

	var delta uint64
	if v >= c.last {
		delta = v - c.last
	} else {
		// The register was reset (driver reload or ceiling reached).
		delta = v
	}
	c.last = v

	if delta > 1<<32-1 {
		return 1<<32 - 1
	}
	return uint32(delta)
}

// LastError reports the error of the most recent Drain, if any.
func (c *Counter) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}
