// Package gpio captures tachometer edges with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation and the simulator allow running without hardware.
package gpio

import "time"

// EdgeHandler is called once per rising edge with the event timestamp, an
// offset from a monotonic origin. It runs on the delivery goroutine and
// must not block.
type EdgeHandler func(ts time.Duration)

// Watcher delivers edges from one input line until closed.
type Watcher interface {
	Close() error
}

// WatchFunc opens a line and starts delivering its rising edges to h.
type WatchFunc func(opts Options, h EdgeHandler) (Watcher, error)

// Options selects a tachometer input line.
type Options struct {
	Chip   string
	Offset int
	// KernelDebounce asks the GPIO driver to filter glitches before the
	// edge is reported. Zero leaves filtering to software.
	KernelDebounce time.Duration
}

// DefaultChip is the header GPIO chip on a Raspberry Pi.
const DefaultChip = "gpiochip0"

// Consumer labels lines requested by this process.
const Consumer = "fan-controller"

// Tachometer pin definitions (BCM numbering)
const (
	DefaultTachIntake  = 23
	DefaultTachExhaust = 24
)
