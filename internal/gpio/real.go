//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealWatcher receives rising edges from a Linux GPIO character device line.
type RealWatcher struct {
	line *gpiocdev.Line
}

// WatchRising requests the line as a pulled-up input with rising edge
// detection. Tachometer outputs are open collector, so the pull-up is required.
func WatchRising(opts Options, h EdgeHandler) (*RealWatcher, error) {
	chip := opts.Chip
	if chip == "" {
		chip = DefaultChip
	}

	reqOpts := []gpiocdev.LineReqOption{
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithRisingEdge,
		gpiocdev.WithConsumer(Consumer),
		gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
			h(evt.Timestamp)
		}),
	}
	if opts.KernelDebounce > 0 {
		reqOpts = append(reqOpts, gpiocdev.WithDebounce(opts.KernelDebounce))
	}

	line, err := gpiocdev.RequestLine(chip, opts.Offset, reqOpts...)
	if err != nil {
		return nil, fmt.Errorf("request tach line %s:%d: %w", chip, opts.Offset, err)
	}

	return &RealWatcher{line: line}, nil
}

// Watch adapts WatchRising to WatchFunc.
func Watch(opts Options, h EdgeHandler) (Watcher, error) {
	w, err := WatchRising(opts, h)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// Close stops edge delivery and releases the line.
func (w *RealWatcher) Close() error {
	if w.line == nil {
		return nil
	}

	err := w.line.Close()
	w.line = nil
	if err != nil {
		return fmt.Errorf("close tach line: %w", err)
	}
	return nil
}
