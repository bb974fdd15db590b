//go:build !linux

package gpio

import "errors"

// RealWatcher is not available on non-Linux platforms.
type RealWatcher struct{}

// WatchRising returns an error on non-Linux platforms.
func WatchRising(opts Options, h EdgeHandler) (*RealWatcher, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// Watch adapts WatchRising to WatchFunc.
func Watch(opts Options, h EdgeHandler) (Watcher, error) {
	w, err := WatchRising(opts, h)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// Close is not implemented on non-Linux platforms.
func (w *RealWatcher) Close() error {
	return nil
}
