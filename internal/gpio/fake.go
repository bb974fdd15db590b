package gpio

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// FakeBank is a test double standing in for a GPIO chip. Lines are opened
// through Watch and edges are injected with Emit.
type FakeBank struct {
	mu       sync.Mutex
	handlers map[int]EdgeHandler
	opened   map[int]Options

	// WatchError, if set, will be returned by Watch.
	WatchError error
}

// NewFakeBank creates an empty FakeBank.
func NewFakeBank() *FakeBank {
	return &FakeBank{
		handlers: make(map[int]EdgeHandler),
		opened:   make(map[int]Options),
	}
}

// Watch registers h for the line at opts.Offset. It satisfies WatchFunc.
func (b *FakeBank) Watch(opts Options, h EdgeHandler) (Watcher, error) {
	if b.WatchError != nil {
		return nil, b.WatchError
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, busy := b.handlers[opts.Offset]; busy {
		return nil, fmt.Errorf("line %d: device or resource busy", opts.Offset)
	}
	b.handlers[opts.Offset] = h
	b.opened[opts.Offset] = opts

	return &fakeWatcher{bank: b, offset: opts.Offset}, nil
}

// Emit delivers one rising edge per timestamp on the given line.
func (b *FakeBank) Emit(offset int, ts ...time.Duration) error {
	b.mu.Lock()
	h, ok := b.handlers[offset]
	b.mu.Unlock()

	if !ok {
		return errors.New("line not watched")
	}
	for _, t := range ts {
		h(t)
	}
	return nil
}

// Watched reports whether a line is currently open.
func (b *FakeBank) Watched(offset int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.handlers[offset]
	return ok
}

// Options returns the options a line was last opened with.
func (b *FakeBank) Options(offset int) (Options, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.opened[offset]
	return o, ok
}

type fakeWatcher struct {
	bank   *FakeBank
	offset int
}

func (w *fakeWatcher) Close() error {
	w.bank.mu.Lock()
	delete(w.bank.handlers, w.offset)
	w.bank.mu.Unlock()
	return nil
}
