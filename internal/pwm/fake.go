package pwm

import "sync"

// FakeWriter records duty writes for tests and the dummy daemon.
type FakeWriter struct {
	mu     sync.Mutex
	duty   []uint32
	writes int
	err    error
	closed bool
}

func NewFakeWriter(channels int) *FakeWriter {
	return &FakeWriter{duty: make([]uint32, channels)}
}

func (f *FakeWriter) WriteDuty(channel int, duty uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := checkChannel(channel, len(f.duty)); err != nil {
		return err
	}
	if f.err != nil {
		return f.err
	}
	f.duty[channel] = duty
	f.writes++
	return nil
}

// Duty returns the last duty written to a channel.
func (f *FakeWriter) Duty(channel int) uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if channel < 0 || channel >= len(f.duty) {
		return 0
	}
	return f.duty[channel]
}

func (f *FakeWriter) Writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

// FailWith makes every following write return err. nil clears it.
func (f *FakeWriter) FailWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *FakeWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *FakeWriter) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
