package mqtt

import "sync"

// FakePublisher records published events for test assertions.
type FakePublisher struct {
	mu sync.Mutex

	// States contains all fan states that were published.
	States []StateEvent

	// StatePayloads contains the JSON payloads for fan states.
	StatePayloads [][]byte

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// PublishStateError, if set, will be returned by PublishState.
	PublishStateError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool

	// Pending controls the return value of Buffered.
	Pending int

	// OnCommand receives commands injected with Deliver.
	OnCommand CommandHandler

	// Topics resolves command topics for Deliver.
	Topics Topics
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{Topics: Topics{Prefix: DefaultPrefix}}
}

// PublishState records the fan state.
func (f *FakePublisher) PublishState(event StateEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.PublishStateError != nil {
		return f.PublishStateError
	}

	f.States = append(f.States, event)

	payload, err := FormatStatePayload(event)
	if err != nil {
		return err
	}
	f.StatePayloads = append(f.StatePayloads, payload)

	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	f.SystemEvents = append(f.SystemEvents, event)

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemPayloads = append(f.SystemPayloads, payload)

	return nil
}

// Deliver simulates an incoming message on a command topic. It reports
// whether the message reached OnCommand.
func (f *FakePublisher) Deliver(topic string, payload []byte) bool {
	f.mu.Lock()
	h, topics := f.OnCommand, f.Topics
	f.mu.Unlock()

	if h == nil {
		return false
	}
	id, ok := topics.Channel(topic)
	if !ok {
		return false
	}
	percent, err := ParseCommand(payload)
	if err != nil {
		return false
	}
	h(id, percent)
	return true
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// Buffered returns Pending.
func (f *FakePublisher) Buffered() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Pending
}

// SystemEventNames returns the Event field of every recorded system event.
func (f *FakePublisher) SystemEventNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, len(f.SystemEvents))
	for i, e := range f.SystemEvents {
		names[i] = e.Event
	}
	return names
}

// Reset clears recorded events.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.States = nil
	f.StatePayloads = nil
	f.SystemEvents = nil
	f.SystemPayloads = nil
	f.Closed = false
	f.PublishStateError = nil
	f.PublishSystemError = nil
	f.Connected = false
	f.Pending = 0
}
