package gpio

import "sync"

// FakeOutput is a test double that records every level written.
// Safe for concurrent use so background pulses can be observed from tests.
type FakeOutput struct {
	mu sync.Mutex

	// history contains every value passed to Set, in order.
	history []bool

	// on is the current level.
	on bool

	// closed tracks if Close was called.
	closed bool

	// SetError, if set, will be returned by Set().
	SetError error
}

// NewFakeOutput creates a FakeOutput that starts off.
func NewFakeOutput() *FakeOutput {
	return &FakeOutput{}
}

// Set records the level.
func (f *FakeOutput) Set(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.SetError != nil {
		return f.SetError
	}
	f.history = append(f.history, on)
	f.on = on
	return nil
}

// Close switches the output off and marks it closed.
func (f *FakeOutput) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.on = false
	f.closed = true
	return nil
}

// On reports the current level.
func (f *FakeOutput) On() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.on
}

// Closed reports whether Close was called.
func (f *FakeOutput) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// History returns a copy of every level written.
func (f *FakeOutput) History() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.history...)
}

// Reset clears recorded state.
func (f *FakeOutput) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history = nil
	f.on = false
	f.closed = false
	f.SetError = nil
}
