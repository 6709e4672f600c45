package nfc

import "sync"

// MockAdapter is a test implementation of PlatformAdapter.
type MockAdapter struct {
	// Present is returned by IsPresent()
	Present bool

	// EnableError, if set, will be returned by EnableDispatch()
	EnableError error

	// DisableError, if set, will be returned by DisableDispatch()
	DisableError error

	// CallLog tracks all method calls for verification in tests
	CallLog []string

	enabled bool
	deliver func(Tag) bool
	mu      sync.Mutex
}

// NewMockAdapter creates a present adapter with the radio switched as given.
func NewMockAdapter(enabled bool) *MockAdapter {
	return &MockAdapter{Present: true, enabled: enabled}
}

func (a *MockAdapter) record(call string) {
	a.CallLog = append(a.CallLog, call)
}

// SetEnabled flips the radio switch.
func (a *MockAdapter) SetEnabled(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabled = enabled
}

func (a *MockAdapter) IsPresent() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.record("IsPresent")
	return a.Present
}

func (a *MockAdapter) IsEnabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.record("IsEnabled")
	return a.Present && a.enabled
}

func (a *MockAdapter) EnableDispatch(deliver func(Tag) bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.record("EnableDispatch")
	if a.EnableError != nil {
		return a.EnableError
	}
	a.deliver = deliver
	return nil
}

func (a *MockAdapter) DisableDispatch() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.record("DisableDispatch")
	if a.DisableError != nil {
		return a.DisableError
	}
	a.deliver = nil
	return nil
}

// Dispatching reports whether a dispatch callback is installed.
func (a *MockAdapter) Dispatching() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.deliver != nil
}

// Tap simulates a tag entering the field. It returns false when
// dispatch is not enabled or the callback drops the tag.
func (a *MockAdapter) Tap(tag Tag) bool {
	a.mu.Lock()
	deliver := a.deliver
	a.mu.Unlock()
	if deliver == nil {
		return false
	}
	return deliver(tag)
}

// CallCount returns how many times call was recorded.
func (a *MockAdapter) CallCount(call string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, c := range a.CallLog {
		if c == call {
			n++
		}
	}
	return n
}
