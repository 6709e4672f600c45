package nfc

import (
	"context"
	"fmt"
	"time"

	"github.com/nedpals/umbral-nfc/logging"
)

// AdapterState is the availability of the NFC radio.
type AdapterState int

const (
	AdapterNotAvailable AdapterState = iota
	AdapterDisabled
	AdapterEnabled
)

func (s AdapterState) String() string {
	switch s {
	case AdapterDisabled:
		return "disabled"
	case AdapterEnabled:
		return "enabled"
	default:
		return "not_available"
	}
}

func (s AdapterState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// PlatformAdapter is the reader hardware as seen by the agent. Dispatch
// delivers each tag presentation to the callback while enabled. The
// callback reports whether the presentation was accepted.
type PlatformAdapter interface {
	// IsPresent reports whether the host has a radio at all.
	IsPresent() bool
	// IsEnabled reports whether the radio is currently usable.
	IsEnabled() bool
	EnableDispatch(deliver func(Tag) bool) error
	DisableDispatch() error
}

// AdapterMonitor tracks the adapter state. Presence is evaluated once: an
// adapter that is absent at construction stays NotAvailable for the life of
// the monitor.
type AdapterMonitor struct {
	adapter PlatformAdapter
	present bool
	state   *Observable[AdapterState]
	clock   Clock
	logger  logging.Logger
}

// MonitorOption configures an AdapterMonitor.
type MonitorOption func(*AdapterMonitor)

// WithMonitorClock sets the clock driving Watch.
func WithMonitorClock(c Clock) MonitorOption {
	return func(m *AdapterMonitor) { m.clock = c }
}

// NewAdapterMonitor creates a monitor for adapter. A nil adapter is treated
// as absent.
func NewAdapterMonitor(adapter PlatformAdapter, logger logging.Logger, opts ...MonitorOption) *AdapterMonitor {
	m := &AdapterMonitor{
		adapter: adapter,
		clock:   RealClock{},
		logger:  logging.OrNop(logger).With("component", "adapter"),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.present = adapter != nil && safeCheck(adapter.IsPresent)
	m.state = NewObservable(m.evaluate())
	return m
}

// IsAvailable reports whether a radio was found at construction.
func (m *AdapterMonitor) IsAvailable() bool {
	return m.present
}

// IsEnabled queries the adapter directly.
func (m *AdapterMonitor) IsEnabled() bool {
	return m.present && safeCheck(m.adapter.IsEnabled)
}

// State returns the last evaluated state.
func (m *AdapterMonitor) State() AdapterState {
	return m.state.Get()
}

// Subscribe streams the adapter state, starting with the current value.
func (m *AdapterMonitor) Subscribe() (<-chan AdapterState, func()) {
	return m.state.Subscribe()
}

// Refresh re-evaluates the enabled flag and publishes the result if it
// changed.
func (m *AdapterMonitor) Refresh() AdapterState {
	next := m.evaluate()
	prev := m.state.Get()
	if m.state.Set(next) {
		m.logger.Info(context.Background(), "adapter state changed", "from", prev, "to", next)
	}
	return next
}

// Watch refreshes the state every interval until ctx is done.
func (m *AdapterMonitor) Watch(ctx context.Context, interval time.Duration) {
	if !m.present {
		return
	}
	ticker := m.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			m.Refresh()
		}
	}
}

func (m *AdapterMonitor) evaluate() AdapterState {
	if !m.present {
		return AdapterNotAvailable
	}
	if m.IsEnabled() {
		return AdapterEnabled
	}
	return AdapterDisabled
}

// safeCheck treats a panicking check as false.
func safeCheck(check func() bool) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	return check()
}

// adapterError maps a non-enabled adapter state to its error code.
func adapterError(state AdapterState, op string) *NFCError {
	switch state {
	case AdapterNotAvailable:
		return NewError(ErrCodeNFCNotAvailable, op, nil)
	case AdapterDisabled:
		return NewError(ErrCodeNFCDisabled, op, nil)
	default:
		return NewError(ErrCodeUnknown, op, fmt.Errorf("adapter is %s", state))
	}
}
