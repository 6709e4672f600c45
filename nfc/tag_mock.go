package nfc

import (
	"fmt"
	"sync"
)

// MockTag is a test implementation of Tag.
//
// Attach a MockNdef or MockFormatable to expose the matching technology.
// Every method call on the tag and its technologies is appended to CallLog.
//
// Example:
//
//	tag := NewMockTag([]byte{0x04, 0xA1, 0xB2, 0xC3}, TechNfcA, "NTAG213")
//	tag.NdefTech = NewMockNdef(141)
//	outcome, err := engine.Read(ctx, tag)
type MockTag struct {
	// UIDBytes is returned by ID()
	UIDBytes []byte

	// Techs is returned by Technologies()
	Techs []string

	// NdefTech, if set, is returned by Ndef()
	NdefTech *MockNdef

	// FormatableTech, if set, is returned by Formatable()
	FormatableTech *MockFormatable

	// CallLog tracks all method calls for verification in tests
	CallLog []string

	mu sync.Mutex
}

// NewMockTag creates a MockTag with no technologies attached.
func NewMockTag(uid []byte, techs ...string) *MockTag {
	return &MockTag{
		UIDBytes: uid,
		Techs:    techs,
		CallLog:  make([]string, 0),
	}
}

func (m *MockTag) log(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallLog = append(m.CallLog, call)
}

// Calls returns a copy of the call log, including calls made on the
// attached technologies.
func (m *MockTag) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.CallLog...)
}

// CallCount returns how many times call was recorded.
func (m *MockTag) CallCount(call string) int {
	n := 0
	for _, c := range m.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

func (m *MockTag) ID() []byte {
	m.log("ID")
	return m.UIDBytes
}

func (m *MockTag) Technologies() []string {
	m.log("Technologies")
	return m.Techs
}

func (m *MockTag) Ndef() NdefTech {
	m.log("Ndef")
	if m.NdefTech == nil {
		return nil
	}
	m.NdefTech.owner = m
	return m.NdefTech
}

func (m *MockTag) Formatable() FormatableTech {
	m.log("Formatable")
	if m.FormatableTech == nil {
		return nil
	}
	m.FormatableTech.owner = m
	return m.FormatableTech
}

// MockNdef simulates the NDEF technology of a formatted tag.
type MockNdef struct {
	// Message is returned by ReadMessage and replaced by WriteMessage
	Message *NDEFMessage

	// Capacity is returned by MaxSize()
	Capacity int

	// ReadOnly makes IsWritable() return false
	ReadOnly bool

	// ConnectError, if set, will be returned by Connect()
	ConnectError error

	// CloseError, if set, will be returned by Close()
	CloseError error

	// ReadError, if set, will be returned by ReadMessage()
	ReadError error

	// WriteError, if set, will be returned by WriteMessage()
	WriteError error

	// PanicOnRead and PanicOnWrite make the operation panic
	PanicOnRead  bool
	PanicOnWrite bool

	connected bool
	owner     *MockTag
}

// NewMockNdef creates a writable, empty NDEF technology.
func NewMockNdef(capacity int) *MockNdef {
	return &MockNdef{Capacity: capacity}
}

func (n *MockNdef) log(call string) {
	if n.owner != nil {
		n.owner.log(call)
	}
}

func (n *MockNdef) Connect() error {
	n.log("Connect")
	if n.ConnectError != nil {
		return n.ConnectError
	}
	n.connected = true
	return nil
}

func (n *MockNdef) Close() error {
	n.log("Close")
	n.connected = false
	return n.CloseError
}

func (n *MockNdef) IsWritable() bool {
	n.log("IsWritable")
	return !n.ReadOnly
}

func (n *MockNdef) MaxSize() int {
	n.log("MaxSize")
	return n.Capacity
}

func (n *MockNdef) ReadMessage() (*NDEFMessage, error) {
	n.log("ReadMessage")
	if n.PanicOnRead {
		panic("mock read panic")
	}
	if !n.connected {
		return nil, fmt.Errorf("%w: tag not connected", ErrTagIO)
	}
	if n.ReadError != nil {
		return nil, n.ReadError
	}
	return n.Message, nil
}

func (n *MockNdef) WriteMessage(msg *NDEFMessage) error {
	n.log("WriteMessage")
	if n.PanicOnWrite {
		panic("mock write panic")
	}
	if !n.connected {
		return fmt.Errorf("%w: tag not connected", ErrTagIO)
	}
	if n.WriteError != nil {
		return n.WriteError
	}
	n.Message = msg
	return nil
}

// IsConnected reports whether Connect succeeded without a later Close.
func (n *MockNdef) IsConnected() bool {
	return n.connected
}

// MockFormatable simulates a blank tag that can be NDEF formatted.
type MockFormatable struct {
	// Capacity is returned by MaxSize(). Zero means 141, an NTAG213.
	Capacity int

	// ConnectError, if set, will be returned by Connect()
	ConnectError error

	// FormatError, if set, will be returned by Format()
	FormatError error

	// PanicOnFormat makes Format panic
	PanicOnFormat bool

	// Formatted holds the message passed to a successful Format call
	Formatted *NDEFMessage

	connected bool
	owner     *MockTag
}

func (f *MockFormatable) log(call string) {
	if f.owner != nil {
		f.owner.log(call)
	}
}

func (f *MockFormatable) Connect() error {
	f.log("Connect")
	if f.ConnectError != nil {
		return f.ConnectError
	}
	f.connected = true
	return nil
}

func (f *MockFormatable) Close() error {
	f.log("Close")
	f.connected = false
	return nil
}

func (f *MockFormatable) MaxSize() int {
	f.log("MaxSize")
	if f.Capacity == 0 {
		return 141
	}
	return f.Capacity
}

func (f *MockFormatable) Format(msg *NDEFMessage) error {
	f.log("Format")
	if f.PanicOnFormat {
		panic("mock format panic")
	}
	if !f.connected {
		return fmt.Errorf("%w: tag not connected", ErrTagIO)
	}
	if f.FormatError != nil {
		return f.FormatError
	}
	f.Formatted = msg
	return nil
}
