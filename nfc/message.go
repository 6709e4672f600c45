package nfc

import (
	"fmt"
	"strings"
)

// Type Name Format values.
const (
	TNFEmpty     byte = 0x00
	TNFWellKnown byte = 0x01
	TNFMedia     byte = 0x02
	TNFAbsURI    byte = 0x03
	TNFExternal  byte = 0x04
	TNFUnknown   byte = 0x05
)

// NDEFMessage represents a structured NDEF message with one or more records.
type NDEFMessage struct {
	records []NDEFRecord
}

// NDEFRecord represents a single NDEF record within a message.
type NDEFRecord struct {
	TNF     byte   // Type Name Format (0x00-0x07)
	Type    []byte // Record type (e.g., "T" for text, "U" for URI)
	ID      []byte // Optional record ID
	Payload []byte // Record payload data
}

// IsTextRecord returns true if this is a well-known Text record.
func (r *NDEFRecord) IsTextRecord() bool {
	return r.TNF == TNFWellKnown && len(r.Type) == 1 && r.Type[0] == 'T'
}

// IsURIRecord returns true if this is a well-known URI record.
func (r *NDEFRecord) IsURIRecord() bool {
	return r.TNF == TNFWellKnown && len(r.Type) == 1 && r.Type[0] == 'U'
}

// GetText returns (text, true) for a Text record, ("", false) otherwise.
func (r *NDEFRecord) GetText() (string, bool) {
	if !r.IsTextRecord() {
		return "", false
	}
	text, err := parseTextRecordPayload(r.Payload)
	if err != nil {
		return "", false
	}
	return text, true
}

// GetURI returns (uri, true) for a URI record, ("", false) otherwise.
func (r *NDEFRecord) GetURI() (string, bool) {
	if !r.IsURIRecord() {
		return "", false
	}
	uri, err := parseURIRecordPayload(r.Payload)
	if err != nil {
		return "", false
	}
	return uri, true
}

// NewNDEFMessage creates a new empty NDEF message.
func NewNDEFMessage() *NDEFMessage {
	return &NDEFMessage{records: []NDEFRecord{}}
}

// AddRecord adds a raw NDEF record to the message.
func (m *NDEFMessage) AddRecord(record NDEFRecord) *NDEFMessage {
	m.records = append(m.records, record)
	return m
}

// AddText adds an NDEF Text record to the message.
func (m *NDEFMessage) AddText(text, langCode string) *NDEFMessage {
	return m.AddRecord(NDEFRecord{
		TNF:     TNFWellKnown,
		Type:    []byte("T"),
		Payload: MakeTextRecordPayload(text, langCode),
	})
}

// AddURI adds an NDEF URI record to the message, abbreviating well-known prefixes.
func (m *NDEFMessage) AddURI(uri string) *NDEFMessage {
	return m.AddRecord(NDEFRecord{
		TNF:     TNFWellKnown,
		Type:    []byte("U"),
		Payload: MakeURIRecordPayload(uri),
	})
}

// Encode converts the NDEF message to bytes.
func (m *NDEFMessage) Encode() ([]byte, error) {
	if len(m.records) == 0 {
		return nil, fmt.Errorf("cannot encode empty NDEF message")
	}
	return encodeNDEFRecords(m.records)
}

// Size returns the encoded length in bytes, 0 for an empty message.
func (m *NDEFMessage) Size() int {
	if m == nil || len(m.records) == 0 {
		return 0
	}
	data, err := encodeNDEFRecords(m.records)
	if err != nil {
		return 0
	}
	return len(data)
}

// Records returns the list of NDEF records in this message.
func (m *NDEFMessage) Records() []NDEFRecord {
	return m.records
}

// GetText returns the text content from the first Text record in the message.
func (m *NDEFMessage) GetText() (string, error) {
	for _, r := range m.records {
		if text, ok := r.GetText(); ok {
			return text, nil
		}
	}
	return "", fmt.Errorf("no text record found in NDEF message")
}

// GetURI returns the URI from the first URI record in the message.
func (m *NDEFMessage) GetURI() (string, error) {
	for _, r := range m.records {
		if uri, ok := r.GetURI(); ok {
			return uri, nil
		}
	}
	return "", fmt.Errorf("no URI record found in NDEF message")
}

// DecodeNDEF parses raw bytes into an NDEFMessage. Malformed input yields
// an error wrapping ErrInvalidNDEF.
func DecodeNDEF(data []byte) (*NDEFMessage, error) {
	records, err := parseNDEFRecords(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidNDEF, err)
	}
	return &NDEFMessage{records: records}, nil
}

// uriPrefixes is the NFC Forum URI identifier code table, indexed by code.
var uriPrefixes = []string{
	"",                           // 0x00
	"http://www.",                // 0x01
	"https://www.",               // 0x02
	"http://",                    // 0x03
	"https://",                   // 0x04
	"tel:",                       // 0x05
	"mailto:",                    // 0x06
	"ftp://anonymous:anonymous@", // 0x07
	"ftp://ftp.",                 // 0x08
	"ftps://",                    // 0x09
	"sftp://",                    // 0x0A
	"smb://",                     // 0x0B
	"nfs://",                     // 0x0C
	"ftp://",                     // 0x0D
	"dav://",                     // 0x0E
	"news:",                      // 0x0F
	"telnet://",                  // 0x10
	"imap:",                      // 0x11
	"rtsp://",                    // 0x12
	"urn:",                       // 0x13
	"pop:",                       // 0x14
	"sip:",                       // 0x15
	"sips:",                      // 0x16
	"tftp:",                      // 0x17
	"btspp://",                   // 0x18
	"btl2cap://",                 // 0x19
	"btgoep://",                  // 0x1A
	"tcpobex://",                 // 0x1B
	"irdaobex://",                // 0x1C
	"file://",                    // 0x1D
	"urn:epc:id:",                // 0x1E
	"urn:epc:tag:",               // 0x1F
	"urn:epc:pat:",               // 0x20
	"urn:epc:raw:",               // 0x21
	"urn:epc:",                   // 0x22
	"urn:nfc:",                   // 0x23
}

// MakeURIRecordPayload creates the payload for an NDEF URI record using the
// longest matching identifier code.
func MakeURIRecordPayload(uri string) []byte {
	code, prefixLen := 0, 0
	for i := 1; i < len(uriPrefixes); i++ {
		if p := uriPrefixes[i]; len(p) > prefixLen && strings.HasPrefix(uri, p) {
			code, prefixLen = i, len(p)
		}
	}

	suffix := uri[prefixLen:]
	payload := make([]byte, 1+len(suffix))
	payload[0] = byte(code)
	copy(payload[1:], suffix)
	return payload
}

// parseURIRecordPayload extracts the URI from an NDEF URI record payload.
func parseURIRecordPayload(payload []byte) (string, error) {
	if len(payload) < 1 {
		return "", fmt.Errorf("URI record payload too short")
	}
	code := int(payload[0])
	if code >= len(uriPrefixes) {
		return "", fmt.Errorf("invalid URI identifier code 0x%02X", code)
	}
	return uriPrefixes[code] + string(payload[1:]), nil
}
