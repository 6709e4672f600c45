package nfc

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestTextRecordEncodeDecode(t *testing.T) {
	tests := []struct {
		text     string
		langCode string
	}{
		{"Hello", "en"},
		{"Bonjour", "fr"},
		{"Hola", "es"},
		{"", ""},
		{"Test", ""},
	}

	for _, tt := range tests {
		encoded, err := NewNDEFMessage().AddText(tt.text, tt.langCode).Encode()
		if err != nil {
			t.Fatalf("encode text=%q: %v", tt.text, err)
		}
		msg, err := DecodeNDEF(encoded)
		if err != nil {
			t.Fatalf("decode text=%q: %v", tt.text, err)
		}
		got, err := msg.GetText()
		if err != nil {
			t.Fatalf("GetText: %v", err)
		}
		if got != tt.text {
			t.Errorf("text mismatch for langCode=%q: got %q, want %q", tt.langCode, got, tt.text)
		}
	}
}

func TestShortAndLongRecords(t *testing.T) {
	short, _ := NewNDEFMessage().AddText("short", "en").Encode()
	if short[0]&flagSR == 0 {
		t.Error("expected SR flag for short payload")
	}

	longText := strings.Repeat("A", 300)
	long, _ := NewNDEFMessage().AddText(longText, "en").Encode()
	if long[0]&flagSR != 0 {
		t.Error("expected SR flag cleared for long payload")
	}

	msg, err := DecodeNDEF(long)
	if err != nil {
		t.Fatalf("decode long record: %v", err)
	}
	if got, _ := msg.GetText(); got != longText {
		t.Errorf("long text mismatch: got %d chars", len(got))
	}
}

func TestEncodeNDEFRecordsMultiple(t *testing.T) {
	msg := NewNDEFMessage().
		AddURI("umbral://v1/tag-42/deadbeef").
		AddText("second", "en").
		AddRecord(NDEFRecord{TNF: TNFMedia, Type: []byte("application/json"), ID: []byte("id1"), Payload: []byte(`{}`)})

	data, err := msg.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if msg.Size() != len(data) {
		t.Errorf("Size() = %d, encoded length %d", msg.Size(), len(data))
	}

	decoded, err := DecodeNDEF(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	records := decoded.Records()
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if data[0]&flagMB == 0 || data[0]&flagME != 0 {
		t.Errorf("first header should have MB only, got 0x%02X", data[0])
	}
	if uri, ok := records[0].GetURI(); !ok || uri != "umbral://v1/tag-42/deadbeef" {
		t.Errorf("unexpected first record uri %q", uri)
	}
	if !bytes.Equal(records[2].ID, []byte("id1")) || records[2].TNF != TNFMedia {
		t.Errorf("unexpected third record %+v", records[2])
	}
}

func TestURIRecordAbbreviations(t *testing.T) {
	tests := []struct {
		uri  string
		code byte
	}{
		{"https://www.example.com", 0x02},
		{"http://www.example.com", 0x01},
		{"https://example.com", 0x04},
		{"tel:+123", 0x05},
		{"urn:epc:id:sgtin", 0x1E},
		{"urn:nfc:wkt", 0x23},
		{"umbral://v1/x/00000000", 0x00},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			payload := MakeURIRecordPayload(tt.uri)
			if payload[0] != tt.code {
				t.Errorf("expected code 0x%02X, got 0x%02X", tt.code, payload[0])
			}
			got, err := parseURIRecordPayload(payload)
			if err != nil || got != tt.uri {
				t.Errorf("round trip: got %q, %v", got, err)
			}
		})
	}

	if _, err := parseURIRecordPayload([]byte{0x99, 'x'}); err == nil {
		t.Error("expected error for invalid identifier code")
	}
	if _, err := parseURIRecordPayload(nil); err == nil {
		t.Error("expected error for empty payload")
	}
}

func TestDecodeNDEF_Malformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"header only", []byte{0xD1}},
		{"missing MB", []byte{0x51, 0x01, 0x01, 'U', 0x00}},
		{"chunked", []byte{0xB1, 0x01, 0x01, 'U', 0x00}},
		{"truncated payload", []byte{0xD1, 0x01, 0x05, 'U', 0x00}},
		{"truncated type", []byte{0xD1, 0x04, 0x00, 'U'}},
		{"no ME", []byte{0x91, 0x01, 0x01, 'U', 0x00}},
		{"truncated long length", []byte{0xC1, 0x01, 0x00, 0x00}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeNDEF(tt.data)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, ErrInvalidNDEF) {
				t.Errorf("expected ErrInvalidNDEF, got %v", err)
			}
		})
	}
}

func TestParseTextRecordPayloadUTF16(t *testing.T) {
	// status: UTF-16 flag + lang length 2, "en", "Hi" little endian
	payload := []byte{0x82, 'e', 'n', 'H', 0x00, 'i', 0x00}
	text, err := parseTextRecordPayload(payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if text != "Hi" {
		t.Errorf("expected Hi, got %q", text)
	}

	if _, err := parseTextRecordPayload([]byte{0x82, 'e', 'n', 'H'}); err == nil {
		t.Error("expected error for odd UTF-16 length")
	}
}

func TestEmptyMessage(t *testing.T) {
	msg := NewNDEFMessage()
	if _, err := msg.Encode(); err == nil {
		t.Error("expected error encoding empty message")
	}
	if msg.Size() != 0 {
		t.Errorf("expected size 0, got %d", msg.Size())
	}
	if _, err := msg.GetURI(); err == nil {
		t.Error("expected error for missing URI record")
	}
}
