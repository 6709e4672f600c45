package nfc

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

var testUID = []byte{0x04, 0xA1, 0xB2, 0xC3, 0xD4, 0xE5, 0x80}

func ntag213(ndef *MockNdef) *MockTag {
	tag := NewMockTag(testUID, TechNfcA, TechMifareUltralight, TechNdef, "NTAG213")
	tag.NdefTech = ndef
	return tag
}

func uriMessage(uri string) *NDEFMessage {
	return NewNDEFMessage().AddURI(uri)
}

func TestEngineRead_UnseenBlankTag(t *testing.T) {
	tag := ntag213(NewMockNdef(141))
	engine := NewEngine(NewMockRegistry(), nil)

	out, err := engine.Read(context.Background(), tag)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if out.Content != ContentBlank {
		t.Errorf("expected blank content, got %v", out.Content)
	}
	if out.Resolved() {
		t.Error("expected unresolved outcome")
	}
	if out.UID != "04A1B2C3D4E580" {
		t.Errorf("unexpected uid %q", out.UID)
	}
	if out.Type != TagTypeNTAG213 {
		t.Errorf("unexpected type %v", out.Type)
	}
}

func TestEngineRead_NoNdefInterface(t *testing.T) {
	tag := NewMockTag(testUID, TechNfcA, TechMifareUltralight)
	tag.FormatableTech = &MockFormatable{}

	out, err := NewEngine(nil, nil).Read(context.Background(), tag)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if out.Content != ContentBlank {
		t.Errorf("expected blank content, got %v", out.Content)
	}
	if tag.CallCount("Connect") != 0 {
		t.Error("formatable tag must not be connected on read")
	}
}

func TestEngineWriteThenRead(t *testing.T) {
	ndef := NewMockNdef(141)
	tag := ntag213(ndef)
	engine := NewEngine(NewMockRegistry(), nil)
	ctx := context.Background()

	wout, err := engine.Write(ctx, tag, "tag-42")
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if wout.Formatted {
		t.Error("NDEF tag should not be formatted")
	}
	if wout.Payload.TagID != "tag-42" {
		t.Errorf("unexpected payload %+v", wout.Payload)
	}

	rout, err := engine.Read(ctx, tag)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if rout.Content != ContentKnown {
		t.Fatalf("expected known content, got %v", rout.Content)
	}
	if rout.Payload.TagID != "tag-42" || !rout.Payload.IsValid() {
		t.Errorf("unexpected payload %+v", rout.Payload)
	}
	if tag.CallCount("Close") != 2 {
		t.Errorf("expected one Close per run, got %d", tag.CallCount("Close"))
	}
}

func TestEngineWrite_ReadOnly(t *testing.T) {
	ndef := NewMockNdef(141)
	ndef.ReadOnly = true
	tag := ntag213(ndef)

	_, err := NewEngine(nil, nil).Write(context.Background(), tag, "tag-42")
	if !IsCode(err, ErrCodeTagReadOnly) {
		t.Fatalf("expected TAG_READ_ONLY, got %v", err)
	}
	if tag.CallCount("WriteMessage") != 0 {
		t.Error("WriteMessage must not be called on a read-only tag")
	}
	if tag.CallCount("Close") != 1 {
		t.Errorf("expected Close once, got %d", tag.CallCount("Close"))
	}
}

func TestEngineWrite_TooSmall(t *testing.T) {
	tag := ntag213(NewMockNdef(10))

	_, err := NewEngine(nil, nil).Write(context.Background(), tag, "tag-42")
	if !IsCode(err, ErrCodeTagTooSmall) {
		t.Fatalf("expected TAG_TOO_SMALL, got %v", err)
	}
	if tag.CallCount("WriteMessage") != 0 {
		t.Error("WriteMessage must not be called when the message does not fit")
	}
}

func TestEngineRead_ConnectFault(t *testing.T) {
	ndef := NewMockNdef(141)
	ndef.ConnectError = fmt.Errorf("%w: rf field lost", ErrTagIO)
	tag := ntag213(ndef)

	_, err := NewEngine(nil, nil).Read(context.Background(), tag)
	if !IsCode(err, ErrCodeTagIO) {
		t.Fatalf("expected TAG_IO_ERROR, got %v", err)
	}
	if tag.CallCount("Close") != 1 {
		t.Errorf("expected Close exactly once, got %d", tag.CallCount("Close"))
	}
	if tag.CallCount("ReadMessage") != 0 {
		t.Error("ReadMessage must not be called after a failed connect")
	}
}

func TestEngineRead_Faults(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*MockNdef)
		code  ErrorCode
	}{
		{"malformed", func(n *MockNdef) { n.ReadError = fmt.Errorf("%w: bad header", ErrInvalidNDEF) }, ErrCodeInvalidNDEF},
		{"io", func(n *MockNdef) { n.ReadError = errors.New("transceive timeout") }, ErrCodeTagIO},
		{"lost during read", func(n *MockNdef) { n.ReadError = ErrTagLost }, ErrCodeTagIO},
		{"panic", func(n *MockNdef) { n.PanicOnRead = true }, ErrCodeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ndef := NewMockNdef(141)
			tt.setup(ndef)
			tag := ntag213(ndef)

			_, err := NewEngine(nil, nil).Read(context.Background(), tag)
			if !IsCode(err, tt.code) {
				t.Fatalf("expected %v, got %v", tt.code, err)
			}
			if tag.CallCount("Close") != 1 {
				t.Errorf("expected Close exactly once, got %d", tag.CallCount("Close"))
			}
			if nfcErr := AsNFCError(err); nfcErr.TagUID != "04A1B2C3D4E580" {
				t.Errorf("expected error bound to uid, got %q", nfcErr.TagUID)
			}
		})
	}
}

func TestEngineRead_ContentClassification(t *testing.T) {
	valid, _ := NewTagPayload("tag-42")
	future := TagPayload{Version: 2, TagID: "tag-42", Checksum: PayloadChecksum(2, "tag-42")}
	tampered := valid
	tampered.Checksum = "00000000"

	tests := []struct {
		name    string
		msg     *NDEFMessage
		want    ContentKind
		errCode ErrorCode
	}{
		{"empty message", nil, ContentBlank, 0},
		{"text record", NewNDEFMessage().AddText("hello", "en"), ContentForeign, ErrCodeInvalidPayload},
		{"foreign uri", uriMessage("https://example.com"), ContentForeign, ErrCodeInvalidPayload},
		{"malformed umbral uri", uriMessage("umbral://v1/tag-42"), ContentForeign, ErrCodeInvalidPayload},
		{"checksum mismatch", uriMessage(tampered.URI()), ContentChecksumMismatch, ErrCodeChecksumMismatch},
		{"future version", uriMessage(future.URI()), ContentUnsupportedVersion, ErrCodeInvalidPayload},
		{"known", uriMessage(valid.URI()), ContentKnown, 0},
		{"known first record wins", uriMessage(valid.URI()).AddText("note", "en"), ContentKnown, 0},
		{"second record ignored", NewNDEFMessage().AddText("note", "en").AddURI(valid.URI()), ContentForeign, ErrCodeInvalidPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ndef := NewMockNdef(141)
			ndef.Message = tt.msg
			out, err := NewEngine(nil, nil).Read(context.Background(), ntag213(ndef))
			if err != nil {
				t.Fatalf("Read() error = %v", err)
			}
			if out.Content != tt.want {
				t.Errorf("Content = %v, want %v", out.Content, tt.want)
			}
			contentErr := out.ContentError()
			if tt.errCode == 0 {
				if contentErr != nil {
					t.Errorf("expected no content error, got %v", contentErr)
				}
			} else if contentErr == nil || contentErr.Code != tt.errCode {
				t.Errorf("ContentError() = %v, want %v", contentErr, tt.errCode)
			}
		})
	}
}

func TestEngineRead_RegistryResolution(t *testing.T) {
	payload, _ := NewTagPayload("tag-42")
	entry := RegisteredTag{ID: "tag-42", UID: "DEADBEEF", Name: "Desk", CreatedAt: time.Unix(0, 0)}

	t.Run("by uid", func(t *testing.T) {
		reg := NewMockRegistry(RegisteredTag{ID: "other", UID: "04A1B2C3D4E580", Name: "Door"})
		out, err := NewEngine(reg, nil).Read(context.Background(), ntag213(NewMockNdef(141)))
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if !out.Resolved() || out.Entry.Name != "Door" {
			t.Errorf("expected uid match, got %+v", out.Entry)
		}
		if calls := reg.Calls(); len(calls) != 1 || calls[0] != "FindByUID" {
			t.Errorf("unexpected registry calls %v", calls)
		}
	})

	t.Run("by payload id", func(t *testing.T) {
		reg := NewMockRegistry(entry)
		ndef := NewMockNdef(141)
		ndef.Message = uriMessage(payload.URI())
		out, err := NewEngine(reg, nil).Read(context.Background(), ntag213(ndef))
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if !out.Resolved() || out.Entry.ID != "tag-42" {
			t.Errorf("expected id match, got %+v", out.Entry)
		}
	})

	t.Run("foreign content not looked up by id", func(t *testing.T) {
		reg := NewMockRegistry(entry)
		ndef := NewMockNdef(141)
		ndef.Message = uriMessage("https://example.com")
		out, err := NewEngine(reg, nil).Read(context.Background(), ntag213(ndef))
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if out.Resolved() {
			t.Error("expected unresolved outcome")
		}
		for _, c := range reg.Calls() {
			if c == "FindByID" {
				t.Error("FindByID must not be called for foreign content")
			}
		}
	})

	t.Run("registry failure", func(t *testing.T) {
		reg := NewMockRegistry()
		reg.FindError = errors.New("database is locked")
		_, err := NewEngine(reg, nil).Read(context.Background(), ntag213(NewMockNdef(141)))
		if !IsCode(err, ErrCodeUnknown) {
			t.Errorf("expected UNKNOWN_ERROR, got %v", err)
		}
	})
}

func TestEngineWrite_Formatable(t *testing.T) {
	tag := NewMockTag(testUID, TechNfcA, TechMifareUltralight, TechNdefFormatable)
	tag.FormatableTech = &MockFormatable{}

	out, err := NewEngine(nil, nil).Write(context.Background(), tag, "tag-7")
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if !out.Formatted {
		t.Error("expected Formatted outcome")
	}
	uri, err := tag.FormatableTech.Formatted.GetURI()
	if err != nil || uri != out.Payload.URI() {
		t.Errorf("formatted message uri = %q, %v", uri, err)
	}
	if tag.CallCount("Close") != 1 {
		t.Errorf("expected Close once, got %d", tag.CallCount("Close"))
	}
}

func TestEngineWrite_FormatableTooSmall(t *testing.T) {
	tag := NewMockTag(testUID, TechNfcA, TechMifareUltralight, TechNdefFormatable)
	tag.FormatableTech = &MockFormatable{Capacity: 20}

	_, err := NewEngine(nil, nil).Write(context.Background(), tag, "tag-7")
	if !IsCode(err, ErrCodeTagTooSmall) {
		t.Fatalf("expected TAG_TOO_SMALL, got %v", err)
	}
	if tag.CallCount("Connect") != 0 || tag.CallCount("Format") != 0 {
		t.Errorf("blank tag was touched before the capacity check: %v", tag.Calls())
	}
}

func TestEngineWrite_Unsupported(t *testing.T) {
	tag := NewMockTag(testUID, TechNfcA, TechMifareClassic)

	_, err := NewEngine(nil, nil).Write(context.Background(), tag, "tag-7")
	if !IsCode(err, ErrCodeTagNotSupported) {
		t.Fatalf("expected TAG_NOT_SUPPORTED, got %v", err)
	}
}

func TestEngineWrite_InvalidTagID(t *testing.T) {
	tag := ntag213(NewMockNdef(141))

	_, err := NewEngine(nil, nil).Write(context.Background(), tag, "has space")
	if !IsCode(err, ErrCodeInvalidPayload) {
		t.Fatalf("expected INVALID_PAYLOAD, got %v", err)
	}
	if tag.CallCount("Connect") != 0 {
		t.Error("tag must not be touched for an invalid id")
	}
}

func TestEngineWrite_CommitFaults(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*MockTag)
		code  ErrorCode
	}{
		{"lost", func(m *MockTag) { m.NdefTech.WriteError = fmt.Errorf("write page 5: %w", ErrTagLost) }, ErrCodeTagLost},
		{"io", func(m *MockTag) { m.NdefTech.WriteError = fmt.Errorf("write page 5: %w", ErrTagIO) }, ErrCodeTagIO},
		{"other", func(m *MockTag) { m.NdefTech.WriteError = errors.New("nak") }, ErrCodeWriteFailed},
		{"panic", func(m *MockTag) { m.NdefTech.PanicOnWrite = true }, ErrCodeWriteFailed},
		{"connect", func(m *MockTag) { m.NdefTech.ConnectError = errors.New("no target") }, ErrCodeTagIO},
		{"format lost", func(m *MockTag) {
			m.NdefTech = nil
			m.FormatableTech = &MockFormatable{FormatError: ErrTagLost}
		}, ErrCodeTagLost},
		{"format panic", func(m *MockTag) {
			m.NdefTech = nil
			m.FormatableTech = &MockFormatable{PanicOnFormat: true}
		}, ErrCodeWriteFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tag := ntag213(NewMockNdef(141))
			tt.setup(tag)

			_, err := NewEngine(nil, nil).Write(context.Background(), tag, "tag-42")
			if !IsCode(err, tt.code) {
				t.Fatalf("expected %v, got %v", tt.code, err)
			}
			if tag.CallCount("Close") != 1 {
				t.Errorf("expected Close exactly once, got %d", tag.CallCount("Close"))
			}
		})
	}
}

func TestResolveInterface(t *testing.T) {
	both := NewMockTag(testUID)
	both.NdefTech = NewMockNdef(10)
	both.FormatableTech = &MockFormatable{}
	if _, ok := ResolveInterface(both).(NdefInterface); !ok {
		t.Error("NDEF should win over formatable")
	}

	formatable := NewMockTag(testUID)
	formatable.FormatableTech = &MockFormatable{}
	if _, ok := ResolveInterface(formatable).(FormatableInterface); !ok {
		t.Error("expected formatable interface")
	}

	if _, ok := ResolveInterface(NewMockTag(testUID)).(UnsupportedInterface); !ok {
		t.Error("expected unsupported interface")
	}
	if _, ok := ResolveInterface(nil).(UnsupportedInterface); !ok {
		t.Error("nil tag should be unsupported")
	}
}
