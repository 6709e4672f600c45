package nfc

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorCodeNames(t *testing.T) {
	want := []string{
		"NFC_NOT_AVAILABLE", "NFC_DISABLED", "TAG_NOT_SUPPORTED", "TAG_READ_ONLY",
		"TAG_TOO_SMALL", "TAG_LOST", "TAG_IO_ERROR", "INVALID_NDEF", "INVALID_PAYLOAD",
		"CHECKSUM_MISMATCH", "WRITE_FAILED", "TAG_ALREADY_REGISTERED", "UNKNOWN_ERROR",
	}
	codes := AllErrorCodes()
	if len(codes) != len(want) {
		t.Fatalf("expected %d codes, got %d", len(want), len(codes))
	}
	for i, code := range codes {
		if code.String() != want[i] {
			t.Errorf("code %d: expected %s, got %s", int(code), want[i], code.String())
		}
		parsed, ok := ParseErrorCode(want[i])
		if !ok || parsed != code {
			t.Errorf("ParseErrorCode(%s) = %v, %v", want[i], parsed, ok)
		}
	}
}

func TestErrorCodeJSON(t *testing.T) {
	data, err := json.Marshal(map[string]ErrorCode{"code": ErrCodeTagLost})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"code":"TAG_LOST"}` {
		t.Errorf("unexpected json: %s", data)
	}

	var out map[string]ErrorCode
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out["code"] != ErrCodeTagLost {
		t.Errorf("expected TAG_LOST, got %v", out["code"])
	}

	if err := json.Unmarshal([]byte(`{"code":"NOPE"}`), &out); err == nil {
		t.Error("expected error for unknown code")
	}
}

func TestNFCError_Error(t *testing.T) {
	cause := errors.New("timeout")
	err := &NFCError{Code: ErrCodeTagIO, Op: "Read", TagUID: "04A1B2C3", Message: "i/o failed", Cause: cause}

	msg := err.Error()
	for _, part := range []string{"Read: ", "i/o failed", "04A1B2C3", "timeout"} {
		if !strings.Contains(msg, part) {
			t.Errorf("expected %q in %q", part, msg)
		}
	}
	if !errors.Is(err, cause) {
		t.Error("expected Unwrap to expose cause")
	}
}

func TestNFCError_IsComparesCode(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NewError(ErrCodeTagAlreadyRegistered, "Insert", nil))

	if !errors.Is(err, ErrTagAlreadyRegistered) {
		t.Error("expected errors.Is to match on code")
	}
	if errors.Is(err, NewError(ErrCodeTagLost, "", nil)) {
		t.Error("expected different codes not to match")
	}
}

func TestGetErrorCodeAndIsCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"nil", nil, 0},
		{"plain", errors.New("x"), 0},
		{"direct", NewError(ErrCodeTagReadOnly, "Write", nil), ErrCodeTagReadOnly},
		{"wrapped", fmt.Errorf("ctx: %w", NewError(ErrCodeTagTooSmall, "Write", nil)), ErrCodeTagTooSmall},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetErrorCode(tt.err); got != tt.want {
				t.Errorf("GetErrorCode() = %v, want %v", got, tt.want)
			}
			if tt.want != 0 && !IsCode(tt.err, tt.want) {
				t.Errorf("IsCode() = false, want true")
			}
		})
	}
}

func TestAsNFCError(t *testing.T) {
	if AsNFCError(nil) != nil {
		t.Error("expected nil for nil error")
	}
	if got := AsNFCError(errors.New("boom")); got.Code != ErrCodeUnknown {
		t.Errorf("expected UNKNOWN_ERROR, got %v", got.Code)
	}
	orig := NewError(ErrCodeTagLost, "Write", nil)
	if got := AsNFCError(fmt.Errorf("w: %w", orig)); got != orig {
		t.Error("expected original NFCError to be returned")
	}
}

func TestLocalizedMessage(t *testing.T) {
	for _, code := range AllErrorCodes() {
		if LocalizedMessage(code, "en") == "" {
			t.Errorf("missing english message for %s", code)
		}
		if LocalizedMessage(code, "es") == "" {
			t.Errorf("missing spanish message for %s", code)
		}
	}

	tests := []struct {
		lang string
		want string
	}{
		{"", "Tag lost, bring it close again"},
		{"en-US", "Tag lost, bring it close again"},
		{"es-MX", "Se perdió la etiqueta, acércala de nuevo"},
		{"es;q=0.9, en;q=0.8", "Se perdió la etiqueta, acércala de nuevo"},
		{"ja", "Tag lost, bring it close again"},
		{"not a tag!!", "Tag lost, bring it close again"},
	}
	for _, tt := range tests {
		t.Run(tt.lang, func(t *testing.T) {
			if got := LocalizedMessage(ErrCodeTagLost, tt.lang); got != tt.want {
				t.Errorf("LocalizedMessage(TAG_LOST, %q) = %q, want %q", tt.lang, got, tt.want)
			}
		})
	}
}
