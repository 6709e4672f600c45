package nfc

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode identifies a class of NFC fault for programmatic handling.
type ErrorCode int

const (
	// Adapter errors
	ErrCodeNFCNotAvailable ErrorCode = iota + 100
	ErrCodeNFCDisabled

	// Tag errors
	ErrCodeTagNotSupported
	ErrCodeTagReadOnly
	ErrCodeTagTooSmall
	ErrCodeTagLost
	ErrCodeTagIO

	// Content errors
	ErrCodeInvalidNDEF
	ErrCodeInvalidPayload
	ErrCodeChecksumMismatch

	// Registration errors
	ErrCodeWriteFailed
	ErrCodeTagAlreadyRegistered

	ErrCodeUnknown
)

var errorCodeNames = map[ErrorCode]string{
	ErrCodeNFCNotAvailable:      "NFC_NOT_AVAILABLE",
	ErrCodeNFCDisabled:          "NFC_DISABLED",
	ErrCodeTagNotSupported:      "TAG_NOT_SUPPORTED",
	ErrCodeTagReadOnly:          "TAG_READ_ONLY",
	ErrCodeTagTooSmall:          "TAG_TOO_SMALL",
	ErrCodeTagLost:              "TAG_LOST",
	ErrCodeTagIO:                "TAG_IO_ERROR",
	ErrCodeInvalidNDEF:          "INVALID_NDEF",
	ErrCodeInvalidPayload:       "INVALID_PAYLOAD",
	ErrCodeChecksumMismatch:     "CHECKSUM_MISMATCH",
	ErrCodeWriteFailed:          "WRITE_FAILED",
	ErrCodeTagAlreadyRegistered: "TAG_ALREADY_REGISTERED",
	ErrCodeUnknown:              "UNKNOWN_ERROR",
}

// AllErrorCodes lists every code in declaration order.
func AllErrorCodes() []ErrorCode {
	codes := make([]ErrorCode, 0, len(errorCodeNames))
	for c := ErrCodeNFCNotAvailable; c <= ErrCodeUnknown; c++ {
		codes = append(codes, c)
	}
	return codes
}

func (c ErrorCode) String() string {
	if name, ok := errorCodeNames[c]; ok {
		return name
	}
	return errorCodeNames[ErrCodeUnknown]
}

func (c ErrorCode) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *ErrorCode) UnmarshalText(text []byte) error {
	code, ok := ParseErrorCode(string(text))
	if !ok {
		return fmt.Errorf("unknown error code %q", text)
	}
	*c = code
	return nil
}

// ParseErrorCode maps a taxonomy name such as "TAG_LOST" back to its code.
func ParseErrorCode(name string) (ErrorCode, bool) {
	for code, n := range errorCodeNames {
		if n == name {
			return code, true
		}
	}
	return 0, false
}

// Platform errors. Tag handle implementations wrap these so the engine can
// tell a removed tag from a generic I/O fault or malformed content.
var (
	ErrTagLost     = errors.New("tag lost")
	ErrTagIO       = errors.New("tag i/o failure")
	ErrInvalidNDEF = errors.New("malformed NDEF data")
)

// NFCError provides structured error information for programmatic handling.
type NFCError struct {
	Code    ErrorCode
	Op      string // Operation that failed (e.g., "Read", "Write", "EnableScanning")
	TagUID  string // Optional: UID of tag involved
	Message string // Human-readable message
	Cause   error  // Underlying error
}

func (e *NFCError) Error() string {
	var sb strings.Builder
	if e.Op != "" {
		sb.WriteString(e.Op)
		sb.WriteString(": ")
	}
	sb.WriteString(e.Message)
	if e.TagUID != "" {
		sb.WriteString(" (uid ")
		sb.WriteString(e.TagUID)
		sb.WriteString(")")
	}
	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

func (e *NFCError) Unwrap() error {
	return e.Cause
}

func (e *NFCError) Is(target error) bool {
	if t, ok := target.(*NFCError); ok {
		return e.Code == t.Code
	}
	return false
}

// ErrTagAlreadyRegistered is returned by registries on an id or uid conflict.
var ErrTagAlreadyRegistered = &NFCError{
	Code:    ErrCodeTagAlreadyRegistered,
	Message: "tag already registered",
}

// NewError creates an error with the default message for code.
func NewError(code ErrorCode, op string, cause error) *NFCError {
	return &NFCError{
		Code:    code,
		Op:      op,
		Message: LocalizedMessage(code, ""),
		Cause:   cause,
	}
}

// WrapError wraps an existing error with NFC context.
func WrapError(code ErrorCode, op, message string, cause error) *NFCError {
	return &NFCError{
		Code:    code,
		Op:      op,
		Message: message,
		Cause:   cause,
	}
}

// Errorf creates an NFCError with a formatted message.
func Errorf(code ErrorCode, op, format string, args ...any) *NFCError {
	return &NFCError{
		Code:    code,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}

// withUID returns a copy of e bound to uid.
func (e *NFCError) withUID(uid string) *NFCError {
	cp := *e
	cp.TagUID = uid
	return &cp
}

// AsNFCError extracts the NFCError from err. Errors of any other kind are
// wrapped as UNKNOWN_ERROR so callers always get a typed result.
func AsNFCError(err error) *NFCError {
	if err == nil {
		return nil
	}
	var nfcErr *NFCError
	if errors.As(err, &nfcErr) {
		return nfcErr
	}
	return NewError(ErrCodeUnknown, "", err)
}

// GetErrorCode extracts the ErrorCode from an error if it's an NFCError.
// Returns 0 if the error is not an NFCError.
func GetErrorCode(err error) ErrorCode {
	var nfcErr *NFCError
	if errors.As(err, &nfcErr) {
		return nfcErr.Code
	}
	return 0
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && GetErrorCode(err) == code
}
