// Package protocol defines the JSON messages exchanged with the agent over
// HTTP and WebSocket. It has no dependencies on the server or nfc packages
// so client tools can import it on its own.
package protocol

import "time"

// ErrorPayload is how every error travels over the wire. Code is a
// taxonomy name such as "TAG_TOO_SMALL"; Message is localized text.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// API-level error codes, in addition to the NFC taxonomy codes.
const (
	ErrCodeInvalidUID     = "INVALID_UID"
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeUnknownType    = "UNKNOWN_TYPE"
	ErrCodeParseError     = "PARSE_ERROR"
	ErrCodeUnauthorized   = "UNAUTHORIZED"
	ErrCodeSessionClaimed = "SESSION_CLAIMED"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeUnavailable    = "UNAVAILABLE"
	ErrCodeInternalError  = "INTERNAL_ERROR"
)

// RegisteredTagPayload mirrors a registry entry.
type RegisteredTagPayload struct {
	ID         string     `json:"id"`
	UID        string     `json:"uid"`
	Name       string     `json:"name"`
	Location   string     `json:"location,omitempty"`
	ProfileID  string     `json:"profileId,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
	UseCount   int64      `json:"useCount"`
}

// HealthResponse is returned by GET /api/v1/health.
type HealthResponse struct {
	Status    string `json:"status"`
	Name      string `json:"name"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"` // RFC3339
	Adapter   string `json:"adapter"`
	Scan      string `json:"scan"`
	Clients   int    `json:"clients"`
}

// HandshakeRequest is the body of POST /api/v1/handshake.
type HandshakeRequest struct {
	Secret string `json:"secret,omitempty"`
}

// HandshakeResponse carries the session token to pass as ?token= on /ws
// or as a bearer token on the REST endpoints.
type HandshakeResponse struct {
	Token string        `json:"token,omitempty"`
	Error *ErrorPayload `json:"error,omitempty"`
}

// TagListResponse is returned by GET /api/v1/tags.
type TagListResponse struct {
	Tags  []RegisteredTagPayload `json:"tags"`
	Error *ErrorPayload          `json:"error,omitempty"`
}

// TagInputRequest is the body of POST /api/v1/tag. It presents a virtual
// tag to the reader as if it had been tapped.
type TagInputRequest struct {
	// UID accepts "04:AB:CD:EF", "04ABCDEF", "04 AB CD EF" or "04-AB-CD-EF".
	UID string `json:"uid"`

	// Type is a tag type name such as "NTAG215". Defaults to NTAG215.
	Type string `json:"type,omitempty"`

	// Blank presents an unformatted tag.
	Blank bool `json:"blank,omitempty"`

	// ReadOnly presents a locked tag.
	ReadOnly bool `json:"readOnly,omitempty"`

	// Message replaces the tag's content before it is presented. Without it
	// the tag keeps whatever earlier presentations wrote.
	Message *NDEFMessageInput `json:"message,omitempty"`
}

// TagInputResponse is returned by POST /api/v1/tag.
type TagInputResponse struct {
	Success bool `json:"success"`
	// Delivered is false when scanning is off or a run was in flight.
	Delivered bool          `json:"delivered"`
	UID       string        `json:"uid,omitempty"` // normalized
	Error     *ErrorPayload `json:"error,omitempty"`
}
