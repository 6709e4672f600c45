package protocol

import (
	"encoding/json"
	"time"
)

// Client requests.
const (
	WSTypeStartScan      = "startScan"
	WSTypeStopScan       = "stopScan"
	WSTypeResetScan      = "resetScan"
	WSTypeRefreshAdapter = "refreshAdapter"
	WSTypeWriteTag       = "writeTag"
	WSTypeListTags       = "listTags"
	WSTypeUpdateTag      = "updateTag"
	WSTypeDeleteTag      = "deleteTag"
)

// Server broadcasts.
const (
	WSTypeTagEvent     = "tagEvent"
	WSTypeScanState    = "scanState"
	WSTypeAdapterState = "adapterState"
	WSTypeError        = "error"
)

// WebSocketMessage is the envelope for broadcasts.
type WebSocketMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// WebSocketRequest is an incoming request. Payload is decoded by the
// handler registered for Type.
type WebSocketRequest struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// WebSocketResponse answers a request. ID and Type echo the request.
type WebSocketResponse struct {
	ID      string        `json:"id,omitempty"`
	Type    string        `json:"type"`
	Success bool          `json:"success"`
	Payload any           `json:"payload,omitempty"`
	Error   *ErrorPayload `json:"error,omitempty"`
}

// TagEventPayload is broadcast once per processed presentation.
type TagEventPayload struct {
	Kind    string                `json:"kind"` // known, unknown, invalid or registered
	UID     string                `json:"uid"`
	Type    string                `json:"type"`
	Content string                `json:"content"`
	Tag     *RegisteredTagPayload `json:"tag,omitempty"`
	Error   *ErrorPayload         `json:"error,omitempty"`
	At      time.Time             `json:"at"`
}

// ScanStatePayload is broadcast on every scan state change.
type ScanStatePayload struct {
	Phase string                `json:"phase"`
	Tag   *RegisteredTagPayload `json:"tag,omitempty"`
	Error *ErrorPayload         `json:"error,omitempty"`
}

// AdapterStatePayload is broadcast on every adapter state change.
type AdapterStatePayload struct {
	State     string `json:"state"`
	Available bool   `json:"available"`
}

// WriteTagPayload asks the agent to register the next presented tag.
type WriteTagPayload struct {
	Name      string `json:"name"`
	Location  string `json:"location,omitempty"`
	ProfileID string `json:"profileId,omitempty"`
}

// UpdateTagPayload edits a registry entry. Nil fields are left unchanged.
type UpdateTagPayload struct {
	ID        string  `json:"id"`
	Name      *string `json:"name,omitempty"`
	Location  *string `json:"location,omitempty"`
	ProfileID *string `json:"profileId,omitempty"`
}

// DeleteTagPayload removes a registry entry.
type DeleteTagPayload struct {
	ID string `json:"id"`
}
