package protocol

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestWebSocketRequest_DeferredPayload(t *testing.T) {
	raw := `{"id":"42","type":"writeTag","payload":{"name":"Kitchen","profileId":"p-1"}}`

	var req WebSocketRequest
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if req.ID != "42" || req.Type != WSTypeWriteTag {
		t.Fatalf("unexpected envelope %+v", req)
	}

	var payload WriteTagPayload
	if err := json.Unmarshal(req.Payload, &payload); err != nil {
		t.Fatalf("payload Unmarshal() error = %v", err)
	}
	if payload.Name != "Kitchen" || payload.ProfileID != "p-1" || payload.Location != "" {
		t.Errorf("unexpected payload %+v", payload)
	}
}

func TestTagEventPayload_WireShape(t *testing.T) {
	ev := TagEventPayload{
		Kind:    "invalid",
		UID:     "04A1B2",
		Type:    "NTAG215",
		Content: "checksum_mismatch",
		Error:   &ErrorPayload{Code: "CHECKSUM_MISMATCH", Message: "The tag data failed its integrity check."},
		At:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}
	got := string(data)
	for _, want := range []string{`"kind":"invalid"`, `"error":{"code":"CHECKSUM_MISMATCH"`, `"at":"2026-03-01T12:00:00Z"`} {
		if !strings.Contains(got, want) {
			t.Errorf("encoded %s missing %s", got, want)
		}
	}
	if strings.Contains(got, `"tag"`) {
		t.Errorf("nil tag should be omitted: %s", got)
	}
}

func TestUpdateTagPayload_PartialFields(t *testing.T) {
	var p UpdateTagPayload
	if err := json.Unmarshal([]byte(`{"id":"t-1","location":""}`), &p); err != nil {
		t.Fatal(err)
	}
	if p.Name != nil {
		t.Error("absent name should stay nil")
	}
	if p.Location == nil || *p.Location != "" {
		t.Error("explicit empty location should be set")
	}
}
