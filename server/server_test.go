package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nedpals/umbral-nfc/nfc"
	"github.com/nedpals/umbral-nfc/nfc/virtual"
	"github.com/nedpals/umbral-nfc/protocol"
)

type testEnv struct {
	srv      *Server
	adapter  *virtual.Adapter
	coord    *nfc.Coordinator
	registry *nfc.MockRegistry
	http     *httptest.Server
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	adapter := virtual.NewAdapter(nil)
	monitor := nfc.NewAdapterMonitor(adapter, nil)
	registry := nfc.NewMockRegistry()
	coord, err := nfc.NewCoordinator(nfc.CoordinatorConfig{
		Monitor:  monitor,
		Adapter:  adapter,
		Engine:   nfc.NewEngine(registry, nil),
		Registry: registry,
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go coord.Run(ctx)

	cfg.Coordinator = coord
	cfg.Monitor = monitor
	cfg.Registry = registry
	if cfg.Virtual == nil {
		cfg.Virtual = adapter
	}
	srv, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	srv.handlerRegistry.StartLifecycleHandlers(ctx)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{srv: srv, adapter: adapter, coord: coord, registry: registry, http: ts}
}

func (e *testEnv) do(t *testing.T, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
}

func TestNew_RequiresDependencies(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for empty config")
	}
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t, Config{})

	w := env.do(t, http.MethodGet, "/api/v1/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var resp protocol.HealthResponse
	decodeBody(t, w, &resp)
	if resp.Status != "ok" || resp.Adapter != "enabled" || resp.Scan != "idle" {
		t.Errorf("unexpected health response %+v", resp)
	}

	if w := env.do(t, http.MethodPost, "/api/v1/health", "", nil); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST health: expected 405, got %d", w.Code)
	}
}

// TestHandshakeEndpoint tests the session handshake flow
func TestHandshakeEndpoint(t *testing.T) {
	env := newTestEnv(t, Config{})
	header := http.Header{"Origin": {"http://localhost:3000"}}

	w := env.do(t, http.MethodPost, "/api/v1/handshake", "{}", header)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var resp protocol.HandshakeResponse
	decodeBody(t, w, &resp)
	if resp.Token == "" {
		t.Fatal("Expected token in response")
	}
	if !env.srv.sessions.Validate(resp.Token, "http://localhost:3000", "192.0.2.1:1234") {
		t.Error("Expected token to be valid with correct origin and host")
	}

	w = env.do(t, http.MethodPost, "/api/v1/handshake", "{}", header)
	if w.Code != http.StatusConflict {
		t.Fatalf("second handshake: expected 409, got %d", w.Code)
	}
	decodeBody(t, w, &resp)
	if resp.Error == nil || resp.Error.Code != protocol.ErrCodeSessionClaimed {
		t.Errorf("expected SESSION_CLAIMED, got %+v", resp.Error)
	}
}

// TestHandshakeWithAPISecret tests handshake with API secret validation
func TestHandshakeWithAPISecret(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		expectedStatus int
		expectToken    bool
	}{
		{"Valid secret", `{"secret":"test-secret"}`, http.StatusOK, true},
		{"Invalid secret", `{"secret":"wrong-secret"}`, http.StatusConflict, false},
		{"No secret", `{}`, http.StatusConflict, false},
		{"Malformed body", `{`, http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, Config{APISecret: "test-secret"})

			w := env.do(t, http.MethodPost, "/api/v1/handshake", tt.body, nil)
			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
			var resp protocol.HandshakeResponse
			decodeBody(t, w, &resp)
			if (resp.Token != "") != tt.expectToken {
				t.Errorf("token present = %v, want %v", resp.Token != "", tt.expectToken)
			}
		})
	}
}

func TestListTags_Auth(t *testing.T) {
	env := newTestEnv(t, Config{APISecret: "test-secret"})
	env.registry.Insert(context.Background(), nfc.RegisteredTag{ID: "tag-1", UID: "04A1B2C3", Name: "Desk", CreatedAt: time.Now()})

	if w := env.do(t, http.MethodGet, "/api/v1/tags", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("without token: expected 401, got %d", w.Code)
	}

	w := env.do(t, http.MethodPost, "/api/v1/handshake", `{"secret":"test-secret"}`, nil)
	var hs protocol.HandshakeResponse
	decodeBody(t, w, &hs)

	w = env.do(t, http.MethodGet, "/api/v1/tags", "", http.Header{"Authorization": {"Bearer " + hs.Token}})
	if w.Code != http.StatusOK {
		t.Fatalf("with token: expected 200, got %d", w.Code)
	}
	var resp protocol.TagListResponse
	decodeBody(t, w, &resp)
	if len(resp.Tags) != 1 || resp.Tags[0].Name != "Desk" {
		t.Errorf("unexpected tags %+v", resp.Tags)
	}
}

func TestTagInput(t *testing.T) {
	env := newTestEnv(t, Config{})

	tests := []struct {
		name      string
		body      string
		status    int
		code      string
		delivered bool
	}{
		{"malformed body", `{`, http.StatusBadRequest, protocol.ErrCodeInvalidRequest, false},
		{"invalid uid", `{"uid":"zz"}`, http.StatusBadRequest, protocol.ErrCodeInvalidUID, false},
		{"unknown type", `{"uid":"04A1B2C3","type":"FELICA"}`, http.StatusBadRequest, protocol.ErrCodeInvalidRequest, false},
		{"bad record", `{"uid":"04A1B2C3","message":{"records":[{"recordType":"mime"}]}}`, http.StatusBadRequest, protocol.ErrCodeInvalidRequest, false},
		{"not scanning", `{"uid":"04:a1:b2:c3"}`, http.StatusOK, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/v1/tag", tt.body, nil)
			if w.Code != tt.status {
				t.Fatalf("Expected status %d, got %d", tt.status, w.Code)
			}
			var resp protocol.TagInputResponse
			decodeBody(t, w, &resp)
			if tt.code != "" && (resp.Error == nil || resp.Error.Code != tt.code) {
				t.Errorf("expected error %s, got %+v", tt.code, resp.Error)
			}
			if resp.Delivered != tt.delivered {
				t.Errorf("Delivered = %v, want %v", resp.Delivered, tt.delivered)
			}
		})
	}
}

func TestTagInput_WithoutVirtualBackend(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.srv.config.Virtual = nil

	w := env.do(t, http.MethodPost, "/api/v1/tag", `{"uid":"04A1B2C3"}`, nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected status 503, got %d", w.Code)
	}
}

// wsFrame holds either a broadcast or a response.
type wsFrame struct {
	ID      string                 `json:"id"`
	Type    string                 `json:"type"`
	Success bool                   `json:"success"`
	Payload json.RawMessage        `json:"payload"`
	Error   *protocol.ErrorPayload `json:"error"`
}

func dial(t *testing.T, env *testEnv, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, id, typ string, payload any) {
	t.Helper()
	req := map[string]any{"id": id, "type": typ}
	if payload != nil {
		req["payload"] = payload
	}
	if err := conn.WriteJSON(req); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readUntil(t *testing.T, conn *websocket.Conn, match func(wsFrame) bool) wsFrame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var f wsFrame
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatalf("read: %v", err)
		}
		if match(f) {
			return f
		}
	}
}

func response(id string) func(wsFrame) bool {
	return func(f wsFrame) bool { return f.ID == id }
}

func broadcast(typ string) func(wsFrame) bool {
	return func(f wsFrame) bool { return f.ID == "" && f.Type == typ }
}

func present(t *testing.T, env *testEnv, body string) protocol.TagInputResponse {
	t.Helper()
	resp, err := http.Post(env.http.URL+"/api/v1/tag", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out protocol.TagInputResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	return out
}

func TestWebSocket_Snapshot(t *testing.T) {
	env := newTestEnv(t, Config{})
	conn := dial(t, env, "")

	f := readUntil(t, conn, broadcast(protocol.WSTypeAdapterState))
	var adapter protocol.AdapterStatePayload
	json.Unmarshal(f.Payload, &adapter)
	if adapter.State != "enabled" || !adapter.Available {
		t.Errorf("unexpected adapter state %+v", adapter)
	}

	f = readUntil(t, conn, broadcast(protocol.WSTypeScanState))
	var scan protocol.ScanStatePayload
	json.Unmarshal(f.Payload, &scan)
	if scan.Phase != "idle" {
		t.Errorf("expected idle, got %s", scan.Phase)
	}
}

func TestWebSocket_ScanUnknownTag(t *testing.T) {
	env := newTestEnv(t, Config{})
	conn := dial(t, env, "")

	send(t, conn, "1", protocol.WSTypeStartScan, nil)
	f := readUntil(t, conn, response("1"))
	if !f.Success {
		t.Fatalf("startScan failed: %+v", f.Error)
	}

	if out := present(t, env, `{"uid":"04A1B2C3D4E580"}`); !out.Delivered {
		t.Fatal("expected the tag to be delivered")
	}

	f = readUntil(t, conn, broadcast(protocol.WSTypeTagEvent))
	var ev protocol.TagEventPayload
	json.Unmarshal(f.Payload, &ev)
	if ev.Kind != "unknown" || ev.UID != "04A1B2C3D4E580" || ev.Type != "NTAG215" {
		t.Errorf("unexpected tag event %+v", ev)
	}
}

func TestWebSocket_RegisterTag(t *testing.T) {
	env := newTestEnv(t, Config{})
	conn := dial(t, env, "")

	send(t, conn, "1", protocol.WSTypeWriteTag, protocol.WriteTagPayload{Name: "Desk", Location: "Office"})
	f := readUntil(t, conn, response("1"))
	if !f.Success {
		t.Fatalf("writeTag failed: %+v", f.Error)
	}

	present(t, env, `{"uid":"04A1B2C3D4E580","blank":true}`)

	f = readUntil(t, conn, func(f wsFrame) bool {
		return broadcast(protocol.WSTypeScanState)(f) && strings.Contains(string(f.Payload), "tag_registered")
	})
	var scan protocol.ScanStatePayload
	json.Unmarshal(f.Payload, &scan)
	if scan.Tag == nil || scan.Tag.Name != "Desk" || scan.Tag.UID != "04A1B2C3D4E580" {
		t.Fatalf("unexpected registered state %+v", scan)
	}

	send(t, conn, "2", protocol.WSTypeListTags, nil)
	f = readUntil(t, conn, response("2"))
	var list protocol.TagListResponse
	json.Unmarshal(f.Payload, &list)
	if len(list.Tags) != 1 || list.Tags[0].ID != scan.Tag.ID {
		t.Fatalf("unexpected tag list %+v", list.Tags)
	}

	name := "Front desk"
	send(t, conn, "3", protocol.WSTypeUpdateTag, protocol.UpdateTagPayload{ID: scan.Tag.ID, Name: &name})
	f = readUntil(t, conn, response("3"))
	var updated protocol.RegisteredTagPayload
	json.Unmarshal(f.Payload, &updated)
	if !f.Success || updated.Name != name || updated.Location != "Office" {
		t.Errorf("unexpected update result %+v", updated)
	}

	send(t, conn, "4", protocol.WSTypeDeleteTag, protocol.DeleteTagPayload{ID: scan.Tag.ID})
	if f = readUntil(t, conn, response("4")); !f.Success {
		t.Fatalf("deleteTag failed: %+v", f.Error)
	}
	send(t, conn, "5", protocol.WSTypeDeleteTag, protocol.DeleteTagPayload{ID: scan.Tag.ID})
	if f = readUntil(t, conn, response("5")); f.Success || f.Error.Code != protocol.ErrCodeNotFound {
		t.Errorf("expected NOT_FOUND, got %+v", f.Error)
	}
}

func TestWebSocket_RequestErrors(t *testing.T) {
	env := newTestEnv(t, Config{})
	conn := dial(t, env, "?lang=es")

	tests := []struct {
		name    string
		id      string
		typ     string
		payload any
		code    string
	}{
		{"unknown type", "1", "launchRocket", nil, protocol.ErrCodeUnknownType},
		{"empty name", "2", protocol.WSTypeWriteTag, protocol.WriteTagPayload{}, nfc.ErrCodeInvalidPayload.String()},
		{"bad payload", "3", protocol.WSTypeDeleteTag, "not an object", protocol.ErrCodeInvalidRequest},
		{"missing id", "4", protocol.WSTypeUpdateTag, protocol.UpdateTagPayload{}, protocol.ErrCodeInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			send(t, conn, tt.id, tt.typ, tt.payload)
			f := readUntil(t, conn, response(tt.id))
			if f.Success || f.Error == nil || f.Error.Code != tt.code {
				t.Errorf("expected %s, got %+v", tt.code, f.Error)
			}
		})
	}

	t.Run("parse error", func(t *testing.T) {
		conn.WriteMessage(websocket.TextMessage, []byte("{"))
		f := readUntil(t, conn, func(f wsFrame) bool { return f.Type == protocol.WSTypeError })
		if f.Error == nil || f.Error.Code != protocol.ErrCodeParseError {
			t.Errorf("expected PARSE_ERROR, got %+v", f.Error)
		}
	})

	t.Run("adapter disabled", func(t *testing.T) {
		env.adapter.SetEnabled(false)
		defer env.adapter.SetEnabled(true)
		send(t, conn, "6", protocol.WSTypeStartScan, nil)
		f := readUntil(t, conn, response("6"))
		if f.Success || f.Error.Code != nfc.ErrCodeNFCDisabled.String() {
			t.Errorf("expected NFC_DISABLED, got %+v", f.Error)
		}
		if f.Error.Message != nfc.LocalizedMessage(nfc.ErrCodeNFCDisabled, "es") {
			t.Errorf("expected Spanish message, got %q", f.Error.Message)
		}
	})
}

func TestWebSocket_RequiresToken(t *testing.T) {
	env := newTestEnv(t, Config{APISecret: "test-secret"})
	url := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected dial without token to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", resp)
	}

	hs, err := http.Post(env.http.URL+"/api/v1/handshake", "application/json", strings.NewReader(`{"secret":"test-secret"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer hs.Body.Close()
	var out protocol.HandshakeResponse
	json.NewDecoder(hs.Body).Decode(&out)

	conn := dial(t, env, "?token="+out.Token)
	readUntil(t, conn, broadcast(protocol.WSTypeAdapterState))
}
