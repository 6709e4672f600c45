package server

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nedpals/umbral-nfc/internal/syncutil"
	"github.com/nedpals/umbral-nfc/logging"
	"github.com/nedpals/umbral-nfc/protocol"
)

const writeTimeout = 5 * time.Second

// Client is one websocket connection. Writes are serialized; gorilla
// connections allow a single concurrent writer.
type Client struct {
	ID   string
	Lang string

	conn    *websocket.Conn
	writeMu syncutil.Mutex
	logger  logging.Logger
}

func newClient(id, lang string, conn *websocket.Conn, logger logging.Logger) *Client {
	return &Client{
		ID:     id,
		Lang:   lang,
		conn:   conn,
		logger: logger.With("client", id[:8]),
	}
}

// Send writes v as a JSON text frame.
func (c *Client) Send(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteJSON(v)
}

// Reply answers req with a success response.
func (c *Client) Reply(req protocol.WebSocketRequest, payload any) error {
	return c.Send(protocol.WebSocketResponse{
		ID:      req.ID,
		Type:    req.Type,
		Success: true,
		Payload: payload,
	})
}

// ReplyError answers req with a failure. An empty request type is sent as
// a generic error.
func (c *Client) ReplyError(req protocol.WebSocketRequest, code, message string) error {
	typ := req.Type
	if typ == "" {
		typ = protocol.WSTypeError
	}
	return c.Send(protocol.WebSocketResponse{
		ID:      req.ID,
		Type:    typ,
		Success: false,
		Error:   &protocol.ErrorPayload{Code: code, Message: message},
	})
}

// Decode unmarshals the request payload into v, replying INVALID_REQUEST on
// failure.
func (c *Client) Decode(req protocol.WebSocketRequest, v any) bool {
	if len(req.Payload) == 0 {
		req.Payload = []byte("{}")
	}
	if err := json.Unmarshal(req.Payload, v); err != nil {
		c.logger.Debug(context.Background(), "invalid request payload", "type", req.Type, "error", err)
		_ = c.ReplyError(req, protocol.ErrCodeInvalidRequest, "invalid payload: "+err.Error())
		return false
	}
	return true
}

func (c *Client) close() error {
	return c.conn.Close()
}

// clientSet tracks connected clients for broadcasting.
type clientSet struct {
	mu      syncutil.RWMutex
	clients map[*Client]struct{}
}

func newClientSet() *clientSet {
	return &clientSet{clients: make(map[*Client]struct{})}
}

func (s *clientSet) add(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c] = struct{}{}
}

func (s *clientSet) remove(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, c)
}

func (s *clientSet) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (s *clientSet) snapshot() []*Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Client, 0, len(s.clients))
	for c := range s.clients {
		out = append(out, c)
	}
	return out
}

// closeAll closes every connection; their read loops then unregister them.
func (s *clientSet) closeAll() {
	for _, c := range s.snapshot() {
		_ = c.close()
	}
}
