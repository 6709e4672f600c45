// Package server exposes the agent over HTTP and WebSocket: tag events,
// scan and adapter state, registration requests and the tag registry API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/grandcat/zeroconf"

	"github.com/nedpals/umbral-nfc/buildinfo"
	"github.com/nedpals/umbral-nfc/logging"
	"github.com/nedpals/umbral-nfc/nfc"
	"github.com/nedpals/umbral-nfc/nfc/virtual"
	"github.com/nedpals/umbral-nfc/protocol"
)

// Config holds the server configuration. Coordinator, Monitor and Registry
// are required.
type Config struct {
	Port           int
	APISecret      string // enables session tokens on /ws and the REST API
	SessionTimeout time.Duration
	Lang           string // default language for error messages
	MDNS           bool

	Coordinator *nfc.Coordinator
	Monitor     *nfc.AdapterMonitor
	Registry    nfc.Registry
	// Virtual enables POST /api/v1/tag.
	Virtual *virtual.Adapter

	Clock  nfc.Clock
	Logger logging.Logger
}

// Server manages the HTTP and WebSocket server.
type Server struct {
	config   Config
	logger   logging.Logger
	clock    nfc.Clock
	sessions *SessionManager
	upgrader websocket.Upgrader
	clients  *clientSet

	handlerRegistry *HandlerRegistry
	mdnsServer      *zeroconf.Server
}

// New creates a server and registers the scan and tag handlers.
func New(config Config) (*Server, error) {
	switch {
	case config.Coordinator == nil:
		return nil, fmt.Errorf("server: coordinator cannot be nil")
	case config.Monitor == nil:
		return nil, fmt.Errorf("server: monitor cannot be nil")
	case config.Registry == nil:
		return nil, fmt.Errorf("server: registry cannot be nil")
	}
	if config.Clock == nil {
		config.Clock = nfc.RealClock{}
	}
	if config.SessionTimeout <= 0 {
		config.SessionTimeout = 5 * time.Minute
	}
	logger := logging.OrNop(config.Logger).With("component", "server")

	s := &Server{
		config:   config,
		logger:   logger,
		clock:    config.Clock,
		sessions: NewSessionManager(config.APISecret, config.SessionTimeout, config.Clock, config.Logger),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins
			},
		},
		clients:         newClientSet(),
		handlerRegistry: NewHandlerRegistry(),
	}

	handlers := []ServerHandler{
		NewScanHandler(config.Coordinator, config.Monitor, config.Logger),
		NewTagHandler(config.Registry, config.Logger),
	}
	for _, h := range handlers {
		h.Register(s)
	}
	return s, nil
}

// Handle implements HandlerServer.
func (s *Server) Handle(messageType string, handler HandlerFunc) error {
	return s.handlerRegistry.Handle(messageType, handler)
}

// StartLifecycle implements HandlerServer.
func (s *Server) StartLifecycle(start func(ctx context.Context)) {
	s.handlerRegistry.RegisterLifecycle(start)
}

// Broadcast implements HandlerServer. payload is rendered per client so
// error messages follow each client's language.
func (s *Server) Broadcast(messageType string, payload func(lang string) any) {
	for _, c := range s.clients.snapshot() {
		msg := protocol.WebSocketMessage{Type: messageType, Payload: payload(c.Lang)}
		if err := c.Send(msg); err != nil {
			s.logger.Warn(context.Background(), "websocket write failed", "client", c.ID, "error", err)
			_ = c.close()
			s.clients.remove(c)
		}
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc(apiV1+"/health", enableCORS(s.method(http.MethodGet, s.handleHealthCheck)))
	mux.HandleFunc(apiV1+"/handshake", enableCORS(s.method(http.MethodPost, s.handleHandshake)))
	mux.HandleFunc(apiV1+"/tags", enableCORS(s.method(http.MethodGet, s.authorized(s.handleListTags))))
	mux.HandleFunc(apiV1+"/tag", enableCORS(s.method(http.MethodPost, s.authorized(s.handleTagInput))))
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/", enableCORS(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(buildinfo.DisplayName + " running"))
	}))
	return mux
}

// Start listens on the configured port and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Port))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", s.config.Port, err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the lifecycle handlers and serves HTTP on ln until ctx is
// done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		defer s.recoverServer(serveErr)
		s.logger.Info(ctx, "server listening", "addr", ln.Addr().String())
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	if s.config.MDNS {
		if err := s.startMDNS(ln.Addr()); err != nil {
			s.logger.Warn(ctx, "mdns registration failed, discovery disabled", "error", err)
		}
	}
	s.handlerRegistry.StartLifecycleHandlers(ctx)

	var err error
	select {
	case <-ctx.Done():
	case err = <-serveErr:
		s.logger.Error(ctx, "http server failed", "error", err)
	}
	s.stop(httpServer)
	return err
}

// recoverServer turns a panic in the serve goroutine into an error.
func (s *Server) recoverServer(errc chan<- error) {
	if r := recover(); r != nil {
		s.logger.Error(context.Background(), "server panic recovered", "panic", r)
		errc <- fmt.Errorf("server panic: %v", r)
	}
}

func (s *Server) stop(httpServer *http.Server) {
	if s.mdnsServer != nil {
		s.mdnsServer.Shutdown()
		s.mdnsServer = nil
		s.logger.Info(context.Background(), "mdns service stopped")
	}
	s.clients.closeAll()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "server shutdown error", "error", err)
	}
}

// startMDNS advertises the agent so apps can discover it on the LAN.
func (s *Server) startMDNS(addr net.Addr) error {
	port := s.config.Port
	if tcp, ok := addr.(*net.TCPAddr); ok {
		port = tcp.Port
	}
	auth := "none"
	if s.config.APISecret != "" {
		auth = "token"
	}
	txtRecords := []string{
		"version=" + buildinfo.Version,
		"protocol=websocket",
		"path=/ws",
		"auth=" + auth,
	}

	server, err := zeroconf.Register(MDNSServiceName, MDNSServiceType, MDNSDomain, port, txtRecords, nil)
	if err != nil {
		return fmt.Errorf("failed to register mDNS service: %w", err)
	}
	s.mdnsServer = server
	s.logger.Info(context.Background(), "mdns service registered", "name", MDNSServiceName, "type", MDNSServiceType, "port", port)
	return nil
}

// enableCORS is a middleware that adds CORS headers to responses
func enableCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", CORSAllowOrigin)
		w.Header().Set("Access-Control-Allow-Methods", CORSAllowMethods)
		w.Header().Set("Access-Control-Allow-Headers", CORSAllowHeaders)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next(w, r)
	}
}

func (s *Server) method(method string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		next(w, r)
	}
}

// authorized requires a bearer session token when an API secret is set.
func (s *Server) authorized(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.config.APISecret != "" {
			token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !s.sessions.Validate(token, r.Header.Get("Origin"), r.RemoteAddr) {
				writeJSON(w, http.StatusUnauthorized, map[string]any{
					"error": protocol.ErrorPayload{Code: protocol.ErrCodeUnauthorized, Message: "invalid or missing session token"},
				})
				return
			}
			s.sessions.RefreshTimeout()
		}
		next(w, r)
	}
}

func (s *Server) requestLang(r *http.Request) string {
	if lang := r.URL.Query().Get("lang"); lang != "" {
		return lang
	}
	if lang := r.Header.Get("Accept-Language"); lang != "" {
		return lang
	}
	return s.config.Lang
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// handleHealthCheck serves GET /api/v1/health.
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, protocol.HealthResponse{
		Status:    "ok",
		Name:      buildinfo.Name,
		Version:   buildinfo.FullVersion(),
		Timestamp: s.clock.Now().Format(time.RFC3339),
		Adapter:   s.config.Monitor.State().String(),
		Scan:      s.config.Coordinator.ScanState().Phase.String(),
		Clients:   s.clients.len(),
	})
}

// handleHandshake serves POST /api/v1/handshake.
func (s *Server) handleHandshake(w http.ResponseWriter, r *http.Request) {
	var req protocol.HandshakeRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, protocol.HandshakeResponse{
				Error: &protocol.ErrorPayload{Code: protocol.ErrCodeInvalidRequest, Message: err.Error()},
			})
			return
		}
	}

	token := s.sessions.Acquire(req.Secret, r.Header.Get("Origin"), r.RemoteAddr)
	if token == "" {
		writeJSON(w, http.StatusConflict, protocol.HandshakeResponse{
			Error: &protocol.ErrorPayload{Code: protocol.ErrCodeSessionClaimed, Message: "session already claimed or invalid secret"},
		})
		return
	}
	writeJSON(w, http.StatusOK, protocol.HandshakeResponse{Token: token})
}

// handleListTags serves GET /api/v1/tags.
func (s *Server) handleListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := s.config.Registry.List(r.Context())
	if err != nil {
		s.logger.Error(r.Context(), "list tags failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, protocol.TagListResponse{
			Tags:  []protocol.RegisteredTagPayload{},
			Error: &protocol.ErrorPayload{Code: protocol.ErrCodeInternalError, Message: err.Error()},
		})
		return
	}
	out := make([]protocol.RegisteredTagPayload, 0, len(tags))
	for i := range tags {
		out = append(out, *tagPayload(&tags[i]))
	}
	writeJSON(w, http.StatusOK, protocol.TagListResponse{Tags: out})
}

// handleWebSocket upgrades /ws and runs the request loop for one client.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.config.APISecret != "" {
		if !s.sessions.Validate(r.URL.Query().Get("token"), r.Header.Get("Origin"), r.RemoteAddr) {
			s.logger.Warn(r.Context(), "websocket rejected: invalid session token", "remote", r.RemoteAddr)
			http.Error(w, "Unauthorized: invalid session token", http.StatusUnauthorized)
			return
		}
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn(r.Context(), "websocket upgrade failed", "error", err)
		return
	}

	c := newClient(uuid.NewString(), s.requestLang(r), conn, s.logger)
	s.clients.add(c)
	c.logger.Info(r.Context(), "websocket connected", "remote", r.RemoteAddr, "clients", s.clients.len())
	defer func() {
		s.clients.remove(c)
		_ = c.close()
		remaining := s.clients.len()
		c.logger.Info(context.Background(), "websocket disconnected", "clients", remaining)
		if s.config.APISecret != "" && remaining == 0 {
			s.sessions.Release()
		}
	}()

	s.sendSnapshot(c)

	ctx := r.Context()
	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug(ctx, "websocket read error", "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		if s.config.APISecret != "" {
			s.sessions.RefreshTimeout()
		}
		s.dispatch(ctx, c, message)
	}
}

// sendSnapshot brings a new client up to date with the current states.
func (s *Server) sendSnapshot(c *Client) {
	_ = c.Send(protocol.WebSocketMessage{
		Type:    protocol.WSTypeAdapterState,
		Payload: adapterStatePayload(s.config.Monitor.State()),
	})
	_ = c.Send(protocol.WebSocketMessage{
		Type:    protocol.WSTypeScanState,
		Payload: scanStatePayload(s.config.Coordinator.ScanState(), c.Lang),
	})
}

func (s *Server) dispatch(ctx context.Context, c *Client, message []byte) {
	var req protocol.WebSocketRequest
	if err := json.Unmarshal(message, &req); err != nil {
		c.logger.Debug(ctx, "failed to parse websocket message", "error", err)
		_ = c.ReplyError(protocol.WebSocketRequest{}, protocol.ErrCodeParseError, "invalid message format")
		return
	}

	handler, ok := s.handlerRegistry.Get(req.Type)
	if !ok {
		_ = c.ReplyError(req, protocol.ErrCodeUnknownType, fmt.Sprintf("unknown message type: %s", req.Type))
		return
	}
	if err := handler(ctx, c, req); err != nil {
		c.logger.Debug(ctx, "handler error", "type", req.Type, "error", err)
	}
}
