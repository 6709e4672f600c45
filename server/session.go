package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"time"

	"github.com/nedpals/umbral-nfc/internal/syncutil"
	"github.com/nedpals/umbral-nfc/logging"
	"github.com/nedpals/umbral-nfc/nfc"
)

// SessionManager hands out a single session token at a time. The token is
// bound to the origin and host that acquired it and expires after timeout
// without a refresh.
type SessionManager struct {
	apiSecret string
	timeout   time.Duration
	clock     nfc.Clock
	logger    logging.Logger

	mu      syncutil.RWMutex
	token   string
	origin  string
	host    string
	expires time.Time
}

// NewSessionManager creates a session manager. An empty apiSecret lets any
// caller acquire the free session.
func NewSessionManager(apiSecret string, timeout time.Duration, clock nfc.Clock, logger logging.Logger) *SessionManager {
	if clock == nil {
		clock = nfc.RealClock{}
	}
	return &SessionManager{
		apiSecret: apiSecret,
		timeout:   timeout,
		clock:     clock,
		logger:    logging.OrNop(logger).With("component", "session"),
	}
}

// generateSessionToken returns 32 random bytes as hex.
func generateSessionToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// hostOf strips the port from a remote address so a session survives the
// new source port of a follow-up connection.
func hostOf(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

// Acquire returns a fresh token, or "" when the secret is wrong or a live
// session is already claimed.
func (m *SessionManager) Acquire(secret, origin, remoteAddr string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.apiSecret != "" && secret != m.apiSecret {
		return ""
	}
	now := m.clock.Now()
	if m.token != "" && now.Before(m.expires) {
		return ""
	}

	token, err := generateSessionToken()
	if err != nil {
		m.logger.Error(context.Background(), "session token generation failed", "error", err)
		return ""
	}
	m.token = token
	m.origin = origin
	m.host = hostOf(remoteAddr)
	m.expires = now.Add(m.timeout)
	m.logger.Info(context.Background(), "session acquired", "token", token[:8]+"...", "origin", origin, "host", m.host)
	return token
}

// Validate checks token, expiry and the origin and host binding.
func (m *SessionManager) Validate(token, origin, remoteAddr string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.token == "" || token != m.token {
		return false
	}
	if !m.clock.Now().Before(m.expires) {
		return false
	}
	if m.origin != "" && origin != m.origin {
		m.logger.Warn(context.Background(), "session origin mismatch", "expected", m.origin, "got", origin)
		return false
	}
	if host := hostOf(remoteAddr); m.host != "" && host != m.host {
		m.logger.Warn(context.Background(), "session host mismatch", "expected", m.host, "got", host)
		return false
	}
	return true
}

// Release frees the session.
func (m *SessionManager) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token == "" {
		return
	}
	m.logger.Info(context.Background(), "session released", "token", m.token[:8]+"...")
	m.token = ""
	m.origin = ""
	m.host = ""
	m.expires = time.Time{}
}

// RefreshTimeout extends a live session by the full timeout.
func (m *SessionManager) RefreshTimeout() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token != "" && m.clock.Now().Before(m.expires) {
		m.expires = m.clock.Now().Add(m.timeout)
	}
}

// Active reports whether a live session is claimed.
func (m *SessionManager) Active() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token != "" && m.clock.Now().Before(m.expires)
}
