// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package signaling

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
)

// ErrUnauthorized is returned when a signal or subscribe operation
// carries a token that doesn't match the session's secret.
var ErrUnauthorized = errors.New("signaling: invalid token")

// ErrNotFound is returned when a session id is unknown or has expired.
var ErrNotFound = errors.New("signaling: session not found or expired")

// Manager is the process-wide registry of live signaling sessions.
type Manager struct {
	mu         sync.Mutex
	sessions   map[string]*Session
	iceServers []webrtc.ICEServer
	ttl        time.Duration
	logger     *slog.Logger
}

// NewManager creates a Manager that hands out iceServers to every new
// session and expires sessions after ttl (defaultTTL if zero).
func NewManager(iceServers []webrtc.ICEServer, ttl time.Duration, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Manager{
		sessions:   make(map[string]*Session),
		iceServers: iceServers,
		ttl:        ttl,
		logger:     logger,
	}
}

// Create allocates a new session, arms its TTL timer, and returns it.
func (m *Manager) Create() (*Session, error) {
	id, err := generateID()
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}
	token, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("generate session token: %w", err)
	}

	session := &Session{
		ID:          id,
		Token:       token,
		CreatedAt:   time.Now(),
		TTL:         m.ttl,
		ICEServers:  m.iceServers,
		state:       sessionCreated,
		subscribers: make(map[chan SignalMessage]struct{}),
	}

	m.mu.Lock()
	m.sessions[id] = session
	m.mu.Unlock()

	session.ttlTimer = time.AfterFunc(m.ttl, func() {
		m.expire(id)
	})

	return session, nil
}

// Get performs a non-mutating lookup. Returns nil if id is unknown or
// has already expired.
func (m *Manager) Get(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id]
}

// Signal authenticates token against session id and, if valid, fans
// payload out to every live subscriber.
func (m *Manager) Signal(id string, token []byte, payload json.RawMessage) error {
	session := m.Get(id)
	if session == nil {
		return ErrNotFound
	}
	if !session.Authorize(token) {
		return ErrUnauthorized
	}
	session.Publish(payload)
	return nil
}

// expire removes the session and closes every subscriber stream. Runs
// once per session, fired by its TTL timer.
func (m *Manager) expire(id string) {
	m.mu.Lock()
	session, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	session.closeAll()
	m.logger.Info("signaling session expired", "session_id", id)
}

// Shutdown closes every live session's subscriber streams. Called
// once at process shutdown.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, session := range sessions {
		session.ttlTimer.Stop()
		session.closeAll()
	}
}

func generateID() (string, error) {
	var buffer [16]byte
	if _, err := rand.Read(buffer[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(buffer[:]), nil
}

// generateToken produces 256 bits of entropy for a signaling session's
// bearer secret.
func generateToken() ([]byte, error) {
	token := make([]byte, 32)
	if _, err := rand.Read(token); err != nil {
		return nil, err
	}
	return token, nil
}
