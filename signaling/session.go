// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package signaling

import (
	"crypto/subtle"
	"encoding/json"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
)

// subscriberChannelCapacity bounds each subscriber's buffered channel;
// a slow subscriber causes Publish to drop rather than block.
const subscriberChannelCapacity = 16

// Session is an ephemeral, tokenized pub/sub channel. Unlike the
// aggregation engine's event channel, a session may have many
// concurrent subscribers (an offerer and a receiver both watch the
// same session) — there is no at-most-one-subscriber rule here.
type Session struct {
	ID         string
	Token      []byte
	CreatedAt  time.Time
	TTL        time.Duration
	ICEServers []webrtc.ICEServer

	// mu guards state, subscribers, and closed together: publishing
	// and subscribing must not race with the session being closed out
	// from under them.
	mu          sync.Mutex
	state       sessionState
	subscribers map[chan SignalMessage]struct{}
	closed      bool

	ttlTimer *time.Timer
}

// Authorize reports whether token matches the session's bearer secret,
// compared in constant time so a mistyped token doesn't leak how many
// leading bytes were correct.
func (s *Session) Authorize(token []byte) bool {
	return len(token) == len(s.Token) && subtle.ConstantTimeCompare(s.Token, token) == 1
}

// Subscribe registers a new subscriber channel and transitions the
// session to Active on its first call.
func (s *Session) Subscribe() chan SignalMessage {
	ch := make(chan SignalMessage, subscriberChannelCapacity)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch
	}
	s.subscribers[ch] = struct{}{}
	if s.state == sessionCreated {
		s.state = sessionActive
	}
	s.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a subscriber channel.
func (s *Session) Unsubscribe(ch chan SignalMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subscribers[ch]; !ok {
		return
	}
	delete(s.subscribers, ch)
	close(ch)
}

// Publish fans payload out to every live subscriber. A subscriber
// whose channel is full is skipped rather than blocking the publisher
// — the same liveness-over-completeness policy the aggregation
// engine's emitter applies.
func (s *Session) Publish(payload json.RawMessage) {
	message := SignalMessage{Payload: payload}
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subscribers {
		select {
		case ch <- message:
		default:
		}
	}
}

// closeAll closes every subscriber channel and marks the session
// closed. Called by the manager on expiry and at shutdown; calls after
// the first are no-ops.
func (s *Session) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.state = sessionClosed
	for ch := range s.subscribers {
		close(ch)
	}
	s.subscribers = nil
}
