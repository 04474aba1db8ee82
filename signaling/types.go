// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package signaling implements ephemeral, tokenized pub/sub sessions
// used by two browser clients to exchange WebRTC setup messages
// (offer/answer/ICE candidates) independently of the journal
// aggregation engine.
package signaling

import (
	"encoding/json"
	"time"

	"github.com/pion/webrtc/v4"
)

// SignalMessage is a single payload fanned out to every subscriber of
// a session.
type SignalMessage struct {
	Payload json.RawMessage `json:"payload"`
}

// CreateResponse is the body of POST /aggregate/webrtc/create.
type CreateResponse struct {
	SessionID  string             `json:"sessionId"`
	Token      string             `json:"token"`
	ICEServers []webrtc.ICEServer `json:"iceServers"`
	TTLSeconds int                `json:"ttlSeconds"`
}

// signalRequest is the body of POST /aggregate/webrtc/{id}/signal.
type signalRequest struct {
	Token   string          `json:"token"`
	Payload json.RawMessage `json:"payload"`
}

// sessionState names where a session sits in its lifecycle. It is
// tracked for observability only — the actual transitions are driven
// by Subscribe/expire, not by an explicit state field consulted
// elsewhere.
type sessionState int

const (
	sessionCreated sessionState = iota
	sessionActive
	sessionClosed
)

func (s sessionState) String() string {
	switch s {
	case sessionCreated:
		return "created"
	case sessionActive:
		return "active"
	case sessionClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// defaultTTL is used when a Manager is built without an explicit TTL.
const defaultTTL = 5 * time.Minute
