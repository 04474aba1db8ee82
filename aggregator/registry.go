// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package aggregator

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
)

// Registry maps correlation ids to live aggregation state. remove is
// the serialization point for termination: the single caller whose
// Remove returns a non-nil state is authorized to emit the summary,
// cancel the deadline, and close the channel. Callers that observe nil
// from Remove must not do any of that.
type Registry struct {
	mu   sync.Mutex
	byID map[string]*State
}

// NewRegistry creates an empty correlation registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]*State)}
}

// Create allocates a correlation id, inserts fresh state under it, and
// returns both. Insertion is atomic with id generation — no other
// caller can observe this id before it is present in the registry.
func (r *Registry) Create() (string, *State, error) {
	id, err := generateID()
	if err != nil {
		return "", nil, err
	}
	state := newState(id)

	r.mu.Lock()
	r.byID[id] = state
	r.mu.Unlock()

	return id, state, nil
}

// Get performs a non-mutating lookup. Returns nil if id is unknown.
func (r *Registry) Get(id string) *State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byID[id]
}

// Remove atomically deletes and returns the state for id, or nil if it
// was already removed or never existed. This is the single
// serialization point for "who gets to terminate this correlation".
func (r *Registry) Remove(id string) *State {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.byID[id]
	if !ok {
		return nil
	}
	delete(r.byID, id)
	return state
}

// Len reports the number of live correlations.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

// All returns a snapshot of the currently-live states. Used only by
// shutdown, where every remaining correlation is abandoned.
func (r *Registry) All() []*State {
	r.mu.Lock()
	defer r.mu.Unlock()
	states := make([]*State, 0, len(r.byID))
	for _, state := range r.byID {
		states = append(states, state)
	}
	return states
}

// generateID produces a 16-byte random value, hex-encoded, the house
// convention for opaque identifiers used throughout this codebase
// rather than a UUID library.
func generateID() (string, error) {
	var buffer [16]byte
	if _, err := rand.Read(buffer[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(buffer[:]), nil
}
