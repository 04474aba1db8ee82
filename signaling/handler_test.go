// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package signaling

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHandleCreate_ReturnsSessionAndToken(t *testing.T) {
	m := NewManager(nil, time.Minute, discardLogger())
	h := NewHandler(m, discardLogger())

	req := httptest.NewRequest(http.MethodPost, "/aggregate/webrtc/create", nil)
	w := httptest.NewRecorder()
	h.HandleCreate(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp CreateResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.SessionID == "" || resp.Token == "" {
		t.Error("expected non-empty session id and token")
	}
	if resp.TTLSeconds != 60 {
		t.Errorf("ttlSeconds = %d, want 60", resp.TTLSeconds)
	}
	if m.Get(resp.SessionID) == nil {
		t.Error("expected the created session to be registered")
	}
}

func TestHandleSignal_UnknownSessionReturnsNotFound(t *testing.T) {
	m := NewManager(nil, time.Minute, discardLogger())
	h := NewHandler(m, discardLogger())

	body, _ := json.Marshal(signalRequest{Token: hex.EncodeToString([]byte("x")), Payload: json.RawMessage(`{}`)})
	req := httptest.NewRequest(http.MethodPost, "/aggregate/webrtc/ghost/signal", bytes.NewReader(body))
	req.SetPathValue("id", "ghost")
	w := httptest.NewRecorder()

	h.HandleSignal(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestHandleSignal_WrongTokenReturnsUnauthorized(t *testing.T) {
	m := NewManager(nil, time.Minute, discardLogger())
	h := NewHandler(m, discardLogger())
	session, _ := m.Create()

	body, _ := json.Marshal(signalRequest{Token: hex.EncodeToString([]byte("wrong-token-of-wrong-len")), Payload: json.RawMessage(`{}`)})
	req := httptest.NewRequest(http.MethodPost, "/aggregate/webrtc/"+session.ID+"/signal", bytes.NewReader(body))
	req.SetPathValue("id", session.ID)
	w := httptest.NewRecorder()

	h.HandleSignal(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestHandleSignal_MalformedTokenEncodingReturnsUnauthorized(t *testing.T) {
	m := NewManager(nil, time.Minute, discardLogger())
	h := NewHandler(m, discardLogger())
	session, _ := m.Create()

	body, _ := json.Marshal(signalRequest{Token: "not-hex!!", Payload: json.RawMessage(`{}`)})
	req := httptest.NewRequest(http.MethodPost, "/aggregate/webrtc/"+session.ID+"/signal", bytes.NewReader(body))
	req.SetPathValue("id", session.ID)
	w := httptest.NewRecorder()

	h.HandleSignal(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestHandleSignal_MalformedBodyReturnsBadRequest(t *testing.T) {
	m := NewManager(nil, time.Minute, discardLogger())
	h := NewHandler(m, discardLogger())
	session, _ := m.Create()

	req := httptest.NewRequest(http.MethodPost, "/aggregate/webrtc/"+session.ID+"/signal", bytes.NewReader([]byte("not json")))
	req.SetPathValue("id", session.ID)
	w := httptest.NewRecorder()

	h.HandleSignal(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHandleSignal_ValidTokenPublishesToSubscriber(t *testing.T) {
	m := NewManager(nil, time.Minute, discardLogger())
	h := NewHandler(m, discardLogger())
	session, _ := m.Create()
	ch := session.Subscribe()
	defer session.Unsubscribe(ch)

	body, _ := json.Marshal(signalRequest{Token: hex.EncodeToString(session.Token), Payload: json.RawMessage(`{"type":"answer"}`)})
	req := httptest.NewRequest(http.MethodPost, "/aggregate/webrtc/"+session.ID+"/signal", bytes.NewReader(body))
	req.SetPathValue("id", session.ID)
	w := httptest.NewRecorder()

	h.HandleSignal(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	select {
	case msg := <-ch:
		if string(msg.Payload) != `{"type":"answer"}` {
			t.Errorf("payload = %s", msg.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("expected the subscriber to receive the signaled payload")
	}
}

func TestHandleStream_UnknownSessionReturnsNotFound(t *testing.T) {
	m := NewManager(nil, time.Minute, discardLogger())
	h := NewHandler(m, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/aggregate/webrtc/ghost/stream?token="+hex.EncodeToString([]byte("x")), nil)
	req.SetPathValue("id", "ghost")
	w := httptest.NewRecorder()

	h.HandleStream(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestHandleStream_WrongTokenReturnsUnauthorized(t *testing.T) {
	m := NewManager(nil, time.Minute, discardLogger())
	h := NewHandler(m, discardLogger())
	session, _ := m.Create()

	req := httptest.NewRequest(http.MethodGet, "/aggregate/webrtc/"+session.ID+"/stream?token="+hex.EncodeToString([]byte("wrong-token-of-wrong-len")), nil)
	req.SetPathValue("id", session.ID)
	w := httptest.NewRecorder()

	h.HandleStream(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestHandleStream_DeliversPublishedMessage(t *testing.T) {
	m := NewManager(nil, time.Minute, discardLogger())
	h := NewHandler(m, discardLogger())
	session, _ := m.Create()

	req := httptest.NewRequest(http.MethodGet, "/aggregate/webrtc/"+session.ID+"/stream?token="+hex.EncodeToString(session.Token), nil)
	req.SetPathValue("id", session.ID)

	ctx, cancel := context.WithCancel(req.Context())
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		h.HandleStream(w, req)
		close(done)
	}()

	// Give HandleStream time to subscribe before publishing.
	time.Sleep(20 * time.Millisecond)
	session.Publish(json.RawMessage(`{"type":"offer"}`))
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("HandleStream did not return after context cancellation")
	}

	if !bytes.Contains(w.Body.Bytes(), []byte(`{"type":"offer"}`)) {
		t.Errorf("expected published payload in stream body, got %q", w.Body.String())
	}
}
