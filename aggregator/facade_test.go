// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package aggregator

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// newAcceptingBackend returns a backend that accepts every /journals
// call with 200 and, after the requested delay, posts a StatusOK
// callback to the payload's callbackUrl.
func newAcceptingBackend(t *testing.T) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload dispatchPayload
		json.NewDecoder(r.Body).Decode(&payload)
		w.WriteHeader(http.StatusOK)

		go func() {
			time.Sleep(time.Duration(payload.Delay) * time.Millisecond)
			event := CallbackEvent{
				Source:        srv.URL,
				PatientID:     payload.PatientID,
				CorrelationID: payload.CorrelationID,
				Status:        StatusOK,
			}
			body, _ := json.Marshal(event)
			http.Post(payload.CallbackURL, "application/json", bytes.NewReader(body))
		}()
	}))
	return srv
}

// newRejectingBackend always answers 401, triggering a dispatch-time
// synthetic REJECTED event with no later callback.
func newRejectingBackend(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
}

func TestEngine_Aggregate_SSEPath_AllRespond(t *testing.T) {
	backend1 := newAcceptingBackend(t)
	defer backend1.Close()
	backend2 := newAcceptingBackend(t)
	defer backend2.Close()

	var engine *Engine
	callback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var event CallbackEvent
		json.NewDecoder(r.Body).Decode(&event)
		engine.HandleCallback(event)
		w.WriteHeader(http.StatusOK)
	}))
	defer callback.Close()

	engine = NewEngine([]string{backend1.URL, backend2.URL}, callback.URL, 2*time.Second, discardLogger())

	resp, err := engine.Aggregate(context.Background(), Request{PatientID: "p1", Delays: "0,0"})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if resp.CorrelationID == "" {
		t.Fatal("expected a correlation id for the SSE strategy")
	}

	state := engine.Get(resp.CorrelationID)
	if state == nil {
		t.Fatal("expected state to exist immediately after Aggregate")
	}

	events := state.Subscribe()
	var summary CallbackEvent
	deadline := time.After(2 * time.Second)
	count := 0
readLoop:
	for {
		select {
		case event, open := <-events:
			if !open {
				t.Fatal("channel closed before summary observed")
			}
			count++
			if event.Status == StatusComplete {
				summary = event
				break readLoop
			}
		case <-deadline:
			t.Fatal("timed out waiting for summary")
		}
	}
	if summary.Respondents != 2 {
		t.Errorf("summary respondents = %d, want 2", summary.Respondents)
	}
	if summary.Errors != 0 {
		t.Errorf("summary errors = %d, want 0", summary.Errors)
	}
	if count < 3 {
		t.Errorf("expected at least 2 slot events plus summary, got %d events", count)
	}
}

func TestEngine_Aggregate_SSEPath_RejectionIsSynthetic(t *testing.T) {
	backend := newRejectingBackend(t)
	defer backend.Close()

	engine := NewEngine([]string{backend.URL}, "http://unused.invalid/callback", 2*time.Second, discardLogger())

	resp, err := engine.Aggregate(context.Background(), Request{PatientID: "p1"})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if engine.Get(resp.CorrelationID) == nil {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("single-backend rejection should cross expected and terminate")
}

// directJournalRequest mirrors the body a WAIT_FOR_EVERYONE dispatch
// posts to a backend's synchronous /journals/direct endpoint.
type directJournalRequest struct {
	PatientID string `json:"patientId"`
	Delay     int    `json:"delay"`
}

func TestEngine_Aggregate_WaitForEveryone(t *testing.T) {
	directBackend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req directJournalRequest
		json.NewDecoder(r.Body).Decode(&req)
		event := CallbackEvent{Status: StatusOK, PatientID: req.PatientID}
		body, _ := json.Marshal(event)
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	}))
	defer directBackend.Close()

	engine := NewEngine([]string{directBackend.URL}, "", 2*time.Second, discardLogger())

	resp, err := engine.Aggregate(context.Background(), Request{
		PatientID: "p1",
		Strategy:  StrategyWaitForEveryone,
	})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if resp.CorrelationID != "" {
		t.Error("WAIT_FOR_EVERYONE response must not carry a correlation id")
	}
	if resp.Respondents != 1 {
		t.Errorf("respondents = %d, want 1", resp.Respondents)
	}
}

func TestEngine_Abandon_ClosesWithoutSummary(t *testing.T) {
	backend := newAcceptingBackend(t)
	defer backend.Close()

	engine := NewEngine([]string{backend.URL}, "http://unused.invalid/callback", 2*time.Second, discardLogger())

	resp, err := engine.Aggregate(context.Background(), Request{PatientID: "p1", Delays: "5000"})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}

	state := engine.Get(resp.CorrelationID)
	if state == nil {
		t.Fatal("expected live state before abandon")
	}

	engine.Abandon(resp.CorrelationID)

	if engine.Get(resp.CorrelationID) != nil {
		t.Error("state should be removed after Abandon")
	}

	if _, open := <-state.Subscribe(); open {
		t.Error("event channel should be closed after Abandon")
	}
}
