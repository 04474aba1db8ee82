// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Command aggregator-resource is a demo backend resource implementing
// the contract the gateway dispatches against: POST /journals accepts
// a delayed, asynchronous journal request and later POSTs its result
// to the gateway's callback endpoint; POST /journals/direct is the
// synchronous variant used by the WAIT_FOR_EVERYONE strategy. A
// negative delay is a synthetic business rejection.
package main

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/inera-health/aggregator-gateway/aggregator"
	"github.com/inera-health/aggregator-gateway/lib/process"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		port        string
		callbackURL string
		resourceID  string
	)
	flag.StringVar(&port, "port", "8081", "TCP port to listen on")
	flag.StringVar(&callbackURL, "callback-url", "http://localhost:8080/aggregate/callback", "gateway callback endpoint")
	flag.StringVar(&resourceID, "resource-id", "", "identifier reported as this resource's source; random if unset")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if resourceID == "" {
		var err error
		resourceID, err = generateID()
		if err != nil {
			return fmt.Errorf("generate resource id: %w", err)
		}
	}

	res := &resource{
		id:          resourceID,
		callbackURL: callbackURL,
		client:      &http.Client{Timeout: 10 * time.Second},
		logger:      logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /journals", res.handleJournal)
	mux.HandleFunc("POST /journals/direct", res.handleJournalDirect)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	logger.Info("starting aggregator-resource", "resource_id", resourceID, "port", port, "callback_url", callbackURL)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server exited", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// journalCommand is the body of POST /journals.
type journalCommand struct {
	PatientID     string `json:"patientId"`
	CorrelationID string `json:"correlationId"`
	Delay         int    `json:"delay"`
}

// directJournalRequest is the body of POST /journals/direct.
type directJournalRequest struct {
	PatientID string `json:"patientId"`
	Delay     int    `json:"delay"`
}

type resource struct {
	id          string
	callbackURL string
	client      *http.Client
	logger      *slog.Logger
}

// handleJournal implements the async path: a negative delay is a
// synthetic business rejection (401, no callback); otherwise it
// answers 200 immediately and schedules a delayed callback POST
// carrying the journal note.
func (r *resource) handleJournal(w http.ResponseWriter, req *http.Request) {
	var cmd journalCommand
	if err := json.NewDecoder(req.Body).Decode(&cmd); err != nil {
		http.Error(w, "decode request", http.StatusBadRequest)
		return
	}

	if cmd.Delay < 0 {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	w.WriteHeader(http.StatusOK)

	go r.deliverCallback(cmd.CorrelationID, cmd.PatientID, cmd.Delay)
}

// handleJournalDirect implements the synchronous WAIT_FOR_EVERYONE
// path: wait out the delay in-request and return the outcome body
// directly instead of posting it to a callback endpoint.
func (r *resource) handleJournalDirect(w http.ResponseWriter, req *http.Request) {
	var direct directJournalRequest
	if err := json.NewDecoder(req.Body).Decode(&direct); err != nil {
		http.Error(w, "decode request", http.StatusBadRequest)
		return
	}

	if direct.Delay < 0 {
		writeJSON(w, http.StatusOK, aggregator.CallbackEvent{
			Source:    r.id,
			PatientID: direct.PatientID,
			Status:    aggregator.StatusRejected,
		})
		return
	}

	time.Sleep(time.Duration(direct.Delay) * time.Millisecond)

	writeJSON(w, http.StatusOK, aggregator.CallbackEvent{
		Source:    r.id,
		PatientID: direct.PatientID,
		Status:    aggregator.StatusOK,
		Notes: []aggregator.JournalNote{
			{PatientID: direct.PatientID, DoctorID: r.id, Note: fmt.Sprintf("journal note for %s", direct.PatientID)},
		},
	})
}

// deliverCallback waits out delay then posts the journal outcome to
// the gateway's callback endpoint. Runs in its own goroutine; the HTTP
// response to /journals has already been sent.
func (r *resource) deliverCallback(correlationID, patientID string, delayMS int) {
	time.Sleep(time.Duration(delayMS) * time.Millisecond)

	event := aggregator.CallbackEvent{
		Source:        r.id,
		PatientID:     patientID,
		CorrelationID: correlationID,
		Status:        aggregator.StatusOK,
		Notes: []aggregator.JournalNote{
			{PatientID: patientID, DoctorID: r.id, Note: fmt.Sprintf("journal note for %s", patientID)},
		},
	}

	body, err := json.Marshal(event)
	if err != nil {
		r.logger.Error("marshal callback", "error", err)
		return
	}

	resp, err := r.client.Post(r.callbackURL, "application/json", bytes.NewReader(body))
	if err != nil {
		r.logger.Warn("deliver callback failed", "correlation_id", correlationID, "error", err)
		return
	}
	resp.Body.Close()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func generateID() (string, error) {
	buffer := make([]byte, 8)
	if _, err := rand.Read(buffer); err != nil {
		return "", err
	}
	return hex.EncodeToString(buffer), nil
}
