// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package aggregator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

// dispatchPayload is what the gateway posts to a backend's async
// dispatch endpoint.
type dispatchPayload struct {
	PatientID     string `json:"patientId"`
	Delay         int    `json:"delay"`
	CallbackURL   string `json:"callbackUrl,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
}

// Dispatcher issues the per-backend fan-out and translates dispatch-time
// HTTP outcomes into synthetic terminal events for backends that won't
// be heard from again (rejection, timeout, connection loss, other
// failure). A 2xx response means the backend accepted the work and a
// real callback is expected later on the callback endpoint.
type Dispatcher struct {
	backends    []string
	callbackURL string
	client      *http.Client
	logger      *slog.Logger
}

// NewDispatcher creates a Dispatcher fanning out to backends, telling
// each where to post its callback.
func NewDispatcher(backends []string, callbackURL string, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		backends:    backends,
		callbackURL: callbackURL,
		logger:      logger,
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// BackendCount returns the fixed number of dispatch slots — always the
// configured backend count, regardless of how many delay values a
// request supplied.
func (d *Dispatcher) BackendCount() int {
	return len(d.backends)
}

// ParseDelays splits a comma-separated delay list into integers.
// Missing or malformed entries default to 0.
func ParseDelays(raw string) []int {
	if raw == "" {
		return nil
	}
	fields := strings.Split(raw, ",")
	delays := make([]int, len(fields))
	for i, field := range fields {
		value, err := strconv.Atoi(strings.TrimSpace(field))
		if err != nil {
			value = 0
		}
		delays[i] = value
	}
	return delays
}

// Dispatch issues one dispatch call per backend concurrently. onOutcome
// is invoked once per slot that completes at dispatch time (rejection
// or failure); a 2xx outcome invokes nothing, since a real callback is
// expected for that slot. Dispatch returns the cancel handle for the
// whole group and the number of dispatched slots (== expected).
func (d *Dispatcher) Dispatch(ctx context.Context, correlationID, patientID string, delays []int, deadline time.Duration, onOutcome func(CallbackEvent)) (cancel CancelHandle, n int) {
	n = len(d.backends)
	cancelCtx, cancelFunc := context.WithCancel(ctx)

	var group errgroup.Group
	for i := 0; i < n; i++ {
		backend := d.backends[i]
		delay := 0
		if i < len(delays) {
			delay = delays[i]
		}
		group.Go(func() error {
			d.dispatchOne(cancelCtx, backend, correlationID, patientID, delay, deadline, onOutcome)
			return nil
		})
	}
	go func() {
		_ = group.Wait()
	}()

	return CancelHandle(cancelFunc), n
}

func (d *Dispatcher) dispatchOne(ctx context.Context, backendURL, correlationID, patientID string, delay int, deadline time.Duration, onOutcome func(CallbackEvent)) {
	callCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	payload := dispatchPayload{
		PatientID:     patientID,
		Delay:         delay,
		CallbackURL:   d.callbackURL,
		CorrelationID: correlationID,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		d.logger.Error("marshal dispatch payload", "backend", backendURL, "error", err)
		onOutcome(syntheticEvent(backendURL, correlationID, patientID, StatusError))
		return
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, strings.TrimRight(backendURL, "/")+"/journals", bytes.NewReader(body))
	if err != nil {
		d.logger.Error("build dispatch request", "backend", backendURL, "error", err)
		onOutcome(syntheticEvent(backendURL, correlationID, patientID, StatusError))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		d.logger.Warn("dispatch failed", "backend", backendURL, "correlation_id", correlationID, "error", err)
		onOutcome(syntheticEvent(backendURL, correlationID, patientID, classifyDispatchError(err)))
		return
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		// Accepted; the real callback arrives later on the callback endpoint.
	case resp.StatusCode == http.StatusUnauthorized:
		onOutcome(syntheticEvent(backendURL, correlationID, patientID, StatusRejected))
	default:
		onOutcome(syntheticEvent(backendURL, correlationID, patientID, StatusError))
	}
}

// DispatchDirect issues the WAIT_FOR_EVERYONE synchronous variant:
// each backend's /journals/direct endpoint returns its full result
// body immediately, and this call blocks until all N have answered.
func (d *Dispatcher) DispatchDirect(ctx context.Context, patientID string, delays []int, deadline time.Duration) (*Response, error) {
	n := len(d.backends)
	results := make([]CallbackEvent, n)

	group, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		i := i
		backend := d.backends[i]
		delay := 0
		if i < len(delays) {
			delay = delays[i]
		}
		group.Go(func() error {
			results[i] = d.dispatchDirectOne(groupCtx, backend, patientID, delay, deadline)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	response := &Response{Strategy: StrategyWaitForEveryone}
	for _, event := range results {
		switch event.Status {
		case StatusOK:
			response.Respondents++
			response.Notes = append(response.Notes, event.Notes...)
		case StatusTimeout, StatusConnectionClosed, StatusError:
			response.Errors++
		case StatusRejected:
			// Business rejection: neither respondent nor error.
		}
	}
	return response, nil
}

func (d *Dispatcher) dispatchDirectOne(ctx context.Context, backendURL, patientID string, delay int, deadline time.Duration) CallbackEvent {
	callCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	payload := dispatchPayload{PatientID: patientID, Delay: delay}
	body, err := json.Marshal(payload)
	if err != nil {
		return syntheticEvent(backendURL, "", patientID, StatusError)
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, strings.TrimRight(backendURL, "/")+"/journals/direct", bytes.NewReader(body))
	if err != nil {
		return syntheticEvent(backendURL, "", patientID, StatusError)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return syntheticEvent(backendURL, "", patientID, classifyDispatchError(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return syntheticEvent(backendURL, "", patientID, StatusRejected)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return syntheticEvent(backendURL, "", patientID, StatusError)
	}

	var event CallbackEvent
	if err := json.NewDecoder(resp.Body).Decode(&event); err != nil {
		return syntheticEvent(backendURL, "", patientID, StatusError)
	}
	return event
}

func syntheticEvent(source, correlationID, patientID string, status Status) CallbackEvent {
	return CallbackEvent{
		Source:        source,
		PatientID:     patientID,
		CorrelationID: correlationID,
		Status:        status,
	}
}

// classifyDispatchError maps a transport-level failure to the wire
// status the rest of the system expects: timeout, connection loss, or
// an undifferentiated error.
func classifyDispatchError(err error) Status {
	if errors.Is(err, context.DeadlineExceeded) {
		return StatusTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return StatusTimeout
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if errors.Is(opErr.Err, syscall.ECONNRESET) || errors.Is(opErr.Err, syscall.ECONNREFUSED) || errors.Is(opErr.Err, syscall.EPIPE) {
			return StatusConnectionClosed
		}
	}
	message := err.Error()
	if strings.Contains(message, "connection reset") || strings.Contains(message, "EOF") {
		return StatusConnectionClosed
	}
	return StatusError
}
