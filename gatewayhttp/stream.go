// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gatewayhttp

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/inera-health/aggregator-gateway/aggregator"
)

// streamKeepAliveInterval bounds how long the stream can go silent
// before a keep-alive comment is written, so intermediate proxies and
// the client's own read timeout don't treat a quiet stream as dead.
const streamKeepAliveInterval = 15 * time.Second

// HandleStream serves GET /aggregate/stream?correlationId=<id>. It
// forwards the correlation's event channel to the client as
// Server-Sent Events and, on client disconnect, cancels the
// correlation's dispatch group and deadline without emitting a
// summary.
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("correlationId")
	if id == "" {
		h.sendError(w, http.StatusBadRequest, fmt.Errorf("correlationId is required"))
		return
	}

	state := h.engine.Get(id)
	if state != nil && !state.AcquireSubscriber() {
		h.sendError(w, http.StatusConflict, fmt.Errorf("correlation %s already has a subscriber", id))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.sendError(w, http.StatusInternalServerError, fmt.Errorf("streaming not supported"))
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	if state == nil {
		// The client arrived after termination: an empty terminal
		// stream, closed immediately. Not an error.
		return
	}

	events := state.Subscribe()
	ticker := time.NewTicker(streamKeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.engine.Abandon(id)
			return

		case event, open := <-events:
			if !open {
				return
			}
			if err := writeSSEEvent(w, event); err != nil {
				h.logger.Warn("client disconnected during stream", "correlation_id", id, "error", err)
				h.engine.Abandon(id)
				return
			}
			flusher.Flush()
			if event.Status == aggregator.StatusComplete {
				return
			}

		case <-ticker.C:
			if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil {
				h.engine.Abandon(id)
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSEEvent(w io.Writer, event aggregator.CallbackEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", payload)
	return err
}
