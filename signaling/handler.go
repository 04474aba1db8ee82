// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package signaling

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// streamKeepAliveInterval matches the aggregation gateway's stream
// endpoint so both push protocols behave identically to intermediate
// proxies and client read timeouts.
const streamKeepAliveInterval = 15 * time.Second

// Handler serves the signaling session endpoints.
type Handler struct {
	manager *Manager
	logger  *slog.Logger
}

// NewHandler creates a Handler backed by manager.
func NewHandler(manager *Manager, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{manager: manager, logger: logger}
}

// HandleCreate serves POST /aggregate/webrtc/create.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	session, err := h.manager.Create()
	if err != nil {
		h.sendError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, CreateResponse{
		SessionID:  session.ID,
		Token:      hex.EncodeToString(session.Token),
		ICEServers: session.ICEServers,
		TTLSeconds: int(session.TTL / time.Second),
	})
}

// HandleSignal serves POST /aggregate/webrtc/{id}/signal.
func (h *Handler) HandleSignal(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var body signalRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.sendError(w, http.StatusBadRequest, fmt.Errorf("decode signal: %w", err))
		return
	}
	token, err := hex.DecodeString(body.Token)
	if err != nil {
		h.sendError(w, http.StatusUnauthorized, fmt.Errorf("invalid token encoding"))
		return
	}

	switch err := h.manager.Signal(id, token, body.Payload); {
	case errors.Is(err, ErrNotFound):
		h.sendError(w, http.StatusNotFound, err)
	case errors.Is(err, ErrUnauthorized):
		h.sendError(w, http.StatusUnauthorized, err)
	case err != nil:
		h.sendError(w, http.StatusInternalServerError, err)
	default:
		w.WriteHeader(http.StatusOK)
	}
}

// HandleStream serves GET /aggregate/webrtc/{id}/stream?token=...
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	token, err := hex.DecodeString(r.URL.Query().Get("token"))
	if err != nil {
		h.sendError(w, http.StatusUnauthorized, fmt.Errorf("invalid token encoding"))
		return
	}

	session := h.manager.Get(id)
	if session == nil {
		h.sendError(w, http.StatusNotFound, ErrNotFound)
		return
	}
	if !session.Authorize(token) {
		h.sendError(w, http.StatusUnauthorized, ErrUnauthorized)
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

	ch := session.Subscribe()
	defer session.Unsubscribe(ch)

	ticker := time.NewTicker(streamKeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case message, open := <-ch:
			if !open {
				return
			}
			payload, err := json.Marshal(message)
			if err != nil {
				h.logger.Error("marshal signal message", "session_id", id, "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				h.logger.Warn("client disconnected from signal stream", "session_id", id, "error", err)
				return
			}
			flusher.Flush()

		case <-ticker.C:
			if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (h *Handler) sendError(w http.ResponseWriter, status int, err error) {
	h.logger.Warn("signaling request error", "status", status, "error", err)
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}
