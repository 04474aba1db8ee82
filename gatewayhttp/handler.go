// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package gatewayhttp exposes the aggregation engine over HTTP: the
// aggregate request endpoint, the Server-Sent Events stream endpoint,
// and the backend callback endpoint, split into a Handler (route
// logic) and a Server (listener lifecycle).
package gatewayhttp

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/inera-health/aggregator-gateway/aggregator"
)

// Handler serves the journal aggregation endpoints.
type Handler struct {
	engine *aggregator.Engine
	logger *slog.Logger
}

// NewHandler creates a Handler backed by engine.
func NewHandler(engine *aggregator.Engine, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{engine: engine, logger: logger}
}

// HandleHealth reports liveness for process supervisors.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// sendError logs and writes a JSON error body.
func (h *Handler) sendError(w http.ResponseWriter, status int, err error) {
	h.logger.Warn("request error", "status", status, "error", err)
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}

// writeJSON encodes v as the response body. Encode failures are logged
// rather than returned to the caller — the caller cannot send a
// corrective response to a connection that's already mid-write.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}
