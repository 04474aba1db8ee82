// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gatewayhttp

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/inera-health/aggregator-gateway/aggregator"
)

// HandleCallback serves POST /aggregate/callback. A callback for an
// unknown correlation (late arrival from an already-terminated run) is
// acknowledged and dropped, never returned as an error.
func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	var event aggregator.CallbackEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		h.sendError(w, http.StatusBadRequest, fmt.Errorf("decode callback: %w", err))
		return
	}
	h.engine.HandleCallback(event)
	w.WriteHeader(http.StatusOK)
}
