// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gatewayhttp

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/inera-health/aggregator-gateway/aggregator"
)

// HandleJournals serves POST /aggregate/journals.
func (h *Handler) HandleJournals(w http.ResponseWriter, r *http.Request) {
	var req aggregator.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if req.PatientID == "" {
		h.sendError(w, http.StatusBadRequest, fmt.Errorf("patientId is required"))
		return
	}

	response, err := h.engine.Aggregate(r.Context(), req)
	if err != nil {
		h.sendError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, response)
}
