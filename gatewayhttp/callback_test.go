// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gatewayhttp

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/inera-health/aggregator-gateway/aggregator"
)

func TestHandleCallback_UnknownCorrelationIsNotAnError(t *testing.T) {
	engine := aggregator.NewEngine([]string{"http://unused.invalid"}, "", time.Second, discardLogger())
	h := NewHandler(engine, discardLogger())

	body, _ := json.Marshal(aggregator.CallbackEvent{
		CorrelationID: "does-not-exist",
		Status:        aggregator.StatusOK,
	})
	req := httptest.NewRequest(http.MethodPost, "/aggregate/callback", bytes.NewReader(body))
	w := httptest.NewRecorder()

	h.HandleCallback(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestHandleCallback_MalformedBody(t *testing.T) {
	engine := aggregator.NewEngine([]string{"http://unused.invalid"}, "", time.Second, discardLogger())
	h := NewHandler(engine, discardLogger())

	req := httptest.NewRequest(http.MethodPost, "/aggregate/callback", bytes.NewReader([]byte(`not json`)))
	w := httptest.NewRecorder()

	h.HandleCallback(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}
