// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package aggregator

import (
	"log/slog"
	"time"
)

// emitMaxAttempts and emitRetryDelay bound the retry policy for a
// momentarily-full event channel: roughly 50 attempts across a few
// tens of milliseconds before the event is dropped.
const (
	emitMaxAttempts = 50
	emitRetryDelay  = time.Millisecond
)

// Emitter pushes events onto a correlation's event channel, retrying
// on transient backpressure and dropping on persistent backpressure.
// Liveness for a slow consumer takes priority over completeness.
type Emitter struct {
	logger *slog.Logger
}

// NewEmitter creates an Emitter that logs drops through logger.
func NewEmitter(logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{logger: logger}
}

// Emit pushes event onto state's channel. On persistent backpressure
// it drops the event and logs a warning rather than blocking the
// caller indefinitely.
func (emitter *Emitter) Emit(state *State, event CallbackEvent) {
	for attempt := 0; attempt < emitMaxAttempts; attempt++ {
		if state.trySend(event) {
			return
		}
		time.Sleep(emitRetryDelay)
	}
	emitter.logger.Warn("dropping event after persistent backpressure",
		"correlation_id", state.ID,
		"status", event.Status,
		"attempts", emitMaxAttempts,
	)
}

// EmitSummary constructs the terminal COMPLETE event, emits it, and
// closes the channel. Callers must only call this after becoming the
// termination owner (after Registry.Remove returned this state); no
// event may follow the summary on the same channel.
func (emitter *Emitter) EmitSummary(state *State, respondents, errs int64) {
	summary := CallbackEvent{
		Source:        "AGGREGATOR",
		CorrelationID: state.ID,
		Status:        StatusComplete,
		Respondents:   int(respondents),
		Errors:        int(errs),
	}
	emitter.Emit(state, summary)
	state.closeEvents()
}
