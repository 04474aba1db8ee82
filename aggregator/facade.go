// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package aggregator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/inera-health/aggregator-gateway/lib/telemetry"
)

// Engine orchestrates the correlation registry, aggregation state,
// event emitter, dispatcher, and deadline scheduler behind a single
// request/response surface: Aggregate, HandleCallback, Get, and
// Abandon are the only operations the gateway's HTTP handlers call.
type Engine struct {
	registry    *Registry
	emitter     *Emitter
	dispatcher  *Dispatcher
	scheduler   *Scheduler
	logger      *slog.Logger
	maxDeadline time.Duration
}

// NewEngine wires up a fresh Engine. backends is the fixed, ordered
// list of backend resource URLs; callbackURL is the gateway's own
// externally-reachable callback endpoint, passed to each backend at
// dispatch time.
func NewEngine(backends []string, callbackURL string, maxDeadline time.Duration, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	engine := &Engine{
		registry:    NewRegistry(),
		emitter:     NewEmitter(logger),
		dispatcher:  NewDispatcher(backends, callbackURL, logger),
		logger:      logger,
		maxDeadline: maxDeadline,
	}
	engine.scheduler = NewScheduler(engine.handleDeadlineFire, logger)
	return engine
}

// Aggregate starts a new correlation for the SSE strategy, or drives
// the WAIT_FOR_EVERYONE strategy to completion and returns its
// aggregate payload. The SSE path allocates state, starts dispatch
// (which may immediately emit synthetics), calls setExpected
// (re-checking for an already-crossed slot count), arms the deadline,
// and returns.
func (e *Engine) Aggregate(ctx context.Context, req Request) (*Response, error) {
	strategy := req.Strategy
	if strategy == "" {
		strategy = StrategySSE
	}
	deadline := e.effectiveDeadline(req.TimeoutMS)
	delays := ParseDelays(req.Delays)

	if strategy == StrategyWaitForEveryone {
		response, err := e.dispatcher.DispatchDirect(ctx, req.PatientID, delays, deadline)
		if err != nil {
			return nil, fmt.Errorf("dispatch direct: %w", err)
		}
		return response, nil
	}

	id, state, err := e.registry.Create()
	if err != nil {
		return nil, fmt.Errorf("create correlation: %w", err)
	}

	_, span := telemetry.Tracer().Start(ctx, "aggregator.correlation")
	span.SetAttributes(
		attribute.String("correlation.id", id),
		attribute.String("correlation.patient_id", req.PatientID),
	)
	state.span = span

	onOutcome := func(event CallbackEvent) {
		e.completeSlot(state, event)
	}
	// The dispatch group outlives this call: HandleJournals writes its
	// 200 and returns long before any backend replies, and net/http
	// cancels the inbound request's context the instant ServeHTTP
	// returns. Deriving the dispatch group from ctx would cancel every
	// in-flight dispatch call moments after it starts. Termination is
	// owned by state.cancelAll() (disconnect, deadline, or completion),
	// not by the initiating request's lifetime.
	cancel, n := e.dispatcher.Dispatch(context.Background(), id, req.PatientID, delays, deadline, onOutcome)
	state.armDispatchCancel(cancel)

	crossedAlready, err := state.setExpected(n)
	if err != nil {
		// A programmer bug (double setExpected), not a client-visible
		// error: counters remain valid, so log and continue.
		e.logger.Error("setExpected failed", "correlation_id", id, "error", err)
	}

	if crossedAlready {
		e.terminate(state)
	} else {
		handle := e.scheduler.Schedule(id, deadline)
		state.armDeadline(func() { handle.Cancel() })
	}

	return &Response{Respondents: 0, CorrelationID: id, Strategy: strategy}, nil
}

// HandleCallback routes a backend-initiated callback into the correct
// aggregation state. A callback for an unknown correlation (late
// arrival from an already-terminated run) is silently dropped.
func (e *Engine) HandleCallback(event CallbackEvent) {
	state := e.registry.Get(event.CorrelationID)
	if state == nil {
		return
	}
	e.completeSlot(state, event)
}

// Get performs a non-mutating lookup, exposed for the stream endpoint.
func (e *Engine) Get(id string) *State {
	return e.registry.Get(id)
}

// Abandon is the client-disconnect termination path: cancel the
// dispatch group and deadline, remove the registry entry, and close
// the channel without emitting a summary — the subscriber that would
// have received it is already gone.
func (e *Engine) Abandon(id string) {
	state := e.registry.Remove(id)
	if state == nil {
		return
	}
	state.cancelAll()
	state.closeEvents()
	if state.span != nil {
		state.span.SetStatus(codes.Error, "client disconnected")
	}
	state.endSpan()
}

// completeSlot records one backend outcome and, if this call crosses
// expected, becomes the termination owner.
func (e *Engine) completeSlot(state *State, event CallbackEvent) {
	terminate := state.recordCallback(event.Status)
	e.emitter.Emit(state, event)
	if terminate {
		e.terminate(state)
	}
}

// terminate is the callback/setExpected-race termination path: cancel
// remaining work, remove from the registry, and emit the summary. The
// registry's atomic Remove ensures only one caller — among this path,
// the deadline path, and Abandon — proceeds past removal.
func (e *Engine) terminate(state *State) {
	removed := e.registry.Remove(state.ID)
	if removed == nil {
		// Another path already won the termination race.
		return
	}
	removed.cancelAll()
	e.emitter.EmitSummary(removed, removed.Respondents(), removed.Errors())
	if removed.span != nil {
		removed.span.SetAttributes(
			attribute.Int64("correlation.respondents", removed.Respondents()),
			attribute.Int64("correlation.errors", removed.Errors()),
		)
	}
	removed.endSpan()
	e.logger.Info("correlation terminated",
		"correlation_id", removed.ID,
		"respondents", removed.Respondents(),
		"errors", removed.Errors(),
	)
}

// handleDeadlineFire is the deadline-scheduler termination path. Any
// slot that never resolved (no dispatch-time synthetic, no callback)
// is recorded as a synthetic TIMEOUT.
func (e *Engine) handleDeadlineFire(id string) {
	removed := e.registry.Remove(id)
	if removed == nil {
		// Already terminated by another path; deadlines always revalidate.
		return
	}

	missing := removed.Expected() - int(removed.Received())
	if missing < 0 {
		missing = 0
	}
	for i := 0; i < missing; i++ {
		removed.recordCallback(StatusTimeout)
		e.emitter.Emit(removed, CallbackEvent{
			Source:        "AGGREGATOR",
			CorrelationID: id,
			Status:        StatusTimeout,
		})
	}

	removed.cancelAll()
	e.emitter.EmitSummary(removed, removed.Respondents(), removed.Errors())
	if removed.span != nil {
		removed.span.SetStatus(codes.Error, "deadline exceeded")
		removed.span.SetAttributes(attribute.Int("correlation.missing", missing))
	}
	removed.endSpan()
	e.logger.Warn("correlation terminated by deadline",
		"correlation_id", id,
		"missing", missing,
	)
}

// Shutdown abandons every live correlation: cancels dispatch and
// deadline handles and closes channels without emitting summaries,
// mirroring client disconnect. Called once at process shutdown.
func (e *Engine) Shutdown() {
	for _, state := range e.registry.All() {
		e.Abandon(state.ID)
	}
}

func (e *Engine) effectiveDeadline(timeoutMS *int64) time.Duration {
	requested := e.maxDeadline
	if timeoutMS != nil && *timeoutMS > 0 {
		requested = time.Duration(*timeoutMS) * time.Millisecond
	}
	if requested > e.maxDeadline {
		e.logger.Warn("clamping requested deadline to configured maximum",
			"requested_ms", requested.Milliseconds(),
			"max_ms", e.maxDeadline.Milliseconds(),
		)
		return e.maxDeadline
	}
	return requested
}
