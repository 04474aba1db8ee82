// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package aggregator

import (
	"errors"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/trace"
)

// ErrInvalidState is returned by setExpected when called a second time
// or with a non-positive count.
var ErrInvalidState = errors.New("aggregator: invalid state transition")

// CancelHandle is a single-shot cancellation capability. Invoking it
// more than once, or after the work it guards has already finished,
// must be safe and a no-op.
type CancelHandle func()

// eventChannelCapacity bounds the per-correlation event channel. A
// slow subscriber causes producers to apply bounded-retry backpressure
// (see Emitter) rather than block indefinitely.
const eventChannelCapacity = 32

// State is the per-correlation aggregation record: expected/received
// counters, the event channel forwarded to the stream endpoint, and
// the cancellation handles for the dispatch group and the deadline.
//
// State has no notion of "I am terminated" on its own — termination is
// owned by the registry's atomic Remove (see Engine.terminate and
// Engine.Abandon); State only ever reports the decision that authorizes
// a caller to become the termination owner.
type State struct {
	ID string

	// expectedMu guards expected and expectedSet together, since
	// setExpected's once-only semantics and its race-recheck against
	// received must be observed atomically as a pair.
	expectedMu  sync.Mutex
	expected    int
	expectedSet bool

	received    atomic.Int64
	respondents atomic.Int64
	errors      atomic.Int64

	// subscribed guards the at-most-one-subscriber rule for the stream
	// endpoint. Not used by signaling sessions, which allow many
	// subscribers.
	subscribed atomic.Bool

	// eventsMu guards events and eventsClosed together: a late callback
	// can race the termination owner's closeEvents, and without this
	// lock trySend could send on an already-closed channel and panic.
	eventsMu     sync.Mutex
	events       chan CallbackEvent
	eventsClosed bool

	// handleMu guards dispatchCancel and deadlineCancel. Both handles
	// are themselves single-shot and idempotent; this mutex only
	// protects the act of storing/reading the function values.
	handleMu       sync.Mutex
	dispatchCancel CancelHandle
	deadlineCancel CancelHandle

	// span covers this correlation's full lifetime, from creation to
	// termination. nil when tracing is disabled.
	span trace.Span
}

func newState(id string) *State {
	return &State{
		ID:     id,
		events: make(chan CallbackEvent, eventChannelCapacity),
	}
}

// endSpan ends the correlation's tracing span, if one was attached.
func (s *State) endSpan() {
	if s.span != nil {
		s.span.End()
	}
}

// setExpected sets expected exactly once. It reports whether, at the
// moment expected was stored, received had already reached n — this
// happens when dispatch-time synthetic events complete every slot
// before setExpected runs, and the caller must still terminate in
// that case.
func (s *State) setExpected(n int) (crossedAlready bool, err error) {
	if n < 1 {
		return false, ErrInvalidState
	}
	s.expectedMu.Lock()
	defer s.expectedMu.Unlock()
	if s.expectedSet {
		return false, ErrInvalidState
	}
	s.expected = n
	s.expectedSet = true
	return s.received.Load() >= int64(n), nil
}

// Expected returns the configured expected count, or 0 if not yet set.
func (s *State) Expected() int {
	s.expectedMu.Lock()
	defer s.expectedMu.Unlock()
	return s.expected
}

func (s *State) Received() int64    { return s.received.Load() }
func (s *State) Respondents() int64 { return s.respondents.Load() }
func (s *State) Errors() int64      { return s.errors.Load() }

// recordCallback applies one backend outcome to the counters and
// reports whether this call is the one that crosses expected, i.e.
// whether the caller becomes the termination owner. received is
// incremented before the comparison, and since increments are
// strictly by one, exactly one call observes received == expected.
func (s *State) recordCallback(status Status) (terminate bool) {
	received := s.received.Add(1)
	switch status {
	case StatusOK:
		s.respondents.Add(1)
	case StatusTimeout, StatusConnectionClosed, StatusError:
		s.errors.Add(1)
	case StatusRejected:
		// Counted in received only; neither respondent nor error.
	}

	s.expectedMu.Lock()
	expected, expectedSet := s.expected, s.expectedSet
	s.expectedMu.Unlock()

	return expectedSet && expected > 0 && received == int64(expected)
}

func (s *State) armDispatchCancel(h CancelHandle) {
	s.handleMu.Lock()
	s.dispatchCancel = h
	s.handleMu.Unlock()
}

func (s *State) armDeadline(h CancelHandle) {
	s.handleMu.Lock()
	s.deadlineCancel = h
	s.handleMu.Unlock()
}

// cancelAll invokes both cancellation handles if present. Safe to call
// after they have already fired, and safe to call more than once.
func (s *State) cancelAll() {
	s.handleMu.Lock()
	dispatchCancel, deadlineCancel := s.dispatchCancel, s.deadlineCancel
	s.handleMu.Unlock()

	if dispatchCancel != nil {
		dispatchCancel()
	}
	if deadlineCancel != nil {
		deadlineCancel()
	}
}

// AcquireSubscriber enforces the at-most-one-subscriber rule for the
// stream endpoint. Returns false if a subscriber is already attached.
func (s *State) AcquireSubscriber() bool {
	return s.subscribed.CompareAndSwap(false, true)
}

// trySend makes a single non-blocking attempt to push e onto the event
// channel. The Emitter is responsible for retrying on failure. Returns
// false without touching the channel if closeEvents has already run —
// a late callback arriving after termination must never send on a
// closed channel.
func (s *State) trySend(e CallbackEvent) bool {
	s.eventsMu.Lock()
	defer s.eventsMu.Unlock()
	if s.eventsClosed {
		return false
	}
	select {
	case s.events <- e:
		return true
	default:
		return false
	}
}

// Subscribe returns the receive-only view of the event channel.
func (s *State) Subscribe() <-chan CallbackEvent {
	return s.events
}

// closeEvents closes the event channel. Must only be called by the
// termination owner, after the summary (if that path emits one) has
// been pushed; Abandon closes without a summary. Safe to call more
// than once.
func (s *State) closeEvents() {
	s.eventsMu.Lock()
	defer s.eventsMu.Unlock()
	if s.eventsClosed {
		return
	}
	s.eventsClosed = true
	close(s.events)
}
