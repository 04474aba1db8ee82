// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package aggregator

import (
	"sync"
	"testing"
	"time"
)

func TestScheduler_FiresAfterDuration(t *testing.T) {
	var mu sync.Mutex
	var fired string
	done := make(chan struct{})

	s := NewScheduler(func(id string) {
		mu.Lock()
		fired = id
		mu.Unlock()
		close(done)
	}, discardLogger())

	s.Schedule("c1", 10*time.Millisecond)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("deadline never fired")
	}

	mu.Lock()
	defer mu.Unlock()
	if fired != "c1" {
		t.Errorf("fired id = %q, want c1", fired)
	}
}

func TestDeadlineHandle_CancelPreventsFire(t *testing.T) {
	fired := make(chan struct{})
	s := NewScheduler(func(id string) { close(fired) }, discardLogger())

	handle := s.Schedule("c1", 20*time.Millisecond)
	if !handle.Cancel() {
		t.Fatal("Cancel should report it stopped a pending timer")
	}

	select {
	case <-fired:
		t.Fatal("onFire should not run after Cancel")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDeadlineHandle_CancelIsIdempotent(t *testing.T) {
	s := NewScheduler(func(id string) {}, discardLogger())
	handle := s.Schedule("c1", 20*time.Millisecond)

	handle.Cancel()
	handle.Cancel() // must not panic
}

func TestDeadlineHandle_CancelAfterFireIsSafe(t *testing.T) {
	done := make(chan struct{})
	s := NewScheduler(func(id string) { close(done) }, discardLogger())
	handle := s.Schedule("c1", 5*time.Millisecond)

	<-done
	if handle.Cancel() {
		t.Error("Cancel after fire should report false")
	}
}
