// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package aggregator

import (
	"log/slog"
	"time"
)

// DeadlineHandle is the cancel capability for a scheduled deadline.
// Cancel is idempotent; it reports whether the underlying timer had
// not yet fired (i.e. whether cancellation had any effect).
type DeadlineHandle struct {
	timer *time.Timer
}

// Cancel stops the deadline if it has not yet fired. Safe to call more
// than once, and safe to call after the deadline has already fired.
func (h *DeadlineHandle) Cancel() bool {
	if h == nil || h.timer == nil {
		return false
	}
	return h.timer.Stop()
}

// fireFunc is invoked when a scheduled deadline fires. Owned by Engine
// so deadline firing shares the same termination path as the callback
// endpoint's crossing and the registry's atomic remove.
type fireFunc func(id string)

// Scheduler arms one-shot, cancellable, per-correlation deadlines.
type Scheduler struct {
	onFire fireFunc
	logger *slog.Logger
}

// NewScheduler creates a Scheduler that calls onFire when a deadline
// fires without having been cancelled first.
func NewScheduler(onFire fireFunc, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{onFire: onFire, logger: logger}
}

// Schedule arms a deadline that fires after d.
func (s *Scheduler) Schedule(id string, d time.Duration) *DeadlineHandle {
	handle := &DeadlineHandle{}
	handle.timer = time.AfterFunc(d, func() {
		s.onFire(id)
	})
	return handle
}
