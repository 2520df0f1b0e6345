// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package reconnect implements the exponential-backoff-with-jitter state
// machine shared by every Channel Runtime (spec §4.9). It is deliberately
// transport-agnostic: the caller supplies the connect closure, this package
// only owns the timing and attempt bookkeeping.
package reconnect

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fieldmesh/comsrv/internal/timeutil"
	"github.com/fieldmesh/comsrv/pkg/log"
)

var logger = log.Component("RECONNECT")

// ErrMaxAttemptsExceeded is returned by Attempt once current_attempt reaches
// Policy.MaxAttempts (when MaxAttempts > 0).
var ErrMaxAttemptsExceeded = errors.New("reconnect: max attempts exceeded")

// Policy parameterizes the backoff curve.
type Policy struct {
	Initial    time.Duration
	Multiplier float64
	MaxDelay   time.Duration
	// MaxAttempts is the attempt ceiling; 0 means unbounded.
	MaxAttempts int
	// Jitter is the fractional jitter applied to the computed delay, e.g.
	// 0.25 for ±25%. 0 disables jitter (used by delay-monotonicity tests).
	Jitter float64
}

// DefaultPolicy matches the spec's worked numbers: 1s initial, doubling,
// capped at 30s, unbounded attempts, ±25% jitter.
func DefaultPolicy() Policy {
	return Policy{
		Initial:    time.Second,
		Multiplier: 2,
		MaxDelay:   30 * time.Second,
		Jitter:     0.25,
	}
}

// Stats are the cumulative counters spec §4.9 requires be exposed.
type Stats struct {
	TotalAttempts uint64
	Successful    uint64
	Failed        uint64
}

// Helper is one channel's reconnect state machine. Not safe for concurrent
// use by multiple goroutines against the same channel, matching the "per-
// channel transport exclusively owned by its task" ownership rule (§5).
type Helper struct {
	policy Policy
	clock  timeutil.Provider
	rng    *rand.Rand

	mu             sync.Mutex
	currentAttempt int
	lastAttemptAt  time.Time
	lastConnected  time.Time

	totalAttempts atomic.Uint64
	successful    atomic.Uint64
	failed        atomic.Uint64
}

func New(policy Policy, clock timeutil.Provider) *Helper {
	if clock == nil {
		clock = timeutil.System
	}
	return &Helper{policy: policy, clock: clock, rng: rand.New(rand.NewSource(1))}
}

// Delay computes the backoff delay for the given 1-based attempt number,
// clamped to MaxDelay, before jitter.
func (h *Helper) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(h.policy.Initial)
	for i := 1; i < attempt; i++ {
		d *= h.policy.Multiplier
	}
	delay := time.Duration(d)
	if h.policy.MaxDelay > 0 && delay > h.policy.MaxDelay {
		delay = h.policy.MaxDelay
	}
	return delay
}

func (h *Helper) jittered(d time.Duration) time.Duration {
	if h.policy.Jitter <= 0 {
		return d
	}
	span := float64(d) * h.policy.Jitter
	offset := (h.rng.Float64()*2 - 1) * span
	out := time.Duration(float64(d) + offset)
	if out < 0 {
		out = 0
	}
	return out
}

// Connect is the caller-supplied dial closure.
type Connect func(ctx context.Context) error

// Attempt waits out the computed backoff delay (cancellable via ctx), then
// invokes connect. Success resets the attempt counter; failure increments
// it. Returns ErrMaxAttemptsExceeded without attempting to connect if the
// attempt ceiling has already been reached.
func (h *Helper) Attempt(ctx context.Context, connect Connect) error {
	h.mu.Lock()
	if h.policy.MaxAttempts > 0 && h.currentAttempt >= h.policy.MaxAttempts {
		h.mu.Unlock()
		return ErrMaxAttemptsExceeded
	}
	h.currentAttempt++
	attempt := h.currentAttempt
	h.lastAttemptAt = h.clock.Now()
	h.mu.Unlock()

	delay := h.jittered(h.Delay(attempt))
	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	h.totalAttempts.Add(1)
	err := connect(ctx)
	if err != nil {
		h.failed.Add(1)
		logger.Warnf("connect attempt %d failed: %v", attempt, err)
		return err
	}

	h.successful.Add(1)
	h.mu.Lock()
	h.currentAttempt = 0
	h.lastConnected = h.clock.Now()
	h.mu.Unlock()
	return nil
}

// Reset zeroes the attempt counter without recording a success, used when a
// channel is explicitly re-enabled after being disabled.
func (h *Helper) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.currentAttempt = 0
}

func (h *Helper) CurrentAttempt() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.currentAttempt
}

func (h *Helper) LastConnected() (time.Time, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastConnected, !h.lastConnected.IsZero()
}

func (h *Helper) Stats() Stats {
	return Stats{
		TotalAttempts: h.totalAttempts.Load(),
		Successful:    h.successful.Load(),
		Failed:        h.failed.Load(),
	}
}
