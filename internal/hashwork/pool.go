// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authd Contributors

// Package hashwork runs CPU-expensive credential hashing off the
// request-serving path on a bounded worker pool.
package hashwork

import (
	"context"
	"errors"
	"runtime/debug"
	"time"

	"github.com/samber/oops"
)

// Defaults applied by New when given non-positive values.
const (
	DefaultWorkers        = 4
	DefaultAcquireTimeout = 5 * time.Second
)

// ErrPoolExhausted is returned when no worker slot frees up within the
// acquire timeout. Callers surface it as a retryable failure.
var ErrPoolExhausted = errors.New("hash worker pool exhausted")

// Pool bounds the number of concurrently running hash operations.
// Acquisition suspends the calling goroutine; it never spins or blocks
// an OS thread. A panic inside a submitted function is recovered and
// converted into an error so it cannot take down the caller.
type Pool struct {
	slots          chan struct{}
	acquireTimeout time.Duration
}

// New creates a Pool with the given number of worker slots and slot
// acquisition timeout.
func New(workers int, acquireTimeout time.Duration) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if acquireTimeout <= 0 {
		acquireTimeout = DefaultAcquireTimeout
	}
	return &Pool{
		slots:          make(chan struct{}, workers),
		acquireTimeout: acquireTimeout,
	}
}

type outcome struct {
	value string
	err   error
}

// Do runs fn on the pool and suspends until it completes or ctx is
// done. Waiting for a slot is bounded by the pool's acquire timeout;
// exceeding it yields ErrPoolExhausted. Once fn has started it runs to
// completion even if ctx is cancelled, but the caller stops waiting.
func (p *Pool) Do(ctx context.Context, fn func() (string, error)) (string, error) {
	timer := time.NewTimer(p.acquireTimeout)
	defer timer.Stop()

	select {
	case p.slots <- struct{}{}:
	case <-timer.C:
		return "", oops.Code("HASHWORK_EXHAUSTED").
			With("acquire_timeout", p.acquireTimeout.String()).
			Wrap(ErrPoolExhausted)
	case <-ctx.Done():
		return "", oops.Code("HASHWORK_CANCELLED").Wrap(ctx.Err())
	}

	// Buffered so the worker can finish after caller abandonment.
	done := make(chan outcome, 1)

	go func() {
		defer func() { <-p.slots }()
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: oops.Code("HASHWORK_PANIC").
					With("panic", r).
					With("stack", string(debug.Stack())).
					Errorf("hash worker panicked")}
			}
		}()

		value, err := fn()
		done <- outcome{value: value, err: err}
	}()

	select {
	case out := <-done:
		return out.value, out.err
	case <-ctx.Done():
		return "", oops.Code("HASHWORK_CANCELLED").Wrap(ctx.Err())
	}
}
