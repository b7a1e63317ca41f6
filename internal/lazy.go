// Copyright 2023 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package internal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrBackingOff is returned by Lazy.Get while the last failed attempt is still cooling down.
var ErrBackingOff = errors.New("initialization is backing off after a failure")

// Lazy holds a process-wide handle that is created on first use.
// A successful initialization is kept forever. A failed one is never cached:
// the next Get after the backoff window tries again. Attempts that fail because the
// caller's context ended do not count as failures.
type Lazy[T any] struct {
	name    string
	connect func(ctx context.Context) (T, error)

	mu          sync.Mutex
	value       T
	ready       bool
	failures    int64
	lastErr     error
	nextAttempt time.Time
	inflight    *attempt[T]

	slotTime   time.Duration
	maxBackoff time.Duration
	now        func() time.Time
}

// attempt is one running connect call. Fields are written before done is closed.
type attempt[T any] struct {
	done      chan struct{}
	value     T
	err       error
	abandoned bool
}

// NewLazy creates a handle named name (used for logging) around connect.
func NewLazy[T any](name string, connect func(ctx context.Context) (T, error)) *Lazy[T] {
	return &Lazy[T]{
		name:       name,
		connect:    connect,
		slotTime:   100 * time.Millisecond,
		maxBackoff: 30 * time.Second,
		now:        time.Now,
	}
}

// WithBackoff overrides the backoff slot and ceiling.
func (l *Lazy[T]) WithBackoff(slotTime, maximum time.Duration) *Lazy[T] {
	l.slotTime = slotTime
	l.maxBackoff = maximum
	return l
}

// Get returns the handle, connecting first if needed.
// Only one connection attempt runs at a time. Other callers wait for it until their own
// context ends, and start a new attempt if it was abandoned by its caller.
func (l *Lazy[T]) Get(ctx context.Context) (T, error) {
	var zero T
	for {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("%s: %w", l.name, err)
		}

		l.mu.Lock()
		if l.ready {
			value := l.value
			l.mu.Unlock()
			return value, nil
		}
		if l.failures > 0 && l.now().Before(l.nextAttempt) {
			err := fmt.Errorf("%s: %w (last error: %v)", l.name, ErrBackingOff, l.lastErr)
			l.mu.Unlock()
			return zero, err
		}

		if a := l.inflight; a != nil {
			l.mu.Unlock()
			select {
			case <-a.done:
				if a.abandoned {
					continue
				}
				return a.value, a.err
			case <-ctx.Done():
				return zero, fmt.Errorf("%s: %w", l.name, ctx.Err())
			}
		}

		a := &attempt[T]{done: make(chan struct{})}
		l.inflight = a
		l.mu.Unlock()

		value, err := l.connect(ctx)
		l.finish(ctx, a, value, err)
		return value, err
	}
}

func (l *Lazy[T]) finish(ctx context.Context, a *attempt[T], value T, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	defer close(a.done)

	l.inflight = nil
	a.value = value
	a.err = err

	switch {
	case err == nil:
		if l.failures > 0 {
			zap.S().Infow("Handle initialized after failures", "handle", l.name, "failures", l.failures)
		} else {
			zap.S().Debugw("Handle initialized", "handle", l.name)
		}
		l.value = value
		l.ready = true
		l.failures = 0
		l.lastErr = nil
	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		a.abandoned = true
		zap.S().Debugw("Initialization abandoned by its caller", "handle", l.name, "error", err)
	default:
		l.failures++
		l.lastErr = err
		l.nextAttempt = l.now().Add(GetBackoffCeiling(l.failures, l.slotTime, l.maxBackoff))
		zap.S().Warnw("Failed to initialize handle",
			"handle", l.name,
			"failures", l.failures,
			"nextAttempt", l.nextAttempt,
			"error", err,
		)
	}
}

// Peek returns the handle only if it was already initialized.
func (l *Lazy[T]) Peek() (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.value, l.ready
}

// Failures is the number of consecutive failed attempts.
func (l *Lazy[T]) Failures() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.failures
}
