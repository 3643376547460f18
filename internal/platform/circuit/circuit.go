// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package circuit implements the per-source circuit breaker: open at 5
consecutive failures, 60s reset timeout, then a single probe call;
successes reset the counter.

It wraps [sony/gobreaker] rather than reimplementing the state machine —
the half-open probe semantics gobreaker already provides are exactly the
behavior this breaker needs.
*/
package circuit

import (
	"context"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/taibuivan/mangatrack/internal/platform/apperr"
)

const (
	failureThreshold = 5
	resetTimeout     = 60 * time.Second
)

// Registry holds one breaker per source, created lazily. A single process
// (the poll worker) owns a Registry; the cross-process-visible half of the
// breaker's state (SeriesSource.source_status) is written by the caller,
// not by this package.
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewRegistry constructs an empty breaker [Registry].
func NewRegistry() *Registry {
	return &Registry{breakers: make(map[string]*gobreaker.CircuitBreaker)}
}

func (r *Registry) breakerFor(source string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[source]; ok {
		return b
	}

	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    source,
		Timeout: resetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failureThreshold
		},
	})
	r.breakers[source] = b
	return b
}

// Execute runs fn through the named source's breaker. If the breaker is
// open, fn is never called and a typed [apperr.CircuitOpen] error is
// returned instead.
func (r *Registry) Execute(ctx context.Context, source string, fn func(context.Context) error) error {
	breaker := r.breakerFor(source)

	_, err := breaker.Execute(func() (any, error) {
		return nil, fn(ctx)
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return apperr.CircuitOpen(source)
	}
	return err
}

// State reports the current breaker state for a source, used by the
// Source-Poll Worker to decide whether to mark a SeriesSource broken
// without actually calling through the breaker.
func (r *Registry) State(source string) gobreaker.State {
	return r.breakerFor(source).State()
}

// IsOpen reports whether source's breaker is currently open.
func (r *Registry) IsOpen(source string) bool {
	return r.State(source) == gobreaker.StateOpen
}
