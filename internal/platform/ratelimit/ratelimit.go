// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package ratelimit implements the per-source token bucket: a distributed
counter in the KVS with millisecond-TTL windows, fail-open to an
in-memory bucket when the KVS is unavailable.

# Variants

Two implementations share one contract: the distributed KVS window (the
primary, cluster-wide limiter) and an in-process fallback with identical
semantics. [Limiter] composes both and does the fail-open switch itself,
so callers never choose a variant.
*/
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/taibuivan/mangatrack/internal/platform/kvs"
)

// Config sets the token bucket's capacity and refill rate for a source.
type Config struct {
	// RequestsPerSecond is the steady-state refill rate.
	RequestsPerSecond float64
	// Burst is the bucket's maximum capacity.
	Burst int
}

// DefaultConfig is used for sources with no explicit override: 5 req/s,
// sized for catalog-scale providers.
var DefaultConfig = Config{RequestsPerSecond: 5, Burst: 5}

// Limiter acquires per-source tokens, backed by a distributed bucket with
// an in-memory fail-open fallback.
type Limiter struct {
	store    kvs.Store
	log      *slog.Logger
	configs  map[string]Config
	fallback *localBuckets
}

// New constructs a [Limiter]. configs maps source name to its bucket
// configuration; sources absent from the map use [DefaultConfig].
func New(store kvs.Store, configs map[string]Config, log *slog.Logger) *Limiter {
	return &Limiter{
		store:    store,
		log:      log,
		configs:  configs,
		fallback: newLocalBuckets(),
	}
}

func (l *Limiter) configFor(source string) Config {
	if cfg, ok := l.configs[source]; ok {
		return cfg
	}
	return DefaultConfig
}

// Acquire blocks up to timeout trying to obtain one token for source. It
// returns nil on success, or an error if the timeout elapses first.
//
// The distributed path counts requests, up to Burst, within a fixed
// 1-second window keyed by source and the current second, using INCR +
// PEXPIRE — a
// coarse but KVS-contention-tolerant approximation of a token bucket.
// If the KVS call itself errors (not merely "bucket empty"), Acquire
// fails open to the in-memory fallback so a Redis outage degrades rate
// limiting rather than blocking every crawl worker.
func (l *Limiter) Acquire(ctx context.Context, source string, timeout time.Duration) error {
	cfg := l.configFor(source)
	deadline := time.Now().Add(timeout)

	for {
		ok, err := l.tryDistributed(ctx, source, cfg)
		if err != nil {
			l.log.Warn("ratelimit_kvs_unavailable_failing_open",
				slog.String("source", source), slog.Any("error", err))
			ok = l.fallback.tryAcquire(source, cfg)
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("ratelimit: timed out acquiring token for %q", source)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// tryDistributed attempts a single non-blocking acquisition against the KVS.
func (l *Limiter) tryDistributed(ctx context.Context, source string, cfg Config) (bool, error) {
	windowMs := int64(1000)
	bucket := windowBucket(time.Now(), windowMs)
	key := fmt.Sprintf("ratelimit:%s:%d", source, bucket)

	count, err := l.store.Incr(ctx, key)
	if err != nil {
		return false, err
	}
	if count == 1 {
		_ = l.store.PExpire(ctx, key, time.Duration(windowMs)*time.Millisecond*2)
	}
	return count <= int64(cfg.Burst), nil
}

func windowBucket(t time.Time, windowMs int64) int64 {
	if windowMs <= 0 {
		windowMs = 1
	}
	return t.UnixMilli() / windowMs
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// localBuckets is the fail-open fallback variant: a mutex-protected map of
// golang.org/x/time/rate limiters, one per source, refilled continuously
// rather than windowed.
type localBuckets struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newLocalBuckets() *localBuckets {
	return &localBuckets{limiters: make(map[string]*rate.Limiter)}
}

func (b *localBuckets) tryAcquire(source string, cfg Config) bool {
	b.mu.Lock()
	limiter, ok := b.limiters[source]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
		b.limiters[source] = limiter
	}
	b.mu.Unlock()

	return limiter.Allow()
}
