// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package kvs defines a thin capability interface over the key-value store
backing rate limits, locks, queues, caches, and search statistics.

# Architecture

Every component that talks to Redis depends on [Store], never on
*redis.Client directly. This keeps the cross-layer coupling the rest of the
platform has to the cache backplane to one seam, so it can be swapped or
mocked in tests (see [NewTestStore]).
*/
package kvs

import (
	"context"
	"time"
)

// Store is the capability surface every KVS-backed component is allowed to
// use. It deliberately does not expose the full redis.Client API.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX sets key to value only if it does not already exist, returning
	// whether the set happened. Used for distributed locks and jobId dedup.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Incr(ctx context.Context, key string) (int64, error)
	IncrBy(ctx context.Context, key string, delta int64) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	PExpire(ctx context.Context, key string, ttl time.Duration) error
	TTL(ctx context.Context, key string) (time.Duration, error)
	Del(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)

	// Eval runs a Lua script (used for the CAS lock release in
	// internal/platform/lock and for atomic rate-limit refill/consume).
	Eval(ctx context.Context, script string, keys []string, args ...any) (any, error)

	// Sorted set operations back the priority queue in internal/platform/queue.
	ZAdd(ctx context.Context, key string, score float64, member string) error
	ZRangeByScore(ctx context.Context, key string, min, max float64, limit int64) ([]string, error)
	ZRem(ctx context.Context, key string, member string) error
	ZScore(ctx context.Context, key string, member string) (float64, bool, error)
	ZCard(ctx context.Context, key string) (int64, error)

	// HSet/HGet/HDel back per-job payload storage in internal/platform/queue.
	HSet(ctx context.Context, key, field, value string) error
	HGet(ctx context.Context, key, field string) (string, error)
	HDel(ctx context.Context, key string, fields ...string) error

	Ping(ctx context.Context) error
}

// ErrNotFound is returned by Get/HGet when the key or field is absent. It is
// a sentinel rather than a redis-specific type so callers never import
// go-redis directly.
var ErrNotFound = errNotFound{}

type errNotFound struct{}

func (errNotFound) Error() string { return "kvs: key not found" }
