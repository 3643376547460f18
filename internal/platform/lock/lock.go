// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package lock provides a distributed mutual-exclusion primitive over the KVS.

It implements the `SET key val PX ttl NX` / Lua-CAS-release pattern used by
the Master Scheduler (single-active instance) and the Chapter Ingest Worker
(per-series-chapter serialization).
*/
package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/taibuivan/mangatrack/internal/platform/kvs"
)

// ErrNotAcquired is returned by Acquire when another holder already owns
// the lock.
var ErrNotAcquired = errors.New("lock: not acquired")

// releaseScript performs a compare-and-delete: it only deletes the key if
// its current value still matches the token this holder set, so a holder
// can never release a lock it no longer owns (e.g. after its TTL expired
// and someone else acquired it).
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`

// Lock represents a held distributed lock. Call Release when done.
type Lock struct {
	store kvs.Store
	key   string
	token string
}

// Acquire attempts to take the lock identified by key for ttl. It returns
// [ErrNotAcquired] if another holder currently has it.
func Acquire(ctx context.Context, store kvs.Store, key string, ttl time.Duration) (*Lock, error) {
	token, err := randomToken()
	if err != nil {
		return nil, err
	}

	ok, err := store.SetNX(ctx, key, token, ttl)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotAcquired
	}

	return &Lock{store: store, key: key, token: token}, nil
}

// TryAcquireStale attempts to take over a lock whose holder's heartbeat is
// older than staleAfter, recovering from a crashed holder. It first checks
// the key's remaining TTL against the original lease length; if the
// remaining TTL implies the holder has not renewed recently, it force-clears
// the key before attempting a normal Acquire. Used by the Master Scheduler
// on startup to recover from a crashed holder's stale heartbeat.
func TryAcquireStale(ctx context.Context, store kvs.Store, key string, ttl, staleAfter time.Duration) (*Lock, error) {
	remaining, err := store.TTL(ctx, key)
	if err != nil {
		return nil, err
	}
	if remaining > 0 && ttl-remaining >= staleAfter {
		_ = store.Del(ctx, key)
	}
	return Acquire(ctx, store, key, ttl)
}

// Renew extends the lock's TTL, provided this holder still owns it (the
// token still matches). It uses the same CAS approach as Release but issues
// a PEXPIRE instead of a DEL.
func (l *Lock) Renew(ctx context.Context, ttl time.Duration) error {
	const renewScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
	return 0
end
`
	res, err := l.store.Eval(ctx, renewScript, []string{l.key}, l.token, ttl.Milliseconds())
	if err != nil {
		return err
	}
	if n, ok := asInt(res); !ok || n == 0 {
		return ErrNotAcquired
	}
	return nil
}

// Release drops the lock if this holder still owns it. Releasing a lock
// that has already expired and been re-acquired by someone else is a no-op,
// never a deletion of the new holder's lock.
func (l *Lock) Release(ctx context.Context) error {
	_, err := l.store.Eval(ctx, releaseScript, []string{l.key}, l.token)
	return err
}

func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}

func randomToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
