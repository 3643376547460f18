// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package kvs

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// NewTestStore starts an in-process miniredis instance and returns a [Store]
// backed by it, for unit tests of KVS-dependent components that would
// otherwise require a live Redis. The miniredis server is closed
// automatically via t.Cleanup.
func NewTestStore(t testing.TB) Store {
	t.Helper()

	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
	})

	return NewRedisStore(client)
}
