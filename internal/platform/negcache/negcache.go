// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package negcache implements the negative-result cache: sources that
recently returned an empty chapter list accumulate a rolling counter so the
scheduler can back off repeatedly-empty sources instead of polling them on
the normal cadence.
*/
package negcache

import (
	"context"
	"fmt"
	"time"

	"github.com/taibuivan/mangatrack/internal/platform/kvs"
)

const keyPrefix = "negcache:"

// Cache tracks empty-result streaks keyed by series_source_id.
type Cache struct {
	store     kvs.Store
	threshold int64
	window    time.Duration
}

// New constructs a [Cache]. threshold is the number of consecutive empty
// results within window before ShouldSkip reports true.
func New(store kvs.Store, threshold int64, window time.Duration) *Cache {
	return &Cache{store: store, threshold: threshold, window: window}
}

// RecordResult updates the streak for seriesSourceID: incrementing (with a
// refreshed TTL) when empty is true, clearing when it is false.
func (c *Cache) RecordResult(ctx context.Context, seriesSourceID string, empty bool) error {
	key := keyPrefix + seriesSourceID

	if !empty {
		return c.store.Del(ctx, key)
	}

	count, err := c.store.Incr(ctx, key)
	if err != nil {
		return err
	}
	if count == 1 {
		return c.store.Expire(ctx, key, c.window)
	}
	// Refresh the TTL on every empty result so the window is rolling, not
	// fixed from the first miss.
	return c.store.Expire(ctx, key, c.window)
}

// ShouldSkip reports whether seriesSourceID has accumulated enough
// consecutive empty results within the window to be skipped this tick.
func (c *Cache) ShouldSkip(ctx context.Context, seriesSourceID string) (bool, error) {
	val, err := c.store.Get(ctx, keyPrefix+seriesSourceID)
	if err == kvs.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	var count int64
	if _, scanErr := fmt.Sscanf(val, "%d", &count); scanErr != nil {
		return false, nil
	}
	return count >= c.threshold, nil
}
