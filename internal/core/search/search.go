// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package search implements the Search Storm Controller: the
intent-collapse window that keeps ten simultaneous misses on the same
catalogue query from firing ten external search jobs.

A reader's search that misses the local catalogue is cheap to record and
expensive to act on — acting on it means scraping third-party sites. This
package separates the two: every miss is counted, but an external search
job is only enqueued once a normalized query has missed often enough,
isn't already queued, and hasn't been enqueued too recently.
*/
package search

import (
	"strings"
	"time"
)

// QueryStats is the per-normalized-query bookkeeping row backing the
// storm-collapse decision and basic "what are people searching for and not
// finding" reporting.
type QueryStats struct {
	QueryKey       string
	TotalSearches  int64
	LastEnqueuedAt *time.Time
	LastDeferredAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Tier names the requester class used to weight deferred-queue delay.
type Tier string

const (
	TierPremium  Tier = "premium"
	TierLoggedIn Tier = "logged_in"
	TierFree     Tier = "free"
)

// deferralDelay returns how long a deferred external search for this tier
// waits before it is eligible to run, the weighted deferred queue:
// premium requesters wait no longer than the catalogue miss itself forced,
// logged-in readers wait a short added delay, anonymous/free traffic waits
// the longest.
func (t Tier) deferralDelay() time.Duration {
	switch t {
	case TierPremium:
		return 0
	case TierLoggedIn:
		return 2 * time.Minute
	default:
		return 10 * time.Minute
	}
}

// Normalize collapses q to the canonical form every miss is counted and
// deduplicated under: lowercased, trimmed, internal whitespace collapsed to
// single spaces.
func Normalize(q string) string {
	fields := strings.Fields(q)
	return strings.ToLower(strings.Join(fields, " "))
}
