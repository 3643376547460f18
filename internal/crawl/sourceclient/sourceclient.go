// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package sourceclient implements the Source Client contract: one
protocol adapter per external provider, responsible for turning a raw
listing page into chapter rows the ingest worker can reconcile.

Every adapter implements [Client]; the [Registry] resolves a SeriesSource's
source_name to the adapter that knows how to talk to it. Adapters never
normalize chapter labels themselves — that happens downstream in
internal/core/chapter — they only fetch and shape the raw listing.
*/
package sourceclient

import (
	"fmt"
	"time"
)

// # Result Types

// RawChapter is one entry from a source's chapter listing, before
// normalization.
type RawChapter struct {
	Label            string
	Title            string
	SourceChapterID  string
	SourceChapterURL string
	PublishedAt      *time.Time
}

// ScrapeResult is the outcome of [Client.ScrapeSeries].
type ScrapeResult struct {
	SourceID string
	Title    string
	Chapters []RawChapter
}

// LatestUpdate is one entry from a source's cross-series "recently updated"
// feed, consumed by the latest-updates sweep rather than a per-series poll.
type LatestUpdate struct {
	SourceName   string
	SourceID     string
	ChapterLabel string
	UpdatedAt    time.Time
}

// # Typed Errors
//
// The Source-Poll Worker classifies a scrape failure by type,
// not by string-matching messages, so each condition gets its own type.

// RateLimitError means the provider itself throttled this request (HTTP
// 429 after exhausting adapter-level retries).
type RateLimitError struct{ Source string }

func (e *RateLimitError) Error() string { return fmt.Sprintf("sourceclient: %s rate limited", e.Source) }

// ProxyBlockedError means the request was blocked by an upstream proxy or
// IP-reputation filter, distinct from the provider's own rate limiting.
type ProxyBlockedError struct{ Source string }

func (e *ProxyBlockedError) Error() string {
	return fmt.Sprintf("sourceclient: %s blocked by proxy", e.Source)
}

// ForbiddenError means the provider returned 403, typically a Cloudflare
// (or similar) bot challenge rather than a reputation-based block.
type ForbiddenError struct{ Source string }

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("sourceclient: %s returned forbidden (cloudflare?)", e.Source)
}

// NotFoundError means the provider no longer has sourceID (removed or
// migrated); callers should not keep retrying it on the normal cadence.
type NotFoundError struct {
	Source   string
	SourceID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("sourceclient: %s: %s not found", e.Source, e.SourceID)
}

// NotImplementedError means no adapter is registered for a source_name.
// The poll worker maps this to source_status=inactive, next_check_at=+7d,
// no retry.
type NotImplementedError struct{ Source string }

func (e *NotImplementedError) Error() string {
	return fmt.Sprintf("sourceclient: no adapter implemented for source %q", e.Source)
}

// IsRateLimit reports whether err is a [RateLimitError].
func IsRateLimit(err error) bool { _, ok := err.(*RateLimitError); return ok }

// IsProxyBlocked reports whether err is a [ProxyBlockedError].
func IsProxyBlocked(err error) bool { _, ok := err.(*ProxyBlockedError); return ok }

// IsForbidden reports whether err is a [ForbiddenError].
func IsForbidden(err error) bool { _, ok := err.(*ForbiddenError); return ok }

// IsNotFound reports whether err is a [NotFoundError].
func IsNotFound(err error) bool { _, ok := err.(*NotFoundError); return ok }

// IsNotImplemented reports whether err is a [NotImplementedError].
func IsNotImplemented(err error) bool { _, ok := err.(*NotImplementedError); return ok }
