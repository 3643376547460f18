// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package gatekeeper implements the Crawl Gatekeeper: the single
decision point both the Master Scheduler and ad-hoc callers (e.g. "user
requested a refresh") go through before a `sync-source` job is enqueued.

It composes three platform primitives — [queue.Manager] (dedup),
[circuit.Registry] (breaker state), and [negcache.Cache] (empty-result
backoff) — into one allow/deny decision with a priority, so no caller has
to remember the order those three checks must happen in.
*/
package gatekeeper

import (
	"context"

	"github.com/taibuivan/mangatrack/internal/core/comic"
	"github.com/taibuivan/mangatrack/internal/platform/circuit"
	"github.com/taibuivan/mangatrack/internal/platform/negcache"
	"github.com/taibuivan/mangatrack/internal/platform/queue"
)

// SyncQueueName is the queue the Source-Poll Worker consumes, and the
// queue every `sync-<sourceId>` job this package gates is destined for.
const SyncQueueName = "sync-source"

// FollowBoostThreshold mirrors the scheduler's HOT-promotion threshold: a
// series with more followers than this earns the same one-step priority
// boost Tier A already gets, on the theory that a source about to be
// promoted to HOT shouldn't wait for the next scheduler tick to be
// treated like one.
const FollowBoostThreshold = 100

// Reason names why a sync was requested, and drives the base priority
// [ShouldEnqueue] assigns.
type Reason string

const (
	ReasonUserRequest  Reason = "USER_REQUEST"
	ReasonGapRecovery  Reason = "GAP_RECOVERY"
	ReasonPeriodic     Reason = "PERIODIC"
	ReasonColdBackfill Reason = "COLD_BACKFILL"
)

func (r Reason) basePriority() int {
	switch r {
	case ReasonUserRequest:
		return queue.PriorityCritical
	case ReasonGapRecovery:
		return queue.PriorityHigh
	case ReasonColdBackfill:
		return queue.PriorityLow
	default:
		return queue.PriorityStandard
	}
}

// Deny names why [ShouldEnqueue] refused a sync request.
type Deny string

const (
	DenyJobExists     Deny = "job_exists"
	DenyCircuitOpen   Deny = "circuit_open"
	DenyNegativeCache Deny = "negative_cache"
)

// Decision is the outcome of [Gatekeeper.ShouldEnqueue].
type Decision struct {
	Allowed     bool
	JobPriority int
	DenyReason  Deny
}

// Gatekeeper composes the queue, circuit breaker, and negative-result
// cache into one enqueue decision.
type Gatekeeper struct {
	queue    *queue.Manager
	breakers *circuit.Registry
	negative *negcache.Cache
}

// New constructs a [Gatekeeper].
func New(queueManager *queue.Manager, breakers *circuit.Registry, negative *negcache.Cache) *Gatekeeper {
	return &Gatekeeper{queue: queueManager, breakers: breakers, negative: negative}
}

// ShouldEnqueue decides whether a `sync-<sourceId>` job may be enqueued
// right now, running the four checks in their required order.
func (g *Gatekeeper) ShouldEnqueue(ctx context.Context, sourceID string, tier comic.CatalogTier, totalFollows int64, reason Reason) (Decision, error) {
	jobID := "sync-" + sourceID

	exists, err := g.queue.Exists(ctx, SyncQueueName, jobID)
	if err != nil {
		return Decision{}, err
	}
	if exists {
		return Decision{DenyReason: DenyJobExists}, nil
	}

	if g.breakers.IsOpen(sourceID) {
		return Decision{DenyReason: DenyCircuitOpen}, nil
	}

	skip, err := g.negative.ShouldSkip(ctx, sourceID)
	if err != nil {
		return Decision{}, err
	}
	if skip {
		return Decision{DenyReason: DenyNegativeCache}, nil
	}

	priority := reason.basePriority()
	if tier == comic.CatalogTierA || totalFollows > FollowBoostThreshold {
		priority = boostOneStep(priority)
	}

	return Decision{Allowed: true, JobPriority: priority}, nil
}

// boostOneStep promotes a priority to the next named level.
func boostOneStep(priority int) int {
	switch priority {
	case queue.PriorityLow:
		return queue.PriorityStandard
	case queue.PriorityStandard:
		return queue.PriorityHigh
	case queue.PriorityHigh:
		return queue.PriorityCritical
	default:
		return priority
	}
}
