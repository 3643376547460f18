// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/taibuivan/mangatrack/internal/platform/config"
	"github.com/taibuivan/mangatrack/internal/platform/queue"
)

// ExternalSearchQueueName is the queue an enqueued external search job
// lands on, consumed by [Service.HandleExternalSearch]. That handler logs
// the query and completes the job; it does not call any source client.
const ExternalSearchQueueName = "external-search"

// maxHealthyQueueDepth bounds how many external search jobs may sit pending
// before new misses are routed to the weighted deferred queue instead of
// running immediately.
const maxHealthyQueueDepth = 200

// Reason names why [Service.EvaluateAndEnqueue] did not enqueue immediately.
type Reason string

const (
	ReasonBelowThreshold Reason = "below_threshold"
	ReasonCooldown       Reason = "cooldown"
	ReasonActiveJob      Reason = "active_job"
	ReasonQueueUnhealthy Reason = "queue_unhealthy"
)

// Decision is the outcome of [Service.EvaluateAndEnqueue].
type Decision struct {
	Enqueued bool
	Deferred bool
	Reason   Reason
}

// Service implements the intent-collapse window for external searches.
type Service struct {
	repo   Repository
	queue  *queue.Manager
	cfg    config.Config
	logger *slog.Logger
}

// NewService constructs a [Service].
func NewService(repo Repository, queueManager *queue.Manager, cfg config.Config, logger *slog.Logger) *Service {
	return &Service{repo: repo, queue: queueManager, cfg: cfg, logger: logger}
}

// EvaluateAndEnqueue records q as a catalogue miss and decides whether it
// warrants an external search job, running four checks in order:
// below-threshold deny, cooldown deny, active-job deny, queue-unhealthy
// defer, else allow. tier weights how long a deferred job waits.
func (s *Service) EvaluateAndEnqueue(ctx context.Context, q string, tier Tier) (Decision, error) {
	normalizedKey := Normalize(q)
	if normalizedKey == "" {
		return Decision{}, nil
	}

	stats, err := s.repo.RecordSearch(ctx, normalizedKey)
	if err != nil {
		return Decision{}, err
	}

	// The gate is the durable cumulative counter QueryStats maintains, not
	// a rolling window: a query that has missed often enough over its whole
	// lifetime has earned an external look, however spread out the misses.
	if stats.TotalSearches < int64(s.cfg.SearchStormThreshold) {
		return Decision{Reason: ReasonBelowThreshold}, nil
	}

	cooldown := time.Duration(s.cfg.SearchEnqueueCooldownSeconds) * time.Second
	if stats.LastEnqueuedAt != nil && time.Since(*stats.LastEnqueuedAt) < cooldown {
		return Decision{Reason: ReasonCooldown}, nil
	}

	// The normalized key itself is the job id, so ten simultaneous misses
	// on the same query collapse onto one job.
	jobID := normalizedKey
	exists, err := s.queue.Exists(ctx, ExternalSearchQueueName, jobID)
	if err != nil {
		return Decision{}, err
	}
	if exists {
		return Decision{Reason: ReasonActiveJob}, nil
	}

	pending, err := s.queue.GetJobCounts(ctx, ExternalSearchQueueName)
	if err != nil {
		return Decision{}, err
	}

	now := time.Now()
	payload := map[string]string{"query": normalizedKey}

	if pending >= maxHealthyQueueDepth {
		_, err := s.queue.Add(ctx, ExternalSearchQueueName, "external_search", payload, queue.AddOptions{
			JobID:    jobID,
			Priority: queue.PriorityStandard,
			Delay:    tier.deferralDelay(),
		})
		if err != nil {
			return Decision{}, err
		}
		if err := s.repo.MarkDeferred(ctx, normalizedKey, now); err != nil {
			s.logger.Error("query_stats_mark_deferred_failed", slog.String("query", normalizedKey), slog.Any("error", err))
		}
		return Decision{Deferred: true, Reason: ReasonQueueUnhealthy}, nil
	}

	_, err = s.queue.Add(ctx, ExternalSearchQueueName, "external_search", payload, queue.AddOptions{
		JobID:    jobID,
		Priority: queue.PriorityHigh,
	})
	if err != nil {
		return Decision{}, err
	}
	if err := s.repo.MarkEnqueued(ctx, normalizedKey, now); err != nil {
		s.logger.Error("query_stats_mark_enqueued_failed", slog.String("query", normalizedKey), slog.Any("error", err))
	}
	return Decision{Enqueued: true}, nil
}

// HandleExternalSearch is a [queue.Handler] for [ExternalSearchQueueName].
// The discovery heuristics themselves (matching the query against an
// external catalog and attaching what comes back) belong to the metadata
// enrichment collaborator, outside this system; what the storm controller
// owns is the lifecycle of the job. The handler logs the query and returns
// nil, which completes the job and releases its jobId so a later storm can
// enqueue again once the cooldown has passed. It records nothing on the
// query's stats.
func (s *Service) HandleExternalSearch(ctx context.Context, job *queue.Job) error {
	var p struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return fmt.Errorf("search: decode external-search payload: %w", err)
	}

	s.logger.Info("external_search_dispatched", slog.String("query", p.Query))
	return nil
}
