// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// Handler processes a single job. Returning an error wrapped with
// [Transient] reschedules the job with backoff; any other error (or a job
// that is out of attempts) sends it to the dead-letter store.
type Handler func(ctx context.Context, job *Job) error

// ProcessOptions configures a worker loop started by [Manager.Process].
type ProcessOptions struct {
	Concurrency  int
	PollInterval time.Duration
	Backoff      Backoff
}

// Process runs a worker loop for queueName until ctx is cancelled. It polls
// the pending sorted set for due jobs, claims up to opts.Concurrency of them
// concurrently, and dispatches each to handler.
//
// This is the consumption half of the queue contract: registering a worker
// whose final failure is persisted as a WorkerFailure row.
func (m *Manager) Process(ctx context.Context, queueName string, handler Handler, opts ProcessOptions) error {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	backoff := opts.Backoff
	if backoff.Base <= 0 {
		backoff = DefaultBackoff
	}

	sem := make(chan struct{}, concurrency)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			ids, err := m.store.ZRangeByScore(ctx, pendingKey(queueName), 0, float64(time.Now().UnixMilli())*1000+1000, int64(concurrency))
			if err != nil {
				m.log.Error("queue_poll_failed", slog.String("queue", queueName), slog.Any("error", err))
				continue
			}
			for _, jobID := range ids {
				jobID := jobID
				select {
				case sem <- struct{}{}:
				case <-ctx.Done():
					return nil
				}
				go func() {
					defer func() { <-sem }()
					m.claimAndRun(ctx, queueName, jobID, handler, backoff)
				}()
			}
		}
	}
}

func (m *Manager) claimAndRun(ctx context.Context, queueName, jobID string, handler Handler, backoff Backoff) {
	// Remove from the pending set first so no other worker claims it
	// concurrently; this is best-effort exclusivity, not a hard lease.
	// Handlers are idempotent, so rare double-claims are tolerated.
	if err := m.store.ZRem(ctx, pendingKey(queueName), jobID); err != nil {
		m.log.Error("queue_claim_failed", slog.String("queue", queueName), slog.String("job_id", jobID), slog.Any("error", err))
		return
	}

	job, err := m.GetJob(ctx, queueName, jobID)
	if err != nil || job == nil {
		return
	}

	job.Attempts++
	handlerErr := handler(ctx, job)
	if handlerErr == nil {
		m.releaseJob(ctx, queueName, jobID)
		return
	}

	if IsTransient(handlerErr) && job.Attempts < job.MaxAttempts {
		if rerr := m.enqueue(ctx, *job, backoff.delay(job.Attempts)); rerr != nil {
			m.log.Error("queue_requeue_failed", slog.String("queue", queueName), slog.String("job_id", jobID), slog.Any("error", rerr))
		}
		return
	}

	m.deadLetterJob(ctx, job, handlerErr)
}

// releaseJob removes a finished job's payload and its jobId-dedup claim, so
// the same jobId may be enqueued again by a later scheduler tick or search
// trigger. While the job was outstanding the claim made re-Adds a no-op.
func (m *Manager) releaseJob(ctx context.Context, queueName, jobID string) {
	_ = m.store.HDel(ctx, payloadKey(queueName), jobID)
	_ = m.store.Del(ctx, seenKey(queueName, jobID))
}

func (m *Manager) deadLetterJob(ctx context.Context, job *Job, cause error) {
	m.releaseJob(ctx, job.Queue, job.ID)
	if m.deadLetter == nil {
		m.log.Error("job_exhausted_no_dead_letter_sink",
			slog.String("queue", job.Queue), slog.String("job_id", job.ID), slog.Any("error", cause))
		return
	}
	var payload json.RawMessage = job.Payload
	if err := m.deadLetter.WriteFailure(ctx, job.Queue, job.ID, payload, cause.Error(), job.Attempts); err != nil {
		m.log.Error("dead_letter_write_failed", slog.String("queue", job.Queue), slog.String("job_id", job.ID), slog.Any("error", err))
	}
}
