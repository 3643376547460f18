// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package queue implements the platform's Queue Manager: named durable queues
backed by the KVS, with priority, exponential backoff with jitter,
per-job idempotency via jobId reuse, and dead-lettering of exhausted jobs.

# Storage layout

Each queue owns one Redis sorted set (`queue:<name>:pending`, score =
due-time in milliseconds with the configured priority as a tiebreaker) and
one hash (`queue:<name>:payload`) mapping jobID to its JSON-encoded [Job].
A `queue:<name>:seen:<jobID>` key enforces jobId-reuse idempotency for the
lifetime of the job.
*/
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/taibuivan/mangatrack/internal/platform/kvs"
)

// Priority levels; lower numeric value is higher priority.
const (
	PriorityCritical = 1
	PriorityHigh     = 5
	PriorityStandard = 10
	PriorityLow      = 20
)

// Job is a single unit of work on a queue.
type Job struct {
	ID          string          `json:"id"`
	Queue       string          `json:"queue"`
	Name        string          `json:"name"`
	Payload     json.RawMessage `json:"payload"`
	Priority    int             `json:"priority"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"maxAttempts"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Backoff configures exponential backoff with jitter between retries.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// DefaultBackoff is used by queues that don't override it: 5s base, capped
// at 1 hour, the largest retry delay any worker in this system schedules.
var DefaultBackoff = Backoff{Base: 5 * time.Second, Max: time.Hour}

func (b Backoff) delay(attempt int) time.Duration {
	if b.Base <= 0 {
		b = DefaultBackoff
	}
	d := b.Base * time.Duration(1<<uint(minInt(attempt, 20)))
	if d > b.Max {
		d = b.Max
	}
	jitter := time.Duration(rand.Int63n(int64(d)/2 + 1))
	return d/2 + jitter
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// AddOptions configures a single job submission.
type AddOptions struct {
	// JobID, when set, deduplicates: re-adding the same JobID while a prior
	// job with that id is still pending/claimed is a no-op.
	JobID       string
	Priority    int
	MaxAttempts int
	Backoff     Backoff
	Delay       time.Duration
}

// DeadLetterWriter persists jobs that exhausted their retries. Implemented
// by a Postgres-backed WorkerFailure repository; kept as an interface here
// so the queue package has no storage dependency.
type DeadLetterWriter interface {
	WriteFailure(ctx context.Context, queueName, jobID string, payload json.RawMessage, cause string, attempts int) error
}

// Manager owns every named queue's storage and worker loops.
type Manager struct {
	store      kvs.Store
	log        *slog.Logger
	deadLetter DeadLetterWriter
}

// New constructs a [Manager].
func New(store kvs.Store, deadLetter DeadLetterWriter, log *slog.Logger) *Manager {
	return &Manager{store: store, log: log, deadLetter: deadLetter}
}

func pendingKey(queueName string) string { return "queue:" + queueName + ":pending" }
func payloadKey(queueName string) string { return "queue:" + queueName + ":payload" }
func seenKey(queueName, jobID string) string {
	return "queue:" + queueName + ":seen:" + jobID
}

// Add enqueues a job. If opts.JobID is reused while the prior job with that
// id is still outstanding, Add is a no-op and returns the existing job id —
// this is the "aggressive deduplication" contract used for
// `sync-<sourceId>` and `ingest-<sourceId>-<label>` job ids.
func (m *Manager) Add(ctx context.Context, queueName, name string, payload any, opts AddOptions) (string, error) {
	jobID := opts.JobID
	if jobID == "" {
		jobID = fmt.Sprintf("%s-%d-%d", name, time.Now().UnixNano(), rand.Int63())
	}

	if opts.JobID != "" {
		claimed, err := m.store.SetNX(ctx, seenKey(queueName, jobID), "1", 24*time.Hour)
		if err != nil {
			return "", err
		}
		if !claimed {
			return jobID, nil
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("queue: marshal payload: %w", err)
	}

	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	job := Job{
		ID:          jobID,
		Queue:       queueName,
		Name:        name,
		Payload:     body,
		Priority:    priorityOrDefault(opts.Priority),
		MaxAttempts: maxAttempts,
		CreatedAt:   time.Now(),
	}

	return jobID, m.enqueue(ctx, job, opts.Delay)
}

func priorityOrDefault(p int) int {
	if p == 0 {
		return PriorityStandard
	}
	return p
}

// AddBulk enqueues multiple jobs under the same name/options shape. Each
// item is its own independently-addressable job once submitted; there is no
// cross-item transactionality beyond "each Add call either lands or is
// deduped", which preserves the batch contract at the level that
// matters (no partial payload corruption), without requiring a Redis
// transaction pipeline that the rest of this package doesn't otherwise use.
func (m *Manager) AddBulk(ctx context.Context, queueName, name string, payloads []any, opts AddOptions) ([]string, error) {
	ids := make([]string, 0, len(payloads))
	for _, p := range payloads {
		id, err := m.Add(ctx, queueName, name, p, opts)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *Manager) enqueue(ctx context.Context, job Job, delay time.Duration) error {
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if err := m.store.HSet(ctx, payloadKey(job.Queue), job.ID, string(body)); err != nil {
		return err
	}

	dueAt := time.Now().Add(delay)
	score := float64(dueAt.UnixMilli())*1000 + float64(job.Priority)
	return m.store.ZAdd(ctx, pendingKey(job.Queue), score, job.ID)
}

// GetJob returns the current state of a job, or nil if it is not pending.
func (m *Manager) GetJob(ctx context.Context, queueName, jobID string) (*Job, error) {
	raw, err := m.store.HGet(ctx, payloadKey(queueName), jobID)
	if err == kvs.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// GetJobCounts reports how many jobs are currently pending in the queue.
// "Pending" collapses waiting, delayed and due-but-unclaimed states;
// claimed/active jobs are removed from the pending set once a worker claims
// them and are not counted.
func (m *Manager) GetJobCounts(ctx context.Context, queueName string) (pending int64, err error) {
	return m.store.ZCard(ctx, pendingKey(queueName))
}

// Exists reports whether a job with the given id is currently waiting or
// active (not yet completed/failed), the check the Crawl Gatekeeper and
// the Search Storm Controller deduplicate against.
func (m *Manager) Exists(ctx context.Context, queueName, jobID string) (bool, error) {
	job, err := m.GetJob(ctx, queueName, jobID)
	return job != nil, err
}
