// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package scheduler implements the Master Scheduler: a single
cluster-wide active instance, enforced by a distributed lock, that on every
tick runs priority maintenance, a set of isolated sub-schedulers, and the
sync-scheduling pass that actually enqueues `sync-<sourceId>` jobs through
the [gatekeeper.Gatekeeper].

Only one process instance may run a tick at a time — `workers:global` is
held for the tick's duration and renewed by a background goroutine every
half its TTL, so a long tick never loses the lock mid-run. On startup, a
new instance recovers a stale lock left behind by a crashed holder instead
of waiting out its TTL.
*/
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/taibuivan/mangatrack/internal/core/comic"
	"github.com/taibuivan/mangatrack/internal/crawl/gatekeeper"
	"github.com/taibuivan/mangatrack/internal/platform/apperr"
	"github.com/taibuivan/mangatrack/internal/platform/config"
	"github.com/taibuivan/mangatrack/internal/platform/kvs"
	"github.com/taibuivan/mangatrack/internal/platform/lock"
	"github.com/taibuivan/mangatrack/internal/platform/queue"
)

// globalLockKey is the cluster-wide single-active-instance lock key.
const globalLockKey = "workers:global"

// staleHeartbeatAfter is how old a lock's heartbeat must be before a new
// instance treats its holder as crashed and reclaims it on startup.
const staleHeartbeatAfter = 45 * time.Second

// syncBatchChunk is how many due sources are processed per gatekeeper
// round within one sync-scheduling pass.
const syncBatchChunk = 50

// ComicLoader resolves the series a SeriesSource belongs to, implemented by
// [comic.Service]. Scoped to the one lookup the scheduler needs.
type ComicLoader interface {
	GetComic(ctx context.Context, identifier string) (*comic.Comic, error)
}

// DeadLetterPruner prunes exhausted jobs older than a cutoff, implemented
// by [deadletter.Writer]. Scoped to this one method so scheduler doesn't
// depend on the deadletter package's Postgres wiring directly.
type DeadLetterPruner interface {
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// TierMaintainer runs feed activity-tier decay and demotion, implemented by
// [feed.Service].
type TierMaintainer interface {
	RunTierMaintenance(ctx context.Context) error
}

// StaleReenricher re-enriches library entries with stale metadata,
// implemented by [library.Service].
type StaleReenricher interface {
	ReenrichStale(ctx context.Context, limit int) (int, error)
}

// HardDeletePruner hard-deletes library entries past their soft-delete
// retention window, implemented by [library.Service].
type HardDeletePruner interface {
	PruneHardDeletable(ctx context.Context, retention time.Duration, limit int) (int, error)
}

// FeedPruner removes reader-facing feed entries past their retention
// window, implemented by [chapter.Service].
type FeedPruner interface {
	PruneFeedEntries(ctx context.Context, cutoff time.Time) (int64, error)
}

// StatsMaintainer runs periodic user-stats upkeep, implemented by
// [userstats.Service]: trust-score decay and the chapters_read
// reconciliation that keeps the denormalized counter matching the derived
// per-user read count.
type StatsMaintainer interface {
	DecayTrust(ctx context.Context, trustDecayPerDay float64, limit int) (int, error)
	ReconcileChaptersRead(ctx context.Context, limit int) (int64, error)
	RolloverSeason(ctx context.Context, newSeason string) (int64, error)
}

// Scheduler runs the periodic master tick.
type Scheduler struct {
	store        kvs.Store
	queue        *queue.Manager
	gatekeeper   *gatekeeper.Gatekeeper
	sources      comic.SeriesSourceRepository
	series       ComicLoader
	tiers        TierMaintainer
	reenricher   StaleReenricher
	hardDeleter  HardDeletePruner
	stats        StatsMaintainer
	feedPruner   FeedPruner
	deadLetter   DeadLetterPruner
	cfg          config.Config
	logger       *slog.Logger
}

// New constructs a [Scheduler] with all of its sub-scheduler dependencies.
func New(
	store kvs.Store,
	queueManager *queue.Manager,
	gk *gatekeeper.Gatekeeper,
	sources comic.SeriesSourceRepository,
	series ComicLoader,
	tiers TierMaintainer,
	reenricher StaleReenricher,
	hardDeleter HardDeletePruner,
	stats StatsMaintainer,
	feedPruner FeedPruner,
	deadLetter DeadLetterPruner,
	cfg config.Config,
	logger *slog.Logger,
) *Scheduler {
	return &Scheduler{
		store: store, queue: queueManager, gatekeeper: gk,
		sources: sources, series: series, tiers: tiers, reenricher: reenricher,
		hardDeleter: hardDeleter, stats: stats, feedPruner: feedPruner,
		deadLetter: deadLetter, cfg: cfg, logger: logger,
	}
}

// Run blocks, ticking every cfg.SchedulerTickSeconds, until ctx is
// cancelled. Only the instance currently holding `workers:global` performs
// a tick; every instance still competes for the lock every tick so a new
// leader takes over promptly if the incumbent dies.
func (s *Scheduler) Run(ctx context.Context) error {
	interval := time.Duration(s.cfg.SchedulerTickSeconds) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ttl := time.Duration(s.cfg.SchedulerLockTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 60 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.runTick(ctx, ttl)
		}
	}
}

// runTick attempts to take the global lock and, if acquired, runs one
// full tick. Losing the race for the lock is not an error — some other
// instance is the active leader this round.
func (s *Scheduler) runTick(ctx context.Context, ttl time.Duration) {
	heldLock, err := lock.TryAcquireStale(ctx, s.store, globalLockKey, ttl, staleHeartbeatAfter)
	if err != nil {
		if err != lock.ErrNotAcquired {
			s.logger.Error("scheduler_lock_acquire_failed", slog.Any("error", err))
		}
		return
	}
	defer func() {
		if err := heldLock.Release(ctx); err != nil {
			s.logger.Error("scheduler_lock_release_failed", slog.Any("error", err))
		}
	}()

	renewStop := make(chan struct{})
	defer close(renewStop)
	go s.renewLoop(ctx, heldLock, ttl, renewStop)

	start := time.Now()
	s.logger.Info("scheduler_tick_started")

	s.runSubSchedulers(ctx)
	enqueued := s.runSyncScheduling(ctx)

	s.logger.Info("scheduler_tick_completed",
		slog.Int("jobs_enqueued", enqueued), slog.Duration("elapsed", time.Since(start)))
}

// renewLoop keeps the lock alive for the duration of a tick, renewing at
// half its TTL.
func (s *Scheduler) renewLoop(ctx context.Context, heldLock *lock.Lock, ttl time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := heldLock.Renew(ctx, ttl); err != nil {
				s.logger.Error("scheduler_lock_renew_failed", slog.Any("error", err))
				return
			}
		}
	}
}

// runSubSchedulers runs each isolated sub-scheduler that
// this build has a backing service for. Each is wrapped so a failure in
// one never blocks the others.
func (s *Scheduler) runSubSchedulers(ctx context.Context) {
	s.isolated(ctx, "tier_maintenance", s.tiers.RunTierMaintenance)

	s.isolated(ctx, "library_reenrich", func(ctx context.Context) error {
		_, err := s.reenricher.ReenrichStale(ctx, reenrichBatchSize)
		return err
	})

	s.isolated(ctx, "cleanup_library", func(ctx context.Context) error {
		_, err := s.hardDeleter.PruneHardDeletable(ctx, retentionDays(s.cfg.CleanupRetentionDays), cleanupBatchSize)
		return err
	})

	s.isolated(ctx, "cleanup_feed_entries", func(ctx context.Context) error {
		if s.feedPruner == nil {
			return nil
		}
		_, err := s.feedPruner.PruneFeedEntries(ctx, time.Now().Add(-retentionDays(s.cfg.CleanupRetentionDays)))
		return err
	})

	s.isolated(ctx, "cleanup_worker_failures", func(ctx context.Context) error {
		if s.deadLetter == nil {
			return nil
		}
		_, err := s.deadLetter.PruneOlderThan(ctx, time.Now().Add(-retentionDays(s.cfg.WorkerFailureRetentionDays)))
		return err
	})

	s.isolated(ctx, "trust_decay", func(ctx context.Context) error {
		_, err := s.stats.DecayTrust(ctx, s.cfg.TrustDecayPerDay, trustDecayBatchSize)
		return err
	})

	s.isolated(ctx, "chapters_read_reconcile", func(ctx context.Context) error {
		_, err := s.stats.ReconcileChaptersRead(ctx, reconcileBatchSize)
		return err
	})

	s.isolated(ctx, "season_rollover", func(ctx context.Context) error {
		_, err := s.stats.RolloverSeason(ctx, currentSeason(time.Now()))
		return err
	})
}

// currentSeason labels the calendar quarter now falls in ("2026-Q3"); the
// rollover is a no-op for users already on it.
func currentSeason(now time.Time) string {
	quarter := (int(now.Month())-1)/3 + 1
	return fmt.Sprintf("%d-Q%d", now.Year(), quarter)
}

const (
	reenrichBatchSize   = 100
	cleanupBatchSize    = 500
	trustDecayBatchSize = 1000
	reconcileBatchSize  = 1000
)

func retentionDays(days int) time.Duration { return time.Duration(days) * 24 * time.Hour }

// isolated runs fn and logs (never propagates) any error, so one
// misbehaving sub-scheduler never blocks the ones after it in the tick.
func (s *Scheduler) isolated(ctx context.Context, name string, fn func(context.Context) error) {
	if err := fn(ctx); err != nil {
		s.logger.Error("sub_scheduler_failed", slog.String("sub_scheduler", name), slog.Any("error", err))
	}
}

// runSyncScheduling is the sync-scheduling pass: select due sources, run priority
// maintenance per source, ask the gatekeeper, and enqueue what it allows.
func (s *Scheduler) runSyncScheduling(ctx context.Context) int {
	due, err := s.sources.ListDue(ctx, s.cfg.SchedulerSyncBatchSize)
	if err != nil {
		s.logger.Error("scheduler_list_due_failed", slog.Any("error", err))
		return 0
	}

	enqueued := 0
	for start := 0; start < len(due); start += syncBatchChunk {
		end := start + syncBatchChunk
		if end > len(due) {
			end = len(due)
		}
		for _, source := range due[start:end] {
			if source.SourceStatus == comic.SourceStatusBroken {
				continue
			}
			if s.processSource(ctx, source) {
				enqueued++
			}
		}
	}
	return enqueued
}

// processSource applies priority maintenance to one source, consults the
// gatekeeper, and enqueues + reschedules it. It returns whether a job was
// actually enqueued.
func (s *Scheduler) processSource(ctx context.Context, source *comic.SeriesSource) bool {
	series, err := s.series.GetComic(ctx, source.ComicID)
	if err != nil {
		if apperr.As(err) == nil {
			s.logger.Error("scheduler_load_series_failed", slog.String("source_id", source.ID), slog.Any("error", err))
		}
		return false
	}

	s.applyPriorityMaintenance(ctx, source, series)

	decision, err := s.gatekeeper.ShouldEnqueue(ctx, source.ID, series.CatalogTier, series.TotalFollows, gatekeeper.ReasonPeriodic)
	if err != nil {
		s.logger.Error("scheduler_gatekeeper_failed", slog.String("source_id", source.ID), slog.Any("error", err))
		return false
	}

	nextCheck := time.Now().Add(interval(series.CatalogTier, source.SyncPriority))
	defer func() {
		if err := s.sources.ScheduleNextCheck(ctx, source.ID, nextCheck); err != nil {
			s.logger.Error("scheduler_schedule_next_check_failed", slog.String("source_id", source.ID), slog.Any("error", err))
		}
	}()

	if !decision.Allowed {
		return false
	}

	if _, err := s.queue.Add(ctx, gatekeeper.SyncQueueName, "poll", syncPayload{SourceID: source.ID, ComicID: source.ComicID},
		queue.AddOptions{JobID: "sync-" + source.ID, Priority: decision.JobPriority}); err != nil {
		s.logger.Error("scheduler_enqueue_failed", slog.String("source_id", source.ID), slog.Any("error", err))
		return false
	}

	return true
}

// syncPayload is the job body the Source-Poll Worker decodes.
type syncPayload struct {
	SourceID string `json:"source_id"`
	ComicID  string `json:"comic_id"`
}

// applyPriorityMaintenance applies the HOT/WARM/COLD promote/demote rules.
func (s *Scheduler) applyPriorityMaintenance(ctx context.Context, source *comic.SeriesSource, series *comic.Comic) {
	now := time.Now()

	promoted := source.SyncPriority
	switch {
	case series.TotalFollows > gatekeeper.FollowBoostThreshold && source.SyncPriority != comic.SyncPriorityHot:
		promoted = comic.SyncPriorityHot
	case source.SyncPriority == comic.SyncPriorityHot &&
		series.TotalFollows <= gatekeeper.FollowBoostThreshold &&
		source.LastSuccessAt != nil && source.LastSuccessAt.Before(now.AddDate(0, 0, -1)):
		promoted = comic.SyncPriorityWarm
	case source.SyncPriority == comic.SyncPriorityWarm &&
		source.LastSuccessAt != nil && source.LastSuccessAt.Before(now.AddDate(0, 0, -7)):
		promoted = comic.SyncPriorityCold
	}

	if promoted != source.SyncPriority {
		if err := s.sources.SetPriority(ctx, source.ID, promoted); err != nil {
			s.logger.Error("scheduler_set_priority_failed", slog.String("source_id", source.ID), slog.Any("error", err))
			return
		}
		source.SyncPriority = promoted
	}
}

// interval is the Tier x SyncPriority polling cadence table.
func interval(tier comic.CatalogTier, priority comic.SyncPriority) time.Duration {
	switch tier {
	case comic.CatalogTierA:
		switch priority {
		case comic.SyncPriorityHot:
			return 30 * time.Minute
		case comic.SyncPriorityWarm:
			return 45 * time.Minute
		default:
			return 60 * time.Minute
		}
	case comic.CatalogTierB:
		switch priority {
		case comic.SyncPriorityHot:
			return 6 * time.Hour
		case comic.SyncPriorityWarm:
			return 9 * time.Hour
		default:
			return 12 * time.Hour
		}
	default: // Tier C
		switch priority {
		case comic.SyncPriorityHot:
			return 48 * time.Hour
		case comic.SyncPriorityWarm:
			return 72 * time.Hour
		default:
			return 7 * 24 * time.Hour
		}
	}
}
