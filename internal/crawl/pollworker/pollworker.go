// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package pollworker implements the Source-Poll Worker: the consumer
of `sync-source` jobs produced by the Master Scheduler and the Crawl
Gatekeeper. It is the single place a SeriesSource is actually scraped,
classifies the outcome, and either emits `ingest-<sourceId>-<label>` jobs
or reschedules the source for a later attempt. The job id carries the
chapter label exactly as the source listed it, not a parsed chapter number.
*/
package pollworker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/taibuivan/mangatrack/internal/core/comic"
	"github.com/taibuivan/mangatrack/internal/crawl/sourceclient"
	"github.com/taibuivan/mangatrack/internal/platform/apperr"
	"github.com/taibuivan/mangatrack/internal/platform/circuit"
	"github.com/taibuivan/mangatrack/internal/platform/negcache"
	"github.com/taibuivan/mangatrack/internal/platform/queue"
	"github.com/taibuivan/mangatrack/internal/platform/ratelimit"
)

// QueueName is the queue this worker consumes, matching
// [gatekeeper.SyncQueueName].
const QueueName = "sync-source"

// IngestQueueName is the queue a detected chapter is handed off to.
const IngestQueueName = "ingest-chapter"

// rateLimitAcquireTimeout bounds how long a single poll waits for a rate
// limit token before giving up for this attempt.
const rateLimitAcquireTimeout = 60 * time.Second

// ComicLoader resolves the series a SeriesSource belongs to.
type ComicLoader interface {
	GetComic(ctx context.Context, identifier string) (*comic.Comic, error)
}

// BacklogGauge reports the current depth of queues the worker must respect
// as backpressure signals before starting a new poll.
type BacklogGauge interface {
	GetJobCounts(ctx context.Context, queueName string) (int64, error)
}

// SourceCatalog gates polling on the operator-provisioned provider catalog
// and feeds its provider-level health counter, implemented by
// source.Service. nil disables both checks.
type SourceCatalog interface {
	IsEnabled(ctx context.Context, name string) (bool, error)
	RecordPollOutcome(ctx context.Context, name string, success bool) (int, error)
}

// Payload is the job body the Master Scheduler/Gatekeeper enqueue on
// [QueueName].
type Payload struct {
	SourceID string `json:"source_id"`
	ComicID  string `json:"comic_id"`
}

// IngestPayload is the job body this worker emits on [IngestQueueName].
type IngestPayload struct {
	SeriesSourceID    string     `json:"series_source_id"`
	ComicID           string     `json:"comic_id"`
	SourceName        string     `json:"source_name"`
	Label             string     `json:"label"`
	Title             string     `json:"title"`
	SourceChapterID   string     `json:"source_chapter_id"`
	SourceChapterURL  string     `json:"source_chapter_url"`
	SourcePublishedAt *time.Time `json:"source_published_at,omitempty"`
}

// Config tunes backpressure and allow-list behavior.
type Config struct {
	// AllowedHosts gates which source_url hostnames may be polled. Empty
	// disables the check (local dev default), mirroring comic.Service's
	// own allow-list gate on attachment.
	AllowedHosts []string
	// IngestBacklogCeiling is the ingest queue depth above which this
	// worker defers instead of scraping.
	IngestBacklogCeiling int64
}

// Worker implements the poll loop.
type Worker struct {
	sources      comic.SeriesSourceRepository
	series       ComicLoader
	clients      *sourceclient.Registry
	limiter      *ratelimit.Limiter
	breakers     *circuit.Registry
	negative     *negcache.Cache
	queue        *queue.Manager
	backlog      BacklogGauge
	catalog      SourceCatalog
	allowedHosts map[string]bool
	cfg          Config
	logger       *slog.Logger
}

// New constructs a [Worker].
func New(
	sources comic.SeriesSourceRepository,
	series ComicLoader,
	clients *sourceclient.Registry,
	limiter *ratelimit.Limiter,
	breakers *circuit.Registry,
	negative *negcache.Cache,
	queueManager *queue.Manager,
	backlog BacklogGauge,
	catalog SourceCatalog,
	cfg Config,
	logger *slog.Logger,
) *Worker {
	hosts := make(map[string]bool, len(cfg.AllowedHosts))
	for _, h := range cfg.AllowedHosts {
		hosts[h] = true
	}
	return &Worker{
		sources: sources, series: series, clients: clients, limiter: limiter,
		breakers: breakers, negative: negative, queue: queueManager, backlog: backlog,
		catalog: catalog, allowedHosts: hosts, cfg: cfg, logger: logger,
	}
}

// Handle is a [queue.Handler] for [QueueName], implementing the poll flow
// end to end.
func (w *Worker) Handle(ctx context.Context, job *queue.Job) error {
	var payload Payload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("pollworker: decode payload: %w", err)
	}

	// Step 1: load SeriesSource + Series.
	source, err := w.sources.FindByID(ctx, payload.SourceID)
	if err != nil {
		if apperr.As(err) != nil {
			return nil
		}
		return queue.Transient(err)
	}
	series, err := w.series.GetComic(ctx, payload.ComicID)
	if err != nil {
		if apperr.As(err) != nil {
			return nil
		}
		return queue.Transient(err)
	}

	// Step 2: backpressure.
	if w.backlog != nil && w.cfg.IngestBacklogCeiling > 0 {
		depth, err := w.backlog.GetJobCounts(ctx, IngestQueueName)
		if err == nil && depth > w.cfg.IngestBacklogCeiling {
			return w.sources.ScheduleNextCheck(ctx, source.ID, time.Now().Add(15*time.Minute))
		}
	}

	// Step 3: circuit breaker open + cooldown active.
	if w.breakers.IsOpen(source.ID) {
		return w.sources.SetStatusAndNextCheck(ctx, source.ID, comic.SourceStatusBroken, time.Now().Add(time.Hour))
	}

	// Step 3b: provider catalog gate. A provider an operator has disabled
	// keeps its attachments but is not polled; re-enabling picks them back
	// up on the next due pass.
	if w.catalog != nil {
		enabled, err := w.catalog.IsEnabled(ctx, source.SourceName)
		if err != nil && apperr.As(err) == nil {
			return queue.Transient(err)
		}
		if err == nil && !enabled {
			return w.sources.ScheduleNextCheck(ctx, source.ID, time.Now().Add(12*time.Hour))
		}
	}

	// Step 4: allow-list.
	if len(w.allowedHosts) > 0 {
		host, err := hostOf(source.SourceURL)
		if err != nil || !w.allowedHosts[host] {
			w.logger.Warn("pollworker_host_not_allowed", slog.String("source_id", source.ID), slog.String("url", source.SourceURL))
			return w.sources.SetStatusAndNextCheck(ctx, source.ID, comic.SourceStatusInactive, time.Now().Add(7*24*time.Hour))
		}
	}

	// Step 5: rate limit.
	if err := w.limiter.Acquire(ctx, source.SourceName, rateLimitAcquireTimeout); err != nil {
		return w.sources.ScheduleNextCheck(ctx, source.ID, time.Now().Add(5*time.Minute))
	}

	// Step 6: scrape, through the circuit breaker.
	var result *sourceclient.ScrapeResult
	scrapeErr := w.breakers.Execute(ctx, source.ID, func(ctx context.Context) error {
		client, ok := w.clients.Get(source.SourceName)
		if !ok {
			return &sourceclient.NotImplementedError{Source: source.SourceName}
		}
		var err error
		result, err = client.ScrapeSeries(ctx, source.SourceID, nil)
		return err
	})

	if scrapeErr != nil {
		w.recordCatalogOutcome(ctx, source.SourceName, false)
		return w.handleScrapeError(ctx, source, scrapeErr)
	}
	w.recordCatalogOutcome(ctx, source.SourceName, true)

	// Step 7: empty result.
	if len(result.Chapters) == 0 {
		if err := w.negative.RecordResult(ctx, source.ID, true); err != nil {
			w.logger.Error("pollworker_negcache_record_failed", slog.String("source_id", source.ID), slog.Any("error", err))
		}
		return w.sources.RecordCheckResult(ctx, source.ID, true, nextCheckFor(series, source))
	}

	// Step 8: non-empty, emit ingest jobs.
	if err := w.negative.RecordResult(ctx, source.ID, false); err != nil {
		w.logger.Error("pollworker_negcache_clear_failed", slog.String("source_id", source.ID), slog.Any("error", err))
	}
	for _, ch := range result.Chapters {
		jobID := fmt.Sprintf("ingest-%s-%s", source.ID, ch.Label)
		ingestPayload := IngestPayload{
			SeriesSourceID:    source.ID,
			ComicID:           series.ID,
			SourceName:        source.SourceName,
			Label:             ch.Label,
			Title:             ch.Title,
			SourceChapterID:   ch.SourceChapterID,
			SourceChapterURL:  ch.SourceChapterURL,
			SourcePublishedAt: ch.PublishedAt,
		}
		if _, err := w.queue.Add(ctx, IngestQueueName, "ingest_chapter", ingestPayload, queue.AddOptions{JobID: jobID}); err != nil {
			w.logger.Error("pollworker_ingest_enqueue_failed", slog.String("source_id", source.ID), slog.Any("error", err))
		}
	}
	return w.sources.RecordCheckResult(ctx, source.ID, true, nextCheckFor(series, source))
}

// recordCatalogOutcome feeds the provider-level consecutive_fails counter.
// Best effort: the per-attachment bookkeeping is authoritative, so a failed
// catalog write is logged and dropped.
func (w *Worker) recordCatalogOutcome(ctx context.Context, sourceName string, success bool) {
	if w.catalog == nil {
		return
	}
	if _, err := w.catalog.RecordPollOutcome(ctx, sourceName, success); err != nil && apperr.As(err) == nil {
		w.logger.Error("pollworker_catalog_outcome_failed", slog.String("source_name", sourceName), slog.Any("error", err))
	}
}

// handleScrapeError classifies a scrape failure into its reschedule delay.
func (w *Worker) handleScrapeError(ctx context.Context, source *comic.SeriesSource, scrapeErr error) error {
	if sourceclient.IsNotImplemented(scrapeErr) {
		return w.sources.SetStatusAndNextCheck(ctx, source.ID, comic.SourceStatusInactive, time.Now().Add(7*24*time.Hour))
	}

	var nextCheckAt time.Time
	switch {
	case sourceclient.IsRateLimit(scrapeErr):
		nextCheckAt = time.Now().Add(time.Hour)
	case sourceclient.IsProxyBlocked(scrapeErr):
		nextCheckAt = time.Now().Add(2 * time.Hour)
	case sourceclient.IsForbidden(scrapeErr):
		nextCheckAt = time.Now().Add(2 * time.Hour)
	case sourceclient.IsNotFound(scrapeErr):
		nextCheckAt = time.Now().Add(24 * time.Hour)
	default:
		// Transient: record the failure, then hand the job back to the
		// queue for a backoff retry. next_check_at is pushed an hour out
		// only as a scheduler-side floor; a successful retry resets it.
		if err := w.sources.RecordCheckResult(ctx, source.ID, false, time.Now().Add(time.Hour)); err != nil {
			w.logger.Error("pollworker_record_failure_failed", slog.String("source_id", source.ID), slog.Any("error", err))
		}
		return queue.Transient(scrapeErr)
	}
	return w.sources.RecordCheckResult(ctx, source.ID, false, nextCheckAt)
}

// nextCheckFor computes the regular polling cadence for a successful
// check, matching the Tier x SyncPriority table the Master Scheduler
// applies on its own sync-scheduling pass, so a worker-initiated success
// and a scheduler-initiated reschedule never disagree.
func nextCheckFor(series *comic.Comic, source *comic.SeriesSource) time.Time {
	return time.Now().Add(pollInterval(series.CatalogTier, source.SyncPriority))
}

func pollInterval(tier comic.CatalogTier, priority comic.SyncPriority) time.Duration {
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
	default:
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

// hostOf extracts the hostname from an absolute URL for allow-list checks.
func hostOf(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	return parsed.Hostname(), nil
}
