// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Worker is the entry point for the Yomira crawl and fan-out worker process.

It is a separate long-running process from cmd/api: where cmd/api answers
HTTP requests, cmd/worker drives the Master Scheduler tick, the Source-Poll
Worker, the Chapter Ingest Worker, and the feed Fan-Out Worker — the whole
ingestion pipeline that keeps catalog data fresh without a human ever
making a request.

Usage:

	go run cmd/worker/main.go [flags]

The flags/environment variables are the same ones cmd/api reads (shared
[config.Config]), plus the *_WORKER_CONCURRENCY knobs that size each
queue's consumer pool.

Startup Sequence:

 1. Logger: Initialize structured JSON logging (slog).
 2. Config: Load and validate environment variables.
 3. Storage: Establish connections to Postgres and Redis.
 4. Wiring: Inject dependencies into crawl/core services.
 5. Run: start the scheduler tick and every queue consumer, then block
    until SIGTERM/SIGINT.

No business logic lives here. This file is strictly for orchestration and
wiring.
*/
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/taibuivan/mangatrack/internal/core/chapter"
	"github.com/taibuivan/mangatrack/internal/core/comic"
	"github.com/taibuivan/mangatrack/internal/core/feed"
	"github.com/taibuivan/mangatrack/internal/core/library"
	"github.com/taibuivan/mangatrack/internal/core/search"
	"github.com/taibuivan/mangatrack/internal/core/source"
	"github.com/taibuivan/mangatrack/internal/core/userstats"
	"github.com/taibuivan/mangatrack/internal/crawl/fanoutworker"
	"github.com/taibuivan/mangatrack/internal/crawl/gatekeeper"
	"github.com/taibuivan/mangatrack/internal/crawl/ingestworker"
	"github.com/taibuivan/mangatrack/internal/crawl/pollworker"
	"github.com/taibuivan/mangatrack/internal/crawl/scheduler"
	"github.com/taibuivan/mangatrack/internal/crawl/sourceclient"
	"github.com/taibuivan/mangatrack/internal/platform/apperr"
	"github.com/taibuivan/mangatrack/internal/platform/circuit"
	"github.com/taibuivan/mangatrack/internal/platform/config"
	"github.com/taibuivan/mangatrack/internal/platform/deadletter"
	"github.com/taibuivan/mangatrack/internal/platform/kvs"
	"github.com/taibuivan/mangatrack/internal/platform/negcache"
	pgstore "github.com/taibuivan/mangatrack/internal/platform/postgres"
	"github.com/taibuivan/mangatrack/internal/platform/queue"
	"github.com/taibuivan/mangatrack/internal/platform/ratelimit"
	redisstore "github.com/taibuivan/mangatrack/internal/platform/redis"
)

// workerShutdownTimeout bounds graceful drain of in-flight jobs on SIGTERM
// before the process exits anyway.
const workerShutdownTimeout = 25 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("worker_startup_failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	// # 1. Logger
	rawLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	log := rawLog.With(slog.String("app", "mangatrack-worker"))
	slog.SetDefault(log)
	log.Info("[Yomira] worker_initializing")

	// # 2. Configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	// # 3. Postgres
	pool, err := pgstore.NewPool(startupCtx, cfg.DatabaseURL, log)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()

	// # 4. Redis
	rdb, err := redisstore.NewClient(startupCtx, cfg.RedisURL, log)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer func() {
		if cerr := rdb.Close(); cerr != nil {
			log.Error("redis_close_error", slog.Any("error", cerr))
		}
	}()
	kvsStore := kvs.NewRedisStore(rdb)

	// # 5. Platform primitives
	deadLetterWriter := deadletter.NewWriter(pool)
	queueMgr := queue.New(kvsStore, deadLetterWriter, log)
	breakers := circuit.NewRegistry()
	negative := negcache.New(kvsStore, 3, time.Hour)
	limiter := ratelimit.New(kvsStore, map[string]ratelimit.Config{}, log)
	gk := gatekeeper.New(queueMgr, breakers, negative)

	clients := sourceclient.NewRegistry()
	if cfg.PrimarySourceBaseURL != "" {
		clients.Register(cfg.PrimarySourceName, sourceclient.NewHTTPClient(sourceclient.HTTPConfig{
			SourceName: cfg.PrimarySourceName,
			BaseURL:    cfg.PrimarySourceBaseURL,
			APIKey:     cfg.PrimarySourceAPIKey,
		}))
	}

	// # 6. Domain Wiring
	comicRepo := comic.NewComicRepository(pool)
	sourceRepo := comic.NewSeriesSourceRepository(pool)
	comicSvc := comic.NewService(comicRepo, sourceRepo, cfg.AllowedSourceHosts, log)

	chapterRepo := chapter.NewRepository(pool)
	chapterSourceRepo := chapter.NewSourceRepository(pool)
	feedEntryRepo := chapter.NewFeedRepository(pool)
	chapterSvc := chapter.NewService(chapterRepo, chapterSourceRepo, feedEntryRepo, log)

	libraryRepo := library.NewRepository(pool)
	librarySvc := library.NewService(libraryRepo, seriesSourceResolver{sourceRepo}, comicSvc, nil, nil, log)

	userStatsSvc := userstats.NewService(userstats.NewRepository(pool))
	activityRepo := feed.NewActivityRepository(pool)
	userFeedRepo := feed.NewUserFeedRepository(pool)
	feedSvc := feed.NewService(activityRepo, userFeedRepo, comicSvc, userStatsSvc, kvsStore, *cfg, log)

	sourceCatalogSvc := source.NewService(source.NewPostgresRepository(pool), nil, log)

	searchSvc := search.NewService(search.NewPostgresRepository(pool), queueMgr, *cfg, log)

	// # 7. Workers
	pollWorker := pollworker.New(sourceRepo, comicSvc, clients, limiter, breakers, negative, queueMgr, queueMgr, sourceCatalogSvc, pollworker.Config{
		AllowedHosts:         cfg.AllowedSourceHosts,
		IngestBacklogCeiling: 50000,
	}, log)

	ingestWorker := ingestworker.New(chapterSvc, sourceRepo, comicSvc, feedSvc, clients, queueMgr, kvsStore, log)

	fanoutWorker := fanoutworker.New(librarySvc, feedSvc, log)

	masterScheduler := scheduler.New(kvsStore, queueMgr, gk, sourceRepo, comicSvc, feedSvc, librarySvc, librarySvc, userStatsSvc, chapterSvc, deadLetterWriter, *cfg, log)

	// # 8. Lifecycle
	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	var wg sync.WaitGroup
	runErrs := make(chan error, 8)

	runLoop := func(name string, fn func(ctx context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(appCtx); err != nil {
				log.Error("worker_loop_crashed", slog.String("loop", name), slog.Any("error", err))
				runErrs <- fmt.Errorf("%s: %w", name, err)
			}
		}()
	}

	runLoop("scheduler", masterScheduler.Run)
	runLoop("poll", func(ctx context.Context) error {
		return queueMgr.Process(ctx, pollworker.QueueName, pollWorker.Handle, queue.ProcessOptions{
			Concurrency: cfg.PollWorkerConcurrency,
		})
	})
	runLoop("ingest", func(ctx context.Context) error {
		return queueMgr.Process(ctx, ingestworker.QueueName, ingestWorker.Handle, queue.ProcessOptions{
			Concurrency: cfg.IngestWorkerConcurrency,
		})
	})
	runLoop("gap_recovery", func(ctx context.Context) error {
		return queueMgr.Process(ctx, ingestworker.GapRecoveryQueueName, ingestWorker.HandleGapRecovery, queue.ProcessOptions{
			Concurrency: cfg.IngestWorkerConcurrency,
		})
	})
	runLoop("fanout", func(ctx context.Context) error {
		return queueMgr.Process(ctx, fanoutworker.QueueName, fanoutWorker.Handle, queue.ProcessOptions{
			Concurrency: cfg.FanoutWorkerConcurrency,
		})
	})
	runLoop("notification", func(ctx context.Context) error {
		return queueMgr.Process(ctx, fanoutworker.NotificationQueueName, fanoutWorker.HandleNotification, queue.ProcessOptions{
			Concurrency: cfg.NotificationWorkerConcurrency,
		})
	})
	runLoop("external_search", func(ctx context.Context) error {
		return queueMgr.Process(ctx, search.ExternalSearchQueueName, searchSvc.HandleExternalSearch, queue.ProcessOptions{
			Concurrency: cfg.SearchWorkerConcurrency,
		})
	})

	log.Info("mangatrack_worker_running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-quit:
		log.Info("shutdown_signal_received", slog.String("signal", sig.String()))
	case err := <-runErrs:
		appCancel()
		return err
	}

	appCancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("graceful_shutdown_complete")
	case <-time.After(workerShutdownTimeout):
		log.Warn("shutdown_timeout_exceeded", slog.Duration("timeout", workerShutdownTimeout))
	}

	return nil
}

// seriesSourceResolver adapts comic.SeriesSourceRepository to
// library.SeriesResolver, mirroring cmd/api/main.go's wiring so
// library.Service never imports internal/core/comic directly.
type seriesSourceResolver struct {
	repo comic.SeriesSourceRepository
}

func (r seriesSourceResolver) FindSeriesIDBySourceURL(ctx context.Context, sourceURL string) (string, bool, error) {
	attached, err := r.repo.FindBySourceURL(ctx, sourceURL)
	if err != nil {
		if apperr.As(err) != nil {
			return "", false, nil
		}
		return "", false, err
	}
	return attached.ComicID, true, nil
}
