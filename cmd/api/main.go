// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Api is the entry point for the Yomira HTTP API server.

The server provides a high-performance, secure backend for the Yomira comic platform.
It handles everything from user identity and session management to comic metadata
and chapter delivery.

Usage:

	go run cmd/api/main.go [flags]

The flags/environment variables are:

	SERVER_PORT     Port to listen on (default: 8080)
	ENVIRONMENT     deployment environment (development, production)
	DATABASE_URL    Postgres connection string (required)
	REDIS_URL       Redis connection string (required)

Startup Sequence:

 1. Logger: Initialize structured JSON logging (slog).
 2. Config: Load and validate environment variables.
 3. Storage: Establish connections to Postgres and Redis.
 4. Migration: Run idempotent schema updates.
 5. Wiring: Inject dependencies into domain services/handlers.
 6. Server: Bind HTTP listener and handle graceful shutdown.

No business logic lives here. This file is strictly for orchestration and wiring.
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/taibuivan/mangatrack/internal/api"
	"github.com/taibuivan/mangatrack/internal/core/chapter"
	"github.com/taibuivan/mangatrack/internal/core/comic"
	"github.com/taibuivan/mangatrack/internal/core/feed"
	"github.com/taibuivan/mangatrack/internal/core/library"
	"github.com/taibuivan/mangatrack/internal/core/progress"
	"github.com/taibuivan/mangatrack/internal/core/search"
	"github.com/taibuivan/mangatrack/internal/core/source"
	"github.com/taibuivan/mangatrack/internal/core/trust"
	"github.com/taibuivan/mangatrack/internal/core/userstats"
	"github.com/taibuivan/mangatrack/internal/platform/apperr"
	"github.com/taibuivan/mangatrack/internal/platform/config"
	"github.com/taibuivan/mangatrack/internal/platform/constants"
	"github.com/taibuivan/mangatrack/internal/platform/deadletter"
	"github.com/taibuivan/mangatrack/internal/platform/kvs"
	"github.com/taibuivan/mangatrack/internal/platform/migration"
	pgstore "github.com/taibuivan/mangatrack/internal/platform/postgres"
	"github.com/taibuivan/mangatrack/internal/platform/queue"
	redisstore "github.com/taibuivan/mangatrack/internal/platform/redis"
	"github.com/taibuivan/mangatrack/internal/platform/sec"
	"github.com/taibuivan/mangatrack/internal/users/account"
	"github.com/taibuivan/mangatrack/internal/users/auth"
)

func main() {
	if err := run(); err != nil {
		slog.Error("application_startup_failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	// # 1. Logger
	// Initialize first so that subsequent startup errors are structured JSON.
	rawLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Add global context to all log entries for trace correlation
	log := rawLog.With(slog.String("app", "mangatrack"))
	slog.SetDefault(log)

	log.Info("[Yomira] service_initializing")

	// # 2. Configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	// Adjust log level if debug mode is explicitly enabled
	if cfg.Debug {
		debugLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
		log = debugLog.With(slog.String("app", "mangatrack"))
		slog.SetDefault(log)
		log.Debug("debug_logging_enabled")
	}

	log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
	)

	// Root context for startup. A 30s deadline prevents the app from hanging.
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	// # 3. PostgreSQL
	pool, err := pgstore.NewPool(startupCtx, cfg.DatabaseURL, log)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer func() {
		log.Info("closing postgres pool")
		pool.Close()
	}()

	// # 4. Redis
	rdb, err := redisstore.NewClient(startupCtx, cfg.RedisURL, log)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer func() {
		log.Info("closing redis client")
		if cerr := rdb.Close(); cerr != nil {
			log.Error("redis close error", slog.Any("error", cerr))
		}
	}()

	// # 5. Migrations
	if err := migration.RunUp(cfg.DatabaseURL, cfg.MigrationPath, log); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	// # 6. Platform Services
	jwtSvc, err := sec.NewTokenService(cfg.JWTPrivKeyPath, cfg.JWTPubKeyPath, constants.AuthIssuer)
	if err != nil {
		return fmt.Errorf("initialize jwt service: %w", err)
	}

	// # 7. Health Wiring
	liveness, readiness := api.NewHealthHandlers(api.HealthDependencies{
		CheckDatabase: func() error {
			return pgstore.Ping(context.Background(), pool)
		},
		CheckCache: func() error {
			return redisstore.Ping(context.Background(), rdb)
		},
	}, log)

	// # 8. Domain Wiring (Shared Repositories)
	userRepo := auth.NewUserRepository(pool)
	sessionRepo := auth.NewSessionRepository(pool)
	resetRepo := auth.NewResetTokenRepository(rdb)
	verifyRepo := auth.NewVerificationTokenRepository(rdb)

	// # 9. Auth Service & Handler
	authSvc := auth.NewService(userRepo, sessionRepo, resetRepo, verifyRepo, jwtSvc)
	authHdl := auth.NewHandler(authSvc)

	// # 10. Comic & Chapter Service & Handler
	comicRepo := comic.NewComicRepository(pool)
	sourceRepo := comic.NewSeriesSourceRepository(pool)
	comicSvc := comic.NewService(comicRepo, sourceRepo, cfg.AllowedSourceHosts, log)
	comicHdl := comic.NewHandler(comicSvc)

	chapterRepo := chapter.NewRepository(pool)
	chapterSourceRepo := chapter.NewSourceRepository(pool)
	feedRepo := chapter.NewFeedRepository(pool)
	chapterSvc := chapter.NewService(chapterRepo, chapterSourceRepo, feedRepo, log)
	chapterHdl := chapter.NewHandler(chapterSvc)

	// # 10b. Library Service & Handler
	// seriesSourceResolver and comicFollowAdjuster keep internal/core/library
	// from importing internal/core/comic directly: library decides *when* a
	// follow happened, comic only applies the resulting delta.
	libraryRepo := library.NewRepository(pool)
	librarySvc := library.NewService(libraryRepo, seriesSourceResolver{sourceRepo}, comicSvc, nil, nil, log)
	libraryHdl := library.NewHandler(librarySvc)

	// # 10c. Progress Engine (depends on librarySvc; wires back via
	// SetProgressHooks since the two services are mutually dependent)
	kvsStore := kvs.NewRedisStore(rdb)
	userStatsSvc := userstats.NewService(userstats.NewRepository(pool))
	trustSvc := trust.NewService(kvsStore, userStatsSvc, trust.Config{
		ProgressPerMinute:    cfg.ProgressRateLimitPerMinute,
		ProgressBurstPer5Sec: cfg.ProgressBurstPerFiveSeconds,
		StatusPerMinute:      cfg.StatusRateLimitPerMinute,
		XPGrantPerMinute:     cfg.XPGrantRateLimitPerMinute,
		ViolationPenalty:     cfg.TrustViolationPenalty,
		ReadTimeMinSeconds:   cfg.ReadTimeMinSeconds,
	}, log)
	// # 10d. Activity Feed (activity score/catalog tier engine + the
	// reader-facing feed); wired into progressSvc as its ActivityRecorder.
	activityRepo := feed.NewActivityRepository(pool)
	userFeedRepo := feed.NewUserFeedRepository(pool)
	feedSvc := feed.NewService(activityRepo, userFeedRepo, comicSvc, userStatsSvc, kvsStore, *cfg, log)
	feedHdl := feed.NewHandler(feedSvc)

	progressRepo := progress.NewReadRepository(pool)
	progressSvc := progress.NewService(progressRepo, librarySvc, chapterSvc, userStatsSvc, trustSvc, kvsStore, feedSvc, log)
	librarySvc.SetProgressHooks(progressSvc, progressSvc)
	progressHdl := progress.NewHandler(progressSvc)

	// # 10e. Search Storm Controller; shares the same queue
	// backplane the worker process consumes from.
	queueMgr := queue.New(kvsStore, deadletter.NewWriter(pool), log)
	searchSvc := search.NewService(search.NewPostgresRepository(pool), queueMgr, *cfg, log)
	searchHdl := search.NewHandler(comicSvc, searchSvc)

	// # 10f. Provider catalog (admin provisioning surface for the crawl
	// pipeline's external sources).
	sourceSvc := source.NewService(source.NewPostgresRepository(pool), attachmentLister{sourceRepo}, log)
	sourceHdl := source.NewHandler(sourceSvc)

	// # 11. Account
	accountSvc := account.NewService(
		account.NewAccountRepository(pool),
		account.NewPreferencesRepository(pool),
		account.NewSessionRepository(pool),
		log,
	)
	accountHdl := account.NewHandler(accountSvc)

	// # 12. API Assembly
	handlers := api.Handlers{
		Liveness:  liveness,
		Readiness: readiness,
		Auth:      authHdl,
		Comic:     comicHdl,
		Chapter:   chapterHdl,
		Account:   accountHdl,
		Library:   libraryHdl,
		Progress:  progressHdl,
		Feed:      feedHdl,
		Search:    searchHdl,
		Source:    sourceHdl,
	}

	// Create a background context for the whole application lifecycle
	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	server := api.NewServer(appCtx, cfg, log, jwtSvc, handlers)

	// # 13. Lifecycle Handling
	shutdownErr := make(chan error, 1)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			shutdownErr <- fmt.Errorf("http_server_crash: %w", err)
		}
	}()

	log.Info("mangatrack_api_running", slog.String("port", cfg.ServerPort))

	// Block until signal or error
	select {
	case sig := <-quit:
		log.Info("shutdown_signal_received", slog.String("signal", sig.String()))
	case err := <-shutdownErr:
		return err
	}

	// Start Graceful Shutdown Sequence
	appCancel() // Signal background workers to stop

	log.Info("shutting_down_api_server", slog.Duration("timeout", constants.ShutdownTimeout))
	if err := server.Shutdown(constants.ShutdownTimeout); err != nil {
		return fmt.Errorf("server_shutdown_failed: %w", err)
	}

	log.Info("graceful_shutdown_complete")
	return nil
}

// seriesSourceResolver adapts comic.SeriesSourceRepository to
// library.SeriesResolver so library.Service can resolve a series_id for a
// freshly-tracked source_url without importing the comic package.
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

// attachmentLister adapts comic.SeriesSourceRepository to
// source.AttachmentLister so the provider catalog can list a source's
// attachments without importing the comic package.
type attachmentLister struct {
	repo comic.SeriesSourceRepository
}

func (l attachmentLister) ListAttachmentsBySourceName(ctx context.Context, sourceName string, limit, offset int) ([]*source.Attachment, int, error) {
	attached, total, err := l.repo.ListBySourceName(ctx, sourceName, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	attachments := make([]*source.Attachment, 0, len(attached))
	for _, one := range attached {
		attachments = append(attachments, &source.Attachment{
			ID:           one.ID,
			SeriesID:     one.ComicID,
			SourceURL:    one.SourceURL,
			SourceStatus: string(one.SourceStatus),
			LastSuccess:  one.LastSuccessAt,
			ChapterCount: one.SourceChapterCount,
		})
	}
	return attachments, total, nil
}

// must logs a structured fatal error and terminates the process if err is non-nil.
//
// It is intentionally limited to startup wiring. After startup, all errors
// must be returned and handled explicitly (never panic).
func must(log *slog.Logger, err error, context string) {
	if err != nil {
		log.Error("startup failure",
			slog.String("context", context),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
}
