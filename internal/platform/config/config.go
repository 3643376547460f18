// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package config handles application-wide settings and environment parsing.

It leverages 'caarlos0/env' to map OS environment variables into a strongly-typed
Go struct, providing early validation and default values.

Usage:

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal(err)
	}

Architecture:

  - Immutability: Once loaded, configuration is read-only.
  - DI-Friendly: Passed to core components (DB, Redis) via constructors.
  - Zero Hidden State: No global variables are used to store config.

This ensures the application is Twelve-Factor compliant by storing config in the env.
*/
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// # Configuration Schema

// Config holds all runtime configuration for the Yomira API server.
type Config struct {

	// Server settings
	ServerPort  string `env:"SERVER_PORT"  envDefault:"8080"`
	Environment string `env:"ENVIRONMENT"  envDefault:"development"`
	Debug       bool   `env:"DEBUG"        envDefault:"false"`

	// Relational Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// MigrationPath is the filesystem path to the SQL migrations directory.
	MigrationPath string `env:"MIGRATION_PATH" envDefault:"./data/migrations"`

	// Key-Value Cache (Redis)
	RedisURL string `env:"REDIS_URL,required"`

	// Cryptographic keys for session and identity signing
	SessionSecret  string `env:"SESSION_SECRET,required"`
	JWTPrivKeyPath string `env:"JWT_PRIVATE_KEY_PATH,required"`
	JWTPubKeyPath  string `env:"JWT_PUBLIC_KEY_PATH,required"`

	// Object Storage (Cloudflare R2 / S3-compatible)
	S3Bucket   string `env:"S3_BUCKET"`
	S3Region   string `env:"S3_REGION"   envDefault:"auto"`
	S3Endpoint string `env:"S3_ENDPOINT"`

	// Cross-Origin Resource Sharing
	ExtraOrigins string `env:"EXTRA_ORIGINS"`

	// # Ingestion & Crawl Tuning

	// AllowedSourceHosts gates which hostnames POST /series/{id}/sources may
	// target. Empty disables the check (local dev default).
	AllowedSourceHosts []string `env:"ALLOWED_SOURCE_HOSTS" envSeparator:","`

	// PollWorkerConcurrency bounds concurrent source-poll goroutines.
	PollWorkerConcurrency int `env:"POLL_WORKER_CONCURRENCY" envDefault:"4"`

	// IngestWorkerConcurrency bounds concurrent chapter-ingest goroutines.
	IngestWorkerConcurrency int `env:"INGEST_WORKER_CONCURRENCY" envDefault:"8"`

	// FanoutWorkerConcurrency bounds concurrent feed fan-out goroutines.
	FanoutWorkerConcurrency int `env:"FANOUT_WORKER_CONCURRENCY" envDefault:"8"`

	// NotificationWorkerConcurrency bounds concurrent notification-delivery
	// goroutines.
	NotificationWorkerConcurrency int `env:"NOTIFICATION_WORKER_CONCURRENCY" envDefault:"5"`

	// SearchWorkerConcurrency bounds concurrent external-search fulfillment
	// goroutines.
	SearchWorkerConcurrency int `env:"SEARCH_WORKER_CONCURRENCY" envDefault:"2"`

	// SourceLockTTL bounds how long a distributed lock on a SeriesSource poll
	// may be held before it is considered abandoned.
	SourceLockTTLSeconds int `env:"SOURCE_LOCK_TTL_SECONDS" envDefault:"120"`

	// SourceRateLimitPerMinute is the default per-source request budget
	// applied by the Source Client when a provider doesn't specify its own.
	SourceRateLimitPerMinute int `env:"SOURCE_RATE_LIMIT_PER_MINUTE" envDefault:"30"`

	// PrimarySourceName identifies the generic JSON-API provider the worker
	// process registers an [sourceclient.HTTPClient] for at startup. Any
	// SeriesSource whose source_name doesn't match a registered adapter is
	// skipped by the Source-Poll Worker with a NotImplemented classification.
	PrimarySourceName string `env:"PRIMARY_SOURCE_NAME" envDefault:"genericapi"`

	// PrimarySourceBaseURL is the API root for PrimarySourceName.
	PrimarySourceBaseURL string `env:"PRIMARY_SOURCE_BASE_URL"`

	// PrimarySourceAPIKey authenticates against PrimarySourceBaseURL.
	PrimarySourceAPIKey string `env:"PRIMARY_SOURCE_API_KEY"`

	// # Progress Engine & Trust Tuning

	// ProgressRateLimitPerMinute bounds how many progress updates a single
	// user may submit per minute before being soft-blocked (progress still
	// saved, XP withheld).
	ProgressRateLimitPerMinute int `env:"PROGRESS_RATE_LIMIT_PER_MINUTE" envDefault:"10"`

	// ProgressBurstPerFiveSeconds bounds short bursts of progress updates.
	ProgressBurstPerFiveSeconds int `env:"PROGRESS_BURST_PER_5S" envDefault:"3"`

	// StatusRateLimitPerMinute bounds library status-change submissions.
	StatusRateLimitPerMinute int `env:"STATUS_RATE_LIMIT_PER_MINUTE" envDefault:"5"`

	// XPGrantRateLimitPerMinute bounds how many XP-bearing progress updates
	// are honored per minute; beyond this the update is still saved but no
	// XP is granted.
	XPGrantRateLimitPerMinute int `env:"XP_GRANT_RATE_LIMIT_PER_MINUTE" envDefault:"5"`

	// ReadTimeMinSeconds is the fastest a single chapter can plausibly be
	// read; faster submissions are flagged as a suspicious-read-time trust
	// violation (never block XP).
	ReadTimeMinSeconds int `env:"READ_TIME_MIN_SECONDS" envDefault:"5"`

	// TrustDecayPerDay is the amount restored per day to a well-behaved
	// user's trust_score (bounded at 1.0) by the periodic decay sweep.
	TrustDecayPerDay float64 `env:"TRUST_DECAY_PER_DAY" envDefault:"0.02"`

	// TrustViolationPenalty is the amount subtracted from trust_score per
	// recorded violation (bounded at 0.0).
	TrustViolationPenalty float64 `env:"TRUST_VIOLATION_PENALTY" envDefault:"0.1"`

	// SearchStormThreshold is how many cumulative catalogue misses a
	// normalized query needs before an external search is actually
	// enqueued.
	SearchStormThreshold int `env:"SEARCH_STORM_THRESHOLD" envDefault:"3"`

	// SearchEnqueueCooldownSeconds is the minimum time between two external
	// searches enqueued for the same normalized query.
	SearchEnqueueCooldownSeconds int `env:"SEARCH_ENQUEUE_COOLDOWN_SECONDS" envDefault:"30"`

	// # Scheduler & Feed Tuning

	// SchedulerTickSeconds is how often the Master Scheduler runs its full
	// tick (priority maintenance, sub-schedulers, sync scheduling).
	SchedulerTickSeconds int `env:"SCHEDULER_TICK_SECONDS" envDefault:"300"`

	// SchedulerLockTTLSeconds bounds the `workers:global` single-active lock.
	SchedulerLockTTLSeconds int `env:"SCHEDULER_LOCK_TTL_SECONDS" envDefault:"60"`

	// SchedulerSyncBatchSize is how many due SeriesSources the sync
	// scheduling step selects per tick.
	SchedulerSyncBatchSize int `env:"SCHEDULER_SYNC_BATCH_SIZE" envDefault:"500"`

	// FeedCacheTTLSeconds bounds how long a user's rendered activity feed
	// page is cached before the next request recomputes it.
	FeedCacheTTLSeconds int `env:"FEED_CACHE_TTL_SECONDS" envDefault:"60"`

	// ActivityTierADecayDays is how long a Tier A series can go without a
	// detected chapter before it becomes demotion-eligible.
	ActivityTierADecayDays int `env:"ACTIVITY_TIER_A_DECAY_DAYS" envDefault:"90"`

	// CleanupRetentionDays bounds how long soft-deleted library entries,
	// feed entries, and audit-adjacent rows are kept before hard deletion.
	CleanupRetentionDays int `env:"CLEANUP_RETENTION_DAYS" envDefault:"90"`

	// WorkerFailureRetentionDays bounds how long dead-lettered
	// WorkerFailure rows are kept.
	WorkerFailureRetentionDays int `env:"WORKER_FAILURE_RETENTION_DAYS" envDefault:"30"`
}

// # Configuration Loading

// Load parses environment variables into a [Config] struct.
func Load() (*Config, error) {

	// Initialize an empty config struct
	cfg := &Config{}

	// Use the 'env' package to map environment variables to struct fields.
	// This will fail if any field marked with 'required' is missing.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}

	return cfg, nil
}

// IsDevelopment reports whether the server is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction reports whether the server is running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
