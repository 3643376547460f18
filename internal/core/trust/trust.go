// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package trust implements the Anti-Abuse & Trust layer: per-user
submission rate limits and the bot-pattern violations that lower a reader's
trust_score, the multiplier applied to leaderboard XP but never to XP
awarding itself.

Trust never blocks a legitimate read from being recorded — it only taxes
how that read counts toward public ranking, and throttles how fast a
client may submit progress/status/XP-bearing requests before being
soft-blocked.
*/
package trust

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/taibuivan/mangatrack/internal/core/userstats"
	"github.com/taibuivan/mangatrack/internal/platform/kvs"
)

// ViolationType names a recognised bot-pattern or abuse signal.
type ViolationType string

const (
	ViolationAPISpam           ViolationType = "api_spam"
	ViolationRapidReads        ViolationType = "rapid_reads"
	ViolationRepeatedChapter   ViolationType = "repeated_same_chapter"
	ViolationStatusToggle      ViolationType = "status_toggle"
	ViolationSuspiciousReadTime ViolationType = "suspicious_read_time"
)

// Config tunes the rate limits this layer enforces.
type Config struct {
	ProgressPerMinute     int
	ProgressBurstPer5Sec  int
	StatusPerMinute       int
	XPGrantPerMinute      int
	ViolationPenalty      float64
	ReadTimeMinSeconds    int
}

// Service enforces per-user rate limits and records trust violations.
type Service struct {
	store    kvs.Store
	stats    *userstats.Service
	cfg      Config
	logger   *slog.Logger
}

// NewService constructs a new [Service].
func NewService(store kvs.Store, stats *userstats.Service, cfg Config, logger *slog.Logger) *Service {
	return &Service{store: store, stats: stats, cfg: cfg, logger: logger}
}

// MaybeRecordViolation lowers userID's trust_score by the configured
// penalty for violationType, logging the metadata for later audit. It never
// returns an error that should abort the caller's main operation — a
// failure to record a violation is logged and swallowed, since a missed
// trust penalty is far less harmful than rejecting a reader's progress.
func (s *Service) MaybeRecordViolation(ctx context.Context, userID string, violationType ViolationType, metadata map[string]any) {
	if _, err := s.stats.AdjustTrust(ctx, userID, -s.cfg.ViolationPenalty); err != nil {
		s.logger.Error("trust_violation_record_failed",
			slog.String("user_id", userID), slog.String("type", string(violationType)), slog.Any("error", err))
		return
	}
	s.logger.Warn("trust_violation_recorded",
		slog.String("user_id", userID), slog.String("type", string(violationType)), slog.Any("metadata", metadata))
}

// AllowProgress reports whether userID may submit another progress update
// right now, enforcing both the per-minute cap and the 5-second burst cap.
func (s *Service) AllowProgress(ctx context.Context, userID string) (bool, error) {
	perMinute, err := s.allow(ctx, "progress:m", userID, s.cfg.ProgressPerMinute, time.Minute)
	if err != nil || !perMinute {
		return perMinute, err
	}
	return s.allow(ctx, "progress:5s", userID, s.cfg.ProgressBurstPer5Sec, 5*time.Second)
}

// AllowStatusChange reports whether userID may submit another status
// change right now.
func (s *Service) AllowStatusChange(ctx context.Context, userID string) (bool, error) {
	return s.allow(ctx, "status:m", userID, s.cfg.StatusPerMinute, time.Minute)
}

// RecordStatusToggle increments and returns the number of status changes
// entryID has seen in the trailing 5-minute window, the signal
// GuardStatusChange compares against the rapid-toggle bot threshold.
func (s *Service) RecordStatusToggle(ctx context.Context, userID, entryID string) (int64, error) {
	key := fmt.Sprintf("trust:toggle:%s:%s", userID, entryID)
	count, err := s.store.Incr(ctx, key)
	if err != nil {
		return 0, err
	}
	if count == 1 {
		if err := s.store.Expire(ctx, key, 5*time.Minute); err != nil {
			return 0, err
		}
	}
	return count, nil
}

// AllowXPGrant reports whether userID is still within the XP-grant budget
// for this minute. Exceeding it does not reject the request — the caller
// still saves progress, it just withholds XP.
func (s *Service) AllowXPGrant(ctx context.Context, userID string) (bool, error) {
	return s.allow(ctx, "xp:m", userID, s.cfg.XPGrantPerMinute, time.Minute)
}

// IsSuspiciousReadTime reports whether readingTimeSeconds is implausibly
// fast for a single chapter, applied "only when advancing by 1-2
// chapters from a nonzero baseline" gating — the caller decides when that
// gate applies, this only classifies the duration.
func (s *Service) IsSuspiciousReadTime(readingTimeSeconds int) bool {
	return readingTimeSeconds > 0 && readingTimeSeconds < s.cfg.ReadTimeMinSeconds
}

// allow enforces a fixed-window counter of limit events per window for
// (bucket, userID), incrementing unconditionally and reporting whether the
// increment kept the counter within budget.
func (s *Service) allow(ctx context.Context, bucket, userID string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 {
		return true, nil
	}
	key := fmt.Sprintf("trust:rate:%s:%s:%d", bucket, userID, time.Now().Truncate(window).UnixMilli())
	count, err := s.store.Incr(ctx, key)
	if err != nil {
		return false, err
	}
	if count == 1 {
		if err := s.store.Expire(ctx, key, window); err != nil {
			return false, err
		}
	}
	return count <= int64(limit), nil
}
