// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package progress_test

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/taibuivan/mangatrack/internal/core/chapter"
	"github.com/taibuivan/mangatrack/internal/core/library"
	"github.com/taibuivan/mangatrack/internal/core/progress"
	"github.com/taibuivan/mangatrack/internal/core/trust"
	"github.com/taibuivan/mangatrack/internal/core/userstats"
	"github.com/taibuivan/mangatrack/internal/platform/apperr"
	"github.com/taibuivan/mangatrack/internal/platform/kvs"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// # Read-ledger fake

type readState struct {
	isRead    bool
	updatedAt time.Time
}

type fakeReadRepo struct {
	reads map[string]readState // userID|chapterID
}

func newFakeReadRepo() *fakeReadRepo {
	return &fakeReadRepo{reads: map[string]readState{}}
}

func (r *fakeReadRepo) key(userID, chapterID string) string { return userID + "|" + chapterID }

func (r *fakeReadRepo) BulkMarkRead(_ context.Context, userID string, chapterIDs []string, readAt, updatedAt time.Time, _, _ *string) error {
	for _, chapterID := range chapterIDs {
		k := r.key(userID, chapterID)
		if existing, ok := r.reads[k]; ok && existing.updatedAt.After(updatedAt) {
			continue
		}
		r.reads[k] = readState{isRead: true, updatedAt: updatedAt}
	}
	return nil
}

func (r *fakeReadRepo) IsRead(_ context.Context, userID, chapterID string) (bool, error) {
	return r.reads[r.key(userID, chapterID)].isRead, nil
}

// # Library-entry fake

type fakeEntries struct {
	entry             *library.Entry
	completionGranted bool
	advanceCalls      int
	// advanceOnGet, when set, moves the underlying row forward right after
	// the snapshot is taken, simulating a concurrent call winning the
	// conditional UPDATE between this call's read and its write.
	advanceOnGet string
}

func (f *fakeEntries) GetEntry(context.Context, string, string) (*library.Entry, error) {
	copied := *f.entry
	if f.advanceOnGet != "" {
		f.entry.LastReadChapter = f.advanceOnGet
		f.advanceOnGet = ""
	}
	return &copied, nil
}

func (f *fakeEntries) AdvanceLastRead(_ context.Context, _, _, chapterNumber string, readAt time.Time) (bool, error) {
	current, _ := strconv.ParseFloat(f.entry.LastReadChapter, 64)
	target, _ := strconv.ParseFloat(chapterNumber, 64)
	if target <= current {
		return false, nil
	}
	f.advanceCalls++
	f.entry.LastReadChapter = chapterNumber
	f.entry.LastReadAt = &readAt
	return true, nil
}

func (f *fakeEntries) MarkSeriesCompletionXPGranted(context.Context, string) (bool, error) {
	if f.completionGranted {
		return false, nil
	}
	f.completionGranted = true
	return true, nil
}

// # Chapter-store fake (only the lookups the Progress Engine touches)

type fakeChapterRepo struct {
	chapters []*chapter.Chapter
}

func (r *fakeChapterRepo) ListByComic(context.Context, string, int, int) ([]*chapter.Chapter, int, error) {
	return nil, 0, nil
}
func (r *fakeChapterRepo) FindByID(context.Context, string) (*chapter.Chapter, error) {
	return nil, apperr.NotFound("chapter")
}
func (r *fakeChapterRepo) FindByIdentity(context.Context, string, string) (*chapter.Chapter, error) {
	return nil, apperr.NotFound("chapter")
}
func (r *fakeChapterRepo) FindBySlug(_ context.Context, _, slug string) (*chapter.Chapter, error) {
	for _, c := range r.chapters {
		if c.ChapterSlug == slug {
			return c, nil
		}
	}
	return nil, apperr.NotFound("chapter")
}
func (r *fakeChapterRepo) ListUpToNumber(_ context.Context, seriesID string, maxNumber float64) ([]*chapter.Chapter, error) {
	var matched []*chapter.Chapter
	for _, c := range r.chapters {
		if c.SeriesID != seriesID {
			continue
		}
		number, err := strconv.ParseFloat(c.ChapterNumber, 64)
		if err != nil || number < 1 || number > maxNumber {
			continue
		}
		matched = append(matched, c)
	}
	return matched, nil
}
func (r *fakeChapterRepo) Create(context.Context, *chapter.Chapter) error     { return nil }
func (r *fakeChapterRepo) Update(context.Context, *chapter.Chapter) error     { return nil }
func (r *fakeChapterRepo) SoftDelete(context.Context, string) error           { return nil }
func (r *fakeChapterRepo) FindNextAfter(context.Context, string, float64) (*chapter.Chapter, error) {
	return nil, apperr.NotFound("chapter")
}

// # User-stats fake

type fakeStatsRepo struct {
	stats map[string]*userstats.Stats
}

func newFakeStatsRepo() *fakeStatsRepo {
	return &fakeStatsRepo{stats: map[string]*userstats.Stats{}}
}

func (f *fakeStatsRepo) GetOrCreate(_ context.Context, userID string) (*userstats.Stats, error) {
	if s, ok := f.stats[userID]; ok {
		copied := *s
		return &copied, nil
	}
	s := &userstats.Stats{UserID: userID, Level: 1, TrustScore: 1.0, CurrentSeason: "default"}
	f.stats[userID] = s
	copied := *s
	return &copied, nil
}

func (f *fakeStatsRepo) ApplyReadAward(_ context.Context, userID string, xpDelta int64, newLevel, streakDays, longestStreak int, chaptersReadDelta int64, readAt time.Time) error {
	s := f.stats[userID]
	s.XP += xpDelta
	s.SeasonXP += xpDelta
	s.Level = newLevel
	s.StreakDays = streakDays
	s.LongestStreak = longestStreak
	s.ChaptersRead += chaptersReadDelta
	s.LastReadAt = &readAt
	return nil
}

func (f *fakeStatsRepo) AdjustTrustScore(_ context.Context, userID string, delta float64) (float64, error) {
	s, ok := f.stats[userID]
	if !ok {
		s = &userstats.Stats{UserID: userID, Level: 1, TrustScore: 1.0, CurrentSeason: "default"}
		f.stats[userID] = s
	}
	s.TrustScore += delta
	if s.TrustScore > 1.0 {
		s.TrustScore = 1.0
	}
	if s.TrustScore < 0.0 {
		s.TrustScore = 0.0
	}
	return s.TrustScore, nil
}

func (f *fakeStatsRepo) UpdateFeedLastSeenAtIfNewer(context.Context, string, time.Time) error {
	return nil
}

func (f *fakeStatsRepo) RolloverSeason(context.Context, string) (int64, error) { return 0, nil }

func (f *fakeStatsRepo) ReconcileChaptersRead(context.Context, int) (int64, error) { return 0, nil }

func (f *fakeStatsRepo) ListBelowMaxTrust(context.Context, int) ([]string, error) { return nil, nil }

type fakeActivity struct {
	chapterReads int
}

func (f *fakeActivity) RecordChapterRead(context.Context, string, string) error {
	f.chapterReads++
	return nil
}

// # Harness

type harness struct {
	service   *progress.Service
	reads     *fakeReadRepo
	entries   *fakeEntries
	statsRepo *fakeStatsRepo
	activity  *fakeActivity
	store     kvs.Store
}

func newHarness(t *testing.T, lastRead string, trustCfg trust.Config) *harness {
	t.Helper()

	seriesID := "series-1"
	entry := &library.Entry{
		ID:              "entry-1",
		UserID:          "user-1",
		SeriesID:        &seriesID,
		LastReadChapter: lastRead,
		Status:          library.StatusReading,
	}
	entries := &fakeEntries{entry: entry}

	chapterRepo := &fakeChapterRepo{}
	for i := 1; i <= 600; i++ {
		chapterRepo.chapters = append(chapterRepo.chapters, &chapter.Chapter{
			ID:            "chapter-" + strconv.Itoa(i),
			SeriesID:      seriesID,
			ChapterNumber: strconv.Itoa(i),
			ChapterSlug:   "normal-" + strconv.Itoa(i),
		})
	}
	chapters := chapter.NewService(chapterRepo, nil, nil, testLogger())

	statsRepo := newFakeStatsRepo()
	statsSvc := userstats.NewService(statsRepo)

	store := kvs.NewTestStore(t)
	trustSvc := trust.NewService(store, statsSvc, trustCfg, testLogger())

	reads := newFakeReadRepo()
	activity := &fakeActivity{}
	service := progress.NewService(reads, entries, chapters, statsSvc, trustSvc, store, activity, testLogger())

	return &harness{service: service, reads: reads, entries: entries, statsRepo: statsRepo, activity: activity, store: store}
}

func permissiveTrust() trust.Config {
	return trust.Config{ViolationPenalty: 0.1, ReadTimeMinSeconds: 5}
}

func float(v float64) *float64 { return &v }

// # Tests

func TestUpdateProgress_BulkAdvanceAwardsXPOnce(t *testing.T) {
	h := newHarness(t, "5", permissiveTrust())
	ctx := context.Background()

	result, err := h.service.UpdateProgress(ctx, "user-1", "entry-1", progress.Input{
		ChapterNumber: float(500), IsRead: true,
	})
	require.NoError(t, err)
	require.True(t, result.IsNewProgress)
	require.EqualValues(t, progress.XPPerChapter, result.XPAwarded)
	require.Equal(t, "500", h.entries.entry.LastReadChapter)

	// Every chapter 1..500 in the series is now read.
	for i := 1; i <= 500; i++ {
		read, err := h.reads.IsRead(ctx, "user-1", "chapter-"+strconv.Itoa(i))
		require.NoError(t, err)
		require.True(t, read, "chapter %d should be read", i)
	}
	read, err := h.reads.IsRead(ctx, "user-1", "chapter-501")
	require.NoError(t, err)
	require.False(t, read)

	require.Equal(t, 1, h.activity.chapterReads)
	require.EqualValues(t, progress.XPPerChapter, h.statsRepo.stats["user-1"].XP)

	// An identical resubmission is a no-op: no XP, watermark unchanged.
	again, err := h.service.UpdateProgress(ctx, "user-1", "entry-1", progress.Input{
		ChapterNumber: float(500), IsRead: true,
	})
	require.NoError(t, err)
	require.False(t, again.IsNewProgress)
	require.Zero(t, again.XPAwarded)
	require.Equal(t, "500", h.entries.entry.LastReadChapter)
	require.EqualValues(t, progress.XPPerChapter, h.statsRepo.stats["user-1"].XP)
	require.Equal(t, 1, h.entries.advanceCalls)
}

func TestUpdateProgress_LostRaceWithholdsXP(t *testing.T) {
	h := newHarness(t, "5", permissiveTrust())
	ctx := context.Background()

	// A concurrent update wins between this call's snapshot and its write:
	// the stale snapshot still reads 5, so target > current holds, but the
	// conditional UPDATE finds the row already past the target.
	h.entries.advanceOnGet = "600"

	result, err := h.service.UpdateProgress(ctx, "user-1", "entry-1", progress.Input{
		ChapterNumber: float(500), IsRead: true,
	})
	require.NoError(t, err)
	require.False(t, result.IsNewProgress)
	require.Zero(t, result.XPAwarded)
	require.Equal(t, 0, h.entries.advanceCalls)
	require.Equal(t, 0, h.activity.chapterReads)

	// The loser's bulk-marked reads are kept; only the XP claim is lost.
	read, err := h.reads.IsRead(ctx, "user-1", "chapter-500")
	require.NoError(t, err)
	require.True(t, read)
}

func TestUpdateProgress_NeverDecreasesWatermark(t *testing.T) {
	h := newHarness(t, "10", permissiveTrust())
	ctx := context.Background()

	result, err := h.service.UpdateProgress(ctx, "user-1", "entry-1", progress.Input{
		ChapterNumber: float(3), IsRead: true,
	})
	require.NoError(t, err)
	require.False(t, result.IsNewProgress)
	require.Zero(t, result.XPAwarded)
	require.Equal(t, "10", h.entries.entry.LastReadChapter)
}

func TestUpdateProgress_AlreadyReadTargetWithholdsXP(t *testing.T) {
	h := newHarness(t, "5", permissiveTrust())
	ctx := context.Background()

	// The reader has already marked chapter 8 read on another device.
	require.NoError(t, h.reads.BulkMarkRead(ctx, "user-1", []string{"chapter-8"}, time.Now(), time.Now(), nil, nil))

	result, err := h.service.UpdateProgress(ctx, "user-1", "entry-1", progress.Input{
		ChapterNumber: float(8), IsRead: true,
	})
	require.NoError(t, err)
	require.True(t, result.IsNewProgress)
	require.True(t, result.AlreadyRead)
	require.Zero(t, result.XPAwarded)
	// Progress itself still advances.
	require.Equal(t, "8", h.entries.entry.LastReadChapter)
}

func TestUpdateProgress_SlugResolvesTarget(t *testing.T) {
	h := newHarness(t, "5", permissiveTrust())
	ctx := context.Background()

	result, err := h.service.UpdateProgress(ctx, "user-1", "entry-1", progress.Input{
		ChapterSlug: "normal-7", IsRead: true,
	})
	require.NoError(t, err)
	require.True(t, result.IsNewProgress)
	require.Equal(t, "7", h.entries.entry.LastReadChapter)
}

func TestUpdateProgress_ProgressRateLimitRejects(t *testing.T) {
	cfg := permissiveTrust()
	cfg.ProgressPerMinute = 1
	h := newHarness(t, "0", cfg)
	ctx := context.Background()

	_, err := h.service.UpdateProgress(ctx, "user-1", "entry-1", progress.Input{
		ChapterNumber: float(1), IsRead: true,
	})
	require.NoError(t, err)

	_, err = h.service.UpdateProgress(ctx, "user-1", "entry-1", progress.Input{
		ChapterNumber: float(2), IsRead: true,
	})
	require.Error(t, err)
	appErr := apperr.As(err)
	require.NotNil(t, appErr)
	require.Equal(t, 429, appErr.HTTPStatus)
}

func TestUpdateProgress_XPRateLimitSoftBlocksButSavesProgress(t *testing.T) {
	cfg := permissiveTrust()
	cfg.XPGrantPerMinute = 1
	h := newHarness(t, "0", cfg)
	ctx := context.Background()

	first, err := h.service.UpdateProgress(ctx, "user-1", "entry-1", progress.Input{
		ChapterNumber: float(1), IsRead: true,
	})
	require.NoError(t, err)
	require.EqualValues(t, progress.XPPerChapter, first.XPAwarded)

	second, err := h.service.UpdateProgress(ctx, "user-1", "entry-1", progress.Input{
		ChapterNumber: float(2), IsRead: true,
	})
	require.NoError(t, err)
	require.Zero(t, second.XPAwarded)
	// Soft block: XP withheld, progress still saved.
	require.Equal(t, "2", h.entries.entry.LastReadChapter)
	require.EqualValues(t, progress.XPPerChapter, h.statsRepo.stats["user-1"].XP)
}

func TestUpdateProgress_RepeatedChapterLowersTrust(t *testing.T) {
	h := newHarness(t, "5", permissiveTrust())
	ctx := context.Background()

	_, err := h.service.UpdateProgress(ctx, "user-1", "entry-1", progress.Input{
		ChapterNumber: float(5), IsRead: true,
	})
	require.NoError(t, err)
	require.Less(t, h.statsRepo.stats["user-1"].TrustScore, 1.0)
	// Watermark untouched by the resubmission.
	require.Equal(t, "5", h.entries.entry.LastReadChapter)
}

func TestUpdateProgress_SuspiciousReadTimeNeverBlocksXP(t *testing.T) {
	h := newHarness(t, "5", permissiveTrust())
	ctx := context.Background()

	result, err := h.service.UpdateProgress(ctx, "user-1", "entry-1", progress.Input{
		ChapterNumber: float(6), IsRead: true, ReadingTimeSeconds: 1,
	})
	require.NoError(t, err)
	require.EqualValues(t, progress.XPPerChapter, result.XPAwarded)
	// Trust takes the hit instead.
	require.Less(t, h.statsRepo.stats["user-1"].TrustScore, 1.0)
}

func TestUpdateProgress_BulkJumpReadTimeIsTrusted(t *testing.T) {
	h := newHarness(t, "5", permissiveTrust())
	ctx := context.Background()

	// A 95-chapter jump is outside the [1,2] delta window: read time is not
	// validated, so trust stays intact.
	_, err := h.service.UpdateProgress(ctx, "user-1", "entry-1", progress.Input{
		ChapterNumber: float(100), IsRead: true, ReadingTimeSeconds: 1,
	})
	require.NoError(t, err)
	require.Equal(t, 1.0, h.statsRepo.stats["user-1"].TrustScore)
}

func TestUpdateProgress_InvalidatesFeedVersion(t *testing.T) {
	h := newHarness(t, "0", permissiveTrust())
	ctx := context.Background()

	_, err := h.service.UpdateProgress(ctx, "user-1", "entry-1", progress.Input{
		ChapterNumber: float(1), IsRead: true,
	})
	require.NoError(t, err)

	version, err := h.store.Get(ctx, "feed:v:user-1")
	require.NoError(t, err)
	require.Equal(t, "1", version)
}

func TestAwardSeriesCompletion_AtMostOncePerEntry(t *testing.T) {
	h := newHarness(t, "0", permissiveTrust())
	ctx := context.Background()

	require.NoError(t, h.service.AwardSeriesCompletion(ctx, "user-1", "entry-1"))
	require.EqualValues(t, progress.XPSeriesCompleted, h.statsRepo.stats["user-1"].XP)

	require.NoError(t, h.service.AwardSeriesCompletion(ctx, "user-1", "entry-1"))
	require.EqualValues(t, progress.XPSeriesCompleted, h.statsRepo.stats["user-1"].XP)
}

func TestGuardStatusChange_RapidTogglesLowerTrust(t *testing.T) {
	h := newHarness(t, "0", permissiveTrust())
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, h.service.GuardStatusChange(ctx, "user-1", "entry-1"))
	}
	require.Less(t, h.statsRepo.stats["user-1"].TrustScore, 1.0)
}
