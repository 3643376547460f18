// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package ingestworker_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/taibuivan/mangatrack/internal/core/chapter"
	"github.com/taibuivan/mangatrack/internal/core/comic"
	"github.com/taibuivan/mangatrack/internal/crawl/ingestworker"
	"github.com/taibuivan/mangatrack/internal/crawl/pollworker"
	"github.com/taibuivan/mangatrack/internal/crawl/sourceclient"
	"github.com/taibuivan/mangatrack/internal/platform/apperr"
	"github.com/taibuivan/mangatrack/internal/platform/kvs"
	"github.com/taibuivan/mangatrack/internal/platform/queue"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// # In-memory chapter store fakes

type fakeChapterRepo struct {
	byIdentity map[string]*chapter.Chapter // seriesID|chapterNumber -> chapter
}

func newFakeChapterRepo() *fakeChapterRepo {
	return &fakeChapterRepo{byIdentity: map[string]*chapter.Chapter{}}
}

func (r *fakeChapterRepo) key(seriesID, number string) string { return seriesID + "|" + number }

func (r *fakeChapterRepo) ListByComic(context.Context, string, int, int) ([]*chapter.Chapter, int, error) {
	return nil, 0, nil
}
func (r *fakeChapterRepo) FindByID(_ context.Context, id string) (*chapter.Chapter, error) {
	for _, c := range r.byIdentity {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, apperr.NotFound("chapter")
}
func (r *fakeChapterRepo) FindByIdentity(_ context.Context, seriesID, chapterNumber string) (*chapter.Chapter, error) {
	if c, ok := r.byIdentity[r.key(seriesID, chapterNumber)]; ok {
		return c, nil
	}
	return nil, apperr.NotFound("chapter")
}
func (r *fakeChapterRepo) FindBySlug(context.Context, string, string) (*chapter.Chapter, error) {
	return nil, apperr.NotFound("chapter")
}
func (r *fakeChapterRepo) ListUpToNumber(context.Context, string, float64) ([]*chapter.Chapter, error) {
	return nil, nil
}
func (r *fakeChapterRepo) Create(_ context.Context, c *chapter.Chapter) error {
	r.byIdentity[r.key(c.SeriesID, c.ChapterNumber)] = c
	return nil
}
func (r *fakeChapterRepo) Update(_ context.Context, c *chapter.Chapter) error {
	r.byIdentity[r.key(c.SeriesID, c.ChapterNumber)] = c
	return nil
}
func (r *fakeChapterRepo) SoftDelete(context.Context, string) error { return nil }
func (r *fakeChapterRepo) FindNextAfter(_ context.Context, seriesID string, number float64) (*chapter.Chapter, error) {
	var best *chapter.Chapter
	for _, c := range r.byIdentity {
		if c.SeriesID != seriesID {
			continue
		}
		n := chapter.Normalize(c.ChapterNumber, "")
		if n.Number == nil || *n.Number <= number {
			continue
		}
		if best == nil {
			best = c
			continue
		}
		bestN := chapter.Normalize(best.ChapterNumber, "")
		if *n.Number < *bestN.Number {
			best = c
		}
	}
	if best == nil {
		return nil, apperr.NotFound("chapter")
	}
	return best, nil
}

type fakeSourceRepo struct {
	byIdentity map[string]*chapter.ChapterSource // seriesSourceID|chapterID
}

func newFakeSourceRepo() *fakeSourceRepo {
	return &fakeSourceRepo{byIdentity: map[string]*chapter.ChapterSource{}}
}
func (r *fakeSourceRepo) key(seriesSourceID, chapterID string) string { return seriesSourceID + "|" + chapterID }
func (r *fakeSourceRepo) FindByIdentity(_ context.Context, seriesSourceID, chapterID string) (*chapter.ChapterSource, error) {
	if s, ok := r.byIdentity[r.key(seriesSourceID, chapterID)]; ok {
		return s, nil
	}
	return nil, apperr.NotFound("chapter_source")
}
func (r *fakeSourceRepo) ListByChapter(context.Context, string) ([]*chapter.ChapterSource, error) {
	return nil, nil
}
func (r *fakeSourceRepo) Create(_ context.Context, s *chapter.ChapterSource) error {
	r.byIdentity[r.key(s.SeriesSourceID, s.ChapterID)] = s
	return nil
}
func (r *fakeSourceRepo) Update(_ context.Context, s *chapter.ChapterSource) error {
	r.byIdentity[r.key(s.SeriesSourceID, s.ChapterID)] = s
	return nil
}
func (r *fakeSourceRepo) UpdateDetectedAt(_ context.Context, id string, detectedAt time.Time) error {
	for _, s := range r.byIdentity {
		if s.ID == id {
			s.DetectedAt = detectedAt
		}
	}
	return nil
}

type fakeFeedRepo struct {
	byIdentity map[string]*chapter.FeedEntry // seriesID|chapterNumber
}

func newFakeFeedRepo() *fakeFeedRepo {
	return &fakeFeedRepo{byIdentity: map[string]*chapter.FeedEntry{}}
}
func (r *fakeFeedRepo) key(seriesID, number string) string { return seriesID + "|" + number }
func (r *fakeFeedRepo) FindByIdentity(_ context.Context, seriesID, chapterNumber string) (*chapter.FeedEntry, error) {
	if e, ok := r.byIdentity[r.key(seriesID, chapterNumber)]; ok {
		return e, nil
	}
	return nil, apperr.NotFound("feed_entry")
}
func (r *fakeFeedRepo) Create(_ context.Context, e *chapter.FeedEntry) error {
	r.byIdentity[r.key(e.SeriesID, e.ChapterNumber)] = e
	return nil
}
func (r *fakeFeedRepo) AppendSource(_ context.Context, id string, ref chapter.FeedSourceRef) error {
	for _, e := range r.byIdentity {
		if e.ID == id {
			for _, existing := range e.Sources {
				if existing.SourceName == ref.SourceName {
					return nil
				}
			}
			e.Sources = append(e.Sources, ref)
			e.LastUpdatedAt = ref.DiscoveredAt
		}
	}
	return nil
}
func (r *fakeFeedRepo) ListRecent(context.Context, int, time.Time) ([]*chapter.FeedEntry, error) {
	return nil, nil
}
func (r *fakeFeedRepo) PruneOlderThan(context.Context, time.Time) (int64, error) { return 0, nil }

// # Collaborator fakes

type fakeSources struct {
	sources map[string]*comic.SeriesSource
}

func (f *fakeSources) FindByID(_ context.Context, id string) (*comic.SeriesSource, error) {
	if s, ok := f.sources[id]; ok {
		return s, nil
	}
	return nil, apperr.NotFound("series_source")
}
func (f *fakeSources) SetPriority(_ context.Context, id string, priority comic.SyncPriority) error {
	f.sources[id].SyncPriority = priority
	return nil
}
func (f *fakeSources) ScheduleNextCheck(_ context.Context, id string, nextCheckAt time.Time) error {
	f.sources[id].NextCheckAt = &nextCheckAt
	return nil
}
func (f *fakeSources) IncrementChapterCount(_ context.Context, id string, delta int) error {
	f.sources[id].SourceChapterCount += delta
	return nil
}

type fakeSeries struct {
	comics          map[string]*comic.Comic
	advancedTimes   []time.Time
}

func (f *fakeSeries) GetComic(_ context.Context, identifier string) (*comic.Comic, error) {
	if c, ok := f.comics[identifier]; ok {
		return c, nil
	}
	return nil, apperr.NotFound("comic")
}
func (f *fakeSeries) AdvanceLastChapterAt(_ context.Context, id string, detectedAt time.Time) error {
	f.advancedTimes = append(f.advancedTimes, detectedAt)
	return nil
}

type fakeActivity struct {
	detected     []string
	sourcesAdded []string
}

func (f *fakeActivity) RecordChapterDetected(_ context.Context, seriesID, chapterID string) error {
	f.detected = append(f.detected, chapterID)
	return nil
}
func (f *fakeActivity) RecordChapterSourceAdded(_ context.Context, seriesID, chapterID, sourceName string) error {
	f.sourcesAdded = append(f.sourcesAdded, chapterID+":"+sourceName)
	return nil
}

type fakeSourceClient struct {
	result *sourceclient.ScrapeResult
}

func (c *fakeSourceClient) ScrapeSeries(_ context.Context, _ string, _ []string) (*sourceclient.ScrapeResult, error) {
	return c.result, nil
}
func (c *fakeSourceClient) ScrapeLatestUpdates(context.Context) ([]sourceclient.LatestUpdate, error) {
	return nil, nil
}

func newWorker(t *testing.T) (*ingestworker.Worker, *fakeChapterRepo, *fakeFeedRepo, *fakeSources, *fakeSeries, *fakeActivity, *queue.Manager, *sourceclient.Registry, string) {
	t.Helper()
	chapterRepo := newFakeChapterRepo()
	sourceRepo := newFakeSourceRepo()
	feedRepo := newFakeFeedRepo()
	chapters := chapter.NewService(chapterRepo, sourceRepo, feedRepo, testLogger())

	seriesID := "series-1"
	sourceID := "source-1"
	sources := &fakeSources{sources: map[string]*comic.SeriesSource{
		sourceID: {ID: sourceID, ComicID: seriesID, SourceName: "examplesite"},
	}}
	series := &fakeSeries{comics: map[string]*comic.Comic{seriesID: {ID: seriesID}}}
	activity := &fakeActivity{}

	store := kvs.NewTestStore(t)
	queueMgr := queue.New(store, nil, testLogger())
	clients := sourceclient.NewRegistry()

	w := ingestworker.New(chapters, sources, series, activity, clients, queueMgr, store, testLogger())
	return w, chapterRepo, feedRepo, sources, series, activity, queueMgr, clients, sourceID
}

func TestHandle_FirstIngest_CreatesChapterSourceAndFeedEntry(t *testing.T) {
	w, chapterRepo, feedRepo, _, _, activity, _, _, sourceID := newWorker(t)
	ctx := context.Background()

	publishedAt := time.Now()
	job := &queue.Job{Payload: mustJSON(t, pollworker.IngestPayload{
		SeriesSourceID: sourceID, ComicID: "series-1", SourceName: "examplesite",
		Label: "Chapter 5", Title: "The Arrival", SourceChapterID: "c5", SourceChapterURL: "https://example.com/5",
		SourcePublishedAt: &publishedAt,
	})}

	require.NoError(t, w.Handle(ctx, job))

	created, err := chapterRepo.FindByIdentity(ctx, "series-1", "5")
	require.NoError(t, err)
	require.Equal(t, "The Arrival", created.ChapterTitle)

	entry, err := feedRepo.FindByIdentity(ctx, "series-1", "5")
	require.NoError(t, err)
	require.Len(t, entry.Sources, 1)
	require.Equal(t, "examplesite", entry.Sources[0].SourceName)

	require.Len(t, activity.detected, 1)
	require.Len(t, activity.sourcesAdded, 1)
}

func TestHandle_DedupOnSecondSource_AppendsToExistingFeedEntry(t *testing.T) {
	w, _, feedRepo, sources, _, _, queueMgr, _, sourceID := newWorker(t)
	ctx := context.Background()

	publishedAt := time.Now()
	first := &queue.Job{Payload: mustJSON(t, pollworker.IngestPayload{
		SeriesSourceID: sourceID, ComicID: "series-1", SourceName: "examplesite",
		Label: "Chapter 5", Title: "The Arrival", SourceChapterID: "c5", SourceChapterURL: "https://a.example/5",
		SourcePublishedAt: &publishedAt,
	})}
	require.NoError(t, w.Handle(ctx, first))

	before, err := feedRepo.FindByIdentity(ctx, "series-1", "5")
	require.NoError(t, err)
	firstDiscovered := before.FirstDiscoveredAt

	secondSourceID := "source-2"
	sources.sources[secondSourceID] = &comic.SeriesSource{ID: secondSourceID, ComicID: "series-1", SourceName: "othersite"}
	// A second series source pointing at the same logical series/chapter.
	second := &queue.Job{Payload: mustJSON(t, pollworker.IngestPayload{
		SeriesSourceID: secondSourceID, ComicID: "series-1", SourceName: "othersite",
		Label: "Chapter 5", Title: "The Arrival", SourceChapterID: "c5b", SourceChapterURL: "https://b.example/5",
		SourcePublishedAt: &publishedAt,
	})}
	require.NoError(t, w.Handle(ctx, second))

	after, err := feedRepo.FindByIdentity(ctx, "series-1", "5")
	require.NoError(t, err)
	require.Len(t, after.Sources, 2)
	require.Equal(t, firstDiscovered, after.FirstDiscoveredAt)

	// Idempotent replay of the first job must not grow Sources again.
	require.NoError(t, w.Handle(ctx, first))
	again, err := feedRepo.FindByIdentity(ctx, "series-1", "5")
	require.NoError(t, err)
	require.Len(t, again.Sources, 2)

	counts, err := queueMgr.GetJobCounts(ctx, ingestworker.GapRecoveryQueueName)
	require.NoError(t, err)
	require.Equal(t, int64(1), counts) // chapter 4 missing precedes chapter 5
}

func TestHandleGapRecovery_BackdatesDetectedAtBeforeSuccessor(t *testing.T) {
	w, chapterRepo, feedRepo, _, _, _, _, clients, sourceID := newWorker(t)
	ctx := context.Background()

	ts1 := time.UnixMilli(1)
	ts3 := time.UnixMilli(200)

	require.NoError(t, w.Handle(ctx, &queue.Job{Payload: mustJSON(t, pollworker.IngestPayload{
		SeriesSourceID: sourceID, ComicID: "series-1", SourceName: "examplesite",
		Label: "Chapter 1", SourceChapterID: "c1", SourcePublishedAt: &ts1,
	})}))
	require.NoError(t, w.Handle(ctx, &queue.Job{Payload: mustJSON(t, pollworker.IngestPayload{
		SeriesSourceID: sourceID, ComicID: "series-1", SourceName: "examplesite",
		Label: "Chapter 3", SourceChapterID: "c3", SourcePublishedAt: &ts3,
	})}))

	chapter3, err := chapterRepo.FindByIdentity(ctx, "series-1", "3")
	require.NoError(t, err)

	clients.Register("examplesite", &fakeSourceClient{result: &sourceclient.ScrapeResult{
		SourceID: sourceID,
		Chapters: []sourceclient.RawChapter{{
			Label: "Chapter 2", Title: "Missing Link", SourceChapterID: "c2", SourceChapterURL: "https://example.com/2",
		}},
	}})

	gapJob := &queue.Job{Payload: mustJSON(t, struct {
		SeriesID       string `json:"series_id"`
		SeriesSourceID string `json:"series_source_id"`
		MissingNumber  string `json:"missing_number"`
	}{SeriesID: "series-1", SeriesSourceID: sourceID, MissingNumber: "2"})}

	require.NoError(t, w.HandleGapRecovery(ctx, gapJob))

	chapter2, err := chapterRepo.FindByIdentity(ctx, "series-1", "2")
	require.NoError(t, err)

	source2, err := feedRepo.FindByIdentity(ctx, "series-1", "2")
	require.NoError(t, err)
	require.True(t, source2.FirstDiscoveredAt.Before(chapter3.FirstDetectedAt))
	require.Equal(t, chapter3.FirstDetectedAt.Add(-time.Millisecond), source2.FirstDiscoveredAt)
	_ = chapter2
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}
