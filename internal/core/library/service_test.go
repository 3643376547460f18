// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package library

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/taibuivan/mangatrack/internal/platform/apperr"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeRepo struct {
	byID     map[string]*Entry
	bySource map[string]*Entry
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{byID: map[string]*Entry{}, bySource: map[string]*Entry{}}
}

func (f *fakeRepo) ListByUser(ctx context.Context, userID string, filter Filter, limit, offset int) ([]*Entry, int, error) {
	var out []*Entry
	for _, e := range f.byID {
		if e.UserID == userID && e.DeletedAt == nil {
			out = append(out, e)
		}
	}
	return out, len(out), nil
}

func (f *fakeRepo) FindByID(ctx context.Context, userID, id string) (*Entry, error) {
	e, ok := f.byID[id]
	if !ok || e.UserID != userID {
		return nil, apperr.NotFound("library entry")
	}
	return e, nil
}

func (f *fakeRepo) FindByUserAndSource(ctx context.Context, userID, sourceURL string) (*Entry, error) {
	e, ok := f.bySource[userID+"|"+sourceURL]
	if !ok {
		return nil, apperr.NotFound("library entry")
	}
	return e, nil
}

func (f *fakeRepo) Create(ctx context.Context, entry *Entry) error {
	f.byID[entry.ID] = entry
	f.bySource[entry.UserID+"|"+entry.SourceURL] = entry
	return nil
}

func (f *fakeRepo) Restore(ctx context.Context, entry *Entry) error {
	entry.DeletedAt = nil
	f.byID[entry.ID] = entry
	return nil
}

func (f *fakeRepo) UpdateStatus(ctx context.Context, userID, id string, status Status, userRating *int, preferredSource *string) error {
	e, err := f.FindByID(ctx, userID, id)
	if err != nil {
		return err
	}
	e.Status = status
	if userRating != nil {
		e.UserRating = userRating
	}
	if preferredSource != nil {
		e.PreferredSource = preferredSource
	}
	return nil
}

func (f *fakeRepo) BulkUpdateStatus(ctx context.Context, userID string, ids []string, status Status) (int, error) {
	updated := 0
	for _, id := range ids {
		if e, ok := f.byID[id]; ok && e.UserID == userID {
			e.Status = status
			updated++
		}
	}
	return updated, nil
}

func (f *fakeRepo) SoftDelete(ctx context.Context, userID, id string) error {
	e, err := f.FindByID(ctx, userID, id)
	if err != nil {
		return err
	}
	now := time.Now()
	e.DeletedAt = &now
	return nil
}

func (f *fakeRepo) UpdateMetadataStatus(ctx context.Context, id string, status MetadataStatus, seriesID *string) error {
	e, ok := f.byID[id]
	if !ok {
		return apperr.NotFound("library entry")
	}
	e.MetadataStatus = status
	if seriesID != nil {
		e.SeriesID = seriesID
	}
	return nil
}

func (f *fakeRepo) ListStalePendingMetadata(ctx context.Context, limit int) ([]*Entry, error) {
	var out []*Entry
	for _, e := range f.byID {
		if e.MetadataStatus == MetadataStatusPending || e.MetadataStatus == MetadataStatusUnavailable {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListHardDeletable(ctx context.Context, cutoff time.Time, limit int) ([]*Entry, error) {
	var out []*Entry
	for _, e := range f.byID {
		if e.DeletedAt != nil && e.DeletedAt.Before(cutoff) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeRepo) HardDelete(ctx context.Context, id string) error {
	delete(f.byID, id)
	return nil
}

func (f *fakeRepo) UpdateLastReadIfAdvancing(ctx context.Context, userID, id, chapterNumber string, readAt time.Time) (bool, error) {
	e, err := f.FindByID(ctx, userID, id)
	if err != nil {
		return false, err
	}
	current, _ := strconv.ParseFloat(e.LastReadChapter, 64)
	next, _ := strconv.ParseFloat(chapterNumber, 64)
	if next <= current {
		return false, nil
	}
	e.LastReadChapter = chapterNumber
	e.LastReadAt = &readAt
	return true, nil
}

func (f *fakeRepo) MarkSeriesCompletionXPGranted(ctx context.Context, id string) (bool, error) {
	e, ok := f.byID[id]
	if !ok {
		return false, apperr.NotFound("library entry")
	}
	if e.SeriesCompletionXPGranted {
		return false, nil
	}
	e.SeriesCompletionXPGranted = true
	return true, nil
}

func (f *fakeRepo) ListUserIDsBySeries(ctx context.Context, seriesID string) ([]string, error) {
	var out []string
	for _, e := range f.byID {
		if e.SeriesID != nil && *e.SeriesID == seriesID && e.DeletedAt == nil {
			out = append(out, e.UserID)
		}
	}
	return out, nil
}

type fakeResolver struct {
	resolved map[string]string
}

func (f *fakeResolver) FindSeriesIDBySourceURL(ctx context.Context, sourceURL string) (string, bool, error) {
	id, ok := f.resolved[sourceURL]
	return id, ok, nil
}

type fakeFollower struct {
	deltas map[string]int64
}

func newFakeFollower() *fakeFollower {
	return &fakeFollower{deltas: map[string]int64{}}
}

func (f *fakeFollower) Follow(ctx context.Context, seriesID string, delta int64) error {
	f.deltas[seriesID] += delta
	return nil
}

func TestAdd_ResolvesSeriesImmediatelyWhenKnown(t *testing.T) {
	repo := newFakeRepo()
	resolver := &fakeResolver{resolved: map[string]string{"https://source.example/s/1": "series-1"}}
	follower := newFakeFollower()
	service := NewService(repo, resolver, follower, nil, nil, testLogger())

	entry, err := service.Add(context.Background(), "user-1", "https://source.example/s/1", "ExampleSource")
	require.NoError(t, err)
	require.Equal(t, MetadataStatusEnriched, entry.MetadataStatus)
	require.NotNil(t, entry.SeriesID)
	require.Equal(t, "series-1", *entry.SeriesID)
	require.Equal(t, int64(1), follower.deltas["series-1"])
}

func TestAdd_LeavesPendingWhenSeriesUnknown(t *testing.T) {
	repo := newFakeRepo()
	resolver := &fakeResolver{resolved: map[string]string{}}
	follower := newFakeFollower()
	service := NewService(repo, resolver, follower, nil, nil, testLogger())

	entry, err := service.Add(context.Background(), "user-1", "https://source.example/s/2", "ExampleSource")
	require.NoError(t, err)
	require.Equal(t, MetadataStatusPending, entry.MetadataStatus)
	require.Nil(t, entry.SeriesID)
	require.Empty(t, follower.deltas)
}

func TestAdd_RejectsDuplicateActiveEntry(t *testing.T) {
	repo := newFakeRepo()
	resolver := &fakeResolver{resolved: map[string]string{}}
	follower := newFakeFollower()
	service := NewService(repo, resolver, follower, nil, nil, testLogger())

	_, err := service.Add(context.Background(), "user-1", "https://source.example/s/3", "ExampleSource")
	require.NoError(t, err)

	_, err = service.Add(context.Background(), "user-1", "https://source.example/s/3", "ExampleSource")
	require.Error(t, err)
	appErr := apperr.As(err)
	require.NotNil(t, appErr)
	require.Equal(t, "CONFLICT", appErr.Code)
}

func TestAdd_RestoresSoftDeletedEntryAndReFollows(t *testing.T) {
	repo := newFakeRepo()
	resolver := &fakeResolver{resolved: map[string]string{"https://source.example/s/4": "series-4"}}
	follower := newFakeFollower()
	service := NewService(repo, resolver, follower, nil, nil, testLogger())

	entry, err := service.Add(context.Background(), "user-1", "https://source.example/s/4", "ExampleSource")
	require.NoError(t, err)
	require.NoError(t, service.Remove(context.Background(), "user-1", entry.ID))
	require.Equal(t, int64(0), follower.deltas["series-4"])

	restored, err := service.Add(context.Background(), "user-1", "https://source.example/s/4", "ExampleSource")
	require.NoError(t, err)
	require.Equal(t, entry.ID, restored.ID)
	require.Nil(t, restored.DeletedAt)
	require.Equal(t, int64(1), follower.deltas["series-4"])
}

func TestRemove_DecrementsFollowOnlyWhenSeriesResolved(t *testing.T) {
	repo := newFakeRepo()
	resolver := &fakeResolver{resolved: map[string]string{}}
	follower := newFakeFollower()
	service := NewService(repo, resolver, follower, nil, nil, testLogger())

	entry, err := service.Add(context.Background(), "user-1", "https://source.example/s/5", "ExampleSource")
	require.NoError(t, err)

	require.NoError(t, service.Remove(context.Background(), "user-1", entry.ID))
	require.Empty(t, follower.deltas)
}

func TestRetryMetadata_ResolvesAndFollowsOnSuccess(t *testing.T) {
	repo := newFakeRepo()
	resolver := &fakeResolver{resolved: map[string]string{}}
	follower := newFakeFollower()
	service := NewService(repo, resolver, follower, nil, nil, testLogger())

	entry, err := service.Add(context.Background(), "user-1", "https://source.example/s/6", "ExampleSource")
	require.NoError(t, err)
	require.Equal(t, MetadataStatusPending, entry.MetadataStatus)

	resolver.resolved["https://source.example/s/6"] = "series-6"
	updated, err := service.RetryMetadata(context.Background(), "user-1", entry.ID)
	require.NoError(t, err)
	require.Equal(t, MetadataStatusEnriched, updated.MetadataStatus)
	require.Equal(t, int64(1), follower.deltas["series-6"])
}

func TestRetryMetadata_MarksUnavailableWhenStillUnresolved(t *testing.T) {
	repo := newFakeRepo()
	resolver := &fakeResolver{resolved: map[string]string{}}
	follower := newFakeFollower()
	service := NewService(repo, resolver, follower, nil, nil, testLogger())

	entry, err := service.Add(context.Background(), "user-1", "https://source.example/s/7", "ExampleSource")
	require.NoError(t, err)

	updated, err := service.RetryMetadata(context.Background(), "user-1", entry.ID)
	require.NoError(t, err)
	require.Equal(t, MetadataStatusUnavailable, updated.MetadataStatus)
	require.Empty(t, follower.deltas)
}

func TestBulkUpdateStatus_RejectsInvalidStatus(t *testing.T) {
	repo := newFakeRepo()
	service := NewService(repo, &fakeResolver{}, newFakeFollower(), nil, nil, testLogger())

	_, err := service.BulkUpdateStatus(context.Background(), "user-1", []string{"a"}, Status("bogus"))
	require.Error(t, err)
}

func TestBulkUpdateStatus_OnlyTouchesOwnedEntries(t *testing.T) {
	repo := newFakeRepo()
	service := NewService(repo, &fakeResolver{resolved: map[string]string{}}, newFakeFollower(), nil, nil, testLogger())

	mine, err := service.Add(context.Background(), "user-1", "https://source.example/s/8", "ExampleSource")
	require.NoError(t, err)
	theirs, err := service.Add(context.Background(), "user-2", "https://source.example/s/9", "ExampleSource")
	require.NoError(t, err)

	updated, err := service.BulkUpdateStatus(context.Background(), "user-1", []string{mine.ID, theirs.ID}, StatusCompleted)
	require.NoError(t, err)
	require.Equal(t, 1, updated)
	require.Equal(t, StatusCompleted, repo.byID[mine.ID].Status)
	require.Equal(t, StatusReading, repo.byID[theirs.ID].Status)
}

func TestPruneHardDeletable_OnlyRemovesPastRetention(t *testing.T) {
	repo := newFakeRepo()
	service := NewService(repo, &fakeResolver{resolved: map[string]string{}}, newFakeFollower(), nil, nil, testLogger())

	entry, err := service.Add(context.Background(), "user-1", "https://source.example/s/10", "ExampleSource")
	require.NoError(t, err)
	require.NoError(t, service.Remove(context.Background(), "user-1", entry.ID))

	old := time.Now().Add(-100 * 24 * time.Hour)
	repo.byID[entry.ID].DeletedAt = &old

	pruned, err := service.PruneHardDeletable(context.Background(), 30*24*time.Hour, 10)
	require.NoError(t, err)
	require.Equal(t, 1, pruned)
	require.NotContains(t, repo.byID, entry.ID)
}
