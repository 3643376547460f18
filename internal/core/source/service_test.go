// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package source

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/taibuivan/mangatrack/internal/platform/apperr"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeRepo struct {
	byID   map[string]*Source
	byName map[string]*Source
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{byID: map[string]*Source{}, byName: map[string]*Source{}}
}

func (r *fakeRepo) ListSources(_ context.Context, limit, offset int) ([]*Source, int, error) {
	var all []*Source
	for _, s := range r.byID {
		all = append(all, s)
	}
	return all, len(all), nil
}

func (r *fakeRepo) GetSource(_ context.Context, id string) (*Source, error) {
	if s, ok := r.byID[id]; ok {
		return s, nil
	}
	return nil, apperr.NotFound("source")
}

func (r *fakeRepo) FindByName(_ context.Context, name string) (*Source, error) {
	if s, ok := r.byName[name]; ok {
		return s, nil
	}
	return nil, apperr.NotFound("source")
}

func (r *fakeRepo) Create(_ context.Context, s *Source) error {
	if _, ok := r.byName[s.Name]; ok {
		return apperr.Conflict("source name already registered")
	}
	r.byID[s.ID] = s
	r.byName[s.Name] = s
	return nil
}

func (r *fakeRepo) SetEnabled(_ context.Context, id string, enabled bool) error {
	s, ok := r.byID[id]
	if !ok {
		return apperr.NotFound("source")
	}
	s.IsEnabled = enabled
	return nil
}

func (r *fakeRepo) RecordPollOutcome(_ context.Context, name string, success bool) (int, error) {
	s, ok := r.byName[name]
	if !ok {
		return 0, apperr.NotFound("source")
	}
	if success {
		s.ConsecutiveFails = 0
	} else {
		s.ConsecutiveFails++
	}
	return s.ConsecutiveFails, nil
}

func TestRegister_AssignsIdentityAndStartsEnabled(t *testing.T) {
	repo := newFakeRepo()
	service := NewService(repo, nil, testLogger())

	input := &Source{Name: "Example Reader", BaseURL: "https://api.reader.example"}
	require.NoError(t, service.Register(context.Background(), input))

	require.NotEmpty(t, input.ID)
	require.Equal(t, "example-reader", input.Slug)
	require.True(t, input.IsEnabled)
}

func TestRegister_RejectsMissingNameAndBadURL(t *testing.T) {
	repo := newFakeRepo()
	service := NewService(repo, nil, testLogger())
	ctx := context.Background()

	err := service.Register(ctx, &Source{BaseURL: "https://api.reader.example"})
	require.Error(t, err)

	err = service.Register(ctx, &Source{Name: "Example", BaseURL: "not a url"})
	require.Error(t, err)

	require.Empty(t, repo.byID)
}

func TestRegister_DuplicateNameConflicts(t *testing.T) {
	repo := newFakeRepo()
	service := NewService(repo, nil, testLogger())
	ctx := context.Background()

	require.NoError(t, service.Register(ctx, &Source{Name: "Example", BaseURL: "https://a.example"}))

	err := service.Register(ctx, &Source{Name: "Example", BaseURL: "https://b.example"})
	require.Error(t, err)
	appErr := apperr.As(err)
	require.NotNil(t, appErr)
	require.Equal(t, "CONFLICT", appErr.Code)
}

func TestSetEnabled_TogglesPollingGate(t *testing.T) {
	repo := newFakeRepo()
	service := NewService(repo, nil, testLogger())
	ctx := context.Background()

	registered := &Source{Name: "Example", BaseURL: "https://a.example"}
	require.NoError(t, service.Register(ctx, registered))

	require.NoError(t, service.SetEnabled(ctx, registered.ID, false))
	enabled, err := service.IsEnabled(ctx, "Example")
	require.NoError(t, err)
	require.False(t, enabled)

	require.NoError(t, service.SetEnabled(ctx, registered.ID, true))
	enabled, err = service.IsEnabled(ctx, "Example")
	require.NoError(t, err)
	require.True(t, enabled)
}

func TestIsEnabled_UnregisteredNameNotFound(t *testing.T) {
	service := NewService(newFakeRepo(), nil, testLogger())

	_, err := service.IsEnabled(context.Background(), "ghost")
	require.True(t, apperr.IsNotFound(err))
}

func TestRecordPollOutcome_FailuresAccumulateAndSuccessResets(t *testing.T) {
	repo := newFakeRepo()
	service := NewService(repo, nil, testLogger())
	ctx := context.Background()

	require.NoError(t, service.Register(ctx, &Source{Name: "Example", BaseURL: "https://a.example"}))

	for want := 1; want <= 3; want++ {
		fails, err := service.RecordPollOutcome(ctx, "Example", false)
		require.NoError(t, err)
		require.Equal(t, want, fails)
	}

	fails, err := service.RecordPollOutcome(ctx, "Example", true)
	require.NoError(t, err)
	require.Zero(t, fails)
}
