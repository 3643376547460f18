// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package feed

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/mangatrack/internal/core/chapter"
	"github.com/taibuivan/mangatrack/internal/platform/ctxutil"
	"github.com/taibuivan/mangatrack/internal/platform/sec"
)

func newTestRouter(t *testing.T) (*chi.Mux, *fakeUserFeedRepo) {
	t.Helper()
	svc, _, userFeedRepo, _ := newTestService(t)
	handler := NewHandler(svc)

	router := chi.NewRouter()
	handler.RegisterRoutes(router)
	return router, userFeedRepo
}

func withAuth(req *http.Request, userID string) *http.Request {
	ctx := ctxutil.WithAuthUser(req.Context(), &sec.AuthClaims{UserID: userID})
	return req.WithContext(ctx)
}

func TestActivity_RequiresAuthentication(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/feed/activity", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestActivity_ReturnsEntriesForAuthenticatedUser(t *testing.T) {
	router, userFeedRepo := newTestRouter(t)
	userFeedRepo.entries = []*chapter.FeedEntry{
		{ID: "fe-1", SeriesID: "series-1", LastUpdatedAt: time.Now().UTC()},
	}

	req := withAuth(httptest.NewRequest(http.MethodGet, "/feed/activity", nil), "user-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "series-1")
}

func TestActivity_MalformedCursorReturnsError(t *testing.T) {
	router, _ := newTestRouter(t)

	req := withAuth(httptest.NewRequest(http.MethodGet, "/feed/activity?cursor=not-base64!!", nil), "user-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMarkSeen_RequiresAuthentication(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/feed/seen", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMarkSeen_DefaultsToNowWhenBodyOmitsSeenAt(t *testing.T) {
	router, _ := newTestRouter(t)

	req := withAuth(httptest.NewRequest(http.MethodPost, "/feed/seen", strings.NewReader("{}")), "user-1")
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
}
