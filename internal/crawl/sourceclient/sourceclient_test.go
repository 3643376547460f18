// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sourceclient_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/mangatrack/internal/crawl/sourceclient"
)

func TestRegistry_GetMissingSourceReportsNotOK(t *testing.T) {
	registry := sourceclient.NewRegistry()
	_, ok := registry.Get("unknown-source")
	assert.False(t, ok)
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	registry := sourceclient.NewRegistry()
	client := sourceclient.NewHTTPClient(sourceclient.HTTPConfig{SourceName: "demo", BaseURL: "http://example.invalid"})
	registry.Register("demo", client)

	resolved, ok := registry.Get("demo")
	require.True(t, ok)
	assert.Same(t, client, resolved)
}

func TestHTTPClient_ScrapeSeriesParsesChapters(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/series/abc-123", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"title":"Demo Series","chapters":[{"label":"Chapter 12","id":"c12","url":"https://example.test/c12"}]}`))
	}))
	defer server.Close()

	client := sourceclient.NewHTTPClient(sourceclient.HTTPConfig{SourceName: "demo", BaseURL: server.URL})
	result, err := client.ScrapeSeries(context.Background(), "abc-123", nil)
	require.NoError(t, err)
	assert.Equal(t, "Demo Series", result.Title)
	require.Len(t, result.Chapters, 1)
	assert.Equal(t, "Chapter 12", result.Chapters[0].Label)
}

func TestHTTPClient_ScrapeSeriesNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := sourceclient.NewHTTPClient(sourceclient.HTTPConfig{SourceName: "demo", BaseURL: server.URL})
	_, err := client.ScrapeSeries(context.Background(), "missing", nil)
	require.Error(t, err)
	assert.True(t, sourceclient.IsNotFound(err))
}

func TestHTTPClient_ScrapeSeriesForbiddenIsClassified(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := sourceclient.NewHTTPClient(sourceclient.HTTPConfig{SourceName: "demo", BaseURL: server.URL})
	_, err := client.ScrapeSeries(context.Background(), "any", nil)
	require.Error(t, err)
	assert.True(t, sourceclient.IsForbidden(err))
}

func TestHTTPClient_ScrapeSeriesRateLimitedAfterRetries(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := sourceclient.NewHTTPClient(sourceclient.HTTPConfig{SourceName: "demo", BaseURL: server.URL, MaxRetries: 2})
	_, err := client.ScrapeSeries(context.Background(), "any", nil)
	require.Error(t, err)
	assert.True(t, sourceclient.IsRateLimit(err))
	assert.Equal(t, 2, attempts)
}

func TestHTTPClient_ScrapeLatestUpdates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/latest", r.URL.Path)
		_, _ = w.Write([]byte(`{"updates":[{"series_id":"abc","label":"Chapter 5","updated_at":"2026-01-01T00:00:00Z"}]}`))
	}))
	defer server.Close()

	client := sourceclient.NewHTTPClient(sourceclient.HTTPConfig{SourceName: "demo", BaseURL: server.URL})
	updates, err := client.ScrapeLatestUpdates(context.Background())
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, "demo", updates[0].SourceName)
	assert.Equal(t, "abc", updates[0].SourceID)
}

func TestNotImplementedError_Classification(t *testing.T) {
	err := &sourceclient.NotImplementedError{Source: "ghost-provider"}
	assert.True(t, sourceclient.IsNotImplemented(err))
	assert.Contains(t, err.Error(), "ghost-provider")
}
