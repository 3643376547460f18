// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sourceclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
)

// HTTPConfig configures a generic JSON-API [HTTPClient] for one source.
type HTTPConfig struct {
	// SourceName identifies the provider in error/log messages.
	SourceName string
	// BaseURL is the provider's API root, e.g. "https://api.example.com".
	BaseURL string
	// APIKey, when set, is sent as a Bearer token.
	APIKey string
	// RequestTimeout bounds a single HTTP round trip (default 30s).
	RequestTimeout time.Duration
	// MaxRetries bounds 429/5xx retries (default 3).
	MaxRetries uint
}

// httpSeriesResponse is the wire shape a provider's "series detail"
// endpoint is expected to return.
type httpSeriesResponse struct {
	Title    string `json:"title"`
	Chapters []struct {
		Label       string     `json:"label"`
		Title       string     `json:"title"`
		ID          string     `json:"id"`
		URL         string     `json:"url"`
		PublishedAt *time.Time `json:"published_at"`
	} `json:"chapters"`
}

// httpLatestResponse is the wire shape a provider's "latest updates"
// endpoint is expected to return.
type httpLatestResponse struct {
	Updates []struct {
		SeriesID  string    `json:"series_id"`
		Label     string    `json:"label"`
		UpdatedAt time.Time `json:"updated_at"`
	} `json:"updates"`
}

// HTTPClient is a generic [Client] for providers exposing a simple JSON
// catalog API: GET {base}/series/{id} and GET {base}/latest. Providers that
// need bespoke scraping (HTML parsing, a different wire shape) get their
// own adapter implementing [Client] directly and register under their own
// source name instead of this one.
type HTTPClient struct {
	cfg        HTTPConfig
	httpClient *http.Client
}

// NewHTTPClient constructs an [HTTPClient] for cfg.
func NewHTTPClient(cfg HTTPConfig) *HTTPClient {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	return &HTTPClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
	}
}

// ScrapeSeries implements [Client].
func (c *HTTPClient) ScrapeSeries(ctx context.Context, sourceID string, targetChapters []string) (*ScrapeResult, error) {
	url := fmt.Sprintf("%s/series/%s", c.cfg.BaseURL, sourceID)

	var body httpSeriesResponse
	if err := c.getJSON(ctx, url, &body); err != nil {
		return nil, err
	}

	result := &ScrapeResult{SourceID: sourceID, Title: body.Title}
	for _, ch := range body.Chapters {
		result.Chapters = append(result.Chapters, RawChapter{
			Label:            ch.Label,
			Title:            ch.Title,
			SourceChapterID:  ch.ID,
			SourceChapterURL: ch.URL,
			PublishedAt:      ch.PublishedAt,
		})
	}
	return result, nil
}

// ScrapeLatestUpdates implements [Client].
func (c *HTTPClient) ScrapeLatestUpdates(ctx context.Context) ([]LatestUpdate, error) {
	url := fmt.Sprintf("%s/latest", c.cfg.BaseURL)

	var body httpLatestResponse
	if err := c.getJSON(ctx, url, &body); err != nil {
		return nil, err
	}

	updates := make([]LatestUpdate, 0, len(body.Updates))
	for _, u := range body.Updates {
		updates = append(updates, LatestUpdate{
			SourceName:   c.cfg.SourceName,
			SourceID:     u.SeriesID,
			ChapterLabel: u.Label,
			UpdatedAt:    u.UpdatedAt,
		})
	}
	return updates, nil
}

// getJSON performs one GET with up to cfg.MaxRetries retries on 429/5xx.
// Non-retryable status codes are classified into the typed errors the poll
// worker switches on.
func (c *HTTPClient) getJSON(ctx context.Context, url string, out any) error {
	err := retry.Do(
		func() error { return c.doGet(ctx, url, out) },
		retry.Context(ctx),
		retry.Attempts(c.cfg.MaxRetries),
		retry.Delay(500*time.Millisecond),
		retry.MaxDelay(10*time.Second),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			_, retryable := err.(*retryableStatusError)
			return retryable
		}),
	)
	if statusErr, ok := err.(*retryableStatusError); ok && statusErr.status == http.StatusTooManyRequests {
		return &RateLimitError{Source: c.cfg.SourceName}
	}
	return err
}

// retryableStatusError marks a 429/5xx response as worth another attempt.
type retryableStatusError struct{ status int }

func (e *retryableStatusError) Error() string { return fmt.Sprintf("status %d", e.status) }

func (c *HTTPClient) doGet(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return json.NewDecoder(resp.Body).Decode(out)
	case http.StatusTooManyRequests:
		return &retryableStatusError{status: resp.StatusCode}
	case http.StatusNotFound:
		return &NotFoundError{Source: c.cfg.SourceName}
	case http.StatusForbidden:
		return &ForbiddenError{Source: c.cfg.SourceName}
	case http.StatusProxyAuthRequired, http.StatusUnavailableForLegalReasons:
		return &ProxyBlockedError{Source: c.cfg.SourceName}
	default:
		if resp.StatusCode >= 500 {
			return &retryableStatusError{status: resp.StatusCode}
		}
		return fmt.Errorf("sourceclient: %s: unexpected status %d", c.cfg.SourceName, resp.StatusCode)
	}
}
