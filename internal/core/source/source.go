// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package source owns the catalog of external providers the crawl pipeline is
allowed to talk to.

A [Source] is the provider itself — its name, API root, and whether polling
it is currently enabled — as opposed to [comic.SeriesSource], the per-series
attachment that says "this series is tracked on that provider". The crawl
components assume sources already exist; this package is where an operator
provisions them.
*/
package source

import (
	"encoding/json"
	"time"
)

// Source is one registered external provider.
type Source struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Slug    string `json:"slug"`
	BaseURL string `json:"base_url"`

	// ExtensionID names the adapter implementation that speaks this
	// provider's protocol, resolved against the sourceclient registry by
	// the worker process at startup.
	ExtensionID *string `json:"extension_id,omitempty"`

	// Config is adapter-specific settings (rate-limit overrides, API
	// version pins), stored opaque and handed to the adapter as-is.
	Config json.RawMessage `json:"config,omitempty"`

	// IsEnabled gates polling: a disabled source keeps its SeriesSource
	// attachments, but the Source-Poll Worker skips their polls and pushes
	// each one's next check 12 hours out.
	IsEnabled bool `json:"is_enabled"`

	// ConsecutiveFails counts back-to-back failed polls across all of this
	// provider's attachments, an operator-facing health signal distinct
	// from the per-attachment failure_count.
	ConsecutiveFails int `json:"consecutive_fails"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Attachment is the slice of a SeriesSource this package surfaces when
// listing what a provider serves, without importing the comic package.
type Attachment struct {
	ID           string     `json:"id"`
	SeriesID     string     `json:"series_id"`
	SourceURL    string     `json:"source_url"`
	SourceStatus string     `json:"source_status"`
	LastSuccess  *time.Time `json:"last_success_at,omitempty"`
	ChapterCount int        `json:"source_chapter_count"`
}

const (
	FieldName    = "name"
	FieldBaseURL = "base_url"
)
