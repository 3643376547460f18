// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package source

import "context"

// Repository defines the data access contract for the provider catalog
// (crawler.source).
type Repository interface {
	// ListSources returns the catalog, enabled first then by name.
	ListSources(context context.Context, limit, offset int) ([]*Source, int, error)

	// GetSource returns a single provider by id.
	GetSource(context context.Context, id string) (*Source, error)

	// FindByName returns the provider registered under name.
	FindByName(context context.Context, name string) (*Source, error)

	// Create persists a new provider. Returns apperr.Conflict when the name
	// or slug is already registered.
	Create(context context.Context, source *Source) error

	// SetEnabled flips the polling gate.
	SetEnabled(context context.Context, id string, enabled bool) error

	// RecordPollOutcome adjusts consecutive_fails: reset to zero on success,
	// incremented on failure. Returns the resulting count.
	RecordPollOutcome(context context.Context, name string, success bool) (int, error)
}
