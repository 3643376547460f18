// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sourceclient

import "context"

// Client is the contract every source adapter implements.
type Client interface {
	// ScrapeSeries fetches sourceID's chapter listing. targetChapters, when
	// non-empty, hints the adapter to resolve/confirm only those labels
	// (used by gap-recovery replays); adapters that cannot filter
	// server-side may ignore it and return the full listing.
	ScrapeSeries(ctx context.Context, sourceID string, targetChapters []string) (*ScrapeResult, error)

	// ScrapeLatestUpdates returns the provider's cross-series "recently
	// updated" feed, newest first.
	ScrapeLatestUpdates(ctx context.Context) ([]LatestUpdate, error)
}

// Registry resolves a SeriesSource's source_name to the [Client] that
// knows how to talk to it.
type Registry struct {
	clients map[string]Client
}

// NewRegistry constructs an empty [Registry].
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]Client)}
}

// Register attaches client under sourceName. A later call with the same
// name replaces the earlier registration.
func (r *Registry) Register(sourceName string, client Client) {
	r.clients[sourceName] = client
}

// Get resolves sourceName to its [Client]. ok is false when no adapter is
// registered — the caller (Source-Poll Worker) turns this into a typed
// [NotImplementedError].
func (r *Registry) Get(sourceName string) (Client, bool) {
	client, ok := r.clients[sourceName]
	return client, ok
}
