// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package library provides the HTTP interface for a reader's tracked-series
list: adding/removing series, changing reading status, bulk status updates,
and retrying metadata enrichment for entries still awaiting a catalogue
match.
*/
package library

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	requestutil "github.com/taibuivan/mangatrack/internal/platform/request"
	"github.com/taibuivan/mangatrack/internal/platform/respond"
	"github.com/taibuivan/mangatrack/internal/platform/validate"
	"github.com/taibuivan/mangatrack/pkg/pagination"
)

// # Handler Implementation

// Handler implements the HTTP layer for library entries.
type Handler struct {
	service *Service
}

// NewHandler constructs a new library [Handler] with its service dependency.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the library domain's routes directly on api, under
// the caller-supplied authentication middleware (every route here requires
// a logged-in reader).
func (handler *Handler) RegisterRoutes(api chi.Router) {
	api.Get("/library", handler.list)
	api.Post("/library", handler.add)
	api.Patch("/library/bulk", handler.bulkUpdateStatus)
	api.Get("/library/{id}", handler.get)
	api.Patch("/library/{id}", handler.updateStatus)
	api.Delete("/library/{id}", handler.remove)
	api.Post("/library/{id}/retry-metadata", handler.retryMetadata)
	api.Post("/library/import", handler.importEntries)
}

/*
GET /api/v1/library.

Description: Lists the authenticated reader's tracked series.

Request:
  - status: string (optional status filter)
  - limit, page: int (pagination)

Response:
  - 200: []Entry
  - 401: ErrUnauthorized
*/
func (handler *Handler) list(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	filter := Filter{Status: Status(request.URL.Query().Get("status"))}
	paginationParams := pagination.FromRequest(request)

	entries, total, err := handler.service.ListLibrary(request.Context(), userID, filter, paginationParams.Limit, paginationParams.Offset())
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Paginated(writer, entries, pagination.NewMeta(paginationParams.Page, paginationParams.Limit, total))
}

/*
GET /api/v1/library/{id}.

Description: Retrieves a single library entry owned by the authenticated
reader.

Response:
  - 200: Entry
  - 401: ErrUnauthorized
  - 404: ErrNotFound
*/
func (handler *Handler) get(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	entry, err := handler.service.GetEntry(request.Context(), userID, requestutil.ID(request, "id"))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, entry)
}

type addRequest struct {
	SourceURL  string `json:"source_url"`
	SourceName string `json:"source_name"`
}

/*
POST /api/v1/library.

Description: Tracks a new series by its source_url, or restores a
previously-removed entry for the same (user, source_url) pair.

Request:
  - source_url: string (required)
  - source_name: string

Response:
  - 201: Entry
  - 400: ErrValidation
  - 401: ErrUnauthorized
  - 409: ErrConflict (already tracked and not previously removed)
*/
func (handler *Handler) add(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var body addRequest
	if err := requestutil.DecodeJSON(request, &body); err != nil {
		respond.Error(writer, request, err)
		return
	}

	entry, err := handler.service.Add(request.Context(), userID, body.SourceURL, body.SourceName)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, entry)
}

type updateStatusRequest struct {
	Status          Status  `json:"status"`
	UserRating      *int    `json:"user_rating,omitempty"`
	PreferredSource *string `json:"preferred_source,omitempty"`
}

/*
PATCH /api/v1/library/{id}.

Description: Updates an entry's reading status, rating, and/or preferred
source.

Request:
  - status: string (required)
  - user_rating: int (optional, 1..10)
  - preferred_source: string (optional)

Response:
  - 200: {id: string}
  - 400: ErrValidation
  - 401: ErrUnauthorized
  - 404: ErrNotFound
*/
func (handler *Handler) updateStatus(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var body updateStatusRequest
	if err := requestutil.DecodeJSON(request, &body); err != nil {
		respond.Error(writer, request, err)
		return
	}

	id := requestutil.ID(request, "id")
	if err := handler.service.UpdateStatus(request.Context(), userID, id, body.Status, body.UserRating, body.PreferredSource); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]string{"id": id})
}

type bulkUpdateStatusRequest struct {
	IDs    []string `json:"ids"`
	Status Status   `json:"status"`
}

/*
PATCH /api/v1/library/bulk.

Description: Applies a status to every listed entry owned by the
authenticated reader; entries owned by others or missing are silently
skipped, not reported as errors.

Request:
  - ids: []string (required, non-empty)
  - status: string (required)

Response:
  - 200: {updated: int}
  - 400: ErrValidation
  - 401: ErrUnauthorized
*/
func (handler *Handler) bulkUpdateStatus(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var body bulkUpdateStatusRequest
	if err := requestutil.DecodeJSON(request, &body); err != nil {
		respond.Error(writer, request, err)
		return
	}
	if err := (&validate.Validator{}).Custom("ids", len(body.IDs) == 0, "At least one id is required").Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	updated, err := handler.service.BulkUpdateStatus(request.Context(), userID, body.IDs, body.Status)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]int{"updated": updated})
}

/*
DELETE /api/v1/library/{id}.

Description: Soft-deletes a tracked series, releasing its follow count if
the series had been resolved.

Response:
  - 204
  - 401: ErrUnauthorized
  - 404: ErrNotFound
*/
func (handler *Handler) remove(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.service.Remove(request.Context(), userID, requestutil.ID(request, "id")); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

/*
POST /api/v1/library/{id}/retry-metadata.

Description: Re-attempts catalogue resolution for an entry stuck in
"pending", "unavailable", or "failed" metadata_status.

Response:
  - 200: Entry
  - 401: ErrUnauthorized
  - 404: ErrNotFound
*/
func (handler *Handler) retryMetadata(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	entry, err := handler.service.RetryMetadata(request.Context(), userID, requestutil.ID(request, "id"))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, entry)
}

// importRequest is the inbound JSON schema for POST /api/v1/library/import.
type importRequest struct {
	Source  string             `json:"source"`
	Entries []importEntryInput `json:"entries"`
}

type importEntryInput struct {
	SourceURL  string `json:"source_url"`
	ExternalID string `json:"external_id"`
	Title      string `json:"title"`
}

/*
POST /api/v1/library/import.

Description: Bulk-imports up to 500 tracked series at once (e.g. from a
migration export). Entries are de-duplicated by source_url/external_id/
title, both within the batch and against the reader's existing library;
survivors are added exactly as a single POST /library would add them.

Request (Body):
  - source: string (required — the provider the export came from)
  - entries: []{source_url, external_id?, title?} (≤500)

Response:
  - 200: {imported: int, skipped: int}
  - 400: ErrValidation
  - 401: ErrUnauthorized
*/
func (handler *Handler) importEntries(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var body importRequest
	if err := requestutil.DecodeJSON(request, &body); err != nil {
		respond.Error(writer, request, err)
		return
	}

	entries := make([]ImportEntry, len(body.Entries))
	for i, e := range body.Entries {
		entries[i] = ImportEntry{SourceURL: e.SourceURL, ExternalID: e.ExternalID, Title: e.Title}
	}

	result, err := handler.service.Import(request.Context(), userID, body.Source, entries)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]int{"imported": result.Imported, "skipped": result.Skipped})
}
