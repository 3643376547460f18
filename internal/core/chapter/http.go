// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package chapter provides the read-only HTTP interface for logical chapters
and the reader-facing activity feed derived from them. Chapters themselves
are never created through this handler — they are reconciled exclusively by
the chapter-ingest worker from source-provided listings.
*/
package chapter

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	requestutil "github.com/taibuivan/mangatrack/internal/platform/request"
	"github.com/taibuivan/mangatrack/internal/platform/respond"
	"github.com/taibuivan/mangatrack/pkg/pagination"
)

// # Handler Implementation

// Handler implements the HTTP layer for chapter and feed discovery.
type Handler struct {
	service *Service
}

// NewHandler constructs a new chapter [Handler] with its service dependency.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the chapter domain's global routes directly on api,
// spanning /comics/{id}/chapters, /chapters/{id}, and /feed — the same
// "mounts its own global routes" convention used for the reader-facing
// chapter endpoints before this package was split into logical chapters and
// a separate ingestion pipeline.
func (handler *Handler) RegisterRoutes(api chi.Router) {
	api.Get("/comics/{id}/chapters", handler.listChapters)
	api.Get("/chapters/{id}", handler.getChapter)
	api.Get("/feed", handler.ListFeed)
}

/*
GET /api/v1/comics/{id}/chapters.

Description: Lists the logical chapters for a series, ordered by chapter
number.

Request:
  - id: string (series UUID)
  - limit, page: int (pagination)

Response:
  - 200: []Chapter
*/
func (handler *Handler) listChapters(writer http.ResponseWriter, request *http.Request) {
	seriesID := requestutil.ID(request, "id")
	paginationParams := pagination.FromRequest(request)

	chapters, total, err := handler.service.ListChapters(request.Context(), seriesID, paginationParams.Limit, paginationParams.Offset())
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Paginated(writer, chapters, pagination.NewMeta(paginationParams.Page, paginationParams.Limit, total))
}

/*
GET /api/v1/chapters/{id}.

Description: Retrieves a single logical chapter by id.

Request:
  - id: string (UUID)

Response:
  - 200: Chapter
  - 404: ErrNotFound
*/
func (handler *Handler) getChapter(writer http.ResponseWriter, request *http.Request) {
	id := requestutil.ID(request, "id")

	chapter, err := handler.service.GetChapter(request.Context(), id)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, chapter)
}

/*
GET /api/v1/feed.

Description: Returns the cursor-paginated activity feed of recently updated
chapters across all series.

Request:
  - before: string (RFC3339 timestamp cursor; defaults to now)
  - limit: int

Response:
  - 200: []FeedEntry
*/
func (handler *Handler) ListFeed(writer http.ResponseWriter, request *http.Request) {
	paginationParams := pagination.FromRequest(request)

	before := time.Now()
	if raw := request.URL.Query().Get("before"); raw != "" {
		if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
			before = parsed
		}
	}

	entries, err := handler.service.ListRecentFeed(request.Context(), paginationParams.Limit, before)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, entries)
}
