// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package feed's HTTP layer exposes the reader-facing activity feed:
`GET /api/v1/feed/activity` and `POST /api/v1/feed/seen`.
*/
package feed

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	requestutil "github.com/taibuivan/mangatrack/internal/platform/request"
	"github.com/taibuivan/mangatrack/internal/platform/respond"
	"github.com/taibuivan/mangatrack/pkg/convert"
)

const (
	defaultFeedLimit = 30
	maxFeedLimit     = 100
)

// Handler implements the HTTP layer for the reader-facing activity feed.
type Handler struct {
	service *Service
}

// NewHandler constructs a new feed [Handler].
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the feed endpoints on api.
func (handler *Handler) RegisterRoutes(api chi.Router) {
	api.Get("/feed/activity", handler.activity)
	api.Post("/feed/seen", handler.markSeen)
}

/*
GET /api/v1/feed/activity.

Description: Returns the authenticated reader's tracked-series activity,
newest first, cursor-paginated.

Query:
  - filter: "all" or "unread" (default "all")
  - cursor: string (opaque; omit for the first page)
  - limit: int (1-100, default 30)

Response:
  - 200: FeedPage
  - 400: ErrValidation (malformed cursor)
  - 401: ErrUnauthorized
*/
func (handler *Handler) activity(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	filter := FeedFilter(request.URL.Query().Get("filter"))
	if filter != FilterUnread {
		filter = FilterAll
	}

	limit := convert.ToIntD(request.URL.Query().Get("limit"), defaultFeedLimit)
	if limit < 1 || limit > maxFeedLimit {
		limit = defaultFeedLimit
	}

	page, err := handler.service.GetUserFeed(request.Context(), userID, filter, request.URL.Query().Get("cursor"), limit)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, page)
}

type markSeenRequest struct {
	SeenAt *int64 `json:"seen_at,omitempty"`
}

/*
POST /api/v1/feed/seen.

Description: Advances the authenticated reader's feed-read watermark.
Ignored (not an error) if seen_at is not after the current watermark.

Request:
  - seen_at: int (optional unix seconds; defaults to now)

Response:
  - 204: No Content
  - 401: ErrUnauthorized
*/
func (handler *Handler) markSeen(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var body markSeenRequest
	if err := requestutil.DecodeJSON(request, &body); err != nil {
		respond.Error(writer, request, err)
		return
	}

	seenAt := time.Now().UTC()
	if body.SeenAt != nil {
		seenAt = time.Unix(*body.SeenAt, 0).UTC()
	}

	if err := handler.service.MarkSeen(request.Context(), userID, seenAt); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}
