// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package search

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/mangatrack/internal/core/comic"
	requestutil "github.com/taibuivan/mangatrack/internal/platform/request"
	"github.com/taibuivan/mangatrack/internal/platform/respond"
	"github.com/taibuivan/mangatrack/internal/platform/sec"
	"github.com/taibuivan/mangatrack/pkg/pagination"
)

// CatalogReader is the narrow slice of comic.Service the search HTTP layer
// depends on: listing/filtering comics, never mutating them.
type CatalogReader interface {
	ListComics(ctx context.Context, filter comic.Filter, limit, offset int) ([]*comic.Comic, int, error)
}

// Handler implements the HTTP interface for GET /comics/search,
// GET /comics/discover, and GET /comics/trending.
//
// It deliberately lives in the search package rather than comic: the
// Search Storm Controller is its own bounded component, and these
// three routes are the only place it and the catalogue read-path meet.
type Handler struct {
	catalog CatalogReader
	storm   *Service
}

// NewHandler constructs a search [Handler].
func NewHandler(catalog CatalogReader, storm *Service) *Handler {
	return &Handler{catalog: catalog, storm: storm}
}

// RegisterRoutes mounts the search domain's routes directly on api, under
// the same prefix as the catalogue's own comic.Handler.
func (handler *Handler) RegisterRoutes(api chi.Router) {
	api.Get("/comics/search", handler.search)
	api.Get("/comics/discover", handler.discover)
	api.Get("/comics/trending", handler.trending)
}

// requesterTier classifies the caller for the weighted deferred queue.
// This platform has no dedicated "premium" account flag; RoleAdmin/
// RoleModerator staff accounts are treated as premium (zero added delay,
// since they're the ones most often chasing a specific missing title down),
// any other authenticated reader as logged-in, and an anonymous caller as
// free.
func requesterTier(request *http.Request) Tier {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		return TierFree
	}
	role := sec.UserRole(claims.Role)
	if role.AtLeast(sec.RoleModerator) {
		return TierPremium
	}
	return TierLoggedIn
}

/*
GET /api/v1/comics/search.

Description: Full-text catalogue search. A query that matches nothing
locally is recorded as a miss and may enqueue an external
discovery search — collapsed so that a storm of identical simultaneous
queries produces at most one such job.

Request:
  - q: string (required)
  - limit, page: int (pagination)

Response:
  - 200: {results: []comic.Comic, external_search?: Decision}
*/
func (handler *Handler) search(writer http.ResponseWriter, request *http.Request) {
	q := request.URL.Query().Get("q")
	paginationParams := pagination.FromRequest(request)

	results, total, err := handler.catalog.ListComics(request.Context(), comic.Filter{Query: q}, paginationParams.Limit, paginationParams.Offset())
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	response := struct {
		Results  []*comic.Comic `json:"results"`
		Total    int            `json:"total"`
		Decision *Decision      `json:"external_search,omitempty"`
	}{Results: results, Total: total}

	if total == 0 && q != "" {
		decision, err := handler.storm.EvaluateAndEnqueue(request.Context(), q, requesterTier(request))
		if err == nil {
			response.Decision = &decision
		}
	}

	respond.OK(writer, response)
}

/*
GET /api/v1/comics/discover.

Description: Surfaces series with the freshest chapter activity, ordered
by last_chapter_at descending — a reader browsing what's fresh, as opposed
to what's generally popular (see trending).

Request:
  - limit, page: int (pagination)

Response:
  - 200: []comic.Comic
*/
func (handler *Handler) discover(writer http.ResponseWriter, request *http.Request) {
	handler.listSorted(writer, request, "latest_chapter")
}

/*
GET /api/v1/comics/trending.

Description: Surfaces series ranked by the decayed activity score the tier
engine maintains for scheduling purposes, repurposed here as a trending
signal.

Request:
  - limit, page: int (pagination)

Response:
  - 200: []comic.Comic
*/
func (handler *Handler) trending(writer http.ResponseWriter, request *http.Request) {
	handler.listSorted(writer, request, "trending")
}

func (handler *Handler) listSorted(writer http.ResponseWriter, request *http.Request, sort string) {
	paginationParams := pagination.FromRequest(request)

	results, total, err := handler.catalog.ListComics(request.Context(), comic.Filter{Sort: sort, SortDir: "desc"}, paginationParams.Limit, paginationParams.Offset())
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Paginated(writer, results, pagination.NewMeta(paginationParams.Page, paginationParams.Limit, total))
}
