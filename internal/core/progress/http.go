// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package progress provides the HTTP interface for submitting read progress:
a single PATCH endpoint mounted alongside internal/core/library's routes.
*/
package progress

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	requestutil "github.com/taibuivan/mangatrack/internal/platform/request"
	"github.com/taibuivan/mangatrack/internal/platform/respond"
)

// Handler implements the HTTP layer for progress updates.
type Handler struct {
	service *Service
}

// NewHandler constructs a new progress [Handler].
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts PATCH /library/{id}/progress on api.
func (handler *Handler) RegisterRoutes(api chi.Router) {
	api.Patch("/library/{id}/progress", handler.update)
}

type updateProgressRequest struct {
	ChapterNumber      *float64 `json:"chapter_number,omitempty"`
	ChapterSlug        string   `json:"chapter_slug,omitempty"`
	IsRead             bool     `json:"is_read"`
	Timestamp          *int64   `json:"timestamp,omitempty"`
	SourceID           *string  `json:"source_id,omitempty"`
	DeviceID           *string  `json:"device_id,omitempty"`
	ReadingTimeSeconds int      `json:"reading_time_seconds,omitempty"`
}

/*
PATCH /api/v1/library/{id}/progress.

Description: Records a reader's progress on a tracked series: advances
last_read_chapter, bulk-marks the covered chapters read, and awards XP at
most once per advancement.

Request:
  - chapter_number: number (optional)
  - chapter_slug: string (optional; ignored if chapter_number is set)
  - is_read: bool (required)
  - timestamp: int (optional unix seconds; defaults to now)
  - source_id, device_id: string (optional)
  - reading_time_seconds: int (optional)

Response:
  - 200: Result
  - 400: ErrValidation
  - 401: ErrUnauthorized
  - 404: ErrNotFound
  - 422: ErrUnprocessable (series metadata unresolved)
  - 429: ErrRateLimited
*/
func (handler *Handler) update(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var body updateProgressRequest
	if err := requestutil.DecodeJSON(request, &body); err != nil {
		respond.Error(writer, request, err)
		return
	}

	input := Input{
		ChapterNumber:      body.ChapterNumber,
		ChapterSlug:        body.ChapterSlug,
		IsRead:             body.IsRead,
		Timestamp:          body.Timestamp,
		SourceID:           body.SourceID,
		DeviceID:           body.DeviceID,
		ReadingTimeSeconds: body.ReadingTimeSeconds,
	}

	result, err := handler.service.UpdateProgress(request.Context(), userID, requestutil.ID(request, "id"), input)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, result)
}
