// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package source

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/taibuivan/mangatrack/internal/platform/middleware"
	requestutil "github.com/taibuivan/mangatrack/internal/platform/request"
	"github.com/taibuivan/mangatrack/internal/platform/respond"
	"github.com/taibuivan/mangatrack/internal/platform/sec"
	"github.com/taibuivan/mangatrack/internal/platform/validate"
	"github.com/taibuivan/mangatrack/pkg/pagination"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the provider-catalog admin surface. Everything here
// is staff-only: provisioning sources is an operator task, not a reader one.
func (handler *Handler) RegisterRoutes(router chi.Router) {
	router.Group(func(adminRoute chi.Router) {
		adminRoute.Use(middleware.RequireRole(sec.RoleModerator))

		adminRoute.Get("/", handler.listSources)
		adminRoute.Get("/{id}", handler.getSource)
		adminRoute.Get("/{id}/attachments", handler.listAttachments)

		// Admin strict only
		adminRoute.With(middleware.RequireRole(sec.RoleAdmin)).Post("/", handler.registerSource)
		adminRoute.With(middleware.RequireRole(sec.RoleAdmin)).Patch("/{id}", handler.setEnabled)
	})
}

func (handler *Handler) listSources(writer http.ResponseWriter, request *http.Request) {
	paginationParams := pagination.FromRequest(request)

	sources, total, err := handler.service.ListSources(request.Context(), paginationParams.Limit, paginationParams.Offset())
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.Paginated(writer, sources, pagination.NewMeta(paginationParams.Page, paginationParams.Limit, total))
}

func (handler *Handler) getSource(writer http.ResponseWriter, request *http.Request) {
	src, err := handler.service.GetSource(request.Context(), requestutil.ID(request, "id"))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, src)
}

func (handler *Handler) registerSource(writer http.ResponseWriter, request *http.Request) {
	var input Source
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.service.Register(request.Context(), &input); err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.Created(writer, input)
}

type setEnabledRequest struct {
	IsEnabled *bool `json:"is_enabled"`
}

func (handler *Handler) setEnabled(writer http.ResponseWriter, request *http.Request) {
	var body setEnabledRequest
	if err := requestutil.DecodeJSON(request, &body); err != nil {
		respond.Error(writer, request, err)
		return
	}
	if body.IsEnabled == nil {
		respond.Error(writer, request, validate.RequiredError("is_enabled", "Must be provided"))
		return
	}

	if err := handler.service.SetEnabled(request.Context(), requestutil.ID(request, "id"), *body.IsEnabled); err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.NoContent(writer)
}

func (handler *Handler) listAttachments(writer http.ResponseWriter, request *http.Request) {
	paginationParams := pagination.FromRequest(request)

	attachments, total, err := handler.service.ListAttachments(request.Context(), requestutil.ID(request, "id"), paginationParams.Limit, paginationParams.Offset())
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.Paginated(writer, attachments, pagination.NewMeta(paginationParams.Page, paginationParams.Limit, total))
}
