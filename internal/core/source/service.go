// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package source

import (
	"context"
	"log/slog"

	"github.com/taibuivan/mangatrack/internal/platform/validate"
	"github.com/taibuivan/mangatrack/pkg/slug"
	"github.com/taibuivan/mangatrack/pkg/uuid"
)

// AttachmentLister resolves which SeriesSource rows are bound to a provider,
// implemented by a thin adapter over comic.SeriesSourceRepository in
// cmd/api/main.go so this package never imports internal/core/comic.
type AttachmentLister interface {
	ListAttachmentsBySourceName(ctx context.Context, sourceName string, limit, offset int) ([]*Attachment, int, error)
}

// Service orchestrates provider-catalog provisioning.
type Service struct {
	repo        Repository
	attachments AttachmentLister
	logger      *slog.Logger
}

// NewService constructs a new [Service]. attachments may be nil in processes
// that never serve the attachments listing (the worker).
func NewService(repo Repository, attachments AttachmentLister, logger *slog.Logger) *Service {
	return &Service{repo: repo, attachments: attachments, logger: logger}
}

// ListSources returns the provider catalog, paginated.
func (service *Service) ListSources(ctx context.Context, limit, offset int) ([]*Source, int, error) {
	return service.repo.ListSources(ctx, limit, offset)
}

// GetSource returns a single provider by id.
func (service *Service) GetSource(ctx context.Context, id string) (*Source, error) {
	return service.repo.GetSource(ctx, id)
}

// IsEnabled reports whether the provider registered under name currently
// allows polling. An unregistered name returns apperr.NotFound; the caller
// decides whether that means "skip" or "no catalog opinion".
func (service *Service) IsEnabled(ctx context.Context, name string) (bool, error) {
	src, err := service.repo.FindByName(ctx, name)
	if err != nil {
		return false, err
	}
	return src.IsEnabled, nil
}

/*
Register provisions a new provider. New sources start enabled.

Parameters:
  - ctx: context.Context
  - input: *Source (Name and BaseURL required; ID/Slug assigned here)

Returns:
  - error: validation, conflict, or persistence errors
*/
func (service *Service) Register(ctx context.Context, input *Source) error {
	if err := (&validate.Validator{}).
		Required(FieldName, input.Name).MaxLen(FieldName, input.Name, 100).
		Required(FieldBaseURL, input.BaseURL).URL(FieldBaseURL, input.BaseURL).
		Err(); err != nil {
		return err
	}

	input.ID = uuid.New()
	input.Slug = slug.From(input.Name)
	input.IsEnabled = true
	input.ConsecutiveFails = 0

	if err := service.repo.Create(ctx, input); err != nil {
		return err
	}

	service.logger.Info("source_registered", slog.String("name", input.Name), slog.String("base_url", input.BaseURL))
	return nil
}

// SetEnabled enables or disables polling for a provider.
func (service *Service) SetEnabled(ctx context.Context, id string, enabled bool) error {
	if _, err := service.repo.GetSource(ctx, id); err != nil {
		return err
	}
	if err := service.repo.SetEnabled(ctx, id, enabled); err != nil {
		return err
	}
	service.logger.Info("source_enabled_changed", slog.String("source_id", id), slog.Bool("enabled", enabled))
	return nil
}

// RecordPollOutcome feeds the provider-level health counter from the poll
// worker: resets on success, increments on failure.
func (service *Service) RecordPollOutcome(ctx context.Context, name string, success bool) (int, error) {
	return service.repo.RecordPollOutcome(ctx, name, success)
}

// ListAttachments returns the SeriesSource attachments bound to provider id.
func (service *Service) ListAttachments(ctx context.Context, id string, limit, offset int) ([]*Attachment, int, error) {
	src, err := service.repo.GetSource(ctx, id)
	if err != nil {
		return nil, 0, err
	}
	if service.attachments == nil {
		return nil, 0, nil
	}
	return service.attachments.ListAttachmentsBySourceName(ctx, src.Name, limit, offset)
}
