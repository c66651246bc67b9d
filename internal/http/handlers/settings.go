package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/zyp1690/nodecast-tv/internal/models"
	"github.com/zyp1690/nodecast-tv/internal/settings"
)

// SettingsHandler reads and updates the runtime player settings.
type SettingsHandler struct {
	store *settings.Store
}

// NewSettingsHandler creates a settings handler.
func NewSettingsHandler(store *settings.Store) *SettingsHandler {
	return &SettingsHandler{store: store}
}

// GetSettingsInput is the input for reading settings.
type GetSettingsInput struct{}

// SettingsOutput wraps the settings payload.
type SettingsOutput struct {
	Body models.Settings
}

// UpdateSettingsInput is the input for replacing settings.
type UpdateSettingsInput struct {
	Body models.Settings
}

// Register registers the settings routes with the API.
func (h *SettingsHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getSettings",
		Method:      "GET",
		Path:        "/api/v1/settings",
		Summary:     "Get player settings",
		Description: "Returns the current player settings snapshot",
		Tags:        []string{"Settings"},
	}, h.Get)

	huma.Register(api, huma.Operation{
		OperationID: "updateSettings",
		Method:      "PUT",
		Path:        "/api/v1/settings",
		Summary:     "Update player settings",
		Description: "Replaces the player settings. Force flags take effect on the next stream resolution; active playback is not interrupted.",
		Tags:        []string{"Settings"},
	}, h.Update)
}

// Get returns the current settings.
func (h *SettingsHandler) Get(ctx context.Context, input *GetSettingsInput) (*SettingsOutput, error) {
	return &SettingsOutput{Body: h.store.Get()}, nil
}

// Update replaces the settings.
func (h *SettingsHandler) Update(ctx context.Context, input *UpdateSettingsInput) (*SettingsOutput, error) {
	s := input.Body
	if s.LastVolume < 0 || s.LastVolume > 1 {
		return nil, huma.Error422UnprocessableEntity("lastVolume must be within [0,1]")
	}
	if s.OverlayDuration < 0 {
		return nil, huma.Error422UnprocessableEntity("overlayDuration must not be negative")
	}
	h.store.Set(s)
	return &SettingsOutput{Body: h.store.Get()}, nil
}
