package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/zyp1690/nodecast-tv/internal/transcode"
)

// SessionsHandler exposes the live transcode session registry.
type SessionsHandler struct {
	transcoder *transcode.Service
}

// NewSessionsHandler creates a sessions handler.
func NewSessionsHandler(transcoder *transcode.Service) *SessionsHandler {
	return &SessionsHandler{transcoder: transcoder}
}

// SessionsInput is the input for the sessions endpoint.
type SessionsInput struct{}

// SessionsOutput is the output for the sessions endpoint.
type SessionsOutput struct {
	Body SessionsResponse
}

// SessionsResponse lists live transcode sessions.
type SessionsResponse struct {
	Count    int                     `json:"count"`
	Sessions []transcode.SessionInfo `json:"sessions"`
}

// Register registers the sessions routes with the API.
func (h *SessionsHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listTranscodeSessions",
		Method:      "GET",
		Path:        "/api/v1/sessions",
		Summary:     "List transcode sessions",
		Description: "Returns live FFmpeg transcode sessions with process statistics",
		Tags:        []string{"Streams"},
	}, h.List)
}

// List returns the live transcode sessions.
func (h *SessionsHandler) List(ctx context.Context, input *SessionsInput) (*SessionsOutput, error) {
	sessions := h.transcoder.Sessions()
	return &SessionsOutput{
		Body: SessionsResponse{
			Count:    len(sessions),
			Sessions: sessions,
		},
	}, nil
}
