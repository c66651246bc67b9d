package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/zyp1690/nodecast-tv/internal/epg"
)

// EpgHandler proxies now/next lookups to the external guide service so the
// player only ever talks to this server.
type EpgHandler struct {
	client *epg.Client
}

// NewEpgHandler creates an EPG handler.
func NewEpgHandler(client *epg.Client) *EpgHandler {
	return &EpgHandler{client: client}
}

// NowNextInput identifies the stream to look up.
type NowNextInput struct {
	StreamID string `path:"streamId" doc:"Stream identifier"`
}

// NowNextOutput wraps the now/next payload.
type NowNextOutput struct {
	Body epg.NowNext
}

// Register registers the EPG routes with the API.
func (h *EpgHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getNowNext",
		Method:      "GET",
		Path:        "/api/v1/epg/nownext/{streamId}",
		Summary:     "Get now/next programmes",
		Description: "Returns the current and upcoming programme for a stream. Empty when no guide source is configured.",
		Tags:        []string{"EPG"},
	}, h.GetNowNext)
}

// GetNowNext returns the current and next programme for a stream.
func (h *EpgHandler) GetNowNext(ctx context.Context, input *NowNextInput) (*NowNextOutput, error) {
	nn, err := h.client.NowNext(ctx, input.StreamID)
	if err != nil {
		return nil, huma.Error502BadGateway("guide service unavailable", err)
	}
	return &NowNextOutput{Body: *nn}, nil
}
