package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/zyp1690/nodecast-tv/internal/models"
	"github.com/zyp1690/nodecast-tv/internal/resolver"
	"github.com/zyp1690/nodecast-tv/internal/settings"
)

// ResolveHandler exposes the delivery-mode resolver over the API so clients
// can ask "how should I play this URL" without embedding the policy.
type ResolveHandler struct {
	resolver *resolver.Resolver
	store    *settings.Store
	baseURL  string
}

// NewResolveHandler creates a resolve handler.
func NewResolveHandler(r *resolver.Resolver, store *settings.Store, baseURL string) *ResolveHandler {
	return &ResolveHandler{resolver: r, store: store, baseURL: baseURL}
}

// ResolveRequest identifies the stream to resolve.
type ResolveRequest struct {
	URL string `json:"url" minLength:"1" doc:"Upstream stream URL"`
	// Kind is the declared source kind: hls, mpegts, or file. Empty means
	// unknown and the URL is inspected instead.
	Kind     string `json:"kind,omitempty" enum:"hls,mpegts,file,"`
	StreamID string `json:"streamId,omitempty" doc:"Stream identifier for guide lookups"`
}

// ResolveResponse is the delivery plan for a stream.
type ResolveResponse struct {
	Initial string   `json:"initial" doc:"First delivery mode to attempt"`
	Order   []string `json:"order" doc:"Escalation order, starting with initial"`
	// StreamURLs maps each mode in the order (plus the transcoded fallback)
	// to the URL the player should load for it.
	StreamURLs   map[string]string `json:"streamUrls"`
	RelayHost    bool              `json:"relayHost" doc:"Origin is on the always-relay list"`
	LooksLikeHLS bool              `json:"looksLikeHls" doc:"Stream should use the adaptive engine"`
}

// ResolveInput is the input for the resolve endpoint.
type ResolveInput struct {
	Body ResolveRequest
}

// ResolveOutput is the output for the resolve endpoint.
type ResolveOutput struct {
	Body ResolveResponse
}

// Register registers the resolve routes with the API.
func (h *ResolveHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "resolveStream",
		Method:      "POST",
		Path:        "/api/v1/resolve",
		Summary:     "Resolve stream delivery",
		Description: "Computes the delivery mode escalation order and per-mode playback URLs for a stream",
		Tags:        []string{"Streams"},
	}, h.Resolve)
}

// Resolve computes the delivery plan for one stream.
func (h *ResolveHandler) Resolve(ctx context.Context, input *ResolveInput) (*ResolveOutput, error) {
	desc := models.StreamDescriptor{
		URL:      input.Body.URL,
		Kind:     models.ParseSourceKind(input.Body.Kind),
		StreamID: input.Body.StreamID,
	}

	res := h.resolver.Resolve(desc, h.store.Get())

	order := make([]string, 0, len(res.Order))
	urls := make(map[string]string, len(res.Order)+1)
	for _, mode := range res.Order {
		order = append(order, mode.String())
		urls[mode.String()] = resolver.StreamURL(desc, mode, h.baseURL)
	}
	// The transcoded fallback stays reachable even when the order omits it.
	if _, ok := urls[models.DeliveryTranscoded.String()]; !ok {
		urls[models.DeliveryTranscoded.String()] = resolver.StreamURL(desc, models.DeliveryTranscoded, h.baseURL)
	}

	return &ResolveOutput{
		Body: ResolveResponse{
			Initial:      res.Initial.String(),
			Order:        order,
			StreamURLs:   urls,
			RelayHost:    h.resolver.IsRelayHost(desc.URL),
			LooksLikeHLS: h.resolver.LooksLikeHLS(desc),
		},
	}, nil
}
