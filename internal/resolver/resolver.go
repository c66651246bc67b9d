// Package resolver decides how a stream is delivered to the player.
//
// Resolution is a pure function of (stream descriptor, settings snapshot):
// it produces the initial delivery mode and the ordered escalation sequence
// the playback engine consumes when attempts fail. No mode appears twice in
// an order, which bounds escalation at len(order) steps plus the terminal
// transcode fallback.
package resolver

import (
	"log/slog"
	"net/url"
	"strings"

	"github.com/zyp1690/nodecast-tv/internal/httpclient"
	"github.com/zyp1690/nodecast-tv/internal/models"
)

// Config holds the resolver policy knobs. Both lists are treated as
// configurable policy rather than load-bearing contract: provider behaviour
// shifts, and operators tune these without a rebuild.
type Config struct {
	// RelayHosts are origin host suffixes whose streams reject direct
	// browser fetches (CORS/referrer/IP locks). Matching streams skip the
	// direct mode entirely.
	RelayHosts []string
	// HLSURLHints are URL substrings that mark a stream as HLS.
	HLSURLHints []string
}

// DefaultConfig returns the built-in policy defaults.
func DefaultConfig() Config {
	return Config{
		RelayHosts:  []string{"pluto.tv"},
		HLSURLHints: []string{".m3u8", "format=m3u8"},
	}
}

// Resolution is the outcome of resolving a stream descriptor.
type Resolution struct {
	// Initial is the first delivery mode to attempt.
	Initial models.DeliveryMode `json:"initial"`
	// Order is the escalation sequence, starting with Initial. Consumed at
	// most once per mode; the transcoded fallback remains available to the
	// playback engine even when absent from the order.
	Order []models.DeliveryMode `json:"order"`
}

// Resolver computes delivery resolutions.
type Resolver struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a resolver with the given policy configuration.
func New(cfg Config, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.HLSURLHints) == 0 {
		cfg.HLSURLHints = DefaultConfig().HLSURLHints
	}
	return &Resolver{cfg: cfg, logger: logger}
}

// Resolve picks the initial delivery mode and escalation order for a stream.
//
// Policy, in priority order:
//  1. forceTranscode: order = [transcoded]. Transcoding already defeats the
//     common codec and CORS failure modes, so there is nowhere to go next.
//  2. relay-listed origin, or forceRelay: order = [relayed]. Direct would
//     fail on CORS anyway; a later transcode happens only when the playback
//     engine classifies a codec failure explicitly.
//  3. otherwise: order = [direct, relayed].
func (r *Resolver) Resolve(desc models.StreamDescriptor, st models.Settings) Resolution {
	var res Resolution

	switch {
	case st.ForceTranscode:
		res = Resolution{
			Initial: models.DeliveryTranscoded,
			Order:   []models.DeliveryMode{models.DeliveryTranscoded},
		}

	case st.ForceRelay || r.IsRelayHost(desc.URL):
		res = Resolution{
			Initial: models.DeliveryRelayed,
			Order:   []models.DeliveryMode{models.DeliveryRelayed},
		}

	default:
		res = Resolution{
			Initial: models.DeliveryDirect,
			Order:   []models.DeliveryMode{models.DeliveryDirect, models.DeliveryRelayed},
		}
	}

	r.logger.Debug("stream resolved",
		slog.String("url", httpclient.ObfuscateURLString(desc.URL)),
		slog.String("kind", desc.Kind.String()),
		slog.String("initial", res.Initial.String()),
		slog.Int("order_len", len(res.Order)),
	)
	return res
}

// IsRelayHost reports whether the URL's origin matches the relay host list.
// Matching is by hostname suffix so subdomains of a listed provider match.
func (r *Resolver) IsRelayHost(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return false
	}
	for _, h := range r.cfg.RelayHosts {
		h = strings.ToLower(strings.TrimPrefix(h, "."))
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// LooksLikeHLS reports whether the stream should use the adaptive engine.
// The descriptor's source kind wins when declared; otherwise the URL is
// matched against the configured hint substrings.
func (r *Resolver) LooksLikeHLS(desc models.StreamDescriptor) bool {
	switch desc.Kind {
	case models.SourceKindHLS:
		return true
	case models.SourceKindMPEGTS, models.SourceKindFile:
		return false
	}
	lower := strings.ToLower(desc.URL)
	for _, hint := range r.cfg.HLSURLHints {
		if strings.Contains(lower, strings.ToLower(hint)) {
			return true
		}
	}
	return desc.Container == models.ContainerManifest
}

// StreamURL builds the player-facing URL for a delivery mode. baseURL is the
// externally reachable address of this server and is only used for relayed
// and transcoded modes.
func StreamURL(desc models.StreamDescriptor, mode models.DeliveryMode, baseURL string) string {
	switch mode {
	case models.DeliveryRelayed:
		return baseURL + "/stream/relay?url=" + url.QueryEscape(desc.URL)
	case models.DeliveryTranscoded:
		return baseURL + "/stream/transcode?url=" + url.QueryEscape(desc.URL)
	default:
		return desc.URL
	}
}
