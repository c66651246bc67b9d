// Package models defines the core domain types shared across the engine:
// stream descriptors, delivery modes, settings snapshots, and the player
// event vocabulary consumed by the playback state machine.
package models

import "strings"

// DeliveryMode identifies how the player fetches a stream.
type DeliveryMode int

const (
	// DeliveryDirect fetches the origin URL as-is from the browser.
	DeliveryDirect DeliveryMode = iota
	// DeliveryRelayed fetches through the relay service, which fetches the
	// origin server-side to defeat CORS/referrer/IP-lock restrictions.
	DeliveryRelayed
	// DeliveryTranscoded fetches through the transcode service, which
	// re-encodes audio and streams a fragmented container.
	DeliveryTranscoded
)

// String returns the delivery mode as a lowercase string.
func (m DeliveryMode) String() string {
	switch m {
	case DeliveryDirect:
		return "direct"
	case DeliveryRelayed:
		return "relayed"
	case DeliveryTranscoded:
		return "transcoded"
	default:
		return "unknown"
	}
}

// ParseDeliveryMode parses a delivery mode string. Unknown values map to
// DeliveryDirect with ok=false.
func ParseDeliveryMode(s string) (DeliveryMode, bool) {
	switch strings.ToLower(s) {
	case "direct":
		return DeliveryDirect, true
	case "relayed":
		return DeliveryRelayed, true
	case "transcoded":
		return DeliveryTranscoded, true
	default:
		return DeliveryDirect, false
	}
}

// SourceKind tags which provider type a stream descriptor came from.
type SourceKind int

const (
	SourceKindUnknown SourceKind = iota
	SourceKindHLS
	SourceKindMPEGTS
	SourceKindFile
)

// String returns the source kind as a lowercase string.
func (k SourceKind) String() string {
	switch k {
	case SourceKindHLS:
		return "hls"
	case SourceKindMPEGTS:
		return "mpegts"
	case SourceKindFile:
		return "file"
	default:
		return "unknown"
	}
}

// ParseSourceKind parses a source kind string.
func ParseSourceKind(s string) SourceKind {
	switch strings.ToLower(s) {
	case "hls":
		return SourceKindHLS
	case "mpegts", "ts":
		return SourceKindMPEGTS
	case "file", "vod":
		return SourceKindFile
	default:
		return SourceKindUnknown
	}
}

// ContainerHint is the declared container shape of a stream, when known.
type ContainerHint int

const (
	ContainerUnknown ContainerHint = iota
	// ContainerManifest indicates a segmented stream behind an index
	// document (HLS/DASH manifest).
	ContainerManifest
	// ContainerMedia indicates a single progressive media resource.
	ContainerMedia
)

// String returns the container hint as a lowercase string.
func (c ContainerHint) String() string {
	switch c {
	case ContainerManifest:
		return "manifest"
	case ContainerMedia:
		return "media"
	default:
		return "unknown"
	}
}

// StreamDescriptor is the immutable input to a playback attempt. It is
// created when a channel or VOD item is selected and discarded when playback
// stops or another item is selected.
type StreamDescriptor struct {
	// URL is the origin stream URL.
	URL string `json:"url"`
	// Kind is the provider source type.
	Kind SourceKind `json:"kind"`
	// StreamID is the provider-specific stream identifier, if any.
	StreamID string `json:"stream_id,omitempty"`
	// Container is the declared container hint, if any.
	Container ContainerHint `json:"container,omitempty"`
}
