package models

import (
	"strings"
	"time"
)

// ErrorType classifies errors reported by the adaptive-streaming engine.
type ErrorType int

const (
	ErrorTypeOther ErrorType = iota
	// ErrorTypeNetwork covers manifest/segment fetch failures, including
	// CORS rejections, which surface as opaque network errors in browsers.
	ErrorTypeNetwork
	// ErrorTypeMedia covers decoder and buffer errors.
	ErrorTypeMedia
	// ErrorTypeMux covers remuxer failures inside the engine.
	ErrorTypeMux
)

// String returns the error type as a lowercase string.
func (t ErrorType) String() string {
	switch t {
	case ErrorTypeNetwork:
		return "network"
	case ErrorTypeMedia:
		return "media"
	case ErrorTypeMux:
		return "mux"
	default:
		return "other"
	}
}

// ParseErrorType parses an error type string.
func ParseErrorType(s string) ErrorType {
	switch strings.ToLower(s) {
	case "network":
		return ErrorTypeNetwork
	case "media":
		return ErrorTypeMedia
	case "mux":
		return ErrorTypeMux
	default:
		return ErrorTypeOther
	}
}

// Known error detail tags reported by adaptive-streaming engines.
const (
	DetailFragParseError    = "fragParsingError"
	DetailBufferStalled     = "bufferStalledError"
	DetailManifestLoadError = "manifestLoadError"
	DetailBufferAppendError = "bufferAppendError"
)

// ErrorEvent is an error reported by the attached engine.
type ErrorEvent struct {
	Type   ErrorType `json:"type"`
	Fatal  bool      `json:"fatal"`
	Detail string    `json:"detail,omitempty"`
}

// FragmentEvent fires when the engine switches to a new fragment. The
// continuity counter changes across discontinuity boundaries such as ad
// splices.
type FragmentEvent struct {
	Continuity int `json:"continuity"`
}

// ManifestParsedEvent signals the engine parsed the manifest and playback
// can start.
type ManifestParsedEvent struct {
	Levels int `json:"levels,omitempty"`
}

// FirstFrameEvent signals the first decoded media frame for native or
// transcoded playback, where no manifest-parsed event exists.
type FirstFrameEvent struct{}

// ProgressEvent carries the current playback position.
type ProgressEvent struct {
	Position time.Duration `json:"position"`
}
