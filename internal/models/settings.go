package models

import "time"

// Settings is a read-only snapshot of the user settings the engine consumes.
// The settings provider owns persistence; resolution takes a snapshot as an
// explicit argument so delivery decisions stay pure and testable.
type Settings struct {
	// ForceRelay forces the relayed delivery mode for every stream.
	ForceRelay bool `json:"forceProxy" mapstructure:"force_proxy"`
	// ForceTranscode forces the transcoded delivery mode for every stream.
	ForceTranscode bool `json:"forceTranscode" mapstructure:"force_transcode"`
	// ForceRemux requests container remuxing without audio re-encode.
	ForceRemux bool `json:"forceRemux" mapstructure:"force_remux"`
	// StreamFormat is the preferred container format for transcoded output.
	StreamFormat string `json:"streamFormat" mapstructure:"stream_format"`

	// ArrowKeysChangeChannel enables channel zapping with arrow keys.
	ArrowKeysChangeChannel bool `json:"arrowKeysChangeChannel" mapstructure:"arrow_keys_change_channel"`
	// OverlayDuration is how long the now-playing overlay stays visible.
	OverlayDuration time.Duration `json:"overlayDuration" mapstructure:"overlay_duration"`
	// RememberVolume restores the last-used volume on startup.
	RememberVolume bool `json:"rememberVolume" mapstructure:"remember_volume"`
	// LastVolume is the last-used volume in [0,1].
	LastVolume float64 `json:"lastVolume" mapstructure:"last_volume"`
}

// DefaultSettings returns the settings the engine assumes when the external
// provider supplies nothing.
func DefaultSettings() Settings {
	return Settings{
		StreamFormat:    "mp4",
		OverlayDuration: 5 * time.Second,
		RememberVolume:  true,
		LastVolume:      1.0,
	}
}
