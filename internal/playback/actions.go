package playback

import (
	"time"

	"github.com/zyp1690/nodecast-tv/internal/models"
)

// Action is a side effect the session asks its host to perform. The host
// executes actions in order before delivering the next event.
type Action interface {
	ActionKind() string
}

// Attach binds the media pipeline to a URL at the given tier.
type Attach struct {
	URL  string
	Mode models.DeliveryMode
	Tier Tier
}

// Detach tears down the current media pipeline. Always executed before a
// subsequent Attach in the same batch.
type Detach struct{}

// RecoverMedia invokes the engine's internal media-error recovery.
type RecoverMedia struct{}

// NudgeSeek seeks forward by Offset from the current position to step the
// decoder past bad data.
type NudgeSeek struct {
	Offset time.Duration
}

// NotifyPlaying reports that playback reached steady state.
type NotifyPlaying struct {
	Mode models.DeliveryMode
	Tier Tier
}

// FetchNowPlaying requests a now/next programme refresh for the stream.
type FetchNowPlaying struct {
	StreamID string
}

// Fail reports terminal failure after every delivery mode was exhausted.
type Fail struct {
	Reason string
}

func (Attach) ActionKind() string          { return "attach" }
func (Detach) ActionKind() string          { return "detach" }
func (RecoverMedia) ActionKind() string    { return "recover_media" }
func (NudgeSeek) ActionKind() string       { return "nudge_seek" }
func (NotifyPlaying) ActionKind() string   { return "notify_playing" }
func (FetchNowPlaying) ActionKind() string { return "fetch_now_playing" }
func (Fail) ActionKind() string            { return "fail" }
