// Package playback implements the client playback state machine.
//
// A Session reacts to adaptive-streaming-engine events (errors, fragment
// changes, manifest readiness) and decides between local recovery and
// delivery-mode escalation. Transitions are synchronous functions of
// (current state, event) that return the side effects as Action values, so
// the machine is independent of any event-delivery mechanism and testable
// without a decoder or network.
package playback

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/zyp1690/nodecast-tv/internal/httpclient"
	"github.com/zyp1690/nodecast-tv/internal/models"
	"github.com/zyp1690/nodecast-tv/internal/resolver"
)

// State is the playback session state.
type State int

const (
	StateIdle State = iota
	StateAttaching
	StatePlaying
	StateRecovering
	StateEscalating
	StateFailed
)

// String returns the state as a lowercase string.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAttaching:
		return "attaching"
	case StatePlaying:
		return "playing"
	case StateRecovering:
		return "recovering"
	case StateEscalating:
		return "escalating"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Tier is the playback attachment tier for the current attempt.
type Tier int

const (
	// TierAdaptive attaches the adaptive-streaming engine (HLS).
	TierAdaptive Tier = iota
	// TierNative relies on the platform's native support for the container.
	TierNative
	// TierDirect points the media element at the URL with no engine.
	TierDirect
)

// String returns the tier as a lowercase string.
func (t Tier) String() string {
	switch t {
	case TierAdaptive:
		return "adaptive"
	case TierNative:
		return "native"
	case TierDirect:
		return "direct"
	default:
		return "unknown"
	}
}

// Seek nudge offsets. The small nudge forces the decoder past corrupted
// frames after a recoverable media error; the larger one skips a splice
// boundary where timestamps jump.
const (
	syncNudge          = 10 * time.Millisecond
	discontinuityNudge = 1 * time.Second
)

// Config holds the collaborators and environment a session needs.
type Config struct {
	// Resolver computes the escalation order.
	Resolver *resolver.Resolver
	// BaseURL is the externally reachable address of this server, used to
	// build relayed/transcoded stream URLs.
	BaseURL string
	// NativeHLS indicates the platform plays HLS natively, which demotes
	// the adaptive engine tier to native for manifest streams.
	NativeHLS bool
	// EngineRecovery indicates the attached engine exposes an internal
	// media-error recovery call; when false, recovery falls back to seek
	// nudges.
	EngineRecovery bool
	// Logger receives session lifecycle logging.
	Logger *slog.Logger
}

// Session is the mutable playback state for one selected item. It is owned
// by the single event-processing goroutine that delivers player events;
// methods must not be called concurrently.
type Session struct {
	ID string

	cfg      Config
	desc     models.StreamDescriptor
	settings models.Settings
	logger   *slog.Logger

	state      State
	mode       models.DeliveryMode
	tier       Tier
	resolution resolver.Resolution
	orderIdx   int
	tried      map[models.DeliveryMode]bool

	escalations      int
	attached         bool
	continuityLatch  bool
	lastContinuity   int
	position         time.Duration
	mediaRecovered   bool
	failReason       string
	attachedAt       time.Time
	recoveryActions  int
	stoppedOrDiscard bool
}

// NewSession creates an idle session for a stream descriptor. Nothing
// happens until Start.
func NewSession(cfg Config, desc models.StreamDescriptor, st models.Settings) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		ID:       uuid.New().String(),
		cfg:      cfg,
		desc:     desc,
		settings: st,
		logger:   logger.With(slog.String("component", "playback")),
		state:    StateIdle,
		tried:    make(map[models.DeliveryMode]bool),
	}
}

// State returns the current state.
func (s *Session) State() State { return s.state }

// Mode returns the delivery mode of the current attempt.
func (s *Session) Mode() models.DeliveryMode { return s.mode }

// Tier returns the attachment tier of the current attempt.
func (s *Session) Tier() Tier { return s.tier }

// Escalations returns how many escalations have been attempted.
func (s *Session) Escalations() int { return s.escalations }

// RecoveryActions returns how many corrective actions have been issued.
func (s *Session) RecoveryActions() int { return s.recoveryActions }

// FailReason returns why the session failed, or "" while it has not.
func (s *Session) FailReason() string { return s.failReason }

// AttachedAt returns when the current attempt attached.
func (s *Session) AttachedAt() time.Time { return s.attachedAt }

// Start begins playback: resolves the escalation order and attaches the
// first mode. Only valid from idle.
func (s *Session) Start() []Action {
	if s.state != StateIdle || s.stoppedOrDiscard {
		return nil
	}

	s.resolution = s.cfg.Resolver.Resolve(s.desc, s.settings)
	s.orderIdx = 0
	return s.attach(s.resolution.Initial)
}

// Stop synchronously tears the session down. The caller must not deliver
// further events; any that arrive are ignored so no superseded recovery
// action can fire.
func (s *Session) Stop() []Action {
	s.stoppedOrDiscard = true
	if !s.attached {
		s.state = StateIdle
		return nil
	}
	s.attached = false
	s.state = StateIdle
	s.logger.Info("playback stopped",
		slog.String("session_id", s.ID),
		slog.String("mode", s.mode.String()),
	)
	return []Action{Detach{}}
}

// HandleEvent advances the state machine for one player event and returns
// the side effects to execute. Recovery actions must be executed before the
// caller processes the next event.
func (s *Session) HandleEvent(ev any) []Action {
	if s.stoppedOrDiscard || s.state == StateFailed {
		return nil
	}

	switch e := ev.(type) {
	case models.ManifestParsedEvent:
		return s.onReady()
	case models.FirstFrameEvent:
		return s.onReady()
	case models.ProgressEvent:
		s.position = e.Position
		return nil
	case models.FragmentEvent:
		return s.onFragment(e)
	case models.ErrorEvent:
		return s.onError(e)
	default:
		return nil
	}
}

// onReady handles manifest-parsed (adaptive) or first-frame (native and
// transcoded) readiness.
func (s *Session) onReady() []Action {
	if s.state != StateAttaching {
		return nil
	}
	s.state = StatePlaying
	s.logger.Info("playback started",
		slog.String("session_id", s.ID),
		slog.String("mode", s.mode.String()),
		slog.String("tier", s.tier.String()),
		slog.Int("escalations", s.escalations),
	)
	return []Action{
		NotifyPlaying{Mode: s.mode, Tier: s.tier},
		FetchNowPlaying{StreamID: s.desc.StreamID},
	}
}

// onFragment tracks the continuity counter and reacts to discontinuities.
// The first observed counter reflects the initial media timeline, not a
// splice, so it only latches.
func (s *Session) onFragment(e models.FragmentEvent) []Action {
	if s.state != StatePlaying {
		return nil
	}
	if !s.continuityLatch {
		s.continuityLatch = true
		s.lastContinuity = e.Continuity
		return nil
	}
	if e.Continuity == s.lastContinuity {
		return nil
	}

	s.logger.Debug("discontinuity detected",
		slog.String("session_id", s.ID),
		slog.Int("from", s.lastContinuity),
		slog.Int("to", e.Continuity),
	)
	s.lastContinuity = e.Continuity
	return s.recoverOnce(discontinuityNudge)
}

// recoverOnce issues a single corrective action: engine-native recovery when
// available, otherwise a forward seek nudge. Nudges only apply while
// actively playing at non-zero position.
func (s *Session) recoverOnce(nudge time.Duration) []Action {
	s.state = StateRecovering
	defer func() { s.state = StatePlaying }()

	if s.cfg.EngineRecovery {
		s.recoveryActions++
		return []Action{RecoverMedia{}}
	}
	if s.position > 0 {
		s.recoveryActions++
		return []Action{NudgeSeek{Offset: nudge}}
	}
	return nil
}

// onError classifies a player error and recovers or escalates.
func (s *Session) onError(e models.ErrorEvent) []Action {
	if s.state != StatePlaying && s.state != StateAttaching {
		return nil
	}

	s.logger.Warn("player error",
		slog.String("session_id", s.ID),
		slog.String("type", e.Type.String()),
		slog.Bool("fatal", e.Fatal),
		slog.String("detail", e.Detail),
		slog.String("mode", s.mode.String()),
	)

	if !e.Fatal {
		// Buffer stalls, recoverable media errors, fragment parse hiccups.
		if s.state != StatePlaying {
			return nil
		}
		return s.recoverOnce(syncNudge)
	}

	if s.isTransportError(e) {
		return s.escalate()
	}

	// Fatal media/decoder error unrelated to CORS: one local recovery, then
	// the transcoder is the only thing left that changes the codecs.
	if !s.mediaRecovered && s.state == StatePlaying {
		s.mediaRecovered = true
		return s.recoverOnce(syncNudge)
	}
	return s.escalateToTranscode()
}

// isTransportError reports whether the error carries a network or CORS
// signature. A fatal fragment-parse failure on a not-yet-relayed stream is
// the classic CORS symptom: the "segment" the engine parsed was an HTML
// error page.
func (s *Session) isTransportError(e models.ErrorEvent) bool {
	if e.Type == models.ErrorTypeNetwork {
		return true
	}
	if e.Type == models.ErrorTypeMedia && e.Detail == models.DetailFragParseError &&
		s.mode == models.DeliveryDirect {
		return true
	}
	return false
}

// escalate consumes the next untried mode in the order, falling through to
// the transcoded terminal fallback, then failure.
func (s *Session) escalate() []Action {
	s.state = StateEscalating

	for s.orderIdx+1 < len(s.resolution.Order) {
		s.orderIdx++
		next := s.resolution.Order[s.orderIdx]
		if !s.tried[next] {
			return s.reattach(next)
		}
	}
	if !s.tried[models.DeliveryTranscoded] {
		return s.reattach(models.DeliveryTranscoded)
	}
	return s.fail("all delivery modes exhausted")
}

// escalateToTranscode jumps straight to the transcoded fallback for codec
// failures, regardless of the precomputed order.
func (s *Session) escalateToTranscode() []Action {
	s.state = StateEscalating
	if !s.tried[models.DeliveryTranscoded] {
		return s.reattach(models.DeliveryTranscoded)
	}
	return s.fail("codec failure after transcode")
}

// reattach fully tears down the current attachment before attaching the
// next mode: two engine instances must never drive the same output.
func (s *Session) reattach(mode models.DeliveryMode) []Action {
	s.escalations++
	s.logger.Info("escalating delivery mode",
		slog.String("session_id", s.ID),
		slog.String("from", s.mode.String()),
		slog.String("to", mode.String()),
		slog.Int("escalations", s.escalations),
	)

	var actions []Action
	if s.attached {
		s.attached = false
		actions = append(actions, Detach{})
	}
	actions = append(actions, s.attach(mode)...)
	return actions
}

// attach binds a delivery mode: picks the attachment tier, resets the
// per-attempt recovery bookkeeping, and emits the attach side effect.
func (s *Session) attach(mode models.DeliveryMode) []Action {
	s.mode = mode
	s.tried[mode] = true
	s.state = StateAttaching
	s.attached = true
	s.attachedAt = time.Now()
	s.continuityLatch = false
	s.mediaRecovered = false
	s.position = 0
	s.tier = s.tierFor(mode)

	url := resolver.StreamURL(s.desc, mode, s.cfg.BaseURL)
	s.logger.Info("attaching",
		slog.String("session_id", s.ID),
		slog.String("mode", mode.String()),
		slog.String("tier", s.tier.String()),
		slog.String("url", httpclient.ObfuscateURLString(url)),
	)
	return []Action{Attach{URL: url, Mode: mode, Tier: s.tier}}
}

// tierFor picks the attachment tier: adaptive engine for HLS, native when
// the platform decodes the container itself, plain element playback last.
// Transcoded output is fragmented MP4, which every target platform plays
// natively.
func (s *Session) tierFor(mode models.DeliveryMode) Tier {
	if mode == models.DeliveryTranscoded {
		return TierNative
	}
	if s.cfg.Resolver.LooksLikeHLS(s.desc) {
		if s.cfg.NativeHLS {
			return TierNative
		}
		return TierAdaptive
	}
	if s.desc.Container == models.ContainerMedia {
		return TierNative
	}
	return TierDirect
}

// fail marks the session failed and surfaces the error. Terminal.
func (s *Session) fail(reason string) []Action {
	s.state = StateFailed
	s.failReason = reason
	s.logger.Error("playback failed",
		slog.String("session_id", s.ID),
		slog.String("reason", reason),
		slog.Int("escalations", s.escalations),
	)
	var actions []Action
	if s.attached {
		s.attached = false
		actions = append(actions, Detach{})
	}
	return append(actions, Fail{Reason: reason})
}
