package playback

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zyp1690/nodecast-tv/internal/models"
	"github.com/zyp1690/nodecast-tv/internal/resolver"
)

func newTestSession(t *testing.T, desc models.StreamDescriptor, st models.Settings, engineRecovery bool) *Session {
	t.Helper()
	cfg := Config{
		Resolver:       resolver.New(resolver.DefaultConfig(), nil),
		BaseURL:        "http://nodecast.local:8080",
		EngineRecovery: engineRecovery,
	}
	return NewSession(cfg, desc, st)
}

func hlsDescriptor() models.StreamDescriptor {
	return models.StreamDescriptor{
		URL:      "http://origin.example.com/live/ch1.m3u8",
		Kind:     models.SourceKindHLS,
		StreamID: "ch1",
	}
}

// startPlaying drives a fresh session to the playing state.
func startPlaying(t *testing.T, s *Session) {
	t.Helper()
	actions := s.Start()
	require.NotEmpty(t, actions)
	require.IsType(t, Attach{}, actions[0])
	require.Equal(t, StateAttaching, s.State())

	s.HandleEvent(models.ManifestParsedEvent{Levels: 1})
	require.Equal(t, StatePlaying, s.State())
}

func kinds(actions []Action) []string {
	out := make([]string, 0, len(actions))
	for _, a := range actions {
		out = append(out, a.ActionKind())
	}
	return out
}

func TestSessionStartAttachesInitialMode(t *testing.T) {
	s := newTestSession(t, hlsDescriptor(), models.DefaultSettings(), true)

	actions := s.Start()
	require.Len(t, actions, 1)

	attach, ok := actions[0].(Attach)
	require.True(t, ok)
	assert.Equal(t, models.DeliveryDirect, attach.Mode)
	assert.Equal(t, "http://origin.example.com/live/ch1.m3u8", attach.URL)
	assert.Equal(t, TierAdaptive, attach.Tier)
	assert.Equal(t, StateAttaching, s.State())
	assert.False(t, s.AttachedAt().IsZero())
}

func TestSessionReadyNotifiesOnce(t *testing.T) {
	s := newTestSession(t, hlsDescriptor(), models.DefaultSettings(), true)
	s.Start()

	actions := s.HandleEvent(models.ManifestParsedEvent{Levels: 2})
	require.Equal(t, []string{"notify_playing", "fetch_now_playing"}, kinds(actions))
	assert.Equal(t, StatePlaying, s.State())

	// Duplicate readiness events while already playing are inert.
	assert.Empty(t, s.HandleEvent(models.FirstFrameEvent{}))
}

func TestSessionContinuitySequence(t *testing.T) {
	// Counters 0,0,1,1,2: the first observation latches, each change is a
	// splice, repeats are not. Exactly two corrective actions.
	s := newTestSession(t, hlsDescriptor(), models.DefaultSettings(), true)
	startPlaying(t, s)

	var corrective int
	for _, c := range []int{0, 0, 1, 1, 2} {
		for _, a := range s.HandleEvent(models.FragmentEvent{Continuity: c}) {
			switch a.(type) {
			case RecoverMedia, NudgeSeek:
				corrective++
			}
		}
	}
	assert.Equal(t, 2, corrective)
	assert.Equal(t, 2, s.RecoveryActions())
	assert.Equal(t, StatePlaying, s.State())
}

func TestSessionDiscontinuityNudgeWithoutEngineRecovery(t *testing.T) {
	s := newTestSession(t, hlsDescriptor(), models.DefaultSettings(), false)
	startPlaying(t, s)
	s.HandleEvent(models.ProgressEvent{Position: 30 * time.Second})

	s.HandleEvent(models.FragmentEvent{Continuity: 0})
	actions := s.HandleEvent(models.FragmentEvent{Continuity: 1})
	require.Len(t, actions, 1)

	nudge, ok := actions[0].(NudgeSeek)
	require.True(t, ok)
	assert.Equal(t, time.Second, nudge.Offset)
}

func TestSessionNonFatalErrorRecoversInPlace(t *testing.T) {
	s := newTestSession(t, hlsDescriptor(), models.DefaultSettings(), true)
	startPlaying(t, s)

	actions := s.HandleEvent(models.ErrorEvent{
		Type:   models.ErrorTypeMedia,
		Fatal:  false,
		Detail: models.DetailBufferStalled,
	})
	require.Equal(t, []string{"recover_media"}, kinds(actions))
	assert.Equal(t, StatePlaying, s.State())
	assert.Zero(t, s.Escalations())
}

func TestSessionNetworkFatalEscalatesToRelay(t *testing.T) {
	s := newTestSession(t, hlsDescriptor(), models.DefaultSettings(), true)
	startPlaying(t, s)

	actions := s.HandleEvent(models.ErrorEvent{
		Type:   models.ErrorTypeNetwork,
		Fatal:  true,
		Detail: models.DetailManifestLoadError,
	})
	require.Equal(t, []string{"detach", "attach"}, kinds(actions))

	attach := actions[1].(Attach)
	assert.Equal(t, models.DeliveryRelayed, attach.Mode)
	assert.Contains(t, attach.URL, "/stream/relay?url=")
	assert.Equal(t, 1, s.Escalations())
	assert.Equal(t, StateAttaching, s.State())
}

func TestSessionFragParseOnDirectTreatedAsTransport(t *testing.T) {
	// A fatal fragment parse failure before relay is the CORS signature:
	// the parsed "segment" was an HTML error page.
	s := newTestSession(t, hlsDescriptor(), models.DefaultSettings(), true)
	startPlaying(t, s)

	actions := s.HandleEvent(models.ErrorEvent{
		Type:   models.ErrorTypeMedia,
		Fatal:  true,
		Detail: models.DetailFragParseError,
	})
	require.Equal(t, []string{"detach", "attach"}, kinds(actions))
	assert.Equal(t, models.DeliveryRelayed, actions[1].(Attach).Mode)
}

func TestSessionCodecFatalRecoversOnceThenTranscodes(t *testing.T) {
	s := newTestSession(t, hlsDescriptor(), models.DefaultSettings(), true)
	startPlaying(t, s)

	first := s.HandleEvent(models.ErrorEvent{
		Type:   models.ErrorTypeMedia,
		Fatal:  true,
		Detail: models.DetailBufferAppendError,
	})
	require.Equal(t, []string{"recover_media"}, kinds(first))
	assert.Equal(t, models.DeliveryDirect, s.Mode())

	second := s.HandleEvent(models.ErrorEvent{
		Type:   models.ErrorTypeMedia,
		Fatal:  true,
		Detail: models.DetailBufferAppendError,
	})
	require.Equal(t, []string{"detach", "attach"}, kinds(second))

	attach := second[1].(Attach)
	assert.Equal(t, models.DeliveryTranscoded, attach.Mode)
	assert.Equal(t, TierNative, attach.Tier)
	assert.Contains(t, attach.URL, "/stream/transcode?url=")
}

func TestSessionExhaustionTerminates(t *testing.T) {
	// Direct, relayed, then the transcoded fallback; a fourth failure is
	// terminal with no further attach.
	s := newTestSession(t, hlsDescriptor(), models.DefaultSettings(), true)
	startPlaying(t, s)

	netFatal := models.ErrorEvent{Type: models.ErrorTypeNetwork, Fatal: true}

	seen := []models.DeliveryMode{s.Mode()}
	for i := 0; i < 2; i++ {
		actions := s.HandleEvent(netFatal)
		require.Equal(t, []string{"detach", "attach"}, kinds(actions))
		seen = append(seen, actions[1].(Attach).Mode)
		s.HandleEvent(models.ManifestParsedEvent{Levels: 1})
	}
	assert.Equal(t, []models.DeliveryMode{
		models.DeliveryDirect,
		models.DeliveryRelayed,
		models.DeliveryTranscoded,
	}, seen)

	final := s.HandleEvent(netFatal)
	require.Equal(t, []string{"detach", "fail"}, kinds(final))
	assert.Equal(t, StateFailed, s.State())
	assert.NotEmpty(t, s.FailReason())

	// Terminal: later events produce nothing.
	assert.Empty(t, s.HandleEvent(netFatal))
	assert.Empty(t, s.HandleEvent(models.FragmentEvent{Continuity: 7}))
}

func TestSessionNoModeRetried(t *testing.T) {
	s := newTestSession(t, hlsDescriptor(), models.DefaultSettings(), true)
	startPlaying(t, s)

	netFatal := models.ErrorEvent{Type: models.ErrorTypeNetwork, Fatal: true}
	attached := map[models.DeliveryMode]int{s.Mode(): 1}
	for {
		actions := s.HandleEvent(netFatal)
		if s.State() == StateFailed {
			break
		}
		for _, a := range actions {
			if at, ok := a.(Attach); ok {
				attached[at.Mode]++
			}
		}
		s.HandleEvent(models.ManifestParsedEvent{Levels: 1})
	}
	for mode, n := range attached {
		assert.Equal(t, 1, n, "mode %s attached more than once", mode)
	}
}

func TestSessionForceTranscodeAttachesTranscodedDirectly(t *testing.T) {
	st := models.DefaultSettings()
	st.ForceTranscode = true
	s := newTestSession(t, hlsDescriptor(), st, true)

	actions := s.Start()
	require.Len(t, actions, 1)
	attach := actions[0].(Attach)
	assert.Equal(t, models.DeliveryTranscoded, attach.Mode)
	assert.Equal(t, TierNative, attach.Tier)

	s.HandleEvent(models.FirstFrameEvent{})
	require.Equal(t, StatePlaying, s.State())

	// Transcoded already tried; a network failure is terminal.
	final := s.HandleEvent(models.ErrorEvent{Type: models.ErrorTypeNetwork, Fatal: true})
	require.Equal(t, []string{"detach", "fail"}, kinds(final))
	assert.Equal(t, StateFailed, s.State())
}

func TestSessionRelayHostStartsRelayed(t *testing.T) {
	desc := models.StreamDescriptor{
		URL:      "https://service-stitcher.clusters.pluto.tv/stitch/hls/channel/5f12m/master.m3u8",
		Kind:     models.SourceKindHLS,
		StreamID: "pluto-5f12m",
	}
	s := newTestSession(t, desc, models.DefaultSettings(), true)

	actions := s.Start()
	require.Len(t, actions, 1)
	attach := actions[0].(Attach)
	assert.Equal(t, models.DeliveryRelayed, attach.Mode)
	assert.Contains(t, attach.URL, "/stream/relay?url=")

	s.HandleEvent(models.ManifestParsedEvent{Levels: 3})
	require.Equal(t, StatePlaying, s.State())

	// Fatal codec failure on the relayed stream: one in-place recovery,
	// then the transcoded fallback, never a retry of relayed.
	fatalMedia := models.ErrorEvent{
		Type:   models.ErrorTypeMedia,
		Fatal:  true,
		Detail: models.DetailBufferAppendError,
	}
	require.Equal(t, []string{"recover_media"}, kinds(s.HandleEvent(fatalMedia)))

	second := s.HandleEvent(fatalMedia)
	require.Equal(t, []string{"detach", "attach"}, kinds(second))
	assert.Equal(t, models.DeliveryTranscoded, second[1].(Attach).Mode)
}

func TestSessionStopDetachesAndSilencesEvents(t *testing.T) {
	s := newTestSession(t, hlsDescriptor(), models.DefaultSettings(), true)
	startPlaying(t, s)

	actions := s.Stop()
	require.Equal(t, []string{"detach"}, kinds(actions))
	assert.Equal(t, StateIdle, s.State())

	// In-flight events from the torn-down pipeline must not trigger
	// recovery against a stream that is no longer attached.
	assert.Empty(t, s.HandleEvent(models.ErrorEvent{Type: models.ErrorTypeNetwork, Fatal: true}))
	assert.Empty(t, s.HandleEvent(models.FragmentEvent{Continuity: 3}))
	assert.Empty(t, s.Start())
}

func TestSessionStopBeforeStart(t *testing.T) {
	s := newTestSession(t, hlsDescriptor(), models.DefaultSettings(), true)
	assert.Empty(t, s.Stop())
	assert.Equal(t, StateIdle, s.State())
}

func TestSessionMPEGTSUsesDirectTier(t *testing.T) {
	desc := models.StreamDescriptor{
		URL:      "http://origin.example.com/live/ch2.ts",
		Kind:     models.SourceKindMPEGTS,
		StreamID: "ch2",
	}
	s := newTestSession(t, desc, models.DefaultSettings(), true)

	actions := s.Start()
	require.Len(t, actions, 1)
	assert.Equal(t, TierDirect, actions[0].(Attach).Tier)
}

func TestSessionNativeHLSDemotesAdaptiveTier(t *testing.T) {
	cfg := Config{
		Resolver:  resolver.New(resolver.DefaultConfig(), nil),
		BaseURL:   "http://nodecast.local:8080",
		NativeHLS: true,
	}
	s := NewSession(cfg, hlsDescriptor(), models.DefaultSettings())

	actions := s.Start()
	require.Len(t, actions, 1)
	assert.Equal(t, TierNative, actions[0].(Attach).Tier)
}
