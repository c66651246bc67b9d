// Package transcode runs one FFmpeg process per request to rewrite a
// stream's audio track into browser-safe AAC while the video track is
// copied untouched. The output is fragmented MP4 piped straight into the
// HTTP response; nothing is staged on disk.
package transcode

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zyp1690/nodecast-tv/internal/config"
	"github.com/zyp1690/nodecast-tv/internal/ffmpeg"
	"github.com/zyp1690/nodecast-tv/internal/httpclient"
)

// ErrBusy is returned by Open when the concurrent process cap is reached.
var ErrBusy = fmt.Errorf("transcoder capacity exhausted")

// Session is one live transcode: a client connection paired with an FFmpeg
// process.
type Session struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	StartedAt time.Time `json:"started_at"`

	cmd  *ffmpeg.Command
	once sync.Once
}

// Kill terminates the session's FFmpeg process. Idempotent: concurrent
// disconnect and shutdown paths may both call it, only one kill is issued.
func (s *Session) Kill() {
	s.once.Do(func() {
		_ = s.cmd.Kill()
	})
}

// Stats returns the process resource snapshot, or nil when unavailable.
func (s *Session) Stats() *ffmpeg.ProcessStats { return s.cmd.ProcessStats() }

// StderrTail returns the recent FFmpeg stderr lines for diagnostics.
func (s *Session) StderrTail() []string { return s.cmd.GetStderrLines() }

// SessionInfo is the API-facing view of a live session.
type SessionInfo struct {
	ID           string               `json:"id"`
	URL          string               `json:"url"`
	StartedAt    time.Time            `json:"started_at"`
	Duration     time.Duration        `json:"duration"`
	ProcessStats *ffmpeg.ProcessStats `json:"process_stats,omitempty"`
	RecentStderr []string             `json:"recent_stderr,omitempty"`
}

// Service owns the FFmpeg binary detection, the concurrency cap, and the
// registry of live sessions.
type Service struct {
	cfg      config.TranscodeConfig
	detector *ffmpeg.BinaryDetector
	logger   *slog.Logger

	// slots is nil when MaxConcurrent is zero (unlimited).
	slots chan struct{}

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewService creates a transcode service.
func NewService(cfg config.TranscodeConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	svc := &Service{
		cfg:      cfg,
		detector: ffmpeg.NewBinaryDetector(cfg.FFmpegPath),
		logger:   logger.With(slog.String("component", "transcode")),
		sessions: make(map[string]*Session),
	}
	if cfg.MaxConcurrent > 0 {
		svc.slots = make(chan struct{}, cfg.MaxConcurrent)
	}
	return svc
}

// Available reports whether FFmpeg can be found and identified.
func (s *Service) Available(ctx context.Context) (*ffmpeg.BinaryInfo, error) {
	return s.detector.Detect(ctx)
}

// Open starts an FFmpeg process for the upstream URL and returns the live
// session. The caller must Stream and then Close the session exactly once.
// Returns ErrBusy when the process cap is reached.
func (s *Service) Open(ctx context.Context, upstreamURL string) (*Session, error) {
	if s.slots != nil {
		select {
		case s.slots <- struct{}{}:
		default:
			return nil, ErrBusy
		}
	}

	info, err := s.detector.Detect(ctx)
	if err != nil {
		s.release()
		return nil, fmt.Errorf("ffmpeg unavailable: %w", err)
	}

	cmd := ffmpeg.NewCommandBuilder(info.FFmpegPath).
		HideBanner().
		Reconnect().
		Input(upstreamURL).
		VideoCodec("copy").
		AudioCodec("aac").
		AudioBitrate(s.cfg.AudioBitrate).
		AudioSampleRate(s.cfg.AudioSampleRate).
		AudioFilter("aresample=async=1").
		MovFlags("+frag_keyframe+empty_moov").
		Format("mp4").
		StderrTailLines(s.cfg.StderrTailLines).
		Output("pipe:1").
		Build()

	session := &Session{
		ID:        uuid.New().String(),
		URL:       upstreamURL,
		StartedAt: time.Now(),
		cmd:       cmd,
	}

	// Spawn now so a broken binary is reported before the response header
	// is committed.
	if err := cmd.Start(ctx); err != nil {
		s.release()
		return nil, err
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()

	s.logger.Info("transcode started",
		slog.String("session_id", session.ID),
		slog.String("url", httpclient.ObfuscateURLString(upstreamURL)),
		slog.String("ffmpeg_version", info.Version),
	)

	return session, nil
}

// Stream pipes the started FFmpeg process's stdout to w until the process
// exits or ctx is cancelled.
//
// An exit after WasKilled is the normal teardown path when the client
// disconnects; only unexpected exits are surfaced as errors.
func (s *Service) Stream(ctx context.Context, session *Session, w io.Writer) error {
	err := session.cmd.Forward(w)

	if err != nil && (session.cmd.WasKilled() || ctx.Err() != nil) {
		s.logger.Debug("transcode process reaped after teardown",
			slog.String("session_id", session.ID),
			slog.String("exit", err.Error()),
		)
		return nil
	}
	if err != nil {
		tail := session.cmd.GetStderrLines()
		last := ""
		if len(tail) > 0 {
			last = tail[len(tail)-1]
		}
		s.logger.Error("transcode process failed",
			slog.String("session_id", session.ID),
			slog.String("error", err.Error()),
			slog.String("last_stderr", last),
		)
	}
	return err
}

// Close kills the session's process if still running, removes it from the
// registry, and frees the concurrency slot. Idempotent per session.
func (s *Service) Close(session *Session) {
	session.Kill()

	s.mu.Lock()
	_, present := s.sessions[session.ID]
	delete(s.sessions, session.ID)
	s.mu.Unlock()

	if present {
		s.release()
		s.logger.Info("transcode finished",
			slog.String("session_id", session.ID),
			slog.Duration("duration", time.Since(session.StartedAt)),
		)
	}
}

// Sessions returns a snapshot of live sessions, oldest first.
func (s *Service) Sessions() []SessionInfo {
	s.mu.RLock()
	out := make([]SessionInfo, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, SessionInfo{
			ID:           session.ID,
			URL:          httpclient.ObfuscateURLString(session.URL),
			StartedAt:    session.StartedAt,
			Duration:     time.Since(session.StartedAt),
			ProcessStats: session.Stats(),
			RecentStderr: session.StderrTail(),
		})
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// Shutdown kills every live session. Called on server stop so no FFmpeg
// process outlives the daemon.
func (s *Service) Shutdown() {
	s.mu.RLock()
	live := make([]*Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		live = append(live, session)
	}
	s.mu.RUnlock()

	for _, session := range live {
		s.Close(session)
	}
}

func (s *Service) release() {
	if s.slots != nil {
		select {
		case <-s.slots:
		default:
		}
	}
}
