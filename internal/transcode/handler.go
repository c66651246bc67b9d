package transcode

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/zyp1690/nodecast-tv/internal/httpclient"
	"github.com/zyp1690/nodecast-tv/internal/relay"
)

// Handler serves the raw transcode streaming endpoint. Like the relay it is
// a plain chi handler: FFmpeg spawn failures must produce a real error
// status, which requires the header to still be uncommitted.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler creates a transcode handler.
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service: service,
		logger:  logger.With(slog.String("component", "transcode")),
	}
}

// RegisterChiRoutes mounts the streaming routes on a chi router.
func (h *Handler) RegisterChiRoutes(router chi.Router) {
	router.Get("/stream/transcode", h.handleTranscode)
	router.Options("/stream/transcode", h.handleOptions)
}

func (h *Handler) handleOptions(w http.ResponseWriter, r *http.Request) {
	relay.SetCORSHeaders(w)
	w.WriteHeader(http.StatusNoContent)
}

// handleTranscode streams GET /stream/transcode?url=<upstream> as
// fragmented MP4. The FFmpeg process lives exactly as long as the request:
// the client walking away cancels the request context, which kills the
// process, and the deferred Close reaps whatever the cancel raced with.
func (h *Handler) handleTranscode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	target := r.URL.Query().Get("url")
	if target == "" {
		http.Error(w, "missing url parameter", http.StatusBadRequest)
		return
	}
	if u, err := url.Parse(target); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		http.Error(w, "invalid url parameter", http.StatusBadRequest)
		return
	}

	logger := h.logger.With(slog.String("url", httpclient.ObfuscateURLString(target)))

	session, err := h.service.Open(ctx, target)
	if err != nil {
		if errors.Is(err, ErrBusy) {
			logger.Warn("transcode rejected, at capacity")
			http.Error(w, "transcoder busy", http.StatusServiceUnavailable)
			return
		}
		logger.Error("transcode spawn failed", slog.String("error", err.Error()))
		http.Error(w, "transcoder unavailable", http.StatusInternalServerError)
		return
	}
	defer h.service.Close(session)

	// Kill the process the moment the client goes away rather than waiting
	// for FFmpeg to notice its stdout pipe is dead.
	stop := context.AfterFunc(ctx, session.Kill)
	defer stop()

	relay.SetCORSHeaders(w)
	relay.SetStreamHeaders(w, "transcode")
	w.Header().Set("Content-Type", "video/mp4")

	// The 200 is committed by the first output byte. An exit before any
	// output can then still be reported as a real error status.
	fw := &flushWriter{w: w}
	if err := h.service.Stream(ctx, session, fw); err != nil {
		if !fw.committed {
			logger.Error("transcode produced no output",
				slog.String("session_id", session.ID),
				slog.String("error", err.Error()),
			)
			http.Error(w, "transcode failed to start", http.StatusBadGateway)
			return
		}
		// Header already committed; the dropped connection is the signal.
		logger.Warn("transcode stream ended with error",
			slog.String("session_id", session.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	if !fw.committed {
		// Clean exit with zero output (client vanished immediately).
		w.WriteHeader(http.StatusOK)
	}
}

// flushWriter commits the 200 on the first write and flushes after every
// write so fragments reach the player as FFmpeg emits them.
type flushWriter struct {
	w         http.ResponseWriter
	committed bool
}

func (fw *flushWriter) Write(p []byte) (int, error) {
	if !fw.committed {
		fw.committed = true
		fw.w.WriteHeader(http.StatusOK)
	}
	n, err := fw.w.Write(p)
	if f, ok := fw.w.(http.Flusher); ok && n > 0 {
		f.Flush()
	}
	return n, err
}
