// Package relay proxies upstream stream bytes through this server so the
// player fetches them same-origin. The relay never parses or rewrites the
// payload; manifests, segments, and progressive streams all pass through
// byte for byte.
package relay

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"syscall"

	"github.com/go-chi/chi/v5"

	"github.com/zyp1690/nodecast-tv/internal/httpclient"
	"github.com/zyp1690/nodecast-tv/internal/version"
)

// copyBufferSize is the chunk size for the upstream-to-client copy. Each
// chunk is flushed so live segments reach the player without buffering
// delay.
const copyBufferSize = 32 * 1024

// forwardedHeaders are upstream response headers propagated to the client.
// Content-Length is forwarded when present so progressive downloads report
// size; chunked upstreams simply omit it.
var forwardedHeaders = []string{
	"Content-Type",
	"Content-Length",
	"Content-Range",
	"Accept-Ranges",
	"Cache-Control",
}

// Handler serves the raw relay streaming endpoint. It is a plain chi
// handler rather than an API operation: the response body is an unbounded
// byte stream and error statuses must be writable until the first payload
// byte.
type Handler struct {
	client *httpclient.Client
	logger *slog.Logger
}

// NewHandler creates a relay handler using the given upstream client.
func NewHandler(client *httpclient.Client, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		client: client,
		logger: logger.With(slog.String("component", "relay")),
	}
}

// RegisterChiRoutes mounts the streaming routes on a chi router.
func (h *Handler) RegisterChiRoutes(router chi.Router) {
	router.Get("/stream/relay", h.handleRelay)
	router.Options("/stream/relay", h.handleOptions)
}

// handleOptions answers CORS preflight for players that send one.
func (h *Handler) handleOptions(w http.ResponseWriter, r *http.Request) {
	SetCORSHeaders(w)
	w.WriteHeader(http.StatusNoContent)
}

// handleRelay streams GET /stream/relay?url=<upstream> to the client.
func (h *Handler) handleRelay(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	target := r.URL.Query().Get("url")
	if target == "" {
		http.Error(w, "missing url parameter", http.StatusBadRequest)
		return
	}
	if err := validateTarget(target); err != nil {
		h.logger.Warn("rejected relay target",
			slog.String("url", httpclient.ObfuscateURLString(target)),
			slog.String("error", err.Error()),
		)
		http.Error(w, "invalid url parameter", http.StatusBadRequest)
		return
	}

	logger := h.logger.With(slog.String("url", httpclient.ObfuscateURLString(target)))

	resp, err := h.client.OpenStream(ctx, target)
	if err != nil {
		// Nothing has been written yet, so a real status can still go out.
		status := http.StatusBadGateway
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		logger.Warn("upstream open failed",
			slog.Int("status", status),
			slog.String("error", err.Error()),
		)
		http.Error(w, "upstream unavailable", status)
		return
	}
	defer resp.Body.Close()

	for _, name := range forwardedHeaders {
		if v := resp.Header.Get(name); v != "" {
			w.Header().Set(name, v)
		}
	}
	SetCORSHeaders(w)
	SetStreamHeaders(w, "relay")
	w.WriteHeader(resp.StatusCode)

	written, err := flushCopy(ctx, w, resp.Body)
	if err != nil && !isClientDisconnect(err) {
		// The status line is already on the wire; all that is left is to
		// cut the connection and let the player's error handling decide.
		logger.Warn("relay copy aborted",
			slog.Int64("bytes_written", written),
			slog.String("error", err.Error()),
		)
		return
	}

	logger.Debug("relay finished",
		slog.Int("upstream_status", resp.StatusCode),
		slog.Int64("bytes_written", written),
	)
}

// validateTarget accepts only absolute http(s) URLs with a host.
func validateTarget(target string) error {
	u, err := url.Parse(target)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("unsupported scheme")
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

// flushCopy copies src to w in chunks, flushing after each write so live
// media is not held in server buffers. It stops when src ends, the write
// fails, or ctx is cancelled.
func flushCopy(ctx context.Context, w http.ResponseWriter, src io.Reader) (int64, error) {
	flusher, _ := w.(http.Flusher)
	buf := make([]byte, copyBufferSize)

	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			wn, writeErr := w.Write(buf[:n])
			written += int64(wn)
			if writeErr != nil {
				return written, writeErr
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				return written, nil
			}
			return written, readErr
		}
	}
}

// isClientDisconnect reports whether an error is the client going away
// rather than an upstream or server fault. Channel zapping makes these
// constant noise, so they log at debug only.
func isClientDisconnect(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	if errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return false
	}
	return strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer") ||
		strings.Contains(err.Error(), "client disconnected")
}

// SetCORSHeaders sets the CORS headers for cross-origin streaming.
func SetCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Range")
	w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range")
}

// SetStreamHeaders tags the response with the delivery mode and server
// version for client diagnostics.
func SetStreamHeaders(w http.ResponseWriter, mode string) {
	w.Header().Set("X-Stream-Mode", mode)
	w.Header().Set("X-Nodecast-Version", version.Version)
}
