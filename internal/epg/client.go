// Package epg fetches programme guide data from an external EPG service.
// Guide data is decoration for the player overlay; every failure here is
// non-fatal and playback proceeds without it.
package epg

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/zyp1690/nodecast-tv/internal/config"
	"github.com/zyp1690/nodecast-tv/internal/httpclient"
)

// Programme is one guide entry.
type Programme struct {
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Start       time.Time `json:"start"`
	Stop        time.Time `json:"stop"`
}

// Progress returns how far through the programme now is, in [0,1].
func (p Programme) Progress(now time.Time) float64 {
	total := p.Stop.Sub(p.Start)
	if total <= 0 {
		return 0
	}
	elapsed := now.Sub(p.Start)
	switch {
	case elapsed < 0:
		return 0
	case elapsed > total:
		return 1
	default:
		return float64(elapsed) / float64(total)
	}
}

// NowNext is the current and upcoming programme for a stream.
type NowNext struct {
	StreamID string     `json:"stream_id"`
	Now      *Programme `json:"now,omitempty"`
	Next     *Programme `json:"next,omitempty"`
}

// Client queries the EPG service.
type Client struct {
	baseURL string
	http    *httpclient.Client
	logger  *slog.Logger
}

// NewClient creates an EPG client. An empty base URL disables lookups:
// NowNext then always returns an empty result.
func NewClient(cfg config.EPGConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	httpCfg := httpclient.DefaultConfig()
	if cfg.Timeout > 0 {
		httpCfg.ConnectTimeout = cfg.Timeout
	}
	// Guide data is overlay decoration; a failed lookup is repeated on the
	// next channel change anyway, so retry latency buys nothing.
	httpCfg.RetryAttempts = 0
	return &Client{
		baseURL: cfg.BaseURL,
		http:    httpclient.New(httpCfg),
		logger:  logger.With(slog.String("component", "epg")),
	}
}

// Enabled reports whether an EPG endpoint is configured.
func (c *Client) Enabled() bool { return c.baseURL != "" }

// NowNext fetches the current and next programme for a stream. A disabled
// client returns an empty result and no error.
func (c *Client) NowNext(ctx context.Context, streamID string) (*NowNext, error) {
	if !c.Enabled() {
		return &NowNext{StreamID: streamID}, nil
	}

	endpoint := fmt.Sprintf("%s/api/v1/epg/nownext/%s", c.baseURL, url.PathEscape(streamID))
	resp, err := c.http.Get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("fetching now/next: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		// Unknown stream: no guide data, not an error.
		return &NowNext{StreamID: streamID}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("epg service returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading epg response: %w", err)
	}

	var nn NowNext
	if err := json.Unmarshal(body, &nn); err != nil {
		return nil, fmt.Errorf("decoding epg response: %w", err)
	}
	if nn.StreamID == "" {
		nn.StreamID = streamID
	}

	c.logger.Debug("now/next fetched",
		slog.String("stream_id", streamID),
		slog.Bool("has_now", nn.Now != nil),
		slog.Bool("has_next", nn.Next != nil),
	)
	return &nn, nil
}
