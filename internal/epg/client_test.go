package epg

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zyp1690/nodecast-tv/internal/config"
)

func TestNowNextDisabled(t *testing.T) {
	c := NewClient(config.EPGConfig{}, nil)
	assert.False(t, c.Enabled())

	nn, err := c.NowNext(context.Background(), "ch1")
	require.NoError(t, err)
	assert.Equal(t, "ch1", nn.StreamID)
	assert.Nil(t, nn.Now)
	assert.Nil(t, nn.Next)
}

func TestNowNextFetch(t *testing.T) {
	start := time.Now().Add(-10 * time.Minute).Truncate(time.Second)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/epg/nownext/ch1", r.URL.Path)
		json.NewEncoder(w).Encode(NowNext{
			StreamID: "ch1",
			Now: &Programme{
				Title: "Evening News",
				Start: start,
				Stop:  start.Add(30 * time.Minute),
			},
			Next: &Programme{
				Title: "Weather",
				Start: start.Add(30 * time.Minute),
				Stop:  start.Add(40 * time.Minute),
			},
		})
	}))
	defer server.Close()

	c := NewClient(config.EPGConfig{BaseURL: server.URL}, nil)
	nn, err := c.NowNext(context.Background(), "ch1")
	require.NoError(t, err)
	require.NotNil(t, nn.Now)
	assert.Equal(t, "Evening News", nn.Now.Title)
	require.NotNil(t, nn.Next)
	assert.Equal(t, "Weather", nn.Next.Title)
}

func TestNowNextUnknownStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	c := NewClient(config.EPGConfig{BaseURL: server.URL}, nil)
	nn, err := c.NowNext(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Equal(t, "ghost", nn.StreamID)
	assert.Nil(t, nn.Now)
}

func TestNowNextServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	c := NewClient(config.EPGConfig{BaseURL: server.URL}, nil)
	_, err := c.NowNext(context.Background(), "ch1")
	assert.Error(t, err)
}

func TestProgrammeProgress(t *testing.T) {
	start := time.Date(2026, 8, 31, 20, 0, 0, 0, time.UTC)
	p := Programme{Start: start, Stop: start.Add(time.Hour)}

	assert.Equal(t, 0.0, p.Progress(start.Add(-time.Minute)))
	assert.InDelta(t, 0.5, p.Progress(start.Add(30*time.Minute)), 0.001)
	assert.Equal(t, 1.0, p.Progress(start.Add(2*time.Hour)))

	// Degenerate schedule data.
	assert.Equal(t, 0.0, Programme{Start: start, Stop: start}.Progress(start))
}
