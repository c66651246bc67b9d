package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingOutput struct {
	Body struct {
		Message string `json:"message"`
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return NewServer(DefaultServerConfig(), nil, "test")
}

func TestServer_APIOperation(t *testing.T) {
	srv := newTestServer(t)

	huma.Register(srv.API(), huma.Operation{
		OperationID: "ping",
		Method:      "GET",
		Path:        "/api/v1/ping",
	}, func(ctx context.Context, input *struct{}) (*pingOutput, error) {
		out := &pingOutput{}
		out.Body.Message = "pong"
		return out, nil
	})

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/ping")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Message string `json:"message"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "pong", body.Message)

	// Middleware applies to API routes.
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestServer_RawChiRouteBesideAPI(t *testing.T) {
	srv := newTestServer(t)

	srv.Router().Get("/stream/echo", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("raw"))
	})

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/stream/echo")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "raw", string(body))
}

func TestServer_OpenAPISpecServed(t *testing.T) {
	srv := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/openapi.json")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "nodecast API")
}

func TestServer_ConfiguredCORSOrigins(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.CORSOrigins = []string{"http://tv.example"}
	srv := NewServer(cfg, nil, "test")

	srv.Router().Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	get := func(origin string) *http.Response {
		req, err := http.NewRequest(http.MethodGet, ts.URL+"/ping", nil)
		require.NoError(t, err)
		req.Header.Set("Origin", origin)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp
	}

	allowed := get("http://tv.example")
	assert.Equal(t, "http://tv.example", allowed.Header.Get("Access-Control-Allow-Origin"))

	denied := get("http://evil.example")
	assert.Empty(t, denied.Header.Get("Access-Control-Allow-Origin"))
}

func TestServer_PanicIsContained(t *testing.T) {
	srv := newTestServer(t)

	srv.Router().Get("/boom", func(w http.ResponseWriter, r *http.Request) {
		panic("handler exploded")
	})

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/boom")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}
