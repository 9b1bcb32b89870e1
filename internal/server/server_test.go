package server

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaisavezi/llm-bridge/internal/config"
)

func newTestServer(t *testing.T, upstreamURL string) (*Server, *config.Manager) {
	t.Helper()

	mgr := config.NewManager(t.TempDir())
	require.NoError(t, mgr.Save(&config.Config{
		Host:            config.DefaultHost,
		Port:            config.DefaultPort,
		APIKey:          "sidecar-secret",
		DefaultProvider: "openai",
		Cache:           config.CacheSettings{Backend: "memory"},
		Providers: []config.ProviderSettings{{
			Name:   "openai",
			APIKey: "sk-server-test-0000",
			URL:    upstreamURL,
		}},
	}))

	srv, err := New(mgr, slog.Default())
	require.NoError(t, err)
	return srv, mgr
}

func doRequest(t *testing.T, base, method, path, body string, authed bool) (*http.Response, string) {
	t.Helper()

	req, err := http.NewRequest(method, base+path, strings.NewReader(body))
	require.NoError(t, err)
	if authed {
		req.Header.Set("Authorization", "Bearer sidecar-secret")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(data)
}

func TestServer_Routes(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"pong"},"finish_reason":"stop"}],"usage":{"prompt_tokens":2,"completion_tokens":1}}`)
	}))
	defer upstream.Close()

	srv, _ := newTestServer(t, upstream.URL)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, body := doRequest(t, ts.URL, http.MethodGet, "/health", "", false)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"status":"ok"`)

	resp, _ = doRequest(t, ts.URL, http.MethodPost, "/v1/ask", `{"messages":[{"role":"user","content":"ping"}]}`, false)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body = doRequest(t, ts.URL, http.MethodPost, "/v1/ask", `{"messages":[{"role":"user","content":"ping"}]}`, true)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Contains(t, body, `"content":"pong"`)

	resp, body = doRequest(t, ts.URL, http.MethodPost, "/v1/ask", `{"messages":[{"role":"user","content":"ping"}]}`, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"cached":true`)

	resp, body = doRequest(t, ts.URL, http.MethodGet, "/v1/providers", "", true)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"id":"anthropic"`)

	resp, body = doRequest(t, ts.URL, http.MethodGet, "/metrics", "", false)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "llmb_request_total")
	assert.Contains(t, body, "llmb_cache_total")
	assert.Contains(t, body, "go_goroutines")

	resp, _ = doRequest(t, ts.URL, http.MethodGet, "/v1/ask", "", true)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServer_StreamRoute(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"error":{"message":"overloaded"}}`)
	}))
	defer upstream.Close()

	srv, _ := newTestServer(t, upstream.URL)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, body := doRequest(t, ts.URL, http.MethodPost, "/v1/stream", `{"messages":[{"role":"user","content":"ping"}]}`, true)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "\r\n\r\nX-NON-200-STATUS:Error 503: overloaded", body)
}

func TestServer_Reload(t *testing.T) {
	srv, mgr := newTestServer(t, "https://first.example.test/v1/chat/completions")
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	inspect := `{"messages":[{"role":"user","content":"hi"}]}`
	_, body := doRequest(t, ts.URL, http.MethodPost, "/v1/inspect", inspect, true)
	assert.Contains(t, body, "first.example.test")

	cfg := *mgr.Get()
	cfg.Providers = []config.ProviderSettings{{
		Name:   "openai",
		APIKey: "sk-server-test-0000",
		URL:    "https://second.example.test/v1/chat/completions",
	}}
	require.NoError(t, mgr.Save(&cfg))
	srv.reload(&cfg)

	_, body = doRequest(t, ts.URL, http.MethodPost, "/v1/inspect", inspect, true)
	assert.Contains(t, body, "second.example.test")
}

func TestServer_StopWithoutStart(t *testing.T) {
	srv, _ := newTestServer(t, "")
	assert.NoError(t, srv.Stop())
}
