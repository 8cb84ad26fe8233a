package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/X-26-Race-Engineering/X-26-iSpotter/internal/bus"
	"github.com/X-26-Race-Engineering/X-26-iSpotter/internal/history"
	"github.com/X-26-Race-Engineering/X-26-iSpotter/internal/metrics"
	"github.com/X-26-Race-Engineering/X-26-iSpotter/internal/sampler"
	"github.com/X-26-Race-Engineering/X-26-iSpotter/internal/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type steadySource struct{}

func (steadySource) Name() string                   { return "steady" }
func (steadySource) Open(ctx context.Context) error { return nil }
func (steadySource) Close() error                   { return nil }
func (steadySource) Poll(ctx context.Context) (map[string]any, error) {
	return map[string]any{"speed": 100.0, "rpm": 6000, "on_track": true}, nil
}

type testEnv struct {
	bus     *bus.Bus
	stream  *stream.Controller
	history *history.Buffer
	metrics *metrics.Metrics
	server  *Server
	http    *httptest.Server
}

func newTestEnv(t *testing.T, busOpts bus.Options) *testEnv {
	t.Helper()
	env := &testEnv{metrics: metrics.New(), history: history.New(32)}
	busOpts.Metrics = env.metrics
	env.bus = bus.New(busOpts)
	env.stream = stream.New(func(lastSeq uint64) (*sampler.Sampler, error) {
		return sampler.New(steadySource{}, env.bus, sampler.Options{
			Rate:     200,
			StartSeq: lastSeq,
			Observer: env.history.Add,
			Metrics:  env.metrics,
		})
	}, env.bus)
	env.server = NewServer(Options{Port: 5000}, env.bus, env.stream, env.history, env.metrics)

	mux := http.NewServeMux()
	env.server.SetupRoutes(mux)
	env.http = httptest.NewServer(securityHeaders(mux))
	t.Cleanup(func() {
		_ = env.stream.Stop()
		env.http.Close()
	})
	return env
}

func (e *testEnv) do(t *testing.T, method, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.http.URL+path, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestSecurityHeaders(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	securityHeaders(inner).ServeHTTP(rec, req)

	want := map[string]string{
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "DENY",
		"X-XSS-Protection":        "1; mode=block",
		"Content-Security-Policy": "default-src 'self'",
	}

	for header, expected := range want {
		if got := rec.Header().Get(header); got != expected {
			t.Errorf("header %s = %q, want %q", header, got, expected)
		}
	}
}

func TestCheckOrigin(t *testing.T) {
	open := NewServer(Options{}, nil, nil, nil, nil)
	locked := NewServer(Options{AllowedOrigins: []string{"https://pit.example.com", " "}}, nil, nil, nil, nil)

	tests := []struct {
		name   string
		server *Server
		origin string
		host   string
		want   bool
	}{
		{"NoOrigin", open, "", "dash:5000", true},
		{"SameHost", open, "http://dash:5000", "dash:5000", true},
		{"Localhost", open, "http://localhost:3000", "dash:5000", true},
		{"Loopback", open, "http://127.0.0.1:8080", "dash:5000", true},
		{"IPv6Loopback", open, "http://[::1]:8080", "dash:5000", true},
		{"Foreign", open, "http://evil.example.com", "dash:5000", false},
		{"Garbage", open, "::::", "dash:5000", false},
		{"Allowed", locked, "https://pit.example.com", "dash:5000", true},
		{"AllowedHostOtherScheme", locked, "http://pit.example.com", "dash:5000", true},
		{"NotAllowed", locked, "http://localhost:3000", "dash:5000", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ws", nil)
			req.Host = tt.host
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if got := tt.server.checkOrigin(req); got != tt.want {
				t.Errorf("checkOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}
}

func TestHealth_Idle(t *testing.T) {
	env := newTestEnv(t, bus.Options{})

	resp := env.do(t, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[map[string]any](t, resp)

	assert.Equal(t, "running", got["status"])
	assert.Equal(t, serverName, got["server"])
	assert.Equal(t, 5000.0, got["port"])
	assert.Equal(t, false, got["stream_active"])
	assert.Equal(t, "disconnected", got["session"])
	assert.NotContains(t, got, "source")
}

func TestStreamLifecycle(t *testing.T) {
	env := newTestEnv(t, bus.Options{})

	resp := env.do(t, http.MethodPost, "/api/stream/start")
	assert.Equal(t, "success", decode[StreamResponse](t, resp).Status)
	resp = env.do(t, http.MethodPost, "/api/stream/start")
	assert.Equal(t, "already_running", decode[StreamResponse](t, resp).Status)

	status := decode[StreamStatusResponse](t, env.do(t, http.MethodGet, "/api/stream/status"))
	assert.True(t, status.IsRunning)
	assert.Equal(t, "active", status.Status)
	require.NotNil(t, status.Since)

	require.Eventually(t, func() bool { return env.history.Len() >= 3 }, 5*time.Second, 5*time.Millisecond)

	resp = env.do(t, http.MethodGet, "/api/snapshot/latest")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	latest := decode[map[string]any](t, resp)
	fields := latest["fields"].(map[string]any)
	assert.Equal(t, 100.0, fields["speed"])

	resp = env.do(t, http.MethodGet, "/api/history?count=2")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	hist := decode[map[string]any](t, resp)
	assert.Equal(t, 2.0, hist["count"])

	health := decode[map[string]any](t, env.do(t, http.MethodGet, "/health"))
	assert.Equal(t, true, health["stream_active"])
	assert.Equal(t, "live", health["session"])
	assert.Contains(t, health, "source")

	resp = env.do(t, http.MethodPost, "/api/stream/stop")
	assert.Equal(t, "success", decode[StreamResponse](t, resp).Status)
	resp = env.do(t, http.MethodPost, "/api/stream/stop")
	assert.Equal(t, "not_running", decode[StreamResponse](t, resp).Status)

	status = decode[StreamStatusResponse](t, env.do(t, http.MethodGet, "/api/stream/status"))
	assert.False(t, status.IsRunning)
	assert.Equal(t, "inactive", status.Status)

	stats := decode[map[string]any](t, env.do(t, http.MethodGet, "/api/stats"))
	assert.Greater(t, stats["published"].(float64), 0.0)
	assert.Equal(t, "drop_oldest", stats["overrunPolicy"])
}

func TestStreamRoutes_RejectGet(t *testing.T) {
	env := newTestEnv(t, bus.Options{})
	assert.Equal(t, http.StatusMethodNotAllowed, env.do(t, http.MethodGet, "/api/stream/start").StatusCode)
	assert.Equal(t, http.StatusMethodNotAllowed, env.do(t, http.MethodGet, "/api/stream/stop").StatusCode)
	assert.False(t, env.stream.Running())
}

func TestHistory_EmptyAndInvalid(t *testing.T) {
	env := newTestEnv(t, bus.Options{})
	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodGet, "/api/snapshot/latest").StatusCode)
	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodGet, "/api/history").StatusCode)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/history?count=abc").StatusCode)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/history?count=-1").StatusCode)
}
