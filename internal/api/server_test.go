// internal/api/server_test.go
package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/newthinker/scalper/internal/app"
	"github.com/newthinker/scalper/internal/backtest"
	"github.com/newthinker/scalper/internal/config"
	"github.com/newthinker/scalper/internal/core"
	"github.com/newthinker/scalper/internal/history"
	"github.com/newthinker/scalper/internal/live"
	"github.com/newthinker/scalper/internal/metrics"
	"github.com/newthinker/scalper/internal/session"
	"go.uber.org/zap"
)

func newDeps(t *testing.T) Dependencies {
	t.Helper()
	cfg := config.Defaults()
	sess, err := session.New(session.Config{
		Pairs:        cfg.Pairs,
		DefaultPair:  cfg.DefaultPair,
		DisplayLimit: cfg.History.DisplayLimit,
		Interval:     cfg.Refresh.Interval,
	}, history.NewLog(), zap.NewNop())
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}

	return Dependencies{
		App:     app.New(cfg, sess, zap.NewNop()),
		Session: sess,
	}
}

func newServer(t *testing.T, cfg Config, deps Dependencies) *Server {
	t.Helper()
	srv, err := NewServer(cfg, deps, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	return srv
}

func serve(srv *Server, method, path, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestServer_Health(t *testing.T) {
	srv := newServer(t, Config{Host: "localhost", Port: 0}, newDeps(t))

	w := serve(srv, http.MethodGet, "/api/health", "")
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"feed":"starting"`) {
		t.Errorf("expected feed status in body, got %s", w.Body.String())
	}
}

func TestServer_RequiresAppAndSession(t *testing.T) {
	if _, err := NewServer(Config{}, Dependencies{}, nil); err == nil {
		t.Error("expected error without app and session")
	}
}

func TestServer_APIAuth_Required(t *testing.T) {
	srv := newServer(t, Config{Host: "localhost", APIKey: "test-key"}, newDeps(t))

	w := serve(srv, http.MethodGet, "/api/v1/snapshot", "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without key, got %d", w.Code)
	}

	// Health stays open
	w = serve(srv, http.MethodGet, "/api/health", "")
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 for health, got %d", w.Code)
	}
}

func TestServer_APIAuth_ValidKey(t *testing.T) {
	srv := newServer(t, Config{Host: "localhost", APIKey: "test-key"}, newDeps(t))

	for _, path := range []string{
		"/api/v1/snapshot",
		"/api/v1/pairs",
		"/api/v1/history",
		"/api/v1/journal",
		"/api/v1/archives",
		"/api/v1/stats",
	} {
		w := serve(srv, http.MethodGet, path, "test-key")
		if w.Code != http.StatusOK {
			t.Errorf("%s: expected 200 with key, got %d", path, w.Code)
		}
	}
}

func TestServer_APIAuth_Disabled(t *testing.T) {
	// Empty APIKey = disabled auth
	srv := newServer(t, Config{Host: "localhost"}, newDeps(t))

	w := serve(srv, http.MethodGet, "/api/v1/snapshot", "")
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 with disabled auth, got %d", w.Code)
	}
}

func TestServer_MethodNotAllowed(t *testing.T) {
	srv := newServer(t, Config{Host: "localhost"}, newDeps(t))

	w := serve(srv, http.MethodGet, "/api/v1/history/clear", "")
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", w.Code)
	}
}

func TestServer_WebRoutes(t *testing.T) {
	srv := newServer(t, Config{Host: "localhost"}, newDeps(t))

	for _, path := range []string{"/", "/history", "/partials/live"} {
		w := serve(srv, http.MethodGet, path, "")
		if w.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, w.Code)
		}
	}

	w := serve(srv, http.MethodGet, "/unknown", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown path, got %d", w.Code)
	}
}

type stubReplayer struct{}

func (stubReplayer) Replay(ctx context.Context, pair core.Pair, rng string, horizon int) (*backtest.Result, error) {
	return &backtest.Result{Pair: pair}, nil
}

func TestServer_ReplayRoutes(t *testing.T) {
	srv := newServer(t, Config{Host: "localhost"}, newDeps(t))
	if w := serve(srv, http.MethodGet, "/api/v1/replays", ""); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 without a replayer, got %d", w.Code)
	}

	deps := newDeps(t)
	deps.Replayer = stubReplayer{}
	srv = newServer(t, Config{Host: "localhost"}, deps)

	if w := serve(srv, http.MethodGet, "/api/v1/replays", ""); w.Code != http.StatusOK {
		t.Errorf("expected 200 listing replays, got %d", w.Code)
	}
	if w := serve(srv, http.MethodGet, "/api/v1/replays/unknown", ""); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown job, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/replays", strings.NewReader(`{"range":"1d"}`))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusAccepted {
		t.Errorf("expected 202 starting a replay, got %d", w.Code)
	}
}

func TestServer_Metrics(t *testing.T) {
	deps := newDeps(t)
	deps.Metrics = metrics.NewRegistry()
	srv := newServer(t, Config{Host: "localhost", MetricsEnabled: true}, deps)

	serve(srv, http.MethodGet, "/api/health", "")

	w := serve(srv, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body, _ := io.ReadAll(w.Body)
	if !strings.Contains(string(body), "http_requests_total") {
		t.Error("expected http_requests_total in metrics output")
	}
}

func TestServer_MetricsDisabled(t *testing.T) {
	deps := newDeps(t)
	deps.Metrics = metrics.NewRegistry()
	srv := newServer(t, Config{Host: "localhost", MetricsEnabled: false}, deps)

	w := serve(srv, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 with metrics disabled, got %d", w.Code)
	}
}

func TestServer_WebSocketThroughMiddleware(t *testing.T) {
	deps := newDeps(t)
	deps.Metrics = metrics.NewRegistry()
	hub := live.NewHub(zap.NewNop())
	defer hub.Close()
	deps.Live = hub

	srv := newServer(t, Config{Host: "localhost"}, deps)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(time.Second)
	for hub.ClientCount() != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.ClientCount() != 1 {
		t.Errorf("expected 1 client, got %d", hub.ClientCount())
	}
}
