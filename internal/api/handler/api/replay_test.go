// internal/api/handler/api/replay_test.go
package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/newthinker/scalper/internal/api/job"
	"github.com/newthinker/scalper/internal/backtest"
	"github.com/newthinker/scalper/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReplayer struct {
	mu      sync.Mutex
	pair    core.Pair
	rng     string
	horizon int
	err     error
}

func (f *fakeReplayer) Replay(ctx context.Context, pair core.Pair, rng string, horizon int) (*backtest.Result, error) {
	f.mu.Lock()
	f.pair, f.rng, f.horizon = pair, rng, horizon
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &backtest.Result{Strategy: "bb_rsi", Pair: pair, Bars: 120, Stats: backtest.Stats{TotalTrades: 3}}, nil
}

func newReplayHandler(t *testing.T, r Replayer) (*ReplayHandler, *job.Store) {
	t.Helper()
	store := job.NewStore(10, time.Hour)
	return NewReplayHandler(store, r, newSession(t)), store
}

func postReplay(h *ReplayHandler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/replays", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.Create(w, req)
	return w
}

func waitDone(t *testing.T, store *job.Store, id string) job.Job {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		j, err := store.Get(id)
		require.NoError(t, err)
		if j.Status.Done() {
			return j
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", id)
	return job.Job{}
}

func TestReplayHandler_Create(t *testing.T) {
	fake := &fakeReplayer{}
	h, store := newReplayHandler(t, fake)

	w := postReplay(h, `{"pair":"GBP/USD","range":"5d","horizon":10}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	data := decodeData(t, w)
	assert.Equal(t, "pending", data["status"])
	assert.Equal(t, "GBP/USD", data["pair"])

	j := waitDone(t, store, data["job_id"].(string))
	assert.Equal(t, job.StatusComplete, j.Status)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, "GBPUSD=X", fake.pair.Symbol)
	assert.Equal(t, "5d", fake.rng)
	assert.Equal(t, 10, fake.horizon)
}

func TestReplayHandler_DefaultsToSelectedPair(t *testing.T) {
	h, _ := newReplayHandler(t, &fakeReplayer{})

	w := postReplay(h, `{}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "EUR/USD", decodeData(t, w)["pair"])
}

func TestReplayHandler_Create_BadRequests(t *testing.T) {
	h, store := newReplayHandler(t, &fakeReplayer{})

	tests := []struct {
		name string
		body string
		code int
		err  string
	}{
		{"malformed", `{`, http.StatusBadRequest, "BAD_REQUEST"},
		{"negative horizon", `{"horizon":-1}`, http.StatusBadRequest, "BAD_REQUEST"},
		{"huge horizon", `{"horizon":100000}`, http.StatusBadRequest, "BAD_REQUEST"},
		{"unknown pair", `{"pair":"XAU/USD"}`, http.StatusNotFound, "PAIR_NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postReplay(h, tt.body)
			assert.Equal(t, tt.code, w.Code)
			assert.Equal(t, tt.err, decodeError(t, w).Code)
		})
	}
	assert.Equal(t, 0, store.Len(), "rejected requests must not create jobs")
}

func TestReplayHandler_FailedJob(t *testing.T) {
	fake := &fakeReplayer{err: core.WrapError(core.ErrNoData, nil)}
	h, store := newReplayHandler(t, fake)

	w := postReplay(h, `{}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	id := decodeData(t, w)["job_id"].(string)
	waitDone(t, store, id)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/replays/"+id, nil)
	req.SetPathValue("id", id)
	w = httptest.NewRecorder()
	h.Get(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "failed", data["status"])
	assert.Equal(t, "NO_DATA", data["error"].(map[string]any)["code"])
	assert.Nil(t, data["result"])
}

func TestReplayHandler_GetAndList(t *testing.T) {
	h, store := newReplayHandler(t, &fakeReplayer{})

	id := decodeData(t, postReplay(h, `{}`))["job_id"].(string)
	waitDone(t, store, id)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/replays/"+id, nil)
	req.SetPathValue("id", id)
	w := httptest.NewRecorder()
	h.Get(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	result := decodeData(t, w)["result"].(map[string]any)
	assert.Equal(t, "bb_rsi", result["strategy"])
	assert.EqualValues(t, 3, result["stats"].(map[string]any)["total_trades"])

	w = httptest.NewRecorder()
	h.List(w, httptest.NewRequest(http.MethodGet, "/api/v1/replays", nil))
	data := decodeData(t, w)
	assert.EqualValues(t, 1, data["count"])
	first := data["jobs"].([]any)[0].(map[string]any)
	assert.Nil(t, first["result"], "list omits results")

	req = httptest.NewRequest(http.MethodGet, "/api/v1/replays/missing", nil)
	req.SetPathValue("id", "missing")
	w = httptest.NewRecorder()
	h.Get(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
