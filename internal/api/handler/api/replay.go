// internal/api/handler/api/replay.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/newthinker/scalper/internal/api/job"
	"github.com/newthinker/scalper/internal/api/response"
	"github.com/newthinker/scalper/internal/backtest"
	"github.com/newthinker/scalper/internal/core"
	"github.com/newthinker/scalper/internal/session"
)

const (
	replayTimeout = 2 * time.Minute
	maxHorizon    = 500
)

// Replayer runs a historical replay for one pair.
type Replayer interface {
	Replay(ctx context.Context, pair core.Pair, rng string, horizon int) (*backtest.Result, error)
}

// ReplayRequest is the request body for starting a replay.
type ReplayRequest struct {
	Pair    string `json:"pair"`
	Range   string `json:"range"`
	Horizon int    `json:"horizon"`
}

// ReplayHandler runs replays as background jobs.
type ReplayHandler struct {
	jobs     *job.Store
	replayer Replayer
	sess     *session.Session
	timeout  time.Duration
}

// NewReplayHandler creates a new replay handler.
func NewReplayHandler(jobs *job.Store, replayer Replayer, sess *session.Session) *ReplayHandler {
	return &ReplayHandler{
		jobs:     jobs,
		replayer: replayer,
		sess:     sess,
		timeout:  replayTimeout,
	}
}

// Create validates the request and starts a replay job. An empty pair
// means the currently selected one.
func (h *ReplayHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req ReplayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Fail(w, core.WrapError(core.ErrBadRequest, err))
		return
	}

	if req.Horizon < 0 || req.Horizon > maxHorizon {
		response.Fail(w, core.WrapError(core.ErrBadRequest,
			fmt.Errorf("horizon must be between 0 and %d", maxHorizon)))
		return
	}

	pair := h.sess.Pair()
	if req.Pair != "" {
		var ok bool
		if pair, ok = h.findPair(req.Pair); !ok {
			response.Fail(w, core.WrapError(core.ErrPairNotFound, fmt.Errorf("%q", req.Pair)))
			return
		}
	}

	j := h.jobs.Create("replay")
	go h.run(j.ID, pair, req.Range, req.Horizon)

	response.JSON(w, http.StatusAccepted, map[string]any{
		"job_id": j.ID,
		"status": j.Status,
		"pair":   pair.Label,
	})
}

func (h *ReplayHandler) findPair(label string) (core.Pair, bool) {
	for _, p := range h.sess.Pairs() {
		if p.Label == label {
			return p, true
		}
	}
	return core.Pair{}, false
}

// run executes the replay and updates job status.
func (h *ReplayHandler) run(jobID string, pair core.Pair, rng string, horizon int) {
	h.jobs.Update(jobID, func(j *job.Job) {
		j.Status = job.StatusRunning
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	result, err := h.replayer.Replay(ctx, pair, rng, horizon)

	if err != nil {
		h.jobs.Update(jobID, func(j *job.Job) {
			j.Status = job.StatusFailed
			j.Error = asCoreError(err)
		})
		return
	}

	h.jobs.Update(jobID, func(j *job.Job) {
		j.Status = job.StatusComplete
		j.Result = result
	})
}

// Get returns the status of a replay job, with its result once complete.
func (h *ReplayHandler) Get(w http.ResponseWriter, r *http.Request) {
	j, err := h.jobs.Get(r.PathValue("id"))
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, view(j, true))
}

// List returns all held replay jobs without their results.
func (h *ReplayHandler) List(w http.ResponseWriter, r *http.Request) {
	jobs := h.jobs.List()
	out := make([]map[string]any, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, view(j, false))
	}
	response.JSON(w, http.StatusOK, map[string]any{
		"jobs":  out,
		"count": len(out),
	})
}

func view(j job.Job, withResult bool) map[string]any {
	resp := map[string]any{
		"job_id":     j.ID,
		"status":     j.Status,
		"created_at": j.CreatedAt,
		"updated_at": j.UpdatedAt,
	}
	if withResult && j.Status == job.StatusComplete {
		resp["result"] = j.Result
	}
	if j.Status == job.StatusFailed && j.Error != nil {
		detail := map[string]string{
			"code":    j.Error.Code,
			"message": j.Error.Message,
		}
		if j.Error.Cause != nil {
			detail["cause"] = j.Error.Cause.Error()
		}
		resp["error"] = detail
	}
	return resp
}

// asCoreError keeps a core error code when one is wrapped in err.
func asCoreError(err error) *core.Error {
	var ce *core.Error
	if errors.As(err, &ce) {
		return core.WrapError(ce, err)
	}
	return core.WrapError(core.ErrCollectorFailed, err)
}
