// internal/api/handler/api/dashboard.go
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/newthinker/scalper/internal/api/response"
	"github.com/newthinker/scalper/internal/core"
	"github.com/newthinker/scalper/internal/session"
)

// Controller defines the controls needed from app.App.
type Controller interface {
	SelectPair(label string) (core.Pair, error)
	SetInterval(d time.Duration) error
	Interval() time.Duration
}

// DashboardHandler serves the live snapshot and the dashboard controls.
type DashboardHandler struct {
	sess *session.Session
	ctrl Controller
}

// NewDashboardHandler creates a new dashboard handler.
func NewDashboardHandler(sess *session.Session, ctrl Controller) *DashboardHandler {
	return &DashboardHandler{sess: sess, ctrl: ctrl}
}

// PairRequest is the request body for selecting a pair.
type PairRequest struct {
	Pair string `json:"pair"`
}

// IntervalRequest is the request body for changing the refresh rate.
// Either Interval ("45s") or Seconds may be set.
type IntervalRequest struct {
	Interval string `json:"interval,omitempty"`
	Seconds  int    `json:"seconds,omitempty"`
}

// Snapshot returns the current dashboard state.
func (h *DashboardHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, h.sess.Snapshot())
}

// Pairs returns the selectable pairs and the current selection.
func (h *DashboardHandler) Pairs(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]any{
		"pairs":    h.sess.Pairs(),
		"selected": h.sess.Pair().Label,
	})
}

// SelectPair switches the dashboard to another pair.
func (h *DashboardHandler) SelectPair(w http.ResponseWriter, r *http.Request) {
	var req PairRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, core.WrapError(core.ErrBadRequest, err))
		return
	}
	if req.Pair == "" {
		response.Error(w, http.StatusBadRequest,
			core.WrapError(core.ErrBadRequest, errors.New("pair is required")))
		return
	}

	p, err := h.ctrl.SelectPair(req.Pair)
	if err != nil {
		response.Fail(w, err)
		return
	}

	response.JSON(w, http.StatusOK, map[string]any{
		"pair":    p,
		"message": "pair selected",
	})
}

// SetInterval changes the refresh interval.
func (h *DashboardHandler) SetInterval(w http.ResponseWriter, r *http.Request) {
	var req IntervalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, core.WrapError(core.ErrBadRequest, err))
		return
	}

	d, err := req.duration()
	if err != nil {
		response.Error(w, http.StatusBadRequest, core.WrapError(core.ErrBadRequest, err))
		return
	}

	if err := h.ctrl.SetInterval(d); err != nil {
		response.Fail(w, err)
		return
	}

	response.JSON(w, http.StatusOK, map[string]any{
		"interval": h.ctrl.Interval().String(),
		"seconds":  int(h.ctrl.Interval().Seconds()),
	})
}

func (r IntervalRequest) duration() (time.Duration, error) {
	switch {
	case r.Interval != "":
		return time.ParseDuration(r.Interval)
	case r.Seconds > 0:
		return time.Duration(r.Seconds) * time.Second, nil
	default:
		return 0, errors.New("interval or seconds is required")
	}
}
