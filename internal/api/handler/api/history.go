// internal/api/handler/api/history.go
package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/newthinker/scalper/internal/api/response"
	"github.com/newthinker/scalper/internal/core"
	"github.com/newthinker/scalper/internal/history"
	"github.com/newthinker/scalper/internal/session"
)

// HistoryHandler handles signal history API requests.
type HistoryHandler struct {
	sess *session.Session
}

// NewHistoryHandler creates a new history handler.
func NewHistoryHandler(sess *session.Session) *HistoryHandler {
	return &HistoryHandler{sess: sess}
}

// List returns history records, newest first. Without a limit the
// dashboard display limit applies; limit=0 returns everything.
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := history.ListFilter{
		Pair:  q.Get("pair"),
		Limit: h.sess.DisplayLimit(),
	}

	if sig := q.Get("signal"); sig != "" {
		filter.Signal = core.Signal(strings.ToUpper(sig))
	}

	if limit := q.Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil && n >= 0 {
			filter.Limit = n
		}
	}

	if offset := q.Get("offset"); offset != "" {
		if n, err := strconv.Atoi(offset); err == nil && n >= 0 {
			filter.Offset = n
		}
	}

	log := h.sess.History()
	records := log.List(filter)

	response.JSON(w, http.StatusOK, map[string]any{
		"records": records,
		"total":   log.Len(),
		"limit":   filter.Limit,
		"offset":  filter.Offset,
	})
}

// Clear empties the history, archiving it when an archive is configured.
func (h *HistoryHandler) Clear(w http.ResponseWriter, r *http.Request) {
	res := h.sess.Clear(r.Context())
	response.JSON(w, http.StatusOK, res)
}
