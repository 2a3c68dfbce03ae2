// internal/api/handler/api/journal.go
package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/newthinker/scalper/internal/api/response"
	"github.com/newthinker/scalper/internal/core"
	"github.com/newthinker/scalper/internal/storage/journal"
)

const defaultJournalLimit = 50

// JournalHandler exposes the persisted signal journal.
type JournalHandler struct {
	journal journal.Journal
}

// NewJournalHandler creates a new journal handler.
func NewJournalHandler(j journal.Journal) *JournalHandler {
	return &JournalHandler{journal: j}
}

// List returns journal entries matching query parameters.
func (h *JournalHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := journal.ListFilter{
		Pair:  q.Get("pair"),
		Limit: defaultJournalLimit,
	}

	if sig := q.Get("signal"); sig != "" {
		filter.Signal = core.Signal(strings.ToUpper(sig))
	}

	if from := q.Get("from"); from != "" {
		if t, err := time.Parse(time.RFC3339, from); err == nil {
			filter.From = t
		} else if t, err := time.Parse("2006-01-02", from); err == nil {
			filter.From = t
		}
	}

	if limit := q.Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil && n > 0 {
			filter.Limit = n
		}
	}

	records, err := h.journal.List(r.Context(), filter)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, err)
		return
	}

	response.JSON(w, http.StatusOK, map[string]any{
		"records": records,
		"count":   len(records),
		"limit":   filter.Limit,
	})
}
