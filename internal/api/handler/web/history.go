// internal/api/handler/web/history.go
package web

import (
	"net/http"

	"github.com/newthinker/scalper/internal/core"
)

// HistoryData holds data for the full history page
type HistoryData struct {
	Title   string
	Records []core.SignalRecord
	Total   int
}

// History renders every stored record, not just the dashboard rows.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	records := h.sess.History().All()
	h.render(w, "history.html", HistoryData{
		Title:   "Signal History",
		Records: records,
		Total:   len(records),
	})
}
