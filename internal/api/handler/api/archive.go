// internal/api/handler/api/archive.go
package api

import (
	"errors"
	"net/http"

	"github.com/newthinker/scalper/internal/api/response"
	"github.com/newthinker/scalper/internal/core"
	"github.com/newthinker/scalper/internal/storage/archive"
)

// ArchiveHandler lists and reads archived histories.
type ArchiveHandler struct {
	archiver *archive.Archiver
}

// NewArchiveHandler creates a new archive handler. A nil archiver means
// archiving is disabled.
func NewArchiveHandler(a *archive.Archiver) *ArchiveHandler {
	return &ArchiveHandler{archiver: a}
}

// List returns archived snapshot paths, or a single snapshot when ?path= is set.
func (h *ArchiveHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.archiver == nil {
		response.JSON(w, http.StatusOK, map[string]any{
			"enabled": false,
			"paths":   []string{},
		})
		return
	}

	if path := r.URL.Query().Get("path"); path != "" {
		h.get(w, r, path)
		return
	}

	paths, err := h.archiver.List(r.Context())
	if err != nil {
		response.Error(w, http.StatusInternalServerError, err)
		return
	}

	response.JSON(w, http.StatusOK, map[string]any{
		"enabled": true,
		"paths":   paths,
		"count":   len(paths),
	})
}

func (h *ArchiveHandler) get(w http.ResponseWriter, r *http.Request, path string) {
	snap, err := h.archiver.Load(r.Context(), path)
	if err != nil {
		if errors.Is(err, core.ErrArchiveFailed) {
			response.Error(w, http.StatusNotFound, err)
			return
		}
		response.Error(w, http.StatusInternalServerError, err)
		return
	}
	response.JSON(w, http.StatusOK, snap)
}
