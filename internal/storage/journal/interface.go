// internal/storage/journal/interface.go
package journal

import (
	"context"
	"time"

	"github.com/newthinker/scalper/internal/core"
)

// Journal is an append-only audit trail of accepted signal records.
type Journal interface {
	// Append persists one record.
	Append(ctx context.Context, rec core.SignalRecord) error

	// List returns records matching the filter, newest first.
	List(ctx context.Context, filter ListFilter) ([]core.SignalRecord, error)

	// Close releases the underlying storage.
	Close() error
}

// ListFilter defines criteria for listing journal entries.
type ListFilter struct {
	Pair   string
	Signal core.Signal
	From   time.Time
	Limit  int
}
