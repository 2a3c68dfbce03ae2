package journal

import (
	"context"

	"github.com/newthinker/scalper/internal/core"
)

// Noop discards records. It is used when no journal path is configured.
type Noop struct{}

func NewNoop() *Noop { return &Noop{} }

func (n *Noop) Append(_ context.Context, _ core.SignalRecord) error { return nil }
func (n *Noop) List(_ context.Context, _ ListFilter) ([]core.SignalRecord, error) {
	return []core.SignalRecord{}, nil
}
func (n *Noop) Close() error { return nil }
