package notifier

import (
	"context"

	"github.com/newthinker/scalper/internal/core"
)

// Config holds notifier configuration
type Config struct {
	Type   string         `mapstructure:"type"`
	Params map[string]any `mapstructure:"params"`
}

// Notifier delivers accepted signal records to an external channel
type Notifier interface {
	// Name returns the unique identifier for this notifier
	Name() string

	// Init initializes the notifier with configuration
	Init(cfg Config) error

	// Send delivers a single signal record
	Send(ctx context.Context, rec core.SignalRecord) error
}

// TextSender is implemented by notifiers that can deliver free-form text,
// such as feed health alerts.
type TextSender interface {
	SendText(ctx context.Context, text string) error
}
