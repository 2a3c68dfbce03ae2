package notifier

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/newthinker/scalper/internal/core"
)

// Registry manages notifier instances
type Registry struct {
	mu        sync.RWMutex
	notifiers map[string]Notifier
}

// NewRegistry creates a new notifier registry
func NewRegistry() *Registry {
	return &Registry{
		notifiers: make(map[string]Notifier),
	}
}

// Register adds a notifier to the registry
func (r *Registry) Register(n Notifier) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := n.Name()
	if _, exists := r.notifiers[name]; exists {
		return fmt.Errorf("notifier %s already registered", name)
	}

	r.notifiers[name] = n
	return nil
}

// Get retrieves a notifier by name
func (r *Registry) Get(name string) (Notifier, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, exists := r.notifiers[name]
	if !exists {
		return nil, fmt.Errorf("notifier %s not found", name)
	}
	return n, nil
}

// Names returns registered notifier names in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.notifiers))
	for name := range r.notifiers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered notifiers
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.notifiers)
}

// NotifyAll sends a record to all registered notifiers and returns
// failures keyed by notifier name
func (r *Registry) NotifyAll(ctx context.Context, rec core.SignalRecord) map[string]error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	failed := make(map[string]error)
	for name, n := range r.notifiers {
		if err := n.Send(ctx, rec); err != nil {
			failed[name] = core.WrapError(core.ErrNotifierFailed, err)
		}
	}
	return failed
}

// Name identifies the registry when it is used as a single alert sink.
func (r *Registry) Name() string {
	return "notifiers"
}

// Notify sends text to every notifier that implements TextSender.
// Failures are joined.
func (r *Registry) Notify(ctx context.Context, text string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var errs []error
	for name, n := range r.notifiers {
		ts, ok := n.(TextSender)
		if !ok {
			continue
		}
		if err := ts.SendText(ctx, text); err != nil {
			errs = append(errs, core.WrapError(core.ErrNotifierFailed, fmt.Errorf("%s: %w", name, err)))
		}
	}
	return errors.Join(errs...)
}
