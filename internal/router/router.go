package router

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/newthinker/scalper/internal/core"
	"github.com/newthinker/scalper/internal/metrics"
	"github.com/newthinker/scalper/internal/notifier"
	"github.com/newthinker/scalper/internal/storage/journal"
	"go.uber.org/zap"
)

// Config holds router configuration
type Config struct {
	Cooldown       time.Duration `mapstructure:"cooldown"`
	EnabledSignals []core.Signal `mapstructure:"enabled_signals"`
}

// DefaultConfig returns default router configuration
func DefaultConfig() Config {
	return Config{
		Cooldown:       0,
		EnabledSignals: []core.Signal{core.SignalBuy, core.SignalSell},
	}
}

// ParseSignals converts configured signal names into signals.
// Unknown names are skipped; config validation rejects them earlier.
func ParseSignals(names []string) []core.Signal {
	out := make([]core.Signal, 0, len(names))
	for _, n := range names {
		sig := core.Signal(strings.ToUpper(strings.TrimSpace(n)))
		if sig.IsActionable() {
			out = append(out, sig)
		}
	}
	return out
}

// Router fans accepted history records out to the journal and notifiers.
// Filters only gate notifications; every routed record is journaled.
type Router struct {
	cfg       Config
	registry  *notifier.Registry
	journal   journal.Journal
	metrics   *metrics.Registry
	logger    *zap.Logger
	now       func() time.Time
	cooldowns map[string]time.Time // pair -> last notification time
	mu        sync.RWMutex
}

// New creates a new signal router
func New(cfg Config, registry *notifier.Registry, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		cfg:       cfg,
		registry:  registry,
		logger:    logger,
		now:       time.Now,
		cooldowns: make(map[string]time.Time),
	}
}

// SetJournal sets the audit journal
func (r *Router) SetJournal(j journal.Journal) {
	r.journal = j
}

// SetMetrics sets the metrics registry
func (r *Router) SetMetrics(m *metrics.Registry) {
	r.metrics = m
}

// Route journals an accepted record and sends it to notifiers when it
// passes the filters. Notifier failures are logged, never returned.
func (r *Router) Route(ctx context.Context, rec core.SignalRecord) error {
	var journalErr error
	if r.journal != nil {
		if err := r.journal.Append(ctx, rec); err != nil {
			r.logger.Error("failed to journal record",
				zap.String("id", rec.ID),
				zap.Error(err),
			)
			journalErr = err
		}
	}

	if !r.passesFilters(rec) {
		r.logger.Debug("record filtered out",
			zap.String("pair", rec.Pair),
			zap.String("signal", string(rec.Signal)),
		)
		return journalErr
	}

	// Update cooldown
	r.mu.Lock()
	r.cooldowns[rec.Pair] = r.now()
	r.mu.Unlock()

	// Nil registry is allowed
	if r.registry == nil || r.registry.Len() == 0 {
		return journalErr
	}
	errors := r.registry.NotifyAll(ctx, rec)

	for _, name := range r.registry.Names() {
		status := "success"
		if err, failed := errors[name]; failed {
			status = "error"
			r.logger.Error("notifier failed",
				zap.String("notifier", name),
				zap.Error(err),
			)
		}
		if r.metrics != nil {
			r.metrics.RecordNotification(name, status)
		}
	}

	r.logger.Info("record routed",
		zap.String("pair", rec.Pair),
		zap.String("signal", string(rec.Signal)),
		zap.String("price", rec.Price),
		zap.Int("notifiers", r.registry.Len()),
		zap.Int("errors", len(errors)),
	)

	return journalErr
}

// passesFilters checks if a record passes all configured filters
func (r *Router) passesFilters(rec core.SignalRecord) bool {
	// Check signal whitelist
	if len(r.cfg.EnabledSignals) > 0 {
		allowed := false
		for _, s := range r.cfg.EnabledSignals {
			if rec.Signal == s {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}

	// Check cooldown
	if r.cfg.Cooldown <= 0 {
		return true
	}
	r.mu.RLock()
	last, exists := r.cooldowns[rec.Pair]
	r.mu.RUnlock()

	return !exists || r.now().Sub(last) >= r.cfg.Cooldown
}

// ClearCooldown removes cooldown for a specific pair
func (r *Router) ClearCooldown(pair string) {
	r.mu.Lock()
	delete(r.cooldowns, pair)
	r.mu.Unlock()
}

// ClearAllCooldowns removes all cooldowns
func (r *Router) ClearAllCooldowns() {
	r.mu.Lock()
	r.cooldowns = make(map[string]time.Time)
	r.mu.Unlock()
}

// CleanupExpiredCooldowns removes cooldown entries older than 2x the cooldown duration.
func (r *Router) CleanupExpiredCooldowns() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	expiry := r.cfg.Cooldown * 2
	removed := 0

	for pair, last := range r.cooldowns {
		if now.Sub(last) > expiry {
			delete(r.cooldowns, pair)
			removed++
		}
	}

	return removed
}

// StartCleanupRoutine starts a background goroutine that periodically cleans up expired cooldowns.
func (r *Router) StartCleanupRoutine(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := r.CleanupExpiredCooldowns(); removed > 0 {
					r.logger.Debug("cleaned up expired cooldowns", zap.Int("removed", removed))
				}
			}
		}
	}()
}

// Stats returns router statistics
func (r *Router) Stats() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return map[string]any{
		"cooldowns_active": len(r.cooldowns),
		"cooldown_seconds": r.cfg.Cooldown.Seconds(),
		"enabled_signals":  r.cfg.EnabledSignals,
	}
}
