package alert

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Notifier delivers alert text.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, msg string) error
}

// Evaluator evaluates alert rules against the latest health metrics and
// sends notifications.
type Evaluator struct {
	notifiers []Notifier
	metrics   map[string]float64
	cooldown  time.Duration
	logger    *zap.Logger

	// Track pending alerts (waiting for "for" duration)
	pending map[string]time.Time
	// Track last fired time for cooldown
	lastFired map[string]time.Time

	// For testing: allow time advancement
	now func() time.Time

	mu sync.RWMutex
}

// NewEvaluator creates a new alert evaluator.
func NewEvaluator(notifiers []Notifier, logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{
		notifiers: notifiers,
		metrics:   make(map[string]float64),
		cooldown:  5 * time.Minute,
		logger:    logger,
		pending:   make(map[string]time.Time),
		lastFired: make(map[string]time.Time),
		now:       time.Now,
	}
}

// SetMetrics updates the current metrics.
func (e *Evaluator) SetMetrics(metrics map[string]float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.metrics = metrics
}

// SetCooldown sets the cooldown duration between alerts.
func (e *Evaluator) SetCooldown(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cooldown = d
}

// Evaluate evaluates a single rule and notifies if it fires. It reports
// whether the rule fired.
func (e *Evaluator) Evaluate(ctx context.Context, rule Rule) bool {
	msg, fire := e.check(rule)
	if !fire {
		return false
	}

	e.logger.Warn("alert fired",
		zap.String("rule", rule.Name),
		zap.String("severity", rule.Severity),
		zap.String("message", msg),
	)
	for _, n := range e.notifiers {
		if err := n.Notify(ctx, msg); err != nil {
			e.logger.Error("alert delivery failed", zap.String("notifier", n.Name()), zap.Error(err))
		}
	}
	return true
}

func (e *Evaluator) check(rule Rule) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()

	// Check if rule condition is met
	if !rule.Evaluate(e.metrics) {
		// Rule not triggered, clear pending state
		delete(e.pending, rule.Name)
		return "", false
	}

	if rule.For > 0 {
		pendingSince, isPending := e.pending[rule.Name]
		if !isPending {
			e.pending[rule.Name] = now
			return "", false
		}
		if now.Sub(pendingSince) < rule.For {
			return "", false // Still waiting
		}
	}

	lastFired, hasFired := e.lastFired[rule.Name]
	if hasFired && now.Sub(lastFired) < e.cooldown {
		return "", false // In cooldown
	}

	e.lastFired[rule.Name] = now
	delete(e.pending, rule.Name)
	return rule.FormatMessage(e.metrics), true
}

// EvaluateAll evaluates all rules and returns the names of those that fired.
func (e *Evaluator) EvaluateAll(ctx context.Context, rules []Rule) []string {
	var fired []string
	for _, rule := range rules {
		if e.Evaluate(ctx, rule) {
			fired = append(fired, rule.Name)
		}
	}
	return fired
}

// advanceTime is for testing - advances the internal clock.
func (e *Evaluator) advanceTime(d time.Duration) {
	oldNow := e.now
	e.now = func() time.Time {
		return oldNow().Add(d)
	}
}
