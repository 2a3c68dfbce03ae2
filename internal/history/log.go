// Package history keeps the in-memory, newest-first log of actionable
// signals shown on the dashboard.
package history

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/newthinker/scalper/internal/core"
)

// ListFilter narrows the records returned by List.
type ListFilter struct {
	Pair   string
	Signal core.Signal
	Limit  int
	Offset int
}

// Option configures a Log.
type Option func(*Log)

// WithClock overrides the wall clock used to stamp records.
func WithClock(now func() time.Time) Option {
	return func(l *Log) { l.now = now }
}

// WithSignalDedup makes suppression also require the same signal direction
// as the head record, so a BUY followed by a SELL at the same price is kept.
func WithSignalDedup(enabled bool) Option {
	return func(l *Log) { l.dedupBySignal = enabled }
}

// Log is the signal history. Records are stored newest first and never
// truncated; display limits are applied by readers.
type Log struct {
	mu            sync.RWMutex
	records       []core.SignalRecord
	now           func() time.Time
	dedupBySignal bool
}

// NewLog creates an empty history.
func NewLog(opts ...Option) *Log {
	l := &Log{
		records: []core.SignalRecord{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record prepends a record for an actionable signal unless its formatted
// price equals the head record's price. It reports whether a record was added.
func (l *Log) Record(pair string, sig core.Signal, price, rsi float64) (core.SignalRecord, bool) {
	if !sig.IsActionable() {
		return core.SignalRecord{}, false
	}

	priceStr := core.FormatPrice(price)

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.records) > 0 {
		head := l.records[0]
		if head.Price == priceStr && (!l.dedupBySignal || head.Signal == sig) {
			return core.SignalRecord{}, false
		}
	}

	now := l.now()
	rec := core.SignalRecord{
		ID:         uuid.NewString(),
		Time:       now.Format(core.ClockFormat),
		Pair:       pair,
		Signal:     sig,
		Price:      priceStr,
		RSI:        core.FormatRSI(rsi),
		RecordedAt: now,
	}

	l.records = append(l.records, core.SignalRecord{})
	copy(l.records[1:], l.records)
	l.records[0] = rec

	return rec, true
}

// Head returns the most recent record.
func (l *Log) Head() (core.SignalRecord, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.records) == 0 {
		return core.SignalRecord{}, false
	}
	return l.records[0], true
}

// Recent returns up to n of the newest records. n <= 0 returns all.
func (l *Log) Recent(n int) []core.SignalRecord {
	return l.List(ListFilter{Limit: n})
}

// All returns a copy of every record, newest first.
func (l *Log) All() []core.SignalRecord {
	return l.List(ListFilter{})
}

// List returns records matching the filter, newest first.
func (l *Log) List(filter ListFilter) []core.SignalRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]core.SignalRecord, 0, len(l.records))
	for _, rec := range l.records {
		if matches(rec, filter) {
			result = append(result, rec)
		}
	}

	// Apply offset and limit
	if filter.Offset > 0 && filter.Offset < len(result) {
		result = result[filter.Offset:]
	} else if filter.Offset > 0 {
		return []core.SignalRecord{}
	}

	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}

	return result
}

// Len returns the number of stored records.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// Clear empties the log and returns the records that were removed.
func (l *Log) Clear() []core.SignalRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := l.records
	l.records = []core.SignalRecord{}
	return removed
}

func matches(rec core.SignalRecord, filter ListFilter) bool {
	if filter.Pair != "" && rec.Pair != filter.Pair {
		return false
	}
	if filter.Signal != "" && rec.Signal != filter.Signal {
		return false
	}
	return true
}
