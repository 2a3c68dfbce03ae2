// Package session owns the per-process dashboard state: the selected pair,
// the signal history and the last published snapshot.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/newthinker/scalper/internal/core"
	"github.com/newthinker/scalper/internal/history"
	"github.com/newthinker/scalper/internal/storage/archive"
	"go.uber.org/zap"
)

// Config holds session settings.
type Config struct {
	Pairs        []core.Pair
	DefaultPair  string
	DisplayLimit int
	Interval     time.Duration
}

// ClearResult describes a history clear.
type ClearResult struct {
	Cleared     int    `json:"cleared"`
	ArchivePath string `json:"archive_path,omitempty"`
}

// Listener receives every snapshot change.
type Listener func(core.Snapshot)

// Session is the dashboard state shared by the cycle runner and HTTP handlers.
type Session struct {
	mu           sync.RWMutex
	pairs        []core.Pair
	pair         core.Pair
	snapshot     core.Snapshot
	interval     time.Duration
	displayLimit int

	history   *history.Log
	archiver  *archive.Archiver
	listeners []Listener
	logger    *zap.Logger
}

// New creates a session on the default pair with an empty snapshot.
func New(cfg Config, log *history.Log, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if log == nil {
		log = history.NewLog()
	}
	if len(cfg.Pairs) == 0 {
		return nil, core.WrapError(core.ErrConfigMissing, fmt.Errorf("session needs at least one pair"))
	}
	if cfg.DisplayLimit <= 0 {
		cfg.DisplayLimit = 10
	}

	s := &Session{
		pairs:        append([]core.Pair(nil), cfg.Pairs...),
		interval:     cfg.Interval,
		displayLimit: cfg.DisplayLimit,
		history:      log,
		logger:       logger,
	}

	pair := cfg.Pairs[0]
	if cfg.DefaultPair != "" {
		p, ok := s.lookup(cfg.DefaultPair)
		if !ok {
			return nil, core.WrapError(core.ErrPairNotFound, fmt.Errorf("default pair %q", cfg.DefaultPair))
		}
		pair = p
	}
	s.pair = pair
	s.snapshot = emptySnapshot(pair, core.StatusStarting)
	return s, nil
}

// SetArchiver enables archiving of cleared histories.
func (s *Session) SetArchiver(a *archive.Archiver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.archiver = a
}

// Subscribe registers a listener for snapshot changes.
func (s *Session) Subscribe(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Pairs returns the selectable pairs in menu order.
func (s *Session) Pairs() []core.Pair {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Pair, len(s.pairs))
	copy(out, s.pairs)
	return out
}

// Pair returns the selected pair.
func (s *Session) Pair() core.Pair {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pair
}

// SelectPair switches the dashboard to another pair. The history is kept;
// the snapshot is reset until the next cycle publishes.
func (s *Session) SelectPair(label string) (core.Pair, error) {
	s.mu.Lock()
	p, ok := s.lookup(label)
	if !ok {
		s.mu.Unlock()
		return core.Pair{}, core.WrapError(core.ErrPairNotFound, fmt.Errorf("pair %q", label))
	}
	changed := p != s.pair
	if changed {
		s.pair = p
		s.snapshot = emptySnapshot(p, core.StatusStarting)
	}
	s.mu.Unlock()

	if changed {
		s.logger.Info("pair selected", zap.String("pair", p.Label), zap.String("symbol", p.Symbol))
		s.notify()
	}
	return p, nil
}

// History returns the signal history.
func (s *Session) History() *history.Log {
	return s.history
}

// DisplayLimit is the number of history rows shown on the dashboard.
func (s *Session) DisplayLimit() int {
	return s.displayLimit
}

// Interval returns the refresh interval shown to clients.
func (s *Session) Interval() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.interval
}

// SetInterval records a new refresh interval.
func (s *Session) SetInterval(d time.Duration) {
	s.mu.Lock()
	s.interval = d
	s.mu.Unlock()
	s.notify()
}

// Status returns the feed status of the last cycle.
func (s *Session) Status() core.FeedStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot.Status
}

// SetStatus marks the feed state without replacing the last good values.
func (s *Session) SetStatus(status core.FeedStatus) {
	s.mu.Lock()
	s.snapshot.Status = status
	s.snapshot.Notice = status.Notice()
	s.snapshot.UpdatedAt = time.Now()
	s.mu.Unlock()
	s.notify()
}

// Publish replaces the snapshot with the result of a cycle. Snapshots for
// a pair that is no longer selected are dropped.
func (s *Session) Publish(snap core.Snapshot) bool {
	s.mu.Lock()
	if snap.Pair != s.pair {
		s.mu.Unlock()
		return false
	}
	snap.Notice = snap.Status.Notice()
	if snap.UpdatedAt.IsZero() {
		snap.UpdatedAt = time.Now()
	}
	snap.Closes = append([]float64(nil), snap.Closes...)
	s.snapshot = snap
	s.mu.Unlock()

	s.notify()
	return true
}

// Snapshot returns the current dashboard state including the most recent
// history rows.
func (s *Session) Snapshot() core.Snapshot {
	s.mu.RLock()
	snap := s.snapshot
	snap.Closes = append([]float64(nil), s.snapshot.Closes...)
	snap.Interval = s.interval.String()
	limit := s.displayLimit
	s.mu.RUnlock()

	snap.History = s.history.Recent(limit)
	return snap
}

// Clear empties the history. When an archiver is set the cleared records
// are archived first; archive failures are logged and do not block the clear.
func (s *Session) Clear(ctx context.Context) ClearResult {
	records := s.history.Clear()
	res := ClearResult{Cleared: len(records)}

	s.mu.RLock()
	archiver := s.archiver
	s.mu.RUnlock()

	if archiver != nil && len(records) > 0 {
		path, err := archiver.Archive(ctx, records)
		if err != nil {
			s.logger.Error("failed to archive history", zap.Int("records", len(records)), zap.Error(err))
		} else {
			res.ArchivePath = path
		}
	}

	s.logger.Info("history cleared",
		zap.Int("records", res.Cleared),
		zap.String("archive", res.ArchivePath),
	)
	s.notify()
	return res
}

func (s *Session) lookup(label string) (core.Pair, bool) {
	for _, p := range s.pairs {
		if p.Label == label {
			return p, true
		}
	}
	return core.Pair{}, false
}

func (s *Session) notify() {
	s.mu.RLock()
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.RUnlock()
	if len(listeners) == 0 {
		return
	}

	snap := s.Snapshot()
	for _, l := range listeners {
		l(snap)
	}
}

func emptySnapshot(p core.Pair, status core.FeedStatus) core.Snapshot {
	return core.Snapshot{
		Pair:      p,
		Status:    status,
		Notice:    status.Notice(),
		Signal:    core.SignalNeutral,
		Label:     core.SignalNeutral.Label(),
		UpdatedAt: time.Now(),
	}
}
