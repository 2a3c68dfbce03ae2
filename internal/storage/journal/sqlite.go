package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/newthinker/scalper/internal/core"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLite persists signal records to a SQLite database.
type SQLite struct {
	db     *sql.DB
	mu     sync.Mutex
	logger *zap.Logger
}

// Open opens (or creates) the journal database and runs migrations.
func Open(path string, logger *zap.Logger) (*SQLite, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, core.WrapError(core.ErrJournalFailed, fmt.Errorf("open sqlite: %w", err))
	}

	// WAL lets the dashboard read while the poller writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, core.WrapError(core.ErrJournalFailed, fmt.Errorf("set WAL mode: %w", err))
	}

	j := &SQLite{db: db, logger: logger}
	if err := j.migrate(); err != nil {
		db.Close()
		return nil, core.WrapError(core.ErrJournalFailed, fmt.Errorf("migrate: %w", err))
	}

	logger.Info("signal journal opened", zap.String("path", path))
	return j, nil
}

func (j *SQLite) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS signal_records (
			id          TEXT PRIMARY KEY,
			recorded_at INTEGER NOT NULL,
			clock       TEXT NOT NULL,
			pair        TEXT NOT NULL,
			signal      TEXT NOT NULL,
			price       TEXT NOT NULL,
			rsi         TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_signal_records_ts ON signal_records(recorded_at)`,
		`CREATE INDEX IF NOT EXISTS idx_signal_records_pair ON signal_records(pair, recorded_at)`,
	}
	for _, s := range stmts {
		if _, err := j.db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Append inserts a record. Re-appending the same ID is ignored.
func (j *SQLite) Append(ctx context.Context, rec core.SignalRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO signal_records (id, recorded_at, clock, pair, signal, price, rsi)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.RecordedAt.UnixNano(), rec.Time, rec.Pair, string(rec.Signal), rec.Price, rec.RSI,
	)
	if err != nil {
		return core.WrapError(core.ErrJournalFailed, fmt.Errorf("insert %s: %w", rec.ID, err))
	}
	return nil
}

// List returns matching records, newest first.
func (j *SQLite) List(ctx context.Context, filter ListFilter) ([]core.SignalRecord, error) {
	var (
		where []string
		args  []any
	)
	if filter.Pair != "" {
		where = append(where, "pair = ?")
		args = append(args, filter.Pair)
	}
	if filter.Signal != "" {
		where = append(where, "signal = ?")
		args = append(args, string(filter.Signal))
	}
	if !filter.From.IsZero() {
		where = append(where, "recorded_at >= ?")
		args = append(args, filter.From.UnixNano())
	}

	query := "SELECT id, recorded_at, clock, pair, signal, price, rsi FROM signal_records"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY recorded_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, core.WrapError(core.ErrJournalFailed, fmt.Errorf("query: %w", err))
	}
	defer rows.Close()

	result := []core.SignalRecord{}
	for rows.Next() {
		var (
			rec    core.SignalRecord
			ts     int64
			signal string
		)
		if err := rows.Scan(&rec.ID, &ts, &rec.Time, &rec.Pair, &signal, &rec.Price, &rec.RSI); err != nil {
			return nil, core.WrapError(core.ErrJournalFailed, fmt.Errorf("scan: %w", err))
		}
		rec.Signal = core.Signal(signal)
		rec.RecordedAt = time.Unix(0, ts)
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, core.WrapError(core.ErrJournalFailed, err)
	}
	return result, nil
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
