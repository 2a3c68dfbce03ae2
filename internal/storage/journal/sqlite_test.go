package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/newthinker/scalper/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLite_ImplementsJournal(t *testing.T) {
	var _ Journal = (*SQLite)(nil)
	var _ Journal = (*Noop)(nil)
}

func openTemp(t *testing.T) *SQLite {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func record(id, pair string, sig core.Signal, price string, at time.Time) core.SignalRecord {
	return core.SignalRecord{
		ID:         id,
		Time:       at.Format(core.ClockFormat),
		Pair:       pair,
		Signal:     sig,
		Price:      price,
		RSI:        "35.0",
		RecordedAt: at,
	}
}

func TestSQLite_AppendAndList(t *testing.T) {
	j := openTemp(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)

	require.NoError(t, j.Append(ctx, record("a", "EUR/USD", core.SignalBuy, "1.0800", base)))
	require.NoError(t, j.Append(ctx, record("b", "EUR/USD", core.SignalSell, "1.0900", base.Add(time.Minute))))
	require.NoError(t, j.Append(ctx, record("c", "BTC/USD", core.SignalBuy, "64000.0000", base.Add(2*time.Minute))))

	all, err := j.List(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].ID)
	assert.Equal(t, "a", all[2].ID)
	assert.Equal(t, "1.0800", all[2].Price)
	assert.Equal(t, "14:00:00", all[2].Time)
	assert.True(t, all[2].RecordedAt.Equal(base))

	eur, err := j.List(ctx, ListFilter{Pair: "EUR/USD"})
	require.NoError(t, err)
	assert.Len(t, eur, 2)

	buys, err := j.List(ctx, ListFilter{Signal: core.SignalBuy, Limit: 1})
	require.NoError(t, err)
	require.Len(t, buys, 1)
	assert.Equal(t, "c", buys[0].ID)

	recent, err := j.List(ctx, ListFilter{From: base.Add(30 * time.Second)})
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}

func TestSQLite_AppendIsIdempotent(t *testing.T) {
	j := openTemp(t)
	ctx := context.Background()
	rec := record("dup", "EUR/USD", core.SignalBuy, "1.0800", time.Now())

	require.NoError(t, j.Append(ctx, rec))
	require.NoError(t, j.Append(ctx, rec))

	all, err := j.List(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSQLite_ReopenKeepsRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	ctx := context.Background()

	j, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, j.Append(ctx, record("a", "EUR/USD", core.SignalBuy, "1.0800", time.Now())))
	require.NoError(t, j.Close())

	j, err = Open(path, nil)
	require.NoError(t, err)
	defer j.Close()

	all, err := j.List(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestNoop(t *testing.T) {
	n := NewNoop()
	ctx := context.Background()

	assert.NoError(t, n.Append(ctx, record("a", "EUR/USD", core.SignalBuy, "1.0800", time.Now())))
	all, err := n.List(ctx, ListFilter{})
	assert.NoError(t, err)
	assert.Empty(t, all)
	assert.NoError(t, n.Close())
}
