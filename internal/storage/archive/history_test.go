package archive

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/newthinker/scalper/internal/config"
	"github.com/newthinker/scalper/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchiver_ArchiveAndLoad(t *testing.T) {
	store, err := NewLocalFS(t.TempDir())
	require.NoError(t, err)

	a := NewArchiver(store)
	a.now = func() time.Time { return time.Date(2026, 3, 2, 14, 5, 9, 0, time.UTC) }
	ctx := context.Background()

	records := []core.SignalRecord{
		{ID: "2", Time: "14:05:00", Pair: "EUR/USD", Signal: core.SignalBuy, Price: "1.0795", RSI: "34.0"},
		{ID: "1", Time: "14:04:00", Pair: "EUR/USD", Signal: core.SignalBuy, Price: "1.0800", RSI: "35.0"},
	}

	path, err := a.Archive(ctx, records)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(path, "history/2026-03-02/140509-"), path)
	assert.True(t, strings.HasSuffix(path, ".json"), path)

	paths, err := a.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{path}, paths)

	snap, err := a.Load(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Count)
	assert.Equal(t, records, snap.Records)
	assert.True(t, snap.ClearedAt.Equal(a.now()))
}

func TestArchiver_EmptyHistoryNotWritten(t *testing.T) {
	store, err := NewLocalFS(t.TempDir())
	require.NoError(t, err)
	a := NewArchiver(store)

	path, err := a.Archive(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, path)

	paths, _ := a.List(context.Background())
	assert.Empty(t, paths)
}

func TestFromConfig(t *testing.T) {
	s, err := FromConfig(config.ArchiveConfig{})
	require.NoError(t, err)
	assert.Nil(t, s)

	s, err = FromConfig(config.ArchiveConfig{Type: "localfs", Path: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &LocalFS{}, s)

	s, err = FromConfig(config.ArchiveConfig{Type: "s3", S3: config.S3Config{Bucket: "signals"}})
	require.NoError(t, err)
	assert.IsType(t, &S3Storage{}, s)

	_, err = FromConfig(config.ArchiveConfig{Type: "ftp"})
	assert.True(t, errors.Is(err, core.ErrConfigInvalid))
}
