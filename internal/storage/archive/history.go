package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/newthinker/scalper/internal/config"
	"github.com/newthinker/scalper/internal/core"
)

const historyPrefix = "history"

// Snapshot is a cleared signal history as written to the archive.
type Snapshot struct {
	ClearedAt time.Time           `json:"cleared_at"`
	Count     int                 `json:"count"`
	Records   []core.SignalRecord `json:"records"`
}

// Archiver writes cleared histories to a Storage backend.
type Archiver struct {
	store Storage
	now   func() time.Time
}

// NewArchiver wraps a storage backend.
func NewArchiver(store Storage) *Archiver {
	return &Archiver{store: store, now: time.Now}
}

// Archive writes records under history/<date>/<time>-<id>.json and returns
// the path. An empty history is not written.
func (a *Archiver) Archive(ctx context.Context, records []core.SignalRecord) (string, error) {
	if len(records) == 0 {
		return "", nil
	}

	now := a.now().UTC()
	data, err := json.MarshalIndent(Snapshot{
		ClearedAt: now,
		Count:     len(records),
		Records:   records,
	}, "", "  ")
	if err != nil {
		return "", core.WrapError(core.ErrArchiveFailed, fmt.Errorf("encoding snapshot: %w", err))
	}

	path := fmt.Sprintf("%s/%s/%s-%s.json",
		historyPrefix, now.Format("2006-01-02"), now.Format("150405"), uuid.NewString()[:8])
	if err := a.store.Write(ctx, path, data); err != nil {
		return "", err
	}
	return path, nil
}

// List returns archived snapshot paths, oldest first.
func (a *Archiver) List(ctx context.Context) ([]string, error) {
	return a.store.List(ctx, historyPrefix)
}

// Load reads one archived snapshot.
func (a *Archiver) Load(ctx context.Context, path string) (*Snapshot, error) {
	data, err := a.store.Read(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return &snap, nil
}

// FromConfig builds the configured backend. It returns nil when archiving is off.
func FromConfig(cfg config.ArchiveConfig) (Storage, error) {
	switch cfg.Type {
	case "":
		return nil, nil
	case "localfs":
		store, err := NewLocalFS(cfg.Path)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "s3":
		store, err := NewS3(S3Config{
			Bucket:    cfg.S3.Bucket,
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Prefix:    cfg.S3.Prefix,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unknown archive type %q", cfg.Type))
	}
}
