package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"ddupbak/internal/logging"
)

// Local is the default Backend: a two-level hex-sharded directory tree
// rooted at Dir, exactly as spec.md describes the original's on-disk
// chunk layout.
type Local struct {
	dir    string
	logger *slog.Logger
}

// NewLocal returns a Local backend rooted at dir. dir is created lazily
// on first write; Read against a missing root reports ErrNotFound, and
// Delete of a missing chunk does nothing and returns nil.
func NewLocal(dir string, logger *slog.Logger) *Local {
	return &Local{
		dir:    dir,
		logger: logging.Default(logger).With("component", "chunk-storage-local"),
	}
}

func (l *Local) path(hash Hash) string {
	d1, d2, name := hexShard(hash)
	return filepath.Join(l.dir, d1, d2, name)
}

// Read implements Backend.
func (l *Local) Read(ctx context.Context, hash Hash) (io.ReadCloser, error) {
	f, err := os.Open(l.path(hash))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Write implements Backend.
func (l *Local) Write(ctx context.Context, hash Hash, r io.Reader) error {
	path := l.path(hash)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return err
	}
	return f.Close()
}

// Delete implements Backend. It also prunes any now-empty shard
// directories up to (but excluding) Dir, mirroring the original's
// upward cleanup in ChunkIndex::clean.
func (l *Local) Delete(ctx context.Context, hash Hash) error {
	path := l.path(hash)
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	dir := filepath.Dir(path)
	for dir != l.dir && dir != "." && dir != string(filepath.Separator) {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			break
		}
		if err := os.Remove(dir); err != nil {
			break
		}
		dir = filepath.Dir(dir)
	}

	return nil
}
