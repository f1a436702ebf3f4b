// Package repository implements the orchestration layer over
// internal/archive and internal/chunk: creating, restoring, deleting,
// and cleaning archives within a repository directory's .ddup-bak/
// subtree, coordinated across processes by internal/lock.
//
// Grounded on original_source/src/repository.rs's Repository type: one
// repository directory doubles as both the tree being backed up and the
// home of its own state subdirectory, carried over unchanged from the
// original design.
package repository

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"ddupbak/internal/chunk"
	"ddupbak/internal/chunk/storage"
	"ddupbak/internal/lock"
	"ddupbak/internal/logging"
)

const (
	bakDirName             = ".ddup-bak"
	archivesDirName        = "archives"
	archivesTmpDirName     = "archives-tmp"
	archivesRestoredName   = "archives-restored"
	chunksDirName          = "chunks"
	ignoredFilesName       = "ignored_files"
	archiveSuffix          = ".ddup"
)

// Config holds the parameters needed to create or open a Repository.
type Config struct {
	// Dir is the repository root: both the tree that gets backed up and
	// the parent of its .ddup-bak state subtree.
	Dir string
	// ChunkSize and MaxChunkCount size the chunk index; only meaningful
	// on New, since Open reads them back from the serialized index.
	ChunkSize     int
	MaxChunkCount int
	// Backend is the chunk blob storage backend. Defaults to a local
	// hex-sharded directory under .ddup-bak/chunks if nil.
	Backend storage.Backend
	// Workers bounds the worker pool used by CreateArchive/RestoreArchive.
	// Zero means GOMAXPROCS.
	Workers int
	Logger  *slog.Logger
}

// Repository orchestrates archive lifecycle operations against a chunk
// index guarded by a cross-process RW lock. The ignored-files list and
// chunk index are kept in memory for the Repository's lifetime; Save
// persists both explicitly, since Go has no destructor to mirror the
// original's Drop-based save_on_drop.
type Repository struct {
	dir        string
	bakDir     string
	archives   string
	archiveTmp string
	restored   string
	chunksDir  string

	index  *chunk.Index
	lock   *lock.RWLock
	logger *slog.Logger

	workers int

	ignoreMu sync.Mutex
	ignore   []string
}

func layout(dir string) (bakDir, archives, archiveTmp, restored, chunksDir string) {
	bakDir = filepath.Join(dir, bakDirName)
	archives = filepath.Join(bakDir, archivesDirName)
	archiveTmp = filepath.Join(bakDir, archivesTmpDirName)
	restored = filepath.Join(bakDir, archivesRestoredName)
	chunksDir = filepath.Join(bakDir, chunksDirName)
	return
}

// New creates a fresh repository rooted at cfg.Dir: the .ddup-bak
// subtree is created from scratch, along with an empty chunk index and
// an empty ignored-files list.
func New(cfg Config) (*Repository, error) {
	bakDir, archives, archiveTmp, restored, chunksDir := layout(cfg.Dir)

	for _, d := range []string{bakDir, archives, archiveTmp, restored, chunksDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, err
		}
	}

	logger := logging.Default(cfg.Logger).With("component", "repository")

	backend := cfg.Backend
	if backend == nil {
		backend = storage.NewLocal(chunksDir, logger)
	}

	l, err := lock.New(filepath.Join(chunksDir, "index.lock"), logger)
	if err != nil {
		return nil, err
	}

	idx := chunk.New(chunk.Config{
		Dir:           chunksDir,
		ChunkSize:     cfg.ChunkSize,
		MaxChunkCount: cfg.MaxChunkCount,
		Backend:       backend,
		Logger:        logger,
	})

	if err := os.WriteFile(filepath.Join(bakDir, ignoredFilesName), nil, 0o644); err != nil {
		l.Close()
		return nil, err
	}

	return &Repository{
		dir:        cfg.Dir,
		bakDir:     bakDir,
		archives:   archives,
		archiveTmp: archiveTmp,
		restored:   restored,
		chunksDir:  chunksDir,
		index:      idx,
		lock:       l,
		logger:     logger,
		workers:    cfg.Workers,
	}, nil
}

// Open opens an existing repository rooted at cfg.Dir, reading back its
// chunk index and ignored-files list.
func Open(cfg Config) (*Repository, error) {
	bakDir, archives, archiveTmp, restored, chunksDir := layout(cfg.Dir)

	logger := logging.Default(cfg.Logger).With("component", "repository")

	backend := cfg.Backend
	if backend == nil {
		backend = storage.NewLocal(chunksDir, logger)
	}

	l, err := lock.New(filepath.Join(chunksDir, "index.lock"), logger)
	if err != nil {
		return nil, err
	}

	idx, err := chunk.Open(chunksDir, backend, logger)
	if err != nil {
		l.Close()
		return nil, err
	}

	ignore, err := readIgnoredFiles(bakDir)
	if err != nil {
		l.Close()
		return nil, err
	}

	return &Repository{
		dir:        cfg.Dir,
		bakDir:     bakDir,
		archives:   archives,
		archiveTmp: archiveTmp,
		restored:   restored,
		chunksDir:  chunksDir,
		index:      idx,
		lock:       l,
		logger:     logger,
		workers:    cfg.Workers,
		ignore:     ignore,
	}, nil
}

func readIgnoredFiles(bakDir string) ([]string, error) {
	data, err := os.ReadFile(filepath.Join(bakDir, ignoredFilesName))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var out []string
	for _, line := range strings.Split(string(data), "\n") {
		if line != "" {
			out = append(out, line)
		}
	}
	return out, nil
}

// Save persists the chunk index and the ignored-files list.
func (r *Repository) Save() error {
	if err := r.index.Save(); err != nil {
		return err
	}

	r.ignoreMu.Lock()
	patterns := append([]string(nil), r.ignore...)
	r.ignoreMu.Unlock()

	var sb strings.Builder
	for _, p := range patterns {
		sb.WriteString(p)
		sb.WriteByte('\n')
	}
	return os.WriteFile(filepath.Join(r.bakDir, ignoredFilesName), []byte(sb.String()), 0o644)
}

// Close stops the repository's background lock refresher. It does not
// save state; call Save first if needed.
func (r *Repository) Close() error {
	return r.lock.Close()
}

// AddIgnoredFile adds pattern to the ignored-files list if not already
// present, mirroring the original's add_ignored_file.
func (r *Repository) AddIgnoredFile(pattern string) {
	r.ignoreMu.Lock()
	defer r.ignoreMu.Unlock()
	for _, p := range r.ignore {
		if p == pattern {
			return
		}
	}
	r.ignore = append(r.ignore, pattern)
}

// RemoveIgnoredFile removes the first occurrence of pattern from the
// ignored-files list, if present.
func (r *Repository) RemoveIgnoredFile(pattern string) {
	r.ignoreMu.Lock()
	defer r.ignoreMu.Unlock()
	for i, p := range r.ignore {
		if p == pattern {
			r.ignore = append(r.ignore[:i], r.ignore[i+1:]...)
			return
		}
	}
}

// IsIgnored reports whether relPath (slash-separated, relative to the
// repository root) matches any ignored pattern. Pattern matching is
// glob-based (doublestar), a generalization of the original's exact
// string match recorded in DESIGN.md.
func (r *Repository) IsIgnored(relPath string) bool {
	r.ignoreMu.Lock()
	patterns := append([]string(nil), r.ignore...)
	r.ignoreMu.Unlock()
	return NewIgnoreSet(patterns).Match(relPath)
}

// IgnoredFiles returns the current ignored-files list in insertion order.
func (r *Repository) IgnoredFiles() []string {
	r.ignoreMu.Lock()
	defer r.ignoreMu.Unlock()
	return append([]string(nil), r.ignore...)
}

// ListArchives returns the names (without the .ddup suffix) of every
// archive currently stored.
func (r *Repository) ListArchives() ([]string, error) {
	des, err := os.ReadDir(r.archives)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, de := range des {
		if name, ok := strings.CutSuffix(de.Name(), archiveSuffix); ok {
			names = append(names, name)
		}
	}
	return names, nil
}

func (r *Repository) hasArchive(name string) (bool, error) {
	names, err := r.ListArchives()
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if n == name {
			return true, nil
		}
	}
	return false, nil
}

func (r *Repository) archivePath(name string) string {
	return filepath.Join(r.archives, name+archiveSuffix)
}
