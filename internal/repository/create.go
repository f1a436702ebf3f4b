package repository

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"ddupbak/internal/archive"
	"ddupbak/internal/compress"
	"ddupbak/internal/lock"
	"ddupbak/internal/varint"

	"github.com/dustinkirkland/golang-petname"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ProgressFunc reports a path as it is visited by a walking operation.
type ProgressFunc func(path string)

const maxNameAttempts = 20

// CreateArchive walks the repository tree (skipping .ddup-bak and any
// ignored pattern), chunks every regular file into the chunk index, and
// writes the result as a new archive. If name is empty, a human-memorable
// name is generated with golang-petname, retried on collision.
//
// Grounded on original_source/src/repository.rs's create_archive and
// recursive_create_archive: each file's chunk-ID stream is also written
// into a UUID-named temp directory under archives-tmp/ that mirrors the
// source tree. The archive payload is written from the in-memory stream,
// and the temp directory is removed when CreateArchive returns.
func (r *Repository) CreateArchive(ctx context.Context, name string, progressChunking, progressArchiving ProgressFunc) (string, error) {
	guard, err := r.lock.WriteLock(lock.NonDestructive)
	if err != nil {
		return "", err
	}
	defer guard.Unlock()

	if name == "" {
		name, err = r.generateUniqueName()
		if err != nil {
			return "", err
		}
	} else if exists, err := r.hasArchive(name); err != nil {
		return "", err
	} else if exists {
		return "", fmt.Errorf("%w: %q", ErrArchiveExists, name)
	}

	tmpDir := filepath.Join(r.archiveTmp, uuid.NewString())
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return "", err
	}
	defer os.RemoveAll(tmpDir)

	archivePath := r.archivePath(name)
	a, err := archive.New(archivePath, r.logger)
	if err != nil {
		return "", err
	}
	defer a.Close()

	workers := r.workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	g.Go(func() error {
		return r.recursiveCreate(gctx, g, nil, r.dir, tmpDir, a, progressChunking)
	})

	if err := g.Wait(); err != nil {
		os.Remove(archivePath)
		return "", err
	}

	if progressArchiving != nil {
		progressArchiving(archivePath)
	}

	if err := a.Finalize(); err != nil {
		os.Remove(archivePath)
		return "", err
	}

	if err := r.index.Save(); err != nil {
		return "", err
	}

	return name, nil
}

func (r *Repository) generateUniqueName() (string, error) {
	for i := 0; i < maxNameAttempts; i++ {
		candidate := petname.Generate(2, "-")
		exists, err := r.hasArchive(candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("repository: could not generate a unique archive name after %d attempts", maxNameAttempts)
}

// recursiveCreate walks the directory at osDirPath (archive-relative
// path parentRelPath), inserting entries under the archive's parentRelPath
// directory, and stages file payloads under tmpDirPath. Directory entries
// are inserted synchronously, happens-before any child is dispatched, so
// concurrent InsertEntry calls from fanned-out children never race against
// their own parent's creation. A child is handed to g only when a worker
// slot is free; otherwise it runs on the calling goroutine, which itself
// holds a slot and so never waits for one.
func (r *Repository) recursiveCreate(ctx context.Context, g *errgroup.Group, parentRelPath []string, osDirPath, tmpDirPath string, a *archive.Archive, progress ProgressFunc) error {
	des, err := os.ReadDir(osDirPath)
	if err != nil {
		return err
	}

	for _, de := range des {
		de := de
		name := de.Name()

		if len(parentRelPath) == 0 && name == bakDirName {
			continue
		}

		relPath := filepath.ToSlash(filepath.Join(append(append([]string(nil), parentRelPath...), name)...))
		if r.IsIgnored(relPath) {
			continue
		}

		osPath := filepath.Join(osDirPath, name)
		tmpPath := filepath.Join(tmpDirPath, name)

		if progress != nil {
			progress(osPath)
		}

		info, err := os.Lstat(osPath)
		if err != nil {
			return err
		}

		switch {
		case info.Mode()&os.ModeSymlink != 0:
			entry, err := r.buildSymlinkEntry(osPath, info)
			if err != nil {
				return err
			}
			if err := a.InsertEntry(parentRelPath, entry); err != nil {
				return err
			}
			if target, err := os.Readlink(osPath); err == nil {
				os.Symlink(target, tmpPath)
			}

		case info.IsDir():
			uid, gid := fsOwnerFromInfo(info)
			dirEntry := &archive.DirectoryEntry{
				EntryName: name,
				EntryMode: fsModeFromInfo(info),
				UID:       uid,
				GID:       gid,
				ModTime:   info.ModTime(),
			}
			if err := a.InsertEntry(parentRelPath, dirEntry); err != nil {
				return err
			}
			if err := os.MkdirAll(tmpPath, 0o755); err != nil {
				return err
			}

			childRelPath := append(append([]string(nil), parentRelPath...), name)
			walk := func() error {
				return r.recursiveCreate(ctx, g, childRelPath, osPath, tmpPath, a, progress)
			}
			if !g.TryGo(walk) {
				if err := walk(); err != nil {
					return err
				}
			}

		default:
			chunkFile := func() error {
				return r.createFileEntry(ctx, parentRelPath, osPath, tmpPath, name, info, a)
			}
			if !g.TryGo(chunkFile) {
				if err := chunkFile(); err != nil {
					return err
				}
			}
		}
	}

	return nil
}

func (r *Repository) createFileEntry(ctx context.Context, parentRelPath []string, osPath, tmpPath, name string, info os.FileInfo, a *archive.Archive) error {
	ids, err := r.index.ChunkFile(ctx, osPath, compress.Deflate, r.workers)
	if err != nil {
		return err
	}

	var payload []byte
	for _, id := range ids {
		payload = varint.EncodeU64(payload, id)
	}
	payload = varint.EncodeU64(payload, 0)

	if err := os.WriteFile(tmpPath, payload, 0o644); err != nil {
		return err
	}

	payloadCompression := compress.None
	if len(payload) > 16 {
		payloadCompression = compress.Deflate
	}

	uid, gid := fsOwnerFromInfo(info)
	entry, err := a.WriteFileEntry(bytes.NewReader(payload), name, fsModeFromInfo(info), uid, gid, info.ModTime().Unix(), int64(len(payload)), uint64(info.Size()), payloadCompression)
	if err != nil {
		return err
	}

	return a.InsertEntry(parentRelPath, entry)
}

func (r *Repository) buildSymlinkEntry(osPath string, info os.FileInfo) (*archive.SymlinkEntry, error) {
	target, err := os.Readlink(osPath)
	if err != nil {
		return nil, err
	}
	targetInfo, statErr := os.Stat(osPath)
	uid, gid := fsOwnerFromInfo(info)

	return &archive.SymlinkEntry{
		EntryName: filepath.Base(osPath),
		EntryMode: fsModeFromInfo(info),
		UID:       uid,
		GID:       gid,
		ModTime:   info.ModTime(),
		Target:    target,
		TargetDir: statErr == nil && targetInfo.IsDir(),
	}, nil
}
