package repository

import (
	"context"
	"fmt"
	"os"

	"ddupbak/internal/archive"
	"ddupbak/internal/lock"
	"ddupbak/internal/varint"
)

// DeletionProgressFunc reports each chunk ID dereferenced by
// DeleteArchive, and whether that dereference dropped its refcount to
// zero and removed the blob.
type DeletionProgressFunc func(chunkID uint64, deleted bool)

// DeleteArchive dereferences every chunk ID used by the named archive's
// files and removes the archive file itself. Chunks whose refcount
// reaches zero are deleted immediately (cleanIfZero=true), matching
// original_source/src/repository.rs's delete_archive.
func (r *Repository) DeleteArchive(ctx context.Context, name string, progress DeletionProgressFunc) error {
	guard, err := r.lock.WriteLock(lock.Destructive)
	if err != nil {
		return err
	}
	defer guard.Unlock()

	exists, err := r.hasArchive(name)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %q", ErrArchiveNotFound, name)
	}

	path := r.archivePath(name)
	a, err := archive.Open(path, r.logger)
	if err != nil {
		return err
	}

	for _, e := range a.Entries() {
		if err := r.recursiveDelete(ctx, e, progress); err != nil {
			a.Close()
			return err
		}
	}

	if err := a.Close(); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return err
	}

	return r.index.Save()
}

func (r *Repository) recursiveDelete(ctx context.Context, e archive.Entry, progress DeletionProgressFunc) error {
	switch v := e.(type) {
	case *archive.FileEntry:
		payload, err := v.Open()
		if err != nil {
			return err
		}
		defer payload.Close()

		for {
			id := varint.DecodeU64(payload)
			if id == 0 {
				break
			}
			deleted, ok := r.index.DereferenceChunkID(ctx, id, true)
			if ok && progress != nil {
				progress(id, deleted)
			}
		}
		return nil

	case *archive.DirectoryEntry:
		for _, child := range v.Children {
			if err := r.recursiveDelete(ctx, child, progress); err != nil {
				return err
			}
		}
		return nil

	case *archive.SymlinkEntry:
		return nil

	default:
		return fmt.Errorf("repository: unrecognized archive entry %T", e)
	}
}

// Clean sweeps every chunk with a zero refcount, removing its blob and
// recycling its ID. Useful after a delete was interrupted before its
// final index save.
func (r *Repository) Clean(ctx context.Context, progress func(chunkID uint64)) error {
	guard, err := r.lock.WriteLock(lock.Destructive)
	if err != nil {
		return err
	}
	defer guard.Unlock()

	if err := r.index.Clean(ctx, progress); err != nil {
		return err
	}

	return r.index.Save()
}
