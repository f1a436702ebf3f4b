package repository

import (
	"fmt"

	"ddupbak/internal/archive"
)

// OpenArchive opens the named archive for read-only inspection: listing
// its tree (fs ls) or reading a file's content (fs cat, convert). The
// caller must Close the returned Archive. It does not take the
// repository lock, since listing/reading an archive's own tree does not
// touch the chunk index directly; ChunkReader does, and callers that
// read file content should hold a read lock of their own for the
// duration (RestoreArchive does this internally; ad-hoc inspection
// callers such as the CLI accept the same race window the original
// tool does).
func (r *Repository) OpenArchive(name string) (*archive.Archive, error) {
	exists, err := r.hasArchive(name)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %q", ErrArchiveNotFound, name)
	}
	return archive.Open(r.archivePath(name), r.logger)
}

// ChunkReader exposes the repository's chunk index as an
// archive.ChunkReader, letting callers resolve a FileEntry's content
// outside of RestoreArchive (fs cat, convert).
func (r *Repository) ChunkReader() archive.ChunkReader {
	return r.index
}
