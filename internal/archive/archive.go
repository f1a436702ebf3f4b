// Package archive implements the DDUPBAK binary archive format: a
// signature-prefixed container of per-file payload regions followed by a
// trailing DEFLATE-compressed metadata tree. See spec.md §4.E for the
// exact byte layout.
//
// Archive serves two callers with different payload shapes. The
// low-level WriteFileEntry/InsertEntry/Finalize sequence is driven by
// internal/repository, whose payloads are chunk-ID varint streams.
// AddDirectory/AddEntries drive the standalone codec directly against
// real files on disk, writing their raw (optionally compressed) content
// — this is the path exercised when ddupbak is used as a plain archiver
// without the chunk store's indirection.
package archive

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"ddupbak/internal/compress"
	"ddupbak/internal/logging"
)

// unixTime converts a Unix epoch second count to a UTC time.Time, the
// representation archive entry metadata uses throughout.
func unixTime(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

// FileSignature is the 7-byte magic every archive file begins with.
var FileSignature = [7]byte{'D', 'D', 'U', 'P', 'B', 'A', 'K'}

// FormatVersion is the current archive format version byte.
const FormatVersion byte = 1

// CompressionFunc selects the compression format for a file given its
// path and raw size. If nil, the default policy applies: Deflate for
// files over 16 bytes, None otherwise.
type CompressionFunc func(path string, rawSize int64) compress.Format

// RealSizeFunc supplies the "real" (user-visible, uncompressed content)
// size for a file given its path, overriding the default of
// raw_size == real_size. Used by AddDirectory/AddEntries; the
// repository's WriteFileEntry takes real size as an explicit argument
// instead, since it always knows it up front.
type RealSizeFunc func(path string) (size uint64, ok bool)

// Archive is an open DDUPBAK archive file.
type Archive struct {
	file    *os.File
	version byte
	logger  *slog.Logger

	treeMu  sync.RWMutex
	entries []Entry

	writeMu       sync.Mutex
	entriesOffset uint64

	compressionFn CompressionFunc
	realSizeFn    RealSizeFunc
}

// New creates a fresh archive file at path, truncating any existing
// content, and writes the 8-byte header (signature + version).
func New(path string, logger *slog.Logger) (*Archive, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	if err := f.Truncate(0); err != nil {
		f.Close()
		return nil, err
	}

	header := append(append([]byte{}, FileSignature[:]...), FormatVersion)
	if _, err := f.Write(header); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return nil, err
	}

	return &Archive{
		file:          f,
		version:       FormatVersion,
		logger:        logging.Default(logger).With("component", "archive"),
		entriesOffset: uint64(len(header)),
	}, nil
}

// Open opens an existing archive file for reading and appending.
func Open(path string, logger *slog.Logger) (*Archive, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}

	a, err := openFrom(f, logger)
	if err != nil {
		f.Close()
		return nil, err
	}
	return a, nil
}

func openFrom(f *os.File, logger *slog.Logger) (*Archive, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := info.Size()
	if size < 24 {
		return nil, fmt.Errorf("archive: %w: file too short", ErrInvalidSignature)
	}

	var header [8]byte
	if _, err := f.ReadAt(header[:], 0); err != nil {
		return nil, err
	}
	if !bytes.Equal(header[:7], FileSignature[:]) {
		return nil, ErrInvalidSignature
	}
	version := header[7]

	var trailer [16]byte
	if _, err := f.ReadAt(trailer[:], size-16); err != nil {
		return nil, err
	}
	entriesCount := leU64(trailer[0:8])
	entriesOffset := leU64(trailer[8:16])

	section := io.NewSectionReader(f, int64(entriesOffset), size-16-int64(entriesOffset))
	dec, err := compress.NewReader(section, compress.Deflate)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, entriesCount)
	for i := uint64(0); i < entriesCount; i++ {
		e, err := decodeEntryMetadata(dec, f)
		if err != nil {
			return nil, fmt.Errorf("archive: decoding root entry %d of %d: %w", i, entriesCount, err)
		}
		entries = append(entries, e)
	}

	return &Archive{
		file:          f,
		version:       version,
		logger:        logging.Default(logger).With("component", "archive"),
		entries:       entries,
		entriesOffset: entriesOffset,
	}, nil
}

// Close closes the underlying file. Any FileEntry readers obtained
// before Close become invalid; this mirrors the shared-ownership model
// in spec.md §9 without attempting reference counting.
func (a *Archive) Close() error {
	return a.file.Close()
}

// SetCompressionCallback installs fn as the compression-selection
// policy used by AddDirectory/AddEntries. A nil fn restores the default
// policy.
func (a *Archive) SetCompressionCallback(fn CompressionFunc) {
	a.compressionFn = fn
}

// SetRealSizeCallback installs fn as the real-size override used by
// AddDirectory/AddEntries.
func (a *Archive) SetRealSizeCallback(fn RealSizeFunc) {
	a.realSizeFn = fn
}

// Entries returns the archive's root-level entries. The returned slice
// must not be mutated by the caller; concurrent InsertEntry calls may
// still be appending to directories reachable from it.
func (a *Archive) Entries() []Entry {
	a.treeMu.RLock()
	defer a.treeMu.RUnlock()
	out := make([]Entry, len(a.entries))
	copy(out, a.entries)
	return out
}

// InsertEntry appends e as a child of the directory named by
// parentPath's path components (relative to the archive root), or to
// the root entry list if parentPath is empty. Every mutation of the
// entry tree goes through this single mutex, held only for the
// duration of one insert — matching the coarse-locking policy in
// spec.md §5 ("insertions ... are serialized via a coarse mutex over
// the archive").
func (a *Archive) InsertEntry(parentPath []string, e Entry) error {
	a.treeMu.Lock()
	defer a.treeMu.Unlock()

	if len(parentPath) == 0 {
		a.entries = append(a.entries, e)
		return nil
	}

	dir, err := a.findDirectoryLocked(parentPath)
	if err != nil {
		return err
	}
	dir.Children = append(dir.Children, e)
	return nil
}

func (a *Archive) findDirectoryLocked(path []string) (*DirectoryEntry, error) {
	entries := a.entries
	var current *DirectoryEntry
	for _, component := range path {
		var next Entry
		for _, e := range entries {
			if e.Name() == component {
				next = e
				break
			}
		}
		if next == nil {
			return nil, fmt.Errorf("archive: directory %q not present while inserting", component)
		}
		dir, ok := next.(*DirectoryEntry)
		if !ok {
			return nil, fmt.Errorf("archive: %q is not a directory", component)
		}
		current = dir
		entries = dir.Children
	}
	if current == nil {
		return nil, errors.New("archive: empty parent path")
	}
	return current, nil
}

// FindEntry resolves a "/"-separated path against the archive's entry
// tree by explicit component-by-component descent (see the Design Note
// in spec.md §9: the original's off-by-one recursive slicing is
// replaced here with a straightforward walk). Descending through a
// non-final component that isn't a Directory is an error, not a
// not-found result, since the path itself is malformed relative to the
// tree shape.
func (a *Archive) FindEntry(path string) (Entry, error) {
	components := splitPath(path)
	if len(components) == 0 {
		return nil, ErrEntryNotFound
	}

	a.treeMu.RLock()
	defer a.treeMu.RUnlock()

	entries := a.entries
	var current Entry
	for i, c := range components {
		var next Entry
		for _, e := range entries {
			if e.Name() == c {
				next = e
				break
			}
		}
		if next == nil {
			return nil, ErrEntryNotFound
		}
		current = next

		if i < len(components)-1 {
			dir, ok := next.(*DirectoryEntry)
			if !ok {
				return nil, fmt.Errorf("archive: %q is not a directory", c)
			}
			entries = dir.Children
		}
	}
	return current, nil
}

func splitPath(p string) []string {
	clean := filepath.ToSlash(filepath.Clean(p))
	parts := strings.Split(clean, "/")
	out := parts[:0]
	for _, part := range parts {
		if part != "" && part != "." {
			out = append(out, part)
		}
	}
	return out
}

// WriteFileEntry is the low-level "write-file-entry" sub-operation in
// spec.md §4.E: it streams src through the compressor for compression
// directly into the archive file at the current write position,
// records that position as the entry's offset, and returns the
// resulting FileEntry without inserting it into the tree — the caller
// (internal/repository, for chunk-ID-stream payloads) does that via
// InsertEntry once it knows the entry's place in the directory
// hierarchy. realSize is supplied explicitly by the caller rather than
// through RealSizeFunc, since the repository always knows the original
// file's content length up front.
func (a *Archive) WriteFileEntry(src io.Reader, name string, mode uint32, uid, gid uint32, mtime int64, rawSize int64, realSize uint64, compression compress.Format) (*FileEntry, error) {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	offset := a.entriesOffset
	if _, err := a.file.Seek(int64(offset), io.SeekStart); err != nil {
		return nil, err
	}

	w, err := compress.NewWriter(a.file, compression)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(w, src); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	pos, err := a.file.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}

	entry := &FileEntry{
		EntryName:   name,
		EntryMode:   mode,
		UID:         uid,
		GID:         gid,
		ModTime:     unixTime(mtime),
		Compression: compression,
		RawSize:     uint64(rawSize),
		RealSize:    realSize,
		Offset:      offset,
		file:        a.file,
	}
	if compression != compress.None {
		entry.CompressedSize = uint64(pos) - offset
		entry.HasCompressedSize = true
	}

	a.entriesOffset = uint64(pos)
	return entry, nil
}

// Finalize writes the trailing metadata tree and its two u64 trailers,
// then fsyncs. Callers that mutate the tree purely through
// WriteFileEntry/InsertEntry (internal/repository) call this exactly
// once, after every worker has joined.
func (a *Archive) Finalize() error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	return a.writeTrailerLocked()
}

// trimTrailer discards any previously written trailer so the archive
// can be appended to again: it truncates the file back to
// entriesOffset, the boundary between payload data and metadata.
func (a *Archive) trimTrailer() error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	if err := a.file.Truncate(int64(a.entriesOffset)); err != nil {
		return err
	}
	_, err := a.file.Seek(int64(a.entriesOffset), io.SeekStart)
	return err
}

func (a *Archive) writeTrailerLocked() error {
	if _, err := a.file.Seek(int64(a.entriesOffset), io.SeekStart); err != nil {
		return err
	}

	enc, err := compress.NewWriter(a.file, compress.Deflate)
	if err != nil {
		return err
	}

	a.treeMu.RLock()
	entries := a.entries
	for _, e := range entries {
		if err := encodeEntryMetadata(enc, e); err != nil {
			a.treeMu.RUnlock()
			return err
		}
	}
	count := uint64(len(entries))
	a.treeMu.RUnlock()

	if err := enc.Close(); err != nil {
		return err
	}

	var trailer [16]byte
	putLeU64(trailer[0:8], count)
	putLeU64(trailer[8:16], a.entriesOffset)
	if _, err := a.file.Write(trailer[:]); err != nil {
		return err
	}

	return a.file.Sync()
}

// AddDirectory reads every entry (file, subdirectory, or symlink)
// directly under dirPath from the filesystem and appends it to the
// archive, writing raw file content (optionally compressed) rather
// than a chunk-ID stream. progress, if non-nil, is called once per
// filesystem entry visited.
func (a *Archive) AddDirectory(dirPath string, progress func(path string)) error {
	des, err := os.ReadDir(dirPath)
	if err != nil {
		return err
	}

	if err := a.trimTrailer(); err != nil {
		return err
	}

	for _, de := range des {
		entry, err := a.encodeFSEntry(filepath.Join(dirPath, de.Name()), progress)
		if err != nil {
			return err
		}
		if entry != nil {
			a.treeMu.Lock()
			a.entries = append(a.entries, entry)
			a.treeMu.Unlock()
		}
	}

	return a.writeTrailerWithLock()
}

// AddEntries is like AddDirectory but takes an explicit list of
// filesystem paths (mirroring the original's Vec<DirEntry> argument)
// rather than reading a directory itself.
func (a *Archive) AddEntries(paths []string, progress func(path string)) error {
	if err := a.trimTrailer(); err != nil {
		return err
	}

	for _, p := range paths {
		entry, err := a.encodeFSEntry(p, progress)
		if err != nil {
			return err
		}
		if entry != nil {
			a.treeMu.Lock()
			a.entries = append(a.entries, entry)
			a.treeMu.Unlock()
		}
	}

	return a.writeTrailerWithLock()
}

func (a *Archive) writeTrailerWithLock() error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	return a.writeTrailerLocked()
}

func (a *Archive) encodeFSEntry(path string, progress func(path string)) (Entry, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return nil, err
	}
	name := filepath.Base(path)
	uid, gid := fsOwner(info)
	mode := fsMode(info)
	mtime := info.ModTime().Unix()

	var entry Entry

	switch {
	case info.Mode()&os.ModeSymlink != 0:
		target, err := os.Readlink(path)
		if err != nil {
			return nil, err
		}
		targetInfo, statErr := os.Stat(path)
		entry = &SymlinkEntry{
			EntryName: name,
			EntryMode: mode,
			UID:       uid,
			GID:       gid,
			ModTime:   unixTime(mtime),
			Target:    target,
			TargetDir: statErr == nil && targetInfo.IsDir(),
		}

	case info.IsDir():
		children, err := os.ReadDir(path)
		if err != nil {
			return nil, err
		}
		kids := make([]Entry, 0, len(children))
		for _, c := range children {
			kid, err := a.encodeFSEntry(filepath.Join(path, c.Name()), progress)
			if err != nil {
				return nil, err
			}
			if kid != nil {
				kids = append(kids, kid)
			}
		}
		entry = &DirectoryEntry{
			EntryName: name,
			EntryMode: mode,
			UID:       uid,
			GID:       gid,
			ModTime:   unixTime(mtime),
			Children:  kids,
		}

	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		rawSize := info.Size()
		compression := compress.None
		if a.compressionFn != nil {
			compression = a.compressionFn(path, rawSize)
		} else if rawSize > 16 {
			compression = compress.Deflate
		}

		realSize := uint64(rawSize)
		if a.realSizeFn != nil {
			if rs, ok := a.realSizeFn(path); ok {
				realSize = rs
			}
		}

		fe, err := a.WriteFileEntry(f, name, mode, uid, gid, mtime, rawSize, realSize, compression)
		if err != nil {
			return nil, err
		}
		entry = fe
	}

	if progress != nil {
		progress(path)
	}

	return entry, nil
}

func leU64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}

func putLeU64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}
