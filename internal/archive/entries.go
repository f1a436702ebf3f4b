package archive

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"ddupbak/internal/compress"
	"ddupbak/internal/varint"
)

// maxNameLength is the enforced cap on entry names. spec.md's source
// leaves this ambiguous (single-byte length in some encodings, unenforced
// varint in others); this implementation resolves it per the Design Note
// in spec.md §9: a varint-prefixed length, with the 255-byte limit
// enforced at encode time rather than silently truncated.
const maxNameLength = 255

// ErrNameTooLong is returned when an entry name exceeds maxNameLength bytes.
var ErrNameTooLong = errors.New("archive: entry name longer than 255 bytes")

// ErrUnsupportedEntryType is returned when decoding a metadata tree
// containing an entry-type tag this implementation doesn't recognize.
var ErrUnsupportedEntryType = errors.New("archive: unsupported entry type")

// Kind identifies which of the three Entry variants a node is.
type Kind uint8

const (
	KindFile Kind = iota
	KindDirectory
	KindSymlink
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	case KindSymlink:
		return "symlink"
	default:
		return "unknown"
	}
}

// Entry is a node in an archive's metadata tree: a File, Directory, or
// Symlink. The concrete types are always used as pointers so that
// in-place mutation (appending children to a Directory) is visible to
// every holder of the interface value.
type Entry interface {
	Kind() Kind
	Name() string
	Mode() uint32
	Owner() (uid, gid uint32)
	MTime() time.Time
}

// FileEntry is a regular file. Its on-archive payload, beginning at
// Offset, is either the file's raw bytes (possibly compressed) for the
// standalone archive codec, or a chunk-ID varint stream when written by
// internal/repository — see RealSize's doc comment.
type FileEntry struct {
	EntryName string
	EntryMode uint32
	UID, GID  uint32
	ModTime   time.Time

	Compression compress.Format
	// RawSize is the number of payload bytes as stored on disk before
	// any compression, i.e. the size of the plaintext written through
	// the compressor. For repository-managed files this is the size of
	// the chunk-ID varint stream, not the original file's content length.
	RawSize uint64
	// CompressedSize is the on-disk byte length of the (possibly
	// compressed) payload. Present only when Compression != None.
	CompressedSize    uint64
	HasCompressedSize bool
	// RealSize is the user-visible uncompressed content length. For
	// archives produced by this package's AddDirectory/AddEntries it
	// equals RawSize; internal/repository passes the source file's length
	// to WriteFileEntry when the payload is a chunk-ID stream.
	RealSize uint64
	// Offset is the absolute byte offset into the archive file where
	// the payload begins.
	Offset uint64

	// file is the archive's shared, read-only file handle used to
	// service Open(). Set by WriteFileEntry and by decodeEntryMetadata;
	// never closed by FileEntry itself — ownership is shared with the
	// parent Archive for as long as either is alive (see SPEC_FULL.md's
	// design note on cyclic ownership).
	file *os.File
}

func (f *FileEntry) Kind() Kind                { return KindFile }
func (f *FileEntry) Name() string              { return f.EntryName }
func (f *FileEntry) Mode() uint32              { return f.EntryMode }
func (f *FileEntry) Owner() (uint32, uint32)   { return f.UID, f.GID }
func (f *FileEntry) MTime() time.Time          { return f.ModTime }

// diskLen returns the number of bytes the payload occupies on disk.
func (f *FileEntry) diskLen() uint64 {
	if f.Compression != compress.None && f.HasCompressedSize {
		return f.CompressedSize
	}
	return f.RawSize
}

// Open returns a reader over the entry's decompressed payload bytes: the
// raw file content for archives written via AddDirectory/AddEntries, or
// the chunk-ID varint stream for repository-managed archives. Callers
// that only want the chunk-ID stream use this directly; callers that
// want reconstructed file content go through archive.EntryReader
// instead, which consumes this stream via a ChunkReader.
func (f *FileEntry) Open() (io.ReadCloser, error) {
	if f.file == nil {
		return nil, fmt.Errorf("archive: entry %q has no backing file handle", f.EntryName)
	}
	section := io.NewSectionReader(f.file, int64(f.Offset), int64(f.diskLen()))
	r, err := compress.NewReader(section, f.Compression)
	if err != nil {
		return nil, err
	}
	if rc, ok := r.(io.ReadCloser); ok {
		return rc, nil
	}
	return io.NopCloser(r), nil
}

// DirectoryEntry is a directory: its children are appended to
// concurrently during Repository.CreateArchive, under the owning
// Archive's tree mutex (see Archive.InsertEntry).
type DirectoryEntry struct {
	EntryName string
	EntryMode uint32
	UID, GID  uint32
	ModTime   time.Time
	Children  []Entry
}

func (d *DirectoryEntry) Kind() Kind              { return KindDirectory }
func (d *DirectoryEntry) Name() string            { return d.EntryName }
func (d *DirectoryEntry) Mode() uint32            { return d.EntryMode }
func (d *DirectoryEntry) Owner() (uint32, uint32) { return d.UID, d.GID }
func (d *DirectoryEntry) MTime() time.Time        { return d.ModTime }

// SymlinkEntry is a symbolic link. TargetDir is sampled at backup time
// (whether the link's resolved target was a directory when walked), not
// re-derived at restore time.
type SymlinkEntry struct {
	EntryName string
	EntryMode uint32
	UID, GID  uint32
	ModTime   time.Time
	Target    string
	TargetDir bool
}

func (s *SymlinkEntry) Kind() Kind              { return KindSymlink }
func (s *SymlinkEntry) Name() string            { return s.EntryName }
func (s *SymlinkEntry) Mode() uint32            { return s.EntryMode }
func (s *SymlinkEntry) Owner() (uint32, uint32) { return s.UID, s.GID }
func (s *SymlinkEntry) MTime() time.Time        { return s.ModTime }

// encodeEntryMetadata writes one metadata-tree node (and, for
// directories, its full subtree) to w in the depth-first preorder
// format spec.md §4.E describes.
func encodeEntryMetadata(w io.Writer, e Entry) error {
	name := e.Name()
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: %q (%d bytes)", ErrNameTooLong, name, len(name))
	}

	buf := varint.EncodeU32(nil, uint32(len(name)))
	buf = append(buf, name...)

	var entryType uint32
	var compression compress.Format
	switch v := e.(type) {
	case *FileEntry:
		entryType = 0
		compression = v.Compression
	case *DirectoryEntry:
		entryType = 1
	case *SymlinkEntry:
		entryType = 2
	default:
		return fmt.Errorf("archive: %w: %T", ErrUnsupportedEntryType, e)
	}

	// Packed exactly as the original: entry type in bits 31-30,
	// compression tag in bits 29-26, and the mode's low 30 bits OR'd in
	// last — the original does not mask the compression bits out of
	// mode first, so a mode with bits set above bit 25 can clobber the
	// compression field on decode. Reproduced verbatim for wire
	// compatibility rather than "fixed", since nothing in this spec
	// calls for changing the wire format.
	packed := (entryType << 30) | (uint32(compression) << 26) | (e.Mode() & 0x3FFFFFFF)
	buf = append(buf, byte(packed), byte(packed>>8), byte(packed>>16), byte(packed>>24))

	uid, gid := e.Owner()
	buf = varint.EncodeU32(buf, uid)
	buf = varint.EncodeU32(buf, gid)
	buf = varint.EncodeU64(buf, uint64(e.MTime().Unix()))

	if _, err := w.Write(buf); err != nil {
		return err
	}

	switch v := e.(type) {
	case *FileEntry:
		tail := varint.EncodeU64(nil, v.RawSize)
		if v.Compression != compress.None {
			tail = varint.EncodeU64(tail, v.CompressedSize)
		}
		tail = varint.EncodeU64(tail, v.RealSize)
		tail = varint.EncodeU64(tail, v.Offset)
		_, err := w.Write(tail)
		return err

	case *DirectoryEntry:
		if _, err := w.Write(varint.EncodeU64(nil, uint64(len(v.Children)))); err != nil {
			return err
		}
		for _, child := range v.Children {
			if err := encodeEntryMetadata(w, child); err != nil {
				return err
			}
		}
		return nil

	case *SymlinkEntry:
		tail := varint.EncodeU64(nil, uint64(len(v.Target)))
		tail = append(tail, v.Target...)
		tail = append(tail, boolByte(v.TargetDir))
		_, err := w.Write(tail)
		return err
	}

	return nil
}

// decodeEntryMetadata reads one metadata-tree node (and its subtree, for
// directories) from r. file is the archive's shared file handle, wired
// into any FileEntry so Open() can later read its payload.
func decodeEntryMetadata(r io.Reader, file *os.File) (Entry, error) {
	nameLen := varint.DecodeU32(r)
	nameBytes := make([]byte, nameLen)
	if _, err := io.ReadFull(r, nameBytes); err != nil {
		return nil, fmt.Errorf("archive: reading entry name: %w", err)
	}
	name := string(nameBytes)

	var packedBytes [4]byte
	if _, err := io.ReadFull(r, packedBytes[:]); err != nil {
		return nil, fmt.Errorf("archive: reading entry header: %w", err)
	}
	packed := uint32(packedBytes[0]) | uint32(packedBytes[1])<<8 | uint32(packedBytes[2])<<16 | uint32(packedBytes[3])<<24

	entryType := (packed >> 30) & 0b11
	compression := compress.Format((packed >> 26) & 0b1111)
	mode := packed & 0x3FFFFFFF

	uid := varint.DecodeU32(r)
	gid := varint.DecodeU32(r)
	mtime := time.Unix(int64(varint.DecodeU64(r)), 0).UTC()

	switch entryType {
	case 0:
		rawSize := varint.DecodeU64(r)
		var compressedSize uint64
		hasCompressedSize := compression != compress.None
		if hasCompressedSize {
			compressedSize = varint.DecodeU64(r)
		}
		realSize := varint.DecodeU64(r)
		offset := varint.DecodeU64(r)

		return &FileEntry{
			EntryName:         name,
			EntryMode:         mode,
			UID:               uid,
			GID:               gid,
			ModTime:           mtime,
			Compression:       compression,
			RawSize:           rawSize,
			CompressedSize:    compressedSize,
			HasCompressedSize: hasCompressedSize,
			RealSize:          realSize,
			Offset:            offset,
			file:              file,
		}, nil

	case 1:
		childCount := varint.DecodeU64(r)
		children := make([]Entry, 0, childCount)
		for i := uint64(0); i < childCount; i++ {
			child, err := decodeEntryMetadata(r, file)
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		}
		return &DirectoryEntry{
			EntryName: name,
			EntryMode: mode,
			UID:       uid,
			GID:       gid,
			ModTime:   mtime,
			Children:  children,
		}, nil

	case 2:
		targetLen := varint.DecodeU64(r)
		targetBytes := make([]byte, targetLen)
		if _, err := io.ReadFull(r, targetBytes); err != nil {
			return nil, fmt.Errorf("archive: reading symlink target: %w", err)
		}
		var targetDirByte [1]byte
		if _, err := io.ReadFull(r, targetDirByte[:]); err != nil {
			return nil, fmt.Errorf("archive: reading symlink target_dir flag: %w", err)
		}

		return &SymlinkEntry{
			EntryName: name,
			EntryMode: mode,
			UID:       uid,
			GID:       gid,
			ModTime:   mtime,
			Target:    string(targetBytes),
			TargetDir: targetDirByte[0] != 0,
		}, nil

	default:
		return nil, fmt.Errorf("archive: %w: %d", ErrUnsupportedEntryType, entryType)
	}
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
