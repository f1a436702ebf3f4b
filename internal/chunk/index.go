// Package chunk implements the content-addressed chunk index: the
// in-memory (id, hash, refcount) table plus the on-disk blob layer it
// fronts. Cross-process exclusion around Open/Save is the
// responsibility of the caller (internal/repository), which wraps
// index access in an internal/lock.RWLock over the same directory —
// see Open's doc comment.
package chunk

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"ddupbak/internal/chunk/storage"
	"ddupbak/internal/compress"
	"ddupbak/internal/logging"
	"ddupbak/internal/varint"

	"golang.org/x/crypto/blake2b"
)

// Hash is a BLAKE2b-256 content hash.
type Hash = [32]byte

// indexFileName is the name of the serialized index within the index
// directory.
const indexFileName = "index"

// Index is the content-addressed chunk store: a refcounted map from
// chunk ID to (hash, refcount), a reverse hash-to-ID lookup, and a
// recycling queue of freed IDs. Index is safe for concurrent use.
type Index struct {
	dir     string
	backend storage.Backend
	logger  *slog.Logger

	nextID atomic.Uint64

	deletedMu      sync.Mutex
	deletedChunks  []uint64

	chunks      *idMap
	chunkHashes *hashMap

	chunkSize     int
	maxChunkCount int
}

// Config holds the parameters fixed at Index creation time.
type Config struct {
	Dir           string
	ChunkSize     int
	MaxChunkCount int
	Backend       storage.Backend
	Logger        *slog.Logger
}

// New creates a fresh Index with no on-disk state. Save must be called
// explicitly to persist it; unlike the original's Drop-based
// save_on_drop, Go has no destructors, so callers own the save point.
func New(cfg Config) *Index {
	idx := &Index{
		dir:           cfg.Dir,
		backend:       cfg.Backend,
		logger:        logging.Default(cfg.Logger).With("component", "chunk-index"),
		chunks:        newIDMap(10_000),
		chunkHashes:   newHashMap(10_000),
		chunkSize:     cfg.ChunkSize,
		maxChunkCount: cfg.MaxChunkCount,
	}
	idx.nextID.Store(1)
	return idx
}

// Open parses dir/index (DEFLATE-compressed) and returns a populated
// Index. Open does not itself take any lock; callers that need
// exclusion against concurrent writers must hold an
// internal/lock.RWLock over dir before calling Open and until after the
// matching Save.
func Open(dir string, backend storage.Backend, logger *slog.Logger) (*Index, error) {
	f, err := os.Open(filepath.Join(dir, indexFileName))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, err := compress.NewReader(f, compress.Deflate)
	if err != nil {
		return nil, err
	}

	var header [32]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	deletedCount := leU64(header[0:8])
	chunkSize := leU32(header[8:12])
	maxChunkCount := leU32(header[12:16])
	chunkCount := leU64(header[16:24])
	nextID := leU64(header[24:32])

	idx := &Index{
		dir:           dir,
		backend:       backend,
		logger:        logging.Default(logger).With("component", "chunk-index"),
		chunks:        newIDMap(int(chunkCount)),
		chunkHashes:   newHashMap(int(chunkCount)),
		chunkSize:     int(chunkSize),
		maxChunkCount: int(maxChunkCount),
		deletedChunks: make([]uint64, 0, deletedCount),
	}
	idx.nextID.Store(nextID)

	for i := uint64(0); i < deletedCount; i++ {
		idx.deletedChunks = append(idx.deletedChunks, varint.DecodeU64(r))
	}

	for i := uint64(0); i < chunkCount; i++ {
		var hash Hash
		if _, err := io.ReadFull(r, hash[:]); err != nil {
			return nil, fmt.Errorf("chunk: reading index entry %d of %d: %w", i, chunkCount, err)
		}
		id := varint.DecodeU64(r)
		count := varint.DecodeU64(r)

		idx.chunks.set(id, idEntry{hash: hash, count: count})
		idx.chunkHashes.set(hash, id)
	}

	return idx, nil
}

// Save writes dir/index atomically: a temp file in the same directory
// is written, fsynced, and renamed over the final name.
func (idx *Index) Save() error {
	tmp, err := os.CreateTemp(idx.dir, indexFileName+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	w, err := compress.NewWriter(tmp, compress.Deflate)
	if err != nil {
		tmp.Close()
		return err
	}

	idx.deletedMu.Lock()
	deleted := append([]uint64(nil), idx.deletedChunks...)
	idx.deletedMu.Unlock()

	chunkCount := idx.chunks.len()

	var header [32]byte
	putLeU64(header[0:8], uint64(len(deleted)))
	putLeU32(header[8:12], uint32(idx.chunkSize))
	putLeU32(header[12:16], uint32(idx.maxChunkCount))
	putLeU64(header[16:24], uint64(chunkCount))
	putLeU64(header[24:32], idx.nextID.Load())

	if _, err := w.Write(header[:]); err != nil {
		w.Close()
		tmp.Close()
		return err
	}

	for _, id := range deleted {
		if _, err := w.Write(varint.EncodeU64(nil, id)); err != nil {
			w.Close()
			tmp.Close()
			return err
		}
	}

	var writeErr error
	idx.chunks.forEach(func(id uint64, e idEntry) {
		if writeErr != nil {
			return
		}
		buf := make([]byte, 0, 32+20)
		buf = append(buf, e.hash[:]...)
		buf = varint.EncodeU64(buf, id)
		buf = varint.EncodeU64(buf, e.count)
		if _, err := w.Write(buf); err != nil {
			writeErr = err
		}
	})
	if writeErr != nil {
		w.Close()
		tmp.Close()
		return writeErr
	}

	if err := w.Close(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmpPath, filepath.Join(idx.dir, indexFileName))
}

// References returns the current refcount for the chunk with content
// hash. Returns 0 if hash is not present.
func (idx *Index) References(hash Hash) uint64 {
	id, ok := idx.chunkHashes.get(hash)
	if !ok {
		return 0
	}
	e, ok := idx.chunks.get(id)
	if !ok {
		return 0
	}
	return e.count
}

// allocID returns a recycled deleted ID if one is queued, otherwise the
// next monotonic ID.
func (idx *Index) allocID() uint64 {
	idx.deletedMu.Lock()
	if len(idx.deletedChunks) > 0 {
		id := idx.deletedChunks[0]
		idx.deletedChunks = idx.deletedChunks[1:]
		idx.deletedMu.Unlock()
		return id
	}
	idx.deletedMu.Unlock()
	return idx.nextID.Add(1) - 1
}

// AddChunk stores data under hash if it isn't already known, and
// returns its chunk ID. Refcounts are not touched here: ChunkFile
// applies refcount increments in a batch once all chunks of a file have
// been added, matching the original's two-phase design.
func (idx *Index) AddChunk(ctx context.Context, hash Hash, data []byte, compression compress.Format) (uint64, error) {
	id, known := idx.chunkHashes.get(hash)
	if !known {
		id = idx.allocID()
		idx.chunkHashes.set(hash, id)
	}

	if e, ok := idx.chunks.get(id); ok && e.count > 0 {
		return id, nil
	}

	var buf bytes.Buffer
	w, err := compress.NewWriter(&buf, compression)
	if err != nil {
		return 0, err
	}
	if _, err := w.Write(data); err != nil {
		return 0, err
	}
	if err := w.Close(); err != nil {
		return 0, err
	}

	blob := make([]byte, 0, buf.Len()+1)
	blob = append(blob, byte(compression))
	blob = append(blob, buf.Bytes()...)

	if err := idx.backend.Write(ctx, storage.Hash(hash), bytes.NewReader(blob)); err != nil {
		return 0, err
	}

	return id, nil
}

// DereferenceChunkID decrements the refcount for chunkID. If the
// refcount reaches zero and cleanIfZero is true, the blob and index
// entry are removed and the ID is recycled. The returned bool reports
// whether the chunk was actually deleted; ok is false if chunkID is
// unknown.
func (idx *Index) DereferenceChunkID(ctx context.Context, chunkID uint64, cleanIfZero bool) (deleted bool, ok bool) {
	e, found := idx.chunks.get(chunkID)
	if !found {
		return false, false
	}

	e = idx.chunks.update(chunkID, e, func(cur idEntry) idEntry {
		if cur.count > 0 {
			cur.count--
		}
		return cur
	})

	if e.count != 0 || !cleanIfZero {
		return false, true
	}

	idx.chunks.delete(chunkID)
	idx.chunkHashes.delete(e.hash)
	_ = idx.backend.Delete(ctx, storage.Hash(e.hash))

	idx.deletedMu.Lock()
	idx.deletedChunks = append(idx.deletedChunks, chunkID)
	idx.deletedMu.Unlock()

	return true, true
}

// ReadChunkIDContent opens the blob for chunkID, peels its one-byte
// compression tag, and wraps the remainder in the matching decoder.
func (idx *Index) ReadChunkIDContent(ctx context.Context, chunkID uint64) (io.ReadCloser, error) {
	e, ok := idx.chunks.get(chunkID)
	if !ok {
		return nil, ErrUnknownChunkID
	}

	rc, err := idx.backend.Read(ctx, storage.Hash(e.hash))
	if err != nil {
		return nil, err
	}

	var tag [1]byte
	if _, err := io.ReadFull(rc, tag[:]); err != nil {
		rc.Close()
		return nil, err
	}

	decoded, err := compress.NewReader(rc, compress.Format(tag[0]))
	if err != nil {
		rc.Close()
		return nil, err
	}

	return readCloser{Reader: decoded, closer: rc}, nil
}

// Clean sweeps every entry with a zero refcount, removing its blob and
// ID. progress, if non-nil, is invoked once per removed chunk ID before
// the removal is attempted.
func (idx *Index) Clean(ctx context.Context, progress func(id uint64)) error {
	var toDelete []struct {
		id   uint64
		hash Hash
	}
	idx.chunks.forEach(func(id uint64, e idEntry) {
		if e.count == 0 {
			toDelete = append(toDelete, struct {
				id   uint64
				hash Hash
			}{id, e.hash})
		}
	})

	for _, d := range toDelete {
		if progress != nil {
			progress(d.id)
		}

		if err := idx.backend.Delete(ctx, storage.Hash(d.hash)); err != nil {
			return err
		}

		idx.chunkHashes.delete(d.hash)
		idx.chunks.delete(d.id)

		idx.deletedMu.Lock()
		idx.deletedChunks = append(idx.deletedChunks, d.id)
		idx.deletedMu.Unlock()
	}

	return nil
}

func leU32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func leU64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}

func putLeU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func putLeU64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

// Blake2b256 hashes data with BLAKE2b-256, the hash algorithm used for
// all chunk content addressing.
func Blake2b256(data []byte) Hash {
	return blake2b.Sum256(data)
}

type readCloser struct {
	io.Reader
	closer io.Closer
}

func (r readCloser) Close() error { return r.closer.Close() }
