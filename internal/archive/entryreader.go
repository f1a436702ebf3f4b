package archive

import (
	"context"
	"fmt"
	"io"

	"ddupbak/internal/varint"
)

// ChunkReader is the subset of internal/chunk.Index's contract
// EntryReader depends on: resolving a chunk ID to its decompressed
// content. Defined here, rather than importing internal/chunk directly,
// so the archive package stays the generic "streaming reader over a
// chunk-ID payload" spec.md §4.F describes, independent of any one
// chunk-store implementation.
type ChunkReader interface {
	ReadChunkIDContent(ctx context.Context, id uint64) (io.ReadCloser, error)
}

// EntryReader streams the concatenated, decompressed content addressed
// by a FileEntry's chunk-ID payload: one varint chunk ID after another,
// terminated by a 0 ID or by truncation of the underlying stream. It is
// not seekable, and does not validate that the payload is correctly
// terminated — EOF on the payload stream simply ends iteration, exactly
// as spec.md §4.F specifies.
type EntryReader struct {
	ctx     context.Context
	payload io.ReadCloser
	chunks  ChunkReader

	finished bool
	current  io.ReadCloser
}

// NewEntryReader opens entry's payload (decompressing it if necessary)
// and returns a reader that resolves its chunk-ID stream against chunks.
func NewEntryReader(ctx context.Context, entry *FileEntry, chunks ChunkReader) (*EntryReader, error) {
	payload, err := entry.Open()
	if err != nil {
		return nil, err
	}
	return &EntryReader{ctx: ctx, payload: payload, chunks: chunks}, nil
}

// Read implements io.Reader, pulling one chunk's content at a time from
// the chunk store as the previous chunk is exhausted.
func (r *EntryReader) Read(buf []byte) (int, error) {
	for {
		if r.finished {
			return 0, io.EOF
		}

		if r.current == nil {
			id := varint.DecodeU64(r.payload)
			if id == 0 {
				r.finished = true
				return 0, io.EOF
			}

			chunk, err := r.chunks.ReadChunkIDContent(r.ctx, id)
			if err != nil {
				r.finished = true
				return 0, fmt.Errorf("archive: reading chunk %d: %w", id, err)
			}
			r.current = chunk
		}

		n, err := r.current.Read(buf)
		if n > 0 {
			return n, nil
		}
		if err == io.EOF || err == nil {
			r.current.Close()
			r.current = nil
			continue
		}
		return 0, err
	}
}

// Close releases the underlying payload reader and any in-flight chunk
// reader.
func (r *EntryReader) Close() error {
	if r.current != nil {
		r.current.Close()
		r.current = nil
	}
	return r.payload.Close()
}
