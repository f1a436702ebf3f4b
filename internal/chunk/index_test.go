package chunk

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"ddupbak/internal/chunk/storage"
	"ddupbak/internal/compress"
)

func newTestIndex(t *testing.T) (*Index, string) {
	t.Helper()
	dir := t.TempDir()
	backend := storage.NewLocal(filepath.Join(dir, "blobs"), nil)
	idx := New(Config{
		Dir:           dir,
		ChunkSize:     64,
		MaxChunkCount: 0,
		Backend:       backend,
	})
	return idx, dir
}

func TestAddChunkDedupesByHash(t *testing.T) {
	idx, _ := newTestIndex(t)
	ctx := context.Background()
	data := []byte("deduplicate me")
	hash := Blake2b256(data)

	id1, err := idx.AddChunk(ctx, hash, data, compress.None)
	if err != nil {
		t.Fatalf("AddChunk: %v", err)
	}
	id2, err := idx.AddChunk(ctx, hash, data, compress.None)
	if err != nil {
		t.Fatalf("AddChunk second call: %v", err)
	}
	if id1 != id2 {
		t.Errorf("expected same chunk id for identical content, got %d and %d", id1, id2)
	}
}

func TestChunkFileSerialRoundTrip(t *testing.T) {
	idx, dir := newTestIndex(t)
	ctx := context.Background()

	content := bytes.Repeat([]byte("0123456789"), 50) // 500 bytes, chunkSize 64
	path := filepath.Join(dir, "input.bin")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	ids, err := idx.ChunkFile(ctx, path, compress.Deflate, 1)
	if err != nil {
		t.Fatalf("ChunkFile: %v", err)
	}
	if len(ids) == 0 {
		t.Fatalf("expected at least one chunk")
	}

	var reassembled bytes.Buffer
	for _, id := range ids {
		r, err := idx.ReadChunkIDContent(ctx, id)
		if err != nil {
			t.Fatalf("ReadChunkIDContent(%d): %v", id, err)
		}
		if _, err := reassembled.ReadFrom(r); err != nil {
			t.Fatalf("ReadFrom: %v", err)
		}
		r.Close()
	}

	if !bytes.Equal(reassembled.Bytes(), content) {
		t.Errorf("reassembled content does not match original")
	}
}

func TestChunkFileParallelMatchesSerial(t *testing.T) {
	content := bytes.Repeat([]byte("abcdefghij"), 400) // 4000 bytes

	serialIdx, dir1 := newTestIndex(t)
	path1 := filepath.Join(dir1, "input.bin")
	os.WriteFile(path1, content, 0o644)
	serialIDs, err := serialIdx.ChunkFile(context.Background(), path1, compress.None, 1)
	if err != nil {
		t.Fatalf("serial ChunkFile: %v", err)
	}

	parallelIdx, dir2 := newTestIndex(t)
	path2 := filepath.Join(dir2, "input.bin")
	os.WriteFile(path2, content, 0o644)
	parallelIDs, err := parallelIdx.ChunkFile(context.Background(), path2, compress.None, 8)
	if err != nil {
		t.Fatalf("parallel ChunkFile: %v", err)
	}

	if len(serialIDs) != len(parallelIDs) {
		t.Fatalf("chunk count mismatch: serial=%d parallel=%d", len(serialIDs), len(parallelIDs))
	}
}

func TestDereferenceChunkIDRecyclesID(t *testing.T) {
	idx, _ := newTestIndex(t)
	ctx := context.Background()
	data := []byte("recyclable")
	hash := Blake2b256(data)

	id, err := idx.AddChunk(ctx, hash, data, compress.None)
	if err != nil {
		t.Fatalf("AddChunk: %v", err)
	}
	idx.chunks.set(id, idEntry{hash: hash, count: 1})

	deleted, ok := idx.DereferenceChunkID(ctx, id, true)
	if !ok || !deleted {
		t.Fatalf("expected chunk to be deleted, got deleted=%v ok=%v", deleted, ok)
	}

	if _, ok := idx.chunks.get(id); ok {
		t.Errorf("expected chunk entry to be removed")
	}

	nextID := idx.allocID()
	if nextID != id {
		t.Errorf("expected recycled id %d, got %d", id, nextID)
	}
}

func TestDereferenceUnknownChunkID(t *testing.T) {
	idx, _ := newTestIndex(t)
	if _, ok := idx.DereferenceChunkID(context.Background(), 9999, true); ok {
		t.Errorf("expected ok=false for unknown chunk id")
	}
}

func TestSaveOpenRoundTrip(t *testing.T) {
	idx, dir := newTestIndex(t)
	ctx := context.Background()
	data := []byte("persisted chunk")
	hash := Blake2b256(data)

	id, err := idx.AddChunk(ctx, hash, data, compress.None)
	if err != nil {
		t.Fatalf("AddChunk: %v", err)
	}
	idx.chunks.set(id, idEntry{hash: hash, count: 3})

	if err := idx.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	backend := storage.NewLocal(filepath.Join(dir, "blobs"), nil)
	reopened, err := Open(dir, backend, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if got := reopened.References(hash); got != 3 {
		t.Errorf("References: got %d, want 3", got)
	}
}

func TestCleanRemovesZeroRefcountEntries(t *testing.T) {
	idx, _ := newTestIndex(t)
	ctx := context.Background()
	data := []byte("sweep me")
	hash := Blake2b256(data)

	id, err := idx.AddChunk(ctx, hash, data, compress.None)
	if err != nil {
		t.Fatalf("AddChunk: %v", err)
	}
	idx.chunks.set(id, idEntry{hash: hash, count: 0})

	var cleaned []uint64
	if err := idx.Clean(ctx, func(id uint64) { cleaned = append(cleaned, id) }); err != nil {
		t.Fatalf("Clean: %v", err)
	}

	if len(cleaned) != 1 || cleaned[0] != id {
		t.Errorf("expected clean to report id %d, got %v", id, cleaned)
	}
	if _, ok := idx.chunks.get(id); ok {
		t.Errorf("expected entry to be removed after Clean")
	}
}
