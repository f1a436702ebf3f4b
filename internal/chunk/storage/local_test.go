package storage

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func testHash(b byte) Hash {
	var h Hash
	for i := range h {
		h[i] = b
	}
	return h
}

func TestLocalWriteReadDelete(t *testing.T) {
	dir := t.TempDir()
	l := NewLocal(dir, nil)
	ctx := context.Background()
	hash := testHash(0xAB)

	if err := l.Write(ctx, hash, bytes.NewReader([]byte("hello"))); err != nil {
		t.Fatalf("Write: %v", err)
	}

	r, err := l.Read(ctx, hash)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	got, err := io.ReadAll(r)
	r.Close()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("got %q, want %q", got, "hello")
	}

	if err := l.Delete(ctx, hash); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := l.Read(ctx, hash); err != ErrNotFound {
		t.Errorf("Read after Delete: got %v, want ErrNotFound", err)
	}
}

func TestLocalShardsByHexPrefix(t *testing.T) {
	dir := t.TempDir()
	l := NewLocal(dir, nil)
	hash := testHash(0x0A)

	if err := l.Write(context.Background(), hash, bytes.NewReader(nil)); err != nil {
		t.Fatalf("Write: %v", err)
	}

	want := filepath.Join(dir, "0a", "0a")
	if _, err := os.Stat(want); err != nil {
		t.Errorf("expected shard directory %s to exist: %v", want, err)
	}
}

func TestLocalDeletePrunesEmptyShardDirs(t *testing.T) {
	dir := t.TempDir()
	l := NewLocal(dir, nil)
	hash := testHash(0x11)

	if err := l.Write(context.Background(), hash, bytes.NewReader(nil)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := l.Delete(context.Background(), hash); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected root dir to be empty after pruning, found %v", entries)
	}
}

func TestLocalReadMissingReturnsNotFound(t *testing.T) {
	l := NewLocal(t.TempDir(), nil)
	if _, err := l.Read(context.Background(), testHash(0xFF)); err != ErrNotFound {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestKeyLayout(t *testing.T) {
	key := Key(testHash(0x01))
	if key[:6] != "01/01/" {
		t.Errorf("got prefix %q, want %q", key[:6], "01/01/")
	}
	if filepath.Ext(key) != ".chunk" {
		t.Errorf("expected .chunk suffix, got %q", key)
	}
}
