package repository

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
)

// TestCreateRestoreDeleteLifecycle exercises the full archive lifecycle
// against a small chunk size so a handful of bytes spans several
// chunks, covering both chunk deduplication (the 20-byte "AB" run splits
// into five identical "ABAB" chunks sharing one chunk ID) and the restore/delete
// round trip described in spec.md's testable properties.
func TestCreateRestoreDeleteLifecycle(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	repo, err := New(Config{Dir: dir, ChunkSize: 4, Workers: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer repo.Close()

	if err := os.MkdirAll(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	content := bytes.Repeat([]byte("AB"), 10)
	if err := os.WriteFile(filepath.Join(dir, "sub", "data.bin"), content, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.Symlink("data.bin", filepath.Join(dir, "sub", "link")); err != nil {
		t.Fatalf("Symlink: %v", err)
	}

	name, err := repo.CreateArchive(ctx, "first", nil, nil)
	if err != nil {
		t.Fatalf("CreateArchive: %v", err)
	}
	if name != "first" {
		t.Errorf("name = %q, want %q", name, "first")
	}

	names, err := repo.ListArchives()
	if err != nil {
		t.Fatalf("ListArchives: %v", err)
	}
	if len(names) != 1 || names[0] != "first" {
		t.Fatalf("ListArchives = %v, want [first]", names)
	}

	restoredDir, err := repo.RestoreArchive(ctx, "first", nil)
	if err != nil {
		t.Fatalf("RestoreArchive: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(restoredDir, "sub", "data.bin"))
	if err != nil {
		t.Fatalf("ReadFile restored: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("restored content = %q, want %q", got, content)
	}

	target, err := os.Readlink(filepath.Join(restoredDir, "sub", "link"))
	if err != nil {
		t.Fatalf("Readlink: %v", err)
	}
	if target != "data.bin" {
		t.Errorf("symlink target = %q, want data.bin", target)
	}

	if err := repo.DeleteArchive(ctx, "first", nil); err != nil {
		t.Fatalf("DeleteArchive: %v", err)
	}

	names, err = repo.ListArchives()
	if err != nil {
		t.Fatalf("ListArchives after delete: %v", err)
	}
	if len(names) != 0 {
		t.Errorf("ListArchives after delete = %v, want empty", names)
	}

	if err := repo.Clean(ctx, nil); err != nil {
		t.Fatalf("Clean: %v", err)
	}
}

// TestCreateArchiveDuplicateNameFails verifies the spec's "archive
// already exists" error path.
func TestCreateArchiveDuplicateNameFails(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	repo, err := New(Config{Dir: dir, ChunkSize: 4096, Workers: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer repo.Close()

	if err := os.WriteFile(filepath.Join(dir, "f.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := repo.CreateArchive(ctx, "dup", nil, nil); err != nil {
		t.Fatalf("CreateArchive: %v", err)
	}
	if _, err := repo.CreateArchive(ctx, "dup", nil, nil); err == nil {
		t.Fatal("expected error creating duplicate archive name")
	}
}

// TestCreateArchiveAutoNames verifies that an empty name generates a
// unique petname-style name.
func TestCreateArchiveAutoNames(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	repo, err := New(Config{Dir: dir, ChunkSize: 4096, Workers: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer repo.Close()

	if err := os.WriteFile(filepath.Join(dir, "f.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	name, err := repo.CreateArchive(ctx, "", nil, nil)
	if err != nil {
		t.Fatalf("CreateArchive: %v", err)
	}
	if name == "" {
		t.Fatal("expected non-empty generated name")
	}
}

// TestIgnoredFilesSkipsMatchedPaths verifies the walker excludes any
// path matching an ignored glob pattern.
func TestIgnoredFilesSkipsMatchedPaths(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	repo, err := New(Config{Dir: dir, ChunkSize: 4096, Workers: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer repo.Close()

	repo.AddIgnoredFile("*.log")

	if err := os.WriteFile(filepath.Join(dir, "keep.txt"), []byte("keep"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "skip.log"), []byte("skip"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	name, err := repo.CreateArchive(ctx, "ign", nil, nil)
	if err != nil {
		t.Fatalf("CreateArchive: %v", err)
	}

	restoredDir, err := repo.RestoreArchive(ctx, name, nil)
	if err != nil {
		t.Fatalf("RestoreArchive: %v", err)
	}

	if _, err := os.Stat(filepath.Join(restoredDir, "keep.txt")); err != nil {
		t.Errorf("expected keep.txt to be restored: %v", err)
	}
	if _, err := os.Stat(filepath.Join(restoredDir, "skip.log")); err == nil {
		t.Errorf("expected skip.log to be excluded from the archive")
	}
}
