package archive

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"ddupbak/internal/compress"
)

func TestNewWritesSignatureAndVersion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.ddup")

	a, err := New(path, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(data[:7], FileSignature[:]) {
		t.Errorf("signature mismatch: %q", data[:7])
	}
	if data[7] != FormatVersion {
		t.Errorf("version = %d, want %d", data[7], FormatVersion)
	}
}

func TestWriteFileEntryAndReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.ddup")

	a, err := New(path, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	content := bytes.Repeat([]byte("x"), 100)
	mtime := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Unix()

	entry, err := a.WriteFileEntry(bytes.NewReader(content), "hello.txt", 0o644, 1000, 1000, mtime, int64(len(content)), uint64(len(content)), compress.None)
	if err != nil {
		t.Fatalf("WriteFileEntry: %v", err)
	}
	if err := a.InsertEntry(nil, entry); err != nil {
		t.Fatalf("InsertEntry: %v", err)
	}
	if err := a.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer reopened.Close()

	entries := reopened.Entries()
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(entries))
	}

	fe, ok := entries[0].(*FileEntry)
	if !ok {
		t.Fatalf("entry is %T, want *FileEntry", entries[0])
	}
	if fe.Name() != "hello.txt" {
		t.Errorf("Name() = %q", fe.Name())
	}
	if fe.RawSize != uint64(len(content)) {
		t.Errorf("RawSize = %d, want %d", fe.RawSize, len(content))
	}
	if !fe.MTime().Equal(time.Unix(mtime, 0).UTC()) {
		t.Errorf("MTime = %v, want %v", fe.MTime(), time.Unix(mtime, 0).UTC())
	}

	r, err := fe.Open()
	if err != nil {
		t.Fatalf("Open payload: %v", err)
	}
	defer r.Close()
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("payload mismatch")
	}
}

func TestInsertEntryIntoNestedDirectory(t *testing.T) {
	dir := t.TempDir()
	a, err := New(filepath.Join(dir, "test.ddup"), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	root := &DirectoryEntry{EntryName: "sub"}
	if err := a.InsertEntry(nil, root); err != nil {
		t.Fatalf("InsertEntry root: %v", err)
	}

	leaf, err := a.WriteFileEntry(bytes.NewReader([]byte("hi")), "leaf.txt", 0o644, 0, 0, 0, 2, 2, compress.None)
	if err != nil {
		t.Fatalf("WriteFileEntry: %v", err)
	}
	if err := a.InsertEntry([]string{"sub"}, leaf); err != nil {
		t.Fatalf("InsertEntry leaf: %v", err)
	}

	found, err := a.FindEntry("sub/leaf.txt")
	if err != nil {
		t.Fatalf("FindEntry: %v", err)
	}
	if found.Name() != "leaf.txt" {
		t.Errorf("found wrong entry: %q", found.Name())
	}
}

func TestFindEntryNotFound(t *testing.T) {
	dir := t.TempDir()
	a, err := New(filepath.Join(dir, "test.ddup"), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	if _, err := a.FindEntry("does/not/exist"); err != ErrEntryNotFound {
		t.Errorf("err = %v, want ErrEntryNotFound", err)
	}
}

func TestOpenRejectsBadSignature(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.ddup")
	if err := os.WriteFile(path, bytes.Repeat([]byte{0}, 32), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := Open(path, nil); err != ErrInvalidSignature {
		t.Errorf("err = %v, want ErrInvalidSignature", err)
	}
}

func TestAddDirectoryRawCodec(t *testing.T) {
	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "a.txt"), []byte("hello\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.Mkdir(filepath.Join(src, "sub"), 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(src, "sub", "b.txt"), bytes.Repeat([]byte("z"), 64), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	dst := t.TempDir()
	a, err := New(filepath.Join(dst, "test.ddup"), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	if err := a.AddDirectory(src, nil); err != nil {
		t.Fatalf("AddDirectory: %v", err)
	}

	found, err := a.FindEntry("a.txt")
	if err != nil {
		t.Fatalf("FindEntry a.txt: %v", err)
	}
	fe := found.(*FileEntry)
	if fe.RealSize != fe.RawSize {
		t.Errorf("raw codec entry should have RealSize == RawSize, got %d != %d", fe.RealSize, fe.RawSize)
	}

	r, err := fe.Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "hello\n" {
		t.Errorf("content = %q", got)
	}

	subFound, err := a.FindEntry("sub/b.txt")
	if err != nil {
		t.Fatalf("FindEntry sub/b.txt: %v", err)
	}
	subFE := subFound.(*FileEntry)
	if subFE.Compression != compress.Deflate {
		t.Errorf("expected Deflate for 64-byte file, got %v", subFE.Compression)
	}
}
