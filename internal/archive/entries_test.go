package archive

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"ddupbak/internal/compress"
)

func TestEncodeDecodeEntryMetadataRoundTrip(t *testing.T) {
	tree := []Entry{
		&DirectoryEntry{
			EntryName: "dir",
			EntryMode: 0o755,
			UID:       1,
			GID:       2,
			ModTime:   time.Unix(1700000000, 0).UTC(),
			Children: []Entry{
				&FileEntry{
					EntryName:         "file.txt",
					EntryMode:         0o644,
					UID:               3,
					GID:               4,
					ModTime:           time.Unix(1700000001, 0).UTC(),
					Compression:       compress.Deflate,
					RawSize:           500,
					CompressedSize:    120,
					HasCompressedSize: true,
					RealSize:          500,
					Offset:            8,
				},
				&SymlinkEntry{
					EntryName: "link",
					EntryMode: 0o777,
					ModTime:   time.Unix(1700000002, 0).UTC(),
					Target:    "file.txt",
					TargetDir: false,
				},
			},
		},
	}

	var buf bytes.Buffer
	for _, e := range tree {
		if err := encodeEntryMetadata(&buf, e); err != nil {
			t.Fatalf("encodeEntryMetadata: %v", err)
		}
	}

	decoded, err := decodeEntryMetadata(&buf, nil)
	if err != nil {
		t.Fatalf("decodeEntryMetadata: %v", err)
	}

	dir, ok := decoded.(*DirectoryEntry)
	if !ok {
		t.Fatalf("decoded = %T, want *DirectoryEntry", decoded)
	}
	if dir.Name() != "dir" || dir.Mode() != 0o755 {
		t.Errorf("dir mismatch: name=%q mode=%o", dir.Name(), dir.Mode())
	}
	if len(dir.Children) != 2 {
		t.Fatalf("len(Children) = %d, want 2", len(dir.Children))
	}

	fe, ok := dir.Children[0].(*FileEntry)
	if !ok {
		t.Fatalf("children[0] = %T, want *FileEntry", dir.Children[0])
	}
	if fe.RawSize != 500 || fe.CompressedSize != 120 || fe.RealSize != 500 || fe.Offset != 8 {
		t.Errorf("file entry fields mismatch: %+v", fe)
	}
	if fe.Compression != compress.Deflate {
		t.Errorf("compression = %v, want Deflate", fe.Compression)
	}

	se, ok := dir.Children[1].(*SymlinkEntry)
	if !ok {
		t.Fatalf("children[1] = %T, want *SymlinkEntry", dir.Children[1])
	}
	if se.Target != "file.txt" || se.TargetDir {
		t.Errorf("symlink mismatch: %+v", se)
	}
}

func TestEncodeEntryMetadataRejectsLongNames(t *testing.T) {
	longName := strings.Repeat("a", 256)
	e := &FileEntry{EntryName: longName}

	var buf bytes.Buffer
	err := encodeEntryMetadata(&buf, e)
	if err == nil {
		t.Fatal("expected error for name > 255 bytes")
	}
}

func TestEncodeEntryMetadataAcceptsMaxLengthName(t *testing.T) {
	name := strings.Repeat("a", 255)
	e := &FileEntry{EntryName: name, RawSize: 0, RealSize: 0}

	var buf bytes.Buffer
	if err := encodeEntryMetadata(&buf, e); err != nil {
		t.Fatalf("encodeEntryMetadata: %v", err)
	}
}

func TestNoneCompressionFileOmitsCompressedSizeField(t *testing.T) {
	e := &FileEntry{
		EntryName:   "f",
		Compression: compress.None,
		RawSize:     10,
		RealSize:    10,
		Offset:      8,
	}

	var buf bytes.Buffer
	if err := encodeEntryMetadata(&buf, e); err != nil {
		t.Fatalf("encodeEntryMetadata: %v", err)
	}

	decoded, err := decodeEntryMetadata(&buf, nil)
	if err != nil {
		t.Fatalf("decodeEntryMetadata: %v", err)
	}
	fe := decoded.(*FileEntry)
	if fe.HasCompressedSize {
		t.Errorf("expected HasCompressedSize = false for None compression")
	}
}
