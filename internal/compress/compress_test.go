package compress

import (
	"bytes"
	"io"
	"testing"
)

func TestRoundTripAllFormats(t *testing.T) {
	payload := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog "), 50)

	for _, f := range []Format{None, Gzip, Deflate, Brotli} {
		f := f
		t.Run(f.String(), func(t *testing.T) {
			var buf bytes.Buffer
			w, err := NewWriter(&buf, f)
			if err != nil {
				t.Fatalf("NewWriter: %v", err)
			}
			if _, err := w.Write(payload); err != nil {
				t.Fatalf("Write: %v", err)
			}
			if err := w.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}

			r, err := NewReader(&buf, f)
			if err != nil {
				t.Fatalf("NewReader: %v", err)
			}
			got, err := io.ReadAll(r)
			if err != nil {
				t.Fatalf("ReadAll: %v", err)
			}
			if !bytes.Equal(got, payload) {
				t.Errorf("round trip mismatch for %s", f)
			}
		})
	}
}

func TestUnknownFormatRejected(t *testing.T) {
	var buf bytes.Buffer
	if _, err := NewWriter(&buf, Format(99)); err != ErrUnknownFormat {
		t.Errorf("NewWriter: got %v, want ErrUnknownFormat", err)
	}
	if _, err := NewReader(&buf, Format(99)); err != ErrUnknownFormat {
		t.Errorf("NewReader: got %v, want ErrUnknownFormat", err)
	}
}

func TestValid(t *testing.T) {
	for _, f := range []Format{None, Gzip, Deflate, Brotli} {
		if !f.Valid() {
			t.Errorf("%v should be valid", f)
		}
	}
	if Format(42).Valid() {
		t.Errorf("42 should not be valid")
	}
}
