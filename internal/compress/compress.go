// Package compress implements the four compression adapters shared by
// the chunk store and the archive codec: None, Gzip, Deflate, and
// Brotli, each identified by a single-byte wire tag.
package compress

import (
	"compress/gzip"
	"errors"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
)

// Format identifies a compression adapter by its one-byte wire tag.
type Format byte

const (
	None    Format = 0
	Gzip    Format = 1
	Deflate Format = 2
	Brotli  Format = 3
)

// ErrUnknownFormat is returned when decoding an unrecognized tag byte.
var ErrUnknownFormat = errors.New("compress: unknown format tag")

// String returns a human-readable name, used in log fields and errors.
func (f Format) String() string {
	switch f {
	case None:
		return "none"
	case Gzip:
		return "gzip"
	case Deflate:
		return "deflate"
	case Brotli:
		return "brotli"
	default:
		return "unknown"
	}
}

// Valid reports whether f is one of the four known formats.
func (f Format) Valid() bool {
	switch f {
	case None, Gzip, Deflate, Brotli:
		return true
	default:
		return false
	}
}

// NewWriter wraps w with an encoder for f. The returned WriteCloser
// must be closed to flush trailing state; closing it does not close w.
func NewWriter(w io.Writer, f Format) (io.WriteCloser, error) {
	switch f {
	case None:
		return nopWriteCloser{w}, nil
	case Gzip:
		return gzip.NewWriterLevel(w, gzip.DefaultCompression)
	case Deflate:
		return flate.NewWriter(w, flate.DefaultCompression)
	case Brotli:
		return brotli.NewWriter(w), nil
	default:
		return nil, ErrUnknownFormat
	}
}

// NewReader wraps r with a decoder for f.
func NewReader(r io.Reader, f Format) (io.Reader, error) {
	switch f {
	case None:
		return r, nil
	case Gzip:
		return gzip.NewReader(r)
	case Deflate:
		return flate.NewReader(r), nil
	case Brotli:
		return brotli.NewReader(r), nil
	default:
		return nil, ErrUnknownFormat
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
