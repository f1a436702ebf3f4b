// Package storage provides pluggable content-addressed blob backends for
// chunk data. A Backend stores and retrieves opaque byte streams keyed by
// a 32-byte content hash; it has no knowledge of refcounts or the chunk
// index above it.
package storage

import (
	"context"
	"io"
)

// Hash is a 32-byte content hash, typically BLAKE2b-256 of a chunk's
// plaintext.
type Hash [32]byte

// Backend stores and retrieves content-addressed blobs.
//
// Implementations must be safe for concurrent readers on distinct
// hashes. Writes to the same hash are idempotent: since content is
// addressed by its own hash, concurrent writers of the same hash always
// produce byte-identical output.
type Backend interface {
	// Read opens the stored blob for hash. Callers must Close the
	// returned reader. Returns ErrNotFound if no blob is stored for hash.
	Read(ctx context.Context, hash Hash) (io.ReadCloser, error)

	// Write stores the contents of r under hash, creating any
	// intermediate structure the backend needs.
	Write(ctx context.Context, hash Hash, r io.Reader) error

	// Delete removes the blob stored for hash. Deleting a hash that
	// does not exist is not an error.
	Delete(ctx context.Context, hash Hash) error
}

// hexShard renders the two-level hex sharding path components shared by
// every Backend implementation: the first two bytes of hash as two
// two-character hex directory segments, and the remaining 30 bytes as a
// 60-character hex file name with a ".chunk" suffix.
func hexShard(hash Hash) (dir1, dir2, name string) {
	const hexDigits = "0123456789abcdef"

	byteHex := func(b byte) string {
		return string([]byte{hexDigits[b>>4], hexDigits[b&0x0F]})
	}

	dir1 = byteHex(hash[0])
	dir2 = byteHex(hash[1])

	buf := make([]byte, 0, 60)
	for _, b := range hash[2:] {
		buf = append(buf, hexDigits[b>>4], hexDigits[b&0x0F])
	}
	name = string(buf) + ".chunk"

	return dir1, dir2, name
}

// Key returns the sharded object key used by the remote backends:
// "<xx>/<yy>/<60 hex>.chunk".
func Key(hash Hash) string {
	d1, d2, name := hexShard(hash)
	return d1 + "/" + d2 + "/" + name
}
