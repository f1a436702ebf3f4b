package chunk

import "errors"

var (
	// ErrLocked reports a locked index. No function in this package
	// returns it; Open takes no lock of its own.
	ErrLocked = errors.New("chunk: index is locked")

	// ErrUnknownChunkID is returned by operations addressing a chunk ID
	// that isn't present in the index.
	ErrUnknownChunkID = errors.New("chunk: unknown chunk id")
)
