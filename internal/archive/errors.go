package archive

import "errors"

var (
	// ErrInvalidSignature is returned by Open when the first 7 bytes of
	// the file are not "DDUPBAK".
	ErrInvalidSignature = errors.New("archive: invalid file signature")

	// ErrEntryNotFound is returned by FindEntry when no entry matches
	// the requested path.
	ErrEntryNotFound = errors.New("archive: entry not found")
)
