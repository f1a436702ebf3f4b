package storage

import "errors"

// ErrNotFound is returned by Backend.Read when no blob is stored for the
// requested hash.
var ErrNotFound = errors.New("storage: chunk not found")
