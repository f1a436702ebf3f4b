package repository

import "errors"

// ErrArchiveExists is returned by CreateArchive when an archive with the
// requested name already exists.
var ErrArchiveExists = errors.New("repository: archive already exists")

// ErrArchiveNotFound is returned by RestoreArchive/DeleteArchive when no
// archive with the given name exists.
var ErrArchiveNotFound = errors.New("repository: archive not found")
