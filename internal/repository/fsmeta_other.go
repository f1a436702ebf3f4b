//go:build !unix

package repository

import "io/fs"

// lchown is a no-op on platforms without POSIX ownership semantics.
func lchown(path string, uid, gid uint32) error {
	return nil
}

// fsOwnerFromInfo is a no-op on platforms without POSIX ownership
// semantics.
func fsOwnerFromInfo(info fs.FileInfo) (uid, gid uint32) {
	return 0, 0
}

// fsModeFromInfo extracts the permission bits Go's portable FileMode
// exposes.
func fsModeFromInfo(info fs.FileInfo) uint32 {
	return uint32(info.Mode().Perm())
}
